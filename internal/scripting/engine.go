package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/teramod/radar/internal/world"
)

// Engine wraps a single gopher-lua VM for user classification overrides.
// Single-goroutine access only (radar loop).
//
// Scripts may define:
//
//	function classify(id, name, template_id, kind, friendly)
//	    return kind, friendly
//	end
//
// The function receives the derived kind ("Player"/"NPC"/"Monster") and
// friendly flag and may return replacements. Returning nothing, or an
// unrecognized kind string, keeps the derived values.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from scriptsDir.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory. A missing directory is
// not an error.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// OverrideClassification implements world.CreationHook. Script errors
// keep the derived values; classification never fails.
func (e *Engine) OverrideClassification(id uint64, name string, templateID uint32, kind world.Kind, friendly bool) (world.Kind, bool) {
	fn := e.vm.GetGlobal("classify")
	if fn == lua.LNil {
		return kind, friendly
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    2,
		Protect: true,
	},
		lua.LNumber(id),
		lua.LString(name),
		lua.LNumber(templateID),
		lua.LString(string(kind)),
		lua.LBool(friendly),
	); err != nil {
		e.log.Warn("lua classify failed", zap.Uint64("id", id), zap.Error(err))
		return kind, friendly
	}

	retFriendly := e.vm.Get(-1)
	retKind := e.vm.Get(-2)
	e.vm.Pop(2)

	outKind := kind
	if s, ok := retKind.(lua.LString); ok {
		switch world.Kind(s) {
		case world.KindPlayer, world.KindNPC, world.KindMonster:
			outKind = world.Kind(s)
		}
	}
	outFriendly := friendly
	if b, ok := retFriendly.(lua.LBool); ok {
		outFriendly = bool(b)
	}
	return outKind, outFriendly
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
