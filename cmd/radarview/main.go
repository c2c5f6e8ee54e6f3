// radarview is a terminal viewer for the radar snapshot file: it polls
// the atomically replaced target file and renders the entity table the
// way the daemon sees it. Read-only; the daemon is the single writer.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/teramod/radar/internal/snapshot"
)

const pollInterval = 250 * time.Millisecond

func main() {
	path := "radar_output.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	if err := run(path); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()
	screen.HideCursor()

	events := make(chan tcell.Event, 8)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var snap *snapshot.Snapshot
	var lastMod time.Time
	var readErr error

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
			if s, mod, err := readSnapshot(path, lastMod); err != nil {
				readErr = err
			} else if s != nil {
				snap, lastMod, readErr = s, mod, nil
			}
			draw(screen, path, snap, readErr)
		}
	}
}

// readSnapshot reloads the file when its mtime changed. Returns nil
// snapshot when unchanged.
func readSnapshot(path string, lastMod time.Time) (*snapshot.Snapshot, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, lastMod, err
	}
	if !info.ModTime().After(lastMod) {
		return nil, lastMod, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, lastMod, err
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		// Mid-rename reads cannot happen; a parse failure means a
		// truncated or foreign file.
		return nil, lastMod, err
	}
	return &s, info.ModTime(), nil
}

var (
	styleDefault  = tcell.StyleDefault
	styleHeader   = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorYellow)
	styleDim      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleMonster  = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleNPC      = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	stylePlayer   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleFriendly = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleError    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

func draw(screen tcell.Screen, path string, snap *snapshot.Snapshot, readErr error) {
	screen.Clear()
	w, h := screen.Size()

	emit(screen, 0, 0, styleHeader, "RADAR — entity monitor")
	emit(screen, 0, 1, styleDim, fmt.Sprintf("file: %s", path))

	row := 3
	if readErr != nil {
		emit(screen, 0, row, styleError, fmt.Sprintf("read error: %v", readErr))
		screen.Show()
		return
	}
	if snap == nil {
		emit(screen, 0, row, styleDim, "waiting for first snapshot…")
		screen.Show()
		return
	}

	if snap.Player.Position != nil {
		p := snap.Player.Position
		emit(screen, 0, row, styleDefault, fmt.Sprintf("player: (%8.1f, %8.1f, %8.1f)", p.X, p.Y, p.Z))
	} else {
		emit(screen, 0, row, styleDim, "player: position unknown")
	}
	row += 2

	emit(screen, 0, row, styleHeader,
		fmt.Sprintf("%-22s %-8s %9s  %-10s %s", "NAME", "TYPE", "DIST", "HP", "POSITION"))
	row++

	for _, e := range snap.Entities {
		if row >= h-2 {
			break
		}
		style := styleMonster
		switch e.Type {
		case "Player":
			style = stylePlayer
		case "NPC":
			style = styleNPC
		}
		if e.IsFriendly {
			style = styleFriendly
		}

		dist := "     ?"
		if e.Distance != nil {
			dist = fmt.Sprintf("%7.1fm", *e.Distance)
		}
		hp := "-"
		if e.HP != nil && e.MaxHP != nil {
			hp = fmt.Sprintf("%d/%d", *e.HP, *e.MaxHP)
		}
		name := e.Name
		if len(name) > 21 {
			name = name[:21]
		}
		emit(screen, 0, row, style, fmt.Sprintf("%-22s %-8s %9s  %-10s (%7.0f,%7.0f,%7.0f)",
			name, e.Type, dist, hp, e.Position.X, e.Position.Y, e.Position.Z))
		row++
	}

	footer := fmt.Sprintf("in radius: %d   tracked: %d   radius: %.0fm   %s   [q to quit]",
		snap.Metadata.EntitiesInRadius,
		snap.Metadata.TotalEntitiesTracked,
		snap.Metadata.RadarRadius,
		snap.Timestamp)
	if len(footer) > w {
		footer = footer[:w]
	}
	emit(screen, 0, h-1, styleDim, footer)

	screen.Show()
}

func emit(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, style)
	}
}
