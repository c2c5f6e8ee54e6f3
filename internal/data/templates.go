package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template holds static attributes for an entity template id. Spawn
// events often carry only the numeric template; the table supplies the
// readable name and descriptive fields.
type Template struct {
	ID    uint32 `yaml:"id"`
	Name  string `yaml:"name"`
	Level int32  `yaml:"level"`
	Class string `yaml:"class"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// TemplateTable holds all entity templates indexed by id.
type TemplateTable struct {
	byID map[uint32]*Template
}

// LoadTemplateTable reads the template YAML. A missing file is an error;
// callers that want template enrichment to be optional should not call
// this with an empty path.
func LoadTemplateTable(path string) (*TemplateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template table %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse template table %s: %w", path, err)
	}
	t := &TemplateTable{byID: make(map[uint32]*Template, len(f.Templates))}
	for i := range f.Templates {
		tmpl := &f.Templates[i]
		t.byID[tmpl.ID] = tmpl
	}
	return t, nil
}

// Lookup returns the template for an id.
func (t *TemplateTable) Lookup(id uint32) (*Template, bool) {
	tmpl, ok := t.byID[id]
	return tmpl, ok
}

// Count returns the number of loaded templates.
func (t *TemplateTable) Count() int {
	return len(t.byID)
}
