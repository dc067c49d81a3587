// Package resources is the emergency-support directory used when a turn is
// escalated.
package resources

import (
	_ "embed"
	"fmt"

	"legal-assistant-be/pkg/legal/state"

	"gopkg.in/yaml.v3"
)

//go:embed directory.yaml
var defaultDirectory []byte

type Directory struct {
	National map[state.RiskCategory][]state.Resource            `yaml:"national"`
	States   map[string]map[state.RiskCategory][]state.Resource `yaml:"states"`
}

// Parse reads a directory document.
func Parse(raw []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse resource directory: %w", err)
	}
	for cat := range d.National {
		if !cat.Valid() {
			return nil, fmt.Errorf("resource directory: unknown category %q", cat)
		}
	}
	return &d, nil
}

// Default returns the built-in Australian directory.
func Default() *Directory {
	d, err := Parse(defaultDirectory)
	if err != nil {
		panic(err)
	}
	return d
}

// For lists national resources for the category followed by those of the
// user's state, deduplicated by name in that order.
func (d *Directory) For(category state.RiskCategory, jurisdiction string) []state.Resource {
	var all []state.Resource
	all = append(all, d.National[category]...)
	if byCat, ok := d.States[jurisdiction]; ok {
		all = append(all, byCat[category]...)
	}

	seen := make(map[string]bool, len(all))
	out := make([]state.Resource, 0, len(all))
	for _, r := range all {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out
}
