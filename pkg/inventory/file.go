package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk inventory shape.
type fileDocument struct {
	Hosts  []*Host  `yaml:"hosts"`
	Groups []*Group `yaml:"groups"`
}

// LoadFile reads a YAML inventory document into a Table. Group
// memberships declared on hosts and explicit group blocks are merged;
// a group block supplies the group's variables.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}

	// Explicit group blocks first so host memberships append to them.
	t, err := NewTable(nil, doc.Groups)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	for _, h := range doc.Hosts {
		if err := t.AddHost(h); err != nil {
			return nil, fmt.Errorf("inventory %s: %w", path, err)
		}
	}
	return t, nil
}
