package database

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// profileFile is the YAML layout accepted by ParseProfiles:
//
//	connections:
//	  - id: web-1
//	    protocol: ssh
//	    host: 10.0.0.5
//	    port: 22
//	    username: ops
//	    display_name: Web 1
type profileFile struct {
	Connections []protocol.ConnectionDescriptor `yaml:"connections"`
}

// ParseProfiles reads connection profiles from YAML and validates them.
func ParseProfiles(r io.Reader) ([]protocol.ConnectionDescriptor, error) {
	var f profileFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	seen := make(map[string]bool, len(f.Connections))
	for i := range f.Connections {
		d := &f.Connections[i]
		if err := d.Normalize(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i+1, err)
		}
		if d.Host == "" {
			return nil, fmt.Errorf("profile %s: missing host", d.ID)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("profile %s: duplicate id", d.ID)
		}
		seen[d.ID] = true
	}
	return f.Connections, nil
}

// ImportProfiles saves every descriptor, replacing rows with the same id.
func ImportProfiles(ds []protocol.ConnectionDescriptor) (int, error) {
	for i, d := range ds {
		if err := SaveConnection(d); err != nil {
			return i, fmt.Errorf("import %s: %w", d.ID, err)
		}
	}
	return len(ds), nil
}
