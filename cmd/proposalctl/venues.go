package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vinetrail/vinetrail-backend/types"
)

type venueFile struct {
	Venues []types.Venue `yaml:"venues"`
}

// loadVenueFile reads a catalogue of the form
//
//	venues:
//	  - name: Leonetti Cellar
//	    type: winery
//
// Names are trimmed and must be unique ignoring case.
func loadVenueFile(r io.Reader) ([]types.Venue, error) {
	var vf venueFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("venue file is empty")
		}
		return nil, fmt.Errorf("parse venue file: %w", err)
	}

	seen := make(map[string]bool, len(vf.Venues))
	for i := range vf.Venues {
		v := &vf.Venues[i]
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" {
			return nil, fmt.Errorf("venue %d has no name", i+1)
		}
		if !v.Type.IsValid() {
			return nil, fmt.Errorf("venue %q has unknown type %q", v.Name, v.Type)
		}
		key := strings.ToLower(v.Name)
		if seen[key] {
			return nil, fmt.Errorf("venue %q is listed twice", v.Name)
		}
		seen[key] = true
	}
	if len(vf.Venues) == 0 {
		return nil, fmt.Errorf("venue file lists no venues")
	}
	return vf.Venues, nil
}
