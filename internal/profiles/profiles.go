// Package profiles reads the optional YAML profiles file (chronarr.yml),
// watches it for edits, and syncs its contents into the profile store.
package profiles

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mescon/chronarr/internal/timedate"
)

// File is the parsed profiles file: an optional timezone plus named profiles
// with kind lists.
type File struct {
	Timezone string    `yaml:"timezone,omitempty"`
	Profiles []Profile `yaml:"profiles,omitempty"`
}

// Profile is one named group of representation kinds in the file.
type Profile struct {
	Name    string   `yaml:"name"`
	Kinds   []string `yaml:"kinds,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
}

// IsEnabled reports the effective enabled state; an omitted flag means enabled.
func (p Profile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Parse decodes and validates profiles file content. Unknown fields are
// rejected so typos surface instead of silently dropping configuration.
// An empty file parses to an empty File.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, fmt.Errorf("invalid profiles file: %w", err)
	}
	// reject trailing documents (e.g. concatenated YAML)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid profiles file: trailing document")
		}
		return nil, fmt.Errorf("invalid profiles file: %w", err)
	}
	if err := f.normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// normalize trims names, applies the kind default, dedupes kind lists, and
// validates everything the schema cannot express.
func (f *File) normalize() error {
	if f.Timezone != "" {
		if _, err := time.LoadLocation(f.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", f.Timezone, err)
		}
	}

	seen := make(map[string]struct{}, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return fmt.Errorf("profile %d has no name", i+1)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		if len(p.Kinds) == 0 {
			p.Kinds = []string{timedate.KindTime.Key()}
			continue
		}
		kinds := make([]string, 0, len(p.Kinds))
		used := make(map[string]struct{}, len(p.Kinds))
		for _, key := range p.Kinds {
			key = strings.TrimSpace(key)
			if _, err := timedate.ParseKind(key); err != nil {
				return fmt.Errorf("profile %q: %w", p.Name, err)
			}
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
			kinds = append(kinds, key)
		}
		p.Kinds = kinds
	}
	return nil
}
