package plan

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strainlabs/strain/internal/resources"
	"github.com/strainlabs/strain/internal/stressor"
)

// Parse reads a plan from YAML. Unknown fields are rejected.
func Parse(r io.Reader) (*Plan, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var doc Plan
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := doc.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseFile reads a plan from disk.
func ParseFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// ApplyDefaults merges plan defaults onto entries and resolves textual
// sizes into bytes.
func (p *Plan) ApplyDefaults() error {
	if p.Defaults.Workers == 0 {
		p.Defaults.Workers = 1
	}
	for name, entry := range p.Stressors {
		if entry == nil {
			entry = &Entry{}
			p.Stressors[name] = entry
		}
		if entry.Workers == 0 {
			entry.Workers = p.Defaults.Workers
		}
		bytes, err := resources.ParseSize(entry.VMBytes)
		if err != nil {
			return fmt.Errorf("stressor %s: %w", name, err)
		}
		entry.vmBytes = bytes
	}
	return nil
}

// Validate enforces schema invariants.
func (p *Plan) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(p.Stressors) == 0 {
		return fmt.Errorf("at least one stressor must be defined")
	}
	if p.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	for name, entry := range p.Stressors {
		if _, ok := stressor.Lookup(name); !ok {
			return fmt.Errorf("stressor %s is not known", name)
		}
		if entry.Workers < 1 {
			return fmt.Errorf("stressor %s must have at least one worker", name)
		}
	}
	return nil
}
