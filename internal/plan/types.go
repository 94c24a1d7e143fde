package plan

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so plan files can spell timeouts the way
// humans do ("90s", "5m"). It remembers whether a value was written at
// all, so an explicit zero can be told apart from an absent field.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Plan mirrors the plan file document structure.
type Plan struct {
	Version   string            `yaml:"version"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Defaults  Defaults          `yaml:"defaults,omitempty"`
	Stressors map[string]*Entry `yaml:"stressors"`
}

// Defaults supplies fallback settings merged onto every entry.
type Defaults struct {
	Workers     int  `yaml:"workers,omitempty"`
	Oomable     bool `yaml:"oomable,omitempty"`
	NoOomAdjust bool `yaml:"no-oom-adjust,omitempty"`
	DropCaps    bool `yaml:"drop-caps,omitempty"`
	Verify      bool `yaml:"verify,omitempty"`
}

// Entry configures one stressor in the plan. Pointer fields distinguish
// "not written" from an explicit false so defaults can fill the gaps.
type Entry struct {
	Workers     int    `yaml:"workers,omitempty"`
	VMBytes     string `yaml:"vm-bytes,omitempty"`
	MaxOps      uint64 `yaml:"max-ops,omitempty"`
	Oomable     *bool  `yaml:"oomable,omitempty"`
	NoOomAdjust *bool  `yaml:"no-oom-adjust,omitempty"`
	DropCaps    *bool  `yaml:"drop-caps,omitempty"`
	Verify      *bool  `yaml:"verify,omitempty"`

	vmBytes int64
}

// ResolvedVMBytes reports the entry's memory footprint in bytes, parsed
// during ApplyDefaults.
func (e *Entry) ResolvedVMBytes() int64 { return e.vmBytes }

// IsOomable resolves the entry's oomable setting against the defaults.
func (e *Entry) IsOomable(d Defaults) bool { return resolve(e.Oomable, d.Oomable) }

// IsNoOomAdjust resolves the entry's no-oom-adjust setting.
func (e *Entry) IsNoOomAdjust(d Defaults) bool { return resolve(e.NoOomAdjust, d.NoOomAdjust) }

// IsDropCaps resolves the entry's drop-caps setting.
func (e *Entry) IsDropCaps(d Defaults) bool { return resolve(e.DropCaps, d.DropCaps) }

// IsVerify resolves the entry's verify setting.
func (e *Entry) IsVerify(d Defaults) bool { return resolve(e.Verify, d.Verify) }

func resolve(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
