package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Profile represents one scheduled conversion profile
type Profile struct {
	Name       string `toml:"name"`
	Schedule   string `toml:"schedule"`
	InputDir   string `toml:"input_dir"`
	OutputRoot string `toml:"output_root"`
	Format     string `toml:"format"`
	AddSuffix  *bool  `toml:"add_suffix"`
	Enabled    *bool  `toml:"enabled"`
}

// ProfilesConfig holds all conversion profiles
type ProfilesConfig struct {
	Profiles []Profile `toml:"profile"`
}

// Validate checks the profile and fills defaults. Empty output_root and
// format fall back to the global config when the profile runs.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Schedule == "" {
		return fmt.Errorf("schedule expression is required")
	}
	if _, err := ParseSchedule(p.Schedule); err != nil {
		return fmt.Errorf("invalid schedule expression: %w", err)
	}
	if p.InputDir == "" {
		return fmt.Errorf("input_dir is required")
	}
	if p.AddSuffix == nil {
		v := true
		p.AddSuffix = &v
	}
	if p.Enabled == nil {
		v := true
		p.Enabled = &v
	}
	return nil
}

// SuffixEnabled reports whether output directories get the format suffix.
func (p *Profile) SuffixEnabled() bool {
	return p.AddSuffix == nil || *p.AddSuffix
}

// IsEnabled reports whether the profile participates in scheduling.
func (p *Profile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ParseSchedule parses a standard 5-field cron expression (descriptors such
// as @daily are accepted too).
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// LoadProfiles loads conversion profiles from a TOML file. A missing file
// yields an empty config.
func LoadProfiles(path string) (*ProfilesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfilesConfig{}, nil
		}
		return nil, err
	}

	var cfg ProfilesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for i := range cfg.Profiles {
		if err := cfg.Profiles[i].Validate(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		name := cfg.Profiles[i].Name
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("profile %d: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
	}

	return &cfg, nil
}
