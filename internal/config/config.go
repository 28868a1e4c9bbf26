// Package config decodes ru's optional config.toml (spec §4.6), following
// the teacher's settings.go pattern: a typed struct with "toml" tags,
// pointer fields for tri-state booleans, defaults applied after decode.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/joyshmitz/ru/internal/localfs"
)

// Config is ru's user-preferences document, <config_dir>/ru/config.toml.
type Config struct {
	SchemaVersion int            `toml:"schema_version"`
	Paths         PathsSettings  `toml:"paths,omitempty"`
	Review        ReviewSettings `toml:"review,omitempty"`
	Driver        DriverSettings `toml:"driver,omitempty"`
	ForkSync      ForkSyncConfig `toml:"fork_sync,omitempty"`
	Git           GitSettings    `toml:"git,omitempty"`
}

// PathsSettings controls repo-registry layout (spec §3, §4.1).
type PathsSettings struct {
	Layout string `toml:"layout,omitempty"` // "flat" (default) or "nested"
}

// ReviewSettings resolves spec §9's two Open Questions: MONITOR's poll
// interval and per-run wall clock are configuration, not hardcoded.
type ReviewSettings struct {
	Mode                string `toml:"mode,omitempty"`
	Strategy            string `toml:"strategy,omitempty"`
	MonitorIntervalMS   int    `toml:"monitor_interval_ms,omitempty"`
	WallClockMinutes    int    `toml:"wall_clock_minutes,omitempty"`
	SweepWorkers        int    `toml:"sweep_workers,omitempty"`
	RestartOnConfigHash bool   `toml:"restart_on_config_hash_change,omitempty"`
}

// DriverSettings names a preferred driver implementation (spec §4.4).
type DriverSettings struct {
	Preferred string `toml:"preferred,omitempty"`
}

// ForkSyncConfig holds fork-sync/fork-clean defaults (spec §4.2).
type ForkSyncConfig struct {
	Strategy string `toml:"strategy,omitempty"`
	Rescue   *bool  `toml:"rescue,omitempty"`
}

// GitSettings controls the git subprocess wrapper (spec §5).
type GitSettings struct {
	SubprocessTimeoutSeconds int `toml:"subprocess_timeout_seconds,omitempty"`
}

// Defaults returns the configuration that applies when config.toml is
// absent or a field is left unset.
func Defaults() Config {
	return Config{
		SchemaVersion: 1,
		Paths:         PathsSettings{Layout: "flat"},
		Review: ReviewSettings{
			Mode:                "local",
			Strategy:            "ff-only",
			MonitorIntervalMS:   500,
			WallClockMinutes:    120,
			SweepWorkers:        4,
			RestartOnConfigHash: true,
		},
		Driver:   DriverSettings{Preferred: ""},
		ForkSync: ForkSyncConfig{Strategy: "ff-only"},
		Git:      GitSettings{SubprocessTimeoutSeconds: 300},
	}
}

// Load reads and decodes config.toml at path, overlaying it onto
// Defaults(). A missing file is not an error; it simply yields defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := localfs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	applyZeroDefaults(&cfg)
	return cfg, nil
}

// applyZeroDefaults restores defaults for fields a partial config.toml
// left at their Go zero value, so an incomplete [review] table doesn't
// silently zero out the poll interval or wall clock.
func applyZeroDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Paths.Layout == "" {
		cfg.Paths.Layout = d.Paths.Layout
	}
	if cfg.Review.Mode == "" {
		cfg.Review.Mode = d.Review.Mode
	}
	if cfg.Review.Strategy == "" {
		cfg.Review.Strategy = d.Review.Strategy
	}
	if cfg.Review.MonitorIntervalMS == 0 {
		cfg.Review.MonitorIntervalMS = d.Review.MonitorIntervalMS
	}
	if cfg.Review.WallClockMinutes == 0 {
		cfg.Review.WallClockMinutes = d.Review.WallClockMinutes
	}
	if cfg.Review.SweepWorkers == 0 {
		cfg.Review.SweepWorkers = d.Review.SweepWorkers
	}
	if cfg.ForkSync.Strategy == "" {
		cfg.ForkSync.Strategy = d.ForkSync.Strategy
	}
	if cfg.Git.SubprocessTimeoutSeconds == 0 {
		cfg.Git.SubprocessTimeoutSeconds = d.Git.SubprocessTimeoutSeconds
	}
}
