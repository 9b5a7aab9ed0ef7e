// Package config loads and validates the tournament configuration.
// Validation happens in full before any process is launched; the rest
// of the system consumes the values as already correct.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/torcs-league/raceman/internal/player"
	"github.com/torcs-league/raceman/internal/race"
	"github.com/torcs-league/raceman/internal/rating"
)

// ConfigError is a fatal configuration problem, surfaced before any
// process is launched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Reason)
}

// Config is the root of the TOML tournament file.
type Config struct {
	Global  Global         `toml:"global"`
	Players []PlayerConfig `toml:"players"`
}

type Global struct {
	RatingsFile   string  `toml:"ratings_file"`
	BackupDir     string  `toml:"backup_dir"`
	InitialRating float64 `toml:"initial_rating"`
	KFactor       float64 `toml:"k_factor"`
	AdmitUnknown  bool    `toml:"admit_unknown"`

	RaceSize    int `toml:"race_size"`
	MaxAttempts int `toml:"max_attempts"`

	TorcsCommand string `toml:"torcs_command"`
	TorcsConfig  string `toml:"torcs_config"`
	ResultsDir   string `toml:"results_dir"`
	OutputDir    string `toml:"output_dir"`
	ArchiveDir   string `toml:"archive_dir"`

	CrashGraceMs    int     `toml:"crash_grace_ms"`
	ShutdownGraceMs int     `toml:"shutdown_grace_ms"`
	MinRaceTimeSec  float64 `toml:"min_race_time_sec"`
	StrictDuration  bool    `toml:"strict_duration"`

	SeparateUsers bool   `toml:"separate_users"`
	SyncStopCmd   string `toml:"sync_stop_cmd"`
	SyncStartCmd  string `toml:"sync_start_cmd"`
}

type PlayerConfig struct {
	Token   string   `toml:"token"`
	Dir     string   `toml:"dir"`
	Command string   `toml:"command"`
	Stdout  string   `toml:"stdout"`
	Stderr  string   `toml:"stderr"`
	User    string   `toml:"user"`
	Marker  string   `toml:"marker"`
	Rating  *float64 `toml:"rating"`
}

// Load reads and validates a tournament file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.RatingsFile == "" {
		g.RatingsFile = "ratings.csv"
	}
	if g.InitialRating == 0 {
		g.InitialRating = rating.Initial
	}
	if g.KFactor == 0 {
		g.KFactor = rating.DefaultK
	}
	if g.RaceSize == 0 {
		g.RaceSize = race.MaxSlots
	}
	if g.TorcsCommand == "" {
		g.TorcsCommand = "torcs -r {config}"
	}
	if g.OutputDir == "" {
		g.OutputDir = "races"
	}
	if g.CrashGraceMs == 0 {
		g.CrashGraceMs = 2000
	}
	if g.ShutdownGraceMs == 0 {
		g.ShutdownGraceMs = 5000
	}
	for i := range c.Players {
		if c.Players[i].Marker == "" {
			c.Players[i].Marker = ".raced"
		}
	}
}

func (c *Config) validate() error {
	g := c.Global
	if g.RaceSize < 2 || g.RaceSize > race.MaxSlots {
		return &ConfigError{Field: "global.race_size",
			Reason: fmt.Sprintf("must be between 2 and %d, got %d", race.MaxSlots, g.RaceSize)}
	}
	if !strings.Contains(g.TorcsCommand, "{config}") {
		return &ConfigError{Field: "global.torcs_command",
			Reason: "missing the {config} placeholder"}
	}
	if g.TorcsConfig == "" {
		return &ConfigError{Field: "global.torcs_config", Reason: "required"}
	}
	if g.ResultsDir == "" {
		return &ConfigError{Field: "global.results_dir", Reason: "required"}
	}
	if len(c.Players) == 0 {
		return &ConfigError{Field: "players", Reason: "at least one player is required"}
	}

	seen := make(map[string]bool)
	for i, p := range c.Players {
		field := fmt.Sprintf("players[%d]", i)
		if p.Token == "" {
			return &ConfigError{Field: field + ".token", Reason: "required"}
		}
		if seen[p.Token] {
			return &ConfigError{Field: field + ".token",
				Reason: fmt.Sprintf("duplicate token %q", p.Token)}
		}
		seen[p.Token] = true
		if p.Dir == "" {
			return &ConfigError{Field: field + ".dir", Reason: "required"}
		}
		if p.Command == "" {
			return &ConfigError{Field: field + ".command", Reason: "required"}
		}
		if !strings.Contains(p.Command, "{port}") {
			return &ConfigError{Field: field + ".command",
				Reason: "missing the {port} placeholder"}
		}
		if c.Global.SeparateUsers && p.User == "" {
			return &ConfigError{Field: field + ".user",
				Reason: "required when separate_users is enabled"}
		}
	}
	return nil
}

// BuildPlayers builds the in-memory competitor models.
func (c *Config) BuildPlayers() []*player.Player {
	players := make([]*player.Player, 0, len(c.Players))
	for _, p := range c.Players {
		pl := &player.Player{
			Token:   p.Token,
			Dir:     p.Dir,
			Command: p.Command,
			Stdout:  p.Stdout,
			Stderr:  p.Stderr,
			RunAs:   p.User,
			Marker:  p.Marker,
			Rating:  c.Global.InitialRating,
		}
		if p.Rating != nil {
			pl.Rating = *p.Rating
		}
		players = append(players, pl)
	}
	return players
}

// RaceConfig derives the controller settings.
func (c *Config) RaceConfig() race.Config {
	g := c.Global
	return race.Config{
		SimCommand:     g.TorcsCommand,
		SimConfig:      g.TorcsConfig,
		ResultsDir:     g.ResultsDir,
		OutputDir:      g.OutputDir,
		MaxAttempts:    g.MaxAttempts,
		CrashGrace:     time.Duration(g.CrashGraceMs) * time.Millisecond,
		ShutdownGrace:  time.Duration(g.ShutdownGraceMs) * time.Millisecond,
		MinRaceTime:    time.Duration(g.MinRaceTimeSec * float64(time.Second)),
		StrictDuration: g.StrictDuration,
		SeparateUsers:  g.SeparateUsers,
		SyncStopCmd:    g.SyncStopCmd,
		SyncStartCmd:   g.SyncStartCmd,
	}
}
