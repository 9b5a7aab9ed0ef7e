// Package player holds the in-memory competitor model. A player is
// built from configuration at startup and lives until shutdown; only
// its rating survives between runs, inside the rating store.
package player

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Player is one registered competitor: an immutable token, the
// working context its driver process is launched in, and the current
// rating as last loaded from the store.
type Player struct {
	Token string

	// Working context.
	Dir     string // process working directory
	Command string // launch template, must contain the {port} placeholder
	Stdout  string // capture path for standard output
	Stderr  string // capture path for standard error
	RunAs   string // OS user to run as, empty to inherit the orchestrator's
	Marker  string // staleness marker file, relative to Dir when not absolute

	Rating float64
}

func (p *Player) String() string {
	return fmt.Sprintf("%s (%.0f)", p.Token, p.Rating)
}

func (p *Player) markerPath() string {
	if filepath.IsAbs(p.Marker) {
		return p.Marker
	}
	return filepath.Join(p.Dir, p.Marker)
}

// Staleness returns the last-modified time of the player's marker
// file, the proxy for "last time this player raced or was touched".
// A missing marker counts as maximally stale.
func (p *Player) Staleness() time.Time {
	info, err := os.Stat(p.markerPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Touch refreshes the marker so the player drops to the back of the
// scheduling order. The marker file is created if it does not exist.
func (p *Player) Touch() error {
	path := p.markerPath()
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to touch marker for %s: %w", p.Token, err)
	}
	return file.Close()
}
