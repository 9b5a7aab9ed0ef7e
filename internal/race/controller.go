// Package race runs one race end-to-end: simulator and driver
// processes up, crash window watched, substitutes drawn on failure,
// results collected exactly once, every child process provably gone on
// every exit path.
package race

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/torcs-league/raceman/internal/player"
	"github.com/torcs-league/raceman/internal/proc"
	"github.com/torcs-league/raceman/internal/report"
)

// Config carries the already-validated controller settings. The
// external loader owns validation; by the time a Config reaches the
// controller every field is usable as-is.
type Config struct {
	SimCommand string // launch template, {config} is replaced by SimConfig
	SimConfig  string // native race configuration, passed through opaque
	ResultsDir string // directory the simulator writes results files to
	OutputDir  string // capture root for per-attempt stdout/stderr files

	MaxAttempts    int           // 0 means one retry per competitor in the field
	CrashGrace     time.Duration // window after launch in which an exit is a crash
	ShutdownGrace  time.Duration // TERM-to-KILL delay during cleanup
	MinRaceTime    time.Duration // fastest believable race
	StrictDuration bool          // promote ImplausibleDuration to a fatal abort
	SeparateUsers  bool          // launch each driver under its own OS user

	// Optional external sync client coordination, best-effort only.
	SyncStopCmd  string
	SyncStartCmd string
}

// Status is the terminal state of a race.
type Status int

const (
	Succeeded Status = iota
	Aborted
)

// Outcome is what a race leaves behind. Placements holds competitor
// tokens winner-first and is only set when Status is Succeeded; Err
// holds the classified abort cause otherwise. Warnings carries
// non-fatal findings such as an implausible duration in lenient mode.
type Outcome struct {
	RaceID     string
	Status     Status
	Attempts   int
	Placements []string
	Err        error
	Warnings   []error
}

type state int

const (
	stateSimulatorStarting state = iota
	statePlayersStarting
	stateCrashCheck
	stateRacing
	stateResultCollection
)

// Controller is the race state machine. One controller runs one race
// at a time; the simulator and drivers are separate OS processes it
// supervises but never computes for.
type Controller struct {
	cfg      Config
	launcher proc.Launcher
	reg      *proc.Registry
	rep      report.Reporter
	log      *slog.Logger
}

func NewController(cfg Config, launcher proc.Launcher, rep report.Reporter, log *slog.Logger) *Controller {
	if rep == nil {
		rep = report.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		launcher: launcher,
		reg:      proc.NewRegistry(),
		rep:      rep,
		log:      log,
	}
}

// Registry exposes the live-process registry, mainly so tests can
// assert that nothing survives a finished race.
func (c *Controller) Registry() *proc.Registry { return c.reg }

// Run races the given field, drawing substitutes from pool (in order)
// when a driver crashes inside the grace window. It never returns
// while a child process of the race is still alive.
func (c *Controller) Run(field []*player.Player, pool []*player.Player) Outcome {
	out := Outcome{RaceID: uuid.NewString()}
	if len(field) < 2 || len(field) > MaxSlots {
		out.Status = Aborted
		out.Err = fmt.Errorf("field of %d players does not fit the %d simulator slots", len(field), MaxSlots)
		return out
	}

	slots := append([]*player.Player(nil), field...)
	handles := make([]proc.Handle, len(slots))
	subs := append([]*player.Player(nil), pool...)

	tried := mapset.NewSet[string]()
	for _, p := range slots {
		tried.Add(p.Token)
	}

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(slots) + 1
	}

	c.rep.StartRace(out.RaceID, tokens(slots))
	c.stopSyncClient()
	defer c.startSyncClient()
	defer c.reg.Sweep(c.cfg.ShutdownGrace)

	var sim proc.Handle
	var simStart time.Time
	attempt := 0
	st := stateSimulatorStarting

	for {
		switch st {

		case stateSimulatorStarting:
			attempt++
			out.Attempts = attempt
			c.rep.StartAttempt(out.RaceID, attempt, slotPorts(slots))
			c.log.Info("starting simulator", "race", out.RaceID, "attempt", attempt)

			var err error
			sim, err = c.launcher.Start(c.simSpec(out.RaceID, attempt))
			if err != nil {
				return c.abort(&out, attempt, &SimulatorCrashError{Attempt: attempt, Cause: err})
			}
			c.reg.Add(sim)
			simStart = time.Now()
			st = statePlayersStarting

		case statePlayersStarting:
			// All launches are issued before any wait, so driver
			// startup runs in parallel even though supervision is
			// sequential.
			var grp errgroup.Group
			launchErrs := make([]error, len(slots))
			for i, p := range slots {
				i, p := i, p
				grp.Go(func() error {
					h, err := c.launcher.Start(c.playerSpec(p, i, out.RaceID, attempt))
					if err != nil {
						launchErrs[i] = err
						return nil
					}
					handles[i] = h
					c.reg.Add(h)
					return nil
				})
			}
			_ = grp.Wait()
			for i, err := range launchErrs {
				if err != nil {
					// A driver that cannot even start is handled like
					// one that crashed immediately.
					c.log.Warn("driver failed to launch",
						"token", slots[i].Token, "error", err)
					handles[i] = nil
				}
			}
			st = stateCrashCheck

		case stateCrashCheck:
			time.Sleep(c.cfg.CrashGrace)

			if !sim.Alive() && proc.Crashed(sim.ExitErr()) {
				return c.abort(&out, attempt, &SimulatorCrashError{
					Attempt: attempt, Cause: sim.ExitErr(),
				})
			}

			var crashed []int
			for i, h := range handles {
				if h == nil || !h.Alive() {
					crashed = append(crashed, i)
				}
			}
			if len(crashed) == 0 {
				st = stateRacing
				continue
			}

			crashedTokens := make([]string, 0, len(crashed))
			for _, i := range crashed {
				crashedTokens = append(crashedTokens, slots[i].Token)
				c.rep.PlayerCrashed(out.RaceID, attempt, slots[i].Token)
			}
			c.log.Warn("drivers crashed inside grace window",
				"race", out.RaceID, "attempt", attempt, "tokens", crashedTokens)

			if attempt >= maxAttempts {
				return c.abort(&out, attempt, &BudgetExhaustedError{
					Attempt: attempt, Crashed: crashedTokens,
				})
			}
			for _, i := range crashed {
				sub, rest := drawSubstitute(subs, tried)
				if sub == nil {
					return c.abort(&out, attempt, &NoSubstituteError{
						Attempt: attempt, Crashed: crashedTokens,
					})
				}
				subs = rest
				tried.Add(sub.Token)
				c.rep.Substituted(out.RaceID, attempt, slots[i].Token, sub.Token)
				slots[i] = sub
			}

			c.reg.Sweep(c.cfg.ShutdownGrace)
			clear(handles)
			st = stateSimulatorStarting

		case stateRacing:
			c.awaitSimulator(sim, handles, slots)

			if proc.Crashed(sim.ExitErr()) {
				return c.abort(&out, attempt, &SimulatorCrashError{
					Attempt: attempt, Cause: sim.ExitErr(),
				})
			}

			elapsed := time.Since(simStart)
			if c.cfg.MinRaceTime > 0 && elapsed < c.cfg.MinRaceTime {
				durErr := &ImplausibleDurationError{Elapsed: elapsed, Min: c.cfg.MinRaceTime}
				if c.cfg.StrictDuration {
					return c.abort(&out, attempt, durErr)
				}
				c.log.Warn("race duration implausible", "race", out.RaceID, "error", durErr)
				out.Warnings = append(out.Warnings, durErr)
			}
			st = stateResultCollection

		case stateResultCollection:
			placements, err := c.collectResults(slots, simStart)
			if err != nil {
				return c.abort(&out, attempt, &ResultError{Attempt: attempt, Cause: err})
			}
			c.reg.Sweep(c.cfg.ShutdownGrace)

			out.Status = Succeeded
			out.Placements = placements
			c.rep.FinishRace(out.RaceID, attempt, placements)
			return out
		}
	}
}

func (c *Controller) abort(out *Outcome, attempt int, reason error) Outcome {
	c.reg.Sweep(c.cfg.ShutdownGrace)
	out.Status = Aborted
	out.Attempts = attempt
	out.Err = reason
	c.rep.AbortRace(out.RaceID, attempt, reason)
	return *out
}

// awaitSimulator blocks until the simulator exits naturally, logging
// drivers that die mid-race. A driver death at this point is not a
// crash in the substitution sense: the race is already under way.
func (c *Controller) awaitSimulator(sim proc.Handle, handles []proc.Handle, slots []*player.Player) {
	reported := make(map[string]bool)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sim.Done():
			return
		case <-ticker.C:
			for i, h := range handles {
				if h != nil && !h.Alive() && !reported[slots[i].Token] {
					reported[slots[i].Token] = true
					c.log.Warn("driver exited mid-race", "token", slots[i].Token)
				}
			}
		}
	}
}

func (c *Controller) collectResults(slots []*player.Player, since time.Time) ([]string, error) {
	path, err := NewestResult(c.cfg.ResultsDir, since)
	if err != nil {
		return nil, err
	}
	drivers, err := ReadRanking(path)
	if err != nil {
		return nil, err
	}

	placements := make([]string, 0, len(drivers))
	for _, name := range drivers {
		slot, ok := DriverSlot(name)
		if !ok {
			return nil, fmt.Errorf("unknown driver %q in results file %s", name, path)
		}
		if slot >= len(slots) {
			return nil, fmt.Errorf("driver %q maps to slot %d but only %d were fielded",
				name, slot, len(slots))
		}
		placements = append(placements, slots[slot].Token)
	}
	return placements, nil
}

func (c *Controller) simSpec(raceID string, attempt int) proc.LaunchSpec {
	captureDir := c.captureDir(raceID, attempt)
	return proc.LaunchSpec{
		Name:    "torcs",
		Command: strings.ReplaceAll(c.cfg.SimCommand, "{config}", c.cfg.SimConfig),
		Stdout:  filepath.Join(captureDir, "torcs.out"),
		Stderr:  filepath.Join(captureDir, "torcs.err"),
	}
}

func (c *Controller) playerSpec(p *player.Player, slot int, raceID string, attempt int) proc.LaunchSpec {
	captureDir := c.captureDir(raceID, attempt)
	spec := proc.LaunchSpec{
		Name:    p.Token,
		Dir:     p.Dir,
		Command: strings.ReplaceAll(p.Command, "{port}", fmt.Sprintf("%d", SlotPort(slot))),
		Stdout:  p.Stdout,
		Stderr:  p.Stderr,
	}
	if spec.Stdout == "" {
		spec.Stdout = filepath.Join(captureDir, p.Token+".out")
	}
	if spec.Stderr == "" {
		spec.Stderr = filepath.Join(captureDir, p.Token+".err")
	}
	if c.cfg.SeparateUsers {
		spec.RunAs = p.RunAs
	}
	return spec
}

func (c *Controller) captureDir(raceID string, attempt int) string {
	return filepath.Join(c.cfg.OutputDir, raceID, fmt.Sprintf("attempt-%d", attempt))
}

func (c *Controller) stopSyncClient() {
	if c.cfg.SyncStopCmd == "" {
		return
	}
	if err := proc.RunQuiet(c.cfg.SyncStopCmd); err != nil {
		c.log.Warn("failed to stop sync client", "error", err)
	}
}

func (c *Controller) startSyncClient() {
	if c.cfg.SyncStartCmd == "" {
		return
	}
	if err := proc.RunQuiet(c.cfg.SyncStartCmd); err != nil {
		c.log.Warn("failed to restart sync client", "error", err)
	}
}

func drawSubstitute(pool []*player.Player, tried mapset.Set[string]) (*player.Player, []*player.Player) {
	for i, p := range pool {
		if !tried.Contains(p.Token) {
			return p, append(pool[:i:i], pool[i+1:]...)
		}
	}
	return nil, pool
}

func tokens(players []*player.Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Token
	}
	return out
}

func slotPorts(slots []*player.Player) map[string]int {
	ports := make(map[string]int, len(slots))
	for i, p := range slots {
		ports[p.Token] = SlotPort(i)
	}
	return ports
}
