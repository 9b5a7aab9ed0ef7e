package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/torcs-league/raceman/internal/archive"
	"github.com/torcs-league/raceman/internal/config"
	"github.com/torcs-league/raceman/internal/proc"
	"github.com/torcs-league/raceman/internal/race"
	"github.com/torcs-league/raceman/internal/rating"
	"github.com/torcs-league/raceman/internal/report"
	"github.com/torcs-league/raceman/internal/schedule"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	cmd := &cli.Command{
		Name:  "raceman",
		Usage: "TORCS tournament orchestrator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "raceman.toml",
				Usage:   "tournament configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "race",
				Usage:  "run one scheduling cycle: pick a field, race it, update ratings",
				Action: runRace,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "cycles",
						Value: 1,
						Usage: "number of consecutive races to run",
					},
				},
			},
			{
				Name:   "standings",
				Usage:  "print the current ratings, best first",
				Action: runStandings,
			},
			{
				Name:   "ensure",
				Usage:  "seed rating store entries for every configured player",
				Action: runEnsure,
			},
			{
				Name:   "restart",
				Usage:  "reset every rating to the initial value",
				Action: runRestart,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("raceman failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, *rating.Store, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	store := rating.NewStore(cfg.Global.RatingsFile, cfg.Global.BackupDir, cfg.Global.InitialRating)
	return cfg, store, nil
}

func runRace(ctx context.Context, cmd *cli.Command) error {
	cfg, store, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	env := config.ReadEnvConfig()

	var reporter report.Reporter = report.NewTerminal()
	if env.NatsURL != "" {
		natsRep, err := report.NewNats(env.NatsURL, env.NatsSubject)
		if err != nil {
			return err
		}
		defer natsRep.Close()
		reporter = multiReporter{report.NewTerminal(), natsRep}
	}

	players := cfg.BuildPlayers()
	queue, err := schedule.New(players, cfg.Global.RaceSize)
	if err != nil {
		return err
	}
	controller := race.NewController(cfg.RaceConfig(), proc.NewLauncher(), reporter, slog.Default())

	tournament := &race.Tournament{
		Store:        store,
		Queue:        queue,
		Controller:   controller,
		Reporter:     reporter,
		KFactor:      cfg.Global.KFactor,
		AdmitUnknown: cfg.Global.AdmitUnknown,
		Log:          slog.Default(),
	}

	for cycle := 0; cycle < int(cmd.Int("cycles")); cycle++ {
		outcome, err := tournament.RunCycle()
		if err != nil {
			return err
		}
		if outcome.Status == race.Aborted {
			return fmt.Errorf("race %s aborted: %w", outcome.RaceID, outcome.Err)
		}
		if cfg.Global.ArchiveDir != "" {
			captureDir := filepath.Join(cfg.Global.OutputDir, outcome.RaceID)
			dest, err := archive.Race(captureDir, cfg.Global.ArchiveDir, outcome.RaceID)
			if err != nil {
				slog.Warn("failed to archive race output", "race", outcome.RaceID, "error", err)
			} else {
				slog.Info("race output archived", "path", dest)
			}
		}
	}
	return nil
}

func runStandings(ctx context.Context, cmd *cli.Command) error {
	_, store, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ratings, err := store.Load()
	if err != nil {
		return err
	}

	tokens := make([]string, 0, len(ratings))
	for token := range ratings {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return ratings[tokens[i]] > ratings[tokens[j]] })

	bold := color.New(color.Bold)
	bold.Println("place  rating  token")
	for i, token := range tokens {
		fmt.Printf("%5d  %6.1f  %s\n", i+1, ratings[token], token)
	}
	return nil
}

func runEnsure(ctx context.Context, cmd *cli.Command) error {
	cfg, store, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tokens := make([]string, 0, len(cfg.Players))
	for _, p := range cfg.Players {
		tokens = append(tokens, p.Token)
	}
	if _, err := store.Ensure(tokens); err != nil {
		return err
	}
	slog.Info("rating store seeded", "players", len(tokens))
	return nil
}

func runRestart(ctx context.Context, cmd *cli.Command) error {
	cfg, store, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ratings, err := store.Load()
	if err != nil {
		return err
	}
	for token := range ratings {
		ratings[token] = cfg.Global.InitialRating
	}
	if err := store.Save(ratings); err != nil {
		return err
	}
	slog.Info("tournament restarted", "players", len(ratings),
		"rating", cfg.Global.InitialRating)
	return nil
}

// multiReporter fans race events out to several reporters.
type multiReporter []report.Reporter

func (m multiReporter) StartRace(raceID string, field []string) {
	for _, r := range m {
		r.StartRace(raceID, field)
	}
}

func (m multiReporter) StartAttempt(raceID string, attempt int, ports map[string]int) {
	for _, r := range m {
		r.StartAttempt(raceID, attempt, ports)
	}
}

func (m multiReporter) PlayerCrashed(raceID string, attempt int, token string) {
	for _, r := range m {
		r.PlayerCrashed(raceID, attempt, token)
	}
}

func (m multiReporter) Substituted(raceID string, attempt int, crashed, replacement string) {
	for _, r := range m {
		r.Substituted(raceID, attempt, crashed, replacement)
	}
}

func (m multiReporter) AbortRace(raceID string, attempt int, reason error) {
	for _, r := range m {
		r.AbortRace(raceID, attempt, reason)
	}
}

func (m multiReporter) FinishRace(raceID string, attempt int, placements []string) {
	for _, r := range m {
		r.FinishRace(raceID, attempt, placements)
	}
}

func (m multiReporter) RatingsUpdated(raceID string, ratings, deltas map[string]float64) {
	for _, r := range m {
		r.RatingsUpdated(raceID, ratings, deltas)
	}
}
