package race

import (
	"fmt"
	"log/slog"

	"github.com/torcs-league/raceman/internal/player"
	"github.com/torcs-league/raceman/internal/rating"
	"github.com/torcs-league/raceman/internal/report"
	"github.com/torcs-league/raceman/internal/schedule"
)

// Tournament ties one scheduling cycle together: pick a field, race
// it, rate the result, persist, record participation. The rating store
// is only ever written after a completed race; an aborted race leaves
// it untouched.
type Tournament struct {
	Store        *rating.Store
	Queue        *schedule.Queue
	Controller   *Controller
	Reporter     report.Reporter
	KFactor      float64
	AdmitUnknown bool // admit result tokens missing from the store at the initial rating
	Log          *slog.Logger
}

// RunCycle runs one race and returns its outcome. The returned error
// is non-nil only for failures outside the race itself (scheduling,
// store access); an aborted race is reported through Outcome.Err.
func (t *Tournament) RunCycle() (Outcome, error) {
	field, pool, err := t.Queue.Next()
	if err != nil {
		return Outcome{}, err
	}

	// Every configured player is guaranteed a store entry before the
	// race, so ratings never have to be edited in by hand.
	all := append(append([]*player.Player(nil), field...), pool...)
	ratings, err := t.Store.Ensure(tokens(all))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to prepare rating store: %w", err)
	}
	for _, p := range all {
		p.Rating = ratings[p.Token]
	}

	out := t.Controller.Run(field, pool)
	if out.Status != Succeeded {
		return out, nil
	}

	updated, deltas, err := t.rate(ratings, out.Placements)
	if err != nil {
		out.Status = Aborted
		out.Err = &ResultError{Attempt: out.Attempts, Cause: err}
		return out, nil
	}
	if err := t.Store.Save(updated); err != nil {
		return out, fmt.Errorf("failed to persist ratings: %w", err)
	}
	if t.Reporter != nil {
		t.Reporter.RatingsUpdated(out.RaceID, updated, deltas)
	}

	raced := make([]*player.Player, 0, len(all))
	for _, p := range all {
		for _, token := range out.Placements {
			if p.Token == token {
				raced = append(raced, p)
				break
			}
		}
	}
	if err := t.Queue.MarkRaced(raced); err != nil {
		return out, fmt.Errorf("failed to record participation: %w", err)
	}
	return out, nil
}

// rate applies the ELO update for a finishing order to a copy of the
// full mapping. Players absent from the race keep their rating.
func (t *Tournament) rate(ratings map[string]float64, placements []string) (map[string]float64, map[string]float64, error) {
	k := t.KFactor
	if k == 0 {
		k = rating.DefaultK
	}

	before := make([]float64, len(placements))
	for i, token := range placements {
		value, ok := ratings[token]
		if !ok {
			if !t.AdmitUnknown {
				return nil, nil, fmt.Errorf("competitor %q finished the race but has no rating entry", token)
			}
			value = rating.Initial
		}
		before[i] = value
	}

	after := rating.Rank(before, k)

	updated := make(map[string]float64, len(ratings))
	for token, value := range ratings {
		updated[token] = value
	}
	deltas := make(map[string]float64, len(placements))
	for i, token := range placements {
		updated[token] = after[i]
		deltas[token] = after[i] - before[i]
	}
	return updated, deltas, nil
}
