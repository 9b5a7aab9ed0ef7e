// Package schedule decides which competitors race next. The tournament
// runs indefinitely across many invocations, so the order is derived
// from on-disk staleness markers rather than in-memory history: the
// least recently raced players go first.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/torcs-league/raceman/internal/player"
)

// MinRaceSize is the smallest field the simulator accepts.
const MinRaceSize = 2

var ErrInsufficientCompetitors = errors.New("not enough registered competitors for a race")

// Queue selects race fields from the registered players.
type Queue struct {
	players []*player.Player
	size    int
}

// New builds a queue over the registered players that selects fields
// of the given size. Size is clamped to the number of slots callers
// are expected to validate in configuration.
func New(players []*player.Player, size int) (*Queue, error) {
	if size < MinRaceSize {
		return nil, fmt.Errorf("race size %d is below the minimum of %d", size, MinRaceSize)
	}
	return &Queue{players: players, size: size}, nil
}

// Next returns the field for the next race (most stale first) and the
// pool of remaining players in scheduling order, used by the race
// controller to draw substitutes.
func (q *Queue) Next() (field []*player.Player, pool []*player.Player, err error) {
	if len(q.players) < q.size || len(q.players) < MinRaceSize {
		return nil, nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientCompetitors, len(q.players), q.size)
	}

	ordered := make([]*player.Player, len(q.players))
	copy(ordered, q.players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Staleness().Before(ordered[j].Staleness())
	})

	return ordered[:q.size], ordered[q.size:], nil
}

// MarkRaced refreshes the staleness markers of the given players so
// they are not immediately reselected.
func (q *Queue) MarkRaced(raced []*player.Player) error {
	for _, p := range raced {
		if err := p.Touch(); err != nil {
			return err
		}
	}
	return nil
}
