// Package report pushes race progress events to whoever is watching:
// the terminal during interactive runs, a NATS subject when the
// tournament runs unattended.
package report

// Reporter receives race lifecycle events from the controller and the
// tournament loop. Implementations must not block the race: reporting
// is observation, not control flow.
type Reporter interface {
	StartRace(raceID string, field []string)
	StartAttempt(raceID string, attempt int, ports map[string]int)
	PlayerCrashed(raceID string, attempt int, token string)
	Substituted(raceID string, attempt int, crashed string, replacement string)
	AbortRace(raceID string, attempt int, reason error)
	FinishRace(raceID string, attempt int, placements []string)
	RatingsUpdated(raceID string, ratings map[string]float64, deltas map[string]float64)
}

// Discard is a Reporter that drops every event.
type Discard struct{}

func (Discard) StartRace(string, []string)                               {}
func (Discard) StartAttempt(string, int, map[string]int)                 {}
func (Discard) PlayerCrashed(string, int, string)                        {}
func (Discard) Substituted(string, int, string, string)                  {}
func (Discard) AbortRace(string, int, error)                             {}
func (Discard) FinishRace(string, int, []string)                         {}
func (Discard) RatingsUpdated(string, map[string]float64, map[string]float64) {}
