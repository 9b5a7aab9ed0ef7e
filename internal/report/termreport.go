package report

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
)

// TerminalReporter prints race progress for interactive runs.
type TerminalReporter struct{}

func NewTerminal() *TerminalReporter { return &TerminalReporter{} }

var (
	headline = color.New(color.Bold)
	good     = color.New(color.FgGreen)
	bad      = color.New(color.FgRed)
	warn     = color.New(color.FgYellow)
)

func (t *TerminalReporter) StartRace(raceID string, field []string) {
	headline.Printf("== Race %s ==\n", raceID)
	fmt.Printf("field: %v\n", field)
}

func (t *TerminalReporter) StartAttempt(raceID string, attempt int, ports map[string]int) {
	fmt.Printf("-- attempt %d --\n", attempt)
	tokens := make([]string, 0, len(ports))
	for token := range ports {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return ports[tokens[i]] < ports[tokens[j]] })
	for _, token := range tokens {
		fmt.Printf("  %s -> port %d\n", token, ports[token])
	}
}

func (t *TerminalReporter) PlayerCrashed(raceID string, attempt int, token string) {
	warn.Printf("  %s crashed during attempt %d\n", token, attempt)
}

func (t *TerminalReporter) Substituted(raceID string, attempt int, crashed, replacement string) {
	fmt.Printf("  %s substituted for %s\n", replacement, crashed)
}

func (t *TerminalReporter) AbortRace(raceID string, attempt int, reason error) {
	bad.Printf("== Race %s aborted on attempt %d: %v ==\n", raceID, attempt, reason)
}

func (t *TerminalReporter) FinishRace(raceID string, attempt int, placements []string) {
	good.Printf("== Race %s finished (attempt %d) ==\n", raceID, attempt)
	for i, token := range placements {
		fmt.Printf("  %d. %s\n", i+1, token)
	}
}

func (t *TerminalReporter) RatingsUpdated(raceID string, ratings map[string]float64, deltas map[string]float64) {
	tokens := make([]string, 0, len(deltas))
	for token := range deltas {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return ratings[tokens[i]] > ratings[tokens[j]] })
	for _, token := range tokens {
		delta := deltas[token]
		line := fmt.Sprintf("  %s: %.1f (%+.1f)\n", token, ratings[token], delta)
		if delta >= 0 {
			good.Print(line)
		} else {
			bad.Print(line)
		}
	}
}
