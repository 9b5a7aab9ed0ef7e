package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsReporter publishes race events as JSON messages so dashboards
// and bots can follow a tournament without touching the orchestrator
// host. Publishing is best-effort: a lost event must never affect the
// race, so failures are logged and swallowed.
type NatsReporter struct {
	conn    *nats.Conn
	subject string
}

func NewNats(url, subject string) (*NatsReporter, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NatsReporter{conn: conn, subject: subject}, nil
}

func (n *NatsReporter) Close() {
	n.conn.Drain()
}

type event struct {
	Type       string             `json:"type"`
	RaceID     string             `json:"race_id"`
	Time       string             `json:"time"`
	Attempt    int                `json:"attempt,omitempty"`
	Field      []string           `json:"field,omitempty"`
	Ports      map[string]int     `json:"ports,omitempty"`
	Token      string             `json:"token,omitempty"`
	Crashed    string             `json:"crashed,omitempty"`
	Substitute string             `json:"substitute,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Placements []string           `json:"placements,omitempty"`
	Ratings    map[string]float64 `json:"ratings,omitempty"`
	Deltas     map[string]float64 `json:"deltas,omitempty"`
}

func (n *NatsReporter) publish(ev event) {
	ev.Time = time.Now().Format(time.RFC3339)
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal race event", "type", ev.Type, "error", err)
		return
	}
	if err := n.conn.Publish(n.subject, body); err != nil {
		slog.Warn("failed to publish race event", "type", ev.Type, "error", err)
	}
}

func (n *NatsReporter) StartRace(raceID string, field []string) {
	n.publish(event{Type: "race_start", RaceID: raceID, Field: field})
}

func (n *NatsReporter) StartAttempt(raceID string, attempt int, ports map[string]int) {
	n.publish(event{Type: "attempt_start", RaceID: raceID, Attempt: attempt, Ports: ports})
}

func (n *NatsReporter) PlayerCrashed(raceID string, attempt int, token string) {
	n.publish(event{Type: "player_crash", RaceID: raceID, Attempt: attempt, Token: token})
}

func (n *NatsReporter) Substituted(raceID string, attempt int, crashed, replacement string) {
	n.publish(event{Type: "substitution", RaceID: raceID, Attempt: attempt,
		Crashed: crashed, Substitute: replacement})
}

func (n *NatsReporter) AbortRace(raceID string, attempt int, reason error) {
	n.publish(event{Type: "race_abort", RaceID: raceID, Attempt: attempt, Reason: reason.Error()})
}

func (n *NatsReporter) FinishRace(raceID string, attempt int, placements []string) {
	n.publish(event{Type: "race_finish", RaceID: raceID, Attempt: attempt, Placements: placements})
}

func (n *NatsReporter) RatingsUpdated(raceID string, ratings map[string]float64, deltas map[string]float64) {
	n.publish(event{Type: "ratings_update", RaceID: raceID, Ratings: ratings, Deltas: deltas})
}
