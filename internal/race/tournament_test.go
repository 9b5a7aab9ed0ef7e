package race_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torcs-league/raceman/internal/player"
	"github.com/torcs-league/raceman/internal/race"
	"github.com/torcs-league/raceman/internal/rating"
	"github.com/torcs-league/raceman/internal/schedule"
)

func tournamentPlayer(t *testing.T, token string, age time.Duration) *player.Player {
	t.Helper()
	dir := t.TempDir()
	marker := filepath.Join(dir, ".raced")
	require.NoError(t, os.WriteFile(marker, nil, 0644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(marker, stamp, stamp))
	return &player.Player{Token: token, Dir: dir, Command: "run {port}", Marker: ".raced"}
}

func TestTournament_WinnerGainsLoserLosesEqually(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(storePath, []byte("alice,1500\nbob\n"), 0644))
	store := rating.NewStore(storePath, "", rating.Initial)

	// alice is the most stale, so she takes slot 1 and wins the scripted race.
	alice := tournamentPlayer(t, "alice", 2*time.Hour)
	bob := tournamentPlayer(t, "bob", time.Hour)
	queue, err := schedule.New([]*player.Player{alice, bob}, 2)
	require.NoError(t, err)

	resultsDir := t.TempDir()
	launcher := &fakeLauncher{resultsDir: resultsDir, simRun: 60 * time.Millisecond}
	tournament := &race.Tournament{
		Store:      store,
		Queue:      queue,
		Controller: race.NewController(testConfig(t, resultsDir), launcher, nil, nil),
	}

	out, err := tournament.RunCycle()
	require.NoError(t, err)
	require.Equal(t, race.Succeeded, out.Status, "race failed: %v", out.Err)
	require.Equal(t, []string{"alice", "bob"}, out.Placements)

	ratings, err := store.Load()
	require.NoError(t, err)
	assert.Greater(t, ratings["alice"], 1500.0)
	assert.Less(t, ratings["bob"], rating.Initial)
	assert.InDelta(t, ratings["alice"]-1500.0, rating.Initial-ratings["bob"], 1e-9)
}

func TestTournament_AbortedRaceLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "ratings.csv")
	store := rating.NewStore(storePath, "", rating.Initial)

	alice := tournamentPlayer(t, "alice", 2*time.Hour)
	bob := tournamentPlayer(t, "bob", time.Hour)
	queue, err := schedule.New([]*player.Player{alice, bob}, 2)
	require.NoError(t, err)

	resultsDir := t.TempDir()
	launcher := &fakeLauncher{resultsDir: resultsDir, simCrash: true}
	tournament := &race.Tournament{
		Store:      store,
		Queue:      queue,
		Controller: race.NewController(testConfig(t, resultsDir), launcher, nil, nil),
	}

	// Ensure runs before the race, so the entries exist beforehand.
	out, err := tournament.RunCycle()
	require.NoError(t, err)
	require.Equal(t, race.Aborted, out.Status)

	ratings, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"alice": rating.Initial, "bob": rating.Initial}, ratings)
}

func TestTournament_ParticipationRecorded(t *testing.T) {
	dir := t.TempDir()
	store := rating.NewStore(filepath.Join(dir, "ratings.csv"), "", rating.Initial)

	alice := tournamentPlayer(t, "alice", 3*time.Hour)
	bob := tournamentPlayer(t, "bob", 2*time.Hour)
	carol := tournamentPlayer(t, "carol", time.Hour)
	queue, err := schedule.New([]*player.Player{alice, bob, carol}, 2)
	require.NoError(t, err)

	resultsDir := t.TempDir()
	launcher := &fakeLauncher{resultsDir: resultsDir, simRun: 60 * time.Millisecond}
	tournament := &race.Tournament{
		Store:      store,
		Queue:      queue,
		Controller: race.NewController(testConfig(t, resultsDir), launcher, nil, nil),
	}

	out, err := tournament.RunCycle()
	require.NoError(t, err)
	require.Equal(t, race.Succeeded, out.Status, "race failed: %v", out.Err)
	require.Equal(t, []string{"alice", "bob"}, out.Placements)

	// alice and bob just raced, so carol now leads the ordering.
	field, _, err := queue.Next()
	require.NoError(t, err)
	assert.Equal(t, "carol", field[0].Token)

	deltaZero := math.Abs(alice.Staleness().Sub(bob.Staleness()).Seconds())
	assert.Less(t, deltaZero, 5.0, "raced players should have near-identical fresh markers")
}
