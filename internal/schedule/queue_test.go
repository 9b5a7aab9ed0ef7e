package schedule_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torcs-league/raceman/internal/player"
	"github.com/torcs-league/raceman/internal/schedule"
)

// newPlayer creates a player whose marker file carries the given age.
func newPlayer(t *testing.T, token string, age time.Duration) *player.Player {
	t.Helper()
	dir := t.TempDir()
	marker := filepath.Join(dir, ".raced")
	require.NoError(t, os.WriteFile(marker, nil, 0644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(marker, stamp, stamp))
	return &player.Player{Token: token, Dir: dir, Command: "run {port}", Marker: ".raced"}
}

func TestQueue_MostStaleFirst(t *testing.T) {
	fresh := newPlayer(t, "fresh", time.Minute)
	stale := newPlayer(t, "stale", 48*time.Hour)
	middle := newPlayer(t, "middle", time.Hour)

	queue, err := schedule.New([]*player.Player{fresh, stale, middle}, 2)
	require.NoError(t, err)

	field, pool, err := queue.Next()
	require.NoError(t, err)
	require.Len(t, field, 2)
	assert.Equal(t, "stale", field[0].Token)
	assert.Equal(t, "middle", field[1].Token)
	require.Len(t, pool, 1)
	assert.Equal(t, "fresh", pool[0].Token)
}

func TestQueue_MissingMarkerIsMaximallyStale(t *testing.T) {
	raced := newPlayer(t, "raced", time.Minute)
	never := &player.Player{Token: "never", Dir: t.TempDir(), Command: "run {port}", Marker: ".raced"}

	queue, err := schedule.New([]*player.Player{raced, never}, 2)
	require.NoError(t, err)

	field, _, err := queue.Next()
	require.NoError(t, err)
	assert.Equal(t, "never", field[0].Token)
}

func TestQueue_InsufficientCompetitors(t *testing.T) {
	only := newPlayer(t, "only", time.Minute)

	_, err := schedule.New([]*player.Player{only}, 1)
	assert.Error(t, err)

	queue, err := schedule.New([]*player.Player{only}, 2)
	require.NoError(t, err)
	_, _, err = queue.Next()
	assert.ErrorIs(t, err, schedule.ErrInsufficientCompetitors)
}

func TestQueue_MarkRacedRotatesSelection(t *testing.T) {
	a := newPlayer(t, "a", 3*time.Hour)
	b := newPlayer(t, "b", 2*time.Hour)
	c := newPlayer(t, "c", 1*time.Hour)

	queue, err := schedule.New([]*player.Player{a, b, c}, 2)
	require.NoError(t, err)

	field, _, err := queue.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{field[0].Token, field[1].Token})

	require.NoError(t, queue.MarkRaced(field))

	field, _, err = queue.Next()
	require.NoError(t, err)
	assert.Equal(t, "c", field[0].Token)
}

func TestQueue_MarkRacedCreatesMissingMarker(t *testing.T) {
	p := &player.Player{Token: "new", Dir: t.TempDir(), Command: "run {port}", Marker: ".raced"}
	other := newPlayer(t, "other", time.Minute)

	queue, err := schedule.New([]*player.Player{p, other}, 2)
	require.NoError(t, err)
	require.NoError(t, queue.MarkRaced([]*player.Player{p}))

	_, err = os.Stat(filepath.Join(p.Dir, ".raced"))
	assert.NoError(t, err)
	assert.False(t, p.Staleness().IsZero())
}
