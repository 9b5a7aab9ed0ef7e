package rating_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torcs-league/raceman/internal/rating"
)

func newStore(t *testing.T, contents string) (*rating.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
	return rating.NewStore(path, "", rating.Initial), path
}

func TestStore_LoadDefaultsMissingRating(t *testing.T) {
	store, _ := newStore(t, "alice,1500\nbob\n")

	ratings, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"alice": 1500, "bob": rating.Initial}, ratings)
}

func TestStore_LoadCreatesMissingFile(t *testing.T) {
	store, path := newStore(t, "")

	ratings, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, ratings)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := newStore(t, "alice,1500\nbob\ncarol,1234.5\n")

	ratings, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(ratings))

	again, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ratings, again)
}

func TestStore_LoadRejectsDuplicateToken(t *testing.T) {
	store, _ := newStore(t, "alice,1500\nalice,1200\n")

	_, err := store.Load()
	require.Error(t, err)
	var corrupt *rating.CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, 2, corrupt.Line)
}

func TestStore_LoadRejectsBadRating(t *testing.T) {
	store, _ := newStore(t, "alice,fast\n")

	_, err := store.Load()
	var corrupt *rating.CorruptError
	require.ErrorAs(t, err, &corrupt)
}

func TestStore_LoadRejectsWideLine(t *testing.T) {
	store, _ := newStore(t, "alice,1500,extra\n")

	_, err := store.Load()
	var corrupt *rating.CorruptError
	require.ErrorAs(t, err, &corrupt)
}

func TestStore_EnsureIsIdempotent(t *testing.T) {
	store, _ := newStore(t, "alice,1500\n")

	first, err := store.Ensure([]string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, first["alice"])
	assert.Equal(t, rating.Initial, first["bob"])

	second, err := store.Ensure([]string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, path := newStore(t, "alice,1500\n")

	ratings, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(ratings))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ratings.csv", entries[0].Name())
}

func TestStore_SaveWritesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratings.csv")
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(path, []byte("alice,1500\n"), 0644))

	store := rating.NewStore(path, backupDir, rating.Initial)
	ratings, err := store.Load()
	require.NoError(t, err)
	ratings["alice"] = 1510
	require.NoError(t, store.Save(ratings))

	backups, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	// The backup holds the pre-save contents.
	data, err := os.ReadFile(filepath.Join(backupDir, backups[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "alice,1500\n", string(data))
}
