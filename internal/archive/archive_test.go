package archive_test

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torcs-league/raceman/internal/archive"
)

func TestRace_ArchivesAndRemovesCaptureDir(t *testing.T) {
	captureDir := t.TempDir()
	attemptDir := filepath.Join(captureDir, "attempt-1")
	require.NoError(t, os.MkdirAll(attemptDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(attemptDir, "torcs.out"), []byte("race log\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(attemptDir, "alice.out"), []byte("driver log\n"), 0644))

	archiveDir := t.TempDir()
	dest, err := archive.Race(captureDir, archiveDir, "race-123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archiveDir, "race-123.tar.zst"), dest)

	// Original capture directory is gone.
	_, err = os.Stat(captureDir)
	assert.True(t, os.IsNotExist(err))

	// The archive round-trips.
	file, err := os.Open(dest)
	require.NoError(t, err)
	defer file.Close()
	zr, err := zstd.NewReader(file)
	require.NoError(t, err)
	defer zr.Close()

	contents := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = string(body)
	}

	assert.Equal(t, map[string]string{
		filepath.Join("attempt-1", "torcs.out"): "race log\n",
		filepath.Join("attempt-1", "alice.out"): "driver log\n",
	}, contents)
}

func TestRace_MissingDirFails(t *testing.T) {
	_, err := archive.Race(filepath.Join(t.TempDir(), "nope"), t.TempDir(), "race-404")
	assert.Error(t, err)
}
