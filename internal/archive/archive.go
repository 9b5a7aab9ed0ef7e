// Package archive compacts the captured output of a finished race
// into a single zstd-compressed tarball so the capture directory does
// not grow without bound over an indefinitely long tournament.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Race archives the capture directory of one race (everything under
// dir) into archiveDir/<raceID>.tar.zst and removes the original
// directory on success. It returns the archive path.
func Race(dir, archiveDir, raceID string) (string, error) {
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	dest := filepath.Join(archiveDir, raceID+".tar.zst")

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", fmt.Errorf("failed to init zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		tw.Close()
		zw.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize zstd stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return dest, fmt.Errorf("archived but failed to remove %s: %w", dir, err)
	}
	return dest, nil
}
