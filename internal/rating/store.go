package rating

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// CorruptError reports a ratings file that cannot be trusted: a line
// with the wrong shape, an unparsable rating or a token that appears
// twice. Loading stops at the first such line so no data is silently
// dropped.
type CorruptError struct {
	Line   int
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ratings file corrupt at line %d: %s", e.Line, e.Reason)
}

// Store persists the token -> rating mapping as a small CSV file, one
// line per competitor: `token` or `token,rating`. A token without a
// rating is admitted at the initial rating.
type Store struct {
	path      string
	backupDir string
	initial   float64
}

func NewStore(path string, backupDir string, initial float64) *Store {
	return &Store{path: path, backupDir: backupDir, initial: initial}
}

// Load reads the full mapping. A missing file is created empty so a
// fresh tournament starts without manual setup.
func (s *Store) Load() (map[string]float64, error) {
	file, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ratings file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	ratings := make(map[string]float64)
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &CorruptError{Line: line, Reason: err.Error()}
		}
		if len(record) != 1 && len(record) != 2 {
			return nil, &CorruptError{
				Line:   line,
				Reason: fmt.Sprintf("expected 1 or 2 fields, got %d", len(record)),
			}
		}
		token := record[0]
		if token == "" {
			return nil, &CorruptError{Line: line, Reason: "empty token"}
		}
		if _, ok := ratings[token]; ok {
			return nil, &CorruptError{
				Line:   line,
				Reason: fmt.Sprintf("token %q appears more than once", token),
			}
		}
		value := s.initial
		if len(record) == 2 {
			value, err = strconv.ParseFloat(record[1], 64)
			if err != nil {
				return nil, &CorruptError{
					Line:   line,
					Reason: fmt.Sprintf("rating %q is not a number", record[1]),
				}
			}
		}
		ratings[token] = value
	}
	return ratings, nil
}

// Save atomically replaces the ratings file with the given mapping.
// The new contents are written to a temp file in the same directory
// and renamed over the old file, so a crash mid-write never leaves a
// truncated store behind. When a backup directory is configured, the
// previous file is copied there first under a timestamped name.
func (s *Store) Save(ratings map[string]float64) error {
	if s.backupDir != "" {
		if err := s.backup(); err != nil {
			return fmt.Errorf("failed to back up ratings file: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ratings.*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp ratings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	tokens := make([]string, 0, len(ratings))
	for token := range ratings {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	writer := csv.NewWriter(tmp)
	for _, token := range tokens {
		record := []string{token, strconv.FormatFloat(ratings[token], 'f', -1, 64)}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write ratings line: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush ratings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ratings file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace ratings file: %w", err)
	}
	return nil
}

// Ensure adds every missing token at the initial rating and persists
// immediately. Tokens that already have a rating are never changed, so
// calling Ensure twice with the same set is a no-op.
func (s *Store) Ensure(tokens []string) (map[string]float64, error) {
	ratings, err := s.Load()
	if err != nil {
		return nil, err
	}

	added := false
	for _, token := range tokens {
		if _, ok := ratings[token]; !ok {
			ratings[token] = s.initial
			added = true
		}
	}
	if !added {
		return ratings, nil
	}
	if err := s.Save(ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

func (s *Store) backup() error {
	src, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return err
	}
	name := fmt.Sprintf("ratings-%s.csv", time.Now().Format("20060102-150405.000000"))
	return os.WriteFile(filepath.Join(s.backupDir, name), src, 0644)
}
