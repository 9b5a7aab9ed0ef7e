package race

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// TORCS writes one results file per race, an XML parameter tree. The
// part we care about sits (at any depth) under a section named
// "Results" containing a section "Rank", whose numbered child sections
// carry the finishing driver name as an <attstr name="name"> value.

type xmlParams struct {
	Sections []xmlSection `xml:"section"`
}

type xmlSection struct {
	Name     string       `xml:"name,attr"`
	Sections []xmlSection `xml:"section"`
	Attstrs  []xmlAttstr  `xml:"attstr"`
}

type xmlAttstr struct {
	Name string `xml:"name,attr"`
	Val  string `xml:"val,attr"`
}

// ReadRanking parses a TORCS results file and returns the finishing
// driver names, winner first. Driver names are slot names, not
// competitor tokens; the caller maps them back through the attempt's
// slot assignment.
func ReadRanking(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var root xmlParams
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse results file: %w", err)
	}

	results := findSection(root.Sections, "Results")
	if results == nil {
		return nil, fmt.Errorf("results file has no Results section")
	}
	rank := findSection(results.Sections, "Rank")
	if rank == nil {
		return nil, fmt.Errorf("results file has no Rank section")
	}

	type entry struct {
		place int
		name  string
	}
	entries := make([]entry, 0, len(rank.Sections))
	for _, sec := range rank.Sections {
		place, err := strconv.Atoi(sec.Name)
		if err != nil {
			return nil, fmt.Errorf("rank section %q is not a number", sec.Name)
		}
		name := ""
		for _, attr := range sec.Attstrs {
			if attr.Name == "name" {
				name = attr.Val
				break
			}
		}
		if name == "" {
			return nil, fmt.Errorf("rank entry %d has no driver name", place)
		}
		entries = append(entries, entry{place: place, name: name})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("results file has an empty ranking")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].place < entries[j].place })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// findSection searches the tree depth-first for a section with the
// given name attribute.
func findSection(sections []xmlSection, name string) *xmlSection {
	for i := range sections {
		if sections[i].Name == name {
			return &sections[i]
		}
		if found := findSection(sections[i].Sections, name); found != nil {
			return found
		}
	}
	return nil
}

// NewestResult returns the most recent results file in dir modified at
// or after the given time. The simulator decides the file name, so the
// controller just watches the directory it is configured to write to.
func NewestResult(dir string, since time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list results dir: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".xml" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(since) {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no results file newer than %s in %s", since.Format(time.RFC3339), dir)
	}
	return newest, nil
}
