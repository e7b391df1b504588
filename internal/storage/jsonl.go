package storage

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// Candidate is a discovered record as exported by an external search tool.
// SeedID names the record it was discovered from; it is empty for search
// results that seed iteration 0.
type Candidate struct {
	SeedID string `json:"seed_id,omitempty"`
	article.Record
}

// ReadCandidates reads all candidates from a JSONL file. A missing file
// yields no candidates.
func ReadCandidates(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "opening candidates file")
	}
	defer f.Close()

	var out []Candidate
	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Candidate
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, eris.Wrapf(err, "parsing line %d", lineNum)
		}
		if c.ID == "" {
			return nil, eris.Errorf("line %d: candidate has no id", lineNum)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "reading candidates file")
	}
	return out, nil
}

// WriteCandidates writes candidates to a JSONL file, replacing existing content.
func WriteCandidates(path string, cands []Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "creating candidates file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i, c := range cands {
		if err := enc.Encode(c); err != nil {
			return eris.Wrapf(err, "encoding candidate %d", i)
		}
	}
	return eris.Wrap(w.Flush(), "flushing candidates file")
}
