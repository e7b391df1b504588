// Package stage defines the ordered approval pipeline a candidate article
// moves through.
package stage

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Stage is a point in the approval pipeline.
type Stage int

const (
	NotSelected Stage = iota
	MetadataApproved
	TitleApproved
	AbstractIntroApproved
	ContentApproved
	Duplicate
)

var (
	// ErrNoNextStage is returned when advancing past ContentApproved or out of Duplicate.
	ErrNoNextStage = eris.New("no next stage")
	// ErrNoPreviousStage is returned when rolling back NotSelected or Duplicate.
	ErrNoPreviousStage = eris.New("no previous stage")
	// ErrUnknownStage is returned for values and names outside the pipeline.
	ErrUnknownStage = eris.New("unknown stage")
)

// order is the pipeline order. Duplicate is terminal and sits outside it.
var order = []Stage{
	NotSelected,
	MetadataApproved,
	TitleApproved,
	AbstractIntroApproved,
	ContentApproved,
}

// rank maps a stage to its position in order. Duplicate ranks above
// everything so that "already past this stage" checks treat retired records
// as decided.
var rank = map[Stage]int{
	NotSelected:           0,
	MetadataApproved:      1,
	TitleApproved:         2,
	AbstractIntroApproved: 3,
	ContentApproved:       4,
	Duplicate:             5,
}

// stored is the value persisted in the selected column.
var stored = map[Stage]int{
	NotSelected:           0,
	MetadataApproved:      1,
	TitleApproved:         2,
	AbstractIntroApproved: 3,
	ContentApproved:       4,
	Duplicate:             5,
}

var names = map[Stage]string{
	NotSelected:           "NOT_SELECTED",
	MetadataApproved:      "METADATA_APPROVED",
	TitleApproved:         "TITLE_APPROVED",
	AbstractIntroApproved: "ABSTRACT_INTRO_APPROVED",
	ContentApproved:       "CONTENT_APPROVED",
	Duplicate:             "DUPLICATE",
}

// All returns every stage including Duplicate.
func All() []Stage {
	return append(append([]Stage(nil), order...), Duplicate)
}

// ReviewStages returns the stages a rater can approve a record into.
func ReviewStages() []Stage {
	return append([]Stage(nil), order[1:]...)
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Rank returns the position of s in the pipeline order.
func (s Stage) Rank() int {
	return rank[s]
}

// AtLeast reports whether s is at or beyond t.
func (s Stage) AtLeast(t Stage) bool {
	return s.Rank() >= t.Rank()
}

// Terminal reports whether s is an absorbing state.
func (s Stage) Terminal() bool {
	return s == Duplicate
}

// Next returns the stage an accepted record advances to.
func (s Stage) Next() (Stage, error) {
	if s.Terminal() || !s.Valid() {
		return s, eris.Wrapf(ErrNoNextStage, "from %s", s)
	}
	r := s.Rank()
	if r+1 >= len(order) {
		return s, eris.Wrapf(ErrNoNextStage, "from %s", s)
	}
	return order[r+1], nil
}

// Previous returns the stage one step back in the pipeline.
func (s Stage) Previous() (Stage, error) {
	if s.Terminal() || !s.Valid() {
		return s, eris.Wrapf(ErrNoPreviousStage, "from %s", s)
	}
	r := s.Rank()
	if r == 0 {
		return s, eris.Wrapf(ErrNoPreviousStage, "from %s", s)
	}
	return order[r-1], nil
}

// Value returns the persisted integer for s.
func (s Stage) Value() int {
	return stored[s]
}

// FromValue converts a persisted integer back to a Stage.
func FromValue(v int) (Stage, error) {
	for s, sv := range stored {
		if sv == v {
			return s, nil
		}
	}
	return NotSelected, eris.Wrapf(ErrUnknownStage, "value %d", v)
}

func (s Stage) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Parse accepts the full name (TITLE_APPROVED), the short name (TITLE),
// either case, with dashes or underscores.
func Parse(name string) (Stage, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for s, full := range names {
		if n == full || n+"_APPROVED" == full {
			return s, nil
		}
	}
	switch n {
	case "ABSTRACT", "INTRO":
		return AbstractIntroApproved, nil
	case "NONE":
		return NotSelected, nil
	}
	return NotSelected, eris.Wrapf(ErrUnknownStage, "name %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// UnmarshalJSON accepts a stage name or its persisted integer, so records
// exported straight from the store decode too.
func (s *Stage) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return eris.Wrap(err, "decoding stage")
		}
		return s.UnmarshalText([]byte(name))
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return eris.Wrapf(ErrUnknownStage, "value %s", b)
	}
	p, err := FromValue(v)
	if err != nil {
		return err
	}
	*s = p
	return nil
}
