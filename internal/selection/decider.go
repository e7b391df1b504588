// Package selection drives records through the approval stages.
package selection

import (
	"context"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/storage"
)

// Decision is the answer of a human or automated decider.
type Decision int

const (
	Yes Decision = iota
	No
	Skip
	Quit
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Skip:
		return "skip"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Question is what a decider is asked about one record.
type Question struct {
	Record article.Record
	Check  string // "title", "venue", "year", ...
	Prompt string
	Detail string // why an automated check could not decide
	Index  int    // 1-based position in the run
	Total  int
}

// Decider answers yes/no/skip/quit for one record.
type Decider interface {
	Decide(ctx context.Context, q Question) (Decision, error)
}

// Reasoner is implemented by deciders that can also collect a justification.
type Reasoner interface {
	Reason(ctx context.Context, q Question, d Decision) (string, error)
}

// Store receives batched updates.
type Store interface {
	ApplyBatch(ctx context.Context, updates []storage.Update) error
}
