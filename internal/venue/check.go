package venue

import (
	"context"
	"fmt"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/bibtex"
)

// RankStore looks up and records venue ranks.
type RankStore interface {
	VenueRank(ctx context.Context, venue string) (string, bool, error)
}

// Result is the outcome of an automated check.
type Result int

const (
	Unknown Result = iota
	Pass
	Fail
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// Verdict explains a venue check.
type Verdict struct {
	Result Result
	Venue  string
	Rank   Rank
	Reason string
}

// Checker decides whether a record's venue is peer reviewed and ranked high
// enough.
type Checker struct {
	Ranks    RankStore
	Accepted []Rank
}

// NewChecker returns a Checker accepting the given ranks, or DefaultAccepted
// when none are given.
func NewChecker(ranks RankStore, accepted []Rank) *Checker {
	if len(accepted) == 0 {
		accepted = DefaultAccepted
	}
	return &Checker{Ranks: ranks, Accepted: accepted}
}

func (c *Checker) accepts(r Rank) bool {
	for _, a := range c.Accepted {
		if a == r {
			return true
		}
	}
	return false
}

// Check classifies the venue named in a record's BibTeX. Missing or
// unparseable entries are not peer reviewed. An unranked venue yields
// Unknown so a human can decide.
func (c *Checker) Check(ctx context.Context, bib string) (Verdict, error) {
	if article.StateOf(bib) != article.Present {
		return Verdict{Result: Fail, Reason: "no bibtex entry"}, nil
	}
	entries, err := bibtex.Parse(bib)
	if err != nil {
		return Verdict{Result: Fail, Reason: "unparseable bibtex"}, nil
	}
	e := entries[0]
	if e.IsThesisOrBook() {
		return Verdict{Result: Fail, Reason: fmt.Sprintf("entry type %s", e.Type)}, nil
	}
	v := e.Venue()
	if !bibtex.ValidVenue(v) {
		return Verdict{Result: Fail, Venue: v, Reason: "not a peer-reviewed venue"}, nil
	}

	label, ok, err := c.Ranks.VenueRank(ctx, v)
	if err != nil {
		return Verdict{}, err
	}
	if !ok {
		return Verdict{Result: Unknown, Venue: v, Reason: "venue not ranked"}, nil
	}
	rank, err := ParseRank(label)
	if err != nil {
		return Verdict{Result: Fail, Venue: v, Reason: fmt.Sprintf("invalid stored rank %q", label)}, nil
	}
	if c.accepts(rank) {
		return Verdict{Result: Pass, Venue: v, Rank: rank, Reason: "rank " + string(rank)}, nil
	}
	return Verdict{Result: Fail, Venue: v, Rank: rank, Reason: "rank " + string(rank)}, nil
}
