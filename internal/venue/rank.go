// Package venue classifies publication venues by rank and decides whether a
// record's venue counts as peer reviewed.
package venue

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Rank is a coarse venue quality label.
type Rank string

const (
	RankAStar Rank = "A*"
	RankA     Rank = "A"
	RankB     Rank = "B"
	RankC     Rank = "C"
	RankD     Rank = "D"
	RankQ1    Rank = "Q1"
	RankQ2    Rank = "Q2"
	RankQ3    Rank = "Q3"
	RankQ4    Rank = "Q4"
	RankNA    Rank = "NA"
)

// ErrInvalidRank is returned by ParseRank.
var ErrInvalidRank = eris.New("invalid rank")

// Ranks lists every valid label.
var Ranks = []Rank{RankAStar, RankA, RankB, RankC, RankD, RankQ1, RankQ2, RankQ3, RankQ4, RankNA}

// DefaultAccepted are the ranks that pass the venue check unless configured otherwise.
var DefaultAccepted = []Rank{RankAStar, RankA, RankQ1}

// ParseRank validates a label. Matching ignores case and surrounding space.
func ParseRank(s string) (Rank, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range Ranks {
		if string(r) == u {
			return r, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidRank, "%q", s)
}

// ParseRanks validates a list of labels.
func ParseRanks(ss []string) ([]Rank, error) {
	out := make([]Rank, 0, len(ss))
	for _, s := range ss {
		r, err := ParseRank(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
