package reconcile

import (
	"context"

	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAborted is returned when the operator stops; unresolved disagreements
// stay queued for a later run.
var ErrAborted = eris.New("reconciliation aborted")

// Chooser presents a disagreement and returns the binding resolution.
type Chooser interface {
	Resolve(ctx context.Context, d Disagreement, index, total int) (Resolution, error)
}

// Summary reports a Run.
type Summary struct {
	Stage         stage.Stage `json:"stage"`
	Iteration     int         `json:"iteration"`
	Disagreements int         `json:"disagreements"`
	Accepted      int         `json:"accepted"`
	Rejected      int         `json:"rejected"`
	Skipped       int         `json:"skipped"`
	Outcomes      []Outcome   `json:"outcomes,omitempty"`
	Aborted       bool        `json:"aborted"`
}

// Run detects disagreements at s and resolves them one by one. Each
// resolution is its own saga. Run stops at the first partial application so
// the operator can repair the failing store and rerun; rerunning only shows
// what is still in dispute.
func Run(ctx context.Context, raters []Rater, iteration int, s stage.Stage, chooser Chooser) (Summary, error) {
	sum := Summary{Stage: s, Iteration: iteration}
	ds, err := Detect(ctx, raters, iteration, s)
	if err != nil {
		return sum, err
	}
	sum.Disagreements = len(ds)
	zap.L().Info("disagreements found", zap.Int("iteration", iteration), zap.Stringer("stage", s), zap.Int("count", len(ds)))

	for i, d := range ds {
		r, err := chooser.Resolve(ctx, d, i+1, len(ds))
		if err != nil {
			return sum, err
		}
		switch r {
		case Skip:
			sum.Skipped++
			continue
		case Abort:
			sum.Aborted = true
			return sum, ErrAborted
		}

		saga, err := Plan(d, r)
		if err != nil {
			return sum, err
		}
		out, err := saga.Execute(ctx, raters)
		sum.Outcomes = append(sum.Outcomes, out)
		if err != nil {
			return sum, err
		}
		if r == Accept {
			sum.Accepted++
		} else {
			sum.Rejected++
		}
	}
	return sum, nil
}
