package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrPartialApply is returned when a resolution reached some stores but not all.
var ErrPartialApply = eris.New("resolution partially applied")

// Resolution is the operator's binding decision for a disagreement.
type Resolution int

const (
	Accept Resolution = iota
	Reject
	Skip
	Abort
)

func (r Resolution) String() string {
	switch r {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Skip:
		return "skip"
	}
	return "abort"
}

// Intent is the write planned for one rater's store.
type Intent struct {
	Rater      string         `json:"rater"`
	Previous   stage.Stage    `json:"previous"`
	Target     stage.Stage    `json:"target"`
	ClearFlags []article.Flag `json:"clear_flags,omitempty"`
	// Reason is the merged per-rater reason written to every store.
	Reason string `json:"reason,omitempty"`
}

// Saga applies one resolution across all raters: plan every write, apply
// them store by store, then re-read every store to confirm they agree.
type Saga struct {
	ID           string
	Disagreement Disagreement
	Resolution   Resolution
	Intents      []Intent
}

// Outcome of a saga.
type Outcome struct {
	SagaID   string            `json:"saga_id"`
	ID       string            `json:"id"`
	Applied  []string          `json:"applied"`
	Failed   map[string]string `json:"failed,omitempty"`
	Verified bool              `json:"verified"`
}

// Complete reports whether every store was written and verified.
func (o Outcome) Complete() bool {
	return len(o.Failed) == 0 && o.Verified
}

// flagsGuarding returns the flags whose checks happen before a record can
// reach s. Accepting a record into s clears them so the flag and the stage
// stay consistent.
func flagsGuarding(s stage.Stage) []article.Flag {
	var out []article.Flag
	for _, f := range article.Flags() {
		if f.CheckedAt().Rank() < s.Rank() {
			out = append(out, f)
		}
	}
	return out
}

// Plan builds the saga for a resolution. Accept moves every store to the
// stage; Reject moves every store one stage back without setting a flag.
// Either way flags of checks earlier than the new stage are cleared, and
// every store receives the raters' reasons keyed by rater name.
func Plan(d Disagreement, r Resolution) (*Saga, error) {
	var target stage.Stage
	switch r {
	case Accept:
		target = d.Stage
	case Reject:
		prev, err := d.Stage.Previous()
		if err != nil {
			return nil, err
		}
		target = prev
	default:
		return nil, eris.Errorf("resolution %s does not write", r)
	}

	guard := flagsGuarding(target)
	reasons := make(map[string]string, len(d.Votes))
	raters := make([]string, 0, len(d.Votes))
	for _, v := range d.Votes {
		reasons[v.Rater] = v.Reason
		raters = append(raters, v.Rater)
	}
	merged := article.Merge(reasons, raters).Encode()

	s := &Saga{ID: uuid.NewString(), Disagreement: d, Resolution: r}
	for _, v := range d.Votes {
		in := Intent{Rater: v.Rater, Previous: v.Selected, Target: target, Reason: merged}
		for _, f := range guard {
			for _, set := range v.Flags {
				if f == set {
					in.ClearFlags = append(in.ClearFlags, f)
				}
			}
		}
		s.Intents = append(s.Intents, in)
	}
	return s, nil
}

// Execute applies the saga to raters, matched by name. Each store commits
// independently; a failing store does not stop the others. The returned
// error wraps ErrPartialApply when any store failed or disagrees afterwards.
func (s *Saga) Execute(ctx context.Context, raters []Rater) (Outcome, error) {
	out := Outcome{SagaID: s.ID, ID: s.Disagreement.ID, Failed: make(map[string]string)}
	byName := make(map[string]Store, len(raters))
	for _, r := range raters {
		byName[r.Name] = r.Store
	}
	key := article.Key{ID: s.Disagreement.ID, Iteration: s.Disagreement.Iteration}
	log := zap.L().With(zap.String("saga", s.ID), zap.String("id", key.ID), zap.Stringer("resolution", s.Resolution))

	var errs []error
	for _, in := range s.Intents {
		store, ok := byName[in.Rater]
		if !ok {
			err := eris.Errorf("no store for rater %s", in.Rater)
			out.Failed[in.Rater] = err.Error()
			errs = append(errs, err)
			continue
		}
		updates := []storage.Update{storage.StageUpdate(key, in.Target)}
		for _, f := range in.ClearFlags {
			updates = append(updates, storage.FlagUpdate(key, f, false))
		}
		if col := reasonColumn(s.Disagreement.Stage); col != "" && in.Reason != "" {
			updates = append(updates, storage.Update{Key: key, Column: col, Value: in.Reason})
		}
		if err := store.ApplyBatch(ctx, updates); err != nil {
			log.Error("store write failed", zap.String("store", in.Rater), zap.Error(err))
			out.Failed[in.Rater] = err.Error()
			errs = append(errs, eris.Wrap(err, in.Rater))
			continue
		}
		out.Applied = append(out.Applied, in.Rater)

		entry := storage.ResolutionEntry{
			SagaID: s.ID, RecordID: key.ID, Iteration: key.Iteration,
			Stage: s.Disagreement.Stage, Resolution: s.Resolution.String(),
			Rater: in.Rater, Previous: in.Previous, Applied: in.Target,
		}
		if err := store.LogResolution(ctx, entry); err != nil {
			log.Warn("could not log resolution", zap.String("store", in.Rater), zap.Error(err))
		}
	}

	out.Verified = len(errs) == 0
	if err := s.verify(ctx, byName, key); err != nil {
		out.Verified = false
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return out, eris.Wrapf(ErrPartialApply, "saga %s for %s: %v", s.ID, key.ID, errors.Join(errs...))
	}
	log.Info("resolution applied", zap.Int("stores", len(out.Applied)))
	return out, nil
}

// verify re-reads every store and checks the planned stage holds.
func (s *Saga) verify(ctx context.Context, stores map[string]Store, key article.Key) error {
	var errs []error
	for _, in := range s.Intents {
		store, ok := stores[in.Rater]
		if !ok {
			continue
		}
		recs, err := store.Records(ctx, storage.Filter{Iterations: []int{key.Iteration}, IDs: []string{key.ID}})
		if err != nil {
			errs = append(errs, eris.Wrapf(err, "verifying %s", in.Rater))
			continue
		}
		if len(recs) == 0 {
			errs = append(errs, eris.Errorf("verifying %s: record vanished", in.Rater))
			continue
		}
		if recs[0].Selected != in.Target {
			errs = append(errs, eris.Errorf("verifying %s: stage is %s, want %s", in.Rater, recs[0].Selected, in.Target))
		}
	}
	return errors.Join(errs...)
}
