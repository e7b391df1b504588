package selection

import (
	"context"
	"fmt"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/matsen/snowball/internal/venue"
	"go.uber.org/zap"
)

// VenueChecker classifies a record's venue from its BibTeX.
type VenueChecker interface {
	Check(ctx context.Context, bib string) (venue.Verdict, error)
}

// Prober reports whether a URL leads to a downloadable PDF.
type Prober interface {
	Check(ctx context.Context, url string) (bool, error)
}

// MetadataChecks toggles the metadata sub-checks and holds the year window.
type MetadataChecks struct {
	Venue    bool
	Year     bool
	Language bool
	Download bool
	YearFrom int // 0 leaves the window open below
	YearTo   int // 0 leaves the window open above
}

// AllChecks enables every sub-check with the given year window.
func AllChecks(from, to int) MetadataChecks {
	return MetadataChecks{Venue: true, Year: true, Language: true, Download: true, YearFrom: from, YearTo: to}
}

// Metadata is the first stage: venue, year, language and download checks in
// that order. The first failing check sets its flag and the rest are not
// evaluated.
type Metadata struct {
	Store     Store
	BatchSize int
	Venues    VenueChecker
	Probe     Prober // optional
	Checks    MetadataChecks
}

// outcome of one sub-check
type outcome int

const (
	passed outcome = iota
	failed
	skipped
	quit
)

type subCheck struct {
	name string
	flag article.Flag
	run  func(ctx context.Context, m *metadataRun, q Question) (outcome, error)
}

// metadataRun carries per-record state between sub-checks.
type metadataRun struct {
	m       *Metadata
	decider Decider
	verdict *venue.Verdict
}

func (mr *metadataRun) ask(ctx context.Context, q Question, check, prompt, detail string) (outcome, error) {
	q.Check, q.Prompt, q.Detail = check, prompt, detail
	d, err := mr.decider.Decide(ctx, q)
	if err != nil {
		return skipped, err
	}
	switch d {
	case Yes:
		return passed, nil
	case No:
		return failed, nil
	case Quit:
		return quit, nil
	}
	return skipped, nil
}

// venueVerdict runs the venue classifier once per record.
func (mr *metadataRun) venueVerdict(ctx context.Context, rec *article.Record) (venue.Verdict, error) {
	if mr.verdict != nil {
		return *mr.verdict, nil
	}
	if mr.m.Venues == nil {
		v := venue.Verdict{Result: venue.Unknown, Reason: "no venue ranks configured"}
		mr.verdict = &v
		return v, nil
	}
	v, err := mr.m.Venues.Check(ctx, rec.BibTeX)
	if err != nil {
		return v, err
	}
	mr.verdict = &v
	return v, nil
}

func checkVenue(ctx context.Context, mr *metadataRun, q Question) (outcome, error) {
	v, err := mr.venueVerdict(ctx, &q.Record)
	if err != nil {
		return skipped, err
	}
	switch v.Result {
	case venue.Pass:
		return passed, nil
	case venue.Fail:
		return failed, nil
	}
	return mr.ask(ctx, q, "venue", "Is the publication peer-reviewed and ranked highly enough?",
		fmt.Sprintf("%s: %s", v.Venue, v.Reason))
}

func checkYear(ctx context.Context, mr *metadataRun, q Question) (outcome, error) {
	c := mr.m.Checks
	y := q.Record.PubYear
	if y == 0 {
		return mr.ask(ctx, q, "year", fmt.Sprintf("Was the publication published in %s?", yearWindow(c)),
			"publication year unknown")
	}
	if (c.YearFrom > 0 && y < c.YearFrom) || (c.YearTo > 0 && y > c.YearTo) {
		return failed, nil
	}
	return passed, nil
}

func yearWindow(c MetadataChecks) string {
	switch {
	case c.YearFrom > 0 && c.YearTo > 0:
		return fmt.Sprintf("%d-%d", c.YearFrom, c.YearTo)
	case c.YearFrom > 0:
		return fmt.Sprintf("%d or later", c.YearFrom)
	case c.YearTo > 0:
		return fmt.Sprintf("%d or earlier", c.YearTo)
	}
	return "any year"
}

// checkLanguage assumes English for venues that passed the automated rank
// check.
func checkLanguage(ctx context.Context, mr *metadataRun, q Question) (outcome, error) {
	if article.StateOf(q.Record.BibTeX) == article.Present {
		v, err := mr.venueVerdict(ctx, &q.Record)
		if err != nil {
			return skipped, err
		}
		if v.Result == venue.Pass {
			return passed, nil
		}
	}
	return mr.ask(ctx, q, "language", "Is the publication in English?", "")
}

func checkDownload(ctx context.Context, mr *metadataRun, q Question) (outcome, error) {
	url := q.Record.EprintURL
	if url == "" {
		return mr.ask(ctx, q, "download", "Is the publication available for download?", "no eprint url")
	}
	if mr.m.Probe == nil {
		return passed, nil
	}
	ok, err := mr.m.Probe.Check(ctx, url)
	if err != nil {
		zap.L().Warn("download probe failed", zap.String("id", q.Record.ID), zap.String("url", url), zap.Error(err))
		return mr.ask(ctx, q, "download", "Is the publication available for download?", err.Error())
	}
	if ok {
		return passed, nil
	}
	return mr.ask(ctx, q, "download", "Is the publication available for download?", "no pdf found at "+url)
}

func (m *Metadata) subChecks() []subCheck {
	var checks []subCheck
	if m.Checks.Venue {
		checks = append(checks, subCheck{"venue", article.FlagVenue, checkVenue})
	}
	if m.Checks.Year {
		checks = append(checks, subCheck{"year", article.FlagYear, checkYear})
	}
	if m.Checks.Language {
		checks = append(checks, subCheck{"language", article.FlagLanguage, checkLanguage})
	}
	if m.Checks.Download {
		checks = append(checks, subCheck{"download", article.FlagDownload, checkDownload})
	}
	return checks
}

// needsBibTeX reports whether a record must wait for its BibTeX entry.
// Only the venue check cannot fall back to asking; the language check asks
// when no entry is present.
func (m *Metadata) needsBibTeX() bool {
	return m.Checks.Venue
}

// metadataDecided reports whether the metadata stage already decided r.
func metadataDecided(r *article.Record) bool {
	if r.Selected.AtLeast(stage.MetadataApproved) {
		return true
	}
	for _, f := range []article.Flag{article.FlagVenue, article.FlagYear, article.FlagLanguage, article.FlagDownload} {
		if r.Flag(f) {
			return true
		}
	}
	return false
}

// Run evaluates the enabled sub-checks for every NotSelected record. Records
// whose BibTeX has not been fetched yet are left pending when the venue
// check is enabled.
func (m *Metadata) Run(ctx context.Context, recs []article.Record, decider Decider) (Result, error) {
	var res Result
	b := newBatcher(m.Store, m.BatchSize, "metadata", &res)
	checks := m.subChecks()

	var todo []article.Record
	for _, rec := range recs {
		switch {
		case metadataDecided(&rec):
			res.AlreadyDecided++
		case rec.Selected != stage.NotSelected || rec.Excluded():
			res.Ineligible++
		case m.needsBibTeX() && article.StateOf(rec.BibTeX) == article.Unfetched:
			zap.L().Warn("bibtex not fetched, leaving record pending", zap.String("id", rec.ID), zap.Int("iteration", rec.Iteration))
			res.Pending++
		default:
			todo = append(todo, rec)
		}
	}

	for i, rec := range todo {
		if err := ctx.Err(); err != nil {
			return res, b.abort(err)
		}

		mr := &metadataRun{m: m, decider: decider}
		q := Question{Record: rec, Index: i + 1, Total: len(todo)}
		key := rec.Key()
		var update *storage.Update

		for _, c := range checks {
			out, err := c.run(ctx, mr, q)
			if err != nil {
				return res, b.abort(err)
			}
			if out == quit {
				res.Quit = true
				return res, b.flush(ctx)
			}
			if out == skipped {
				res.Skipped++
				update = nil
				break
			}
			if out == failed {
				u := storage.FlagUpdate(key, c.flag, true)
				update = &u
				res.Rejected++
				zap.L().Debug("metadata check failed", zap.String("id", rec.ID), zap.String("check", c.name))
				break
			}
			u := storage.StageUpdate(key, stage.MetadataApproved)
			update = &u
		}
		if len(checks) == 0 {
			u := storage.StageUpdate(key, stage.MetadataApproved)
			update = &u
		}
		if update == nil {
			continue
		}
		if update.Column == "selected" {
			res.Advanced++
		}
		if err := b.add(ctx, *update); err != nil {
			return res, err
		}
	}
	return res, b.flush(ctx)
}
