package prompt

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/dedup"
	"github.com/matsen/snowball/internal/reconcile"
	"github.com/matsen/snowball/internal/selection"
	"github.com/matsen/snowball/internal/venue"
	"github.com/rotisserie/eris"
)

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	label   = color.New(color.FgHiBlack).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
)

// Terminal is the interactive collaborator for every human decision:
// review questions, reasons, duplicate pairs, rater disagreements and
// venue ranks. Invalid answers are asked again.
type Terminal struct {
	In  LineReader
	Out io.Writer
	// AskReasons enables the reason prompt after a review decision.
	AskReasons bool
}

// NewTerminal returns a terminal over in and out.
func NewTerminal(in LineReader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

// ask reads until the answer is one of the keys of choices.
func (t *Terminal) ask(ctx context.Context, prompt string, choices map[string]int) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		line, err := t.In.ReadLine(ctx, prompt)
		if err != nil {
			return 0, err
		}
		if v, ok := choices[strings.ToLower(line)]; ok {
			return v, nil
		}
		fmt.Fprintln(t.Out, warn("Invalid answer: "+strconv.Quote(line)))
	}
}

func stopped(err error) bool {
	return err == io.EOF || eris.Is(err, ErrInterrupted)
}

func (t *Terminal) field(name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(t.Out, "  %s %s\n", label(name+":"), value)
}

func (t *Terminal) record(r article.Record) {
	fmt.Fprintf(t.Out, "  %s\n", color.New(color.Bold).Sprint(r.Title))
	t.field("id", r.ID)
	if r.PubYear > 0 {
		t.field("year", strconv.Itoa(r.PubYear))
	}
	t.field("authors", r.Authors)
	t.field("venue", r.Venue)
	t.field("citations", strconv.Itoa(r.NumCitations))
	t.field("url", r.PubURL)
	t.field("eprint", r.EprintURL)
}

var decisions = map[string]int{
	"y": int(selection.Yes), "yes": int(selection.Yes),
	"n": int(selection.No), "no": int(selection.No),
	"s": int(selection.Skip), "skip": int(selection.Skip),
	"q": int(selection.Quit), "quit": int(selection.Quit),
}

// Decide implements selection.Decider. End of input quits.
func (t *Terminal) Decide(ctx context.Context, q selection.Question) (selection.Decision, error) {
	fmt.Fprintf(t.Out, "\n%s %s\n", heading(fmt.Sprintf("[%d/%d]", q.Index, q.Total)), heading(q.Check))
	t.record(q.Record)
	if q.Detail != "" {
		fmt.Fprintf(t.Out, "  %s\n", warn(q.Detail))
	}
	v, err := t.ask(ctx, q.Prompt+" [y/n/s/q]: ", decisions)
	if stopped(err) {
		return selection.Quit, nil
	}
	if err != nil {
		return selection.Quit, err
	}
	return selection.Decision(v), nil
}

// Reason implements selection.Reasoner. An empty line records no reason.
func (t *Terminal) Reason(ctx context.Context, _ selection.Question, _ selection.Decision) (string, error) {
	if !t.AskReasons {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.In.ReadLine(ctx, "Reason (optional): ")
	if stopped(err) {
		return "", nil
	}
	return line, err
}

var pairChoices = map[string]int{
	"a": int(dedup.KeepA), "b": int(dedup.KeepB),
	"both": int(dedup.KeepBoth), "k": int(dedup.KeepBoth),
	"q": int(dedup.Abort), "quit": int(dedup.Abort),
}

// Choose implements dedup.Chooser. End of input aborts.
func (t *Terminal) Choose(ctx context.Context, p dedup.Pair, index, total int) (dedup.Choice, error) {
	fmt.Fprintf(t.Out, "\n%s similarity %.2f\n", heading(fmt.Sprintf("[%d/%d]", index, total)), p.Similarity)
	fmt.Fprintln(t.Out, good("A"))
	t.record(p.A)
	fmt.Fprintln(t.Out, good("B"))
	t.record(p.B)
	v, err := t.ask(ctx, "Keep [a], [b], [both] or [q]uit: ", pairChoices)
	if stopped(err) {
		return dedup.Abort, nil
	}
	if err != nil {
		return dedup.Abort, err
	}
	return dedup.Choice(v), nil
}

var resolutions = map[string]int{
	"a": int(reconcile.Accept), "accept": int(reconcile.Accept),
	"r": int(reconcile.Reject), "reject": int(reconcile.Reject),
	"s": int(reconcile.Skip), "skip": int(reconcile.Skip),
	"q": int(reconcile.Abort), "quit": int(reconcile.Abort),
}

// Resolve implements reconcile.Chooser. End of input aborts.
func (t *Terminal) Resolve(ctx context.Context, d reconcile.Disagreement, index, total int) (reconcile.Resolution, error) {
	fmt.Fprintf(t.Out, "\n%s %s\n", heading(fmt.Sprintf("[%d/%d]", index, total)), heading(d.Stage.String()))
	fmt.Fprintf(t.Out, "  %s\n", color.New(color.Bold).Sprint(d.Title))
	t.field("id", d.ID)
	t.field("url", d.PubURL)
	t.field("eprint", d.EprintURL)
	for _, v := range d.Votes {
		verdict := bad("rejected")
		if v.Approved {
			verdict = good("approved")
		}
		fmt.Fprintf(t.Out, "  %s %s (%s)\n", label(v.Rater+":"), verdict, v.Selected)
		if v.Reason != "" {
			fmt.Fprintf(t.Out, "    %s\n", v.Reason)
		}
	}
	v, err := t.ask(ctx, "[a]ccept, [r]eject, [s]kip or [q]uit: ", resolutions)
	if stopped(err) {
		return reconcile.Abort, nil
	}
	if err != nil {
		return reconcile.Abort, err
	}
	return reconcile.Resolution(v), nil
}

// ChooseRank implements venue.RankChooser. The operator enters a rank
// label or the number of a suggestion; q or end of input aborts.
func (t *Terminal) ChooseRank(ctx context.Context, v string, index, total int, suggestions []venue.Suggestion) (venue.Rank, error) {
	fmt.Fprintf(t.Out, "\n%s %s\n", heading(fmt.Sprintf("[%d/%d]", index, total)), color.New(color.Bold).Sprint(v))
	for i, s := range suggestions {
		fmt.Fprintf(t.Out, "  %d) %s (%s) %s\n", i+1, s.Entry.Name, s.Entry.Acronym, good(s.Entry.Rank))
	}
	ranks := make([]string, len(venue.Ranks))
	for i, r := range venue.Ranks {
		ranks[i] = string(r)
	}
	prompt := fmt.Sprintf("Rank [%s] or suggestion number, q to quit: ", strings.Join(ranks, "/"))
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := t.In.ReadLine(ctx, prompt)
		if stopped(err) {
			return "", venue.ErrAborted
		}
		if err != nil {
			return "", err
		}
		if strings.EqualFold(line, "q") || strings.EqualFold(line, "quit") {
			return "", venue.ErrAborted
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(suggestions) {
			if r, err := venue.ParseRank(suggestions[n-1].Entry.Rank); err == nil {
				return r, nil
			}
		}
		if r, err := venue.ParseRank(line); err == nil {
			return r, nil
		}
		fmt.Fprintln(t.Out, warn("Invalid rank: "+strconv.Quote(line)))
	}
}
