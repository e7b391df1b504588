package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
)

// IterationStatus summarises one iteration of a store.
type IterationStatus struct {
	Iteration int            `json:"iteration"`
	Total     int            `json:"total"`
	ByStage   map[string]int `json:"by_stage"`
	Flagged   map[string]int `json:"flagged"`
	Unfetched int            `json:"unfetched"`
	NoBibTeX  int            `json:"no_bibtex"`
}

// Status counts records per iteration, stage and filter flag.
func (d *DB) Status(ctx context.Context) ([]IterationStatus, error) {
	cols := []string{"iteration", "selected", "COUNT(*)",
		"SUM(CASE WHEN bibtex = '' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN bibtex = ? THEN 1 ELSE 0 END)"}
	for _, f := range article.Flags() {
		cols = append(cols, "SUM("+f.Column()+")")
	}
	query, args, err := sq.Select().
		Column(cols[0]).Column(cols[1]).Column(cols[2]).Column(cols[3]).
		Column(sq.Expr(cols[4], article.NoBibTeX)).
		Columns(cols[5:]...).
		From("iterations").
		GroupBy("iteration", "selected").
		OrderBy("iteration", "selected").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "building status query")
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "querying status")
	}
	defer rows.Close()

	var out []IterationStatus
	byIter := make(map[int]int)
	for rows.Next() {
		var iter, selected, count, unfetched, missing int
		flagCounts := make([]int, len(article.Flags()))
		dest := []interface{}{&iter, &selected, &count, &unfetched, &missing}
		for i := range flagCounts {
			dest = append(dest, &flagCounts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "scanning status")
		}

		idx, ok := byIter[iter]
		if !ok {
			out = append(out, IterationStatus{
				Iteration: iter,
				ByStage:   make(map[string]int),
				Flagged:   make(map[string]int),
			})
			idx = len(out) - 1
			byIter[iter] = idx
		}
		st := &out[idx]
		s, err := stage.FromValue(selected)
		if err != nil {
			return nil, err
		}
		st.Total += count
		st.ByStage[s.String()] += count
		st.Unfetched += unfetched
		st.NoBibTeX += missing
		for i, f := range article.Flags() {
			if flagCounts[i] > 0 {
				st.Flagged[f.Column()] += flagCounts[i]
			}
		}
	}
	return out, eris.Wrap(rows.Err(), "iterating status")
}
