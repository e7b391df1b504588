package storage

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
)

// ResolutionEntry records one reconciliation write against this store.
type ResolutionEntry struct {
	SagaID     string      `json:"saga_id"`
	RecordID   string      `json:"record_id"`
	Iteration  int         `json:"iteration"`
	Stage      stage.Stage `json:"stage"`
	Resolution string      `json:"resolution"`
	Rater      string      `json:"rater"`
	Previous   stage.Stage `json:"previous"`
	Applied    stage.Stage `json:"applied"`
	LoggedAt   time.Time   `json:"logged_at"`
}

// LogResolution appends an entry to the resolution log.
func (d *DB) LogResolution(ctx context.Context, e ResolutionEntry) error {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	query, args, err := sq.Insert("resolution_log").
		Columns("saga_id", "record_id", "iteration", "stage", "resolution", "rater", "previous", "applied", "logged_at").
		Values(e.SagaID, e.RecordID, e.Iteration, e.Stage.Value(), e.Resolution, e.Rater,
			e.Previous.Value(), e.Applied.Value(), e.LoggedAt.Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "building insert")
	}
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "logging resolution of %s", e.RecordID)
	}
	return nil
}

// Resolutions returns the log in insertion order.
func (d *DB) Resolutions(ctx context.Context) ([]ResolutionEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT saga_id, record_id, iteration, stage, resolution, rater, previous, applied, logged_at
		FROM resolution_log ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "listing resolutions")
	}
	defer rows.Close()

	var out []ResolutionEntry
	for rows.Next() {
		var e ResolutionEntry
		var st, prev, applied int
		var at string
		if err := rows.Scan(&e.SagaID, &e.RecordID, &e.Iteration, &st, &e.Resolution, &e.Rater, &prev, &applied, &at); err != nil {
			return nil, eris.Wrap(err, "scanning resolution")
		}
		if e.Stage, err = stage.FromValue(st); err != nil {
			return nil, err
		}
		if e.Previous, err = stage.FromValue(prev); err != nil {
			return nil, err
		}
		if e.Applied, err = stage.FromValue(applied); err != nil {
			return nil, err
		}
		e.LoggedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "iterating resolutions")
}
