// Package storage persists article records, the seen-title index, venue
// ranks and the reconciliation log in SQLite.
package storage

import (
	"context"
	"database/sql"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = eris.New("not found")

// ErrUnknownColumn is returned when a batch names a column that cannot be updated.
var ErrUnknownColumn = eris.New("unknown column")

// DB wraps a SQLite database connection.
type DB struct {
	db   *sql.DB
	path string
}

// recordColumns is the column list for record SELECTs, in scan order.
var recordColumns = []string{
	"id", "iteration", "title", "authors", "venue", "pub_year",
	"pub_url", "eprint_url", "num_citations", "citedby_url", "url_related",
	"container_type", "source", "search_method", "new_pub", "bibtex",
	"selected",
	"year_filtered_out", "venue_filtered_out", "language_filtered_out",
	"download_filtered_out", "title_filtered_out", "abstract_filtered_out",
	"content_filtered_out",
	"title_reason", "content_reason", "duplicate",
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "opening database")
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "creating schema")
	}

	return &DB{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the file the database was opened from.
func (d *DB) Path() string {
	return d.path
}

func createSchema(db *sql.DB) error {
	schema := `
		-- One row per candidate article per snowball iteration
		CREATE TABLE IF NOT EXISTS iterations (
			id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			authors TEXT NOT NULL DEFAULT '',
			venue TEXT NOT NULL DEFAULT '',
			pub_year INTEGER NOT NULL DEFAULT 0,
			pub_url TEXT NOT NULL DEFAULT '',
			eprint_url TEXT NOT NULL DEFAULT '',
			num_citations INTEGER NOT NULL DEFAULT 0,
			citedby_url TEXT NOT NULL DEFAULT '',
			url_related TEXT NOT NULL DEFAULT '',
			container_type TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			search_method TEXT NOT NULL DEFAULT '',
			new_pub INTEGER NOT NULL DEFAULT 0,
			bibtex TEXT NOT NULL DEFAULT '',
			selected INTEGER NOT NULL DEFAULT 0,
			year_filtered_out INTEGER NOT NULL DEFAULT 0,
			venue_filtered_out INTEGER NOT NULL DEFAULT 0,
			language_filtered_out INTEGER NOT NULL DEFAULT 0,
			download_filtered_out INTEGER NOT NULL DEFAULT 0,
			title_filtered_out INTEGER NOT NULL DEFAULT 0,
			abstract_filtered_out INTEGER NOT NULL DEFAULT 0,
			content_filtered_out INTEGER NOT NULL DEFAULT 0,
			title_reason TEXT NOT NULL DEFAULT '',
			content_reason TEXT NOT NULL DEFAULT '',
			duplicate INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (id, iteration)
		);

		CREATE INDEX IF NOT EXISTS idx_iterations_stage ON iterations(iteration, selected);

		-- First id seen for each normalized title
		CREATE TABLE IF NOT EXISTS seen_titles (
			title TEXT PRIMARY KEY,
			id TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS venue_ranks (
			venue TEXT PRIMARY KEY COLLATE NOCASE,
			rank TEXT NOT NULL
		);

		-- Applied reconciliation decisions, one row per store write
		CREATE TABLE IF NOT EXISTS resolution_log (
			saga_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			stage INTEGER NOT NULL,
			resolution TEXT NOT NULL,
			rater TEXT NOT NULL,
			previous INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			logged_at TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// withTx runs fn in a transaction, rolling back if fn fails.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "committing transaction")
}

// InsertRecords adds records in one transaction. A record whose
// (id, iteration) already exists fails the whole insert.
func (d *DB) InsertRecords(ctx context.Context, recs []article.Record) error {
	return d.InsertDiscovered(ctx, recs, nil)
}

// InsertDiscovered adds records and their seen-title entries in one transaction.
func (d *DB) InsertDiscovered(ctx context.Context, recs []article.Record, seen []SeenTitle) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRecordsTx(ctx, tx, recs); err != nil {
			return err
		}
		return insertSeenTitlesTx(ctx, tx, seen)
	})
}

func insertRecordsTx(ctx context.Context, tx *sql.Tx, recs []article.Record) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		query, args, err := sq.Insert("iterations").
			Columns(recordColumns...).
			Values(recordValues(&r)...).
			ToSql()
		if err != nil {
			return eris.Wrap(err, "building insert")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return eris.Wrapf(err, "inserting %s at iteration %d", r.ID, r.Iteration)
		}
	}
	return nil
}

func recordValues(r *article.Record) []interface{} {
	return []interface{}{
		r.ID, r.Iteration, r.Title, r.Authors, r.Venue, r.PubYear,
		r.PubURL, r.EprintURL, r.NumCitations, r.CitedByURL, r.URLRelated,
		r.ContainerType, r.Source, r.SearchMethod, boolInt(r.NewPub), r.BibTeX,
		r.Selected.Value(),
		boolInt(r.YearFilteredOut), boolInt(r.VenueFilteredOut), boolInt(r.LanguageFilteredOut),
		boolInt(r.DownloadFilteredOut), boolInt(r.TitleFilteredOut), boolInt(r.AbstractFilteredOut),
		boolInt(r.ContentFilteredOut),
		r.TitleReason, r.ContentReason, boolInt(r.Duplicate),
	}
}

// Filter selects records. Zero fields do not constrain the query.
type Filter struct {
	Iterations   []int
	Stages       []stage.Stage
	MinStage     stage.Stage // selected >= MinStage
	SearchMethod string
	IDs          []string
	// Unfetched keeps only records whose bibtex is still empty.
	Unfetched bool
	// Active drops records with any filter flag or the duplicate flag.
	Active bool
}

// Iteration returns a filter for a single iteration.
func Iteration(i int) Filter {
	return Filter{Iterations: []int{i}}
}

func (f Filter) builder() sq.SelectBuilder {
	q := sq.Select(recordColumns...).From("iterations")
	if len(f.Iterations) > 0 {
		q = q.Where(sq.Eq{"iteration": f.Iterations})
	}
	if len(f.Stages) > 0 {
		vals := make([]int, len(f.Stages))
		for i, s := range f.Stages {
			vals[i] = s.Value()
		}
		q = q.Where(sq.Eq{"selected": vals})
	}
	if f.MinStage != stage.NotSelected {
		q = q.Where(sq.GtOrEq{"selected": f.MinStage.Value()})
	}
	if f.SearchMethod != "" {
		q = q.Where(sq.Eq{"search_method": f.SearchMethod})
	}
	if len(f.IDs) > 0 {
		q = q.Where(sq.Eq{"id": f.IDs})
	}
	if f.Unfetched {
		q = q.Where(sq.Eq{"bibtex": ""})
	}
	if f.Active {
		active := sq.Eq{"duplicate": 0}
		for _, fl := range article.Flags() {
			active[fl.Column()] = 0
		}
		q = q.Where(active)
	}
	return q.OrderBy("iteration", "rowid")
}

// Records returns the records matching f, ordered by iteration then insertion.
func (d *DB) Records(ctx context.Context, f Filter) ([]article.Record, error) {
	query, args, err := f.builder().ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "building query")
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "querying records")
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Record returns one record by key.
func (d *DB) Record(ctx context.Context, key article.Key) (*article.Record, error) {
	recs, err := d.Records(ctx, Filter{Iterations: []int{key.Iteration}, IDs: []string{key.ID}})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "record %s at iteration %d", key.ID, key.Iteration)
	}
	return &recs[0], nil
}

// Update is one pending column write.
type Update struct {
	Key    article.Key
	Column string
	Value  interface{}
}

// StageUpdate sets the selected column.
func StageUpdate(key article.Key, s stage.Stage) Update {
	return Update{Key: key, Column: "selected", Value: s}
}

// FlagUpdate sets a filter flag column.
func FlagUpdate(key article.Key, f article.Flag, v bool) Update {
	return Update{Key: key, Column: f.Column(), Value: v}
}

// updatable lists the columns ApplyBatch may write.
var updatable = map[string]bool{
	"selected":       true,
	"title_reason":   true,
	"content_reason": true,
	"duplicate":      true,
	"eprint_url":     true,
	"venue":          true,
}

func init() {
	for _, f := range article.Flags() {
		updatable[f.Column()] = true
	}
}

// ApplyBatch writes updates grouped by column in one transaction. Either all
// of them are applied or none are.
func (d *DB) ApplyBatch(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	byColumn := make(map[string][]Update)
	for _, u := range updates {
		if !updatable[u.Column] {
			return eris.Wrapf(ErrUnknownColumn, "%q", u.Column)
		}
		byColumn[u.Column] = append(byColumn[u.Column], u)
	}
	columns := make([]string, 0, len(byColumn))
	for c := range byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, col := range columns {
			stmt, err := tx.PrepareContext(ctx,
				`UPDATE iterations SET `+col+` = ? WHERE id = ? AND iteration = ?`)
			if err != nil {
				return eris.Wrapf(err, "preparing update of %s", col)
			}
			for _, u := range byColumn[col] {
				res, err := stmt.ExecContext(ctx, sqlValue(u.Value), u.Key.ID, u.Key.Iteration)
				if err != nil {
					stmt.Close()
					return eris.Wrapf(err, "updating %s of %s", col, u.Key.ID)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					stmt.Close()
					return eris.Wrapf(ErrNotFound, "record %s at iteration %d", u.Key.ID, u.Key.Iteration)
				}
			}
			stmt.Close()
		}
		return nil
	})
}

// UpdateBibTeX stores fetched entries keyed by id. A value only replaces the
// current one when it is better (see article.BetterBibTeX). Returns the
// number of records written.
func (d *DB) UpdateBibTeX(ctx context.Context, iteration int, entries map[string]string) (int, error) {
	written := 0
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		written = 0
		for id, bib := range entries {
			var current string
			err := tx.QueryRowContext(ctx,
				`SELECT bibtex FROM iterations WHERE id = ? AND iteration = ?`, id, iteration).Scan(&current)
			if eris.Is(err, sql.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "record %s at iteration %d", id, iteration)
			}
			if err != nil {
				return eris.Wrapf(err, "reading bibtex of %s", id)
			}
			if !article.BetterBibTeX(current, bib) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE iterations SET bibtex = ? WHERE id = ? AND iteration = ?`, bib, id, iteration); err != nil {
				return eris.Wrapf(err, "writing bibtex of %s", id)
			}
			written++
		}
		return nil
	})
	return written, err
}

// MaxIteration returns the highest iteration in the store, or -1 if empty.
func (d *DB) MaxIteration(ctx context.Context) (int, error) {
	var last sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(iteration) FROM iterations`).Scan(&last); err != nil {
		return 0, eris.Wrap(err, "reading max iteration")
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*article.Record, error) {
	var r article.Record
	var selected int
	var newPub, yearF, venueF, langF, dlF, titleF, absF, contentF, dup int

	err := s.Scan(
		&r.ID, &r.Iteration, &r.Title, &r.Authors, &r.Venue, &r.PubYear,
		&r.PubURL, &r.EprintURL, &r.NumCitations, &r.CitedByURL, &r.URLRelated,
		&r.ContainerType, &r.Source, &r.SearchMethod, &newPub, &r.BibTeX,
		&selected,
		&yearF, &venueF, &langF, &dlF, &titleF, &absF, &contentF,
		&r.TitleReason, &r.ContentReason, &dup,
	)
	if err != nil {
		return nil, err
	}

	s2, err := stage.FromValue(selected)
	if err != nil {
		return nil, eris.Wrapf(err, "record %s", r.ID)
	}
	r.Selected = s2
	r.NewPub = newPub != 0
	r.YearFilteredOut = yearF != 0
	r.VenueFilteredOut = venueF != 0
	r.LanguageFilteredOut = langF != 0
	r.DownloadFilteredOut = dlF != 0
	r.TitleFilteredOut = titleF != 0
	r.AbstractFilteredOut = absF != 0
	r.ContentFilteredOut = contentF != 0
	r.Duplicate = dup != 0

	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]article.Record, error) {
	var recs []article.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scanning record")
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "iterating records")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqlValue converts domain values to their column representation.
func sqlValue(v interface{}) interface{} {
	switch x := v.(type) {
	case bool:
		return boolInt(x)
	case stage.Stage:
		return x.Value()
	}
	return v
}
