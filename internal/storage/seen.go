package storage

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
)

// SeenTitle maps a normalized title to the first id it was recorded under.
type SeenTitle struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

// InsertSeenTitles records titles in one transaction. Titles are normalized
// before insert; a title already present keeps its original id.
func (d *DB) InsertSeenTitles(ctx context.Context, entries []SeenTitle) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		return insertSeenTitlesTx(ctx, tx, entries)
	})
}

func insertSeenTitlesTx(ctx context.Context, tx *sql.Tx, entries []SeenTitle) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seen_titles (title, id) VALUES (?, ?)`)
	if err != nil {
		return eris.Wrap(err, "preparing seen title insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		title := article.NormalizeTitle(e.Title)
		if title == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, title, e.ID); err != nil {
			return eris.Wrapf(err, "inserting seen title for %s", e.ID)
		}
	}
	return nil
}

// SeenTitle returns the id first recorded for title.
func (d *DB) SeenTitle(ctx context.Context, title string) (string, bool, error) {
	var id string
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM seen_titles WHERE title = ?`, article.NormalizeTitle(title)).Scan(&id)
	if eris.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "reading seen title")
	}
	return id, true, nil
}

// SeenTitles returns the whole index keyed by normalized title.
func (d *DB) SeenTitles(ctx context.Context) (map[string]string, error) {
	query, args, err := sq.Select("title", "id").From("seen_titles").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "building query")
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "listing seen titles")
	}
	defer rows.Close()

	seen := make(map[string]string)
	for rows.Next() {
		var title, id string
		if err := rows.Scan(&title, &id); err != nil {
			return nil, eris.Wrap(err, "scanning seen title")
		}
		seen[title] = id
	}
	return seen, eris.Wrap(rows.Err(), "iterating seen titles")
}
