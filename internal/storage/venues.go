package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
)

// VenueRank is a coarse quality label for a publication venue.
type VenueRank struct {
	Venue string `json:"venue"`
	Rank  string `json:"rank"`
}

// VenueRank returns the rank label for venue. Lookup ignores case.
func (d *DB) VenueRank(ctx context.Context, venue string) (string, bool, error) {
	var rank string
	err := d.db.QueryRowContext(ctx,
		`SELECT rank FROM venue_ranks WHERE venue = ?`, strings.TrimSpace(venue)).Scan(&rank)
	if eris.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "reading rank of %q", venue)
	}
	return rank, true, nil
}

// PutVenueRanks inserts or replaces ranks in one transaction.
func (d *DB) PutVenueRanks(ctx context.Context, ranks ...VenueRank) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, vr := range ranks {
			venue := strings.TrimSpace(vr.Venue)
			if venue == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO venue_ranks (venue, rank) VALUES (?, ?)`, venue, vr.Rank); err != nil {
				return eris.Wrapf(err, "writing rank of %q", venue)
			}
		}
		return nil
	})
}

// VenueRanks returns every ranked venue ordered by name.
func (d *DB) VenueRanks(ctx context.Context) ([]VenueRank, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT venue, rank FROM venue_ranks ORDER BY venue`)
	if err != nil {
		return nil, eris.Wrap(err, "listing venue ranks")
	}
	defer rows.Close()

	var out []VenueRank
	for rows.Next() {
		var vr VenueRank
		if err := rows.Scan(&vr.Venue, &vr.Rank); err != nil {
			return nil, eris.Wrap(err, "scanning venue rank")
		}
		out = append(out, vr)
	}
	return out, eris.Wrap(rows.Err(), "iterating venue ranks")
}
