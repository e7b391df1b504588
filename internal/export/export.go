// Package export writes downstream views of the approved records.
package export

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
)

// Row is one approved article in the CSV and XLSX views.
type Row struct {
	ID        string `csv:"id"`
	Iteration int    `csv:"iteration"`
	Title     string `csv:"title"`
	Authors   string `csv:"authors"`
	Year      int    `csv:"year"`
	Venue     string `csv:"venue"`
	Citations int    `csv:"citations"`
	URL       string `csv:"url"`
	EprintURL string `csv:"eprint_url"`
}

// Reasoning is the per-record justification view.
type Reasoning struct {
	ID            string `csv:"id"`
	Iteration     int    `csv:"iteration"`
	Title         string `csv:"title"`
	TitleReason   string `csv:"title_reason"`
	ContentReason string `csv:"content_reason"`
}

// Rows converts records to export rows, keeping order.
func Rows(recs []article.Record) []Row {
	rows := make([]Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, Row{
			ID:        r.ID,
			Iteration: r.Iteration,
			Title:     r.Title,
			Authors:   r.Authors,
			Year:      r.PubYear,
			Venue:     r.Venue,
			Citations: r.NumCitations,
			URL:       r.PubURL,
			EprintURL: r.EprintURL,
		})
	}
	return rows
}

// Reasonings converts records to reasoning rows. Multi-rater reasons are
// flattened to one "rater: reason" line each.
func Reasonings(recs []article.Record) []Reasoning {
	out := make([]Reasoning, 0, len(recs))
	for _, r := range recs {
		out = append(out, Reasoning{
			ID:            r.ID,
			Iteration:     r.Iteration,
			Title:         r.Title,
			TitleReason:   article.ParseReasons(r.TitleReason).Flatten(),
			ContentReason: article.ParseReasons(r.ContentReason).Flatten(),
		})
	}
	return out
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, recs []article.Record) error {
	return writeCSV(w, Rows(recs))
}

// WriteReasonings writes the reasoning view as CSV.
func WriteReasonings(w io.Writer, recs []article.Record) error {
	return writeCSV(w, Reasonings(recs))
}

func writeCSV[T any](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return eris.Wrap(err, "writing csv header")
		}
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "encoding row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flushing csv")
}
