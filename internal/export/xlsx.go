package export

import (
	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX saves a workbook with an "articles" sheet and a "reasonings"
// sheet.
func WriteXLSX(path string, recs []article.Record) error {
	f := xlsx.NewFile()

	articles, err := f.AddSheet("articles")
	if err != nil {
		return eris.Wrap(err, "xlsx: add articles sheet")
	}
	addRow(articles, "id", "iteration", "title", "authors", "year", "venue", "citations", "url", "eprint_url")
	for _, r := range Rows(recs) {
		row := articles.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetInt(r.Iteration)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetString(r.Authors)
		row.AddCell().SetInt(r.Year)
		row.AddCell().SetString(r.Venue)
		row.AddCell().SetInt(r.Citations)
		row.AddCell().SetString(r.URL)
		row.AddCell().SetString(r.EprintURL)
	}

	reasons, err := f.AddSheet("reasonings")
	if err != nil {
		return eris.Wrap(err, "xlsx: add reasonings sheet")
	}
	addRow(reasons, "id", "iteration", "title", "title_reason", "content_reason")
	for _, r := range Reasonings(recs) {
		row := reasons.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetInt(r.Iteration)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetString(r.TitleReason)
		row.AddCell().SetString(r.ContentReason)
	}

	return eris.Wrap(f.Save(path), "xlsx: save")
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
