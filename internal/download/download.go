package download

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNoPDF is returned when a URL neither serves nor links a PDF.
	ErrNoPDF = eris.New("no pdf at url")
	// ErrInvalidPDF is returned when the downloaded file does not parse.
	ErrInvalidPDF = eris.New("downloaded file is not a readable pdf")
	// ErrBadID is returned when a record id cannot name a file in the
	// download directory.
	ErrBadID = eris.New("record id cannot be used as a file name")
)

// Downloader saves article PDFs to disk.
type Downloader struct {
	Probe   *Probe
	Limiter *rate.Limiter
}

// Download writes the PDF behind rawURL to path. Files that do not parse
// as a PDF with at least one page are removed.
func (d *Downloader) Download(ctx context.Context, rawURL, path string) error {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	link, err := d.Probe.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}
	if link == "" {
		return eris.Wrap(ErrNoPDF, rawURL)
	}
	r, err := d.Probe.get(ctx, link)
	if err != nil {
		return err
	}
	defer r.Close()
	if !r.isPDF {
		return eris.Wrapf(ErrNoPDF, "%s resolved to %s", rawURL, link)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "creating pdf file")
	}
	if _, err := io.Copy(f, r.body); err != nil {
		f.Close()
		os.Remove(path)
		return eris.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return eris.Wrapf(err, "closing %s", path)
	}

	pages, err := PageCount(path)
	if err != nil || pages < 1 {
		os.Remove(path)
		return eris.Wrapf(ErrInvalidPDF, "%s", rawURL)
	}
	return nil
}

// PageCount opens a PDF and returns its number of pages.
func PageCount(path string) (n int, err error) {
	defer func() {
		// the parser panics on some truncated files
		if r := recover(); r != nil {
			n, err = 0, eris.Errorf("reading %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// PDFPath returns the file <id>.pdf in dir. The id is path-escaped, so
// DBLP-style ids like conf/icse/Smith21 stay one file name and cannot
// leave dir.
func PDFPath(dir, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", eris.Wrap(ErrBadID, "empty id")
	}
	path := filepath.Join(dir, url.PathEscape(id)+".pdf")
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != filepath.Base(path) {
		return "", eris.Wrapf(ErrBadID, "%q", id)
	}
	return path, nil
}

// Result reports the outcome of DownloadAll.
type Result struct {
	Downloaded int      `json:"downloaded"`
	Existing   int      `json:"existing"`
	NoURL      int      `json:"no_url"`
	Failed     []string `json:"failed,omitempty"`
	// Mismatched lists downloads whose text does not mention the record title.
	Mismatched []string `json:"mismatched,omitempty"`
}

// DownloadAll saves the PDF of every record with an eprint URL into dir,
// named by PDFPath.
// Existing files are kept. Failures are collected, not returned.
func (d *Downloader) DownloadAll(ctx context.Context, recs []article.Record, dir string) (Result, error) {
	var res Result
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, eris.Wrap(err, "creating download directory")
	}
	for _, rec := range recs {
		if rec.EprintURL == "" {
			res.NoURL++
			continue
		}
		path, err := PDFPath(dir, rec.ID)
		if err != nil {
			zap.L().Warn("skipping download", zap.String("id", rec.ID), zap.Error(err))
			res.Failed = append(res.Failed, rec.ID)
			continue
		}
		if _, err := os.Stat(path); err == nil {
			res.Existing++
			continue
		}
		if err := d.Download(ctx, rec.EprintURL, path); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			zap.L().Warn("download failed", zap.String("id", rec.ID), zap.String("url", rec.EprintURL), zap.Error(err))
			res.Failed = append(res.Failed, rec.ID)
			continue
		}
		res.Downloaded++
		if TitleMismatch(path, rec.Title) {
			zap.L().Warn("downloaded pdf does not mention title", zap.String("id", rec.ID), zap.String("path", path))
			res.Mismatched = append(res.Mismatched, rec.ID)
		}
	}
	return res, nil
}
