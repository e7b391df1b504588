package article

import (
	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
)

// Flag names one of the *_filtered_out columns. Each records why a record
// left the pipeline and is independent of the others.
type Flag string

const (
	FlagYear     Flag = "year_filtered_out"
	FlagVenue    Flag = "venue_filtered_out"
	FlagLanguage Flag = "language_filtered_out"
	FlagDownload Flag = "download_filtered_out"
	FlagTitle    Flag = "title_filtered_out"
	FlagAbstract Flag = "abstract_filtered_out"
	FlagContent  Flag = "content_filtered_out"
)

// ErrUnknownFlag is returned by ParseFlag.
var ErrUnknownFlag = eris.New("unknown filter flag")

var flagOrder = []Flag{
	FlagYear, FlagVenue, FlagLanguage, FlagDownload,
	FlagTitle, FlagAbstract, FlagContent,
}

// checkedAt is the stage a record sits at while the check runs; passing
// moves it one stage on.
var checkedAt = map[Flag]stage.Stage{
	FlagYear:     stage.NotSelected,
	FlagVenue:    stage.NotSelected,
	FlagLanguage: stage.NotSelected,
	FlagDownload: stage.NotSelected,
	FlagTitle:    stage.MetadataApproved,
	FlagAbstract: stage.TitleApproved,
	FlagContent:  stage.AbstractIntroApproved,
}

// Flags returns every filter flag in pipeline order.
func Flags() []Flag {
	return append([]Flag(nil), flagOrder...)
}

// Column returns the database column name.
func (f Flag) Column() string { return string(f) }

func (f Flag) String() string { return string(f) }

// CheckedAt returns the stage at which the check guarded by f is made.
func (f Flag) CheckedAt() stage.Stage { return checkedAt[f] }

// ParseFlag accepts a column name or its short form ("venue").
func ParseFlag(s string) (Flag, error) {
	for _, f := range flagOrder {
		if s == string(f) || s+"_filtered_out" == string(f) {
			return f, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownFlag, "%q", s)
}

// Flag returns the value of f on r.
func (r *Record) Flag(f Flag) bool {
	switch f {
	case FlagYear:
		return r.YearFilteredOut
	case FlagVenue:
		return r.VenueFilteredOut
	case FlagLanguage:
		return r.LanguageFilteredOut
	case FlagDownload:
		return r.DownloadFilteredOut
	case FlagTitle:
		return r.TitleFilteredOut
	case FlagAbstract:
		return r.AbstractFilteredOut
	case FlagContent:
		return r.ContentFilteredOut
	}
	return false
}

// SetFlag sets f on r.
func (r *Record) SetFlag(f Flag, v bool) {
	switch f {
	case FlagYear:
		r.YearFilteredOut = v
	case FlagVenue:
		r.VenueFilteredOut = v
	case FlagLanguage:
		r.LanguageFilteredOut = v
	case FlagDownload:
		r.DownloadFilteredOut = v
	case FlagTitle:
		r.TitleFilteredOut = v
	case FlagAbstract:
		r.AbstractFilteredOut = v
	case FlagContent:
		r.ContentFilteredOut = v
	}
}

// SetFlags returns the flags currently set on r.
func (r *Record) SetFlags() []Flag {
	var out []Flag
	for _, f := range flagOrder {
		if r.Flag(f) {
			out = append(out, f)
		}
	}
	return out
}
