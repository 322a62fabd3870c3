package i18n

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales"
)

// Formatter renders numbers and timestamps for one language.
type Formatter struct {
	tr  locales.Translator
	loc *time.Location
}

// NewFormatter returns a formatter for lang in loc. Unknown languages use
// the English locale; a nil loc means UTC.
func NewFormatter(lang string, loc *time.Location) *Formatter {
	newLocale, ok := supported[lang]
	if !ok {
		newLocale = supported["en"]
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{tr: newLocale(), loc: loc}
}

// Locale returns the locale name in use.
func (f *Formatter) Locale() string { return f.tr.Locale() }

// Number formats v with exactly decimals fraction digits. A negative
// decimals keeps the shortest exact representation.
func (f *Formatter) Number(v float64, decimals int) string {
	if decimals < 0 {
		decimals = shortestDecimals(v)
	}
	return f.tr.FmtNumber(v, uint64(decimals))
}

// DateTime formats t as the locale's medium date followed by its medium
// time.
func (f *Formatter) DateTime(t time.Time) string {
	t = t.In(f.loc)
	return f.tr.FmtDateMedium(t) + " " + f.tr.FmtTimeMedium(t)
}

// Date formats t as the locale's medium date.
func (f *Formatter) Date(t time.Time) string {
	return f.tr.FmtDateMedium(t.In(f.loc))
}

func shortestDecimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// Weekday returns the locale's abbreviated weekday name of t.
func (f *Formatter) Weekday(t time.Time) string {
	return f.tr.WeekdayAbbreviated(t.In(f.loc).Weekday())
}
