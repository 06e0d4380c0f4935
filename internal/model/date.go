package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Date is a partial-or-full calendar date. Zero Year or Day means the
// component is unknown. Raw keeps the original text.
type Date struct {
	Year  int    `json:"year,omitempty"`
	Month int    `json:"month,omitempty"`
	Day   int    `json:"day,omitempty"`
	Raw   string `json:"raw"`
}

var (
	reNoYear    = regexp.MustCompile(`^--(\d{2})-?(\d{2})$`)
	reFull      = regexp.MustCompile(`^(\d{4})-?(\d{2})-?(\d{2})$`)
	reYearMonth = regexp.MustCompile(`^(\d{4})-?(\d{2})$`)
)

// ParseDate parses --MMDD, --MM-DD, YYYYMMDD, YYYY-MM-DD, YYYYMM and
// YYYY-MM, ignoring any time part. Text it cannot read is kept verbatim with
// no components set. Empty input returns nil.
func ParseDate(s string) *Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d := &Date{Raw: s}
	v := s
	if i := strings.IndexByte(v, 'T'); i > 0 {
		v = v[:i]
	}

	var y, m, day int
	switch {
	case reNoYear.MatchString(v):
		g := reNoYear.FindStringSubmatch(v)
		m, day = atoi(g[1]), atoi(g[2])
	case reFull.MatchString(v):
		g := reFull.FindStringSubmatch(v)
		y, m, day = atoi(g[1]), atoi(g[2]), atoi(g[3])
	case reYearMonth.MatchString(v):
		g := reYearMonth.FindStringSubmatch(v)
		y, m = atoi(g[1]), atoi(g[2])
	default:
		return d
	}
	if m < 1 || m > 12 || day < 0 || day > 31 {
		return d
	}
	d.Year, d.Month, d.Day = y, m, day
	return d
}

// Valid reports whether at least a month was parsed.
func (d *Date) Valid() bool {
	return d != nil && d.Month > 0
}

// Value renders the date for the wire. Unparsed dates return Raw.
func (d *Date) Value() string {
	switch {
	case d == nil:
		return ""
	case !d.Valid():
		return d.Raw
	case d.Year == 0:
		return fmt.Sprintf("--%02d%02d", d.Month, d.Day)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
	}
}

// ISO renders a parsed date as YYYY-MM-DD with unknown parts dashed.
func (d *Date) ISO() string {
	if !d.Valid() {
		if d == nil {
			return ""
		}
		return d.Raw
	}
	y := "----"
	if d.Year > 0 {
		y = fmt.Sprintf("%04d", d.Year)
	}
	if d.Day == 0 {
		return fmt.Sprintf("%s-%02d", y, d.Month)
	}
	return fmt.Sprintf("%s-%02d-%02d", y, d.Month, d.Day)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
