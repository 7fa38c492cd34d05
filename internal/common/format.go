package common

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

var digitsOnly = regexp.MustCompile(`\D`)

// Esc escapes a value for Telegram HTML mode.
func Esc(s string) string {
	return html.EscapeString(s)
}

// Pill renders a value as inline code.
func Pill(s string) string {
	return "<code>" + Esc(s) + "</code>"
}

// KV is one bullet line of a key/value block.
type KV struct {
	Key   string
	Value string
}

// FormatKV renders ordered key/value pairs as bullet lines.
func FormatKV(pairs ...KV) string {
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, fmt.Sprintf("• <b>%s:</b> %s", Esc(p.Key), Esc(p.Value)))
	}
	return strings.Join(lines, "\n")
}

// ParseDate accepts dd/mm/yyyy with '/', '-' or '.' separators and
// two-digit years (mapped into 2000+), returning an ISO date.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"/", "-", "."} {
		parts := strings.Split(s, sep)
		if len(parts) != 3 {
			continue
		}
		day := atoiLoose(parts[0])
		month := atoiLoose(parts[1])
		year := atoiLoose(parts[2])
		if year < 100 {
			year += 2000
		}
		if day == 0 || month == 0 || year == 0 {
			return "", false
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes out-of-range components; reject those.
		if t.Day() != day || int(t.Month()) != month || t.Year() != year {
			return "", false
		}
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func atoiLoose(s string) int {
	n := 0
	for _, r := range digitsOnly.ReplaceAllString(s, "") {
		n = n*10 + int(r-'0')
	}
	return n
}

// FormatDate renders an ISO date as dd/mm/yyyy for display; unparsable
// values pass through and empty ones become "-".
func FormatDate(iso string) string {
	if iso == "" {
		return "-"
	}
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format("02/01/2006")
}

// DateSortKey orders ISO dates, pushing unparsable ones last.
func DateSortKey(iso string) time.Time {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// DaysFromNowISO returns today (UTC) plus the given number of days as an
// ISO date.
func DaysFromNowISO(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}
