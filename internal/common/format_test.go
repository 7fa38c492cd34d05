package common

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"31/12/2026", "2026-12-31", true},
		{"01/02/2026", "2026-02-01", true},
		{"1/2/2026", "2026-02-01", true},
		{"31-12-2026", "2026-12-31", true},
		{"31.12.2026", "2026-12-31", true},
		{"31/12/26", "2026-12-31", true},
		{" 31/12/2026 ", "2026-12-31", true},
		{"32/12/2026", "", false},
		{"29/02/2025", "", false},
		{"29/02/2024", "2024-02-29", true},
		{"0/12/2026", "", false},
		{"31/13/2026", "", false},
		{"31/12", "", false},
		{"garbage", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDate(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate("2026-12-31"); got != "31/12/2026" {
		t.Errorf("Expected 31/12/2026, got %s", got)
	}
	if got := FormatDate(""); got != "-" {
		t.Errorf("Expected placeholder for empty date, got %s", got)
	}
	if got := FormatDate("sin fecha"); got != "sin fecha" {
		t.Errorf("Expected unparsable date to pass through, got %s", got)
	}
}

func TestDateSortKey_UnparsableSortsLast(t *testing.T) {
	good := DateSortKey("2026-12-31")
	bad := DateSortKey("???")
	if !good.Before(bad) {
		t.Error("Expected unparsable dates to sort after valid ones")
	}
}

func TestEsc(t *testing.T) {
	if got := Esc("<b>&"); got != "&lt;b&gt;&amp;" {
		t.Errorf("Unexpected escape result: %s", got)
	}
}

func TestPill(t *testing.T) {
	if got := Pill("a<b"); got != "<code>a&lt;b</code>" {
		t.Errorf("Unexpected pill result: %s", got)
	}
}

func TestDaysFromNowISO(t *testing.T) {
	got := DaysFromNowISO(30)
	parsed, err := time.Parse("2006-01-02", got)
	if err != nil {
		t.Fatalf("Expected an ISO date, got %q: %v", got, err)
	}
	if days := int(time.Until(parsed).Hours() / 24); days < 28 || days > 30 {
		t.Errorf("Expected roughly 30 days out, got %d (%s)", days, got)
	}
}
