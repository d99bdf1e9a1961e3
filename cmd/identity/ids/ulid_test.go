package ids

import (
	"strings"
	"testing"
	"time"
)

func TestCanonical(t *testing.T) {
	t.Parallel()

	const good = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "valid", in: good, want: good, ok: true},
		{name: "lower-case", in: strings.ToLower(good), want: good, ok: true},
		{name: "empty", in: "", ok: false},
		{name: "too short", in: good[:25], ok: false},
		{name: "too long", in: good + "0", ok: false},
		{name: "letter I", in: "01ARZ3NDEKTSV4RRFFQ69G5FAI", ok: false},
		{name: "letter L", in: "01ARZ3NDEKTSV4RRFFQ69G5FAL", ok: false},
		{name: "letter O", in: "01ARZ3NDEKTSV4RRFFQ69G5FAO", ok: false},
		{name: "letter U", in: "01ARZ3NDEKTSV4RRFFQ69G5FAU", ok: false},
		{name: "punctuation", in: "01ARZ3NDEKTSV4RRFFQ69G5FA-", ok: false},
		{name: "timestamp overflow", in: "81ARZ3NDEKTSV4RRFFQ69G5FAV", ok: false},
	}
	for _, tc := range cases {
		got, ok := Canonical(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: Canonical(%q)=(%q,%v) want (%q,%v)", tc.name, tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewULID(t *testing.T) {
	t.Parallel()

	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := NewULID(earlier)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(earlier.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	for _, id := range []string{a, b} {
		if len(id) != 26 {
			t.Fatalf("len(%q)=%d want 26", id, len(id))
		}
		if got, ok := Canonical(id); !ok || got != id {
			t.Fatalf("NewULID produced non-canonical id %q", id)
		}
	}
	if a >= b {
		t.Fatalf("ids must sort by time: %q >= %q", a, b)
	}

	// The zero time falls back to now rather than the Unix epoch.
	z, err := NewULID(time.Time{})
	if err != nil {
		t.Fatalf("NewULID(zero): %v", err)
	}
	if z <= b {
		t.Fatalf("zero time must use the current clock: %q <= %q", z, b)
	}
}
