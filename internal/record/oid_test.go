package record

import "testing"

func TestCompareNumericOrderingNotLexicographic(t *testing.T) {
	if !Less("1.3.6.1.2.1.1.2.0", "1.3.6.1.2.1.1.10.0") {
		t.Fatalf("expected 1.3.6.1.2.1.1.2.0 < 1.3.6.1.2.1.1.10.0 under numeric ordering")
	}
}

func TestCompareShorterPrefixSortsFirst(t *testing.T) {
	if !Less("1.3.6.1", "1.3.6.1.1") {
		t.Fatalf("expected shorter common prefix to sort first")
	}
}

func TestCompareEqual(t *testing.T) {
	if Compare("1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1.1.1.0") != 0 {
		t.Fatalf("expected equal OIDs to compare equal")
	}
}

func TestIsPrefix(t *testing.T) {
	cases := []struct {
		parent, child string
		want          bool
	}{
		{"1.3.6.1.2.1.1", "1.3.6.1.2.1.1.1.0", true},
		{"1.3.6.1.2.1.1", "1.3.6.1.2.1.1", true},
		{"1.3.6.1.2.1.1", "1.3.6.1.2.1.10.0", false},
		{"1.3.6.1.2.1.2", "1.3.6.1.2.1.1.1.0", false},
	}
	for _, c := range cases {
		if got := IsPrefix(c.parent, c.child); got != c.want {
			t.Fatalf("IsPrefix(%q, %q) = %v, want %v", c.parent, c.child, got, c.want)
		}
	}
}

func TestCanonicalStripsLeadingDot(t *testing.T) {
	if Canonical(".1.3.6.1") != "1.3.6.1" {
		t.Fatalf("expected leading dot stripped")
	}
}
