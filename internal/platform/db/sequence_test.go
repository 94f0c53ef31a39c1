package db

import "testing"

func TestFormatID(t *testing.T) {
	cases := []struct {
		prefix string
		n      int64
		want   string
	}{
		{"REQ", 1, "REQ-000001"},
		{"PAT", 42, "PAT-000042"},
		{"REQ", 123456, "REQ-123456"},
		{"REQ", 1234567, "REQ-1234567"},
	}
	for _, c := range cases {
		if got := FormatID(c.prefix, c.n); got != c.want {
			t.Errorf("FormatID(%q, %d) = %q, want %q", c.prefix, c.n, got, c.want)
		}
	}
}
