package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		page, pageSize, def, max int
		wantOffset, wantLimit    int
	}{
		// normal paging
		{1, 20, 20, 100, 0, 20},
		{3, 10, 20, 100, 20, 10},
		// page < 1 falls back to page 1
		{0, 10, 20, 100, 0, 10},
		{-5, 10, 20, 100, 0, 10},
		// pageSize <= 0 falls back to def
		{2, 0, 20, 100, 20, 20},
		{2, -1, 20, 100, 20, 20},
		// pageSize > max is capped
		{1, 500, 20, 100, 0, 100},
		{2, 500, 20, 100, 100, 100},
	}

	for _, tc := range cases {
		offset, limit := PageBounds(tc.page, tc.pageSize, tc.def, tc.max)
		if offset != tc.wantOffset || limit != tc.wantLimit {
			t.Fatalf("PageBounds(%d, %d, %d, %d) = (%d, %d); want (%d, %d)",
				tc.page, tc.pageSize, tc.def, tc.max, offset, limit, tc.wantOffset, tc.wantLimit)
		}
	}
}
