package main

import "testing"

func TestFormatDNI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12345678", "12.345.678"},
		{"1234567", "1.234.567"},
		{"12.345.678", "12.345.678"}, // already punctuated, round-trips
		{"1.234.567", "1.234.567"},
		{" 12 345 678 ", "12.345.678"},
		{"12-345-678", "12.345.678"},
		{"123456", "123456"},       // too short, returned as given
		{"123456789", "123456789"}, // too long, returned as given
		{"", ""},
		{"abc", "abc"},
	}
	for _, tc := range cases {
		if got := FormatDNI(tc.in); got != tc.want {
			t.Errorf("FormatDNI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
