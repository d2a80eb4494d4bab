package main

import "strings"

// FormatDNI normalizes an Argentine DNI into the punctuated form the
// widget's login form expects. Non-digit characters are stripped first,
// so an already punctuated value round-trips unchanged.
func FormatDNI(dni string) string {
	var b strings.Builder
	for _, r := range dni {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 8:
		return digits[:2] + "." + digits[2:5] + "." + digits[5:]
	case 7:
		return digits[:1] + "." + digits[1:4] + "." + digits[4:]
	default:
		return dni
	}
}
