package utils

import "strings"

// NormalizeCPR strips separators and whitespace: "010203-1234" -> "0102031234".
// Spreadsheets sometimes drop the leading zero of a CPR stored as a number,
// so nine digits are padded back to ten.
func NormalizeCPR(cpr string) string {
	var b strings.Builder
	for _, r := range cpr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) == 9 {
		out = "0" + out
	}
	return out
}

// MaskCPR keeps the birth date part for log lines: "0102031234" -> "010203-XXXX".
func MaskCPR(cpr string) string {
	n := NormalizeCPR(cpr)
	if len(n) != 10 {
		return "XXXXXX-XXXX"
	}
	return n[:6] + "-XXXX"
}
