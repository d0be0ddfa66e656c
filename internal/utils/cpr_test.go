package utils

import "testing"

func TestNormalizeCPR(t *testing.T) {
	cases := map[string]string{
		"010203-1234":   "0102031234",
		" 0102031234 ":  "0102031234",
		"102031234":     "0102031234",
		"01 02 03 1234": "0102031234",
		"":              "",
	}
	for in, want := range cases {
		if got := NormalizeCPR(in); got != want {
			t.Errorf("NormalizeCPR(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskCPR(t *testing.T) {
	if got := MaskCPR("010203-1234"); got != "010203-XXXX" {
		t.Fatalf("got %q", got)
	}
	if got := MaskCPR("12"); got != "XXXXXX-XXXX" {
		t.Fatalf("got %q", got)
	}
}
