package main

import "testing"

func TestParseInt64Arg(t *testing.T) {
	for _, tc := range []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, false},
		{"", 0, true},
		{"not-a-number", 0, true},
	} {
		got, err := parseInt64Arg(tc.raw, "object-id")
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseInt64Arg(%q) expected error, got none", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseInt64Arg(%q) unexpected error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("parseInt64Arg(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
