package utils

import (
	"strings"
	"testing"
)

func TestRandString(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := RandString(24)
		if err != nil {
			t.Fatal(err)
		}
		if len(s) != 24 {
			t.Fatalf("Expected length 24, got %d", len(s))
		}
		if strings.Trim(s, letters) != "" {
			t.Fatalf("Expected only alphanumeric characters, got %s", s)
		}
		if seen[s] {
			t.Fatalf("Expected unique strings, got %s twice", s)
		}
		seen[s] = true
	}
}
