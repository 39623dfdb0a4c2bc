package id

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	got := New()
	if len(got) != 26 {
		t.Fatalf("expected 26-character id, got %d", len(got))
	}
	if got != strings.ToLower(got) {
		t.Fatal("expected lowercase id")
	}
}

func TestNewIsTimeOrdered(t *testing.T) {
	a := New()
	b := New()
	if b < a {
		t.Fatalf("expected ids to sort by creation order: %s then %s", a, b)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		got := New()
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id %s", got)
		}
		seen[got] = struct{}{}
	}
}
