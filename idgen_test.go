package main

import "testing"

func TestNewFileID(t *testing.T) {
	id, err := newFileID()
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 6 {
		t.Errorf("expected 6 hex characters, got %q (len %d)", id, len(id))
	}
	for _, r := range id {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isHex {
			t.Errorf("id %q contains non-hex character %q", id, r)
		}
	}
}

func TestNewFileIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := newFileID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("generated duplicate id %q within 100 samples", id)
		}
		seen[id] = true
	}
}
