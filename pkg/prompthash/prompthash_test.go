package prompthash

import "testing"

func TestComputeLengthAndStability(t *testing.T) {
	h1 := Compute("same prompt content")
	h2 := Compute("same prompt content")
	h3 := Compute("different prompt content")

	if len(h1) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(h1), h1)
	}
	if h1 != h2 {
		t.Fatalf("Compute must be deterministic: %q != %q", h1, h2)
	}
	if h1 == h3 {
		t.Fatalf("distinct content hashed to the same value: %q", h1)
	}
}
