package blocksource

import "testing"

func TestEndpointPoolRequiresEndpoints(t *testing.T) {
	if _, err := NewEndpointPool(nil); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

func TestEndpointPoolRotateWrapsAround(t *testing.T) {
	pool, err := NewEndpointPool([]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}

	if got := pool.Current(); got != "a" {
		t.Fatalf("current = %q, want a", got)
	}
	if got := pool.Rotate("a"); got != "b" {
		t.Fatalf("rotate = %q, want b", got)
	}
	if got := pool.Rotate("b"); got != "c" {
		t.Fatalf("rotate = %q, want c", got)
	}
	if got := pool.Rotate("c"); got != "a" {
		t.Fatalf("rotate = %q, want a (wraparound)", got)
	}
}

func TestEndpointPoolRotateIsConditional(t *testing.T) {
	pool, err := NewEndpointPool([]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}

	// Two flows both saw "a" fail. The first rotation advances the pool;
	// the second observes the pool already moved and leaves it alone.
	if got := pool.Rotate("a"); got != "b" {
		t.Fatalf("first rotate = %q, want b", got)
	}
	if got := pool.Rotate("a"); got != "b" {
		t.Fatalf("second rotate = %q, want b (no double advance)", got)
	}
}
