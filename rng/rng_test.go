package rng

import "testing"

func TestUniformIntStaysInBounds(t *testing.T) {
	s := New(42)
	for i := 0; i < 1000; i++ {
		v := s.UniformInt(1, 99)
		if v < 1 || v > 99 {
			t.Fatalf("UniformInt(1, 99) = %d, out of bounds", v)
		}
	}
}

func TestUniformIntDegenerateRange(t *testing.T) {
	s := New(1)
	if v := s.UniformInt(5, 5); v != 5 {
		t.Fatalf("UniformInt(5, 5) = %d, want 5", v)
	}
}

func TestUniformIntPanicsOnInvertedRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for hi < lo")
		}
	}()
	New(1).UniformInt(5, 1)
}

func TestSameSeedReproducesSequence(t *testing.T) {
	a := New(7)
	b := New(7)
	for i := 0; i < 50; i++ {
		if a.UniformInt(0, 1_000_000) != b.UniformInt(0, 1_000_000) {
			t.Fatal("identically seeded sources diverged")
		}
	}
}

func TestUniformUint32StaysInBounds(t *testing.T) {
	s := New(3)
	for i := 0; i < 1000; i++ {
		v := s.UniformUint32(17)
		if v >= 17 {
			t.Fatalf("UniformUint32(17) = %d, out of bounds", v)
		}
	}
}
