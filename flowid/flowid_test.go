package flowid

import (
	"testing"

	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/reservation"
)

func TestDeriveIsDeterministic(t *testing.T) {
	base := macutil.Addr(0x91E0F0000000)
	a := Derive(reservation.Sender(7), 3, base)
	b := Derive(reservation.Sender(7), 3, base)
	if a != b {
		t.Fatalf("Derive is not deterministic: %s != %s", a, b)
	}
}

func TestDeriveDistinguishesInputs(t *testing.T) {
	base := macutil.Addr(0x91E0F0000000)
	a := Derive(reservation.Sender(7), 3, base)
	b := Derive(reservation.Sender(7), 4, base)
	c := Derive(reservation.Sender(8), 3, base)
	d := Derive(reservation.Sender(7), 3, base+1)

	if a == b || a == c || a == d || b == c || b == d || c == d {
		t.Fatalf("Derive collided on distinct inputs")
	}
}

func TestStringIsTwentyHexChars(t *testing.T) {
	id := Derive(reservation.Sender(1), 1, macutil.Addr(0))
	if got := len(id.String()); got != 20 {
		t.Fatalf("String() length = %d, want 20", got)
	}
}
