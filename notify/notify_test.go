package notify

import "testing"

func TestPushPopFIFOOrder(t *testing.T) {
	var q Queue
	for i := uint32(1); i <= 5; i++ {
		q.Push(Notification{Kind: Acquiring, ID: i})
	}
	for i := uint32(1); i <= 5; i++ {
		n, ok := q.Pop()
		if !ok || n.ID != i {
			t.Fatalf("Pop() = (%v, %v), want id %d", n, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestGrowthPreservesOrderAcrossWrap(t *testing.T) {
	var q Queue
	// force several wraps and growths by interleaving push/pop
	next := uint32(1)
	for round := 0; round < 20; round++ {
		for i := 0; i < 3; i++ {
			q.Push(Notification{Kind: Status, ID: next})
			next++
		}
		if round%2 == 0 {
			if _, ok := q.Pop(); !ok {
				t.Fatalf("expected an entry to pop")
			}
		}
	}
	var last uint32
	for {
		n, ok := q.Pop()
		if !ok {
			break
		}
		if n.ID <= last {
			t.Fatalf("order violated: got id %d after %d", n.ID, last)
		}
		last = n.ID
	}
}

func TestDrainReturnsAllInOrder(t *testing.T) {
	var q Queue
	q.Push(Notification{Kind: Initialized})
	q.Push(Notification{Kind: Acquired})
	all := q.Drain()
	if len(all) != 2 || all[0].Kind != Initialized || all[1].Kind != Acquired {
		t.Fatalf("Drain() = %v, unexpected contents/order", all)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after Drain")
	}
}
