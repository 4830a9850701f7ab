package timerqueue

import (
	"math/rand/v2"
	"testing"
)

func TestScheduleAndPopDueOrdering(t *testing.T) {
	q := New()
	q.Schedule(1, 300)
	q.Schedule(2, 100)
	q.Schedule(3, 200)

	due := q.PopDue(200)
	if len(due) != 2 || due[0] != 2 || due[1] != 3 {
		t.Fatalf("PopDue(200) = %v, want [2 3]", due)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	deadline, ok := q.FrontDeadline()
	if !ok || deadline != 300 {
		t.Fatalf("FrontDeadline() = (%d, %v), want (300, true)", deadline, ok)
	}
}

func TestScheduleIsIdempotentOnMembership(t *testing.T) {
	q := New()
	q.Schedule(1, 500)
	q.Schedule(1, 100)
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after rescheduling same id", q.Len())
	}
	deadline, _ := q.FrontDeadline()
	if deadline != 100 {
		t.Fatalf("FrontDeadline() = %d, want 100 (latest schedule wins)", deadline)
	}
}

func TestRemove(t *testing.T) {
	q := New()
	q.Schedule(1, 10)
	q.Schedule(2, 20)
	q.Remove(1)
	if q.Contains(1) {
		t.Fatalf("expected id 1 to be removed")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	q.Remove(999) // no-op, must not panic
}

func TestNoDuplicatesAndMonotonicPops(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 9))
	q := New()
	seen := map[uint32]int64{}
	for i := uint32(1); i <= 500; i++ {
		d := r.Int64N(1_000_000)
		q.Schedule(i, d)
		seen[i] = d
	}
	if q.Len() != 500 {
		t.Fatalf("Len() = %d, want 500", q.Len())
	}

	var last int64 = -1
	popped := map[uint32]bool{}
	for q.Len() > 0 {
		due := q.PopDue(1 << 62)
		for _, id := range due {
			if popped[id] {
				t.Fatalf("id %d popped twice", id)
			}
			popped[id] = true
			if seen[id] < last {
				t.Fatalf("non-monotonic pop: id %d deadline %d after %d", id, seen[id], last)
			}
			last = seen[id]
		}
	}
	if len(popped) != 500 {
		t.Fatalf("popped %d ids, want 500", len(popped))
	}
}
