// Package reservation defines the per-reservation record tracked by the
// negotiation engine: its lifecycle state, retry counter, timer deadline,
// and the back-pointer into the interval set it currently occupies.
package reservation

import "github.com/maapnet/maapd/intervalset"

// State is the lifecycle stage of a Reservation.
type State int

const (
	// Probing is the initial state entered on reserve or on reassignment
	// after losing a conflict; the reservation is transmitting PROBE and
	// waiting out the retransmission counter.
	Probing State = iota
	// Defending is entered once probing completes without conflict; the
	// reservation periodically transmits ANNOUNCE and answers PROBEs
	// with DEFEND.
	Defending
	// Released reservations are logically gone. They remain in the timer
	// queue only long enough to be reclaimed on the next tick.
	Released
)

func (s State) String() string {
	switch s {
	case Probing:
		return "PROBING"
	case Defending:
		return "DEFENDING"
	case Released:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// PROBERetransmits is the number of extra PROBE transmissions after the
// first before a reservation is promoted to Defending. IEEE 1722 Annex B.
const PROBERetransmits = 3

// Sender is an opaque token identifying the owner of a reservation, used
// only to route notifications back to the caller that requested it. The
// engine never interprets its value.
type Sender uint64

// Reservation is one claim on a sub-range of the pool.
//
// ID is the client-visible identifier: it survives a yield, since a
// replacement reservation created after losing a conflict keeps its
// predecessor's ID. Key is the internal identity used to address this
// specific record in the timer queue and the interval set's owner field;
// it is never reused, even across a yield, so a released record pending
// deferred free and its replacement can coexist without aliasing.
type Reservation struct {
	Key    uint32
	ID     uint32
	Sender Sender
	State  State

	// Counter counts down remaining probe retransmissions; reset to
	// PROBERetransmits on every transition into Probing.
	Counter int

	// NextActTime is the absolute monotonic deadline (nanoseconds) at
	// which this reservation's timer next fires. Meaningless once
	// Released and awaiting reclamation.
	NextActTime int64

	// Interval addresses this reservation's claim in the interval set.
	// HasInterval is false exactly when State == Released.
	Interval    intervalset.Handle
	HasInterval bool

	// Overlapping is scratch state used only while a single incoming
	// packet is being processed; it must be false outside that window.
	Overlapping bool
}

// New returns a fresh reservation in the Probing state with the standard
// retransmit budget.
func New(id uint32, sender Sender) *Reservation {
	return &Reservation{
		ID:      id,
		Sender:  sender,
		State:   Probing,
		Counter: PROBERetransmits,
	}
}

// Snapshot is a point-in-time, read-only view of a Reservation and the
// bounds of the interval it currently occupies, for a host's inspection
// surface. Low and High are only meaningful when HasInterval is true.
type Snapshot struct {
	Reservation *Reservation
	Low, High   uint32
	HasInterval bool
}
