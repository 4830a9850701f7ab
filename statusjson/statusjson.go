// Package statusjson encodes a client's reservation status into JSON for
// a host's inspection/IPC surface (outside the engine's own scope, per
// its external-interfaces boundary, but a natural place for this
// daemon's domain stack to exercise a fast JSON encoder).
//
// Grounded on this codebase ancestry's use of sonnet for decoding RPC
// responses; repurposed to the marshal side, since this daemon produces
// status snapshots rather than consuming JSON-RPC.
package statusjson

import (
	"github.com/sugawarayuuta/sonnet"

	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/notify"
	"github.com/maapnet/maapd/reservation"
)

// Snapshot is one reservation's externally visible status.
type Snapshot struct {
	ID           uint32 `json:"id"`
	State        string `json:"state"`
	StartAddress string `json:"start_address,omitempty"`
	Count        uint32 `json:"count,omitempty"`
}

// PoolSnapshot is the full status payload for a client's pool.
type PoolSnapshot struct {
	PoolBase     string     `json:"pool_base"`
	PoolLen      uint32     `json:"pool_len"`
	Reservations []Snapshot `json:"reservations"`
}

// FromReservation builds a Snapshot from a live reservation and the
// bounds of its currently-held interval, if any.
func FromReservation(r *reservation.Reservation, poolBase macutil.Addr, low, high uint32, hasInterval bool) Snapshot {
	s := Snapshot{ID: r.ID, State: r.State.String()}
	if hasInterval {
		addr := poolBase + macutil.Addr(low)
		s.StartAddress = formatAddr(addr)
		s.Count = high - low + 1
	}
	return s
}

// FromClientSnapshot projects a client's full set of reservation
// snapshots into a PoolSnapshot ready for Marshal.
func FromClientSnapshot(snapshots []reservation.Snapshot, poolBase macutil.Addr, poolLen uint32) PoolSnapshot {
	out := PoolSnapshot{
		PoolBase:     formatAddr(poolBase),
		PoolLen:      poolLen,
		Reservations: make([]Snapshot, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		out.Reservations = append(out.Reservations, FromReservation(s.Reservation, poolBase, s.Low, s.High, s.HasInterval))
	}
	return out
}

func formatAddr(a macutil.Addr) string {
	b := a.Bytes()
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 17)
	j := 0
	for i, v := range b {
		if i > 0 {
			out[j] = ':'
			j++
		}
		out[j] = hexDigits[v>>4]
		out[j+1] = hexDigits[v&0xF]
		j += 2
	}
	return string(out)
}

// Marshal encodes snap as JSON using sonnet.
func Marshal(snap PoolSnapshot) ([]byte, error) {
	return sonnet.Marshal(snap)
}

// NotificationSnapshot is a JSON-friendly projection of a Notification,
// used by the audit log's marshal path.
type NotificationSnapshot struct {
	Kind   string `json:"kind"`
	ID     uint32 `json:"id"`
	Start  string `json:"start_address,omitempty"`
	Count  uint32 `json:"count,omitempty"`
	Result string `json:"result"`
}

// FromNotification projects n into its JSON-friendly form.
func FromNotification(n notify.Notification) NotificationSnapshot {
	out := NotificationSnapshot{
		Kind:   n.Kind.String(),
		ID:     n.ID,
		Count:  n.Count,
		Result: n.Result.String(),
	}
	if n.StartAddress != 0 {
		out.Start = formatAddr(macutil.Addr(n.StartAddress))
	}
	return out
}

// MarshalNotification encodes a single notification as JSON using
// sonnet, for the audit log's write path.
func MarshalNotification(n notify.Notification) ([]byte, error) {
	return sonnet.Marshal(FromNotification(n))
}
