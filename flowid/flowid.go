// Package flowid derives a stable correlation identifier for a single
// reservation, so a host's diagnostic log (see the audit package) can
// group the notifications produced for that reservation without
// threading an extra parameter through the engine itself.
//
// Grounded on this codebase ancestry's use of Keccak256 to derive
// deterministic synthetic test addresses; repurposed here for
// correlation-ID derivation over live protocol fields instead of test
// fixture generation.
package flowid

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/reservation"
)

// ID is a correlation identifier, printable as a 20 hex character
// string.
type ID [10]byte

// String returns the hex encoding of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Derive computes a correlation ID from the fields that identify a
// reservation for the lifetime of the pool it lives in: the owning
// sender token, its public reservation ID, and the pool's base
// address. The same inputs always derive the same ID, which is what
// lets a diagnostic log correlate every packet and notification
// belonging to one reservation without extra bookkeeping in the
// engine itself.
func Derive(sender reservation.Sender, reservationID uint32, poolBase macutil.Addr) ID {
	var buf [8 + 4 + 6]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(sender))
	binary.BigEndian.PutUint32(buf[8:12], reservationID)
	baseBytes := poolBase.Bytes()
	copy(buf[12:18], baseBytes[:])

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	sum := h.Sum(nil)
	var id ID
	copy(id[:], sum[:len(id)])
	return id
}
