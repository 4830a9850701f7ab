// Package wire encodes and decodes MAAP protocol data units on the wire,
// per IEEE 1722 Annex B: a fixed 42-byte Ethernet II frame carrying a
// probe, defend, or announce message.
//
// Fields are laid out with explicit byte offsets and big-endian encoding,
// in the style of an RFC-oriented protocol codec rather than an unsafe
// zero-copy cast -- a wire-format bug here produces silent interop
// failure with other stations, not merely a local crash, so correctness
// takes priority over the zero-allocation tricks used elsewhere in this
// codebase's ancestry for purely-internal formats.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/maapnet/maapd/macutil"
)

// FrameLen is the fixed size of a MAAP frame on the wire.
const FrameLen = 42

// EtherType is the MAAP ethertype, IEEE 1722.
const EtherType = 0x22F0

// Subtype identifies MAAP within the IEEE 1722 subtype space.
const Subtype = 0xFE

// Version is the only MAAP version this codec understands.
const Version = 0

// MulticastDestination is the fixed MAAP destination MAC, IEEE 1722
// Annex B.
var MulticastDestination = macutil.FromBytes([6]byte{0x91, 0xE0, 0xF0, 0x00, 0xFF, 0x00})

// MessageType is the MAAP message discriminator.
type MessageType uint8

const (
	Probe    MessageType = 1
	Defend   MessageType = 2
	Announce MessageType = 3
)

func (m MessageType) String() string {
	switch m {
	case Probe:
		return "PROBE"
	case Defend:
		return "DEFEND"
	case Announce:
		return "ANNOUNCE"
	default:
		return "UNKNOWN"
	}
}

// controlDataLength is the fixed MAAP PDU payload length field value.
const controlDataLength = 16

// byte offsets within a frame
const (
	offDstMAC          = 0
	offSrcMAC          = 6
	offEtherType       = 12
	offSubtype         = 14
	offVersionMsgType  = 15
	offControlDataLen  = 16
	offStreamID        = 18
	offRequestedStart  = 26
	offRequestedCount  = 32
	offConflictStart   = 34
	offConflictCount   = 40
)

// ErrTruncated indicates the buffer was shorter than a full frame.
var ErrTruncated = errors.New("wire: truncated frame")

// ErrNotMAAP indicates the frame is not a MAAP frame this codec
// understands (wrong ethertype, subtype, version, or message type). Per
// the engine's error-handling rules, frames like this are discarded
// silently by the caller, not surfaced as a notification.
var ErrNotMAAP = errors.New("wire: not a recognized MAAP frame")

// PDU is a decoded MAAP message.
type PDU struct {
	SourceMAC      macutil.Addr
	MessageType    MessageType
	RequestedStart macutil.Addr
	RequestedCount uint16
	ConflictStart  macutil.Addr
	ConflictCount  uint16
}

// Decode parses buf into a PDU. It returns ErrTruncated for a short
// buffer and ErrNotMAAP for anything that isn't a version-0 MAAP frame
// with a known message type; both are meant to be treated identically by
// callers (discard silently).
func Decode(buf []byte) (PDU, error) {
	if len(buf) < FrameLen {
		return PDU{}, ErrTruncated
	}
	if binary.BigEndian.Uint16(buf[offEtherType:]) != EtherType {
		return PDU{}, ErrNotMAAP
	}
	if buf[offSubtype] != Subtype {
		return PDU{}, ErrNotMAAP
	}
	versionMsgType := buf[offVersionMsgType]
	version := versionMsgType >> 4
	msgType := MessageType(versionMsgType & 0x0F)
	if version != Version {
		return PDU{}, ErrNotMAAP
	}
	switch msgType {
	case Probe, Defend, Announce:
	default:
		return PDU{}, ErrNotMAAP
	}

	var srcMAC, reqStart, conflictStart [6]byte
	copy(srcMAC[:], buf[offSrcMAC:offSrcMAC+6])
	copy(reqStart[:], buf[offRequestedStart:offRequestedStart+6])
	copy(conflictStart[:], buf[offConflictStart:offConflictStart+6])

	return PDU{
		SourceMAC:      macutil.FromBytes(srcMAC),
		MessageType:    msgType,
		RequestedStart: macutil.FromBytes(reqStart),
		RequestedCount: binary.BigEndian.Uint16(buf[offRequestedCount:]),
		ConflictStart:  macutil.FromBytes(conflictStart),
		ConflictCount:  binary.BigEndian.Uint16(buf[offConflictCount:]),
	}, nil
}

// Encode writes a frame for p into buf, which must be at least FrameLen
// bytes. It returns the number of bytes written.
func Encode(buf []byte, p PDU) int {
	if len(buf) < FrameLen {
		panic("wire: Encode buffer shorter than FrameLen")
	}
	dst := MulticastDestination.Bytes()
	src := p.SourceMAC.Bytes()
	copy(buf[offDstMAC:], dst[:])
	copy(buf[offSrcMAC:], src[:])
	binary.BigEndian.PutUint16(buf[offEtherType:], EtherType)
	buf[offSubtype] = Subtype
	buf[offVersionMsgType] = byte(p.MessageType) & 0x0F // version 0 in high nibble
	binary.BigEndian.PutUint16(buf[offControlDataLen:], controlDataLength)
	for i := 0; i < 8; i++ {
		buf[offStreamID+i] = 0
	}
	reqStart := p.RequestedStart.Bytes()
	copy(buf[offRequestedStart:], reqStart[:])
	binary.BigEndian.PutUint16(buf[offRequestedCount:], p.RequestedCount)
	conflictStart := p.ConflictStart.Bytes()
	copy(buf[offConflictStart:], conflictStart[:])
	binary.BigEndian.PutUint16(buf[offConflictCount:], p.ConflictCount)
	return FrameLen
}
