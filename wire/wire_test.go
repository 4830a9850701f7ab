package wire

import (
	"testing"

	"github.com/maapnet/maapd/macutil"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := macutil.Addr(0x020000000001)
	p := PDU{
		SourceMAC:      src,
		MessageType:    Defend,
		RequestedStart: macutil.Addr(0x91E0F0000010),
		RequestedCount: 8,
		ConflictStart:  macutil.Addr(0x91E0F0000014),
		ConflictCount:  4,
	}
	buf := make([]byte, FrameLen)
	n := Encode(buf, p)
	if n != FrameLen {
		t.Fatalf("Encode wrote %d bytes, want %d", n, FrameLen)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != p {
		t.Fatalf("Decode() = %+v, want %+v", got, p)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); err != ErrTruncated {
		t.Fatalf("Decode(short) = %v, want ErrTruncated", err)
	}
}

func TestDecodeRejectsWrongEtherType(t *testing.T) {
	buf := make([]byte, FrameLen)
	Encode(buf, PDU{SourceMAC: macutil.Addr(1), MessageType: Probe})
	buf[offEtherType] = 0xAB
	if _, err := Decode(buf); err != ErrNotMAAP {
		t.Fatalf("Decode(wrong ethertype) = %v, want ErrNotMAAP", err)
	}
}

func TestDecodeRejectsUnknownMessageType(t *testing.T) {
	buf := make([]byte, FrameLen)
	Encode(buf, PDU{SourceMAC: macutil.Addr(1), MessageType: Probe})
	buf[offVersionMsgType] = 0x0F // version 0, message type 15 (unknown)
	if _, err := Decode(buf); err != ErrNotMAAP {
		t.Fatalf("Decode(unknown message type) = %v, want ErrNotMAAP", err)
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	buf := make([]byte, FrameLen)
	Encode(buf, PDU{SourceMAC: macutil.Addr(1), MessageType: Probe})
	buf[offVersionMsgType] = 0x10 | byte(Probe) // version 1
	if _, err := Decode(buf); err != ErrNotMAAP {
		t.Fatalf("Decode(wrong version) = %v, want ErrNotMAAP", err)
	}
}
