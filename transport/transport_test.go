package transport

import (
	"testing"

	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/wire"
)

func TestLoopbackRecordsSentFrames(t *testing.T) {
	lb := NewLoopback()
	buf := lb.Buffer()
	n := wire.Encode(buf, wire.PDU{SourceMAC: macutil.Addr(1), MessageType: wire.Probe, RequestedStart: macutil.Addr(10), RequestedCount: 8})
	if err := lb.Send(buf, n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p, ok := lb.LastSent()
	if !ok {
		t.Fatalf("expected a sent frame")
	}
	if p.MessageType != wire.Probe || p.RequestedCount != 8 {
		t.Fatalf("LastSent() = %+v, unexpected contents", p)
	}
	if len(lb.Sent) != 1 {
		t.Fatalf("Sent has %d entries, want 1", len(lb.Sent))
	}
}
