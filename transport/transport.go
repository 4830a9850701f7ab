// ─────────────────────────────────────────────────────────────────────────────
// [Package]: transport — link-layer packet delivery for MAAP frames
//
// Purpose:
//   - Provides the network collaborator described by the negotiation
//     engine's external interface: get a writable buffer, queue it for
//     transmission, and deliver received frames back to the caller.
//   - The engine itself never touches a socket; it is handed a Transport
//     and treats send/receive as synchronous, always-succeeds-or-logs
//     operations, exactly as specified.
//
// Notes:
//   - Raw sends use AF_PACKET/SOCK_RAW with ETH_P_ALL, mirroring the
//     socket-tuning style this codebase's ancestor used for its own
//     ingestion socket (see main_linux.go), but bound to a specific
//     interface and multicast group instead of a remote TCP endpoint.
//   - Loopback is an in-memory test double: no real interface required.
// ─────────────────────────────────────────────────────────────────────────────
package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/maapnet/maapd/wire"
)

// Transport is what the negotiation engine needs from the link layer.
type Transport interface {
	// Buffer returns a writable scratch buffer of at least wire.FrameLen
	// bytes. Its contents are undefined; callers must fill every byte
	// they care about before calling Send.
	Buffer() []byte
	// Send transmits the first n bytes of buf (as returned by Buffer).
	// Errors are for logging only; the engine's state machine does not
	// branch on them.
	Send(buf []byte, n int) error
	// Close releases the underlying socket, if any.
	Close() error
}

// RawSocket sends and receives MAAP frames over a real Ethernet interface
// using an AF_PACKET raw socket, joined to the MAAP multicast group.
type RawSocket struct {
	fd        int
	ifIndex   int
	ifaceName string
	scratch   [wire.FrameLen]byte
}

// NewRawSocket opens a raw AF_PACKET socket bound to ifaceName and joins
// the MAAP multicast destination so PROBE/DEFEND/ANNOUNCE frames from
// peers are delivered to this process.
func NewRawSocket(ifaceName string) (*RawSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("transport: lookup interface %q: %w", ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("transport: open raw socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind interface %q: %w", ifaceName, err)
	}

	dst := wire.MulticastDestination.Bytes()
	mreq := unix.PacketMreq{
		Ifindex: int32(iface.Index),
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
	}
	copy(mreq.Address[:], dst[:])
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: join multicast group: %w", err)
	}

	return &RawSocket{fd: fd, ifIndex: iface.Index, ifaceName: ifaceName}, nil
}

// Buffer returns the socket's scratch frame buffer.
func (r *RawSocket) Buffer() []byte { return r.scratch[:] }

// Send writes buf[:n] onto the wire.
func (r *RawSocket) Send(buf []byte, n int) error {
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  r.ifIndex,
		Halen:    6,
	}
	dst := wire.MulticastDestination.Bytes()
	copy(addr.Addr[:], dst[:])
	if err := unix.Sendto(r.fd, buf[:n], 0, &addr); err != nil {
		return fmt.Errorf("transport: sendto %s: %w", r.ifaceName, err)
	}
	return nil
}

// Receive blocks for the next frame on the socket and returns the number
// of bytes read into the socket's scratch buffer.
func (r *RawSocket) Receive() (int, error) {
	n, _, err := unix.Recvfrom(r.fd, r.scratch[:], 0)
	if err != nil {
		return 0, fmt.Errorf("transport: recvfrom %s: %w", r.ifaceName, err)
	}
	return n, nil
}

// Close releases the raw socket.
func (r *RawSocket) Close() error {
	return unix.Close(r.fd)
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | v>>8
}

// Loopback is an in-memory Transport double for tests: sent frames are
// appended to Sent and never delivered anywhere, matching the engine's
// contract that transmission outcome is irrelevant to the state machine.
type Loopback struct {
	Sent    [][]byte
	scratch [wire.FrameLen]byte
}

// NewLoopback returns an empty Loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Buffer() []byte { return l.scratch[:] }

func (l *Loopback) Send(buf []byte, n int) error {
	cp := make([]byte, n)
	copy(cp, buf[:n])
	l.Sent = append(l.Sent, cp)
	return nil
}

func (l *Loopback) Close() error { return nil }

// LastSent decodes the most recently sent frame, or reports ok=false if
// nothing has been sent.
func (l *Loopback) LastSent() (wire.PDU, bool) {
	if len(l.Sent) == 0 {
		return wire.PDU{}, false
	}
	p, err := wire.Decode(l.Sent[len(l.Sent)-1])
	if err != nil {
		return wire.PDU{}, false
	}
	return p, true
}
