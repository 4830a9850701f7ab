package maap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maapnet/maapd/clock"
	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/notify"
	"github.com/maapnet/maapd/reservation"
	"github.com/maapnet/maapd/transport"
	"github.com/maapnet/maapd/wire"
)

const (
	testPoolBase = macutil.Addr(0x91E0F0000000)
	testPoolLen  = 0xFE00
)

func newTestClient(t *testing.T, localMAC macutil.Addr, seed uint64) (*Client, *clock.Manual, *transport.Loopback) {
	t.Helper()
	mc := clock.NewManual(0)
	lb := transport.NewLoopback()
	c := New(Config{LocalMAC: localMAC, Transport: lb, Clock: mc, RNGSeed: seed})
	require.NoError(t, c.Init(testPoolBase, testPoolLen, reservation.Sender(1)))
	c.Notifications() // drain the INITIALIZED notification
	return c, mc, lb
}

func tickPastNextDeadline(c *Client, mc *clock.Manual) {
	mc.Advance(int64(time.Second))
	c.HandleTimer()
}

func TestS1_CleanAcquire(t *testing.T) {
	c, mc, _ := newTestClient(t, macutil.Addr(0x020000000001), 1)

	id, err := c.Reserve(reservation.Sender(100), 0, true, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.Acquiring, notifs[0].Kind)

	for i := 0; i < 3; i++ {
		tickPastNextDeadline(c, mc)
		assert.Empty(t, c.Notifications(), "no notification expected before the 4th expiry")
	}
	tickPastNextDeadline(c, mc)

	notifs = c.Notifications()
	require.Len(t, notifs, 1)
	got := notifs[0]
	assert.Equal(t, notify.Acquired, got.Kind)
	assert.Equal(t, notify.None, got.Result)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, uint32(8), got.Count)
}

func TestS2_ProbeVsProbeLowerMACWins(t *testing.T) {
	local := macutil.Addr(0x020000000001)
	peer := macutil.Addr(0x020000000002) // numerically higher, we win
	c, mc, lb := newTestClient(t, local, 2)

	id, err := c.Reserve(reservation.Sender(1), testPoolBase, true, 8)
	require.NoError(t, err)
	c.Notifications()

	buf := make([]byte, wire.FrameLen)
	wire.Encode(buf, wire.PDU{SourceMAC: peer, MessageType: wire.Probe, RequestedStart: testPoolBase, RequestedCount: 8})
	c.HandlePacket(buf)

	assert.Empty(t, c.Notifications(), "conflicting probe from a higher MAC must be ignored")

	for i := 0; i < 4; i++ {
		tickPastNextDeadline(c, mc)
	}
	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.Acquired, notifs[0].Kind)
	assert.Equal(t, notify.None, notifs[0].Result)
	assert.Equal(t, id, notifs[0].ID)
	_ = lb
}

func TestS3_ProbeVsProbeHigherMACLoses(t *testing.T) {
	local := macutil.Addr(0x020000000002)
	peer := macutil.Addr(0x020000000000) // numerically lower, we lose
	c, _, _ := newTestClient(t, local, 3)

	id, err := c.Reserve(reservation.Sender(1), 0, true, 8)
	require.NoError(t, err)
	c.Notifications()

	buf := make([]byte, wire.FrameLen)
	wire.Encode(buf, wire.PDU{SourceMAC: peer, MessageType: wire.Probe, RequestedStart: testPoolBase, RequestedCount: 8})
	c.HandlePacket(buf)

	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.Acquiring, notifs[0].Kind)
	assert.Equal(t, id, notifs[0].ID)

	key := c.byID[id]
	res := c.reservations[key]
	require.NotNil(t, res)
	assert.Equal(t, reservation.PROBERetransmits, res.Counter)
	lo, hi, ok := c.intervals.Get(res.Interval)
	require.True(t, ok)
	assert.False(t, lo == 0 && hi == 7, "reassigned interval should not be the original [0,7]")
}

func TestS4_DefendAnswersAProbe(t *testing.T) {
	local := macutil.Addr(0x020000000001)
	peer := macutil.Addr(0x020000000099)
	c, mc, lb := newTestClient(t, local, 4)

	_, err := c.Reserve(reservation.Sender(1), testPoolBase+0x10, true, 8) // [0x10, 0x17]
	require.NoError(t, err)
	c.Notifications()

	for i := 0; i < 4; i++ {
		tickPastNextDeadline(c, mc)
	}
	c.Notifications() // drain ACQUIRED
	lb.Sent = nil

	buf := make([]byte, wire.FrameLen)
	wire.Encode(buf, wire.PDU{SourceMAC: peer, MessageType: wire.Probe, RequestedStart: testPoolBase + 0x14, RequestedCount: 8}) // [0x14, 0x1B]
	c.HandlePacket(buf)

	require.Empty(t, c.Notifications(), "answering a probe with DEFEND produces no notification")
	p, ok := lb.LastSent()
	require.True(t, ok)
	assert.Equal(t, wire.Defend, p.MessageType)
	assert.Equal(t, testPoolBase+0x14, p.ConflictStart)
	assert.Equal(t, uint16(4), p.ConflictCount)
}

func TestS5_YieldToHigherPriorityAnnounce(t *testing.T) {
	local := macutil.Addr(0x020000000002)
	peer := macutil.Addr(0x020000000001) // lower, peer wins
	c, mc, _ := newTestClient(t, local, 5)

	id, err := c.Reserve(reservation.Sender(1), testPoolBase, true, 8)
	require.NoError(t, err)
	c.Notifications()
	for i := 0; i < 4; i++ {
		tickPastNextDeadline(c, mc)
	}
	acquired := c.Notifications()
	require.Len(t, acquired, 1)
	require.Equal(t, notify.Acquired, acquired[0].Kind)
	origLow, origHigh, _ := c.intervals.Get(c.reservations[c.byID[id]].Interval)

	buf := make([]byte, wire.FrameLen)
	wire.Encode(buf, wire.PDU{SourceMAC: peer, MessageType: wire.Announce, RequestedStart: testPoolBase, RequestedCount: 8})
	c.HandlePacket(buf)

	notifs := c.Notifications()
	require.Len(t, notifs, 2)
	assert.Equal(t, notify.Acquiring, notifs[0].Kind)
	assert.Equal(t, id, notifs[0].ID)
	assert.Equal(t, notify.Yielded, notifs[1].Kind)
	assert.Equal(t, id, notifs[1].ID)
	assert.Equal(t, notify.None, notifs[1].Result)

	newKey := c.byID[id]
	newRes := c.reservations[newKey]
	require.NotNil(t, newRes)
	assert.Equal(t, reservation.Probing, newRes.State)
	newLow, newHigh, ok := c.intervals.Get(newRes.Interval)
	require.True(t, ok)
	assert.False(t, newLow == origLow && newHigh == origHigh, "replacement interval must differ from the yielded one")
}

func TestS6_SaturatedPool(t *testing.T) {
	mc := clock.NewManual(0)
	lb := transport.NewLoopback()
	c := New(Config{LocalMAC: macutil.Addr(1), Transport: lb, Clock: mc, RNGSeed: 6})
	require.NoError(t, c.Init(testPoolBase, 16, reservation.Sender(1)))
	c.Notifications()

	id1, err := c.Reserve(reservation.Sender(1), 0, true, 16)
	require.NoError(t, err)
	c.Notifications()

	_, err = c.Reserve(reservation.Sender(1), 0, false, 1)
	assert.ErrorIs(t, err, ErrReserveNotAvailable)
	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.Acquired, notifs[0].Kind)
	assert.Equal(t, notify.ReserveNotAvailable, notifs[0].Result)

	require.NoError(t, c.Release(reservation.Sender(1), id1))
	c.Notifications()

	_, err = c.Reserve(reservation.Sender(1), 0, false, 1)
	assert.NoError(t, err)
}

func TestInitIdempotentReInit(t *testing.T) {
	c, _, _ := newTestClient(t, macutil.Addr(1), 7)
	require.NoError(t, c.Init(testPoolBase, testPoolLen, reservation.Sender(9)))
	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.Initialized, notifs[0].Kind)
	assert.Equal(t, notify.None, notifs[0].Result)
}

func TestReleaseUnknownIDIsInvalid(t *testing.T) {
	c, _, _ := newTestClient(t, macutil.Addr(1), 8)
	err := c.Release(reservation.Sender(1), 999)
	assert.ErrorIs(t, err, ErrReleaseInvalidID)
	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.ReleaseInvalidID, notifs[0].Result)
}

func TestStatusOnlyReportsWhileDefending(t *testing.T) {
	c, mc, _ := newTestClient(t, macutil.Addr(1), 9)
	id, err := c.Reserve(reservation.Sender(1), 0, true, 8)
	require.NoError(t, err)
	c.Notifications()

	c.Status(reservation.Sender(1), id)
	notifs := c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.ReleaseInvalidID, notifs[0].Result, "still probing, not yet defending")

	for i := 0; i < 4; i++ {
		tickPastNextDeadline(c, mc)
	}
	c.Notifications()

	c.Status(reservation.Sender(1), id)
	notifs = c.Notifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, notify.None, notifs[0].Result)
	assert.Equal(t, uint32(8), notifs[0].Count)
}

func TestTimerQueueHasNoDuplicatesAcrossManyReservations(t *testing.T) {
	c, mc, _ := newTestClient(t, macutil.Addr(1), 10)
	for i := 0; i < 50; i++ {
		_, err := c.Reserve(reservation.Sender(uint64(i)), 0, false, 4)
		require.NoError(t, err)
	}
	c.Notifications()

	seen := map[uint32]bool{}
	for i := 0; i < 400 && c.timers.Len() > 0; i++ {
		mc.Advance(int64(200 * time.Millisecond))
		before := map[uint32]bool{}
		for k := range c.reservations {
			before[k] = true
		}
		c.HandleTimer()
		clear(seen)
		for k := range c.reservations {
			if c.timers.Contains(k) {
				seen[k] = true
			}
		}
		require.Equal(t, len(seen), c.timers.Len(), "timer queue holds more entries than distinct scheduled reservations")
	}
	// every tick above checks that the timer queue holds exactly one entry
	// per scheduled reservation; this final tick also checks that the large
	// population is processed without panicking.
	assert.NotPanics(t, func() { c.HandleTimer() })
}

func TestSnapshotReflectsLiveReservations(t *testing.T) {
	c, mc, _ := newTestClient(t, macutil.Addr(1), 11)

	id, err := c.Reserve(reservation.Sender(1), testPoolBase, true, 4)
	require.NoError(t, err)
	c.Notifications()

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].Reservation.ID)
	assert.True(t, snap[0].HasInterval)
	assert.Equal(t, reservation.Probing, snap[0].Reservation.State)

	for i := 0; i < 4; i++ {
		tickPastNextDeadline(c, mc)
	}
	c.Notifications()

	snap = c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, reservation.Defending, snap[0].Reservation.State)
	assert.Equal(t, uint32(0), snap[0].Low)
	assert.Equal(t, uint32(3), snap[0].High)
}

func TestCloseReleasesEngineState(t *testing.T) {
	c, _, _ := newTestClient(t, macutil.Addr(1), 12)

	_, err := c.Reserve(reservation.Sender(1), 0, true, 4)
	require.NoError(t, err)
	c.Notifications()

	c.Close()

	assert.False(t, c.Initialized())
	assert.Empty(t, c.Snapshot())
}
