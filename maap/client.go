// ─────────────────────────────────────────────────────────────────────────────
// [Package]: maap — MAAP negotiation engine and client API
//
// Purpose:
//   - Owns the address-interval allocator, per-reservation state machine,
//     timer priority queue, and packet-driven conflict resolver described
//     by IEEE 1722 Annex B.
//   - Exposes the small command surface a host embeds in its own event
//     loop: Init, Reserve, Release, Status, HandlePacket, HandleTimer,
//     DelayToNextTimer.
//
// Notes:
//   - Single-threaded, cooperative: every exported method runs to
//     completion before the next begins. There are no suspension points.
//   - A Reservation's public ID survives a yield; its internal Key does
//     not, which is what lets the outgoing (Released, pending deferred
//     free) record and its replacement coexist without aliasing. See
//     reservation.Reservation's doc comment and DESIGN.md.
// ─────────────────────────────────────────────────────────────────────────────
package maap

import (
	"time"

	"github.com/maapnet/maapd/clock"
	"github.com/maapnet/maapd/intervalset"
	"github.com/maapnet/maapd/macutil"
	"github.com/maapnet/maapd/notify"
	"github.com/maapnet/maapd/reservation"
	"github.com/maapnet/maapd/rng"
	"github.com/maapnet/maapd/timerqueue"
	"github.com/maapnet/maapd/transport"
	"github.com/maapnet/maapd/wire"
)

// Logger is the minimal ambient-logging seam the engine needs. obslog.Logger
// satisfies it; nil is also accepted and silently drops everything.
type Logger interface {
	DropError(msg string, err error)
}

type nopLogger struct{}

func (nopLogger) DropError(string, error) {}

// Pool is the contiguous administrative address range a Client allocates
// from, fixed at Init.
type Pool struct {
	Base macutil.Addr
	Len  uint32
}

// Config are the external collaborators and parameters a Client is built
// from. Transport and Clock are required; Logger and RNGSeed are optional.
type Config struct {
	LocalMAC  macutil.Addr
	Transport transport.Transport
	Clock     clock.Clock
	RNGSeed   uint64
	Logger    Logger
}

// Client is one MAAP negotiation engine instance. The zero value is not
// usable; construct with New. Nothing about a Client is safe for
// concurrent use -- callers own serializing HandlePacket, HandleTimer,
// and command calls onto a single goroutine, exactly as the host's event
// loop already does for everything else it drives.
type Client struct {
	localMAC  macutil.Addr
	transport transport.Transport
	clk       clock.Clock
	rng       *rng.Source
	log       Logger

	initialized bool
	pool        Pool
	intervals   *intervalset.Set
	timers      *timerqueue.Queue

	reservations map[uint32]*reservation.Reservation // keyed by internal Key
	byID         map[uint32]uint32                   // public ID -> current Key
	nextKey      uint32
	nextID       uint32

	notifications notify.Queue
}

// New constructs a Client. Init must be called first: before it, Reserve,
// Release, and Status only emit a REQUIRES_INITIALIZATION notification,
// and HandlePacket and HandleTimer do nothing.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}
	return &Client{
		localMAC:  cfg.LocalMAC,
		transport: cfg.Transport,
		clk:       cfg.Clock,
		rng:       rng.New(cfg.RNGSeed),
		log:       log,
	}
}

// Pool returns the pool this client was initialized with. Its zero value
// is meaningless before Init succeeds.
func (c *Client) Pool() Pool { return c.pool }

// Initialized reports whether Init has succeeded.
func (c *Client) Initialized() bool { return c.initialized }

// Notifications drains every pending notification, in emission order.
func (c *Client) Notifications() []notify.Notification {
	return c.notifications.Drain()
}

// Init sets the pool this client allocates from. Calling it again with
// the identical base and length is a no-op that still emits an
// INITIALIZED(NONE) notification; calling it again with different
// parameters fails without disturbing existing state.
func (c *Client) Init(base macutil.Addr, length uint32, sender reservation.Sender) error {
	if c.initialized {
		if base == c.pool.Base && length == c.pool.Len {
			c.notifications.Push(notify.Notification{Kind: notify.Initialized, Result: notify.None, Sender: sender})
			return nil
		}
		c.notifications.Push(notify.Notification{Kind: notify.Initialized, Result: notify.AlreadyInitialized, Sender: sender})
		return ErrAlreadyInitialized
	}
	c.pool = Pool{Base: base, Len: length}
	c.intervals = intervalset.New(length, uint64(base))
	c.timers = timerqueue.New()
	c.reservations = make(map[uint32]*reservation.Reservation)
	c.byID = make(map[uint32]uint32)
	c.nextKey = 1
	c.nextID = 1
	c.initialized = true
	c.notifications.Push(notify.Notification{Kind: notify.Initialized, Result: notify.None, Sender: sender})
	return nil
}

// Reserve allocates a fresh reservation of length addresses, trying
// preferredBase first when hasPreferred is set, and returns its
// client-visible id.
func (c *Client) Reserve(sender reservation.Sender, preferredBase macutil.Addr, hasPreferred bool, length uint32) (uint32, error) {
	if !c.initialized {
		c.notifications.Push(notify.Notification{Kind: notify.Acquiring, Result: notify.RequiresInitialization, Sender: sender})
		return 0, ErrRequiresInitialization
	}
	if length == 0 || length > c.pool.Len || length > maxReservationLength {
		c.notifications.Push(notify.Notification{Kind: notify.Acquired, Result: notify.ReserveNotAvailable, Sender: sender})
		return 0, ErrReserveNotAvailable
	}

	var prefOffset uint32
	if hasPreferred {
		if preferredBase < c.pool.Base {
			hasPreferred = false
		} else {
			prefOffset = uint32(preferredBase - c.pool.Base)
		}
	}

	handle, ok := c.assignInterval(length, prefOffset, hasPreferred)
	if !ok {
		c.notifications.Push(notify.Notification{Kind: notify.Acquired, Result: notify.ReserveNotAvailable, Sender: sender})
		return 0, ErrReserveNotAvailable
	}

	key := c.nextKey
	c.nextKey++
	id := c.nextID
	c.nextID++

	res := reservation.New(id, sender)
	res.Key = key
	res.Interval = handle
	res.HasInterval = true
	c.intervals.SetOwner(handle, key)
	c.reservations[key] = res
	c.byID[id] = key

	c.pushForReservation(notify.Acquiring, res, handle, notify.None)
	c.scheduleProbe(res)
	c.sendProbe(res.Interval)
	return id, nil
}

// Release aborts reservation id, freeing its interval immediately and
// deferring reclamation of the record to the next timer tick.
func (c *Client) Release(sender reservation.Sender, id uint32) error {
	if !c.initialized {
		c.notifications.Push(notify.Notification{Kind: notify.Released, ID: id, Result: notify.RequiresInitialization, Sender: sender})
		return ErrRequiresInitialization
	}
	key, ok := c.byID[id]
	res := c.reservations[key]
	if !ok || res == nil || res.State == reservation.Released {
		c.notifications.Push(notify.Notification{Kind: notify.Released, ID: id, Result: notify.ReleaseInvalidID, Sender: sender})
		return ErrReleaseInvalidID
	}

	if res.HasInterval {
		c.intervals.Remove(res.Interval)
		res.HasInterval = false
	}
	res.State = reservation.Released
	delete(c.byID, id)
	c.reclaimSoon(res)

	c.notifications.Push(notify.Notification{Kind: notify.Released, ID: id, Result: notify.None, Sender: sender})
	if res.Sender != sender {
		c.notifications.Push(notify.Notification{Kind: notify.Released, ID: id, Result: notify.None, Sender: res.Sender})
	}
	return nil
}

// Status emits the current range for id if it is Defending, else a
// RELEASE_INVALID_ID notification.
func (c *Client) Status(sender reservation.Sender, id uint32) {
	if !c.initialized {
		c.notifications.Push(notify.Notification{Kind: notify.Status, ID: id, Result: notify.RequiresInitialization, Sender: sender})
		return
	}
	key, ok := c.byID[id]
	res := c.reservations[key]
	if !ok || res == nil || res.State != reservation.Defending {
		c.notifications.Push(notify.Notification{Kind: notify.Status, ID: id, Result: notify.ReleaseInvalidID, Sender: sender})
		return
	}
	lo, hi, _ := c.intervals.Get(res.Interval)
	c.notifications.Push(notify.Notification{
		Kind:         notify.Status,
		ID:           id,
		StartAddress: uint64(c.pool.Base) + uint64(lo),
		Count:        hi - lo + 1,
		Result:       notify.None,
		Sender:       sender,
	})
}

// Snapshot returns the current state of every live reservation, in no
// particular order, for a host's inspection surface. It never mutates
// engine state and never appears on the packet/timer hot path.
func (c *Client) Snapshot() []reservation.Snapshot {
	out := make([]reservation.Snapshot, 0, len(c.byID))
	for _, key := range c.byID {
		res := c.reservations[key]
		if res == nil {
			continue
		}
		var lo, hi uint32
		if res.HasInterval {
			lo, hi, _ = c.intervals.Get(res.Interval)
		}
		out = append(out, reservation.Snapshot{
			Reservation: res,
			Low:         lo,
			High:        hi,
			HasInterval: res.HasInterval,
		})
	}
	return out
}

// Close releases the resources held by c: the timer queue, the interval
// set, and the pending notification queue. It does not send any wire
// traffic (in particular, it does not yield outstanding reservations to
// the network) -- a host that wants a clean handoff should Release every
// reservation it owns first. Close exists so a host can discard a Client
// without waiting out every scheduled timer, matching the ancestor
// daemon's explicit teardown call rather than relying on the garbage
// collector to eventually reclaim an idle Client.
func (c *Client) Close() {
	c.timers = nil
	c.intervals = nil
	c.reservations = nil
	c.byID = nil
	c.notifications = notify.Queue{}
	c.initialized = false
}

// HandlePacket decodes buf and drives the conflict resolver. Malformed or
// unrelated frames, and frames disjoint from the pool, are discarded
// silently, matching the engine's error-handling rules.
func (c *Client) HandlePacket(buf []byte) {
	if !c.initialized {
		return
	}
	p, err := wire.Decode(buf)
	if err != nil {
		return
	}
	if p.SourceMAC == c.localMAC {
		// our own transmission looping back; treated as "we win", no action.
		return
	}
	if p.RequestedCount == 0 || c.pool.Len == 0 {
		return
	}
	reqLow := uint64(p.RequestedStart)
	reqHigh := reqLow + uint64(p.RequestedCount) - 1
	poolLow := uint64(c.pool.Base)
	if reqHigh < poolLow || reqLow >= poolLow+uint64(c.pool.Len) {
		return
	}
	if reqLow < poolLow {
		reqLow = poolLow
	}
	low := uint32(reqLow - poolLow)
	count := uint32(reqHigh - reqLow + 1)

	// mark overlaps, in ascending-low order
	var affected []uint32
	for h := c.intervals.Search(low); h != intervalset.Invalid && c.intervals.OverlapCheck(h, low, count); h = c.intervals.Next(h) {
		key := c.intervals.Owner(h)
		if res, ok := c.reservations[key]; ok {
			res.Overlapping = true
			affected = append(affected, key)
		}
	}

	// process overlaps in the same order; each reservation appears at
	// most once here since intervals are disjoint.
	for _, key := range affected {
		res, ok := c.reservations[key]
		if !ok || !res.Overlapping {
			continue
		}
		res.Overlapping = false
		c.applyConflictRule(res, p, low, count)
	}
}

func (c *Client) applyConflictRule(res *reservation.Reservation, p wire.PDU, low, count uint32) {
	switch res.State {
	case reservation.Probing:
		if p.MessageType == wire.Probe && macutil.Less(c.localMAC, p.SourceMAC) {
			return
		}
		c.reassignProbing(res)
	case reservation.Defending:
		if p.MessageType == wire.Probe {
			c.sendDefendIntersection(res, low, count)
			return
		}
		if macutil.Less(c.localMAC, p.SourceMAC) {
			return
		}
		c.yield(res)
	}
}

func (c *Client) reassignProbing(res *reservation.Reservation) {
	lo, hi, _ := c.intervals.Get(res.Interval)
	length := hi - lo + 1
	c.intervals.Remove(res.Interval)
	res.HasInterval = false

	handle, ok := c.assignInterval(length, 0, false)
	if !ok {
		res.State = reservation.Released
		c.pushForReservation(notify.Acquired, res, intervalset.Invalid, notify.ReserveNotAvailable)
		c.reclaimSoon(res)
		return
	}
	res.Interval = handle
	res.HasInterval = true
	c.intervals.SetOwner(handle, res.Key)
	res.Counter = reservation.PROBERetransmits
	c.pushForReservation(notify.Acquiring, res, handle, notify.None)
	c.scheduleProbe(res)
	c.sendProbe(handle)
}

func (c *Client) sendDefendIntersection(res *reservation.Reservation, low, count uint32) {
	lo, hi, ok := c.intervals.Get(res.Interval)
	if !ok {
		return
	}
	interLow, interHigh := lo, hi
	if low > interLow {
		interLow = low
	}
	if reqHigh := low + count - 1; reqHigh < interHigh {
		interHigh = reqHigh
	}
	if interLow > interHigh {
		return
	}
	c.transmit(wire.Defend, c.pool.Base+macutil.Addr(lo), hi-lo+1, c.pool.Base+macutil.Addr(interLow), interHigh-interLow+1)
}

func (c *Client) yield(res *reservation.Reservation) {
	lo, hi, _ := c.intervals.Get(res.Interval)
	length := hi - lo + 1
	oldInterval := res.Interval
	oldID := res.ID
	oldSender := res.Sender

	if handle, ok := c.assignInterval(length, 0, false); ok {
		key := c.nextKey
		c.nextKey++
		replacement := reservation.New(oldID, oldSender)
		replacement.Key = key
		replacement.Interval = handle
		replacement.HasInterval = true
		c.intervals.SetOwner(handle, key)
		c.reservations[key] = replacement
		c.byID[oldID] = key

		c.pushForReservation(notify.Acquiring, replacement, handle, notify.None)
		c.scheduleProbe(replacement)
		c.sendProbe(handle)
		c.notifications.Push(notify.Notification{Kind: notify.Yielded, ID: oldID, Result: notify.None, Sender: oldSender})
	} else {
		c.notifications.Push(notify.Notification{Kind: notify.Yielded, ID: oldID, Result: notify.ReserveNotAvailable, Sender: oldSender})
	}

	c.intervals.Remove(oldInterval)
	res.HasInterval = false
	res.State = reservation.Released
	c.reclaimSoon(res)
}

// HandleTimer drains and processes every reservation whose deadline has
// passed, in non-decreasing deadline order.
func (c *Client) HandleTimer() {
	if !c.initialized {
		return
	}
	now := c.clk.Now()
	for _, key := range c.timers.PopDue(now) {
		res, ok := c.reservations[key]
		if !ok {
			continue
		}
		switch res.State {
		case reservation.Released:
			delete(c.reservations, key)
		case reservation.Probing:
			c.handleProbeExpiry(res)
		case reservation.Defending:
			c.scheduleAnnounce(res)
			c.sendAnnounce(res)
		}
	}
}

func (c *Client) handleProbeExpiry(res *reservation.Reservation) {
	if res.Counter == 0 {
		res.State = reservation.Defending
		c.pushForReservation(notify.Acquired, res, res.Interval, notify.None)
		c.scheduleAnnounce(res)
		c.sendAnnounce(res)
		return
	}
	res.Counter--
	c.scheduleProbe(res)
	c.sendProbe(res.Interval)
}

// DelayToNextTimer reports how long until the earliest scheduled
// reservation is due, or 1 hour if nothing is scheduled.
func (c *Client) DelayToNextTimer() time.Duration {
	if !c.initialized || c.timers.Len() == 0 {
		return time.Duration(idleDelayNanos)
	}
	deadline, _ := c.timers.FrontDeadline()
	now := c.clk.Now()
	if deadline <= now {
		return 0
	}
	return time.Duration(deadline - now)
}

func (c *Client) assignInterval(length, preferredOffset uint32, hasPreferred bool) (intervalset.Handle, bool) {
	if length == 0 || length > c.pool.Len {
		return intervalset.Invalid, false
	}
	if hasPreferred && preferredOffset+length-1 < c.pool.Len {
		if h, ok := c.intervals.Insert(preferredOffset, preferredOffset+length-1); ok {
			return h, true
		}
	}
	span := c.pool.Len - length + 1
	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		start := c.rng.UniformUint32(span)
		if h, ok := c.intervals.Insert(start, start+length-1); ok {
			return h, true
		}
	}
	return intervalset.Invalid, false
}

func (c *Client) reclaimSoon(res *reservation.Reservation) {
	res.NextActTime = c.clk.Now()
	c.timers.Schedule(res.Key, res.NextActTime)
}

func (c *Client) scheduleProbe(res *reservation.Reservation) {
	delayMs := int64(probeIntervalBaseMs + c.rng.UniformInt(1, probeIntervalVariationMs-1))
	res.NextActTime = c.clk.Now() + delayMs*int64(time.Millisecond)
	c.timers.Schedule(res.Key, res.NextActTime)
}

func (c *Client) scheduleAnnounce(res *reservation.Reservation) {
	delayMs := int64(announceIntervalBaseMs + c.rng.UniformInt(1, announceIntervalVariationMs-1))
	res.NextActTime = c.clk.Now() + delayMs*int64(time.Millisecond)
	c.timers.Schedule(res.Key, res.NextActTime)
}

func (c *Client) sendProbe(handle intervalset.Handle) {
	lo, hi, ok := c.intervals.Get(handle)
	if !ok {
		return
	}
	c.transmit(wire.Probe, c.pool.Base+macutil.Addr(lo), hi-lo+1, 0, 0)
}

func (c *Client) sendAnnounce(res *reservation.Reservation) {
	lo, hi, ok := c.intervals.Get(res.Interval)
	if !ok {
		return
	}
	c.transmit(wire.Announce, c.pool.Base+macutil.Addr(lo), hi-lo+1, 0, 0)
}

func (c *Client) transmit(msgType wire.MessageType, start macutil.Addr, count uint32, conflictStart macutil.Addr, conflictCount uint32) {
	if c.transport == nil {
		return
	}
	buf := c.transport.Buffer()
	n := wire.Encode(buf, wire.PDU{
		SourceMAC:      c.localMAC,
		MessageType:    msgType,
		RequestedStart: start,
		RequestedCount: uint16(count),
		ConflictStart:  conflictStart,
		ConflictCount:  uint16(conflictCount),
	})
	if err := c.transport.Send(buf, n); err != nil {
		c.log.DropError("maap: transmit failed", err)
	}
}

func (c *Client) pushForReservation(kind notify.Kind, res *reservation.Reservation, handle intervalset.Handle, result notify.Result) {
	var start uint64
	var count uint32
	if handle != intervalset.Invalid {
		if lo, hi, ok := c.intervals.Get(handle); ok {
			start = uint64(c.pool.Base) + uint64(lo)
			count = hi - lo + 1
		}
	}
	c.notifications.Push(notify.Notification{
		Kind:         kind,
		ID:           res.ID,
		StartAddress: start,
		Count:        count,
		Result:       result,
		Sender:       res.Sender,
	})
}
