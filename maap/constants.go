package maap

// constants.go — MAAP timing tunables, IEEE 1722 Annex B.3.4.

// ───────────────────────────── Probe timing ────────────────────────────────

const (
	// probeIntervalBaseMs is PROBE_INTERVAL_BASE, Annex B.3.4.1.
	probeIntervalBaseMs = 500

	// probeIntervalVariationMs is PROBE_INTERVAL_VARIATION, Annex B.3.4.1.
	// The random jitter added to probeIntervalBaseMs is drawn from
	// [1, probeIntervalVariationMs-1] inclusive, matching the reference
	// implementation's rand_ms rather than a "corrected" [1, variation];
	// see DESIGN.md for why this is preserved rather than fixed.
	probeIntervalVariationMs = 100
)

// ──────────────────────────── Announce timing ──────────────────────────────

const (
	// announceIntervalBaseMs is ANNOUNCE_INTERVAL_BASE, Annex B.3.4.2.
	announceIntervalBaseMs = 30000

	// announceIntervalVariationMs is ANNOUNCE_INTERVAL_VARIATION, Annex B.3.4.2.
	announceIntervalVariationMs = 2000
)

// maxAssignAttempts bounds assignInterval's random-placement search: one
// preferred-base attempt plus this many random attempts, capping the
// worst case cost of allocating from a saturated pool.
const maxAssignAttempts = 1000

// maxReservationLength is the hard ceiling on a single reservation's
// size, independent of pool size: reserve() must also satisfy
// length <= min(pool_len, maxReservationLength).
const maxReservationLength = 65535

// idleDelayNanos is what DelayToNextTimer reports when no timer is armed.
const idleDelayNanos = int64(3600_000_000_000) // 1 hour
