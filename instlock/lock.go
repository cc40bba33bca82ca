package instlock

import "sync/atomic"

// CollisionByte is the one-byte best-effort mutex embedded in an arc
// descriptor's read word: "write my id, barrier, read it back; on mismatch
// the attempt yields." It is intentionally not a real mutex — concurrent
// writers can race between the write and the read-back, an open question
// the original design never resolved ("a stricter implementation may add a
// second check post-read"). This runtime keeps the best-effort semantics
// and adds the stricter post-read confirmation as an opt-in (see
// TryLockStrict), documented as an Open Question decision in DESIGN.md.
type CollisionByte struct {
	v atomic.Uint32 // holds byte + position as a (whoami, position) pair
}

// pack combines a one-byte owner id with a 24-bit position so the stored
// value records both "who" and "at which node" without widening the arc
// descriptor's collision byte beyond the single byte the image format
// reserves for it (byte stored in bits 24-31, rest unused by the wire
// format; kept here only to make races visible in tests).
func pack(whoami byte, position uint32) uint32 {
	return uint32(whoami)<<24 | (position & 0x00FF_FFFF)
}

// TryLock implements the best-effort sequence: write (whoami, position),
// barrier, read back; succeed iff the value observed still matches what
// was written.
func (c *CollisionByte) TryLock(whoami byte, position uint32) bool {
	want := pack(whoami, position)
	c.v.Store(want)
	// The "data barrier" here is a store-load fence; on
	// single-processor/coherent targets the atomic store/load pair already
	// provides the needed ordering.
	got := c.v.Load()
	return got == want
}

// TryLockStrict performs the same sequence as TryLock, then re-reads a
// second time before the node body would begin executing, closing the
// window that was a probable gap in the original design.
func (c *CollisionByte) TryLockStrict(whoami byte, position uint32) bool {
	if !c.TryLock(whoami, position) {
		return false
	}
	want := pack(whoami, position)
	return c.v.Load() == want
}

// Unlock clears the collision byte, releasing the node for the next visit.
func (c *CollisionByte) Unlock() {
	c.v.Store(0)
}

// Owner returns the whoami byte currently recorded, for diagnostics.
func (c *CollisionByte) Owner() byte {
	return byte(c.v.Load() >> 24)
}
