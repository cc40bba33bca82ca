// Package arc implements the ring-buffer arc descriptor: the single-producer
// single-consumer byte queue that connects graph nodes. An arc's five
// machine words (base, size, read, write, fmt) are modeled here as a struct
// with bit-accessor flags, while keeping the marshal/unmarshal path
// available so a binary graph image produced by the (out-of-scope) graph
// compiler loads unchanged.
package arc

import (
	"fmt"

	"github.com/nanograph/nanograph/addr"
)

// Descriptor is one arc: a byte ring buffer plus the flags packed into each
// of its five words.
type Descriptor struct {
	Base addr.Packed // packed base address of the buffer

	HighQoS        bool // base word flag: overrides "all arcs ready"
	MultiprocFlush bool // base word flag: MPFLUSH discipline applies

	Size uint32 // byte length of the buffer

	ResetDone bool // size word flag: node already reset by a sibling instance
	NewParam  bool // size word flag: a SET_PARAMETER is pending for this node

	Read      uint32 // read index in bytes
	Collision byte   // MSB byte of the read word: best-effort owner/whoami

	Write            uint32 // write index in bytes
	AlignmentBlocked bool   // producer ran out of buffer tail

	ProducerFmt int // producer format-table index
	ConsumerFmt int // consumer format-table index
	DebugScript int // debug-script index, 0 = none
}

// Frame is the per-arc information a format entry contributes: the byte size
// of one producer or consumer frame. The frame-size tables themselves live
// in package graph; the arc engine only ever needs these two values.
type Frame struct {
	ProducerSize int
	ConsumerSize int
}

// checkInvariant panics if the arc descriptor violates the core
// read<=write<=size ordering invariant. The readiness checks, AdvanceWrite,
// AdvanceRead, RealignToBase and SwapWith call it defensively.
func (d *Descriptor) checkInvariant() {
	if !(0 <= d.Read && d.Read <= d.Write && d.Write <= d.Size) {
		panic(fmt.Sprintf("arc: invariant violated: read=%d write=%d size=%d", d.Read, d.Write, d.Size))
	}
}

// Available returns the number of unread bytes.
func (d *Descriptor) Available() uint32 { return d.Write - d.Read }

// Free returns the number of bytes of free room at the tail.
func (d *Descriptor) Free() uint32 { return d.Size - d.Write }

// ReadyForWrite reports whether the arc has room for one producer frame.
func (d *Descriptor) ReadyForWrite(f Frame) (ok bool, free uint32) {
	d.checkInvariant()
	free = d.Free()
	return free >= uint32(f.ProducerSize), free
}

// ReadyForRead reports whether the arc has at least one consumer frame of
// data available.
func (d *Descriptor) ReadyForRead(f Frame) (ok bool, avail uint32) {
	d.checkInvariant()
	avail = d.Available()
	return avail >= uint32(f.ConsumerSize), avail
}

// WriteAddress returns the linear address the producer should write to next.
func (d *Descriptor) WriteAddress(c *addr.Codec) (int64, error) {
	base, err := c.PackToLinear(d.Base)
	if err != nil {
		return 0, err
	}
	return base + int64(d.Write), nil
}

// ReadAddress returns the linear address the consumer should read from next.
func (d *Descriptor) ReadAddress(c *addr.Codec) (int64, error) {
	base, err := c.PackToLinear(d.Base)
	if err != nil {
		return 0, err
	}
	return base + int64(d.Read), nil
}

// AdvanceWrite moves the write index forward by n bytes (the producer just
// committed n bytes), then sets ALIGNMENT-BLOCKED if the remaining tail can
// no longer hold one more producer frame.
func (d *Descriptor) AdvanceWrite(n uint32, f Frame) {
	d.checkInvariant()
	d.Write += n
	if d.Size-d.Write < uint32(f.ProducerSize) {
		d.AlignmentBlocked = true
	}
	d.checkInvariant()
}

// AdvanceRead moves the read index forward by n bytes (the consumer just
// consumed n bytes), then realigns to base if the producer's frame no
// longer fits in the remaining tail. buf performs the actual byte shift for
// the realign step; pass nil when only index arithmetic is under test.
func (d *Descriptor) AdvanceRead(buf Mover, n uint32, f Frame) {
	d.checkInvariant()
	d.Read += n
	if d.Write > d.Size-uint32(f.ProducerSize) {
		d.RealignToBase(buf, nil)
	}
	d.checkInvariant()
}

// Mover copies (or moves) raw bytes; RealignToBase and SwapWith use it so
// callers can plug in a real memmove over a backing buffer in tests or a
// platform memcpy in production. A nil Mover means "no backing store
// attached" (used by pure index-arithmetic tests).
type Mover interface {
	Copy(dstOff, srcOff int, n uint32)
}

// RealignToBase copies [read, write) down to offset 0, clearing the
// ALIGNMENT-BLOCKED flag. If buf is non-nil it performs the actual byte
// shift; no copy is made when read is already 0 or no bytes are unread.
// The *addr.Codec parameter is unused.
func (d *Descriptor) RealignToBase(buf Mover, _ *addr.Codec) {
	d.checkInvariant()
	n := d.Write - d.Read
	if buf != nil && d.Read != 0 && n != 0 {
		buf.Copy(0, int(d.Read), n)
	}
	d.Read = 0
	d.Write = n
	d.AlignmentBlocked = false
	d.checkInvariant()
}

// ByteMover is the byte-addressable counterpart to Mover: CopyIn writes
// bytes into the arc's own backing buffer at a byte offset, CopyOut reads
// bytes out of it, the same shape ioack.Mover uses at the driver boundary.
// SwapWith uses this to exchange with a directly-addressable external
// []byte instead of another offset-relative buffer.
type ByteMover interface {
	CopyIn(off int, src []byte)
	CopyOut(dst []byte, off int)
}

// SwapWith exchanges len(external) bytes at base+read with an external
// buffer, used for the node memory-segment SWAP flag: after the call,
// external holds what used to be at base+read and the arc's own buffer
// holds what used to be in external. Called once before the node runs and
// once after, the second call restores both sides to their pre-swap
// contents. A nil buf leaves external untouched, the same "no backing
// store attached" idiom as RealignToBase.
func (d *Descriptor) SwapWith(buf ByteMover, external []byte) {
	d.checkInvariant()
	if buf == nil {
		return
	}
	old := make([]byte, len(external))
	buf.CopyOut(old, int(d.Read))
	buf.CopyIn(int(d.Read), external)
	copy(external, old)
}

// Rebase replaces base and size and resets read/write to empty, used by
// SET_BUFFER mode in the IO acknowledgement path.
func (d *Descriptor) Rebase(base addr.Packed, size uint32) {
	d.Base = base
	d.Size = size
	d.Read = 0
	d.Write = 0
	d.AlignmentBlocked = false
}

// GoReady reports this one arc's readiness: ReadyForRead for an RX arc,
// ReadyForWrite for a TX arc. It does not look at HighQoS; the node-level
// HIGH_QOS override across all of a node's arcs is applied by the
// scheduler's nodeReady.
func (d *Descriptor) GoReady(isRX bool, f Frame) bool {
	if isRX {
		ok, _ := d.ReadyForRead(f)
		return ok
	}
	ok, _ := d.ReadyForWrite(f)
	return ok
}
