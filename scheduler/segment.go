package scheduler

import (
	"log/slog"

	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/node"
)

// SegmentMemory supplies the real byte-addressable storage backing a
// node's memory segments, so preprocessing/postprocessing can zero and
// swap them for real. A nil SegmentMemory (the default) makes these steps
// pure bookkeeping, the same "no backing store attached" idiom as
// arc.Mover and ioack.Mover.
type SegmentMemory interface {
	// ArcBuffer returns a ByteMover over the named arc's own backing
	// buffer, for the SWAP case.
	ArcBuffer(arcID uint16) arc.ByteMover
	// Segment returns the live backing bytes for segment i (0-based) of
	// node idx, sized to n bytes.
	Segment(idx node.Index, i int, n int) []byte
	// Zero clears n bytes of segment i (0-based) of node idx in place.
	Zero(idx node.Index, i int, n int)
}

// preprocessSegments implements step 5 of the per-node RUN visit, and the
// RESET phase's memory-bank preparation: invalidate SMP-flushed segments,
// zero WORK segments (always) and CLEAR_AT_RESET segments (only when this
// visit is itself a reset), and swap SWAP segments in from their
// designated arc buffer. The swap-in only happens on a RUN visit: it is
// paired with postprocessSegments' swap-back, and RESET has no matching
// post-processing step to undo it.
func (in *Instance) preprocessSegments(h *graph.NodeHeader, isReset bool) {
	if h.SMPFlush {
		in.mpBarrier.Invalidate()
	}
	for i, seg := range h.Segments {
		switch {
		case seg.Flags.Swap && !isReset:
			in.swapSegment(h.NodeIndex, i, seg)
		case seg.Flags.Work:
			in.zeroSegment(h.NodeIndex, i, seg.Size)
		case seg.Flags.ClearAtReset && isReset:
			in.zeroSegment(h.NodeIndex, i, seg.Size)
		}
	}
}

// postprocessSegments implements step 9's "swap back, cache-clean": every
// SWAP segment is exchanged with its arc a second time, restoring both
// sides, then SMP-flushed segments are cache-cleaned.
func (in *Instance) postprocessSegments(h *graph.NodeHeader) {
	for i, seg := range h.Segments {
		if seg.Flags.Swap {
			in.swapSegment(h.NodeIndex, i, seg)
		}
	}
	if h.SMPFlush {
		in.mpBarrier.Clean()
	}
}

func (in *Instance) zeroSegment(idx node.Index, i int, size int) {
	if in.segMem == nil {
		return
	}
	in.segMem.Zero(idx, i, size)
}

func (in *Instance) swapSegment(idx node.Index, i int, seg graph.Segment) {
	if in.segMem == nil {
		return
	}
	d := in.arcs.Get(seg.SwapArc.ID)
	mover := in.segMem.ArcBuffer(seg.SwapArc.ID)
	if mover == nil {
		return
	}
	buf := in.segMem.Segment(idx, i, int(d.Size))
	if buf == nil {
		slog.Warn("nanograph: no segment buffer for swap", "node", idx, "segment", i, "arc", seg.SwapArc.ID)
		return
	}
	d.SwapWith(mover, buf)
}

// InMemorySegments is a reference SegmentMemory backed by plain Go byte
// slices, keyed per node/segment and per arc: the default wiring for
// cmd/nanographsim and for tests, standing in for whatever real fast
// memory and arc buffers a platform attaches.
type InMemorySegments struct {
	segments map[node.Index]map[int][]byte
	arcs     map[uint16]*byteSliceMover
}

// NewInMemorySegments builds an empty reference SegmentMemory.
func NewInMemorySegments() *InMemorySegments {
	return &InMemorySegments{
		segments: make(map[node.Index]map[int][]byte),
		arcs:     make(map[uint16]*byteSliceMover),
	}
}

// Segment implements SegmentMemory, lazily allocating (and zero-filling,
// on first touch) n bytes per node/segment-index pair.
func (m *InMemorySegments) Segment(idx node.Index, i int, n int) []byte {
	byIdx, ok := m.segments[idx]
	if !ok {
		byIdx = make(map[int][]byte)
		m.segments[idx] = byIdx
	}
	buf, ok := byIdx[i]
	if !ok || len(buf) != n {
		buf = make([]byte, n)
		byIdx[i] = buf
	}
	return buf
}

// Zero implements SegmentMemory.
func (m *InMemorySegments) Zero(idx node.Index, i int, n int) {
	buf := m.Segment(idx, i, n)
	for j := range buf {
		buf[j] = 0
	}
}

// ArcBuffer implements SegmentMemory, lazily allocating an empty backing
// buffer for the named arc the first time it is asked for; the buffer grows
// to cover whatever range a later copy touches.
func (m *InMemorySegments) ArcBuffer(arcID uint16) arc.ByteMover {
	buf, ok := m.arcs[arcID]
	if !ok {
		buf = &byteSliceMover{}
		m.arcs[arcID] = buf
	}
	return buf
}

// byteSliceMover implements arc.ByteMover over a plain, growable byte
// slice.
type byteSliceMover struct{ data []byte }

func (b *byteSliceMover) ensure(n int) {
	if len(b.data) < n {
		grown := make([]byte, n)
		copy(grown, b.data)
		b.data = grown
	}
}

// CopyOut implements arc.ByteMover.
func (b *byteSliceMover) CopyOut(dst []byte, off int) {
	b.ensure(off + len(dst))
	copy(dst, b.data[off:off+len(dst)])
}

// CopyIn implements arc.ByteMover.
func (b *byteSliceMover) CopyIn(off int, src []byte) {
	b.ensure(off + len(src))
	copy(b.data[off:off+len(src)], src)
}
