package scheduler

import (
	"testing"

	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/node"
)

// encodeHeaderWithSegment writes one node header with no arcs and one
// memory segment carrying the given flags and (when swap is set) the
// given swap arc id, matching graph.DecodeHeader's layout.
func encodeHeaderWithSegment(section []uint32, at int, nodeIndex node.Index, work, clearAtReset, swap bool, swapArcID uint16) int {
	w0 := uint32(nodeIndex) << 22
	section[at] = w0
	section[at+1] = 0

	off := at + 2
	var sizeWord uint32
	if swap {
		sizeWord = 1 << 29
		sizeWord |= uint32(swapArcID) & 0x7FF
	} else {
		sizeWord = 4 << 8 // segment size in bytes, addr.PackedSize-encoded at ext 0
		if work {
			sizeWord |= 1 << 30
		}
		if clearAtReset {
			sizeWord |= 1 << 31
		}
	}
	section[off] = 0 // segment address
	section[off+1] = sizeWord
	off += 2

	section[off] = 0 // param header
	off++

	return off - at
}

func TestPreprocessSegmentsZeroesWorkEveryVisit(t *testing.T) {
	linkedList := make([]uint32, 16)
	n := encodeHeaderWithSegment(linkedList, 0, node.Index(1), true, false, false, 0)
	encodeTerminal(linkedList, n)

	node1 := &countingNode{CompleteAfter: 1}
	in := newTestInstance(t, linkedList, make([]uint32, 5), map[node.Index]node.Callable{1: node1})
	mem := NewInMemorySegments()
	in.SetSegmentMemory(mem)

	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}

	buf := mem.Segment(1, 0, 4)
	for i := range buf {
		buf[i] = 0xFF
	}

	if err := in.Interpret(CmdRun, uintptr(EndAllParsed), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := mem.Segment(1, 0, 4)
	for i, b := range got {
		if b != 0 {
			t.Fatalf("want WORK segment zeroed before the RUN visit, byte %d = %d", i, b)
		}
	}
}

func TestPreprocessSegmentsClearAtResetOnlyOnReset(t *testing.T) {
	linkedList := make([]uint32, 16)
	n := encodeHeaderWithSegment(linkedList, 0, node.Index(1), false, true, false, 0)
	encodeTerminal(linkedList, n)

	node1 := &countingNode{CompleteAfter: 1}
	in := newTestInstance(t, linkedList, make([]uint32, 5), map[node.Index]node.Callable{1: node1})
	mem := NewInMemorySegments()
	in.SetSegmentMemory(mem)

	buf := mem.Segment(1, 0, 4)
	for i := range buf {
		buf[i] = 0xAB
	}

	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	afterReset := mem.Segment(1, 0, 4)
	for i, b := range afterReset {
		if b != 0 {
			t.Fatalf("want CLEAR_AT_RESET segment zeroed by reset, byte %d = %d", i, b)
		}
	}

	for i := range afterReset {
		afterReset[i] = 0xCD
	}
	if err := in.Interpret(CmdRun, uintptr(EndAllParsed), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	afterRun := mem.Segment(1, 0, 4)
	for i, b := range afterRun {
		if b != 0xCD {
			t.Fatalf("want CLEAR_AT_RESET segment untouched by a plain RUN visit, byte %d = %d", i, b)
		}
	}
}

func TestSwapSegmentExchangesWithArcAndRestores(t *testing.T) {
	linkedList := make([]uint32, 16)
	n := encodeHeaderWithSegment(linkedList, 0, node.Index(1), false, false, true, 0)
	encodeTerminal(linkedList, n)

	arcWords := make([]uint32, 5)
	arc.NewDescriptorTable(arcWords).Set(0, arc.Descriptor{Size: 4})

	node1 := &countingNode{CompleteAfter: 1}
	in := newTestInstance(t, linkedList, arcWords, map[node.Index]node.Callable{1: node1})
	mem := NewInMemorySegments()
	in.SetSegmentMemory(mem)

	segBuf := mem.Segment(1, 0, 4)
	copy(segBuf, []byte{1, 2, 3, 4})
	arcBuf := mem.ArcBuffer(0)
	arcBuf.CopyIn(0, []byte{9, 8, 7, 6})

	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// RESET has no matching post-processing step, so it never swaps: both
	// buffers must still hold their original contents.
	afterReset := make([]byte, 4)
	arcBuf.CopyOut(afterReset, 0)
	if afterReset[0] != 9 {
		t.Fatalf("want arc buffer untouched by reset, got %v", afterReset)
	}
	if segAfterReset := mem.Segment(1, 0, 4); segAfterReset[0] != 1 {
		t.Fatalf("want segment buffer untouched by reset, got %v", segAfterReset)
	}

	if err := in.Interpret(CmdRun, uintptr(EndAllParsed), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	// A RUN visit's preprocess (swap in) and postprocess (swap back) are a
	// matched pair: both buffers end up exactly where they started.
	afterRun := make([]byte, 4)
	arcBuf.CopyOut(afterRun, 0)
	if afterRun[0] != 9 {
		t.Fatalf("want arc buffer restored after pre+post swap, got %v", afterRun)
	}
	if segAfterRun := mem.Segment(1, 0, 4); segAfterRun[0] != 1 {
		t.Fatalf("want segment buffer restored after pre+post swap, got %v", segAfterRun)
	}
}

func TestSMPFlushInvalidatesAndCleansBarrier(t *testing.T) {
	linkedList := make([]uint32, 16)
	n := encodeHeaderWithSMPFlush(linkedList, 0, node.Index(1))
	encodeTerminal(linkedList, n)

	node1 := &countingNode{CompleteAfter: 1}
	in := newTestInstance(t, linkedList, make([]uint32, 5), map[node.Index]node.Callable{1: node1})

	barrier := &recordingBarrierForSegments{}
	in.SetBarrier(barrier)

	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := in.Interpret(CmdRun, uintptr(EndAllParsed), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if barrier.Invalidations == 0 {
		t.Fatal("want SMP-flush node to invalidate the barrier")
	}
	if barrier.Cleans == 0 {
		t.Fatal("want SMP-flush node to clean the barrier")
	}
}

// encodeHeaderWithSMPFlush writes one node header with the SMPFlush bit
// set and a single, flagless memory segment.
func encodeHeaderWithSMPFlush(section []uint32, at int, nodeIndex node.Index) int {
	w0 := uint32(nodeIndex) << 22
	section[at] = w0
	section[at+1] = 0x2 // SMPFlush bit

	off := at + 2
	section[off] = 0
	section[off+1] = 0
	off += 2

	section[off] = 0
	off++

	return off - at
}

// recordingBarrierForSegments is a local arc.Barrier recorder with the same
// two counters as arc.RecordingBarrier.
type recordingBarrierForSegments struct {
	Invalidations int
	Cleans        int
}

func (b *recordingBarrierForSegments) Invalidate() { b.Invalidations++ }
func (b *recordingBarrierForSegments) Clean()      { b.Cleans++ }
