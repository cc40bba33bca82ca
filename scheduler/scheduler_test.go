package scheduler

import (
	"testing"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
	"github.com/nanograph/nanograph/node"
)

// countingNode counts how many times it was invoked and always completes
// after CompleteAfter repeats.
type countingNode struct {
	Calls        int
	CompleteAfter int
}

func (c *countingNode) Invoke(_ node.Word, _ []uint32, _ []byte, _ []node.XDM, status *node.Status) error {
	c.Calls++
	if c.Calls >= c.CompleteAfter {
		*status = node.Completed
	} else {
		*status = node.NotCompleted
	}
	return nil
}

// encodeHeader writes one node header (no key, one segment, no boot
// params) matching graph.DecodeHeader's layout, returning the number of
// words written.
func encodeHeader(section []uint32, at int, nodeIndex node.Index, arcs []graph.ArcRef) int {
	w0 := uint32(nodeIndex) << 22
	w0 |= uint32(len(arcs)) << 12 // numArcs
	// numSegments - 1 = 0 -> one segment
	section[at] = w0
	section[at+1] = 0 // word1: no MemProtect/SMPFlush/DebugScript

	off := at + 2
	for i := 0; i < len(arcs); i += 2 {
		var word uint32
		packed0 := uint32(arcs[i].ID & 0x7FF)
		if arcs[i].TX {
			packed0 |= 0x800
		}
		word = packed0
		if i+1 < len(arcs) {
			packed1 := uint32(arcs[i+1].ID & 0x7FF)
			if arcs[i+1].TX {
				packed1 |= 0x800
			}
			word |= packed1 << 16
		}
		section[off] = word
		off++
	}

	// one segment: addr=0, size=0, no flags
	section[off] = 0
	section[off+1] = 0
	off += 2

	// param header: tag=0 preset=0 trace=0 len=0
	section[off] = 0
	off++

	return off - at
}

func encodeTerminal(section []uint32, at int) int {
	section[at] = uint32(graph.TerminalIndex) << 22
	return 1
}

func newTestInstance(t *testing.T, linkedList []uint32, arcWords []uint32, entry map[node.Index]node.Callable) *Instance {
	t.Helper()
	engine := sim.NewSerialEngine()
	reg := instlock.NewRegistry()

	arcs := arc.NewDescriptorTable(arcWords)
	formats := graph.NewFormatTable(make([]uint32, 4))

	cfg := Config{
		Index:       0,
		Codec:       addr.NewCodec([]int64{0}),
		LinkedList:  linkedList,
		Arcs:        arcs,
		Formats:     formats,
		PIOHW:       graph.NewPIOHWTable(nil),
		PIOGraph:    graph.NewPIOGraphTable(nil),
		EntryPoints: entry,
		Registry:    reg,
	}
	return NewInstance("test-instance", engine, 1*sim.GHz, cfg)
}

func TestResetThenRunVisitsEachNodeOnce(t *testing.T) {
	linkedList := make([]uint32, 32)
	n := encodeHeader(linkedList, 0, node.Index(2), []graph.ArcRef{{ID: 0, TX: true}})
	n += encodeHeader(linkedList, n, node.Index(3), nil)
	encodeTerminal(linkedList, n)

	arcWords := make([]uint32, 5)
	d := arc.Descriptor{Size: 100}
	arc.NewDescriptorTable(arcWords).Set(0, d)

	producer := &countingNode{CompleteAfter: 1}
	consumer := &countingNode{CompleteAfter: 1}
	entry := map[node.Index]node.Callable{2: producer, 3: consumer}

	in := newTestInstance(t, linkedList, arcWords, entry)

	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	// RESET itself visits every node once.
	if producer.Calls != 1 || consumer.Calls != 1 {
		t.Fatalf("want one reset call each, got producer=%d consumer=%d", producer.Calls, consumer.Calls)
	}

	if err := in.Interpret(CmdRun, uintptr(EndAllParsed), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if producer.Calls != 2 {
		t.Fatalf("want producer visited once more by run, got %d", producer.Calls)
	}
	if consumer.Calls != 2 {
		t.Fatalf("want consumer visited once more (no arcs => always ready), got %d", consumer.Calls)
	}

	got := in.arcs.Get(0)
	if got.Write != 100 {
		t.Fatalf("want producer to fill the arc (write=100), got %d", got.Write)
	}
}

func TestRunRepeatedBoundsReentry(t *testing.T) {
	linkedList := make([]uint32, 16)
	n := encodeHeader(linkedList, 0, node.Index(5), nil)
	encodeTerminal(linkedList, n)

	stubborn := &countingNode{CompleteAfter: 999}
	entry := map[node.Index]node.Callable{5: stubborn}

	in := newTestInstance(t, linkedList, make([]uint32, 5), entry)
	if err := in.Interpret(CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	afterReset := stubborn.Calls

	if err := in.Interpret(CmdRun, uintptr(EndEachNode), 0, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := stubborn.Calls - afterReset; got != node.MaxRepeat {
		t.Fatalf("want exactly MaxRepeat=%d run calls, got %d", node.MaxRepeat, got)
	}
}
