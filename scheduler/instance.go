// Package scheduler implements the cooperative, non-preemptive interpreter
// loop: one Instance owns a bank-offset table, the decoded arc/format/IO
// tables of its graph image, and a cursor into the LINKED-LIST section,
// walking it node by node on each RUN.
package scheduler

import (
	"sync"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
	"github.com/nanograph/nanograph/ioack"
	"github.com/nanograph/nanograph/node"
)

// Control holds the per-instance interpreter knobs: the current return
// policy and the RESET extension (cold boot / warm boot / dyn malloc) that
// governed the last reset.
type Control struct {
	Policy       ReturnPolicy
	ResetKind    node.Extension
	Architecture uint8 // 0 = accept any architecture
	Processor    uint8 // 0 = accept any processor
	MinPriority  uint8
}

// Instance is one scheduler instance: the unit of a single-core (or,
// cooperating over a shared image, multi-core) interpreter's state.
type Instance struct {
	*sim.TickingComponent

	idx  uint8
	name string

	codec *addr.Codec

	image      *graph.Image
	linkedList []uint32

	arcs     *arc.DescriptorTable
	formats  graph.FormatTable
	pioHW    graph.PIOHWTable
	pioGraph graph.PIOGraphTable

	entryPoints map[node.Index]node.Callable
	flags       map[node.Index]*node.ExecutingFlag

	reg     *instlock.Registry
	barrier *instlock.Barrier
	locks   map[node.Index]*instlock.CollisionByte
	stats   *ioack.Stats

	mu sync.Mutex

	cursor  int // word offset of the node header currently, or next, visited
	control Control

	ioMask         uint64          // IOMask: bit i set means graph IO i wants a driver pump
	ongoingAsyncIO map[int]bool    // per graph-IO "request in flight"
	instanceMem    map[node.Index][]uint32
	paramPending   map[node.Index][]byte // one-slot SET_PARAMETER queue, oldest overwritten

	errorLog errorBits

	resetDone map[node.Index]bool

	mpBarrier arc.Barrier   // MPFLUSH cache barrier; arc.NoopBarrier{} by default
	ioPort    sim.Port      // boundary-pump destination; nil if unattached
	segMem    SegmentMemory // memory-segment pre/post-processing backing store; nil disables byte-level effects
}

// errorBits is the fatal-error bitset, one bit per node index.
type errorBits uint64

// Set marks idx's bit fatal.
func (e *errorBits) Set(idx node.Index) { *e |= errorBits(1) << (uint(idx) % 64) }

// Has reports whether idx's bit is set.
func (e errorBits) Has(idx node.Index) bool { return e&(errorBits(1)<<(uint(idx)%64)) != 0 }

// Config bundles the decoded-image handles an Instance needs at
// construction, grounded on config.DeviceBuilder's build-time wiring.
type Config struct {
	Index       uint8
	Codec       *addr.Codec
	Image       *graph.Image
	LinkedList  []uint32
	Arcs        *arc.DescriptorTable
	Formats     graph.FormatTable
	PIOHW       graph.PIOHWTable
	PIOGraph    graph.PIOGraphTable
	EntryPoints map[node.Index]node.Callable
	Registry    *instlock.Registry
	Barrier     *instlock.Barrier
	SegmentMem  SegmentMemory // optional; nil disables segment pre/post-processing's byte-level effects
}

// NewInstance builds an Instance and ticks it on engine at freq.
func NewInstance(name string, engine sim.Engine, freq sim.Freq, cfg Config) *Instance {
	in := &Instance{
		idx:            cfg.Index,
		name:           name,
		codec:          cfg.Codec,
		image:          cfg.Image,
		linkedList:     cfg.LinkedList,
		arcs:           cfg.Arcs,
		formats:        cfg.Formats,
		pioHW:          cfg.PIOHW,
		pioGraph:       cfg.PIOGraph,
		entryPoints:    cfg.EntryPoints,
		flags:          make(map[node.Index]*node.ExecutingFlag),
		reg:            cfg.Registry,
		barrier:        cfg.Barrier,
		locks:          make(map[node.Index]*instlock.CollisionByte),
		stats:          ioack.NewStats(),
		ongoingAsyncIO: make(map[int]bool),
		instanceMem:    make(map[node.Index][]uint32),
		paramPending:   make(map[node.Index][]byte),
		resetDone:      make(map[node.Index]bool),
		mpBarrier:      arc.NoopBarrier{},
		segMem:         cfg.SegmentMem,
	}
	in.TickingComponent = sim.NewTickingComponent(name, engine, freq, in)
	if in.reg != nil {
		in.reg.Register(in)
	}
	return in
}

// InstanceIndex implements instlock.Instance and ioack.Context.
func (in *Instance) InstanceIndex() uint8 { return in.idx }

// Codec implements ioack.Context.
func (in *Instance) Codec() *addr.Codec { return in.codec }

// Arcs implements ioack.Context.
func (in *Instance) Arcs() *arc.DescriptorTable { return in.arcs }

// Formats implements ioack.Context.
func (in *Instance) Formats() graph.FormatTable { return in.formats }

// PIOHW implements ioack.Context.
func (in *Instance) PIOHW() graph.PIOHWTable { return in.pioHW }

// PIOGraph implements ioack.Context.
func (in *Instance) PIOGraph() graph.PIOGraphTable { return in.pioGraph }

// Barrier implements ioack.Context. Arcs without MultiprocFlush get a
// NoopBarrier at the call site (arc.Descriptor.BarrierFor), so a single
// recording barrier per instance is enough here.
func (in *Instance) Barrier() arc.Barrier { return in.mpBarrier }

// Stats implements ioack.Context.
func (in *Instance) Stats() *ioack.Stats { return in.stats }

// ClearOngoing implements ioack.Context: the named graph IO no longer needs
// another driver request this round.
func (in *Instance) ClearOngoing(graphIOIdx int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ongoingAsyncIO[graphIOIdx] = false
	in.ioMask &^= 1 << uint(graphIOIdx%64)
}

// SetBarrier overrides the MPFLUSH cache barrier presented through Barrier;
// multi-processor configurations without cache coherence call this at
// construction, before the instance runs.
func (in *Instance) SetBarrier(b arc.Barrier) { in.mpBarrier = b }

// SetSegmentMemory attaches the backing store memory-segment pre/post
// processing uses for real zero/swap effects; call before the instance
// runs.
func (in *Instance) SetSegmentMemory(m SegmentMemory) { in.segMem = m }
