package graph

import (
	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/node"
)

// TerminalIndex is the all-ones sentinel that ends the linked list: the
// scheduler rewinds to the start of the list when it encounters a node
// whose index field equals this value.
const TerminalIndex node.Index = 0x3FF // 10-bit node-index field, all ones

const (
	headerWord0Words = 1
	headerWord1Words = 1
)

// ArcRef is one decoded arc reference from a node's arc table: a direction
// bit plus an 11-bit arc id, indexing into the ARCS section.
type ArcRef struct {
	TX bool // true = this arc is TX from this node's point of view
	ID uint16
}

// SegmentFlags are the per-memory-segment flags.
type SegmentFlags struct {
	Swap          bool // exchange with an arc buffer for the call
	Work          bool // scratch; clear each call
	ClearAtReset  bool
}

// Segment is one decoded {address, size+flags} memory-segment pair. The
// first segment in a node's header is always the node's own instance data.
// When Flags.Swap is set, Size is meaningless (the low 12 bits it would
// occupy are reinterpreted as SwapArc instead) and the swap uses the
// designated arc's own buffer size.
type Segment struct {
	Addr    addr.Packed
	Size    int
	Flags   SegmentFlags
	SwapArc ArcRef
}

// segment size word layout, within the low 29 bits shared with
// addr.PackedSize: bits 29-31 hold the three segment flags. When SWAP is
// set, the low 12 bits double as a packed arc reference (same TX-bit +
// 11-bit-id layout as the node's own arc table) naming the arc this
// segment exchanges with, rather than a size field.
const (
	segSwapBit         = 1 << 29
	segWorkBit         = 1 << 30
	segClearAtResetBit = 1 << 31
)

func decodeSegment(addrWord, sizeWord uint32) Segment {
	flags := SegmentFlags{
		Swap:         sizeWord&segSwapBit != 0,
		Work:         sizeWord&segWorkBit != 0,
		ClearAtReset: sizeWord&segClearAtResetBit != 0,
	}
	seg := Segment{Addr: addr.Packed(addrWord), Flags: flags}
	if flags.Swap {
		packed := uint16(sizeWord & 0xFFF)
		seg.SwapArc = ArcRef{TX: packed&0x800 != 0, ID: packed & 0x7FF}
		return seg
	}
	seg.Size = int(addr.PackSizeToLinear(addr.PackedSize(sizeWord &^ (segSwapBit | segWorkBit | segClearAtResetBit))))
	return seg
}

// ParamHeader is the {param-tag, preset id, trace id, length-in-words}
// quad that precedes a node's boot parameters.
type ParamHeader struct {
	ParamTag  uint8
	PresetID  uint8
	TraceID   uint8
	LenWords  uint32
}

// AllParams selects every parameter when used as ParamTag, mirroring the
// "all" selector for SET_PARAMETER.
const AllParams uint8 = 0xFF

// word0 bit layout: architecture(4)|processor(4)|priority(4)|numArcs(4)|
// numSegsMinus1(4)|hasKey(1)|dynAlloc(1)|nodeIndex(10)
const (
	archShift, archBits         = 0, 4
	procShift, procBits         = 4, 4
	prioShift, prioBits         = 8, 4
	narcsShift, narcsBits       = 12, 4
	nsegShift, nsegBits         = 16, 4
	hasKeyShift                 = 20
	dynAllocShift               = 21
	nodeIdxShift, nodeIdxBits   = 22, 10
)

func bitfield(w uint32, shift, bits uint) uint32 { return (w >> shift) & ((1 << bits) - 1) }

// NodeHeader is a fully decoded node header view, positioned at a given word
// offset within the LINKED-LIST section.
type NodeHeader struct {
	Architecture uint8
	Processor    uint8
	Priority     uint8
	NumArcs      int
	NumSegments  int
	HasKey       bool
	DynAlloc     bool
	NodeIndex    node.Index

	MemProtect   bool
	SMPFlush     bool
	DebugScript  uint8

	Arcs     []ArcRef
	Segments []Segment
	Key      [4]uint32
	Param    ParamHeader
	BootParams []uint32

	// WordLen is the total size, in words, this header occupies in the
	// LINKED-LIST section, so the scheduler can advance to the next node.
	WordLen int
}

// IsTerminal reports whether this header is the all-ones end-of-list
// sentinel.
func (h *NodeHeader) IsTerminal() bool { return h.NodeIndex == TerminalIndex }

// DecodeHeader decodes one node header starting at word offset `at` within
// section. It returns the header and does not advance past it; callers use
// NodeHeader.WordLen to find the next node.
func DecodeHeader(section []uint32, at int) (*NodeHeader, error) {
	if at >= len(section) {
		return nil, ErrBadHeader
	}
	w0 := section[at]
	nodeIndex := node.Index(bitfield(w0, nodeIdxShift, nodeIdxBits))
	if nodeIndex == TerminalIndex {
		return &NodeHeader{NodeIndex: nodeIndex, WordLen: 1}, nil
	}

	h := &NodeHeader{
		Architecture: uint8(bitfield(w0, archShift, archBits)),
		Processor:    uint8(bitfield(w0, procShift, procBits)),
		Priority:     uint8(bitfield(w0, prioShift, prioBits)),
		NumArcs:      int(bitfield(w0, narcsShift, narcsBits)),
		NumSegments:  int(bitfield(w0, nsegShift, nsegBits)) + 1,
		HasKey:       bitfield(w0, hasKeyShift, 1) != 0,
		DynAlloc:     bitfield(w0, dynAllocShift, 1) != 0,
		NodeIndex:    nodeIndex,
	}

	w1 := section[at+1]
	h.MemProtect = w1&0x1 != 0
	h.SMPFlush = w1&0x2 != 0
	h.DebugScript = uint8((w1 >> 2) & 0xFF)

	off := at + headerWord0Words + headerWord1Words

	numArcWords := (h.NumArcs + 1) / 2
	for i := 0; i < h.NumArcs; i++ {
		word := section[off+i/2]
		var packed uint16
		if i%2 == 0 {
			packed = uint16(word & 0xFFF)
		} else {
			packed = uint16((word >> 16) & 0xFFF)
		}
		h.Arcs = append(h.Arcs, ArcRef{
			TX: packed&0x800 != 0,
			ID: packed & 0x7FF,
		})
	}
	off += numArcWords

	for i := 0; i < h.NumSegments; i++ {
		h.Segments = append(h.Segments, decodeSegment(section[off], section[off+1]))
		off += 2
	}

	if h.HasKey {
		copy(h.Key[:], section[off:off+4])
		off += 4
	}

	ph := section[off]
	h.Param = ParamHeader{
		ParamTag: uint8(ph & 0xFF),
		PresetID: uint8((ph >> 8) & 0xFF),
		TraceID:  uint8((ph >> 16) & 0xFF),
		LenWords: (ph >> 24) & 0xFF,
	}
	off++
	h.BootParams = section[off : off+int(h.Param.LenWords)]
	off += int(h.Param.LenWords)

	h.WordLen = off - at
	return h, nil
}
