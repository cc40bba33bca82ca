package graph

// IOMode selects whether an IO acknowledgement moves bytes into/out of the
// arc's own buffer (Copy) or rebases the arc onto the driver's buffer
// (SetBuffer).
type IOMode uint8

const (
	Copy IOMode = iota
	SetBuffer
)

// Direction is the RX/TX sense of a graph IO, from the graph's point of
// view: RX moves bytes into the graph, TX moves bytes out.
type Direction uint8

const (
	RX Direction = iota
	TX
)

// NotConnected marks a hardware IO slot with no graph IO mapped to it.
const NotConnected = 0xFFFF

// PIOHWEntry is one word of the PIO-HW section: hardware IO → graph
// translation.
//
// Packed as: affinityInstance(8) in bits 16-23 | graphIOIndex(16) in bits
// 0-15. A graphIOIndex equal to NotConnected marks an unmapped slot.
type PIOHWEntry uint32

// NewPIOHWEntry builds a PIO-HW word.
func NewPIOHWEntry(affinityInstance uint8, graphIOIndex uint16) PIOHWEntry {
	var w uint32
	w |= uint32(affinityInstance) << 16
	w |= uint32(graphIOIndex)
	return PIOHWEntry(w)
}

// Connected reports whether this hardware IO has a graph IO mapped.
func (e PIOHWEntry) Connected() bool { return e.GraphIOIndex() != NotConnected }

// AffinityInstance returns the instance index that owns this hardware IO.
func (e PIOHWEntry) AffinityInstance() uint8 { return uint8((uint32(e) >> 16) & 0xFF) }

// GraphIOIndex returns the index into the PIO-GRAPH table.
func (e PIOHWEntry) GraphIOIndex() uint16 { return uint16(uint32(e) & 0xFFFF) }

const pioGraphWords = 4

// PIOGraphEntry is one 4-word entry of the PIO-GRAPH section: per-graph-IO
// control.
//
// word 0: hwIOIndex(8) | bufferOwnedByDriver(1) | commander(1) | direction(1) | mode(1) | arcID(12)
// words 1..3: domain-specific
type PIOGraphEntry struct {
	HWIOIndex           uint8
	BufferOwnedByDriver bool
	Commander           bool // true = commander IO (data arrives unsolicited); false = servant
	Dir                 Direction
	Mode                IOMode
	ArcID               uint16
	Domain              [3]uint32
}

// DecodePIOGraphEntry decodes the entry at idx within a PIO-GRAPH section.
func DecodePIOGraphEntry(section []uint32, idx int) PIOGraphEntry {
	base := idx * pioGraphWords
	w0 := section[base]
	return PIOGraphEntry{
		HWIOIndex:           uint8(w0 & 0xFF),
		BufferOwnedByDriver: (w0>>8)&0x1 != 0,
		Commander:           (w0>>9)&0x1 != 0,
		Dir:                 Direction((w0 >> 10) & 0x1),
		Mode:                IOMode((w0 >> 11) & 0x1),
		ArcID:               uint16((w0 >> 12) & 0xFFF),
		Domain:              [3]uint32{section[base+1], section[base+2], section[base+3]},
	}
}

// Encode packs the entry back into a 4-word slice at idx, for tests and for
// constructing synthetic images.
func (e PIOGraphEntry) Encode(section []uint32, idx int) {
	base := idx * pioGraphWords
	var w0 uint32
	w0 |= uint32(e.HWIOIndex) & 0xFF
	if e.BufferOwnedByDriver {
		w0 |= 1 << 8
	}
	if e.Commander {
		w0 |= 1 << 9
	}
	w0 |= uint32(e.Dir&0x1) << 10
	w0 |= uint32(e.Mode&0x1) << 11
	w0 |= (uint32(e.ArcID) & 0xFFF) << 12
	section[base] = w0
	section[base+1], section[base+2], section[base+3] = e.Domain[0], e.Domain[1], e.Domain[2]
}

// PIOHWTable is a decoded view over a PIO-HW section.
type PIOHWTable struct{ section []uint32 }

// NewPIOHWTable wraps a PIO-HW section.
func NewPIOHWTable(section []uint32) PIOHWTable { return PIOHWTable{section: section} }

// At returns the PIO-HW entry for the given hardware IO index.
func (t PIOHWTable) At(hwIdx int) PIOHWEntry { return PIOHWEntry(t.section[hwIdx]) }

// Len returns the number of hardware IO slots.
func (t PIOHWTable) Len() int { return len(t.section) }

// PIOGraphTable is a decoded view over a PIO-GRAPH section.
type PIOGraphTable struct{ section []uint32 }

// NewPIOGraphTable wraps a PIO-GRAPH section.
func NewPIOGraphTable(section []uint32) PIOGraphTable { return PIOGraphTable{section: section} }

// At returns the graph IO entry at idx.
func (t PIOGraphTable) At(idx int) PIOGraphEntry { return DecodePIOGraphEntry(t.section, idx) }

// Len returns the number of graph IOs.
func (t PIOGraphTable) Len() int { return len(t.section) / pioGraphWords }
