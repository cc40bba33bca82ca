package arc

import "github.com/nanograph/nanograph/addr"

// Five machine words per descriptor, matching the binary layout so a graph
// image produced by the (out-of-scope) compiler loads unchanged:
//
//	base:  packed base address (29b) | HIGH_QOS(1) | MPFLUSH(1) | reserved(1)
//	size:  byte length (30b)         | RESET_DONE(1) | NEW_PARAM(1)
//	read:  read index (24b)         | collision byte (8b, MSB)
//	write: write index (31b)        | ALIGNMENT_BLOCKED(1)
//	fmt:   producerFmt(8) | consumerFmt(8) | debugScript(8) | reserved(8)
const (
	baseHighQoSBit = 1 << 29
	baseMPFlushBit = 1 << 30

	sizeResetDoneBit = 1 << 30
	sizeNewParamBit  = 1 << 31
	sizeMaskBits     = (1 << 30) - 1

	readIndexMask = (1 << 24) - 1

	writeAlignBit  = 1 << 31
	writeIndexMask = (1 << 31) - 1
)

// DecodeDescriptor unmarshals the 5 machine words of an arc descriptor.
func DecodeDescriptor(w [5]uint32) Descriptor {
	base, sizeW, readW, writeW, fmtW := w[0], w[1], w[2], w[3], w[4]

	return Descriptor{
		Base:             addr.Packed(base &^ (baseHighQoSBit | baseMPFlushBit)),
		HighQoS:          base&baseHighQoSBit != 0,
		MultiprocFlush:   base&baseMPFlushBit != 0,
		Size:             sizeW & sizeMaskBits,
		ResetDone:        sizeW&sizeResetDoneBit != 0,
		NewParam:         sizeW&sizeNewParamBit != 0,
		Read:             readW & readIndexMask,
		Collision:        byte(readW >> 24),
		Write:            writeW & writeIndexMask,
		AlignmentBlocked: writeW&writeAlignBit != 0,
		ProducerFmt:      int((fmtW >> 0) & 0xFF),
		ConsumerFmt:      int((fmtW >> 8) & 0xFF),
		DebugScript:      int((fmtW >> 16) & 0xFF),
	}
}

// Encode marshals the descriptor back to its 5 machine words.
func (d *Descriptor) Encode() [5]uint32 {
	var w [5]uint32

	w[0] = uint32(d.Base)
	if d.HighQoS {
		w[0] |= baseHighQoSBit
	}
	if d.MultiprocFlush {
		w[0] |= baseMPFlushBit
	}

	w[1] = d.Size & sizeMaskBits
	if d.ResetDone {
		w[1] |= sizeResetDoneBit
	}
	if d.NewParam {
		w[1] |= sizeNewParamBit
	}

	w[2] = (d.Read & readIndexMask) | uint32(d.Collision)<<24
	w[3] = d.Write & writeIndexMask
	if d.AlignmentBlocked {
		w[3] |= writeAlignBit
	}

	w[4] = uint32(d.ProducerFmt&0xFF) | uint32(d.ConsumerFmt&0xFF)<<8 | uint32(d.DebugScript&0xFF)<<16
	return w
}

// DescriptorTable is a decoded view over an ARCS section: the all_arcs
// table shared by every cooperating scheduler instance.
type DescriptorTable struct {
	words []uint32
}

const descriptorWords = 5

// NewDescriptorTable wraps an ARCS section's backing words.
func NewDescriptorTable(words []uint32) *DescriptorTable {
	return &DescriptorTable{words: words}
}

// Len returns the number of arc descriptors in the table.
func (t *DescriptorTable) Len() int { return len(t.words) / descriptorWords }

// Get decodes the descriptor at id.
func (t *DescriptorTable) Get(id uint16) Descriptor {
	var w [5]uint32
	copy(w[:], t.words[int(id)*descriptorWords:])
	return DecodeDescriptor(w)
}

// Set re-encodes and writes back the descriptor at id, the only way arc
// state changes are persisted to the shared image-backed table.
func (t *DescriptorTable) Set(id uint16, d Descriptor) {
	w := d.Encode()
	copy(t.words[int(id)*descriptorWords:], w[:])
}
