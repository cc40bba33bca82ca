package graph

import (
	"math"

	"github.com/nanograph/nanograph/addr"
)

// Format is one entry of the FORMATS section: everything an arc's producer
// and consumer sides need to agree on to interpret the bytes flowing
// through it.
//
// The four backing words are packed as:
//
//	word 0: frame size, as a shift-extended packed size
//	word 1: rawDataType(8) | channelCount(8) | interleaving(1) | timestampDiscipline(3) | domain(6) | subDomain(6)
//	word 2: sampling rate, IEEE-754 float32 bits
//	word 3: domain-specific word (opaque to the core)
type Format struct {
	FrameSize           int
	RawDataType         uint8
	ChannelCount        uint8
	Interleaved         bool
	TimestampDiscipline uint8
	Domain              uint8
	SubDomain           uint8
	SamplingRateHz      float32
	DomainSpecific      uint32
}

const formatWords = 4

// DecodeFormat decodes one 4-word format entry at the given index within a
// FORMATS section.
func DecodeFormat(section []uint32, index int) Format {
	base := index * formatWords
	w0, w1, w2, w3 := section[base], section[base+1], section[base+2], section[base+3]

	return Format{
		FrameSize:           int(addr.PackSizeToLinear(addr.PackedSize(w0))),
		RawDataType:         uint8(w1 & 0xFF),
		ChannelCount:        uint8((w1 >> 8) & 0xFF),
		Interleaved:         (w1>>16)&0x1 != 0,
		TimestampDiscipline: uint8((w1 >> 17) & 0x7),
		Domain:              uint8((w1 >> 20) & 0x3F),
		SubDomain:           uint8((w1 >> 26) & 0x3F),
		SamplingRateHz:      math.Float32frombits(w2),
		DomainSpecific:      w3,
	}
}

// FormatTable is a decoded view over a FORMATS section.
type FormatTable struct {
	section []uint32
}

// NewFormatTable wraps a FORMATS section for indexed lookups.
func NewFormatTable(section []uint32) FormatTable {
	return FormatTable{section: section}
}

// At returns the format entry at idx.
func (t FormatTable) At(idx int) Format {
	return DecodeFormat(t.section, idx)
}

// Len returns the number of entries in the table.
func (t FormatTable) Len() int {
	return len(t.section) / formatWords
}
