// Package graph decodes the NanoGraph binary image: the 6-word header, the
// 6-entry section table, and the per-section contents (PIO-HW, PIO-GRAPH,
// SCRIPTS, LINKED-LIST, FORMATS, ARCS).
package graph

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nanograph/nanograph/addr"
)

// SectionID enumerates the 6 sections in the table order fixed by the
// image layout.
type SectionID int

const (
	SectionPIOHW SectionID = iota
	SectionPIOGraph
	SectionScripts
	SectionLinkedList
	SectionFormats
	SectionArcs
	numSections
)

var sectionNames = [numSections]string{
	"PIO-HW", "PIO-GRAPH", "SCRIPTS", "LINKED-LIST", "FORMATS", "ARCS",
}

// String returns the section's name, for diagnostics.
func (s SectionID) String() string {
	if int(s) < 0 || int(s) >= int(numSections) {
		return fmt.Sprintf("section(%d)", int(s))
	}
	return sectionNames[s]
}

// ErrBadHeader is returned when the image's header cannot be parsed (too
// short, or a word is corrupted); this is a fatal error.
var ErrBadHeader = errors.New("graph: malformed image header")

// ErrVersionMismatch is returned when the image's interpreter version does
// not match the version this runtime was built for.
var ErrVersionMismatch = errors.New("graph: interpreter version mismatch")

// InterpreterVersion is the version word this runtime accepts.
const InterpreterVersion = 1

const (
	headerWords       = 6
	sectionTableWords = int(numSections) * 2
)

// Section describes one section's address word and byte size, decoded from
// the section table.
type Section struct {
	Addr    addr.Packed
	Inplace bool
	Size    uint32
}

// inplaceFlag is the top bit of a section's address word, marking it
// accessed directly out of the image rather than copied into RAM at reset.
const inplaceFlag = 1 << 31

// Header is the decoded 6-word image header plus its section table.
type Header struct {
	Compressed    bool
	SizeWords     uint32
	Version       uint32
	BankUsage     [4]uint32 // per-bank memory consumption, UQ0.8 fixed point
	Sections      [numSections]Section
}

// ParseHeader decodes the header and section table from the front of a raw
// image. It does not interpret section contents.
func ParseHeader(words []uint32) (*Header, error) {
	if len(words) < headerWords+sectionTableWords {
		return nil, ErrBadHeader
	}

	h := &Header{}
	h.Compressed = words[0]&(1<<24) != 0
	h.SizeWords = words[0] & 0x00FF_FFFF
	h.Version = words[1]
	copy(h.BankUsage[:], words[2:6])

	if h.Version != InterpreterVersion {
		return nil, ErrVersionMismatch
	}

	base := headerWords
	for i := 0; i < int(numSections); i++ {
		addrWord := words[base+2*i]
		sizeWord := words[base+2*i+1]
		h.Sections[i] = Section{
			Addr:    addr.Packed(addrWord &^ inplaceFlag),
			Inplace: addrWord&inplaceFlag != 0,
			Size:    sizeWord,
		}
	}
	return h, nil
}

// Image is a fully decoded graph: the raw word backing store plus the
// header, used by graph.Parse callers (typically runtime.Registry) to
// locate every section.
type Image struct {
	Words  []uint32
	Header *Header
}

// Decompressor decompresses a compressed image section; the compression
// codec itself is an external toolchain concern, so the runtime only carries the hook.
type Decompressor interface {
	Decompress(section []byte) ([]byte, error)
}

// Parse decodes a raw little-endian image from bytes into 32-bit words and
// parses its header. If the header's compression bit is set and no
// Decompressor is supplied, Parse returns ErrCompressedNoDecompressor.
var ErrCompressedNoDecompressor = errors.New("graph: image is compressed but no Decompressor was supplied")

// Parse decodes raw bytes into an Image.
func Parse(raw []byte, dec Decompressor) (*Image, error) {
	if len(raw)%4 != 0 {
		return nil, ErrBadHeader
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}

	h, err := ParseHeader(words)
	if err != nil {
		return nil, err
	}
	if h.Compressed && dec == nil {
		return nil, ErrCompressedNoDecompressor
	}

	return &Image{Words: words, Header: h}, nil
}

// SectionWords returns the raw words of the given section. Callers that
// need a copy rather than a direct image view (the non-INPLACE case) use
// CopySection instead.
func (im *Image) SectionWords(id SectionID, c *addr.Codec) ([]uint32, error) {
	s := im.Header.Sections[id]
	linear, err := c.PackToLinear(s.Addr)
	if err != nil {
		return nil, err
	}
	wordOff := linear / 4
	nWords := (int64(s.Size) + 3) / 4
	if wordOff < 0 || wordOff+nWords > int64(len(im.Words)) {
		return nil, fmt.Errorf("graph: section %s out of bounds", id)
	}
	return im.Words[wordOff : wordOff+nWords], nil
}

// CopySection returns an independent copy of a section's words, for the
// non-INPLACE case where the main instance copies sections into RAM at
// reset.
func (im *Image) CopySection(id SectionID, c *addr.Codec) ([]uint32, error) {
	w, err := im.SectionWords(id, c)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(w))
	copy(out, w)
	return out, nil
}
