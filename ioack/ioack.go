// Package ioack implements the IO acknowledgement path: the device-driver
// entry point that moves bytes into or out of an arc (or rebases the arc
// onto a driver-owned buffer), updates flow state, and clears the
// "request in flight" bit.
package ioack

import (
	"errors"
	"fmt"

	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
)

// FlowError is an overflow/underflow condition: never fatal, always a
// dropped transfer the caller may retry on the next tick.
type FlowError struct {
	Overflow bool // true = RX overflow, false = TX underflow
	HWIOIdx  uint8
	Want     int
	Have     int
}

func (e *FlowError) Error() string {
	kind := "underflow"
	if e.Overflow {
		kind = "overflow"
	}
	return fmt.Sprintf("ioack: %s on hw io %d: wanted %d, had %d", kind, e.HWIOIdx, e.Want, e.Have)
}

// ErrNotConnected is returned when io_ack is called for a hardware IO with
// no graph IO mapped.
var ErrNotConnected = errors.New("ioack: hardware io is not connected to any graph io")

// ErrInstanceNotFound is returned when the affinity instance named by the
// PIO-HW table is not present in the registry.
var ErrInstanceNotFound = errors.New("ioack: affinity instance not registered")

// Stats counts non-fatal flow errors, kept both globally and per-arc: the
// original's accounting was "commented out"; this port makes the counters
// real without changing drop semantics.
type Stats struct {
	Overflow  map[uint16]int
	Underflow map[uint16]int
}

// NewStats builds an empty counter set.
func NewStats() *Stats {
	return &Stats{Overflow: make(map[uint16]int), Underflow: make(map[uint16]int)}
}

func (s *Stats) recordOverflow(arcID uint16) {
	s.Overflow[arcID]++
}

func (s *Stats) recordUnderflow(arcID uint16) {
	s.Underflow[arcID]++
}

// TotalOverflow sums the per-arc overflow counters.
func (s *Stats) TotalOverflow() int {
	total := 0
	for _, n := range s.Overflow {
		total += n
	}
	return total
}

// TotalUnderflow sums the per-arc underflow counters.
func (s *Stats) TotalUnderflow() int {
	total := 0
	for _, n := range s.Underflow {
		total += n
	}
	return total
}

// Context is the slice of scheduler-instance state the IO acknowledgement
// path needs, kept narrow and package-local so ioack has no import-time
// dependency on package scheduler.
type Context interface {
	InstanceIndex() uint8
	Codec() *addr.Codec
	Arcs() *arc.DescriptorTable
	Formats() graph.FormatTable
	PIOHW() graph.PIOHWTable
	PIOGraph() graph.PIOGraphTable
	ClearOngoing(graphIOIdx int)
	Barrier() arc.Barrier
	Stats() *Stats
}

// Mover lets Ack perform the actual byte copy against the arc's real
// backing buffer: CopyIn writes an inbound driver buffer into the arc at a
// byte offset (RX), CopyOut reads out of the arc at a byte offset into an
// outbound driver buffer (TX). A nil Mover performs index arithmetic only,
// for tests that only assert descriptor-state transitions.
type Mover interface {
	CopyIn(off int, src []byte)
	CopyOut(dst []byte, off int)
}

// realignAdapter adapts a Mover to arc.Mover's same-buffer relative-offset
// contract, so AdvanceRead's automatic realign step can still shift bytes
// within the arc's own buffer using the driver-supplied Mover.
type realignAdapter struct{ m Mover }

func (a realignAdapter) Copy(dstOff, srcOff int, n uint32) {
	buf := make([]byte, n)
	a.m.CopyOut(buf, srcOff)
	a.m.CopyIn(dstOff, buf)
}

// Ack implements the IO acknowledgement path in five steps. driverBuf is
// the packed address of the driver-owned buffer, used only in SET_BUFFER
// mode (the driver computes it against the same bank table the rest of the
// graph uses); it is ignored in COPY mode.
func Ack(reg *instlock.Registry, hwIOIndex uint8, driverBuf addr.Packed, data []byte, size int, buf Mover) error {
	// Step 1 is partially performed by the caller: we still need the
	// *first* instance's PIO-HW table to resolve affinity, so the registry
	// exposes a bootstrap instance (index 0, the "main" instance during
	// reset) purely to read that shared, read-only table.
	boot, ok := reg.Get(0)
	if !ok {
		return ErrInstanceNotFound
	}
	bootCtx, ok := boot.(Context)
	if !ok {
		return ErrInstanceNotFound
	}

	hwTable := bootCtx.PIOHW()
	if int(hwIOIndex) >= hwTable.Len() {
		return ErrNotConnected
	}
	hwEntry := hwTable.At(int(hwIOIndex))
	if !hwEntry.Connected() {
		return ErrNotConnected
	}

	affinity := hwEntry.AffinityInstance()
	target, ok := reg.Get(affinity)
	if !ok {
		return ErrInstanceNotFound
	}
	ctx, ok := target.(Context)
	if !ok {
		return ErrInstanceNotFound
	}

	// Step 2: resolve the arc descriptor for this graph IO.
	graphIOIdx := int(hwEntry.GraphIOIndex())
	pio := ctx.PIOGraph().At(graphIOIdx)
	table := ctx.Arcs()
	d := table.Get(pio.ArcID)

	barrier := d.BarrierFor(ctx.Barrier())
	barrier.Invalidate()

	fmts := ctx.Formats()
	producerFrame := fmts.At(d.ProducerFmt).FrameSize
	consumerFrame := fmts.At(d.ConsumerFmt).FrameSize

	var err error
	switch pio.Dir {
	case graph.RX:
		err = ackRX(&d, pio, driverBuf, data, size, buf, producerFrame, ctx.Stats())
	case graph.TX:
		err = ackTX(&d, pio, driverBuf, data, size, buf, producerFrame, ctx.Stats())
	}

	// Step 4: evaluate completion-of-frame and clear "in flight" if the
	// relevant side no longer needs another request this round.
	switch pio.Dir {
	case graph.RX:
		// A consumer frame is already available: the graph side can run
		// without another RX request this round.
		if d.Available() >= uint32(consumerFrame) {
			ctx.ClearOngoing(graphIOIdx)
		}
	case graph.TX:
		// Not enough data left for another consumer frame: stop issuing TX
		// requests until the graph produces more.
		if d.Available() < uint32(consumerFrame) {
			ctx.ClearOngoing(graphIOIdx)
		}
	}

	barrier.Clean()
	table.Set(pio.ArcID, d)

	return err
}

func ackRX(d *arc.Descriptor, pio graph.PIOGraphEntry, driverBuf addr.Packed, data []byte, size int, buf Mover, producerFrame int, stats *Stats) error {
	if pio.Mode == graph.SetBuffer {
		d.Rebase(driverBuf, uint32(size))
		d.Write = uint32(size) // buffer pre-filled
		return nil
	}

	free := int(d.Size - d.Write)
	if free < size {
		stats.recordOverflow(pio.ArcID)
		return &FlowError{Overflow: true, HWIOIdx: pio.HWIOIndex, Want: size, Have: free}
	}

	if buf != nil {
		buf.CopyIn(int(d.Write), data[:size])
	}
	d.AdvanceWrite(uint32(size), arc.Frame{ProducerSize: producerFrame})
	return nil
}

func ackTX(d *arc.Descriptor, pio graph.PIOGraphEntry, driverBuf addr.Packed, data []byte, size int, buf Mover, producerFrame int, stats *Stats) error {
	if pio.Mode == graph.SetBuffer {
		d.Rebase(driverBuf, uint32(size))
		return nil
	}

	avail := int(d.Available())
	if avail < size {
		stats.recordUnderflow(pio.ArcID)
		return &FlowError{Overflow: false, HWIOIdx: pio.HWIOIndex, Want: size, Have: avail}
	}

	if buf != nil {
		buf.CopyOut(data[:size], int(d.Read))
		d.AdvanceRead(realignAdapter{buf}, uint32(size), arc.Frame{ProducerSize: producerFrame})
	} else {
		d.AdvanceRead(nil, uint32(size), arc.Frame{ProducerSize: producerFrame})
	}
	return nil
}
