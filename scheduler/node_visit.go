package scheduler

import (
	"log/slog"

	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
	"github.com/nanograph/nanograph/node"
)

// arcBinding pairs a node's decoded arc reference with the arc descriptor
// and frame sizes resolved for this visit, so the readiness check, XDM
// build, and post-processing phases share one resolution pass.
type arcBinding struct {
	ref   graph.ArcRef
	desc  arc.Descriptor
	frame arc.Frame
	ready bool
}

// nodeReady implements the "go or skip" rule across every arc a node
// touches: all arcs must be ready, unless some arc is both HIGH_QOS and
// itself ready, in which case the node runs regardless of the rest.
func (in *Instance) nodeReady(h *graph.NodeHeader) (bool, []arcBinding) {
	bindings := make([]arcBinding, len(h.Arcs))
	allReady := true
	highQoSOverride := false

	for i, ref := range h.Arcs {
		d := in.arcs.Get(ref.ID)
		frame := arc.Frame{
			ProducerSize: in.formats.At(d.ProducerFmt).FrameSize,
			ConsumerSize: in.formats.At(d.ConsumerFmt).FrameSize,
		}
		ready := d.GoReady(!ref.TX, frame)
		bindings[i] = arcBinding{ref: ref, desc: d, frame: frame, ready: ready}
		if !ready {
			allReady = false
		}
		if d.HighQoS && ready {
			highQoSOverride = true
		}
	}
	return allReady || highQoSOverride, bindings
}

// buildXDM computes the RUN data array's addresses and entry sizes: for a
// TX arc (the node produces into it), the address is the next write
// position and the size is the free tail; for an RX arc, the address is
// the next read position and the size is the available data.
func (in *Instance) buildXDM(bindings []arcBinding) []node.XDM {
	xdm := make([]node.XDM, len(bindings))
	for i, b := range bindings {
		d := b.desc
		var addrVal int64
		var err error
		if b.ref.TX {
			addrVal, err = d.WriteAddress(in.codec)
			xdm[i] = node.XDM{Address: addrVal, Size: d.Free()}
		} else {
			addrVal, err = d.ReadAddress(in.codec)
			xdm[i] = node.XDM{Address: addrVal, Size: d.Available()}
		}
		if err != nil {
			slog.Error("nanograph: packed address out of range", "arc", b.ref.ID, "err", err)
		}
	}
	return xdm
}

// postProcess implements the arc_index_update post phase: the node's
// updated XDM entries (bytes actually produced/consumed, per node.XDM's
// doc) drive AdvanceWrite/AdvanceRead, each under its arc's MPFLUSH
// barrier discipline, then the descriptor is written back to the shared
// table.
func (in *Instance) postProcess(bindings []arcBinding, xdm []node.XDM) {
	for i, b := range bindings {
		d := b.desc
		barrier := d.BarrierFor(in.mpBarrier)
		barrier.Invalidate()
		if b.ref.TX {
			d.AdvanceWrite(xdm[i].Size, b.frame)
		} else {
			d.AdvanceRead(nil, xdm[i].Size, b.frame)
		}
		barrier.Clean()
		in.arcs.Set(b.ref.ID, d)
	}
}

func (in *Instance) entryPointFor(idx node.Index) node.Callable {
	if c, ok := in.entryPoints[idx]; ok {
		return c
	}
	return node.NullNode{}
}

func (in *Instance) ensureNodeState(idx node.Index) (*instlock.CollisionByte, *node.ExecutingFlag) {
	lock, ok := in.locks[idx]
	if !ok {
		lock = &instlock.CollisionByte{}
		in.locks[idx] = lock
	}
	flag, ok := in.flags[idx]
	if !ok {
		flag = &node.ExecutingFlag{}
		in.flags[idx] = flag
	}
	return lock, flag
}

// run implements the RUN command: walk the linked list from the current
// cursor, honoring the collision lock, readiness, and the selected
// ReturnPolicy, per visit calling the node's Invoke up to node.MaxRepeat
// times through node.RunRepeated.
func (in *Instance) run() error {
	for {
		h, err := graph.DecodeHeader(in.linkedList, in.cursor)
		if err != nil {
			return err
		}
		if h.IsTerminal() {
			in.cursor = 0
			if in.control.Policy == EndAllParsed {
				return nil
			}
			continue
		}

		if !in.filterMatches(h) || in.errorLog.Has(h.NodeIndex) {
			in.cursor += h.WordLen
			continue
		}

		lock, flag := in.ensureNodeState(h.NodeIndex)
		position := uint32(in.cursor)
		if !lock.TryLock(in.idx, position) {
			// Another instance owns this node's visit right now; move on
			// and let it catch up on the next pass.
			in.cursor += h.WordLen
			continue
		}

		ready, bindings := in.nodeReady(h)
		if !ready {
			lock.Unlock()
			if in.control.Policy == EndNodeNoData {
				return nil
			}
			in.cursor += h.WordLen
			continue
		}

		if err := in.drainPendingParameter(h.NodeIndex); err != nil {
			slog.Error("nanograph: deferred parameter delivery failed", "node", h.NodeIndex, "err", err)
		}

		in.preprocessSegments(h, false)

		xdm := in.buildXDM(bindings)
		cw := node.Pack(node.Run, node.ExtNone, uint8(h.NumArcs), h.Param.PresetID, h.Param.TraceID, uint16(in.cursor))
		_, err = node.RunRepeated(flag, in.entryPointFor(h.NodeIndex), cw, in.instanceMem[h.NodeIndex], nil, xdm)
		if err != nil {
			slog.Error("nanograph: node run failed", "node", h.NodeIndex, "err", err)
			in.errorLog.Set(h.NodeIndex)
		} else {
			in.postProcess(bindings, xdm)
			in.postprocessSegments(h)
		}

		lock.Unlock()
		in.cursor += h.WordLen

		if in.control.Policy == EndEachNode {
			return nil
		}
	}
}
