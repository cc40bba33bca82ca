package scheduler

import (
	"log/slog"

	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
	"github.com/nanograph/nanograph/node"
)

// Command is one of the four scheduler-level operations:
// RESET, RUN, SET_PARAMETER, STOP. It is distinct from node.Command, the
// per-node protocol word Interpret eventually builds and sends to each
// node's Invoke.
type Command uint8

const (
	CmdReset Command = iota
	CmdRun
	CmdSetParameter
	CmdStop
)

// ReturnPolicy selects when Interpret(CmdRun, ...) gives control back to the
// caller (graph_test_scheduler.c's three policies).
type ReturnPolicy uint8

const (
	// EndEachNode returns to the caller after every single node visit.
	EndEachNode ReturnPolicy = iota
	// EndAllParsed runs until the list cursor wraps past the terminal
	// sentinel once (one full pass of the linked list).
	EndAllParsed
	// EndNodeNoData returns as soon as a node is skipped for lack of ready
	// arcs, leaving the cursor positioned at that node for the next call.
	EndNodeNoData
)

// Interpret implements the four scheduler commands. p1/p2 carry the
// command-specific arguments: for SET_PARAMETER, p1 is the target node
// index, bit 0 of p2 requests synchronous delivery (wait), and the
// parameter bytes are passed via params; for RUN, p1 selects the ReturnPolicy and p2 is unused; RESET and STOP
// ignore both.
func (in *Instance) Interpret(cmd Command, p1, p2 uintptr, params []byte) error {
	switch cmd {
	case CmdReset:
		return in.reset(node.Extension(p1))
	case CmdRun:
		in.control.Policy = ReturnPolicy(p1)
		return in.run()
	case CmdSetParameter:
		return in.setParameter(node.Index(p1), params, p2&1 != 0)
	case CmdStop:
		return in.stop()
	}
	return nil
}

// reset walks the linked list once, synthesizing each node's instance
// memory and calling Invoke(Reset, ...). Node error bits from earlier
// passes are cleared first. A node this instance has already reset
// (recorded in its own resetDone map) is skipped unless the extension is
// ColdBoot, which always re-runs every node. The arc descriptor's
// RESET-DONE bit is neither read nor written, so a node reset by a sibling
// instance is reset again here.
func (in *Instance) reset(ext node.Extension) error {
	in.control.ResetKind = ext
	in.errorLog = 0
	in.cursor = 0
	in.mu.Lock()
	in.ongoingAsyncIO = make(map[int]bool)
	in.ioMask = 0
	in.mu.Unlock()

	for {
		h, err := graph.DecodeHeader(in.linkedList, in.cursor)
		if err != nil {
			return err
		}
		if h.IsTerminal() {
			return nil
		}
		if !in.filterMatches(h) {
			in.cursor += h.WordLen
			continue
		}

		alreadyDone := in.resetDone[h.NodeIndex]
		if alreadyDone && ext != node.ExtColdBoot {
			in.cursor += h.WordLen
			continue
		}

		instMem := in.synthesizeInstance(h)
		in.instanceMem[h.NodeIndex] = instMem

		in.preprocessSegments(h, true) // reset() only ever runs under the RESET command

		cw := node.Pack(node.Reset, ext, uint8(h.NumArcs), h.Param.PresetID, h.Param.TraceID, uint16(in.cursor))
		var status node.Status
		if err := in.invokeWithAlloc(h.NodeIndex, cw, instMem, nil, nil, &status); err != nil {
			slog.Error("nanograph: node reset failed", "node", h.NodeIndex, "err", err)
			in.errorLog.Set(h.NodeIndex)
		} else {
			in.resetDone[h.NodeIndex] = true
		}

		if _, ok := in.locks[h.NodeIndex]; !ok {
			in.locks[h.NodeIndex] = &instlock.CollisionByte{}
		}
		if _, ok := in.flags[h.NodeIndex]; !ok {
			in.flags[h.NodeIndex] = &node.ExecutingFlag{}
		}

		in.cursor += h.WordLen
	}
}

// filterMatches applies the architecture/processor/priority filter: a zero
// filter value in Control means "accept any".
func (in *Instance) filterMatches(h *graph.NodeHeader) bool {
	if in.control.Architecture != 0 && h.Architecture != in.control.Architecture {
		return false
	}
	if in.control.Processor != 0 && h.Processor != in.control.Processor {
		return false
	}
	if h.Priority < in.control.MinPriority {
		return false
	}
	return true
}

// synthesizeInstance builds the per-node instance memory array passed to
// Invoke: key pair (if present), followed by each segment's {address,
// size} pair in header order. The wire layout of "instance" is not
// specified beyond "the synthesized memory array"; this is an
// implementation choice documented in DESIGN.md.
func (in *Instance) synthesizeInstance(h *graph.NodeHeader) []uint32 {
	out := make([]uint32, 0, 4+2*len(h.Segments))
	if h.HasKey {
		out = append(out, h.Key[:]...)
	}
	for _, seg := range h.Segments {
		out = append(out, uint32(seg.Addr), uint32(seg.Size))
	}
	return out
}

// invokeWithAlloc calls the node's entry point (NullNode when the index has
// none) through the node's ExecutingFlag, creating the flag on first use.
// Errors from the node, node.ErrAllocFailed included, are returned
// unchanged.
func (in *Instance) invokeWithAlloc(idx node.Index, cw node.Word, instMem []uint32, data []byte, xdm []node.XDM, status *node.Status) error {
	callable, ok := in.entryPoints[idx]
	if !ok {
		callable = node.NullNode{}
	}
	flag, ok := in.flags[idx]
	if !ok {
		flag = &node.ExecutingFlag{}
		in.flags[idx] = flag
	}
	return flag.Guard(callable, cw, instMem, data, xdm, status)
}

// stop calls every node that has been reset with the Stop command, so each
// releases any resources it allocated.
func (in *Instance) stop() error {
	for idx := range in.resetDone {
		cw := node.Pack(node.Stop, node.ExtNone, 0, 0, 0, 0)
		var status node.Status
		if err := in.invokeWithAlloc(idx, cw, in.instanceMem[idx], nil, nil, &status); err != nil {
			slog.Error("nanograph: node stop failed", "node", idx, "err", err)
		}
	}
	in.resetDone = make(map[node.Index]bool)
	return nil
}
