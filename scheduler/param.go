package scheduler

import (
	"log/slog"

	"github.com/nanograph/nanograph/node"
)

// setParameter implements the SET_PARAMETER command. wait=true delivers the
// parameter bytes synchronously; wait=false queues them in the instance's
// paramPending map for delivery the next time run() visits the node and
// finds it ready. The arc descriptor's NEW_PARAM bit is not used.
//
// The queue holds exactly one pending update per node. A second
// SET_PARAMETER arriving before the first is delivered overwrites it: this
// is the documented choice for the open "queue full" question (see
// DESIGN.md), logged once at Warn so the drop is visible.
func (in *Instance) setParameter(idx node.Index, params []byte, wait bool) error {
	if !wait {
		in.mu.Lock()
		if _, pending := in.paramPending[idx]; pending {
			slog.Warn("nanograph: overwriting unconsumed parameter update", "node", idx)
		}
		in.paramPending[idx] = params
		in.mu.Unlock()
		return nil
	}
	return in.deliverParameter(idx, params)
}

// deliverParameter calls the node's entry point with the SET_PARAMETER
// command.
func (in *Instance) deliverParameter(idx node.Index, params []byte) error {
	cw := node.Pack(node.SetParameter, node.ExtNone, 0, 0, 0, 0)
	var status node.Status
	return in.invokeWithAlloc(idx, cw, in.instanceMem[idx], params, nil, &status)
}

// drainPendingParameter delivers and clears idx's queued parameter update,
// if any. Called by run() just before a node is visited.
func (in *Instance) drainPendingParameter(idx node.Index) error {
	in.mu.Lock()
	params, ok := in.paramPending[idx]
	if ok {
		delete(in.paramPending, idx)
	}
	in.mu.Unlock()
	if !ok {
		return nil
	}
	return in.deliverParameter(idx, params)
}
