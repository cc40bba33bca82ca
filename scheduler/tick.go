package scheduler

import "github.com/sarchlab/akita/v4/sim"

// Tick implements sim.Tickable: one call performs one RUN-policy visit —
// exactly what Interpret(CmdRun, ...) with the instance's current policy
// would do synchronously — plus one BoundaryPump pass, so a discrete-event
// sim.Engine can interleave several instances deterministically without
// this package inventing its own scheduling loop.
func (in *Instance) Tick(now sim.VTimeInSec) (madeProgress bool) {
	if in.errorLog != 0 && in.allNodesErrored() {
		return false
	}

	cursorBefore := in.cursor
	if err := in.run(); err != nil {
		return false
	}
	in.BoundaryPump(now)

	return in.cursor != cursorBefore || in.ioMask != 0
}

func (in *Instance) allNodesErrored() bool {
	for idx := range in.resetDone {
		if !in.errorLog.Has(idx) {
			return false
		}
	}
	return len(in.resetDone) > 0
}
