package scheduler

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/ioreq"
)

// SetIODriverPort attaches the port BoundaryPump sends ioreq.Request
// messages over. Instances constructed without one still track
// OngoingAsyncIO correctly; they simply never dispatch a request, which
// loses nothing only for a graph whose hardware IOs are all commander IOs,
// since BoundaryPump never requests those.
func (in *Instance) SetIODriverPort(p sim.Port) { in.ioPort = p }

// BoundaryPump implements the boundary pump: for every graph IO
// this instance owns (by PIO-HW affinity) that is not already waiting on a
// driver, check whether its arc has room (RX) or data (TX) to justify
// another request, and if so mark it ongoing and ask the driver to service
// it. Commander IOs are skipped outright: their data arrives unsolicited
// through io_ack, so polling and requesting one here would race the
// hardware that is supposed to initiate the transfer.
func (in *Instance) BoundaryPump(now sim.VTimeInSec) {
	for i := 0; i < in.pioGraph.Len(); i++ {
		pio := in.pioGraph.At(i)
		if pio.Commander {
			continue
		}
		if int(pio.HWIOIndex) >= in.pioHW.Len() {
			continue
		}
		hw := in.pioHW.At(int(pio.HWIOIndex))
		if !hw.Connected() || hw.AffinityInstance() != in.idx {
			continue
		}

		in.mu.Lock()
		ongoing := in.ongoingAsyncIO[i]
		in.mu.Unlock()
		if ongoing {
			continue
		}

		d := in.arcs.Get(pio.ArcID)
		var size uint32
		switch pio.Dir {
		case graph.RX:
			size = d.Free()
		case graph.TX:
			size = d.Available()
		}
		if size == 0 {
			continue
		}

		in.mu.Lock()
		in.ongoingAsyncIO[i] = true
		in.ioMask |= 1 << uint(i%64)
		in.mu.Unlock()

		if in.ioPort == nil {
			continue
		}
		req := ioreq.RequestBuilder{}.
			WithSrc(in.ioPort).
			WithSendTime(now).
			WithGraphIO(i).
			WithSize(int(size)).
			Build()
		_ = in.ioPort.Send(req)
	}
}
