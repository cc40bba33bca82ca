// Package ioreq carries the scheduler's "please pump this graph IO" request
// to a driver component over an akita port: the scheduler never calls a
// driver directly, it only asks.
package ioreq

import "github.com/sarchlab/akita/v4/sim"

// Request asks the driver owning a hardware IO to perform one transfer for
// the named graph IO. The driver eventually calls ioack.Ack once the
// transfer completes, exactly as a real interrupt handler would.
type Request struct {
	sim.MsgMeta

	GraphIOIndex int
	Size         int
}

// Meta implements sim.Msg.
func (r *Request) Meta() *sim.MsgMeta { return &r.MsgMeta }

// RequestBuilder is a chained factory for Request, the same message-builder
// pattern used throughout this codebase's akita message types.
type RequestBuilder struct {
	src, dst     sim.Port
	sendTime     sim.VTimeInSec
	graphIOIndex int
	size         int
}

// WithSrc sets the request's source port.
func (b RequestBuilder) WithSrc(src sim.Port) RequestBuilder { b.src = src; return b }

// WithDst sets the request's destination port.
func (b RequestBuilder) WithDst(dst sim.Port) RequestBuilder { b.dst = dst; return b }

// WithSendTime sets the request's send time.
func (b RequestBuilder) WithSendTime(t sim.VTimeInSec) RequestBuilder { b.sendTime = t; return b }

// WithGraphIO sets the graph IO index being pumped.
func (b RequestBuilder) WithGraphIO(idx int) RequestBuilder { b.graphIOIndex = idx; return b }

// WithSize sets the requested transfer size in bytes.
func (b RequestBuilder) WithSize(size int) RequestBuilder { b.size = size; return b }

// Build constructs the Request.
func (b RequestBuilder) Build() *Request {
	return &Request{
		MsgMeta: sim.MsgMeta{
			ID:       sim.GetIDGenerator().Generate(),
			Src:      b.src,
			Dst:      b.dst,
			SendTime: b.sendTime,
		},
		GraphIOIndex: b.graphIOIndex,
		Size:         b.size,
	}
}
