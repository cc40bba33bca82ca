package services

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/nanograph/nanograph/instlock"
)

// Internal group funcIDs: the barrier/mutex/key/clock primitives every node
// body may reach for regardless of platform.
const (
	FuncMutexTryLock uint8 = iota
	FuncMutexUnlock
	FuncBarrierAdvance
	FuncBarrierWait
	FuncKeyGenerate
	FuncClockTick
)

// internalState holds the generic backend's per-tag primitive instances.
// tag (the Dispatch call's tag argument) selects which mutex/barrier a
// caller means, since the dispatch contract itself is stateless.
type internalState struct {
	mu         sync.Mutex
	collisions map[uint8]*instlock.CollisionByte
	barriers   map[uint8]*instlock.Barrier
	reg        *instlock.Registry
	clock      atomic.Uint64
}

var internal = &internalState{
	collisions: make(map[uint8]*instlock.CollisionByte),
	barriers:   make(map[uint8]*instlock.Barrier),
	reg:        instlock.NewRegistry(),
}

func (s *internalState) collisionFor(tag uint8) *instlock.CollisionByte {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collisions[tag]
	if !ok {
		c = &instlock.CollisionByte{}
		s.collisions[tag] = c
	}
	return c
}

func (s *internalState) barrierFor(tag uint8) *instlock.Barrier {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.barriers[tag]
	if !ok {
		b = instlock.NewBarrier(s.reg)
		s.barriers[tag] = b
	}
	return b
}

func registerInternal(m *Manifest) {
	m.registerGeneric(Internal, FuncMutexTryLock, func(_, _, tag uint8, args ...uintptr) (uintptr, error) {
		whoami, position := uint8(0), uint32(0)
		if len(args) > 0 {
			whoami = uint8(args[0])
		}
		if len(args) > 1 {
			position = uint32(args[1])
		}
		if internal.collisionFor(tag).TryLock(whoami, position) {
			return 1, nil
		}
		return 0, nil
	})

	m.registerGeneric(Internal, FuncMutexUnlock, func(_, _, tag uint8, _ ...uintptr) (uintptr, error) {
		internal.collisionFor(tag).Unlock()
		return 0, nil
	})

	m.registerGeneric(Internal, FuncBarrierAdvance, func(_, _, tag uint8, args ...uintptr) (uintptr, error) {
		idx := uint8(0)
		state := instlock.Init
		if len(args) > 0 {
			idx = uint8(args[0])
		}
		if len(args) > 1 {
			state = instlock.ResetState(args[1])
		}
		internal.barrierFor(tag).Advance(idx, state)
		return 0, nil
	})

	m.registerGeneric(Internal, FuncBarrierWait, func(_, _, tag uint8, args ...uintptr) (uintptr, error) {
		idx := uint8(0)
		if len(args) > 0 {
			idx = uint8(args[0])
		}
		internal.barrierFor(tag).WaitForSiblings(idx)
		return 0, nil
	})

	m.registerGeneric(Internal, FuncKeyGenerate, func(_, _, _ uint8, _ ...uintptr) (uintptr, error) {
		id := xid.New()
		return uintptr(binary.BigEndian.Uint64(id[:8])), nil
	})

	m.registerGeneric(Internal, FuncClockTick, func(_, _, _ uint8, _ ...uintptr) (uintptr, error) {
		return uintptr(internal.clock.Add(1)), nil
	})
}
