// Package instlock implements the multi-instance coordination primitives:
// the process-wide instance registry, the best-effort per-node collision
// lock, the Lamport-bakery fallback mutex, and the cross-instance reset
// barrier.
package instlock

import (
	"fmt"
	"sync"
)

// Instance is the minimal surface the registry needs from a scheduler
// instance: enough to resolve an affinity index to a concrete instance
// without the registry importing package scheduler (which would create an
// import cycle, since scheduler uses the registry to resolve io_ack's
// "current runtime").
type Instance interface {
	InstanceIndex() uint8
}

// Registry is the process-wide table of all instance pointers, made an
// owned object rather than a package-global so io_ack receives it as an
// argument (or via a "current runtime" handle established at init) instead
// of reaching a hidden global: a read-mostly, write-rare registry guarded
// by a single RWMutex.
type Registry struct {
	mu        sync.RWMutex
	instances map[uint8]Instance
}

// NewRegistry builds an empty instance registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[uint8]Instance)}
}

// Register adds an instance under its own index. It panics on a duplicate
// index, since two scheduler instances sharing an affinity index is a
// configuration error the runtime should never silently tolerate.
func (r *Registry) Register(inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := inst.InstanceIndex()
	if _, exists := r.instances[idx]; exists {
		panic(fmt.Sprintf("instlock: duplicate instance index %d", idx))
	}
	r.instances[idx] = inst
}

// Unregister removes an instance, used by STOP/teardown paths.
func (r *Registry) Unregister(idx uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, idx)
}

// Get resolves an instance index to its Instance, the context switch io_ack
// performs as its first step when acknowledging a hardware IO request.
func (r *Registry) Get(idx uint8) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[idx]
	return inst, ok
}

// Len reports how many instances are currently registered; the reset
// barrier uses this to know how many siblings to wait for.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Each calls fn for every registered instance. fn must not call back into
// Register/Unregister.
func (r *Registry) Each(fn func(Instance)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		fn(inst)
	}
}
