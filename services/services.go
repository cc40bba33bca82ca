// Package services implements the services dispatch contract: a single
// routing function nodes call to reach platform or generic functionality
// (barriers, math kernels, memory primitives) without linking against a
// concrete library directly.
package services

import "errors"

// Group is the top-level dispatch category.
type Group uint8

const (
	Internal Group = iota
	Script
	Stdlib
	Math
	DSPML
	DeepLearning
	Audio
	Image
	numGroups
)

// ErrUnknownFunction is returned when no override and no generic backend
// implements (group, funcID).
var ErrUnknownFunction = errors.New("services: no override and no generic backend for this function")

// Func is one generic-backend implementation: subFunc/option/tag select a
// variant (e.g. q15 vs f32), args carry the service's fixed-shape argument
// list, and the return value is the service's single result word, matching
// the original's narrow (subFunc, option, tag, args...) -> result contract.
type Func func(subFunc, option, tag uint8, args ...uintptr) (uintptr, error)

// Manifest is a function table keyed by (group, funcID), with an optional
// platform override per entry — grounded on the "manifest of overrides"
// shape `platform_io_services.c`/`top_manifest.c` use in the original
// source: the platform fills in what it provides, the generic backend fills
// the rest.
type Manifest struct {
	overrides map[key]Func
	generic   map[key]Func
}

type key struct {
	group  Group
	funcID uint8
}

// NewManifest builds a manifest pre-populated with the generic reference
// backend (Internal, Math/DSPML, Stdlib); DeepLearning/Audio/Image/Script
// have no generic backend and must be supplied by a platform override or
// they return ErrUnknownFunction.
func NewManifest() *Manifest {
	m := &Manifest{
		overrides: make(map[key]Func),
		generic:   make(map[key]Func),
	}
	registerInternal(m)
	registerMath(m)
	registerStdlib(m)
	return m
}

// Override installs a platform-specific implementation for (group, funcID),
// checked before the generic backend on every Dispatch call.
func (m *Manifest) Override(group Group, funcID uint8, fn Func) {
	m.overrides[key{group, funcID}] = fn
}

func (m *Manifest) registerGeneric(group Group, funcID uint8, fn Func) {
	m.generic[key{group, funcID}] = fn
}

// Dispatch routes a call by (group, funcID), trying the platform override
// first and the generic backend second.
func (m *Manifest) Dispatch(group Group, funcID, subFunc, option, tag uint8, args ...uintptr) (uintptr, error) {
	k := key{group, funcID}
	if fn, ok := m.overrides[k]; ok {
		return fn(subFunc, option, tag, args...)
	}
	if fn, ok := m.generic[k]; ok {
		return fn(subFunc, option, tag, args...)
	}
	return 0, ErrUnknownFunction
}
