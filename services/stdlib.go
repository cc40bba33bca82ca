package services

import "errors"

// Stdlib group funcIDs: the handful of libc primitives node bodies expect
// regardless of platform.
const (
	FuncMemCopy uint8 = iota
	FuncMemSet
	FuncStrLen
)

func registerStdlib(m *Manifest) {
	m.registerGeneric(Stdlib, FuncMemCopy, func(_, _, _ uint8, args ...uintptr) (uintptr, error) {
		if len(args) < 2 {
			return 0, errors.New("services: memcopy needs a destination and a source handle")
		}
		dst, ok := lookupBuffer[[]byte](args[0])
		if !ok {
			return 0, errBadHandle
		}
		src, ok := lookupBuffer[[]byte](args[1])
		if !ok {
			return 0, errBadHandle
		}
		n := copy(dst, src)
		return uintptr(n), nil
	})

	m.registerGeneric(Stdlib, FuncMemSet, func(_, _, _ uint8, args ...uintptr) (uintptr, error) {
		if len(args) < 2 {
			return 0, errors.New("services: memset needs a destination handle and a fill value")
		}
		dst, ok := lookupBuffer[[]byte](args[0])
		if !ok {
			return 0, errBadHandle
		}
		v := byte(args[1])
		for i := range dst {
			dst[i] = v
		}
		return uintptr(len(dst)), nil
	})

	m.registerGeneric(Stdlib, FuncStrLen, func(_, _, _ uint8, args ...uintptr) (uintptr, error) {
		if len(args) < 1 {
			return 0, errors.New("services: strlen needs a buffer handle")
		}
		buf, ok := lookupBuffer[[]byte](args[0])
		if !ok {
			return 0, errBadHandle
		}
		for i, b := range buf {
			if b == 0 {
				return uintptr(i), nil
			}
		}
		return uintptr(len(buf)), nil
	})
}
