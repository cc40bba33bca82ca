package services

import (
	"errors"
	"math"
	"math/cmplx"
)

// Math/DSPML group funcIDs: the biquad cascade filter, a radix-2 FFT, and
// the window functions a signal-processing node commonly reaches for,
// grounded on the cascaded-biquad filter component and its Q15/float32
// coefficient layout (b0, b1, b2, -a1, -a2 per stage, postShift applied to
// the Q15 accumulator only).
const (
	FuncBiquadCascadeInit uint8 = iota
	FuncBiquadCascadeRun
	FuncFFTRadix2
	FuncWindowHann
	FuncWindowHamming
)

// biquad variants selected by subFunc.
const (
	variantQ15 uint8 = iota
	variantF32
)

var errBadHandle = errors.New("services: argument is not a registered buffer of the expected type")

type biquadStageF32 struct {
	coeffs [5]float32 // b0, b1, b2, -a1, -a2
	d1, d2 float32
}

type biquadStageQ15 struct {
	coeffs    [5]int16
	postShift int8
	d1, d2    int32
}

type mathState struct {
	f32 map[uint8][]biquadStageF32
	q15 map[uint8][]biquadStageQ15
}

var mth = &mathState{
	f32: make(map[uint8][]biquadStageF32),
	q15: make(map[uint8][]biquadStageQ15),
}

func registerMath(m *Manifest) {
	for _, g := range []Group{Math, DSPML} {
		m.registerGeneric(g, FuncBiquadCascadeInit, biquadInit)
		m.registerGeneric(g, FuncBiquadCascadeRun, biquadRun)
		m.registerGeneric(g, FuncFFTRadix2, fftRadix2)
		m.registerGeneric(g, FuncWindowHann, func(_, _, _ uint8, args ...uintptr) (uintptr, error) {
			return windowFunc(args, hannCoefficient)
		})
		m.registerGeneric(g, FuncWindowHamming, func(_, _, _ uint8, args ...uintptr) (uintptr, error) {
			return windowFunc(args, hammingCoefficient)
		})
	}
}

// biquadInit builds a cascade of numStages biquads for tag, reading the
// coefficient layout (5 entries per stage) from the registered buffer
// handle in args[1]. args: [numStages, coeffsHandle, postShift].
func biquadInit(subFunc, _, tag uint8, args ...uintptr) (uintptr, error) {
	if len(args) < 2 {
		return 0, errors.New("services: biquad init needs numStages and a coefficients handle")
	}
	numStages := int(args[0])

	switch subFunc {
	case variantQ15:
		coeffs, ok := lookupBuffer[[][5]int16](args[1])
		if !ok || len(coeffs) < numStages {
			return 0, errBadHandle
		}
		postShift := int8(0)
		if len(args) > 2 {
			postShift = int8(args[2])
		}
		stages := make([]biquadStageQ15, numStages)
		for i := 0; i < numStages; i++ {
			stages[i] = biquadStageQ15{coeffs: coeffs[i], postShift: postShift}
		}
		mth.q15[tag] = stages
	case variantF32:
		coeffs, ok := lookupBuffer[[][5]float32](args[1])
		if !ok || len(coeffs) < numStages {
			return 0, errBadHandle
		}
		stages := make([]biquadStageF32, numStages)
		for i := 0; i < numStages; i++ {
			stages[i] = biquadStageF32{coeffs: coeffs[i]}
		}
		mth.f32[tag] = stages
	default:
		return 0, errors.New("services: unknown biquad variant")
	}
	return 0, nil
}

// biquadRun filters the samples in args[0]'s handle through tag's cascade,
// writing the result in place and returning the same handle.
func biquadRun(subFunc, _, tag uint8, args ...uintptr) (uintptr, error) {
	if len(args) < 1 {
		return 0, errors.New("services: biquad run needs a sample-buffer handle")
	}
	switch subFunc {
	case variantQ15:
		stages, ok := mth.q15[tag]
		if !ok {
			return 0, errors.New("services: biquad q15 cascade not initialized for this tag")
		}
		samples, ok := lookupBuffer[[]int16](args[0])
		if !ok {
			return 0, errBadHandle
		}
		for n := range samples {
			x := int32(samples[n])
			for s := range stages {
				st := &stages[s]
				y := (int32(st.coeffs[0])*x + st.d1) >> uint(st.postShift)
				y = clampQ15(y)
				st.d1 = int32(st.coeffs[1])*x + int32(st.coeffs[3])*y + st.d2
				st.d2 = int32(st.coeffs[2])*x + int32(st.coeffs[4])*y
				x = y
			}
			samples[n] = int16(x)
		}
		return args[0], nil
	case variantF32:
		stages, ok := mth.f32[tag]
		if !ok {
			return 0, errors.New("services: biquad f32 cascade not initialized for this tag")
		}
		samples, ok := lookupBuffer[[]float32](args[0])
		if !ok {
			return 0, errBadHandle
		}
		for n := range samples {
			x := samples[n]
			for s := range stages {
				st := &stages[s]
				y := st.coeffs[0]*x + st.d1
				st.d1 = st.coeffs[1]*x + st.coeffs[3]*y + st.d2
				st.d2 = st.coeffs[2]*x + st.coeffs[4]*y
				x = y
			}
			samples[n] = x
		}
		return args[0], nil
	}
	return 0, errors.New("services: unknown biquad variant")
}

func clampQ15(v int32) int32 {
	const maxQ15 = 1<<15 - 1
	const minQ15 = -(1 << 15)
	if v > maxQ15 {
		return maxQ15
	}
	if v < minQ15 {
		return minQ15
	}
	return v
}

// fftRadix2 runs an in-place decimation-in-time FFT over a power-of-two
// complex128 buffer; no CMSIS-style fixed-point variant exists upstream, so
// this is the generic reference backend's only precision.
func fftRadix2(_, _, _ uint8, args ...uintptr) (uintptr, error) {
	if len(args) < 1 {
		return 0, errors.New("services: fft needs a complex-buffer handle")
	}
	buf, ok := lookupBuffer[[]complex128](args[0])
	if !ok {
		return 0, errBadHandle
	}
	n := len(buf)
	if n == 0 || n&(n-1) != 0 {
		return 0, errors.New("services: fft buffer length must be a power of two")
	}

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j &^= bit
		}
		j |= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		w := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			wn := complex(1, 0)
			for k := 0; k < half; k++ {
				even := buf[start+k]
				odd := buf[start+k+half] * wn
				buf[start+k] = even + odd
				buf[start+k+half] = even - odd
				wn *= w
			}
		}
	}
	return args[0], nil
}

func hannCoefficient(n, size int) float64 {
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(size-1)))
}

func hammingCoefficient(n, size int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(size-1))
}

func windowFunc(args []uintptr, coeff func(n, size int) float64) (uintptr, error) {
	if len(args) < 1 {
		return 0, errors.New("services: window function needs a sample-buffer handle")
	}
	buf, ok := lookupBuffer[[]float32](args[0])
	if !ok {
		return 0, errBadHandle
	}
	for n := range buf {
		buf[n] *= float32(coeff(n, len(buf)))
	}
	return args[0], nil
}
