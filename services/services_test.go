package services

import "testing"

func TestDispatchUnknownFunctionReturnsError(t *testing.T) {
	m := NewManifest()
	if _, err := m.Dispatch(DeepLearning, 0, 0, 0, 0); err != ErrUnknownFunction {
		t.Fatalf("want ErrUnknownFunction, got %v", err)
	}
}

func TestOverrideTakesPrecedenceOverGeneric(t *testing.T) {
	m := NewManifest()
	called := false
	m.Override(Internal, FuncClockTick, func(_, _, _ uint8, _ ...uintptr) (uintptr, error) {
		called = true
		return 42, nil
	})

	got, err := m.Dispatch(Internal, FuncClockTick, 0, 0, 0)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatal("want override to be called instead of the generic backend")
	}
	if got != 42 {
		t.Fatalf("want override's result 42, got %d", got)
	}
}

func TestMutexTryLockThenUnlock(t *testing.T) {
	m := NewManifest()

	got, err := m.Dispatch(Internal, FuncMutexTryLock, 0, 0, 7, 1, 100)
	if err != nil || got != 1 {
		t.Fatalf("want first try-lock to succeed, got %d err=%v", got, err)
	}

	if _, err := m.Dispatch(Internal, FuncMutexUnlock, 0, 0, 7); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	got, err = m.Dispatch(Internal, FuncMutexTryLock, 0, 0, 7, 2, 200)
	if err != nil || got != 1 {
		t.Fatalf("want try-lock after unlock to succeed, got %d err=%v", got, err)
	}
}

func TestKeyGenerateProducesDistinctValues(t *testing.T) {
	m := NewManifest()
	a, err := m.Dispatch(Internal, FuncKeyGenerate, 0, 0, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := m.Dispatch(Internal, FuncKeyGenerate, 0, 0, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatal("want two successive key generations to differ")
	}
}

func TestClockTickIsMonotonic(t *testing.T) {
	m := NewManifest()
	a, _ := m.Dispatch(Internal, FuncClockTick, 0, 0, 0)
	b, _ := m.Dispatch(Internal, FuncClockTick, 0, 0, 0)
	if b <= a {
		t.Fatalf("want clock to advance, got a=%d b=%d", a, b)
	}
}

func TestBiquadCascadeF32PassesThroughAtUnityGain(t *testing.T) {
	m := NewManifest()

	coeffs := [][5]float32{{1, 0, 0, 0, 0}} // identity biquad
	coeffsH := RegisterBuffer(coeffs)

	if _, err := m.Dispatch(Math, FuncBiquadCascadeInit, variantF32, 0, 9, 1, uintptr(coeffsH)); err != nil {
		t.Fatalf("init: %v", err)
	}

	samples := []float32{1, 2, 3, 4}
	samplesH := RegisterBuffer(samples)

	if _, err := m.Dispatch(Math, FuncBiquadCascadeRun, variantF32, 0, 9, uintptr(samplesH)); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []float32{1, 2, 3, 4}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: want %v, got %v", i, want[i], samples[i])
		}
	}
}

func TestBiquadCascadeQ15Unity(t *testing.T) {
	m := NewManifest()

	coeffs := [][5]int16{{1 << 0, 0, 0, 0, 0}}
	coeffsH := RegisterBuffer(coeffs)

	if _, err := m.Dispatch(Math, FuncBiquadCascadeInit, variantQ15, 0, 3, 1, uintptr(coeffsH), 0); err != nil {
		t.Fatalf("init: %v", err)
	}

	samples := []int16{10, 20, 30}
	samplesH := RegisterBuffer(samples)

	if _, err := m.Dispatch(Math, FuncBiquadCascadeRun, variantQ15, 0, 3, uintptr(samplesH)); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []int16{10, 20, 30}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: want %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestFFTRadix2OfImpulseIsFlat(t *testing.T) {
	m := NewManifest()
	buf := make([]complex128, 8)
	buf[0] = 1
	h := RegisterBuffer(buf)

	if _, err := m.Dispatch(Math, FuncFFTRadix2, 0, 0, 0, uintptr(h)); err != nil {
		t.Fatalf("fft: %v", err)
	}
	for i, c := range buf {
		if real(c) != 1 || imag(c) != 0 {
			t.Fatalf("bin %d: want 1+0i for an impulse's spectrum, got %v", i, c)
		}
	}
}

func TestWindowHannZerosTheEdges(t *testing.T) {
	m := NewManifest()
	buf := []float32{1, 1, 1, 1, 1}
	h := RegisterBuffer(buf)

	if _, err := m.Dispatch(Math, FuncWindowHann, 0, 0, 0, uintptr(h)); err != nil {
		t.Fatalf("window: %v", err)
	}
	if buf[0] != 0 {
		t.Fatalf("want Hann window to zero the first sample, got %v", buf[0])
	}
	if buf[len(buf)-1] != 0 {
		t.Fatalf("want Hann window to zero the last sample, got %v", buf[len(buf)-1])
	}
}

func TestMemCopyAndMemSetAndStrLen(t *testing.T) {
	m := NewManifest()

	src := []byte("hello")
	dst := make([]byte, 5)
	srcH := RegisterBuffer(src)
	dstH := RegisterBuffer(dst)

	n, err := m.Dispatch(Stdlib, FuncMemCopy, 0, 0, 0, uintptr(dstH), uintptr(srcH))
	if err != nil || n != 5 {
		t.Fatalf("memcopy: n=%d err=%v", n, err)
	}
	if string(dst) != "hello" {
		t.Fatalf("want dst to read 'hello', got %q", dst)
	}

	if _, err := m.Dispatch(Stdlib, FuncMemSet, 0, 0, 0, uintptr(dstH), uintptr('x')); err != nil {
		t.Fatalf("memset: %v", err)
	}
	if string(dst) != "xxxxx" {
		t.Fatalf("want dst filled with 'x', got %q", dst)
	}

	nulTerminated := []byte("abc\x00junk")
	ntH := RegisterBuffer(nulTerminated)
	length, err := m.Dispatch(Stdlib, FuncStrLen, 0, 0, 0, uintptr(ntH))
	if err != nil || length != 3 {
		t.Fatalf("strlen: want 3, got %d err=%v", length, err)
	}
}
