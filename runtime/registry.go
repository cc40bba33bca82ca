// Package runtime wires a decoded graph image to one or more scheduler
// instances: the RAM-copy-vs-inplace decision at reset, the process-wide
// instance registry, the fatal error log, and the pluggable backup hook,
// using the same chained-builder device assembly and engine/tile wiring
// idiom as the rest of this codebase.
package runtime

import (
	"log/slog"

	"github.com/tebeka/atexit"

	"github.com/nanograph/nanograph/addr"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/instlock"
)

// ErrorLog is the fatal-error bitset, one bit per instance, shared across
// every instance in a Registry so a platform-level monitor
// can inspect which instances are wedged without reaching into each one.
type ErrorLog struct {
	bits map[uint8]uint64
}

// NewErrorLog builds an empty error log.
func NewErrorLog() *ErrorLog { return &ErrorLog{bits: make(map[uint8]uint64)} }

// Set marks instance idx fatally errored.
func (e *ErrorLog) Set(idx uint8) { e.bits[idx] |= 1 }

// Clear resets instance idx's fatal bit, as a fresh RESET does.
func (e *ErrorLog) Clear(idx uint8) { delete(e.bits, idx) }

// Has reports whether instance idx is marked fatally errored.
func (e *ErrorLog) Has(idx uint8) bool { return e.bits[idx]&1 != 0 }

// BackupStore is the pluggable periodic-backup hook for memory segments;
// nothing in the scheduler calls it. Persistence itself is a
// platform concern, matching config.DeviceBuilder.WithMemoryMode's
// pluggable-backend-selection shape. The zero value's NoopBackupStore never
// persists anything.
type BackupStore interface {
	Backup(segmentID uint32, data []byte) error
}

// NoopBackupStore discards every backup, the default for targets with no
// persistence requirement.
type NoopBackupStore struct{}

// Backup implements BackupStore by discarding data.
func (NoopBackupStore) Backup(uint32, []byte) error { return nil }

// Registry is the runtime root: the loaded image, the shared instance
// registry and reset barrier, the fatal error log, and the backup store,
// all the state that survives across RESET/RUN/STOP calls regardless of
// which instance is currently interpreting.
type Registry struct {
	Image *graph.Image

	Instances *instlock.Registry
	Barrier   *instlock.Barrier

	Errors *ErrorLog
	Backup BackupStore

	atexitRegistered bool
}

// NewRegistry builds a runtime root over a decoded image.
func NewRegistry(image *graph.Image) *Registry {
	instances := instlock.NewRegistry()
	return &Registry{
		Image:     image,
		Instances: instances,
		Barrier:   instlock.NewBarrier(instances),
		Errors:    NewErrorLog(),
		Backup:    NoopBackupStore{},
	}
}

// WithBackup overrides the backup store.
func (r *Registry) WithBackup(b BackupStore) *Registry {
	r.Backup = b
	return r
}

// RegisterExitHook installs a process-exit hook (via atexit) that logs a
// final line with the registry name, the number of registered instances and
// how many of them are marked in the error log. The instance registry is
// left as it is. Safe to call more than once; only the first call installs
// the hook.
func (r *Registry) RegisterExitHook(name string) {
	if r.atexitRegistered {
		return
	}
	r.atexitRegistered = true
	atexit.Register(func() {
		errored := 0
		for idx := range r.Errors.bits {
			if r.Errors.Has(idx) {
				errored++
			}
		}
		slog.Info("nanograph: runtime shutdown", "registry", name, "instances", r.Instances.Len(), "errored", errored)
	})
}

// BankOffsetTable returns the bank offset table that NewCodec builds a
// scheduler instance's addr.Codec from, copying the image's bank usage as
// the seed offsets a real platform init routine would replace with actual
// allocated addresses.
func BankOffsetTable(h *graph.Header) []int64 {
	offsets := make([]int64, len(h.BankUsage))
	for i, usage := range h.BankUsage {
		offsets[i] = int64(usage)
	}
	return offsets
}

// NewCodec builds the per-instance packed-address codec from the image
// header's bank-usage table.
func NewCodec(h *graph.Header) *addr.Codec {
	return addr.NewCodec(BankOffsetTable(h))
}
