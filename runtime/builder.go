package runtime

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/nanograph/nanograph/arc"
	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/node"
	"github.com/nanograph/nanograph/scheduler"
)

// Builder assembles a Registry and one scheduler.Instance per requested
// processor, mirroring config.DeviceBuilder's chained With*/Build shape.
type Builder struct {
	engine      sim.Engine
	freq        sim.Freq
	instances   int
	entryPoints map[node.Index]node.Callable
	backup      BackupStore
	segMem      scheduler.SegmentMemory
}

// NewBuilder starts a Builder with 1 GHz / 1 instance defaults.
func NewBuilder() Builder {
	return Builder{freq: 1 * sim.GHz, instances: 1, backup: NoopBackupStore{}}
}

// WithEngine sets the discrete-event engine driving every instance.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the tick frequency shared by every instance.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithInstanceCount sets how many cooperating scheduler instances share the
// image (multi-core configuration).
func (b Builder) WithInstanceCount(n int) Builder {
	b.instances = n
	return b
}

// WithEntryPoints sets the node index -> Callable table; concrete node
// bodies are out of scope here, so the caller always supplies this.
func (b Builder) WithEntryPoints(entry map[node.Index]node.Callable) Builder {
	b.entryPoints = entry
	return b
}

// WithBackup sets the periodic-backup store.
func (b Builder) WithBackup(store BackupStore) Builder {
	b.backup = store
	return b
}

// WithSegmentMemory sets the memory-segment SWAP/WORK/CLEAR_AT_RESET
// backing store shared by every instance. Build supplies a fresh
// scheduler.InMemorySegments per instance when this is left unset.
func (b Builder) WithSegmentMemory(m scheduler.SegmentMemory) Builder {
	b.segMem = m
	return b
}

// Build decodes image's sections and constructs a Registry plus one
// scheduler.Instance per configured processor, each with its own bank
// offset table/codec but sharing the decoded arc/format/IO tables and the
// multi-instance registry/barrier.
func (b Builder) Build(name string, image *graph.Image) (*Registry, []*scheduler.Instance, error) {
	if b.engine == nil {
		return nil, nil, fmt.Errorf("runtime: Builder.Build requires WithEngine")
	}
	if len(b.entryPoints) == 0 {
		return nil, nil, fmt.Errorf("runtime: Builder.Build requires WithEntryPoints")
	}

	reg := NewRegistry(image).WithBackup(b.backup)

	// INPLACE sections are used directly out of the image; the others are
	// copied into RAM.
	load := func(id graph.SectionID) ([]uint32, error) {
		if image.Header.Sections[id].Inplace {
			return image.SectionWords(id, NewCodec(image.Header))
		}
		return image.CopySection(id, NewCodec(image.Header))
	}

	linkedList, err := load(graph.SectionLinkedList)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: loading linked-list section: %w", err)
	}
	arcWords, err := load(graph.SectionArcs)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: loading arcs section: %w", err)
	}
	formatWords, err := load(graph.SectionFormats)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: loading formats section: %w", err)
	}
	pioHWWords, err := load(graph.SectionPIOHW)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: loading PIO-HW section: %w", err)
	}
	pioGraphWords, err := load(graph.SectionPIOGraph)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: loading PIO-GRAPH section: %w", err)
	}

	// Arcs/formats/IO tables are shared by every cooperating instance:
	// one table, one backing slice.
	arcs := arc.NewDescriptorTable(arcWords)
	formats := graph.NewFormatTable(formatWords)
	pioHW := graph.NewPIOHWTable(pioHWWords)
	pioGraph := graph.NewPIOGraphTable(pioGraphWords)

	instances := make([]*scheduler.Instance, b.instances)
	for i := 0; i < b.instances; i++ {
		idx := uint8(i)
		cfg := scheduler.Config{
			Index:       idx,
			Codec:       NewCodec(image.Header),
			Image:       image,
			LinkedList:  linkedList,
			Arcs:        arcs,
			Formats:     formats,
			PIOHW:       pioHW,
			PIOGraph:    pioGraph,
			EntryPoints: b.entryPoints,
			Registry:    reg.Instances,
			Barrier:     reg.Barrier,
			SegmentMem:  b.segmentMemoryFor(),
		}
		instances[i] = scheduler.NewInstance(fmt.Sprintf("%s.instance%d", name, i), b.engine, b.freq, cfg)
	}

	reg.RegisterExitHook(name)
	return reg, instances, nil
}

// segmentMemoryFor returns the configured SegmentMemory, or a fresh
// per-instance scheduler.InMemorySegments if the caller never set one.
func (b Builder) segmentMemoryFor() scheduler.SegmentMemory {
	if b.segMem != nil {
		return b.segMem
	}
	return scheduler.NewInMemorySegments()
}
