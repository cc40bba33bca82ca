// Command nanographsim loads a compiled NanoGraph image and runs it to
// completion on a discrete-event engine, reporting per-instance flow-error
// stats at the end. It has no concrete node bodies of its own: every node
// index decodes to the null entry point unless the image only exercises
// RESET/RUN bookkeeping, making this a scheduler/arc-engine smoke test
// rather than a product runtime: build the engine, schedule the first
// tick, run to quiescence.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/sim"
	"gopkg.in/yaml.v3"

	"github.com/nanograph/nanograph/graph"
	"github.com/nanograph/nanograph/node"
	"github.com/nanograph/nanograph/runtime"
	"github.com/nanograph/nanograph/scheduler"
)

// symbolMap maps an arc id to a display name, loaded from a small YAML file
// (the graph compiler that would emit one is out of scope; this is strictly
// a diagnostics aid). The final report logs how many entries were loaded;
// it renames nothing.
type symbolMap map[uint16]string

func loadSymbols(path string) symbolMap {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("nanographsim: reading symbol map, continuing without it", "path", path, "err", err)
		return nil
	}
	var syms symbolMap
	if err := yaml.Unmarshal(data, &syms); err != nil {
		slog.Warn("nanographsim: parsing symbol map, continuing without it", "path", path, "err", err)
		return nil
	}
	return syms
}

func main() {
	imagePath := flag.String("image", os.Getenv("NANOGRAPH_IMAGE"), "path to a compiled NanoGraph binary image")
	instanceCount := flag.Int("instances", 1, "number of cooperating scheduler instances")
	symbolsPath := flag.String("symbols", "", "optional YAML file mapping arc id to a display name")
	flag.Parse()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "nanographsim: -image (or NANOGRAPH_IMAGE) is required")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*imagePath)
	if err != nil {
		slog.Error("nanographsim: reading image", "path", *imagePath, "err", err)
		os.Exit(1)
	}

	image, err := graph.Parse(raw, nil)
	if err != nil {
		slog.Error("nanographsim: parsing image", "err", err)
		os.Exit(1)
	}

	printSections(image)

	engine := sim.NewSerialEngine()

	entry := map[node.Index]node.Callable{
		node.Null:           node.NullNode{},
		node.ReservedScript: node.ScriptNode{},
	}

	reg, instances, err := runtime.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithInstanceCount(*instanceCount).
		WithEntryPoints(entry).
		Build("nanographsim", image)
	if err != nil {
		slog.Error("nanographsim: building runtime", "err", err)
		os.Exit(1)
	}
	reg.RegisterExitHook("nanographsim")

	for _, in := range instances {
		if err := in.Interpret(scheduler.CmdReset, uintptr(node.ExtColdBoot), 0, nil); err != nil {
			slog.Error("nanographsim: reset", "instance", in.InstanceIndex(), "err", err)
			os.Exit(1)
		}
		if err := in.Interpret(scheduler.CmdRun, uintptr(scheduler.EndAllParsed), 0, nil); err != nil {
			slog.Error("nanographsim: run", "instance", in.InstanceIndex(), "err", err)
		}
		engine.Schedule(sim.MakeTickEvent(in.TickingComponent, 0))
	}

	engine.Run()

	printReport(instances, loadSymbols(*symbolsPath))
}

// printSections renders the image's decoded section table, title-casing
// each section name for readability.
func printSections(image *graph.Image) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Section", "Address Bank", "Size (bytes)", "Inplace"})
	for i, s := range image.Header.Sections {
		t.AppendRow(table.Row{toTitleCase(graph.SectionID(i).String()), s.Addr.Bank(), s.Size, s.Inplace})
	}
	t.Render()
}

// printReport renders one row per instance with its flow-error counters.
func printReport(instances []*scheduler.Instance, syms symbolMap) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Instance", "Overflows", "Underflows"})
	for _, in := range instances {
		stats := in.Stats()
		t.AppendRow(table.Row{in.InstanceIndex(), stats.TotalOverflow(), stats.TotalUnderflow()})
	}
	t.Render()

	if len(syms) > 0 {
		slog.Info("nanographsim: loaded symbol map", "entries", len(syms))
	}
}
