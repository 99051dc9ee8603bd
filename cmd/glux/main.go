// Glux CLI - loads and validates Glulx gamefiles and prepares them to run
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/glux/config"
	"github.com/chazu/glux/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("glux")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	info := flag.Bool("info", false, "Print header and capability information and exit")
	noVerify := flag.Bool("no-verify", false, "Skip the gamefile checksum check")
	configDir := flag.String("config", ".", "Directory to search for glux.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: glux [options] gamefile.ulx\n\n")
		fmt.Fprintf(os.Stderr, "Validates a Glulx gamefile and sets up a machine for it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  glux game.ulx           # Validate and set up\n")
		fmt.Fprintf(os.Stderr, "  glux -info game.ulx     # Show header fields and gestalt table\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}
	log.Infof("loaded %s (%d bytes)", path, len(data))

	machine, err := vm.NewVM(data, vm.Options{
		MemCeiling: cfg.Interpreter.MemCeiling,
		SkipVerify: *noVerify || cfg.Interpreter.SkipVerify,
	})
	if err != nil {
		report(err)
	}
	log.Infof("machine ready: ramstart=%#x endmem=%#x stacksize=%#x",
		machine.RAMStart(), machine.EndMem(), machine.StackSize())

	if *info {
		printInfo(machine)
		return
	}

	h := machine.Header()
	fmt.Printf("%s: Glulx %d.%d.%d, start function at %#x\n", path,
		h.Version>>16, (h.Version>>8)&0xFF, h.Version&0xFF, h.StartFunc)
}

// printInfo dumps the header fields and the gestalt capability table.
func printInfo(machine *vm.VM) {
	h := machine.Header()
	fmt.Printf("version:      %d.%d.%d\n", h.Version>>16, (h.Version>>8)&0xFF, h.Version&0xFF)
	fmt.Printf("ramstart:     %#x\n", h.RAMStart)
	fmt.Printf("extstart:     %#x\n", h.ExtStart)
	fmt.Printf("endmem:       %#x\n", h.EndMem)
	fmt.Printf("stacksize:    %#x\n", h.StackSize)
	fmt.Printf("startfunc:    %#x\n", h.StartFunc)
	fmt.Printf("decodingtbl:  %#x\n", h.DecodingTbl)
	fmt.Printf("checksum:     %#x\n", h.Checksum)

	selectors := []struct {
		name string
		sel  uint32
	}{
		{"GlulxVersion", vm.GestaltGlulxVersion},
		{"TerpVersion", vm.GestaltTerpVersion},
		{"ResizeMem", vm.GestaltResizeMem},
		{"MemCopy", vm.GestaltMemCopy},
		{"MAlloc", vm.GestaltMAlloc},
		{"MAllocHeap", vm.GestaltMAllocHeap},
		{"Acceleration", vm.GestaltAcceleration},
		{"Float", vm.GestaltFloat},
		{"Double", vm.GestaltDouble},
	}
	fmt.Printf("gestalt:\n")
	for _, s := range selectors {
		fmt.Printf("  %-13s %#x\n", s.name, machine.DoGestalt(s.sel, 0))
	}
}

// report renders an engine failure the way the machine's host is expected
// to: traps with their canned message, fatal conditions with their
// diagnostic. Both terminate with failure status.
func report(err error) {
	var trap *vm.Trap
	if errors.As(err, &trap) {
		fmt.Printf("!%s\n", trap.Message())
		os.Exit(1)
	}
	var fatal *vm.FatalError
	if errors.As(err, &fatal) {
		fmt.Printf("?%s\n", fatal.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
