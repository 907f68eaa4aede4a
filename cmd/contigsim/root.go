package main

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/oslab/contigsim/alloc"
	"github.com/oslab/contigsim/monitoring"
	"github.com/oslab/contigsim/recording"
	"github.com/oslab/contigsim/shell"
	"github.com/oslab/contigsim/tracing"
)

var (
	capacity    int
	traceOn     bool
	recordOn    bool
	recordFile  string
	monitorOn   bool
	monitorPort int
	openBrowser bool
)

var rootCmd = &cobra.Command{
	Use: "contigsim",
	Short: "contigsim simulates contiguous-memory allocation with " +
		"first-fit, best-fit, and worst-fit placement",
	Long: `contigsim maintains a partition of a fixed address range into ` +
		`allocated and free blocks. Commands request allocations under one ` +
		`of the classic placement strategies, release them with immediate ` +
		`coalescing, compact the space, and report the partition.

Without a subcommand, contigsim reads commands interactively:

  RQ <owner> <size> <F|B|W>  request an allocation
  RL <owner>                 release the owner's memory
  C                          compact the address space
  STAT                       report the partition
  X                          quit`,
	RunE: func(_ *cobra.Command, _ []string) error {
		sh := buildShell(os.Stdout).WithPrompt()
		return sh.Run(os.Stdin)
	},
}

// Execute runs the command tree. It exits through atexit so that a recording
// session is flushed even on failure.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	// A .env file can carry the same settings as the flags. Flags win.
	_ = godotenv.Load()

	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&capacity, "capacity", "c",
		envInt("CONTIGSIM_CAPACITY", 1048576),
		"total size of the simulated address space")
	flags.BoolVar(&traceOn, "trace", false,
		"log every allocator operation to stderr")
	flags.BoolVar(&recordOn, "record",
		os.Getenv("CONTIGSIM_RECORD") != "",
		"record operations into a SQLite trace database")
	flags.StringVar(&recordFile, "record-file",
		os.Getenv("CONTIGSIM_RECORD"),
		"trace database name (default: a generated name)")
	flags.BoolVar(&monitorOn, "monitor", false,
		"serve the allocator state over HTTP while running")
	flags.IntVar(&monitorPort, "monitor-port",
		envInt("CONTIGSIM_MONITOR_PORT", 0),
		"port for the monitoring server (default: a random port)")
	flags.BoolVar(&openBrowser, "open-browser", false,
		"open the monitoring page in a browser")
}

// buildShell assembles the allocator with the configured tracers and the
// monitor, and wraps it in a shell writing to out.
func buildShell(out *os.File) *shell.Shell {
	a := alloc.NewAllocator(capacity)

	if traceOn {
		a.AcceptHook(tracing.NewTracer(log.New(os.Stderr, "", 0)))
	}

	if recordOn {
		recorder := recording.NewDataRecorder(recordFile)
		a.AcceptHook(tracing.NewDBTracer(recorder))
	}

	sh := shell.New(a, out)

	if monitorOn {
		monitor := monitoring.NewMonitor()
		if monitorPort > 0 {
			monitor.WithPortNumber(monitorPort)
		}
		if openBrowser {
			monitor.WithBrowser()
		}

		monitor.RegisterAllocator(a)
		monitor.StartServer()

		sh.WithExclusion(monitor.Exclusive)
	}

	return sh
}

func envInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		log.Panicf("%s must be an integer, got %q", name, value)
	}

	return n
}
