package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// CobraProfiler adds --cpu-profile, --mem-profile and --timing to a command
// tree and drives them from the persistent run hooks.
type CobraProfiler struct {
	cpuPath string
	memPath string
	timing  bool
	cpuFile *os.File
}

// NewCobraProfiler creates a profiler with every option off.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags registers the profiling flags on cmd and its children.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&p.cpuPath, "cpu-profile", "", "Write a CPU profile to `file`")
	flags.StringVar(&p.memPath, "mem-profile", "", "Write a heap profile to `file` on exit")
	flags.BoolVar(&p.timing, "timing", false, "Print a timing summary on exit")
	_ = flags.MarkHidden("cpu-profile")
	_ = flags.MarkHidden("mem-profile")
}

// PreRun starts the requested profiles. Use it from PersistentPreRunE.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	if p.timing {
		Enable()
	}
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

// PostRun stops profiling and writes the results to cmd's error stream.
// Use it from PersistentPostRun.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	out := cmd.ErrOrStderr()

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
		fmt.Fprintf(out, "CPU profile written to %s\n", p.cpuPath)
	}

	if p.memPath != "" {
		if err := writeHeapProfile(p.memPath); err != nil {
			fmt.Fprintf(out, "could not write memory profile: %v\n", err)
		} else {
			fmt.Fprintf(out, "Memory profile written to %s\n", p.memPath)
		}
	}

	if p.timing {
		Summarize(out)
	}
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
