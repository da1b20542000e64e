package profiling

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerDisabled(t *testing.T) {
	var tm Timer
	tm.Start("ignored").Stop()

	var out bytes.Buffer
	tm.Summarize(&out)
	assert.Empty(t, out.String())
}

func TestTimerNesting(t *testing.T) {
	var tm Timer
	tm.Enable()

	outer := tm.Start("daemon.start")
	inner := tm.Start("engine.load")
	time.Sleep(time.Millisecond)
	inner.Stop()
	outer.Stop()
	tm.Start("server.listen").Stop()

	var out bytes.Buffer
	tm.Summarize(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Timing")
	assert.True(t, strings.HasPrefix(lines[1], "  daemon.start"))
	assert.True(t, strings.HasPrefix(lines[2], "    engine.load"))
	assert.True(t, strings.HasPrefix(lines[3], "  server.listen"))
}

func TestTimerUnstoppedChild(t *testing.T) {
	var tm Timer
	tm.Enable()

	outer := tm.Start("outer")
	tm.Start("leaked")
	outer.Stop()
	tm.Start("next").Stop()

	var out bytes.Buffer
	tm.Summarize(&out)
	assert.Contains(t, out.String(), "leaked  open")
	assert.Contains(t, out.String(), "\n  next")
}

func TestCobraProfiler(t *testing.T) {
	dir := t.TempDir()
	memPath := filepath.Join(dir, "mem.pprof")

	p := NewCobraProfiler()
	root := &cobra.Command{
		Use:               "app",
		PersistentPreRunE: p.PreRun,
		PersistentPostRun: p.PostRun,
		Run:               func(cmd *cobra.Command, args []string) {},
	}
	p.AddFlags(root)

	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetArgs([]string{"--mem-profile", memPath})
	require.NoError(t, root.Execute())

	info, err := os.Stat(memPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, stderr.String(), "Memory profile written to "+memPath)
}
