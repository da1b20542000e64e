package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/logging"
	"github.com/thisislance98/claudia/pkg/paths"
)

// rotationCheck is how often a followed log is checked for a newer file.
const rotationCheck = 2 * time.Second

var textLineRegex = regexp.MustCompile(`^(?:\S+ \S+ )?\[([A-Z]+)\](?: \[([^\]]+)\])?`)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var (
		follow     bool
		lines      int
		components []string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints the newest claudia log file. With -f new lines are streamed and the
command switches to the next file when the log rotates at midnight.

Examples:
  # Follow engine and server logs
  claudia logs -f --component engine,server

  # Last 200 lines as JSON
  claudia logs -n 200 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			file, dir, err := logFileFor(cfg)
			if err != nil && (!follow || dir == "") {
				return err
			}

			p := &logPrinter{
				out:        cmd.OutOrStdout(),
				json:       cli.GetOptions(cmd).JSONOutput,
				components: make(map[string]bool),
			}
			for _, c := range components {
				p.components[c] = true
			}

			if file != "" {
				if err := p.printTail(file, lines); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}
			return p.follow(cmd.Context(), file, dir)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show from the end of the log (-1 for all)")
	cmd.Flags().StringSliceVar(&components, "component", nil, "Only show these components (comma-separated)")
	return cmd
}

// logFileFor returns the log file to read and the directory it lives in.
func logFileFor(cfg *config.Config) (file, dir string, err error) {
	var logCfg logging.Config
	if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
		return "", "", err
	}
	if logCfg.File.Path != "" {
		file = logging.FilePath(logCfg, time.Now())
		return file, filepath.Dir(file), nil
	}
	dir = paths.LogDir()
	file, err = findLatestLogFile(dir)
	return file, dir, err
}

// findLatestLogFile returns the most recently modified .log file in dir.
func findLatestLogFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not read log directory %s: %w", dir, err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, entry.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no log files found in %s", dir)
	}
	return latest, nil
}

type logPrinter struct {
	out        io.Writer
	json       bool
	components map[string]bool
}

// printTail prints the last n lines of path, or all of them when n < 0.
func (p *logPrinter) printTail(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if n >= 0 && len(buf) > n {
			buf = buf[1:]
		}
	}
	for _, line := range buf {
		p.print(line)
	}
	return scanner.Err()
}

// follow streams lines appended to file, switching to newer files in dir.
func (p *logPrinter) follow(ctx context.Context, file, dir string) error {
	ticker := time.NewTicker(rotationCheck)
	defer ticker.Stop()

	for file == "" {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			file, _ = findLatestLogFile(dir)
		}
	}

	start := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	for {
		t, err := tail.TailFile(file, tail.Config{
			Follow:   true,
			ReOpen:   true,
			Location: start,
			Logger:   tail.DiscardingLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to follow %s: %w", file, err)
		}

		next := ""
		for next == "" {
			select {
			case <-ctx.Done():
				_ = t.Stop()
				t.Cleanup()
				return nil
			case line, ok := <-t.Lines:
				if !ok {
					return t.Err()
				}
				if line.Err == nil {
					p.print(line.Text)
				}
			case <-ticker.C:
				if latest, err := findLatestLogFile(dir); err == nil && latest != file {
					next = latest
				}
			}
		}
		_ = t.Stop()
		t.Cleanup()
		file = next
		start = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
}

// lineComponent extracts the component of a JSON or text log line.
func lineComponent(line string) string {
	var entry map[string]interface{}
	if json.Unmarshal([]byte(line), &entry) == nil {
		c, _ := entry["component"].(string)
		return c
	}
	if m := textLineRegex.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	return ""
}

func (p *logPrinter) print(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(p.components) > 0 && !p.components[lineComponent(line)] {
		return
	}

	var entry map[string]interface{}
	isJSON := json.Unmarshal([]byte(line), &entry) == nil
	if p.json {
		if !isJSON {
			entry = map[string]interface{}{"raw_line": line, "component": lineComponent(line)}
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(p.out, string(data))
		return
	}
	if !isJSON {
		fmt.Fprintln(p.out, line)
		return
	}
	fmt.Fprintln(p.out, formatJSONEntry(entry))
}

// formatJSONEntry renders a logrus JSON entry like the text formatter.
func formatJSONEntry(entry map[string]interface{}) string {
	ts, _ := entry["time"].(string)
	level, _ := entry["level"].(string)
	msg, _ := entry["msg"].(string)
	component, _ := entry["component"].(string)

	timeStr := ts
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		timeStr = parsed.Local().Format("2006-01-02 15:04:05")
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	case "warning":
		level = "warn"
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	case "info":
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	default:
		levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}

	var keys []string
	for k := range entry {
		switch k {
		case "time", "level", "msg", "component":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(timeStr)
	b.WriteString(" " + levelStyle.Render("["+strings.ToUpper(level)+"]"))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	b.WriteString(" " + msg)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", cli.Muted(k), entry[k]))
	}
	return b.String()
}
