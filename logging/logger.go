package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/pkg/paths"
	"github.com/thisislance98/claudia/util/pathutil"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	files     = make(map[string]*os.File)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	cfg, err := config.LoadDefault()
	if err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	entry := newLogger(component, logCfg, os.Stderr)
	loggers[component] = entry
	return entry
}

// Reset drops every cached logger and closes shared log files.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	loggers = make(map[string]*logrus.Entry)
	for path, f := range files {
		f.Close()
		delete(files, path)
	}
}

func newLogger(component string, logCfg Config, stderr *os.File) *logrus.Entry {
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("CLAUDIA_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if override, ok := logCfg.Components[component]; ok {
		levelStr = override
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("CLAUDIA_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	interactive := isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd())

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}, Plain: true})
	default:
		// The file sink shares the formatter, so color only reaches a bare terminal.
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format, Plain: !interactive || !logCfg.File.Disabled})
	}

	var writers []io.Writer

	if !logCfg.File.Disabled {
		path := FilePath(logCfg, time.Now())
		if f, err := openShared(path); err == nil {
			writers = append(writers, f)
		} else if logCfg.File.Path != "" {
			logger.Warnf("Failed to open log file %s: %v", path, err)
		}
	}

	toStderr := false
	switch logCfg.Format.StructuredToStderr {
	case "always":
		toStderr = true
	case "never":
	default:
		// auto: only when debugging or when stderr is not a terminal
		isDebug := os.Getenv("CLAUDIA_DEBUG") == "1" || logger.GetLevel() >= logrus.DebugLevel
		toStderr = isDebug || !interactive
	}
	if toStderr {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return logger.WithField("component", component)
}

// FilePath returns the log file all components write to on day t.
func FilePath(logCfg Config, t time.Time) string {
	if logCfg.File.Path != "" {
		return pathutil.MustExpand(logCfg.File.Path)
	}
	return filepath.Join(paths.LogDir(), fmt.Sprintf("claudia-%s.log", t.Format("2006-01-02")))
}

// openShared opens path for appending once per process. Callers hold loggersMu.
func openShared(path string) (*os.File, error) {
	if f, ok := files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	files[path] = f
	return f, nil
}

