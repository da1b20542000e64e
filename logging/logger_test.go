package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/pkg/paths"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(paths.HomeEnv, home)
	t.Setenv("CLAUDIA_CONFIG", "")
	t.Setenv("CLAUDIA_LOG_LEVEL", "")
	t.Setenv("CLAUDIA_LOG_CALLER", "")
	Reset()
	t.Cleanup(Reset)
	return home
}

func TestNewLogger(t *testing.T) {
	isolate(t)

	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
	if NewLogger("test-component") != logger {
		t.Error("Expected the cached logger to be returned")
	}
}

func TestLoggerWritesDailyFile(t *testing.T) {
	home := isolate(t)

	NewLogger("engine").Info("engine started")
	NewLogger("server").Info("server started")

	path := filepath.Join(home, "state", "logs", "claudia-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected shared log file at %s: %v", path, err)
	}
	out := string(data)
	for _, want := range []string{"[engine]", "engine started", "[server]", "server started"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log file to contain %q, got: %s", want, out)
		}
	}
}

func TestLoggerConfigExtension(t *testing.T) {
	home := isolate(t)

	logFile := filepath.Join(home, "custom.log")
	cfgFile := filepath.Join(home, "claudia.yml")
	content := "logging:\n  level: warn\n  format:\n    preset: json\n  file:\n    path: " + logFile + "\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLAUDIA_CONFIG", cfgFile)

	logger := NewLogger("cfg-test")
	if logger.Logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %v", logger.Logger.GetLevel())
	}
	if _, ok := logger.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Logger.Formatter)
	}

	logger.Warn("disk almost full")
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Expected configured log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"disk almost full"`) {
		t.Errorf("Expected JSON entry, got: %s", data)
	}
}

func TestComponentLevelOverride(t *testing.T) {
	home := isolate(t)

	cfgFile := filepath.Join(home, "claudia.yml")
	content := "logging:\n  level: warn\n  components:\n    engine: debug\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLAUDIA_CONFIG", cfgFile)

	if got := NewLogger("engine").Logger.GetLevel(); got != logrus.DebugLevel {
		t.Errorf("Expected debug level for engine, got %v", got)
	}
	if got := NewLogger("server").Logger.GetLevel(); got != logrus.WarnLevel {
		t.Errorf("Expected warn level for server, got %v", got)
	}
}

func TestEnvironmentVariables(t *testing.T) {
	isolate(t)
	t.Setenv("CLAUDIA_LOG_LEVEL", "debug")
	t.Setenv("CLAUDIA_LOG_CALLER", "true")

	logger := NewLogger("env-test")
	if logger.Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level from env, got %v", logger.Logger.GetLevel())
	}
	if !logger.Logger.ReportCaller {
		t.Error("Expected caller reporting to be enabled from env")
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "test-component",
					"key1":      "value1",
				},
			},
			want: []string{"[INFO]", "[test-component]", "test message", "key1=value1"},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "warning message",
				Data: logrus.Fields{
					"component": "test-component",
				},
			},
			want:    []string{"[WARN]", "warning message"},
			notWant: []string{"[test-component]"},
		},
		{
			name:   "caller information with function name",
			config: FormatConfig{},
			entry: func() *logrus.Entry {
				logger := logrus.New()
				logger.SetReportCaller(true)
				return &logrus.Entry{
					Logger:  logger,
					Level:   logrus.InfoLevel,
					Message: "test message with caller",
					Data: logrus.Fields{
						"component": "test-component",
					},
					Caller: &runtime.Frame{
						File:     "/path/to/file.go",
						Line:     42,
						Function: "github.com/example/package.TestFunction",
					},
				}
			}(),
			want: []string{"[INFO]", "[test-component]", "[file.go:42 package.TestFunction]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{Config: tt.config, Plain: true}
			output, err := formatter.Format(tt.entry)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			outputStr := string(output)
			for _, want := range tt.want {
				if !strings.Contains(outputStr, want) {
					t.Errorf("Expected output to contain '%s', got: %s", want, outputStr)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(outputStr, notWant) {
					t.Errorf("Expected output NOT to contain '%s', got: %s", notWant, outputStr)
				}
			}
		})
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	formatter := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}, Plain: true}
	out, err := formatter.Format(&logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "m",
		Data:    logrus.Fields{"zeta": 1, "alpha": 2, "mid": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(out); got != "[INFO] m alpha=2 mid=3 zeta=1\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestTextFormatterSessionFirst(t *testing.T) {
	formatter := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}, Plain: true}
	out, err := formatter.Format(&logrus.Entry{
		Level:   logrus.WarnLevel,
		Message: "Submission failed",
		Data: logrus.Fields{
			"component": "engine",
			"attempts":  3,
			"session":   "3f2a",
			"prompt":    "fix the test",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "[WARN] [engine] Submission failed session=3f2a attempts=3 prompt=\"fix the test\"\n"
	if got := string(out); got != want {
		t.Errorf("unexpected output %q", got)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.WarnLevel)

	entry := logger.WithField("component", "test")
	entry.Debug("debug message")
	entry.Info("info message")
	entry.Warn("warn message")
	entry.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("Messages below Warn should be filtered")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("Warn and Error messages should appear at Warn level")
	}
}
