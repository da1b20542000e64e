package command

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/thisislance98/claudia/errors"
)

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid path", "/path/to/file.txt", false},
		{"relative path", "relative/path.txt", false},
		{"directory traversal", "../etc/passwd", true},
		{"command injection semicolon", "file.txt; rm -rf /", true},
		{"command injection pipe", "file.txt | cat", true},
		{"command injection dollar", "$(whoami)", true},
		{"command injection backtick", "`whoami`", true},
		{"empty path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFileName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGitRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid branch", "main", false},
		{"valid with slash", "feature/add-button", false},
		{"valid with dots", "v1.2.3", false},
		{"head", "HEAD", false},
		{"empty ref", "", true},
		{"option injection", "--output=/tmp/x", true},
		{"command injection", "main; rm -rf /", true},
		{"spaces", "my branch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGitRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateGitRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommitHash(t *testing.T) {
	sb := NewSafeBuilder()

	if err := sb.Validate("commitHash", "3f2a9c1"); err != nil {
		t.Errorf("unexpected error for short hash: %v", err)
	}
	if err := sb.Validate("commitHash", strings.Repeat("a", 40)); err != nil {
		t.Errorf("unexpected error for full hash: %v", err)
	}
	if err := sb.Validate("commitHash", "HEAD~1"); err == nil {
		t.Error("expected error for non-hash")
	}
	if err := sb.Validate("unknownType", "value"); err == nil {
		t.Error("expected error for unknown validator type")
	}
}

func TestSafeBuilder_Build(t *testing.T) {
	sb := NewSafeBuilder()
	ctx := context.Background()

	t.Run("valid command", func(t *testing.T) {
		cmd, err := sb.Build(ctx, "echo", "hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer cmd.Close()
		if cmd.name != "echo" {
			t.Errorf("expected command name 'echo', got %q", cmd.name)
		}
		if len(cmd.args) != 1 || cmd.args[0] != "hello" {
			t.Errorf("expected args ['hello'], got %v", cmd.args)
		}
	})

	t.Run("empty command name", func(t *testing.T) {
		_, err := sb.Build(ctx, "")
		if err == nil {
			t.Error("expected error for empty command name")
		}
	})
}

func TestCommand_WithTimeout(t *testing.T) {
	sb := NewSafeBuilder()

	cmd, err := sb.Build(context.Background(), "sleep", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cmd.Close()

	cmd = cmd.WithTimeout(time.Second)
	if cmd.timeout != time.Second {
		t.Errorf("expected timeout %v, got %v", time.Second, cmd.timeout)
	}

	cmd = cmd.WithTimeout(20 * time.Minute)
	if cmd.timeout != MaxTimeout {
		t.Errorf("expected timeout to be capped at %v, got %v", MaxTimeout, cmd.timeout)
	}
	if cmd.ctx.Err() != nil {
		t.Errorf("context cancelled after retiming: %v", cmd.ctx.Err())
	}
}

func TestCommandTimeout(t *testing.T) {
	sb := NewSafeBuilder()

	cmd, err := sb.Build(context.Background(), "sleep", "10")
	if err != nil {
		t.Fatal(err)
	}
	cmd = cmd.WithTimeout(100 * time.Millisecond)

	start := time.Now()
	_, err = cmd.Output()
	duration := time.Since(start)

	if err == nil {
		t.Error("expected timeout error")
	}
	if duration > 2*time.Second {
		t.Errorf("command took too long to timeout: %v", duration)
	}
}

func TestCommandOutput(t *testing.T) {
	sb := NewSafeBuilder()
	dir := t.TempDir()

	cmd, err := sb.Build(context.Background(), "pwd")
	if err != nil {
		t.Fatal(err)
	}
	out, err := cmd.InDir(dir).Output()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(out)), strings.TrimPrefix(dir, "/private")) {
		t.Errorf("expected output in %s, got %q", dir, out)
	}

	cmd, err = sb.Build(context.Background(), "sh", "-c", "echo boom >&2; exit 4")
	if err != nil {
		t.Fatal(err)
	}
	_, err = cmd.Output()
	if !errors.Is(err, errors.ErrCodeCommandFailed) {
		t.Fatalf("expected COMMAND_FAILED, got %v", err)
	}
	var e *errors.Error
	if !asError(err, &e) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if e.Details["stderr"] != "boom" {
		t.Errorf("expected stderr detail 'boom', got %v", e.Details["stderr"])
	}
	if e.Details["exitCode"] != 4 {
		t.Errorf("expected exitCode 4, got %v", e.Details["exitCode"])
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestExecutorEnvironment(t *testing.T) {
	var gotName string
	var gotArgs []string
	sb := NewSafeBuilderWithExecutor(ExecutorFunc(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return (&RealExecutor{Env: []string{"CLAUDIA_TEST=1"}}).CommandContext(ctx, "sh", "-c", "echo $GIT_TERMINAL_PROMPT$CLAUDIA_TEST")
	}))

	cmd, err := sb.Build(context.Background(), "git", "status")
	if err != nil {
		t.Fatal(err)
	}
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "git" || strings.Join(gotArgs, " ") != "status" {
		t.Errorf("executor got %s %v", gotName, gotArgs)
	}
	if strings.TrimSpace(string(out)) != "01" {
		t.Errorf("expected non-interactive env, got %q", out)
	}
}
