// Package sessions discovers the agent's own conversation identifier from the
// transcript files it writes per project directory.
package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thisislance98/claudia/util/pathutil"
)

// TranscriptExt is the extension of agent transcript files.
const TranscriptExt = ".jsonl"

// TranscriptFinder locates transcripts under Root, laid out as
// <Root>/<escaped project path>/<session uuid>.jsonl.
type TranscriptFinder struct {
	Root string
}

// NewTranscriptFinder returns a finder rooted at root. An empty root disables
// discovery.
func NewTranscriptFinder(root string) *TranscriptFinder {
	return &TranscriptFinder{Root: root}
}

// ProjectDir returns the transcript directory for a workspace. The agent
// names it after the real path, so symlinks and case are resolved first.
func (f *TranscriptFinder) ProjectDir(workspace string) string {
	if canonical, err := pathutil.CanonicalPath(workspace); err == nil {
		workspace = canonical
	}
	return filepath.Join(f.Root, EscapePath(workspace))
}

// EscapePath maps an absolute path to the agent's project directory name:
// every character other than an ASCII letter or digit becomes '-'.
func EscapePath(path string) string {
	var b strings.Builder
	for _, r := range filepath.Clean(path) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Find returns the identifier of the newest transcript for workspace that was
// modified at or after since, or "" when there is none.
func (f *TranscriptFinder) Find(workspace string, since time.Time) (string, error) {
	if f == nil || f.Root == "" || workspace == "" {
		return "", nil
	}

	dir := f.ProjectDir(workspace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var (
		newest   string
		newestAt time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TranscriptExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), TranscriptExt)
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if mod.Before(since) {
			continue
		}
		if newest == "" || mod.After(newestAt) {
			newest = parsed.String()
			newestAt = mod
		}
	}
	return newest, nil
}
