package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thisislance98/claudia/command"
)

// StatusInfo contains detailed git status information for a repository
type StatusInfo struct {
	Branch      string `json:"branch"`
	AheadCount  int    `json:"ahead_count"`
	BehindCount int    `json:"behind_count"`

	ModifiedCount  int `json:"modified_count"`
	UntrackedCount int `json:"untracked_count"`
	StagedCount    int `json:"staged_count"`

	// Files lists every path with a staged, unstaged, unmerged or untracked
	// change, relative to the repository root.
	Files []string `json:"files,omitempty"`

	IsDirty     bool `json:"is_dirty"`
	HasUpstream bool `json:"has_upstream"`
}

// GetStatus returns detailed git status information for the repository at the given path
func GetStatus(ctx context.Context, path string) (*StatusInfo, error) {
	builder := command.NewSafeBuilder()

	// NUL-separated so paths with spaces or quotes survive.
	output, err := run(ctx, builder, path, "status", "--porcelain=v2", "--branch", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("failed to get git status for %s: %w", path, err)
	}
	return parseStatus(output), nil
}

func parseStatus(output string) *StatusInfo {
	status := &StatusInfo{}
	records := strings.Split(output, "\x00")

	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}

		if strings.HasPrefix(rec, "# ") {
			parts := strings.Fields(rec)
			if len(parts) < 3 {
				continue
			}
			switch parts[1] {
			case "branch.head":
				status.Branch = parts[2]
			case "branch.upstream":
				status.HasUpstream = true
			case "branch.ab":
				status.AheadCount, _ = strconv.Atoi(strings.TrimPrefix(parts[2], "+"))
				if len(parts) > 3 {
					status.BehindCount, _ = strconv.Atoi(strings.TrimPrefix(parts[3], "-"))
				}
			}
			continue
		}

		switch rec[0] {
		case '?':
			status.UntrackedCount++
			status.Files = append(status.Files, strings.TrimPrefix(rec, "? "))
		case '1', '2':
			// 1 XY sub mH mI mW hH hI path
			// 2 XY sub mH mI mW hH hI Xscore path, followed by the original path record
			fields := 9
			if rec[0] == '2' {
				fields = 10
			}
			parts := strings.SplitN(rec, " ", fields)
			if len(parts) < fields {
				continue
			}
			xy := parts[1]
			if xy[0] != '.' {
				status.StagedCount++
			}
			if xy[1] != '.' {
				status.ModifiedCount++
			}
			status.Files = append(status.Files, parts[fields-1])
			if rec[0] == '2' {
				i++
			}
		case 'u':
			// u XY sub m1 m2 m3 mW h1 h2 h3 path
			parts := strings.SplitN(rec, " ", 11)
			status.StagedCount++
			status.ModifiedCount++
			if len(parts) == 11 {
				status.Files = append(status.Files, parts[10])
			}
		}
	}

	status.IsDirty = status.ModifiedCount > 0 || status.UntrackedCount > 0 || status.StagedCount > 0
	return status
}
