package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	info := Info{Version: "dev", Commit: "none", BuildDate: "unknown"}
	fillFromBuildInfo(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "3f2a9c1d0e"},
			{Key: "vcs.time", Value: "2026-10-16T09:00:00Z"},
		},
	})
	assert.Equal(t, Info{Version: "v0.4.1", Commit: "3f2a9c1", BuildDate: "2026-10-16T09:00:00Z"}, info)

	linked := Info{Version: "v1.0.0", Commit: "abcdef0", BuildDate: "yesterday"}
	fillFromBuildInfo(&linked, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "v1.0.0", linked.Version)
	assert.Equal(t, "abcdef0", linked.Commit)
}

func TestInfoString(t *testing.T) {
	info := GetInfo()
	assert.True(t, strings.HasPrefix(info.String(), "claudia "))
	assert.Len(t, info.Rows(), 5)
}
