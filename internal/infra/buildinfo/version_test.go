package buildinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setVars(t *testing.T, version, commit, built string) {
	t.Helper()
	v, c, b := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = v, c, b })
	Version, Commit, BuildTime = version, commit, built
}

func TestGet_Ldflags(t *testing.T) {
	setVars(t, "v0.3.0", "0123456789abcdef", "2026-01-02T03:04:05Z")

	info := Get()
	assert.Equal(t, "v0.3.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.BuildTime)
	assert.False(t, info.Modified)
	assert.NotEmpty(t, info.GoVersion)
}

func TestGet_NeverEmpty(t *testing.T) {
	setVars(t, "dev", "", "")

	info := Get()
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"), info.GoVersion)
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v1", Commit: "0123456789abcdef", GoVersion: "go1.24.0", BuildTime: "t"},
			"v1 (0123456789ab, go1.24.0) built t"},
		{Info{Version: "v1", Commit: "abc", GoVersion: "go1.24.0", BuildTime: "t", Modified: true},
			"v1 (abc-dirty, go1.24.0) built t"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.info.String())
	}
}

func TestInfo_LogArgsAndLabels(t *testing.T) {
	info := Info{Version: "v1", Commit: "c", GoVersion: "g"}

	assert.Equal(t, []any{"version", "v1", "commit", "c", "go_version", "g"}, info.LogArgs())
	assert.Equal(t, map[string]string{"version": "v1", "commit": "c", "go_version": "g"}, info.Labels())
}
