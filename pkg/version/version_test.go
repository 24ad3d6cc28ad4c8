package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: the version package is imported
	// When: accessing Version
	// Then: it is "dev" or a semver string injected by ldflags
	if Version == "dev" {
		return
	}
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semverRegex.MatchString(Version), "Version should follow semver format, got: %s", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	s := String()

	assert.Contains(t, s, "indexmode "+Version)
	assert.Contains(t, s, GetInfo().Commit)
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShort(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestResolve_FillsUnsetFieldsFromVCSStamp(t *testing.T) {
	// Given a binary built from a dirty checkout without ldflags
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		}}, true
	}

	// When the build info is resolved
	bi := resolve(read)

	// Then the VCS stamp fills commit and date
	assert.Equal(t, "0123456789ab", bi.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", bi.Date)
	assert.True(t, bi.Modified)
}

func TestResolve_LdflagsWinOverVCSStamp(t *testing.T) {
	oldCommit, oldDate := Commit, Date
	t.Cleanup(func() { Commit, Date = oldCommit, oldDate })
	Commit, Date = "abc1234", "2026-01-02"

	bi := resolve(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "ffffffffffffffff"},
			{Key: "vcs.time", Value: "2020-01-01T00:00:00Z"},
		}}, true
	})

	assert.Equal(t, "abc1234", bi.Commit)
	assert.Equal(t, "2026-01-02", bi.Date)
}

func TestResolve_NoBuildInfo(t *testing.T) {
	bi := resolve(func() (*debug.BuildInfo, bool) { return nil, false })

	assert.Equal(t, Commit, bi.Commit)
	assert.Equal(t, runtime.Version(), bi.GoVersion)
	assert.False(t, bi.Modified)
}

func TestGetInfo_MarshalsToJSON(t *testing.T) {
	info := GetInfo()

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Version, decoded["version"])
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.Equal(t, runtime.Version(), decoded["go_version"])
}
