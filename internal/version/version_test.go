package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.True(t, strings.HasPrefix(ShortWithApp(), "KBSync "))

	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
	assert.True(t, strings.HasPrefix(UserAgent(), "KBSync/"+Version+" "))
}

func TestApplyBuildInfo(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	t.Run("fills dev defaults", func(t *testing.T) {
		Version, Revision, BuildDate = devVersion, "HEAD", ""
		applyBuildInfo("v1.4.0", map[string]string{
			"vcs.revision": "abcdef12",
			"vcs.modified": "true",
			"vcs.time":     "2026-03-01T10:00:00Z",
		})
		assert.Equal(t, "1.4.0", Version)
		assert.Equal(t, "abcdef12-dirty", Revision)
		assert.Equal(t, "2026-03-01T10:00:00Z", BuildDate)
	})

	t.Run("ldflags win", func(t *testing.T) {
		Version, Revision, BuildDate = "2.0.0", "deadbeef", "from-ldflags"
		applyBuildInfo("v1.4.0", map[string]string{"vcs.revision": "abcdef12"})
		assert.Equal(t, "2.0.0", Version)
		assert.Equal(t, "deadbeef", Revision)
		assert.Equal(t, "from-ldflags", BuildDate)
	})

	t.Run("devel module version ignored", func(t *testing.T) {
		Version = devVersion
		applyBuildInfo("(devel)", nil)
		assert.Equal(t, devVersion, Version)
	})
}
