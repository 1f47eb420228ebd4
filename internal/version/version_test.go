package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	restore := func(v, c, b string) { Version, GitCommit, BuildTime = v, c, b }
	defer restore(Version, GitCommit, BuildTime)

	Version, GitCommit, BuildTime = "v1.2.0", "abc123", "2024-06-01"
	assert.Equal(t, "v1.2.0 (commit abc123, built 2024-06-01)", String())
	assert.Equal(t, "tabbackup/v1.2.0", UserAgent())
}

func TestDefaultsAreSet(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, BuildTime)
	assert.NotEmpty(t, GitCommit)
}
