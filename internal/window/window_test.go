package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

func TestCompute_Incremental(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2024, 3, 10, 12, 30, 45, 987654321, loc)

	for _, h := range []int{1, 2, 24, 168} {
		got := Compute(Incremental(h), true, now)
		want := now.UTC().Add(-time.Duration(h) * time.Hour).Truncate(time.Second)
		assert.Equal(t, want, got, "hours=%d", h)
		assert.Equal(t, time.UTC, got.Location())
		assert.Zero(t, got.Nanosecond())
		// Pure function of inputs: repeated calls agree.
		assert.Equal(t, got, Compute(Incremental(h), true, now))
	}
	assert.Equal(t, "2024-03-10T10:30:45Z", Format(Compute(Incremental(1), true, now)))
}

func TestCompute_SentinelOnFreshDestination(t *testing.T) {
	now := time.Now()
	for _, m := range []Mode{FullLoad(), Incremental(1), Incremental(48)} {
		assert.Equal(t, Epoch, Compute(m, false, now), "mode %s", m)
	}
	assert.Equal(t, Epoch, Compute(FullLoad(), true, now))
	assert.Equal(t, "2000-01-01T00:00:00Z", Format(Epoch))
}

func TestFilter(t *testing.T) {
	assert.Equal(t, "updatedAt:gte:2000-01-01T00:00:00Z", Filter(Epoch))
}

func TestMode_Validate(t *testing.T) {
	require.NoError(t, FullLoad().Validate())
	require.NoError(t, Incremental(1).Validate())

	for _, h := range []int{0, -3} {
		err := Incremental(h).Validate()
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	}
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "full-load", FullLoad().String())
	assert.Equal(t, "incremental(6h)", Incremental(6).String())
	assert.Equal(t, 0, FullLoad().Hours())
	assert.Equal(t, 6, Incremental(6).Hours())
}
