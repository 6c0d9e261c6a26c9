package users

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/store"
)

func TestTouch(t *testing.T) {
	st := store.New(store.NewMemory())
	tr := NewTracker(st)
	require.NoError(t, tr.Load())

	first := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now := first
	tr.clock = func() time.Time { return now }

	u, err := tr.Touch(Profile{UserID: 3, DisplayName: "Lina", Handle: "lina"})
	require.NoError(t, err)
	assert.Equal(t, 1, u.MessageCount)
	assert.Equal(t, first, u.FirstSeen)

	now = first.Add(time.Hour)
	u, err = tr.Touch(Profile{UserID: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, u.MessageCount)
	assert.Equal(t, first, u.FirstSeen)
	assert.Equal(t, now, u.LastActive)
	assert.Equal(t, "Lina", u.DisplayName)

	reloaded := NewTracker(st)
	require.NoError(t, reloaded.Load())
	got, ok := reloaded.Get(3)
	require.True(t, ok)
	assert.Equal(t, 2, got.MessageCount)
}

func TestIDsAndActiveSince(t *testing.T) {
	tr := NewTracker(store.New(store.NewMemory()))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []int64{9, 2, 5} {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		tr.clock = func() time.Time { return at }
		_, err := tr.Touch(Profile{UserID: id})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{2, 5, 9}, tr.IDs())
	assert.Equal(t, 3, tr.Count())
	assert.Equal(t, 2, tr.ActiveSince(base.Add(24*time.Hour)))
}
