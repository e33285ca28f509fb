package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresence_RegisterListRemove(t *testing.T) {
	p := NewPresence()

	a := p.Register("a", "user-a")
	require.True(t, a.Online)
	require.False(t, a.LastSeen.IsZero())

	p.Register("b", "user-b")
	require.Equal(t, 2, p.Len())

	list := p.ListAll()
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)

	p.Remove("a")
	require.Equal(t, 1, p.Len())
	list = p.ListAll()
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].ID)

	// Removing an absent id is a no-op.
	p.Remove("a")
	require.Equal(t, 1, p.Len())
}

func TestPresence_MarkOfflineStampsLastSeen(t *testing.T) {
	p := NewPresence()
	rec := p.Register("a", "user-a")
	before := rec.LastSeen

	time.Sleep(time.Millisecond)
	got := p.MarkOffline("a")
	require.NotNil(t, got)
	require.False(t, got.Online)
	require.True(t, got.LastSeen.After(before))

	// The record stays until the caller removes it.
	require.Equal(t, 1, p.Len())

	require.Nil(t, p.MarkOffline("missing"))
}
