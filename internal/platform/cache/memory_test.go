package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	m.Set("a", 1, time.Minute)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	m.Set("short", "v", 10*time.Millisecond)
	m.Set("forever", "v", 0)

	time.Sleep(20 * time.Millisecond)

	_, ok := m.Get("short")
	require.False(t, ok)
	_, ok = m.Get("forever")
	require.True(t, ok)
}

func TestMemoryDeleteByPrefix(t *testing.T) {
	m := NewMemory()
	m.Set("user1|threats|read", true, time.Minute)
	m.Set("user1|reports|read", true, time.Minute)
	m.Set("user2|threats|read", true, time.Minute)

	removed := m.DeleteByPrefix("user1|")
	require.Equal(t, 2, removed)

	_, ok := m.Get("user2|threats|read")
	require.True(t, ok)
	_, ok = m.Get("user1|threats|read")
	require.False(t, ok)
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 10; i++ {
		m.Set(string(rune('a'+i)), i, time.Millisecond)
	}
	m.Set("keep", true, time.Hour)

	time.Sleep(10 * time.Millisecond)
	removed := m.Sweep()
	require.Equal(t, 10, removed)
	require.Equal(t, 1, m.Len())
}
