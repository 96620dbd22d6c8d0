// File: internal/session/store_test.go
package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/formpilot/api/schemas"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func tableWithRows(n int) *schemas.ResultTable {
	t := &schemas.ResultTable{Headers: []string{"name"}, Filename: "input.csv"}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, schemas.RowRecord{
			Fields: map[string]string{"name": fmt.Sprintf("row-%d", i)},
		})
	}
	return t
}

func TestStorePutAndSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStoreWithClock(10, time.Hour, newFakeClock())
	want := tableWithRows(2)
	store.Put("s1", want)

	got, ok := store.Snapshot("s1")
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot mismatch. Diff:\n%s", diff)
	}

	_, ok = store.Snapshot("missing")
	assert.False(t, ok)
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := NewStoreWithClock(10, time.Hour, newFakeClock())
	store.Put("s1", tableWithRows(1))

	snap, ok := store.Snapshot("s1")
	require.True(t, ok)

	// Mutating the snapshot must not leak into the stored table.
	snap.Rows[0].Reference = "TAMPERED"
	snap.Rows[0].Fields["name"] = "tampered"
	snap.Headers[0] = "tampered"

	fresh, ok := store.Snapshot("s1")
	require.True(t, ok)
	assert.Empty(t, fresh.Rows[0].Reference)
	assert.Equal(t, "row-0", fresh.Rows[0].Fields["name"])
	assert.Equal(t, "name", fresh.Headers[0])
}

func TestStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewStoreWithClock(10, 30*time.Minute, clock)
	store.Put("s1", tableWithRows(1))

	clock.Advance(29 * time.Minute)
	_, ok := store.Snapshot("s1")
	assert.True(t, ok, "session should still be live just inside the TTL")

	clock.Advance(2 * time.Minute)
	_, ok = store.Snapshot("s1")
	assert.False(t, ok, "session should have expired")
	assert.Equal(t, 0, store.Len())
}

func TestStoreCapacityEviction(t *testing.T) {
	t.Parallel()

	store := NewStoreWithClock(2, time.Hour, newFakeClock())
	store.Put("a", tableWithRows(1))
	store.Put("b", tableWithRows(1))

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := store.Snapshot("a")
	require.True(t, ok)

	store.Put("c", tableWithRows(1))

	_, ok = store.Snapshot("a")
	assert.True(t, ok, "recently used session should survive eviction")
	_, ok = store.Snapshot("b")
	assert.False(t, ok, "least recently used session should be evicted")
	_, ok = store.Snapshot("c")
	assert.True(t, ok)
}

func TestStoreUpdateReference(t *testing.T) {
	t.Parallel()

	t.Run("updates the addressed row", func(t *testing.T) {
		store := NewStoreWithClock(10, time.Hour, newFakeClock())
		store.Put("s1", tableWithRows(3))

		require.NoError(t, store.UpdateReference("s1", 1, "ABC12345"))

		snap, ok := store.Snapshot("s1")
		require.True(t, ok)
		assert.Empty(t, snap.Rows[0].Reference)
		assert.Equal(t, "ABC12345", snap.Rows[1].Reference)
		assert.Empty(t, snap.Rows[2].Reference)
	})

	t.Run("unknown session", func(t *testing.T) {
		store := NewStoreWithClock(10, time.Hour, newFakeClock())
		err := store.UpdateReference("nope", 0, "X")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("row out of range", func(t *testing.T) {
		store := NewStoreWithClock(10, time.Hour, newFakeClock())
		store.Put("s1", tableWithRows(1))
		assert.ErrorIs(t, store.UpdateReference("s1", 5, "X"), ErrRowOutOfRange)
		assert.ErrorIs(t, store.UpdateReference("s1", -1, "X"), ErrRowOutOfRange)
	})

	t.Run("write refreshes the TTL", func(t *testing.T) {
		clock := newFakeClock()
		store := NewStoreWithClock(10, 30*time.Minute, clock)
		store.Put("s1", tableWithRows(1))

		// Keep writing past the original deadline; the session must survive.
		clock.Advance(20 * time.Minute)
		require.NoError(t, store.UpdateReference("s1", 0, "R1"))
		clock.Advance(20 * time.Minute)

		_, ok := store.Snapshot("s1")
		assert.True(t, ok, "active session should not expire mid-batch")
	})
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store := NewStoreWithClock(10, time.Hour, newFakeClock())
	store.Put("s1", tableWithRows(1))
	store.Delete("s1")

	_, ok := store.Snapshot("s1")
	assert.False(t, ok)

	// Deleting again is harmless.
	store.Delete("s1")
}

func TestStoreLenSkipsExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewStoreWithClock(10, 10*time.Minute, clock)
	store.Put("old", tableWithRows(1))
	clock.Advance(9 * time.Minute)
	store.Put("new", tableWithRows(1))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, store.Len())
}
