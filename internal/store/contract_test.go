package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quietlink/pkg/interfaces"
)

// runStoreContract exercises the set semantics every backend must provide
func runStoreContract(t *testing.T, newStore func(t *testing.T) interfaces.StateStore) {
	t.Run("add and contains", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "waiting_users", "alice", "bob"))
		require.NoError(t, s.Add(ctx, "waiting_users", "alice"))

		n, err := s.Cardinality(ctx, "waiting_users")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n, "duplicate add must not grow the set")

		ok, err := s.Contains(ctx, "waiting_users", "bob")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Contains(ctx, "chatting_users", "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove reports presence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "waiting_users", "alice"))

		removed, err := s.Remove(ctx, "waiting_users", "alice")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Remove(ctx, "waiting_users", "alice")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = s.Remove(ctx, "never_created", "alice")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("pop empty set", func(t *testing.T) {
		s := newStore(t)

		id, ok, err := s.PopAny(context.Background(), "waiting_users")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("pop drains every member once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "waiting_users", "a", "b", "c"))

		seen := map[string]bool{}
		for i := 0; i < 3; i++ {
			id, ok, err := s.PopAny(ctx, "waiting_users")
			require.NoError(t, err)
			require.True(t, ok)
			assert.False(t, seen[id], "member popped twice: %s", id)
			seen[id] = true
		}
		assert.Len(t, seen, 3)

		n, err := s.Cardinality(ctx, "waiting_users")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("concurrent pops have a single winner per member", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const members = 50
		ids := make([]string, members)
		for i := range ids {
			ids[i] = string(rune('A'+i%26)) + string(rune('a'+i/26))
		}
		require.NoError(t, s.Add(ctx, "waiting_users", ids...))

		var mu sync.Mutex
		won := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 10; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					id, ok, err := s.PopAny(ctx, "waiting_users")
					if err != nil || !ok {
						return
					}
					mu.Lock()
					won[id]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, won, members)
		for id, count := range won {
			assert.Equal(t, 1, count, "member %s handed out %d times", id, count)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.Add(ctx, "waiting_users", "a"), context.Canceled)
		_, _, err := s.PopAny(ctx, "waiting_users")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed store", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())

		ctx := context.Background()
		assert.ErrorIs(t, s.Add(ctx, "waiting_users", "a"), ErrStoreClosed)
		_, err := s.Remove(ctx, "waiting_users", "a")
		assert.ErrorIs(t, err, ErrStoreClosed)
		assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
	})

	t.Run("empty set name", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.Add(ctx, "", "a"), ErrEmptySetName)
		_, err := s.Remove(ctx, "", "a")
		assert.ErrorIs(t, err, ErrEmptySetName)
		_, _, err = s.PopAny(ctx, "")
		assert.ErrorIs(t, err, ErrEmptySetName)
		_, err = s.Cardinality(ctx, "")
		assert.ErrorIs(t, err, ErrEmptySetName)
		_, err = s.Contains(ctx, "", "a")
		assert.ErrorIs(t, err, ErrEmptySetName)
	})
}
