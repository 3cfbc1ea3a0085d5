package pty

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIDsStartAtOneAndIncrease(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, ID(1), r.NextID())
	assert.Equal(t, ID(2), r.NextID())
	assert.Equal(t, ID(3), r.NextID())
}

func TestRegistryConcurrentIDsUnique(t *testing.T) {
	r := NewRegistry()

	const workers, perWorker = 16, 500
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[ID]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := r.NextID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestRegistryTakeMarksClosed(t *testing.T) {
	r := NewRegistry()
	s := &Session{id: r.NextID(), state: StateRunning}
	require.NoError(t, r.Add(s))

	got, ok := r.Get(s.id)
	require.True(t, ok)
	assert.Same(t, s, got)

	taken, ok := r.Take(s.id)
	require.True(t, ok)
	assert.Same(t, s, taken)
	assert.Equal(t, StateClosed, s.State())

	_, ok = r.Take(s.id)
	assert.False(t, ok, "second take must miss")
	assert.Equal(t, 0, r.Count())
}

func TestRegistryConcurrentTakeHasOneWinner(t *testing.T) {
	r := NewRegistry()
	s := &Session{id: r.NextID(), state: StateRunning}
	require.NoError(t, r.Add(s))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Take(s.id); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistryTakeAllSeal(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Add(&Session{id: r.NextID()}))
	}

	taken := r.TakeAll(false)
	assert.Len(t, taken, 3)
	assert.False(t, r.Sealed())
	require.NoError(t, r.Add(&Session{id: r.NextID()}))

	taken = r.TakeAll(true)
	assert.Len(t, taken, 1)
	for _, s := range taken {
		assert.Equal(t, StateClosed, s.State())
	}
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Add(&Session{id: r.NextID()}), ErrManagerClosed)
}

func TestRegistryListOrdered(t *testing.T) {
	r := NewRegistry()
	ids := []ID{r.NextID(), r.NextID(), r.NextID()}
	for i := len(ids) - 1; i >= 0; i-- {
		require.NoError(t, r.Add(&Session{id: ids[i]}))
	}

	list := r.List()
	require.Len(t, list, 3)
	for i, s := range list {
		assert.Equal(t, ids[i], s.id)
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s := &Session{state: StateRunning}

	assert.True(t, s.markExited())
	assert.False(t, s.markExited(), "Running -> Exited happens once")
	assert.Equal(t, StateExited, s.State())

	assert.False(t, s.markClosed())
	assert.True(t, s.markClosed())
	assert.False(t, s.markExited(), "no transition out of Closed")
	assert.Equal(t, "closed", s.State().String())
}
