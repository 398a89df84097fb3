package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCache_AbsentVsPresent(t *testing.T) {
	var c Cache[int]
	_, ok := c.Get()
	assert.False(t, ok)
	assert.Zero(t, c.Value())
	assert.True(t, c.Stale(t0, time.Hour))

	c.Set(0, t0)
	s, ok := c.Get()
	assert.True(t, ok, "a zero value is still a present snapshot")
	assert.Zero(t, s.Value)
	assert.False(t, c.Stale(t0.Add(time.Minute), time.Hour))
	assert.True(t, c.Stale(t0.Add(2*time.Hour), time.Hour))
}

func TestCache_LateOlderResponseIsDropped(t *testing.T) {
	var c Cache[string]
	older := c.Begin()
	newer := c.Begin()

	assert.True(t, c.Apply(newer, "new", t0.Add(time.Second)))
	assert.False(t, c.Apply(older, "old", t0.Add(2*time.Second)))
	assert.Equal(t, "new", c.Value())
}

func TestCache_ConcurrentFetchesDoNotCorrupt(t *testing.T) {
	var c Cache[int]
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = Fetch(context.Background(), &c, func() time.Time { return t0 }, func(context.Context) (int, error) {
				return i, nil
			})
		}(i)
	}
	wg.Wait()
	s, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(50), s.Seq)
}

func TestFetch_ErrorKeepsPreviousValue(t *testing.T) {
	var c Cache[int]
	c.Set(7, t0)
	applied, err := Fetch(context.Background(), &c, time.Now, func(context.Context) (int, error) {
		return 0, errors.New("rpc down")
	})
	assert.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, 7, c.Value())
}

func TestKeyed_Values(t *testing.T) {
	var k Keyed[uint64, string]
	k.At(1).Set("a", t0)
	k.At(2) // created but never applied
	k.At(3).Set("c", t0)
	assert.Equal(t, map[uint64]string{1: "a", 3: "c"}, k.Values())
}
