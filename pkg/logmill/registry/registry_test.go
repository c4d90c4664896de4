package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New[string, int]()
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Register("one", 1))
	require.NoError(t, r.Register("two", 2))

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v)

	assert.True(t, r.Has("two"))
	assert.False(t, r.Has("three"))
	assert.Equal(t, 2, r.Len())
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[string, string]()
	require.NoError(t, r.Register("key", "old"))

	err := r.Register("key", "new")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "key")

	v, _ := r.Get("key")
	assert.Equal(t, "old", v, "failed Register must not overwrite")

	r.Set("key", "new")
	v, _ = r.Get("key")
	assert.Equal(t, "new", v)
}

func TestKeysSorted(t *testing.T) {
	r := New[string, int]()
	for _, k := range []string{"Spam", "Noop", "StdOut", "Collector"} {
		r.Set(k, 0)
	}
	assert.Equal(t, []string{"Collector", "Noop", "Spam", "StdOut"}, r.Keys())
	assert.Empty(t, New[int, int]().Keys())
}

func TestRange(t *testing.T) {
	r := New[int, string]()
	r.Set(3, "c")
	r.Set(1, "a")
	r.Set(2, "b")

	var seen []string
	r.Range(func(_ int, v string) bool {
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	var first []int
	r.Range(func(k int, _ string) bool {
		first = append(first, k)
		return false
	})
	assert.Equal(t, []int{1}, first)
}

func TestRangeMutation(t *testing.T) {
	r := New[string, int]()
	r.Set("a", 1)

	count := 0
	r.Range(func(k string, v int) bool {
		count++
		r.Set(k+"x", v)
		return true
	})
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, r.Len())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	r := New[string, *atomic.Int64]()
	var created atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.GetOrCreate("events", func() *atomic.Int64 {
				created.Add(1)
				return new(atomic.Int64)
			})
			c.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	c, ok := r.Get("events")
	require.True(t, ok)
	assert.Equal(t, int64(50), c.Load())
}
