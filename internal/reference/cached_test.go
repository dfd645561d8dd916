package reference

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
	"github.com/nysenate/openleg-sync/internal/store/memory"
	"github.com/nysenate/openleg-sync/pkg/redis"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	fail    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	v, ok := f.entries[key]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.entries[key] = value
	return nil
}

func (f *fakeCache) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

type countingResolver struct {
	store.ReferenceResolver
	mu    sync.Mutex
	calls int
}

func (c *countingResolver) FindReference(ctx context.Context, table, name string) (*legislation.Reference, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.ReferenceResolver.FindReference(ctx, table, name)
}

func setup() (*memory.Store, *countingResolver, *fakeCache, *Cached) {
	mem := memory.New()
	backing := &countingResolver{ReferenceResolver: mem}
	cache := newFakeCache()
	return mem, backing, cache, NewCached(backing, cache, time.Minute, nil)
}

func TestSecondLookupServedFromCache(t *testing.T) {
	ctx := context.Background()
	mem, backing, _, c := setup()
	mem.AddReference(legislation.TableCommittee, "c1", "Finance")

	first, err := c.FindReference(ctx, legislation.TableCommittee, "Finance")
	require.NoError(t, err)
	second, err := c.FindReference(ctx, legislation.TableCommittee, " finance ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.calls)
}

func TestMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	mem, backing, _, c := setup()

	_, err := c.FindReference(ctx, legislation.TableSenator, "Jane Doe")
	assert.ErrorIs(t, err, store.ErrNotFound)

	mem.AddReference(legislation.TableSenator, "s1", "Jane Doe")
	ref, err := c.FindReference(ctx, legislation.TableSenator, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "s1", ref.ID)
	assert.Equal(t, 2, backing.calls)
}

func TestCacheFailureDegradesToBacking(t *testing.T) {
	ctx := context.Background()
	mem, backing, cache, c := setup()
	mem.AddReference(legislation.TableCommittee, "c1", "Finance")
	cache.fail = errors.New("connection refused")

	for i := 0; i < 2; i++ {
		ref, err := c.FindReference(ctx, legislation.TableCommittee, "Finance")
		require.NoError(t, err)
		assert.Equal(t, "c1", ref.ID)
	}
	assert.Equal(t, 2, backing.calls)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	mem, backing, _, c := setup()
	mem.AddReference(legislation.TableCommittee, "c1", "Finance")

	_, err := c.FindReference(ctx, legislation.TableCommittee, "Finance")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, legislation.TableCommittee))
	_, err = c.FindReference(ctx, legislation.TableCommittee, "Finance")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestNilCache(t *testing.T) {
	mem := memory.New()
	mem.AddReference(legislation.TableCommittee, "c1", "Finance")
	c := NewCached(mem, nil, 0, nil)

	ref, err := c.FindReference(context.Background(), legislation.TableCommittee, "Finance")
	require.NoError(t, err)
	assert.Equal(t, "c1", ref.ID)
	assert.NoError(t, c.Invalidate(context.Background(), legislation.TableCommittee))
}
