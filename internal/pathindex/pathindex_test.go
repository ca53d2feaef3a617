package pathindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver simulates a remote API: FindChild/CreateDir operate on an
// in-memory tree, and createCalls counts how many times CreateDir actually
// ran for a given key, so tests can assert the singleflight guard prevents
// duplicate folder creation.
type fakeResolver struct {
	mu          sync.Mutex
	children    map[string]map[string]string // parentID -> name -> id
	nextID      int64
	createCalls int32
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{children: map[string]map[string]string{}}
}

func (f *fakeResolver) FindChild(ctx context.Context, parentID, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.children[parentID][name]
	return id, ok, nil
}

func (f *fakeResolver) CreateDir(ctx context.Context, parentID, name string) (string, error) {
	atomic.AddInt32(&f.createCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.children[parentID] == nil {
		f.children[parentID] = map[string]string{}
	}
	if id, ok := f.children[parentID][name]; ok {
		return id, nil
	}
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	f.children[parentID][name] = id
	return id, nil
}

func TestResolveSeedsRoot(t *testing.T) {
	idx := New(newFakeResolver(), "root-id")
	id, err := idx.Resolve(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "root-id", id)
}

func TestResolveCreatesMissingFolders(t *testing.T) {
	fr := newFakeResolver()
	idx := New(fr, "root-id")
	id, err := idx.Resolve(context.Background(), "a/b/c", true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.EqualValues(t, 3, fr.createCalls)

	// Resolving again must hit the cache, no new creations.
	_, err = idx.Resolve(context.Background(), "a/b/c", true)
	require.NoError(t, err)
	assert.EqualValues(t, 3, fr.createCalls, "expected no new creations on cache hit")
}

func TestResolveSourceModeErrorsOnMissing(t *testing.T) {
	idx := New(newFakeResolver(), "root-id")
	_, err := idx.Resolve(context.Background(), "missing", false)
	assert.Error(t, err)
}

func TestConcurrentResolveDedupesCreation(t *testing.T) {
	fr := newFakeResolver()
	idx := New(fr, "root-id")

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := idx.Resolve(context.Background(), "shared/dir", true)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "concurrent resolutions returned different ids")
	}
	// "shared" and "shared/dir" should each be created exactly once despite
	// 20 concurrent callers racing to resolve the same path.
	assert.EqualValues(t, 2, fr.createCalls)
}
