// Package pathindex implements the PathIndex data type: a cache from
// normalized remote directory path to remote folder id, seeded with
// "/" → rootID, populated lazily, with folder creation serialized per
// (parent, name) so two workers resolving the same missing directory
// don't race to create duplicate folders (SPEC_FULL.md §4.L, the core
// spec's §9 Open Question on concurrent PathIndex folder creation).
package pathindex

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/standalone-transfer/xfer/internal/pathutil"
)

// Resolver is implemented by a destination backend to do the low-level
// directory work, mirroring the teacher's DirCacher interface.
type Resolver interface {
	// FindChild looks up a named child of parentID, returning its id and
	// whether it was found. A non-nil error is a transport/API failure,
	// distinct from "not found".
	FindChild(ctx context.Context, parentID, name string) (id string, found bool, err error)
	// CreateDir creates a folder named name under parentID and returns its
	// new id.
	CreateDir(ctx context.Context, parentID, name string) (id string, err error)
}

// Index is the PathIndex data type.
type Index struct {
	resolver Resolver
	rootID   string

	mu    sync.RWMutex
	byPath map[string]string

	creating singleflight.Group
}

// New seeds an Index with "/" → rootID.
func New(resolver Resolver, rootID string) *Index {
	return &Index{
		resolver: resolver,
		rootID:   rootID,
		byPath:   map[string]string{"": rootID},
	}
}

// Get returns the cached folder id for a normalized path, if present.
func (idx *Index) Get(path string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.byPath[pathutil.Normalize(path)]
	return id, ok
}

func (idx *Index) put(path, id string) {
	idx.mu.Lock()
	idx.byPath[path] = id
	idx.mu.Unlock()
}

// Resolve walks path's prefixes, resolving each directory level's id,
// creating missing folders along the way when createMissing is true (the
// destination-backend role per the core spec's §4.C PathIndex resolution
// algorithm). When createMissing is false (source-backend role), a
// missing directory is a hard error.
func (idx *Index) Resolve(ctx context.Context, path string, createMissing bool) (string, error) {
	path = pathutil.Normalize(path)
	if path == "" {
		return idx.rootID, nil
	}

	if id, ok := idx.Get(path); ok {
		return id, nil
	}

	parentID := idx.rootID
	built := ""
	for _, prefix := range pathutil.Prefixes(path) {
		if id, ok := idx.Get(prefix); ok {
			parentID = id
			built = prefix
			continue
		}

		_, name := pathutil.Split(prefix)
		id, err := idx.resolveOne(ctx, parentID, name, prefix, createMissing)
		if err != nil {
			return "", err
		}
		parentID = id
		built = prefix
	}
	_ = built
	return parentID, nil
}

// resolveOne resolves a single path segment, deduplicating concurrent
// creation attempts for the same (parentID, name) via singleflight.
func (idx *Index) resolveOne(ctx context.Context, parentID, name, fullPath string, createMissing bool) (string, error) {
	key := parentID + "/" + name

	v, err, _ := idx.creating.Do(key, func() (any, error) {
		// Re-check the cache: another goroutine may have populated it
		// between our Get miss above and acquiring the singleflight slot.
		if id, ok := idx.Get(fullPath); ok {
			return id, nil
		}

		id, found, err := idx.resolver.FindChild(ctx, parentID, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %q under %q: %w", name, parentID, err)
		}
		if found {
			idx.put(fullPath, id)
			return id, nil
		}

		if !createMissing {
			return nil, fmt.Errorf("directory %q not found", fullPath)
		}

		id, err = idx.resolver.CreateDir(ctx, parentID, name)
		if err != nil {
			return nil, fmt.Errorf("create directory %q: %w", fullPath, err)
		}
		idx.put(fullPath, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
