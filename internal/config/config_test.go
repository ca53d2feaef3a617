package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

type stubBackend struct{}

func (stubBackend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (stubBackend) GetWorker(t task.Task) (backend.Worker, error) { return nil, nil }

func TestSplitAliasPath(t *testing.T) {
	alias, path, err := SplitAliasPath("mydrive:/docs/reports")
	require.NoError(t, err)
	assert.Equal(t, "mydrive", alias)
	assert.Equal(t, "/docs/reports", path)

	_, _, err = SplitAliasPath("no-colon-here")
	assert.Error(t, err)
}

func writeTestConfig(t *testing.T, configs map[string]any) *Document {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	doc := map[string]any{
		"configs":   configs,
		"transfers": map[string]any{},
		"bar":       map[string]any{},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o600))

	loaded, err := Load(cfgPath)
	require.NoError(t, err)
	return loaded
}

func TestResolveAliasToRegisteredBackend(t *testing.T) {
	registry.Register("config-test-stub", func(ctx context.Context, raw []byte, path string, args backend.Args) (backend.Backend, error) {
		return stubBackend{}, nil
	})

	loaded := writeTestConfig(t, map[string]any{
		"mydrive": map[string]any{"transfer": "config-test-stub"},
	})

	b, err := loaded.Resolve(context.Background(), "mydrive", "/docs", backend.Args{})
	require.NoError(t, err)
	_, ok := b.(stubBackend)
	assert.True(t, ok, "expected stubBackend, got %T", b)

	_, err = loaded.Resolve(context.Background(), "missing", "/x", backend.Args{})
	assert.Error(t, err)
}

func TestResolveCopyPairAcceptsSameTransfer(t *testing.T) {
	loaded := writeTestConfig(t, map[string]any{
		"src": map[string]any{"transfer": "config-test-stub"},
		"dst": map[string]any{"transfer": "config-test-stub"},
	})
	assert.NoError(t, loaded.ResolveCopyPair("src", "dst"))
}

func TestResolveCopyPairRejectsDifferentTransfers(t *testing.T) {
	loaded := writeTestConfig(t, map[string]any{
		"src": map[string]any{"transfer": "config-test-stub"},
		"dst": map[string]any{"transfer": "config-test-stub-other"},
	})
	err := loaded.ResolveCopyPair("src", "dst")
	require.Error(t, err)
	assert.True(t, errors.Is(err, xfererr.ErrIncompatibleCopy))
}
