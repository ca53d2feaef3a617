package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/standalone-transfer/xfer/internal/pacer"
)

func TestDriveUploadChunkIncompleteThenDone(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Content-Range") == "bytes 0-3/8" {
			w.WriteHeader(308)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"id": "file123", "name": "a.txt"})
	}))
	defer srv.Close()

	c := &DriveClient{http: srv.Client(), pacer: pacer.New()}

	done, obj, err := c.UploadChunk(context.Background(), srv.URL, []byte("abcd"), 0, 8, false)
	require.NoError(t, err)
	assert.False(t, done, "expected incomplete (308) on first chunk")
	assert.Nil(t, obj, "expected nil object before completion")

	done, obj, err = c.UploadChunk(context.Background(), srv.URL, []byte("efgh"), 4, 8, true)
	require.NoError(t, err)
	assert.True(t, done, "expected completion on final chunk")
	require.NotNil(t, obj)
	assert.Equal(t, "file123", obj.ID)
	assert.Equal(t, 2, calls)
}

func TestGraphCreateDirTolerates412(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "*", r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	gc := NewGraphClient(srv.Client(), srv.URL)
	id, err := gc.CreateDir(context.Background(), "docs", "sub")
	require.NoError(t, err, "CreateDir should tolerate 412 (already exists)")
	assert.Equal(t, "docs/sub", id)
}

func TestGraphUploadFragmentAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	gc := NewGraphClient(srv.Client(), srv.URL)
	ok, _, err := gc.UploadFragment(context.Background(), srv.URL, []byte("chunk"), 0, 100)
	require.NoError(t, err)
	assert.False(t, ok, "202 Accepted must report ok=false (more fragments pending)")
}

func TestGraphCreateUploadSessionConflictIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	gc := NewGraphClient(srv.Client(), srv.URL)
	_, err := gc.CreateUploadSession(context.Background(), "a.txt")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestGraphListChildrenFollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	page := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case 1:
			json.NewEncoder(w).Encode(map[string]any{
				"value":            []map[string]any{{"id": "1", "name": "a.txt", "size": 5}},
				"@odata.nextLink": srv.URL + "/page2",
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{{"id": "2", "name": "b.txt", "size": 7}},
			})
		}
	}))
	defer srv.Close()

	gc := NewGraphClient(srv.Client(), srv.URL)
	entries, err := gc.ListChildren(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "b.txt", entries[1].Name)
	assert.Equal(t, 2, page, "expected the client to follow @odata.nextLink to a second page")
}

func TestDriveListChildrenFollowsNextPageToken(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"files":         []map[string]any{{"id": "1", "name": "a.txt", "size": 5}},
				"nextPageToken": "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{{"id": "2", "name": "b.txt", "size": 7}},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := drivev3.NewService(ctx, option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	c := &DriveClient{svc: svc, http: srv.Client(), pacer: pacer.New()}

	entries, err := c.ListChildren(ctx, "root")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "b.txt", entries[1].Name)
	assert.GreaterOrEqual(t, requests, 2, "expected the client to follow nextPageToken to a second page")
}

func TestClientPoolRotatesAndSkipsSleeping(t *testing.T) {
	pool := NewClientPool([]string{"a", "b", "c"})

	idx0, v0 := pool.NextIndexed()
	assert.Equal(t, 0, idx0)
	assert.Equal(t, "a", v0)
	pool.MarkSleeping(1, time.Hour) // "b" asleep

	// Rotation would normally reach b next, but b is asleep so it's skipped
	// in favor of c.
	idx1, v1 := pool.NextIndexed()
	assert.Equal(t, 2, idx1)
	assert.Equal(t, "c", v1)

	// Rotation continues past c back to a; b is still asleep.
	idx2, v2 := pool.NextIndexed()
	assert.Equal(t, 0, idx2)
	assert.Equal(t, "a", v2)
}
