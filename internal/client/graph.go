package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/standalone-transfer/xfer/internal/pacer"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// graphBaseURL roots every Graph call at "my" drive; OneDrive-for-Business
// document libraries are addressed through GraphClient.baseURL instead
// (set from a drive id rather than "me").
const graphBaseURL = "https://graph.microsoft.com/v1.0/me/drive"

// GraphClient is one authenticated Microsoft Graph connection, hand-rolled
// against net/http since no Graph SDK exists anywhere in the reference
// pack — grounded on trevi-software-restic's internal/backend/onedrive
// low-level call shape (httpError, driveItem, upload-session loop).
type GraphClient struct {
	http     *http.Client
	pacer    *pacer.Pacer
	baseURL  string
	fragment int64 // upload-session fragment size, bytes
}

// NewGraphClient builds a GraphClient from an authorized http.Client. base,
// if empty, defaults to the personal "me/drive" root; a document-library
// backend passes its own "drives/{id}" root instead.
func NewGraphClient(httpClient *http.Client, base string) *GraphClient {
	if base == "" {
		base = graphBaseURL
	}
	return &GraphClient{
		http:     httpClient,
		baseURL:  base,
		pacer:    pacer.New(pacer.MinSleep(100 * time.Millisecond)),
		fragment: 327680 * 30, // ~9MiB, Graph's recommended fragment multiple
	}
}

type graphError struct {
	status     string
	statusCode int
	header     http.Header
}

func (e graphError) Error() string { return fmt.Sprintf("graph: %s", e.status) }

func isGraphSuccess(code int) bool { return code >= 200 && code <= 299 }

// IsConflict reports whether err is the 409 Graph returns for
// createUploadSession's conflictBehavior:"fail" when the target already
// exists.
func IsConflict(err error) bool {
	gerr, ok := err.(graphError)
	return ok && gerr.statusCode == http.StatusConflict
}

// translateGraphErr converts a graphError into the xfererr.Outcome-friendly
// shape backend workers expect. A 429 that survived the pacer's internal
// retries becomes a RateLimitedError; a 404 becomes ErrFileNotFound. Every
// other status (including 409, left for IsConflict) passes through
// unchanged.
func translateGraphErr(err error) error {
	if err == nil {
		return nil
	}
	gerr, ok := err.(graphError)
	if !ok {
		return err
	}
	switch gerr.statusCode {
	case http.StatusTooManyRequests:
		return xfererr.NewRateLimited(xfererr.ParseRetryAfter(&http.Response{Header: gerr.header}))
	case http.StatusNotFound:
		return xfererr.ErrFileNotFound
	}
	return err
}

type driveItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Folder   *struct{} `json:"folder,omitempty"`
}

type driveItemChildren struct {
	NextLink string      `json:"@odata.nextLink"`
	Children []driveItem `json:"value"`
}

func (c *GraphClient) itemPath(path string) string {
	if path == "" {
		return c.baseURL + "/root"
	}
	return c.baseURL + ":/" + strings.TrimPrefix(path, "/")
}

// GraphObject mirrors DriveObject for callers in backends/onedrive.
type GraphObject struct {
	ID   string
	Name string
	Size int64
	Dir  bool
}

// Stat fetches metadata for the item at path.
func (c *GraphClient) Stat(ctx context.Context, path string) (GraphObject, error) {
	var item driveItem
	err := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, c.itemPath(path), nil)
		if rerr != nil {
			return false, rerr
		}
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		if !isGraphSuccess(resp.StatusCode) {
			return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
		}
		return false, json.NewDecoder(resp.Body).Decode(&item)
	})
	if err != nil {
		return GraphObject{}, translateGraphErr(err)
	}
	return GraphObject{ID: item.ID, Name: item.Name, Size: item.Size, Dir: item.Folder != nil}, nil
}

// ListChildren lists every entry directly under path, following
// @odata.nextLink pagination.
func (c *GraphClient) ListChildren(ctx context.Context, path string) ([]GraphObject, error) {
	nextURL := c.itemPath(path) + ":/children?$select=id,name,size,folder"
	var entries []GraphObject
	for nextURL != "" {
		var page driveItemChildren
		url := nextURL
		err := c.pacer.Call(func() (bool, error) {
			req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if rerr != nil {
				return false, rerr
			}
			resp, rerr := c.http.Do(req)
			if rerr != nil {
				return xfererr.ShouldRetryTransport(rerr), rerr
			}
			defer resp.Body.Close()
			if !isGraphSuccess(resp.StatusCode) {
				return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
			}
			return false, json.NewDecoder(resp.Body).Decode(&page)
		})
		if err != nil {
			return nil, translateGraphErr(err)
		}
		for _, it := range page.Children {
			entries = append(entries, GraphObject{ID: it.ID, Name: it.Name, Size: it.Size, Dir: it.Folder != nil})
		}
		nextURL = page.NextLink
	}
	return entries, nil
}

// FindChild implements pathindex.Resolver against Graph's children listing.
func (c *GraphClient) FindChild(ctx context.Context, parentPath, name string) (string, bool, error) {
	children, err := c.ListChildren(ctx, parentPath)
	if err != nil {
		return "", false, err
	}
	for _, child := range children {
		if child.Name == name {
			return parentPathJoin(parentPath, name), true, nil
		}
	}
	return "", false, nil
}

// CreateDir implements pathindex.Resolver: creates folder name under
// parentPath, tolerating the 412 Precondition Failed Graph returns for a
// concurrently-created folder (the If-None-Match: * guard), mirroring
// trevi-software-restic's onedriveCreateFolder.
func (c *GraphClient) CreateDir(ctx context.Context, parentPath, name string) (string, error) {
	endpoint := c.itemPath(parentPath) + ":/children"
	if parentPath == "" {
		endpoint = c.baseURL + "/root/children"
	}
	body, _ := json.Marshal(map[string]any{"name": name, "folder": map[string]any{}})

	err := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if rerr != nil {
			return false, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("If-None-Match", "*")
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		if !isGraphSuccess(resp.StatusCode) && resp.StatusCode != http.StatusPreconditionFailed {
			return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
		}
		return false, nil
	})
	if err != nil {
		return "", translateGraphErr(err)
	}
	return parentPathJoin(parentPath, name), nil
}

func parentPathJoin(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// UploadSmall PUTs content directly (Graph's "up to 4MB" single-request
// path).
func (c *GraphClient) UploadSmall(ctx context.Context, path string, content []byte) (GraphObject, error) {
	var item driveItem
	err := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, c.itemPath(path)+":/content", bytes.NewReader(content))
		if rerr != nil {
			return false, rerr
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		if !isGraphSuccess(resp.StatusCode) {
			return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
		}
		return false, json.NewDecoder(resp.Body).Decode(&item)
	})
	if err != nil {
		return GraphObject{}, translateGraphErr(err)
	}
	return GraphObject{ID: item.ID, Name: item.Name, Size: item.Size}, nil
}

// CreateUploadSession opens a resumable upload session for path with
// conflictBehavior "fail", returning the fragment-PUT URI. A 409 (the
// item already exists) surfaces as an error IsConflict reports true for,
// letting callers map it to an Exists outcome instead of a Fail.
func (c *GraphClient) CreateUploadSession(ctx context.Context, path string) (string, error) {
	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	body, _ := json.Marshal(map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": "fail"},
	})
	err := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.itemPath(path)+":/createUploadSession", bytes.NewReader(body))
		if rerr != nil {
			return false, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusConflict {
			return false, graphError{resp.Status, resp.StatusCode, resp.Header}
		}
		if !isGraphSuccess(resp.StatusCode) {
			return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
		}
		return false, json.NewDecoder(resp.Body).Decode(&session)
	})
	if err != nil {
		return "", translateGraphErr(err)
	}
	return session.UploadURL, nil
}

// UploadFragment PUTs one fragment of a resumable upload session, returning
// the final GraphObject once the server reports the upload complete
// (200/201), or ok=false while more fragments remain (202).
func (c *GraphClient) UploadFragment(ctx context.Context, sessionURL string, fragment []byte, start, total int64) (ok bool, item GraphObject, err error) {
	end := start + int64(len(fragment)) - 1
	var result driveItem
	callErr := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(fragment))
		if rerr != nil {
			return false, rerr
		}
		req.ContentLength = int64(len(fragment))
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			ok = true
			return false, json.NewDecoder(resp.Body).Decode(&result)
		case http.StatusAccepted:
			ok = false
			return false, nil
		default:
			return shouldRetryStatus(resp.StatusCode), graphError{resp.Status, resp.StatusCode, resp.Header}
		}
	})
	if callErr != nil {
		return false, GraphObject{}, translateGraphErr(callErr)
	}
	return ok, GraphObject{ID: result.ID, Name: result.Name, Size: total}, nil
}

// FragmentSize reports the configured upload-session fragment size.
func (c *GraphClient) FragmentSize() int64 { return c.fragment }

// Download opens a reader over path's content starting at offset.
func (c *GraphClient) Download(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemPath(path)+":/content", nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if !isGraphSuccess(resp.StatusCode) {
		resp.Body.Close()
		return nil, translateGraphErr(graphError{resp.Status, resp.StatusCode, resp.Header})
	}
	return resp.Body, nil
}

// EscapePathSegment percent-encodes a single path segment for use inside a
// Graph ":/path:/action" addressing scheme.
func EscapePathSegment(segment string) string {
	return url.PathEscape(segment)
}
