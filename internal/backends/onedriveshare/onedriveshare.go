// Package onedriveshare implements component C's read-only SharePoint/
// OneDrive-Share source: given a shared "personal" link, it discovers the
// canonical ref_path via the initial redirect, then recursively lists the
// shared folder (or the single shared file) via SharePoint's
// RenderListDataAsStream endpoint. Grounded on
// original_source/speedclone/transfers/onedriveshare.py — no Go precedent
// exists anywhere in the reference pack for this wire protocol, so its
// details are taken directly from the original per the rule for resolving
// spec ambiguity from the source it was distilled from.
package onedriveshare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/pacer"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
)

func init() {
	registry.Register("onedriveshare", New)
}

// Config carries the share-link mode and any custom headers applied to
// file downloads (mirroring the original's conf["http"] passthrough).
type Config struct {
	IsFolder bool              `json:"is_folder"`
	Headers  map[string]string `json:"http"`
}

const (
	listFuncFolder = "GetListUsingPath(DecodedUrl=@a1)"
	listFuncFile   = "GetList(@a1)"

	renderOptionsInitialFolder = 464647
	renderOptionsInitialFile   = 12295
	renderOptionsFollowup      = 167943
)

// fileQueryXML mirrors the original's CAML query filtering a single file
// by its server-relative FileRef.
const fileQueryXML = `<View Scope="RecursiveAll">` +
	`<Query><Where><Eq>` +
	`<FieldRef Name="FileRef" /><Value Type="Text">` +
	`<![CDATA[%s]]>` +
	`</Value></Eq></Where></Query>` +
	`<RowLimit Paged="True">1</RowLimit>` +
	`</View>`

// Backend is the OneDrive-Share source; it is read-only and never usable
// as a destination.
type Backend struct {
	client   *http.Client
	pacer    *pacer.Pacer
	path     string
	isFolder bool
	headers  map[string]string

	listURL             string
	downloadURLTemplate string
	baseDocumentPath    string

	mu            sync.Mutex
	renderOptions int
}

// New constructs an onedriveshare Backend.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	var cfg Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("onedriveshare: invalid config: %w", err)
		}
	}

	tenant, account, err := parseShareURL(path)
	if err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("https://%s/personal/%s", tenant, account)
	listFunc := listFuncFile
	if cfg.IsFolder {
		listFunc = listFuncFolder
	}

	b := &Backend{
		client:              &http.Client{},
		pacer:               pacer.New(pacer.RetriesOption(5)),
		path:                path,
		isFolder:            cfg.IsFolder,
		headers:             cfg.Headers,
		listURL:             baseURL + "/_api/web/" + listFunc + "/RenderListDataAsStream",
		downloadURLTemplate: baseURL + "/_layouts/15/download.aspx?UniqueId=%s",
		baseDocumentPath:    fmt.Sprintf("/personal/%s/Documents", account),
	}
	if cfg.IsFolder {
		b.renderOptions = renderOptionsInitialFolder
	} else {
		b.renderOptions = renderOptionsInitialFile
	}
	return b, nil
}

// parseShareURL extracts the tenant host and account segment from a shared
// "personal" link, mirroring the original's split_url[0]/split_url[4]
// indexing into the scheme-stripped path.
func parseShareURL(rawURL string) (tenant, account string, err error) {
	stripped := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	parts := strings.Split(stripped, "/")
	if len(parts) < 5 {
		return "", "", fmt.Errorf("onedriveshare: %q doesn't look like a personal share link", rawURL)
	}
	return parts[0], parts[4], nil
}

// discoverRefPath GETs path without following the first redirect, reading
// the canonical item path out of its Location header, mirroring the
// original's self.s.get(self.path).history[0].headers["Location"].
func (b *Backend) discoverRefPath(ctx context.Context) (string, error) {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.path, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("onedriveshare: no redirect Location header from %s", b.path)
	}
	segs := strings.Split(location, "/")
	if len(segs) < 8 {
		return "", fmt.Errorf("onedriveshare: unexpected redirect shape %q", location)
	}
	idPart := strings.SplitN(segs[7], "&", 2)[0]
	refPath := strings.TrimPrefix(idPart, "onedrive.aspx?id=")

	if b.isFolder {
		decoded := strings.Split(refPath, "%2F")
		if len(decoded) > 4 {
			decoded = decoded[4:]
		} else {
			decoded = nil
		}
		refPath = "/" + strings.Join(decoded, "/")
	}
	return refPath, nil
}

type shareItem struct {
	downloadURL  string
	relativePath string
	size         int64
}

type listDataEnvelope struct {
	ListData struct {
		Row      []map[string]string `json:"Row"`
		NextHref string              `json:"NextHref"`
	} `json:"ListData"`
}

// listPage performs one RenderListDataAsStream POST, returning this page's
// files, the folder paths discovered (to recurse into), and the next
// page's raw query string (empty when this is the last page).
func (b *Backend) listPage(ctx context.Context, refPath string, params url.Values) ([]shareItem, []string, string, error) {
	b.mu.Lock()
	renderOptions := b.renderOptions
	b.mu.Unlock()

	parameters := map[string]any{
		"__metadata":        map[string]any{"type": "SP.RenderListDataParameters"},
		"AddRequiredFields": true,
		"RenderOptions":     renderOptions,
	}
	if b.isFolder {
		parameters["AllowMultipleValueFilterForTaxonomyFields"] = true
	} else {
		parameters["ViewXml"] = fmt.Sprintf(fileQueryXML, mustUnescape(refPath))
	}
	body, err := json.Marshal(map[string]any{"parameters": parameters})
	if err != nil {
		return nil, nil, "", err
	}

	var envelope listDataEnvelope
	err = b.pacer.Call(func() (bool, error) {
		reqURL := b.listURL + "?" + params.Encode()
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if rerr != nil {
			return false, rerr
		}
		req.Header.Set("Content-Type", "application/json;odata=verbose")

		resp, rerr := b.client.Do(req)
		if rerr != nil {
			return true, rerr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return true, fmt.Errorf("onedriveshare: %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			return false, fmt.Errorf("onedriveshare: %s", resp.Status)
		}
		return false, json.NewDecoder(resp.Body).Decode(&envelope)
	})
	if err != nil {
		return nil, nil, "", err
	}

	b.mu.Lock()
	b.renderOptions = renderOptionsFollowup
	b.mu.Unlock()

	var files []shareItem
	var folders []string
	for _, row := range envelope.ListData.Row {
		isFolder := row[".fileType"] == "" && row[".hasPdf"] == ""
		fileRef := row["FileRef"]
		segs := strings.SplitN(fileRef, "/", 5)
		relPath := fileRef
		if len(segs) == 5 {
			relPath = segs[4]
		}
		if isFolder {
			folders = append(folders, "/"+relPath)
			continue
		}
		uniqueID := strings.Trim(row["UniqueId"], "{}")
		size, _ := strconv.ParseInt(row["FileSizeDisplay"], 10, 64)
		files = append(files, shareItem{
			downloadURL:  fmt.Sprintf(b.downloadURLTemplate, uniqueID),
			relativePath: relPath,
			size:         size,
		})
	}
	return files, folders, envelope.ListData.NextHref, nil
}

func mustUnescape(s string) string {
	unescaped, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return unescaped
}

func (b *Backend) buildParams(refPath string, addParams url.Values) url.Values {
	params := url.Values{}
	params.Set("@a1", fmt.Sprintf("'%s'", b.baseDocumentPath))
	if addParams != nil {
		for k, v := range addParams {
			params[k] = v
		}
		return params
	}
	if b.isFolder {
		params.Set("RootFolder", b.baseDocumentPath+refPath)
	} else {
		params.Set("View=", "")
	}
	return params
}

// walk enumerates refPath breadth-first: every page of the current
// directory is listed (following NextHref pagination) before descending
// into any subfolder discovered along the way.
func (b *Backend) walk(ctx context.Context, refPath string, out chan<- task.Task) error {
	pending := []string{refPath}

	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		var addParams url.Values
		for {
			files, folders, nextHref, err := b.listPage(ctx, current, b.buildParams(current, addParams))
			if err != nil {
				return err
			}
			for _, f := range files {
				downloadURL := f.downloadURL
				t := task.New(f.relativePath, f.size, downloadURL, func(ctx context.Context) (io.ReadCloser, error) {
					return b.open(ctx, downloadURL)
				})
				select {
				case out <- t:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			pending = append(pending, folders...)

			if nextHref == "" {
				break
			}
			addParams, err = url.ParseQuery(strings.TrimPrefix(nextHref, "?"))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) open(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("onedriveshare: %s: %s", downloadURL, resp.Status)
	}
	return resp.Body, nil
}

// IterTasks discovers the share's ref_path and walks it, emitting one Task
// per file.
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		refPath, err := b.discoverRefPath(ctx)
		if err != nil {
			errc <- err
			return
		}
		if err := b.walk(ctx, refPath, out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

// GetWorker always errors: onedriveshare is a read-only source, never a
// transfer destination (the original's get_worker is a no-op "pass").
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	return nil, fmt.Errorf("onedriveshare: not usable as a destination")
}
