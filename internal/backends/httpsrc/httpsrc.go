// Package httpsrc implements component C's HTTP source: path is either a
// single URL or a local file listing one URL per line. Grounded on
// original_source/speedclone/transfers/httpdownload.py, re-expressed with
// net/http streaming instead of the original's requests-library session.
package httpsrc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/pathutil"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
)

func init() {
	registry.Register("http", New)
}

// Config carries any custom headers a site needs (mirroring the original's
// conf["http"] passthrough to requests.get).
type Config struct {
	Headers map[string]string `json:"headers"`
}

// Backend is the HTTP source: path names either a single URL or a file
// listing one URL per line.
type Backend struct {
	client *http.Client
	path   string
	cfg    Config
}

// New constructs an httpsrc Backend.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	var cfg Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("httpsrc: invalid config: %w", err)
		}
	}
	return &Backend{client: &http.Client{Timeout: 0}, path: path, cfg: cfg}, nil
}

type urlEntry struct {
	url          string
	relativePath string
}

func (b *Backend) iterURLs() ([]urlEntry, error) {
	if strings.HasPrefix(b.path, "http://") || strings.HasPrefix(b.path, "https://") {
		return []urlEntry{{url: b.path, relativePath: basenameFromURL(b.path)}}, nil
	}

	info, err := os.Stat(b.path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("httpsrc: %q is not a URL or a readable URL-list file", b.path)
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []urlEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, urlEntry{url: line, relativePath: basenameFromURL(line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func basenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	base := rawURL
	if err == nil {
		base = u.Path
	}
	name := path.Base(base)
	if unescaped, err := url.QueryUnescape(name); err == nil {
		name = unescaped
	}
	return pathutil.Normalize(name)
}

// IterTasks emits one Task per URL, sizing it from the Content-Length of a
// GET whose body is left unread (0 when the header is absent).
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		entries, err := b.iterURLs()
		if err != nil {
			errc <- err
			return
		}

		for _, e := range entries {
			size, err := b.probeSize(ctx, e.url)
			if err != nil {
				errc <- err
				return
			}
			t := task.New(e.relativePath, size, e.url, func(ctx context.Context) (io.ReadCloser, error) {
				return b.open(ctx, e.url)
			})
			select {
			case out <- t:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

func (b *Backend) probeSize(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	b.applyHeaders(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("httpsrc: %s: %s", rawURL, resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

func (b *Backend) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	b.applyHeaders(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("httpsrc: %s: %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

func (b *Backend) applyHeaders(req *http.Request) {
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}
}

// GetWorker always errors: httpsrc is a source-only backend, never a
// transfer destination.
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	return nil, fmt.Errorf("httpsrc: not usable as a destination")
}
