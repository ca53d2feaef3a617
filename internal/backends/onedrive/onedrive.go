// Package onedrive implements component C's OneDrive personal/business
// destination and source: enumeration and resumable upload against the
// Microsoft Graph driveItem API, folder resolution via internal/pathindex.
// Grounded on tonimelisma-onedrive-go and trevi-software-restic's
// internal/backend/onedrive/onedrive.go (no teacher equivalent — the
// teacher is Drive-only).
package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/oauth2"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/client"
	"github.com/standalone-transfer/xfer/internal/pathindex"
	"github.com/standalone-transfer/xfer/internal/pathutil"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/token"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

func init() {
	registry.Register("onedrive", New)
}

// Config is the OneDrive backend's persisted configuration. DriveID, when
// set, addresses a document library ("drives/{id}") instead
// of the personal "me/drive" root — the document-library variant this
// backend also serves.
type Config struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	TokenFile     string `json:"token_path"`
	TokenPassword string `json:"token_password"`
	DriveID       string `json:"drive_id"`

	// TokenFiles, when set, authorizes one client per token file and pools
	// them so a rate-limited account drains to the others. TokenFile is the
	// single-account shorthand used when TokenFiles is empty.
	TokenFiles []string `json:"token_paths,omitempty"`
}

// graphAPI narrows *client.GraphClient to what Backend drives, mirroring
// backends/gdrive's driveAPI so tests can substitute a fake.
type graphAPI interface {
	FindChild(ctx context.Context, parentPath, name string) (string, bool, error)
	CreateDir(ctx context.Context, parentPath, name string) (string, error)
	ListChildren(ctx context.Context, path string) ([]client.GraphObject, error)
	Stat(ctx context.Context, path string) (client.GraphObject, error)
	Download(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
	CreateUploadSession(ctx context.Context, path string) (string, error)
	UploadFragment(ctx context.Context, sessionURL string, fragment []byte, start, total int64) (bool, client.GraphObject, error)
	FragmentSize() int64
}

// Backend is the OneDrive source/destination.
type Backend struct {
	pool  *client.ClientPool[graphAPI]
	index *pathindex.Index
	root  string
	args  backend.Args
}

// New constructs an OneDrive Backend authorized via the refresh-token flow,
// against either the personal root or cfg.DriveID's document library. One
// client is built per cfg.TokenFiles entry (cfg.TokenFile as the
// single-account shorthand) and pooled so a throttled account's calls
// drain to the others.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("onedrive: invalid config: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		},
		Scopes: []string{"Files.ReadWrite.All", "offline_access"},
	}

	base := ""
	if cfg.DriveID != "" {
		base = "https://graph.microsoft.com/v1.0/drives/" + cfg.DriveID
	}

	tokenFiles := cfg.TokenFiles
	if len(tokenFiles) == 0 {
		tokenFiles = []string{cfg.TokenFile}
	}

	clients := make([]graphAPI, 0, len(tokenFiles))
	for _, tokenFile := range tokenFiles {
		store := token.NewStore(tokenFile, cfg.TokenPassword)
		if err := store.Load(); err != nil {
			return nil, err
		}
		tb := token.NewRefreshTokenBackend(store, oauthCfg)
		clients = append(clients, client.NewGraphClient(token.NewHTTPClient(tb), base))
	}
	pool := client.NewClientPool(clients)

	return &Backend{
		pool:  pool,
		index: pathindex.New(poolResolver{pool}, ""),
		root:  pathutil.Normalize(path),
		args:  args,
	}, nil
}

// poolResolver adapts a graphAPI pool into a pathindex.Resolver, spreading
// directory lookups/creations across the pool like file transfers.
type poolResolver struct {
	pool *client.ClientPool[graphAPI]
}

func (r poolResolver) FindChild(ctx context.Context, parentPath, name string) (string, bool, error) {
	return r.pool.Next().FindChild(ctx, parentPath, name)
}

func (r poolResolver) CreateDir(ctx context.Context, parentPath, name string) (string, error) {
	return r.pool.Next().CreateDir(ctx, parentPath, name)
}

// IterTasks resolves root to a folder path and walks it, emitting one Task
// per file.
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		folderPath, err := b.index.Resolve(ctx, b.root, false)
		if err != nil {
			errc <- err
			return
		}
		if err := b.walk(ctx, folderPath, "", out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (b *Backend) walk(ctx context.Context, folderPath, relPrefix string, out chan<- task.Task) error {
	entries, err := b.pool.Next().ListChildren(ctx, folderPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		rel := pathutil.Join(relPrefix, entry.Name)
		childPath := pathutil.Join(folderPath, entry.Name)
		if entry.Dir {
			if err := b.walk(ctx, childPath, rel, out); err != nil {
				return err
			}
			continue
		}
		path := childPath
		dlClient := b.pool.Next()
		t := task.New(rel, entry.Size, path, func(ctx context.Context) (io.ReadCloser, error) {
			return dlClient.Download(ctx, path, 0)
		})
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetWorker resolves t's destination folder (creating missing folders) and
// returns a resumable upload-session worker.
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	dir, leaf := pathutil.Split(pathutil.Join(b.root, t.RelativePath))
	ctx := context.Background()
	parentPath, err := b.index.Resolve(ctx, dir, true)
	if err != nil {
		return nil, err
	}
	destPath := pathutil.Join(parentPath, leaf)

	chunkSize := b.args.ChunkSize
	stepSize := b.args.StepSize

	return func(ctx context.Context, p progress.Task) xfererr.Outcome {
		return uploadSession(ctx, b.pool, destPath, t, chunkSize, stepSize, p)
	}, nil
}

func uploadSession(ctx context.Context, pool *client.ClientPool[graphAPI], destPath string, t task.Task, chunkSize, stepSize int, p progress.Task) xfererr.Outcome {
	idx, gc := pool.NextIndexed()
	sessionURL, err := gc.CreateUploadSession(ctx, destPath)
	if err != nil {
		if client.IsConflict(err) {
			return xfererr.AlreadyExists()
		}
		return classify(pool, idx, err)
	}

	fragmentSize := int(gc.FragmentSize())
	if fragmentSize <= 0 {
		fragmentSize = chunkSize
	}
	if chunkSize <= 0 || chunkSize > fragmentSize {
		chunkSize = fragmentSize
	}

	chunks, errs := t.IterData(ctx, chunkSize)
	for chunk := range chunks {
		stepped := task.StepSplit(chunk.Data, stepSize, p.Add)
		buf, rerr := io.ReadAll(stepped)
		if rerr != nil {
			return xfererr.Failed(rerr)
		}
		done, _, err := gc.UploadFragment(ctx, sessionURL, buf, chunk.Start, t.TotalSize)
		if err != nil {
			return classify(pool, idx, err)
		}
		if done {
			break
		}
	}
	if err := <-errs; err != nil {
		return xfererr.Failed(err)
	}
	return xfererr.OK()
}

// classify converts a client error into an Outcome. A *xfererr.RateLimitedError
// means the client's own pacer exhausted its retries against a throttling
// response; that client is marked sleeping in the pool and the task comes
// back as Sleep so the engine re-enqueues it instead of treating throttling
// as a terminal failure.
func classify(pool *client.ClientPool[graphAPI], idx int, err error) xfererr.Outcome {
	if err == nil {
		return xfererr.OK()
	}
	var rle *xfererr.RateLimitedError
	if errors.As(err, &rle) {
		pool.MarkSleeping(idx, rle.After)
		return xfererr.SleepFor(rle.After)
	}
	return xfererr.Failed(err)
}
