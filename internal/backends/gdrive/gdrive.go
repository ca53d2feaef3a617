// Package gdrive implements component C's Google Drive source/destination:
// enumeration (single file, subtree walk), resumable chunked upload, and
// server-side Drive→Drive copy. Grounded on drive/drive.go (List/FindLeaf/
// CreateDir wiring), drive/upload.go (chunked upload), drive/teamdrives.go
// (drive-id validation), re-expressed around internal/client and
// internal/pathindex instead of the teacher's DirCache+Fs coupling.
package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"golang.org/x/oauth2"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/client"
	"github.com/standalone-transfer/xfer/internal/pathindex"
	"github.com/standalone-transfer/xfer/internal/pathutil"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/token"
	"github.com/standalone-transfer/xfer/version"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

func init() {
	registry.Register("drive", New)
}

// Config is the Drive backend's persisted configuration.
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenFile    string `json:"token_file"`
	TokenPassword string `json:"token_password"`
	RootFolderID string `json:"root_folder_id"`
	TeamDriveID  string `json:"team_drive"`

	// TokenFiles, when set, authorizes one client per token file and pools
	// them (client.ClientPool) so a rate-limited account's calls drain to
	// the others instead of stalling the whole transfer. TokenFile is still
	// honored as the single-account shorthand when TokenFiles is empty.
	TokenFiles []string `json:"token_files,omitempty"`

	// ServiceAccountFile, when set, authorizes the backend via the Google
	// service-account JWT flow (internal/token.ServiceAccountBackend)
	// instead of the refresh-token flow; TokenFile(s)/TokenPassword are
	// ignored in that case.
	ServiceAccountFile string `json:"service_account_file,omitempty"`
}

// driveIDPattern mirrors the teacher's team-drive/file id validation in
// drive/teamdrives.go: Drive ids are base64url-ish alphanumerics plus
// '-'/'_', commonly 19-33 characters.
var driveIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,64}$`)

// ValidateDriveID reports whether id looks like a syntactically valid
// Drive object/team-drive id, the supplemented validation from
// SPEC_FULL.md §3.2.
func ValidateDriveID(id string) error {
	if !driveIDPattern.MatchString(id) {
		return fmt.Errorf("gdrive: %q is not a valid drive id", id)
	}
	return nil
}

// driveAPI narrows *client.DriveClient to what Backend drives, so tests can
// substitute a fake without standing up a real Drive API endpoint.
type driveAPI interface {
	FindChild(ctx context.Context, parentID, name string) (string, bool, error)
	CreateDir(ctx context.Context, parentID, name string) (string, error)
	ListChildren(ctx context.Context, parentID string) ([]client.DriveObject, error)
	Stat(ctx context.Context, id string) (client.DriveObject, error)
	CopyFile(ctx context.Context, sourceID, destParentID, name string) (client.DriveObject, error)
	Download(ctx context.Context, id string, offset int64) (io.ReadCloser, error)
	StartResumableUpload(ctx context.Context, parentID, name string, size int64) (string, error)
	UploadChunk(ctx context.Context, sessionURI string, chunk []byte, start, size int64, final bool) (bool, *client.DriveObject, error)
}

// Backend is the Google Drive source/destination.
type Backend struct {
	pool  *client.ClientPool[driveAPI]
	index *pathindex.Index
	root  string // normalized path prefix within the drive
	args  backend.Args
}

// New constructs a Drive Backend. It authorizes one client per configured
// token file (ServiceAccountFile, if set, always wins and yields a single
// client) and pools them, mirroring the teacher's createOAuthClient but
// against the generalized token package instead of lib/oauthutil.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("gdrive: invalid config: %w", err)
	}
	if cfg.TeamDriveID != "" {
		if err := ValidateDriveID(cfg.TeamDriveID); err != nil {
			return nil, err
		}
	}
	if cfg.RootFolderID != "" {
		if err := ValidateDriveID(cfg.RootFolderID); err != nil {
			return nil, err
		}
	}

	clients, err := buildClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pool := client.NewClientPool(clients)

	root := cfg.RootFolderID
	if root == "" {
		if cfg.TeamDriveID != "" {
			root = cfg.TeamDriveID
		} else {
			root = "root"
		}
	}

	return &Backend{
		pool:  pool,
		index: pathindex.New(poolResolver{pool}, root),
		root:  pathutil.Normalize(path),
		args:  args,
	}, nil
}

// buildClients authorizes either one service-account client or one
// refresh-token client per entry in cfg.TokenFiles (cfg.TokenFile when
// TokenFiles is empty), each wrapping its own *client.DriveClient.
func buildClients(ctx context.Context, cfg Config) ([]driveAPI, error) {
	if cfg.ServiceAccountFile != "" {
		raw, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("gdrive: read service account file: %w", err)
		}
		sab, err := token.NewServiceAccountBackend(ctx, raw, "https://www.googleapis.com/auth/drive")
		if err != nil {
			return nil, err
		}
		dc, err := client.NewDriveClient(ctx, token.NewHTTPClient(sab), version.GetUserAgent(), cfg.TeamDriveID)
		if err != nil {
			return nil, err
		}
		return []driveAPI{dc}, nil
	}

	tokenFiles := cfg.TokenFiles
	if len(tokenFiles) == 0 {
		tokenFiles = []string{cfg.TokenFile}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.google.com/o/oauth2/auth", TokenURL: "https://oauth2.googleapis.com/token"},
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
	}

	clients := make([]driveAPI, 0, len(tokenFiles))
	for _, tokenFile := range tokenFiles {
		store := token.NewStore(tokenFile, cfg.TokenPassword)
		if err := store.Load(); err != nil {
			return nil, err
		}
		tb := token.NewRefreshTokenBackend(store, oauthCfg)
		dc, err := client.NewDriveClient(ctx, token.NewHTTPClient(tb), version.GetUserAgent(), cfg.TeamDriveID)
		if err != nil {
			return nil, err
		}
		clients = append(clients, dc)
	}
	return clients, nil
}

// poolResolver adapts a driveAPI pool into a pathindex.Resolver, spreading
// directory lookups/creations across the pool the same way file transfers
// are spread.
type poolResolver struct {
	pool *client.ClientPool[driveAPI]
}

func (r poolResolver) FindChild(ctx context.Context, parentID, name string) (string, bool, error) {
	return r.pool.Next().FindChild(ctx, parentID, name)
}

func (r poolResolver) CreateDir(ctx context.Context, parentID, name string) (string, error) {
	return r.pool.Next().CreateDir(ctx, parentID, name)
}

// IterTasks resolves root (backend path) to an id and walks it, emitting
// one Task per file (subtree walk) or — if root names a single file — one
// Task for that file.
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		folderID, err := b.index.Resolve(ctx, b.root, false)
		if err != nil {
			errc <- err
			return
		}

		if obj, serr := b.pool.Next().Stat(ctx, folderID); serr == nil && !obj.IsDir() {
			id := obj.ID
			t := task.NewCopy(obj.Name, obj.Size, id, id)
			if !b.args.Copy {
				dlClient := b.pool.Next()
				t = task.New(obj.Name, obj.Size, id, func(ctx context.Context) (io.ReadCloser, error) {
					return dlClient.Download(ctx, id, 0)
				})
			}
			select {
			case out <- t:
			case <-ctx.Done():
				errc <- ctx.Err()
			}
			return
		}

		if err := b.walk(ctx, folderID, "", out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (b *Backend) walk(ctx context.Context, folderID, relPrefix string, out chan<- task.Task) error {
	dc := b.pool.Next()
	entries, err := dc.ListChildren(ctx, folderID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		rel := pathutil.Join(relPrefix, entry.Name)
		if entry.IsDir() {
			if err := b.walk(ctx, entry.ID, rel, out); err != nil {
				return err
			}
			continue
		}
		id := entry.ID
		var t task.Task
		if b.args.Copy {
			t = task.NewCopy(rel, entry.Size, id, id)
		} else {
			dlClient := b.pool.Next()
			t = task.New(rel, entry.Size, id, func(ctx context.Context) (io.ReadCloser, error) {
				return dlClient.Download(ctx, id, 0)
			})
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetWorker resolves t's destination folder (creating missing folders) and
// returns either a server-side copy worker (if t.IsCopy()) or a chunked
// resumable-upload worker.
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	dir, leaf := pathutil.Split(pathutil.Join(b.root, t.RelativePath))
	ctx := context.Background()
	parentID, err := b.index.Resolve(ctx, dir, true)
	if err != nil {
		return nil, err
	}

	if t.IsCopy() {
		return func(ctx context.Context, p progress.Task) xfererr.Outcome {
			idx, dc := b.pool.NextIndexed()
			if _, err := dc.CopyFile(ctx, t.Copy, parentID, leaf); err != nil {
				return classify(b.pool, idx, err)
			}
			p.Add(t.TotalSize)
			return xfererr.OK()
		}, nil
	}

	if existingID, found, err := b.pool.Next().FindChild(ctx, parentID, leaf); err != nil {
		return nil, err
	} else if found {
		if _, err := b.pool.Next().Stat(ctx, existingID); err == nil {
			return func(ctx context.Context, p progress.Task) xfererr.Outcome {
				return xfererr.AlreadyExists()
			}, nil
		}
	}

	chunkSize := b.args.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8 << 20
	}
	stepSize := b.args.StepSize

	return func(ctx context.Context, p progress.Task) xfererr.Outcome {
		return uploadResumable(ctx, b.pool, parentID, leaf, t, chunkSize, stepSize, p)
	}, nil
}

func uploadResumable(ctx context.Context, pool *client.ClientPool[driveAPI], parentID, leaf string, t task.Task, chunkSize, stepSize int, p progress.Task) xfererr.Outcome {
	idx, dc := pool.NextIndexed()
	sessionURI, err := dc.StartResumableUpload(ctx, parentID, leaf, t.TotalSize)
	if err != nil {
		return classify(pool, idx, err)
	}

	chunks, errs := t.IterData(ctx, chunkSize)
	for chunk := range chunks {
		stepped := task.StepSplit(chunk.Data, stepSize, p.Add)
		buf, rerr := io.ReadAll(stepped)
		if rerr != nil {
			return xfererr.Failed(rerr)
		}
		final := chunk.Start+int64(len(buf)) >= t.TotalSize
		done, _, err := dc.UploadChunk(ctx, sessionURI, buf, chunk.Start, t.TotalSize, final)
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
// response; that client is marked sleeping in the pool and the task is
// handed back as Sleep so the engine re-enqueues it, rather than treating
// throttling as a terminal failure.
func classify(pool *client.ClientPool[driveAPI], idx int, err error) xfererr.Outcome {
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
