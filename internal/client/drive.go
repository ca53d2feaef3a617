// Package client implements component B: the remote-provider HTTP clients
// the backends drive through a ClientPool. DriveClient wraps the Google
// Drive v3 SDK for metadata/list/copy/folder calls, and hand-rolls the
// chunked resumable-upload PUT loop directly against googleapi's upload
// endpoint since the SDK's own Media() helper hides the Content-Range
// bookkeeping the engine's progress reporting needs visibility into.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/standalone-transfer/xfer/internal/pacer"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// driveFields lists the metadata fields fetched on list/get calls, trimmed
// to what backends/gdrive actually consumes.
const driveFields = "id,name,size,trashed,modifiedTime,mimeType,parents"

// DriveClient is one authenticated Google Drive connection.
type DriveClient struct {
	svc         *drivev3.Service
	http        *http.Client
	pacer       *pacer.Pacer
	teamDriveID string
}

// NewDriveClient builds a DriveClient from an already-authorized http.Client
// (the token backend's RoundTripper), mirroring the teacher's
// drive.NewService wiring in drive/drive.go.
func NewDriveClient(ctx context.Context, httpClient *http.Client, userAgent, teamDriveID string) (*DriveClient, error) {
	svc, err := drivev3.NewService(ctx, option.WithHTTPClient(httpClient), option.WithUserAgent(userAgent))
	if err != nil {
		return nil, fmt.Errorf("client: couldn't create drive service: %w", err)
	}
	return &DriveClient{
		svc:         svc,
		http:        httpClient,
		teamDriveID: teamDriveID,
		pacer:       pacer.New(pacer.MinSleep(100 * time.Millisecond)),
	}, nil
}

func (c *DriveClient) isTeamDrive() bool { return c.teamDriveID != "" }

// FindChild implements pathindex.Resolver: looks up a child by name under
// parentID, grounded on the teacher's Fs.FindLeaf query construction.
func (c *DriveClient) FindChild(ctx context.Context, parentID, name string) (string, bool, error) {
	quoted := strings.ReplaceAll(name, `'`, `\'`)
	query := fmt.Sprintf("name='%s' and trashed=false and '%s' in parents", quoted, parentID)
	if c.isTeamDrive() {
		query += fmt.Sprintf(" and driveId='%s'", c.teamDriveID)
	}

	var files []*drivev3.File
	err := c.pacer.Call(func() (bool, error) {
		call := c.svc.Files.List().Q(query).Fields(googleapi.Field(driveFields)).Context(ctx).
			SupportsAllDrives(c.isTeamDrive()).IncludeItemsFromAllDrives(c.isTeamDrive())
		list, err := call.Do()
		if err != nil {
			return shouldRetryDrive(err), err
		}
		files = list.Files
		return false, nil
	})
	if err != nil {
		return "", false, translateDriveErr(err)
	}
	if len(files) == 0 {
		return "", false, nil
	}
	return files[0].Id, true, nil
}

// CreateDir implements pathindex.Resolver: creates a folder under parentID.
func (c *DriveClient) CreateDir(ctx context.Context, parentID, name string) (string, error) {
	info := &drivev3.File{Name: name, MimeType: driveFolderMimeType, Parents: []string{parentID}}
	var created *drivev3.File
	err := c.pacer.Call(func() (bool, error) {
		var err error
		created, err = c.svc.Files.Create(info).Fields("id").Context(ctx).SupportsAllDrives(c.isTeamDrive()).Do()
		return shouldRetryDrive(err), err
	})
	if err != nil {
		return "", translateDriveErr(err)
	}
	return created.Id, nil
}

// DriveObject describes one Drive file entry surfaced during enumeration.
type DriveObject struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
}

// IsDir reports whether the entry is a Drive folder.
func (o DriveObject) IsDir() bool { return o.MimeType == driveFolderMimeType }

// ListChildren returns every non-trashed entry directly under parentID.
func (c *DriveClient) ListChildren(ctx context.Context, parentID string) ([]DriveObject, error) {
	query := fmt.Sprintf("trashed=false and '%s' in parents", parentID)
	if c.isTeamDrive() {
		query += fmt.Sprintf(" and driveId='%s'", c.teamDriveID)
	}

	var entries []DriveObject
	pageToken := ""
	for {
		var list *drivev3.FileList
		err := c.pacer.Call(func() (bool, error) {
			call := c.svc.Files.List().Q(query).Fields(googleapi.Field("nextPageToken," + driveFields)).
				Context(ctx).SupportsAllDrives(c.isTeamDrive()).IncludeItemsFromAllDrives(c.isTeamDrive())
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			list, err = call.Do()
			return shouldRetryDrive(err), err
		})
		if err != nil {
			return nil, translateDriveErr(err)
		}
		for _, f := range list.Files {
			entries = append(entries, DriveObject{ID: f.Id, Name: f.Name, Size: f.Size, MimeType: f.MimeType})
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return entries, nil
}

// Stat fetches metadata for a single file by id.
func (c *DriveClient) Stat(ctx context.Context, id string) (DriveObject, error) {
	var f *drivev3.File
	err := c.pacer.Call(func() (bool, error) {
		var err error
		f, err = c.svc.Files.Get(id).Fields(googleapi.Field(driveFields)).Context(ctx).SupportsAllDrives(c.isTeamDrive()).Do()
		return shouldRetryDrive(err), err
	})
	if err != nil {
		return DriveObject{}, translateDriveErr(err)
	}
	return DriveObject{ID: f.Id, Name: f.Name, Size: f.Size, MimeType: f.MimeType}, nil
}

// CopyFile performs a server-side copy of sourceID into destParentID,
// renamed to name — the Copy-task fast path for Drive→Drive transfers.
func (c *DriveClient) CopyFile(ctx context.Context, sourceID, destParentID, name string) (DriveObject, error) {
	info := &drivev3.File{Name: name, Parents: []string{destParentID}}
	var copied *drivev3.File
	err := c.pacer.Call(func() (bool, error) {
		var err error
		copied, err = c.svc.Files.Copy(sourceID, info).Fields(googleapi.Field(driveFields)).
			Context(ctx).SupportsAllDrives(c.isTeamDrive()).Do()
		return shouldRetryDrive(err), err
	})
	if err != nil {
		return DriveObject{}, translateDriveErr(err)
	}
	return DriveObject{ID: copied.Id, Name: copied.Name, Size: copied.Size, MimeType: copied.MimeType}, nil
}

// Download opens a reader over a Drive file's content, honoring a byte
// offset for resume.
func (c *DriveClient) Download(ctx context.Context, id string, offset int64) (io.ReadCloser, error) {
	call := c.svc.Files.Get(id).Context(ctx).SupportsAllDrives(c.isTeamDrive())
	if offset > 0 {
		call.Header().Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := call.Download()
	if err != nil {
		return nil, translateDriveErr(err)
	}
	return resp.Body, nil
}

// StartResumableUpload opens a resumable-upload session and returns the
// session URI backends/gdrive drives chunk PUTs against, grounded on the
// teacher's uploadChunkedDetailed (drive/upload.go) but made explicit
// instead of delegated to googleapi.Media so the engine can report
// progress per Content-Range step.
func (c *DriveClient) StartResumableUpload(ctx context.Context, parentID, name string, size int64) (string, error) {
	metadata := map[string]any{"name": name, "parents": []string{parentID}}
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}

	endpoint := "https://www.googleapis.com/upload/drive/v3/files?uploadType=resumable"
	if c.isTeamDrive() {
		endpoint += "&supportsAllDrives=true"
	}

	var sessionURI string
	err = c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if rerr != nil {
			return false, rerr
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return shouldRetryStatus(resp.StatusCode), httpStatusErr(resp)
		}
		sessionURI = resp.Header.Get("Location")
		return false, nil
	})
	if err != nil {
		return "", translateDriveErr(err)
	}
	return sessionURI, nil
}

// UploadChunk PUTs one chunk of a resumable upload. final must be true only
// for the chunk reaching size's last byte; the returned bool reports
// whether the upload is now complete (the server accepted the final byte
// and returned 200/201 rather than 308).
func (c *DriveClient) UploadChunk(ctx context.Context, sessionURI string, chunk []byte, start, size int64, final bool) (bool, *DriveObject, error) {
	end := start + int64(len(chunk)) - 1
	var done bool
	var result *DriveObject

	err := c.pacer.Call(func() (bool, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, bytes.NewReader(chunk))
		if rerr != nil {
			return false, rerr
		}
		req.ContentLength = int64(len(chunk))
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))

		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return xfererr.ShouldRetryTransport(rerr), rerr
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			var f drivev3.File
			if derr := json.NewDecoder(resp.Body).Decode(&f); derr != nil {
				return false, derr
			}
			done = true
			result = &DriveObject{ID: f.Id, Name: f.Name, Size: size, MimeType: f.MimeType}
			return false, nil
		case 308: // Resume Incomplete
			done = false
			return false, nil
		default:
			return shouldRetryStatus(resp.StatusCode), httpStatusErr(resp)
		}
	})
	if err != nil {
		return false, nil, translateDriveErr(err)
	}
	return done, result, nil
}

func shouldRetryDrive(err error) bool {
	if err == nil {
		return false
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code >= 500 && gerr.Code < 600 {
			return true
		}
		if len(gerr.Errors) > 0 {
			reason := gerr.Errors[0].Reason
			if reason == "rateLimitExceeded" || reason == "userRateLimitExceeded" {
				return true
			}
		}
		return false
	}
	return xfererr.ShouldRetryTransport(err)
}

func shouldRetryStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func hasRateLimitReason(gerr *googleapi.Error) bool {
	for _, e := range gerr.Errors {
		if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func retryAfterFromHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	return xfererr.ParseRetryAfter(&http.Response{Header: h})
}

// translateDriveErr converts a googleapi/transport error into the
// xfererr.Outcome-friendly shape backend workers expect, mirroring the
// teacher's translateError/ProcessError in drive/errors.go. A throttling
// response that survived the pacer's internal retries becomes a
// RateLimitedError so callers can re-enqueue as Sleep instead of Fail.
func translateDriveErr(err error) error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == http.StatusTooManyRequests || hasRateLimitReason(gerr) {
			return xfererr.NewRateLimited(retryAfterFromHeader(gerr.Header))
		}
		switch gerr.Code {
		case http.StatusNotFound:
			return xfererr.ErrFileNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return xfererr.ErrAuthFailed
		}
	}
	return err
}

func httpStatusErr(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return xfererr.NewRateLimited(xfererr.ParseRetryAfter(resp))
	}
	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if xfererr.IsRateLimited(resp.StatusCode, string(body)) {
			return xfererr.NewRateLimited(xfererr.ParseRetryAfter(resp))
		}
		return fmt.Errorf("client: unexpected status %s: %s", resp.Status, body)
	}
	return fmt.Errorf("client: unexpected status %s", resp.Status)
}
