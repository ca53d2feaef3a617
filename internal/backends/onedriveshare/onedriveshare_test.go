package onedriveshare

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standalone-transfer/xfer/internal/pacer"
	"github.com/standalone-transfer/xfer/internal/task"
)

func TestParseShareURL(t *testing.T) {
	tenant, account, err := parseShareURL("https://contoso-my.sharepoint.com/:f:/g/personal/jdoe_contoso_com/EpQabc123")
	require.NoError(t, err)
	assert.Equal(t, "contoso-my.sharepoint.com", tenant)
	assert.Equal(t, "jdoe_contoso_com", account)
}

func TestDiscoverRefPathFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Location shape: 8 "/"-separated segments, segment[7] carries
		// "onedrive.aspx?id=<percent-encoded path>&parent=...".
		w.Header().Set("Location", "https://x/1/2/3/4/onedrive.aspx?id=%2Fa%2Fb%2Fc%2Ffoo&parent=bar")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	b := &Backend{path: srv.URL, isFolder: true}
	refPath, err := b.discoverRefPath(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/foo", refPath)
}

func TestWalkRecursesIntoSubfoldersAndPaginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, `{"ListData":{"Row":[
				{".fileType":"",".hasPdf":"","FileRef":"/sites/x/Documents/sub"},
				{".fileType":"x",".hasPdf":"","FileRef":"/sites/x/Documents/a.txt","UniqueId":"{11111111-1111-1111-1111-111111111111}","FileSizeDisplay":"5"}
			],"NextHref":"?Page=2"}}`)
		case 2:
			fmt.Fprint(w, `{"ListData":{"Row":[
				{".fileType":"x",".hasPdf":"","FileRef":"/sites/x/Documents/a2.txt","UniqueId":"{33333333-3333-3333-3333-333333333333}","FileSizeDisplay":"9"}
			],"NextHref":""}}`)
		default:
			fmt.Fprint(w, `{"ListData":{"Row":[
				{".fileType":"x",".hasPdf":"","FileRef":"/sites/x/Documents/sub/b.txt","UniqueId":"{22222222-2222-2222-2222-222222222222}","FileSizeDisplay":"7"}
			],"NextHref":""}}`)
		}
	}))
	defer srv.Close()

	b := &Backend{
		client:              srv.Client(),
		pacer:               pacer.New(),
		isFolder:            true,
		listURL:             srv.URL + "/list",
		downloadURLTemplate: srv.URL + "/download?id=%s",
		baseDocumentPath:    "/personal/test/Documents",
		renderOptions:       renderOptionsInitialFolder,
	}

	out := make(chan task.Task)
	errc := make(chan error, 1)
	go func() {
		errc <- b.walk(context.Background(), "/root", out)
		close(out)
	}()

	seen := map[string]int64{}
	for tk := range out {
		seen[tk.RelativePath] = tk.TotalSize
	}
	require.NoError(t, <-errc)

	assert.Equal(t, int64(5), seen["a.txt"])
	assert.Equal(t, int64(9), seen["a2.txt"], "expected a2.txt (paginated) size 9")
	assert.Equal(t, int64(7), seen["sub/b.txt"], "expected sub/b.txt (recursed folder) size 7")
	assert.Equal(t, 3, calls, "expected 3 listing calls (page 1, page 2, subfolder)")
}

func TestGetWorkerRejected(t *testing.T) {
	b := &Backend{}
	_, err := b.GetWorker(task.Task{})
	assert.Error(t, err, "expected onedriveshare.GetWorker to reject use as a destination")
}
