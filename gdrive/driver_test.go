package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	mediasync "github.com/dracic/media-sync"
)

// fakeDrive serves just enough of the Drive v3 API for the driver.
type fakeDrive struct {
	folders     []map[string]string // id + name
	files       []map[string]string // name + webViewLink
	permissions []map[string]string // emailAddress
	pageSize    int
	failQueries bool // every files query returns a server error

	folderQueries int
	folderCreates int
	listCalls     int
	pointQueries  int
	permLists     int
	permCreates   int
	uploads       int
	linkGets      int

	createdEmails []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if strings.Contains(r.URL.Path, "/upload/") {
		f.uploads++
		f.respond(w, map[string]any{"id": "file-upload-1"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "files" && r.Method == http.MethodGet:
		f.serveQuery(w, r)
	case len(parts) == 1 && parts[0] == "files" && r.Method == http.MethodPost:
		f.folderCreates++
		f.respond(w, map[string]any{"id": "folder-created"})
	case len(parts) == 2 && parts[0] == "files" && r.Method == http.MethodGet:
		f.linkGets++
		f.respond(w, map[string]any{"webViewLink": "https://drive.google.com/file/d/" + parts[1] + "/view"})
	case len(parts) == 3 && parts[2] == "permissions" && r.Method == http.MethodGet:
		f.permLists++
		f.respond(w, map[string]any{"permissions": f.permissions})
	case len(parts) == 3 && parts[2] == "permissions" && r.Method == http.MethodPost:
		f.permCreates++
		var perm map[string]any
		json.NewDecoder(r.Body).Decode(&perm)
		if email, ok := perm["emailAddress"].(string); ok {
			f.createdEmails = append(f.createdEmails, email)
		}
		f.respond(w, map[string]any{"id": "perm-created"})
	default:
		http.Error(w, `{"error": {"code": 404, "message": "not found"}}`, http.StatusNotFound)
	}
}

func (f *fakeDrive) serveQuery(w http.ResponseWriter, r *http.Request) {
	if f.failQueries {
		http.Error(w, `{"error": {"code": 500, "message": "backend unavailable"}}`, http.StatusInternalServerError)
		return
	}

	q := r.URL.Query().Get("q")
	switch {
	case strings.Contains(q, "mimeType = '"+folderMime+"'"):
		f.folderQueries++
		f.respond(w, map[string]any{"files": f.folders})
	case strings.Contains(q, "name = '"):
		f.pointQueries++
		name := queryName(q)
		matches := []map[string]string{}
		for _, file := range f.files {
			if file["name"] == name {
				matches = append(matches, file)
			}
		}
		f.respond(w, map[string]any{"files": matches})
	default:
		f.serveList(w, r)
	}
}

func (f *fakeDrive) serveList(w http.ResponseWriter, r *http.Request) {
	f.listCalls++

	size := f.pageSize
	if size == 0 {
		size = 1000
	}

	start := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		start, _ = strconv.Atoi(token)
	}

	end := start + size
	if end > len(f.files) {
		end = len(f.files)
	}

	res := map[string]any{"files": f.files[start:end]}
	if end < len(f.files) {
		res["nextPageToken"] = strconv.Itoa(end)
	}
	f.respond(w, res)
}

func (f *fakeDrive) respond(w http.ResponseWriter, body map[string]any) {
	json.NewEncoder(w).Encode(body)
}

// queryName extracts the file name from a "name = '...'" query clause.
func queryName(q string) string {
	rest := q[strings.Index(q, "name = '")+len("name = '"):]
	return rest[:strings.Index(rest, "'")]
}

func testConfig(shareWith ...string) mediasync.Config {
	return mediasync.Config{
		Driver: "google_drive",
		GoogleDrive: mediasync.GoogleDriveConfig{
			Folder:    "media-sync",
			ShareWith: shareWith,
		},
	}
}

func newTestDriver(t *testing.T, fake *fakeDrive, cfg mediasync.Config) *Driver {
	t.Helper()

	d, err := newFakeDriver(t, fake, cfg)
	require.NoError(t, err)

	return d
}

func newFakeDriver(t *testing.T, fake *fakeDrive, cfg mediasync.Config) (*Driver, error) {
	t.Helper()

	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		return nil, err
	}

	return newDriver(context.Background(), service, cfg)
}

func TestNewDriver_MissingServiceAccount(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleDrive.ServiceAccountFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := NewDriver(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Drive driver init error")
}

func TestNewDriver_FindsExistingFolder(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}

	d := newTestDriver(t, fake, testConfig())

	assert.Equal(t, "folder-1", d.folderID)
	assert.Equal(t, 1, fake.folderQueries)
	assert.Equal(t, 0, fake.folderCreates)
}

func TestNewDriver_MultipleFoldersFirstWins(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{
			{"id": "folder-1", "name": "media-sync"},
			{"id": "folder-2", "name": "media-sync"},
		},
	}

	d := newTestDriver(t, fake, testConfig())

	assert.Equal(t, "folder-1", d.folderID)
}

func TestNewDriver_CreatesFolderWhenMissing(t *testing.T) {
	fake := &fakeDrive{}

	d := newTestDriver(t, fake, testConfig())

	assert.Equal(t, "folder-created", d.folderID)
	assert.Equal(t, 1, fake.folderCreates)
}

func TestNewDriver_ShareSkipsExistingPermission(t *testing.T) {
	fake := &fakeDrive{
		folders:     []map[string]string{{"id": "folder-1", "name": "media-sync"}},
		permissions: []map[string]string{{"emailAddress": "Existing@example.com"}},
	}

	newTestDriver(t, fake, testConfig("existing@example.com", "new@example.com"))

	// One address already holds a permission, so exactly one grant goes out.
	assert.Equal(t, 1, fake.permCreates)
	assert.Equal(t, []string{"new@example.com"}, fake.createdEmails)
}

func TestNewDriver_ShareSkipsInvalidAddresses(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}

	newTestDriver(t, fake, testConfig("not an address", "also@invalid"))

	assert.Equal(t, 0, fake.permLists)
	assert.Equal(t, 0, fake.permCreates)
}

func TestNewDriver_InitError(t *testing.T) {
	fake := &fakeDrive{failQueries: true}

	_, err := newFakeDriver(t, fake, testConfig())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Drive driver init error")
}

func TestUploadFile(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}
	d := newTestDriver(t, fake, testConfig())

	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("photo bytes"), 0o644))

	url, err := d.UploadFile(context.Background(), src, "2024/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, "https://drive.google.com/file/d/file-upload-1/view", url)
	assert.Equal(t, 1, fake.uploads)
	assert.Equal(t, 1, fake.linkGets)
}

func TestUploadFile_MissingSource(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}
	d := newTestDriver(t, fake, testConfig())

	_, err := d.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"), "photo.jpg")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Drive driver upload error")
}

func TestListFiles_ClientSidePrefix(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
		files: []map[string]string{
			{"name": "images/a.jpg", "webViewLink": "https://drive.google.com/a"},
			{"name": "docs/b.txt", "webViewLink": "https://drive.google.com/b"},
		},
	}
	d := newTestDriver(t, fake, testConfig())

	names, err := d.ListFiles(context.Background(), "images/").Collect()
	assert.Nil(t, err)
	assert.Equal(t, []string{"images/a.jpg"}, names)

	// Only yielded files are cached.
	d.mux.RLock()
	defer d.mux.RUnlock()
	assert.Equal(t, map[string]string{"images/a.jpg": "https://drive.google.com/a"}, d.urlCache)
}

func TestListFiles_CachesYieldedURLs(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
		files: []map[string]string{
			{"name": "a.jpg", "webViewLink": "https://drive.google.com/a"},
		},
	}
	d := newTestDriver(t, fake, testConfig())

	_, err := d.ListFiles(context.Background(), "").Collect()
	require.NoError(t, err)

	url, err := d.GetFileURL(context.Background(), "a.jpg")
	assert.Nil(t, err)
	assert.Equal(t, "https://drive.google.com/a", url)

	exists, err := d.FileExists(context.Background(), "a.jpg")
	assert.Nil(t, err)
	assert.True(t, exists)

	// Both answers came from the cache, not the backend.
	assert.Equal(t, 0, fake.pointQueries)
}

func TestListFiles_Pagination(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}
	for i := 0; i < 6000; i++ {
		fake.files = append(fake.files, map[string]string{
			"name":        fmt.Sprintf("file%05d.jpg", i),
			"webViewLink": fmt.Sprintf("https://drive.google.com/%d", i),
		})
	}
	d := newTestDriver(t, fake, testConfig())

	names, err := d.ListFiles(context.Background(), "").Collect()
	assert.Nil(t, err)
	assert.Len(t, names, 6000)
	assert.Equal(t, "file00000.jpg", names[0])
	assert.Equal(t, "file05999.jpg", names[5999])
	assert.Equal(t, 6, fake.listCalls)
}

func TestListFiles_Error(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}
	d := newTestDriver(t, fake, testConfig())

	fake.failQueries = true

	_, err := d.ListFiles(context.Background(), "").Collect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Drive driver list error")
}

func TestGetFileURL_PointQueryFallback(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
		files: []map[string]string{
			{"name": "a.jpg", "webViewLink": "https://drive.google.com/a"},
		},
	}
	d := newTestDriver(t, fake, testConfig())

	url, err := d.GetFileURL(context.Background(), "a.jpg")
	assert.Nil(t, err)
	assert.Equal(t, "https://drive.google.com/a", url)
	assert.Equal(t, 1, fake.pointQueries)
}

func TestGetFileURL_MissingFile(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
	}
	d := newTestDriver(t, fake, testConfig())

	url, err := d.GetFileURL(context.Background(), "never-uploaded.jpg")
	assert.Nil(t, err)
	assert.Equal(t, "", url)
}

func TestFileExists_PointQuery(t *testing.T) {
	fake := &fakeDrive{
		folders: []map[string]string{{"id": "folder-1", "name": "media-sync"}},
		files: []map[string]string{
			{"name": "a.jpg", "webViewLink": "https://drive.google.com/a"},
		},
	}
	d := newTestDriver(t, fake, testConfig())

	exists, err := d.FileExists(context.Background(), "a.jpg")
	assert.Nil(t, err)
	assert.True(t, exists)

	exists, err = d.FileExists(context.Background(), "missing.jpg")
	assert.Nil(t, err)
	assert.False(t, exists)

	assert.Equal(t, 2, fake.pointQueries)
}

func TestEscapeName(t *testing.T) {
	assert.Equal(t, `it\'s \\ here.jpg`, escapeName(`it's \ here.jpg`))
}
