// Package gdrive provides the Google Drive driver.
package gdrive

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	mediasync "github.com/dracic/media-sync"
)

const (
	backend    = "Google Drive"
	folderMime = "application/vnd.google-apps.folder"

	listPageSize = 1000
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// Driver stores files as children of a designated Drive folder. The folder
// is resolved by name once at construction time and shared with the
// configured collaborators.
type Driver struct {
	service  *drive.Service
	folderID string

	// urlCache maps object paths to their view links, filled while listing
	// so later point lookups for the same names skip the backend. A miss
	// only means "not listed yet", never "does not exist".
	mux      sync.RWMutex
	urlCache map[string]string
}

var _ mediasync.Driver = (*Driver)(nil)

// Register registers the Google Drive backend with the factory.
func Register(f *mediasync.Factory) {
	f.Register(mediasync.KindGoogleDrive, mediasync.DriverCreatorFunc(
		func(ctx context.Context, cfg mediasync.Config) (mediasync.Driver, error) {
			return NewDriver(ctx, cfg)
		},
	))
}

// NewDriver authenticates with the configured service account, resolves or
// creates the destination folder and grants the configured collaborators
// write access to it.
func NewDriver(ctx context.Context, cfg mediasync.Config) (*Driver, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(cfg.GoogleDrive.ServiceAccountFile),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	return newDriver(ctx, service, cfg)
}

func newDriver(ctx context.Context, service *drive.Service, cfg mediasync.Config) (*Driver, error) {
	d := &Driver{
		service:  service,
		urlCache: make(map[string]string),
	}

	folderID, err := d.findFolder(ctx, cfg.GoogleDrive.Folder)
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}
	if folderID == "" {
		if folderID, err = d.createFolder(ctx, cfg.GoogleDrive.Folder); err != nil {
			return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
		}
	}
	d.folderID = folderID

	for _, email := range shareList(cfg.GoogleDrive.ShareWith) {
		if err := d.shareWith(ctx, email); err != nil {
			return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
		}
	}

	return d, nil
}

// findFolder returns the ID of the folder with the given name, or an empty
// string if no such folder exists. When several folders share the name, the
// first result wins.
func (d *Driver) findFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s'", escapeName(name), folderMime)

	res, err := d.service.Files.List().Context(ctx).Q(query).Fields("files(id, name)").Do()
	if err != nil {
		return "", fmt.Errorf("find folder: %w", err)
	}

	if len(res.Files) > 1 {
		log.Printf("gdrive: multiple folders named '%s' found, using the first one", name)
	}
	if len(res.Files) == 0 {
		return "", nil
	}

	return res.Files[0].Id, nil
}

func (d *Driver) createFolder(ctx context.Context, name string) (string, error) {
	folder, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMime,
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	return folder.Id, nil
}

// shareList validates the configured collaborator addresses,
// silently dropping entries that do not look like an email address.
func shareList(addrs []string) []string {
	var emails []string
	for _, addr := range addrs {
		if emailPattern.MatchString(addr) {
			emails = append(emails, addr)
		}
	}

	if len(emails) == 0 {
		log.Printf("gdrive: folder not shared with any user")
	}

	return emails
}

// shareWith grants write access to email unless it already holds a
// permission on the folder.
func (d *Driver) shareWith(ctx context.Context, email string) error {
	has, err := d.hasPermission(ctx, email)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	_, err = d.service.Permissions.Create(d.folderID, &drive.Permission{
		Type:         "user",
		Role:         "writer",
		EmailAddress: email,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("share folder with '%s': %w", email, err)
	}

	return nil
}

func (d *Driver) hasPermission(ctx context.Context, email string) (bool, error) {
	res, err := d.service.Permissions.List(d.folderID).Context(ctx).
		Fields("permissions(id, emailAddress, role, type)").Do()
	if err != nil {
		return false, fmt.Errorf("list folder permissions: %w", err)
	}

	for _, perm := range res.Permissions {
		if strings.EqualFold(perm.EmailAddress, email) {
			return true, nil
		}
	}

	return false, nil
}

// UploadFile creates a file named objPath inside the destination folder and
// returns its sharable view link.
func (d *Driver) UploadFile(ctx context.Context, src, objPath string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}
	defer f.Close()

	created, err := d.service.Files.Create(&drive.File{
		Name:    objPath,
		Parents: []string{d.folderID},
	}).Context(ctx).Media(f).Fields("id").Do()
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}

	file, err := d.service.Files.Get(created.Id).Context(ctx).Fields("webViewLink").Do()
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}

	return file.WebViewLink, nil
}

// ListFiles enumerates the non-folder children of the destination folder
// across as many pages as the backend requires. Prefix filtering happens
// client-side because the Drive query language has no prefix operator.
// Every yielded file's view link is written to the URL cache.
func (d *Driver) ListFiles(ctx context.Context, prefix string) *mediasync.FileIterator {
	query := fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'", d.folderID, folderMime)

	var page []*drive.File
	pageToken := ""
	done := false

	return mediasync.NewFileIterator(func() (string, bool, error) {
		for {
			for len(page) > 0 {
				file := page[0]
				page = page[1:]

				if !strings.HasPrefix(file.Name, prefix) {
					continue
				}

				// Cache only files actually yielded, to keep memory
				// bounded on large folders.
				d.mux.Lock()
				d.urlCache[file.Name] = file.WebViewLink
				d.mux.Unlock()

				return file.Name, true, nil
			}

			if done {
				return "", false, nil
			}

			call := d.service.Files.List().Context(ctx).Q(query).
				Fields("nextPageToken, files(name, webViewLink)").
				PageSize(listPageSize)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			res, err := call.Do()
			if err != nil {
				return "", false, &mediasync.DriverError{Backend: backend, Op: "list", Err: err}
			}

			page = res.Files
			pageToken = res.NextPageToken
			done = pageToken == ""
		}
	})
}

// GetFileURL returns the view link for an existing file, or an empty string
// if no file with that name exists in the folder. Cached links from
// ListFiles are used before falling back to a point query.
func (d *Driver) GetFileURL(ctx context.Context, objPath string) (string, error) {
	d.mux.RLock()
	url, ok := d.urlCache[objPath]
	d.mux.RUnlock()
	if ok {
		return url, nil
	}

	res, err := d.findByName(ctx, objPath, "files(id, webViewLink)")
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "get url", Err: err}
	}
	if len(res.Files) == 0 {
		return "", nil
	}

	return res.Files[0].WebViewLink, nil
}

// FileExists reports whether a file named objPath exists in the folder.
// A URL cache hit is proof of existence; a miss falls back to a point query.
func (d *Driver) FileExists(ctx context.Context, objPath string) (bool, error) {
	d.mux.RLock()
	_, ok := d.urlCache[objPath]
	d.mux.RUnlock()
	if ok {
		return true, nil
	}

	res, err := d.findByName(ctx, objPath, "files(id)")
	if err != nil {
		return false, &mediasync.DriverError{Backend: backend, Op: "exists", Err: err}
	}

	return len(res.Files) > 0, nil
}

func (d *Driver) findByName(ctx context.Context, name string, fields googleapi.Field) (*drive.FileList, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", d.folderID, escapeName(name))

	return d.service.Files.List().Context(ctx).Q(query).Fields(fields).PageSize(1).Do()
}

// escapeName quotes a file name for use inside a Drive query:
// backslashes first, then single quotes.
func escapeName(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	return strings.ReplaceAll(name, `'`, `\'`)
}
