// Package local provides the local filesystem driver,
// mainly useful for testing and on-host destinations.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mediasync "github.com/dracic/media-sync"
)

const backend = "Local"

// Driver stores files under a destination directory.
type Driver struct {
	dest string
}

var _ mediasync.Driver = (*Driver)(nil)

// Register registers the local filesystem backend with the factory.
func Register(f *mediasync.Factory) {
	f.Register(mediasync.KindLocal, mediasync.DriverCreatorFunc(
		func(_ context.Context, cfg mediasync.Config) (mediasync.Driver, error) {
			return NewDriver(cfg)
		},
	))
}

// NewDriver creates the destination directory if it does not exist yet.
func NewDriver(cfg mediasync.Config) (*Driver, error) {
	if err := os.MkdirAll(cfg.Local.Dest, 0o755); err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	dest, err := filepath.Abs(cfg.Local.Dest)
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	return &Driver{dest: dest}, nil
}

// UploadFile copies src into the destination directory, creating any missing
// intermediate directories, and returns the absolute path of the copy.
func (d *Driver) UploadFile(_ context.Context, src, objPath string) (string, error) {
	dest := filepath.Join(d.dest, filepath.FromSlash(objPath))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}
	if err := copyFile(src, dest); err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}

	return dest, nil
}

func copyFile(src, dest string) error {
	si, err := os.Stat(src)
	if err != nil {
		return err
	}
	if di, err := os.Stat(dest); err == nil && os.SameFile(si, di) {
		return fmt.Errorf("'%s' and '%s' are the same file", src, dest)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// ListFiles walks the destination tree and yields slash-separated paths
// relative to it, filtered by prefix. The walk is performed incrementally
// as the iterator is consumed.
func (d *Driver) ListFiles(_ context.Context, prefix string) *mediasync.FileIterator {
	dirs := []string{d.dest}
	var files []string

	return mediasync.NewFileIterator(func() (string, bool, error) {
		for {
			if len(files) > 0 {
				name := files[0]
				files = files[1:]
				return name, true, nil
			}
			if len(dirs) == 0 {
				return "", false, nil
			}

			dir := dirs[len(dirs)-1]
			dirs = dirs[:len(dirs)-1]

			entries, err := os.ReadDir(dir)
			if err != nil {
				return "", false, &mediasync.DriverError{Backend: backend, Op: "list", Err: err}
			}

			for _, entry := range entries {
				full := filepath.Join(dir, entry.Name())
				if entry.IsDir() {
					dirs = append(dirs, full)
					continue
				}

				rel, err := filepath.Rel(d.dest, full)
				if err != nil {
					return "", false, &mediasync.DriverError{Backend: backend, Op: "list", Err: err}
				}

				if rel = filepath.ToSlash(rel); strings.HasPrefix(rel, prefix) {
					files = append(files, rel)
				}
			}
		}
	})
}

// GetFileURL returns the path the file lives at inside the destination
// directory. It never fails, even if the file is absent; combine with
// FileExists when resuming or deduplicating.
func (d *Driver) GetFileURL(_ context.Context, objPath string) (string, error) {
	return filepath.Join(d.dest, filepath.FromSlash(objPath)), nil
}

// FileExists reports whether the file is present in the destination directory.
func (d *Driver) FileExists(_ context.Context, objPath string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.dest, filepath.FromSlash(objPath)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, &mediasync.DriverError{Backend: backend, Op: "exists", Err: err}
}
