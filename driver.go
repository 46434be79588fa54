// Package mediasync provides a backend-agnostic storage driver layer for
// syncing media files to local or cloud destinations.
package mediasync

import (
	"context"
	"fmt"
)

// Driver is the common contract every storage backend implements.
// A Driver is bound to a single destination (directory, bucket, drive folder
// or blob container) for the lifetime of the process and never rebinds.
type Driver interface {
	// UploadFile copies the local file src into the backend under objPath
	// and returns the backend-native locator (filesystem path or URL) of
	// the uploaded object.
	UploadFile(ctx context.Context, src, objPath string) (string, error)

	// ListFiles enumerates every object path under the driver's scope whose
	// name starts with prefix. An empty prefix matches everything.
	// The returned iterator is lazy and not restartable; call ListFiles
	// again to re-enumerate.
	ListFiles(ctx context.Context, prefix string) *FileIterator

	// GetFileURL returns the locator for a file that is expected to already
	// exist, without uploading anything. Backends that cannot answer
	// cheaply return an empty string for missing files instead of failing;
	// use FileExists for an authoritative answer.
	GetFileURL(ctx context.Context, objPath string) (string, error)

	// FileExists reports whether a file exists under objPath. Backends use
	// a point query where the API offers one, never a full listing.
	FileExists(ctx context.Context, objPath string) (bool, error)
}

// DriverError is the error kind surfaced by all driver operations. The
// message names the backend family and wraps the underlying cause; no
// backend SDK error type escapes the driver layer undecorated.
type DriverError struct {
	Backend string // backend family name, e.g. "MinIO"
	Op      string // failing operation, e.g. "list"
	Err     error  // underlying cause
}

func (err *DriverError) Error() string {
	return fmt.Sprintf("%s driver %s error: %v", err.Backend, err.Op, err.Err)
}

func (err *DriverError) Unwrap() error {
	return err.Err
}

// FileIterator is a lazy, finite sequence of object paths produced by
// Driver.ListFiles. Backends feed it through a pull function so paginated
// listings are fetched incrementally instead of being materialized up front.
type FileIterator struct {
	next func() (string, bool, error)
	name string
	err  error
	done bool
}

// NewFileIterator wraps next into an iterator. next returns the next object
// path, false once the sequence is exhausted, or an error that terminates
// iteration.
func NewFileIterator(next func() (string, bool, error)) *FileIterator {
	return &FileIterator{next: next}
}

// Next advances the iterator and reports whether a name is available.
// After Next returns false, check Err for a mid-enumeration failure.
func (it *FileIterator) Next() bool {
	if it.done {
		return false
	}

	name, ok, err := it.next()
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if !ok {
		it.done = true
		return false
	}

	it.name = name
	return true
}

// Name returns the object path produced by the last successful Next.
func (it *FileIterator) Name() string {
	return it.name
}

// Err returns the error that terminated iteration, if any.
func (it *FileIterator) Err() error {
	return it.err
}

// Collect drains the iterator into a slice.
func (it *FileIterator) Collect() ([]string, error) {
	var names []string
	for it.Next() {
		names = append(names, it.Name())
	}

	return names, it.Err()
}
