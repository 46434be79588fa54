// Package azure provides the Azure Blob Storage driver.
package azure

import (
	"context"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	mediasync "github.com/dracic/media-sync"
)

const backend = "Azure"

// Driver stores files as blobs in a container.
type Driver struct {
	client    *azblob.Client
	container string
}

var _ mediasync.Driver = (*Driver)(nil)

// Register registers the Azure Blob Storage backend with the factory.
func Register(f *mediasync.Factory) {
	f.Register(mediasync.KindAzure, mediasync.DriverCreatorFunc(
		func(ctx context.Context, cfg mediasync.Config) (mediasync.Driver, error) {
			return NewDriver(ctx, cfg)
		},
	))
}

// NewDriver connects with the configured connection string and ensures the
// container exists.
func NewDriver(ctx context.Context, cfg mediasync.Config) (*Driver, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.Azure.ConnectionString, nil)
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	return newDriver(ctx, client, cfg.Azure.Container)
}

func newDriver(ctx context.Context, client *azblob.Client, container string) (*Driver, error) {
	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	return &Driver{
		client:    client,
		container: container,
	}, nil
}

func (d *Driver) blobClient(objPath string) *blob.Client {
	return d.client.ServiceClient().NewContainerClient(d.container).NewBlobClient(objPath)
}

// UploadFile uploads the local file src as a blob named objPath, overwriting
// any existing blob, and returns the blob URL.
func (d *Driver) UploadFile(ctx context.Context, src, objPath string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}
	defer f.Close()

	if _, err := d.client.UploadFile(ctx, d.container, objPath, f, nil); err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}

	return d.blobClient(objPath).URL(), nil
}

// ListFiles delegates to the service's prefix-filtered enumeration; the SDK
// pager follows continuation tokens, so no paging logic lives here.
func (d *Driver) ListFiles(ctx context.Context, prefix string) *mediasync.FileIterator {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	pager := d.client.NewListBlobsFlatPager(d.container, opts)

	var names []string

	return mediasync.NewFileIterator(func() (string, bool, error) {
		for {
			if len(names) > 0 {
				name := names[0]
				names = names[1:]
				return name, true, nil
			}
			if !pager.More() {
				return "", false, nil
			}

			page, err := pager.NextPage(ctx)
			if err != nil {
				return "", false, &mediasync.DriverError{Backend: backend, Op: "list", Err: err}
			}

			for _, item := range page.Segment.BlobItems {
				names = append(names, *item.Name)
			}
		}
	})
}

// GetFileURL returns the blob URL without verifying existence.
func (d *Driver) GetFileURL(_ context.Context, objPath string) (string, error) {
	return d.blobClient(objPath).URL(), nil
}

// FileExists probes the blob's properties. A clean "blob not found"
// response is a negative answer, not an error.
func (d *Driver) FileExists(ctx context.Context, objPath string) (bool, error) {
	if _, err := d.blobClient(objPath).GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}

		return false, &mediasync.DriverError{Backend: backend, Op: "exists", Err: err}
	}

	return true, nil
}
