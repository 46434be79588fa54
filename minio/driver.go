// Package minio provides the S3-compatible object storage driver.
package minio

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	mediasync "github.com/dracic/media-sync"
)

const backend = "MinIO"

// objectAPI is the slice of the MinIO client the driver uses.
// *minio.Client satisfies it; tests substitute a fake.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

var _ objectAPI = (*minio.Client)(nil)

// Driver stores objects in an S3-compatible bucket, optionally confined to
// a subpath inside the bucket.
type Driver struct {
	client  objectAPI
	bucket  string
	subpath string
	baseURL string
}

var _ mediasync.Driver = (*Driver)(nil)

// Register registers the S3-compatible object storage backend with the factory.
func Register(f *mediasync.Factory) {
	f.Register(mediasync.KindMinIO, mediasync.DriverCreatorFunc(
		func(ctx context.Context, cfg mediasync.Config) (mediasync.Driver, error) {
			return NewDriver(ctx, cfg)
		},
	))
}

// NewDriver connects to the configured endpoint and ensures the bucket exists.
func NewDriver(ctx context.Context, cfg mediasync.Config) (*Driver, error) {
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.Secure,
		Region: cfg.Minio.Region,
	})
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}

	return newDriver(ctx, client, cfg)
}

func newDriver(ctx context.Context, client objectAPI, cfg mediasync.Config) (*Driver, error) {
	bucket := cfg.Minio.Bucket

	found, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
	}
	if !found {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Minio.Region}); err != nil {
			return nil, &mediasync.DriverError{Backend: backend, Op: "init", Err: err}
		}
	}

	return &Driver{
		client:  client,
		bucket:  bucket,
		subpath: strings.Trim(cfg.Minio.BucketSubpath, "/"),
		baseURL: baseURL(cfg.Minio),
	}, nil
}

// baseURL builds the public URL prefix for the bucket: the region-qualified
// virtual-hosted-style URL for AWS endpoints, a path-style URL otherwise.
func baseURL(cfg mediasync.MinioConfig) string {
	scheme := "http://"
	if cfg.Secure {
		scheme = "https://"
	}

	if cfg.Region != "" && strings.Contains(strings.ToLower(cfg.Endpoint), "amazonaws") {
		return fmt.Sprintf("%s%s.s3.%s.amazonaws.com", scheme, cfg.Bucket, cfg.Region)
	}

	return scheme + cfg.Endpoint + "/" + cfg.Bucket
}

// key prefixes objPath with the bucket subpath, if one is configured.
func (d *Driver) key(objPath string) string {
	if d.subpath == "" {
		return objPath
	}

	return d.subpath + "/" + objPath
}

// UploadFile uploads the local file src under objPath and returns the URL
// of the stored object.
func (d *Driver) UploadFile(ctx context.Context, src, objPath string) (string, error) {
	info, err := d.client.FPutObject(ctx, d.bucket, d.key(objPath), src, minio.PutObjectOptions{})
	if err != nil {
		return "", &mediasync.DriverError{Backend: backend, Op: "upload", Err: err}
	}

	return d.baseURL + "/" + info.Key, nil
}

// ListFiles enumerates objects in the bucket. The subpath is matched as a
// directory prefix, so sibling keys that merely share a string prefix are
// excluded, and is stripped from the yielded names.
func (d *Driver) ListFiles(ctx context.Context, prefix string) *mediasync.FileIterator {
	effective := prefix
	strip := ""
	if d.subpath != "" {
		strip = d.subpath + "/"
		effective = strip + prefix
	}

	objects := d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    effective,
		Recursive: true,
	})

	return mediasync.NewFileIterator(func() (string, bool, error) {
		for obj := range objects {
			if obj.Err != nil {
				return "", false, &mediasync.DriverError{Backend: backend, Op: "list", Err: obj.Err}
			}
			// Directory markers some S3-compatible storages report.
			if strings.HasSuffix(obj.Key, "/") {
				continue
			}

			return strings.TrimPrefix(obj.Key, strip), true, nil
		}

		return "", false, nil
	})
}

// GetFileURL returns the URL the object with objPath resolves to. It does
// not verify existence.
func (d *Driver) GetFileURL(_ context.Context, objPath string) (string, error) {
	return d.baseURL + "/" + d.key(objPath), nil
}

// FileExists issues a metadata point query for the object. A clean
// "no such key" response is a negative answer, not an error.
func (d *Driver) FileExists(ctx context.Context, objPath string) (bool, error) {
	if _, err := d.client.StatObject(ctx, d.bucket, d.key(objPath), minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}

		return false, &mediasync.DriverError{Backend: backend, Op: "exists", Err: err}
	}

	return true, nil
}
