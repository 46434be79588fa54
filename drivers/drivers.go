// Package drivers wires every storage backend into a ready-to-use factory.
package drivers

import (
	"context"

	mediasync "github.com/dracic/media-sync"
	"github.com/dracic/media-sync/azure"
	"github.com/dracic/media-sync/gdrive"
	"github.com/dracic/media-sync/local"
	"github.com/dracic/media-sync/minio"
)

// NewFactory returns a factory with all four backends registered.
func NewFactory() *mediasync.Factory {
	f := mediasync.NewFactory()
	local.Register(f)
	minio.Register(f)
	gdrive.Register(f)
	azure.Register(f)

	return f
}

// New builds the single driver selected by cfg.Driver.
func New(ctx context.Context, cfg mediasync.Config) (mediasync.Driver, error) {
	return NewFactory().CreateDriver(ctx, cfg)
}
