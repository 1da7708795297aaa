package provider

import (
	"context"
	"fmt"
)

// ErrAssetNotFound is an error returned when an asset is not found or available
type ErrAssetNotFound struct {
	Asset string
}

func (e ErrAssetNotFound) Error() string {
	return fmt.Sprintf("Asset not found or unavailable: %s", e.Asset)
}

// AssetProvider fetches one raster asset into a local file
type AssetProvider interface {
	// Name of the provider (for logs)
	Name() string
	// Supports returns true if the provider can handle the href scheme
	Supports(href string) bool
	// Download fetches the asset into localFile
	Download(ctx context.Context, href, localFile string) error
}
