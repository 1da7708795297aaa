package catalog

import (
	"context"

	"github.com/airbusgeo/lulc-exporter/catalog/entities"
)

// ItemsProvider searches a remote catalog for the acquisitions covering an area
type ItemsProvider interface {
	SearchItems(ctx context.Context, area *entities.AreaToExport, bbox [4]float64) ([]*entities.Item, error)
}

// AssetSigner authorizes an asset href so that its pixels can be fetched
type AssetSigner interface {
	SignHref(ctx context.Context, collection, href string) (string, error)
}
