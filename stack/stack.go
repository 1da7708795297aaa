package stack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	ifcatalog "github.com/airbusgeo/lulc-exporter/interface/catalog"
	"github.com/airbusgeo/lulc-exporter/interface/provider"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/log"
)

// PixelType of the stack and of the exported rasters
const PixelType = "Int32"

// NoDataValue substituted for missing source pixels and cells outside the AOI
const NoDataValue = 0

// Slice is one time step of a Stack
type Slice struct {
	SourceID string
	Time     time.Time
	Dataset  *godal.Dataset
}

// Stack is a time-ordered set of same-CRS raster slices cropped to a common bbox
type Stack struct {
	CRS    string
	Slices []Slice
}

// Close releases the datasets of the stack
func (s *Stack) Close() {
	for _, slice := range s.Slices {
		if slice.Dataset != nil {
			slice.Dataset.Close()
		}
	}
	s.Slices = nil
}

// Builder assembles catalog items into a Stack
type Builder struct {
	// Signer authorizes asset hrefs before they are fetched (optional)
	Signer ifcatalog.AssetSigner
	// Providers used to download assets into WorkingDir, first supporting wins
	Providers []provider.AssetProvider
	// WorkingDir receives the downloaded assets. If empty, remote assets are
	// opened in place through GDAL VSI handlers (/vsicurl/, gs://).
	WorkingDir string
}

// Build opens every item's data asset, crops it to the bbox (minx, miny, maxx,
// maxy, geographic coordinates) and returns the slices sorted by ascending
// acquisition start time. crs is the shared CRS of the items, previously
// validated with entities.ValidateSingleCRS. Band scale/offset metadata is
// ignored: pixel values are copied raw.
func (b *Builder) Build(ctx context.Context, items []*entities.Item, collection, crs string, bbox [4]float64) (*Stack, error) {
	if _, err := entities.EPSGFromCRS(crs); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	if err := entities.SortByStartDatetime(items); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	stack := &Stack{CRS: crs}
	for _, item := range items {
		slice, err := b.buildSlice(ctx, item, collection, crs, bbox)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("Build[%s]: %w", item.ID, err)
		}
		stack.Slices = append(stack.Slices, slice)
	}
	return stack, nil
}

func (b *Builder) buildSlice(ctx context.Context, item *entities.Item, collection, crs string, bbox [4]float64) (Slice, error) {
	date, err := item.StartDatetime()
	if err != nil {
		return Slice{}, err
	}

	asset, err := item.DataAsset()
	if err != nil {
		return Slice{}, err
	}
	href := asset.Href
	if b.Signer != nil {
		if href, err = b.Signer.SignHref(ctx, collection, href); err != nil {
			return Slice{}, err
		}
	}

	name, err := b.datasetName(ctx, item.ID, href)
	if err != nil {
		return Slice{}, err
	}

	src, err := godal.Open(name, godal.RasterOnly())
	if err != nil {
		return Slice{}, fmt.Errorf("godal.open %s: %w", name, err)
	}
	defer src.Close()

	// Coarse crop to the bbox, materialized in memory. The exact clip to the
	// AOI polygon is done per slice at export time.
	cropped, err := src.Warp("", []string{
		"-t_srs", crs,
		"-te", fmt.Sprintf("%.17g", bbox[0]), fmt.Sprintf("%.17g", bbox[1]), fmt.Sprintf("%.17g", bbox[2]), fmt.Sprintf("%.17g", bbox[3]),
		"-te_srs", "EPSG:4326",
		"-ot", PixelType,
		"-dstnodata", fmt.Sprintf("%d", NoDataValue),
	}, godal.Memory)
	if err != nil {
		return Slice{}, fmt.Errorf("warp %s: %w", name, err)
	}

	log.Logger(ctx).Sugar().Debugf("stacked %s (%s)", item.ID, date.Format("2006-01-02"))
	return Slice{SourceID: item.ID, Time: date, Dataset: cropped}, nil
}

// datasetName returns the GDAL dataset name of the asset: the path of a local
// copy when a working directory is configured, a VSI name otherwise.
func (b *Builder) datasetName(ctx context.Context, itemID, href string) (string, error) {
	if b.WorkingDir == "" {
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return "/vsicurl/" + href, nil
		}
		return href, nil
	}

	localFile := filepath.Join(b.WorkingDir, itemID+".tif")
	if _, err := os.Stat(localFile); err == nil {
		return localFile, nil
	}

	var err error
	for _, p := range b.Providers {
		if !p.Supports(href) {
			continue
		}
		log.Logger(ctx).Sugar().Infof("downloading %s with %s", itemID, p.Name())
		e := p.Download(ctx, href, localFile)
		if err = service.MergeErrors(false, err, e); err == nil {
			return localFile, nil
		}
		log.Logger(ctx).Sugar().Warnf("%v", e)
	}
	if err == nil {
		err = fmt.Errorf("no provider supports %s", href)
	}
	return "", fmt.Errorf("datasetName.%w", err)
}
