package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	"github.com/airbusgeo/lulc-exporter/common"
	ifcatalog "github.com/airbusgeo/lulc-exporter/interface/catalog"
	"github.com/airbusgeo/lulc-exporter/interface/provider"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/log"
	"github.com/airbusgeo/lulc-exporter/stack"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/google/uuid"
)

const (
	aoiFileName   = "aoi.geojson"
	itemsFileName = "items.json"
	zipFileName   = "io_land_cover_products.zip"
)

// Exporter is the main class of this package
type Exporter struct {
	Items          ifcatalog.ItemsProvider
	Signer         ifcatalog.AssetSigner
	AssetProviders []provider.AssetProvider
	Storage        service.OutputStorage
	WorkingDir     string
	// StreamAssets opens the asset hrefs in place through GDAL VSI handlers
	// instead of downloading them into the run directory
	StreamAssets bool
	ZipBundle    bool
	// KeepWorkingDir prevents the cleanup of the run directory (debug)
	KeepWorkingDir bool
}

var aoiIDRegexp = regexp.MustCompile("^[a-zA-Z0-9-:_]*$")

// ValidateArea checks the export request before running it
func (e *Exporter) ValidateArea(area *entities.AreaToExport) error {
	if !aoiIDRegexp.MatchString(area.AOIID) {
		return fmt.Errorf("validateArea: wrong format for AOI id (must be chars, numbers and -:_): %s", area.AOIID)
	}
	if area.Collection == "" {
		area.Collection = common.CollectionIOLulcAnnual
	}
	if area.AOI.Geometry == nil {
		return fmt.Errorf("validateArea: missing AOI geometry")
	}
	if isEmptyAOI(area.AOI.Geometry) {
		return fmt.Errorf("validateArea: empty AOI geometry")
	}
	return nil
}

// ExportArea runs the whole pipeline for the area: catalog search, CRS
// validation, stack construction, then one clipped raster per time slice.
// It returns the uris of the stored products.
func (e *Exporter) ExportArea(ctx context.Context, area entities.AreaToExport) (_ []string, err error) {
	if err := e.ValidateArea(&area); err != nil {
		return nil, err
	}

	// Working dir of the run
	workdir := filepath.Join(e.WorkingDir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer func() {
		if err == nil && !e.KeepWorkingDir {
			os.RemoveAll(workdir)
		} else if err != nil {
			log.Logger(ctx).Sugar().Warnf("export failed, intermediate files are still available in %s", workdir)
		}
	}()

	// AOI and its bbox
	aoi, err := dissolve(area.AOI.Geometry)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}
	bbox, err := BBox(aoi)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}
	if err := service.ToJSON(geojson.Geometry{Geometry: aoi}, workdir, aoiFileName); err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}

	// Catalog search
	items, err := e.Items.SearchItems(ctx, &area, bbox)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("ExportArea: no %s item intersects the AOI", area.Collection)
	}
	if err := service.ToJSON(items, workdir, itemsFileName); err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}

	// All the items must share one CRS
	crs, err := entities.ValidateSingleCRS(items)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("CRS of all items is %s", crs)

	// Stack. An empty builder working dir means the assets are opened in
	// place through the VSI handlers.
	builder := stack.Builder{Signer: e.Signer, Providers: e.AssetProviders}
	if !e.StreamAssets {
		builder.WorkingDir = workdir
	}
	stck, err := builder.Build(ctx, items, area.Collection, crs, bbox)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}
	defer stck.Close()

	// Per-slice clip and export
	files, err := ExportStack(ctx, stck, filepath.Join(workdir, aoiFileName), workdir)
	if err != nil {
		return nil, fmt.Errorf("ExportArea.%w", err)
	}

	if e.ZipBundle {
		zipFile := filepath.Join(workdir, zipFileName)
		if err := service.ZipProducts(files, zipFile); err != nil {
			return nil, fmt.Errorf("ExportArea.%w", err)
		}
		files = append(files, zipFile)
	}

	// Store the products
	uris := make([]string, len(files))
	for i, f := range files {
		if uris[i], err = e.Storage.Save(ctx, f); err != nil {
			return nil, fmt.Errorf("ExportArea.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("saved %s", uris[i])
	}
	return uris, nil
}
