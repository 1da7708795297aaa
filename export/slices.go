package export

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/lulc-exporter/common"
	"github.com/airbusgeo/lulc-exporter/service/log"
	"github.com/airbusgeo/lulc-exporter/stack"
)

// ExportStack clips every slice of the stack to the AOI and writes one GeoTIFF
// per time step into outDir, in ascending time order. The first failing slice
// aborts the export; already-written files are left in place.
func ExportStack(ctx context.Context, stck *stack.Stack, aoiPath, outDir string) ([]string, error) {
	var files []string
	for i, slice := range stck.Slices {
		file, err := exportSlice(ctx, slice, i, aoiPath, outDir)
		if err != nil {
			return files, fmt.Errorf("ExportStack[%s]: %w", slice.SourceID, err)
		}
		files = append(files, file)
	}
	return files, nil
}

// exportSlice clips the slice to the AOI polygon and persists it as a GeoTIFF.
// Every cell touching the AOI boundary is kept, cells outside are set to the
// nodata value.
func exportSlice(ctx context.Context, slice stack.Slice, index int, aoiPath, outDir string) (string, error) {
	outFile := filepath.Join(outDir, common.ProductFileName(slice.Time, index))

	clipped, err := slice.Dataset.Warp(outFile, []string{
		"-cutline", aoiPath,
		"-crop_to_cutline",
		"-wo", "CUTLINE_ALL_TOUCHED=TRUE",
		"-ot", stack.PixelType,
		"-dstnodata", fmt.Sprintf("%d", stack.NoDataValue),
	}, godal.GTiff, godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return "", fmt.Errorf("warp: %w", err)
	}
	if err := clipped.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", outFile, err)
	}

	log.Logger(ctx).Sugar().Infof("wrote %s", outFile)
	return outFile, nil
}
