package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	"github.com/airbusgeo/lulc-exporter/interface/catalog/mpc"
	"github.com/airbusgeo/lulc-exporter/interface/provider"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/stack"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

// writeRaster creates a 4x4 Int32 raster covering lon [129,130], lat [-12,-11]
// filled with the given value
func writeRaster(t *testing.T, file string, value int32) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, file, 1, godal.Int32, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatal(err)
	}
	if err := ds.SetGeoTransform([6]float64{129, 0.25, 0, -11, 0, -0.25}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Bands()[0].SetNoData(stack.NoDataValue); err != nil {
		t.Fatal(err)
	}
	buf := make([]int32, 16)
	for i := range buf {
		buf[i] = value
	}
	if err := ds.Bands()[0].Write(0, 0, buf, 4, 4); err != nil {
		t.Fatal(err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
}

func openSlice(t *testing.T, file string, date time.Time) stack.Slice {
	t.Helper()
	ds, err := godal.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	return stack.Slice{SourceID: path.Base(file), Time: date, Dataset: ds}
}

func TestExportSliceFileNameAndNodata(t *testing.T) {
	workdir := t.TempDir()
	raster := filepath.Join(workdir, "src.tif")
	writeRaster(t, raster, 7)
	slice := openSlice(t, raster, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC))

	// triangle covering the upper-left half of the raster
	aoiPath := writeAOI(t, `{"type":"Polygon","coordinates":[[[129,-11],[130,-11],[129,-12],[129,-11]]]}`)

	outDir := t.TempDir()
	file, err := exportSlice(context.Background(), slice, 2, aoiPath, outDir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(file) != "io_land_cover_20210615_2.tif" {
		t.Errorf("unexpected filename %s", filepath.Base(file))
	}

	out, err := godal.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	band := out.Bands()[0]
	if nd, ok := band.NoData(); !ok || nd != stack.NoDataValue {
		t.Errorf("expecting nodata %d, got %v (%v)", stack.NoDataValue, nd, ok)
	}
	st := out.Structure()
	if st.DataType != godal.Int32 {
		t.Errorf("expecting Int32 pixels, got %v", st.DataType)
	}
	buf := make([]int32, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 {
		t.Errorf("upper-left pixel is inside the AOI, expecting 7, got %d", buf[0])
	}
	if last := buf[len(buf)-1]; last != stack.NoDataValue {
		t.Errorf("lower-right pixel is outside the AOI, expecting nodata, got %d", last)
	}
}

func TestExportSliceAllTouched(t *testing.T) {
	workdir := t.TempDir()
	raster := filepath.Join(workdir, "src.tif")
	writeRaster(t, raster, 7)
	slice := openSlice(t, raster, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	// AOI much smaller than one pixel: the covering pixel must be kept
	aoiPath := writeAOI(t, `{"type":"Polygon","coordinates":[[[129.05,-11.05],[129.1,-11.05],[129.1,-11.1],[129.05,-11.1],[129.05,-11.05]]]}`)

	file, err := exportSlice(context.Background(), slice, 0, aoiPath, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out, err := godal.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	st := out.Structure()
	if st.SizeX < 1 || st.SizeY < 1 {
		t.Fatalf("expecting at least one pixel, got %dx%d", st.SizeX, st.SizeY)
	}
	buf := make([]int32, st.SizeX*st.SizeY)
	if err := out.Bands()[0].Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 {
		t.Errorf("the pixel touched by the AOI must be kept, got %d", buf[0])
	}
}

// fileProvider serves assets from a local fixture directory
type fileProvider struct {
	dir string
}

func (p fileProvider) Name() string              { return "file" }
func (p fileProvider) Supports(href string) bool { return true }
func (p fileProvider) Download(ctx context.Context, href, localFile string) error {
	src, err := os.Open(filepath.Join(p.dir, path.Base(href)))
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(localFile)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func TestExportArea(t *testing.T) {
	ctx := context.Background()

	// One catalog item whose extent covers the AOI
	fixtures := t.TempDir()
	writeRaster(t, filepath.Join(fixtures, "a.tif"), 7)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"features": []map[string]interface{}{{
				"id":   "a",
				"bbox": []float64{129, -12, 130, -11},
				"properties": map[string]interface{}{
					"proj:code":      "EPSG:4326",
					"start_datetime": "2020-01-01T00:00:00Z",
				},
				"assets": map[string]interface{}{
					"data": map[string]interface{}{"href": "https://example.com/a.tif"},
				},
			}},
		})
	}))
	defer srv.Close()

	outDir := filepath.Join(t.TempDir(), "out")
	storage, err := service.NewOutputStorage(ctx, outDir)
	if err != nil {
		t.Fatal(err)
	}

	e := Exporter{
		Items:          &mpc.Provider{URL: srv.URL},
		AssetProviders: []provider.AssetProvider{fileProvider{dir: fixtures}},
		Storage:        storage,
		WorkingDir:     t.TempDir(),
	}
	area := entities.AreaToExport{
		AOIID:      "test-aoi",
		Collection: "io-lulc-annual-v02",
		AOI: geojson.Geometry{Geometry: geom.Polygon{
			{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}},
		}},
	}

	uris, err := e.ExportArea(ctx, area)
	if err != nil {
		t.Fatal(err)
	}
	if len(uris) != 1 {
		t.Fatalf("expecting 1 product, got %d", len(uris))
	}
	if filepath.Base(uris[0]) != "io_land_cover_20200101_0.tif" {
		t.Errorf("unexpected product name %s", uris[0])
	}

	out, err := godal.Open(uris[0])
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	st := out.Structure()
	if st.SizeX != 4 || st.SizeY != 4 {
		t.Errorf("expecting the clipped AOI extent (4x4), got %dx%d", st.SizeX, st.SizeY)
	}
	if st.DataType != godal.Int32 {
		t.Errorf("expecting Int32 pixels, got %v", st.DataType)
	}
	if sr := out.SpatialRef(); sr == nil {
		t.Error("missing CRS on the product")
	}
}

func TestExportAreaStreaming(t *testing.T) {
	ctx := context.Background()

	fixtures := t.TempDir()
	raster := filepath.Join(fixtures, "a.tif")
	writeRaster(t, raster, 7)

	// The asset href is opened in place, no provider is configured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"features": []map[string]interface{}{{
				"id": "a",
				"properties": map[string]interface{}{
					"proj:code":      "EPSG:4326",
					"start_datetime": "2020-01-01T00:00:00Z",
				},
				"assets": map[string]interface{}{
					"data": map[string]interface{}{"href": raster},
				},
			}},
		})
	}))
	defer srv.Close()

	storage, err := service.NewOutputStorage(ctx, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	e := Exporter{
		Items:        &mpc.Provider{URL: srv.URL},
		Storage:      storage,
		WorkingDir:   t.TempDir(),
		StreamAssets: true,
	}
	area := entities.AreaToExport{
		AOIID:      "stream-aoi",
		Collection: "io-lulc-annual-v02",
		AOI: geojson.Geometry{Geometry: geom.Polygon{
			{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}},
		}},
	}

	uris, err := e.ExportArea(ctx, area)
	if err != nil {
		t.Fatal(err)
	}
	if len(uris) != 1 {
		t.Fatalf("expecting 1 product, got %d", len(uris))
	}
	if filepath.Base(uris[0]) != "io_land_cover_20200101_0.tif" {
		t.Errorf("unexpected product name %s", uris[0])
	}
}

func TestExportAreaNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer srv.Close()

	storage, err := service.NewOutputStorage(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := Exporter{Items: &mpc.Provider{URL: srv.URL}, Storage: storage, WorkingDir: t.TempDir()}
	area := entities.AreaToExport{
		AOI: geojson.Geometry{Geometry: geom.Polygon{
			{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}},
		}},
	}
	if _, err := e.ExportArea(context.Background(), area); err == nil {
		t.Error("expecting an error when no item intersects the AOI")
	}
}

func TestValidateArea(t *testing.T) {
	e := Exporter{}
	area := entities.AreaToExport{
		AOIID: "bad id!",
		AOI: geojson.Geometry{Geometry: geom.Polygon{
			{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}},
		}},
	}
	if err := e.ValidateArea(&area); err == nil {
		t.Error("expecting an error for a malformed AOI id")
	}

	area.AOIID = "test:aoi_1"
	if err := e.ValidateArea(&area); err != nil {
		t.Error(err)
	}
	if area.Collection == "" {
		t.Error("an empty collection must default to the land-cover collection")
	}

	area.AOI = geojson.Geometry{}
	if err := e.ValidateArea(&area); err == nil {
		t.Error("expecting an error without an AOI geometry")
	}
}
