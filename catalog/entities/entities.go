package entities

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom/encoding/geojson"
)

// AreaToExport is the input of the exporter
type AreaToExport struct {
	AOIID      string            `json:"aoi"`
	AOI        geojson.Geometry  `json:"geometry"`
	Collection string            `json:"collection"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	RecordTags map[string]string `json:"record_tags"`
}

// Asset is a downloadable raster band of an Item
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type"`
	Title string   `json:"title"`
	Roles []string `json:"roles"`
}

// Item is one acquisition returned by a STAC catalog search
type Item struct {
	ID          string                 `json:"id"`
	Collection  string                 `json:"collection"`
	BoundingBox []float64              `json:"bbox"`
	Geometry    *geojson.Geometry      `json:"geometry"`
	Properties  map[string]interface{} `json:"properties"`
	Assets      map[string]Asset       `json:"assets"`
}

// DataAssetKey is the asset holding the classified land-cover raster
const DataAssetKey = "data"

// DataAsset returns the raster asset of the item
func (i *Item) DataAsset() (Asset, error) {
	if a, ok := i.Assets[DataAssetKey]; ok {
		return a, nil
	}
	for _, a := range i.Assets {
		for _, role := range a.Roles {
			if role == "data" {
				return a, nil
			}
		}
	}
	return Asset{}, fmt.Errorf("DataAsset: item %s has no data asset", i.ID)
}

// CRS returns the CRS identifier of the item (e.g. "EPSG:32755")
func (i *Item) CRS() (string, error) {
	if code, ok := i.Properties["proj:code"].(string); ok && code != "" {
		return code, nil
	}
	// Older STAC projection extension
	switch epsg := i.Properties["proj:epsg"].(type) {
	case float64:
		return fmt.Sprintf("EPSG:%d", int(epsg)), nil
	case string:
		return "EPSG:" + epsg, nil
	}
	return "", fmt.Errorf("CRS: item %s has no proj:code/proj:epsg property", i.ID)
}

// EPSGFromCRS extracts the integer code from a CRS identifier such as "EPSG:32755"
func EPSGFromCRS(crs string) (int, error) {
	idx := strings.LastIndex(crs, ":")
	epsg, err := strconv.Atoi(crs[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("EPSGFromCRS: not an EPSG identifier: %s", crs)
	}
	return epsg, nil
}

// StartDatetime returns the acquisition start timestamp of the item, normalized to UTC
func (i *Item) StartDatetime() (time.Time, error) {
	for _, key := range []string{"start_datetime", "datetime"} {
		s, ok := i.Properties[key].(string)
		if !ok || s == "" {
			continue
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("StartDatetime: item %s: parse %s=%s: %w", i.ID, key, s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("StartDatetime: item %s has no start_datetime/datetime property", i.ID)
}

// ErrCRSMismatch is returned when the items of a search result do not share a single CRS.
// Mixing CRSs would silently corrupt the geotransform of the stack built from them.
type ErrCRSMismatch struct {
	ItemID   string
	Expected string
	Got      string
}

func (e ErrCRSMismatch) Error() string {
	return fmt.Sprintf("CRS mismatch: item %s has CRS %s, expected %s", e.ItemID, e.Got, e.Expected)
}

// ValidateSingleCRS checks that every item carries the CRS of the first one
// and returns the shared identifier.
func ValidateSingleCRS(items []*Item) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("ValidateSingleCRS: no items")
	}
	crs, err := items[0].CRS()
	if err != nil {
		return "", fmt.Errorf("ValidateSingleCRS: %w", err)
	}
	for _, item := range items[1:] {
		c, err := item.CRS()
		if err != nil {
			return "", fmt.Errorf("ValidateSingleCRS: %w", err)
		}
		if c != crs {
			return "", ErrCRSMismatch{ItemID: item.ID, Expected: crs, Got: c}
		}
	}
	return crs, nil
}

// SortByStartDatetime orders the items by ascending acquisition start time.
// An item with a malformed or missing timestamp aborts the sort.
func SortByStartDatetime(items []*Item) error {
	type timed struct {
		t    time.Time
		item *Item
	}
	tt := make([]timed, len(items))
	for i, item := range items {
		t, err := item.StartDatetime()
		if err != nil {
			return fmt.Errorf("SortByStartDatetime: %w", err)
		}
		tt[i] = timed{t, item}
	}
	sort.SliceStable(tt, func(i, j int) bool { return tt[i].t.Before(tt[j].t) })
	for i := range tt {
		items[i] = tt[i].item
	}
	return nil
}
