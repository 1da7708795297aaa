package mpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/log"
)

const (
	// SearchURL is the STAC search endpoint of the Microsoft Planetary Computer
	SearchURL = "https://planetarycomputer.microsoft.com/api/stac/v1/search"

	// CatalogLimit is the maximum page size accepted by the catalog
	CatalogLimit = 1000
)

type searchData struct {
	Features       []*entities.Item `json:"features"`
	Links          []link           `json:"links"`
	NumberMatched  int              `json:"numberMatched"`
	NumberReturned int              `json:"numberReturned"`
}

type link struct {
	Body   map[string]interface{} `json:"body"`
	Href   string                 `json:"href"`
	Method string                 `json:"method"`
	Rel    string                 `json:"rel"`
}

type stacSearch struct {
	Bbox        []float64 `json:"bbox,omitempty"`
	Datetime    string    `json:"datetime,omitempty"`
	Collections []string  `json:"collections"`
	Limit       int       `json:"limit,omitempty"`
}

// Provider searches the Planetary Computer STAC catalog
type Provider struct {
	URL   string
	Limit int
}

// SearchItems returns all the items of area.Collection intersecting the bbox
// (minx, miny, maxx, maxy in geographic coordinates), in catalog order.
// Safe for concurrent use.
func (p *Provider) SearchItems(ctx context.Context, area *entities.AreaToExport, bbox [4]float64) ([]*entities.Item, error) {
	url, limit := p.URL, p.Limit
	if url == "" {
		url = SearchURL
	}
	if limit == 0 {
		limit = CatalogLimit
	}
	if area.Collection == "" {
		return nil, fmt.Errorf("SearchItems(MPC): collection is not defined")
	}

	req := stacSearch{
		Bbox:        bbox[:],
		Collections: []string{area.Collection},
		Limit:       limit,
	}
	if !area.StartTime.IsZero() || !area.EndTime.IsZero() {
		startDate, endDate := "..", ".."
		if !area.StartTime.IsZero() {
			startDate = area.StartTime.Format("2006-01-02") + "T00:00:00.000Z"
		}
		if !area.EndTime.IsZero() {
			endDate = area.EndTime.Format("2006-01-02") + "T23:59:59.999Z"
		}
		req.Datetime = startDate + "/" + endDate
	}

	items, err := p.querySTAC(ctx, url, req)
	if err != nil {
		return nil, fmt.Errorf("SearchItems(MPC).%w", err)
	}

	log.Logger(ctx).Sugar().Infof("found %d %s items intersecting the bbox", len(items), area.Collection)
	return items, nil
}

func (p *Provider) querySTAC(ctx context.Context, url string, searchReq stacSearch) ([]*entities.Item, error) {
	httpMethod := "POST"
	reqBody := &bytes.Buffer{}
	if err := json.NewEncoder(reqBody).Encode(searchReq); err != nil {
		return nil, fmt.Errorf("querySTAC.json.encode: %w", err)
	}

	var items []*entities.Item
	seen := service.StringSet{}
	for {
		req, err := http.NewRequestWithContext(ctx, httpMethod, url, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Add("Content-Type", "application/json")

		respBody, err := service.GetBodyRetryReq(req, 4)
		if err != nil {
			return nil, fmt.Errorf("querySTAC.GetBodyRetryReq: %w", err)
		}

		search := &searchData{}
		if err := json.Unmarshal(respBody, search); err != nil {
			return nil, fmt.Errorf("querySTAC.parse body (%s): %w", url, err)
		}
		// Items repeated across pages are only kept once
		for _, item := range search.Features {
			if seen.Exists(item.ID) {
				continue
			}
			seen.Push(item.ID)
			items = append(items, item)
		}

		nextFound := false
		for _, link := range search.Links {
			if link.Rel == "next" {
				url = link.Href
				if link.Method != "" {
					httpMethod = link.Method
				}
				reqBody = &bytes.Buffer{}
				if link.Body != nil {
					if err := json.NewEncoder(reqBody).Encode(link.Body); err != nil {
						return nil, err
					}
				}
				nextFound = true
			}
		}
		if !nextFound {
			break
		}
	}

	return items, nil
}
