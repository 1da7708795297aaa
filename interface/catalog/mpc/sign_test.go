package mpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignHref(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/io-lulc-annual-v02" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		requests++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":       "st=2021&se=2022&sig=abc",
			"msft:expiry": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	s := Signer{URL: srv.URL}
	signed, err := s.SignHref(ctx, "io-lulc-annual-v02", "https://example.blob.core.windows.net/a.tif")
	if err != nil {
		t.Fatal(err)
	}
	if signed != "https://example.blob.core.windows.net/a.tif?st=2021&se=2022&sig=abc" {
		t.Errorf("unexpected signed href %s", signed)
	}

	// second call must hit the cache
	signed2, err := s.SignHref(ctx, "io-lulc-annual-v02", "https://example.blob.core.windows.net/b.tif?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if signed2 != "https://example.blob.core.windows.net/b.tif?x=1&st=2021&se=2022&sig=abc" {
		t.Errorf("unexpected signed href %s", signed2)
	}
	if requests != 1 {
		t.Errorf("expecting 1 token request, got %d", requests)
	}
}

func TestSignHrefExpiredToken(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":       "sig=expired",
			"msft:expiry": time.Now().Add(-time.Hour).Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	s := Signer{URL: srv.URL}
	if _, err := s.SignHref(ctx, "c", "https://example.com/a.tif"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SignHref(ctx, "c", "https://example.com/a.tif"); err != nil {
		t.Fatal(err)
	}
	if requests != 2 {
		t.Errorf("an expired token must be renewed, got %d requests", requests)
	}
}
