package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/lulc-exporter/service"
)

// GSAssetProvider downloads assets hosted on Google Storage
type GSAssetProvider struct {
	client *storage.Client
}

// NewGSAssetProvider creates a GSAssetProvider sharing one storage client
func NewGSAssetProvider(ctx context.Context) (*GSAssetProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGSAssetProvider: %w", err)
	}
	return &GSAssetProvider{client: client}, nil
}

// Name implements AssetProvider
func (p *GSAssetProvider) Name() string {
	return "GoogleStorage"
}

// Supports implements AssetProvider
func (p *GSAssetProvider) Supports(href string) bool {
	return strings.HasPrefix(href, "gs://")
}

// Download implements AssetProvider
func (p *GSAssetProvider) Download(ctx context.Context, href, localFile string) error {
	bucket, object, err := parseGsURI(href)
	if err != nil {
		return fmt.Errorf("GSAssetProvider: %w", err)
	}

	r, err := p.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return ErrAssetNotFound{href}
		}
		return service.MakeTemporary(fmt.Errorf("GSAssetProvider.NewReader[%s]: %w", href, err))
	}
	defer r.Close()

	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("GSAssetProvider.Create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return service.MakeTemporary(fmt.Errorf("GSAssetProvider.Copy[%s]: %w", href, err))
	}
	return nil
}

func parseGsURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	i := strings.Index(trimmed, "/")
	if i <= 0 || i == len(trimmed)-1 {
		return "", "", fmt.Errorf("parseGsURI: invalid uri: %s", uri)
	}
	return trimmed[:i], trimmed[i+1:], nil
}
