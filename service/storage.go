package service

import (
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/mholt/archiver"
)

// OutputStorage persists exported raster files under a destination uri
type OutputStorage interface {
	// Save persists the local file and returns the uri of the stored copy
	Save(ctx context.Context, localFile string) (string, error)
	// Destination returns the configured destination uri
	Destination() string
}

// NewOutputStorage returns the OutputStorage matching the destination uri:
// a gs:// bucket, or a local directory (created if absent)
func NewOutputStorage(ctx context.Context, destination string) (OutputStorage, error) {
	if strings.HasPrefix(destination, "gs://") {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewOutputStorage: %w", err)
		}
		trimmed := strings.TrimPrefix(destination, "gs://")
		bucket, prefix, _ := strings.Cut(trimmed, "/")
		if bucket == "" {
			return nil, fmt.Errorf("NewOutputStorage: invalid destination: %s", destination)
		}
		return &gsStorage{destination: destination, client: client, bucket: bucket, prefix: prefix}, nil
	}

	if err := os.MkdirAll(destination, 0766); err != nil {
		return nil, fmt.Errorf("NewOutputStorage.MkdirAll %s: %w", destination, err)
	}
	return &localStorage{dir: destination}, nil
}

type localStorage struct {
	dir string
}

func (s *localStorage) Destination() string { return s.dir }

func (s *localStorage) Save(ctx context.Context, localFile string) (string, error) {
	dst := filepath.Join(s.dir, filepath.Base(localFile))
	if dst == localFile {
		return dst, nil
	}
	if err := os.Rename(localFile, dst); err == nil {
		return dst, nil
	}
	// Rename fails across filesystems
	src, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("Save.Create: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("Save.Copy: %w", err)
	}
	return dst, os.Remove(localFile)
}

type gsStorage struct {
	destination string
	client      *gstorage.Client
	bucket      string
	prefix      string
}

func (s *gsStorage) Destination() string { return s.destination }

func (s *gsStorage) Save(ctx context.Context, localFile string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	object := path.Join(s.prefix, filepath.Base(localFile))
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", MakeTemporary(fmt.Errorf("Save.Copy to gs://%s/%s: %w", s.bucket, object, err))
	}
	if err := w.Close(); err != nil {
		return "", MakeTemporary(fmt.Errorf("Save.Close gs://%s/%s: %w", s.bucket, object, err))
	}
	return "gs://" + s.bucket + "/" + object, nil
}

// ZipProducts bundles the files into the zip archive dst
func ZipProducts(files []string, dst string) error {
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	if err := zipper.Archive(files, dst); err != nil {
		return fmt.Errorf("ZipProducts.Archive: %w", err)
	}
	return nil
}
