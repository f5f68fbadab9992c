package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/revivelabs/photorestore/internal/api"
)

// ErrShareNotConfigured means no share bucket is set up for this install.
var ErrShareNotConfigured = errors.New("sharing is not configured")

// Exporter takes a finished enhancement's URL and gets it off the backend:
// onto the local filesystem or out via a public share link.
type Exporter struct {
	client    *api.Client
	uploader  *ShareUploader
	outputDir string
	log       *slog.Logger
}

// NewExporter wires the exporter; uploader may be nil when sharing is not
// configured.
func NewExporter(client *api.Client, uploader *ShareUploader, outputDir string, log *slog.Logger) *Exporter {
	return &Exporter{
		client:    client,
		uploader:  uploader,
		outputDir: outputDir,
		log:       log,
	}
}

// SaveToDevice downloads the image into the output directory and returns the
// final path. The download lands in a temp file first; a failed or partial
// download is removed rather than left behind.
func (e *Exporter) SaveToDevice(ctx context.Context, imageURL string) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := filenameFromURL(imageURL)
	tmp, err := os.CreateTemp(e.outputDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if err := e.client.DownloadImage(ctx, imageURL, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	dest := filepath.Join(e.outputDir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move into output dir: %w", err)
	}

	if e.log != nil {
		e.log.Info("image saved", "path", dest)
	}
	return dest, nil
}

// Share downloads the image and republishes it on the share bucket,
// returning the public URL.
func (e *Exporter) Share(ctx context.Context, imageURL string) (string, error) {
	if e.uploader == nil {
		return "", ErrShareNotConfigured
	}

	var buf bytes.Buffer
	if err := e.client.DownloadImage(ctx, imageURL, &buf); err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}

	name := filenameFromURL(imageURL)
	publicURL, err := e.uploader.Upload(ctx, buf.Bytes(), contentTypeFromName(name))
	if err != nil {
		return "", err
	}

	if e.log != nil {
		e.log.Info("image shared", "url", publicURL)
	}
	return publicURL, nil
}

// filenameFromURL picks a local name for the downloaded image, falling back
// to a random one when the URL path gives nothing usable.
func filenameFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return uuid.NewString() + ".png"
}
