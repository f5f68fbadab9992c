package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/revivelabs/photorestore/internal/config"
)

// ShareUploader publishes an exported image to a public bucket so the URL
// can be handed to anyone; the headless counterpart of a share sheet.
type ShareUploader struct {
	bucket        string
	publicBaseURL string
	prefix        string
	client        *s3.Client
}

// NewShareUploader builds the uploader from the share section of the config,
// or returns nil when sharing is not configured.
func NewShareUploader(cfg config.Config) (*ShareUploader, error) {
	if !cfg.ShareConfigured() {
		return nil, nil
	}

	options := s3.Options{
		Region:       cfg.ShareS3Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.ShareS3AccessKey, cfg.ShareS3SecretKey, ""),
		UsePathStyle: cfg.ShareS3UsePathStyle,
	}
	if cfg.ShareS3Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.ShareS3Endpoint)
	}

	prefix := strings.Trim(cfg.ShareS3Prefix, "/")
	if prefix == "" {
		prefix = "shared"
	}

	return &ShareUploader{
		bucket:        cfg.ShareS3Bucket,
		publicBaseURL: strings.TrimRight(cfg.ShareS3PublicBaseURL, "/"),
		prefix:        prefix,
		client:        s3.New(options),
	}, nil
}

// Upload puts the image into the bucket under a dated random key and returns
// its public URL.
func (u *ShareUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := u.generateKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload share image: %w", err)
	}
	return u.publicBaseURL + "/" + key, nil
}

func (u *ShareUploader) generateKey(contentType string) string {
	now := time.Now().UTC()
	return path.Join(u.prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+extensionFromContentType(contentType))
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func contentTypeFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
