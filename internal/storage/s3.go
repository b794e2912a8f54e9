// Package storage stores uploaded logo images in S3-compatible object
// storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures the logo store. Endpoint is optional and enables
// S3-compatible providers (MinIO, R2); PublicURL overrides the URL base
// returned for stored objects.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
}

// S3LogoStore uploads logos to a bucket and returns their public URLs.
type S3LogoStore struct {
	cfg      S3Config
	uploader *manager.Uploader
	logger   zerolog.Logger
}

// NewS3LogoStore creates an S3LogoStore using ambient AWS credentials.
func NewS3LogoStore(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3LogoStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3LogoStore{
		cfg:      cfg,
		uploader: manager.NewUploader(client),
		logger:   logger.With().Str("component", "logo_store").Logger(),
	}, nil
}

// extensionForContentType maps accepted logo types to file extensions.
var extensionForContentType = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// UploadLogo stores the image under a per-organization key and returns its
// URL. Re-uploading replaces the previous logo.
func (s *S3LogoStore) UploadLogo(ctx context.Context, orgID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := extensionForContentType[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported logo content type %q", contentType)
	}

	key := "logos/" + orgID + ext
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("upload logo: %w", err)
	}

	url := s.objectURL(key)
	s.logger.Info().Str("org_id", orgID).Str("key", key).Int64("size", size).Msg("logo uploaded")
	return url, nil
}

func (s *S3LogoStore) objectURL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
