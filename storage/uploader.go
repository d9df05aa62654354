// Package storage uploads review artifacts (screenshots) to object
// storage so issue comments can link them. Upload failures are never
// fatal to a workflow run.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/c360studio/adw/config"
)

// Uploader is the object-storage port the review phase depends on.
type Uploader interface {
	// Enabled reports whether uploads can be attempted at all.
	Enabled() bool
	// Upload stores the file under key and returns its public URL.
	Upload(ctx context.Context, filePath, key string) (string, error)
}

const defaultPublicDomain = "tac-public-imgs.iddagents.com"

// R2Uploader uploads to a Cloudflare R2 bucket through its
// S3-compatible endpoint. When any credential is missing the uploader
// is disabled and every Upload is a no-op.
type R2Uploader struct {
	client       *s3.Client
	bucket       string
	publicDomain string
	enabled      bool
	logger       *slog.Logger
}

// NewR2Uploader builds an uploader from the environment snapshot.
func NewR2Uploader(ctx context.Context, env config.EnvironmentConfig, logger *slog.Logger) *R2Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	accountID := env.Get("CLOUDFLARE_ACCOUNT_ID")
	accessKey := env.Get("CLOUDFLARE_R2_ACCESS_KEY_ID")
	secret := env.Get("CLOUDFLARE_R2_SECRET_ACCESS_KEY")
	bucket := env.Get("CLOUDFLARE_R2_BUCKET_NAME")
	publicDomain := env.Get("CLOUDFLARE_R2_PUBLIC_DOMAIN")
	if publicDomain == "" {
		publicDomain = defaultPublicDomain
	}

	u := &R2Uploader{bucket: bucket, publicDomain: publicDomain, logger: logger}
	if accountID == "" || accessKey == "" || secret == "" || bucket == "" {
		logger.Info("Screenshot upload disabled - missing required environment variables")
		return u
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secret, "")),
	)
	if err != nil {
		logger.Warn("Failed to initialize R2 client", slog.String("error", err.Error()))
		return u
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	u.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	u.enabled = true
	logger.Info("Screenshot upload enabled",
		slog.String("bucket", bucket), slog.String("domain", publicDomain))
	return u
}

// Enabled reports whether the uploader has working credentials.
func (u *R2Uploader) Enabled() bool {
	return u.enabled
}

// Upload stores the file under key and returns its public URL.
func (u *R2Uploader) Upload(ctx context.Context, filePath, key string) (string, error) {
	if !u.enabled {
		return "", fmt.Errorf("upload disabled")
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("screenshot not found: %w", err)
	}
	defer f.Close()

	if key == "" {
		key = "adw/review/" + filepath.Base(abs)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filePath, err)
	}
	return fmt.Sprintf("https://%s/%s", u.publicDomain, key), nil
}

// UploadScreenshots uploads each screenshot under the run's review
// prefix, returning a path-to-URL map. A failed upload maps the path
// to itself so comments can still reference the local file.
func UploadScreenshots(ctx context.Context, u Uploader, screenshots []string, adwID string, logger *slog.Logger) map[string]string {
	urls := make(map[string]string, len(screenshots))
	for _, shot := range screenshots {
		if shot == "" {
			continue
		}
		key := fmt.Sprintf("adw/%s/review/%s", adwID, filepath.Base(shot))
		url, err := u.Upload(ctx, shot, key)
		if err != nil {
			if logger != nil {
				logger.Warn("Screenshot upload failed", slog.String("path", shot), slog.String("error", err.Error()))
			}
			urls[shot] = shot
			continue
		}
		urls[shot] = url
	}
	return urls
}
