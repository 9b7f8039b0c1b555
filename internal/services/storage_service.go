// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/javajoker/catalog-backend/internal/config"
)

const maxMirroredImageSize = 10 * 1024 * 1024 // 10MB

// StorageService copies vendor product images into the catalog's own bucket
// so the storefront does not hotlink vendor hosts.
type StorageService struct {
	s3Client   s3iface.S3API
	httpClient *http.Client
	queue      *RequestQueue
	config     *config.Config
}

func NewStorageService(config *config.Config, queue *RequestQueue) (*StorageService, error) {
	svc := &StorageService{
		httpClient: &http.Client{Timeout: config.Sync.HTTPTimeout},
		queue:      queue,
		config:     config,
	}
	if !config.S3Enabled() {
		return svc, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc.s3Client = s3.New(sess)
	return svc, nil
}

// Enabled reports whether images are mirrored at all.
func (s *StorageService) Enabled() bool {
	return s != nil && s.s3Client != nil
}

// MirrorImage downloads sourceURL through the request queue, stores it under
// a content-addressed key and returns the public URL.
func (s *StorageService) MirrorImage(ctx context.Context, upc, sourceURL string) (string, error) {
	if !s.Enabled() {
		return sourceURL, nil
	}

	var data []byte
	var contentType string
	err := s.queue.Do(ctx, "mirror", func(ctx context.Context) error {
		var err error
		data, contentType, err = s.download(ctx, sourceURL)
		return err
	})
	if err != nil {
		return "", err
	}

	key := s.imageKey(upc, sourceURL, data)
	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.getS3URL(key), nil
}

func (s *StorageService) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image url: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMirroredImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxMirroredImageSize {
		return nil, "", fmt.Errorf("image exceeds maximum size %d bytes", maxMirroredImageSize)
	}

	contentType, ok := imageContentType(data)
	if !ok {
		return nil, "", fmt.Errorf("invalid image file")
	}
	return data, contentType, nil
}

// imageKey is stable for identical content so re-mirroring the same image
// overwrites rather than duplicates.
func (s *StorageService) imageKey(upc, sourceURL string, data []byte) string {
	sum := sha256.Sum256(data)
	ext := strings.ToLower(path.Ext(strings.SplitN(sourceURL, "?", 2)[0]))
	if ext == "" || len(ext) > 5 {
		ext = ".img"
	}
	return fmt.Sprintf("products/%s/%s%s", upc, hex.EncodeToString(sum[:8]), ext)
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.config.AWS.CloudFrontURL, "/"), key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}

func imageContentType(buffer []byte) (string, bool) {
	// JPEG
	if len(buffer) >= 3 && buffer[0] == 0xFF && buffer[1] == 0xD8 && buffer[2] == 0xFF {
		return "image/jpeg", true
	}

	// PNG
	if len(buffer) >= 8 && buffer[0] == 0x89 && buffer[1] == 0x50 && buffer[2] == 0x4E && buffer[3] == 0x47 {
		return "image/png", true
	}

	// GIF
	if len(buffer) >= 6 && (string(buffer[0:6]) == "GIF87a" || string(buffer[0:6]) == "GIF89a") {
		return "image/gif", true
	}

	// WebP
	if len(buffer) >= 12 && string(buffer[0:4]) == "RIFF" && string(buffer[8:12]) == "WEBP" {
		return "image/webp", true
	}

	return "", false
}
