package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stackmail/mailbox/backend/internal/config"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Object holds the content and metadata of a stored attachment
type Object struct {
	Content     []byte
	ContentType string
	SizeBytes   int64
}

// StorageService handles S3/MinIO operations for attachment storage
type StorageService struct {
	client *s3.Client
	bucket string
}

// NewStorageService creates a new storage service with S3/MinIO client
func NewStorageService(cfg *config.StorageConfig) (*StorageService, error) {
	// Build endpoint URL - handle case where endpoint already includes protocol
	var endpointURL string
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		endpointURL = cfg.Endpoint
	} else {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // Required for MinIO
	})

	return &StorageService{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// BuildAttachmentKey builds the object key for a message attachment.
// The timestamp prefix keeps keys unique for repeated filenames.
func BuildAttachmentKey(messageID, filename string) string {
	return fmt.Sprintf("attachments/%s/%d-%s", messageID, time.Now().UnixMilli(), SanitizeFilename(filename))
}

// SanitizeFilename replaces characters that are unsafe in object keys
func SanitizeFilename(filename string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(filename, "_")
	if sanitized == "" {
		return "attachment"
	}
	return sanitized
}

// Put uploads an object with the given content type and an attachment
// content disposition carrying the original filename
func (s *StorageService) Put(ctx context.Context, key string, content []byte, contentType, filename string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(content),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
		ContentLength:      aws.Int64(int64(len(content))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Get downloads an object and its metadata
func (s *StorageService) Get(ctx context.Context, key string) (*Object, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer output.Body.Close()

	content, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	obj := &Object{
		Content:     content,
		ContentType: "application/octet-stream",
		SizeBytes:   int64(len(content)),
	}
	if output.ContentType != nil && *output.ContentType != "" {
		obj.ContentType = *output.ContentType
	}

	return obj, nil
}

// Delete removes a single object
func (s *StorageService) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// DeleteByKeys deletes multiple objects by their storage keys and returns
// the count of deleted objects
func (s *StorageService) DeleteByKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	objectIdentifiers := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objectIdentifiers[i] = types.ObjectIdentifier{
			Key: aws.String(key),
		}
	}

	// S3 supports up to 1000 objects per delete request
	deleteCount := 0
	batchSize := 1000

	for i := 0; i < len(objectIdentifiers); i += batchSize {
		end := i + batchSize
		if end > len(objectIdentifiers) {
			end = len(objectIdentifiers)
		}

		batch := objectIdentifiers[i:end]
		output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: batch,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleteCount, fmt.Errorf("failed to delete objects: %w", err)
		}

		deleteCount += len(batch) - len(output.Errors)
	}

	return deleteCount, nil
}

// GetBucket returns the configured bucket name
func (s *StorageService) GetBucket() string {
	return s.bucket
}
