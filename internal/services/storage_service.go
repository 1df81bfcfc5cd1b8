// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
)

// StorageService archives downloaded report files to S3 so a load can be
// audited or replayed later. Without AWS credentials the service runs in
// no-op mode and archiving is skipped.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// No credentials: local development, archive disabled.
		return &StorageService{config: config}, nil
	}

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

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// Enabled reports whether an archive backend is configured.
func (s *StorageService) Enabled() bool {
	return s.s3Client != nil
}

// ArchiveReport stores the raw report body under a date-partitioned key and
// returns that key. Returns ("", nil) when archiving is disabled.
func (s *StorageService) ArchiveReport(reportCode string, data []byte) (string, error) {
	if s.s3Client == nil {
		return "", nil
	}

	key := fmt.Sprintf("reports/%s/%s.csv", time.Now().UTC().Format("2006/01/02"), reportCode)

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive report %s: %w", reportCode, err)
	}

	return key, nil
}

// GeneratePresignedURL produces a time-limited download link for an archived
// report.
func (s *StorageService) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("archive storage not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

// DeleteArchive removes an archived report, used when a retention window
// expires.
func (s *StorageService) DeleteArchive(key string) error {
	if s.s3Client == nil {
		return nil
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived report: %w", err)
	}

	return nil
}
