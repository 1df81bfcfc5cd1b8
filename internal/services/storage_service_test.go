// internal/services/storage_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
)

func TestStorageServiceDisabledWithoutCredentials(t *testing.T) {
	svc, err := NewStorageService(&config.Config{})
	require.NoError(t, err)

	assert.False(t, svc.Enabled())

	// Archiving silently no-ops so a missing backend never fails a run.
	key, err := svc.ArchiveReport("REP-1", []byte("SKU,Warehouse name,Present,Reserved\n"))
	assert.NoError(t, err)
	assert.Empty(t, key)

	assert.NoError(t, svc.DeleteArchive("reports/2026/08/01/REP-1.csv"))

	// A download link cannot be faked, so that one errors.
	_, err = svc.GeneratePresignedURL("reports/2026/08/01/REP-1.csv", time.Minute)
	assert.Error(t, err)
}

func TestStorageServiceEnabledWithCredentials(t *testing.T) {
	svc, err := NewStorageService(&config.Config{
		AWS: config.AWSConfig{
			Region:          "us-east-1",
			AccessKeyID:     "test-access-key",
			SecretAccessKey: "test-secret-key",
			S3Bucket:        "test-archive",
		},
	})
	require.NoError(t, err)

	assert.True(t, svc.Enabled())

	// Presigning is local signature computation; no S3 round trip happens.
	url, err := svc.GeneratePresignedURL("reports/2026/08/01/REP-1.csv", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "REP-1.csv")
	assert.Contains(t, url, "X-Amz-Signature")
}
