// internal/services/extraction_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// flakyExtractor fails a fixed number of times before succeeding.
type flakyExtractor struct {
	failures int
	calls    int
	records  []models.ExtractedRecord
}

func (f *flakyExtractor) Extract(ctx context.Context, filters Filters) ([]models.ExtractedRecord, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary outage")
	}
	return f.records, nil
}

func (f *flakyExtractor) IsAvailable(ctx context.Context) bool { return true }

func (f *flakyExtractor) SourceName() string { return "marketplace" }

func TestExtractWithRetryRecoversFromTransientFailure(t *testing.T) {
	sleeper := &fakeSleeper{}
	svc := NewExtractionService(nopAlerts{}, utils.LinearBackoff(3, time.Second), sleeper)

	extractor := &flakyExtractor{
		failures: 2,
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "SKU-1", SourceName: "Widget", ExtractedAt: time.Now()},
		},
	}

	records, err := svc.ExtractWithRetry(context.Background(), extractor, nil)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, extractor.calls)
	assert.Equal(t, 2, sleeper.count())
}

func TestExtractWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	alerts := &recordingAlerts{}
	svc := NewExtractionService(alerts, utils.LinearBackoff(3, time.Second), &fakeSleeper{})

	extractor := &flakyExtractor{failures: 10}

	_, err := svc.ExtractWithRetry(context.Background(), extractor, nil)
	assert.Error(t, err)

	var unavailable *SourceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "marketplace", unavailable.Source)
	assert.Equal(t, 3, unavailable.Attempts)
	assert.Equal(t, 3, extractor.calls)
	assert.Equal(t, 3, alerts.countLevel(models.AlertLevelWarning))
	assert.Equal(t, 1, alerts.countLevel(models.AlertLevelError))
}

func TestExtractWithRetryDropsMalformedRecords(t *testing.T) {
	alerts := &recordingAlerts{}
	svc := NewExtractionService(alerts, utils.LinearBackoff(1, time.Second), &fakeSleeper{})

	now := time.Now()
	extractor := &flakyExtractor{
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "SKU-1", SourceName: "Widget", ExtractedAt: now},
			{Source: "marketplace", ExternalSKU: "", SourceName: "No SKU", ExtractedAt: now},
			{Source: "marketplace", ExternalSKU: "SKU-3", SourceName: "", ExtractedAt: now},
		},
	}

	records, err := svc.ExtractWithRetry(context.Background(), extractor, nil)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "SKU-1", records[0].ExternalSKU)
	assert.Equal(t, 2, alerts.countLevel(models.AlertLevelWarning))
}

func TestExtractWithRetryFailsWhenNothingValid(t *testing.T) {
	svc := NewExtractionService(nopAlerts{}, utils.LinearBackoff(1, time.Second), &fakeSleeper{})

	extractor := &flakyExtractor{
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "", SourceName: "No SKU"},
		},
	}

	_, err := svc.ExtractWithRetry(context.Background(), extractor, nil)
	assert.Error(t, err)

	var validation *RecordValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Equal(t, "marketplace", validation.Source)
}
