// internal/services/extraction_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// Filters are opaque source-specific query parameters.
type Filters map[string]string

// Extractor pulls raw product records from one upstream source.
type Extractor interface {
	Extract(ctx context.Context, filters Filters) ([]models.ExtractedRecord, error)
	IsAvailable(ctx context.Context) bool
	SourceName() string
}

// HTTPSourceExtractor adapts a paginated JSON product API to the Extractor
// contract.
type HTTPSourceExtractor struct {
	name     string
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
}

func NewHTTPSourceExtractor(cfg config.SourceConfig, pageSize int) *HTTPSourceExtractor {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &HTTPSourceExtractor{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPSourceExtractor) SourceName() string {
	return e.name
}

type sourceProduct struct {
	Sku        string                 `json:"sku"`
	OfferID    string                 `json:"offer_id"`
	Name       string                 `json:"name"`
	Brand      string                 `json:"brand"`
	Category   string                 `json:"category"`
	Price      json.Number            `json:"price"`
	Attributes map[string]interface{} `json:"attributes"`
}

type sourceListResponse struct {
	Items      []sourceProduct `json:"items"`
	NextCursor string          `json:"next_cursor"`
	HasMore    *bool           `json:"has_more"`
}

func (e *HTTPSourceExtractor) Extract(ctx context.Context, filters Filters) ([]models.ExtractedRecord, error) {
	var records []models.ExtractedRecord
	cursor := ""
	extractedAt := time.Now().UTC()

	for {
		params := url.Values{}
		for k, v := range filters {
			params.Set(k, v)
		}
		params.Set("limit", fmt.Sprintf("%d", e.pageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		resp, err := e.getList(ctx, "/v1/products", params)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			sku := strings.TrimSpace(item.Sku)
			if sku == "" {
				sku = strings.TrimSpace(item.OfferID)
			}

			records = append(records, models.ExtractedRecord{
				Source:         e.name,
				ExternalSKU:    sku,
				SourceName:     item.Name,
				SourceBrand:    item.Brand,
				SourceCategory: item.Category,
				RawPrice:       item.Price.String(),
				Price:          decimal.Zero,
				Attributes:     models.JSONB(item.Attributes),
				ExtractedAt:    extractedAt,
			})
		}

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return records, nil
		}
		cursor = resp.NextCursor
	}
}

// IsAvailable performs a lightweight liveness probe and never returns an
// error to the caller.
func (e *HTTPSourceExtractor) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/ping", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-API-Key", e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (e *HTTPSourceExtractor) getList(ctx context.Context, path string, params url.Values) (sourceListResponse, error) {
	endpoint := e.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return sourceListResponse{}, err
	}
	req.Header.Set("X-API-Key", e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return sourceListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sourceListResponse{}, fmt.Errorf("source api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed sourceListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return sourceListResponse{}, err
	}
	return parsed, nil
}

// ExtractionService wraps any Extractor in the retry and shape-check policy
// shared by all sources.
type ExtractionService struct {
	alerts  AlertSink
	policy  utils.BackoffPolicy
	sleeper utils.Sleeper
}

func NewExtractionService(alerts AlertSink, policy utils.BackoffPolicy, sleeper utils.Sleeper) *ExtractionService {
	if sleeper == nil {
		sleeper = utils.NewSleeper()
	}
	return &ExtractionService{
		alerts:  alerts,
		policy:  policy,
		sleeper: sleeper,
	}
}

// ExtractWithRetry runs the extractor with up to MaxAttempts tries, the delay
// growing linearly with the attempt number. Records failing the minimal shape
// check (non-empty externalSku and sourceName) are dropped; if none survive
// the whole extraction fails.
func (s *ExtractionService) ExtractWithRetry(ctx context.Context, extractor Extractor, filters Filters) ([]models.ExtractedRecord, error) {
	source := extractor.SourceName()

	var records []models.ExtractedRecord
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		records, lastErr = extractor.Extract(ctx, filters)
		if lastErr == nil {
			break
		}

		s.alerts.Warning(nil, source, "Extraction attempt failed", models.JSONB{
			"attempt":      attempt,
			"max_attempts": s.policy.MaxAttempts,
			"error":        lastErr.Error(),
		})

		if attempt < s.policy.MaxAttempts {
			s.sleeper.Sleep(s.policy.Delay(attempt))
		}
	}

	if lastErr != nil {
		s.alerts.Error(nil, source, "Source unreachable, giving up", models.JSONB{
			"attempts": s.policy.MaxAttempts,
		})
		return nil, &SourceUnavailableError{Source: source, Attempts: s.policy.MaxAttempts, Err: lastErr}
	}

	valid := make([]models.ExtractedRecord, 0, len(records))
	for _, record := range records {
		if strings.TrimSpace(record.ExternalSKU) == "" || strings.TrimSpace(record.SourceName) == "" {
			s.alerts.Warning(nil, source, "Dropping record failing shape check", models.JSONB{
				"external_sku": record.ExternalSKU,
			})
			continue
		}
		if err := utils.ValidateStruct(&record); err != nil {
			s.alerts.Warning(nil, source, "Dropping record failing validation", models.JSONB{
				"external_sku": record.ExternalSKU,
				"error":        err.Error(),
			})
			continue
		}
		valid = append(valid, record)
	}

	if len(valid) == 0 {
		return nil, &RecordValidationError{
			Source: source,
			Reason: fmt.Sprintf("%d records extracted, none passed shape checks", len(records)),
		}
	}

	return valid, nil
}
