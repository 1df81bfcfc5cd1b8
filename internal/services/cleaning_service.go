// internal/services/cleaning_service.go
package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	controlRe    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	priceJunkRe  = regexp.MustCompile(`[^0-9.,\-]`)
)

// Quality deduction weights. Each weight is multiplied by the percentage of
// records exhibiting the issue, so an operator can see which issue class is
// dragging the score down.
const (
	deductMissingName      = 0.30
	deductMissingBrand     = 0.20
	deductMissingCategory  = 0.20
	deductInvalidPrice     = 0.15
	deductEncodingArtifact = 0.10
	deductDuplicateName    = 0.05
)

// QualityReport is the per-batch data quality breakdown.
type QualityReport struct {
	Total             int     `json:"total"`
	MissingName       int     `json:"missing_name"`
	MissingBrand      int     `json:"missing_brand"`
	MissingCategory   int     `json:"missing_category"`
	InvalidPrice      int     `json:"invalid_price"`
	EncodingArtifacts int     `json:"encoding_artifacts"`
	DuplicateNames    int     `json:"duplicate_names"`
	DuplicatesDropped int     `json:"duplicates_dropped"`
	Score             float64 `json:"score"`
}

func (q QualityReport) ToJSONB() models.JSONB {
	return models.JSONB{
		"total":              q.Total,
		"missing_name":       q.MissingName,
		"missing_brand":      q.MissingBrand,
		"missing_category":   q.MissingCategory,
		"invalid_price":      q.InvalidPrice,
		"encoding_artifacts": q.EncodingArtifacts,
		"duplicate_names":    q.DuplicateNames,
		"duplicates_dropped": q.DuplicatesDropped,
		"score":              q.Score,
	}
}

// CleaningService canonicalizes extracted records without losing information.
type CleaningService struct {
	alerts AlertSink
}

func NewCleaningService(alerts AlertSink) *CleaningService {
	return &CleaningService{alerts: alerts}
}

// CleanBatch sanitizes every record in place, deduplicates by
// (source, externalSku) keeping the most recent extraction, and computes the
// batch quality score.
func (s *CleaningService) CleanBatch(records []models.ExtractedRecord) ([]models.ExtractedRecord, QualityReport) {
	report := QualityReport{}

	type cleanedRecord struct {
		record   models.ExtractedRecord
		priceOK  bool
		artifact bool
	}

	cleaned := make([]cleanedRecord, 0, len(records))
	for i := range records {
		artifact := s.hasEncodingArtifacts(&records[i])
		priceOK := s.CleanRecord(&records[i])
		cleaned = append(cleaned, cleanedRecord{
			record:   records[i],
			priceOK:  priceOK,
			artifact: artifact,
		})
	}

	// Last-write-wins dedup by (source, externalSku) on extractedAt.
	byKey := make(map[string]int, len(cleaned))
	deduped := make([]cleanedRecord, 0, len(cleaned))
	for _, c := range cleaned {
		key := c.record.Source + "\x00" + c.record.ExternalSKU
		if idx, exists := byKey[key]; exists {
			kept := deduped[idx]
			report.DuplicatesDropped++
			if c.record.ExtractedAt.After(kept.record.ExtractedAt) {
				s.warnDuplicate(c.record.Source, c.record.ExternalSKU, kept.record)
				deduped[idx] = c
			} else {
				s.warnDuplicate(c.record.Source, c.record.ExternalSKU, c.record)
			}
			continue
		}
		byKey[key] = len(deduped)
		deduped = append(deduped, c)
	}

	report.Total = len(deduped)

	nameSeen := make(map[string]bool)
	result := make([]models.ExtractedRecord, 0, len(deduped))
	for _, c := range deduped {
		record := c.record
		if record.SourceName == "" {
			report.MissingName++
		}
		if record.SourceBrand == "" {
			report.MissingBrand++
		}
		if record.SourceCategory == "" {
			report.MissingCategory++
		}
		if !c.priceOK {
			report.InvalidPrice++
		}
		if c.artifact {
			report.EncodingArtifacts++
		}
		nameKey := strings.ToLower(record.SourceName)
		if nameKey != "" {
			if nameSeen[nameKey] {
				report.DuplicateNames++
			}
			nameSeen[nameKey] = true
		}
		result = append(result, record)
	}

	report.Score = s.qualityScore(report)
	return result, report
}

// CleanRecord normalizes one record in place. Returns false when the price
// could not be parsed from its raw representation.
func (s *CleaningService) CleanRecord(record *models.ExtractedRecord) bool {
	record.ExternalSKU = SanitizeText(record.ExternalSKU)
	record.SourceName = SanitizeText(record.SourceName)
	record.SourceBrand = SanitizeText(record.SourceBrand)
	record.SourceCategory = SanitizeText(record.SourceCategory)

	priceOK := true
	if record.RawPrice != "" {
		price, ok := ParsePrice(record.RawPrice)
		record.Price = price
		priceOK = ok
	}
	if record.Price.IsNegative() {
		record.Price = decimal.Zero
		priceOK = false
	}

	record.Attributes = sanitizeAttributes(record.Attributes)
	return priceOK
}

// SanitizeText trims, collapses internal whitespace, and strips control
// characters.
func SanitizeText(value string) string {
	value = controlRe.ReplaceAllString(value, "")
	value = whitespaceRe.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// ParsePrice extracts a non-negative decimal from mixed price formats
// ("1 299,50 ₽", "$12.99", "1,299.00"). Unparseable input yields zero.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := priceJunkRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	// Keep only the last dot as the decimal separator; earlier ones are
	// thousands separators.
	if n := strings.Count(cleaned, "."); n > 1 {
		last := strings.LastIndex(cleaned, ".")
		cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
	}

	if cleaned == "" || cleaned == "." || cleaned == "-" {
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if price.IsNegative() {
		return decimal.Zero, false
	}
	return price, true
}

func sanitizeAttributes(attrs models.JSONB) models.JSONB {
	if attrs == nil {
		return nil
	}

	cleaned := make(models.JSONB, len(attrs))
	for key, value := range attrs {
		cleanKey := SanitizeText(key)
		if cleanKey == "" {
			continue
		}
		cleanValue := sanitizeAttributeValue(value)
		if cleanValue == nil {
			continue
		}
		cleaned[cleanKey] = cleanValue
	}

	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func sanitizeAttributeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		cleaned := SanitizeText(v)
		if cleaned == "" {
			return nil
		}
		return cleaned
	case map[string]interface{}:
		nested := sanitizeAttributes(models.JSONB(v))
		if nested == nil {
			return nil
		}
		return map[string]interface{}(nested)
	case []interface{}:
		var items []interface{}
		for _, item := range v {
			if cleaned := sanitizeAttributeValue(item); cleaned != nil {
				items = append(items, cleaned)
			}
		}
		if len(items) == 0 {
			return nil
		}
		return items
	case nil:
		return nil
	default:
		return v
	}
}

func (s *CleaningService) hasEncodingArtifacts(record *models.ExtractedRecord) bool {
	for _, field := range []string{record.SourceName, record.SourceBrand, record.SourceCategory} {
		if controlRe.MatchString(field) || strings.ContainsRune(field, '�') {
			return true
		}
	}
	return false
}

func (s *CleaningService) warnDuplicate(source, sku string, discarded models.ExtractedRecord) {
	s.alerts.Warning(nil, source, "Discarding duplicate extraction, keeping newest", models.JSONB{
		"external_sku":           sku,
		"discarded_extracted_at": discarded.ExtractedAt,
		"discarded_name":         discarded.SourceName,
	})
}

func (s *CleaningService) qualityScore(report QualityReport) float64 {
	if report.Total == 0 {
		return 100
	}

	total := float64(report.Total)
	pct := func(count int) float64 { return float64(count) / total * 100 }

	deduction := deductMissingName*pct(report.MissingName) +
		deductMissingBrand*pct(report.MissingBrand) +
		deductMissingCategory*pct(report.MissingCategory) +
		deductInvalidPrice*pct(report.InvalidPrice) +
		deductEncodingArtifact*pct(report.EncodingArtifacts) +
		deductDuplicateName*pct(report.DuplicateNames)

	score := 100 - deduction
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// String renders the report for log lines.
func (q QualityReport) String() string {
	return fmt.Sprintf("quality %.1f over %d records (missing name=%d brand=%d category=%d, bad price=%d, encoding=%d, dup names=%d)",
		q.Score, q.Total, q.MissingName, q.MissingBrand, q.MissingCategory, q.InvalidPrice, q.EncodingArtifacts, q.DuplicateNames)
}
