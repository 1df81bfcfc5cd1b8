// internal/services/report_processor_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

// Required report columns, matched case-insensitively.
var requiredReportColumns = []string{"SKU", "Warehouse name", "Present", "Reserved"}

// WarehouseAliasMap normalizes the free-form warehouse names that appear in
// reports to canonical names. Built once per run; lookups are read-only.
type WarehouseAliasMap map[string]string

// LoadWarehouseAliases reads the alias table into an in-memory map keyed by
// lowercased variant.
func LoadWarehouseAliases(db *gorm.DB) (WarehouseAliasMap, error) {
	var aliases []models.WarehouseAlias
	if err := db.Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("failed to load warehouse aliases: %w", err)
	}

	m := make(WarehouseAliasMap)
	for _, alias := range aliases {
		m[strings.ToLower(alias.CanonicalName)] = alias.CanonicalName
		for _, variant := range alias.Variants {
			m[strings.ToLower(strings.TrimSpace(variant))] = alias.CanonicalName
		}
	}
	return m, nil
}

// Canonical maps one raw warehouse name to its canonical form. Unknown names
// pass through sanitized so a new warehouse does not block the load.
func (m WarehouseAliasMap) Canonical(raw string) (string, bool) {
	cleaned := SanitizeText(raw)
	if canonical, ok := m[strings.ToLower(cleaned)]; ok {
		return canonical, true
	}
	return cleaned, false
}

// ReportProcessorService turns a downloaded stock report into inventory
// records ready for loading.
type ReportProcessorService struct {
	alerts AlertSink
}

func NewReportProcessorService(alerts AlertSink) *ReportProcessorService {
	return &ReportProcessorService{alerts: alerts}
}

// Parse validates the report structure and rows. Rows with negative counters
// or reserved exceeding present are dropped with a warning; when more than
// half the rows are dropped the whole report is rejected. Duplicate
// (sku, warehouse) rows are kept, the loader resolves them at read time.
func (s *ReportProcessorService) Parse(runID *uuid.UUID, aliases WarehouseAliasMap, data []byte) ([]models.InventoryRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &MalformedReportError{MissingColumns: requiredReportColumns}
	}

	columns, missing := mapReportColumns(header)
	if len(missing) > 0 {
		return nil, &MalformedReportError{MissingColumns: missing}
	}

	now := time.Now().UTC()
	var records []models.InventoryRecord
	total := 0
	dropped := 0

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if isBlankRow(row) {
			continue
		}
		total++

		record, reason := s.parseRow(row, columns, aliases, now)
		if reason != "" {
			dropped++
			s.alerts.Warning(runID, "report", "Dropping invalid report row", models.JSONB{
				"line":   line,
				"reason": reason,
			})
			continue
		}
		records = append(records, record)
	}

	if total > 0 && dropped*2 > total {
		return nil, &TooManyValidationErrors{Dropped: dropped, Total: total}
	}

	s.warnDuplicatePairs(runID, records)
	return records, nil
}

func (s *ReportProcessorService) parseRow(row []string, columns map[string]int, aliases WarehouseAliasMap, now time.Time) (models.InventoryRecord, string) {
	get := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	sku := SanitizeText(get("sku"))
	if sku == "" {
		return models.InventoryRecord{}, "empty sku"
	}

	warehouse, _ := aliases.Canonical(get("warehouse name"))
	if warehouse == "" {
		return models.InventoryRecord{}, "empty warehouse name"
	}

	present, err := strconv.Atoi(get("present"))
	if err != nil || present < 0 {
		return models.InventoryRecord{}, fmt.Sprintf("invalid present count %q", get("present"))
	}

	reserved, err := strconv.Atoi(get("reserved"))
	if err != nil || reserved < 0 {
		return models.InventoryRecord{}, fmt.Sprintf("invalid reserved count %q", get("reserved"))
	}

	if reserved > present {
		return models.InventoryRecord{}, fmt.Sprintf("reserved %d exceeds present %d", reserved, present)
	}

	return models.InventoryRecord{
		ProductKey:    sku,
		WarehouseName: warehouse,
		Present:       present,
		Reserved:      reserved,
		Available:     present - reserved,
		UpdatedAt:     now,
	}, ""
}

func (s *ReportProcessorService) warnDuplicatePairs(runID *uuid.UUID, records []models.InventoryRecord) {
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		key := record.ProductKey + "\x00" + record.WarehouseName
		if seen[key] {
			s.alerts.Warning(runID, "report", "Duplicate (sku, warehouse) pair in report", models.JSONB{
				"sku":       record.ProductKey,
				"warehouse": record.WarehouseName,
			})
		}
		seen[key] = true
	}
}

// mapReportColumns resolves required headers case-insensitively and returns
// any that are absent.
func mapReportColumns(header []string) (map[string]int, []string) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(SanitizeText(name))] = i
	}

	columns := make(map[string]int, len(requiredReportColumns))
	var missing []string
	for _, name := range requiredReportColumns {
		key := strings.ToLower(name)
		idx, ok := index[key]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[key] = idx
	}
	return columns, missing
}

func isBlankRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
