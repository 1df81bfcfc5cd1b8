// internal/services/matching_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

type MatchOutcomeKind string

const (
	MatchOutcomeAccepted      MatchOutcomeKind = "accepted"
	MatchOutcomePendingReview MatchOutcomeKind = "pending_review"
	MatchOutcomeCreated       MatchOutcomeKind = "created"
)

// MatchOutcome is the three-way classification of one candidate record.
// Callers must branch on Kind; there is no implicit default.
type MatchOutcome struct {
	Kind     MatchOutcomeKind `json:"kind"`
	MasterID uuid.UUID        `json:"master_id"`
	Score    float64          `json:"score"`
}

type MatchingService struct {
	db     *gorm.DB
	cfg    config.MatchingConfig
	xrefs  *CrossRefService
	alerts AlertSink
}

func NewMatchingService(db *gorm.DB, cfg config.MatchingConfig, xrefs *CrossRefService, alerts AlertSink) *MatchingService {
	return &MatchingService{
		db:     db,
		cfg:    cfg,
		xrefs:  xrefs,
		alerts: alerts,
	}
}

// Match scores one cleaned record against the canonical catalog and applies
// the decision policy: score above the auto threshold accepts the best
// candidate, scores in the review band queue the pair for a human, anything
// below creates a new master product.
func (s *MatchingService) Match(runID *uuid.UUID, record *models.ExtractedRecord) (MatchOutcome, error) {
	candidates, err := s.findCandidates(record)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("failed to load match candidates: %w", err)
	}

	bestScore := 0.0
	var best *models.MasterProduct
	for i := range candidates {
		score := s.Score(record, &candidates[i])
		// Strictly greater keeps the classification deterministic: the
		// candidate list is ordered by id, so ties resolve to the first.
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}

	switch {
	case best != nil && bestScore > s.cfg.AutoThreshold:
		return s.accept(runID, record, best, bestScore)
	case best != nil && bestScore >= s.cfg.ReviewThreshold:
		return s.enqueueReview(runID, record, best, bestScore)
	default:
		return s.createMaster(runID, record, bestScore)
	}
}

// Score combines four normalized sub-scores into a weighted sum in [0,1].
func (s *MatchingService) Score(record *models.ExtractedRecord, master *models.MasterProduct) float64 {
	return s.cfg.NameWeight*nameSimilarity(record.SourceName, master.CanonicalName) +
		s.cfg.BrandWeight*exactMatch(record.SourceBrand, master.CanonicalBrand) +
		s.cfg.CategoryWeight*exactMatch(record.SourceCategory, master.CanonicalCategory) +
		s.cfg.AttributeWeight*attributeSimilarity(record.Attributes, master.Attributes)
}

func (s *MatchingService) findCandidates(record *models.ExtractedRecord) ([]models.MasterProduct, error) {
	query := s.db.Model(&models.MasterProduct{}).
		Where("status = ?", models.MasterProductStatusActive).
		Order("id")

	// Pre-filter by brand/category when available so the scorer does not
	// walk the whole catalog.
	brand := normalizeForMatch(record.SourceBrand)
	category := normalizeForMatch(record.SourceCategory)
	switch {
	case brand != "" && category != "":
		query = query.Where("LOWER(canonical_brand) = ? OR LOWER(canonical_category) = ?", brand, category)
	case brand != "":
		query = query.Where("LOWER(canonical_brand) = ?", brand)
	case category != "":
		query = query.Where("LOWER(canonical_category) = ?", category)
	}

	var candidates []models.MasterProduct
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *MatchingService) accept(runID *uuid.UUID, record *models.ExtractedRecord, master *models.MasterProduct, score float64) (MatchOutcome, error) {
	entry := &models.CrossReference{
		Source:             record.Source,
		ExternalSKU:        record.ExternalSKU,
		MasterID:           master.ID,
		ConfidenceScore:    score,
		VerificationStatus: models.VerificationStatusAuto,
		LastSyncAt:         time.Now(),
	}

	if err := s.xrefs.Upsert(entry, false); err != nil {
		return MatchOutcome{}, err
	}

	return MatchOutcome{Kind: MatchOutcomeAccepted, MasterID: master.ID, Score: score}, nil
}

func (s *MatchingService) enqueueReview(runID *uuid.UUID, record *models.ExtractedRecord, master *models.MasterProduct, score float64) (MatchOutcome, error) {
	entry := &models.CrossReference{
		Source:             record.Source,
		ExternalSKU:        record.ExternalSKU,
		MasterID:           master.ID,
		ConfidenceScore:    score,
		VerificationStatus: models.VerificationStatusPending,
		LastSyncAt:         time.Now(),
	}

	if err := s.xrefs.Upsert(entry, false); err != nil {
		return MatchOutcome{}, err
	}

	s.alerts.Info(runID, record.Source, "Candidate queued for manual review", models.JSONB{
		"external_sku": record.ExternalSKU,
		"master_id":    master.ID.String(),
		"score":        score,
	})

	return MatchOutcome{Kind: MatchOutcomePendingReview, MasterID: master.ID, Score: score}, nil
}

// createMaster prefers a new master over forcing a weak match; an operator
// can merge duplicates later.
func (s *MatchingService) createMaster(runID *uuid.UUID, record *models.ExtractedRecord, bestScore float64) (MatchOutcome, error) {
	master := &models.MasterProduct{
		CanonicalName:     record.SourceName,
		CanonicalBrand:    record.SourceBrand,
		CanonicalCategory: record.SourceCategory,
		Attributes:        record.Attributes,
		Status:            models.MasterProductStatusActive,
	}

	if err := s.db.Create(master).Error; err != nil {
		return MatchOutcome{}, fmt.Errorf("failed to create master product: %w", err)
	}

	entry := &models.CrossReference{
		Source:      record.Source,
		ExternalSKU: record.ExternalSKU,
		MasterID:    master.ID,
		// Identity binding: the record is the master's own origin.
		ConfidenceScore:    1.0,
		VerificationStatus: models.VerificationStatusAuto,
		LastSyncAt:         time.Now(),
	}

	if err := s.xrefs.Upsert(entry, false); err != nil {
		return MatchOutcome{}, err
	}

	s.alerts.Info(runID, record.Source, "Created new master product", models.JSONB{
		"external_sku": record.ExternalSKU,
		"master_id":    master.ID.String(),
		"best_score":   bestScore,
	})

	return MatchOutcome{Kind: MatchOutcomeCreated, MasterID: master.ID, Score: bestScore}, nil
}

// nameSimilarity is an edit-distance ratio in [0,1] over normalized names.
func nameSimilarity(a, b string) float64 {
	a = normalizeForMatch(a)
	b = normalizeForMatch(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return 1 - float64(distance)/float64(longest)
}

// exactMatch returns 1.0 for case/whitespace-normalized equality, else 0.
func exactMatch(a, b string) float64 {
	a = normalizeForMatch(a)
	b = normalizeForMatch(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return 0
}

// attributeSimilarity is the share of union keys whose normalized scalar
// values agree.
func attributeSimilarity(a, b models.JSONB) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	union := make(map[string]bool, len(a)+len(b))
	for key := range a {
		union[key] = true
	}
	for key := range b {
		union[key] = true
	}

	matches := 0
	for key := range union {
		av, aok := a[key]
		bv, bok := b[key]
		if !aok || !bok {
			continue
		}
		if normalizeForMatch(fmt.Sprintf("%v", av)) == normalizeForMatch(fmt.Sprintf("%v", bv)) {
			matches++
		}
	}

	return float64(matches) / float64(len(union))
}

func normalizeForMatch(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
