// internal/services/crossref_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

// CrossRefService owns the cross-reference table: the single mapping from a
// (source, externalSku) pair to a master product.
type CrossRefService struct {
	db *gorm.DB
}

func NewCrossRefService(db *gorm.DB) *CrossRefService {
	return &CrossRefService{db: db}
}

// Upsert writes a cross-reference, preserving the (source, externalSku)
// uniqueness invariant. A manually verified entry never changes masters
// silently: pointing it at a different master requires override=true, which
// also resets the entry to manual verification with the new score.
func (s *CrossRefService) Upsert(entry *models.CrossReference, override bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.CrossReference
		err := tx.Where("source = ? AND external_sku = ?", entry.Source, entry.ExternalSKU).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if createErr := tx.Create(entry).Error; createErr != nil {
				return fmt.Errorf("failed to create cross-reference: %w", createErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up cross-reference: %w", err)
		}

		if existing.VerificationStatus == models.VerificationStatusManual &&
			existing.MasterID != entry.MasterID && !override {
			return &ConflictError{Source: entry.Source, ExternalSKU: entry.ExternalSKU}
		}

		updates := map[string]interface{}{
			"master_id":           entry.MasterID,
			"confidence_score":    entry.ConfidenceScore,
			"verification_status": entry.VerificationStatus,
			"last_sync_at":        entry.LastSyncAt,
		}
		// Re-matching must not demote a human decision when the binding is
		// unchanged.
		if existing.VerificationStatus == models.VerificationStatusManual &&
			existing.MasterID == entry.MasterID {
			updates["verification_status"] = models.VerificationStatusManual
			updates["confidence_score"] = existing.ConfidenceScore
		}

		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update cross-reference: %w", err)
		}

		entry.ID = existing.ID
		return nil
	})
}

// FindBySource returns the entry for a (source, externalSku) pair, or
// (nil, nil) when no mapping exists yet.
func (s *CrossRefService) FindBySource(source, externalSKU string) (*models.CrossReference, error) {
	var entry models.CrossReference
	err := s.db.Preload("Master").
		Where("source = ? AND external_sku = ?", source, externalSKU).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cross-reference: %w", err)
	}
	return &entry, nil
}

// FindPendingReview lists entries awaiting a human decision, oldest first.
func (s *CrossRefService) FindPendingReview(limit int) ([]models.CrossReference, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []models.CrossReference
	err := s.db.Preload("Master").
		Where("verification_status = ?", models.VerificationStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending cross-references: %w", err)
	}
	return entries, nil
}

// VerifyEntry records a reviewer's decision. Accepting keeps the proposed
// master (or rebinds to masterID when given); rejecting detaches the pair by
// binding it to a freshly created master built from the extracted record, or
// fails if no extraction exists to build one from.
func (s *CrossRefService) VerifyEntry(id uuid.UUID, accept bool, masterID *uuid.UUID) (*models.CrossReference, error) {
	var entry models.CrossReference

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to load cross-reference: %w", err)
		}

		if entry.VerificationStatus != models.VerificationStatusPending {
			return fmt.Errorf("cross-reference %s is not pending review", id)
		}

		if accept {
			target := entry.MasterID
			if masterID != nil {
				var master models.MasterProduct
				if err := tx.First(&master, "id = ?", *masterID).Error; err != nil {
					return fmt.Errorf("target master not found: %w", err)
				}
				target = master.ID
			}
			return tx.Model(&entry).Updates(map[string]interface{}{
				"master_id":           target,
				"verification_status": models.VerificationStatusManual,
				"confidence_score":    1.0,
				"last_sync_at":        time.Now(),
			}).Error
		}

		var record models.ExtractedRecord
		err := tx.Where("source = ? AND external_sku = ?", entry.Source, entry.ExternalSKU).
			First(&record).Error
		if err != nil {
			return fmt.Errorf("no extracted record to build a master from: %w", err)
		}

		master := &models.MasterProduct{
			CanonicalName:     record.SourceName,
			CanonicalBrand:    record.SourceBrand,
			CanonicalCategory: record.SourceCategory,
			Attributes:        record.Attributes,
			Status:            models.MasterProductStatusActive,
		}
		if err := tx.Create(master).Error; err != nil {
			return fmt.Errorf("failed to create master product: %w", err)
		}

		return tx.Model(&entry).Updates(map[string]interface{}{
			"master_id":           master.ID,
			"verification_status": models.VerificationStatusManual,
			"confidence_score":    1.0,
			"last_sync_at":        time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Master").First(&entry, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload cross-reference: %w", err)
	}
	return &entry, nil
}
