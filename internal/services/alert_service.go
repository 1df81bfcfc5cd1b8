// internal/services/alert_service.go
package services

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

// AlertSink receives structured events from every pipeline component. Sink
// calls never fail back into the caller: persistence errors are logged and
// swallowed.
type AlertSink interface {
	Info(runID *uuid.UUID, source, message string, context models.JSONB)
	Warning(runID *uuid.UUID, source, message string, context models.JSONB)
	Error(runID *uuid.UUID, source, message string, context models.JSONB)
	Fatal(runID *uuid.UUID, source, message string, context models.JSONB)
}

type AlertService struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewAlertService(db *gorm.DB, log *logrus.Logger) *AlertService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AlertService{
		db:  db,
		log: log,
	}
}

func (s *AlertService) Info(runID *uuid.UUID, source, message string, context models.JSONB) {
	s.emit(models.AlertLevelInfo, runID, source, message, context)
}

func (s *AlertService) Warning(runID *uuid.UUID, source, message string, context models.JSONB) {
	s.emit(models.AlertLevelWarning, runID, source, message, context)
}

func (s *AlertService) Error(runID *uuid.UUID, source, message string, context models.JSONB) {
	s.emit(models.AlertLevelError, runID, source, message, context)
}

func (s *AlertService) Fatal(runID *uuid.UUID, source, message string, context models.JSONB) {
	s.emit(models.AlertLevelFatal, runID, source, message, context)
}

func (s *AlertService) emit(level models.AlertLevel, runID *uuid.UUID, source, message string, context models.JSONB) {
	entry := s.log.WithFields(logrus.Fields{
		"source":  source,
		"context": context,
	})
	if runID != nil {
		entry = entry.WithField("run_id", runID.String())
	}

	switch level {
	case models.AlertLevelInfo:
		entry.Info(message)
	case models.AlertLevelWarning:
		entry.Warn(message)
	default:
		entry.Error(message)
	}

	// INFO stays log-only; WARNING and above are persisted for triage.
	if level == models.AlertLevelInfo || s.db == nil {
		return
	}

	alert := &models.PipelineAlert{
		RunID:   runID,
		Level:   level,
		Source:  source,
		Message: message,
		Context: context,
	}

	if err := s.db.Create(alert).Error; err != nil {
		s.log.WithError(err).Error("Failed to persist pipeline alert")
	}
}
