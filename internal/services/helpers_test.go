// internal/services/helpers_test.go
package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

// nopAlerts discards all events.
type nopAlerts struct{}

func (nopAlerts) Info(*uuid.UUID, string, string, models.JSONB)    {}
func (nopAlerts) Warning(*uuid.UUID, string, string, models.JSONB) {}
func (nopAlerts) Error(*uuid.UUID, string, string, models.JSONB)   {}
func (nopAlerts) Fatal(*uuid.UUID, string, string, models.JSONB)   {}

// recordingAlerts captures emitted events for assertions.
type recordingAlerts struct {
	mu     sync.Mutex
	events []recordedAlert
}

type recordedAlert struct {
	Level   models.AlertLevel
	Source  string
	Message string
	Context models.JSONB
}

func (r *recordingAlerts) record(level models.AlertLevel, source, message string, context models.JSONB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedAlert{Level: level, Source: source, Message: message, Context: context})
}

func (r *recordingAlerts) Info(_ *uuid.UUID, source, message string, context models.JSONB) {
	r.record(models.AlertLevelInfo, source, message, context)
}

func (r *recordingAlerts) Warning(_ *uuid.UUID, source, message string, context models.JSONB) {
	r.record(models.AlertLevelWarning, source, message, context)
}

func (r *recordingAlerts) Error(_ *uuid.UUID, source, message string, context models.JSONB) {
	r.record(models.AlertLevelError, source, message, context)
}

func (r *recordingAlerts) Fatal(_ *uuid.UUID, source, message string, context models.JSONB) {
	r.record(models.AlertLevelFatal, source, message, context)
}

func (r *recordingAlerts) countLevel(level models.AlertLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Level == level {
			n++
		}
	}
	return n
}

// fakeSleeper records requested delays without sleeping.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (f *fakeSleeper) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
}

func (f *fakeSleeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slept)
}

// fakeClock advances by step on every call to Now.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newFakeClock(start time.Time, step time.Duration) *fakeClock {
	return &fakeClock{current: start, step: step}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.MasterProduct{},
		&models.CrossReference{},
		&models.ExtractedRecord{},
		&models.ReportJob{},
		&models.InventoryRecord{},
		&models.PipelineRun{},
		&models.PipelineAlert{},
		&models.WarehouseAlias{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}
