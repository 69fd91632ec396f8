package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultEpoch is the watermark before anything was ingested.
var DefaultEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// WatermarkStore persists the single ingest cursor in the analytical store.
type WatermarkStore struct {
	db    *gorm.DB
	epoch time.Time
}

func NewWatermarkStore(target *gorm.DB) *WatermarkStore {
	return &WatermarkStore{db: target, epoch: DefaultEpoch}
}

// Get returns the stored watermark, or the epoch when none was stored.
func (w *WatermarkStore) Get(ctx context.Context) (time.Time, error) {
	var state models.IngestState
	err := w.db.WithContext(ctx).First(&state, "id = ?", models.WatermarkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return w.epoch, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading watermark: %w", err)
	}
	return state.Watermark.UTC(), nil
}

// Advance moves the watermark to t. The cursor never moves backwards: a t
// that is not after the stored value is a no-op and reports false.
func (w *WatermarkStore) Advance(ctx context.Context, t time.Time) (bool, error) {
	t = t.UTC()
	advanced := false

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state models.IngestState
		err := tx.First(&state, "id = ?", models.WatermarkID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case !t.After(state.Watermark):
			return nil
		}

		advanced = true
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"watermark"}),
		}).Create(&models.IngestState{ID: models.WatermarkID, Watermark: t}).Error
	})
	if err != nil {
		return false, fmt.Errorf("advancing watermark: %w", err)
	}
	return advanced, nil
}
