package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/gorm"
)

// DefaultBatchSize caps one poll of the change log.
const DefaultBatchSize = 1000

// ChangeLogReader polls the change log for pending entries.
type ChangeLogReader struct {
	db        *gorm.DB
	batchSize int
}

func NewChangeLogReader(db *gorm.DB, batchSize int) *ChangeLogReader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChangeLogReader{db: db, batchSize: batchSize}
}

// Pending returns up to batchSize pending entries ordered by change_time.
// A non-nil since restricts the scan to change_time >= *since.
func (r *ChangeLogReader) Pending(ctx context.Context, since *time.Time) ([]models.ChangeLogEntry, error) {
	var entries []models.ChangeLogEntry

	q := r.db.WithContext(ctx).
		Where("status = ?", models.ChangeStatusPending)
	if since != nil {
		q = q.Where("change_time >= ?", *since)
	}

	if err := q.Order("change_time ASC").
		Order("id ASC").
		Limit(r.batchSize).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("%w: reading change log: %v", ErrSourceUnavailable, err)
	}
	return entries, nil
}

// DeadLetters returns up to limit entries in status error, newest first.
func (r *ChangeLogReader) DeadLetters(ctx context.Context, limit int) ([]models.ChangeLogEntry, error) {
	if limit <= 0 || limit > r.batchSize {
		limit = r.batchSize
	}
	var entries []models.ChangeLogEntry
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.ChangeStatusError).
		Order("change_time DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("%w: reading dead letters: %v", ErrSourceUnavailable, err)
	}
	return entries, nil
}

// StatusCounts returns the number of change-log entries per status.
func (r *ChangeLogReader) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ChangeLogEntry{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: counting change log: %v", ErrSourceUnavailable, err)
	}

	counts := map[string]int64{
		models.ChangeStatusPending: 0,
		models.ChangeStatusSynced:  0,
		models.ChangeStatusError:   0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// PendingOutside counts pending entries per table for tables not in known.
func (r *ChangeLogReader) PendingOutside(ctx context.Context, known []string) (map[string]int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.ChangeLogEntry{}).
		Where("status = ?", models.ChangeStatusPending)
	if len(known) > 0 {
		q = q.Where("table_name NOT IN ?", known)
	}

	var rows []struct {
		TableName string
		Total     int64
	}
	if err := q.Select("table_name, COUNT(*) AS total").
		Group("table_name").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: counting unknown tables: %v", ErrSourceUnavailable, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TableName] = row.Total
	}
	return counts, nil
}

// SyncStatusTracker records the outcome of applying change-log entries.
type SyncStatusTracker struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// NewSyncStatusTracker builds a tracker. maxAttempts of 0 disables the
// dead-letter threshold.
func NewSyncStatusTracker(db *gorm.DB, maxAttempts int) *SyncStatusTracker {
	return &SyncStatusTracker{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// MarkSynced flags all ids as synced in one update.
func (t *SyncStatusTracker) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).
		Model(&models.ChangeLogEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     models.ChangeStatusSynced,
			"synced_at":  t.now(),
			"last_error": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: marking %d entries synced: %v", ErrSourceUnavailable, len(ids), err)
	}
	return nil
}

// RecordFailure leaves ids pending, bumps their attempt counter and stores
// cause. Entries reaching the attempt threshold move to status error. It
// returns how many entries were dead-lettered.
func (t *SyncStatusTracker) RecordFailure(ctx context.Context, ids []int64, cause error) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deadLettered int64
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ChangeLogEntry{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": truncateError(cause),
			}).Error; err != nil {
			return err
		}

		if t.maxAttempts <= 0 {
			return nil
		}

		res := tx.Model(&models.ChangeLogEntry{}).
			Where("id IN ? AND status = ? AND attempts >= ?", ids, models.ChangeStatusPending, t.maxAttempts).
			Update("status", models.ChangeStatusError)
		deadLettered = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: recording failure for %d entries: %v", ErrSourceUnavailable, len(ids), err)
	}
	return deadLettered, nil
}

// MarkError dead-letters ids immediately.
func (t *SyncStatusTracker) MarkError(ctx context.Context, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).
		Model(&models.ChangeLogEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     models.ChangeStatusError,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncateError(cause),
		}).Error
	if err != nil {
		return fmt.Errorf("%w: dead-lettering %d entries: %v", ErrSourceUnavailable, len(ids), err)
	}
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

// Requeue moves dead-lettered entries back to pending with a fresh attempt
// counter. Only entries currently in status error are touched.
func (t *SyncStatusTracker) Requeue(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := t.db.WithContext(ctx).
		Model(&models.ChangeLogEntry{}).
		Where("id IN ? AND status = ?", ids, models.ChangeStatusError).
		Updates(map[string]interface{}{
			"status":   models.ChangeStatusPending,
			"attempts": 0,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: requeueing %d entries: %v", ErrSourceUnavailable, len(ids), res.Error)
	}
	return res.RowsAffected, nil
}
