package models

import (
	"time"
)

// Status values of a change-log entry.
const (
	ChangeStatusPending = "pending"
	ChangeStatusSynced  = "synced"
	ChangeStatusError   = "error"
)

// ChangeLogEntry is one row of the operational store's change log. Rows are
// written by triggers; the synchronizer only updates status, synced_at,
// attempts and last_error.
type ChangeLogEntry struct {
	ID              int64      `gorm:"primaryKey;column:id" json:"id"`
	Table           string     `gorm:"column:table_name;type:varchar(64);not null;index:idx_sync_status_time,priority:2" json:"table_name"`
	PrimaryKeyValue string     `gorm:"column:primary_key_value;type:varchar(64);not null" json:"primary_key_value"`
	ChangeType      *string    `gorm:"column:change_type;type:varchar(16)" json:"change_type,omitempty"`
	ChangeTime      time.Time  `gorm:"column:change_time;not null;index:idx_sync_status_time,priority:3" json:"change_time"`
	Status          string     `gorm:"column:status;type:varchar(16);not null;default:'pending';index:idx_sync_status_time,priority:1" json:"status"`
	SyncedAt        *time.Time `gorm:"column:synced_at" json:"synced_at,omitempty"`
	Attempts        int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError       *string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
}

func (ChangeLogEntry) TableName() string {
	return "log_table_sync_change"
}
