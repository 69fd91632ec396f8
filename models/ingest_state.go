package models

import "time"

// WatermarkID is the key of the single cursor row.
const WatermarkID = "main"

type IngestState struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(32)"`
	Watermark time.Time `gorm:"column:watermark;not null"`
}

func (IngestState) TableName() string {
	return "ingest_state"
}
