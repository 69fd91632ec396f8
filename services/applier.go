package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableSyncApplier copies the current source state of a batch of primary
// keys of one table into the analytical store.
//
// Apply returns a *TargetWriteError on upsert faults and wraps
// ErrSourceUnavailable on source faults. A reference that cannot be resolved
// is not an error: the record is skipped and its key reported in
// ApplyResult.SkippedKeys.
type TableSyncApplier interface {
	Table() string
	Apply(ctx context.Context, keys []int64) (ApplyResult, error)
}

// ApplyResult summarises one Apply call. Fetched counts source rows found;
// keys without a source row are neither applied nor skipped.
type ApplyResult struct {
	Table       string  `json:"table"`
	Fetched     int     `json:"fetched"`
	Applied     int     `json:"applied"`
	Skipped     int     `json:"skipped"`
	SkippedKeys []int64 `json:"skipped_keys,omitempty"`
}

func (r *ApplyResult) skip(key int64) {
	r.Skipped++
	r.SkippedKeys = append(r.SkippedKeys, key)
}

// applierDeps is what every applier needs.
type applierDeps struct {
	source   *gorm.DB
	target   *gorm.DB
	mapping  config.Mapping
	resolver *KeyResolver
	skips    *SkipLog
}

// NewAppliers builds the appliers of all known tables keyed by table name.
func NewAppliers(source, target *gorm.DB, mapping config.Mapping, skips *SkipLog) map[string]TableSyncApplier {
	deps := applierDeps{
		source:   source,
		target:   target,
		mapping:  mapping,
		resolver: NewKeyResolver(target),
		skips:    skips,
	}

	appliers := []TableSyncApplier{
		&CustomerApplier{deps},
		&ProductApplier{deps},
		&ReceiptApplier{deps},
		&SaleApplier{deps},
	}

	byTable := make(map[string]TableSyncApplier, len(appliers))
	for _, a := range appliers {
		byTable[a.Table()] = a
	}
	return byTable
}

// fetchSourceRows loads the source rows of keys through the table's mapping
// and returns them in the order of keys. Missing keys are dropped.
func fetchSourceRows[T any](ctx context.Context, d applierDeps, table string, keys []int64, keyOf func(T) int64) ([]T, error) {
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	em, ok := d.mapping[table]
	if !ok {
		return nil, fmt.Errorf("no source mapping for table %s", table)
	}

	var rows []T
	err := d.source.WithContext(ctx).
		Table(em.Table).
		Select(d.mapping.SelectList(table)).
		Where(config.QuoteIdent(em.PrimaryKey)+" IN ?", keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrSourceUnavailable, table, err)
	}

	byKey := make(map[int64]T, len(rows))
	for _, row := range rows {
		byKey[keyOf(row)] = row
	}

	ordered := make([]T, 0, len(rows))
	for _, k := range keys {
		if row, ok := byKey[k]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// upsert inserts value or, on a primary key conflict, overwrites every
// non-key column.
func upsert(ctx context.Context, db *gorm.DB, table, pk string, key int64, value interface{}) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: pk}},
			UpdateAll: true,
		}).
		Create(value).Error
	if err != nil {
		return &TargetWriteError{Table: table, Key: key, Err: err}
	}
	return nil
}

// skipRecord counts key as skipped and appends record to the remediation log.
func (d applierDeps) skipRecord(res *ApplyResult, key int64, reason string, record interface{}) {
	res.skip(key)

	fields := logrus.Fields{"table": res.Table, "id": key, "reason": reason}
	utils.InfoLogger.WithFields(fields).Warn("Skipping record with unresolved reference")

	if err := d.skips.Record(res.Table, reason, record); err != nil {
		utils.ErrorLogger.WithFields(fields).Errorf("Failed to write skip log: %v", err)
	}
}
