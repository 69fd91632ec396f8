package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/utils"
	"gorm.io/gorm"
)

// DefaultBackfillPageSize is the number of primary keys applied per page.
const DefaultBackfillPageSize = 500

// Backfill copies every source row of the known tables into the analytical
// store through the same appliers the synchronizer uses. It does not touch
// the change log.
type Backfill struct {
	source   *gorm.DB
	mapping  config.Mapping
	appliers map[string]TableSyncApplier
	skips    *SkipLog
	pageSize int
}

func NewBackfill(source *gorm.DB, mapping config.Mapping, appliers map[string]TableSyncApplier, skips *SkipLog, pageSize int) *Backfill {
	if pageSize <= 0 {
		pageSize = DefaultBackfillPageSize
	}
	return &Backfill{
		source:   source,
		mapping:  mapping,
		appliers: appliers,
		skips:    skips,
		pageSize: pageSize,
	}
}

// Run truncates the remediation logs and walks the tables in dependency
// order. It stops at the first store fault.
func (b *Backfill) Run(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Mode: "backfill", StartedAt: time.Now()}

	if err := b.skips.Truncate(config.ApplyOrder...); err != nil {
		report.Error = err.Error()
		return report, err
	}

	for _, table := range config.ApplyOrder {
		applier, ok := b.appliers[table]
		if !ok {
			continue
		}
		g, err := b.runTable(ctx, table, applier)
		report.add(g)
		report.Found += g.Entries
		if err != nil {
			report.Error = err.Error()
			report.FinishedAt = time.Now()
			return report, err
		}
	}

	report.FinishedAt = time.Now()
	utils.InfoLogger.WithFields(logrus.Fields{
		"rows":     report.Found,
		"applied":  report.Applied,
		"skipped":  report.Skipped,
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Backfill finished")
	return report, nil
}

func (b *Backfill) runTable(ctx context.Context, table string, applier TableSyncApplier) (GroupReport, error) {
	g := GroupReport{Table: table}
	em := b.mapping[table]
	pk := config.QuoteIdent(em.PrimaryKey)

	last := int64(math.MinInt64)
	for {
		var keys []int64
		err := b.source.WithContext(ctx).
			Table(em.Table).
			Where(pk+" > ?", last).
			Order(pk+" ASC").
			Limit(b.pageSize).
			Pluck(em.PrimaryKey, &keys).Error
		if err != nil {
			err = fmt.Errorf("%w: paging %s: %v", ErrSourceUnavailable, table, err)
			g.Error = err.Error()
			return g, err
		}
		if len(keys) == 0 {
			break
		}

		res, err := applier.Apply(ctx, keys)
		g.Entries += len(keys)
		g.Fetched += res.Fetched
		g.Applied += res.Applied
		g.Skipped += res.Skipped
		if err != nil {
			g.Error = err.Error()
			return g, err
		}

		utils.InfoLogger.WithFields(logrus.Fields{
			"table":   table,
			"rows":    g.Entries,
			"applied": g.Applied,
			"skipped": g.Skipped,
		}).Info("Backfill page applied")

		last = keys[len(keys)-1]
		if len(keys) < b.pageSize {
			break
		}
	}
	return g, nil
}
