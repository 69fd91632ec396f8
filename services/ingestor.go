package services

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/retail-sync/metrics"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
)

// Ingestor is the watermark driver. It applies pending entries one at a
// time from the stored watermark on and advances the watermark past every
// entry that is resolved, as long as no earlier entry of the cycle is still
// pending.
type Ingestor struct {
	reader    *ChangeLogReader
	tracker   *SyncStatusTracker
	appliers  map[string]TableSyncApplier
	watermark *WatermarkStore
	metrics   *metrics.SyncMetrics
	cycles    atomic.Int64
}

func NewIngestor(reader *ChangeLogReader, tracker *SyncStatusTracker, appliers map[string]TableSyncApplier, watermark *WatermarkStore, m *metrics.SyncMetrics) *Ingestor {
	return &Ingestor{
		reader:    reader,
		tracker:   tracker,
		appliers:  appliers,
		watermark: watermark,
		metrics:   m,
	}
}

func (in *Ingestor) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		Cycle:     in.cycles.Add(1),
		Mode:      "watermark",
		StartedAt: time.Now(),
	}
	fail := func(err error) (CycleReport, error) {
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		in.metrics.RecordCycle(report.FinishedAt.Sub(report.StartedAt), report.Found, err)
		return report, err
	}

	in.warnUnsupported(ctx)

	wm, err := in.watermark.Get(ctx)
	if err != nil {
		return fail(err)
	}
	entries, err := in.reader.Pending(ctx, &wm)
	if err != nil {
		return fail(err)
	}
	report.Found = len(entries)

	groups := make(map[string]*GroupReport)
	var order []string
	groupFor := func(table string) *GroupReport {
		g, ok := groups[table]
		if !ok {
			g = &GroupReport{Table: table}
			groups[table] = g
			order = append(order, table)
		}
		return g
	}

	// blocked stops the watermark once any entry of this cycle stays
	// pending; deferred holds tables with such an entry.
	blocked := false
	deferred := make(map[string]bool)

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}

		g := groupFor(e.Table)
		g.Entries++

		if deferred[e.Table] {
			g.Deferred++
			continue
		}

		if in.ingestOne(ctx, e, g) {
			if !blocked {
				in.advance(ctx, e.ChangeTime, &wm)
			}
			continue
		}
		blocked = true
		deferred[e.Table] = true
	}

	for _, table := range order {
		g := *groups[table]
		report.add(g)
		in.metrics.RecordGroup(table, g.Applied, g.Skipped, g.Failed())
		in.metrics.RecordDeadLettered(table, g.DeadLettered)
	}
	report.Watermark = &wm
	report.FinishedAt = time.Now()
	in.metrics.RecordCycle(report.FinishedAt.Sub(report.StartedAt), report.Found, nil)

	utils.InfoLogger.WithFields(logrus.Fields{
		"cycle":     report.Cycle,
		"found":     report.Found,
		"applied":   report.Applied,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"watermark": wm.Format(time.RFC3339),
	}).Info("Ingest cycle finished")

	return report, nil
}

// warnUnsupported logs pending entries of tables without an applier. The
// watermark moves past them, so they are counted here every cycle instead.
func (in *Ingestor) warnUnsupported(ctx context.Context) {
	known := make([]string, 0, len(in.appliers))
	for table := range in.appliers {
		known = append(known, table)
	}
	sort.Strings(known)

	counts, err := in.reader.PendingOutside(ctx, known)
	if err != nil {
		utils.ErrorLogger.Errorf("Failed to count unsupported change-log entries: %v", err)
		return
	}
	for table, n := range counts {
		utils.InfoLogger.WithFields(logrus.Fields{"table": table, "pending": n}).
			Warn("Unsupported table in change log, entries left pending")
	}
}

// ingestOne applies a single entry and reports whether it is resolved, that
// is no longer pending for a reason that could let a later entry overtake it.
func (in *Ingestor) ingestOne(ctx context.Context, e models.ChangeLogEntry, g *GroupReport) bool {
	log := utils.InfoLogger.WithFields(logrus.Fields{"table": e.Table, "entry": e.ID})

	applier, ok := in.appliers[e.Table]
	if !ok {
		g.Unsupported = true
		log.Warn("Unsupported table in change log, leaving entry pending")
		return true
	}

	key, err := parseKey(e.PrimaryKeyValue)
	if err != nil {
		if err := in.tracker.MarkError(ctx, []int64{e.ID}, ErrMalformedKey); err != nil {
			utils.ErrorLogger.WithField("entry", e.ID).Errorf("Failed to dead-letter malformed entry: %v", err)
			return false
		}
		g.DeadLettered++
		log.Warn("Dead-lettered entry with malformed primary key")
		return true
	}

	res, err := applier.Apply(ctx, []int64{key})
	g.Fetched += res.Fetched
	if err != nil {
		g.Error = err.Error()
		if _, ok := faultKey(err); ok {
			dead, ferr := in.tracker.RecordFailure(ctx, []int64{e.ID}, err)
			if ferr != nil {
				utils.ErrorLogger.WithField("entry", e.ID).Errorf("Failed to record failure: %v", ferr)
			}
			g.DeadLettered += dead
		}
		utils.ErrorLogger.WithFields(logrus.Fields{"table": e.Table, "entry": e.ID}).
			Errorf("Entry failed, deferring the rest of the table: %v", err)
		return false
	}

	if res.Skipped > 0 {
		g.Skipped += res.Skipped
		dead, ferr := in.tracker.RecordFailure(ctx, []int64{e.ID}, ErrUnresolvedReference)
		if ferr != nil {
			utils.ErrorLogger.WithField("entry", e.ID).Errorf("Failed to record skipped entry: %v", ferr)
		}
		g.DeadLettered += dead
		return false
	}

	g.Applied += res.Applied
	if err := in.tracker.MarkSynced(ctx, []int64{e.ID}); err != nil {
		g.Error = err.Error()
		utils.ErrorLogger.WithField("entry", e.ID).Errorf("Failed to mark entry synced: %v", err)
		return false
	}
	g.Synced++
	return true
}

func (in *Ingestor) advance(ctx context.Context, t time.Time, wm *time.Time) {
	moved, err := in.watermark.Advance(ctx, t)
	if err != nil {
		utils.ErrorLogger.Errorf("Failed to advance watermark: %v", err)
		return
	}
	if moved {
		*wm = t.UTC()
		in.metrics.SetWatermark(*wm)
	}
}
