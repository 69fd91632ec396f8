package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/retail-sync/metrics"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
)

// GroupReport is the outcome of one table-group in a cycle.
type GroupReport struct {
	Table        string `json:"table"`
	Entries      int    `json:"entries"`
	Fetched      int    `json:"fetched"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	Synced       int    `json:"synced"`
	Deferred     int    `json:"deferred,omitempty"`
	DeadLettered int64  `json:"dead_lettered,omitempty"`
	Unsupported  bool   `json:"unsupported,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Failed reports whether the group hit a store-level fault.
func (g GroupReport) Failed() bool {
	return g.Error != ""
}

// CycleReport summarises one run of a driver.
type CycleReport struct {
	Cycle      int64         `json:"cycle"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Found      int           `json:"found"`
	Applied    int           `json:"applied"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed_groups"`
	Groups     []GroupReport `json:"groups"`
	Watermark  *time.Time    `json:"watermark,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (r *CycleReport) add(g GroupReport) {
	r.Groups = append(r.Groups, g)
	r.Applied += g.Applied
	r.Skipped += g.Skipped
	if g.Failed() {
		r.Failed++
	}
}

// Synchronizer drives the change-log cycle: poll pending entries, group
// them by table, apply each group and mark the outcome.
type Synchronizer struct {
	reader   *ChangeLogReader
	tracker  *SyncStatusTracker
	appliers map[string]TableSyncApplier
	metrics  *metrics.SyncMetrics
	cycles   atomic.Int64
}

func NewSynchronizer(reader *ChangeLogReader, tracker *SyncStatusTracker, appliers map[string]TableSyncApplier, m *metrics.SyncMetrics) *Synchronizer {
	return &Synchronizer{
		reader:   reader,
		tracker:  tracker,
		appliers: appliers,
		metrics:  m,
	}
}

// RunCycle runs one poll-group-apply-mark cycle. The returned error is only
// set when the change log could not be read; group failures are reported in
// the CycleReport and never abort the other groups.
func (s *Synchronizer) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		Cycle:     s.cycles.Add(1),
		Mode:      "changelog",
		StartedAt: time.Now(),
	}

	entries, err := s.reader.Pending(ctx, nil)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		s.metrics.RecordCycle(report.FinishedAt.Sub(report.StartedAt), 0, err)
		return report, err
	}
	report.Found = len(entries)

	groups := GroupByTable(entries)
	for _, table := range OrderedTables(groups, entries) {
		g := s.applyGroup(ctx, table, groups[table])
		report.add(g)
		s.metrics.RecordGroup(table, g.Applied, g.Skipped, g.Failed())
		s.metrics.RecordDeadLettered(table, g.DeadLettered)
	}

	report.FinishedAt = time.Now()
	s.metrics.RecordCycle(report.FinishedAt.Sub(report.StartedAt), report.Found, nil)

	utils.InfoLogger.WithFields(logrus.Fields{
		"cycle":   report.Cycle,
		"found":   report.Found,
		"applied": report.Applied,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("Sync cycle finished")

	return report, nil
}

// applyGroup applies one table-group. Entries of a group that fails with a
// store fault all stay pending, and only the entries of the failing key are
// charged an attempt. Otherwise entries whose record was skipped stay pending
// and the rest are marked synced together.
func (s *Synchronizer) applyGroup(ctx context.Context, table string, entries []models.ChangeLogEntry) GroupReport {
	g := GroupReport{Table: table, Entries: len(entries)}
	log := utils.InfoLogger.WithFields(logrus.Fields{"table": table, "entries": len(entries)})

	applier, ok := s.appliers[table]
	if !ok {
		g.Unsupported = true
		log.Warn("Unsupported table in change log, leaving entries pending")
		return g
	}

	batch := parseKeys(entries)
	if len(batch.malformed) > 0 {
		if err := s.tracker.MarkError(ctx, batch.malformed, ErrMalformedKey); err != nil {
			utils.ErrorLogger.WithField("table", table).Errorf("Failed to dead-letter malformed entries: %v", err)
		} else {
			g.DeadLettered += int64(len(batch.malformed))
			log.WithField("count", len(batch.malformed)).Warn("Dead-lettered entries with malformed primary key")
		}
	}
	if len(batch.keys) == 0 {
		return g
	}

	res, err := applier.Apply(ctx, batch.keys)
	g.Fetched = res.Fetched
	if err != nil {
		g.Error = err.Error()
		dead, ferr := s.tracker.RecordFailure(ctx, batch.failedIDs(err), err)
		if ferr != nil {
			utils.ErrorLogger.WithField("table", table).Errorf("Failed to record group failure: %v", ferr)
		}
		g.DeadLettered += dead
		utils.ErrorLogger.WithFields(logrus.Fields{
			"table":   table,
			"entries": len(entries),
		}).Errorf("Table group failed, entries stay pending: %v", err)
		return g
	}
	g.Applied = res.Applied
	g.Skipped = res.Skipped

	skippedIDs := batch.idsFor(res.SkippedKeys)
	if len(skippedIDs) > 0 {
		dead, ferr := s.tracker.RecordFailure(ctx, skippedIDs, ErrUnresolvedReference)
		if ferr != nil {
			utils.ErrorLogger.WithField("table", table).Errorf("Failed to record skipped entries: %v", ferr)
		}
		g.DeadLettered += dead
	}

	syncedIDs := batch.idsExcept(res.SkippedKeys)
	if err := s.tracker.MarkSynced(ctx, syncedIDs); err != nil {
		g.Error = err.Error()
		utils.ErrorLogger.WithField("table", table).Errorf("Failed to mark entries synced: %v", err)
		return g
	}
	g.Synced = len(syncedIDs)

	log.WithFields(logrus.Fields{
		"applied": g.Applied,
		"skipped": g.Skipped,
		"synced":  g.Synced,
	}).Info("Table group applied")
	return g
}

// keyBatch maps the parsed primary keys of a group back to entry ids.
type keyBatch struct {
	keys      []int64
	entryIDs  map[int64][]int64
	malformed []int64
}

func parseKeys(entries []models.ChangeLogEntry) keyBatch {
	b := keyBatch{entryIDs: make(map[int64][]int64)}
	for _, e := range entries {
		key, err := parseKey(e.PrimaryKeyValue)
		if err != nil {
			b.malformed = append(b.malformed, e.ID)
			continue
		}
		if _, seen := b.entryIDs[key]; !seen {
			b.keys = append(b.keys, key)
		}
		b.entryIDs[key] = append(b.entryIDs[key], e.ID)
	}
	return b
}

// failedIDs returns the entries of the key a group failure is attributed
// to. Faults not tied to one record charge nobody.
func (b keyBatch) failedIDs(err error) []int64 {
	key, ok := faultKey(err)
	if !ok {
		return nil
	}
	return b.entryIDs[key]
}

func (b keyBatch) idsFor(keys []int64) []int64 {
	var ids []int64
	for _, k := range keys {
		ids = append(ids, b.entryIDs[k]...)
	}
	return ids
}

func (b keyBatch) idsExcept(keys []int64) []int64 {
	excluded := make(map[int64]bool, len(keys))
	for _, k := range keys {
		excluded[k] = true
	}
	var ids []int64
	for _, k := range b.keys {
		if !excluded[k] {
			ids = append(ids, b.entryIDs[k]...)
		}
	}
	return ids
}

var errEmptyKey = errors.New("empty key")

// parseKey accepts a decimal integer id, surrounding blanks allowed.
func parseKey(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errEmptyKey
	}
	return strconv.ParseInt(s, 10, 64)
}
