package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SkipLog appends skipped source records to one file per table
// (skipped_<table>.log), one JSON document per line, for manual review.
// Nothing reads these files back automatically.
type SkipLog struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

type skipLine struct {
	SkippedAt time.Time   `json:"skipped_at"`
	Reason    string      `json:"reason"`
	Record    interface{} `json:"record"`
}

func NewSkipLog(dir string) *SkipLog {
	if dir == "" {
		dir = "."
	}
	return &SkipLog{dir: dir, now: time.Now}
}

// Path returns the remediation file of table.
func (s *SkipLog) Path(table string) string {
	return filepath.Join(s.dir, "skipped_"+table+".log")
}

// Record appends record to the table's remediation file.
func (s *SkipLog) Record(table, reason string, record interface{}) error {
	if s == nil {
		return nil
	}

	line, err := json.Marshal(skipLine{
		SkippedAt: s.now().UTC(),
		Reason:    reason,
		Record:    record,
	})
	if err != nil {
		return fmt.Errorf("encoding skipped %s record: %w", table, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating skip log dir: %w", err)
	}
	f, err := os.OpenFile(s.Path(table), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening skip log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing skip log: %w", err)
	}
	return nil
}

// Truncate empties the remediation files of tables. Only the one-shot
// backfill does this.
func (s *SkipLog) Truncate(tables ...string) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating skip log dir: %w", err)
	}
	for _, table := range tables {
		f, err := os.OpenFile(s.Path(table), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("truncating skip log %s: %w", table, err)
		}
		f.Close()
	}
	return nil
}
