package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yeremiapane/retail-sync/utils"
)

// Scheduler states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// CycleRunner runs one sync cycle. Synchronizer and Ingestor implement it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Scheduler runs a CycleRunner on a cron schedule, one cycle at a time,
// until it is stopped. A cycle that fails is logged and the scheduler goes
// back to idle.
type Scheduler struct {
	runner   CycleRunner
	schedule cron.Schedule

	trigger  chan struct{}
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	mu       sync.RWMutex
	state    string
	last     *CycleReport
	onReport func(CycleReport)
}

func NewScheduler(runner CycleRunner, schedule cron.Schedule) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

// OnReport registers fn to receive every finished cycle report. It must be
// called before Start.
func (s *Scheduler) OnReport(fn func(CycleReport)) {
	s.onReport = fn
}

// Start runs the scheduler loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop(ctx)
}

// Stop ends the loop and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.done
	}
}

// TriggerNow asks for an immediate cycle. It returns false when a request
// is already queued.
func (s *Scheduler) TriggerNow() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastReport returns the report of the last finished cycle.
func (s *Scheduler) LastReport() (CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.runCycle(ctx)

	for {
		now := time.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-timer.C:
			s.runCycle(ctx)
		case <-s.trigger:
			timer.Stop()
			s.runCycle(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.setState(StateRunning)
	defer s.setState(StateIdle)

	report, err := s.safeRun(ctx)
	if err != nil {
		utils.ErrorLogger.Errorf("Sync cycle failed: %v", err)
	}

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	if s.onReport != nil {
		s.onReport(report)
	}
}

func (s *Scheduler) safeRun(ctx context.Context) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			report.Error = err.Error()
			report.FinishedAt = time.Now()
		}
	}()
	return s.runner.RunCycle(ctx)
}

func (s *Scheduler) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
