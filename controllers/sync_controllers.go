package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/events"
	"github.com/yeremiapane/retail-sync/services"
	"github.com/yeremiapane/retail-sync/utils"
	"gorm.io/gorm"
)

// SchedulerControl is the part of the scheduler the operator API drives.
type SchedulerControl interface {
	State() string
	LastReport() (services.CycleReport, bool)
	TriggerNow() bool
}

type SyncController struct {
	Source    *gorm.DB
	Target    *gorm.DB
	Scheduler SchedulerControl
	Reader    *services.ChangeLogReader
	Tracker   *services.SyncStatusTracker
	Watermark *services.WatermarkStore
	Hub       *events.Hub
	Mode      string
}

// SyncStatus is the body of GET /api/sync/status.
type SyncStatus struct {
	Mode       string                `json:"mode"`
	State      string                `json:"state"`
	LastReport *services.CycleReport `json:"last_report,omitempty"`
	ChangeLog  map[string]int64      `json:"change_log,omitempty"`
	Watermark  *time.Time            `json:"watermark,omitempty"`
}

// Health pings both stores.
func (sc *SyncController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	stores := map[string]string{
		"operational": pingStore(ctx, sc.Source),
		"analytical":  pingStore(ctx, sc.Target),
	}
	for _, state := range stores {
		if state != "up" {
			utils.RespondJSON(c, http.StatusServiceUnavailable, "unhealthy", stores)
			return
		}
	}
	utils.RespondJSON(c, http.StatusOK, "healthy", stores)
}

func pingStore(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return "not configured"
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err.Error()
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err.Error()
	}
	return "up"
}

// Status reports the scheduler state, the last cycle and the change-log
// backlog.
func (sc *SyncController) Status(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "sync status", sc.snapshot(c.Request.Context()))
}

func (sc *SyncController) snapshot(ctx context.Context) SyncStatus {
	status := SyncStatus{Mode: sc.Mode, State: sc.Scheduler.State()}

	if last, ok := sc.Scheduler.LastReport(); ok {
		status.LastReport = &last
	}
	if sc.Reader != nil {
		counts, err := sc.Reader.StatusCounts(ctx)
		if err != nil {
			utils.ErrorLogger.Errorf("Failed to count change log: %v", err)
		} else {
			status.ChangeLog = counts
		}
	}
	if sc.Mode == config.ModeWatermark && sc.Watermark != nil {
		wm, err := sc.Watermark.Get(ctx)
		if err != nil {
			utils.ErrorLogger.Errorf("Failed to read watermark: %v", err)
		} else {
			status.Watermark = &wm
		}
	}
	return status
}

// Trigger asks the scheduler for an immediate cycle.
func (sc *SyncController) Trigger(c *gin.Context) {
	if !sc.Scheduler.TriggerNow() {
		utils.RespondError(c, http.StatusConflict, errors.New("a sync cycle is already queued"))
		return
	}
	utils.InfoLogger.WithField("subject", c.GetString("subject")).Info("Manual sync cycle requested")
	utils.RespondJSON(c, http.StatusAccepted, "sync cycle queued", gin.H{"state": sc.Scheduler.State()})
}

// DeadLetters lists change-log entries in status error.
func (sc *SyncController) DeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
		return
	}

	entries, err := sc.Reader.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		utils.RespondError(c, http.StatusServiceUnavailable, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "dead-lettered entries", entries)
}

// Requeue moves dead-lettered entries back to pending.
func (sc *SyncController) Requeue(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	n, err := sc.Tracker.Requeue(c.Request.Context(), req.IDs)
	if err != nil {
		utils.RespondError(c, http.StatusServiceUnavailable, err)
		return
	}
	utils.InfoLogger.WithField("subject", c.GetString("subject")).Infof("Requeued %d dead-lettered entries", n)
	utils.RespondJSON(c, http.StatusOK, "entries requeued", gin.H{"requeued": n})
}

// EventsWS streams cycle reports over a websocket. The first message is the
// current status.
func (sc *SyncController) EventsWS(c *gin.Context) {
	subject := c.GetString("subject")
	hello := sc.snapshot(c.Request.Context())
	if err := sc.Hub.Serve(c.Writer, c.Request, subject, hello); err != nil {
		utils.ErrorLogger.Errorf("Websocket upgrade failed: %v", err)
	}
}
