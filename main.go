package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/controllers"
	"github.com/yeremiapane/retail-sync/database"
	"github.com/yeremiapane/retail-sync/events"
	"github.com/yeremiapane/retail-sync/metrics"
	"github.com/yeremiapane/retail-sync/router"
	"github.com/yeremiapane/retail-sync/services"
	"github.com/yeremiapane/retail-sync/utils"
	"gorm.io/gorm"
)

func main() {
	backfill := flag.Bool("backfill", false, "copy every source row once and exit")
	installTriggers := flag.Bool("install-triggers", false, "install change-log triggers on the operational store and exit")
	migrate := flag.Bool("migrate", false, "create or upgrade the analytical schema and exit")
	issueToken := flag.String("issue-token", "", "print an operator token for this subject and exit")
	role := flag.String("role", utils.RoleAdmin, "role of the token printed by -issue-token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load configuration: %v", err)
	}
	utils.InitLogger(cfg.LogLevel)

	if *issueToken != "" {
		tok, err := utils.GenerateToken([]byte(cfg.JWTSecret), *issueToken, *role, *ttl)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	if err := cfg.Validate(); err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	mapping, err := config.LoadMapping(cfg.MappingFile)
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid source mapping: %v", err)
	}

	source, err := config.InitSourceDB(cfg, utils.InfoLogger)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to operational store: %v", err)
	}
	target, err := config.InitTargetDB(cfg, utils.InfoLogger)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to analytical store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *installTriggers:
		if err := database.InstallChangeTriggers(source, mapping); err != nil {
			utils.ErrorLogger.Fatalf("Failed to install triggers: %v", err)
		}
		utils.InfoLogger.Println("Change-log triggers installed.")
		return
	case *migrate:
		if err := database.EnsureTargetSchema(target); err != nil {
			utils.ErrorLogger.Fatalf("Failed to migrate analytical store: %v", err)
		}
		utils.InfoLogger.Println("Analytical schema migrated.")
		return
	}

	skips := services.NewSkipLog(cfg.SkipLogDir)
	appliers := services.NewAppliers(source, target, mapping, skips)

	if *backfill {
		runBackfill(ctx, source, target, mapping, appliers, skips, cfg.BackfillPageSize)
		return
	}

	runSynchronizer(ctx, cfg, source, target, appliers)
}

func runBackfill(ctx context.Context, source, target *gorm.DB, mapping config.Mapping, appliers map[string]services.TableSyncApplier, skips *services.SkipLog, pageSize int) {
	if err := database.EnsureTargetSchema(target); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate analytical store: %v", err)
	}
	report, err := services.NewBackfill(source, mapping, appliers, skips, pageSize).Run(ctx)
	if err != nil {
		utils.ErrorLogger.Fatalf("Backfill stopped after %d applied rows: %v", report.Applied, err)
	}
	for _, g := range report.Groups {
		utils.InfoLogger.Printf("Backfill %s: %d rows, %d applied, %d skipped", g.Table, g.Entries, g.Applied, g.Skipped)
	}
}

func runSynchronizer(ctx context.Context, cfg *config.Config, source, target *gorm.DB, appliers map[string]services.TableSyncApplier) {
	if err := database.EnsureChangeLog(source); err != nil {
		utils.ErrorLogger.Fatalf("Failed to prepare change log: %v", err)
	}
	if err := database.EnsureTargetSchema(target); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate analytical store: %v", err)
	}

	syncMetrics := metrics.NewSyncMetrics()
	reader := services.NewChangeLogReader(source, cfg.BatchSize)
	tracker := services.NewSyncStatusTracker(source, cfg.MaxAttempts)
	watermark := services.NewWatermarkStore(target)

	var runner services.CycleRunner
	if cfg.Mode == config.ModeWatermark {
		runner = services.NewIngestor(reader, tracker, appliers, watermark, syncMetrics)
	} else {
		runner = services.NewSynchronizer(reader, tracker, appliers, syncMetrics)
	}

	schedule, err := cfg.CronSchedule()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid schedule: %v", err)
	}

	hub := events.NewHub()
	scheduler := services.NewScheduler(runner, schedule)
	scheduler.OnReport(func(r services.CycleReport) {
		hub.BroadcastCycle(r)
	})
	scheduler.Start(ctx)
	utils.InfoLogger.WithField("mode", cfg.Mode).Info("Synchronizer started")

	var srv *http.Server
	if cfg.HTTPPort != "" {
		if cfg.GinMode == "release" {
			gin.SetMode(gin.ReleaseMode)
		}
		ctrl := &controllers.SyncController{
			Source:    source,
			Target:    target,
			Scheduler: scheduler,
			Reader:    reader,
			Tracker:   tracker,
			Watermark: watermark,
			Hub:       hub,
			Mode:      cfg.Mode,
		}
		handler := router.SetupRouter(ctrl, router.Options{
			JWTSecret:  []byte(cfg.JWTSecret),
			CORSOrigin: cfg.CORSOrigin,
		})
		srv = &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			utils.InfoLogger.Printf("Listening on port %s", cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				utils.ErrorLogger.Fatalf("HTTP server failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.ErrorLogger.Errorf("HTTP shutdown: %v", err)
		}
	}
	scheduler.Stop()
	utils.InfoLogger.Println("Synchronizer stopped.")
}
