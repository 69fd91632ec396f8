package database

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
	"gorm.io/gorm"
)

// TriggerPrefix names every trigger this package manages.
const TriggerPrefix = "trg_sync_"

var triggerEvents = []struct {
	event string
	row   string
}{
	{"INSERT", "NEW"},
	{"UPDATE", "NEW"},
	{"DELETE", "OLD"},
}

// ChangeTrigger is one generated AFTER trigger on a source table.
type ChangeTrigger struct {
	Name   string
	Drop   string
	Create string
}

// EnsureChangeLog creates or upgrades the change-log table, including the
// attempts and last_error columns.
func EnsureChangeLog(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ChangeLogEntry{}); err != nil {
		return fmt.Errorf("migrating change log: %w", err)
	}
	return nil
}

// ChangeTriggers renders the MySQL triggers that append a pending change-log
// row for every insert, update and delete on the mapped source tables.
func ChangeTriggers(m config.Mapping) []ChangeTrigger {
	logTable := models.ChangeLogEntry{}.TableName()

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var triggers []ChangeTrigger
	for _, name := range names {
		em := m[name]
		for _, ev := range triggerEvents {
			trigger := TriggerPrefix + name + "_" + strings.ToLower(ev.event)
			triggers = append(triggers, ChangeTrigger{
				Name: trigger,
				Drop: "DROP TRIGGER IF EXISTS " + config.QuoteIdent(trigger),
				Create: fmt.Sprintf(
					"CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW "+
						"INSERT INTO %s (table_name, primary_key_value, change_type, change_time, status, attempts) "+
						"VALUES ('%s', CAST(%s.%s AS CHAR), '%s', NOW(3), '%s', 0)",
					config.QuoteIdent(trigger), ev.event, config.QuoteIdent(em.Table),
					config.QuoteIdent(logTable),
					name, ev.row, config.QuoteIdent(em.PrimaryKey), ev.event, models.ChangeStatusPending,
				),
			})
		}
	}
	return triggers
}

// InstallChangeTriggers (re)creates the change triggers on the operational
// store and checks them against information_schema.
func InstallChangeTriggers(db *gorm.DB, m config.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := EnsureChangeLog(db); err != nil {
		return err
	}

	triggers := ChangeTriggers(m)
	for _, t := range triggers {
		if err := db.Exec(t.Drop).Error; err != nil {
			return fmt.Errorf("dropping trigger %s: %w", t.Name, err)
		}
		if err := db.Exec(t.Create).Error; err != nil {
			return fmt.Errorf("creating trigger %s: %w", t.Name, err)
		}
		utils.InfoLogger.Printf("Installed trigger %s", t.Name)
	}

	var installed []struct {
		TriggerName string
		EventType   string
		TableName   string
		Timing      string
	}
	err := db.Raw(`
        SELECT
            TRIGGER_NAME as trigger_name,
            EVENT_MANIPULATION as event_type,
            EVENT_OBJECT_TABLE as table_name,
            ACTION_TIMING as timing
        FROM information_schema.triggers
        WHERE TRIGGER_SCHEMA = DATABASE() AND TRIGGER_NAME LIKE ?
    `, TriggerPrefix+"%").Scan(&installed).Error
	if err != nil {
		return fmt.Errorf("verifying triggers: %w", err)
	}

	found := make(map[string]bool, len(installed))
	for _, t := range installed {
		found[t.TriggerName] = true
		utils.InfoLogger.Printf("Trigger verified: %s (%s %s on %s)",
			t.TriggerName, t.Timing, t.EventType, t.TableName)
	}
	for _, t := range triggers {
		if !found[t.Name] {
			return fmt.Errorf("trigger %s missing after install", t.Name)
		}
	}
	return nil
}
