package services

import (
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
)

// GroupByTable partitions entries by table name. Each group keeps the
// relative order of the input.
func GroupByTable(entries []models.ChangeLogEntry) map[string][]models.ChangeLogEntry {
	groups := make(map[string][]models.ChangeLogEntry)
	for _, e := range entries {
		groups[e.Table] = append(groups[e.Table], e)
	}
	return groups
}

// OrderedTables returns the table names of groups with the known tables
// first, in dependency order, followed by any other table in order of first
// appearance in entries.
func OrderedTables(groups map[string][]models.ChangeLogEntry, entries []models.ChangeLogEntry) []string {
	tables := make([]string, 0, len(groups))
	seen := make(map[string]bool, len(groups))

	for _, t := range config.ApplyOrder {
		if _, ok := groups[t]; ok {
			tables = append(tables, t)
			seen[t] = true
		}
	}
	for _, e := range entries {
		if _, ok := groups[e.Table]; ok && !seen[e.Table] {
			tables = append(tables, e.Table)
			seen[e.Table] = true
		}
	}
	return tables
}
