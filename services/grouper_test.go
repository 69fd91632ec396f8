package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/retail-sync/models"
)

func TestGroupByTable(t *testing.T) {
	entries := []models.ChangeLogEntry{
		{ID: 1, Table: "sales", PrimaryKeyValue: "10"},
		{ID: 2, Table: "customers", PrimaryKeyValue: "1"},
		{ID: 3, Table: "sales", PrimaryKeyValue: "11"},
		{ID: 4, Table: "legacy_items", PrimaryKeyValue: "7"},
		{ID: 5, Table: "customers", PrimaryKeyValue: "2"},
		{ID: 6, Table: "receipts", PrimaryKeyValue: "3"},
	}

	groups := GroupByTable(entries)

	assert.Len(t, groups, 4)
	ids := func(table string) []int64 {
		var out []int64
		for _, e := range groups[table] {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []int64{1, 3}, ids("sales"))
	assert.Equal(t, []int64{2, 5}, ids("customers"))
	assert.Equal(t, []int64{4}, ids("legacy_items"))
	assert.Equal(t, []int64{6}, ids("receipts"))

	assert.Equal(t, []string{"customers", "receipts", "sales", "legacy_items"}, OrderedTables(groups, entries))
}

func TestGroupByTable_Empty(t *testing.T) {
	groups := GroupByTable(nil)
	assert.Empty(t, groups)
	assert.Empty(t, OrderedTables(groups, nil))
}
