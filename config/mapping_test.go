package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMappingIsValid(t *testing.T) {
	m := DefaultMapping()
	require.NoError(t, m.Validate())

	for _, table := range ApplyOrder {
		assert.Contains(t, m, table)
	}
	assert.Contains(t, m.SelectList(TableReceipts), "`total_cost_incl` AS total_amount")
	assert.Contains(t, m.SelectList(TableProducts), "`buyingprice` AS buying_price")
}

func TestSelectList(t *testing.T) {
	got := DefaultMapping().SelectList(TableCustomers)
	assert.Equal(t, "`customer_id` AS customer_id, `name` AS name, `email` AS email, `registered_on` AS registered_on", got)
}

func writeMapping(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMapping_Overlay(t *testing.T) {
	path := writeMapping(t, `
sales:
  table: sales_v2
  columns:
    selling_price: unit_price
    total_sales: line_total
`)

	m, err := LoadMapping(path)
	require.NoError(t, err)

	assert.Equal(t, "sales_v2", m[TableSales].Table)
	assert.Equal(t, "sale_id", m[TableSales].PrimaryKey)
	assert.Equal(t, "unit_price", m[TableSales].Columns["selling_price"])
	assert.Equal(t, "line_total", m[TableSales].Columns["total_sales"])
	assert.Equal(t, "product_code", m[TableSales].Columns["product_code"])
	assert.Equal(t, "productname", m[TableProducts].Columns["name"])
}

func TestLoadMapping_Empty(t *testing.T) {
	m, err := LoadMapping("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMapping(), m)
}

func TestLoadMapping_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown table", "suppliers:\n  table: suppliers\n", "unknown table"},
		{"injection in column", "customers:\n  columns:\n    email: \"email; DROP TABLE x\"\n", "invalid column"},
		{"bad table name", "products:\n  table: \"prod-ucts\"\n", "invalid table name"},
		{"unknown field", "receipts:\n  columns:\n    cashier: cashier_id\n", "unknown field"},
		{"bad yaml", "customers: [", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMapping(writeMapping(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMapping_MissingFile(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
