package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Change-log table names the synchronizer knows how to apply.
const (
	TableCustomers = "customers"
	TableProducts  = "products"
	TableReceipts  = "receipts"
	TableSales     = "sales"
)

// ApplyOrder lists tables so that referenced entities are applied before
// the entities referencing them.
var ApplyOrder = []string{TableCustomers, TableProducts, TableReceipts, TableSales}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// canonicalFields are the field names the source forms in models expect,
// in select order. The first one is the primary key.
var canonicalFields = map[string][]string{
	TableCustomers: {"customer_id", "name", "email", "registered_on"},
	TableProducts: {"product_id", "product_code", "name", "department", "category",
		"buying_price", "selling_price", "current_stock", "last_updated"},
	TableReceipts: {"receipt_id", "receipt_no", "transaction_date", "customer",
		"total_amount", "payment_channel"},
	TableSales: {"sale_id", "receipt_no", "product_code", "quantity", "selling_price", "total_sales"},
}

// EntityMapping documents how one source table maps onto a source form.
type EntityMapping struct {
	Table      string            `yaml:"table"`
	PrimaryKey string            `yaml:"primary_key"`
	Columns    map[string]string `yaml:"columns"`
}

// Mapping is keyed by change-log table name.
type Mapping map[string]EntityMapping

// DefaultMapping describes the operational schema as deployed.
func DefaultMapping() Mapping {
	return Mapping{
		TableCustomers: {
			Table:      "customers",
			PrimaryKey: "customer_id",
			Columns: map[string]string{
				"customer_id":   "customer_id",
				"name":          "name",
				"email":         "email",
				"registered_on": "registered_on",
			},
		},
		TableProducts: {
			Table:      "products",
			PrimaryKey: "product_id",
			Columns: map[string]string{
				"product_id":    "product_id",
				"product_code":  "product_code",
				"name":          "productname",
				"department":    "department",
				"category":      "category",
				"buying_price":  "buyingprice",
				"selling_price": "sellingprice",
				"current_stock": "current_stock",
				"last_updated":  "last_updated",
			},
		},
		TableReceipts: {
			Table:      "receipts",
			PrimaryKey: "receipt_id",
			Columns: map[string]string{
				"receipt_id":       "receipt_id",
				"receipt_no":       "receipt_no",
				"transaction_date": "date",
				"customer":         "customer",
				"total_amount":     "total_cost_incl",
				"payment_channel":  "payment_channel",
			},
		},
		TableSales: {
			Table:      "sales",
			PrimaryKey: "sale_id",
			Columns: map[string]string{
				"sale_id":       "sale_id",
				"receipt_no":    "receipt_no",
				"product_code":  "product_code",
				"quantity":      "quantity",
				"selling_price": "sellingprice",
				"total_sales":   "totalsales",
			},
		},
	}
}

// LoadMapping returns the default mapping overlaid with the YAML file at
// path. Columns given in the file replace the defaults one by one.
func LoadMapping(path string) (Mapping, error) {
	m := DefaultMapping()
	if path == "" {
		return m, m.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var override Mapping
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	for name, o := range override {
		base, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("mapping file: unknown table %q", name)
		}
		if o.Table != "" {
			base.Table = o.Table
		}
		if o.PrimaryKey != "" {
			base.PrimaryKey = o.PrimaryKey
		}
		for field, col := range o.Columns {
			base.Columns[field] = col
		}
		m[name] = base
	}

	return m, m.Validate()
}

// Validate checks that every identifier is safe to embed in SQL and that
// every canonical field is mapped.
func (m Mapping) Validate() error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		em := m[name]
		fields, known := canonicalFields[name]
		if !known {
			return fmt.Errorf("mapping: unknown table %q", name)
		}
		if !IsIdentifier(em.Table) {
			return fmt.Errorf("mapping %s: invalid table name %q", name, em.Table)
		}
		if !IsIdentifier(em.PrimaryKey) {
			return fmt.Errorf("mapping %s: invalid primary key column %q", name, em.PrimaryKey)
		}
		for _, f := range fields {
			col, ok := em.Columns[f]
			if !ok {
				return fmt.Errorf("mapping %s: field %q is not mapped", name, f)
			}
			if !IsIdentifier(col) {
				return fmt.Errorf("mapping %s: invalid column %q for field %q", name, col, f)
			}
		}
		for f := range em.Columns {
			if !contains(fields, f) {
				return fmt.Errorf("mapping %s: unknown field %q", name, f)
			}
		}
	}
	return nil
}

// SelectList renders "`col` AS field" for every canonical field of the
// named table.
func (m Mapping) SelectList(name string) string {
	em := m[name]
	fields := canonicalFields[name]
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, QuoteIdent(em.Columns[f])+" AS "+f)
	}
	return strings.Join(parts, ", ")
}

// IsIdentifier reports whether s is a plain SQL identifier.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// QuoteIdent quotes a validated identifier for MySQL (SQLite accepts the
// same backticks).
func QuoteIdent(s string) string {
	return "`" + s + "`"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
