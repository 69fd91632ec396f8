package services

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var errInjected = errors.New("injected write fault")

// t0 is the base change_time of test entries.
var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// openTestDB opens a private in-memory sqlite database.
func openTestDB(t *testing.T, role string) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("%s_%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), role, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// setupSourceDB creates the operational schema with the deployed column
// names and the change log.
func setupSourceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t, "source")

	ddl := []string{
		`CREATE TABLE customers (customer_id INTEGER PRIMARY KEY, name TEXT, email TEXT, registered_on DATETIME)`,
		`CREATE TABLE products (product_id INTEGER PRIMARY KEY, product_code TEXT, productname TEXT,
			department TEXT, category TEXT, buyingprice TEXT, sellingprice TEXT, current_stock TEXT,
			last_updated DATETIME)`,
		`CREATE TABLE receipts (receipt_id INTEGER PRIMARY KEY, receipt_no INTEGER, date DATETIME,
			customer TEXT, total_cost_incl TEXT, payment_channel TEXT)`,
		`CREATE TABLE sales (sale_id INTEGER PRIMARY KEY, receipt_no INTEGER, product_code TEXT,
			quantity TEXT, sellingprice TEXT, totalsales TEXT)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	require.NoError(t, db.AutoMigrate(&models.ChangeLogEntry{}))
	return db
}

func setupTargetDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t, "target")
	require.NoError(t, db.AutoMigrate(
		&models.Customer{},
		&models.Product{},
		&models.Receipt{},
		&models.Sale{},
		&models.IngestState{},
	))
	return db
}

type syncFixture struct {
	source   *gorm.DB
	target   *gorm.DB
	skips    *SkipLog
	appliers map[string]TableSyncApplier
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		source: setupSourceDB(t),
		target: setupTargetDB(t),
		skips:  NewSkipLog(t.TempDir()),
	}
	f.appliers = NewAppliers(f.source, f.target, config.DefaultMapping(), f.skips)
	return f
}

func (f *syncFixture) addCustomer(t *testing.T, id int64, name, email string) {
	t.Helper()
	require.NoError(t, f.source.Exec(
		`INSERT INTO customers (customer_id, name, email, registered_on) VALUES (?, ?, ?, ?)`,
		id, name, email, t0).Error)
}

func (f *syncFixture) addProduct(t *testing.T, id int64, code, buying, selling, stock string) {
	t.Helper()
	require.NoError(t, f.source.Exec(
		`INSERT INTO products (product_id, product_code, productname, department, category,
			buyingprice, sellingprice, current_stock, last_updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, code, "Product "+code, "Grocery", "Snacks", buying, selling, stock, t0).Error)
}

// addReceipt inserts a receipt; an empty email stores NULL.
func (f *syncFixture) addReceipt(t *testing.T, id, receiptNo int64, email, total string) {
	t.Helper()
	var customer interface{}
	if email != "" {
		customer = email
	}
	require.NoError(t, f.source.Exec(
		`INSERT INTO receipts (receipt_id, receipt_no, date, customer, total_cost_incl, payment_channel)
			VALUES (?, ?, ?, ?, ?, ?)`,
		id, receiptNo, t0, customer, total, "cash").Error)
}

func (f *syncFixture) addSale(t *testing.T, id, receiptNo int64, productCode, qty, price, total string) {
	t.Helper()
	require.NoError(t, f.source.Exec(
		`INSERT INTO sales (sale_id, receipt_no, product_code, quantity, sellingprice, totalsales)
			VALUES (?, ?, ?, ?, ?, ?)`,
		id, receiptNo, productCode, qty, price, total).Error)
}

// addChange appends a pending change-log entry and returns its id.
func (f *syncFixture) addChange(t *testing.T, table, key string, at time.Time) int64 {
	t.Helper()
	entry := models.ChangeLogEntry{
		Table:           table,
		PrimaryKeyValue: key,
		ChangeTime:      at,
		Status:          models.ChangeStatusPending,
	}
	require.NoError(t, f.source.Create(&entry).Error)
	return entry.ID
}

func (f *syncFixture) entry(t *testing.T, id int64) models.ChangeLogEntry {
	t.Helper()
	var e models.ChangeLogEntry
	require.NoError(t, f.source.First(&e, id).Error)
	return e
}

func (f *syncFixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.target.Model(model).Count(&n).Error)
	return n
}

// failCreates makes every create on table after the first okCreates fail.
func failCreates(t *testing.T, db *gorm.DB, table string, okCreates int) {
	t.Helper()
	var n int
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		n++
		if n > okCreates {
			tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
}

// failCustomerCreate makes every upsert of customer id fail.
func failCustomerCreate(t *testing.T, db *gorm.DB, id int64) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register(fmt.Sprintf("test:fail_customer_%d", id), func(tx *gorm.DB) {
		if c, ok := tx.Statement.Dest.(*models.Customer); ok && c.ID == id {
			tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
}
