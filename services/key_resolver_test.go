package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/gorm"
)

func countRowQueries(t *testing.T, db *gorm.DB) *int {
	t.Helper()
	var n int
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("test:count_rows", func(*gorm.DB) {
		n++
	}))
	return &n
}

func TestKeyResolver_CustomerIDsByEmail(t *testing.T) {
	target := setupTargetDB(t)
	require.NoError(t, target.Create(&[]models.Customer{
		{ID: 1, Name: "Ana", Email: "ana@example.com"},
		{ID: 2, Name: "Budi", Email: "budi@example.com"},
		{ID: 3, Name: "Cici", Email: "cici@example.com"},
	}).Error)

	queries := countRowQueries(t, target)
	got, err := NewKeyResolver(target).CustomerIDsByEmail(context.Background(),
		[]string{"ana@example.com", "cici@example.com", "ana@example.com", "nobody@example.com"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"ana@example.com": 1, "cici@example.com": 3}, got)
	assert.Equal(t, 1, *queries)
}

func TestKeyResolver_EmptyKeysIssueNoQuery(t *testing.T) {
	target := setupTargetDB(t)
	queries := countRowQueries(t, target)
	resolver := NewKeyResolver(target)

	emails, err := resolver.CustomerIDsByEmail(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, emails)

	numbers, err := resolver.ReceiptIDsByNumber(context.Background(), []int64{})
	require.NoError(t, err)
	assert.Empty(t, numbers)

	assert.Equal(t, 0, *queries)
}

func TestKeyResolver_ReceiptsAndProducts(t *testing.T) {
	target := setupTargetDB(t)
	no42, no43 := int64(42), int64(43)
	require.NoError(t, target.Create(&[]models.Receipt{
		{ID: 7, ReceiptNo: &no42},
		{ID: 5, ReceiptNo: &no42},
		{ID: 8, ReceiptNo: &no43},
	}).Error)
	require.NoError(t, target.Create(&[]models.Product{
		{ID: 11, Code: "SKU-1"},
		{ID: 12, Code: "SKU-2"},
	}).Error)

	resolver := NewKeyResolver(target)

	receipts, err := resolver.ReceiptIDsByNumber(context.Background(), []int64{42, 43, 44})
	require.NoError(t, err)
	// Duplicated business keys resolve to the lowest id.
	assert.Equal(t, map[int64]int64{42: 5, 43: 8}, receipts)

	products, err := resolver.ProductIDsByCode(context.Background(), []string{"SKU-2", "SKU-9"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"SKU-2": 12}, products)
}
