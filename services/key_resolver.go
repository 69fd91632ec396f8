package services

import (
	"context"
	"fmt"

	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/gorm"
)

// KeyResolver translates business keys into analytical-store ids. Every
// call issues at most one query and keeps nothing between calls.
type KeyResolver struct {
	db *gorm.DB
}

func NewKeyResolver(target *gorm.DB) *KeyResolver {
	return &KeyResolver{db: target}
}

// CustomerIDsByEmail resolves customer emails to customer ids.
func (r *KeyResolver) CustomerIDsByEmail(ctx context.Context, emails []string) (map[string]int64, error) {
	return resolveKeys(ctx, r.db, &models.Customer{}, "email", "customer_id", emails)
}

// ReceiptIDsByNumber resolves receipt numbers to receipt ids.
func (r *KeyResolver) ReceiptIDsByNumber(ctx context.Context, numbers []int64) (map[int64]int64, error) {
	return resolveKeys(ctx, r.db, &models.Receipt{}, "receipt_no", "receipt_id", numbers)
}

// ProductIDsByCode resolves product codes to product ids.
func (r *KeyResolver) ProductIDsByCode(ctx context.Context, codes []string) (map[string]int64, error) {
	return resolveKeys(ctx, r.db, &models.Product{}, "code", "product_id", codes)
}

// resolveKeys looks up keys in keyColumn and returns key -> idColumn. Keys
// with no match are absent. When a key matches several rows the lowest id
// wins.
func resolveKeys[K comparable](ctx context.Context, db *gorm.DB, model interface{}, keyColumn, idColumn string, keys []K) (map[K]int64, error) {
	result := make(map[K]int64, len(keys))

	unique := dedupe(keys)
	if len(unique) == 0 {
		return result, nil
	}

	rows, err := db.WithContext(ctx).
		Model(model).
		Select([]string{keyColumn, idColumn}).
		Where(keyColumn+" IN ?", unique).
		Order(idColumn + " ASC").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", keyColumn, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key K
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("resolving %s: %w", keyColumn, err)
		}
		if _, dup := result[key]; !dup {
			result[key] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", keyColumn, err)
	}
	return result, nil
}

func dedupe[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
