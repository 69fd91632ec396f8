package services

import (
	"context"

	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
)

// ProductApplier coerces the text price and stock columns; it has no
// references to resolve.
type ProductApplier struct {
	applierDeps
}

func (a *ProductApplier) Table() string { return config.TableProducts }

func (a *ProductApplier) Apply(ctx context.Context, keys []int64) (ApplyResult, error) {
	res := ApplyResult{Table: a.Table()}

	rows, err := fetchSourceRows(ctx, a.applierDeps, a.Table(), keys,
		func(r models.SourceProduct) int64 { return r.ProductID })
	if err != nil {
		return res, err
	}
	res.Fetched = len(rows)

	for _, row := range rows {
		product := models.Product{
			ID:           row.ProductID,
			Code:         utils.TrimmedOrEmpty(row.ProductCode),
			Name:         utils.TrimmedOrEmpty(row.Name),
			Department:   utils.TrimmedOrEmpty(row.Department),
			Category:     utils.TrimmedOrEmpty(row.Category),
			BuyPrice:     numericField(a.Table(), row.ProductID, "buying_price", row.BuyingPrice),
			SellPrice:    numericField(a.Table(), row.ProductID, "selling_price", row.SellingPrice),
			CurrentStock: numericField(a.Table(), row.ProductID, "current_stock", row.CurrentStock),
			LastUpdated:  row.LastUpdated,
		}
		if err := upsert(ctx, a.target, a.Table(), "product_id", row.ProductID, &product); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}
