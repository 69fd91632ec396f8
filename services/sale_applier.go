package services

import (
	"context"
	"fmt"

	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
)

// SaleApplier resolves the receipt number and the product code of each
// sale. Both must resolve for the sale to be written.
type SaleApplier struct {
	applierDeps
}

func (a *SaleApplier) Table() string { return config.TableSales }

func (a *SaleApplier) Apply(ctx context.Context, keys []int64) (ApplyResult, error) {
	res := ApplyResult{Table: a.Table()}

	rows, err := fetchSourceRows(ctx, a.applierDeps, a.Table(), keys,
		func(r models.SourceSale) int64 { return r.SaleID })
	if err != nil {
		return res, err
	}
	res.Fetched = len(rows)

	numbers := make([]int64, 0, len(rows))
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ReceiptNo != nil {
			numbers = append(numbers, *row.ReceiptNo)
		}
		if code, ok := businessKey(row.ProductCode); ok {
			codes = append(codes, code)
		}
	}

	receipts, err := a.resolver.ReceiptIDsByNumber(ctx, numbers)
	if err != nil {
		return res, &TargetWriteError{Table: a.Table(), Err: err}
	}
	products, err := a.resolver.ProductIDsByCode(ctx, codes)
	if err != nil {
		return res, &TargetWriteError{Table: a.Table(), Err: err}
	}

	for _, row := range rows {
		if row.ReceiptNo == nil {
			a.skipRecord(&res, row.SaleID, "sale has no receipt number", row)
			continue
		}
		receiptID, ok := receipts[*row.ReceiptNo]
		if !ok {
			a.skipRecord(&res, row.SaleID, fmt.Sprintf("receipt_no not found: %d", *row.ReceiptNo), row)
			continue
		}

		code, ok := businessKey(row.ProductCode)
		if !ok {
			a.skipRecord(&res, row.SaleID, "sale has no product code", row)
			continue
		}
		productID, ok := products[code]
		if !ok {
			a.skipRecord(&res, row.SaleID, "product_code not found: "+code, row)
			continue
		}

		sale := models.Sale{
			ID:           row.SaleID,
			ReceiptID:    receiptID,
			ProductID:    productID,
			Quantity:     numericField(a.Table(), row.SaleID, "quantity", row.Quantity),
			SellingPrice: numericField(a.Table(), row.SaleID, "selling_price", row.SellingPrice),
			TotalSale:    numericField(a.Table(), row.SaleID, "total_sales", row.TotalSales),
		}
		if err := upsert(ctx, a.target, a.Table(), "sale_id", row.SaleID, &sale); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}
