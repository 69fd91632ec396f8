package services

import (
	"context"

	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
)

// ReceiptApplier resolves the customer email of each receipt. A receipt
// without an email is written with no customer; a receipt whose email is
// not known yet is skipped.
type ReceiptApplier struct {
	applierDeps
}

func (a *ReceiptApplier) Table() string { return config.TableReceipts }

func (a *ReceiptApplier) Apply(ctx context.Context, keys []int64) (ApplyResult, error) {
	res := ApplyResult{Table: a.Table()}

	rows, err := fetchSourceRows(ctx, a.applierDeps, a.Table(), keys,
		func(r models.SourceReceipt) int64 { return r.ReceiptID })
	if err != nil {
		return res, err
	}
	res.Fetched = len(rows)

	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		if email, ok := businessKey(row.Customer); ok {
			emails = append(emails, email)
		}
	}
	customers, err := a.resolver.CustomerIDsByEmail(ctx, emails)
	if err != nil {
		return res, &TargetWriteError{Table: a.Table(), Err: err}
	}

	for _, row := range rows {
		var customerID *int64
		if email, ok := businessKey(row.Customer); ok {
			id, found := customers[email]
			if !found {
				a.skipRecord(&res, row.ReceiptID, "customer email not found: "+email, row)
				continue
			}
			customerID = &id
		}

		receipt := models.Receipt{
			ID:              row.ReceiptID,
			ReceiptNo:       row.ReceiptNo,
			TransactionDate: row.TransactionDate,
			CustomerID:      customerID,
			TotalAmount:     numericField(a.Table(), row.ReceiptID, "total_amount", row.TotalAmount),
			PaymentChannel:  utils.TrimmedOrEmpty(row.PaymentChannel),
		}
		if err := upsert(ctx, a.target, a.Table(), "receipt_id", row.ReceiptID, &receipt); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}
