package services

import (
	"context"

	"github.com/yeremiapane/retail-sync/config"
	"github.com/yeremiapane/retail-sync/models"
	"github.com/yeremiapane/retail-sync/utils"
)

// CustomerApplier has no references to resolve.
type CustomerApplier struct {
	applierDeps
}

func (a *CustomerApplier) Table() string { return config.TableCustomers }

func (a *CustomerApplier) Apply(ctx context.Context, keys []int64) (ApplyResult, error) {
	res := ApplyResult{Table: a.Table()}

	rows, err := fetchSourceRows(ctx, a.applierDeps, a.Table(), keys,
		func(r models.SourceCustomer) int64 { return r.CustomerID })
	if err != nil {
		return res, err
	}
	res.Fetched = len(rows)

	for _, row := range rows {
		customer := models.Customer{
			ID:           row.CustomerID,
			Name:         utils.TrimmedOrEmpty(row.Name),
			Email:        utils.TrimmedOrEmpty(row.Email),
			RegisteredOn: row.RegisteredOn,
		}
		if err := upsert(ctx, a.target, a.Table(), "customer_id", row.CustomerID, &customer); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}
