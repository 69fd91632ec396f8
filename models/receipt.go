package models

import "time"

type Receipt struct {
	ID              int64      `gorm:"column:receipt_id;primaryKey;autoIncrement:false" json:"receipt_id"`
	ReceiptNo       *int64     `gorm:"column:receipt_no;index" json:"receipt_no"`
	TransactionDate *time.Time `gorm:"column:transaction_date" json:"transaction_date"`
	CustomerID      *int64     `gorm:"column:customer_id;index" json:"customer_id"`
	TotalAmount     float64    `gorm:"column:total_amount;type:decimal(12,2)" json:"total_amount"`
	PaymentChannel  string     `gorm:"column:payment_channel;type:varchar(50)" json:"payment_channel"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// SourceReceipt references its customer by email, not by id.
type SourceReceipt struct {
	ReceiptID       int64      `gorm:"column:receipt_id" json:"receipt_id"`
	ReceiptNo       *int64     `gorm:"column:receipt_no" json:"receipt_no"`
	TransactionDate *time.Time `gorm:"column:transaction_date" json:"transaction_date"`
	Customer        *string    `gorm:"column:customer" json:"customer"`
	TotalAmount     *string    `gorm:"column:total_amount" json:"total_amount"`
	PaymentChannel  *string    `gorm:"column:payment_channel" json:"payment_channel"`
}
