package models

type Sale struct {
	ID           int64   `gorm:"column:sale_id;primaryKey;autoIncrement:false" json:"sale_id"`
	ReceiptID    int64   `gorm:"column:receipt_id;not null;index" json:"receipt_id"`
	ProductID    int64   `gorm:"column:product_id;not null;index" json:"product_id"`
	Quantity     float64 `gorm:"column:quantity;type:decimal(12,3)" json:"quantity"`
	SellingPrice float64 `gorm:"column:selling_price;type:decimal(12,2)" json:"selling_price"`
	TotalSale    float64 `gorm:"column:total_sale;type:decimal(12,2)" json:"total_sale"`
}

func (Sale) TableName() string {
	return "sales"
}

// SourceSale references its receipt by receipt number and its product by
// product code.
type SourceSale struct {
	SaleID       int64   `gorm:"column:sale_id" json:"sale_id"`
	ReceiptNo    *int64  `gorm:"column:receipt_no" json:"receipt_no"`
	ProductCode  *string `gorm:"column:product_code" json:"product_code"`
	Quantity     *string `gorm:"column:quantity" json:"quantity"`
	SellingPrice *string `gorm:"column:selling_price" json:"selling_price"`
	TotalSales   *string `gorm:"column:total_sales" json:"total_sales"`
}
