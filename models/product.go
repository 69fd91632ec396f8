package models

import "time"

// Product is the analytical-store form of a product.
type Product struct {
	ID           int64      `gorm:"column:product_id;primaryKey;autoIncrement:false" json:"product_id"`
	Code         string     `gorm:"column:code;type:varchar(64);index" json:"code"`
	Name         string     `gorm:"column:name;type:varchar(255)" json:"name"`
	Department   string     `gorm:"column:department;type:varchar(100)" json:"department"`
	Category     string     `gorm:"column:category;type:varchar(100)" json:"category"`
	BuyPrice     float64    `gorm:"column:buy_price;type:decimal(12,2)" json:"buy_price"`
	SellPrice    float64    `gorm:"column:sell_price;type:decimal(12,2)" json:"sell_price"`
	CurrentStock float64    `gorm:"column:current_stock;type:decimal(12,3)" json:"current_stock"`
	LastUpdated  *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// SourceProduct keeps prices and stock as text because the operational
// schema stores them that way.
type SourceProduct struct {
	ProductID    int64      `gorm:"column:product_id" json:"product_id"`
	ProductCode  *string    `gorm:"column:product_code" json:"product_code"`
	Name         *string    `gorm:"column:name" json:"name"`
	Department   *string    `gorm:"column:department" json:"department"`
	Category     *string    `gorm:"column:category" json:"category"`
	BuyingPrice  *string    `gorm:"column:buying_price" json:"buying_price"`
	SellingPrice *string    `gorm:"column:selling_price" json:"selling_price"`
	CurrentStock *string    `gorm:"column:current_stock" json:"current_stock"`
	LastUpdated  *time.Time `gorm:"column:last_updated" json:"last_updated"`
}
