package models

import (
	"time"
)

// Customer is the analytical-store form of a customer.
type Customer struct {
	ID           int64      `gorm:"column:customer_id;primaryKey;autoIncrement:false" json:"customer_id"`
	Name         string     `gorm:"column:name;type:varchar(255)" json:"name"`
	Email        string     `gorm:"column:email;type:varchar(255);index" json:"email"`
	RegisteredOn *time.Time `gorm:"column:registered_on" json:"registered_on"`
}

func (Customer) TableName() string {
	return "customers"
}

// SourceCustomer is a customers row read from the operational store.
type SourceCustomer struct {
	CustomerID   int64      `gorm:"column:customer_id" json:"customer_id"`
	Name         *string    `gorm:"column:name" json:"name"`
	Email        *string    `gorm:"column:email" json:"email"`
	RegisteredOn *time.Time `gorm:"column:registered_on" json:"registered_on"`
}
