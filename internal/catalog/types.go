package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold marks products the back office should restock.
const LowStockThreshold = 10

// Product is a catalog entry. Prices are rupees.
type Product struct {
	ID         string    `dynamodbav:"id" json:"id"` // PK
	Name       string    `dynamodbav:"name" json:"name"`
	CategoryID string    `dynamodbav:"category_id" json:"categoryId"`
	Price      float64   `dynamodbav:"price" json:"price"`
	Discount   float64   `dynamodbav:"discount" json:"discount"` // percent, 0..100
	Stock      int       `dynamodbav:"stock" json:"stock"`
	ImageURL   string    `dynamodbav:"image_url,omitempty" json:"imageUrl"`
	Active     bool      `dynamodbav:"active" json:"isActive"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// FinalPrice is the unit price after discount.
func (p Product) FinalPrice() decimal.Decimal {
	price := decimal.NewFromFloat(p.Price)
	if p.Discount <= 0 {
		return price
	}
	off := decimal.NewFromFloat(p.Discount).Div(decimal.NewFromInt(100))
	return price.Mul(decimal.NewFromInt(1).Sub(off))
}

func (p Product) LowStock() bool {
	return p.Stock < LowStockThreshold
}

// ProductInput carries the mutable fields of a product.
type ProductInput struct {
	Name       string  `json:"name" validate:"required,max=200"`
	CategoryID string  `json:"categoryId" validate:"required"`
	Price      float64 `json:"price" validate:"required,gt=0"`
	Discount   float64 `json:"discount" validate:"gte=0,lte=100"`
	Stock      int     `json:"stock" validate:"gte=0"`
	ImageURL   string  `json:"imageUrl" validate:"omitempty,url"`
	Active     bool    `json:"isActive"`
}

// ListFilter narrows List results.
type ListFilter struct {
	CategoryID string
	ActiveOnly bool
}

func (f ListFilter) match(p Product) bool {
	if f.ActiveOnly && !p.Active {
		return false
	}
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	return true
}

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is pushed to subscribers after a successful write.
type Event struct {
	Type    EventType `json:"type"`
	Product Product   `json:"product"`
}
