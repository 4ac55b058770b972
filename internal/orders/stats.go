package orders

import (
	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/catalog"
)

// Stats are the admin dashboard numbers.
type Stats struct {
	TotalOrders   int     `json:"totalOrders"`
	Revenue       float64 `json:"revenue"`
	TotalProducts int     `json:"totalProducts"`
	LowStock      int     `json:"lowStock"`
}

// Summarize computes dashboard stats. Revenue counts paid orders only.
func Summarize(list []Order, products []catalog.Product) Stats {
	revenue := decimal.Zero
	for _, o := range list {
		if o.PaymentStatus == PaymentPaid {
			revenue = revenue.Add(decimal.NewFromFloat(o.TotalAmount))
		}
	}

	st := Stats{
		TotalOrders:   len(list),
		Revenue:       revenue.Round(2).InexactFloat64(),
		TotalProducts: len(products),
	}
	for _, p := range products {
		if p.LowStock() {
			st.LowStock++
		}
	}
	return st
}
