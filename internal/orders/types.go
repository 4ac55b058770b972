package orders

import "time"

// PaymentStatus tracks money movement for an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

// Status is the fulfilment status an admin works with.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
	StatusDelivered Status = "Delivered"
)

// Item is a cart line frozen at purchase time.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Name      string  `dynamodbav:"name" json:"name"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unitPrice"` // after discount
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	ImageURL  string  `dynamodbav:"image_url,omitempty" json:"imageUrl,omitempty"`
}

// Customer holds delivery details captured at checkout.
type Customer struct {
	Name    string `dynamodbav:"name" json:"name"`
	Mobile  string `dynamodbav:"mobile" json:"mobile"`
	Address string `dynamodbav:"address" json:"address"`
	Email   string `dynamodbav:"email,omitempty" json:"email,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID        string        `dynamodbav:"order_id" json:"id"` // PK
	UserID         string        `dynamodbav:"user_id,omitempty" json:"userId,omitempty"`
	Items          []Item        `dynamodbav:"items" json:"items"`
	TotalAmount    float64       `dynamodbav:"total_amount" json:"totalAmount"`
	PaymentStatus  PaymentStatus `dynamodbav:"payment_status" json:"paymentStatus"`
	OrderStatus    Status        `dynamodbav:"order_status" json:"orderStatus"`
	GatewayOrderID string        `dynamodbav:"gateway_order_id,omitempty" json:"gatewayOrderId,omitempty"`
	PaymentID      string        `dynamodbav:"payment_id,omitempty" json:"paymentId,omitempty"`
	Verified       bool          `dynamodbav:"verified" json:"verified"`
	Customer       Customer      `dynamodbav:"customer" json:"customer"`
	CreatedAt      time.Time     `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `dynamodbav:"updated_at" json:"updatedAt"`
	Attempts       int           `dynamodbav:"attempts,omitempty" json:"-"`
}

// PaidEvent is queued when an order is confirmed so stock can be settled
// asynchronously.
type PaidEvent struct {
	OrderID        string `json:"order_id"`
	IdempotencyKey string `json:"idempotency_key"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// StockKey is the idempotency key guarding the stock decrement of an order.
func StockKey(orderID string) string {
	return "stock:" + orderID
}
