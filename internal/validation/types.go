package validation

// IntentRequest is the payload for POST /api/payments/order-intents.
// The amount is checked by the payment service so it can answer with
// invalid_amount.
type IntentRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency" validate:"omitempty,oneof=INR"`
}

// VerifyRequest is the payload for POST /api/payments/verify.
type VerifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// AddCartItemRequest is the payload for POST /api/cart/items. A missing
// quantity means 1.
type AddCartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=1000"`
}

// UpdateCartItemRequest is the payload for PATCH /api/cart/items/:productID.
// Zero or less removes the line.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// CheckoutRequest carries the delivery form.
type CheckoutRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Mobile  string `json:"mobile" validate:"required,numeric,len=10"`
	Address string `json:"address" validate:"required,max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// GatewayResultRequest is the payload for POST /api/checkout/result.
type GatewayResultRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=success failure dismissed"`
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
	Reason    string `json:"reason" validate:"max=500"`
}

// OrderStatusRequest is the payload for PATCH /api/admin/orders/:id/status.
type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Paid Cancelled Delivered"`
}

// CredentialsRequest is the payload for sign-in and sign-up.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=256"`
}
