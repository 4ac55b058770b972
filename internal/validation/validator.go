package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
// Field errors are reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// a successful payment must name the payment; a signature without an
	// order id cannot be checked against anything
	v.RegisterStructValidation(gatewayResultStructValidation, GatewayResultRequest{})

	return v
}

func gatewayResultStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(GatewayResultRequest)

	if req.Kind != "success" {
		return
	}
	if req.PaymentID == "" {
		sl.ReportError(req.PaymentID, "paymentId", "PaymentID", "required_on_success", "")
	}
	if req.Signature != "" && req.OrderID == "" {
		sl.ReportError(req.OrderID, "orderId", "OrderID", "required_with_signature", "")
	}
}
