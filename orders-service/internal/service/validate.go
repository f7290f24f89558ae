package service

import "strings"

type requiredField struct {
	name  string
	value func(in *CreateOrderInput) string
}

var requiredFields = []requiredField{
	{"user_id", func(in *CreateOrderInput) string { return in.UserID }},
	{"customer_email", func(in *CreateOrderInput) string { return in.CustomerEmail }},
	{"customer_name", func(in *CreateOrderInput) string { return in.CustomerName }},
	{"billing_address_line1", func(in *CreateOrderInput) string { return in.Billing.Line1 }},
	{"billing_city", func(in *CreateOrderInput) string { return in.Billing.City }},
	{"billing_state", func(in *CreateOrderInput) string { return in.Billing.State }},
	{"billing_zip", func(in *CreateOrderInput) string { return in.Billing.Zip }},
	{"shipping_address_line1", func(in *CreateOrderInput) string { return in.Shipping.Line1 }},
	{"shipping_city", func(in *CreateOrderInput) string { return in.Shipping.City }},
	{"shipping_state", func(in *CreateOrderInput) string { return in.Shipping.State }},
	{"shipping_zip", func(in *CreateOrderInput) string { return in.Shipping.Zip }},
}

// validate reports the first problem found, in form order.
func validate(in CreateOrderInput) error {
	for _, f := range requiredFields {
		if strings.TrimSpace(f.value(&in)) == "" {
			return reject(ErrValidation, f.name, "%s is required", f.name)
		}
	}
	if !strings.Contains(in.CustomerEmail, "@") {
		return reject(ErrValidation, "customer_email", "customer_email must be a valid email address")
	}
	if in.PaymentMethod != PaymentMethodCreditCard {
		return reject(ErrValidation, "payment_method", "payment_method must be %s", PaymentMethodCreditCard)
	}
	if len(in.Items) == 0 {
		return reject(ErrValidation, "items", "order must contain at least one item")
	}
	seen := make(map[int64]bool, len(in.Items))
	for _, it := range in.Items {
		switch {
		case it.ProductID <= 0:
			return reject(ErrValidation, "items", "product_id must be greater than 0")
		case seen[it.ProductID]:
			return reject(ErrValidation, "items", "product %d appears more than once", it.ProductID)
		case it.Quantity < 1:
			return reject(ErrValidation, "items", "quantity for %s must be at least 1", displayName(it))
		case it.UnitPrice.IsNegative():
			return reject(ErrValidation, "items", "unit_price for %s must not be negative", displayName(it))
		}
		seen[it.ProductID] = true
	}
	return nil
}
