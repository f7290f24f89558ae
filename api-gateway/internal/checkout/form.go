package checkout

import (
	"strconv"
	"strings"
)

const PaymentMethodCreditCard = "credit_card"

// Form is what the customer fills in during the information step.
type Form struct {
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`

	BillingAddressLine1 string `json:"billing_address_line1"`
	BillingAddressLine2 string `json:"billing_address_line2"`
	BillingCity         string `json:"billing_city"`
	BillingState        string `json:"billing_state"`
	BillingZip          string `json:"billing_zip"`
	BillingCountry      string `json:"billing_country"`

	ShippingAddressLine1 string `json:"shipping_address_line1"`
	ShippingAddressLine2 string `json:"shipping_address_line2"`
	ShippingCity         string `json:"shipping_city"`
	ShippingState        string `json:"shipping_state"`
	ShippingZip          string `json:"shipping_zip"`
	ShippingCountry      string `json:"shipping_country"`

	SameAsBilling bool   `json:"same_as_billing"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

func NewForm() Form {
	return Form{
		BillingCountry:  "US",
		ShippingCountry: "US",
		SameAsBilling:   true,
		PaymentMethod:   PaymentMethodCreditCard,
	}
}

// Address is one block of address fields.
type Address struct {
	Line1   string `json:"address_line1"`
	Line2   string `json:"address_line2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

func (f *Form) Billing() Address {
	return Address{
		Line1:   f.BillingAddressLine1,
		Line2:   f.BillingAddressLine2,
		City:    f.BillingCity,
		State:   f.BillingState,
		Zip:     f.BillingZip,
		Country: f.BillingCountry,
	}
}

func (f *Form) Shipping() Address {
	return Address{
		Line1:   f.ShippingAddressLine1,
		Line2:   f.ShippingAddressLine2,
		City:    f.ShippingCity,
		State:   f.ShippingState,
		Zip:     f.ShippingZip,
		Country: f.ShippingCountry,
	}
}

func (f *Form) setShipping(a Address) {
	f.ShippingAddressLine1 = a.Line1
	f.ShippingAddressLine2 = a.Line2
	f.ShippingCity = a.City
	f.ShippingState = a.State
	f.ShippingZip = a.Zip
	f.ShippingCountry = a.Country
}

// Snapshot returns the form as it is submitted: with same_as_billing set
// the shipping block is the billing block.
func (f Form) Snapshot() Form {
	if f.SameAsBilling {
		f.setShipping(f.Billing())
	}
	return f
}

var requiredFields = []string{
	"customer_email",
	"customer_name",
	"billing_address_line1",
	"billing_city",
	"billing_state",
	"billing_zip",
}

var requiredShippingFields = []string{
	"shipping_address_line1",
	"shipping_city",
	"shipping_state",
	"shipping_zip",
}

// Validate returns a *ValidationError naming the first empty required field.
func (f *Form) Validate() error {
	required := requiredFields
	if !f.SameAsBilling {
		required = append(append([]string{}, requiredFields...), requiredShippingFields...)
	}
	for _, id := range required {
		p, _ := f.text(id)
		if strings.TrimSpace(*p) == "" {
			return &ValidationError{Field: id, Reason: "is required"}
		}
	}
	if f.PaymentMethod != PaymentMethodCreditCard {
		return &ValidationError{Field: "payment_method", Reason: "only credit_card is accepted"}
	}
	return nil
}

// text maps a field identifier to its storage.
func (f *Form) text(id string) (*string, bool) {
	switch id {
	case "customer_email":
		return &f.CustomerEmail, true
	case "customer_name":
		return &f.CustomerName, true
	case "customer_phone":
		return &f.CustomerPhone, true
	case "billing_address_line1":
		return &f.BillingAddressLine1, true
	case "billing_address_line2":
		return &f.BillingAddressLine2, true
	case "billing_city":
		return &f.BillingCity, true
	case "billing_state":
		return &f.BillingState, true
	case "billing_zip":
		return &f.BillingZip, true
	case "billing_country":
		return &f.BillingCountry, true
	case "shipping_address_line1":
		return &f.ShippingAddressLine1, true
	case "shipping_address_line2":
		return &f.ShippingAddressLine2, true
	case "shipping_city":
		return &f.ShippingCity, true
	case "shipping_state":
		return &f.ShippingState, true
	case "shipping_zip":
		return &f.ShippingZip, true
	case "shipping_country":
		return &f.ShippingCountry, true
	case "payment_method":
		return &f.PaymentMethod, true
	case "notes":
		return &f.Notes, true
	}
	return nil, false
}

func parseBool(field, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, &ValidationError{Field: field, Reason: "must be true or false"}
	}
	return b, nil
}
