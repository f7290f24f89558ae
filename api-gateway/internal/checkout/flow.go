// Package checkout drives the three checkout steps: information, payment
// and confirmation.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/sirupsen/logrus"
)

type Step int

const (
	StepInformation  Step = 1
	StepPayment      Step = 2
	StepConfirmation Step = 3
)

func (s Step) String() string {
	switch s {
	case StepInformation:
		return "information"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

const (
	DefaultSubmitTimeout  = 15 * time.Second
	DefaultPaymentTimeout = 30 * time.Second
)

type Option func(*Flow)

func WithUserID(id string) Option {
	return func(f *Flow) { f.userID = id }
}

func WithSubmitTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.submitTimeout = d
		}
	}
}

func WithPaymentTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.paymentTimeout = d
		}
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(f *Flow) { f.log = log }
}

// WithPaymentObserver registers fn to be called when a payment task finishes.
func WithPaymentObserver(fn func(PaymentResult)) Option {
	return func(f *Flow) { f.observer = fn }
}

// Flow is one customer's checkout. It is safe for concurrent use; a
// submission in progress blocks every other mutation.
type Flow struct {
	placer         OrderPlacer
	userID         string
	submitTimeout  time.Duration
	paymentTimeout time.Duration
	log            *logrus.Entry
	observer       func(PaymentResult)

	mu         sync.Mutex
	step       Step
	form       Form
	stash      Address
	submitting bool
	order      *Order
	submitted  *pricing.Totals
	lastError  string
	payment    *PaymentTask
}

func NewFlow(placer OrderPlacer, opts ...Option) *Flow {
	f := &Flow{
		placer:         placer,
		submitTimeout:  DefaultSubmitTimeout,
		paymentTimeout: DefaultPaymentTimeout,
		log:            logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.reset()
	return f
}

func (f *Flow) reset() {
	f.step = StepInformation
	f.form = NewForm()
	f.stash = Address{}
	f.order = nil
	f.submitted = nil
	f.lastError = ""
	f.payment = nil
}

// View is a point-in-time copy of the flow.
type View struct {
	Step       Step            `json:"step"`
	StepName   string          `json:"step_name"`
	Form       Form            `json:"form"`
	Submitting bool            `json:"submitting"`
	Order      *Order          `json:"order,omitempty"`
	Totals     *pricing.Totals `json:"submitted_totals,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Payment    PaymentStatus   `json:"payment_status,omitempty"`
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		Step:       f.step,
		StepName:   f.step.String(),
		Form:       f.form,
		Submitting: f.submitting,
		LastError:  f.lastError,
	}
	if f.order != nil {
		o := *f.order
		v.Order = &o
	}
	if f.submitted != nil {
		t := *f.submitted
		v.Totals = &t
	}
	if f.payment != nil {
		v.Payment = f.payment.Status()
	}
	return v
}

func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Order returns the placed order once the flow reached confirmation.
func (f *Flow) Order() *Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == nil {
		return nil
	}
	o := *f.order
	return &o
}

// Payment returns the confirm-payment task, nil before an order is placed.
func (f *Flow) Payment() *PaymentTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payment
}

// editable must be called with mu held.
func (f *Flow) editable() error {
	if f.submitting {
		return ErrSubmissionInFlight
	}
	if f.step == StepConfirmation {
		return ErrInvalidStep
	}
	return nil
}

// SetField updates one form field by identifier.
func (f *Flow) SetField(id, value string) error {
	return f.SetFields(map[string]string{id: value})
}

// SetFields applies a batch of edits atomically: either every edit lands or
// the form is left untouched. Fields are applied in identifier order so a
// bad batch always reports the same field. Turning same_as_billing off
// happens before the other edits and turning it on happens after them, so
// a batch can both switch the flag and fill the fields it governs.
func (f *Flow) SetFields(values map[string]string) error {
	var toggle *bool
	if v, ok := values["same_as_billing"]; ok {
		enabled, err := parseBool("same_as_billing", v)
		if err != nil {
			return err
		}
		toggle = &enabled
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable(); err != nil {
		return err
	}

	form, stash := f.form, f.stash
	if toggle != nil && !*toggle {
		applySameAsBilling(&form, &stash, false)
	}
	for _, id := range slices.Sorted(maps.Keys(values)) {
		if id == "same_as_billing" {
			continue
		}
		if err := setText(&form, id, values[id]); err != nil {
			return err
		}
	}
	if toggle != nil && *toggle {
		applySameAsBilling(&form, &stash, true)
	}

	f.form, f.stash = form, stash
	return nil
}

// SetSameAsBilling(true) copies billing over shipping, keeping the previous
// shipping values; SetSameAsBilling(false) brings them back. While the flag
// is on the shipping fields are read-only, so the restored values are always
// the last ones the shopper typed.
func (f *Flow) SetSameAsBilling(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable(); err != nil {
		return err
	}
	applySameAsBilling(&f.form, &f.stash, enabled)
	return nil
}

func applySameAsBilling(form *Form, stash *Address, enabled bool) {
	if enabled == form.SameAsBilling {
		return
	}
	if enabled {
		*stash = form.Shipping()
		form.setShipping(form.Billing())
	} else {
		form.setShipping(*stash)
	}
	form.SameAsBilling = enabled
}

func setText(form *Form, id, value string) error {
	p, ok := form.text(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	if id == "payment_method" && value != PaymentMethodCreditCard {
		return &ValidationError{Field: id, Reason: "only credit_card is accepted"}
	}
	// echoing the mirrored value back is allowed, changing it is not
	if form.SameAsBilling && strings.HasPrefix(id, "shipping_") && value != *p {
		return &ValidationError{Field: id, Reason: "cannot be edited while same_as_billing is set"}
	}
	*p = value
	return nil
}

// Next moves from information to payment when the form is complete.
func (f *Flow) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmissionInFlight
	}
	if f.step != StepInformation {
		return ErrInvalidStep
	}
	if err := f.form.Validate(); err != nil {
		return err
	}
	f.step = StepPayment
	f.lastError = ""
	return nil
}

// Back returns from payment to information.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmissionInFlight
	}
	if f.step != StepPayment {
		return ErrInvalidStep
	}
	f.step = StepInformation
	return nil
}

// Reset starts over with an empty form. Used by "continue shopping".
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmissionInFlight
	}
	f.reset()
	return nil
}

// PlaceOrder submits the form and the cart contents. On success the flow
// moves to confirmation and payment confirmation starts in the background;
// on failure it stays on the payment step and the error is kept for display.
func (f *Flow) PlaceOrder(ctx context.Context, c *cart.Cart) (*Order, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if f.step != StepPayment {
		f.mu.Unlock()
		return nil, ErrInvalidStep
	}
	if c == nil || c.IsEmpty() {
		f.mu.Unlock()
		return nil, ErrEmptyCart
	}
	if err := f.form.Validate(); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	req := OrderRequest{
		UserID: f.userID,
		Form:   f.form.Snapshot(),
		Totals: c.Totals(),
	}
	for _, it := range c.Items() {
		req.Items = append(req.Items, OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	f.submitting = true
	f.lastError = ""
	f.mu.Unlock()

	log := logger.WithContext(ctx, f.log)
	submitCtx, cancel := context.WithTimeout(ctx, f.submitTimeout)
	order, err := f.placer.CreateOrder(submitCtx, req)
	cancel()

	if err == nil && (order == nil || order.OrderNumber == "") {
		err = fmt.Errorf("%w: order number missing", ErrMalformedResponse)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false

	if err != nil {
		cerr := classify(err)
		f.lastError = cerr.Message
		log.WithError(err).WithField("status", cerr.Status).Warn("Order submission failed")
		return nil, cerr
	}

	f.step = StepConfirmation
	f.order = order
	f.submitted = &req.Totals
	f.payment = startPayment(ctx, f.placer, order.OrderNumber, f.paymentTimeout, f.log, f.observer)
	log.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(pricing.CurrencyPlaces),
	}).Info("Order placed")

	o := *order
	return &o, nil
}

func classify(err error) *CollaboratorError {
	var cerr *CollaboratorError
	switch {
	case errors.As(err, &cerr):
		return cerr
	case errors.Is(err, ErrMalformedResponse):
		return &CollaboratorError{Status: http.StatusBadGateway, Message: GenericFailureMessage, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &CollaboratorError{Status: http.StatusGatewayTimeout, Message: "The order service did not answer in time. Please try again.", Err: err}
	default:
		return &CollaboratorError{Status: http.StatusBadGateway, Message: err.Error(), Err: err}
	}
}
