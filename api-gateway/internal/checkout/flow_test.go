package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	mu         sync.Mutex
	requests   []OrderRequest
	createErr  error
	confirmErr error
	order      *Order
	// closed by the test to let CreateOrder return
	release chan struct{}
	entered chan struct{}
	confirm chan string
}

func newFakePlacer() *fakePlacer {
	return &fakePlacer{
		order:   &Order{OrderNumber: "ORD-1", Status: "pending"},
		confirm: make(chan string, 4),
	}
}

func (p *fakePlacer) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	release, entered := p.release, p.entered
	p.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.createErr != nil {
		return nil, p.createErr
	}
	o := *p.order
	o.TotalAmount = req.Totals.Total
	return &o, nil
}

func (p *fakePlacer) ConfirmPayment(_ context.Context, orderNumber string) (*Order, error) {
	p.confirm <- orderNumber
	if p.confirmErr != nil {
		return nil, p.confirmErr
	}
	return &Order{OrderNumber: orderNumber, Status: "confirmed", PaymentID: "pay-1"}, nil
}

func (p *fakePlacer) lastRequest() OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func fillExample(t *testing.T, f *Flow) {
	t.Helper()
	require.NoError(t, f.SetFields(map[string]string{
		"customer_email":        "a@b.com",
		"customer_name":         "A B",
		"billing_address_line1": "1 Main St",
		"billing_city":          "X",
		"billing_state":         "Y",
		"billing_zip":           "00000",
	}))
}

func cartWith(price string, qty int) *cart.Cart {
	c := cart.New()
	c.AddItem(cart.Item{ProductID: 7, SKU: "BRK-1001", Name: "Brake pads", UnitPrice: decimal.RequireFromString(price)}, qty)
	return c
}

func TestNext_ExampleFormAdvances(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)

	require.NoError(t, f.Next())
	assert.Equal(t, StepPayment, f.Step())
}

func TestNext_ReportsFirstMissingField(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.SetField("billing_city", ""))

	err := f.Next()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "billing_city", verr.Field)
	assert.Equal(t, StepInformation, f.Step())
}

func TestNext_FieldOrder(t *testing.T) {
	f := NewFlow(newFakePlacer())

	want := []string{"customer_email", "customer_name", "billing_address_line1", "billing_city", "billing_state", "billing_zip"}
	values := map[string]string{
		"customer_email":        "a@b.com",
		"customer_name":         "A B",
		"billing_address_line1": "1 Main St",
		"billing_city":          "X",
		"billing_state":         "Y",
		"billing_zip":           "00000",
	}
	for _, id := range want {
		var verr *ValidationError
		require.ErrorAs(t, f.Next(), &verr)
		assert.Equal(t, id, verr.Field)
		require.NoError(t, f.SetField(id, values[id]))
	}
	assert.NoError(t, f.Next())
}

func TestNext_WhitespaceIsEmpty(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.SetField("customer_name", "   "))

	var verr *ValidationError
	require.ErrorAs(t, f.Next(), &verr)
	assert.Equal(t, "customer_name", verr.Field)
}

func TestNext_ShippingRequiredWhenDifferent(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.SetSameAsBilling(false))

	var verr *ValidationError
	require.ErrorAs(t, f.Next(), &verr)
	assert.Equal(t, "shipping_address_line1", verr.Field)

	require.NoError(t, f.SetFields(map[string]string{
		"shipping_address_line1": "2 Side St",
		"shipping_city":          "Z",
		"shipping_state":         "Y",
	}))
	require.ErrorAs(t, f.Next(), &verr)
	assert.Equal(t, "shipping_zip", verr.Field)

	require.NoError(t, f.SetField("shipping_zip", "11111"))
	assert.NoError(t, f.Next())
}

func TestSameAsBilling_OverwritesAndRestores(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.SetSameAsBilling(false))
	require.NoError(t, f.SetField("shipping_address_line1", "2 Side St"))
	require.NoError(t, f.SetField("shipping_city", "Elsewhere"))

	require.NoError(t, f.SetSameAsBilling(true))
	form := f.Form()
	assert.Equal(t, "1 Main St", form.ShippingAddressLine1)
	assert.Equal(t, "X", form.ShippingCity)
	assert.Equal(t, "00000", form.ShippingZip)

	require.NoError(t, f.SetSameAsBilling(false))
	form = f.Form()
	assert.Equal(t, "2 Side St", form.ShippingAddressLine1)
	assert.Equal(t, "Elsewhere", form.ShippingCity)
	assert.Empty(t, form.ShippingZip)
}

func TestSameAsBilling_RepeatedEnableKeepsStash(t *testing.T) {
	f := NewFlow(newFakePlacer())
	require.NoError(t, f.SetSameAsBilling(false))
	require.NoError(t, f.SetField("shipping_city", "Kept"))
	require.NoError(t, f.SetSameAsBilling(true))
	require.NoError(t, f.SetSameAsBilling(true))
	require.NoError(t, f.SetSameAsBilling(false))

	assert.Equal(t, "Kept", f.Form().ShippingCity)
}

func TestSetField_Errors(t *testing.T) {
	f := NewFlow(newFakePlacer())

	assert.ErrorIs(t, f.SetField("favourite_colour", "red"), ErrUnknownField)

	var verr *ValidationError
	require.ErrorAs(t, f.SetField("payment_method", "cash"), &verr)
	assert.Equal(t, "payment_method", verr.Field)

	require.ErrorAs(t, f.SetField("same_as_billing", "maybe"), &verr)
	assert.Equal(t, "same_as_billing", verr.Field)

	require.NoError(t, f.SetField("same_as_billing", "false"))
	assert.False(t, f.Form().SameAsBilling)
}

func TestSetFields_RejectedBatchLeavesFormUnchanged(t *testing.T) {
	for range 50 {
		f := NewFlow(newFakePlacer())
		before := f.Form()

		var verr *ValidationError
		require.ErrorAs(t, f.SetFields(map[string]string{
			"customer_email": "a@b.com",
			"customer_name":  "A B",
			"payment_method": "cash",
		}), &verr)
		assert.Equal(t, "payment_method", verr.Field)
		assert.Equal(t, before, f.Form())

		err := f.SetFields(map[string]string{
			"billing_city":     "X",
			"favourite_colour": "red",
			"same_as_billing":  "false",
		})
		assert.ErrorIs(t, err, ErrUnknownField)
		assert.Equal(t, before, f.Form())
	}
}

func TestSetFields_ReportsSameFieldEveryTime(t *testing.T) {
	for range 50 {
		f := NewFlow(newFakePlacer())
		var verr *ValidationError
		require.ErrorAs(t, f.SetFields(map[string]string{
			"shipping_city":  "Elsewhere",
			"payment_method": "cash",
		}), &verr)
		assert.Equal(t, "payment_method", verr.Field)
	}
}

func TestSetFields_DisableAndFillShippingInOneBatch(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)

	require.NoError(t, f.SetFields(map[string]string{
		"same_as_billing":        "false",
		"shipping_address_line1": "2 Side St",
		"shipping_city":          "Z",
		"shipping_state":         "Y",
		"shipping_zip":           "11111",
	}))

	form := f.Form()
	assert.False(t, form.SameAsBilling)
	assert.Equal(t, "Z", form.ShippingCity)
	assert.NoError(t, f.Next())
}

func TestSameAsBilling_ShippingIsReadOnly(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.SetSameAsBilling(false))
	require.NoError(t, f.SetField("shipping_city", "Harbor"))
	require.NoError(t, f.SetSameAsBilling(true))

	var verr *ValidationError
	require.ErrorAs(t, f.SetField("shipping_city", "Dock Town"), &verr)
	assert.Equal(t, "shipping_city", verr.Field)

	// the mirrored value can be sent back as is
	require.NoError(t, f.SetField("shipping_city", "X"))

	require.NoError(t, f.SetSameAsBilling(false))
	assert.Equal(t, "Harbor", f.Form().ShippingCity)
}

func TestBack(t *testing.T) {
	f := NewFlow(newFakePlacer())
	assert.ErrorIs(t, f.Back(), ErrInvalidStep)

	fillExample(t, f)
	require.NoError(t, f.Next())
	require.NoError(t, f.Back())
	assert.Equal(t, StepInformation, f.Step())
}

func TestPlaceOrder_Success(t *testing.T) {
	placer := newFakePlacer()
	f := NewFlow(placer, WithUserID("user-1"))
	fillExample(t, f)
	require.NoError(t, f.Next())

	order, err := f.PlaceOrder(context.Background(), cartWith("300.00", 2))

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", order.OrderNumber)
	assert.Equal(t, StepConfirmation, f.Step())

	req := placer.lastRequest()
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "1 Main St", req.Form.ShippingAddressLine1)
	assert.Equal(t, "X", req.Form.ShippingCity)
	require.Len(t, req.Items, 1)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.Equal(t, "648.00", req.Totals.Total.StringFixed(2))
	assert.Equal(t, "48.00", req.Totals.Tax.StringFixed(2))
	assert.True(t, req.Totals.ShippingFee.IsZero())

	task := f.Payment()
	require.NotNil(t, task)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, PaymentSucceeded, res.Status)
	assert.Equal(t, "ORD-1", <-placer.confirm)

	assert.ErrorIs(t, f.Back(), ErrInvalidStep)
	assert.ErrorIs(t, f.SetField("customer_name", "x"), ErrInvalidStep)
}

func TestPlaceOrder_WrongStepOrEmptyCart(t *testing.T) {
	f := NewFlow(newFakePlacer())
	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))
	assert.ErrorIs(t, err, ErrInvalidStep)

	fillExample(t, f)
	require.NoError(t, f.Next())
	_, err = f.PlaceOrder(context.Background(), cart.New())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StepPayment, f.Step())
}

func TestPlaceOrder_CollaboratorErrorKeptVerbatim(t *testing.T) {
	placer := newFakePlacer()
	placer.createErr = &CollaboratorError{Status: http.StatusConflict, Message: "Brake pads is out of stock"}
	f := NewFlow(placer)
	fillExample(t, f)
	require.NoError(t, f.Next())

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))

	var cerr *CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Brake pads is out of stock", cerr.Message)
	assert.Equal(t, http.StatusConflict, cerr.Status)
	assert.Equal(t, StepPayment, f.Step())
	assert.Equal(t, "Brake pads is out of stock", f.View().LastError)
	assert.Nil(t, f.Payment())

	placer.createErr = nil
	_, err = f.PlaceOrder(context.Background(), cartWith("1.00", 1))
	require.NoError(t, err)
	assert.Empty(t, f.View().LastError)
}

func TestPlaceOrder_MalformedResponseGetsGenericMessage(t *testing.T) {
	placer := newFakePlacer()
	placer.createErr = fmt.Errorf("orders: %w: unexpected EOF", ErrMalformedResponse)
	f := NewFlow(placer)
	fillExample(t, f)
	require.NoError(t, f.Next())

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))

	var cerr *CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, GenericFailureMessage, cerr.Message)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPlaceOrder_MissingOrderNumberIsMalformed(t *testing.T) {
	placer := newFakePlacer()
	placer.order = &Order{}
	f := NewFlow(placer)
	fillExample(t, f)
	require.NoError(t, f.Next())

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, StepPayment, f.Step())
}

func TestPlaceOrder_Timeout(t *testing.T) {
	placer := newFakePlacer()
	placer.release = make(chan struct{})
	defer close(placer.release)
	f := NewFlow(placer, WithSubmitTimeout(20*time.Millisecond))
	fillExample(t, f)
	require.NoError(t, f.Next())

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))

	var cerr *CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusGatewayTimeout, cerr.Status)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StepPayment, f.Step())
}

func TestPlaceOrder_RejectsReentry(t *testing.T) {
	placer := newFakePlacer()
	placer.release = make(chan struct{})
	placer.entered = make(chan struct{})
	f := NewFlow(placer)
	fillExample(t, f)
	require.NoError(t, f.Next())

	done := make(chan error, 1)
	go func() {
		_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))
		done <- err
	}()
	<-placer.entered

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Back(), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.SetField("notes", "x"), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Reset(), ErrSubmissionInFlight)
	assert.True(t, f.View().Submitting)

	close(placer.release)
	require.NoError(t, <-done)
	assert.Equal(t, StepConfirmation, f.Step())
}

func TestPayment_FailureDoesNotChangeStep(t *testing.T) {
	placer := newFakePlacer()
	placer.confirmErr = errors.New("payment gateway down")
	results := make(chan PaymentResult, 1)
	f := NewFlow(placer, WithPaymentObserver(func(r PaymentResult) { results <- r }))
	fillExample(t, f)
	require.NoError(t, f.Next())

	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))
	require.NoError(t, err)

	select {
	case res := <-results:
		assert.Equal(t, PaymentFailed, res.Status)
		assert.EqualError(t, res.Err, "payment gateway down")
	case <-time.After(time.Second):
		t.Fatal("payment observer was not called")
	}
	assert.Equal(t, PaymentFailed, f.Payment().Status())
	assert.Equal(t, StepConfirmation, f.Step())
	assert.Equal(t, PaymentFailed, f.View().Payment)
}

func TestPayment_OutlivesRequestContext(t *testing.T) {
	placer := newFakePlacer()
	f := NewFlow(placer)
	fillExample(t, f)
	require.NoError(t, f.Next())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.PlaceOrder(ctx, cartWith("1.00", 1))
	require.NoError(t, err)
	cancel()

	select {
	case <-f.Payment().Done():
	case <-time.After(time.Second):
		t.Fatal("payment task did not finish")
	}
	assert.Equal(t, PaymentSucceeded, f.Payment().Status())
}

func TestReset(t *testing.T) {
	f := NewFlow(newFakePlacer())
	fillExample(t, f)
	require.NoError(t, f.Next())
	_, err := f.PlaceOrder(context.Background(), cartWith("1.00", 1))
	require.NoError(t, err)

	require.NoError(t, f.Reset())

	v := f.View()
	assert.Equal(t, StepInformation, v.Step)
	assert.Empty(t, v.Form.CustomerEmail)
	assert.True(t, v.Form.SameAsBilling)
	assert.Nil(t, v.Order)
	assert.Empty(t, v.Payment)
}
