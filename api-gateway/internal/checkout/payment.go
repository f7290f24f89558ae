package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentResult struct {
	OrderNumber string
	Status      PaymentStatus
	// Order as returned by the confirm call, nil on failure.
	Order *Order
	Err   error
}

// PaymentTask confirms the payment of a freshly placed order in the background.
// Its outcome never changes the checkout step.
type PaymentTask struct {
	orderNumber string
	done        chan struct{}

	mu     sync.Mutex
	result PaymentResult
}

func startPayment(ctx context.Context, placer OrderPlacer, orderNumber string, timeout time.Duration,
	log *logrus.Entry, observer func(PaymentResult)) *PaymentTask {
	t := &PaymentTask{
		orderNumber: orderNumber,
		done:        make(chan struct{}),
		result:      PaymentResult{OrderNumber: orderNumber, Status: PaymentPending},
	}

	// detached from the request that placed the order
	ctx = context.WithoutCancel(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		order, err := placer.ConfirmPayment(ctx, orderNumber)
		res := PaymentResult{OrderNumber: orderNumber, Status: PaymentSucceeded, Order: order, Err: err}
		if err != nil {
			res.Status = PaymentFailed
			res.Order = nil
			log.WithError(err).WithField("order_number", orderNumber).Warn("Payment confirmation failed")
		} else if order != nil && order.Status == "payment_failed" {
			res.Status = PaymentFailed
			log.WithField("order_number", orderNumber).Warn("Payment was declined")
		} else {
			log.WithField("order_number", orderNumber).Info("Payment confirmed")
		}

		t.mu.Lock()
		t.result = res
		t.mu.Unlock()
		close(t.done)

		if observer != nil {
			observer(res)
		}
	}()

	return t
}

func (t *PaymentTask) OrderNumber() string {
	return t.orderNumber
}

// Done is closed once the confirm call has finished.
func (t *PaymentTask) Done() <-chan struct{} {
	return t.done
}

func (t *PaymentTask) Status() PaymentStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result.Status
}

// Result returns the outcome so far; Status is pending until Done is closed.
func (t *PaymentTask) Result() PaymentResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Wait blocks until the task finishes or ctx is done.
func (t *PaymentTask) Wait(ctx context.Context) (PaymentResult, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return t.Result(), ctx.Err()
	}
}
