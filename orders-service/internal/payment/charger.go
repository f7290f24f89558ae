// Package payment simulates the card processor behind confirm-payment.
package payment

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Refusal reasons reported for a declined charge.
const (
	RefusalUnknown           = "unknown reason"
	RefusalInsufficientFunds = "insufficient funds"
	RefusalCardDeclined      = "card declined"
	RefusalExpiredCard       = "expired card"
	RefusalFraudSuspected    = "fraud suspected"
	RefusalLimitExceeded     = "limit exceeded"
)

var refusals = []string{
	RefusalUnknown,
	RefusalInsufficientFunds,
	RefusalCardDeclined,
	RefusalExpiredCard,
	RefusalFraudSuspected,
	RefusalLimitExceeded,
}

// SuccessRate is the share of simulated charges that go through, in percent.
const SuccessRate = 95

type Charge struct {
	Status        Status
	TransactionID string
	Reason        string
}

func (c Charge) Succeeded() bool { return c.Status == StatusSucceeded }

type Charger interface {
	Charge(ctx context.Context, orderNumber string, amount decimal.Decimal) (Charge, error)
}

// RandomCharger approves SuccessRate percent of charges and declines the rest
// with one of the refusal reasons.
type RandomCharger struct{}

func (RandomCharger) Charge(ctx context.Context, _ string, _ decimal.Decimal) (Charge, error) {
	if err := ctx.Err(); err != nil {
		return Charge{}, err
	}
	return calcCharge(rand.IntN(101)), nil // 101 because IntN is exclusive of the upper bound
}

func calcCharge(roll int) Charge {
	c := Charge{TransactionID: newTransactionID()}
	if roll < SuccessRate {
		c.Status = StatusSucceeded
		return c
	}
	c.Status = StatusFailed
	reason := roll - SuccessRate
	if reason <= 0 || reason >= len(refusals) {
		reason = 0
	}
	c.Reason = refusals[reason]
	return c
}

func newTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:13])
}

// FixedCharger always answers with the same outcome. Used in tests and demos.
type FixedCharger struct {
	Status Status
	Reason string
	Err    error
}

func (f FixedCharger) Charge(context.Context, string, decimal.Decimal) (Charge, error) {
	if f.Err != nil {
		return Charge{}, f.Err
	}
	return Charge{Status: f.Status, TransactionID: newTransactionID(), Reason: f.Reason}, nil
}
