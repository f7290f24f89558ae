package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcCharge(t *testing.T) {
	tests := []struct {
		name   string
		roll   int
		status Status
		reason string
	}{
		{"success", 0, StatusSucceeded, ""},
		{"success", 94, StatusSucceeded, ""},
		{"failed unknown", 95, StatusFailed, RefusalUnknown},
		{"failed funds", 96, StatusFailed, RefusalInsufficientFunds},
		{"failed declined", 97, StatusFailed, RefusalCardDeclined},
		{"failed expired", 98, StatusFailed, RefusalExpiredCard},
		{"failed fraud", 99, StatusFailed, RefusalFraudSuspected},
		{"failed limit", 100, StatusFailed, RefusalLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := calcCharge(tt.roll)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.reason, c.Reason)
			assert.Regexp(t, `^TXN-`, c.TransactionID)
		})
	}
}

func TestRandomCharger_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RandomCharger{}.Charge(ctx, "ORD-1", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, context.Canceled)

	c, err := RandomCharger{}.Charge(context.Background(), "ORD-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusSucceeded, StatusFailed}, c.Status)
}

func TestFixedCharger(t *testing.T) {
	c, err := FixedCharger{Status: StatusFailed, Reason: RefusalCardDeclined}.Charge(context.Background(), "ORD-1", decimal.Zero)
	require.NoError(t, err)
	assert.False(t, c.Succeeded())
	assert.Equal(t, RefusalCardDeclined, c.Reason)
}
