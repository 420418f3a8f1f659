package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPendingPayment, StatusPaid},
		{StatusPendingPayment, StatusFailed},
		{StatusPendingPayment, StatusCanceled},
		// A retried payment on the same intent can still mark the order paid.
		{StatusFailed, StatusPaid},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to string }{
		{StatusPaid, StatusFailed},
		{StatusPaid, StatusCanceled},
		{StatusPaid, StatusPendingPayment},
		{StatusFailed, StatusCanceled},
		{StatusFailed, StatusPendingPayment},
		{StatusCanceled, StatusPaid},
		{StatusPaid, StatusPaid},
		{StatusFailed, StatusFailed},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
