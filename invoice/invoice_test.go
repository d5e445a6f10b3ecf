package invoice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// LINE-ITEM MATH TESTS
// =============================================================================

func TestComputeAmounts_SpanishVATAndWithholding(t *testing.T) {
	// 3 days * 400.00, 21% VAT, 15% IRPF withholding.
	it := invoice.Item{
		Quantity:  ledger.MustDecimal("3"),
		UnitPrice: ledger.MustDecimal("400.00"),
		VATRate:   ledger.MustDecimal("21"),
		IRPFRate:  ledger.MustDecimal("15"),
	}
	it.ComputeAmounts()

	assert.Equal(t, "1200", it.BaseAmount.String())
	assert.Equal(t, "252", it.VATAmount.String())
	assert.Equal(t, "180", it.IRPFAmount.String())
	assert.Equal(t, "1272", it.TotalAmount.String())
}

func TestComputeAmounts_RoundsToCents(t *testing.T) {
	// 7 * 14.99 = 104.93; 21% of that is 22.0353, rounded to 22.04.
	it := invoice.Item{
		Quantity:  ledger.MustDecimal("7"),
		UnitPrice: ledger.MustDecimal("14.99"),
		VATRate:   ledger.MustDecimal("21"),
	}
	it.ComputeAmounts()

	assert.Equal(t, "104.93", it.BaseAmount.String())
	assert.Equal(t, "22.04", it.VATAmount.String())
	assert.Equal(t, "0", it.IRPFAmount.String())
	assert.Equal(t, "126.97", it.TotalAmount.String())
}

func TestComputeAmounts_FractionalQuantity(t *testing.T) {
	// Half a day at 1000.01.
	it := invoice.Item{
		Quantity:  ledger.MustDecimal("0.5"),
		UnitPrice: ledger.MustDecimal("1000.01"),
	}
	it.ComputeAmounts()

	assert.Equal(t, "500.01", it.BaseAmount.String(), "500.005 rounds half away from zero")
	assert.Equal(t, "500.01", it.TotalAmount.String())
}

// =============================================================================
// STATUS PREDICATE TESTS
// =============================================================================

func TestStatusPredicates(t *testing.T) {
	terminal := []invoice.Status{invoice.StatusPaid, invoice.StatusCancelled, invoice.StatusRejected}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
		assert.False(t, s.Payable(), "%s should not be payable", s)
	}

	assert.True(t, invoice.StatusPending.Payable())
	assert.True(t, invoice.StatusOverdue.Payable())
	assert.False(t, invoice.StatusPendingApproval.Payable())
	assert.False(t, invoice.StatusOverdue.Terminal(), "overdue still moves to paid or cancelled")
}
