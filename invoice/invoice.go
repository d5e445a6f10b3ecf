/*
Package invoice manages supplier invoices and their effect on realized spend.

PURPOSE:
  Invoices are the realized-spend side of the budget. A paid invoice's line
  items add to the referenced sub-accounts' actual figures; everything
  before payment is workflow.

LIFECYCLE:

  pending_approval ──▶ pending ──▶ paid       (terminal)
         │                │   └──▶ overdue ──▶ paid / cancelled
         │                └──────▶ cancelled  (terminal)
         └──────────────────────▶ rejected    (terminal)

  - An invoice created with no approval steps starts directly in pending.
  - pending -> overdue is time-based and observational only: the sweep is
    idempotent and never touches paid, cancelled, or rejected invoices.
  - overdue reverses only through payment.
  - cancelled is reachable from pending/overdue, never from paid.

LINE-ITEM MATH:
  Every amount is decimal, rounded to cents:
    baseAmount = quantity * unitPrice
    vatAmount  = baseAmount * vatRate / 100
    irpfAmount = baseAmount * irpfRate / 100   (withholding, subtracts)
    totalAmount = baseAmount + vatAmount - irpfAmount
  Aggregates on the invoice are the sums over its items.

SEE ALSO:
  - engine.go: transitions and the payment fan-out
  - procurement: the committed-spend counterpart
*/
package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of an invoice. The set is closed; transition
// legality is checked exhaustively in the engine.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusPending         Status = "pending"
	StatusPaid            Status = "paid"
	StatusOverdue         Status = "overdue"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusRejected
}

// Payable reports whether MarkAsPaid is legal from this status.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusOverdue
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// Item is one invoice line. Items referencing a sub-account contribute their
// base amount to that sub-account's actual figure when the invoice is paid;
// items without a sub-account reference are tracked but have no ledger
// effect.
type Item struct {
	SubAccountID   ledger.SubAccountID
	SubAccountCode string
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	BaseAmount     decimal.Decimal
	VATRate        decimal.Decimal
	VATAmount      decimal.Decimal
	IRPFRate       decimal.Decimal
	IRPFAmount     decimal.Decimal
	TotalAmount    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputeAmounts fills the derived amounts from quantity, unit price, and
// rates, rounding each money figure to cents.
func (it *Item) ComputeAmounts() {
	it.BaseAmount = it.Quantity.Mul(it.UnitPrice).Round(2)
	it.VATAmount = it.BaseAmount.Mul(it.VATRate).Div(hundred).Round(2)
	it.IRPFAmount = it.BaseAmount.Mul(it.IRPFRate).Div(hundred).Round(2)
	it.TotalAmount = it.BaseAmount.Add(it.VATAmount).Sub(it.IRPFAmount)
}

// =============================================================================
// INVOICE
// =============================================================================

type InvoiceID string

type Invoice struct {
	ID           InvoiceID
	ProjectID    ledger.ProjectID
	Number       string
	SupplierID   string
	SupplierName string
	Description  string

	// Optional link to the purchase order this invoice settles.
	POID     string
	PONumber string

	Items []Item

	// Aggregates over Items.
	BaseAmount  decimal.Decimal
	VATAmount   decimal.Decimal
	IRPFAmount  decimal.Decimal
	TotalAmount decimal.Decimal

	Status      Status
	Steps       []approval.Step
	CurrentStep int

	DueDate     time.Time
	PaymentDate *time.Time

	CreatedAt          time.Time
	RejectedAt         *time.Time
	RejectionReason    string
	CancelledAt        *time.Time
	CancellationReason string
}

// computeAggregates recomputes the invoice-level totals from its items.
func (inv *Invoice) computeAggregates() {
	inv.BaseAmount = decimal.Zero
	inv.VATAmount = decimal.Zero
	inv.IRPFAmount = decimal.Zero
	inv.TotalAmount = decimal.Zero
	for _, it := range inv.Items {
		inv.BaseAmount = inv.BaseAmount.Add(it.BaseAmount)
		inv.VATAmount = inv.VATAmount.Add(it.VATAmount)
		inv.IRPFAmount = inv.IRPFAmount.Add(it.IRPFAmount)
		inv.TotalAmount = inv.TotalAmount.Add(it.TotalAmount)
	}
}
