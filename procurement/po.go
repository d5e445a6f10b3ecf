/*
Package procurement manages purchase orders and their effect on the budget.

PURPOSE:
  A purchase order (PO) represents obligated-but-unpaid spend against a
  single sub-account. Its lifecycle:

    draft ──▶ pending ──▶ approved   (terminal, commits the amount)
                     └──▶ rejected   (terminal, no ledger effect)

  The transition to approved happens only when every approval step has
  been approved. At that moment, and exactly once, the engine adjusts the
  referenced sub-account's committed figure by +amount. A rejection at any
  step is terminal and leaves the ledger untouched.

SEE ALSO:
  - engine.go: lifecycle operations
  - approval: the step resolution rules
*/
package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a purchase order. The set is closed;
// transition legality is checked exhaustively in the engine.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// =============================================================================
// PURCHASE ORDER
// =============================================================================

type POID string

// PurchaseOrder is a commitment of budget against one sub-account.
type PurchaseOrder struct {
	ID           POID
	ProjectID    ledger.ProjectID
	Number       string
	SupplierID   string
	SupplierName string
	Description  string

	// BudgetAccount references the sub-account the amount commits against.
	BudgetAccount ledger.SubAccountID
	Amount        decimal.Decimal

	Status      Status
	Steps       []approval.Step
	CurrentStep int

	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// anyStepResolved reports whether an approval has been recorded on any step.
// A PO with recorded approvals can no longer be deleted.
func (po *PurchaseOrder) anyStepResolved() bool {
	for _, s := range po.Steps {
		if s.Status != approval.StepPending {
			return true
		}
	}
	return false
}
