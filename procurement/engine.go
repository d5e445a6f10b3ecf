/*
engine.go - Purchase order lifecycle engine

PURPOSE:
  Orchestrates PO creation, submission, step approval/rejection, and
  deletion. The engine owns the ordering guarantee around the single
  ledger side effect:

    1. Every approval step approved
    2. AdjustCommitted(budgetAccount, +amount)   <- ledger delta first
    3. Guarded status flip to approved           <- then the flip

  The flip is a conditional store update keyed on the status and step
  observed when the PO was read. Two concurrent resolutions of the same
  step therefore race on the flip, not on the ledger: exactly one wins,
  the loser fails with ConflictError and compensates its committed delta,
  so the amount lands exactly once. If the adjustment itself fails, the
  PO stays pending with nothing committed.

DELETION POLICY:
  Draft and pending POs with no approvals recorded may be deleted.
  Anything else fails with ConflictError: an approved PO has already
  committed budget, and a partially approved one has audit trail worth
  keeping.

SEE ALSO:
  - po.go: entity and status set
  - invoice/engine.go: the same pattern for invoices
*/
package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/ledger"
)

// Engine manages the purchase order lifecycle.
type Engine struct {
	store  Store
	ledger ledger.Store
	now    func() time.Time
}

// NewEngine creates a PO engine over the given stores.
func NewEngine(store Store, ledgerStore ledger.Store) *Engine {
	return &Engine{store: store, ledger: ledgerStore, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// =============================================================================
// CREATION
// =============================================================================

// CreateInput carries the fields for a new purchase order.
type CreateInput struct {
	ProjectID     ledger.ProjectID
	Number        string
	SupplierID    string
	SupplierName  string
	Description   string
	BudgetAccount ledger.SubAccountID
	Amount        decimal.Decimal
	Steps         []approval.Step
	// Submit creates the PO directly in pending instead of draft.
	Submit bool
}

// Create validates the input and persists a new PO in draft (or pending
// when Submit is set). The referenced sub-account must exist.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*PurchaseOrder, error) {
	if in.Number == "" {
		return nil, &ledger.ValidationError{Field: "number", Reason: "must not be empty"}
	}
	if !in.Amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	sub, err := e.ledger.GetSubAccount(ctx, in.ProjectID, in.BudgetAccount)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &ledger.NotFoundError{Kind: "subaccount", ID: string(in.BudgetAccount)}
	}

	status := StatusDraft
	if in.Submit {
		status = StatusPending
	}

	po := PurchaseOrder{
		ID:            POID(uuid.NewString()),
		ProjectID:     in.ProjectID,
		Number:        in.Number,
		SupplierID:    in.SupplierID,
		SupplierName:  in.SupplierName,
		Description:   in.Description,
		BudgetAccount: in.BudgetAccount,
		Amount:        in.Amount,
		Status:        status,
		Steps:         in.Steps,
		CurrentStep:   0,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.store.Create(ctx, po); err != nil {
		return nil, err
	}
	return &po, nil
}

// Submit moves a draft PO into the approval workflow.
func (e *Engine) Submit(ctx context.Context, projectID ledger.ProjectID, id POID) (*PurchaseOrder, error) {
	po, err := e.get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if po.Status != StatusDraft {
		return nil, &ledger.InvalidStateError{Entity: "purchase_order", Status: string(po.Status), Action: "submit"}
	}

	po.Status = StatusPending
	if err := e.store.Update(ctx, *po); err != nil {
		return nil, err
	}
	return po, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// ResolveStep records the acting user's decision on the current approval
// step. Full approval commits the amount against the budget account and
// flips the PO to approved; any rejection is terminal with no ledger effect.
func (e *Engine) ResolveStep(ctx context.Context, projectID ledger.ProjectID, id POID, actingUser ledger.UserID, decision approval.Decision) (*PurchaseOrder, error) {
	po, err := e.get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if po.Status != StatusPending {
		return nil, &ledger.InvalidStateError{Entity: "purchase_order", Status: string(po.Status), Action: "resolve approval step"}
	}
	fromStep := po.CurrentStep

	at := e.now().UTC()
	outcome, err := approval.Resolve(po.Steps, &po.CurrentStep, actingUser, decision, at)
	if err != nil {
		return nil, err
	}

	var committed bool
	switch outcome {
	case approval.OutcomeRejected:
		po.Status = StatusRejected

	case approval.OutcomeFullyApproved:
		// Ledger delta before status flip: if the adjustment fails the PO
		// stays pending and nothing was committed.
		if err := e.ledger.AdjustCommitted(ctx, projectID, po.BudgetAccount, po.Amount); err != nil {
			return nil, fmt.Errorf("commit budget for po %s: %w", po.Number, err)
		}
		committed = true
		po.Status = StatusApproved
		po.ApprovedAt = &at

	case approval.OutcomeAdvanced:
		// Still pending on a later step.
	}

	// Guarded update: fails when a concurrent resolution already moved the
	// PO past the step this caller read. The loser takes back its delta.
	if err := e.store.UpdateIf(ctx, *po, StatusPending, fromStep); err != nil {
		if committed {
			_ = e.ledger.AdjustCommitted(ctx, projectID, po.BudgetAccount, po.Amount.Neg())
		}
		return nil, err
	}
	return po, nil
}

// =============================================================================
// DELETION
// =============================================================================

// Delete removes a PO. Permitted only in draft or pending with no approvals
// recorded yet; everything else fails with ConflictError.
func (e *Engine) Delete(ctx context.Context, projectID ledger.ProjectID, id POID) error {
	po, err := e.get(ctx, projectID, id)
	if err != nil {
		return err
	}
	if po.Status.Terminal() || po.anyStepResolved() {
		return &ledger.ConflictError{Reason: "purchase order has recorded approvals and cannot be deleted"}
	}
	return e.store.Delete(ctx, projectID, id)
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a PO or NotFoundError.
func (e *Engine) Get(ctx context.Context, projectID ledger.ProjectID, id POID) (*PurchaseOrder, error) {
	return e.get(ctx, projectID, id)
}

// List returns all POs for a project.
func (e *Engine) List(ctx context.Context, projectID ledger.ProjectID) ([]PurchaseOrder, error) {
	return e.store.List(ctx, projectID)
}

func (e *Engine) get(ctx context.Context, projectID ledger.ProjectID, id POID) (*PurchaseOrder, error) {
	po, err := e.store.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, &ledger.NotFoundError{Kind: "purchase_order", ID: string(id)}
	}
	return po, nil
}
