/*
engine.go - Invoice lifecycle engine

PURPOSE:
  Orchestrates invoice creation, approval, payment, cancellation, deletion,
  and the overdue sweep.

PAYMENT FAN-OUT:
  Paying an invoice touches N sub-accounts, one AdjustActual per line item
  carrying a sub-account reference. The store guarantees atomicity per
  sub-account but not across them, so the engine makes the fan-out
  all-or-nothing itself:

    1. Apply AdjustActual(+baseAmount) item by item, recording what landed
    2. On any failure, compensate the applied deltas (AdjustActual with the
       negated amount) and return the error - the invoice stays unpaid
    3. Only after every delta landed, flip status to paid

  The flip is a guarded store update conditional on the status and step
  observed when the invoice was read. Two concurrent payments of the same
  invoice both fan out, but only one wins the flip; the loser gets
  ConflictError and compensates, so each sub-account's actual moves by
  the invoice amount exactly once. The same compensation runs if
  persisting the flip fails for any other reason.

OVERDUE SWEEP:
  Periodic and observational. Flips pending invoices past their due date to
  overdue; already-overdue, paid, cancelled, and rejected invoices are
  untouched, which makes re-running the sweep a no-op. A failure on one
  invoice never blocks sweeping the others.

SEE ALSO:
  - invoice.go: entity, statuses, line-item math
  - api/scheduler.go: drives the sweep on an interval
*/
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/ledger"
)

// Engine manages the invoice lifecycle.
type Engine struct {
	store  Store
	ledger ledger.Store
	now    func() time.Time
}

// NewEngine creates an invoice engine over the given stores.
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

// ItemInput carries one line of a new invoice. Amounts are derived from
// quantity, unit price, and rates.
type ItemInput struct {
	SubAccountID   ledger.SubAccountID
	SubAccountCode string
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	VATRate        decimal.Decimal
	IRPFRate       decimal.Decimal
}

// CreateInput carries the fields for a new invoice.
type CreateInput struct {
	ProjectID    ledger.ProjectID
	Number       string
	SupplierID   string
	SupplierName string
	Description  string
	POID         string
	PONumber     string
	Items        []ItemInput
	Steps        []approval.Step
	DueDate      time.Time
}

// Create validates the input, computes the line-item and aggregate amounts,
// and persists the invoice. With approval steps it starts in
// pending_approval; without any it is immediately pending payment. Items
// referencing a sub-account must reference one that exists.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Invoice, error) {
	if in.Number == "" {
		return nil, &ledger.ValidationError{Field: "number", Reason: "must not be empty"}
	}
	if len(in.Items) == 0 {
		return nil, &ledger.ValidationError{Field: "items", Reason: "must not be empty"}
	}

	items := make([]Item, 0, len(in.Items))
	for i, it := range in.Items {
		if it.Quantity.Sign() <= 0 {
			return nil, &ledger.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}
		if it.SubAccountID != "" {
			sub, err := e.ledger.GetSubAccount(ctx, in.ProjectID, it.SubAccountID)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				return nil, &ledger.NotFoundError{Kind: "subaccount", ID: string(it.SubAccountID)}
			}
		}
		item := Item{
			SubAccountID:   it.SubAccountID,
			SubAccountCode: it.SubAccountCode,
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			VATRate:        it.VATRate,
			IRPFRate:       it.IRPFRate,
		}
		item.ComputeAmounts()
		items = append(items, item)
	}

	status := StatusPending
	if len(in.Steps) > 0 {
		status = StatusPendingApproval
	}

	inv := Invoice{
		ID:           InvoiceID(uuid.NewString()),
		ProjectID:    in.ProjectID,
		Number:       in.Number,
		SupplierID:   in.SupplierID,
		SupplierName: in.SupplierName,
		Description:  in.Description,
		POID:         in.POID,
		PONumber:     in.PONumber,
		Items:        items,
		Status:       status,
		Steps:        in.Steps,
		CurrentStep:  0,
		DueDate:      in.DueDate,
		CreatedAt:    e.now().UTC(),
	}
	inv.computeAggregates()

	if err := e.store.Create(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// ResolveStep records the acting user's decision on the current approval
// step. Full approval moves the invoice to pending payment; any rejection is
// terminal, recording the reason.
func (e *Engine) ResolveStep(ctx context.Context, projectID ledger.ProjectID, id InvoiceID, actingUser ledger.UserID, decision approval.Decision, reason string) (*Invoice, error) {
	inv, err := e.get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPendingApproval {
		return nil, &ledger.InvalidStateError{Entity: "invoice", Status: string(inv.Status), Action: "resolve approval step"}
	}
	fromStep := inv.CurrentStep

	at := e.now().UTC()
	outcome, err := approval.Resolve(inv.Steps, &inv.CurrentStep, actingUser, decision, at)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case approval.OutcomeRejected:
		inv.Status = StatusRejected
		inv.RejectedAt = &at
		inv.RejectionReason = reason

	case approval.OutcomeFullyApproved:
		inv.Status = StatusPending

	case approval.OutcomeAdvanced:
		// More steps to go.
	}

	if err := e.store.UpdateIf(ctx, *inv, StatusPendingApproval, fromStep); err != nil {
		return nil, err
	}
	return inv, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// MarkAsPaid settles the invoice: every line item with a sub-account
// reference adds its base amount to that sub-account's actual figure, the
// payment date is set, and the status flips to paid. Legal only from pending
// or overdue; in particular an invoice still awaiting approval fails with
// InvalidStateError and no actual figure changes.
func (e *Engine) MarkAsPaid(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) (*Invoice, error) {
	inv, err := e.get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Payable() {
		return nil, &ledger.InvalidStateError{Entity: "invoice", Status: string(inv.Status), Action: "pay"}
	}
	from, fromStep := inv.Status, inv.CurrentStep

	// Ledger deltas first, status flip last. Track what landed so a partial
	// fan-out can be compensated.
	type applied struct {
		sub    ledger.SubAccountID
		amount decimal.Decimal
	}
	var done []applied

	compensate := func() {
		for i := len(done) - 1; i >= 0; i-- {
			// Compensation failures leave the error to surface with the
			// original; there is nothing better to do without a
			// cross-document transaction.
			_ = e.ledger.AdjustActual(ctx, projectID, done[i].sub, done[i].amount.Neg())
		}
	}

	for _, it := range inv.Items {
		if it.SubAccountID == "" {
			continue
		}
		if err := e.ledger.AdjustActual(ctx, projectID, it.SubAccountID, it.BaseAmount); err != nil {
			compensate()
			return nil, fmt.Errorf("apply actual for invoice %s: %w", inv.Number, err)
		}
		done = append(done, applied{sub: it.SubAccountID, amount: it.BaseAmount})
	}

	at := e.now().UTC()
	inv.Status = StatusPaid
	inv.PaymentDate = &at

	// Guarded flip: a concurrent payment or cancellation that won the race
	// makes this fail, and the deltas applied above are taken back.
	if err := e.store.UpdateIf(ctx, *inv, from, fromStep); err != nil {
		compensate()
		return nil, fmt.Errorf("persist payment of invoice %s: %w", inv.Number, err)
	}
	return inv, nil
}

// =============================================================================
// CANCELLATION / DELETION
// =============================================================================

// Cancel voids an invoice awaiting payment. Legal from pending or overdue
// only; a paid invoice cannot be cancelled. The reason is mandatory.
func (e *Engine) Cancel(ctx context.Context, projectID ledger.ProjectID, id InvoiceID, reason string) (*Invoice, error) {
	if reason == "" {
		return nil, &ledger.ValidationError{Field: "reason", Reason: "must not be empty"}
	}

	inv, err := e.get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending && inv.Status != StatusOverdue {
		return nil, &ledger.InvalidStateError{Entity: "invoice", Status: string(inv.Status), Action: "cancel"}
	}
	from, fromStep := inv.Status, inv.CurrentStep

	at := e.now().UTC()
	inv.Status = StatusCancelled
	inv.CancelledAt = &at
	inv.CancellationReason = reason

	// Guarded so a cancellation can never overwrite a payment that landed
	// after this invoice was read.
	if err := e.store.UpdateIf(ctx, *inv, from, fromStep); err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete removes an invoice. Paid invoices cannot be deleted.
func (e *Engine) Delete(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) error {
	inv, err := e.get(ctx, projectID, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return &ledger.ConflictError{Reason: "paid invoices cannot be deleted"}
	}
	return e.store.Delete(ctx, projectID, id)
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// SweepFailure records one invoice the sweep could not flip.
type SweepFailure struct {
	ID  InvoiceID
	Err error
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Flipped  int
	Failures []SweepFailure
}

// SweepOverdue flips pending invoices whose due date has passed to overdue.
// It only ever touches pending invoices, so running it twice is a no-op the
// second time. Per-invoice failures are collected, not raised; the returned
// error covers only the initial listing.
func (e *Engine) SweepOverdue(ctx context.Context, projectID ledger.ProjectID, asOf time.Time) (SweepResult, error) {
	var res SweepResult

	pending, err := e.store.ListByStatus(ctx, projectID, StatusPending)
	if err != nil {
		return res, fmt.Errorf("list pending invoices: %w", err)
	}

	for _, inv := range pending {
		if inv.DueDate.IsZero() || !asOf.After(inv.DueDate) {
			continue
		}
		inv.Status = StatusOverdue
		if err := e.store.UpdateIf(ctx, inv, StatusPending, inv.CurrentStep); err != nil {
			// A conflict means the invoice was paid or cancelled while the
			// sweep was running; leaving it alone is the point of the guard.
			if errors.Is(err, ledger.ErrConflict) {
				continue
			}
			res.Failures = append(res.Failures, SweepFailure{ID: inv.ID, Err: err})
			continue
		}
		res.Flipped++
	}
	return res, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns an invoice or NotFoundError.
func (e *Engine) Get(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) (*Invoice, error) {
	return e.get(ctx, projectID, id)
}

// List returns all invoices for a project.
func (e *Engine) List(ctx context.Context, projectID ledger.ProjectID) ([]Invoice, error) {
	return e.store.List(ctx, projectID)
}

// ListByStatus returns the project's invoices in the given status.
func (e *Engine) ListByStatus(ctx context.Context, projectID ledger.ProjectID, status Status) ([]Invoice, error) {
	return e.store.ListByStatus(ctx, projectID, status)
}

func (e *Engine) get(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) (*Invoice, error) {
	inv, err := e.store.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, &ledger.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	return inv, nil
}
