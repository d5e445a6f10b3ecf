package invoice_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const project = ledger.ProjectID("prod-001")

var clock = func() time.Time {
	return time.Date(2026, time.May, 20, 16, 30, 0, 0, time.UTC)
}

type fixture struct {
	engine *invoice.Engine
	store  *memory.Store
	crew   *ledger.SubAccount
	gear   *ledger.SubAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	svc := ledger.NewService(store).WithClock(clock)

	a, err := svc.CreateAccount(context.Background(), project, "06", "Personal tecnico")
	require.NoError(t, err)
	crew, err := svc.CreateSubAccount(context.Background(), project, a.ID, "06-01", "Operadores", ledger.MustDecimal("30000"))
	require.NoError(t, err)
	gear, err := svc.CreateSubAccount(context.Background(), project, a.ID, "06-02", "Material camara", ledger.MustDecimal("20000"))
	require.NoError(t, err)

	return &fixture{
		engine: invoice.NewEngine(store.Invoices(), store).WithClock(clock),
		store:  store,
		crew:   crew,
		gear:   gear,
	}
}

func (f *fixture) actual(t *testing.T, id ledger.SubAccountID) string {
	t.Helper()
	sub, err := f.store.GetSubAccount(context.Background(), project, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub.Actual.String()
}

// twoItemInput builds an invoice with items against both sub-accounts:
// 100.00 for crew, 250.00 for gear.
func (f *fixture) twoItemInput(steps []approval.Step) invoice.CreateInput {
	return invoice.CreateInput{
		ProjectID:    project,
		Number:       "INV-2026-031",
		SupplierName: "Crew Services SL",
		Items: []invoice.ItemInput{
			{
				SubAccountID: f.crew.ID,
				Description:  "Focus puller, day rate",
				Quantity:     ledger.MustDecimal("1"),
				UnitPrice:    ledger.MustDecimal("100.00"),
				VATRate:      ledger.MustDecimal("21"),
			},
			{
				SubAccountID: f.gear.ID,
				Description:  "Lens set rental",
				Quantity:     ledger.MustDecimal("1"),
				UnitPrice:    ledger.MustDecimal("250.00"),
				VATRate:      ledger.MustDecimal("21"),
			},
		},
		Steps:   steps,
		DueDate: time.Date(2026, time.June, 19, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestCreate_NoStepsStartsPending(t *testing.T) {
	f := newFixture(t)

	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, "350", inv.BaseAmount.String())
	assert.Equal(t, "73.5", inv.VATAmount.String())
	assert.Equal(t, "423.5", inv.TotalAmount.String())
}

func TestCreate_WithStepsStartsPendingApproval(t *testing.T) {
	f := newFixture(t)

	inv, err := f.engine.Create(context.Background(), f.twoItemInput([]approval.Step{approval.NewStep("producer")}))
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPendingApproval, inv.Status)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	in := f.twoItemInput(nil)
	in.Number = ""
	_, err := f.engine.Create(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	in = f.twoItemInput(nil)
	in.Items = nil
	_, err = f.engine.Create(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	in = f.twoItemInput(nil)
	in.Items[0].Quantity = ledger.MustDecimal("0")
	_, err = f.engine.Create(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	in = f.twoItemInput(nil)
	in.Items[1].SubAccountID = "no-such-sub"
	_, err = f.engine.Create(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestResolveStep_FullApprovalMovesToPending(t *testing.T) {
	f := newFixture(t)
	steps := []approval.Step{approval.NewStep("accountant"), approval.NewStep("producer")}
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(steps))
	require.NoError(t, err)

	inv, err = f.engine.ResolveStep(context.Background(), project, inv.ID, "accountant", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPendingApproval, inv.Status)

	inv, err = f.engine.ResolveStep(context.Background(), project, inv.ID, "producer", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, inv.Status)
}

func TestResolveStep_RejectionRecordsReason(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput([]approval.Step{approval.NewStep("producer")}))
	require.NoError(t, err)

	inv, err = f.engine.ResolveStep(context.Background(), project, inv.ID, "producer", approval.DecisionReject, "duplicate of INV-2026-029")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusRejected, inv.Status)
	assert.Equal(t, "duplicate of INV-2026-029", inv.RejectionReason)
	require.NotNil(t, inv.RejectedAt)

	// Terminal: payment is refused and nothing reaches the ledger.
	_, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
	assert.Equal(t, "0", f.actual(t, f.crew.ID))
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestMarkAsPaid_FansOutToEverySubAccount(t *testing.T) {
	// GIVEN: A pending invoice with items of 100 (crew) and 250 (gear)
	// WHEN: It is paid
	// THEN: Each sub-account's actual moves by its item's base amount

	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	inv, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	require.NotNil(t, inv.PaymentDate)
	assert.Equal(t, clock().UTC(), *inv.PaymentDate)

	assert.Equal(t, "100", f.actual(t, f.crew.ID))
	assert.Equal(t, "250", f.actual(t, f.gear.ID))
}

func TestMarkAsPaid_RefusedWhileAwaitingApproval(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput([]approval.Step{approval.NewStep("producer")}))
	require.NoError(t, err)

	_, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
	assert.Equal(t, "0", f.actual(t, f.crew.ID))
	assert.Equal(t, "0", f.actual(t, f.gear.ID))
}

func TestMarkAsPaid_PartialFanOutIsCompensated(t *testing.T) {
	// GIVEN: A pending invoice whose second item references a sub-account
	//        that was deleted after the invoice was created
	// WHEN: Payment is attempted
	// THEN: The first item's applied delta is rolled back; the invoice stays
	//       pending and no actual figure moves

	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteSubAccount(context.Background(), project, f.gear.ID))

	_, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.Equal(t, "0", f.actual(t, f.crew.ID), "applied delta must be compensated")

	got, err := f.engine.Get(context.Background(), project, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, got.Status)
	assert.Nil(t, got.PaymentDate)
}

func TestMarkAsPaid_ItemsWithoutSubAccountHaveNoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	in := f.twoItemInput(nil)
	in.Items = []invoice.ItemInput{{
		Description: "Per diem, untracked",
		Quantity:    ledger.MustDecimal("4"),
		UnitPrice:   ledger.MustDecimal("60"),
	}}
	inv, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	inv, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assert.Equal(t, "0", f.actual(t, f.crew.ID))
}

func TestMarkAsPaid_ConcurrentInvoicesOnOneSubAccount(t *testing.T) {
	// GIVEN: Two pending invoices of 50 and 75 against the same sub-account
	// WHEN: Both are paid concurrently
	// THEN: The actual figure increases by exactly 125

	f := newFixture(t)

	newInvoice := func(number, amount string) invoice.InvoiceID {
		in := invoice.CreateInput{
			ProjectID: project,
			Number:    number,
			Items: []invoice.ItemInput{{
				SubAccountID: f.crew.ID,
				Quantity:     ledger.MustDecimal("1"),
				UnitPrice:    ledger.MustDecimal(amount),
			}},
		}
		inv, err := f.engine.Create(context.Background(), in)
		require.NoError(t, err)
		return inv.ID
	}
	first := newInvoice("INV-2026-040", "50")
	second := newInvoice("INV-2026-041", "75")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []invoice.InvoiceID{first, second} {
		wg.Add(1)
		go func(i int, id invoice.InvoiceID) {
			defer wg.Done()
			_, errs[i] = f.engine.MarkAsPaid(context.Background(), project, id)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "125", f.actual(t, f.crew.ID))
}

// rendezvousInvoices delays Get until both payers have read the invoice, so
// each observes the same pre-payment status before racing on the flip.
type rendezvousInvoices struct {
	invoice.Store
	barrier *sync.WaitGroup
}

func (r *rendezvousInvoices) Get(ctx context.Context, projectID ledger.ProjectID, id invoice.InvoiceID) (*invoice.Invoice, error) {
	inv, err := r.Store.Get(ctx, projectID, id)
	r.barrier.Done()
	r.barrier.Wait()
	return inv, err
}

func TestMarkAsPaid_SimultaneousPaymentsPostOnce(t *testing.T) {
	// GIVEN: One pending invoice with a single 100.00 item
	// WHEN: Two goroutines pay it at the same time, both reading it as pending
	// THEN: One wins, the other conflicts, and actual moves by 100 exactly once

	f := newFixture(t)

	in := f.twoItemInput(nil)
	in.Items = in.Items[:1]
	inv, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	var barrier sync.WaitGroup
	barrier.Add(2)
	racing := invoice.NewEngine(
		&rendezvousInvoices{Store: f.store.Invoices(), barrier: &barrier},
		f.store,
	).WithClock(clock)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = racing.MarkAsPaid(context.Background(), project, inv.ID)
		}(i)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1, "exactly one payment must lose the race")
	assert.ErrorIs(t, failed[0], ledger.ErrConflict)
	assert.Equal(t, "100", f.actual(t, f.crew.ID))

	got, err := f.engine.Get(context.Background(), project, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentDate)
}

func TestMarkAsPaid_FromOverdue(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	_, err = f.engine.SweepOverdue(context.Background(), project, inv.DueDate.AddDate(0, 0, 1))
	require.NoError(t, err)

	paid, err := f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.Equal(t, "100", f.actual(t, f.crew.ID))
}

// =============================================================================
// CANCELLATION / DELETION TESTS
// =============================================================================

func TestCancel(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	inv, err = f.engine.Cancel(context.Background(), project, inv.ID, "production pushed to Q4")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, inv.Status)
	assert.Equal(t, "production pushed to Q4", inv.CancellationReason)
	require.NotNil(t, inv.CancelledAt)
}

func TestCancel_ReasonRequired(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), project, inv.ID, "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestCancel_PaidInvoiceRefused(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)
	_, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), project, inv.ID, "changed our minds")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestDelete_PaidInvoiceRefused(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)
	_, err = f.engine.MarkAsPaid(context.Background(), project, inv.ID)
	require.NoError(t, err)

	err = f.engine.Delete(context.Background(), project, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestDelete_Unpaid(t *testing.T) {
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(context.Background(), project, inv.ID))

	_, err = f.engine.Get(context.Background(), project, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// OVERDUE SWEEP TESTS
// =============================================================================

func TestSweepOverdue_FlipsOnlyPastDuePending(t *testing.T) {
	// GIVEN: One invoice due June 19, one due July 19, one with no due date
	// WHEN: The sweep runs as of July 1
	// THEN: Only the June invoice flips

	f := newFixture(t)
	june, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	in := f.twoItemInput(nil)
	in.Number = "INV-2026-032"
	in.DueDate = time.Date(2026, time.July, 19, 0, 0, 0, 0, time.UTC)
	july, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	in = f.twoItemInput(nil)
	in.Number = "INV-2026-033"
	in.DueDate = time.Time{}
	undated, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	asOf := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.engine.SweepOverdue(context.Background(), project, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flipped)
	assert.Empty(t, res.Failures)

	got, _ := f.engine.Get(context.Background(), project, june.ID)
	assert.Equal(t, invoice.StatusOverdue, got.Status)
	got, _ = f.engine.Get(context.Background(), project, july.ID)
	assert.Equal(t, invoice.StatusPending, got.Status)
	got, _ = f.engine.Get(context.Background(), project, undated.ID)
	assert.Equal(t, invoice.StatusPending, got.Status)
}

func TestSweepOverdue_Idempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	asOf := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.engine.SweepOverdue(context.Background(), project, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flipped)

	res, err = f.engine.SweepOverdue(context.Background(), project, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Flipped, "second run is a no-op")
}

func TestSweepOverdue_DueDateBoundary(t *testing.T) {
	// Due date itself is not overdue; one nanosecond past is.
	f := newFixture(t)
	inv, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	res, err := f.engine.SweepOverdue(context.Background(), project, inv.DueDate)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Flipped)

	res, err = f.engine.SweepOverdue(context.Background(), project, inv.DueDate.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flipped)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestListByStatus(t *testing.T) {
	f := newFixture(t)
	first, err := f.engine.Create(context.Background(), f.twoItemInput(nil))
	require.NoError(t, err)

	in := f.twoItemInput(nil)
	in.Number = "INV-2026-032"
	_, err = f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = f.engine.MarkAsPaid(context.Background(), project, first.ID)
	require.NoError(t, err)

	paid, err := f.engine.ListByStatus(context.Background(), project, invoice.StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, first.ID, paid[0].ID)

	pending, err := f.engine.ListByStatus(context.Background(), project, invoice.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
