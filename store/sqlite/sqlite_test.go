package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/store/sqlite"
	"github.com/warp/budget-engine/supplier"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const project = ledger.ProjectID("prod-001")

var created = time.Date(2026, time.January, 15, 10, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAccount(t *testing.T, store *sqlite.Store) ledger.Account {
	t.Helper()
	a := ledger.Account{
		ID: "acc-1", ProjectID: project, Code: "10",
		Description: "Estudios rodaje", CreatedAt: created,
	}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func seedSubAccount(t *testing.T, store *sqlite.Store, accountID ledger.AccountID) ledger.SubAccount {
	t.Helper()
	sub := ledger.SubAccount{
		ID: "sub-1", AccountID: accountID, ProjectID: project,
		Code: "10-01", Description: "Alquiler plato",
		Budgeted:  ledger.MustDecimal("50000.00"),
		Committed: ledger.MustDecimal("0"),
		Actual:    ledger.MustDecimal("0"),
		CreatedAt: created,
	}
	require.NoError(t, store.CreateSubAccount(context.Background(), sub))
	return sub
}

// =============================================================================
// CHART OF ACCOUNTS TESTS
// =============================================================================

func TestAccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store)

	got, err := store.GetAccount(context.Background(), project, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10", got.Code)
	assert.Equal(t, "Estudios rodaje", got.Description)
	assert.True(t, got.CreatedAt.Equal(created))

	missing, err := store.GetAccount(context.Background(), project, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateAccount_DuplicateCodeConflicts(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store)

	dup := ledger.Account{
		ID: "acc-2", ProjectID: project, Code: "10",
		Description: "Duplicate code", CreatedAt: created,
	}
	err := store.CreateAccount(context.Background(), dup)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	// Same code under another project is fine.
	dup.ID = "acc-3"
	dup.ProjectID = "prod-002"
	assert.NoError(t, store.CreateAccount(context.Background(), dup))
}

func TestDeleteAccount_ChildGuardInTransaction(t *testing.T) {
	store := newTestStore(t)
	a := seedAccount(t, store)
	sub := seedSubAccount(t, store, a.ID)

	err := store.DeleteAccount(context.Background(), project, a.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	require.NoError(t, store.DeleteSubAccount(context.Background(), project, sub.ID))
	assert.NoError(t, store.DeleteAccount(context.Background(), project, a.ID))
}

func TestSubAccountFigures(t *testing.T) {
	// GIVEN: A stored sub-account
	// WHEN: Committed and actual are adjusted, including a negative delta
	// THEN: The persisted figures reflect every delta

	store := newTestStore(t)
	a := seedAccount(t, store)
	sub := seedSubAccount(t, store, a.ID)
	ctx := context.Background()

	require.NoError(t, store.AdjustCommitted(ctx, project, sub.ID, ledger.MustDecimal("1200.50")))
	require.NoError(t, store.AdjustCommitted(ctx, project, sub.ID, ledger.MustDecimal("99.50")))
	require.NoError(t, store.AdjustActual(ctx, project, sub.ID, ledger.MustDecimal("400")))
	require.NoError(t, store.AdjustActual(ctx, project, sub.ID, ledger.MustDecimal("-150")))

	got, err := store.GetSubAccount(ctx, project, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1300", got.Committed.String())
	assert.Equal(t, "250", got.Actual.String())
	assert.Equal(t, "48450", got.Available().String())
}

func TestAdjust_MissingSubAccount(t *testing.T) {
	store := newTestStore(t)

	err := store.AdjustCommitted(context.Background(), project, "ghost", ledger.MustDecimal("1"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestListProjects(t *testing.T) {
	store := newTestStore(t)
	seedAccount(t, store)

	other := ledger.Account{
		ID: "acc-9", ProjectID: "prod-002", Code: "01",
		Description: "Desarrollo", CreatedAt: created,
	}
	require.NoError(t, store.CreateAccount(context.Background(), other))

	projects, err := store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.ProjectID{"prod-001", "prod-002"}, projects)
}

// =============================================================================
// PURCHASE ORDER TESTS
// =============================================================================

func TestPurchaseOrderRoundTrip(t *testing.T) {
	// Approval steps survive the JSON column, including a resolved step.
	store := newTestStore(t)
	resolvedAt := created.Add(2 * time.Hour)

	po := procurement.PurchaseOrder{
		ID: "po-1", ProjectID: project, Number: "PO-2026-001",
		SupplierName: "Camara Rent SL", Description: "Camera package",
		BudgetAccount: "sub-1",
		Amount:        ledger.MustDecimal("12500.40"),
		Status:        procurement.StatusPending,
		Steps: []approval.Step{
			{
				Approvers:  approval.NewApproverSet("upm"),
				Status:     approval.StepApproved,
				ResolvedBy: "upm",
				ResolvedAt: &resolvedAt,
			},
			approval.NewStep("producer", "line-producer"),
		},
		CurrentStep: 1,
		CreatedAt:   created,
	}
	require.NoError(t, store.Create(context.Background(), po))

	got, err := store.Get(context.Background(), project, "po-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "12500.4", got.Amount.String())
	assert.Equal(t, procurement.StatusPending, got.Status)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Nil(t, got.ApprovedAt)

	require.Len(t, got.Steps, 2)
	assert.Equal(t, approval.StepApproved, got.Steps[0].Status)
	assert.Equal(t, ledger.UserID("upm"), got.Steps[0].ResolvedBy)
	require.NotNil(t, got.Steps[0].ResolvedAt)
	assert.True(t, got.Steps[0].ResolvedAt.Equal(resolvedAt))
	assert.True(t, got.Steps[1].Approvers.Contains("producer"))
	assert.True(t, got.Steps[1].Approvers.Contains("line-producer"))
}

func TestPurchaseOrderUpdate(t *testing.T) {
	store := newTestStore(t)
	approvedAt := created.Add(24 * time.Hour)

	po := procurement.PurchaseOrder{
		ID: "po-1", ProjectID: project, Number: "PO-2026-001",
		BudgetAccount: "sub-1", Amount: ledger.MustDecimal("100"),
		Status: procurement.StatusPending, CreatedAt: created,
	}
	require.NoError(t, store.Create(context.Background(), po))

	po.Status = procurement.StatusApproved
	po.ApprovedAt = &approvedAt
	require.NoError(t, store.Update(context.Background(), po))

	got, err := store.Get(context.Background(), project, "po-1")
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(approvedAt))

	missing := po
	missing.ID = "po-ghost"
	err = store.Update(context.Background(), missing)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestPurchaseOrderUpdateIf_StaleWriterConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	po := procurement.PurchaseOrder{
		ID: "po-1", ProjectID: project, Number: "PO-2026-001",
		BudgetAccount: "sub-1", Amount: ledger.MustDecimal("100"),
		Status: procurement.StatusPending, CreatedAt: created,
	}
	require.NoError(t, store.Create(ctx, po))

	// First writer wins against the status and step it read.
	first := po
	first.Status = procurement.StatusApproved
	first.CurrentStep = 1
	require.NoError(t, store.UpdateIf(ctx, first, procurement.StatusPending, 0))

	// Second writer still holds the original read and affects no rows.
	err := store.UpdateIf(ctx, po, procurement.StatusPending, 0)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	got, err := store.Get(ctx, project, "po-1")
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusApproved, got.Status)

	missing := po
	missing.ID = "po-ghost"
	err = store.UpdateIf(ctx, missing, procurement.StatusPending, 0)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// INVOICE TESTS
// =============================================================================

func TestInvoiceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	invoices := store.Invoices()
	due := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	item := invoice.Item{
		SubAccountID: "sub-1", SubAccountCode: "10-01",
		Description: "Catering week 1",
		Quantity:    ledger.MustDecimal("3"),
		UnitPrice:   ledger.MustDecimal("400"),
		VATRate:     ledger.MustDecimal("21"),
		IRPFRate:    ledger.MustDecimal("15"),
	}
	item.ComputeAmounts()

	inv := invoice.Invoice{
		ID: "inv-1", ProjectID: project, Number: "INV-2026-001",
		SupplierName: "Catering Global SL",
		Items:        []invoice.Item{item},
		BaseAmount:   item.BaseAmount,
		VATAmount:    item.VATAmount,
		IRPFAmount:   item.IRPFAmount,
		TotalAmount:  item.TotalAmount,
		Status:       invoice.StatusPending,
		DueDate:      due,
		CreatedAt:    created,
	}
	require.NoError(t, invoices.Create(context.Background(), inv))

	got, err := invoices.Get(context.Background(), project, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, invoice.StatusPending, got.Status)
	assert.True(t, got.DueDate.Equal(due))
	assert.Nil(t, got.PaymentDate)
	assert.Equal(t, "1272", got.TotalAmount.String())

	require.Len(t, got.Items, 1)
	assert.Equal(t, ledger.SubAccountID("sub-1"), got.Items[0].SubAccountID)
	assert.Equal(t, "1200", got.Items[0].BaseAmount.String())
	assert.Equal(t, "252", got.Items[0].VATAmount.String())
	assert.Equal(t, "180", got.Items[0].IRPFAmount.String())
}

func TestInvoiceZeroDueDateStaysZero(t *testing.T) {
	store := newTestStore(t)
	invoices := store.Invoices()

	inv := invoice.Invoice{
		ID: "inv-1", ProjectID: project, Number: "INV-2026-002",
		Items:     []invoice.Item{{Quantity: ledger.MustDecimal("1"), UnitPrice: ledger.MustDecimal("10")}},
		Status:    invoice.StatusPending,
		CreatedAt: created,
	}
	require.NoError(t, invoices.Create(context.Background(), inv))

	got, err := invoices.Get(context.Background(), project, "inv-1")
	require.NoError(t, err)
	assert.True(t, got.DueDate.IsZero())
}

func TestInvoiceListByStatus(t *testing.T) {
	store := newTestStore(t)
	invoices := store.Invoices()
	ctx := context.Background()

	for i, status := range []invoice.Status{invoice.StatusPending, invoice.StatusPending, invoice.StatusPaid} {
		inv := invoice.Invoice{
			ID:        invoice.InvoiceID([]string{"inv-a", "inv-b", "inv-c"}[i]),
			ProjectID: project, Number: "INV",
			Items:     []invoice.Item{{Quantity: ledger.MustDecimal("1"), UnitPrice: ledger.MustDecimal("10")}},
			Status:    status,
			CreatedAt: created.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, invoices.Create(ctx, inv))
	}

	pending, err := invoices.ListByStatus(ctx, project, invoice.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	paid, err := invoices.ListByStatus(ctx, project, invoice.StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, invoice.InvoiceID("inv-c"), paid[0].ID)
}

func TestInvoiceUpdate_PaymentAndCancellationFields(t *testing.T) {
	store := newTestStore(t)
	invoices := store.Invoices()
	ctx := context.Background()

	inv := invoice.Invoice{
		ID: "inv-1", ProjectID: project, Number: "INV-2026-003",
		Items:     []invoice.Item{{Quantity: ledger.MustDecimal("1"), UnitPrice: ledger.MustDecimal("10")}},
		Status:    invoice.StatusPending,
		CreatedAt: created,
	}
	require.NoError(t, invoices.Create(ctx, inv))

	cancelledAt := created.Add(72 * time.Hour)
	inv.Status = invoice.StatusCancelled
	inv.CancelledAt = &cancelledAt
	inv.CancellationReason = "production pushed"
	require.NoError(t, invoices.Update(ctx, inv))

	got, err := invoices.Get(ctx, project, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, got.Status)
	assert.Equal(t, "production pushed", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(cancelledAt))
}

func TestInvoiceUpdateIf_StaleWriterConflicts(t *testing.T) {
	store := newTestStore(t)
	invoices := store.Invoices()
	ctx := context.Background()

	inv := invoice.Invoice{
		ID: "inv-1", ProjectID: project, Number: "INV-2026-004",
		Items:     []invoice.Item{{Quantity: ledger.MustDecimal("1"), UnitPrice: ledger.MustDecimal("10")}},
		Status:    invoice.StatusPending,
		CreatedAt: created,
	}
	require.NoError(t, invoices.Create(ctx, inv))

	paidAt := created.Add(48 * time.Hour)
	first := inv
	first.Status = invoice.StatusPaid
	first.PaymentDate = &paidAt
	require.NoError(t, invoices.UpdateIf(ctx, first, invoice.StatusPending, 0))

	// A stale cancellation must not overwrite the payment.
	second := inv
	second.Status = invoice.StatusCancelled
	err := invoices.UpdateIf(ctx, second, invoice.StatusPending, 0)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	got, err := invoices.Get(ctx, project, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentDate)

	missing := inv
	missing.ID = "inv-ghost"
	err = invoices.UpdateIf(ctx, missing, invoice.StatusPending, 0)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// SUPPLIER TESTS
// =============================================================================

func TestSupplierRoundTrip(t *testing.T) {
	store := newTestStore(t)
	suppliers := store.Suppliers()
	ctx := context.Background()

	sup := supplier.Supplier{
		ID: "sup-1", ProjectID: project, Name: "Camara Rent SL",
		TaxID: "B12345678", Email: "billing@camararent.example",
		CreatedAt: created,
	}
	require.NoError(t, suppliers.Create(ctx, sup))

	got, err := suppliers.Get(ctx, project, "sup-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Camara Rent SL", got.Name)
	assert.Equal(t, "B12345678", got.TaxID)

	require.NoError(t, suppliers.Delete(ctx, project, "sup-1"))
	err = suppliers.Delete(ctx, project, "sup-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
