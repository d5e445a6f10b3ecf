/*
store.go - Persistence interface for the chart of accounts

PURPOSE:
  Defines the interface between the ledger and the database. Accounts and
  sub-accounts are ordinary records, but the committed/actual figures have
  a stricter contract: they change only through AdjustCommitted and
  AdjustActual, and each adjustment is an atomic read-modify-write on the
  targeted sub-account.

ADJUSTMENT CONTRACT:
  Two invoices paid at nearly the same time, or a purchase-order approval
  racing an invoice payment, may both adjust the same sub-account. The
  store must serialize those deltas so none is lost: the final figure
  equals the sum of all deltas regardless of arrival order.

  Implementations retry contended adjustments internally up to a bounded
  count; exhausted retries surface as ConflictError. Callers never see a
  partially applied delta.

IMPLEMENTATIONS:
  - store/memory: mutex-guarded maps, for tests and development
  - store/sqlite: read-modify-write inside one transaction

SEE ALSO:
  - service.go: validated operations built on this interface
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists accounts and sub-accounts for all projects.
//
// INVARIANTS:
//   - Committed and Actual figures change only via AdjustCommitted and
//     AdjustActual. There is no generic sub-account update.
//   - Adjustments on the same sub-account serialize; no delta is lost.
//   - DeleteAccount fails with ConflictError while sub-accounts exist.
type Store interface {
	// ListProjects returns every project id that owns at least one account.
	// The overdue-sweep scheduler iterates this.
	ListProjects(ctx context.Context) ([]ProjectID, error)

	// Accounts
	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, projectID ProjectID, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context, projectID ProjectID) ([]Account, error)
	DeleteAccount(ctx context.Context, projectID ProjectID, id AccountID) error

	// Sub-accounts
	CreateSubAccount(ctx context.Context, s SubAccount) error
	GetSubAccount(ctx context.Context, projectID ProjectID, id SubAccountID) (*SubAccount, error)
	ListSubAccounts(ctx context.Context, projectID ProjectID, accountID AccountID) ([]SubAccount, error)
	ListProjectSubAccounts(ctx context.Context, projectID ProjectID) ([]SubAccount, error)
	DeleteSubAccount(ctx context.Context, projectID ProjectID, id SubAccountID) error
	UpdateSubAccountBudget(ctx context.Context, projectID ProjectID, id SubAccountID, budgeted decimal.Decimal) error

	// Adjustments - the ONLY mutation paths for committed/actual.
	AdjustCommitted(ctx context.Context, projectID ProjectID, id SubAccountID, delta decimal.Decimal) error
	AdjustActual(ctx context.Context, projectID ProjectID, id SubAccountID, delta decimal.Decimal) error
}
