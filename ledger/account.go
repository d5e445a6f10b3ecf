/*
account.go - Chart-of-accounts entities

PURPOSE:
  Defines the two-level chart of accounts. Accounts group sub-accounts;
  sub-accounts carry the money. The one invariant that matters:

    available = budgeted - committed - actual

  Available MAY go negative. That is a signal for the cost controller
  (the report layer classifies it as exceeded), not an error the ledger
  rejects.

FIGURES:
  budgeted   authoritative figure set by a human
  committed  sum of amounts from approved, non-terminal purchase orders
  actual     sum of base amounts from paid invoice line items

SEE ALSO:
  - store.go: the only mutation paths for committed/actual
  - report/aggregate.go: roll-ups and status classification
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT - Groups sub-accounts under a project
// =============================================================================

// Account is a top-level chart-of-accounts entry. It carries no figures of
// its own; totals are always rolled up from its sub-accounts.
type Account struct {
	ID          AccountID
	ProjectID   ProjectID
	Code        string // zero-padded, unique within the project, e.g. "01"
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// SUB-ACCOUNT - Holds the budget figures
// =============================================================================

// SubAccount is a second-level entry owned by exactly one Account. It is the
// unit of budget tracking: purchase orders commit against it, paid invoice
// items realize spend against it.
type SubAccount struct {
	ID          SubAccountID
	AccountID   AccountID
	ProjectID   ProjectID
	Code        string // derived from the parent code, e.g. "01-01-01"; advisory, used for grouping
	Description string
	Budgeted    decimal.Decimal
	Committed   decimal.Decimal
	Actual      decimal.Decimal
	CreatedAt   time.Time
}

// Available returns budgeted - committed - actual. Negative means the
// sub-account is overspent.
func (s SubAccount) Available() decimal.Decimal {
	return s.Budgeted.Sub(s.Committed).Sub(s.Actual)
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateAccountInput(code, description string) error {
	if code == "" {
		return &ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	return nil
}

func validateBudget(budgeted decimal.Decimal) error {
	if budgeted.IsNegative() {
		return &ValidationError{Field: "budgeted", Reason: "must not be negative"}
	}
	return nil
}
