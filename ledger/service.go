/*
service.go - Validated chart-of-accounts operations

PURPOSE:
  The Service is the entry point the API layer and the engines use for
  account management. It validates input, assigns ids and timestamps, and
  delegates persistence to the Store. Business rules enforced here:

  - Account code and description are required.
  - Sub-account budgets are never negative.
  - An account is deleted only when it owns zero sub-accounts (the store
    enforces this atomically; the service surfaces the ConflictError).

SEE ALSO:
  - store.go: persistence contract
  - report/aggregate.go: read-side roll-ups over this data
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service provides validated operations on the chart of accounts.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a ledger service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Store exposes the underlying store for read-side collaborators.
func (s *Service) Store() Store { return s.store }

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

// CreateAccount creates a top-level account. Code and description are
// required.
func (s *Service) CreateAccount(ctx context.Context, projectID ProjectID, code, description string) (*Account, error) {
	if err := validateAccountInput(code, description); err != nil {
		return nil, err
	}

	a := Account{
		ID:          AccountID(uuid.NewString()),
		ProjectID:   projectID,
		Code:        code,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAccount removes an account. Fails with ConflictError while the
// account still owns sub-accounts.
func (s *Service) DeleteAccount(ctx context.Context, projectID ProjectID, id AccountID) error {
	return s.store.DeleteAccount(ctx, projectID, id)
}

// =============================================================================
// SUB-ACCOUNT OPERATIONS
// =============================================================================

// CreateSubAccount creates a sub-account under an existing account with an
// initial budget. Fails with NotFoundError if the parent is missing.
func (s *Service) CreateSubAccount(ctx context.Context, projectID ProjectID, accountID AccountID, code, description string, budgeted decimal.Decimal) (*SubAccount, error) {
	if err := validateAccountInput(code, description); err != nil {
		return nil, err
	}
	if err := validateBudget(budgeted); err != nil {
		return nil, err
	}

	parent, err := s.store.GetAccount(ctx, projectID, accountID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &NotFoundError{Kind: "account", ID: string(accountID)}
	}

	sub := SubAccount{
		ID:          SubAccountID(uuid.NewString()),
		AccountID:   accountID,
		ProjectID:   projectID,
		Code:        code,
		Description: description,
		Budgeted:    budgeted,
		Committed:   decimal.Zero,
		Actual:      decimal.Zero,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateSubAccount(ctx, sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubAccount removes a sub-account independently of its siblings.
func (s *Service) DeleteSubAccount(ctx context.Context, projectID ProjectID, id SubAccountID) error {
	return s.store.DeleteSubAccount(ctx, projectID, id)
}

// UpdateBudget replaces the authoritative budgeted figure of a sub-account.
func (s *Service) UpdateBudget(ctx context.Context, projectID ProjectID, id SubAccountID, budgeted decimal.Decimal) error {
	if err := validateBudget(budgeted); err != nil {
		return err
	}
	return s.store.UpdateSubAccountBudget(ctx, projectID, id, budgeted)
}
