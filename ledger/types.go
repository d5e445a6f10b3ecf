/*
Package ledger provides the production-budget chart of accounts.

PURPOSE:
  This package contains the core types and operations for tracking a
  production's budget: two-level chart-of-accounts entries (accounts and
  sub-accounts), the budgeted/committed/actual figures each sub-account
  carries, and the atomic adjustment operations through which procurement
  documents affect those figures.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: ProjectID, AccountID, SubAccountID, UserID
  - Decimal money: all figures are decimal.Decimal, never floats

DESIGN PRINCIPLES:
  1. Single choke point: committed/actual change ONLY via AdjustCommitted
     and AdjustActual on the Store. Engines never assign fields directly.
  2. Precision: decimal.Decimal avoids floating-point drift in money math.
  3. Type safety: strong ID types prevent mixing account and sub-account ids.
  4. Tenancy: every entity carries a ProjectID; nothing crosses projects.

SEE ALSO:
  - account.go: Account and SubAccount entities
  - store.go: persistence interface and adjustment contract
  - service.go: validated chart-of-accounts operations
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID string
type AccountID string
type SubAccountID string

// UserID identifies an acting user. It is always passed explicitly into
// commands (approve, reject, pay, cancel) and never read from ambient state.
type UserID string

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses s as a decimal, returning zero on malformed input.
// Intended for constants and test fixtures, not user input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
