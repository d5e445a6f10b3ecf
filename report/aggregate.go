/*
Package report computes budget roll-ups and renders them as reports.

PURPOSE:
  Pure read-side. Nothing in this package mutates the ledger; it reads
  sub-accounts, rolls figures up to account and project level, classifies
  headroom, and renders tabular reports (budget detail, cost control,
  executive summary) as CSV or XLSX.

CLASSIFICATION:
  available < 0                      -> exceeded  (SOBREPASADO)
  0 <= available < 10% of budgeted   -> warning   (ALERTA)
  otherwise                          -> ok        (OK)
  The 10% threshold is a fixed policy constant.

SEE ALSO:
  - report.go: row generation and CSV encoding
  - excel.go: XLSX export
*/
package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// BudgetStatus classifies a sub-account's remaining headroom.
type BudgetStatus int

const (
	StatusOK BudgetStatus = iota
	StatusWarning
	StatusExceeded
)

// warningThreshold is the fraction of the budget under which remaining
// headroom raises a warning.
var warningThreshold = decimal.NewFromFloat(0.10)

// Label returns the display string used in cost-control reports.
func (s BudgetStatus) Label() string {
	switch s {
	case StatusExceeded:
		return "SOBREPASADO"
	case StatusWarning:
		return "ALERTA"
	default:
		return "OK"
	}
}

// Classify applies the headroom policy to one sub-account's figures.
func Classify(available, budgeted decimal.Decimal) BudgetStatus {
	if available.IsNegative() {
		return StatusExceeded
	}
	if available.LessThan(budgeted.Mul(warningThreshold)) {
		return StatusWarning
	}
	return StatusOK
}

// =============================================================================
// ROLL-UPS
// =============================================================================

// Totals is one budgeted/committed/actual/available roll-up line.
type Totals struct {
	Budgeted  decimal.Decimal
	Committed decimal.Decimal
	Actual    decimal.Decimal
}

// Available returns budgeted - committed - actual.
func (t Totals) Available() decimal.Decimal {
	return t.Budgeted.Sub(t.Committed).Sub(t.Actual)
}

func (t Totals) add(s ledger.SubAccount) Totals {
	return Totals{
		Budgeted:  t.Budgeted.Add(s.Budgeted),
		Committed: t.Committed.Add(s.Committed),
		Actual:    t.Actual.Add(s.Actual),
	}
}

// AccountTotals is an account with its children and their summed figures.
type AccountTotals struct {
	Account     ledger.Account
	SubAccounts []ledger.SubAccount
	Totals      Totals
}

// ProjectSummary is the full roll-up for one project.
type ProjectSummary struct {
	Accounts []AccountTotals
	Totals   Totals

	// Counts of sub-accounts by classification, for the executive summary.
	ExceededCount int
	WarningCount  int
}

// Aggregator reads the ledger store and computes roll-ups.
type Aggregator struct {
	Store ledger.Store
}

// Summarize rolls every account and sub-account of a project up into a
// ProjectSummary.
func (a *Aggregator) Summarize(ctx context.Context, projectID ledger.ProjectID) (*ProjectSummary, error) {
	accounts, err := a.Store.ListAccounts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	summary := &ProjectSummary{}
	for _, acc := range accounts {
		subs, err := a.Store.ListSubAccounts(ctx, projectID, acc.ID)
		if err != nil {
			return nil, err
		}

		at := AccountTotals{Account: acc, SubAccounts: subs}
		for _, s := range subs {
			at.Totals = at.Totals.add(s)
			switch Classify(s.Available(), s.Budgeted) {
			case StatusExceeded:
				summary.ExceededCount++
			case StatusWarning:
				summary.WarningCount++
			}
		}

		summary.Accounts = append(summary.Accounts, at)
		summary.Totals.Budgeted = summary.Totals.Budgeted.Add(at.Totals.Budgeted)
		summary.Totals.Committed = summary.Totals.Committed.Add(at.Totals.Committed)
		summary.Totals.Actual = summary.Totals.Actual.Add(at.Totals.Actual)
	}
	return summary, nil
}
