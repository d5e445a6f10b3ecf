/*
report.go - Tabular report generation

PURPOSE:
  Turns a ProjectSummary into ordered string rows for the three report
  kinds the cost office uses:

  Budget detail:   [code, description, type, budgeted, committed, actual,
                    available, percent]
  Cost control:    budget detail columns plus a status column
                    (OK / ALERTA / SOBREPASADO)
  Executive:       one project-level line with headroom counts

  Percent-executed is (committed + actual) / budgeted. A zero budget
  reports "0.00%", never a division error.
*/
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROW GENERATION
// =============================================================================

// Row types in the budget detail report.
const (
	rowAccount    = "account"
	rowSubAccount = "subaccount"
	rowTotal      = "total"
)

// BudgetHeader is the column order of the budget detail report.
var BudgetHeader = []string{"code", "description", "type", "budgeted", "committed", "actual", "available", "percent"}

// CostControlHeader extends the budget columns with the status classification.
var CostControlHeader = append(append([]string{}, BudgetHeader...), "status")

// PercentExecuted formats (committed+actual)/budgeted as a percentage with
// two decimals. Zero budget reports "0.00%".
func PercentExecuted(t Totals) string {
	if t.Budgeted.IsZero() {
		return "0.00%"
	}
	executed := t.Committed.Add(t.Actual)
	return executed.Div(t.Budgeted).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func totalsColumns(t Totals) []string {
	return []string{money(t.Budgeted), money(t.Committed), money(t.Actual), money(t.Available()), PercentExecuted(t)}
}

// BudgetRows renders the budget detail report: one row per account, one per
// sub-account, and a closing project total row. The header is not included.
func BudgetRows(s *ProjectSummary) [][]string {
	var rows [][]string
	for _, at := range s.Accounts {
		row := append([]string{at.Account.Code, at.Account.Description, rowAccount}, totalsColumns(at.Totals)...)
		rows = append(rows, row)
		for _, sub := range at.SubAccounts {
			t := Totals{Budgeted: sub.Budgeted, Committed: sub.Committed, Actual: sub.Actual}
			rows = append(rows, append([]string{sub.Code, sub.Description, rowSubAccount}, totalsColumns(t)...))
		}
	}
	rows = append(rows, append([]string{"", "TOTAL", rowTotal}, totalsColumns(s.Totals)...))
	return rows
}

// CostControlRows renders the cost-control report: the budget detail columns
// plus a status classification per row. Account and total rows are
// classified on their rolled-up figures.
func CostControlRows(s *ProjectSummary) [][]string {
	var rows [][]string
	appendRow := func(code, description, kind string, t Totals) {
		status := Classify(t.Available(), t.Budgeted).Label()
		rows = append(rows, append(append([]string{code, description, kind}, totalsColumns(t)...), status))
	}

	for _, at := range s.Accounts {
		appendRow(at.Account.Code, at.Account.Description, rowAccount, at.Totals)
		for _, sub := range at.SubAccounts {
			appendRow(sub.Code, sub.Description, rowSubAccount, Totals{Budgeted: sub.Budgeted, Committed: sub.Committed, Actual: sub.Actual})
		}
	}
	appendRow("", "TOTAL", rowTotal, s.Totals)
	return rows
}

// ExecutiveHeader is the column order of the executive summary.
var ExecutiveHeader = []string{"budgeted", "committed", "actual", "available", "percent", "exceeded", "warning"}

// ExecutiveRow renders the single-line executive summary.
func ExecutiveRow(s *ProjectSummary) []string {
	return append(totalsColumns(s.Totals),
		intString(s.ExceededCount), intString(s.WarningCount))
}

func intString(n int) string { return strconv.Itoa(n) }

// =============================================================================
// CSV ENCODING
// =============================================================================

// WriteCSV writes a header and rows in CSV form.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
