/*
dto.go - Request and response data structures

PURPOSE:
  Wire types for the HTTP API. Domain entities never cross the HTTP
  boundary directly: money travels as decimal strings, timestamps as
  RFC3339, dates as YYYY-MM-DD, and approver sets as plain id lists.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry validator tags. decodeValid parses the body and
  runs the validator in one step; field-level failures come back as 400
  before any domain code runs. Amount strings are parsed separately so a
  malformed figure names the offending field.

SEE ALSO:
  - handlers.go: where these are decoded and encoded
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/supplier"
)

var validate = validator.New()

const dateLayout = "2006-01-02"

// decodeValid parses a JSON body into dst and runs struct validation.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ledger.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	if err := validate.Struct(dst); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return &ledger.ValidationError{
				Field:  errs[0].Field(),
				Reason: fmt.Sprintf("failed %q validation", errs[0].Tag()),
			}
		}
		return &ledger.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// parseAmount parses a decimal string, naming the field on failure.
func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ledger.ValidationError{Field: field, Reason: "not a valid decimal"}
	}
	return d, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

type CreateAccountRequest struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description" validate:"required"`
}

type AccountDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:          string(a.ID),
		Code:        a.Code,
		Description: a.Description,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

type CreateSubAccountRequest struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description" validate:"required"`
	Budgeted    string `json:"budgeted" validate:"required"`
}

type UpdateBudgetRequest struct {
	Budgeted string `json:"budgeted" validate:"required"`
}

type SubAccountDTO struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Budgeted    string `json:"budgeted"`
	Committed   string `json:"committed"`
	Actual      string `json:"actual"`
	Available   string `json:"available"`
	CreatedAt   string `json:"created_at"`
}

func toSubAccountDTO(s *ledger.SubAccount) SubAccountDTO {
	return SubAccountDTO{
		ID:          string(s.ID),
		AccountID:   string(s.AccountID),
		Code:        s.Code,
		Description: s.Description,
		Budgeted:    s.Budgeted.StringFixed(2),
		Committed:   s.Committed.StringFixed(2),
		Actual:      s.Actual.StringFixed(2),
		Available:   s.Available().StringFixed(2),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// APPROVAL STEPS
// =============================================================================

// StepInput describes one approval step of a new document.
type StepInput struct {
	Approvers []string `json:"approvers" validate:"required,min=1"`
}

func stepsFromInput(in []StepInput) []approval.Step {
	steps := make([]approval.Step, 0, len(in))
	for _, s := range in {
		users := make([]ledger.UserID, len(s.Approvers))
		for i, u := range s.Approvers {
			users[i] = ledger.UserID(u)
		}
		steps = append(steps, approval.NewStep(users...))
	}
	return steps
}

type StepDTO struct {
	Approvers  []string `json:"approvers"`
	Status     string   `json:"status"`
	ResolvedBy string   `json:"resolved_by,omitempty"`
	ResolvedAt string   `json:"resolved_at,omitempty"`
}

func toStepDTOs(steps []approval.Step) []StepDTO {
	dtos := make([]StepDTO, len(steps))
	for i, s := range steps {
		approvers := make([]string, 0, len(s.Approvers))
		for _, u := range s.Approvers.List() {
			approvers = append(approvers, string(u))
		}
		dtos[i] = StepDTO{
			Approvers:  approvers,
			Status:     string(s.Status),
			ResolvedBy: string(s.ResolvedBy),
		}
		if s.ResolvedAt != nil {
			dtos[i].ResolvedAt = s.ResolvedAt.Format(time.RFC3339)
		}
	}
	return dtos
}

// DecisionRequest records one approve/reject action. The acting user comes
// from the X-User-Id header; the reason matters only when rejecting an
// invoice.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason"`
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

type CreatePORequest struct {
	Number        string      `json:"number" validate:"required"`
	SupplierID    string      `json:"supplier_id"`
	SupplierName  string      `json:"supplier_name"`
	Description   string      `json:"description"`
	BudgetAccount string      `json:"budget_account" validate:"required"`
	Amount        string      `json:"amount" validate:"required"`
	Steps         []StepInput `json:"steps" validate:"dive"`
	Submit        bool        `json:"submit"`
}

type PurchaseOrderDTO struct {
	ID            string    `json:"id"`
	Number        string    `json:"number"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	SupplierName  string    `json:"supplier_name,omitempty"`
	Description   string    `json:"description,omitempty"`
	BudgetAccount string    `json:"budget_account"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Steps         []StepDTO `json:"steps,omitempty"`
	CurrentStep   int       `json:"current_step"`
	CreatedAt     string    `json:"created_at"`
	ApprovedAt    string    `json:"approved_at,omitempty"`
}

func toPODTO(po *procurement.PurchaseOrder) PurchaseOrderDTO {
	dto := PurchaseOrderDTO{
		ID:            string(po.ID),
		Number:        po.Number,
		SupplierID:    po.SupplierID,
		SupplierName:  po.SupplierName,
		Description:   po.Description,
		BudgetAccount: string(po.BudgetAccount),
		Amount:        po.Amount.StringFixed(2),
		Status:        string(po.Status),
		Steps:         toStepDTOs(po.Steps),
		CurrentStep:   po.CurrentStep,
		CreatedAt:     po.CreatedAt.Format(time.RFC3339),
	}
	if po.ApprovedAt != nil {
		dto.ApprovedAt = po.ApprovedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// INVOICES
// =============================================================================

type ItemInput struct {
	SubAccountID   string `json:"sub_account_id"`
	SubAccountCode string `json:"sub_account_code"`
	Description    string `json:"description"`
	Quantity       string `json:"quantity" validate:"required"`
	UnitPrice      string `json:"unit_price" validate:"required"`
	VATRate        string `json:"vat_rate"`
	IRPFRate       string `json:"irpf_rate"`
}

type CreateInvoiceRequest struct {
	Number       string      `json:"number" validate:"required"`
	SupplierID   string      `json:"supplier_id"`
	SupplierName string      `json:"supplier_name"`
	Description  string      `json:"description"`
	POID         string      `json:"po_id"`
	PONumber     string      `json:"po_number"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
	Steps        []StepInput `json:"steps" validate:"dive"`
	DueDate      string      `json:"due_date"`
}

type InvoiceItemDTO struct {
	SubAccountID   string `json:"sub_account_id,omitempty"`
	SubAccountCode string `json:"sub_account_code,omitempty"`
	Description    string `json:"description,omitempty"`
	Quantity       string `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	BaseAmount     string `json:"base_amount"`
	VATRate        string `json:"vat_rate"`
	VATAmount      string `json:"vat_amount"`
	IRPFRate       string `json:"irpf_rate"`
	IRPFAmount     string `json:"irpf_amount"`
	TotalAmount    string `json:"total_amount"`
}

type InvoiceDTO struct {
	ID                 string           `json:"id"`
	Number             string           `json:"number"`
	SupplierID         string           `json:"supplier_id,omitempty"`
	SupplierName       string           `json:"supplier_name,omitempty"`
	Description        string           `json:"description,omitempty"`
	POID               string           `json:"po_id,omitempty"`
	PONumber           string           `json:"po_number,omitempty"`
	Items              []InvoiceItemDTO `json:"items"`
	BaseAmount         string           `json:"base_amount"`
	VATAmount          string           `json:"vat_amount"`
	IRPFAmount         string           `json:"irpf_amount"`
	TotalAmount        string           `json:"total_amount"`
	Status             string           `json:"status"`
	Steps              []StepDTO        `json:"steps,omitempty"`
	CurrentStep        int              `json:"current_step"`
	DueDate            string           `json:"due_date,omitempty"`
	PaymentDate        string           `json:"payment_date,omitempty"`
	CreatedAt          string           `json:"created_at"`
	RejectionReason    string           `json:"rejection_reason,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
}

func toInvoiceDTO(inv *invoice.Invoice) InvoiceDTO {
	items := make([]InvoiceItemDTO, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = InvoiceItemDTO{
			SubAccountID:   string(it.SubAccountID),
			SubAccountCode: it.SubAccountCode,
			Description:    it.Description,
			Quantity:       it.Quantity.String(),
			UnitPrice:      it.UnitPrice.StringFixed(2),
			BaseAmount:     it.BaseAmount.StringFixed(2),
			VATRate:        it.VATRate.String(),
			VATAmount:      it.VATAmount.StringFixed(2),
			IRPFRate:       it.IRPFRate.String(),
			IRPFAmount:     it.IRPFAmount.StringFixed(2),
			TotalAmount:    it.TotalAmount.StringFixed(2),
		}
	}

	dto := InvoiceDTO{
		ID:                 string(inv.ID),
		Number:             inv.Number,
		SupplierID:         inv.SupplierID,
		SupplierName:       inv.SupplierName,
		Description:        inv.Description,
		POID:               inv.POID,
		PONumber:           inv.PONumber,
		Items:              items,
		BaseAmount:         inv.BaseAmount.StringFixed(2),
		VATAmount:          inv.VATAmount.StringFixed(2),
		IRPFAmount:         inv.IRPFAmount.StringFixed(2),
		TotalAmount:        inv.TotalAmount.StringFixed(2),
		Status:             string(inv.Status),
		Steps:              toStepDTOs(inv.Steps),
		CurrentStep:        inv.CurrentStep,
		CreatedAt:          inv.CreatedAt.Format(time.RFC3339),
		RejectionReason:    inv.RejectionReason,
		CancellationReason: inv.CancellationReason,
	}
	if !inv.DueDate.IsZero() {
		dto.DueDate = inv.DueDate.Format(dateLayout)
	}
	if inv.PaymentDate != nil {
		dto.PaymentDate = inv.PaymentDate.Format(time.RFC3339)
	}
	return dto
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =============================================================================
// SUPPLIERS
// =============================================================================

type CreateSupplierRequest struct {
	Name  string `json:"name" validate:"required"`
	TaxID string `json:"tax_id"`
	Email string `json:"email" validate:"omitempty,email"`
}

type SupplierDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaxID     string `json:"tax_id,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toSupplierDTO(s *supplier.Supplier) SupplierDTO {
	return SupplierDTO{
		ID:        string(s.ID),
		Name:      s.Name,
		TaxID:     s.TaxID,
		Email:     s.Email,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// REPORTS
// =============================================================================

type TotalsDTO struct {
	Budgeted  string `json:"budgeted"`
	Committed string `json:"committed"`
	Actual    string `json:"actual"`
	Available string `json:"available"`
	Percent   string `json:"percent"`
}

func toTotalsDTO(t report.Totals) TotalsDTO {
	return TotalsDTO{
		Budgeted:  t.Budgeted.StringFixed(2),
		Committed: t.Committed.StringFixed(2),
		Actual:    t.Actual.StringFixed(2),
		Available: t.Available().StringFixed(2),
		Percent:   report.PercentExecuted(t),
	}
}

type AccountSummaryDTO struct {
	Account     AccountDTO      `json:"account"`
	SubAccounts []SubAccountDTO `json:"sub_accounts"`
	Totals      TotalsDTO       `json:"totals"`
	Status      string          `json:"status"`
}

type ProjectSummaryDTO struct {
	Accounts      []AccountSummaryDTO `json:"accounts"`
	Totals        TotalsDTO           `json:"totals"`
	Status        string              `json:"status"`
	ExceededCount int                 `json:"exceeded_count"`
	WarningCount  int                 `json:"warning_count"`
}

func toSummaryDTO(s *report.ProjectSummary) ProjectSummaryDTO {
	accounts := make([]AccountSummaryDTO, len(s.Accounts))
	for i, at := range s.Accounts {
		subs := make([]SubAccountDTO, len(at.SubAccounts))
		for j := range at.SubAccounts {
			subs[j] = toSubAccountDTO(&at.SubAccounts[j])
		}
		accounts[i] = AccountSummaryDTO{
			Account:     toAccountDTO(&at.Account),
			SubAccounts: subs,
			Totals:      toTotalsDTO(at.Totals),
			Status:      report.Classify(at.Totals.Available(), at.Totals.Budgeted).Label(),
		}
	}
	return ProjectSummaryDTO{
		Accounts:      accounts,
		Totals:        toTotalsDTO(s.Totals),
		Status:        report.Classify(s.Totals.Available(), s.Totals.Budgeted).Label(),
		ExceededCount: s.ExceededCount,
		WarningCount:  s.WarningCount,
	}
}

// SweepResultDTO reports one overdue sweep run.
type SweepResultDTO struct {
	Flipped  int      `json:"flipped"`
	Failures []string `json:"failures,omitempty"`
}
