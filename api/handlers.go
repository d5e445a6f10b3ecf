/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the budget engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. Every route is scoped
  under a project id; nothing reaches across projects.

ENDPOINTS (all under /api/projects/{projectID}):
  Chart of accounts:
    GET    /accounts                       List accounts
    POST   /accounts                       Create account
    DELETE /accounts/{id}                  Delete account (childless only)
    GET    /accounts/{id}/subaccounts      List sub-accounts
    POST   /accounts/{id}/subaccounts      Create sub-account
    PUT    /subaccounts/{id}/budget        Replace budgeted figure
    DELETE /subaccounts/{id}               Delete sub-account

  Purchase orders:
    GET    /purchase-orders                List
    POST   /purchase-orders                Create (draft or submitted)
    GET    /purchase-orders/{id}           Get
    POST   /purchase-orders/{id}/submit    Draft -> pending
    POST   /purchase-orders/{id}/decision  Approve/reject current step
    DELETE /purchase-orders/{id}           Delete (no approvals recorded)

  Invoices:
    GET    /invoices                       List (?status= filter)
    POST   /invoices                       Create
    GET    /invoices/{id}                  Get
    POST   /invoices/{id}/decision         Approve/reject current step
    POST   /invoices/{id}/pay              Mark as paid
    POST   /invoices/{id}/cancel           Cancel with reason
    POST   /invoices/sweep-overdue         Run the overdue sweep now
    DELETE /invoices/{id}                  Delete (not paid)

  Suppliers:
    GET/POST /suppliers, GET/DELETE /suppliers/{id}

  Reports:
    GET    /summary                        Budget roll-up as JSON
    GET    /reports/{kind}                 budget|cost-control|executive,
                                           ?format=csv|xlsx

ERROR HANDLING:
  Domain errors map to HTTP status by category:
  - 400: validation
  - 403: forbidden (approval by non-approver)
  - 404: not found
  - 409: conflict (guarded delete, adjustment contention)
  - 422: invalid state (illegal lifecycle transition)
  - 500: everything else

ACTING USER:
  Approval decisions require an X-User-Id header. There is no
  authentication; the header is trusted the way a reverse proxy would
  inject it.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/supplier"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Service
	POs       *procurement.Engine
	Invoices  *invoice.Engine
	Suppliers *supplier.Service
	Reports   *report.Aggregator

	Log zerolog.Logger
}

// NewHandler wires a handler over the domain services.
func NewHandler(ledgerSvc *ledger.Service, pos *procurement.Engine, invoices *invoice.Engine, suppliers *supplier.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Ledger:    ledgerSvc,
		POs:       pos,
		Invoices:  invoices,
		Suppliers: suppliers,
		Reports:   &report.Aggregator{Store: ledgerSvc.Store()},
		Log:       log,
	}
}

func projectID(r *http.Request) ledger.ProjectID {
	return ledger.ProjectID(chi.URLParam(r, "projectID"))
}

func actingUser(r *http.Request) ledger.UserID {
	return ledger.UserID(r.Header.Get("X-User-Id"))
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

// ListAccounts returns the project's accounts with their sub-accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	pid := projectID(r)
	summary, err := h.Reports.Summarize(r.Context(), pid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary).Accounts)
}

// CreateAccount creates a top-level account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	a, err := h.Ledger.CreateAccount(r.Context(), projectID(r), req.Code, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

// DeleteAccount removes a childless account.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	if err := h.Ledger.DeleteAccount(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListSubAccounts returns the sub-accounts of one account.
func (h *Handler) ListSubAccounts(w http.ResponseWriter, r *http.Request) {
	pid := projectID(r)
	accountID := ledger.AccountID(chi.URLParam(r, "id"))

	subs, err := h.Ledger.Store().ListSubAccounts(r.Context(), pid, accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]SubAccountDTO, len(subs))
	for i := range subs {
		dtos[i] = toSubAccountDTO(&subs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSubAccount creates a sub-account with an initial budget.
func (h *Handler) CreateSubAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateSubAccountRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	budgeted, err := parseAmount("budgeted", req.Budgeted)
	if err != nil {
		h.writeError(w, err)
		return
	}

	accountID := ledger.AccountID(chi.URLParam(r, "id"))
	sub, err := h.Ledger.CreateSubAccount(r.Context(), projectID(r), accountID, req.Code, req.Description, budgeted)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubAccountDTO(sub))
}

// UpdateBudget replaces a sub-account's budgeted figure.
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req UpdateBudgetRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	budgeted, err := parseAmount("budgeted", req.Budgeted)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pid := projectID(r)
	id := ledger.SubAccountID(chi.URLParam(r, "id"))
	if err := h.Ledger.UpdateBudget(r.Context(), pid, id, budgeted); err != nil {
		h.writeError(w, err)
		return
	}

	sub, err := h.Ledger.Store().GetSubAccount(r.Context(), pid, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sub == nil {
		h.writeError(w, &ledger.NotFoundError{Kind: "subaccount", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toSubAccountDTO(sub))
}

// DeleteSubAccount removes a sub-account.
func (h *Handler) DeleteSubAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubAccountID(chi.URLParam(r, "id"))
	if err := h.Ledger.DeleteSubAccount(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

// ListPurchaseOrders returns all POs for the project.
func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	pos, err := h.POs.List(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]PurchaseOrderDTO, len(pos))
	for i := range pos {
		dtos[i] = toPODTO(&pos[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePurchaseOrder creates a PO in draft, or directly pending when the
// request sets submit.
func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req CreatePORequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	po, err := h.POs.Create(r.Context(), procurement.CreateInput{
		ProjectID:     projectID(r),
		Number:        req.Number,
		SupplierID:    req.SupplierID,
		SupplierName:  req.SupplierName,
		Description:   req.Description,
		BudgetAccount: ledger.SubAccountID(req.BudgetAccount),
		Amount:        amount,
		Steps:         stepsFromInput(req.Steps),
		Submit:        req.Submit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPODTO(po))
}

// GetPurchaseOrder returns a single PO.
func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id := procurement.POID(chi.URLParam(r, "id"))
	po, err := h.POs.Get(r.Context(), projectID(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPODTO(po))
}

// SubmitPurchaseOrder moves a draft PO into approval.
func (h *Handler) SubmitPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id := procurement.POID(chi.URLParam(r, "id"))
	po, err := h.POs.Submit(r.Context(), projectID(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPODTO(po))
}

// DecidePurchaseOrder records an approve/reject on the current step.
func (h *Handler) DecidePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	user := actingUser(r)
	if user == "" {
		h.writeError(w, &ledger.ValidationError{Field: "X-User-Id", Reason: "header is required"})
		return
	}

	id := procurement.POID(chi.URLParam(r, "id"))
	po, err := h.POs.ResolveStep(r.Context(), projectID(r), id, user, approval.Decision(req.Decision))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info().
		Str("po", string(po.ID)).
		Str("user", string(user)).
		Str("decision", req.Decision).
		Str("status", string(po.Status)).
		Msg("purchase order decision recorded")
	writeJSON(w, http.StatusOK, toPODTO(po))
}

// DeletePurchaseOrder removes a PO with no recorded approvals.
func (h *Handler) DeletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id := procurement.POID(chi.URLParam(r, "id"))
	if err := h.POs.Delete(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// INVOICES
// =============================================================================

// ListInvoices returns the project's invoices, optionally filtered by
// ?status=.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	pid := projectID(r)

	var invs []invoice.Invoice
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		invs, err = h.Invoices.ListByStatus(r.Context(), pid, invoice.Status(status))
	} else {
		invs, err = h.Invoices.List(r.Context(), pid)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]InvoiceDTO, len(invs))
	for i := range invs {
		dtos[i] = toInvoiceDTO(&invs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvoice registers an invoice with computed line-item amounts.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]invoice.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		qty, err := parseAmount("quantity", it.Quantity)
		if err != nil {
			h.writeError(w, err)
			return
		}
		price, err := parseAmount("unit_price", it.UnitPrice)
		if err != nil {
			h.writeError(w, err)
			return
		}
		vat, err := parseAmount("vat_rate", it.VATRate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		irpf, err := parseAmount("irpf_rate", it.IRPFRate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		items = append(items, invoice.ItemInput{
			SubAccountID:   ledger.SubAccountID(it.SubAccountID),
			SubAccountCode: it.SubAccountCode,
			Description:    it.Description,
			Quantity:       qty,
			UnitPrice:      price,
			VATRate:        vat,
			IRPFRate:       irpf,
		})
	}

	var dueDate time.Time
	if req.DueDate != "" {
		t, err := time.Parse(dateLayout, req.DueDate)
		if err != nil {
			h.writeError(w, &ledger.ValidationError{Field: "due_date", Reason: "use YYYY-MM-DD"})
			return
		}
		dueDate = t
	}

	inv, err := h.Invoices.Create(r.Context(), invoice.CreateInput{
		ProjectID:    projectID(r),
		Number:       req.Number,
		SupplierID:   req.SupplierID,
		SupplierName: req.SupplierName,
		Description:  req.Description,
		POID:         req.POID,
		PONumber:     req.PONumber,
		Items:        items,
		Steps:        stepsFromInput(req.Steps),
		DueDate:      dueDate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// GetInvoice returns a single invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := invoice.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Invoices.Get(r.Context(), projectID(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// DecideInvoice records an approve/reject on the current step.
func (h *Handler) DecideInvoice(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	user := actingUser(r)
	if user == "" {
		h.writeError(w, &ledger.ValidationError{Field: "X-User-Id", Reason: "header is required"})
		return
	}

	id := invoice.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Invoices.ResolveStep(r.Context(), projectID(r), id, user, approval.Decision(req.Decision), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info().
		Str("invoice", string(inv.ID)).
		Str("user", string(user)).
		Str("decision", req.Decision).
		Str("status", string(inv.Status)).
		Msg("invoice decision recorded")
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// PayInvoice settles an invoice and posts its actuals to the ledger.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	id := invoice.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Invoices.MarkAsPaid(r.Context(), projectID(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info().
		Str("invoice", string(inv.ID)).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Msg("invoice paid")
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// CancelInvoice voids an unpaid invoice.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	var req CancelInvoiceRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	id := invoice.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Invoices.Cancel(r.Context(), projectID(r), id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// DeleteInvoice removes an unpaid invoice.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := invoice.InvoiceID(chi.URLParam(r, "id"))
	if err := h.Invoices.Delete(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SweepOverdue runs the overdue sweep immediately for this project.
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	pid := projectID(r)
	res, err := h.Invoices.SweepOverdue(r.Context(), pid, time.Now().UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto := SweepResultDTO{Flipped: res.Flipped}
	for _, f := range res.Failures {
		dto.Failures = append(dto.Failures, string(f.ID)+": "+f.Err.Error())
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// SUPPLIERS
// =============================================================================

// ListSuppliers returns the project's suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	sups, err := h.Suppliers.List(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]SupplierDTO, len(sups))
	for i := range sups {
		dtos[i] = toSupplierDTO(&sups[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSupplier registers a supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if err := decodeValid(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	sup, err := h.Suppliers.Create(r.Context(), projectID(r), req.Name, req.TaxID, req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplierDTO(sup))
}

// GetSupplier returns a single supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id := supplier.SupplierID(chi.URLParam(r, "id"))
	sup, err := h.Suppliers.Get(r.Context(), projectID(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierDTO(sup))
}

// DeleteSupplier removes a supplier.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id := supplier.SupplierID(chi.URLParam(r, "id"))
	if err := h.Suppliers.Delete(r.Context(), projectID(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// REPORTS
// =============================================================================

// GetSummary returns the project budget roll-up as JSON.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reports.Summarize(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// GetReport streams a tabular report as CSV or XLSX.
// GET /api/projects/{projectID}/reports/{kind}?format=csv|xlsx
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	summary, err := h.Reports.Summarize(r.Context(), projectID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var header []string
	var rows [][]string
	switch kind {
	case "budget":
		header, rows = report.BudgetHeader, report.BudgetRows(summary)
	case "cost-control":
		header, rows = report.CostControlHeader, report.CostControlRows(summary)
	case "executive":
		header, rows = report.ExecutiveHeader, [][]string{report.ExecutiveRow(summary)}
	default:
		h.writeError(w, &ledger.ValidationError{Field: "kind", Reason: "must be budget, cost-control, or executive"})
		return
	}

	filename := kind + "-report"
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
		if err := report.WriteCSV(w, header, rows); err != nil {
			h.Log.Error().Err(err).Str("kind", kind).Msg("failed to stream csv report")
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.xlsx"`)
		if err := report.WriteXLSX(w, header, rows); err != nil {
			h.Log.Error().Err(err).Str("kind", kind).Msg("failed to stream xlsx report")
		}
	default:
		h.writeError(w, &ledger.ValidationError{Field: "format", Reason: "must be csv or xlsx"})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the domain error taxonomy to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg("internal error")
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
