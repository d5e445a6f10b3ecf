/*
Package memory provides an in-memory implementation of every store
interface, for tests and development.

PURPOSE:
  One mutex-guarded struct backing the ledger, purchase order, invoice, and
  supplier stores. The mutex serializes sub-account adjustments, which is
  exactly the per-sub-account atomic read-modify-write the ledger contract
  demands: concurrent deltas can interleave in any order but none is lost.

COPY SEMANTICS:
  Reads return copies (including approval step slices and invoice items),
  so a caller mutating a fetched document cannot corrupt the stored state.
  A failed engine operation therefore leaves the store exactly as it was.

SEE ALSO:
  - store/sqlite: the production implementation
*/
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/supplier"
)

// Store holds all collections in memory.
type Store struct {
	mu          sync.RWMutex
	accounts    map[ledger.AccountID]ledger.Account
	subAccounts map[ledger.SubAccountID]ledger.SubAccount
	pos         map[procurement.POID]procurement.PurchaseOrder
	invoices    map[invoice.InvoiceID]invoice.Invoice
	suppliers   map[supplier.SupplierID]supplier.Supplier
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:    make(map[ledger.AccountID]ledger.Account),
		subAccounts: make(map[ledger.SubAccountID]ledger.SubAccount),
		pos:         make(map[procurement.POID]procurement.PurchaseOrder),
		invoices:    make(map[invoice.InvoiceID]invoice.Invoice),
		suppliers:   make(map[supplier.SupplierID]supplier.Supplier),
	}
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (m *Store) ListProjects(_ context.Context) ([]ledger.ProjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[ledger.ProjectID]struct{})
	var out []ledger.ProjectID
	for _, a := range m.accounts {
		if _, ok := seen[a.ProjectID]; !ok {
			seen[a.ProjectID] = struct{}{}
			out = append(out, a.ProjectID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Store) CreateAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Store) GetAccount(_ context.Context, projectID ledger.ProjectID, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok || a.ProjectID != projectID {
		return nil, nil
	}
	return &a, nil
}

func (m *Store) ListAccounts(_ context.Context, projectID ledger.ProjectID) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Account
	for _, a := range m.accounts {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) DeleteAccount(_ context.Context, projectID ledger.ProjectID, id ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "account", ID: string(id)}
	}
	for _, s := range m.subAccounts {
		if s.AccountID == id {
			return &ledger.ConflictError{Reason: "account still owns sub-accounts"}
		}
	}
	delete(m.accounts, id)
	return nil
}

func (m *Store) CreateSubAccount(_ context.Context, s ledger.SubAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subAccounts[s.ID] = s
	return nil
}

func (m *Store) GetSubAccount(_ context.Context, projectID ledger.ProjectID, id ledger.SubAccountID) (*ledger.SubAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subAccounts[id]
	if !ok || s.ProjectID != projectID {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) ListSubAccounts(_ context.Context, projectID ledger.ProjectID, accountID ledger.AccountID) ([]ledger.SubAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.SubAccount
	for _, s := range m.subAccounts {
		if s.ProjectID == projectID && s.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) ListProjectSubAccounts(_ context.Context, projectID ledger.ProjectID) ([]ledger.SubAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.SubAccount
	for _, s := range m.subAccounts {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) DeleteSubAccount(_ context.Context, projectID ledger.ProjectID, id ledger.SubAccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subAccounts[id]
	if !ok || s.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	delete(m.subAccounts, id)
	return nil
}

func (m *Store) UpdateSubAccountBudget(_ context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, budgeted decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subAccounts[id]
	if !ok || s.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	s.Budgeted = budgeted
	m.subAccounts[id] = s
	return nil
}

// AdjustCommitted applies a delta to the committed figure. The store mutex
// makes the read-modify-write atomic.
func (m *Store) AdjustCommitted(_ context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subAccounts[id]
	if !ok || s.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	s.Committed = s.Committed.Add(delta)
	m.subAccounts[id] = s
	return nil
}

// AdjustActual applies a delta to the actual figure. Same atomicity as
// AdjustCommitted.
func (m *Store) AdjustActual(_ context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subAccounts[id]
	if !ok || s.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	s.Actual = s.Actual.Add(delta)
	m.subAccounts[id] = s
	return nil
}

// =============================================================================
// PURCHASE ORDER STORE (procurement.Store interface)
// =============================================================================

func clonePO(po procurement.PurchaseOrder) procurement.PurchaseOrder {
	po.Steps = cloneSteps(po.Steps)
	return po
}

func cloneSteps(steps []approval.Step) []approval.Step {
	if steps == nil {
		return nil
	}
	out := make([]approval.Step, len(steps))
	for i, st := range steps {
		// The approver set is a map; copy it so membership edits on a
		// fetched document cannot reach the stored steps.
		st.Approvers = maps.Clone(st.Approvers)
		out[i] = st
	}
	return out
}

func (m *Store) Create(ctx context.Context, po procurement.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[po.ID] = clonePO(po)
	return nil
}

func (m *Store) Get(_ context.Context, projectID ledger.ProjectID, id procurement.POID) (*procurement.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	po, ok := m.pos[id]
	if !ok || po.ProjectID != projectID {
		return nil, nil
	}
	c := clonePO(po)
	return &c, nil
}

func (m *Store) List(_ context.Context, projectID ledger.ProjectID) ([]procurement.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []procurement.PurchaseOrder
	for _, po := range m.pos {
		if po.ProjectID == projectID {
			out = append(out, clonePO(po))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) Update(_ context.Context, po procurement.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.pos[po.ID]
	if !ok || stored.ProjectID != po.ProjectID {
		return &ledger.NotFoundError{Kind: "purchase_order", ID: string(po.ID)}
	}
	m.pos[po.ID] = clonePO(po)
	return nil
}

func (m *Store) UpdateIf(_ context.Context, po procurement.PurchaseOrder, from procurement.Status, fromStep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.pos[po.ID]
	if !ok || stored.ProjectID != po.ProjectID {
		return &ledger.NotFoundError{Kind: "purchase_order", ID: string(po.ID)}
	}
	if stored.Status != from || stored.CurrentStep != fromStep {
		return &ledger.ConflictError{Reason: "purchase order changed concurrently"}
	}
	m.pos[po.ID] = clonePO(po)
	return nil
}

func (m *Store) Delete(_ context.Context, projectID ledger.ProjectID, id procurement.POID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.pos[id]
	if !ok || po.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "purchase_order", ID: string(id)}
	}
	delete(m.pos, id)
	return nil
}

// =============================================================================
// INVOICE STORE (invoice.Store interface)
// =============================================================================

// InvoiceStore adapts the shared state to the invoice.Store interface. A
// separate view type keeps the method sets of the two document stores from
// colliding on Create/Get/List/Update/Delete.
type InvoiceStore struct {
	parent *Store
}

// Invoices returns the invoice.Store view of this store.
func (m *Store) Invoices() *InvoiceStore {
	return &InvoiceStore{parent: m}
}

func cloneInvoice(inv invoice.Invoice) invoice.Invoice {
	inv.Steps = cloneSteps(inv.Steps)
	if inv.Items != nil {
		items := make([]invoice.Item, len(inv.Items))
		copy(items, inv.Items)
		inv.Items = items
	}
	return inv
}

func (s *InvoiceStore) Create(_ context.Context, inv invoice.Invoice) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (s *InvoiceStore) Get(_ context.Context, projectID ledger.ProjectID, id invoice.InvoiceID) (*invoice.Invoice, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	inv, ok := s.parent.invoices[id]
	if !ok || inv.ProjectID != projectID {
		return nil, nil
	}
	c := cloneInvoice(inv)
	return &c, nil
}

func (s *InvoiceStore) List(_ context.Context, projectID ledger.ProjectID) ([]invoice.Invoice, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	var out []invoice.Invoice
	for _, inv := range s.parent.invoices {
		if inv.ProjectID == projectID {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InvoiceStore) ListByStatus(_ context.Context, projectID ledger.ProjectID, status invoice.Status) ([]invoice.Invoice, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	var out []invoice.Invoice
	for _, inv := range s.parent.invoices {
		if inv.ProjectID == projectID && inv.Status == status {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InvoiceStore) Update(_ context.Context, inv invoice.Invoice) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	stored, ok := s.parent.invoices[inv.ID]
	if !ok || stored.ProjectID != inv.ProjectID {
		return &ledger.NotFoundError{Kind: "invoice", ID: string(inv.ID)}
	}
	s.parent.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (s *InvoiceStore) UpdateIf(_ context.Context, inv invoice.Invoice, from invoice.Status, fromStep int) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	stored, ok := s.parent.invoices[inv.ID]
	if !ok || stored.ProjectID != inv.ProjectID {
		return &ledger.NotFoundError{Kind: "invoice", ID: string(inv.ID)}
	}
	if stored.Status != from || stored.CurrentStep != fromStep {
		return &ledger.ConflictError{Reason: "invoice changed concurrently"}
	}
	s.parent.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (s *InvoiceStore) Delete(_ context.Context, projectID ledger.ProjectID, id invoice.InvoiceID) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	inv, ok := s.parent.invoices[id]
	if !ok || inv.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	delete(s.parent.invoices, id)
	return nil
}

// =============================================================================
// SUPPLIER STORE (supplier.Store interface)
// =============================================================================

// SupplierStore adapts the shared state to the supplier.Store interface.
type SupplierStore struct {
	parent *Store
}

// Suppliers returns the supplier.Store view of this store.
func (m *Store) Suppliers() *SupplierStore {
	return &SupplierStore{parent: m}
}

func (s *SupplierStore) Create(_ context.Context, sup supplier.Supplier) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.suppliers[sup.ID] = sup
	return nil
}

func (s *SupplierStore) Get(_ context.Context, projectID ledger.ProjectID, id supplier.SupplierID) (*supplier.Supplier, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	sup, ok := s.parent.suppliers[id]
	if !ok || sup.ProjectID != projectID {
		return nil, nil
	}
	return &sup, nil
}

func (s *SupplierStore) List(_ context.Context, projectID ledger.ProjectID) ([]supplier.Supplier, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	var out []supplier.Supplier
	for _, sup := range s.parent.suppliers {
		if sup.ProjectID == projectID {
			out = append(out, sup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *SupplierStore) Delete(_ context.Context, projectID ledger.ProjectID, id supplier.SupplierID) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	sup, ok := s.parent.suppliers[id]
	if !ok || sup.ProjectID != projectID {
		return &ledger.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	delete(s.parent.suppliers, id)
	return nil
}
