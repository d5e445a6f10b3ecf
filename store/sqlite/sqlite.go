/*
Package sqlite provides the SQLite-backed implementation of every store
interface.

PURPOSE:
  Implements ledger.Store, procurement.Store, invoice.Store, and
  supplier.Store over one database. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

ADJUSTMENT ATOMICITY:
  Committed/actual adjustments run a read-then-write inside a single
  transaction, so concurrent deltas on the same sub-account cannot lose
  updates. Busy/locked errors are retried a bounded number of times before
  surfacing as ConflictError.

KEY TABLES:
  accounts, sub_accounts:  chart of accounts, figures as decimal TEXT
  purchase_orders:         approval steps serialized as JSON
  invoices:                line items and approval steps as JSON
  suppliers:               per-project registry

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging): readers don't
  block, one writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - store/memory: in-memory implementation for tests
  - ledger/store.go: the adjustment contract this package satisfies
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/supplier"
)

// adjustRetries bounds the internal retry loop on busy/locked errors.
const adjustRetries = 5

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		code TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_project_code
		ON accounts(project_id, code);

	CREATE TABLE IF NOT EXISTS sub_accounts (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		code TEXT NOT NULL,
		description TEXT NOT NULL,
		budgeted TEXT NOT NULL,
		committed TEXT NOT NULL,
		actual TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sub_accounts_account
		ON sub_accounts(account_id);
	CREATE INDEX IF NOT EXISTS idx_sub_accounts_project
		ON sub_accounts(project_id);

	CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		number TEXT NOT NULL,
		supplier_id TEXT,
		supplier_name TEXT,
		description TEXT,
		budget_account TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		steps_json TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		approved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_orders_project
		ON purchase_orders(project_id);
	CREATE INDEX IF NOT EXISTS idx_purchase_orders_status
		ON purchase_orders(status);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		number TEXT NOT NULL,
		supplier_id TEXT,
		supplier_name TEXT,
		description TEXT,
		po_id TEXT,
		po_number TEXT,
		items_json TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		vat_amount TEXT NOT NULL,
		irpf_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		steps_json TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		payment_date TEXT,
		created_at TEXT NOT NULL,
		rejected_at TEXT,
		rejection_reason TEXT,
		cancelled_at TEXT,
		cancellation_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_project
		ON invoices(project_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(project_id, status);
	CREATE INDEX IF NOT EXISTS idx_invoices_due_date
		ON invoices(due_date);

	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		tax_id TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_suppliers_project
		ON suppliers(project_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func isBusyError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// stepRecord is the JSON shape of one approval step.
type stepRecord struct {
	Approvers  []string   `json:"approvers"`
	Status     string     `json:"status"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func encodeSteps(steps []approval.Step) (string, error) {
	records := make([]stepRecord, len(steps))
	for i, st := range steps {
		approvers := make([]string, 0, len(st.Approvers))
		for _, u := range st.Approvers.List() {
			approvers = append(approvers, string(u))
		}
		records[i] = stepRecord{
			Approvers:  approvers,
			Status:     string(st.Status),
			ResolvedBy: string(st.ResolvedBy),
			ResolvedAt: st.ResolvedAt,
		}
	}
	b, err := json.Marshal(records)
	return string(b), err
}

func decodeSteps(data string) ([]approval.Step, error) {
	var records []stepRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	steps := make([]approval.Step, len(records))
	for i, r := range records {
		users := make([]ledger.UserID, len(r.Approvers))
		for j, u := range r.Approvers {
			users[j] = ledger.UserID(u)
		}
		steps[i] = approval.Step{
			Approvers:  approval.NewApproverSet(users...),
			Status:     approval.StepStatus(r.Status),
			ResolvedBy: ledger.UserID(r.ResolvedBy),
			ResolvedAt: r.ResolvedAt,
		}
	}
	return steps, nil
}

// itemRecord is the JSON shape of one invoice line item.
type itemRecord struct {
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

func encodeItems(items []invoice.Item) (string, error) {
	records := make([]itemRecord, len(items))
	for i, it := range items {
		records[i] = itemRecord{
			SubAccountID:   string(it.SubAccountID),
			SubAccountCode: it.SubAccountCode,
			Description:    it.Description,
			Quantity:       it.Quantity.String(),
			UnitPrice:      it.UnitPrice.String(),
			BaseAmount:     it.BaseAmount.String(),
			VATRate:        it.VATRate.String(),
			VATAmount:      it.VATAmount.String(),
			IRPFRate:       it.IRPFRate.String(),
			IRPFAmount:     it.IRPFAmount.String(),
			TotalAmount:    it.TotalAmount.String(),
		}
	}
	b, err := json.Marshal(records)
	return string(b), err
}

func decodeItems(data string) ([]invoice.Item, error) {
	var records []itemRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, err
	}
	items := make([]invoice.Item, len(records))
	for i, r := range records {
		items[i] = invoice.Item{
			SubAccountID:   ledger.SubAccountID(r.SubAccountID),
			SubAccountCode: r.SubAccountCode,
			Description:    r.Description,
			Quantity:       parseDecimal(r.Quantity),
			UnitPrice:      parseDecimal(r.UnitPrice),
			BaseAmount:     parseDecimal(r.BaseAmount),
			VATRate:        parseDecimal(r.VATRate),
			VATAmount:      parseDecimal(r.VATAmount),
			IRPFRate:       parseDecimal(r.IRPFRate),
			IRPFAmount:     parseDecimal(r.IRPFAmount),
			TotalAmount:    parseDecimal(r.TotalAmount),
		}
	}
	return items, nil
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) ListProjects(ctx context.Context) ([]ledger.ProjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT project_id FROM accounts ORDER BY project_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []ledger.ProjectID
	for rows.Next() {
		var id ledger.ProjectID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, project_id, code, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Code, a.Description, formatTime(a.CreatedAt),
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return &ledger.ConflictError{Reason: fmt.Sprintf("account code %q already exists", a.Code)}
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, projectID ledger.ProjectID, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, code, description, created_at FROM accounts WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	var a ledger.Account
	var createdAt string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Code, &a.Description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context, projectID ledger.ProjectID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, code, description, created_at FROM accounts WHERE project_id = ? ORDER BY code ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Code, &a.Description, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAccount deletes an account only when it owns zero sub-accounts.
// The check and the delete run in one transaction.
func (s *Store) DeleteAccount(ctx context.Context, projectID ledger.ProjectID, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var children int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sub_accounts WHERE account_id = ?`, id,
	).Scan(&children); err != nil {
		return err
	}
	if children > 0 {
		return &ledger.ConflictError{Reason: "account still owns sub-accounts"}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "account", ID: string(id)}
	}
	return tx.Commit()
}

func (s *Store) CreateSubAccount(ctx context.Context, sub ledger.SubAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sub_accounts (id, account_id, project_id, code, description, budgeted, committed, actual, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.AccountID, sub.ProjectID, sub.Code, sub.Description,
		sub.Budgeted.String(), sub.Committed.String(), sub.Actual.String(),
		formatTime(sub.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create sub-account: %w", err)
	}
	return nil
}

const subAccountColumns = `id, account_id, project_id, code, description, budgeted, committed, actual, created_at`

func scanSubAccount(scan func(dest ...any) error) (ledger.SubAccount, error) {
	var sub ledger.SubAccount
	var budgeted, committed, actual, createdAt string
	err := scan(&sub.ID, &sub.AccountID, &sub.ProjectID, &sub.Code, &sub.Description,
		&budgeted, &committed, &actual, &createdAt)
	if err != nil {
		return sub, err
	}
	sub.Budgeted = parseDecimal(budgeted)
	sub.Committed = parseDecimal(committed)
	sub.Actual = parseDecimal(actual)
	sub.CreatedAt = parseTime(createdAt)
	return sub, nil
}

func (s *Store) GetSubAccount(ctx context.Context, projectID ledger.ProjectID, id ledger.SubAccountID) (*ledger.SubAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	sub, err := scanSubAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sub-account: %w", err)
	}
	return &sub, nil
}

func (s *Store) querySubAccounts(ctx context.Context, query string, args ...any) ([]ledger.SubAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.SubAccount
	for rows.Next() {
		sub, err := scanSubAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) ListSubAccounts(ctx context.Context, projectID ledger.ProjectID, accountID ledger.AccountID) ([]ledger.SubAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubAccounts(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts WHERE project_id = ? AND account_id = ? ORDER BY code ASC`,
		projectID, accountID)
}

func (s *Store) ListProjectSubAccounts(ctx context.Context, projectID ledger.ProjectID) ([]ledger.SubAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubAccounts(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts WHERE project_id = ? ORDER BY code ASC`,
		projectID)
}

func (s *Store) DeleteSubAccount(ctx context.Context, projectID ledger.ProjectID, id ledger.SubAccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sub_accounts WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	return nil
}

func (s *Store) UpdateSubAccountBudget(ctx context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, budgeted decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE sub_accounts SET budgeted = ? WHERE id = ? AND project_id = ?`,
		budgeted.String(), id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	return nil
}

// AdjustCommitted applies a delta to the committed figure. The
// read-modify-write runs inside one transaction under the store mutex.
func (s *Store) AdjustCommitted(ctx context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	return s.adjust(ctx, "committed", projectID, id, delta)
}

// AdjustActual applies a delta to the actual figure. Same mechanics as
// AdjustCommitted.
func (s *Store) AdjustActual(ctx context.Context, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	return s.adjust(ctx, "actual", projectID, id, delta)
}

func (s *Store) adjust(ctx context.Context, column string, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < adjustRetries; attempt++ {
		err := s.adjustOnce(ctx, column, projectID, id, delta)
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 5 * time.Millisecond)
	}
	return &ledger.ConflictError{Reason: fmt.Sprintf("sub-account adjustment contention: %v", lastErr)}
}

func (s *Store) adjustOnce(ctx context.Context, column string, projectID ledger.ProjectID, id ledger.SubAccountID, delta decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT `+column+` FROM sub_accounts WHERE id = ? AND project_id = ?`,
		id, projectID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Kind: "subaccount", ID: string(id)}
	}
	if err != nil {
		return err
	}

	next := parseDecimal(current).Add(delta)
	if _, err := tx.ExecContext(ctx,
		`UPDATE sub_accounts SET `+column+` = ? WHERE id = ? AND project_id = ?`,
		next.String(), id, projectID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// PURCHASE ORDER STORE (procurement.Store interface)
// =============================================================================

func (s *Store) Create(ctx context.Context, po procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := encodeSteps(po.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO purchase_orders
		 (id, project_id, number, supplier_id, supplier_name, description, budget_account, amount,
		  status, steps_json, current_step, created_at, approved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.ID, po.ProjectID, po.Number, po.SupplierID, po.SupplierName, po.Description,
		po.BudgetAccount, po.Amount.String(), po.Status, steps, po.CurrentStep,
		formatTime(po.CreatedAt), nullTime(po.ApprovedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase order: %w", err)
	}
	return nil
}

const poColumns = `id, project_id, number, supplier_id, supplier_name, description, budget_account, amount, status, steps_json, current_step, created_at, approved_at`

func scanPO(scan func(dest ...any) error) (procurement.PurchaseOrder, error) {
	var po procurement.PurchaseOrder
	var amount, steps, createdAt string
	var approvedAt sql.NullString
	err := scan(&po.ID, &po.ProjectID, &po.Number, &po.SupplierID, &po.SupplierName,
		&po.Description, &po.BudgetAccount, &amount, &po.Status, &steps,
		&po.CurrentStep, &createdAt, &approvedAt)
	if err != nil {
		return po, err
	}
	po.Amount = parseDecimal(amount)
	po.Steps, err = decodeSteps(steps)
	if err != nil {
		return po, fmt.Errorf("failed to decode approval steps: %w", err)
	}
	po.CreatedAt = parseTime(createdAt)
	po.ApprovedAt = scanNullTime(approvedAt)
	return po, nil
}

func (s *Store) Get(ctx context.Context, projectID ledger.ProjectID, id procurement.POID) (*procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+poColumns+` FROM purchase_orders WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	po, err := scanPO(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	return &po, nil
}

func (s *Store) List(ctx context.Context, projectID ledger.ProjectID) ([]procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+poColumns+` FROM purchase_orders WHERE project_id = ? ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	defer rows.Close()

	var out []procurement.PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, po procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := encodeSteps(po.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE purchase_orders SET
		 number = ?, supplier_id = ?, supplier_name = ?, description = ?, budget_account = ?,
		 amount = ?, status = ?, steps_json = ?, current_step = ?, approved_at = ?
		 WHERE id = ? AND project_id = ?`,
		po.Number, po.SupplierID, po.SupplierName, po.Description, po.BudgetAccount,
		po.Amount.String(), po.Status, steps, po.CurrentStep, nullTime(po.ApprovedAt),
		po.ID, po.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "purchase_order", ID: string(po.ID)}
	}
	return nil
}

// UpdateIf writes the PO only when the stored row still matches the status
// and current step the caller read. The condition lives in the WHERE clause,
// so a stale writer affects zero rows.
func (s *Store) UpdateIf(ctx context.Context, po procurement.PurchaseOrder, from procurement.Status, fromStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := encodeSteps(po.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE purchase_orders SET
		 number = ?, supplier_id = ?, supplier_name = ?, description = ?, budget_account = ?,
		 amount = ?, status = ?, steps_json = ?, current_step = ?, approved_at = ?
		 WHERE id = ? AND project_id = ? AND status = ? AND current_step = ?`,
		po.Number, po.SupplierID, po.SupplierName, po.Description, po.BudgetAccount,
		po.Amount.String(), po.Status, steps, po.CurrentStep, nullTime(po.ApprovedAt),
		po.ID, po.ProjectID, from, fromStep,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM purchase_orders WHERE id = ? AND project_id = ?`,
			po.ID, po.ProjectID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &ledger.NotFoundError{Kind: "purchase_order", ID: string(po.ID)}
		}
		if err != nil {
			return err
		}
		return &ledger.ConflictError{Reason: "purchase order changed concurrently"}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, projectID ledger.ProjectID, id procurement.POID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM purchase_orders WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "purchase_order", ID: string(id)}
	}
	return nil
}

// =============================================================================
// INVOICE STORE (invoice.Store interface)
// =============================================================================

// InvoiceStore is the invoice.Store view over the shared database. A
// separate view type keeps the two document stores' method sets from
// colliding on Create/Get/List/Update/Delete.
type InvoiceStore struct {
	parent *Store
}

// Invoices returns the invoice.Store view of this store.
func (s *Store) Invoices() *InvoiceStore {
	return &InvoiceStore{parent: s}
}

const invoiceColumns = `id, project_id, number, supplier_id, supplier_name, description, po_id, po_number,
	items_json, base_amount, vat_amount, irpf_amount, total_amount, status, steps_json, current_step,
	due_date, payment_date, created_at, rejected_at, rejection_reason, cancelled_at, cancellation_reason`

func (is *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) error {
	is.parent.mu.Lock()
	defer is.parent.mu.Unlock()

	steps, err := encodeSteps(inv.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}
	items, err := encodeItems(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	_, err = is.parent.db.ExecContext(ctx,
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ProjectID, inv.Number, inv.SupplierID, inv.SupplierName, inv.Description,
		inv.POID, inv.PONumber, items,
		inv.BaseAmount.String(), inv.VATAmount.String(), inv.IRPFAmount.String(), inv.TotalAmount.String(),
		inv.Status, steps, inv.CurrentStep,
		nullTime(timePtr(inv.DueDate)), nullTime(inv.PaymentDate), formatTime(inv.CreatedAt),
		nullTime(inv.RejectedAt), inv.RejectionReason, nullTime(inv.CancelledAt), inv.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func scanInvoice(scan func(dest ...any) error) (invoice.Invoice, error) {
	var inv invoice.Invoice
	var items, base, vat, irpf, total, steps, createdAt string
	var dueDate, paymentDate, rejectedAt, cancelledAt sql.NullString
	err := scan(&inv.ID, &inv.ProjectID, &inv.Number, &inv.SupplierID, &inv.SupplierName,
		&inv.Description, &inv.POID, &inv.PONumber, &items, &base, &vat, &irpf, &total,
		&inv.Status, &steps, &inv.CurrentStep, &dueDate, &paymentDate, &createdAt,
		&rejectedAt, &inv.RejectionReason, &cancelledAt, &inv.CancellationReason)
	if err != nil {
		return inv, err
	}
	inv.Items, err = decodeItems(items)
	if err != nil {
		return inv, fmt.Errorf("failed to decode items: %w", err)
	}
	inv.BaseAmount = parseDecimal(base)
	inv.VATAmount = parseDecimal(vat)
	inv.IRPFAmount = parseDecimal(irpf)
	inv.TotalAmount = parseDecimal(total)
	inv.Steps, err = decodeSteps(steps)
	if err != nil {
		return inv, fmt.Errorf("failed to decode approval steps: %w", err)
	}
	if t := scanNullTime(dueDate); t != nil {
		inv.DueDate = *t
	}
	inv.PaymentDate = scanNullTime(paymentDate)
	inv.CreatedAt = parseTime(createdAt)
	inv.RejectedAt = scanNullTime(rejectedAt)
	inv.CancelledAt = scanNullTime(cancelledAt)
	return inv, nil
}

func (is *InvoiceStore) Get(ctx context.Context, projectID ledger.ProjectID, id invoice.InvoiceID) (*invoice.Invoice, error) {
	is.parent.mu.RLock()
	defer is.parent.mu.RUnlock()

	row := is.parent.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	inv, err := scanInvoice(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func (is *InvoiceStore) queryInvoices(ctx context.Context, query string, args ...any) ([]invoice.Invoice, error) {
	rows, err := is.parent.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (is *InvoiceStore) List(ctx context.Context, projectID ledger.ProjectID) ([]invoice.Invoice, error) {
	is.parent.mu.RLock()
	defer is.parent.mu.RUnlock()
	return is.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE project_id = ? ORDER BY created_at ASC`,
		projectID)
}

func (is *InvoiceStore) ListByStatus(ctx context.Context, projectID ledger.ProjectID, status invoice.Status) ([]invoice.Invoice, error) {
	is.parent.mu.RLock()
	defer is.parent.mu.RUnlock()
	return is.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE project_id = ? AND status = ? ORDER BY created_at ASC`,
		projectID, status)
}

func (is *InvoiceStore) Update(ctx context.Context, inv invoice.Invoice) error {
	is.parent.mu.Lock()
	defer is.parent.mu.Unlock()

	steps, err := encodeSteps(inv.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}
	items, err := encodeItems(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	res, err := is.parent.db.ExecContext(ctx,
		`UPDATE invoices SET
		 number = ?, supplier_id = ?, supplier_name = ?, description = ?, po_id = ?, po_number = ?,
		 items_json = ?, base_amount = ?, vat_amount = ?, irpf_amount = ?, total_amount = ?,
		 status = ?, steps_json = ?, current_step = ?, due_date = ?, payment_date = ?,
		 rejected_at = ?, rejection_reason = ?, cancelled_at = ?, cancellation_reason = ?
		 WHERE id = ? AND project_id = ?`,
		inv.Number, inv.SupplierID, inv.SupplierName, inv.Description, inv.POID, inv.PONumber,
		items, inv.BaseAmount.String(), inv.VATAmount.String(), inv.IRPFAmount.String(), inv.TotalAmount.String(),
		inv.Status, steps, inv.CurrentStep, nullTime(timePtr(inv.DueDate)), nullTime(inv.PaymentDate),
		nullTime(inv.RejectedAt), inv.RejectionReason, nullTime(inv.CancelledAt), inv.CancellationReason,
		inv.ID, inv.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "invoice", ID: string(inv.ID)}
	}
	return nil
}

// UpdateIf writes the invoice only when the stored row still matches the
// status and current step the caller read. Same mechanics as the purchase
// order guard.
func (is *InvoiceStore) UpdateIf(ctx context.Context, inv invoice.Invoice, from invoice.Status, fromStep int) error {
	is.parent.mu.Lock()
	defer is.parent.mu.Unlock()

	steps, err := encodeSteps(inv.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}
	items, err := encodeItems(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	res, err := is.parent.db.ExecContext(ctx,
		`UPDATE invoices SET
		 number = ?, supplier_id = ?, supplier_name = ?, description = ?, po_id = ?, po_number = ?,
		 items_json = ?, base_amount = ?, vat_amount = ?, irpf_amount = ?, total_amount = ?,
		 status = ?, steps_json = ?, current_step = ?, due_date = ?, payment_date = ?,
		 rejected_at = ?, rejection_reason = ?, cancelled_at = ?, cancellation_reason = ?
		 WHERE id = ? AND project_id = ? AND status = ? AND current_step = ?`,
		inv.Number, inv.SupplierID, inv.SupplierName, inv.Description, inv.POID, inv.PONumber,
		items, inv.BaseAmount.String(), inv.VATAmount.String(), inv.IRPFAmount.String(), inv.TotalAmount.String(),
		inv.Status, steps, inv.CurrentStep, nullTime(timePtr(inv.DueDate)), nullTime(inv.PaymentDate),
		nullTime(inv.RejectedAt), inv.RejectionReason, nullTime(inv.CancelledAt), inv.CancellationReason,
		inv.ID, inv.ProjectID, from, fromStep,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := is.parent.db.QueryRowContext(ctx,
			`SELECT 1 FROM invoices WHERE id = ? AND project_id = ?`,
			inv.ID, inv.ProjectID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &ledger.NotFoundError{Kind: "invoice", ID: string(inv.ID)}
		}
		if err != nil {
			return err
		}
		return &ledger.ConflictError{Reason: "invoice changed concurrently"}
	}
	return nil
}

func (is *InvoiceStore) Delete(ctx context.Context, projectID ledger.ProjectID, id invoice.InvoiceID) error {
	is.parent.mu.Lock()
	defer is.parent.mu.Unlock()

	res, err := is.parent.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	return nil
}

// =============================================================================
// SUPPLIER STORE (supplier.Store interface)
// =============================================================================

// SupplierStore is the supplier.Store view over the shared database.
type SupplierStore struct {
	parent *Store
}

// Suppliers returns the supplier.Store view of this store.
func (s *Store) Suppliers() *SupplierStore {
	return &SupplierStore{parent: s}
}

func (ss *SupplierStore) Create(ctx context.Context, sup supplier.Supplier) error {
	ss.parent.mu.Lock()
	defer ss.parent.mu.Unlock()

	_, err := ss.parent.db.ExecContext(ctx,
		`INSERT INTO suppliers (id, project_id, name, tax_id, email, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sup.ID, sup.ProjectID, sup.Name, sup.TaxID, sup.Email, formatTime(sup.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create supplier: %w", err)
	}
	return nil
}

func (ss *SupplierStore) Get(ctx context.Context, projectID ledger.ProjectID, id supplier.SupplierID) (*supplier.Supplier, error) {
	ss.parent.mu.RLock()
	defer ss.parent.mu.RUnlock()

	row := ss.parent.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, tax_id, email, created_at FROM suppliers WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	var sup supplier.Supplier
	var createdAt string
	if err := row.Scan(&sup.ID, &sup.ProjectID, &sup.Name, &sup.TaxID, &sup.Email, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	sup.CreatedAt = parseTime(createdAt)
	return &sup, nil
}

func (ss *SupplierStore) List(ctx context.Context, projectID ledger.ProjectID) ([]supplier.Supplier, error) {
	ss.parent.mu.RLock()
	defer ss.parent.mu.RUnlock()

	rows, err := ss.parent.db.QueryContext(ctx,
		`SELECT id, project_id, name, tax_id, email, created_at FROM suppliers WHERE project_id = ? ORDER BY name ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var out []supplier.Supplier
	for rows.Next() {
		var sup supplier.Supplier
		var createdAt string
		if err := rows.Scan(&sup.ID, &sup.ProjectID, &sup.Name, &sup.TaxID, &sup.Email, &createdAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = parseTime(createdAt)
		out = append(out, sup)
	}
	return out, rows.Err()
}

func (ss *SupplierStore) Delete(ctx context.Context, projectID ledger.ProjectID, id supplier.SupplierID) error {
	ss.parent.mu.Lock()
	defer ss.parent.mu.Unlock()

	res, err := ss.parent.db.ExecContext(ctx,
		`DELETE FROM suppliers WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	return nil
}
