package invoice

import (
	"context"

	"github.com/warp/budget-engine/ledger"
)

// Store persists invoices, scoped per project.
type Store interface {
	Create(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) (*Invoice, error)
	List(ctx context.Context, projectID ledger.ProjectID) ([]Invoice, error)
	ListByStatus(ctx context.Context, projectID ledger.ProjectID, status Status) ([]Invoice, error)
	Update(ctx context.Context, inv Invoice) error

	// UpdateIf persists inv only while the stored invoice still carries the
	// status and current step the caller observed when it read the document.
	// A concurrent writer that got there first makes the stored values
	// differ, and the call fails with ConflictError instead of overwriting.
	// The engine relies on this guard to keep every ledger effect
	// exactly-once under concurrent transitions.
	UpdateIf(ctx context.Context, inv Invoice, from Status, fromStep int) error

	Delete(ctx context.Context, projectID ledger.ProjectID, id InvoiceID) error
}
