package procurement

import (
	"context"

	"github.com/warp/budget-engine/ledger"
)

// Store persists purchase orders, scoped per project.
type Store interface {
	Create(ctx context.Context, po PurchaseOrder) error
	Get(ctx context.Context, projectID ledger.ProjectID, id POID) (*PurchaseOrder, error)
	List(ctx context.Context, projectID ledger.ProjectID) ([]PurchaseOrder, error)
	Update(ctx context.Context, po PurchaseOrder) error

	// UpdateIf persists po only while the stored PO still carries the status
	// and current step the caller observed when it read the document. A
	// concurrent writer that got there first makes the stored values differ,
	// and the call fails with ConflictError instead of overwriting. The
	// engine relies on this guard to commit a PO's amount exactly once.
	UpdateIf(ctx context.Context, po PurchaseOrder, from Status, fromStep int) error

	Delete(ctx context.Context, projectID ledger.ProjectID, id POID) error
}
