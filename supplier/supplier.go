// Package supplier keeps the per-project supplier registry that purchase
// orders and invoices reference by id.
package supplier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/budget-engine/ledger"
)

type SupplierID string

type Supplier struct {
	ID        SupplierID
	ProjectID ledger.ProjectID
	Name      string
	TaxID     string
	Email     string
	CreatedAt time.Time
}

// Store persists suppliers, scoped per project.
type Store interface {
	Create(ctx context.Context, s Supplier) error
	Get(ctx context.Context, projectID ledger.ProjectID, id SupplierID) (*Supplier, error)
	List(ctx context.Context, projectID ledger.ProjectID) ([]Supplier, error)
	Delete(ctx context.Context, projectID ledger.ProjectID, id SupplierID) error
}

// Service validates and persists suppliers.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create registers a supplier. The name is required.
func (s *Service) Create(ctx context.Context, projectID ledger.ProjectID, name, taxID, email string) (*Supplier, error) {
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	sup := Supplier{
		ID:        SupplierID(uuid.NewString()),
		ProjectID: projectID,
		Name:      name,
		TaxID:     taxID,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, sup); err != nil {
		return nil, err
	}
	return &sup, nil
}

// Get returns a supplier or NotFoundError.
func (s *Service) Get(ctx context.Context, projectID ledger.ProjectID, id SupplierID) (*Supplier, error) {
	sup, err := s.store.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if sup == nil {
		return nil, &ledger.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	return sup, nil
}

// List returns all suppliers for a project.
func (s *Service) List(ctx context.Context, projectID ledger.ProjectID) ([]Supplier, error) {
	return s.store.List(ctx, projectID)
}

// Delete removes a supplier.
func (s *Service) Delete(ctx context.Context, projectID ledger.ProjectID, id SupplierID) error {
	return s.store.Delete(ctx, projectID, id)
}
