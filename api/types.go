package api

import (
	"context"

	"sales-portal/domain"
	"sales-portal/ingest"
	"sales-portal/registry"
)

// CustomerService is the customer registry as seen by handlers.
type CustomerService interface {
	ImportFromCSV(ctx context.Context, rows []ingest.Row, filename string) (int, error)
	ListByFile(ctx context.Context, filename string) ([]domain.Customer, error)
	ListAll(ctx context.Context) ([]domain.Customer, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Customer, error)
	Categories(ctx context.Context) ([]string, error)
	Files(ctx context.Context) ([]string, error)
	Purge(ctx context.Context, filename string) error
}

// TaskService is the task registry as seen by handlers.
type TaskService interface {
	Create(ctx context.Context, in registry.NewTask) (string, error)
	Get(ctx context.Context, taskID string) (domain.Task, error)
	Assign(ctx context.Context, taskID string, members []domain.Member) (domain.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, error)
	ListAll(ctx context.Context) ([]domain.Task, error)
	ListByRepresentative(ctx context.Context, name string) ([]domain.Task, error)
}

// RepresentativeService is the representative directory.
type RepresentativeService interface {
	Upsert(ctx context.Context, rep domain.Representative) (domain.Representative, error)
	List(ctx context.Context) ([]domain.Representative, error)
	Members(ctx context.Context, emails []string) ([]domain.Member, error)
}

// Authenticator is implemented by types able to identify callers from headers.
type Authenticator interface {
	Authenticate(header string) (Principal, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
