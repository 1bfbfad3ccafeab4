package store

import (
	"context"

	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
)

// Store defines the persistence interface for the resource engine. Every
// operation is scoped to an account id; implementations must never return
// rows owned by another account.
type Store interface {
	// Field CRUD
	CreateField(ctx context.Context, accountID string, field *model.Field, resourceTypes []model.ResourceType) error
	GetField(ctx context.Context, accountID, id string) (*model.Field, error)
	ListFields(ctx context.Context, accountID string) ([]*model.Field, error)
	UpdateField(ctx context.Context, accountID string, field *model.Field) error
	DeleteField(ctx context.Context, accountID, id string) error

	// Schemas
	GetSchema(ctx context.Context, accountID string, resourceType model.ResourceType) (*model.Schema, error)
	// CreateSection registers a schema section; section.Fields must already
	// exist (template provisioning creates fields first, then lays them out).
	CreateSection(ctx context.Context, accountID string, resourceType model.ResourceType, section *model.Section) error

	// Resource CRUD
	CreateResource(ctx context.Context, res *model.Resource) error // assigns res.Key
	GetResource(ctx context.Context, accountID, id string) (*model.Resource, error)
	GetResourceByKey(ctx context.Context, accountID string, resourceType model.ResourceType, key int64) (*model.Resource, error)
	SearchResources(ctx context.Context, accountID string, resourceType model.ResourceType, plan *query.Plan) ([]string, error)
	UpsertResourceValue(ctx context.Context, accountID, resourceID, fieldID string, value model.Value) error
	DeleteResource(ctx context.Context, accountID, id string) error

	// Link traversal for effects propagation.
	ListReferencing(ctx context.Context, accountID, fieldID, resourceID string) ([]string, error)
	SumFieldByLink(ctx context.Context, accountID, sumFieldID, linkFieldID, linkedID string) (float64, error)

	// Costs
	AddCost(ctx context.Context, accountID string, cost *model.Cost) error
	DeleteCost(ctx context.Context, accountID, costID string) error

	// Contacts (name lookups back Contact-typed projections)
	CreateContact(ctx context.Context, accountID, id, name, email string) error
	GetContactName(ctx context.Context, accountID, id string) (string, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
