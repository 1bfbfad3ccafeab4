// Package client provides a transport-agnostic interface for the procure
// service and an HTTP/JSON implementation that talks to the REST API.
package client

import (
	"context"
	"encoding/json"

	"github.com/fernwood/procure/internal/blob"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/resource"
	"github.com/fernwood/procure/internal/schema"
)

// ProcureClient is the interface all CLI commands use to talk to the server.
type ProcureClient interface {
	// Account
	ProvisionAccount(ctx context.Context) error

	// Schema
	GetSchema(ctx context.Context, rt model.ResourceType) (*model.Schema, error)
	CreateField(ctx context.Context, in schema.FieldInput) (*model.Field, error)
	GetField(ctx context.Context, id string) (*model.Field, error)
	UpdateField(ctx context.Context, id string, up schema.FieldUpdate) (*model.Field, error)
	DeleteField(ctx context.Context, id string) error

	// Resources
	CreateResource(ctx context.Context, rt model.ResourceType, fields []model.FieldInput) (*model.Resource, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	GetResourceByKey(ctx context.Context, rt model.ResourceType, key int64) (*model.Resource, error)
	SearchResources(ctx context.Context, rt model.ResourceType, where, orderBy json.RawMessage) ([]*model.Resource, error)
	UpdateResource(ctx context.Context, id string, fields []model.FieldInput) (*model.Resource, error)
	DeleteResource(ctx context.Context, id string) error

	// Costs
	AddCost(ctx context.Context, resourceID string, in resource.CostInput) (*model.Cost, error)
	DeleteCost(ctx context.Context, resourceID, costID string) error

	// Contacts
	CreateContact(ctx context.Context, name, email string) (string, error)

	// Blobs
	UploadBlob(ctx context.Context, name, contentType string, data []byte) (*blob.Info, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}
