package events

import (
	"context"

	"github.com/fernwood/procure/internal/model"
)

// Event topic constants
const (
	TopicResourceCreated = "procure.resource.created"
	TopicResourceUpdated = "procure.resource.updated"
	TopicResourceDeleted = "procure.resource.deleted"

	TopicFieldCreated = "procure.field.created"
	TopicFieldUpdated = "procure.field.updated"
	TopicFieldDeleted = "procure.field.deleted"

	TopicCostAdded   = "procure.cost.added"
	TopicCostRemoved = "procure.cost.removed"

	TopicAccountProvisioned = "procure.account.provisioned"
)

// Event types

type ResourceCreated struct {
	Resource *model.Resource `json:"resource"`
}

type ResourceUpdated struct {
	Resource *model.Resource `json:"resource"`
	// Changes maps field id -> new value for the fields the caller touched;
	// derived updates made by the effects pipeline are reflected in Resource
	// but not listed here.
	Changes map[string]model.Value `json:"changes"`
}

type ResourceDeleted struct {
	AccountID  string             `json:"account_id"`
	ResourceID string             `json:"resource_id"`
	Type       model.ResourceType `json:"type"`
}

type FieldCreated struct {
	Field *model.Field `json:"field"`
}

type FieldUpdated struct {
	Field *model.Field `json:"field"`
}

type FieldDeleted struct {
	AccountID string `json:"account_id"`
	FieldID   string `json:"field_id"`
}

type CostAdded struct {
	Cost *model.Cost `json:"cost"`
}

type CostRemoved struct {
	ResourceID string `json:"resource_id"`
	CostID     string `json:"cost_id"`
}

type AccountProvisioned struct {
	AccountID string `json:"account_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
