package model

import "time"

// ResourceType categorizes the kind of business entity a Resource is.
// Well-known constants are provided below, but resource types are extensible;
// custom types are valid.
type ResourceType string

const (
	TypeBill     ResourceType = "bill"
	TypePurchase ResourceType = "purchase"
	TypeVendor   ResourceType = "vendor"
	TypeItem     ResourceType = "item"
	TypeLine     ResourceType = "line"
	TypeContract ResourceType = "contract"
)

// String returns the string representation of the resource type.
func (t ResourceType) String() string {
	return string(t)
}

// IsValid reports whether the resource type is a non-empty string.
// Resource types are extensible, so any non-empty value is accepted.
func (t ResourceType) IsValid() bool {
	return t != ""
}

// Resource is a generically-typed business entity instance. Its shape is
// defined entirely by its account's Schema for the type: one ResourceField
// per schema Field, no more, no fewer.
type Resource struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Type      ResourceType `json:"type"`

	// Key is the sequential per-(account, type) number. Monotonic, never
	// reused; assignment is serialized under concurrent creates.
	Key int64 `json:"key"`

	Fields    []*ResourceField `json:"fields"`
	Costs     []*Cost          `json:"costs,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// FieldByID returns the resource field for the given Field id, or nil.
func (r *Resource) FieldByID(fieldID string) *ResourceField {
	for _, rf := range r.Fields {
		if rf.FieldID == fieldID {
			return rf
		}
	}
	return nil
}

// ResourceField links a Resource to one Field of its Schema and owns exactly
// one Value.
type ResourceField struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	FieldID    string `json:"field_id"`
	Value      Value  `json:"value"`

	// LinkedName is the display name of the linked resource for
	// Resource-typed values. Populated on read, never stored.
	LinkedName string `json:"linked_name,omitempty"`
}

// Cost is an itemized line attached to a Resource, rolled up into the
// resource's itemized-costs total.
type Cost struct {
	ID           string  `json:"id"`
	ResourceID   string  `json:"resource_id"`
	Name         string  `json:"name"`
	IsPercentage bool    `json:"is_percentage"`
	Value        float64 `json:"value"`
	Position     int     `json:"position"`
}

// Amount returns the cost's contribution given the owning resource's
// subtotal.
func (c *Cost) Amount(subtotal float64) float64 {
	if c.IsPercentage {
		return c.Value * subtotal / 100
	}
	return c.Value
}

// FieldInput is one caller-supplied field write: a reference to a schema
// Field plus the value to set.
type FieldInput struct {
	Field FieldRef `json:"field"`
	Value Value    `json:"value"`
}

// FieldChange is a resolved (field, new value) pair handed to the effects
// pipeline after a write.
type FieldChange struct {
	Field *Field
	Value Value
}
