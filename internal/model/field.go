package model

import "time"

// FieldType is the closed set of value shapes a Field can hold.
//
// Every switch over FieldType in this codebase must enumerate all cases and
// return an error (or panic on construction) for anything else; adding a type
// here means revisiting each of those sites.
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeNumber      FieldType = "number"
	FieldTypeMoney       FieldType = "money"
	FieldTypeCheckbox    FieldType = "checkbox"
	FieldTypeDate        FieldType = "date"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multi_select"
	FieldTypeUser        FieldType = "user"
	FieldTypeResource    FieldType = "resource"
	FieldTypeFile        FieldType = "file"
	FieldTypeFiles       FieldType = "files"
	FieldTypeContact     FieldType = "contact"
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// IsValid checks whether the field type is a known value.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeMoney,
		FieldTypeCheckbox, FieldTypeDate, FieldTypeSelect, FieldTypeMultiSelect,
		FieldTypeUser, FieldTypeResource, FieldTypeFile, FieldTypeFiles,
		FieldTypeContact:
		return true
	}
	return false
}

// HasOptions reports whether values of this type reference Option rows.
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t == FieldTypeMultiSelect
}

// Option is one selectable choice of a Select or MultiSelect field.
type Option struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// Field is a typed attribute definition scoped to an account. A single Field
// may appear in the schemas of several resource types.
type Field struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	TemplateID  string    `json:"template_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        FieldType `json:"type"`

	// ResourceType is the linked type for Resource-typed fields; empty otherwise.
	ResourceType ResourceType `json:"resource_type,omitempty"`

	Options        []Option  `json:"options,omitempty"`
	DefaultValue   *Value    `json:"default_value,omitempty"`
	IsRequired     bool      `json:"is_required"`
	DefaultToToday bool      `json:"default_to_today"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OptionByID returns the option with the given id, or nil.
func (f *Field) OptionByID(id string) *Option {
	for i := range f.Options {
		if f.Options[i].ID == id {
			return &f.Options[i]
		}
	}
	return nil
}

// FieldRef identifies a Field by exactly one of id, template id, or name.
type FieldRef struct {
	ID         string `json:"id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// IsZero reports whether no reference is set.
func (r FieldRef) IsZero() bool {
	return r.ID == "" && r.TemplateID == "" && r.Name == ""
}

// String renders the reference for error messages.
func (r FieldRef) String() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.TemplateID != "":
		return r.TemplateID
	default:
		return r.Name
	}
}
