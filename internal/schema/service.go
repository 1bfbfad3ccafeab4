// Package schema manages per-account field definitions and their sectioned
// layout. Field mutations validate shape before touching storage; option
// edits are applied as an all-or-nothing batch.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fernwood/procure/internal/idgen"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/store"
)

// Service exposes schema reads and field CRUD on top of a store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a schema service backed by the given store.
func NewService(s store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// FieldInput is the caller-supplied definition for a new custom field.
type FieldInput struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Type           model.FieldType     `json:"type"`
	ResourceType   model.ResourceType  `json:"resource_type,omitempty"`
	Options        []string            `json:"options,omitempty"`
	DefaultValue   *model.Value        `json:"default_value,omitempty"`
	IsRequired     bool                `json:"is_required,omitempty"`
	DefaultToToday bool                `json:"default_to_today,omitempty"`
	ResourceTypes  []model.ResourceType `json:"resource_types"`
}

// CreateField validates and persists a custom field, attaching it to the
// schemas named in ResourceTypes.
func (s *Service) CreateField(ctx context.Context, accountID string, in FieldInput) (*model.Field, error) {
	if in.Name == "" {
		return nil, &model.ValidationError{Detail: "field name is required"}
	}
	if !in.Type.IsValid() {
		return nil, &model.ValidationError{Detail: fmt.Sprintf("unknown field type %q", in.Type)}
	}
	if len(in.ResourceTypes) == 0 {
		return nil, &model.ValidationError{Detail: "field must be attached to at least one resource type"}
	}
	if in.Type == model.FieldTypeResource && !in.ResourceType.IsValid() {
		return nil, &model.ValidationError{Detail: "resource fields require a linked resource type"}
	}
	if len(in.Options) > 0 && !in.Type.HasOptions() {
		return nil, &model.ValidationError{Detail: fmt.Sprintf("%s fields do not take options", in.Type)}
	}
	if in.DefaultToToday && in.Type != model.FieldTypeDate {
		return nil, &model.ValidationError{Detail: "default_to_today applies to date fields only"}
	}

	id, err := idgen.Generate(idgen.PrefixField)
	if err != nil {
		return nil, err
	}
	field := &model.Field{
		ID:             id,
		Name:           in.Name,
		Description:    in.Description,
		Type:           in.Type,
		ResourceType:   in.ResourceType,
		DefaultValue:   in.DefaultValue,
		IsRequired:     in.IsRequired,
		DefaultToToday: in.DefaultToToday,
	}
	for i, label := range in.Options {
		optID, err := idgen.Generate(idgen.PrefixOption)
		if err != nil {
			return nil, err
		}
		field.Options = append(field.Options, model.Option{ID: optID, Label: label, Position: i})
	}
	if field.DefaultValue != nil {
		if err := field.DefaultValue.Validate(field); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateField(ctx, accountID, field, in.ResourceTypes); err != nil {
		return nil, err
	}
	s.logger.Info("field created", "account", accountID, "field", field.ID, "type", field.Type)
	return field, nil
}

// OptionOp is one edit in an option batch. Exactly one variant is set.
type OptionOp struct {
	Add    *OptionAdd    `json:"add,omitempty"`
	Update *OptionUpdate `json:"update,omitempty"`
	Remove *OptionRemove `json:"remove,omitempty"`
}

type OptionAdd struct {
	Label string `json:"label"`
}

type OptionUpdate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type OptionRemove struct {
	ID string `json:"id"`
}

// FieldUpdate carries the mutable parts of a field. Nil pointers leave the
// current value untouched; OptionOps apply in order and fail as a unit.
type FieldUpdate struct {
	Name         *string      `json:"name,omitempty"`
	Description  *string      `json:"description,omitempty"`
	DefaultValue *model.Value `json:"default_value,omitempty"`
	ClearDefault bool         `json:"clear_default,omitempty"`
	IsRequired   *bool        `json:"is_required,omitempty"`
	OptionOps    []OptionOp   `json:"option_ops,omitempty"`
}

// UpdateField applies an update batch atomically: if any option op names an
// unknown id, no change is persisted.
func (s *Service) UpdateField(ctx context.Context, accountID, fieldID string, up FieldUpdate) (*model.Field, error) {
	var updated *model.Field
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		field, err := tx.GetField(ctx, accountID, fieldID)
		if err != nil {
			return err
		}
		if field.IsSystem && up.Name != nil {
			return &model.ValidationError{Detail: "system fields cannot be renamed"}
		}
		if up.Name != nil {
			field.Name = *up.Name
		}
		if up.Description != nil {
			field.Description = *up.Description
		}
		if up.IsRequired != nil {
			field.IsRequired = *up.IsRequired
		}
		if up.ClearDefault {
			field.DefaultValue = nil
		} else if up.DefaultValue != nil {
			field.DefaultValue = up.DefaultValue
		}

		if len(up.OptionOps) > 0 && !field.Type.HasOptions() {
			return &model.ValidationError{Detail: fmt.Sprintf("%s fields do not take options", field.Type)}
		}
		if err := applyOptionOps(field, up.OptionOps); err != nil {
			return err
		}

		if field.DefaultValue != nil {
			if err := field.DefaultValue.Validate(field); err != nil {
				return err
			}
		}
		if err := tx.UpdateField(ctx, accountID, field); err != nil {
			return err
		}
		updated = field
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("field updated", "account", accountID, "field", fieldID)
	return updated, nil
}

func applyOptionOps(field *model.Field, ops []OptionOp) error {
	for _, op := range ops {
		switch {
		case op.Add != nil:
			id, err := idgen.Generate(idgen.PrefixOption)
			if err != nil {
				return err
			}
			field.Options = append(field.Options, model.Option{
				ID:       id,
				Label:    op.Add.Label,
				Position: len(field.Options),
			})
		case op.Update != nil:
			opt := field.OptionByID(op.Update.ID)
			if opt == nil {
				return &model.ValidationError{Detail: fmt.Sprintf("unknown option %q", op.Update.ID)}
			}
			opt.Label = op.Update.Label
		case op.Remove != nil:
			found := false
			for i := range field.Options {
				if field.Options[i].ID == op.Remove.ID {
					field.Options = append(field.Options[:i], field.Options[i+1:]...)
					found = true
					break
				}
			}
			if !found {
				return &model.ValidationError{Detail: fmt.Sprintf("unknown option %q", op.Remove.ID)}
			}
		default:
			return &model.ValidationError{Detail: "option op must set exactly one of add, update, remove"}
		}
	}
	for i := range field.Options {
		field.Options[i].Position = i
	}
	return nil
}

// DeleteField removes a custom field and, by cascade, its stored values.
// System fields are protected.
func (s *Service) DeleteField(ctx context.Context, accountID, fieldID string) error {
	field, err := s.store.GetField(ctx, accountID, fieldID)
	if err != nil {
		return err
	}
	if field.IsSystem {
		return &model.ValidationError{Detail: "system fields cannot be deleted"}
	}
	if err := s.store.DeleteField(ctx, accountID, fieldID); err != nil {
		return err
	}
	s.logger.Info("field deleted", "account", accountID, "field", fieldID)
	return nil
}

// ReadSchema returns the sectioned schema for one resource type.
// ReadField returns one field by id.
func (s *Service) ReadField(ctx context.Context, accountID, fieldID string) (*model.Field, error) {
	return s.store.GetField(ctx, accountID, fieldID)
}

func (s *Service) ReadSchema(ctx context.Context, accountID string, rt model.ResourceType) (*model.Schema, error) {
	return s.store.GetSchema(ctx, accountID, rt)
}

// SelectField resolves a field reference (id, template id, or name) against
// one resource type's schema.
func (s *Service) SelectField(ctx context.Context, accountID string, rt model.ResourceType, ref model.FieldRef) (*model.Field, error) {
	schema, err := s.store.GetSchema(ctx, accountID, rt)
	if err != nil {
		return nil, err
	}
	return schema.SelectField(ref)
}
