// Package resource implements the lifecycle of generic resources: creation
// against the active schema, hydrated reads, filtered searches through the
// query compiler, field updates with effects propagation, and deletion with
// parent rollup.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernwood/procure/internal/effects"
	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/idgen"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
	"github.com/fernwood/procure/internal/store"
)

// Service coordinates resource writes with the effects pipeline and the
// event bus.
type Service struct {
	store     store.Store
	effects   *effects.Engine
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(s store.Store, eng *effects.Engine, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Service{store: s, effects: eng, publisher: pub, logger: logger}
}

// CreateResource builds one ResourceField per schema field. Value precedence:
// caller input, then the field default (deep-copied, never aliased), then
// today for default-to-today date fields, then the type's empty value. The
// key is assigned inside the transaction; effects run on the committed
// resource.
func (s *Service) CreateResource(ctx context.Context, accountID string, rt model.ResourceType, inputs []model.FieldInput) (*model.Resource, error) {
	schema, err := s.store.GetSchema(ctx, accountID, rt)
	if err != nil {
		return nil, err
	}
	if len(schema.AllFields) == 0 {
		return nil, &model.ValidationError{Detail: fmt.Sprintf("no schema for resource type %q", rt)}
	}

	byField, err := resolveInputs(schema, inputs)
	if err != nil {
		return nil, err
	}

	id, err := idgen.Generate(idgen.PrefixResource)
	if err != nil {
		return nil, err
	}
	res := &model.Resource{ID: id, AccountID: accountID, Type: rt}
	for _, f := range schema.AllFields {
		v, ok := byField[f.ID]
		switch {
		case ok:
			// caller-supplied
		case f.DefaultValue != nil:
			v = f.DefaultValue.DeepCopy()
		case f.DefaultToToday && f.Type == model.FieldTypeDate:
			v = model.DateValue(time.Now().UTC())
		default:
			v = model.EmptyValue(f.Type)
		}
		rfID, err := idgen.Generate(idgen.PrefixResourceField)
		if err != nil {
			return nil, err
		}
		res.Fields = append(res.Fields, &model.ResourceField{
			ID:         rfID,
			ResourceID: id,
			FieldID:    f.ID,
			Value:      v,
		})
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.CreateResource(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.store.GetResource(ctx, accountID, res.ID)
	if err != nil {
		return nil, err
	}
	if err := s.effects.AfterCreate(ctx, created); err != nil {
		return nil, err
	}
	final, err := s.store.GetResource(ctx, accountID, res.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicResourceCreated, events.ResourceCreated{Resource: final})
	s.logger.Info("resource created", "account", accountID, "type", rt, "id", final.ID, "key", final.Key)
	return final, nil
}

// ReadResource fetches a hydrated resource by id.
func (s *Service) ReadResource(ctx context.Context, accountID, id string) (*model.Resource, error) {
	return s.store.GetResource(ctx, accountID, id)
}

// ReadResourceByKey fetches a hydrated resource by (type, key).
func (s *Service) ReadResourceByKey(ctx context.Context, accountID string, rt model.ResourceType, key int64) (*model.Resource, error) {
	return s.store.GetResourceByKey(ctx, accountID, rt, key)
}

// ReadResources compiles the predicate and sort against the type's schema,
// runs the search, and hydrates the matched ids in result order.
func (s *Service) ReadResources(ctx context.Context, accountID string, rt model.ResourceType, where *query.Where, orderBy []query.OrderBy) ([]*model.Resource, error) {
	schema, err := s.store.GetSchema(ctx, accountID, rt)
	if err != nil {
		return nil, err
	}
	plan, err := query.Compile(schema, where, orderBy)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.SearchResources(ctx, accountID, rt, plan)
	if err != nil {
		return nil, err
	}

	resources := make([]*model.Resource, 0, len(ids))
	for _, id := range ids {
		res, err := s.store.GetResource(ctx, accountID, id)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// UpdateResource upserts the given field values, then runs the effects
// pipeline with the full change set and returns the post-effects resource.
func (s *Service) UpdateResource(ctx context.Context, accountID, id string, inputs []model.FieldInput) (*model.Resource, error) {
	res, err := s.store.GetResource(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	schema, err := s.store.GetSchema(ctx, accountID, res.Type)
	if err != nil {
		return nil, err
	}

	changes := make([]model.FieldChange, 0, len(inputs))
	for _, in := range inputs {
		f, err := schema.SelectField(in.Field)
		if err != nil {
			return nil, err
		}
		if err := in.Value.Validate(f); err != nil {
			return nil, err
		}
		changes = append(changes, model.FieldChange{Field: f, Value: in.Value})
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, ch := range changes {
			if err := tx.UpsertResourceValue(ctx, accountID, id, ch.Field.ID, ch.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.GetResource(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if err := s.effects.AfterUpdate(ctx, updated, changes); err != nil {
		return nil, err
	}
	final, err := s.store.GetResource(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	changeMap := make(map[string]model.Value, len(changes))
	for _, ch := range changes {
		changeMap[ch.Field.ID] = ch.Value
	}
	s.publish(ctx, events.TopicResourceUpdated, events.ResourceUpdated{Resource: final, Changes: changeMap})
	return final, nil
}

// DeleteResource removes a resource. Deleting a line re-derives the parent's
// subtotal afterwards.
func (s *Service) DeleteResource(ctx context.Context, accountID, id string) error {
	res, err := s.store.GetResource(ctx, accountID, id)
	if err != nil {
		return err
	}

	var parents []string
	if res.Type == model.TypeLine {
		schema, err := s.store.GetSchema(ctx, accountID, res.Type)
		if err != nil {
			return err
		}
		for _, tpl := range []string{model.TemplateBill, model.TemplateOrder} {
			f := schema.FieldByTemplate(tpl)
			if f == nil {
				continue
			}
			if rf := res.FieldByID(f.ID); rf != nil {
				if parentID := rf.Value.ResourceID(); parentID != "" {
					parents = append(parents, parentID)
				}
			}
		}
	}

	if err := s.store.DeleteResource(ctx, accountID, id); err != nil {
		return err
	}
	for _, parentID := range parents {
		if err := s.effects.RecomputeSubtotal(ctx, accountID, parentID); err != nil {
			return err
		}
	}

	s.publish(ctx, events.TopicResourceDeleted, events.ResourceDeleted{
		AccountID: accountID, ResourceID: id, Type: res.Type,
	})
	s.logger.Info("resource deleted", "account", accountID, "type", res.Type, "id", id)
	return nil
}

// CostInput is the caller-supplied definition for a new cost line.
type CostInput struct {
	Name         string  `json:"name"`
	IsPercentage bool    `json:"is_percentage"`
	Value        float64 `json:"value"`
}

// AddCost attaches a cost to a resource and re-derives its totals.
func (s *Service) AddCost(ctx context.Context, accountID, resourceID string, in CostInput) (*model.Cost, error) {
	res, err := s.store.GetResource(ctx, accountID, resourceID)
	if err != nil {
		return nil, err
	}
	id, err := idgen.Generate(idgen.PrefixCost)
	if err != nil {
		return nil, err
	}
	cost := &model.Cost{
		ID:           id,
		ResourceID:   resourceID,
		Name:         in.Name,
		IsPercentage: in.IsPercentage,
		Value:        in.Value,
		Position:     len(res.Costs),
	}
	if err := s.store.AddCost(ctx, accountID, cost); err != nil {
		return nil, err
	}
	if err := s.effects.RecomputeCosts(ctx, accountID, resourceID); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicCostAdded, events.CostAdded{Cost: cost})
	return cost, nil
}

// DeleteCost removes a cost and re-derives the resource's totals.
func (s *Service) DeleteCost(ctx context.Context, accountID, resourceID, costID string) error {
	if err := s.store.DeleteCost(ctx, accountID, costID); err != nil {
		return err
	}
	if err := s.effects.RecomputeCosts(ctx, accountID, resourceID); err != nil {
		return err
	}
	s.publish(ctx, events.TopicCostRemoved, events.CostRemoved{ResourceID: resourceID, CostID: costID})
	return nil
}

// CreateContact registers a contact for Contact-typed field values.
func (s *Service) CreateContact(ctx context.Context, accountID, name, email string) (string, error) {
	id, err := idgen.Generate(idgen.PrefixContact)
	if err != nil {
		return "", err
	}
	if err := s.store.CreateContact(ctx, accountID, id, name, email); err != nil {
		return "", err
	}
	return id, nil
}

// resolveInputs maps caller field references to schema fields, validating
// each value. Unknown references fail the whole request.
func resolveInputs(schema *model.Schema, inputs []model.FieldInput) (map[string]model.Value, error) {
	byField := make(map[string]model.Value, len(inputs))
	for _, in := range inputs {
		f, err := schema.SelectField(in.Field)
		if err != nil {
			return nil, err
		}
		if err := in.Value.Validate(f); err != nil {
			return nil, err
		}
		byField[f.ID] = in.Value
	}
	return byField, nil
}

// publish emits an event, logging instead of failing the request when the
// bus is unavailable.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("event publish failed", "topic", topic, "err", err)
	}
}
