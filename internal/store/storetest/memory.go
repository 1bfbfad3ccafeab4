// Package storetest provides an in-memory store.Store for service and
// effects tests. Query plans are evaluated with the compiler's in-memory
// semantics, which mirror the generated SQL.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fernwood/procure/internal/idgen"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
	"github.com/fernwood/procure/internal/store"
)

type account struct {
	fields    map[string]*model.Field
	sections  map[model.ResourceType][]*model.Section
	resources map[string]*model.Resource
	keys      map[model.ResourceType]int64
	contacts  map[string]string
}

// Memory is a map-backed store.Store. Safe for concurrent use; transactions
// are not isolated (fn runs against the live maps), which is acceptable for
// tests.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*account
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*account)}
}

func (m *Memory) account(id string) *account {
	a := m.accounts[id]
	if a == nil {
		a = &account{
			fields:    make(map[string]*model.Field),
			sections:  make(map[model.ResourceType][]*model.Section),
			resources: make(map[string]*model.Resource),
			keys:      make(map[model.ResourceType]int64),
			contacts:  make(map[string]string),
		}
		m.accounts[id] = a
	}
	return a
}

// --- Fields ---

func (m *Memory) CreateField(ctx context.Context, accountID string, field *model.Field, resourceTypes []model.ResourceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)

	for _, existing := range a.fields {
		if existing.Name == field.Name {
			return &model.DuplicateError{Kind: "field", Name: field.Name}
		}
	}
	field.AccountID = accountID
	if field.CreatedAt.IsZero() {
		field.CreatedAt = time.Now().UTC()
	}
	field.UpdatedAt = field.CreatedAt
	a.fields[field.ID] = field

	for _, rt := range resourceTypes {
		sec := a.customSection(rt)
		sec.Fields = append(sec.Fields, field)
	}
	return nil
}

func (a *account) customSection(rt model.ResourceType) *model.Section {
	for _, sec := range a.sections[rt] {
		if sec.Name == "Custom" {
			return sec
		}
	}
	sec := &model.Section{
		ID:       fmt.Sprintf("sec-custom-%s", rt),
		Name:     "Custom",
		Position: 1000,
	}
	a.sections[rt] = append(a.sections[rt], sec)
	return sec
}

func (m *Memory) CreateSection(ctx context.Context, accountID string, rt model.ResourceType, sec *model.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	for _, existing := range a.sections[rt] {
		if existing.Name == sec.Name {
			return &model.DuplicateError{Kind: "section", Name: sec.Name}
		}
	}
	a.sections[rt] = append(a.sections[rt], sec)
	for _, f := range sec.Fields {
		f.AccountID = accountID
		a.fields[f.ID] = f
	}
	return nil
}

// AddSection registers a schema section directly; tests use it to build
// system schemas without going through template provisioning.
func (m *Memory) AddSection(accountID string, rt model.ResourceType, sec *model.Section) {
	_ = m.CreateSection(context.Background(), accountID, rt, sec)
}

func (m *Memory) GetField(ctx context.Context, accountID, id string) (*model.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.account(accountID).fields[id]
	if f == nil {
		return nil, &model.FieldNotFoundError{Ref: id}
	}
	return copyField(f), nil
}

// copyField keeps callers from mutating stored state through the returned
// pointer; an aborted update batch must leave the field untouched.
func copyField(f *model.Field) *model.Field {
	c := *f
	c.Options = append([]model.Option(nil), f.Options...)
	if f.DefaultValue != nil {
		dv := f.DefaultValue.DeepCopy()
		c.DefaultValue = &dv
	}
	return &c
}

func (m *Memory) ListFields(ctx context.Context, accountID string) ([]*model.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	fields := make([]*model.Field, 0, len(a.fields))
	for _, f := range a.fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return fields, nil
}

func (m *Memory) UpdateField(ctx context.Context, accountID string, field *model.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	existing := a.fields[field.ID]
	if existing == nil {
		return &model.FieldNotFoundError{Ref: field.ID}
	}
	for id, other := range a.fields {
		if id != field.ID && other.Name == field.Name {
			return &model.DuplicateError{Kind: "field", Name: field.Name}
		}
	}
	field.UpdatedAt = time.Now().UTC()
	*existing = *field
	return nil
}

func (m *Memory) DeleteField(ctx context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	if a.fields[id] == nil {
		return &model.FieldNotFoundError{Ref: id}
	}
	delete(a.fields, id)
	for _, secs := range a.sections {
		for _, sec := range secs {
			kept := sec.Fields[:0]
			for _, f := range sec.Fields {
				if f.ID != id {
					kept = append(kept, f)
				}
			}
			sec.Fields = kept
		}
	}
	// Cascade: drop stored values of the deleted field.
	for _, res := range a.resources {
		kept := res.Fields[:0]
		for _, rf := range res.Fields {
			if rf.FieldID != id {
				kept = append(kept, rf)
			}
		}
		res.Fields = kept
	}
	return nil
}

// --- Schemas ---

func (m *Memory) GetSchema(ctx context.Context, accountID string, rt model.ResourceType) (*model.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	schema := &model.Schema{AccountID: accountID, ResourceType: rt}
	schema.Sections = append(schema.Sections, a.sections[rt]...)
	sort.SliceStable(schema.Sections, func(i, j int) bool {
		return schema.Sections[i].Position < schema.Sections[j].Position
	})
	schema.Flatten()
	return schema, nil
}

// --- Resources ---

func (m *Memory) CreateResource(ctx context.Context, res *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(res.AccountID)
	a.keys[res.Type]++
	res.Key = a.keys[res.Type]
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now
	a.resources[res.ID] = copyResource(res)
	return nil
}

func (m *Memory) GetResource(ctx context.Context, accountID, id string) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(accountID, id)
}

func (m *Memory) getLocked(accountID, id string) (*model.Resource, error) {
	a := m.account(accountID)
	res := a.resources[id]
	if res == nil {
		return nil, model.ErrResourceNotFound
	}
	out := copyResource(res)
	for _, rf := range out.Fields {
		if linkedID := rf.Value.ResourceID(); linkedID != "" {
			rf.LinkedName = a.resourceName(linkedID)
		}
	}
	return out, nil
}

// resourceName returns the linked resource's name-field value.
func (a *account) resourceName(resourceID string) string {
	res := a.resources[resourceID]
	if res == nil {
		return ""
	}
	for _, rf := range res.Fields {
		f := a.fields[rf.FieldID]
		if f != nil && f.TemplateID == model.TemplateName {
			return rf.Value.StringOr("")
		}
	}
	return ""
}

func (m *Memory) GetResourceByKey(ctx context.Context, accountID string, rt model.ResourceType, key int64) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	for id, res := range a.resources {
		if res.Type == rt && res.Key == key {
			return m.getLocked(accountID, id)
		}
	}
	return nil, model.ErrResourceNotFound
}

func (m *Memory) SearchResources(ctx context.Context, accountID string, rt model.ResourceType, plan *query.Plan) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	env := query.Env{ContactName: func(id string) string { return a.contacts[id] }}

	var matched []*model.Resource
	for _, res := range a.resources {
		if res.Type != rt {
			continue
		}
		if plan.Matches(res, env) {
			matched = append(matched, res)
		}
	}
	plan.Sort(matched, env)

	ids := make([]string, len(matched))
	for i, res := range matched {
		ids[i] = res.ID
	}
	return ids, nil
}

func (m *Memory) UpsertResourceValue(ctx context.Context, accountID, resourceID, fieldID string, value model.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	res := a.resources[resourceID]
	if res == nil {
		return model.ErrResourceNotFound
	}
	for _, rf := range res.Fields {
		if rf.FieldID == fieldID {
			rf.Value = value.DeepCopy()
			res.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	id, err := idgen.Generate(idgen.PrefixResourceField)
	if err != nil {
		return err
	}
	res.Fields = append(res.Fields, &model.ResourceField{
		ID:         id,
		ResourceID: resourceID,
		FieldID:    fieldID,
		Value:      value.DeepCopy(),
	})
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteResource(ctx context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	if a.resources[id] == nil {
		return model.ErrResourceNotFound
	}
	delete(a.resources, id)
	return nil
}

// --- Link traversal ---

func (m *Memory) ListReferencing(ctx context.Context, accountID, fieldID, resourceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	var refs []*model.Resource
	for _, res := range a.resources {
		for _, rf := range res.Fields {
			if rf.FieldID == fieldID && rf.Value.ResourceID() == resourceID {
				refs = append(refs, res)
				break
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	ids := make([]string, len(refs))
	for i, res := range refs {
		ids[i] = res.ID
	}
	return ids, nil
}

func (m *Memory) SumFieldByLink(ctx context.Context, accountID, sumFieldID, linkFieldID, linkedID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	var sum float64
	for _, res := range a.resources {
		linked := false
		for _, rf := range res.Fields {
			if rf.FieldID == linkFieldID && rf.Value.ResourceID() == linkedID {
				linked = true
				break
			}
		}
		if !linked {
			continue
		}
		for _, rf := range res.Fields {
			if rf.FieldID == sumFieldID {
				sum += rf.Value.NumberOr(0)
			}
		}
	}
	return sum, nil
}

// --- Costs ---

func (m *Memory) AddCost(ctx context.Context, accountID string, cost *model.Cost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	res := a.resources[cost.ResourceID]
	if res == nil {
		return model.ErrResourceNotFound
	}
	c := *cost
	res.Costs = append(res.Costs, &c)
	return nil
}

func (m *Memory) DeleteCost(ctx context.Context, accountID, costID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(accountID)
	for _, res := range a.resources {
		for i, c := range res.Costs {
			if c.ID == costID {
				res.Costs = append(res.Costs[:i], res.Costs[i+1:]...)
				return nil
			}
		}
	}
	return model.ErrResourceNotFound
}

// --- Contacts ---

func (m *Memory) CreateContact(ctx context.Context, accountID, id, name, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(accountID).contacts[id] = name
	return nil
}

func (m *Memory) GetContactName(ctx context.Context, accountID, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.account(accountID).contacts[id]
	if !ok {
		return "", model.ErrResourceNotFound
	}
	return name, nil
}

// --- Transactions ---

// RunInTransaction runs fn against the store itself. The memory store has no
// isolation or rollback.
func (m *Memory) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *Memory) Close() error { return nil }

func copyResource(res *model.Resource) *model.Resource {
	out := *res
	out.Fields = make([]*model.ResourceField, len(res.Fields))
	for i, rf := range res.Fields {
		c := *rf
		c.Value = rf.Value.DeepCopy()
		out.Fields[i] = &c
	}
	out.Costs = make([]*model.Cost, len(res.Costs))
	for i, c := range res.Costs {
		cc := *c
		out.Costs[i] = &cc
	}
	return &out
}
