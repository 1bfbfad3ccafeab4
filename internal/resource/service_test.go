package resource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/fernwood/procure/internal/effects"
	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
	"github.com/fernwood/procure/internal/schema"
	"github.com/fernwood/procure/internal/store/storetest"
)

const testAccount = "acct-1"

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) seen(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T) (*Service, *capturePublisher) {
	t.Helper()
	mem := storetest.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	if err := schema.NewService(mem, logger).ApplyTemplates(context.Background(), testAccount); err != nil {
		t.Fatalf("provision: %v", err)
	}
	pub := &capturePublisher{}
	eng := effects.New(mem, nil, logger)
	return NewService(mem, eng, pub, logger), pub
}

func byTemplate(t *testing.T, res *model.Resource, svc *Service, tpl string) model.Value {
	t.Helper()
	sch, err := svc.store.GetSchema(context.Background(), testAccount, res.Type)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	f := sch.FieldByTemplate(tpl)
	if f == nil {
		t.Fatalf("no field for template %s", tpl)
	}
	if rf := res.FieldByID(f.ID); rf != nil {
		return rf.Value
	}
	return model.Value{}
}

func TestCreateResource(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateName}, Value: model.StringValue("Acme Supply")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Key != 1 {
		t.Fatalf("expected key 1, got %d", res.Key)
	}
	if got := byTemplate(t, res, svc, model.TemplateName); got.StringOr("") != "Acme Supply" {
		t.Fatalf("expected name set, got %v", got)
	}
	// One value per schema field, populated or empty.
	sch, _ := svc.store.GetSchema(ctx, testAccount, model.TypeVendor)
	if len(res.Fields) != len(sch.AllFields) {
		t.Fatalf("expected %d fields, got %d", len(sch.AllFields), len(res.Fields))
	}
	if !pub.seen(events.TopicResourceCreated) {
		t.Fatal("expected created event")
	}
}

func TestCreateResource_KeysAreSequentialPerType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		res, err := svc.CreateResource(ctx, testAccount, model.TypeBill, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Key != want {
			t.Fatalf("expected key %d, got %d", want, res.Key)
		}
	}
	// Another type counts independently.
	vendor, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vendor.Key != 1 {
		t.Fatalf("expected vendor key 1, got %d", vendor.Key)
	}
}

func TestCreateResource_ConcurrentKeysAreDistinct(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 32
	keys := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.CreateResource(ctx, testAccount, model.TypeBill, nil)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			keys <- res.Key
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[int64]bool)
	for key := range keys {
		if seen[key] {
			t.Fatalf("key %d assigned twice", key)
		}
		if key < 1 || key > n {
			t.Fatalf("key %d out of range 1..%d", key, n)
		}
		seen[key] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d keys, got %d", n, len(seen))
	}
}

func TestCreateResource_DefaultsAreDeepCopied(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	def := model.OptionsValue([]string{"opt-x"})
	schemaSvc := schema.NewService(svc.store, slog.New(slog.DiscardHandler))
	field, err := schemaSvc.CreateField(ctx, testAccount, schema.FieldInput{
		Name:          "Tags",
		Type:          model.FieldTypeMultiSelect,
		Options:       []string{"X"},
		ResourceTypes: []model.ResourceType{model.TypeVendor},
	})
	if err != nil {
		t.Fatalf("create field: %v", err)
	}
	def = model.OptionsValue([]string{field.Options[0].ID})
	if _, err := schemaSvc.UpdateField(ctx, testAccount, field.ID, schema.FieldUpdate{DefaultValue: &def}); err != nil {
		t.Fatalf("set default: %v", err)
	}

	a, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating one resource's value must not bleed into the other.
	af := a.FieldByID(field.ID)
	bf := b.FieldByID(field.ID)
	if af == nil || bf == nil {
		t.Fatal("default not applied")
	}
	af.Value.Options[0] = "mutated"
	if bf.Value.Options[0] != field.Options[0].ID {
		t.Fatal("default value aliased between resources")
	}
}

func TestCreateResource_UnknownFieldFailsClosed(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateResource(context.Background(), testAccount, model.TypeVendor, []model.FieldInput{
		{Field: model.FieldRef{Name: "Nope"}, Value: model.StringValue("x")},
	})
	var fnf *model.FieldNotFoundError
	if !errors.As(err, &fnf) {
		t.Fatalf("expected FieldNotFoundError, got %v", err)
	}
}

func TestCreateResource_TypeMismatchRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateResource(context.Background(), testAccount, model.TypeVendor, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateName}, Value: model.NumberValue(7)},
	})
	var tm *model.TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
}

func TestReadResourceByKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateResource(ctx, testAccount, model.TypeBill, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.ReadResourceByKey(ctx, testAccount, model.TypeBill, created.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, got.ID)
	}

	if _, err := svc.ReadResourceByKey(ctx, testAccount, model.TypeBill, 9999); !errors.Is(err, model.ErrResourceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateResource_RunsEffects(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	line, err := svc.CreateResource(ctx, testAccount, model.TypeLine, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateUnitCost}, Value: model.NumberValue(4)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.UpdateResource(ctx, testAccount, line.ID, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateQuantity}, Value: model.NumberValue(5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The returned resource reflects the post-effects state.
	if got := byTemplate(t, updated, svc, model.TemplateTotalCost); got.NumberOr(-1) != 20 {
		t.Fatalf("expected post-effects total 20, got %v", got)
	}
	if !pub.seen(events.TopicResourceUpdated) {
		t.Fatal("expected updated event")
	}
}

func TestReadResources_FilterAndSort(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	names := []string{"Gamma", "Alpha", "Beta"}
	for _, name := range names {
		if _, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, []model.FieldInput{
			{Field: model.FieldRef{TemplateID: model.TemplateName}, Value: model.StringValue(name)},
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	where, err := query.ParseWhere([]byte(`{"!=": [{"var": "Name"}, "Beta"]}`))
	if err != nil {
		t.Fatalf("parse where: %v", err)
	}
	orderBy, err := query.ParseOrderBy([]byte(`[{"var": "Name", "dir": "asc"}]`))
	if err != nil {
		t.Fatalf("parse order: %v", err)
	}

	got, err := svc.ReadResources(ctx, testAccount, model.TypeVendor, where, orderBy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(got))
	}
	first := byTemplate(t, got[0], svc, model.TemplateName).StringOr("")
	second := byTemplate(t, got[1], svc, model.TemplateName).StringOr("")
	if first != "Alpha" || second != "Gamma" {
		t.Fatalf("expected [Alpha Gamma], got [%s %s]", first, second)
	}
}

func TestReadResources_UnknownFieldInPredicate(t *testing.T) {
	svc, _ := newTestService(t)

	where, err := query.ParseWhere([]byte(`{"==": [{"var": "No Such Field"}, 1]}`))
	if err != nil {
		t.Fatalf("parse where: %v", err)
	}
	_, err = svc.ReadResources(context.Background(), testAccount, model.TypeVendor, where, nil)
	var qe *model.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
}

func TestDeleteResource_LineRecomputesParent(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	bill, err := svc.CreateResource(ctx, testAccount, model.TypeBill, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, err := svc.CreateResource(ctx, testAccount, model.TypeLine, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateBill}, Value: model.ResourceValue(bill.ID)},
		{Field: model.FieldRef{TemplateID: model.TemplateUnitCost}, Value: model.NumberValue(10)},
		{Field: model.FieldRef{TemplateID: model.TemplateQuantity}, Value: model.NumberValue(2)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent, err := svc.ReadResource(ctx, testAccount, bill.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := byTemplate(t, parent, svc, model.TemplateSubtotalCost); got.NumberOr(-1) != 20 {
		t.Fatalf("expected subtotal 20, got %v", got)
	}

	if err := svc.DeleteResource(ctx, testAccount, line.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parent, err = svc.ReadResource(ctx, testAccount, bill.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := byTemplate(t, parent, svc, model.TemplateSubtotalCost); got.NumberOr(-1) != 0 {
		t.Fatalf("expected subtotal 0 after delete, got %v", got)
	}
	if !pub.seen(events.TopicResourceDeleted) {
		t.Fatal("expected deleted event")
	}
}

func TestAddAndDeleteCost(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	bill, err := svc.CreateResource(ctx, testAccount, model.TypeBill, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateSubtotalCost}, Value: model.NumberValue(100)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cost, err := svc.AddCost(ctx, testAccount, bill.ID, CostInput{Name: "Tax", IsPercentage: true, Value: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.ReadResource(ctx, testAccount, bill.ID)
	if v := byTemplate(t, got, svc, model.TemplateItemizedCosts); v.NumberOr(-1) != 10 {
		t.Fatalf("expected itemized 10, got %v", v)
	}
	if v := byTemplate(t, got, svc, model.TemplateTotalCost); v.NumberOr(-1) != 110 {
		t.Fatalf("expected total 110, got %v", v)
	}

	if err := svc.DeleteCost(ctx, testAccount, bill.ID, cost.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = svc.ReadResource(ctx, testAccount, bill.ID)
	if v := byTemplate(t, got, svc, model.TemplateItemizedCosts); v.NumberOr(-1) != 0 {
		t.Fatalf("expected itemized 0, got %v", v)
	}
	if !pub.seen(events.TopicCostAdded) || !pub.seen(events.TopicCostRemoved) {
		t.Fatal("expected cost events")
	}
}

func TestLinkedNameHydration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	vendor, err := svc.CreateResource(ctx, testAccount, model.TypeVendor, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateName}, Value: model.StringValue("Acme")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item, err := svc.CreateResource(ctx, testAccount, model.TypeItem, []model.FieldInput{
		{Field: model.FieldRef{TemplateID: model.TemplateVendor}, Value: model.ResourceValue(vendor.ID)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.ReadResource(ctx, testAccount, item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sch, _ := svc.store.GetSchema(ctx, testAccount, model.TypeItem)
	vf := sch.FieldByTemplate(model.TemplateVendor)
	rf := got.FieldByID(vf.ID)
	if rf == nil || rf.LinkedName != "Acme" {
		t.Fatalf("expected linked name Acme, got %+v", rf)
	}
}
