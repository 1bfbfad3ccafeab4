package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/fernwood/procure/internal/extract"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/schema"
	"github.com/fernwood/procure/internal/store/storetest"
)

const testAccount = "acct-1"

type fixture struct {
	t      *testing.T
	store  *storetest.Memory
	engine *Engine
	nextID int
}

func newFixture(t *testing.T, ex extract.Extractor) *fixture {
	t.Helper()
	mem := storetest.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	if err := schema.NewService(mem, logger).ApplyTemplates(context.Background(), testAccount); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return &fixture{
		t:      t,
		store:  mem,
		engine: New(mem, ex, logger),
	}
}

// create builds one resource with a value per schema field, taking values
// from the template-id keyed map.
func (fx *fixture) create(rt model.ResourceType, values map[string]model.Value) *model.Resource {
	fx.t.Helper()
	ctx := context.Background()
	sch, err := fx.store.GetSchema(ctx, testAccount, rt)
	if err != nil {
		fx.t.Fatalf("get schema: %v", err)
	}
	fx.nextID++
	res := &model.Resource{
		ID:        fmt.Sprintf("res-%s-%d", rt, fx.nextID),
		AccountID: testAccount,
		Type:      rt,
	}
	for _, f := range sch.AllFields {
		v := values[f.TemplateID]
		res.Fields = append(res.Fields, &model.ResourceField{
			ID:         fmt.Sprintf("rf-%s-%s", res.ID, f.ID),
			ResourceID: res.ID,
			FieldID:    f.ID,
			Value:      v,
		})
	}
	if err := fx.store.CreateResource(ctx, res); err != nil {
		fx.t.Fatalf("create resource: %v", err)
	}
	return res
}

// templateValue reads a resource's current value for a template field,
// straight from the store.
func (fx *fixture) templateValue(resID string, rt model.ResourceType, tpl string) model.Value {
	fx.t.Helper()
	ctx := context.Background()
	sch, err := fx.store.GetSchema(ctx, testAccount, rt)
	if err != nil {
		fx.t.Fatalf("get schema: %v", err)
	}
	f := sch.FieldByTemplate(tpl)
	if f == nil {
		fx.t.Fatalf("no field for template %s in %s schema", tpl, rt)
	}
	res, err := fx.store.GetResource(ctx, testAccount, resID)
	if err != nil {
		fx.t.Fatalf("get resource: %v", err)
	}
	if rf := res.FieldByID(f.ID); rf != nil {
		return rf.Value
	}
	return model.Value{}
}

// update upserts one template field and runs the pipeline the way the
// resource service would.
func (fx *fixture) update(res *model.Resource, tpl string, v model.Value) error {
	fx.t.Helper()
	ctx := context.Background()
	sch, err := fx.store.GetSchema(ctx, testAccount, res.Type)
	if err != nil {
		fx.t.Fatalf("get schema: %v", err)
	}
	f := sch.FieldByTemplate(tpl)
	if f == nil {
		fx.t.Fatalf("no field for template %s", tpl)
	}
	if err := fx.store.UpsertResourceValue(ctx, testAccount, res.ID, f.ID, v); err != nil {
		fx.t.Fatalf("upsert: %v", err)
	}
	fresh, err := fx.store.GetResource(ctx, testAccount, res.ID)
	if err != nil {
		fx.t.Fatalf("reload: %v", err)
	}
	return fx.engine.AfterUpdate(ctx, fresh, []model.FieldChange{{Field: f, Value: v}})
}

func TestLineTotal(t *testing.T) {
	fx := newFixture(t, nil)
	line := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateUnitCost: model.NumberValue(3),
	})

	if err := fx.update(line, model.TemplateQuantity, model.NumberValue(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fx.templateValue(line.ID, model.TypeLine, model.TemplateTotalCost)
	if got.NumberOr(-1) != 30 {
		t.Fatalf("expected total 30, got %v", got)
	}
}

func TestLineTotal_MissingInputsDefaultToZero(t *testing.T) {
	fx := newFixture(t, nil)
	line := fx.create(model.TypeLine, nil)

	if err := fx.update(line, model.TemplateQuantity, model.NumberValue(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fx.templateValue(line.ID, model.TypeLine, model.TemplateTotalCost)
	if got.NumberOr(-1) != 0 {
		t.Fatalf("expected total 0 with missing unit cost, got %v", got)
	}
}

func TestSubtotalRollup(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	bill := fx.create(model.TypeBill, nil)
	if err := fx.store.AddCost(ctx, testAccount, &model.Cost{
		ID: "cst-tax", ResourceID: bill.ID, Name: "Tax", IsPercentage: true, Value: 10,
	}); err != nil {
		t.Fatalf("add cost: %v", err)
	}

	lineA := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateBill:     model.ResourceValue(bill.ID),
		model.TemplateUnitCost: model.NumberValue(30),
	})
	lineB := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateBill:     model.ResourceValue(bill.ID),
		model.TemplateUnitCost: model.NumberValue(20),
	})

	if err := fx.update(lineA, model.TemplateQuantity, model.NumberValue(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fx.update(lineB, model.TemplateQuantity, model.NumberValue(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateSubtotalCost); got.NumberOr(-1) != 50 {
		t.Fatalf("expected subtotal 50, got %v", got)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateItemizedCosts); got.NumberOr(-1) != 5 {
		t.Fatalf("expected itemized 5, got %v", got)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateTotalCost); got.NumberOr(-1) != 55 {
		t.Fatalf("expected total 55, got %v", got)
	}
}

func TestRecomputeSubtotalAfterLineRemoval(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	bill := fx.create(model.TypeBill, nil)
	lineA := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateBill:     model.ResourceValue(bill.ID),
		model.TemplateUnitCost: model.NumberValue(30),
	})
	lineB := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateBill:     model.ResourceValue(bill.ID),
		model.TemplateUnitCost: model.NumberValue(20),
	})
	for _, line := range []*model.Resource{lineA, lineB} {
		if err := fx.update(line, model.TemplateQuantity, model.NumberValue(1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := fx.store.DeleteResource(ctx, testAccount, lineB.ID); err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if err := fx.engine.RecomputeSubtotal(ctx, testAccount, bill.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateSubtotalCost); got.NumberOr(-1) != 30 {
		t.Fatalf("expected subtotal 30 after removal, got %v", got)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateTotalCost); got.NumberOr(-1) != 30 {
		t.Fatalf("expected total 30 after removal, got %v", got)
	}
}

func TestRecomputeCosts(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	bill := fx.create(model.TypeBill, map[string]model.Value{
		model.TemplateSubtotalCost: model.NumberValue(200),
	})
	if err := fx.store.AddCost(ctx, testAccount, &model.Cost{
		ID: "cst-ship", ResourceID: bill.ID, Name: "Shipping", Value: 25,
	}); err != nil {
		t.Fatalf("add cost: %v", err)
	}

	if err := fx.engine.RecomputeCosts(ctx, testAccount, bill.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateItemizedCosts); got.NumberOr(-1) != 25 {
		t.Fatalf("expected itemized 25, got %v", got)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateTotalCost); got.NumberOr(-1) != 225 {
		t.Fatalf("expected total 225, got %v", got)
	}
}

func TestPaymentDueDate(t *testing.T) {
	fx := newFixture(t, nil)

	invoice := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bill := fx.create(model.TypeBill, map[string]model.Value{
		model.TemplateInvoiceDate: model.DateValue(invoice),
	})

	if err := fx.update(bill, model.TemplatePaymentTerms, model.OptionValue(model.OptionNet30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fx.templateValue(bill.ID, model.TypeBill, model.TemplatePaymentDueDate)
	want := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	if got.Date == nil || !got.Date.Equal(want) {
		t.Fatalf("expected due date %v, got %v", want, got.Date)
	}
}

func TestPaymentDueDate_MissingInputIsSkipped(t *testing.T) {
	fx := newFixture(t, nil)
	bill := fx.create(model.TypeBill, nil)

	if err := fx.update(bill, model.TemplatePaymentTerms, model.OptionValue(model.OptionNet30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplatePaymentDueDate); !got.IsEmpty() {
		t.Fatalf("expected no due date without invoice date, got %v", got)
	}
}

func TestFieldCopyOnItemLink(t *testing.T) {
	fx := newFixture(t, nil)

	item := fx.create(model.TypeItem, map[string]model.Value{
		model.TemplateName:     model.StringValue("Blue Widget"),
		model.TemplateUnitCost: model.NumberValue(12.5),
	})
	line := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateQuantity: model.NumberValue(4),
	})

	if err := fx.update(line, model.TemplateItem, model.ResourceValue(item.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.templateValue(line.ID, model.TypeLine, model.TemplateUnitCost); got.NumberOr(-1) != 12.5 {
		t.Fatalf("expected unit cost copied from item, got %v", got)
	}
	// The copy feeds the line-total rule in the same pass.
	if got := fx.templateValue(line.ID, model.TypeLine, model.TemplateTotalCost); got.NumberOr(-1) != 50 {
		t.Fatalf("expected total 50, got %v", got)
	}
}

func TestBillOrderLink(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	vendor := fx.create(model.TypeVendor, map[string]model.Value{
		model.TemplateName: model.StringValue("Acme"),
	})
	order := fx.create(model.TypePurchase, map[string]model.Value{
		model.TemplateVendor: model.ResourceValue(vendor.ID),
	})
	if err := fx.engine.AfterCreate(ctx, mustGet(t, fx, order.ID)); err != nil {
		t.Fatalf("after create: %v", err)
	}
	bill := fx.create(model.TypeBill, nil)

	if err := fx.update(bill, model.TemplateOrder, model.ResourceValue(order.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Vendor copied across, PO number taken over, reciprocal link set.
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateVendor); got.ResourceID() != vendor.ID {
		t.Fatalf("expected vendor copied from order, got %v", got)
	}
	wantPO := fx.templateValue(order.ID, model.TypePurchase, model.TemplatePONumber)
	gotPO := fx.templateValue(bill.ID, model.TypeBill, model.TemplatePONumber)
	if wantPO.StringOr("") == "" || gotPO.StringOr("") != wantPO.StringOr("") {
		t.Fatalf("expected PO %v stamped on bill, got %v", wantPO, gotPO)
	}
	if got := fx.templateValue(order.ID, model.TypePurchase, model.TemplateBill); got.ResourceID() != bill.ID {
		t.Fatalf("expected back-link on order, got %v", got)
	}
}

func TestPurchaseCreationStampsPONumber(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	order := fx.create(model.TypePurchase, nil)
	if err := fx.engine.AfterCreate(ctx, mustGet(t, fx, order.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fx.templateValue(order.ID, model.TypePurchase, model.TemplatePONumber)
	if got.StringOr("") != fmt.Sprintf("%d", order.Key) {
		t.Fatalf("expected PO %d, got %v", order.Key, got)
	}
}

func TestDocumentExtraction(t *testing.T) {
	var seenAccount, seenResource string
	ex := extract.Func(func(ctx context.Context, accountID, resourceID string) (extract.Result, error) {
		seenAccount = accountID
		seenResource = resourceID
		return extract.Result{PONumber: "4711"}, nil
	})
	fx := newFixture(t, ex)

	bill := fx.create(model.TypeBill, nil)
	if err := fx.update(bill, model.TemplateFiles, model.FilesValue([]string{"blb-1", "blb-2"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenAccount != testAccount || seenResource != bill.ID {
		t.Fatalf("expected extractor to receive the bill, got (%q, %q)", seenAccount, seenResource)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplatePONumber); got.StringOr("") != "4711" {
		t.Fatalf("expected extracted PO, got %v", got)
	}
}

func TestDocumentExtractionFailurePropagates(t *testing.T) {
	wantErr := errors.New("ocr unavailable")
	ex := extract.Func(func(ctx context.Context, accountID, resourceID string) (extract.Result, error) {
		return extract.Result{}, wantErr
	})
	fx := newFixture(t, ex)

	bill := fx.create(model.TypeBill, nil)
	err := fx.update(bill, model.TemplateFiles, model.FilesValue([]string{"blb-1"}))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected extraction error to propagate, got %v", err)
	}
}

func TestPipelineIsIdempotent(t *testing.T) {
	fx := newFixture(t, nil)

	bill := fx.create(model.TypeBill, nil)
	line := fx.create(model.TypeLine, map[string]model.Value{
		model.TemplateBill:     model.ResourceValue(bill.ID),
		model.TemplateUnitCost: model.NumberValue(7),
	})

	for i := 0; i < 2; i++ {
		if err := fx.update(line, model.TemplateQuantity, model.NumberValue(3)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if got := fx.templateValue(line.ID, model.TypeLine, model.TemplateTotalCost); got.NumberOr(-1) != 21 {
		t.Fatalf("expected total 21, got %v", got)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateSubtotalCost); got.NumberOr(-1) != 21 {
		t.Fatalf("expected subtotal 21, got %v", got)
	}
}

func TestDerivedFieldsAreNeverCopied(t *testing.T) {
	fx := newFixture(t, nil)

	order := fx.create(model.TypePurchase, map[string]model.Value{
		model.TemplateSubtotalCost: model.NumberValue(999),
	})
	bill := fx.create(model.TypeBill, nil)

	if err := fx.update(bill, model.TemplateOrder, model.ResourceValue(order.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fx.templateValue(bill.ID, model.TypeBill, model.TemplateSubtotalCost); !got.IsEmpty() && got.NumberOr(0) == 999 {
		t.Fatalf("derived subtotal must not be copied across the link, got %v", got)
	}
}

func mustGet(t *testing.T, fx *fixture, id string) *model.Resource {
	t.Helper()
	res, err := fx.store.GetResource(context.Background(), testAccount, id)
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	return res
}
