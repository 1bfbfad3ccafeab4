// Package effects propagates derived state after resource writes. Rules run
// in a fixed, declared order; each pass feeds the next until no rule produces
// a new change, bounded by maxPasses. Cross-resource propagation (a line's
// total rolling up into its parent) recurses with a depth bound instead of
// taking locks: concurrent writers to the same derived field race with
// last-write-wins semantics.
package effects

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fernwood/procure/internal/extract"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/store"
)

const (
	// maxPasses bounds rule re-evaluation within one resource. The declared
	// rule order is a DAG, so two passes normally reach the fixpoint.
	maxPasses = 8

	// maxDepth bounds cross-resource recursion (line -> parent -> ...).
	maxDepth = 4
)

// copySkip lists template fields the field-copy rule never moves between
// linked resources: identity fields and uploads stay where they are, derived
// fields are recomputed locally.
var copySkip = map[string]bool{
	model.TemplateName:        true,
	model.TemplateDescription: true,
	model.TemplateFiles:       true,
}

// Engine runs the effects pipeline. Safe for concurrent use.
type Engine struct {
	store     store.Store
	extractor extract.Extractor
	logger    *slog.Logger
}

func New(s store.Store, ex extract.Extractor, logger *slog.Logger) *Engine {
	if ex == nil {
		ex = extract.Noop{}
	}
	return &Engine{store: s, extractor: ex, logger: logger}
}

// AfterCreate runs the pipeline over a freshly created resource. Every
// populated field counts as changed; purchases additionally get their PO
// number stamped from the assigned key.
func (e *Engine) AfterCreate(ctx context.Context, res *model.Resource) error {
	changed := make(map[string]bool)
	for _, rf := range res.Fields {
		if !rf.Value.IsEmpty() {
			changed[rf.FieldID] = true
		}
	}
	return e.run(ctx, res, changed, 0, true)
}

// AfterUpdate runs the pipeline with the update's field changes as the
// trigger set.
func (e *Engine) AfterUpdate(ctx context.Context, res *model.Resource, changes []model.FieldChange) error {
	changed := make(map[string]bool, len(changes))
	for _, ch := range changes {
		changed[ch.Field.ID] = true
	}
	return e.run(ctx, res, changed, 0, false)
}

// RecomputeSubtotal re-derives a parent's subtotal after one of its lines was
// deleted, then lets the cost rules cascade.
func (e *Engine) RecomputeSubtotal(ctx context.Context, accountID, parentID string) error {
	parent, err := e.store.GetResource(ctx, accountID, parentID)
	if err != nil {
		return err
	}
	return e.rollupInto(ctx, parent, 0)
}

// RecomputeCosts re-derives itemized and grand totals after a cost line was
// added or removed.
func (e *Engine) RecomputeCosts(ctx context.Context, accountID, resourceID string) error {
	res, err := e.store.GetResource(ctx, accountID, resourceID)
	if err != nil {
		return err
	}
	schema, err := e.store.GetSchema(ctx, accountID, res.Type)
	if err != nil {
		return err
	}
	subtotal := schema.FieldByTemplate(model.TemplateSubtotalCost)
	if subtotal == nil {
		return nil
	}
	// Marking the subtotal re-triggers the itemized and grand-total rules
	// without changing its value.
	return e.run(ctx, res, map[string]bool{subtotal.ID: true}, 0, false)
}

// run is one pipeline invocation over a single resource. changed seeds the
// first pass; writes made by a rule are visible to the rules after it in the
// same pass and seed the next pass.
func (e *Engine) run(ctx context.Context, res *model.Resource, changed map[string]bool, depth int, created bool) error {
	if depth > maxDepth {
		e.logger.Warn("effects recursion depth exceeded", "resource", res.ID, "depth", depth)
		return nil
	}
	schema, err := e.store.GetSchema(ctx, res.AccountID, res.Type)
	if err != nil {
		return err
	}

	p := &pass{
		engine:  e,
		res:     res,
		schema:  schema,
		changed: changed,
		copied:  make(map[string]bool),
		depth:   depth,
	}
	for i := 0; i < maxPasses; i++ {
		p.fresh = make(map[string]bool)
		if err := p.evaluate(ctx, created); err != nil {
			return err
		}
		if len(p.fresh) == 0 {
			return nil
		}
		// Only this pass's outputs trigger the next pass.
		p.changed = p.fresh
		created = false
	}
	e.logger.Warn("effects did not reach fixpoint", "resource", res.ID, "passes", maxPasses)
	return nil
}

// pass carries the per-invocation evaluation state.
type pass struct {
	engine  *Engine
	res     *model.Resource
	schema  *model.Schema
	changed map[string]bool
	fresh   map[string]bool
	// copied marks resource-typed fields that were themselves written by the
	// copy rule; they never act as a second hop.
	copied map[string]bool
	depth  int
}

// evaluate applies the rule catalogue once, in declared order.
func (p *pass) evaluate(ctx context.Context, created bool) error {
	if err := p.copyLinkedFields(ctx); err != nil {
		return err
	}
	if err := p.lineTotal(ctx); err != nil {
		return err
	}
	if err := p.subtotalRollup(ctx); err != nil {
		return err
	}
	if err := p.itemizedCosts(ctx); err != nil {
		return err
	}
	if err := p.grandTotal(ctx); err != nil {
		return err
	}
	if err := p.paymentDueDate(ctx); err != nil {
		return err
	}
	if err := p.documentExtraction(ctx); err != nil {
		return err
	}
	return p.stampPONumber(ctx, created)
}

// changedTemplate reports whether the field carrying the template id is in
// this pass's trigger set.
func (p *pass) changedTemplate(templateID string) bool {
	f := p.schema.FieldByTemplate(templateID)
	return f != nil && p.changed[f.ID]
}

// value returns the resource's current value for a field, or the empty value.
func (p *pass) value(f *model.Field) model.Value {
	if f == nil {
		return model.Value{}
	}
	if rf := p.res.FieldByID(f.ID); rf != nil {
		return rf.Value
	}
	return model.Value{}
}

func (p *pass) templateValue(templateID string) model.Value {
	return p.value(p.schema.FieldByTemplate(templateID))
}

// set writes a derived value, records it as changed, and keeps the in-memory
// resource in step with storage. Unchanged values are not rewritten.
func (p *pass) set(ctx context.Context, f *model.Field, v model.Value) error {
	if f == nil {
		return nil
	}
	if p.value(f).Equal(v) {
		return nil
	}
	if err := p.engine.store.UpsertResourceValue(ctx, p.res.AccountID, p.res.ID, f.ID, v); err != nil {
		return fmt.Errorf("effects: write %s: %w", f.Name, err)
	}
	if rf := p.res.FieldByID(f.ID); rf != nil {
		rf.Value = v
	} else {
		p.res.Fields = append(p.res.Fields, &model.ResourceField{
			ResourceID: p.res.ID,
			FieldID:    f.ID,
			Value:      v,
		})
	}
	p.changed[f.ID] = true
	p.fresh[f.ID] = true
	return nil
}

// Rule 1: a changed resource link copies shared, non-derived fields from the
// linked resource into this one and establishes the reciprocal back-link.
// Exactly one hop: a resource-typed field written by the copy itself is
// marked and never acts as a further trigger.
func (p *pass) copyLinkedFields(ctx context.Context) error {
	for _, f := range p.schema.AllFields {
		if !p.changed[f.ID] || f.Type != model.FieldTypeResource || p.copied[f.ID] {
			continue
		}
		linkedID := p.value(f).ResourceID()
		if linkedID == "" {
			continue
		}
		linked, err := p.engine.store.GetResource(ctx, p.res.AccountID, linkedID)
		if err != nil {
			return fmt.Errorf("effects: load linked resource: %w", err)
		}
		linkedSchema, err := p.engine.store.GetSchema(ctx, p.res.AccountID, linked.Type)
		if err != nil {
			return err
		}

		for _, lf := range linkedSchema.AllFields {
			if lf.TemplateID == "" || copySkip[lf.TemplateID] || model.DerivedTemplates[lf.TemplateID] {
				continue
			}
			target := p.schema.FieldByTemplate(lf.TemplateID)
			if target == nil || target.ID == f.ID {
				continue
			}
			v := model.Value{}
			if rf := linked.FieldByID(lf.ID); rf != nil {
				v = rf.Value.DeepCopy()
			}
			if v.IsEmpty() {
				continue
			}
			if target.Type == model.FieldTypeResource {
				p.copied[target.ID] = true
			}
			if err := p.set(ctx, target, v); err != nil {
				return err
			}
		}

		if err := p.backlink(ctx, linked, linkedSchema); err != nil {
			return err
		}
	}
	return nil
}

// backlink sets the linked resource's reciprocal resource field to point back
// at this resource. Written directly, without re-running effects on the
// linked side.
func (p *pass) backlink(ctx context.Context, linked *model.Resource, linkedSchema *model.Schema) error {
	for _, lf := range linkedSchema.AllFields {
		if lf.Type != model.FieldTypeResource || lf.ResourceType != p.res.Type {
			continue
		}
		current := ""
		if rf := linked.FieldByID(lf.ID); rf != nil {
			current = rf.Value.ResourceID()
		}
		if current == p.res.ID {
			return nil
		}
		err := p.engine.store.UpsertResourceValue(ctx, p.res.AccountID, linked.ID, lf.ID, model.ResourceValue(p.res.ID))
		if err != nil {
			return fmt.Errorf("effects: back-link: %w", err)
		}
		return nil
	}
	return nil
}

// Rule 2: line total = unit cost x quantity. Missing numeric inputs count as
// zero.
func (p *pass) lineTotal(ctx context.Context) error {
	if p.res.Type != model.TypeLine {
		return nil
	}
	if !p.changedTemplate(model.TemplateUnitCost) &&
		!p.changedTemplate(model.TemplateQuantity) &&
		!p.changedTemplate(model.TemplateItem) {
		return nil
	}
	unit := p.templateValue(model.TemplateUnitCost).NumberOr(0)
	qty := p.templateValue(model.TemplateQuantity).NumberOr(0)
	return p.set(ctx, p.schema.FieldByTemplate(model.TemplateTotalCost), model.NumberValue(unit*qty))
}

// Rule 3: a changed line total rolls up into the parent's subtotal. The
// parent is updated in its own read-modify-write and the pipeline recurses
// into it so its cost rules run.
func (p *pass) subtotalRollup(ctx context.Context) error {
	if p.res.Type != model.TypeLine || !p.changedTemplate(model.TemplateTotalCost) {
		return nil
	}
	for _, tpl := range []string{model.TemplateBill, model.TemplateOrder} {
		linkField := p.schema.FieldByTemplate(tpl)
		if linkField == nil {
			continue
		}
		parentID := p.value(linkField).ResourceID()
		if parentID == "" {
			continue
		}
		parent, err := p.engine.store.GetResource(ctx, p.res.AccountID, parentID)
		if err != nil {
			return fmt.Errorf("effects: load parent: %w", err)
		}
		if err := p.engine.rollupInto(ctx, parent, p.depth+1); err != nil {
			return err
		}
	}
	return nil
}

// rollupInto recomputes a parent's subtotal from its lines and runs the
// pipeline on the parent with the subtotal marked changed.
func (e *Engine) rollupInto(ctx context.Context, parent *model.Resource, depth int) error {
	parentSchema, err := e.store.GetSchema(ctx, parent.AccountID, parent.Type)
	if err != nil {
		return err
	}
	subtotalField := parentSchema.FieldByTemplate(model.TemplateSubtotalCost)
	if subtotalField == nil {
		return nil
	}

	lineSchema, err := e.store.GetSchema(ctx, parent.AccountID, model.TypeLine)
	if err != nil {
		return err
	}
	totalField := lineSchema.FieldByTemplate(model.TemplateTotalCost)
	linkTpl := model.TemplateOrder
	if parent.Type == model.TypeBill {
		linkTpl = model.TemplateBill
	}
	linkField := lineSchema.FieldByTemplate(linkTpl)
	if totalField == nil || linkField == nil {
		return nil
	}

	sum, err := e.store.SumFieldByLink(ctx, parent.AccountID, totalField.ID, linkField.ID, parent.ID)
	if err != nil {
		return err
	}

	current := model.Value{}
	if rf := parent.FieldByID(subtotalField.ID); rf != nil {
		current = rf.Value
	}
	next := model.NumberValue(sum)
	if current.Equal(next) {
		return nil
	}
	if err := e.store.UpsertResourceValue(ctx, parent.AccountID, parent.ID, subtotalField.ID, next); err != nil {
		return fmt.Errorf("effects: write subtotal: %w", err)
	}
	if rf := parent.FieldByID(subtotalField.ID); rf != nil {
		rf.Value = next
	} else {
		parent.Fields = append(parent.Fields, &model.ResourceField{
			ResourceID: parent.ID, FieldID: subtotalField.ID, Value: next,
		})
	}
	return e.run(ctx, parent, map[string]bool{subtotalField.ID: true}, depth, false)
}

// Rule 4: a changed subtotal re-derives the itemized costs total.
func (p *pass) itemizedCosts(ctx context.Context) error {
	if p.res.Type != model.TypeBill && p.res.Type != model.TypePurchase {
		return nil
	}
	if !p.changedTemplate(model.TemplateSubtotalCost) {
		return nil
	}
	itemized := p.schema.FieldByTemplate(model.TemplateItemizedCosts)
	if itemized == nil {
		return nil
	}
	subtotal := p.templateValue(model.TemplateSubtotalCost).NumberOr(0)
	var total float64
	for _, c := range p.res.Costs {
		total += c.Amount(subtotal)
	}
	return p.set(ctx, itemized, model.NumberValue(total))
}

// Rule 5: grand total = subtotal + itemized costs.
func (p *pass) grandTotal(ctx context.Context) error {
	if p.res.Type != model.TypeBill && p.res.Type != model.TypePurchase {
		return nil
	}
	if !p.changedTemplate(model.TemplateSubtotalCost) && !p.changedTemplate(model.TemplateItemizedCosts) {
		return nil
	}
	subtotal := p.templateValue(model.TemplateSubtotalCost).NumberOr(0)
	itemized := p.templateValue(model.TemplateItemizedCosts).NumberOr(0)
	return p.set(ctx, p.schema.FieldByTemplate(model.TemplateTotalCost), model.NumberValue(subtotal+itemized))
}

// Rule 6: payment due date = invoice date + payment terms, when both inputs
// are present.
func (p *pass) paymentDueDate(ctx context.Context) error {
	if p.res.Type != model.TypeBill {
		return nil
	}
	if !p.changedTemplate(model.TemplateInvoiceDate) && !p.changedTemplate(model.TemplatePaymentTerms) {
		return nil
	}
	invoice := p.templateValue(model.TemplateInvoiceDate)
	terms := p.templateValue(model.TemplatePaymentTerms)
	if invoice.Date == nil || terms.Option == nil {
		return nil
	}
	days, ok := model.PaymentTermDays[*terms.Option]
	if !ok {
		return nil
	}
	due := invoice.Date.AddDate(0, 0, days)
	return p.set(ctx, p.schema.FieldByTemplate(model.TemplatePaymentDueDate), model.DateValue(due))
}

// Rule 7: a changed bill upload goes through the document extractor; whatever
// it finds is stamped onto the bill. Extractor failures abort the update.
func (p *pass) documentExtraction(ctx context.Context) error {
	if p.res.Type != model.TypeBill || !p.changedTemplate(model.TemplateFiles) {
		return nil
	}
	if len(p.templateValue(model.TemplateFiles).Files) == 0 {
		return nil
	}
	result, err := p.engine.extractor.ExtractContent(ctx, p.res.AccountID, p.res.ID)
	if err != nil {
		return fmt.Errorf("effects: document extraction: %w", err)
	}
	if result.PONumber != "" {
		if err := p.set(ctx, p.schema.FieldByTemplate(model.TemplatePONumber), model.StringValue(result.PONumber)); err != nil {
			return err
		}
	}
	if result.VendorID != "" {
		if err := p.set(ctx, p.schema.FieldByTemplate(model.TemplateVendor), model.ResourceValue(result.VendorID)); err != nil {
			return err
		}
	}
	return nil
}

// Rule 8: a new purchase is stamped with its own sequential key as PO number;
// a bill linked to an order takes over the order's PO number.
func (p *pass) stampPONumber(ctx context.Context, created bool) error {
	if created && p.res.Type == model.TypePurchase {
		po := p.schema.FieldByTemplate(model.TemplatePONumber)
		if po != nil && p.value(po).IsEmpty() {
			if err := p.set(ctx, po, model.StringValue(strconv.FormatInt(p.res.Key, 10))); err != nil {
				return err
			}
		}
	}

	if p.res.Type == model.TypeBill && p.changedTemplate(model.TemplateOrder) {
		orderID := p.templateValue(model.TemplateOrder).ResourceID()
		if orderID == "" {
			return nil
		}
		order, err := p.engine.store.GetResource(ctx, p.res.AccountID, orderID)
		if err != nil {
			return fmt.Errorf("effects: load order: %w", err)
		}
		orderSchema, err := p.engine.store.GetSchema(ctx, p.res.AccountID, order.Type)
		if err != nil {
			return err
		}
		orderPO := orderSchema.FieldByTemplate(model.TemplatePONumber)
		if orderPO == nil {
			return nil
		}
		if rf := order.FieldByID(orderPO.ID); rf != nil && !rf.Value.IsEmpty() {
			return p.set(ctx, p.schema.FieldByTemplate(model.TemplatePONumber), rf.Value.DeepCopy())
		}
	}
	return nil
}
