package schema

import (
	"context"
	"fmt"

	"github.com/fernwood/procure/internal/idgen"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/store"
)

// templateField is a built-in field definition. One Field row is created per
// account per template; the same row is laid out in every schema that lists
// its template id.
type templateField struct {
	template       string
	name           string
	typ            model.FieldType
	resourceType   model.ResourceType
	options        []model.Option
	defaultToToday bool
}

var templateFields = []templateField{
	{template: model.TemplateName, name: "Name", typ: model.FieldTypeText},
	{template: model.TemplateDescription, name: "Description", typ: model.FieldTypeTextarea},
	{template: model.TemplateContact, name: "Contact", typ: model.FieldTypeContact},
	{template: model.TemplateVendor, name: "Vendor", typ: model.FieldTypeResource, resourceType: model.TypeVendor},
	{template: model.TemplateItem, name: "Item", typ: model.FieldTypeResource, resourceType: model.TypeItem},
	{template: model.TemplateOrder, name: "Order", typ: model.FieldTypeResource, resourceType: model.TypePurchase},
	{template: model.TemplateBill, name: "Bill", typ: model.FieldTypeResource, resourceType: model.TypeBill},
	{template: model.TemplateUnitCost, name: "Unit Cost", typ: model.FieldTypeMoney},
	{template: model.TemplateQuantity, name: "Quantity", typ: model.FieldTypeNumber},
	{template: model.TemplateTotalCost, name: "Total", typ: model.FieldTypeMoney},
	{template: model.TemplateSubtotalCost, name: "Subtotal", typ: model.FieldTypeMoney},
	{template: model.TemplateItemizedCosts, name: "Itemized Costs", typ: model.FieldTypeMoney},
	{template: model.TemplateInvoiceDate, name: "Invoice Date", typ: model.FieldTypeDate},
	{template: model.TemplatePaymentTerms, name: "Payment Terms", typ: model.FieldTypeSelect, options: []model.Option{
		{ID: model.OptionNet15, Label: "Net 15", Position: 0},
		{ID: model.OptionNet30, Label: "Net 30", Position: 1},
		{ID: model.OptionNet45, Label: "Net 45", Position: 2},
		{ID: model.OptionNet60, Label: "Net 60", Position: 3},
	}},
	{template: model.TemplatePaymentDueDate, name: "Payment Due Date", typ: model.FieldTypeDate},
	{template: model.TemplatePONumber, name: "PO Number", typ: model.FieldTypeText},
	{template: model.TemplateFiles, name: "Files", typ: model.FieldTypeFiles},
	{template: model.TemplateIssueDate, name: "Issue Date", typ: model.FieldTypeDate, defaultToToday: true},
}

// sectionLayout is a built-in section: its name and the template ids laid
// out in it, in order.
type sectionLayout struct {
	name      string
	templates []string
}

var templateSections = map[model.ResourceType][]sectionLayout{
	model.TypeVendor: {
		{name: "Details", templates: []string{
			model.TemplateName, model.TemplateDescription, model.TemplateContact, model.TemplateFiles,
		}},
	},
	model.TypeItem: {
		{name: "Details", templates: []string{
			model.TemplateName, model.TemplateDescription, model.TemplateVendor,
			model.TemplateUnitCost, model.TemplateFiles,
		}},
	},
	model.TypePurchase: {
		{name: "Details", templates: []string{
			model.TemplateName, model.TemplateDescription, model.TemplateVendor,
			model.TemplateIssueDate, model.TemplatePONumber, model.TemplateBill,
			model.TemplateFiles,
		}},
		{name: "Totals", templates: []string{
			model.TemplateSubtotalCost, model.TemplateItemizedCosts, model.TemplateTotalCost,
		}},
	},
	model.TypeBill: {
		{name: "Details", templates: []string{
			model.TemplateName, model.TemplateVendor, model.TemplateOrder,
			model.TemplateInvoiceDate, model.TemplatePaymentTerms, model.TemplatePaymentDueDate,
			model.TemplatePONumber, model.TemplateContact, model.TemplateFiles,
		}},
		{name: "Totals", templates: []string{
			model.TemplateSubtotalCost, model.TemplateItemizedCosts, model.TemplateTotalCost,
		}},
	},
	model.TypeLine: {
		{name: "Details", templates: []string{
			model.TemplateItem, model.TemplateOrder, model.TemplateBill,
			model.TemplateQuantity, model.TemplateUnitCost, model.TemplateTotalCost,
		}},
	},
	model.TypeContract: {
		{name: "Details", templates: []string{
			model.TemplateName, model.TemplateDescription, model.TemplateVendor,
			model.TemplateIssueDate, model.TemplateContact, model.TemplateFiles,
		}},
	},
}

// ApplyTemplates provisions a new account: every template field once, then
// the built-in sections for each resource type. Idempotence is checked
// cheaply up front; a concurrent second call fails on the section uniqueness
// constraint and rolls back.
func (s *Service) ApplyTemplates(ctx context.Context, accountID string) error {
	existing, err := s.store.GetSchema(ctx, accountID, model.TypeVendor)
	if err != nil {
		return err
	}
	if len(existing.Sections) > 0 {
		return nil
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		byTemplate := make(map[string]*model.Field, len(templateFields))
		for _, def := range templateFields {
			id, err := idgen.Generate(idgen.PrefixField)
			if err != nil {
				return err
			}
			field := &model.Field{
				ID:             id,
				TemplateID:     def.template,
				Name:           def.name,
				Type:           def.typ,
				ResourceType:   def.resourceType,
				Options:        def.options,
				DefaultToToday: def.defaultToToday,
				IsSystem:       true,
			}
			if err := tx.CreateField(ctx, accountID, field, nil); err != nil {
				return fmt.Errorf("create template field %s: %w", def.template, err)
			}
			byTemplate[def.template] = field
		}

		for rt, layouts := range templateSections {
			for pos, layout := range layouts {
				secID, err := idgen.Generate(idgen.PrefixSection)
				if err != nil {
					return err
				}
				sec := &model.Section{
					ID:       secID,
					Name:     layout.name,
					IsSystem: true,
					Position: pos,
				}
				for _, tpl := range layout.templates {
					sec.Fields = append(sec.Fields, byTemplate[tpl])
				}
				if err := tx.CreateSection(ctx, accountID, rt, sec); err != nil {
					return fmt.Errorf("create section %s/%s: %w", rt, layout.name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("account provisioned", "account", accountID)
	return nil
}
