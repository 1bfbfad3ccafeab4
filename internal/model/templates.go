package model

// Template field identifiers. A template field is a well-known, cross-account
// definition with a fixed id; applying a template to an account creates a
// per-account Field row carrying the template id. Effects rules and display
// hydration address fields through these, never through per-account ids.
const (
	TemplateName           = "tpl-name"
	TemplateDescription    = "tpl-description"
	TemplateVendor         = "tpl-vendor"
	TemplateItem           = "tpl-item"
	TemplateOrder          = "tpl-order"
	TemplateBill           = "tpl-bill"
	TemplateUnitCost       = "tpl-unit-cost"
	TemplateQuantity       = "tpl-quantity"
	TemplateTotalCost      = "tpl-total-cost"
	TemplateSubtotalCost   = "tpl-subtotal-cost"
	TemplateItemizedCosts  = "tpl-itemized-costs"
	TemplateInvoiceDate    = "tpl-invoice-date"
	TemplatePaymentTerms   = "tpl-payment-terms"
	TemplatePaymentDueDate = "tpl-payment-due-date"
	TemplatePONumber       = "tpl-po-number"
	TemplateFiles          = "tpl-files"
	TemplateContact        = "tpl-contact"
	TemplateIssueDate      = "tpl-issue-date"
)

// Payment-terms option ids. The options carry fixed ids so the due-date rule
// can map a selection to a day count without parsing labels.
const (
	OptionNet15 = "opt-net-15"
	OptionNet30 = "opt-net-30"
	OptionNet45 = "opt-net-45"
	OptionNet60 = "opt-net-60"
)

// PaymentTermDays maps a payment-terms option id to the number of days after
// the invoice date that payment is due.
var PaymentTermDays = map[string]int{
	OptionNet15: 15,
	OptionNet30: 30,
	OptionNet45: 45,
	OptionNet60: 60,
}

// DerivedTemplates are the fields the effects engine owns. The field-copy
// rule never copies these between linked resources; their values are always
// recomputed locally.
var DerivedTemplates = map[string]bool{
	TemplateTotalCost:      true,
	TemplateSubtotalCost:   true,
	TemplateItemizedCosts:  true,
	TemplatePaymentDueDate: true,
	TemplatePONumber:       true,
}
