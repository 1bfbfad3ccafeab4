package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueValidate_EverySlot(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		typ FieldType
		val Value
	}{
		{FieldTypeText, StringValue("hello")},
		{FieldTypeTextarea, StringValue("long text")},
		{FieldTypeNumber, NumberValue(42)},
		{FieldTypeMoney, NumberValue(19.99)},
		{FieldTypeCheckbox, BooleanValue(true)},
		{FieldTypeDate, DateValue(date)},
		{FieldTypeSelect, OptionValue("opt-1")},
		{FieldTypeMultiSelect, OptionsValue([]string{"opt-1", "opt-2"})},
		{FieldTypeUser, UserValue("usr-1")},
		{FieldTypeResource, ResourceValue("res-1")},
		{FieldTypeFile, FileValue("blob-1")},
		{FieldTypeFiles, FilesValue([]string{"blob-1"})},
		{FieldTypeContact, ContactValue("con-1")},
	}
	for _, tc := range cases {
		f := &Field{Name: "f", Type: tc.typ, Options: []Option{{ID: "opt-1"}, {ID: "opt-2"}}}
		if err := tc.val.Validate(f); err != nil {
			t.Errorf("%s: unexpected error: %v", tc.typ, err)
		}
		// Round-trip through JSON preserves the payload.
		data, err := json.Marshal(tc.val)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.typ, err)
		}
		var back Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.typ, err)
		}
		if !tc.val.Equal(back) {
			t.Errorf("%s: round-trip mismatch: %s", tc.typ, data)
		}
	}
}

func TestValueValidate_Mismatch(t *testing.T) {
	f := &Field{Name: "Quantity", Type: FieldTypeNumber}
	if err := StringValue("three").Validate(f); err == nil {
		t.Fatal("expected type mismatch, got nil")
	}
	// Two populated slots is never valid.
	v := Value{Number: ptr(3.0), String: ptr("three")}
	if err := v.Validate(f); err == nil {
		t.Fatal("expected error for two populated slots")
	}
}

func TestValueValidate_UnknownOption(t *testing.T) {
	f := &Field{Name: "Status", Type: FieldTypeSelect, Options: []Option{{ID: "opt-a"}}}
	if err := OptionValue("opt-a").Validate(f); err != nil {
		t.Fatalf("known option: %v", err)
	}
	if err := OptionValue("opt-z").Validate(f); err == nil {
		t.Fatal("expected error for unknown option")
	}
}

func TestValueValidate_EmptyAlwaysValid(t *testing.T) {
	for _, typ := range []FieldType{
		FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeMoney,
		FieldTypeCheckbox, FieldTypeDate, FieldTypeSelect, FieldTypeMultiSelect,
		FieldTypeUser, FieldTypeResource, FieldTypeFile, FieldTypeFiles,
		FieldTypeContact,
	} {
		f := &Field{Name: "f", Type: typ}
		if err := EmptyValue(typ).Validate(f); err != nil {
			t.Errorf("%s: empty value should validate: %v", typ, err)
		}
	}
}

func TestValueDeepCopy_Independent(t *testing.T) {
	orig := OptionsValue([]string{"a", "b"})
	cp := orig.DeepCopy()
	cp.Options[0] = "mutated"
	if orig.Options[0] != "a" {
		t.Fatal("deep copy aliased the options slice")
	}

	n := NumberValue(5)
	cn := n.DeepCopy()
	*cn.Number = 9
	if *n.Number != 5 {
		t.Fatal("deep copy aliased the number pointer")
	}
}

func TestValueNumberOr(t *testing.T) {
	if got := (Value{}).NumberOr(0); got != 0 {
		t.Fatalf("empty NumberOr(0) = %v", got)
	}
	if got := NumberValue(7).NumberOr(0); got != 7 {
		t.Fatalf("NumberOr = %v", got)
	}
}

func TestSchemaSelectField(t *testing.T) {
	a := &Field{ID: "fld-a", TemplateID: "tpl-name", Name: "Name", Type: FieldTypeText}
	b := &Field{ID: "fld-b", Name: "Amount", Type: FieldTypeMoney}
	s := &Schema{
		ResourceType: TypeBill,
		Sections:     []*Section{{Name: "Details", Fields: []*Field{a, b}}},
	}
	s.Flatten()

	for _, ref := range []FieldRef{{ID: "fld-a"}, {TemplateID: "tpl-name"}, {Name: "Name"}} {
		got, err := s.SelectField(ref)
		if err != nil {
			t.Fatalf("SelectField(%v): %v", ref, err)
		}
		if got.ID != "fld-a" {
			t.Fatalf("SelectField(%v) = %s, want fld-a", ref, got.ID)
		}
	}

	if _, err := s.SelectField(FieldRef{Name: "Nope"}); err == nil {
		t.Fatal("expected FieldNotFoundError")
	}
}

func TestSchemaFlatten_Dedupes(t *testing.T) {
	f := &Field{ID: "fld-x", Name: "X", Type: FieldTypeText}
	s := &Schema{Sections: []*Section{
		{Name: "A", Fields: []*Field{f}},
		{Name: "B", Fields: []*Field{f}},
	}}
	s.Flatten()
	if len(s.AllFields) != 1 {
		t.Fatalf("AllFields = %d, want 1", len(s.AllFields))
	}
}

func TestCostAmount(t *testing.T) {
	flat := &Cost{Value: 12.5}
	if got := flat.Amount(100); got != 12.5 {
		t.Fatalf("flat cost = %v", got)
	}
	pct := &Cost{IsPercentage: true, Value: 10}
	if got := pct.Amount(50); got != 5 {
		t.Fatalf("percentage cost = %v", got)
	}
}

func ptr[T any](v T) *T { return &v }
