package model

import (
	"fmt"
	"time"
)

// Value is the typed payload of one ResourceField. Exactly one slot is
// populated; which one is dictated by the owning Field's type. Constructing a
// Value whose active slot disagrees with the Field type is a contract
// violation caught by Validate at the input boundary, never deep in storage.
//
// The zero Value is the empty value for every field type.
type Value struct {
	Boolean  *bool      `json:"boolean,omitempty"`
	Contact  *string    `json:"contact,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Number   *float64   `json:"number,omitempty"`
	Option   *string    `json:"option,omitempty"`
	Options  []string   `json:"options,omitempty"`
	String   *string    `json:"string,omitempty"`
	User     *string    `json:"user,omitempty"`
	File     *string    `json:"file,omitempty"`
	Files    []string   `json:"files,omitempty"`
	Resource *string    `json:"resource,omitempty"`
}

// Constructors for each slot.

func BooleanValue(b bool) Value        { return Value{Boolean: &b} }
func ContactValue(id string) Value     { return Value{Contact: &id} }
func DateValue(t time.Time) Value      { d := t.UTC().Truncate(24 * time.Hour); return Value{Date: &d} }
func NumberValue(n float64) Value      { return Value{Number: &n} }
func OptionValue(id string) Value      { return Value{Option: &id} }
func OptionsValue(ids []string) Value  { return Value{Options: ids} }
func StringValue(s string) Value       { return Value{String: &s} }
func UserValue(id string) Value        { return Value{User: &id} }
func FileValue(id string) Value        { return Value{File: &id} }
func FilesValue(ids []string) Value    { return Value{Files: ids} }
func ResourceValue(id string) Value    { return Value{Resource: &id} }

// EmptyValue returns the type-appropriate empty value. All slots nil: the
// zero Value is empty for every field type, so this is the zero struct.
func EmptyValue(FieldType) Value { return Value{} }

// IsEmpty reports whether no slot is populated.
func (v Value) IsEmpty() bool {
	return v.Boolean == nil && v.Contact == nil && v.Date == nil &&
		v.Number == nil && v.Option == nil && v.Options == nil &&
		v.String == nil && v.User == nil && v.File == nil &&
		v.Files == nil && v.Resource == nil
}

// Validate checks that the populated slot matches the given field type and
// that no other slot is set. An empty value is valid for every type.
func (v Value) Validate(f *Field) error {
	if v.IsEmpty() {
		return nil
	}
	ok := false
	switch f.Type {
	case FieldTypeText, FieldTypeTextarea:
		ok = v.String != nil && v.populatedSlots() == 1
	case FieldTypeNumber, FieldTypeMoney:
		ok = v.Number != nil && v.populatedSlots() == 1
	case FieldTypeCheckbox:
		ok = v.Boolean != nil && v.populatedSlots() == 1
	case FieldTypeDate:
		ok = v.Date != nil && v.populatedSlots() == 1
	case FieldTypeSelect:
		ok = v.Option != nil && v.populatedSlots() == 1
		if ok && f.OptionByID(*v.Option) == nil {
			return &TypeMismatchError{Field: f.Name, Type: f.Type, Detail: fmt.Sprintf("unknown option %q", *v.Option)}
		}
	case FieldTypeMultiSelect:
		ok = v.Options != nil && v.populatedSlots() == 1
		if ok {
			for _, id := range v.Options {
				if f.OptionByID(id) == nil {
					return &TypeMismatchError{Field: f.Name, Type: f.Type, Detail: fmt.Sprintf("unknown option %q", id)}
				}
			}
		}
	case FieldTypeUser:
		ok = v.User != nil && v.populatedSlots() == 1
	case FieldTypeResource:
		ok = v.Resource != nil && v.populatedSlots() == 1
	case FieldTypeFile:
		ok = v.File != nil && v.populatedSlots() == 1
	case FieldTypeFiles:
		ok = v.Files != nil && v.populatedSlots() == 1
	case FieldTypeContact:
		ok = v.Contact != nil && v.populatedSlots() == 1
	default:
		return &TypeMismatchError{Field: f.Name, Type: f.Type, Detail: "unknown field type"}
	}
	if !ok {
		return &TypeMismatchError{Field: f.Name, Type: f.Type}
	}
	return nil
}

func (v Value) populatedSlots() int {
	n := 0
	if v.Boolean != nil {
		n++
	}
	if v.Contact != nil {
		n++
	}
	if v.Date != nil {
		n++
	}
	if v.Number != nil {
		n++
	}
	if v.Option != nil {
		n++
	}
	if v.Options != nil {
		n++
	}
	if v.String != nil {
		n++
	}
	if v.User != nil {
		n++
	}
	if v.File != nil {
		n++
	}
	if v.Files != nil {
		n++
	}
	if v.Resource != nil {
		n++
	}
	return n
}

// DeepCopy returns an independent copy. Field defaults are copied into new
// resources with this, never aliased, so editing one resource's value can
// never leak into another.
func (v Value) DeepCopy() Value {
	out := Value{}
	if v.Boolean != nil {
		b := *v.Boolean
		out.Boolean = &b
	}
	if v.Contact != nil {
		s := *v.Contact
		out.Contact = &s
	}
	if v.Date != nil {
		t := *v.Date
		out.Date = &t
	}
	if v.Number != nil {
		n := *v.Number
		out.Number = &n
	}
	if v.Option != nil {
		s := *v.Option
		out.Option = &s
	}
	if v.Options != nil {
		out.Options = append([]string(nil), v.Options...)
	}
	if v.String != nil {
		s := *v.String
		out.String = &s
	}
	if v.User != nil {
		s := *v.User
		out.User = &s
	}
	if v.File != nil {
		s := *v.File
		out.File = &s
	}
	if v.Files != nil {
		out.Files = append([]string(nil), v.Files...)
	}
	if v.Resource != nil {
		s := *v.Resource
		out.Resource = &s
	}
	return out
}

// Equal reports whether two values hold the same payload.
func (v Value) Equal(o Value) bool {
	return eqPtr(v.Boolean, o.Boolean) &&
		eqPtr(v.Contact, o.Contact) &&
		eqTimePtr(v.Date, o.Date) &&
		eqPtr(v.Number, o.Number) &&
		eqPtr(v.Option, o.Option) &&
		eqSlice(v.Options, o.Options) &&
		eqPtr(v.String, o.String) &&
		eqPtr(v.User, o.User) &&
		eqPtr(v.File, o.File) &&
		eqSlice(v.Files, o.Files) &&
		eqPtr(v.Resource, o.Resource)
}

// NumberOr returns the number slot, or fallback when unset. Derived-field
// recomputation treats a missing numeric source as 0 rather than failing.
func (v Value) NumberOr(fallback float64) float64 {
	if v.Number == nil {
		return fallback
	}
	return *v.Number
}

// ResourceID returns the resource slot or "".
func (v Value) ResourceID() string {
	if v.Resource == nil {
		return ""
	}
	return *v.Resource
}

// StringOr returns the string slot, or fallback when unset.
func (v Value) StringOr(fallback string) string {
	if v.String == nil {
		return fallback
	}
	return *v.String
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func eqSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
