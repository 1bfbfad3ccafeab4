package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fernwood/procure/internal/model"
)

// parseSetFlags converts --set "Field=value" pairs into typed field inputs
// using the schema to coerce each value. An empty value clears the field.
func parseSetFlags(sch *model.Schema, pairs []string) ([]model.FieldInput, error) {
	inputs := make([]model.FieldInput, 0, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected Field=value", p)
		}
		name = strings.TrimSpace(name)

		field := fieldByName(sch, name)
		if field == nil {
			return nil, fmt.Errorf("unknown field %q", name)
		}

		value, err := coerceValue(field, strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, model.FieldInput{
			Field: model.FieldRef{ID: field.ID},
			Value: value,
		})
	}
	return inputs, nil
}

func fieldByName(sch *model.Schema, name string) *model.Field {
	for _, f := range sch.AllFields {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// coerceValue turns CLI text into the typed value a field expects. Select
// values may be given as option labels or option ids; multi-valued fields
// take comma-separated lists.
func coerceValue(f *model.Field, raw string) (model.Value, error) {
	if raw == "" {
		return model.Value{}, nil
	}
	switch f.Type {
	case model.FieldTypeText, model.FieldTypeTextarea:
		return model.StringValue(raw), nil
	case model.FieldTypeNumber, model.FieldTypeMoney:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Value{}, fmt.Errorf("field %q: %q is not a number", f.Name, raw)
		}
		return model.NumberValue(n), nil
	case model.FieldTypeCheckbox:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return model.Value{}, fmt.Errorf("field %q: %q is not a boolean", f.Name, raw)
		}
		return model.BooleanValue(b), nil
	case model.FieldTypeDate:
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return model.Value{}, fmt.Errorf("field %q: %q is not a date (want YYYY-MM-DD)", f.Name, raw)
		}
		return model.DateValue(t), nil
	case model.FieldTypeSelect:
		id, err := optionID(f, raw)
		if err != nil {
			return model.Value{}, err
		}
		return model.OptionValue(id), nil
	case model.FieldTypeMultiSelect:
		var ids []string
		for _, part := range strings.Split(raw, ",") {
			id, err := optionID(f, strings.TrimSpace(part))
			if err != nil {
				return model.Value{}, err
			}
			ids = append(ids, id)
		}
		return model.OptionsValue(ids), nil
	case model.FieldTypeUser:
		return model.UserValue(raw), nil
	case model.FieldTypeResource:
		return model.ResourceValue(raw), nil
	case model.FieldTypeFile:
		return model.FileValue(raw), nil
	case model.FieldTypeFiles:
		parts := strings.Split(raw, ",")
		ids := make([]string, 0, len(parts))
		for _, part := range parts {
			ids = append(ids, strings.TrimSpace(part))
		}
		return model.FilesValue(ids), nil
	case model.FieldTypeContact:
		return model.ContactValue(raw), nil
	}
	return model.Value{}, fmt.Errorf("field %q: unsupported type %s", f.Name, f.Type)
}

// optionID resolves an option by label (case-insensitive) or by id.
func optionID(f *model.Field, s string) (string, error) {
	for i := range f.Options {
		if strings.EqualFold(f.Options[i].Label, s) || f.Options[i].ID == s {
			return f.Options[i].ID, nil
		}
	}
	return "", fmt.Errorf("field %q: no option %q", f.Name, s)
}
