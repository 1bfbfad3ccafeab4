package query

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/fernwood/procure/internal/model"
)

// Plan is a compiled query: the predicate and ordering resolved against a
// Schema, ready to be rendered as SQL (postgres store) or evaluated in memory
// (storetest). Field resolution and literal typing have already happened;
// rendering can no longer fail closed, because compilation did.
type Plan struct {
	Schema  *model.Schema
	Where   *Where
	OrderBy []OrderBy

	// fields referenced by the predicate or ordering, keyed by field id.
	projected map[string]*model.Field
}

// Compile resolves every field name in where/orderBy against the schema and
// type-checks every literal. A name that does not resolve fails closed with a
// QueryError; nothing unresolved ever reaches SQL rendering.
func Compile(schema *model.Schema, where *Where, orderBy []OrderBy) (*Plan, error) {
	p := &Plan{
		Schema:    schema,
		Where:     where,
		OrderBy:   orderBy,
		projected: make(map[string]*model.Field),
	}
	if where != nil {
		if err := p.checkWhere(where); err != nil {
			return nil, err
		}
	}
	for _, term := range orderBy {
		f, err := p.resolve(term.Var)
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case model.FieldTypeMultiSelect, model.FieldTypeFiles:
			return nil, &model.QueryError{Detail: fmt.Sprintf("cannot order by list-valued field %q", term.Var)}
		case model.FieldTypeText, model.FieldTypeTextarea, model.FieldTypeNumber,
			model.FieldTypeMoney, model.FieldTypeCheckbox, model.FieldTypeDate,
			model.FieldTypeSelect, model.FieldTypeUser, model.FieldTypeResource,
			model.FieldTypeFile, model.FieldTypeContact:
		default:
			return nil, &model.QueryError{Detail: fmt.Sprintf("field %q has unknown type %q", term.Var, f.Type)}
		}
	}
	return p, nil
}

func (p *Plan) checkWhere(w *Where) error {
	switch w.Op {
	case OpEq, OpNe:
		f, err := p.resolve(w.Var)
		if err != nil {
			return err
		}
		lit, err := convertLiteral(f, w.Literal)
		if err != nil {
			return err
		}
		w.Literal = lit
		return nil
	case OpAnd:
		for _, child := range w.Children {
			if err := p.checkWhere(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return &model.QueryError{Detail: fmt.Sprintf("unknown operator %q", w.Op)}
	}
}

func (p *Plan) resolve(name string) (*model.Field, error) {
	f, err := p.Schema.SelectField(model.FieldRef{Name: name})
	if err != nil {
		return nil, &model.QueryError{Detail: fmt.Sprintf("unknown field %q", name)}
	}
	p.projected[f.ID] = f
	return f, nil
}

// convertLiteral coerces a decoded JSON literal into the Go type the field's
// projected column compares against. nil stays nil (matches unset values).
func convertLiteral(f *model.Field, lit any) (any, error) {
	if lit == nil {
		return nil, nil
	}
	mismatch := func(want string) error {
		return &model.QueryError{Detail: fmt.Sprintf("field %q expects a %s literal", f.Name, want)}
	}
	switch f.Type {
	case model.FieldTypeText, model.FieldTypeTextarea, model.FieldTypeSelect,
		model.FieldTypeMultiSelect, model.FieldTypeUser, model.FieldTypeResource,
		model.FieldTypeFile, model.FieldTypeFiles, model.FieldTypeContact:
		s, ok := lit.(string)
		if !ok {
			return nil, mismatch("string")
		}
		return s, nil
	case model.FieldTypeNumber, model.FieldTypeMoney:
		n, ok := lit.(float64)
		if !ok {
			return nil, mismatch("number")
		}
		return n, nil
	case model.FieldTypeCheckbox:
		b, ok := lit.(bool)
		if !ok {
			return nil, mismatch("boolean")
		}
		return b, nil
	case model.FieldTypeDate:
		s, ok := lit.(string)
		if !ok {
			return nil, mismatch("date string")
		}
		t, err := parseDate(s)
		if err != nil {
			return nil, mismatch("date string")
		}
		return t, nil
	default:
		return nil, &model.QueryError{Detail: fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type)}
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// columnAlias derives a collision-safe, identifier-legal alias for a field's
// projected column. Field ids contain '-', which is not legal in a bare SQL
// identifier, so the id is hex-encoded.
func columnAlias(fieldID string) string {
	return "f_" + hex.EncodeToString([]byte(fieldID))
}

// SQL renders the plan as one parameterized query returning matching resource
// ids in order. Every literal and field id travels as a positional argument;
// the only text spliced into the query is the hex alias encoding.
func (p *Plan) SQL(accountID string, resourceType model.ResourceType) (string, []any, error) {
	var args []any
	nextArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	inner := []string{"r.id AS id", "r.key AS key"}
	// Stable projection order: schema order, filtered to referenced fields.
	for _, f := range p.Schema.AllFields {
		if _, ok := p.projected[f.ID]; !ok {
			continue
		}
		proj, err := projection(f, nextArg)
		if err != nil {
			return "", nil, err
		}
		inner = append(inner, proj+" AS "+columnAlias(f.ID))
	}

	sql := "SELECT id FROM (\n\tSELECT " + strings.Join(inner, ",\n\t\t") +
		"\n\tFROM resources r\n\tWHERE r.account_id = " + nextArg(accountID) +
		" AND r.type = " + nextArg(string(resourceType)) + "\n) p"

	if p.Where != nil {
		pred, err := p.predicate(p.Where, nextArg)
		if err != nil {
			return "", nil, err
		}
		sql += "\nWHERE " + pred
	}

	var orderTerms []string
	for _, term := range p.OrderBy {
		f, _ := p.Schema.SelectField(model.FieldRef{Name: term.Var})
		dir := "ASC"
		if term.Dir == Desc {
			dir = "DESC"
		}
		orderTerms = append(orderTerms, columnAlias(f.ID)+" "+dir)
	}
	// key DESC is the stable default and the final tiebreak.
	orderTerms = append(orderTerms, "key DESC")
	sql += "\nORDER BY " + strings.Join(orderTerms, ", ")

	return sql, args, nil
}

// projection returns the correlated subquery pulling one field's value
// column. The column choice is type-dependent; the switch is exhaustive over
// FieldType.
func projection(f *model.Field, nextArg func(any) string) (string, error) {
	scalar := func(col string) string {
		return fmt.Sprintf("(SELECT rf.%s FROM resource_fields rf WHERE rf.resource_id = r.id AND rf.field_id = %s)",
			col, nextArg(f.ID))
	}
	switch f.Type {
	case model.FieldTypeCheckbox:
		return scalar("boolean_value"), nil
	case model.FieldTypeDate:
		return scalar("date_value"), nil
	case model.FieldTypeNumber, model.FieldTypeMoney:
		return scalar("number_value"), nil
	case model.FieldTypeText, model.FieldTypeTextarea:
		return scalar("string_value"), nil
	case model.FieldTypeSelect:
		return scalar("option_id"), nil
	case model.FieldTypeUser:
		return scalar("user_id"), nil
	case model.FieldTypeResource:
		return scalar("ref_resource_id"), nil
	case model.FieldTypeFile:
		return scalar("file_id"), nil
	case model.FieldTypeMultiSelect:
		return fmt.Sprintf("(SELECT ARRAY_AGG(ro.option_id ORDER BY ro.position)"+
			" FROM resource_fields rf JOIN resource_field_options ro ON ro.resource_field_id = rf.id"+
			" WHERE rf.resource_id = r.id AND rf.field_id = %s)", nextArg(f.ID)), nil
	case model.FieldTypeFiles:
		return fmt.Sprintf("(SELECT ARRAY_AGG(rff.file_id ORDER BY rff.position)"+
			" FROM resource_fields rf JOIN resource_field_files rff ON rff.resource_field_id = rf.id"+
			" WHERE rf.resource_id = r.id AND rf.field_id = %s)", nextArg(f.ID)), nil
	case model.FieldTypeContact:
		return fmt.Sprintf("(SELECT c.name FROM resource_fields rf JOIN contacts c ON c.id = rf.contact_id"+
			" WHERE rf.resource_id = r.id AND rf.field_id = %s)", nextArg(f.ID)), nil
	default:
		return "", &model.QueryError{Detail: fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type)}
	}
}

// predicate renders one Where node against the projected columns.
func (p *Plan) predicate(w *Where, nextArg func(any) string) (string, error) {
	switch w.Op {
	case OpEq, OpNe:
		f, err := p.Schema.SelectField(model.FieldRef{Name: w.Var})
		if err != nil {
			return "", &model.QueryError{Detail: fmt.Sprintf("unknown field %q", w.Var)}
		}
		alias := columnAlias(f.ID)
		listTyped := f.Type == model.FieldTypeMultiSelect || f.Type == model.FieldTypeFiles
		if listTyped {
			// == on a list-valued field means "contains"; != means "does not
			// contain" (an unset list contains nothing).
			if w.Literal == nil {
				if w.Op == OpEq {
					return alias + " IS NULL", nil
				}
				return alias + " IS NOT NULL", nil
			}
			contains := fmt.Sprintf("COALESCE(%s = ANY(%s), FALSE)", nextArg(w.Literal), alias)
			if w.Op == OpNe {
				return "NOT " + contains, nil
			}
			return contains, nil
		}
		// IS [NOT] DISTINCT FROM gives null-safe equality: unset values
		// compare equal to a null literal and unequal to everything else.
		if w.Op == OpEq {
			return alias + " IS NOT DISTINCT FROM " + nextArg(w.Literal), nil
		}
		return alias + " IS DISTINCT FROM " + nextArg(w.Literal), nil
	case OpAnd:
		parts := make([]string, 0, len(w.Children))
		for _, child := range w.Children {
			part, err := p.predicate(child, nextArg)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	default:
		return "", &model.QueryError{Detail: fmt.Sprintf("unknown operator %q", w.Op)}
	}
}
