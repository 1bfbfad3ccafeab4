package query

import (
	"sort"
	"strings"
	"time"

	"github.com/fernwood/procure/internal/model"
)

// Env supplies the lookups an in-memory evaluation needs beyond the resource
// itself. The postgres path resolves these inside the generated SQL.
type Env struct {
	// ContactName resolves a contact id to its display name (Contact fields
	// project the linked contact's name, not its id).
	ContactName func(id string) string
}

// Matches evaluates the plan's predicate against one resource. Semantics
// mirror the generated SQL: null-safe equality for scalars, containment for
// list-valued fields.
func (p *Plan) Matches(res *model.Resource, env Env) bool {
	if p.Where == nil {
		return true
	}
	return p.matches(p.Where, res, env)
}

func (p *Plan) matches(w *Where, res *model.Resource, env Env) bool {
	switch w.Op {
	case OpAnd:
		for _, child := range w.Children {
			if !p.matches(child, res, env) {
				return false
			}
		}
		return true
	case OpEq, OpNe:
		f, err := p.Schema.SelectField(model.FieldRef{Name: w.Var})
		if err != nil {
			return false
		}
		eq := p.fieldEquals(f, res, w.Literal, env)
		if w.Op == OpNe {
			return !eq
		}
		return eq
	default:
		return false
	}
}

func (p *Plan) fieldEquals(f *model.Field, res *model.Resource, lit any, env Env) bool {
	proj := projectedValue(f, res, env)
	switch f.Type {
	case model.FieldTypeMultiSelect, model.FieldTypeFiles:
		list, _ := proj.([]string)
		if lit == nil {
			return list == nil
		}
		want, _ := lit.(string)
		for _, id := range list {
			if id == want {
				return true
			}
		}
		return false
	case model.FieldTypeDate:
		if proj == nil || lit == nil {
			return proj == nil && lit == nil
		}
		return proj.(time.Time).Equal(lit.(time.Time))
	case model.FieldTypeText, model.FieldTypeTextarea, model.FieldTypeNumber,
		model.FieldTypeMoney, model.FieldTypeCheckbox, model.FieldTypeSelect,
		model.FieldTypeUser, model.FieldTypeResource, model.FieldTypeFile,
		model.FieldTypeContact:
		return proj == lit
	default:
		return false
	}
}

// projectedValue mirrors the SQL projection's column choice for one field.
func projectedValue(f *model.Field, res *model.Resource, env Env) any {
	rf := res.FieldByID(f.ID)
	if rf == nil {
		return nil
	}
	v := rf.Value
	switch f.Type {
	case model.FieldTypeCheckbox:
		if v.Boolean == nil {
			return nil
		}
		return *v.Boolean
	case model.FieldTypeDate:
		if v.Date == nil {
			return nil
		}
		return *v.Date
	case model.FieldTypeNumber, model.FieldTypeMoney:
		if v.Number == nil {
			return nil
		}
		return *v.Number
	case model.FieldTypeText, model.FieldTypeTextarea:
		if v.String == nil {
			return nil
		}
		return *v.String
	case model.FieldTypeSelect:
		if v.Option == nil {
			return nil
		}
		return *v.Option
	case model.FieldTypeUser:
		if v.User == nil {
			return nil
		}
		return *v.User
	case model.FieldTypeResource:
		if v.Resource == nil {
			return nil
		}
		return *v.Resource
	case model.FieldTypeFile:
		if v.File == nil {
			return nil
		}
		return *v.File
	case model.FieldTypeMultiSelect:
		if v.Options == nil {
			return nil
		}
		return append([]string(nil), v.Options...)
	case model.FieldTypeFiles:
		if v.Files == nil {
			return nil
		}
		return append([]string(nil), v.Files...)
	case model.FieldTypeContact:
		if v.Contact == nil {
			return nil
		}
		if env.ContactName == nil {
			return nil
		}
		return env.ContactName(*v.Contact)
	default:
		return nil
	}
}

// Sort orders resources per the plan's ordering terms with the stable
// descending-key tiebreak, matching the generated SQL's ORDER BY.
func (p *Plan) Sort(resources []*model.Resource, env Env) {
	sort.SliceStable(resources, func(i, j int) bool {
		for _, term := range p.OrderBy {
			f, err := p.Schema.SelectField(model.FieldRef{Name: term.Var})
			if err != nil {
				continue
			}
			a := projectedValue(f, resources[i], env)
			b := projectedValue(f, resources[j], env)
			c := compareProjected(a, b)
			if c == 0 {
				continue
			}
			if term.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return resources[i].Key > resources[j].Key
	})
}

// compareProjected orders scalar projections; nil sorts last either way,
// matching postgres NULLS LAST default for ASC.
func compareProjected(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		}
		return 0
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	}
	return 0
}
