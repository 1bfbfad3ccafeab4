// Package query compiles the predicate/sort DSL against a per-account Schema
// into a parameterized SQL query over per-field projections.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/fernwood/procure/internal/model"
)

// Op is the closed operator set of the predicate DSL. Every switch over Op
// must enumerate all cases; an unknown operator is a compilation error, never
// a silent fallthrough.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpAnd Op = "and"
)

// Where is one predicate node:
//
//	{"==": [{"var": "Order"}, "res-abc"]}
//	{"!=": [{"var": "Approved"}, true]}
//	{"and": [Where, ...]}
type Where struct {
	Op       Op
	Var      string   // field name, for == and !=
	Literal  any      // bool, float64, string, or nil
	Children []*Where // for "and"
}

// varRef is the {"var": name} operand.
type varRef struct {
	Var string `json:"var"`
}

// UnmarshalJSON decodes the JSON-logic shape. Exactly one operator key is
// required; anything else fails closed.
func (w *Where) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &model.QueryError{Detail: "predicate must be a JSON object"}
	}
	if len(raw) != 1 {
		return &model.QueryError{Detail: fmt.Sprintf("predicate must have exactly one operator, got %d", len(raw))}
	}
	for op, operands := range raw {
		switch Op(op) {
		case OpEq, OpNe:
			var pair []json.RawMessage
			if err := json.Unmarshal(operands, &pair); err != nil || len(pair) != 2 {
				return &model.QueryError{Detail: fmt.Sprintf("%s expects [var, literal]", op)}
			}
			var v varRef
			if err := json.Unmarshal(pair[0], &v); err != nil || v.Var == "" {
				return &model.QueryError{Detail: fmt.Sprintf("%s expects a {\"var\": name} first operand", op)}
			}
			var lit any
			if err := json.Unmarshal(pair[1], &lit); err != nil {
				return &model.QueryError{Detail: fmt.Sprintf("%s has an invalid literal", op)}
			}
			switch lit.(type) {
			case nil, bool, float64, string:
			default:
				return &model.QueryError{Detail: fmt.Sprintf("%s literal must be a scalar", op)}
			}
			w.Op = Op(op)
			w.Var = v.Var
			w.Literal = lit
		case OpAnd:
			var children []*Where
			if err := json.Unmarshal(operands, &children); err != nil {
				return err
			}
			if len(children) == 0 {
				return &model.QueryError{Detail: "and expects at least one operand"}
			}
			w.Op = OpAnd
			w.Children = children
		default:
			return &model.QueryError{Detail: fmt.Sprintf("unknown operator %q", op)}
		}
	}
	return nil
}

// MarshalJSON renders the node back into its JSON-logic shape.
func (w *Where) MarshalJSON() ([]byte, error) {
	switch w.Op {
	case OpEq, OpNe:
		return json.Marshal(map[string][2]any{
			string(w.Op): {varRef{Var: w.Var}, w.Literal},
		})
	case OpAnd:
		return json.Marshal(map[string][]*Where{"and": w.Children})
	default:
		return nil, &model.QueryError{Detail: fmt.Sprintf("unknown operator %q", w.Op)}
	}
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderBy is one {"var": name, "dir": "asc"|"desc"} ordering term.
type OrderBy struct {
	Var string    `json:"var"`
	Dir Direction `json:"dir"`
}

// ParseWhere decodes an optional predicate document. Empty input yields nil
// (no filter).
func ParseWhere(data []byte) (*Where, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var w Where
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ParseOrderBy decodes an optional ordering list. Empty input yields nil
// (default order).
func ParseOrderBy(data []byte) ([]OrderBy, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var terms []OrderBy
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, &model.QueryError{Detail: "order_by must be a list of {var, dir}"}
	}
	for _, t := range terms {
		if t.Var == "" {
			return nil, &model.QueryError{Detail: "order_by term missing var"}
		}
		if t.Dir != Asc && t.Dir != Desc {
			return nil, &model.QueryError{Detail: fmt.Sprintf("order_by dir must be asc or desc, got %q", t.Dir)}
		}
	}
	return terms, nil
}
