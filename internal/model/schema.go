package model

// Section is a named presentation grouping of schema fields.
type Section struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	IsSystem bool     `json:"is_system"`
	Position int      `json:"position"`
	Fields   []*Field `json:"fields"`
}

// Schema is an account's ordered, sectioned set of Fields for one resource
// type. Sections exist for presentation; AllFields is the canonical flattened
// list used by storage and querying.
type Schema struct {
	AccountID    string       `json:"account_id"`
	ResourceType ResourceType `json:"resource_type"`
	Sections     []*Section   `json:"sections"`
	AllFields    []*Field     `json:"all_fields"`
}

// Flatten rebuilds AllFields from the sections, preserving declared order.
// A field id appearing in more than one section is kept once, at its first
// position.
func (s *Schema) Flatten() {
	seen := make(map[string]struct{})
	s.AllFields = s.AllFields[:0]
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if _, ok := seen[f.ID]; ok {
				continue
			}
			seen[f.ID] = struct{}{}
			s.AllFields = append(s.AllFields, f)
		}
	}
}

// SelectField resolves a field reference by id, template id, or name.
// Names are unique per account, so every resolution path yields at most one
// deterministic match. Returns a *FieldNotFoundError when nothing matches.
func (s *Schema) SelectField(ref FieldRef) (*Field, error) {
	for _, f := range s.AllFields {
		if ref.ID != "" && f.ID == ref.ID {
			return f, nil
		}
		if ref.TemplateID != "" && f.TemplateID == ref.TemplateID {
			return f, nil
		}
		if ref.Name != "" && f.Name == ref.Name {
			return f, nil
		}
	}
	return nil, &FieldNotFoundError{Ref: ref.String(), ResourceType: s.ResourceType}
}

// FieldByTemplate returns the schema field with the given template id, or nil
// when the schema does not carry it. Effects rules probe with this and skip
// when the field is absent.
func (s *Schema) FieldByTemplate(templateID string) *Field {
	for _, f := range s.AllFields {
		if f.TemplateID == templateID {
			return f
		}
	}
	return nil
}
