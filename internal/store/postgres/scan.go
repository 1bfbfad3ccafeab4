package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fernwood/procure/internal/model"
)

// scannable abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullString maps "" to NULL for nullable text columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonbValue marshals a default value for the jsonb column, or NULL when
// unset.
func jsonbValue(v *model.Value) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func scanField(row scannable) (*model.Field, error) {
	var f model.Field
	var templateID, description, resourceType sql.NullString
	var defaultValue []byte
	err := row.Scan(
		&f.ID,
		&f.AccountID,
		&templateID,
		&f.Name,
		&description,
		&f.Type,
		&resourceType,
		&defaultValue,
		&f.IsRequired,
		&f.DefaultToToday,
		&f.IsSystem,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TemplateID = templateID.String
	f.Description = description.String
	f.ResourceType = model.ResourceType(resourceType.String)
	if len(defaultValue) > 0 {
		var v model.Value
		if err := json.Unmarshal(defaultValue, &v); err != nil {
			return nil, fmt.Errorf("decode default value for field %s: %w", f.ID, err)
		}
		f.DefaultValue = &v
	}
	return &f, nil
}

func scanFields(rows *sql.Rows) ([]*model.Field, error) {
	var fields []*model.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// scanSectionField scans a schema field row that is prefixed with its section
// id.
func scanSectionField(rows *sql.Rows, sectionID *string) (*model.Field, error) {
	var f model.Field
	var templateID, description, resourceType sql.NullString
	var defaultValue []byte
	err := rows.Scan(
		sectionID,
		&f.ID,
		&f.AccountID,
		&templateID,
		&f.Name,
		&description,
		&f.Type,
		&resourceType,
		&defaultValue,
		&f.IsRequired,
		&f.DefaultToToday,
		&f.IsSystem,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TemplateID = templateID.String
	f.Description = description.String
	f.ResourceType = model.ResourceType(resourceType.String)
	if len(defaultValue) > 0 {
		var v model.Value
		if err := json.Unmarshal(defaultValue, &v); err != nil {
			return nil, fmt.Errorf("decode default value for field %s: %w", f.ID, err)
		}
		f.DefaultValue = &v
	}
	return &f, nil
}

func scanResource(row scannable) (*model.Resource, error) {
	var r model.Resource
	err := row.Scan(
		&r.ID,
		&r.AccountID,
		&r.Type,
		&r.Key,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scanResourceField reads one wide resource_fields row. Only the column
// matching the field's type is expected to be non-NULL, but all slots are
// scanned so a stray value never panics.
func scanResourceField(rows *sql.Rows) (*model.ResourceField, model.FieldType, error) {
	var rf model.ResourceField
	var typ model.FieldType
	var linkedName sql.NullString
	err := rows.Scan(
		&rf.ID,
		&rf.ResourceID,
		&rf.FieldID,
		&typ,
		&rf.Value.Boolean,
		&rf.Value.Contact,
		&rf.Value.Date,
		&rf.Value.Number,
		&rf.Value.Option,
		&rf.Value.String,
		&rf.Value.User,
		&rf.Value.File,
		&rf.Value.Resource,
		&linkedName,
	)
	if err != nil {
		return nil, "", err
	}
	rf.LinkedName = linkedName.String
	return &rf, typ, nil
}

func scanCosts(rows *sql.Rows) ([]*model.Cost, error) {
	var costs []*model.Cost
	for rows.Next() {
		var c model.Cost
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.Name, &c.IsPercentage, &c.Value, &c.Position); err != nil {
			return nil, err
		}
		costs = append(costs, &c)
	}
	return costs, rows.Err()
}
