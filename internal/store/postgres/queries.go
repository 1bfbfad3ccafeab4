package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fernwood/procure/internal/idgen"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
)

// fieldColumns is the column list used for SELECT statements on the fields table.
const fieldColumns = `id, account_id, template_id, name, description, type, resource_type,
	default_value, is_required, default_to_today, is_system, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapUniqueViolation converts a postgres unique violation into the domain's
// user-correctable duplicate error.
func mapUniqueViolation(err error, kind, name string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &model.DuplicateError{Kind: kind, Name: name}
	}
	return err
}

// --- Fields ---

func queryCreateField(ctx context.Context, db executor, accountID string, f *model.Field, resourceTypes []model.ResourceType) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO fields (
			id, account_id, template_id, name, description, type, resource_type,
			default_value, is_required, is_system, default_to_today
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		f.ID,
		accountID,
		nullString(f.TemplateID),
		f.Name,
		nullString(f.Description),
		string(f.Type),
		nullString(string(f.ResourceType)),
		jsonbValue(f.DefaultValue),
		f.IsRequired,
		f.IsSystem,
		f.DefaultToToday,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err, "field", f.Name)
	}
	f.AccountID = accountID

	if err := insertOptions(ctx, db, f.ID, f.Options); err != nil {
		return err
	}

	for _, rt := range resourceTypes {
		if err := attachToCustomSection(ctx, db, accountID, rt, f.ID); err != nil {
			return err
		}
	}
	return nil
}

func insertOptions(ctx context.Context, db executor, fieldID string, options []model.Option) error {
	for i, opt := range options {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO field_options (id, field_id, label, position)
			VALUES ($1, $2, $3, $4)`,
			opt.ID, fieldID, opt.Label, i,
		); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	return nil
}

// attachToCustomSection appends a field to the account's "Custom" section for
// the given resource type, creating the section on first use.
func attachToCustomSection(ctx context.Context, db executor, accountID string, rt model.ResourceType, fieldID string) error {
	sectionID, err := idgen.Generate(idgen.PrefixSection)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO schema_sections (id, account_id, resource_type, name, is_system, position)
		VALUES ($1, $2, $3, 'Custom', FALSE, 1000)
		ON CONFLICT (account_id, resource_type, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		sectionID, accountID, string(rt),
	).Scan(&sectionID)
	if err != nil {
		return fmt.Errorf("upsert custom section: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO schema_section_fields (section_id, field_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM schema_section_fields WHERE section_id = $1`,
		sectionID, fieldID,
	)
	if err != nil {
		return fmt.Errorf("attach field to section: %w", err)
	}
	return nil
}

func queryGetField(ctx context.Context, db executor, accountID, id string) (*model.Field, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE account_id = $1 AND id = $2`,
		accountID, id)
	f, err := scanField(row)
	if err == sql.ErrNoRows {
		return nil, &model.FieldNotFoundError{Ref: id}
	}
	if err != nil {
		return nil, err
	}
	if err := loadOptions(ctx, db, []*model.Field{f}); err != nil {
		return nil, err
	}
	return f, nil
}

func queryListFields(ctx context.Context, db executor, accountID string) ([]*model.Field, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+fieldColumns+` FROM fields WHERE account_id = $1 ORDER BY created_at, id`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields, err := scanFields(rows)
	if err != nil {
		return nil, err
	}
	if err := loadOptions(ctx, db, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// loadOptions populates Options for every Select and MultiSelect field in one
// query.
func loadOptions(ctx context.Context, db executor, fields []*model.Field) error {
	byID := make(map[string]*model.Field, len(fields))
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Type.HasOptions() {
			continue
		}
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT field_id, id, label, position
		FROM field_options
		WHERE field_id = ANY($1)
		ORDER BY position, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fieldID string
		var opt model.Option
		if err := rows.Scan(&fieldID, &opt.ID, &opt.Label, &opt.Position); err != nil {
			return err
		}
		if f := byID[fieldID]; f != nil {
			f.Options = append(f.Options, opt)
		}
	}
	return rows.Err()
}

func queryUpdateField(ctx context.Context, db executor, accountID string, f *model.Field) error {
	err := db.QueryRowContext(ctx, `
		UPDATE fields SET
			name = $3,
			description = $4,
			default_value = $5,
			is_required = $6,
			updated_at = NOW()
		WHERE account_id = $1 AND id = $2
		RETURNING updated_at`,
		accountID,
		f.ID,
		f.Name,
		nullString(f.Description),
		jsonbValue(f.DefaultValue),
		f.IsRequired,
	).Scan(&f.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.FieldNotFoundError{Ref: f.ID}
	}
	if err != nil {
		return mapUniqueViolation(err, "field", f.Name)
	}

	// Options are replaced as one batch: the service has already applied the
	// add/update/remove operations to f.Options.
	if f.Type.HasOptions() {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM field_options WHERE field_id = $1`, f.ID); err != nil {
			return fmt.Errorf("clear options: %w", err)
		}
		if err := insertOptions(ctx, db, f.ID, f.Options); err != nil {
			return err
		}
	}
	return nil
}

func queryDeleteField(ctx context.Context, db executor, accountID, id string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM fields WHERE account_id = $1 AND id = $2`, accountID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &model.FieldNotFoundError{Ref: id}
	}
	return nil
}

// --- Schemas ---

func queryGetSchema(ctx context.Context, db executor, accountID string, rt model.ResourceType) (*model.Schema, error) {
	schema := &model.Schema{AccountID: accountID, ResourceType: rt}

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, is_system, position
		FROM schema_sections
		WHERE account_id = $1 AND resource_type = $2
		ORDER BY position, name`,
		accountID, string(rt))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make(map[string]*model.Section)
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.IsSystem, &sec.Position); err != nil {
			return nil, err
		}
		sections[sec.ID] = &sec
		schema.Sections = append(schema.Sections, &sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fieldRows, err := db.QueryContext(ctx, `
		SELECT ssf.section_id, f.id, f.account_id, f.template_id, f.name, f.description,
			f.type, f.resource_type, f.default_value, f.is_required, f.default_to_today,
			f.is_system, f.created_at, f.updated_at
		FROM schema_section_fields ssf
		JOIN schema_sections s ON s.id = ssf.section_id
		JOIN fields f ON f.id = ssf.field_id
		WHERE s.account_id = $1 AND s.resource_type = $2
		ORDER BY s.position, ssf.position`,
		accountID, string(rt))
	if err != nil {
		return nil, err
	}
	defer fieldRows.Close()

	var all []*model.Field
	for fieldRows.Next() {
		var sectionID string
		f, err := scanSectionField(fieldRows, &sectionID)
		if err != nil {
			return nil, err
		}
		if sec := sections[sectionID]; sec != nil {
			sec.Fields = append(sec.Fields, f)
		}
		all = append(all, f)
	}
	if err := fieldRows.Err(); err != nil {
		return nil, err
	}

	if err := loadOptions(ctx, db, all); err != nil {
		return nil, err
	}

	schema.Flatten()
	return schema, nil
}

func queryCreateSection(ctx context.Context, db executor, accountID string, rt model.ResourceType, sec *model.Section) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO schema_sections (id, account_id, resource_type, name, is_system, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sec.ID, accountID, string(rt), sec.Name, sec.IsSystem, sec.Position,
	)
	if err != nil {
		return mapUniqueViolation(err, "section", sec.Name)
	}
	for i, f := range sec.Fields {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO schema_section_fields (section_id, field_id, position)
			VALUES ($1, $2, $3)`,
			sec.ID, f.ID, i,
		); err != nil {
			return fmt.Errorf("attach field to section: %w", err)
		}
	}
	return nil
}

// --- Resources ---

func queryCreateResource(ctx context.Context, db executor, r *model.Resource) error {
	// Bump the per-(account, type) counter. The upsert locks the counter row,
	// serializing concurrent creates; keys are unique and never reused.
	err := db.QueryRowContext(ctx, `
		INSERT INTO resource_keys (account_id, resource_type, last_key)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, resource_type)
		DO UPDATE SET last_key = resource_keys.last_key + 1
		RETURNING last_key`,
		r.AccountID, string(r.Type),
	).Scan(&r.Key)
	if err != nil {
		return fmt.Errorf("assign resource key: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		INSERT INTO resources (id, account_id, type, key)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		r.ID, r.AccountID, string(r.Type), r.Key,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}

	for _, rf := range r.Fields {
		if err := insertResourceField(ctx, db, rf); err != nil {
			return err
		}
	}
	return nil
}

func insertResourceField(ctx context.Context, db executor, rf *model.ResourceField) error {
	v := rf.Value
	_, err := db.ExecContext(ctx, `
		INSERT INTO resource_fields (
			id, resource_id, field_id, boolean_value, contact_id, date_value,
			number_value, option_id, string_value, user_id, file_id, ref_resource_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rf.ID,
		rf.ResourceID,
		rf.FieldID,
		v.Boolean,
		v.Contact,
		v.Date,
		v.Number,
		v.Option,
		v.String,
		v.User,
		v.File,
		v.Resource,
	)
	if err != nil {
		return fmt.Errorf("insert resource field: %w", err)
	}
	return replaceListValues(ctx, db, rf.ID, v)
}

// replaceListValues syncs the junction rows backing MultiSelect and Files
// values.
func replaceListValues(ctx context.Context, db executor, resourceFieldID string, v model.Value) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM resource_field_options WHERE resource_field_id = $1`, resourceFieldID); err != nil {
		return err
	}
	for i, optionID := range v.Options {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO resource_field_options (resource_field_id, option_id, position)
			VALUES ($1, $2, $3)`,
			resourceFieldID, optionID, i); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx,
		`DELETE FROM resource_field_files WHERE resource_field_id = $1`, resourceFieldID); err != nil {
		return err
	}
	for i, fileID := range v.Files {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO resource_field_files (resource_field_id, file_id, position)
			VALUES ($1, $2, $3)`,
			resourceFieldID, fileID, i); err != nil {
			return err
		}
	}
	return nil
}

func queryGetResource(ctx context.Context, db executor, accountID, id string) (*model.Resource, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, account_id, type, key, created_at, updated_at
		FROM resources WHERE account_id = $1 AND id = $2`,
		accountID, id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return hydrateResource(ctx, db, r)
}

func queryGetResourceByKey(ctx context.Context, db executor, accountID string, rt model.ResourceType, key int64) (*model.Resource, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, account_id, type, key, created_at, updated_at
		FROM resources WHERE account_id = $1 AND type = $2 AND key = $3`,
		accountID, string(rt), key)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return hydrateResource(ctx, db, r)
}

// hydrateResource loads the resource's fields (typed values plus linked
// display names), list values, and costs.
func hydrateResource(ctx context.Context, db executor, r *model.Resource) (*model.Resource, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rf.id, rf.resource_id, rf.field_id, f.type,
			rf.boolean_value, rf.contact_id, rf.date_value, rf.number_value,
			rf.option_id, rf.string_value, rf.user_id, rf.file_id, rf.ref_resource_id,
			(SELECT nrf.string_value
				FROM resource_fields nrf
				JOIN fields nf ON nf.id = nrf.field_id
				WHERE nrf.resource_id = rf.ref_resource_id AND nf.template_id = $2) AS linked_name
		FROM resource_fields rf
		JOIN fields f ON f.id = rf.field_id
		WHERE rf.resource_id = $1
		ORDER BY rf.id`,
		r.ID, model.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("load resource fields: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*model.ResourceField)
	listTyped := make(map[string]model.FieldType)
	for rows.Next() {
		rf, typ, err := scanResourceField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource field: %w", err)
		}
		byID[rf.ID] = rf
		if typ == model.FieldTypeMultiSelect || typ == model.FieldTypeFiles {
			listTyped[rf.ID] = typ
		}
		r.Fields = append(r.Fields, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(listTyped) > 0 {
		if err := loadListValues(ctx, db, r.ID, byID, listTyped); err != nil {
			return nil, err
		}
	}

	costs, err := queryListCosts(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}
	r.Costs = costs
	return r, nil
}

func loadListValues(ctx context.Context, db executor, resourceID string, byID map[string]*model.ResourceField, listTyped map[string]model.FieldType) error {
	optRows, err := db.QueryContext(ctx, `
		SELECT ro.resource_field_id, ro.option_id
		FROM resource_field_options ro
		JOIN resource_fields rf ON rf.id = ro.resource_field_id
		WHERE rf.resource_id = $1
		ORDER BY ro.position`,
		resourceID)
	if err != nil {
		return err
	}
	defer optRows.Close()
	for optRows.Next() {
		var rfID, optionID string
		if err := optRows.Scan(&rfID, &optionID); err != nil {
			return err
		}
		if rf := byID[rfID]; rf != nil {
			rf.Value.Options = append(rf.Value.Options, optionID)
		}
	}
	if err := optRows.Err(); err != nil {
		return err
	}

	fileRows, err := db.QueryContext(ctx, `
		SELECT rff.resource_field_id, rff.file_id
		FROM resource_field_files rff
		JOIN resource_fields rf ON rf.id = rff.resource_field_id
		WHERE rf.resource_id = $1
		ORDER BY rff.position`,
		resourceID)
	if err != nil {
		return err
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var rfID, fileID string
		if err := fileRows.Scan(&rfID, &fileID); err != nil {
			return err
		}
		if rf := byID[rfID]; rf != nil {
			rf.Value.Files = append(rf.Value.Files, fileID)
		}
	}
	return fileRows.Err()
}

func querySearchResources(ctx context.Context, db executor, accountID string, rt model.ResourceType, plan *query.Plan) ([]string, error) {
	sqlText, args, err := plan.SQL(accountID, rt)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search resources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryUpsertResourceValue(ctx context.Context, db executor, accountID, resourceID, fieldID string, v model.Value) error {
	// Ownership check keeps one tenant from writing through another's ids.
	var owned string
	err := db.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE id = $1 AND account_id = $2`,
		resourceID, accountID).Scan(&owned)
	if err == sql.ErrNoRows {
		return model.ErrResourceNotFound
	}
	if err != nil {
		return err
	}

	rfID, err := idgen.Generate(idgen.PrefixResourceField)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO resource_fields (
			id, resource_id, field_id, boolean_value, contact_id, date_value,
			number_value, option_id, string_value, user_id, file_id, ref_resource_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (resource_id, field_id) DO UPDATE SET
			boolean_value = EXCLUDED.boolean_value,
			contact_id = EXCLUDED.contact_id,
			date_value = EXCLUDED.date_value,
			number_value = EXCLUDED.number_value,
			option_id = EXCLUDED.option_id,
			string_value = EXCLUDED.string_value,
			user_id = EXCLUDED.user_id,
			file_id = EXCLUDED.file_id,
			ref_resource_id = EXCLUDED.ref_resource_id
		RETURNING id`,
		rfID,
		resourceID,
		fieldID,
		v.Boolean,
		v.Contact,
		v.Date,
		v.Number,
		v.Option,
		v.String,
		v.User,
		v.File,
		v.Resource,
	).Scan(&rfID)
	if err != nil {
		return fmt.Errorf("upsert resource value: %w", err)
	}

	if err := replaceListValues(ctx, db, rfID, v); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`UPDATE resources SET updated_at = NOW() WHERE id = $1`, resourceID)
	return err
}

func queryDeleteResource(ctx context.Context, db executor, accountID, id string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM resources WHERE account_id = $1 AND id = $2`, accountID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrResourceNotFound
	}
	return nil
}

// --- Link traversal ---

func queryListReferencing(ctx context.Context, db executor, accountID, fieldID, resourceID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rf.resource_id
		FROM resource_fields rf
		JOIN resources r ON r.id = rf.resource_id
		WHERE r.account_id = $1 AND rf.field_id = $2 AND rf.ref_resource_id = $3
		ORDER BY r.key`,
		accountID, fieldID, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func querySumFieldByLink(ctx context.Context, db executor, accountID, sumFieldID, linkFieldID, linkedID string) (float64, error) {
	var sum float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sf.number_value), 0)
		FROM resource_fields lf
		JOIN resources r ON r.id = lf.resource_id
		JOIN resource_fields sf ON sf.resource_id = lf.resource_id AND sf.field_id = $2
		WHERE r.account_id = $1 AND lf.field_id = $3 AND lf.ref_resource_id = $4`,
		accountID, sumFieldID, linkFieldID, linkedID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum linked field: %w", err)
	}
	return sum, nil
}

// --- Costs ---

func queryAddCost(ctx context.Context, db executor, accountID string, c *model.Cost) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO costs (id, resource_id, name, is_percentage, value, position)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM resources WHERE id = $2 AND account_id = $7)`,
		c.ID, c.ResourceID, c.Name, c.IsPercentage, c.Value, c.Position, accountID,
	)
	return err
}

func queryDeleteCost(ctx context.Context, db executor, accountID, costID string) error {
	res, err := db.ExecContext(ctx, `
		DELETE FROM costs
		USING resources r
		WHERE costs.id = $1 AND costs.resource_id = r.id AND r.account_id = $2`,
		costID, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrResourceNotFound
	}
	return nil
}

func queryListCosts(ctx context.Context, db executor, resourceID string) ([]*model.Cost, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, resource_id, name, is_percentage, value, position
		FROM costs
		WHERE resource_id = $1
		ORDER BY position, id`,
		resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCosts(rows)
}

// --- Contacts ---

func queryCreateContact(ctx context.Context, db executor, accountID, id, name, email string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (id, account_id, name, email)
		VALUES ($1, $2, $3, $4)`,
		id, accountID, name, nullString(email))
	return err
}

func queryGetContactName(ctx context.Context, db executor, accountID, id string) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM contacts WHERE account_id = $1 AND id = $2`,
		accountID, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", model.ErrResourceNotFound
	}
	return name, err
}
