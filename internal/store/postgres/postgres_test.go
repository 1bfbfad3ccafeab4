package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// resourceFieldColumns is the column list returned by the hydration query.
var resourceFieldColumns = []string{
	"id", "resource_id", "field_id", "type",
	"boolean_value", "contact_id", "date_value", "number_value",
	"option_id", "string_value", "user_id", "file_id", "ref_resource_id",
	"linked_name",
}

var costColumns = []string{"id", "resource_id", "name", "is_percentage", "value", "position"}

func TestScanHelpers(t *testing.T) {
	if nullString("") != nil {
		t.Error("nullString(\"\") should be nil")
	}
	if nullString("hello") != "hello" {
		t.Errorf("nullString(\"hello\") = %v", nullString("hello"))
	}

	if jsonbValue(nil) != nil {
		t.Error("jsonbValue(nil) should be nil")
	}
	v := model.NumberValue(42)
	data, ok := jsonbValue(&v).([]byte)
	if !ok || string(data) != `{"number":42}` {
		t.Errorf("jsonbValue(42) = %s", data)
	}
}

func TestQueryCreateResource(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	res := &model.Resource{
		ID:        "res-abc",
		AccountID: "acct-1",
		Type:      model.TypeBill,
		Fields: []*model.ResourceField{
			{ID: "rf-one", ResourceID: "res-abc", FieldID: "fld-amount", Value: model.NumberValue(12.5)},
		},
	}

	mock.ExpectQuery("INSERT INTO resource_keys").
		WithArgs("acct-1", "bill").
		WillReturnRows(sqlmock.NewRows([]string{"last_key"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO resources").
		WithArgs("res-abc", "acct-1", "bill", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO resource_fields").
		WithArgs("rf-one", "res-abc", "fld-amount", nil, nil, nil, 12.5, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM resource_field_options").
		WithArgs("rf-one").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM resource_field_files").
		WithArgs("rf-one").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryCreateResource(context.Background(), db, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Key != 7 {
		t.Fatalf("expected key 7, got %d", res.Key)
	}
	if res.CreatedAt.IsZero() || res.UpdatedAt.IsZero() {
		t.Fatal("timestamps not populated")
	}
}

func TestQueryGetResource(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "res-abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "type", "key", "created_at", "updated_at"}).
			AddRow("res-abc", "acct-1", "line", int64(3), now, now))
	mock.ExpectQuery("SELECT rf.id, rf.resource_id, rf.field_id, f.type").
		WithArgs("res-abc", model.TemplateName).
		WillReturnRows(sqlmock.NewRows(resourceFieldColumns).
			AddRow("rf-one", "res-abc", "fld-qty", "number",
				nil, nil, nil, 10.0, nil, nil, nil, nil, nil, nil).
			AddRow("rf-two", "res-abc", "fld-item", "resource",
				nil, nil, nil, nil, nil, nil, nil, nil, "res-item", "Blue Widget"))
	mock.ExpectQuery("SELECT id, resource_id, name, is_percentage, value, position").
		WithArgs("res-abc").
		WillReturnRows(sqlmock.NewRows(costColumns))

	res, err := queryGetResource(context.Background(), db, "acct-1", "res-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Key != 3 || res.Type != model.TypeLine {
		t.Fatalf("got type=%q key=%d", res.Type, res.Key)
	}
	if len(res.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(res.Fields))
	}
	if got := res.Fields[0].Value.NumberOr(0); got != 10 {
		t.Fatalf("expected quantity 10, got %v", got)
	}
	if res.Fields[1].LinkedName != "Blue Widget" {
		t.Fatalf("expected linked name, got %q", res.Fields[1].LinkedName)
	}
}

func TestQueryGetResource_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "nonexistent").
		WillReturnError(sql.ErrNoRows)

	_, err := queryGetResource(context.Background(), db, "acct-1", "nonexistent")
	if !errors.Is(err, model.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestQueryGetResource_ListValues(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "res-abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "type", "key", "created_at", "updated_at"}).
			AddRow("res-abc", "acct-1", "vendor", int64(1), now, now))
	mock.ExpectQuery("SELECT rf.id, rf.resource_id, rf.field_id, f.type").
		WithArgs("res-abc", model.TemplateName).
		WillReturnRows(sqlmock.NewRows(resourceFieldColumns).
			AddRow("rf-tags", "res-abc", "fld-tags", "multi_select",
				nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery("SELECT ro.resource_field_id, ro.option_id").
		WithArgs("res-abc").
		WillReturnRows(sqlmock.NewRows([]string{"resource_field_id", "option_id"}).
			AddRow("rf-tags", "opt-a").
			AddRow("rf-tags", "opt-b"))
	mock.ExpectQuery("SELECT rff.resource_field_id, rff.file_id").
		WithArgs("res-abc").
		WillReturnRows(sqlmock.NewRows([]string{"resource_field_id", "file_id"}))
	mock.ExpectQuery("SELECT id, resource_id, name, is_percentage, value, position").
		WithArgs("res-abc").
		WillReturnRows(sqlmock.NewRows(costColumns).
			AddRow("cst-1", "res-abc", "Shipping", false, 25.0, 0))

	res, err := queryGetResource(context.Background(), db, "acct-1", "res-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags := res.Fields[0].Value.Options
	if len(tags) != 2 || tags[0] != "opt-a" || tags[1] != "opt-b" {
		t.Fatalf("expected [opt-a opt-b], got %v", tags)
	}
	if len(res.Costs) != 1 || res.Costs[0].Name != "Shipping" {
		t.Fatalf("expected shipping cost, got %v", res.Costs)
	}
}

func TestQueryUpsertResourceValue(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id FROM resources WHERE id = \\$1 AND account_id = \\$2").
		WithArgs("res-abc", "acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-abc"))
	mock.ExpectQuery("INSERT INTO resource_fields").
		WithArgs(sqlmock.AnyArg(), "res-abc", "fld-total", nil, nil, nil, 300.0, nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rf-existing"))
	mock.ExpectExec("DELETE FROM resource_field_options").
		WithArgs("rf-existing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM resource_field_files").
		WithArgs("rf-existing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE resources SET updated_at").
		WithArgs("res-abc").WillReturnResult(sqlmock.NewResult(0, 1))

	err := queryUpsertResourceValue(context.Background(), db, "acct-1", "res-abc", "fld-total", model.NumberValue(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryUpsertResourceValue_WrongAccount(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id FROM resources WHERE id = \\$1 AND account_id = \\$2").
		WithArgs("res-abc", "acct-other").
		WillReturnError(sql.ErrNoRows)

	err := queryUpsertResourceValue(context.Background(), db, "acct-other", "res-abc", "fld-total", model.NumberValue(300))
	if !errors.Is(err, model.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestQueryDeleteResource(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "res-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryDeleteResource(context.Background(), db, "acct-1", "res-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteResource_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryDeleteResource(context.Background(), db, "acct-1", "nonexistent")
	if !errors.Is(err, model.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestQueryCreateField_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("INSERT INTO fields").
		WillReturnError(&pq.Error{Code: "23505"})

	field := &model.Field{ID: "fld-dup", Name: "Amount", Type: model.FieldTypeNumber}
	err := queryCreateField(context.Background(), db, "acct-1", field, nil)
	var dup *model.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Name != "Amount" {
		t.Fatalf("expected duplicate name Amount, got %q", dup.Name)
	}
}

func TestQuerySumFieldByLink(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(sf.number_value\\), 0\\)").
		WithArgs("acct-1", "fld-total", "fld-bill", "res-bill").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(125.5))

	sum, err := querySumFieldByLink(context.Background(), db, "acct-1", "fld-total", "fld-bill", "res-bill")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 125.5 {
		t.Fatalf("expected 125.5, got %v", sum)
	}
}

func TestQueryListReferencing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT rf.resource_id").
		WithArgs("acct-1", "fld-bill", "res-bill").
		WillReturnRows(sqlmock.NewRows([]string{"resource_id"}).
			AddRow("res-line1").AddRow("res-line2"))

	ids, err := queryListReferencing(context.Background(), db, "acct-1", "fld-bill", "res-bill")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "res-line1" || ids[1] != "res-line2" {
		t.Fatalf("got %v", ids)
	}
}

func TestQueryGetContactName(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT name FROM contacts WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "ct-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Acme Supply"))

	name, err := queryGetContactName(context.Background(), db, "acct-1", "ct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Acme Supply" {
		t.Fatalf("expected Acme Supply, got %q", name)
	}
}

func TestRunInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	db2 := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM resources WHERE account_id = \\$1 AND id = \\$2").
		WithArgs("acct-1", "res-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db2.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.DeleteResource(context.Background(), "acct-1", "res-abc")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	db2 := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	err := db2.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected boom, got %v", err)
	}
}
