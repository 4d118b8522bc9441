// internal/client/repository_test.go
//
// Unit-tests for client query helpers using sqlmock.
//
// Run: go test ./internal/client -v

package client

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var clientCols = []string{
	"id", "name", "owner_email", "trello_config", "trello_board_id",
	"trello_board_url", "trello_lists", "created_at",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func TestByID(t *testing.T) {
	db, mock := newMock(t)

	cfg := `{"api_key":"k","token":"t","board_id":"B1","priority_labels":{"urgent":"label123"}}`
	lists := `[{"name":"Welcome & Setup","id":"L0"},{"name":"In Progress","id":"L3"}]`
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients c WHERE c.id = ?")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(clientCols).
			AddRow(42, "Acme", "owner@acme.test", []byte(cfg), "B1", "https://trello.com/b/B1", []byte(lists), time.Now()))

	got, err := ByID(context.Background(), db, 42)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.TrelloConfig.BoardID != "B1" || got.TrelloConfig.PriorityLabels["urgent"] != "label123" {
		t.Fatalf("config not decoded: %#v", got.TrelloConfig)
	}
	if id, ok := got.TrelloLists.ByName("In Progress"); !ok || id != "L3" {
		t.Fatalf("lists not decoded: %#v", got.TrelloLists)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM clients").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(clientCols))

	if _, err := ByID(context.Background(), db, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestByID_NullJSONColumns(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM clients").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(clientCols).
			AddRow(3, "Bare", "", nil, "", "", nil, time.Now()))

	got, err := ByID(context.Background(), db, 3)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if missing := got.TrelloConfig.Missing(); len(missing) != 3 {
		t.Fatalf("missing = %v, want all three", missing)
	}
	if len(got.TrelloLists) != 0 {
		t.Fatalf("lists = %v, want empty", got.TrelloLists)
	}
}

func TestSaveBoard(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clients SET trello_board_id = ?")).
		WithArgs("B9", "https://trello.com/b/B9", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b := Board{ID: "B9", URL: "https://trello.com/b/B9", Lists: BoardLists{{Name: "In Progress", ID: "L3"}}}
	if err := SaveBoard(context.Background(), db, 42, b, TrelloConfig{BoardID: "B9", ListID: "L3"}); err != nil {
		t.Fatalf("SaveBoard: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTrelloConfig_TargetListID(t *testing.T) {
	if got := (TrelloConfig{ListID: "A", DefaultListID: "B"}).TargetListID(); got != "A" {
		t.Fatalf("got %q, want A", got)
	}
	if got := (TrelloConfig{DefaultListID: "B"}).TargetListID(); got != "B" {
		t.Fatalf("got %q, want B", got)
	}
}
