// internal/designrequest/repository_test.go
//
// Unit-tests for design-request helpers using sqlmock.
//
// Run: go test ./internal/designrequest -v

package designrequest

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var joinedCols = []string{
	"id", "short_id", "client_id", "user_id", "project_name", "request_type",
	"context", "design_needs", "key_message", "size_format", "additional_notes",
	"copy_content", "attachments", "contact_email", "contact_phone", "priority",
	"status", "deadline", "sync_status", "sync_error", "sync_attempts",
	"last_sync_at", "trello_card_id", "trello_card_url", "created_at",
	"client.id", "client.name", "client.owner_email", "client.trello_config",
	"client.trello_board_id", "client.trello_board_url", "client.trello_lists",
	"client.created_at",
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

func TestByIDWithClient(t *testing.T) {
	db, mock := newMock(t)

	deadline := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN clients c ON c.id = dr.client_id WHERE dr.id = ?")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(joinedCols).AddRow(
			11, "DR-0011", 42, 5, "Spring Launch", "social",
			"Brand refresh", "", "", "", "",
			"", []byte(`[{"url":"https://cdn/x.png","name":"x.png","size":100}]`), "a@b.test", "", "urgent",
			"pending", deadline, "pending", "", 0,
			nil, "", "", created,
			42, "Acme", "", []byte(`{"api_key":"k","token":"t","board_id":"B1"}`),
			"", "", nil,
			created,
		))

	req, cl, err := ByIDWithClient(context.Background(), db, 11)
	if err != nil {
		t.Fatalf("ByIDWithClient: %v", err)
	}
	if req.ShortID != "DR-0011" || req.Priority != PriorityUrgent {
		t.Fatalf("unexpected request: %#v", req)
	}
	if len(req.Attachments) != 1 || req.Attachments[0].Name != "x.png" {
		t.Fatalf("attachments not decoded: %#v", req.Attachments)
	}
	if req.Deadline == nil || !req.Deadline.Equal(deadline) {
		t.Fatalf("deadline = %v", req.Deadline)
	}
	if cl.ID != 42 || cl.TrelloConfig.BoardID != "B1" {
		t.Fatalf("unexpected client: %#v", cl)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestByIDWithClient_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM design_requests").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(joinedCols))

	if _, _, err := ByIDWithClient(context.Background(), db, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClaimCreate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * time.Minute)

	q := regexp.QuoteMeta("AND trello_card_id IS NULL AND (sync_claim_token IS NULL OR sync_claimed_at < ?)")
	mock.ExpectExec(q).WithArgs("tok-1", now, int64(11), stale).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("tok-2", now, int64(11), stale).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ClaimCreate(context.Background(), db, 11, "tok-1", now, stale)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}
	ok, err = ClaimCreate(context.Background(), db, 11, "tok-2", now, stale)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v; want false", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestMarkSyncedAndFailed(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("SET sync_status = ?, sync_error = NULL")).
		WithArgs("synced", at, "card-1", "https://trello.com/c/card-1", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("sync_attempts = sync_attempts + 1")).
		WithArgs("failed", "status 401", at, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := MarkSynced(context.Background(), db, 11, Success{CardID: "card-1", CardURL: "https://trello.com/c/card-1", At: at})
	if err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := MarkFailed(context.Background(), db, 11, "status 401", at); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
