package activity

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/juju/clock/testclock"

	"github.com/keefcreative/designworks/internal/auth"
)

func TestLog_WritesRow(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs (actor_id, entity_type, entity_id, action, details, created_at)")).
		WithArgs(int64(7), EntityDesignRequest, int64(11), "trello_card_created", []byte(`{"card_id":"c1"}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	l := &Logger{DB: db, Clock: testclock.NewClock(now)}
	ctx := auth.WithActor(context.Background(), auth.Actor{ID: 7, Role: auth.RoleStaff})
	l.Log(ctx, EntityDesignRequest, 11, "trello_card_created", Details{"card_id": "c1"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestLog_SwallowsErrors(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectExec("INSERT INTO activity_logs").
		WithArgs(nil, EntityClient, int64(3), "trello_board_created", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("table is full"))

	l := &Logger{DB: db}
	l.Log(context.Background(), EntityClient, 3, "trello_board_created", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestLog_NilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Log(context.Background(), EntityClient, 1, "noop", nil)
}
