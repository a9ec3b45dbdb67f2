package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreateWritesHistory(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.Request{TypeCode: "Purchase", StatusID: "st-draft", Subject: "New monitors", CreatedBy: "u1"}
	entry := &models.RequestHistoryEntry{ActorID: "u1"}
	require.NoError(t, repo.Create(context.Background(), request, entry))

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, int64(1), request.RowVersion)
	assert.Equal(t, request.ID, entry.RequestID)
	assert.Equal(t, "st-draft", entry.StatusID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositorySaveIncrementsRowVersion(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET").
		WithArgs("st-review", "Subject", "", nil, nil, nil, sqlmock.AnyArg(), "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO request_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.Request{ID: "r1", StatusID: "st-review", Subject: "Subject", RowVersion: 3, UpdatedAt: time.Now().UTC()}
	action := "Submit"
	entry := &models.RequestHistoryEntry{ActionCode: &action, ActorID: "u1", StatusID: "st-review"}
	require.NoError(t, repo.Save(context.Background(), request, entry))

	assert.Equal(t, int64(4), request.RowVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositorySaveStaleVersionConflicts(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	request := &models.Request{ID: "r1", StatusID: "st-review", RowVersion: 2}
	err := repo.Save(context.Background(), request, nil)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConcurrencyConflict.Code, appErr.Code)
	assert.Equal(t, int64(2), request.RowVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT id, type_code").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListHistoryOrder(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "request_id", "action_code", "actor_id", "status_id", "comment", "created_at"}).
		AddRow("h1", "r1", nil, "u1", "st-draft", nil, time.Now().Add(-time.Hour)).
		AddRow("h2", "r1", "Submit", "u1", "st-review", nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM request_history WHERE request_id = $1 ORDER BY created_at, id")).
		WithArgs("r1").
		WillReturnRows(rows)

	history, err := repo.ListHistory(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].ActionCode)
	require.NotNil(t, history[1].ActionCode)
	assert.Equal(t, "Submit", *history[1].ActionCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE type_code = $1 AND status_id = $2")).
		WithArgs("Purchase", "st-review").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows([]string{"id", "type_code", "status_id", "subject", "description", "org_unit_id", "assignee_id", "due_date", "created_by", "created_at", "updated_at", "row_version"}).
		AddRow("r1", "Purchase", "st-review", "Subject", "", nil, nil, nil, "u1", time.Now(), time.Now(), int64(2))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("Purchase", "st-review").
		WillReturnRows(rows)

	requests, total, err := repo.List(context.Background(), models.RequestFilter{TypeCode: "Purchase", StatusID: "st-review"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, requests, 1)
	assert.Equal(t, int64(2), requests[0].RowVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}
