package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-api/internal/models"
)

var coauthorCols = []string{"id", "article_id", "coauthor_user_id", "accepted", "accepted_at", "token_id", "invited_at", "created_at", "updated_at"}

func TestCoAuthorRepositoryCreateAndLookup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCoAuthorRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM coauthor_invitations WHERE article_id = $1 AND coauthor_user_id = $2")).
		WithArgs("a1", "u2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO coauthor_invitations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM coauthor_invitations WHERE article_id = $1 AND coauthor_user_id = $2")).
		WithArgs("a1", "u2").
		WillReturnRows(sqlmock.NewRows(coauthorCols).AddRow("inv-1", "a1", "u2", false, nil, "t1", now, now, now))

	_, err := repo.GetByArticleAndUser(context.Background(), "a1", "u2")
	require.ErrorIs(t, err, sql.ErrNoRows)

	tokenID := "t1"
	inv := &models.CoAuthorInvitation{ArticleID: "a1", CoAuthorUserID: "u2", TokenID: &tokenID}
	require.NoError(t, repo.Create(context.Background(), inv))
	assert.NotEmpty(t, inv.ID)

	found, err := repo.GetByArticleAndUser(context.Background(), "a1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCoAuthorRepositoryMarkAcceptedOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCoAuthorRepository(db)
	now := time.Now().UTC()
	acceptSQL := regexp.QuoteMeta("WHERE id = $2 AND accepted = FALSE RETURNING")

	mock.ExpectQuery(acceptSQL).
		WithArgs(now, "inv-1").
		WillReturnRows(sqlmock.NewRows(coauthorCols).AddRow("inv-1", "a1", "u2", true, now, "t1", now, now, now))
	mock.ExpectQuery(acceptSQL).
		WithArgs(now, "inv-1").
		WillReturnError(sql.ErrNoRows)

	inv, err := repo.MarkAccepted(context.Background(), "inv-1", now)
	require.NoError(t, err)
	assert.True(t, inv.Accepted)

	_, err = repo.MarkAccepted(context.Background(), "inv-1", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCoAuthorRepositoryRebindSkipsAccepted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCoAuthorRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE coauthor_invitations SET token_id = $1")).
		WithArgs("t2", now, "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Rebind(context.Background(), "inv-1", "t2", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
