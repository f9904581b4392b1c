package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

const testID = "6f1c2f1e-1c1a-4c6e-9d0b-8d3c1e0f5a11"

var profileCols = []string{
	"id", "email", "full_name", "avatar_url", "email_verified", "role",
	"last_sign_in_at", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*ProfileRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewProfileRepo(db), mock
}

func TestUpsertSignIn_Insert(t *testing.T) {
	repo, mock := setupMockDB(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(append(profileCols, "created")).
		AddRow(testID, "alice@example.com", "Alice", "https://img/a.png", true, nil, at, at, at, true)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs(testID, "alice@example.com", "Alice", "https://img/a.png", sqlmock.AnyArg()).
		WillReturnRows(rows)

	p, created, err := repo.UpsertSignIn(context.Background(), domain.ProfileSignIn{
		ID:        testID,
		Email:     "  Alice@Example.COM ",
		FullName:  "Alice",
		AvatarURL: "https://img/a.png",
		At:        at,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.Profile{
		ID:            testID,
		Email:         "alice@example.com",
		FullName:      "Alice",
		AvatarURL:     "https://img/a.png",
		EmailVerified: true,
		LastSignInAt:  at,
		CreatedAt:     at,
		UpdatedAt:     at,
	}, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSignIn_ExistingRowKeepsRole(t *testing.T) {
	repo, mock := setupMockDB(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(append(profileCols, "created")).
		AddRow(testID, "alice@example.com", "Alice", "", true, "seller", at, created, at, false)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "", "", sqlmock.AnyArg()).
		WillReturnRows(rows)

	p, isNew, err := repo.UpsertSignIn(context.Background(), domain.ProfileSignIn{Email: "alice@example.com", At: at})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, domain.RoleSeller, p.Role)
	assert.Equal(t, "Alice", p.FullName)
	assert.True(t, p.CreatedAt.Before(p.LastSignInAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSignIn_DBError(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WillReturnError(errors.New("connection reset"))

	_, _, err := repo.UpsertSignIn(context.Background(), domain.ProfileSignIn{Email: "a@b.com", At: time.Now()})
	require.Error(t, err)
	assert.True(t, domain.Is(err, "db_unavailable"))
}

func TestUpsertSignIn_MissingEmail(t *testing.T) {
	repo, _ := setupMockDB(t)

	_, _, err := repo.UpsertSignIn(context.Background(), domain.ProfileSignIn{Email: "   "})
	assert.True(t, domain.Is(err, "missing_field"))
}

func TestFindByEmail(t *testing.T) {
	repo, mock := setupMockDB(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE email = $1")).
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow(testID, "bob@example.com", "Bob", "", true, "buyer", at, at, at))

	p, err := repo.FindByEmail(context.Background(), "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBuyer, p.Role)

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.True(t, domain.Is(err, "profile_not_found"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	repo, mock := setupMockDB(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow(testID, "bob@example.com", "Bob", "", true, nil, at, at, at))

	p, err := repo.GetByID(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, testID, p.ID)
	assert.Empty(t, p.Role)
	assert.False(t, p.HasCompletedOnboarding())

	// not a uuid: no query issued
	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.True(t, domain.Is(err, "profile_not_found"))

	_, err = repo.GetByID(context.Background(), " ")
	assert.True(t, domain.Is(err, "missing_field"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRole(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("sets role while empty", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND role IS NULL")).
			WithArgs(testID, "seller").
			WillReturnRows(sqlmock.NewRows(profileCols).
				AddRow(testID, "a@b.com", "", "", true, "seller", at, at, at))

		p, err := repo.SetRole(context.Background(), testID, domain.RoleSeller)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleSeller, p.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already set", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND role IS NULL")).
			WithArgs(testID, "buyer").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
			WithArgs(testID).
			WillReturnRows(sqlmock.NewRows(profileCols).
				AddRow(testID, "a@b.com", "", "", true, "seller", at, at, at))

		_, err := repo.SetRole(context.Background(), testID, domain.RoleBuyer)
		assert.True(t, domain.Is(err, "role_already_set"), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing profile", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND role IS NULL")).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.SetRole(context.Background(), testID, domain.RoleBuyer)
		assert.True(t, domain.Is(err, "profile_not_found"), "got %v", err)
	})

	t.Run("invalid role", func(t *testing.T) {
		repo, _ := setupMockDB(t)
		_, err := repo.SetRole(context.Background(), testID, "admin")
		assert.True(t, domain.Is(err, "invalid_role"))
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND role IS NULL")).
			WillReturnError(errors.New("boom"))

		_, err := repo.SetRole(context.Background(), testID, domain.RoleBuyer)
		assert.True(t, domain.Is(err, "db_unavailable"))
	})
}
