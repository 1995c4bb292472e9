package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yisivlay/account-service/internal/types"
)

func newMockRepo(t *testing.T) (*PostgresAuthRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresAuthRepo(mockPool, logger), mockPool
}

func TestPostgresAuthRepo_CreateUser(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	user := &types.UserAccount{
		Firstname: "Sok",
		Lastname:  "Dara",
		Email:     "dara@example.com",
		Password:  "$2a$10$hash",
		Roles:     []types.Role{{ID: 1, Name: types.DefaultRoleName}},
	}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`INSERT INTO users`).
		WithArgs("Sok", "Dara", "dara@example.com", "$2a$10$hash", false, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(userID))
	mockPool.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(userID, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	got, err := repo.CreateUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, userID, user.ID)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_CreateUserDuplicateEmail(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	user := &types.UserAccount{
		Firstname: "Sok",
		Lastname:  "Dara",
		Email:     "dara@example.com",
		Password:  "$2a$10$hash",
	}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`INSERT INTO users`).
		WithArgs("Sok", "Dara", "dara@example.com", "$2a$10$hash", false, false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	mockPool.ExpectRollback()

	_, err := repo.CreateUser(ctx, user)
	require.ErrorIs(t, err, types.ErrEmailExists)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_GetActivationTokenByCode(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	tokenID := uuid.New()
	userID := uuid.New()
	created := time.Now().Add(-time.Minute)
	expires := created.Add(15 * time.Minute)

	mockPool.ExpectQuery(`SELECT id, user_id, code, created_at, expires_at, validated_at`).
		WithArgs("123456").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "code", "created_at", "expires_at", "validated_at"}).
			AddRow(tokenID, userID, "123456", created, expires, (*time.Time)(nil)))

	token, err := repo.GetActivationTokenByCode(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, tokenID, token.ID)
	assert.Equal(t, userID, token.UserID)
	assert.False(t, token.Consumed())
	assert.False(t, token.Expired(time.Now()))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_GetActivationTokenByCodeNotFound(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectQuery(`SELECT id, user_id, code, created_at, expires_at, validated_at`).
		WithArgs("999999").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "code", "created_at", "expires_at", "validated_at"}))

	_, err := repo.GetActivationTokenByCode(ctx, "999999")
	require.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_ActivateAccount(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	tokenID := uuid.New()
	userID := uuid.New()
	when := time.Now()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE activation_tokens SET validated_at`).
		WithArgs(when, tokenID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectExec(`UPDATE users SET enabled = TRUE`).
		WithArgs(when, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	require.NoError(t, repo.ActivateAccount(ctx, tokenID, userID, when))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

// A token consumed between lookup and update must lose the conditional
// update and leave the account untouched.
func TestPostgresAuthRepo_ActivateAccountAlreadyConsumed(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	tokenID := uuid.New()
	userID := uuid.New()
	when := time.Now()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE activation_tokens SET validated_at`).
		WithArgs(when, tokenID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectRollback()

	err := repo.ActivateAccount(ctx, tokenID, userID, when)
	require.ErrorIs(t, err, types.ErrTokenAlreadyUsed)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_GetRoleByNameCaches(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	created := time.Now()
	mockPool.ExpectQuery(`SELECT id, name, created_at FROM roles`).
		WithArgs(types.DefaultRoleName).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(1, types.DefaultRoleName, created))

	role, err := repo.GetRoleByName(ctx, types.DefaultRoleName)
	require.NoError(t, err)
	assert.Equal(t, 1, role.ID)

	// Second lookup is served from cache; no further query expected.
	role, err = repo.GetRoleByName(ctx, types.DefaultRoleName)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultRoleName, role.Name)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresAuthRepo_GetRoleByNameNotFound(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectQuery(`SELECT id, name, created_at FROM roles`).
		WithArgs("ADMIN").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}))

	_, err := repo.GetRoleByName(ctx, "ADMIN")
	require.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, mockPool.ExpectationsWereMet())
}
