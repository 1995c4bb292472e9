package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yisivlay/account-service/internal/api/auth"
	"github.com/yisivlay/account-service/internal/types"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for user profile persistence.
type UserRepo interface {
	// ListUsers returns one page of accounts, newest first, along with the
	// total number of accounts.
	ListUsers(ctx context.Context, page, size int) ([]types.UserAccount, int64, error)

	// GetUserByID retrieves an account with its roles.
	// Returns types.ErrNotFound if the account doesn't exist.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error)

	// UpdateUser updates the non-nil fields in params.
	// Returns types.ErrNotFound if the account doesn't exist and
	// types.ErrEmailExists when the new email is taken.
	UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateUserParams) error

	// DeleteUser removes the account and its activation tokens in one
	// transaction. Returns types.ErrNotFound if the account doesn't exist.
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool auth.PGXPool
}

func NewPostgresUserRepo(pgpool auth.PGXPool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresUserRepo) ListUsers(ctx context.Context, page, size int) ([]types.UserAccount, int64, error) {
	var total int64
	if err := r.pgpool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list users: count failed: %w", err)
	}

	rows, err := r.pgpool.Query(ctx,
		`SELECT id, firstname, lastname, email, password_hash, date_of_birth, enabled, locked, created_at, updated_at
         FROM users
         ORDER BY created_at DESC
         LIMIT $1 OFFSET $2`,
		size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: query failed: %w", err)
	}
	defer rows.Close()

	var users []types.UserAccount
	for rows.Next() {
		var u types.UserAccount
		err := rows.Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email, &u.Password,
			&u.DateOfBirth, &u.Enabled, &u.Locked, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("list users: scan failed: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: rows error: %w", err)
	}

	return users, total, nil
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error) {
	var user types.UserAccount
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, firstname, lastname, email, password_hash, date_of_birth, enabled, locked, created_at, updated_at
         FROM users WHERE id = $1`,
		userID).Scan(&user.ID, &user.Firstname, &user.Lastname, &user.Email, &user.Password,
		&user.DateOfBirth, &user.Enabled, &user.Locked, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", userID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get user by id: query failed: %w", err)
	}

	rows, err := r.pgpool.Query(ctx,
		`SELECT r.name
         FROM roles r
         JOIN user_roles ur ON ur.role_id = r.id
         WHERE ur.user_id = $1
         ORDER BY r.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get user by id: roles query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role.Name); err != nil {
			return nil, fmt.Errorf("get user by id: roles scan failed: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get user by id: roles rows error: %w", err)
	}

	return &user, nil
}

func (r *PostgresUserRepo) UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateUserParams) error {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "UpdateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", userID.String()))

	var setClauses []string
	var args []interface{}
	argID := 1

	if params.Firstname != nil {
		setClauses = append(setClauses, fmt.Sprintf("firstname = $%d", argID))
		args = append(args, *params.Firstname)
		argID++
	}
	if params.Lastname != nil {
		setClauses = append(setClauses, fmt.Sprintf("lastname = $%d", argID))
		args = append(args, *params.Lastname)
		argID++
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argID))
		args = append(args, *params.Email)
		argID++
	}
	if params.DateOfBirth != nil {
		setClauses = append(setClauses, fmt.Sprintf("date_of_birth = $%d", argID))
		args = append(args, *params.DateOfBirth)
		argID++
	}
	if params.Password != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argID))
		args = append(args, *params.Password)
		argID++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++
	args = append(args, userID)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argID)

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			l.WarnContext(ctx, "Attempted to update to duplicate email")
			span.SetStatus(codes.Error, "Duplicate email")
			return fmt.Errorf("email already registered: %w", types.ErrEmailExists)
		}
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("update user: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found: %w", userID, types.ErrNotFound)
	}

	return nil
}

func (r *PostgresUserRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "DeleteUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete user: begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Remove the activation token audit trail before the account itself.
	if _, err := tx.Exec(ctx, "DELETE FROM activation_tokens WHERE user_id = $1", userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("delete user: token cleanup failed: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("delete user: db delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found: %w", userID, types.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("delete user: commit failed: %w", err)
	}
	return nil
}
