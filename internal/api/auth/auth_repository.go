package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yisivlay/account-service/internal/types"
)

// PGXPool is the subset of pgxpool.Pool the repository uses. Narrowing the
// dependency lets tests substitute a pgxmock pool.
type PGXPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo defines the credential store contract consumed by the
// registration, activation and authentication flows.
type AuthRepo interface {
	// GetUserByEmail retrieves an account with its roles by email.
	// Returns types.ErrNotFound if no such account exists.
	GetUserByEmail(ctx context.Context, email string) (*types.UserAccount, error)

	// GetUserByID retrieves an account with its roles by ID.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error)

	// GetRoleByName looks up a role. Returns types.ErrNotFound when absent.
	GetRoleByName(ctx context.Context, name string) (*types.Role, error)

	// CreateUser persists a new account together with its role set in a
	// single transaction. Returns types.ErrEmailExists when the email
	// unique constraint is violated.
	CreateUser(ctx context.Context, user *types.UserAccount) (uuid.UUID, error)

	// CreateActivationToken persists a freshly issued activation token.
	CreateActivationToken(ctx context.Context, token *types.ActivationToken) error

	// GetActivationTokenByCode retrieves a token by its plaintext code.
	// Returns types.ErrNotFound when no token carries the code.
	GetActivationTokenByCode(ctx context.Context, code string) (*types.ActivationToken, error)

	// ActivateAccount marks the token consumed and enables the owning
	// account in one transaction. The consumption update is conditional on
	// the token not being consumed yet; losing that race returns
	// types.ErrTokenAlreadyUsed and leaves the account untouched.
	ActivateAccount(ctx context.Context, tokenID, userID uuid.UUID, when time.Time) error
}

// PostgresAuthRepo implements AuthRepo on a pgx connection pool.
type PostgresAuthRepo struct {
	logger    *slog.Logger
	pgpool    PGXPool
	roleCache *gocache.Cache
}

func NewPostgresAuthRepo(pgpool PGXPool, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
		// Roles are startup-seeded, read-only state; a short cache avoids a
		// query per registration.
		roleCache: gocache.New(10*time.Minute, 30*time.Minute),
	}
}

func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAccount, error) {
	var user types.UserAccount
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, firstname, lastname, email, password_hash, date_of_birth, enabled, locked, created_at, updated_at
         FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Firstname, &user.Lastname, &user.Email, &user.Password,
		&user.DateOfBirth, &user.Enabled, &user.Locked, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user with email not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: query failed: %w", err)
	}

	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error) {
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

	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresAuthRepo) loadRoles(ctx context.Context, user *types.UserAccount) error {
	rows, err := r.pgpool.Query(ctx,
		`SELECT r.id, r.name, r.created_at
         FROM roles r
         JOIN user_roles ur ON ur.role_id = r.id
         WHERE ur.user_id = $1
         ORDER BY r.id`,
		user.ID)
	if err != nil {
		return fmt.Errorf("load roles: query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return fmt.Errorf("load roles: scan failed: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load roles: rows error: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) GetRoleByName(ctx context.Context, name string) (*types.Role, error) {
	if cached, found := r.roleCache.Get(name); found {
		role := cached.(types.Role)
		return &role, nil
	}

	var role types.Role
	err := r.pgpool.QueryRow(ctx,
		"SELECT id, name, created_at FROM roles WHERE name = $1",
		name).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %q not found: %w", name, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get role by name: query failed: %w", err)
	}

	r.roleCache.Set(name, role, gocache.DefaultExpiration)
	return &role, nil
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, user *types.UserAccount) (uuid.UUID, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("email", user.Email))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create user: begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO users (firstname, lastname, email, password_hash, enabled, locked)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id`,
		user.Firstname, user.Lastname, user.Email, user.Password, user.Enabled, user.Locked,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			l.WarnContext(ctx, "Attempted to register duplicate email")
			span.SetStatus(codes.Error, "Duplicate email")
			return uuid.Nil, fmt.Errorf("email %s already registered: %w", user.Email, types.ErrEmailExists)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return uuid.Nil, fmt.Errorf("create user: db insert failed: %w", err)
	}

	for _, role := range user.Roles {
		_, err = tx.Exec(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)",
			userID, role.ID)
		if err != nil {
			l.ErrorContext(ctx, "Failed to assign role", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB INSERT failed")
			return uuid.Nil, fmt.Errorf("create user: assign role failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("create user: commit failed: %w", err)
	}

	user.ID = userID
	return userID, nil
}

func (r *PostgresAuthRepo) CreateActivationToken(ctx context.Context, token *types.ActivationToken) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateActivationToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "activation_tokens"),
	))
	defer span.End()

	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO activation_tokens (user_id, code, created_at, expires_at)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		token.UserID, token.Code, token.CreatedAt, token.ExpiresAt,
	).Scan(&token.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return fmt.Errorf("create activation token: db insert failed: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) GetActivationTokenByCode(ctx context.Context, code string) (*types.ActivationToken, error) {
	var token types.ActivationToken
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, user_id, code, created_at, expires_at, validated_at
         FROM activation_tokens WHERE code = $1`,
		code).Scan(&token.ID, &token.UserID, &token.Code, &token.CreatedAt, &token.ExpiresAt, &token.ValidatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("activation token not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("get activation token: query failed: %w", err)
	}
	return &token, nil
}

func (r *PostgresAuthRepo) ActivateAccount(ctx context.Context, tokenID, userID uuid.UUID, when time.Time) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "ActivateAccount", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ActivateAccount"), slog.String("userID", userID.String()))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("activate account: begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Conditional consume closes the race between two concurrent
	// activations of the same code; only one update can win.
	tag, err := tx.Exec(ctx,
		`UPDATE activation_tokens SET validated_at = $1
         WHERE id = $2 AND validated_at IS NULL`,
		when, tokenID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("activate account: consume token failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "Activation token already consumed")
		return fmt.Errorf("token %s: %w", tokenID, types.ErrTokenAlreadyUsed)
	}

	tag, err = tx.Exec(ctx,
		"UPDATE users SET enabled = TRUE, updated_at = $1 WHERE id = $2",
		when, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("activate account: enable user failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found: %w", userID, types.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("activate account: commit failed: %w", err)
	}

	l.InfoContext(ctx, "Account activated")
	return nil
}
