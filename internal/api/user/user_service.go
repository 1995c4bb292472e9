package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yisivlay/account-service/internal/types"
)

var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the business logic contract for profile management.
type UserService interface {
	ListUsers(ctx context.Context, page, size int) (*types.PageResponse[UserResponse], error)
	GetUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateUserParams) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// UserServiceImpl implements UserService.
type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
}

// NewUserService creates a new UserService.
func NewUserService(repo UserRepo, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, page, size int) (*types.PageResponse[UserResponse], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	users, total, err := s.repo.ListUsers(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	content := make([]UserResponse, 0, len(users))
	for i := range users {
		content = append(content, NewUserResponse(&users[i]))
	}

	totalPages := int(total) / size
	if int(total)%size != 0 {
		totalPages++
	}

	return &types.PageResponse[UserResponse]{
		Content:       content,
		Number:        page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         page == 0,
		Last:          page >= totalPages-1,
	}, nil
}

func (s *UserServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	resp := NewUserResponse(user)
	return &resp, nil
}

// UpdateUser applies the submitted partial update. A new password is hashed
// before it reaches the store.
func (s *UserServiceImpl) UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateUserParams) error {
	l := s.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", userID.String()))

	if params.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("update user: failed to hash password: %w", err)
		}
		hashedStr := string(hashed)
		params.Password = &hashedStr
	}

	if err := s.repo.UpdateUser(ctx, userID, params); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	l.InfoContext(ctx, "User profile updated")
	return nil
}

func (s *UserServiceImpl) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	l := s.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", userID.String()))

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	l.InfoContext(ctx, "User account deleted")
	return nil
}
