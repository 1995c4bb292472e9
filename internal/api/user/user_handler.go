package user

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yisivlay/account-service/internal/api"
	"github.com/yisivlay/account-service/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	GetUser(w http.ResponseWriter, r *http.Request)
	UpdateUser(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	userService UserService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(userService UserService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

// ListUsers handles GET /users?page=N&size=M.
func (h *HandlerImpl) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ListUsers"))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	pageResp, err := h.userService.ListUsers(ctx, page, size)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list users", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to list users")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, pageResp)
}

// GetUser handles GET /users/{id}.
func (h *HandlerImpl) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "GetUser"))

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.DomainErrorResponse(w, r, http.StatusNotFound, err, "User not found")
			return
		}
		l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to fetch user")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// UpdateUser handles PUT /users/{id} with a partial update body.
func (h *HandlerImpl) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "UpdateUser"))

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var params UpdateUserParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		l.WarnContext(ctx, "Invalid update payload", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if msg, ok := validateUpdateParams(&params); !ok {
		api.ErrorResponse(w, r, http.StatusBadRequest, msg)
		return
	}

	if err := h.userService.UpdateUser(ctx, userID, params); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			api.DomainErrorResponse(w, r, http.StatusNotFound, err, "User not found")
		case errors.Is(err, types.ErrEmailExists):
			api.DomainErrorResponse(w, r, http.StatusConflict, err, types.ErrEmailExists.Error())
		default:
			l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update user")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "User updated successfully.",
	})
}

// DeleteUser handles DELETE /users/{id}.
func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "DeleteUser"))

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.DomainErrorResponse(w, r, http.StatusNotFound, err, "User not found")
			return
		}
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

func validateUpdateParams(params *UpdateUserParams) (string, bool) {
	if params.Firstname != nil && strings.TrimSpace(*params.Firstname) == "" {
		return "Firstname must not be blank", false
	}
	if params.Lastname != nil && strings.TrimSpace(*params.Lastname) == "" {
		return "Lastname must not be blank", false
	}
	if params.Email != nil {
		trimmed := strings.TrimSpace(*params.Email)
		if _, err := mail.ParseAddress(trimmed); err != nil {
			return "A well-formed email address is required", false
		}
		params.Email = &trimmed
	}
	if params.Password != nil && *params.Password == "" {
		return "Password must not be empty", false
	}
	return "", true
}
