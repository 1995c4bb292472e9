package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/yisivlay/account-service/internal/api"
	"github.com/yisivlay/account-service/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Activate(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	authService AuthService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new auth HandlerImpl instance.
func NewHandlerImpl(authService AuthService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		logger:      logger,
	}
}

// Register handles POST /auth/register. On success the account is created
// disabled and an activation code is on its way to the submitted address.
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid register payload", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if msg, ok := validateRegisterRequest(&req); !ok {
		api.ErrorResponse(w, r, http.StatusBadRequest, msg)
		return
	}

	if err := h.authService.Register(ctx, req); err != nil {
		l.ErrorContext(ctx, "Registration failed", slog.Any("error", err))
		switch {
		case errors.Is(err, types.ErrEmailExists):
			api.DomainErrorResponse(w, r, http.StatusConflict, err, types.ErrEmailExists.Error())
		case errors.Is(err, types.ErrRoleNotConfigured):
			api.DomainErrorResponse(w, r, http.StatusInternalServerError, err, types.ErrRoleNotConfigured.Error())
		default:
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to register account")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, types.Response{
		Success: true,
		Message: "Account registered. An activation code has been sent to your email address.",
	})
}

// Login handles POST /auth/login and returns a bearer credential.
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Login"))

	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid login payload", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		l.WarnContext(ctx, "Authentication failed", slog.Any("error", err))
		switch {
		case errors.Is(err, types.ErrInvalidCredentials):
			api.DomainErrorResponse(w, r, http.StatusUnauthorized, err, types.ErrInvalidCredentials.Error())
		case errors.Is(err, types.ErrAccountLocked):
			api.DomainErrorResponse(w, r, http.StatusForbidden, err, types.ErrAccountLocked.Error())
		case errors.Is(err, types.ErrAccountDisabled):
			api.DomainErrorResponse(w, r, http.StatusForbidden, err, types.ErrAccountDisabled.Error())
		default:
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to authenticate")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, AuthenticationResponse{Token: token})
}

// Activate handles GET /auth/activate-account?code=NNNNNN.
func (h *HandlerImpl) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Activate"))

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Activation code is required")
		return
	}

	if err := h.authService.Activate(ctx, code); err != nil {
		l.WarnContext(ctx, "Activation failed", slog.Any("error", err))
		switch {
		case errors.Is(err, types.ErrInvalidToken):
			api.DomainErrorResponse(w, r, http.StatusBadRequest, err, types.ErrInvalidToken.Error())
		case errors.Is(err, types.ErrTokenExpired):
			api.DomainErrorResponse(w, r, http.StatusGone, err, types.ErrTokenExpired.Error())
		case errors.Is(err, types.ErrTokenAlreadyUsed):
			api.DomainErrorResponse(w, r, http.StatusConflict, err, types.ErrTokenAlreadyUsed.Error())
		case errors.Is(err, types.ErrNotFound):
			api.DomainErrorResponse(w, r, http.StatusNotFound, err, "Account not found")
		default:
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to activate account")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Account activated successfully.",
	})
}

func validateRegisterRequest(req *RegisterRequest) (string, bool) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Firstname == "" || req.Lastname == "" {
		return "Firstname and lastname are required", false
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "A well-formed email address is required", false
	}
	if req.Password == "" {
		return "Password must not be empty", false
	}
	return "", true
}
