package auth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yisivlay/account-service/app/observability/metrics"
	"github.com/yisivlay/account-service/config"
	"github.com/yisivlay/account-service/internal/api/mail"
	"github.com/yisivlay/account-service/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAccount, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*types.UserAccount)
	return user, args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*types.UserAccount)
	return user, args.Error(1)
}

func (m *MockAuthRepo) GetRoleByName(ctx context.Context, name string) (*types.Role, error) {
	args := m.Called(ctx, name)
	role, _ := args.Get(0).(*types.Role)
	return role, args.Error(1)
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, user *types.UserAccount) (uuid.UUID, error) {
	args := m.Called(ctx, user)
	id, _ := args.Get(0).(uuid.UUID)
	if args.Error(1) == nil {
		user.ID = id
	}
	return id, args.Error(1)
}

func (m *MockAuthRepo) CreateActivationToken(ctx context.Context, token *types.ActivationToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthRepo) GetActivationTokenByCode(ctx context.Context, code string) (*types.ActivationToken, error) {
	args := m.Called(ctx, code)
	token, _ := args.Get(0).(*types.ActivationToken)
	return token, args.Error(1)
}

func (m *MockAuthRepo) ActivateAccount(ctx context.Context, tokenID, userID uuid.UUID, when time.Time) error {
	args := m.Called(ctx, tokenID, userID, when)
	return args.Error(0)
}

// fakeSender records dispatched emails on a channel so tests can observe the
// background delivery goroutine.
type fakeSender struct {
	sent chan sentMail
}

type sentMail struct {
	to   string
	code string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan sentMail, 4)}
}

func (f *fakeSender) Send(ctx context.Context, to, username string, kind mail.TemplateKind, activationURL, code, subject string) error {
	f.sent <- sentMail{to: to, code: code}
	return nil
}

func (f *fakeSender) waitForMail(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activation email")
		return sentMail{}
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Activation = config.ActivationConfig{
		CodeLength:    6,
		CodeTTL:       15 * time.Minute,
		ActivationURL: "http://localhost:4200/activate-account",
	}
	cfg.JWT = config.JWTConfig{
		SecretKey: "test-secret-key-with-enough-length",
		TokenTTL:  24 * time.Hour,
		Issuer:    "account-service",
		Audience:  "account-service-clients",
	}
	return cfg
}

func newTestService(repo AuthRepo, sender mail.Sender, cfg *config.Config) *AuthServiceImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(repo, NewTokenIssuer(cfg.JWT), sender, cfg, logger)
}

func TestRegister_CreatesDisabledUserWithDefaultRole(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	sender := newFakeSender()
	svc := newTestService(repo, sender, testConfig())

	role := &types.Role{ID: 1, Name: types.DefaultRoleName}
	userID := uuid.New()

	repo.On("GetRoleByName", ctx, types.DefaultRoleName).Return(role, nil).Once()
	repo.On("CreateUser", ctx, mock.MatchedBy(func(u *types.UserAccount) bool {
		if u.Enabled || u.Locked {
			return false
		}
		if len(u.Roles) != 1 || u.Roles[0].Name != types.DefaultRoleName {
			return false
		}
		// The stored password must be a bcrypt hash of the submitted one.
		return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret")) == nil
	})).Return(userID, nil).Once()
	repo.On("CreateActivationToken", ctx, mock.MatchedBy(func(tok *types.ActivationToken) bool {
		return tok.UserID == userID && len(tok.Code) == 6 && tok.ExpiresAt.After(tok.CreatedAt)
	})).Return(nil).Once()

	err := svc.Register(ctx, RegisterRequest{
		Firstname: "Sok",
		Lastname:  "Dara",
		Email:     "dara@example.com",
		Password:  "s3cret",
	})
	require.NoError(t, err)

	m := sender.waitForMail(t)
	assert.Equal(t, "dara@example.com", m.to)
	assert.Len(t, m.code, 6)
	repo.AssertExpectations(t)
}

func TestRegister_MissingDefaultRole(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	sender := newFakeSender()
	svc := newTestService(repo, sender, testConfig())

	repo.On("GetRoleByName", ctx, types.DefaultRoleName).Return(nil, types.ErrNotFound).Once()

	err := svc.Register(ctx, RegisterRequest{
		Firstname: "Sok", Lastname: "Dara", Email: "dara@example.com", Password: "s3cret",
	})
	require.ErrorIs(t, err, types.ErrRoleNotConfigured)
	repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	sender := newFakeSender()
	svc := newTestService(repo, sender, testConfig())

	role := &types.Role{ID: 1, Name: types.DefaultRoleName}
	repo.On("GetRoleByName", ctx, types.DefaultRoleName).Return(role, nil).Once()
	repo.On("CreateUser", ctx, mock.Anything).Return(uuid.Nil, types.ErrEmailExists).Once()

	err := svc.Register(ctx, RegisterRequest{
		Firstname: "Sok", Lastname: "Dara", Email: "dara@example.com", Password: "s3cret",
	})
	require.ErrorIs(t, err, types.ErrEmailExists)
	repo.AssertNotCalled(t, "CreateActivationToken", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestAuthenticate_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	cfg := testConfig()
	svc := newTestService(repo, newFakeSender(), cfg)

	hashed, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &types.UserAccount{
		ID:        uuid.New(),
		Firstname: "Sok",
		Lastname:  "Dara",
		Email:     "dara@example.com",
		Password:  string(hashed),
		Enabled:   true,
		Roles:     []types.Role{{ID: 1, Name: types.DefaultRoleName}},
	}
	repo.On("GetUserByEmail", ctx, "dara@example.com").Return(user, nil).Once()

	tokenString, err := svc.Authenticate(ctx, "dara@example.com", "s3cret")
	require.NoError(t, err)

	claims, err := NewTokenIssuer(cfg.JWT).Parse(tokenString)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, "Sok Dara", claims.FullName)
	assert.Equal(t, types.DefaultRoleName, claims.Role)
	repo.AssertExpectations(t)
}

// Unknown email and wrong password must be indistinguishable to the caller.
func TestAuthenticate_NoAccountEnumeration(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	hashed, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &types.UserAccount{ID: uuid.New(), Email: "dara@example.com", Password: string(hashed), Enabled: true}

	repo.On("GetUserByEmail", ctx, "nobody@example.com").Return(nil, types.ErrNotFound).Once()
	repo.On("GetUserByEmail", ctx, "dara@example.com").Return(user, nil).Once()

	_, errUnknown := svc.Authenticate(ctx, "nobody@example.com", "whatever")
	_, errWrongPassword := svc.Authenticate(ctx, "dara@example.com", "wrong")

	require.ErrorIs(t, errUnknown, types.ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPassword, types.ErrInvalidCredentials)
	repo.AssertExpectations(t)
}

func TestAuthenticate_LockedAndDisabledAccounts(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	hashed, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)

	locked := &types.UserAccount{ID: uuid.New(), Email: "locked@example.com", Password: string(hashed), Enabled: true, Locked: true}
	disabled := &types.UserAccount{ID: uuid.New(), Email: "pending@example.com", Password: string(hashed), Enabled: false}

	repo.On("GetUserByEmail", ctx, "locked@example.com").Return(locked, nil).Once()
	repo.On("GetUserByEmail", ctx, "pending@example.com").Return(disabled, nil).Once()

	_, err = svc.Authenticate(ctx, "locked@example.com", "s3cret")
	require.ErrorIs(t, err, types.ErrAccountLocked)

	_, err = svc.Authenticate(ctx, "pending@example.com", "s3cret")
	require.ErrorIs(t, err, types.ErrAccountDisabled)
	repo.AssertExpectations(t)
}

func TestActivate_ValidCodeEnablesAccount(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	userID := uuid.New()
	token := &types.ActivationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      "123456",
		CreatedAt: time.Now().Add(-time.Minute),
		ExpiresAt: time.Now().Add(14 * time.Minute),
	}
	repo.On("GetActivationTokenByCode", ctx, "123456").Return(token, nil).Once()
	repo.On("ActivateAccount", ctx, token.ID, userID, mock.AnythingOfType("time.Time")).Return(nil).Once()

	require.NoError(t, svc.Activate(ctx, "123456"))
	repo.AssertExpectations(t)
}

func TestActivate_UnknownCode(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	repo.On("GetActivationTokenByCode", ctx, "000000").Return(nil, types.ErrNotFound).Once()

	err := svc.Activate(ctx, "000000")
	require.ErrorIs(t, err, types.ErrInvalidToken)
	repo.AssertNotCalled(t, "ActivateAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestActivate_ConsumedCode(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	validatedAt := time.Now().Add(-time.Hour)
	token := &types.ActivationToken{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Code:        "123456",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(time.Hour),
		ValidatedAt: &validatedAt,
	}
	repo.On("GetActivationTokenByCode", ctx, "123456").Return(token, nil).Once()

	err := svc.Activate(ctx, "123456")
	require.ErrorIs(t, err, types.ErrTokenAlreadyUsed)
	repo.AssertNotCalled(t, "ActivateAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestActivate_ExpiredCodeDispatchesReplacement(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	sender := newFakeSender()
	svc := newTestService(repo, sender, testConfig())

	userID := uuid.New()
	expired := &types.ActivationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      "123456",
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-45 * time.Minute),
	}
	user := &types.UserAccount{ID: userID, Firstname: "Sok", Lastname: "Dara", Email: "dara@example.com"}

	repo.On("GetActivationTokenByCode", ctx, "123456").Return(expired, nil).Once()
	repo.On("GetUserByID", ctx, userID).Return(user, nil).Once()
	repo.On("CreateActivationToken", ctx, mock.MatchedBy(func(tok *types.ActivationToken) bool {
		return tok.UserID == userID && tok.Code != "123456" && len(tok.Code) == 6
	})).Return(nil).Once()

	err := svc.Activate(ctx, "123456")
	require.ErrorIs(t, err, types.ErrTokenExpired)

	// Exactly one replacement notification, and the account stays disabled.
	m := sender.waitForMail(t)
	assert.Equal(t, "dara@example.com", m.to)
	assert.NotEqual(t, "123456", m.code)
	repo.AssertNotCalled(t, "ActivateAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestActivate_ConcurrentConsumeLosesRace(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAuthRepo)
	svc := newTestService(repo, newFakeSender(), testConfig())

	userID := uuid.New()
	token := &types.ActivationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      "123456",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	repo.On("GetActivationTokenByCode", ctx, "123456").Return(token, nil).Once()
	repo.On("ActivateAccount", ctx, token.ID, userID, mock.AnythingOfType("time.Time")).
		Return(types.ErrTokenAlreadyUsed).Once()

	err := svc.Activate(ctx, "123456")
	require.ErrorIs(t, err, types.ErrTokenAlreadyUsed)
	repo.AssertExpectations(t)
}

func TestGenerateActivationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateActivationCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code %q contains non-digit", code)
		}
		seen[code] = true
	}
	// 50 draws from a million-value space colliding down to a handful would
	// indicate a broken generator.
	assert.Greater(t, len(seen), 40)
}
