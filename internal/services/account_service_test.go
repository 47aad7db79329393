package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kubeusers/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAccountRepository is a mock implementation of AccountRepository
type mockAccountRepository struct {
	accounts       map[string]*models.Account
	nextID         int64
	createErr      error
	findErr        error
	listErr        error
	recordLoginErr error
	setActiveErr   error
	created        []*models.Account
	loginRecorded  map[int64]time.Time
}

func newMockAccountRepository(accounts ...*models.Account) *mockAccountRepository {
	m := &mockAccountRepository{
		accounts:      map[string]*models.Account{},
		nextID:        1,
		loginRecorded: map[int64]time.Time{},
	}
	for _, a := range accounts {
		m.accounts[a.Username] = a
		if a.ID >= m.nextID {
			m.nextID = a.ID + 1
		}
	}
	return m
}

func (m *mockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.accounts[account.Username]; ok {
		return models.ErrDuplicateUsername
	}
	for _, a := range m.accounts {
		if a.Email == account.Email {
			return models.ErrDuplicateEmail
		}
	}
	account.ID = m.nextID
	m.nextID++
	m.accounts[account.Username] = account
	m.created = append(m.created, account)
	return nil
}

func (m *mockAccountRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return a, nil
}

func (m *mockAccountRepository) ListAll(ctx context.Context) ([]models.Account, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Account, 0, len(m.accounts))
	for id := int64(1); id < m.nextID; id++ {
		for _, a := range m.accounts {
			if a.ID == id {
				out = append(out, *a)
			}
		}
	}
	return out, nil
}

func (m *mockAccountRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	if m.recordLoginErr != nil {
		return m.recordLoginErr
	}
	m.loginRecorded[id] = at
	return nil
}

func (m *mockAccountRepository) SetActive(ctx context.Context, username string, active bool) error {
	if m.setActiveErr != nil {
		return m.setActiveErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

// mockPasswordHasher is a reversible stand-in for the real hasher
type mockPasswordHasher struct {
	hashErr     error
	verifyCalls []string
}

func (m *mockPasswordHasher) Hash(plaintext string) (string, error) {
	if m.hashErr != nil {
		return "", m.hashErr
	}
	return "hashed:" + plaintext, nil
}

func (m *mockPasswordHasher) Verify(plaintext, hash string) bool {
	m.verifyCalls = append(m.verifyCalls, hash)
	return hash == "hashed:"+plaintext
}

// mockTokenIssuer is a mock implementation of TokenIssuer
type mockTokenIssuer struct {
	err error
}

func (m *mockTokenIssuer) GenerateAccessToken(subject string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "token-for-" + subject, nil
}

// mockProvisioner records provisioning requests
type mockProvisioner struct {
	mu        sync.Mutex
	usernames []string
}

func (m *mockProvisioner) Provision(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usernames = append(m.usernames, username)
}

// mockMetrics records outcomes
type mockMetrics struct {
	logins        []string
	registrations []string
}

func (m *mockMetrics) ObserveLogin(outcome string)        { m.logins = append(m.logins, outcome) }
func (m *mockMetrics) ObserveRegistration(outcome string) { m.registrations = append(m.registrations, outcome) }

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo *mockAccountRepository, hasher *mockPasswordHasher, provisioner *mockProvisioner, metrics *mockMetrics) *accountService {
	var p NamespaceProvisioner
	if provisioner != nil {
		p = provisioner
	}
	var am AccountMetrics
	if metrics != nil {
		am = metrics
	}
	svc := NewAccountService(repo, hasher, &mockTokenIssuer{}, p, am, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestNewAccountService(t *testing.T) {
	repo := newMockAccountRepository()
	hasher := &mockPasswordHasher{}
	tokens := &mockTokenIssuer{}
	logger := zap.NewNop()

	svc := NewAccountService(repo, hasher, tokens, nil, nil, logger)

	assert.NotNil(t, svc)
	assert.Equal(t, repo, svc.accounts)
	assert.Equal(t, hasher, svc.hasher)
	assert.Equal(t, tokens, svc.tokens)
	assert.Equal(t, "hashed:"+dummyPassword, svc.dummyHash)
	assert.NotNil(t, svc.validate)
}

func TestAccountService_Register(t *testing.T) {
	tests := []struct {
		name            string
		req             *models.RegisterRequest
		existing        []*models.Account
		createErr       error
		hashErr         error
		expectedError   error
		errorContains   string
		expectedRole    models.Role
		expectedOutcome string
	}{
		{
			name:            "success with default role",
			req:             &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"},
			expectedRole:    models.RoleUser,
			expectedOutcome: OutcomeSuccess,
		},
		{
			name:            "success with admin role",
			req:             &models.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "pw", Role: models.RoleAdmin},
			expectedRole:    models.RoleAdmin,
			expectedOutcome: OutcomeSuccess,
		},
		{
			name:            "missing username",
			req:             &models.RegisterRequest{Email: "bob@example.com", Password: "pw"},
			expectedError:   models.ErrValidation,
			errorContains:   "username is required",
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "missing email",
			req:             &models.RegisterRequest{Username: "bob", Password: "pw"},
			expectedError:   models.ErrValidation,
			errorContains:   "email is required",
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "missing password",
			req:             &models.RegisterRequest{Username: "bob", Email: "bob@example.com"},
			expectedError:   models.ErrValidation,
			errorContains:   "password is required",
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "username too long",
			req:             &models.RegisterRequest{Username: strings.Repeat("b", 81), Email: "bob@example.com", Password: "pw"},
			expectedError:   models.ErrValidation,
			errorContains:   "username must be at most 80 characters",
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "unknown role",
			req:             &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw", Role: "root"},
			expectedError:   models.ErrValidation,
			errorContains:   "role must be one of: admin, user",
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "duplicate username",
			req:             &models.RegisterRequest{Username: "bob", Email: "new@example.com", Password: "pw"},
			existing:        []*models.Account{{ID: 1, Username: "bob", Email: "bob@example.com"}},
			expectedError:   models.ErrDuplicateUsername,
			expectedOutcome: OutcomeConflict,
		},
		{
			name:            "duplicate email",
			req:             &models.RegisterRequest{Username: "robert", Email: "bob@example.com", Password: "pw"},
			existing:        []*models.Account{{ID: 1, Username: "bob", Email: "bob@example.com"}},
			expectedError:   models.ErrDuplicateEmail,
			expectedOutcome: OutcomeConflict,
		},
		{
			name:            "password too long for hasher",
			req:             &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"},
			hashErr:         models.NewValidationError("password must be at most 72 bytes"),
			expectedError:   models.ErrValidation,
			expectedOutcome: OutcomeValidation,
		},
		{
			name:            "store failure",
			req:             &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"},
			createErr:       errors.New("connection reset"),
			errorContains:   "failed to create account",
			expectedOutcome: OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockAccountRepository(tt.existing...)
			repo.createErr = tt.createErr
			hasher := &mockPasswordHasher{}
			provisioner := &mockProvisioner{}
			metrics := &mockMetrics{}
			svc := newTestService(repo, hasher, provisioner, metrics)
			hasher.hashErr = tt.hashErr

			err := svc.Register(context.Background(), tt.req)

			assert.Equal(t, []string{tt.expectedOutcome}, metrics.registrations)
			if tt.expectedError != nil || tt.errorContains != "" {
				require.Error(t, err)
				if tt.expectedError != nil {
					assert.ErrorIs(t, err, tt.expectedError)
				}
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				assert.Empty(t, repo.created)
				assert.Empty(t, provisioner.usernames, "nothing is provisioned for a failed registration")
				return
			}

			require.NoError(t, err)
			require.Len(t, repo.created, 1)
			created := repo.created[0]
			assert.Equal(t, tt.req.Username, created.Username)
			assert.Equal(t, tt.expectedRole, created.Role)
			assert.True(t, created.IsActive)
			assert.Equal(t, fixedNow, created.CreatedAt)
			assert.Nil(t, created.LastLogin)
			assert.Equal(t, "hashed:"+tt.req.Password, created.PasswordHash)
			assert.NotEqual(t, tt.req.Password, created.PasswordHash)
			assert.Equal(t, []string{tt.req.Username}, provisioner.usernames)
		})
	}
}

func TestAccountService_RegisterWithoutProvisioner(t *testing.T) {
	repo := newMockAccountRepository()
	svc := newTestService(repo, &mockPasswordHasher{}, nil, nil)

	err := svc.Register(context.Background(), &models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"})

	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
}

func TestAccountService_Login(t *testing.T) {
	active := func() *models.Account {
		return &models.Account{ID: 5, Username: "bob", Email: "bob@example.com", PasswordHash: "hashed:pw", Role: models.RoleUser, IsActive: true, CreatedAt: fixedNow.Add(-time.Hour)}
	}
	inactive := func() *models.Account {
		a := active()
		a.IsActive = false
		return a
	}

	tests := []struct {
		name            string
		account         *models.Account
		req             *models.LoginRequest
		findErr         error
		recordErr       error
		tokenErr        error
		expectedError   error
		anyError        bool
		expectedOutcome string
	}{
		{
			name:            "success",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob", Password: "pw"},
			expectedOutcome: OutcomeSuccess,
		},
		{
			name:            "wrong password",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob", Password: "nope"},
			expectedError:   models.ErrInvalidCredentials,
			expectedOutcome: OutcomeInvalid,
		},
		{
			name:            "unknown username",
			req:             &models.LoginRequest{Username: "ghost", Password: "pw"},
			expectedError:   models.ErrInvalidCredentials,
			expectedOutcome: OutcomeInvalid,
		},
		{
			name:            "missing password",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob"},
			expectedError:   models.ErrInvalidCredentials,
			expectedOutcome: OutcomeInvalid,
		},
		{
			name:            "deactivated with correct password",
			account:         inactive(),
			req:             &models.LoginRequest{Username: "bob", Password: "pw"},
			expectedError:   models.ErrAccountDeactivated,
			expectedOutcome: OutcomeDeactivated,
		},
		{
			name:            "deactivated with wrong password",
			account:         inactive(),
			req:             &models.LoginRequest{Username: "bob", Password: "nope"},
			expectedError:   models.ErrInvalidCredentials,
			expectedOutcome: OutcomeInvalid,
		},
		{
			name:            "store failure",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob", Password: "pw"},
			findErr:         errors.New("connection reset"),
			anyError:        true,
			expectedOutcome: OutcomeError,
		},
		{
			name:            "record login failure",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob", Password: "pw"},
			recordErr:       errors.New("deadlock"),
			anyError:        true,
			expectedOutcome: OutcomeError,
		},
		{
			name:            "token failure",
			account:         active(),
			req:             &models.LoginRequest{Username: "bob", Password: "pw"},
			tokenErr:        errors.New("sign failed"),
			anyError:        true,
			expectedOutcome: OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var repo *mockAccountRepository
			if tt.account != nil {
				repo = newMockAccountRepository(tt.account)
			} else {
				repo = newMockAccountRepository()
			}
			repo.findErr = tt.findErr
			repo.recordLoginErr = tt.recordErr
			metrics := &mockMetrics{}
			svc := newTestService(repo, &mockPasswordHasher{}, nil, metrics)
			svc.tokens = &mockTokenIssuer{err: tt.tokenErr}

			resp, err := svc.Login(context.Background(), tt.req)

			assert.Equal(t, []string{tt.expectedOutcome}, metrics.logins)
			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, resp)
				assert.Empty(t, repo.loginRecorded)
			case tt.anyError:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, models.ErrInvalidCredentials)
				assert.Nil(t, resp)
			default:
				require.NoError(t, err)
				assert.Equal(t, "token-for-bob", resp.AccessToken)
				assert.Equal(t, models.AccountSummary{Username: "bob", Email: "bob@example.com", Role: models.RoleUser}, resp.User)
				assert.Equal(t, fixedNow, repo.loginRecorded[5])
			}
		})
	}
}

func TestAccountService_LoginFailuresAreIndistinguishable(t *testing.T) {
	repo := newMockAccountRepository(&models.Account{ID: 1, Username: "bob", Email: "bob@example.com", PasswordHash: "hashed:pw", Role: models.RoleUser, IsActive: true})
	hasher := &mockPasswordHasher{}
	svc := newTestService(repo, hasher, nil, nil)

	_, unknownErr := svc.Login(context.Background(), &models.LoginRequest{Username: "ghost", Password: "pw"})
	_, wrongErr := svc.Login(context.Background(), &models.LoginRequest{Username: "bob", Password: "nope"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	// both paths run exactly one hash comparison
	assert.Equal(t, []string{"hashed:" + dummyPassword, "hashed:pw"}, hasher.verifyCalls)
}

func TestAccountService_ListAccounts(t *testing.T) {
	login := fixedNow.Add(time.Minute)
	repo := newMockAccountRepository(
		&models.Account{ID: 1, Username: "admin", Email: "admin@example.com", PasswordHash: "secret", Role: models.RoleAdmin, IsActive: true, CreatedAt: fixedNow},
		&models.Account{ID: 2, Username: "bob", Email: "bob@example.com", PasswordHash: "secret", Role: models.RoleUser, IsActive: false, CreatedAt: fixedNow, LastLogin: &login},
	)
	svc := newTestService(repo, &mockPasswordHasher{}, nil, nil)

	items, err := svc.ListAccounts(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "admin", items[0].Username)
	assert.Nil(t, items[0].LastLogin)
	assert.Equal(t, "bob", items[1].Username)
	assert.False(t, items[1].IsActive)
	assert.Equal(t, &login, items[1].LastLogin)

	repo.listErr = errors.New("database error")
	items, err = svc.ListAccounts(context.Background())
	assert.Error(t, err)
	assert.Nil(t, items)
}

func TestAccountService_SetAccountActive(t *testing.T) {
	tests := []struct {
		name          string
		actor         string
		username      string
		active        bool
		setActiveErr  error
		expectedError error
		anyError      bool
	}{
		{name: "deactivate other account", actor: "admin", username: "bob", active: false},
		{name: "reactivate", actor: "admin", username: "bob", active: true},
		{name: "cannot deactivate self", actor: "admin", username: "admin", active: false, expectedError: models.ErrValidation},
		{name: "activating self is allowed", actor: "admin", username: "admin", active: true},
		{name: "unknown account", actor: "admin", username: "ghost", active: false, expectedError: models.ErrAccountNotFound},
		{name: "empty username", actor: "admin", username: "", active: false, expectedError: models.ErrValidation},
		{name: "store failure", actor: "admin", username: "bob", active: false, setActiveErr: errors.New("database error"), anyError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockAccountRepository(
				&models.Account{ID: 1, Username: "admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true},
				&models.Account{ID: 2, Username: "bob", Email: "bob@example.com", Role: models.RoleUser, IsActive: true},
			)
			repo.setActiveErr = tt.setActiveErr
			svc := newTestService(repo, &mockPasswordHasher{}, nil, nil)

			err := svc.SetAccountActive(context.Background(), tt.actor, tt.username, tt.active)

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.anyError:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.active, repo.accounts[tt.username].IsActive)
			}
		})
	}
}
