package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

// Outcomes reported to AccountMetrics
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_credentials"
	OutcomeDeactivated = "deactivated"
	OutcomeValidation  = "validation_error"
	OutcomeConflict    = "conflict"
	OutcomeError       = "error"
)

// dummyPassword is hashed once so that logins for unknown usernames still pay for a hash comparison
const dummyPassword = "timing-equalization-password"

// AccountRepository is the interface that wraps methods for users table data access
type AccountRepository interface {
	// Method Create inserts a new account and sets its ID.
	//
	// "account" parameter is the account to insert.
	//
	// If username or email is taken, models.ErrDuplicateUsername or models.ErrDuplicateEmail will be returned.
	Create(ctx context.Context, account *models.Account) error
	// Method FindByUsername retrieves an account by username.
	//
	// "username" parameter is used to retrieve an account by username.
	//
	// If such account does not exist, models.ErrAccountNotFound will be returned together with "nil" value.
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	// Method ListAll retrieves every account in storage order.
	//
	// If some error occurs, the error will be returned together with "nil" value.
	ListAll(ctx context.Context) ([]models.Account, error)
	// Method RecordLogin sets the last login time of an account.
	//
	// "id" parameter is the account ID.
	// "at" parameter is the login time.
	//
	// If such account does not exist, models.ErrAccountNotFound will be returned.
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	// Method SetActive activates or deactivates an account.
	//
	// "username" parameter identifies the account.
	// "active" parameter is the new status.
	//
	// If such account does not exist, models.ErrAccountNotFound will be returned.
	SetActive(ctx context.Context, username string, active bool) error
}

// PasswordHasher is the interface that wraps password hashing and verification
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenIssuer is the interface that wraps access token issuance
type TokenIssuer interface {
	GenerateAccessToken(subject string) (string, error)
}

// NamespaceProvisioner is the interface that wraps namespace provisioning for new accounts.
// Provision must not block the caller and must not report failures back to it.
type NamespaceProvisioner interface {
	Provision(username string)
}

// AccountMetrics is the interface that wraps counters for account operations
type AccountMetrics interface {
	ObserveLogin(outcome string)
	ObserveRegistration(outcome string)
}

// accountService implements registration, login and account administration
type accountService struct {
	accounts    AccountRepository
	hasher      PasswordHasher
	tokens      TokenIssuer
	provisioner NamespaceProvisioner
	metrics     AccountMetrics
	logger      *zap.Logger
	validate    *validator.Validate
	now         func() time.Time
	dummyHash   string
}

// NewAccountService creates a new account service. provisioner and metrics may be nil.
func NewAccountService(
	accounts AccountRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	provisioner NamespaceProvisioner,
	metrics AccountMetrics,
	logger *zap.Logger,
) *accountService {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", zap.Error(err))
	}

	return &accountService{
		accounts:    accounts,
		hasher:      hasher,
		tokens:      tokens,
		provisioner: provisioner,
		metrics:     metrics,
		logger:      logger,
		validate:    newValidator(),
		now:         time.Now,
		dummyHash:   dummyHash,
	}
}

// Register validates the request, stores the account and, once it is committed, hands the
// username to the namespace provisioner.
func (s *accountService) Register(ctx context.Context, req *models.RegisterRequest) error {
	if err := s.validateStruct(req); err != nil {
		s.observeRegistration(OutcomeValidation)
		return err
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			s.observeRegistration(OutcomeValidation)
			return err
		}
		s.observeRegistration(OutcomeError)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrDuplicateEmail) {
			s.observeRegistration(OutcomeConflict)
			return err
		}
		s.observeRegistration(OutcomeError)
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.observeRegistration(OutcomeSuccess)
	s.logger.Info("account registered",
		zap.Int64("account_id", account.ID),
		zap.String("username", account.Username),
		zap.String("role", string(account.Role)),
	)

	if s.provisioner != nil {
		s.provisioner.Provision(account.Username)
	}

	return nil
}

// Login verifies credentials, records the login and issues an access token.
// Unknown usernames and wrong passwords produce the same error.
func (s *accountService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		s.observeLogin(OutcomeInvalid)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByUsername(ctx, req.Username)
	if errors.Is(err, models.ErrAccountNotFound) {
		s.hasher.Verify(req.Password, s.dummyHash)
		s.observeLogin(OutcomeInvalid)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		s.observeLogin(OutcomeError)
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		s.observeLogin(OutcomeInvalid)
		return nil, models.ErrInvalidCredentials
	}

	if !account.IsActive {
		s.observeLogin(OutcomeDeactivated)
		return nil, models.ErrAccountDeactivated
	}

	if err := s.accounts.RecordLogin(ctx, account.ID, s.now().UTC()); err != nil {
		s.observeLogin(OutcomeError)
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	accessToken, err := s.tokens.GenerateAccessToken(account.Username)
	if err != nil {
		s.observeLogin(OutcomeError)
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.observeLogin(OutcomeSuccess)
	return &models.LoginResponse{
		AccessToken: accessToken,
		User: models.AccountSummary{
			Username: account.Username,
			Email:    account.Email,
			Role:     account.Role,
		},
	}, nil
}

// ListAccounts returns the public projection of every account
func (s *accountService) ListAccounts(ctx context.Context) ([]models.AccountListItem, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	items := make([]models.AccountListItem, 0, len(accounts))
	for i := range accounts {
		items = append(items, models.NewAccountListItem(&accounts[i]))
	}

	return items, nil
}

// SetAccountActive activates or deactivates username on behalf of actor.
// An administrator cannot deactivate their own account.
func (s *accountService) SetAccountActive(ctx context.Context, actor, username string, active bool) error {
	if username == "" {
		return models.NewValidationError("username is required")
	}
	if actor == username && !active {
		return models.NewValidationError("You cannot deactivate your own account")
	}

	if err := s.accounts.SetActive(ctx, username, active); err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("failed to set account status: %w", err)
	}

	s.logger.Info("account status changed",
		zap.String("username", username),
		zap.Bool("is_active", active),
		zap.String("changed_by", actor),
	)
	return nil
}

func (s *accountService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError("invalid request")
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return models.NewValidationError("%s is required", fe.Field())
	case "max":
		return models.NewValidationError("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return models.NewValidationError("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return models.NewValidationError("%s is invalid", fe.Field())
	}
}

func (s *accountService) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(outcome)
	}
}

func (s *accountService) observeRegistration(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRegistration(outcome)
	}
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
