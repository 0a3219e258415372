package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// RepositoryPort defines data access for accounts.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	Insert(ctx context.Context, acct Account) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// Service wraps account business rules.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Unknown emails,
// inactive accounts and bad passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	acct, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !acct.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return acct, nil
}

// Create registers a new account. The email pre-check narrows the race
// window; the storage uniqueness constraint closes it and also maps to
// Conflict.
func (s *Service) Create(ctx context.Context, input NewAccount) (*Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, fmt.Errorf("accounts: email and password required: %w", shared.ErrValidation)
	}

	if existing, err := s.repo.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("accounts: email already registered: %w", shared.ErrDuplicate)
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("accounts: check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash password: %w", err)
	}

	acct := Account{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: string(hash),
		TenantID:     input.TenantID,
		TenantAdmin:  input.TenantAdmin,
		IsActive:     true,
	}
	id, err := s.repo.Insert(ctx, acct)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes an account. Exposed for provisioning compensation.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
