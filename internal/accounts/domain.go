package accounts

import "time"

// Account is an authentication principal. Domain profiles reference it by
// numeric id only.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	// TenantID scopes the account to one parish; nil for cross-parish
	// administrators.
	TenantID *int64
	// TenantAdmin accounts bypass permission resolution entirely.
	TenantAdmin bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewAccount carries the fields for account creation.
type NewAccount struct {
	Email       string
	Name        string
	Password    string
	TenantID    *int64
	TenantAdmin bool
}
