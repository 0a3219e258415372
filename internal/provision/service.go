package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parishdesk/parishdesk/internal/accounts"
	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/notify"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// AccountStore is the external authentication-account collaborator.
type AccountStore interface {
	Create(ctx context.Context, input accounts.NewAccount) (*accounts.Account, error)
	Delete(ctx context.Context, id int64) error
}

// RoleRegistry resolves default roles before any account row is created.
type RoleRegistry interface {
	GetByCode(ctx context.Context, code string, tenantID *int64) (rbac.Role, error)
}

// RoleBinder binds and unbinds the default role edge.
type RoleBinder interface {
	AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (rbac.UserRole, error)
	UnbindRole(ctx context.Context, userID, roleID int64) error
}

// OutcomeRecorder counts saga outcomes for the metrics surface.
type OutcomeRecorder interface {
	RecordProvisionOutcome(kind, outcome string)
}

// Provisioner orchestrates composite principal creation: an account bound
// to exactly one role assignment and one domain profile. Success is
// all-or-nothing from the caller's point of view even though the three
// stores are written independently.
type Provisioner struct {
	logger   *slog.Logger
	accounts AccountStore
	registry RoleRegistry
	binder   RoleBinder
	dir      directory.Repository
	imports  ImportStore
	notifier notify.Sender
	metrics  OutcomeRecorder
}

// NewProvisioner constructs the saga orchestrator. metrics may be nil.
func NewProvisioner(
	logger *slog.Logger,
	accountStore AccountStore,
	registry RoleRegistry,
	binder RoleBinder,
	dir directory.Repository,
	imports ImportStore,
	notifier notify.Sender,
	metrics OutcomeRecorder,
) *Provisioner {
	if notifier == nil {
		notifier = notify.NopSender{}
	}
	return &Provisioner{
		logger:   logger,
		accounts: accountStore,
		registry: registry,
		binder:   binder,
		dir:      dir,
		imports:  imports,
		notifier: notifier,
		metrics:  metrics,
	}
}

// RegisterInput is the self-registration request: a new parishioner
// account in one parish.
type RegisterInput struct {
	Email     string
	Name      string
	Password  string
	ParishID  int64
	WardID    *int64
	FamilyID  *int64
	FirstName string
	LastName  string
	Phone     *string
}

// Register provisions a self-registered parishioner.
func (p *Provisioner) Register(ctx context.Context, input RegisterInput) (Result, error) {
	tenantID := input.ParishID
	return p.ProvisionAccountWithProfile(ctx, KindParishioner,
		AccountFields{
			Email:    input.Email,
			Name:     input.Name,
			Password: input.Password,
			TenantID: &tenantID,
		},
		ProfileFields{Parishioner: &ParishionerFields{
			ParishID:  input.ParishID,
			WardID:    input.WardID,
			FamilyID:  input.FamilyID,
			FirstName: input.FirstName,
			LastName:  input.LastName,
			Phone:     input.Phone,
		}},
		nil,
	)
}

// ProvisionAccountWithProfile runs the single-principal saga: verify the
// default role, create the account, bind the role, create the profile.
// Any failure after account creation compensates in reverse order, so the
// caller never observes a role-less or profile-less account.
func (p *Provisioner) ProvisionAccountWithProfile(ctx context.Context, kind AccountKind, acct AccountFields, profile ProfileFields, actorID *int64) (Result, error) {
	res, err := p.provision(ctx, kind, acct, profile, actorID)
	p.record(kind, err)
	return res, err
}

func (p *Provisioner) provision(ctx context.Context, kind AccountKind, acct AccountFields, profile ProfileFields, actorID *int64) (Result, error) {
	role, err := p.verifyRole(ctx, kind, acct)
	if err != nil {
		return Result{}, err
	}
	if err := p.validateProfile(ctx, kind, acct, profile); err != nil {
		return Result{}, err
	}

	// Once the account write starts the saga runs to completion, success
	// or compensated failure, even if the caller disconnects.
	ctx = context.WithoutCancel(ctx)

	var result Result
	sg := newSaga(p.logger,
		step{
			name:  "create account",
			after: StateAccountCreated,
			run: func(ctx context.Context) error {
				created, err := p.accounts.Create(ctx, accounts.NewAccount{
					Email:       acct.Email,
					Name:        acct.Name,
					Password:    acct.Password,
					TenantID:    acct.TenantID,
					TenantAdmin: false,
				})
				if err != nil {
					return err
				}
				result.Account = created
				return nil
			},
			compensate: func(ctx context.Context) error {
				return p.accounts.Delete(ctx, result.Account.ID)
			},
		},
		step{
			name:  "bind role",
			after: StateRoleBound,
			run: func(ctx context.Context) error {
				_, err := p.binder.AssignRole(ctx, result.Account.ID, role.ID, actorID, nil)
				return err
			},
			compensate: func(ctx context.Context) error {
				return p.binder.UnbindRole(ctx, result.Account.ID, role.ID)
			},
			maskFailure: true,
		},
		step{
			name:  "create profile",
			after: StateProfileCreated,
			run: func(ctx context.Context) error {
				return p.createProfile(ctx, kind, &result, profile, actorID)
			},
		},
	)
	if err := sg.run(ctx); err != nil {
		return Result{}, err
	}

	p.notifier.WelcomeAccount(ctx, result.Account.Email, result.Account.Name)
	return result, nil
}

// verifyRole resolves the default role for the kind before anything is
// created. A missing role is a deployment bug: logged with full context
// and surfaced as an opaque internal error, never a 4xx.
func (p *Provisioner) verifyRole(ctx context.Context, kind AccountKind, acct AccountFields) (rbac.Role, error) {
	code, err := kind.RoleCode()
	if err != nil {
		return rbac.Role{}, fmt.Errorf("provision: %s: %w", err, shared.ErrValidation)
	}
	role, err := p.registry.GetByCode(ctx, code, acct.TenantID)
	if err != nil {
		p.logger.Error("default role missing at provisioning time",
			slog.String("role_code", code),
			slog.String("kind", string(kind)),
			slog.String("email", acct.Email),
			slog.Any("error", err),
		)
		return rbac.Role{}, ErrInternal
	}
	if role.Status != rbac.StatusActive {
		p.logger.Error("default role inactive at provisioning time",
			slog.String("role_code", code),
			slog.String("kind", string(kind)),
			slog.String("email", acct.Email),
		)
		return rbac.Role{}, ErrInternal
	}
	return role, nil
}

func (p *Provisioner) validateProfile(ctx context.Context, kind AccountKind, acct AccountFields, profile ProfileFields) error {
	if strings.TrimSpace(acct.Email) == "" || acct.Password == "" {
		return fmt.Errorf("provision: email and password required: %w", shared.ErrValidation)
	}

	switch kind {
	case KindParishioner, KindFamilyMember:
		f := profile.Parishioner
		if f == nil {
			return fmt.Errorf("provision: parishioner profile required for kind %s: %w", kind, shared.ErrValidation)
		}
		if strings.TrimSpace(f.FirstName) == "" || strings.TrimSpace(f.LastName) == "" {
			return fmt.Errorf("provision: member name required: %w", shared.ErrValidation)
		}
		if acct.TenantID == nil || *acct.TenantID != f.ParishID {
			return fmt.Errorf("provision: account tenant does not match profile parish: %w", shared.ErrValidation)
		}
		if _, err := p.dir.GetParish(ctx, f.ParishID); err != nil {
			return err
		}
		if f.WardID != nil {
			ward, err := p.dir.GetWard(ctx, *f.WardID)
			if err != nil {
				return err
			}
			if ward.ParishID != f.ParishID {
				return fmt.Errorf("provision: ward %d belongs to another parish: %w", ward.ID, shared.ErrValidation)
			}
		}
		if f.FamilyID != nil {
			if _, err := p.dir.GetFamily(ctx, *f.FamilyID); err != nil {
				return err
			}
		}
	case KindParishAdmin:
		f := profile.Admin
		if f == nil {
			return fmt.Errorf("provision: admin profile required for kind %s: %w", kind, shared.ErrValidation)
		}
		if acct.TenantID == nil || *acct.TenantID != f.ParishID {
			return fmt.Errorf("provision: account tenant does not match profile parish: %w", shared.ErrValidation)
		}
		if _, err := p.dir.GetParish(ctx, f.ParishID); err != nil {
			return err
		}
	}
	return nil
}

// createProfile writes the domain profile and recomputes the ward
// counters. A recount failure undoes the profile write so the saga's
// earlier compensations see a clean slate.
func (p *Provisioner) createProfile(ctx context.Context, kind AccountKind, result *Result, profile ProfileFields, actorID *int64) error {
	switch kind {
	case KindParishioner, KindFamilyMember:
		f := profile.Parishioner
		member := directory.Parishioner{
			AccountID: &result.Account.ID,
			ParishID:  f.ParishID,
			WardID:    f.WardID,
			FamilyID:  f.FamilyID,
			FirstName: strings.TrimSpace(f.FirstName),
			LastName:  strings.TrimSpace(f.LastName),
			Phone:     f.Phone,
			CreatedBy: actorID,
		}
		id, err := p.dir.CreateParishioner(ctx, member)
		if err != nil {
			return err
		}
		member.ID = id
		if f.WardID != nil {
			if _, err := p.dir.RecountWard(ctx, *f.WardID); err != nil {
				if delErr := p.dir.DeleteParishioner(ctx, id); delErr != nil {
					p.logger.Error("profile cleanup failed after recount error",
						slog.Int64("parishioner_id", id),
						slog.Any("error", delErr),
					)
				}
				return err
			}
		}
		result.Parishioner = &member
	case KindParishAdmin:
		f := profile.Admin
		admin := directory.AdminProfile{
			AccountID: result.Account.ID,
			ParishID:  f.ParishID,
			Title:     strings.TrimSpace(f.Title),
			CreatedBy: actorID,
		}
		id, err := p.dir.CreateAdminProfile(ctx, admin)
		if err != nil {
			return err
		}
		admin.ID = id
		result.Admin = &admin
	}
	return nil
}

func (p *Provisioner) record(kind AccountKind, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	p.metrics.RecordProvisionOutcome(string(kind), outcome)
}
