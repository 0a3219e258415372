package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// BulkProvisionFamily imports a family with its members in one database
// transaction: ward reuse or creation, the family row, and per member an
// optional account, a FAMILY_MEMBER role edge and a parishioner profile.
// Any hard storage failure rolls back the entire batch. Row-level
// validation failures roll back too unless CollectRowErrors is set, in
// which case they land in the Errors slice and their siblings proceed.
func (p *Provisioner) BulkProvisionFamily(ctx context.Context, input BulkFamilyInput) (BulkFamilyResult, error) {
	res, err := p.bulkProvision(ctx, input)
	p.record(KindFamilyMember, err)
	return res, err
}

func (p *Provisioner) bulkProvision(ctx context.Context, input BulkFamilyInput) (BulkFamilyResult, error) {
	if input.TenantID != input.ParishID {
		return BulkFamilyResult{}, fmt.Errorf("provision: tenant does not match parish: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(input.FamilyName) == "" {
		return BulkFamilyResult{}, fmt.Errorf("provision: family name required: %w", shared.ErrValidation)
	}
	if input.WardID == nil && strings.TrimSpace(input.WardName) == "" {
		return BulkFamilyResult{}, fmt.Errorf("provision: ward id or ward name required: %w", shared.ErrValidation)
	}
	if len(input.Members) == 0 {
		return BulkFamilyResult{}, fmt.Errorf("provision: at least one member required: %w", shared.ErrValidation)
	}
	if _, err := p.dir.GetParish(ctx, input.ParishID); err != nil {
		return BulkFamilyResult{}, err
	}

	// Same fail-fast rule as the single-principal saga: resolve the
	// member role before anything is written.
	tenantID := input.TenantID
	role, err := p.verifyRole(ctx, KindFamilyMember, AccountFields{
		Email:    "bulk import",
		TenantID: &tenantID,
	})
	if err != nil {
		return BulkFamilyResult{}, err
	}

	rowErrs := validateMembers(input.Members)
	if len(rowErrs) > 0 && !input.CollectRowErrors {
		return BulkFamilyResult{}, fmt.Errorf("provision: %d invalid member rows: %w", len(rowErrs), shared.ErrValidation)
	}
	invalid := make(map[int]bool, len(rowErrs))
	for _, re := range rowErrs {
		invalid[re.Row] = true
	}
	if len(invalid) == len(input.Members) {
		return BulkFamilyResult{Errors: rowErrs}, fmt.Errorf("provision: no valid member rows: %w", shared.ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	result := BulkFamilyResult{Errors: rowErrs}
	err = p.imports.WithinTx(ctx, func(ctx context.Context, tx ImportTx) error {
		var ward directory.Ward
		var err error
		if input.WardID != nil {
			ward, err = tx.GetWard(ctx, *input.WardID)
		} else {
			ward, err = tx.EnsureWard(ctx, input.ParishID, strings.TrimSpace(input.WardName))
		}
		if err != nil {
			return err
		}
		if ward.ParishID != input.ParishID {
			return fmt.Errorf("provision: ward %d belongs to another parish: %w", ward.ID, shared.ErrValidation)
		}

		familyID, err := tx.InsertFamily(ctx, directory.Family{
			WardID:    ward.ID,
			Name:      strings.TrimSpace(input.FamilyName),
			HeadName:  strings.TrimSpace(input.HeadName),
			CreatedBy: input.ActorID,
		})
		if err != nil {
			return err
		}

		for i, row := range input.Members {
			if invalid[i] {
				continue
			}
			created, err := p.importMember(ctx, tx, input, role.ID, ward.ID, familyID, i, row)
			if err != nil {
				return err
			}
			result.Created = append(result.Created, created)
		}

		ward, err = tx.RecountWard(ctx, ward.ID)
		if err != nil {
			return err
		}
		result.Ward = ward
		result.Family = directory.Family{
			ID:        familyID,
			WardID:    ward.ID,
			Name:      strings.TrimSpace(input.FamilyName),
			HeadName:  strings.TrimSpace(input.HeadName),
			CreatedBy: input.ActorID,
		}
		return nil
	})
	if err != nil {
		p.logger.Error("family import rolled back",
			slog.String("family", input.FamilyName),
			slog.Int64("parish_id", input.ParishID),
			slog.Any("error", err),
		)
		return BulkFamilyResult{Errors: rowErrs}, err
	}
	return result, nil
}

func (p *Provisioner) importMember(ctx context.Context, tx ImportTx, input BulkFamilyInput, roleID, wardID, familyID int64, row int, member MemberRow) (CreatedMember, error) {
	created := CreatedMember{Row: row}
	first := normalizeName(member.FirstName)
	last := normalizeName(member.LastName)

	var accountID *int64
	if email := normalizeEmail(member.Email); email != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("provision: hash member password: %w", err)
		}
		id, err := tx.InsertAccount(ctx, email, first+" "+last, string(hash), input.TenantID)
		if err != nil {
			return created, err
		}
		if err := tx.BindRole(ctx, id, roleID, input.ActorID); err != nil {
			return created, err
		}
		accountID = &id
	}

	memberID, err := tx.InsertMember(ctx, directory.Parishioner{
		AccountID: accountID,
		ParishID:  input.ParishID,
		WardID:    &wardID,
		FamilyID:  &familyID,
		FirstName: first,
		LastName:  last,
		Phone:     member.Phone,
		CreatedBy: input.ActorID,
	})
	if err != nil {
		return created, err
	}
	created.ParishionerID = memberID
	created.AccountID = accountID
	return created, nil
}

func validateMembers(members []MemberRow) []RowError {
	var errs []RowError
	seen := make(map[string]int, len(members))
	for i, m := range members {
		switch {
		case strings.TrimSpace(m.FirstName) == "" || strings.TrimSpace(m.LastName) == "":
			errs = append(errs, RowError{Row: i, Message: "first and last name required"})
		case m.Email != "" && !strings.Contains(m.Email, "@"):
			errs = append(errs, RowError{Row: i, Message: "invalid email"})
		default:
			if email := normalizeEmail(m.Email); email != "" {
				if prev, dup := seen[email]; dup {
					errs = append(errs, RowError{Row: i, Message: fmt.Sprintf("duplicate email, already used by row %d", prev)})
					continue
				}
				seen[email] = i
			}
		}
	}
	return errs
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeName collapses whitespace and title-cases imported names, which
// arrive in whatever casing the parish spreadsheet used.
func normalizeName(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	return cases.Title(language.Und).String(strings.ToLower(collapsed))
}
