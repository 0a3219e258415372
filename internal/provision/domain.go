package provision

import (
	"fmt"

	"github.com/parishdesk/parishdesk/internal/accounts"
	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/rbac"
)

// AccountKind selects the default role bound to a freshly provisioned
// account.
type AccountKind string

const (
	KindParishioner  AccountKind = "PARISHIONER"
	KindParishAdmin  AccountKind = "PARISH_ADMIN"
	KindFamilyMember AccountKind = "FAMILY_MEMBER"
)

// defaultRoleCodes is the static kind to role-code mapping. A kind whose
// role is missing from the registry at provisioning time is a deployment
// bug, not caller input.
var defaultRoleCodes = map[AccountKind]string{
	KindParishioner:  rbac.RoleParishioner,
	KindParishAdmin:  rbac.RoleParishAdmin,
	KindFamilyMember: rbac.RoleFamilyMember,
}

// RoleCode returns the default role for the kind.
func (k AccountKind) RoleCode() (string, error) {
	code, ok := defaultRoleCodes[k]
	if !ok {
		return "", fmt.Errorf("provision: unknown account kind %q", k)
	}
	return code, nil
}

// AccountFields carries the authentication account half of a provisioning
// request.
type AccountFields struct {
	Email    string
	Name     string
	Password string
	TenantID *int64
}

// ParishionerFields carries the domain profile of a parish member.
type ParishionerFields struct {
	ParishID  int64
	WardID    *int64
	FamilyID  *int64
	FirstName string
	LastName  string
	Phone     *string
}

// AdminFields carries the domain profile of a parish administrator.
type AdminFields struct {
	ParishID int64
	Title    string
}

// ProfileFields holds exactly one profile variant matching the account
// kind.
type ProfileFields struct {
	Parishioner *ParishionerFields
	Admin       *AdminFields
}

// Result is the composite artifact of a successful single-principal
// provisioning run. All referenced rows exist when it is returned.
type Result struct {
	Account     *accounts.Account
	Parishioner *directory.Parishioner
	Admin       *directory.AdminProfile
}

// MemberRow is one row-shaped record of a family import, as produced by
// the CSV reader or the interactive bulk endpoint. Email is optional;
// members without one get a profile but no authentication account.
type MemberRow struct {
	FirstName string
	LastName  string
	Email     string
	Phone     *string
}

// RowError reports a per-row validation failure in collect mode. Row is
// the zero-based index into the submitted members slice.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// BulkFamilyInput describes one family import batch.
type BulkFamilyInput struct {
	TenantID   int64
	ParishID   int64
	WardID     *int64
	WardName   string
	FamilyName string
	HeadName   string
	Members    []MemberRow
	ActorID    *int64
	// CollectRowErrors selects the CSV batch policy: rows that fail
	// validation are reported in Errors while their siblings proceed.
	// When false any invalid row fails the whole request.
	CollectRowErrors bool
}

// CreatedMember identifies one imported member.
type CreatedMember struct {
	Row           int    `json:"row"`
	ParishionerID int64  `json:"parishioner_id"`
	AccountID     *int64 `json:"account_id,omitempty"`
}

// BulkFamilyResult is the partial-success shape of a family import.
type BulkFamilyResult struct {
	Family  directory.Family
	Ward    directory.Ward
	Created []CreatedMember
	Errors  []RowError
}
