package directory

import "context"

// Repository defines data access for parishes, wards, families and
// profiles. WithTx yields a Repository bound to one transaction; the bulk
// family import runs every member insert inside it so any hard failure
// rolls back the whole batch.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetParish(ctx context.Context, id int64) (Parish, error)
	GetWard(ctx context.Context, id int64) (Ward, error)
	// EnsureWard returns the ward with the given name in the parish,
	// creating it when absent.
	EnsureWard(ctx context.Context, parishID int64, name string) (Ward, error)
	// RecountWard recomputes total_families/total_members from the
	// authoritative child counts and persists them.
	RecountWard(ctx context.Context, wardID int64) (Ward, error)

	GetFamily(ctx context.Context, id int64) (Family, error)
	CreateFamily(ctx context.Context, family Family) (int64, error)

	CreateParishioner(ctx context.Context, p Parishioner) (int64, error)
	GetParishioner(ctx context.Context, id int64) (Parishioner, error)
	DeleteParishioner(ctx context.Context, id int64) error

	CreateAdminProfile(ctx context.Context, profile AdminProfile) (int64, error)
	DeleteAdminProfile(ctx context.Context, id int64) error
}
