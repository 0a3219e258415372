package directory

import "time"

// Parish is the tenant boundary for custom roles and domain data.
type Parish struct {
	ID        int64
	Name      string
	City      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ward is a subdivision of a parish. TotalFamilies and TotalMembers are
// derived counters, recomputed from the authoritative child counts after
// every profile creation or deletion rather than maintained incrementally.
type Ward struct {
	ID            int64
	ParishID      int64
	Name          string
	TotalFamilies int
	TotalMembers  int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Family groups parishioners under a ward.
type Family struct {
	ID        int64
	WardID    int64
	Name      string
	HeadName  string
	CreatedBy *int64
	CreatedAt time.Time
}

// Parishioner is the domain profile of a parish member. AccountID links the
// profile to its authentication account; bulk-imported members may exist
// without one.
type Parishioner struct {
	ID        int64
	AccountID *int64
	ParishID  int64
	WardID    *int64
	FamilyID  *int64
	FirstName string
	LastName  string
	Phone     *string
	IsActive  bool
	CreatedBy *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdminProfile is the domain profile of a parish administrator.
type AdminProfile struct {
	ID        int64
	AccountID int64
	ParishID  int64
	Title     string
	CreatedBy *int64
	CreatedAt time.Time
}
