package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parishdesk/parishdesk/internal/accounts"
	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/shared"
)

type fakeAccounts struct {
	nextID    int64
	byEmail   map[string]*accounts.Account
	deleted   []int64
	createErr error
	deleteErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byEmail: make(map[string]*accounts.Account)}
}

func (f *fakeAccounts) Create(_ context.Context, input accounts.NewAccount) (*accounts.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, ok := f.byEmail[email]; ok {
		return nil, fmt.Errorf("accounts: email already registered: %w", shared.ErrDuplicate)
	}
	f.nextID++
	acct := &accounts.Account{
		ID:       f.nextID,
		Email:    email,
		Name:     input.Name,
		TenantID: input.TenantID,
		IsActive: true,
	}
	f.byEmail[email] = acct
	return acct, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for email, acct := range f.byEmail {
		if acct.ID == id {
			delete(f.byEmail, email)
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAccounts) lookup(email string) *accounts.Account {
	return f.byEmail[strings.ToLower(email)]
}

type fakeRegistry struct {
	roles map[string]rbac.Role
}

func newFakeRegistry(codes ...string) *fakeRegistry {
	f := &fakeRegistry{roles: make(map[string]rbac.Role)}
	var id int64
	for _, code := range codes {
		id++
		f.roles[code] = rbac.Role{ID: id, Code: code, Status: rbac.StatusActive, IsSystemRole: true}
	}
	return f
}

func (f *fakeRegistry) GetByCode(_ context.Context, code string, _ *int64) (rbac.Role, error) {
	role, ok := f.roles[code]
	if !ok {
		return rbac.Role{}, fmt.Errorf("rbac: role %s: %w", code, shared.ErrNotFound)
	}
	return role, nil
}

type fakeBinder struct {
	bound     [][2]int64
	unbound   [][2]int64
	bindErr   error
	unbindErr error
}

func (f *fakeBinder) AssignRole(_ context.Context, userID, roleID int64, _ *int64, _ *time.Time) (rbac.UserRole, error) {
	if f.bindErr != nil {
		return rbac.UserRole{}, f.bindErr
	}
	f.bound = append(f.bound, [2]int64{userID, roleID})
	return rbac.UserRole{UserID: userID, RoleID: roleID, Status: rbac.StatusActive}, nil
}

func (f *fakeBinder) UnbindRole(_ context.Context, userID, roleID int64) error {
	if f.unbindErr != nil {
		return f.unbindErr
	}
	f.unbound = append(f.unbound, [2]int64{userID, roleID})
	for i, edge := range f.bound {
		if edge == [2]int64{userID, roleID} {
			f.bound = append(f.bound[:i], f.bound[i+1:]...)
			break
		}
	}
	return nil
}

type fakeDirectory struct {
	nextID   int64
	parishes map[int64]directory.Parish
	wards    map[int64]*directory.Ward
	families map[int64]directory.Family
	members  map[int64]*directory.Parishioner
	admins   map[int64]*directory.AdminProfile

	createParishionerErr error
	createAdminErr       error
	recountErr           error
	recounted            []int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		parishes: make(map[int64]directory.Parish),
		wards:    make(map[int64]*directory.Ward),
		families: make(map[int64]directory.Family),
		members:  make(map[int64]*directory.Parishioner),
		admins:   make(map[int64]*directory.AdminProfile),
	}
}

func (f *fakeDirectory) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeDirectory) addParish(name string) directory.Parish {
	p := directory.Parish{ID: f.id(), Name: name, IsActive: true}
	f.parishes[p.ID] = p
	return p
}

func (f *fakeDirectory) addWard(parishID int64, name string) *directory.Ward {
	w := &directory.Ward{ID: f.id(), ParishID: parishID, Name: name, IsActive: true}
	f.wards[w.ID] = w
	return w
}

func (f *fakeDirectory) WithTx(ctx context.Context, fn func(context.Context, directory.Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeDirectory) GetParish(_ context.Context, id int64) (directory.Parish, error) {
	if p, ok := f.parishes[id]; ok {
		return p, nil
	}
	return directory.Parish{}, fmt.Errorf("directory: parish %d: %w", id, shared.ErrNotFound)
}

func (f *fakeDirectory) GetWard(_ context.Context, id int64) (directory.Ward, error) {
	if w, ok := f.wards[id]; ok {
		return *w, nil
	}
	return directory.Ward{}, fmt.Errorf("directory: ward %d: %w", id, shared.ErrNotFound)
}

func (f *fakeDirectory) EnsureWard(_ context.Context, parishID int64, name string) (directory.Ward, error) {
	for _, w := range f.wards {
		if w.ParishID == parishID && w.Name == name {
			return *w, nil
		}
	}
	w := &directory.Ward{ID: f.id(), ParishID: parishID, Name: name, IsActive: true}
	f.wards[w.ID] = w
	return *w, nil
}

func (f *fakeDirectory) RecountWard(_ context.Context, wardID int64) (directory.Ward, error) {
	if f.recountErr != nil {
		return directory.Ward{}, f.recountErr
	}
	w, ok := f.wards[wardID]
	if !ok {
		return directory.Ward{}, fmt.Errorf("directory: ward %d: %w", wardID, shared.ErrNotFound)
	}
	w.TotalFamilies = 0
	for _, fam := range f.families {
		if fam.WardID == wardID {
			w.TotalFamilies++
		}
	}
	w.TotalMembers = 0
	for _, m := range f.members {
		if m.WardID != nil && *m.WardID == wardID && m.IsActive {
			w.TotalMembers++
		}
	}
	f.recounted = append(f.recounted, wardID)
	return *w, nil
}

func (f *fakeDirectory) GetFamily(_ context.Context, id int64) (directory.Family, error) {
	if fam, ok := f.families[id]; ok {
		return fam, nil
	}
	return directory.Family{}, fmt.Errorf("directory: family %d: %w", id, shared.ErrNotFound)
}

func (f *fakeDirectory) CreateFamily(_ context.Context, family directory.Family) (int64, error) {
	family.ID = f.id()
	f.families[family.ID] = family
	return family.ID, nil
}

func (f *fakeDirectory) CreateParishioner(_ context.Context, p directory.Parishioner) (int64, error) {
	if f.createParishionerErr != nil {
		return 0, f.createParishionerErr
	}
	p.ID = f.id()
	p.IsActive = true
	f.members[p.ID] = &p
	return p.ID, nil
}

func (f *fakeDirectory) GetParishioner(_ context.Context, id int64) (directory.Parishioner, error) {
	if m, ok := f.members[id]; ok {
		return *m, nil
	}
	return directory.Parishioner{}, fmt.Errorf("directory: parishioner %d: %w", id, shared.ErrNotFound)
}

func (f *fakeDirectory) DeleteParishioner(_ context.Context, id int64) error {
	delete(f.members, id)
	return nil
}

func (f *fakeDirectory) CreateAdminProfile(_ context.Context, profile directory.AdminProfile) (int64, error) {
	if f.createAdminErr != nil {
		return 0, f.createAdminErr
	}
	profile.ID = f.id()
	f.admins[profile.ID] = &profile
	return profile.ID, nil
}

func (f *fakeDirectory) DeleteAdminProfile(_ context.Context, id int64) error {
	delete(f.admins, id)
	return nil
}

type fakeSender struct {
	welcomed []string
}

func (f *fakeSender) WelcomeAccount(_ context.Context, email, _ string) {
	f.welcomed = append(f.welcomed, email)
}

// importState is the committed view of the fake import store.
type importState struct {
	nextID    int64
	wards     map[int64]directory.Ward
	families  map[int64]directory.Family
	members   map[int64]directory.Parishioner
	accounts  map[int64]string
	roleEdges [][2]int64
}

func (s importState) clone() importState {
	out := importState{
		nextID:   s.nextID,
		wards:    make(map[int64]directory.Ward, len(s.wards)),
		families: make(map[int64]directory.Family, len(s.families)),
		members:  make(map[int64]directory.Parishioner, len(s.members)),
		accounts: make(map[int64]string, len(s.accounts)),
	}
	for k, v := range s.wards {
		out.wards[k] = v
	}
	for k, v := range s.families {
		out.families[k] = v
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	out.roleEdges = append(out.roleEdges, s.roleEdges...)
	return out
}

// fakeImportStore emulates the transactional import boundary: writes go to
// a staged copy that only replaces the committed state when fn succeeds.
type fakeImportStore struct {
	state importState

	failMemberNamed  string
	failAccountEmail string
}

func newFakeImportStore() *fakeImportStore {
	return &fakeImportStore{state: importState{
		wards:    make(map[int64]directory.Ward),
		families: make(map[int64]directory.Family),
		members:  make(map[int64]directory.Parishioner),
		accounts: make(map[int64]string),
	}}
}

func (f *fakeImportStore) addWard(parishID int64, name string) directory.Ward {
	f.state.nextID++
	w := directory.Ward{ID: f.state.nextID, ParishID: parishID, Name: name, IsActive: true}
	f.state.wards[w.ID] = w
	return w
}

func (f *fakeImportStore) WithinTx(ctx context.Context, fn func(context.Context, ImportTx) error) error {
	staged := f.state.clone()
	tx := &fakeImportTx{state: &staged, store: f}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.state = staged
	return nil
}

type fakeImportTx struct {
	state *importState
	store *fakeImportStore
}

func (t *fakeImportTx) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *fakeImportTx) GetWard(_ context.Context, id int64) (directory.Ward, error) {
	if w, ok := t.state.wards[id]; ok {
		return w, nil
	}
	return directory.Ward{}, fmt.Errorf("provision: ward %d: %w", id, shared.ErrNotFound)
}

func (t *fakeImportTx) EnsureWard(_ context.Context, parishID int64, name string) (directory.Ward, error) {
	for _, w := range t.state.wards {
		if w.ParishID == parishID && w.Name == name {
			return w, nil
		}
	}
	w := directory.Ward{ID: t.id(), ParishID: parishID, Name: name, IsActive: true}
	t.state.wards[w.ID] = w
	return w, nil
}

func (t *fakeImportTx) InsertFamily(_ context.Context, family directory.Family) (int64, error) {
	family.ID = t.id()
	t.state.families[family.ID] = family
	return family.ID, nil
}

func (t *fakeImportTx) InsertAccount(_ context.Context, email, _, _ string, _ int64) (int64, error) {
	if email == t.store.failAccountEmail {
		return 0, fmt.Errorf("provision: insert member account: storage failure")
	}
	for _, existing := range t.state.accounts {
		if existing == email {
			return 0, fmt.Errorf("provision: insert member account: %w", shared.ErrDuplicate)
		}
	}
	id := t.id()
	t.state.accounts[id] = email
	return id, nil
}

func (t *fakeImportTx) BindRole(_ context.Context, userID, roleID int64, _ *int64) error {
	t.state.roleEdges = append(t.state.roleEdges, [2]int64{userID, roleID})
	return nil
}

func (t *fakeImportTx) InsertMember(_ context.Context, member directory.Parishioner) (int64, error) {
	if member.FirstName == t.store.failMemberNamed {
		return 0, fmt.Errorf("provision: insert member: storage failure")
	}
	member.ID = t.id()
	member.IsActive = true
	t.state.members[member.ID] = member
	return member.ID, nil
}

func (t *fakeImportTx) RecountWard(_ context.Context, wardID int64) (directory.Ward, error) {
	w, ok := t.state.wards[wardID]
	if !ok {
		return directory.Ward{}, fmt.Errorf("provision: ward %d: %w", wardID, shared.ErrNotFound)
	}
	w.TotalFamilies = 0
	for _, fam := range t.state.families {
		if fam.WardID == wardID {
			w.TotalFamilies++
		}
	}
	w.TotalMembers = 0
	for _, m := range t.state.members {
		if m.WardID != nil && *m.WardID == wardID && m.IsActive {
			w.TotalMembers++
		}
	}
	t.state.wards[wardID] = w
	return w, nil
}
