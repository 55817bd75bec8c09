package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"marketplace/cache"
	"marketplace/db"
	"marketplace/identity"
	"marketplace/user"
	"marketplace/vendorprofile"
)

// store is an in-memory stand-in for the users and vendor_profiles tables.
// Writes made through a fakeTx stay pending until Commit.
type store struct {
	mu       sync.Mutex
	users    map[string]user.User
	profiles map[string]vendorprofile.Profile
}

func newStore() *store {
	return &store{users: map[string]user.User{}, profiles: map[string]vendorprofile.Profile{}}
}

func (s *store) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *store) profileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

type fakePool struct {
	store *store
	txs   []*fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{
		store:    f.store,
		users:    map[string]user.User{},
		profiles: map[string]vendorprofile.Profile{},
	}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePool) lastTx() *fakeTx {
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

func (f *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

type fakeTx struct {
	store     *store
	users     map[string]user.User
	profiles  map[string]vendorprofile.Profile
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for id, u := range f.users {
		f.store.users[id] = u
	}
	for id, p := range f.profiles {
		f.store.profiles[id] = p
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
		f.users = map[string]user.User{}
		f.profiles = map[string]vendorprofile.Profile{}
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

// view returns the rows visible to q: committed rows overlaid with the
// pending rows of q when it is a transaction.
func (s *store) view(q db.DBTX) (map[string]user.User, map[string]vendorprofile.Profile) {
	users := make(map[string]user.User, len(s.users))
	profiles := make(map[string]vendorprofile.Profile, len(s.profiles))
	for k, v := range s.users {
		users[k] = v
	}
	for k, v := range s.profiles {
		profiles[k] = v
	}
	if tx, ok := q.(*fakeTx); ok {
		for k, v := range tx.users {
			users[k] = v
		}
		for k, v := range tx.profiles {
			profiles[k] = v
		}
	}
	return users, profiles
}

func (s *store) putUser(q db.DBTX, u user.User) {
	if tx, ok := q.(*fakeTx); ok {
		tx.users[u.ID] = u
		return
	}
	s.users[u.ID] = u
}

func (s *store) putProfile(q db.DBTX, p vendorprofile.Profile) {
	if tx, ok := q.(*fakeTx); ok {
		tx.profiles[p.ID] = p
		return
	}
	s.profiles[p.ID] = p
}

// fakeUsers implements user.Repository and vendorprofile.OwnerFlagger.
type fakeUsers struct {
	store     *store
	createErr error
}

func (f *fakeUsers) Create(_ context.Context, q db.DBTX, params user.CreateParams) (user.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.createErr != nil {
		return user.User{}, f.createErr
	}
	users, _ := f.store.view(q)
	for _, u := range users {
		if u.Email == params.Email {
			return user.User{}, user.ErrDuplicateEmail
		}
		if params.ExternalID != nil && u.ExternalID != nil && *u.ExternalID == *params.ExternalID {
			return user.User{}, user.ErrDuplicateExternalID
		}
	}
	u := user.User{
		ID:               params.ID,
		ExternalID:       params.ExternalID,
		Type:             params.Type,
		FirstName:        params.FirstName,
		LastName:         params.LastName,
		Email:            params.Email,
		Phone:            params.Phone,
		IsVerified:       params.IsVerified,
		VerifiedAt:       params.VerifiedAt,
		IsProfileUpdated: params.IsProfileUpdated,
		Status:           params.Status,
		CreatedBy:        &params.CreatedBy,
		CreatedAt:        time.Now(),
	}
	f.store.putUser(q, u)
	return u, nil
}

func (f *fakeUsers) find(q db.DBTX, match func(user.User) bool) (user.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	users, _ := f.store.view(q)
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, q db.DBTX, id string) (user.User, error) {
	return f.find(q, func(u user.User) bool { return u.ID == id })
}

func (f *fakeUsers) GetByExternalID(_ context.Context, q db.DBTX, externalID string) (user.User, error) {
	return f.find(q, func(u user.User) bool { return u.ExternalID != nil && *u.ExternalID == externalID })
}

func (f *fakeUsers) GetByEmail(_ context.Context, q db.DBTX, email string) (user.User, error) {
	return f.find(q, func(u user.User) bool { return u.Email == email })
}

func (f *fakeUsers) FindByEmailOrPhone(_ context.Context, q db.DBTX, email, phone string) (user.User, error) {
	return f.find(q, func(u user.User) bool {
		return u.Email == email || (phone != "" && u.Phone != nil && *u.Phone == phone)
	})
}

func (f *fakeUsers) ListByType(context.Context, db.DBTX, user.Type) ([]user.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUsers) ListVendorsWithProfile(context.Context, db.DBTX) ([]user.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUsers) UpdateStatus(context.Context, db.DBTX, string, user.StatusUpdate) (user.User, error) {
	return user.User{}, errors.New("not implemented")
}

func (f *fakeUsers) UpdateVerification(context.Context, db.DBTX, string, bool, *time.Time, string) (user.User, error) {
	return user.User{}, errors.New("not implemented")
}

func (f *fakeUsers) UpdateProfile(context.Context, db.DBTX, string, user.ProfileUpdate) (user.User, error) {
	return user.User{}, errors.New("not implemented")
}

func (f *fakeUsers) SetProfileUpdated(_ context.Context, q db.DBTX, id string, updated bool, _ string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	users, _ := f.store.view(q)
	u, ok := users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.IsProfileUpdated = updated
	f.store.putUser(q, u)
	return nil
}

func (f *fakeUsers) Delete(context.Context, db.DBTX, string) error {
	return errors.New("not implemented")
}

// fakeProfiles implements vendorprofile.Repository.
type fakeProfiles struct {
	store *store
	// createErr, when set, replaces the insert result.
	createErr error
	// skipCheck hides committed rows from the existence check, simulating a
	// concurrent onboarding that has not committed yet when this one checks.
	skipCheck bool
}

func (f *fakeProfiles) Create(_ context.Context, q db.DBTX, params vendorprofile.CreateParams) (vendorprofile.Profile, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.createErr != nil {
		return vendorprofile.Profile{}, f.createErr
	}
	_, profiles := f.store.view(q)
	for _, p := range profiles {
		if p.UserID == params.UserID {
			return vendorprofile.Profile{}, &pgconn.PgError{Code: "23505", ConstraintName: "vendor_profiles_user_id_key"}
		}
	}
	p := vendorprofile.Profile{
		ID:                              params.ID,
		UserID:                          params.UserID,
		BusinessName:                    params.Business.BusinessName,
		CompanyName:                     params.Business.CompanyName,
		BusinessType:                    params.Business.BusinessType,
		Website:                         params.Business.Website,
		Country:                         params.Business.Country,
		Logo:                            params.Logo,
		BusinessRegistrationCertificate: params.Certificate,
	}
	f.store.putProfile(q, p)
	return p, nil
}

func (f *fakeProfiles) GetByID(_ context.Context, q db.DBTX, id string) (vendorprofile.Profile, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	_, profiles := f.store.view(q)
	if p, ok := profiles[id]; ok {
		return p, nil
	}
	return vendorprofile.Profile{}, vendorprofile.ErrNotFound
}

func (f *fakeProfiles) GetByUserID(_ context.Context, q db.DBTX, userID string) (vendorprofile.Profile, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.skipCheck {
		return vendorprofile.Profile{}, vendorprofile.ErrNotFound
	}
	_, profiles := f.store.view(q)
	for _, p := range profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return vendorprofile.Profile{}, vendorprofile.ErrNotFound
}

func (f *fakeProfiles) UpdateFiles(context.Context, db.DBTX, string, *string, *string, string) (vendorprofile.Profile, error) {
	return vendorprofile.Profile{}, errors.New("not implemented")
}

func (f *fakeProfiles) UpdateBusiness(context.Context, db.DBTX, string, vendorprofile.Business, string) (vendorprofile.Profile, error) {
	return vendorprofile.Profile{}, errors.New("not implemented")
}

func (f *fakeProfiles) Delete(context.Context, db.DBTX, string) (vendorprofile.Profile, error) {
	return vendorprofile.Profile{}, errors.New("not implemented")
}

// fakeProvider is an in-memory identity provider with both pools.
type fakeProvider struct {
	mu sync.Mutex

	// identities by tenant then username.
	identities  map[identity.Tenant]map[string]identity.Identity
	passwords   map[string]string
	codes       map[string]string
	expired     map[string]bool
	sessions    map[string]string
	verified    []string
	calls       map[string]int
	lastAttrs   map[string]string
	registerErr error
	seq         int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		identities: map[identity.Tenant]map[string]identity.Identity{
			identity.TenantGeneral: {},
			identity.TenantAdmin:   {},
		},
		passwords: map[string]string{},
		codes:     map[string]string{},
		expired:   map[string]bool{},
		sessions:  map[string]string{},
		calls:     map[string]int{},
	}
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) Register(_ context.Context, t identity.Tenant, username, password string, attrs map[string]string) (identity.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Register"]++
	f.lastAttrs = attrs
	if f.registerErr != nil {
		return identity.Registration{}, f.registerErr
	}
	if _, ok := f.identities[t][username]; ok {
		return identity.Registration{}, &identity.ProviderError{Op: "sign up", Code: "UsernameExistsException", Message: "User already exists", Err: identity.ErrIdentityExists}
	}
	f.seq++
	sub := fmt.Sprintf("sub-%d", f.seq)
	withSub := map[string]string{identity.AttrSubject: sub}
	for k, v := range attrs {
		withSub[k] = v
	}
	f.identities[t][username] = identity.NewIdentity(username, withSub)
	f.passwords[username] = password
	f.codes[username] = "123456"
	return identity.Registration{
		Subject:  sub,
		Delivery: &identity.CodeDelivery{Destination: "a***@example.com", Medium: "EMAIL", AttributeName: "email"},
	}, nil
}

func (f *fakeProvider) ConfirmRegistration(_ context.Context, _ identity.Tenant, username, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ConfirmRegistration"]++
	if f.expired[username] {
		return &identity.ProviderError{Op: "confirm sign up", Code: "ExpiredCodeException", Message: "expired", Err: identity.ErrCodeExpired}
	}
	if f.codes[username] != code {
		return &identity.ProviderError{Op: "confirm sign up", Code: "CodeMismatchException", Message: "mismatch", Err: identity.ErrCodeMismatch}
	}
	return nil
}

func (f *fakeProvider) AdminConfirm(context.Context, identity.Tenant, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["AdminConfirm"]++
	return nil
}

func (f *fakeProvider) MarkVerified(_ context.Context, _ identity.Tenant, _ string, attribute string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["MarkVerified"]++
	f.verified = append(f.verified, attribute)
	return nil
}

func (f *fakeProvider) ResendCode(context.Context, identity.Tenant, string) (identity.CodeDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ResendCode"]++
	return identity.CodeDelivery{Medium: "EMAIL"}, nil
}

func (f *fakeProvider) ResendCodeSMS(context.Context, identity.Tenant, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ResendCodeSMS"]++
	return nil
}

func (f *fakeProvider) InitiateCustomAuth(_ context.Context, t identity.Tenant, username string) (identity.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["InitiateCustomAuth"]++
	if _, ok := f.identities[t][username]; !ok {
		return identity.Challenge{}, &identity.ProviderError{Op: "initiate", Code: "UserNotFoundException", Message: "User does not exist.", Err: identity.ErrIdentityNotFound}
	}
	session := "session-" + username
	f.sessions[session] = username
	return identity.Challenge{Session: session, Name: "CUSTOM_CHALLENGE"}, nil
}

func (f *fakeProvider) RespondToChallenge(_ context.Context, _ identity.Tenant, username, session, answer string) (identity.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RespondToChallenge"]++
	if f.sessions[session] != username {
		return identity.Tokens{}, &identity.ProviderError{Op: "respond", Code: "NotAuthorizedException", Message: "Invalid session for the user.", Err: identity.ErrNotAuthorized}
	}
	if f.codes[username] != answer {
		return identity.Tokens{}, &identity.ProviderError{Op: "respond", Code: "NotAuthorizedException", Message: "Incorrect username or password.", Err: identity.ErrNotAuthorized}
	}
	delete(f.sessions, session)
	return identity.Tokens{AccessToken: "access-" + username, IDToken: "id-" + username, RefreshToken: "refresh-" + username}, nil
}

func (f *fakeProvider) PasswordAuth(_ context.Context, t identity.Tenant, username, password string) (identity.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PasswordAuth"]++
	if _, ok := f.identities[t][username]; !ok {
		return identity.Tokens{}, &identity.ProviderError{Op: "auth", Code: "UserNotFoundException", Err: identity.ErrIdentityNotFound}
	}
	if f.passwords[username] != password {
		return identity.Tokens{}, &identity.ProviderError{Op: "auth", Code: "NotAuthorizedException", Err: identity.ErrNotAuthorized}
	}
	return identity.Tokens{AccessToken: "admin-access", IDToken: "admin-id", RefreshToken: "admin-refresh"}, nil
}

func (f *fakeProvider) GetUserByToken(_ context.Context, t identity.Tenant, accessToken string) (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetUserByToken"]++
	for username, id := range f.identities[t] {
		if "access-"+username == accessToken {
			return id, nil
		}
	}
	return identity.Identity{}, identity.ErrInvalidToken
}

func (f *fakeProvider) FindByPhone(_ context.Context, t identity.Tenant, phone string) (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FindByPhone"]++
	for _, id := range f.identities[t] {
		if id.Phone == phone {
			return id, nil
		}
	}
	return identity.Identity{}, identity.ErrIdentityNotFound
}

func (f *fakeProvider) GetUserAttributes(_ context.Context, t identity.Tenant, username string) (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetUserAttributes"]++
	id, ok := f.identities[t][username]
	if !ok {
		return identity.Identity{}, identity.ErrIdentityNotFound
	}
	return id, nil
}

func (f *fakeProvider) ForgotPassword(context.Context, identity.Tenant, string) (identity.CodeDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ForgotPassword"]++
	return identity.CodeDelivery{Medium: "EMAIL"}, nil
}

func (f *fakeProvider) ConfirmForgotPassword(_ context.Context, _ identity.Tenant, username, code, newPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ConfirmForgotPassword"]++
	if code != "654321" {
		return &identity.ProviderError{Op: "confirm forgot", Code: "CodeMismatchException", Err: identity.ErrCodeMismatch}
	}
	f.passwords[username] = newPassword
	return nil
}

type fakeVerifier struct {
	principal identity.Principal
	err       error
}

func (f *fakeVerifier) Verify(context.Context, string) (identity.Principal, error) {
	return f.principal, f.err
}

type harness struct {
	svc      *Service
	pool     *fakePool
	store    *store
	users    *fakeUsers
	profiles *fakeProfiles
	provider *fakeProvider
	verifier *fakeVerifier
}

func newHarness() *harness {
	st := newStore()
	pool := &fakePool{store: st}
	users := &fakeUsers{store: st}
	profiles := &fakeProfiles{store: st}
	provider := newFakeProvider()
	verifier := &fakeVerifier{}

	ids := 0
	svc := NewService(Deps{
		Pool:     pool,
		Users:    users,
		Profiles: vendorprofile.NewService(pool, profiles, users, nil),
		Provider: provider,
		Phones:   identity.NewPhoneResolver(provider, nil, time.Hour, nil),
		Tokens:   verifier,
	})
	svc.idGenerator = func() string {
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}
	svc.now = func() time.Time { return time.Date(2025, 7, 25, 6, 50, 46, 0, time.UTC) }

	return &harness{
		svc:      svc,
		pool:     pool,
		store:    st,
		users:    users,
		profiles: profiles,
		provider: provider,
		verifier: verifier,
	}
}

// mapIndex is an in-memory identity.PhoneIndex.
type mapIndex struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapIndex() *mapIndex { return &mapIndex{entries: map[string]string{}} }

func (m *mapIndex) Get(_ context.Context, namespace, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[namespace+":"+key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *mapIndex) Set(_ context.Context, namespace, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[namespace+":"+key] = value
	return nil
}

func (m *mapIndex) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, namespace+":"+key)
	return nil
}

func (m *mapIndex) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
