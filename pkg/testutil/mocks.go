// Package testutil provides in-memory fakes of the Supabase-backed
// repositories and the identity service for package tests.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/printflow/portal/internal/portal/orders"
	"github.com/printflow/portal/internal/portal/payments"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/supabase/client"
)

// MockProfileRepository is a profile.Repository keyed by user id that counts
// every call, like a customers table behind a unique user_id index.
type MockProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile

	reads   atomic.Int32
	inserts atomic.Int32
	updates atomic.Int32

	// GetErr, InsertErr and UpdateErr fail the matching call when set.
	GetErr    error
	InsertErr error
	UpdateErr error
	// BeforeInsert runs before the uniqueness check. Tests use it to hold
	// concurrent inserts at the same point.
	BeforeInsert func()
}

var _ profile.Repository = (*MockProfileRepository)(nil)

// NewMockProfileRepository creates a repository seeded with profiles.
func NewMockProfileRepository(seed ...*profile.Profile) *MockProfileRepository {
	m := &MockProfileRepository{profiles: make(map[string]*profile.Profile)}
	for _, p := range seed {
		m.profiles[p.UserID] = p.Clone()
	}
	return m
}

func (m *MockProfileRepository) GetByUserID(_ context.Context, userID string) (*profile.Profile, error) {
	m.reads.Add(1)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MockProfileRepository) InsertIfAbsent(_ context.Context, p *profile.Profile) (*profile.Profile, bool, error) {
	m.inserts.Add(1)
	if m.InsertErr != nil {
		return nil, false, m.InsertErr
	}
	if m.BeforeInsert != nil {
		m.BeforeInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[p.UserID]; exists {
		return nil, false, nil
	}
	stored := p.Clone()
	stored.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.profiles[p.UserID] = stored
	return stored.Clone(), true, nil
}

func (m *MockProfileRepository) Update(_ context.Context, id string, patch profile.Patch, now time.Time) error {
	m.updates.Add(1)
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id {
			patch.Apply(p)
			p.UpdatedAt = now.UTC().Format(time.RFC3339)
			return nil
		}
	}
	return nil
}

// Reads returns the number of GetByUserID calls.
func (m *MockProfileRepository) Reads() int { return int(m.reads.Load()) }

// Inserts returns the number of InsertIfAbsent calls.
func (m *MockProfileRepository) Inserts() int { return int(m.inserts.Load()) }

// Updates returns the number of Update calls.
func (m *MockProfileRepository) Updates() int { return int(m.updates.Load()) }

// Rows returns the number of stored profiles.
func (m *MockProfileRepository) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

// Stored returns a copy of the row owned by userID.
func (m *MockProfileRepository) Stored(userID string) *profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID].Clone()
}

// MockOrderRepository serves orders per customer. Rows are returned in the
// order they were added, which tests treat as newest first.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string][]orders.Order
	Err    error
}

var _ orders.Repository = (*MockOrderRepository)(nil)

// NewMockOrderRepository creates an empty repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string][]orders.Order)}
}

// Add appends orders for their customers.
func (m *MockOrderRepository) Add(list ...orders.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range list {
		m.orders[o.CustomerID] = append(m.orders[o.CustomerID], o)
	}
}

func (m *MockOrderRepository) List(_ context.Context, customerID string, limit int) ([]orders.Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []orders.Order
	for _, o := range m.orders[customerID] {
		if !o.IsDeleted {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockOrderRepository) Get(_ context.Context, customerID string, id int64) (*orders.Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders[customerID] {
		if o.ID == id && !o.IsDeleted {
			found := o
			return &found, nil
		}
	}
	return nil, orders.ErrNotFound
}

// MockPaymentRepository serves payments per customer, newest first in
// insertion order.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string][]payments.Payment
	Err      error
}

var _ payments.Repository = (*MockPaymentRepository)(nil)

// NewMockPaymentRepository creates an empty repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{payments: make(map[string][]payments.Payment)}
}

// Add appends payments for their customers.
func (m *MockPaymentRepository) Add(list ...payments.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range list {
		m.payments[p.CustomerID] = append(m.payments[p.CustomerID], p)
	}
}

func (m *MockPaymentRepository) List(_ context.Context, customerID string, limit int) ([]payments.Payment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]payments.Payment(nil), m.payments[customerID]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepository) Get(_ context.Context, customerID, id string) (*payments.Payment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments[customerID] {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, payments.ErrNotFound
}

// MockTicketRepository stores support tickets in memory.
type MockTicketRepository struct {
	mu      sync.Mutex
	tickets []support.Ticket
	clock   time.Time
	Err     error
}

var _ support.Repository = (*MockTicketRepository)(nil)

// NewMockTicketRepository creates an empty repository.
func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (m *MockTicketRepository) List(_ context.Context, customerID string) ([]support.Ticket, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []support.Ticket
	for _, t := range m.tickets {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *MockTicketRepository) Create(_ context.Context, t *support.Ticket) (*support.Ticket, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *t
	stored.ID = uuid.NewString()
	// Each ticket is a minute newer than the last so ordering is stable.
	m.clock = m.clock.Add(time.Minute)
	stored.CreatedAt = m.clock.Format(time.RFC3339)
	m.tickets = append(m.tickets, stored)
	return &stored, nil
}

// MockAuthenticator is an in-memory identity service with password sign-in,
// signup, refresh and logout.
type MockAuthenticator struct {
	mu        sync.Mutex
	users     map[string]*mockUser // email -> user
	refreshes map[string]string    // refresh token -> email
	accesses  map[string]string    // access token -> email
	sequence  int

	// ConfirmEmail makes SignUp return a user without a session.
	ConfirmEmail bool
	// TokenTTL is the lifetime of issued access tokens. Defaults to an hour.
	TokenTTL time.Duration
	// SignOutErr, RefreshErr and ResetErr fail the matching call when set.
	SignOutErr error
	RefreshErr error
	ResetErr   error

	SignOuts []string
	Resets   []ResetRequest
}

// ResetRequest records a password recovery call.
type ResetRequest struct {
	Email      string
	RedirectTo string
}

type mockUser struct {
	user     client.User
	password string
}

// NewMockAuthenticator creates an identity service with no users.
func NewMockAuthenticator() *MockAuthenticator {
	return &MockAuthenticator{
		users:     make(map[string]*mockUser),
		refreshes: make(map[string]string),
		accesses:  make(map[string]string),
	}
}

// AddUser registers a confirmed user and returns its id.
func (m *MockAuthenticator) AddUser(email, password string, metadata map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUserLocked(email, password, metadata)
}

func (m *MockAuthenticator) addUserLocked(email, password string, metadata map[string]any) string {
	id := uuid.NewString()
	m.users[email] = &mockUser{
		user:     client.User{ID: id, Email: email, Role: "authenticated", UserMetadata: metadata},
		password: password,
	}
	return id
}

func (m *MockAuthenticator) SignInWithPassword(_ context.Context, email, password string) (*client.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.password != password {
		return nil, client.NewAPIError(http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
	}
	return m.issueLocked(u), nil
}

func (m *MockAuthenticator) SignUp(_ context.Context, params client.SignUpParams) (*client.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[params.Email]; exists {
		return nil, client.NewAPIError(http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
	}
	if len(params.Password) < 6 {
		return nil, client.NewAPIError(http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters")
	}
	m.addUserLocked(params.Email, params.Password, params.Data)
	u := m.users[params.Email]
	if m.ConfirmEmail {
		user := u.user
		return &client.AuthResponse{User: &user}, nil
	}
	return m.issueLocked(u), nil
}

func (m *MockAuthenticator) RefreshSession(_ context.Context, refreshToken string) (*client.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	email, ok := m.refreshes[refreshToken]
	if !ok {
		return nil, client.NewAPIError(http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
	}
	delete(m.refreshes, refreshToken)
	return m.issueLocked(m.users[email]), nil
}

func (m *MockAuthenticator) SignOut(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignOuts = append(m.SignOuts, accessToken)
	if m.SignOutErr == nil {
		delete(m.accesses, accessToken)
	}
	return m.SignOutErr
}

func (m *MockAuthenticator) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resets = append(m.Resets, ResetRequest{Email: email, RedirectTo: redirectTo})
	return m.ResetErr
}

func (m *MockAuthenticator) GetUser(_ context.Context, accessToken string) (*client.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email, ok := m.accesses[accessToken]
	if !ok {
		return nil, client.NewAPIError(http.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}
	user := m.users[email].user
	return &user, nil
}

func (m *MockAuthenticator) issueLocked(u *mockUser) *client.AuthResponse {
	m.sequence++
	ttl := m.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	refresh := fmt.Sprintf("refresh-%d", m.sequence)
	access := fmt.Sprintf("access-%s-%d", u.user.ID, m.sequence)
	m.refreshes[refresh] = u.user.Email
	m.accesses[access] = u.user.Email
	user := u.user
	return &client.AuthResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(ttl / time.Second),
		RefreshToken: refresh,
		User:         &user,
	}
}
