package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/clock"
	"github.com/wolfeidau/timax-console/internal/credentials"
)

var testStart = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

var testPair = credentials.Pair{AccessToken: "access-1", RefreshToken: "refresh-1"}

func testIdentity() *Identity {
	return &Identity{
		ID:       "b7d6c1e0",
		Email:    "manager@timax.example",
		FullName: "Grace Manager",
		Role:     RoleManager,
		Branch:   &Branch{ID: "br-1", Name: "Nairobi", Code: "NBO"},
		IsActive: true,
	}
}

// fakeBackend is a scriptable AuthBackend.
type fakeBackend struct {
	mu sync.Mutex

	loginErr    error
	identityErr error
	changeErr   error
	profileErr  error
	rotate      *credentials.Pair

	loginCalls    int
	identityCalls int
	logoutCalls   int
	logoutPairs   []credentials.Pair
	changeCalls   int
	changePairs   []credentials.Pair
	profileCalls  int

	// when set, CurrentIdentity signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (f *fakeBackend) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	err := f.loginErr
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: testPair, Identity: testIdentity()}, nil
}

func (f *fakeBackend) CurrentIdentity(ctx context.Context, pair credentials.Pair) (*IdentityResult, error) {
	f.mu.Lock()
	f.identityCalls++
	err := f.identityErr
	rotate := f.rotate
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &IdentityResult{Identity: testIdentity(), Tokens: rotate}, nil
}

func (f *fakeBackend) Logout(ctx context.Context, pair credentials.Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.logoutPairs = append(f.logoutPairs, pair)
	return nil
}

func (f *fakeBackend) ChangePassword(ctx context.Context, pair credentials.Pair, change PasswordChange) error {
	f.mu.Lock()
	f.changeCalls++
	f.changePairs = append(f.changePairs, pair)
	err := f.changeErr
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return err
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, pair credentials.Pair, update ProfileUpdate) (*Identity, error) {
	f.mu.Lock()
	f.profileCalls++
	err := f.profileErr
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}
	identity := testIdentity()
	if update.FirstName != nil {
		identity.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		identity.LastName = *update.LastName
	}
	if update.Email != nil {
		identity.Email = *update.Email
	}
	if update.Phone != nil {
		identity.Phone = *update.Phone
	}
	identity.FullName = strings.TrimSpace(identity.FirstName + " " + identity.LastName)
	return identity, nil
}

func (f *fakeBackend) setIdentityErr(err error) {
	f.mu.Lock()
	f.identityErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) block() {
	f.mu.Lock()
	f.started = make(chan struct{})
	f.release = make(chan struct{})
	f.mu.Unlock()
}

// unblock stops later calls from blocking and returns the release channel
// of the call already waiting.
func (f *fakeBackend) unblock() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	release := f.release
	f.started, f.release = nil, nil
	return release
}

func (f *fakeBackend) counts() (login, identity, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.identityCalls, f.logoutCalls
}

type harness struct {
	store       *Store
	backend     *fakeBackend
	storage     *credentials.MemoryStore
	broadcaster *broadcast.Broadcaster
	hub         *activity.Hub
	clock       *clock.Fake
}

func newHarness(cfg Config) *harness {
	clk := clock.NewFake(testStart)
	h := &harness{
		backend:     &fakeBackend{},
		storage:     credentials.NewMemoryStore(),
		broadcaster: broadcast.New(),
		hub:         activity.NewHub(clk.Now),
		clock:       clk,
	}
	store, err := NewStore(cfg, Dependencies{
		Backend:     h.backend,
		Storage:     h.storage,
		Broadcaster: h.broadcaster,
		Activity:    h.hub,
		Clock:       clk,
	})
	if err != nil {
		panic(err)
	}
	h.store = store
	return h
}

func (h *harness) storedPair() *credentials.Pair {
	pair, err := h.storage.Get()
	if err != nil {
		return nil
	}
	return pair
}
