package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-tenant/pkg/domain"
)

// fakeRegistry serves canned tenant accounts and counts lookups.
type fakeRegistry struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*domain.TenantAccount
	byKey    map[string]*domain.TenantAccount
	err      error
	idCalls  int
	keyCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		byID:  make(map[uuid.UUID]*domain.TenantAccount),
		byKey: make(map[string]*domain.TenantAccount),
	}
}

func (r *fakeRegistry) add(account *domain.TenantAccount) {
	r.byID[account.Tenant.ID] = account
	r.byKey[account.Tenant.Key] = account
}

func (r *fakeRegistry) FindTenantByID(_ context.Context, id uuid.UUID) (*domain.TenantAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.byID[id], nil
}

func (r *fakeRegistry) FindTenantByKey(_ context.Context, key string) (*domain.TenantAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.byKey[key], nil
}

func (r *fakeRegistry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idCalls + r.keyCalls
}

// fakeClient counts Close calls.
type fakeClient struct {
	url string

	mu     sync.Mutex
	closed int
}

func (c *fakeClient) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (c *fakeClient) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, nil
}
func (c *fakeClient) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }
func (c *fakeClient) PingContext(context.Context) error                        { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConnector records every constructed client.
type fakeConnector struct {
	mu      sync.Mutex
	clients []*fakeClient
	err     error
}

func (f *fakeConnector) Connect(_ context.Context, databaseURL string) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeClient{url: databaseURL}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeConnector) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func activeAccount(key string) *domain.TenantAccount {
	id := uuid.New()
	return &domain.TenantAccount{
		Tenant: domain.Tenant{
			ID:          id,
			Key:         key,
			Name:        key,
			Status:      domain.TenantStatusActive,
			DatabaseURL: "postgres://db.internal/" + key,
		},
		Subscription: &domain.Subscription{
			ID:                 uuid.New(),
			TenantID:           id,
			Status:             domain.SubscriptionStatusActive,
			CurrentPeriodStart: time.Now().Add(-24 * time.Hour),
			CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
		},
	}
}

type testEnv struct {
	mgr       *Manager
	reg       *fakeRegistry
	connector *fakeConnector
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(cfg Config) *testEnv {
	reg := newFakeRegistry()
	connector := &fakeConnector{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mgr := NewManager(reg, connector, cfg)
	mgr.now = clock.Now
	return &testEnv{mgr: mgr, reg: reg, connector: connector, clock: clock}
}

// waitFor polls until cond holds or the deadline passes. Async client release
// happens on goroutines, so close counts need a grace window.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestResolve_IdentifierMissing(t *testing.T) {
	env := newTestEnv(Config{})

	_, err := env.mgr.Resolve(context.Background(), Identifier{})
	te, ok := domain.AsTenantError(err)
	if !ok || te.Code != domain.ErrCodeIdentifierMissing {
		t.Fatalf("got %v, want TENANT_IDENTIFIER_MISSING", err)
	}
	if env.reg.calls() != 0 {
		t.Errorf("registry consulted %d times for a missing identifier", env.reg.calls())
	}
}

func TestResolve_NotFound(t *testing.T) {
	env := newTestEnv(Config{})

	_, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "ghost"})
	te, ok := domain.AsTenantError(err)
	if !ok || te.Code != domain.ErrCodeTenantNotFound {
		t.Fatalf("got %v, want TENANT_NOT_FOUND", err)
	}
	if te.TenantKey != "ghost" {
		t.Errorf("TenantKey = %q, want the tried key", te.TenantKey)
	}
	if env.connector.count() != 0 {
		t.Error("connector invoked for a missing tenant")
	}
}

func TestResolve_CacheHitAvoidsIO(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("acme"))

	first, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if first != second {
		t.Error("second resolve did not return the cached context")
	}
	if env.reg.calls() != 1 {
		t.Errorf("registry calls = %d, want 1", env.reg.calls())
	}
	if env.connector.count() != 1 {
		t.Errorf("connector calls = %d, want 1", env.connector.count())
	}
}

func TestResolve_KeyNormalizationSharesCacheEntry(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("acme"))

	first, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "  ACME "})
	if err != nil {
		t.Fatalf("resolve with unnormalized key: %v", err)
	}

	if first != second {
		t.Error("unnormalized key missed the cache entry")
	}
	if env.reg.calls() != 1 {
		t.Errorf("registry calls = %d, want 1", env.reg.calls())
	}
}

func TestResolve_EndToEnd(t *testing.T) {
	env := newTestEnv(Config{})
	account := activeAccount("acme")
	account.Subscription.Plan = &domain.Plan{ID: uuid.New(), Code: "pro"}
	env.reg.add(account)

	tctx, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "ACME "})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if tctx.Tenant.ID != account.Tenant.ID {
		t.Errorf("Tenant.ID = %s, want %s", tctx.Tenant.ID, account.Tenant.ID)
	}
	if tctx.Plan == nil || tctx.Plan.Code != "pro" {
		t.Error("plan not carried into the context")
	}
	if got := env.connector.client(0).url; got != account.Tenant.DatabaseURL {
		t.Errorf("client bound to %q, want %q", got, account.Tenant.DatabaseURL)
	}
}

func TestResolve_TTLExpiryReResolvesAndDisconnects(t *testing.T) {
	env := newTestEnv(Config{CacheTTL: 5 * time.Minute})
	env.reg.add(activeAccount("acme"))

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	env.clock.Advance(5*time.Minute + time.Second)

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}

	if env.reg.calls() != 2 {
		t.Errorf("registry calls = %d, want 2 after TTL expiry", env.reg.calls())
	}
	if env.connector.count() != 2 {
		t.Errorf("connector calls = %d, want 2 after TTL expiry", env.connector.count())
	}
	old := env.connector.client(0)
	waitFor(t, func() bool { return old.closeCount() == 1 })
}

func TestResolve_SlidingTTLRefreshedByAccess(t *testing.T) {
	env := newTestEnv(Config{CacheTTL: 5 * time.Minute})
	env.reg.add(activeAccount("acme"))

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Keep touching the entry; each access restarts the idle window.
	for i := 0; i < 3; i++ {
		env.clock.Advance(4 * time.Minute)
		if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	if env.reg.calls() != 1 {
		t.Errorf("registry calls = %d, want 1 while the entry stays warm", env.reg.calls())
	}
}

func TestResolve_LRUEvictionByAccessTime(t *testing.T) {
	env := newTestEnv(Config{CacheSize: 2, CacheTTL: time.Hour})
	env.reg.add(activeAccount("alpha"))
	env.reg.add(activeAccount("bravo"))
	env.reg.add(activeAccount("charlie"))

	resolve := func(key string) {
		t.Helper()
		if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: key}); err != nil {
			t.Fatalf("resolve %s: %v", key, err)
		}
	}

	resolve("alpha")
	env.clock.Advance(time.Minute)
	resolve("bravo")
	env.clock.Advance(time.Minute)
	// Refresh alpha: bravo is now the least recently accessed despite being
	// inserted later.
	resolve("alpha")
	env.clock.Advance(time.Minute)
	resolve("charlie")

	if env.mgr.Cached(domain.NormalizeKey("alpha")) == nil {
		t.Error("alpha evicted despite being recently accessed")
	}
	if env.mgr.Cached("bravo") != nil {
		t.Error("bravo not evicted; eviction is not LRU by access time")
	}
	// bravo's client gets released in the background.
	evicted := env.connector.client(1)
	waitFor(t, func() bool { return evicted.closeCount() == 1 })
}

func TestResolve_InactiveTenantNeverConnects(t *testing.T) {
	env := newTestEnv(Config{})
	account := activeAccount("acme")
	account.Tenant.Status = domain.TenantStatusInactive
	env.reg.add(account)

	_, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	te, ok := domain.AsTenantError(err)
	if !ok || te.Code != domain.ErrCodeTenantInactive {
		t.Fatalf("got %v, want TENANT_INACTIVE", err)
	}
	if te.Status != domain.TenantStatusInactive {
		t.Errorf("Status = %s, want the actual tenant status", te.Status)
	}
	if env.connector.count() != 0 {
		t.Error("connection factory invoked for an inactive tenant")
	}
}

func TestResolve_SuspendedTenantRefused(t *testing.T) {
	env := newTestEnv(Config{})
	account := activeAccount("acme")
	account.Tenant.Status = domain.TenantStatusSuspended
	env.reg.add(account)

	_, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	te, ok := domain.AsTenantError(err)
	if !ok || te.Code != domain.ErrCodeTenantInactive {
		t.Fatalf("got %v, want TENANT_INACTIVE", err)
	}
	if te.Status != domain.TenantStatusSuspended {
		t.Errorf("Status = %s, want suspended", te.Status)
	}
}

func TestResolve_InvalidSubscriptionRefused(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.TenantAccount)
	}{
		{
			name:   "missing subscription",
			mutate: func(a *domain.TenantAccount) { a.Subscription = nil },
		},
		{
			name: "cancelled subscription",
			mutate: func(a *domain.TenantAccount) {
				a.Subscription.Status = domain.SubscriptionStatusCancelled
			},
		},
		{
			name: "past due subscription",
			mutate: func(a *domain.TenantAccount) {
				a.Subscription.Status = domain.SubscriptionStatusPastDue
			},
		},
		{
			name: "unknown status fails closed",
			mutate: func(a *domain.TenantAccount) {
				a.Subscription.Status = domain.SubscriptionStatus("WEIRD")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(Config{})
			account := activeAccount("acme")
			tt.mutate(account)
			env.reg.add(account)

			_, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
			te, ok := domain.AsTenantError(err)
			if !ok || te.Code != domain.ErrCodeSubscriptionInvalid {
				t.Fatalf("got %v, want TENANT_SUBSCRIPTION_INVALID", err)
			}
			if env.connector.count() != 0 {
				t.Error("connection factory invoked despite invalid subscription")
			}
		})
	}
}

func TestResolve_RegistryFailurePropagatesUntyped(t *testing.T) {
	env := newTestEnv(Config{})
	infra := errors.New("connection refused")
	env.reg.err = infra

	_, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"})
	if !errors.Is(err, infra) {
		t.Fatalf("got %v, want the raw registry error", err)
	}
	if _, ok := domain.AsTenantError(err); ok {
		t.Error("infrastructure failure wrapped into the tenant taxonomy")
	}

	// Failures are never cached: once the registry recovers, the next call
	// resolves cleanly.
	env.reg.err = nil
	env.reg.add(activeAccount("acme"))
	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
}

func TestResolve_ByIDFallsBackToKey(t *testing.T) {
	env := newTestEnv(Config{})
	account := activeAccount("acme")
	env.reg.add(account)

	// Unknown id plus a valid key: the id lookup misses, the key lookup hits.
	tctx, err := env.mgr.Resolve(context.Background(), Identifier{
		TenantID:  uuid.New(),
		TenantKey: "acme",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tctx.Tenant.ID != account.Tenant.ID {
		t.Error("fallback lookup returned the wrong tenant")
	}
	if env.reg.idCalls != 1 || env.reg.keyCalls != 1 {
		t.Errorf("lookups = (%d id, %d key), want (1, 1)", env.reg.idCalls, env.reg.keyCalls)
	}
}

func TestInvalidate_ForcesReResolution(t *testing.T) {
	env := newTestEnv(Config{})
	account := activeAccount("acme")
	env.reg.add(account)

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantID: account.Tenant.ID}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	env.mgr.Invalidate(context.Background(), account.Tenant.ID.String())

	// Well within TTL, yet the registry is consulted again.
	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantID: account.Tenant.ID}); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if env.reg.idCalls != 2 {
		t.Errorf("registry id lookups = %d, want 2", env.reg.idCalls)
	}
	old := env.connector.client(0)
	waitFor(t, func() bool { return old.closeCount() == 1 })
}

func TestInvalidate_UnknownKeyIsNoOp(t *testing.T) {
	env := newTestEnv(Config{})
	env.mgr.Invalidate(context.Background(), "nope")
}

func TestCached_PeeksWithoutResolving(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("acme"))

	if env.mgr.Cached("acme") != nil {
		t.Fatal("peek returned a context before any resolution")
	}
	if env.reg.calls() != 0 {
		t.Error("peek consulted the registry")
	}

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if env.mgr.Cached("acme") == nil {
		t.Error("peek missed a freshly cached entry")
	}
}

func TestStore_ReplacedEntryClientReleased(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("acme"))

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first := env.connector.client(0)

	// A second resolver racing on the same key overwrites the entry; the
	// replaced client must be released, not leaked.
	loser, _ := env.connector.Connect(context.Background(), "postgres://db.internal/acme")
	env.mgr.store("acme", &Context{Tenant: domain.Tenant{Key: "acme"}, Client: loser})

	waitFor(t, func() bool { return first.closeCount() == 1 })
}

func TestShutdown_ClosesEveryClient(t *testing.T) {
	env := newTestEnv(Config{})
	for _, key := range []string{"alpha", "bravo", "charlie"} {
		env.reg.add(activeAccount(key))
		if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: key}); err != nil {
			t.Fatalf("resolve %s: %v", key, err)
		}
	}

	env.mgr.Shutdown()

	for i := 0; i < 3; i++ {
		if got := env.connector.client(i).closeCount(); got != 1 {
			t.Errorf("client %d close count = %d, want 1", i, got)
		}
	}
	if stats := env.mgr.Stats(); stats.Size != 0 {
		t.Errorf("cache size after shutdown = %d, want 0", stats.Size)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(Config{CacheSize: 10})
	env.reg.add(activeAccount("acme"))

	if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stats := env.mgr.Stats()
	if stats.Size != 1 || stats.Capacity != 10 {
		t.Errorf("stats = %+v, want size 1 capacity 10", stats)
	}
	if len(stats.Keys) != 1 || stats.Keys[0] != "acme" {
		t.Errorf("keys = %v, want [acme]", stats.Keys)
	}
}

func TestResolve_ConcurrentSameKey(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("acme"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "acme"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent resolve: %v", err)
	}

	// Exactly one entry survives regardless of how many misses raced.
	if stats := env.mgr.Stats(); stats.Size != 1 {
		t.Errorf("cache size = %d, want 1", stats.Size)
	}
}

func TestResolve_DistinctTenantsGetDistinctClients(t *testing.T) {
	env := newTestEnv(Config{})
	env.reg.add(activeAccount("alpha"))
	env.reg.add(activeAccount("bravo"))

	a, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "alpha"})
	if err != nil {
		t.Fatalf("resolve alpha: %v", err)
	}
	b, err := env.mgr.Resolve(context.Background(), Identifier{TenantKey: "bravo"})
	if err != nil {
		t.Fatalf("resolve bravo: %v", err)
	}

	if a.Client == b.Client {
		t.Error("distinct tenants share a client")
	}
	if fmt.Sprint(env.connector.client(0).url) == fmt.Sprint(env.connector.client(1).url) {
		t.Error("distinct tenants share a database URL")
	}
}
