package tenant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-tenant/pkg/audit"
	"github.com/tendant/simple-tenant/pkg/domain"
)

const (
	// DefaultCacheTTL is the sliding idle lifetime of a cached tenant context.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheSize is the hard cap on cached tenant contexts.
	DefaultCacheSize = 50
)

// Registry is the read path the manager resolves tenants through. Both lookups
// return (nil, nil) when no tenant matches and reserve errors for data-layer
// failures.
type Registry interface {
	FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.TenantAccount, error)
	FindTenantByKey(ctx context.Context, key string) (*domain.TenantAccount, error)
}

// Identifier names a tenant by id, by key, or both. The zero UUID means "no id
// given". When both are set the id is tried first.
type Identifier struct {
	TenantID  uuid.UUID
	TenantKey string
}

// CacheKey returns the string this identifier indexes the cache under: the
// tenant id when given, else the normalized tenant key. Empty means the
// identifier is unusable.
func (id Identifier) CacheKey() string {
	if id.TenantID != uuid.Nil {
		return id.TenantID.String()
	}
	return domain.NormalizeKey(id.TenantKey)
}

// Context is a resolved, ready-to-use tenant handle: the tenant's registry
// metadata plus a live pooled client bound to its dedicated database. The
// manager's cache owns the client; callers must not hold the client beyond the
// request that obtained it, since invalidation or eviction closes it.
type Context struct {
	Tenant       domain.Tenant
	Subscription *domain.Subscription
	Plan         *domain.Plan
	Client       Client
}

// Config holds manager configuration.
type Config struct {
	// CacheTTL is the sliding idle lifetime of a cached context (default 5m).
	CacheTTL time.Duration
	// CacheSize caps the number of cached contexts (default 50).
	CacheSize int
	// Logger receives operational events. Optional.
	Logger *slog.Logger
	// Audit receives resolution denials and invalidations. Optional.
	Audit audit.Recorder
}

// Manager resolves tenant identifiers to live database contexts, enforcing
// tenant lifecycle and subscription validity before any connection is built.
// It is the only sanctioned way to obtain a tenant-scoped database handle.
// Safe for concurrent use.
type Manager struct {
	registry  Registry
	connector Connector
	cacheTTL  time.Duration
	cacheSize int
	logger    *slog.Logger
	auditor   audit.Recorder

	mu      sync.Mutex
	entries map[string]*cacheEntry

	// now is swapped in tests to drive TTL expiry.
	now func() time.Time
}

// NewManager creates a tenant manager. Construct one instance at process
// startup and pass it to whatever needs tenant-scoped database access.
func NewManager(reg Registry, connector Connector, cfg Config) *Manager {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop()
	}
	return &Manager{
		registry:  reg,
		connector: connector,
		cacheTTL:  cfg.CacheTTL,
		cacheSize: cfg.CacheSize,
		logger:    cfg.Logger,
		auditor:   cfg.Audit,
		entries:   make(map[string]*cacheEntry),
		now:       time.Now,
	}
}

// Resolve maps a tenant identifier to a ready-to-use Context.
//
// On a cache hit within TTL it returns the cached context without touching the
// registry or the connector. On a miss it fetches the tenant with its newest
// subscription, checks tenant status, then subscription validity, and only
// then builds a client, so a refused tenant never triggers a connection
// attempt. Failures are never cached: every call re-attempts from scratch, so
// a transient registry outage heals on the next call.
//
// Refusals are *domain.TenantError; registry failures propagate as-is.
func (m *Manager) Resolve(ctx context.Context, id Identifier) (*Context, error) {
	cacheKey := id.CacheKey()
	if cacheKey == "" {
		return nil, domain.NewIdentifierMissing()
	}

	if tctx := m.cachedAndTouch(cacheKey); tctx != nil {
		return tctx, nil
	}

	account, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.NewTenantNotFound(idString(id.TenantID), domain.NormalizeKey(id.TenantKey))
	}

	tn := account.Tenant
	if !tn.IsActive() {
		m.deny(ctx, audit.ActionTenantRefused, tn, string(tn.Status))
		return nil, domain.NewTenantInactive(tn.ID.String(), tn.Status)
	}

	sub := account.Subscription
	if !IsSubscriptionValid(sub, m.now()) {
		m.deny(ctx, audit.ActionSubscriptionRefused, tn, subscriptionStatus(sub))
		return nil, domain.NewSubscriptionInvalid(tn.ID.String())
	}

	client, err := m.connector.Connect(ctx, tn.DatabaseURL)
	if err != nil {
		return nil, err
	}

	tctx := &Context{
		Tenant:       tn,
		Subscription: sub,
		Client:       client,
	}
	if sub != nil {
		tctx.Plan = sub.Plan
	}

	m.store(cacheKey, tctx)
	return tctx, nil
}

// Cached returns the cached context for a cache key without resolving on a
// miss. Returns nil when the key is absent or its entry has expired; an
// expired entry is removed and its client released.
func (m *Manager) Cached(cacheKey string) *Context {
	return m.cachedAndTouch(cacheKey)
}

// Invalidate removes a cache key and releases its client. Callers that mutate
// tenant status or subscriptions externally must invalidate immediately after
// committing, so the next access re-resolves instead of serving stale
// validity. Unknown keys are a no-op.
func (m *Manager) Invalidate(ctx context.Context, cacheKey string) {
	m.mu.Lock()
	entry, ok := m.entries[cacheKey]
	if ok {
		delete(m.entries, cacheKey)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	releaseClient(entry.tctx.Client, cacheKey, m.logger)
	m.auditor.Record(ctx, audit.Event{
		Action:    audit.ActionTenantInvalidated,
		TenantID:  entry.tctx.Tenant.ID.String(),
		TenantKey: entry.tctx.Tenant.Key,
	})
	m.logger.Info("tenant context invalidated", "cache_key", cacheKey)
}

// InvalidateAll removes every cached entry and releases the clients.
func (m *Manager) InvalidateAll(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*cacheEntry)
	m.mu.Unlock()

	for key, entry := range entries {
		releaseClient(entry.tctx.Client, key, m.logger)
	}
	if len(entries) > 0 {
		m.logger.Info("tenant context cache flushed", "entries", len(entries))
	}
}

// Shutdown closes every cached client synchronously and clears the cache.
// Called once at process termination.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*cacheEntry)
	m.mu.Unlock()

	for key, entry := range entries {
		if err := entry.tctx.Client.Close(); err != nil {
			m.logger.Warn("failed to close tenant database client on shutdown",
				"cache_key", key,
				"error", err,
			)
		}
	}
	m.logger.Info("tenant manager shut down", "closed", len(entries))
}

// CacheStats describes the current cache contents for the ops surface.
type CacheStats struct {
	Size     int      `json:"size"`
	Capacity int      `json:"capacity"`
	Keys     []string `json:"keys"`
}

// Stats returns a snapshot of cache occupancy.
func (m *Manager) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return CacheStats{Size: len(keys), Capacity: m.cacheSize, Keys: keys}
}

// cachedAndTouch returns a live entry's context, refreshing its access time.
// An expired entry is removed and its client released before returning nil.
func (m *Manager) cachedAndTouch(cacheKey string) *Context {
	now := m.now()

	m.mu.Lock()
	entry, ok := m.entries[cacheKey]
	if ok && !entry.expired(now, m.cacheTTL) {
		entry.lastAccessed = now
		m.mu.Unlock()
		return entry.tctx
	}
	if ok {
		delete(m.entries, cacheKey)
	}
	m.mu.Unlock()

	if ok {
		releaseClient(entry.tctx.Client, cacheKey, m.logger)
	}
	return nil
}

// store inserts a freshly resolved context and enforces capacity. Two
// concurrent misses for one key may both resolve; the last writer wins and the
// replaced entry's client is released, never leaked. All bookkeeping happens
// under the lock in one step so the capacity check cannot race.
func (m *Manager) store(cacheKey string, tctx *Context) {
	m.mu.Lock()
	var replaced *cacheEntry
	if prev, ok := m.entries[cacheKey]; ok {
		replaced = prev
	}
	m.entries[cacheKey] = &cacheEntry{tctx: tctx, lastAccessed: m.now()}
	evicted := evictOverCap(m.entries, m.cacheSize)
	m.mu.Unlock()

	if replaced != nil {
		releaseClient(replaced.tctx.Client, cacheKey, m.logger)
	}
	for _, entry := range evicted {
		releaseClient(entry.tctx.Client, entry.tctx.Tenant.ID.String(), m.logger)
	}
}

// lookup tries the registry by id first when given, else by normalized key.
func (m *Manager) lookup(ctx context.Context, id Identifier) (*domain.TenantAccount, error) {
	if id.TenantID != uuid.Nil {
		account, err := m.registry.FindTenantByID(ctx, id.TenantID)
		if err != nil || account != nil {
			return account, err
		}
	}
	if key := domain.NormalizeKey(id.TenantKey); key != "" {
		return m.registry.FindTenantByKey(ctx, key)
	}
	return nil, nil
}

func (m *Manager) deny(ctx context.Context, action audit.Action, tn domain.Tenant, detail string) {
	m.auditor.Record(ctx, audit.Event{
		Action:    action,
		TenantID:  tn.ID.String(),
		TenantKey: tn.Key,
		Detail:    detail,
	})
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func subscriptionStatus(sub *domain.Subscription) string {
	if sub == nil {
		return "missing"
	}
	return string(sub.Status)
}
