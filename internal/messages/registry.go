package messages

import (
	"context"
	"log/slog"
	"sync"
)

// SettingPrefix prefixes message overrides in a tenant's settings table.
const SettingPrefix = "msg."

// SettingsSource reads tenant settings. *tenant.Store satisfies it.
type SettingsSource interface {
	GetSetting(ctx context.Context, tenantID, key string) (string, bool, error)
}

// Registry resolves the reply texts for each tenant: the configured base
// set, then any overrides stored in the tenant's settings. Resolved sets are
// cached until Invalidate.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	src  SettingsSource
	def  *Set
	base map[string]*Set

	mu    sync.Mutex
	cache map[string]*Set
}

// NewRegistry creates a registry. base holds per-tenant sets from config;
// tenants without one use def. src may be nil.
func NewRegistry(src SettingsSource, def *Set, base map[string]*Set) *Registry {
	if def == nil {
		def = Defaults()
	}
	return &Registry{
		src:   src,
		def:   def,
		base:  base,
		cache: make(map[string]*Set),
	}
}

// For returns the texts for tenantID. It never fails: settings that cannot
// be read are logged and the base set is used.
func (r *Registry) For(ctx context.Context, tenantID string) *Set {
	r.mu.Lock()
	if set, ok := r.cache[tenantID]; ok {
		r.mu.Unlock()
		return set
	}
	r.mu.Unlock()

	set := r.def
	if b, ok := r.base[tenantID]; ok {
		set = b
	}
	if r.src != nil {
		overrides := make(map[string]string)
		for _, k := range Keys() {
			v, found, err := r.src.GetSetting(ctx, tenantID, SettingPrefix+string(k))
			if err != nil {
				slog.Warn("failed to load message overrides", "tenant", tenantID, "error", err)
				return set
			}
			if found {
				overrides[string(k)] = v
			}
		}
		if len(overrides) > 0 {
			// Keys come from Keys(), so WithOverrides cannot fail here.
			if merged, err := set.WithOverrides(overrides); err == nil {
				set = merged
			}
		}
	}

	r.mu.Lock()
	r.cache[tenantID] = set
	r.mu.Unlock()
	return set
}

// Invalidate drops the cached set for tenantID.
func (r *Registry) Invalidate(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, tenantID)
}
