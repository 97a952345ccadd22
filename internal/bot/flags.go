package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/comanda/internal/events"
)

// SettingBotEnabled is the tenant setting holding the bot flag.
const SettingBotEnabled = "bot_enabled"

// Settings is tenant-scoped key/value storage. *tenant.Store satisfies it.
type Settings interface {
	GetSetting(ctx context.Context, tenantID, key string) (string, bool, error)
	PutSetting(ctx context.Context, tenantID, key, value string) error
}

// Publisher receives flag changes. *events.Bus satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Flags is the per-tenant switch between automatic replies and a human
// operator. Unset tenants use the configured default.
type Flags struct {
	settings Settings
	def      func(tenantID string) bool
	bus      Publisher
}

// NewFlags creates Flags over settings. def may be nil (bot enabled) and
// bus may be nil.
func NewFlags(settings Settings, def func(tenantID string) bool, bus Publisher) *Flags {
	if def == nil {
		def = func(string) bool { return true }
	}
	return &Flags{settings: settings, def: def, bus: bus}
}

// BotEnabled reports whether the bot answers the tenant's customers.
func (f *Flags) BotEnabled(ctx context.Context, tenantID string) (bool, error) {
	v, found, err := f.settings.GetSetting(ctx, tenantID, SettingBotEnabled)
	if err != nil {
		return f.def(tenantID), fmt.Errorf("read bot flag: %w", err)
	}
	if !found {
		return f.def(tenantID), nil
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring malformed bot flag", "tenant", tenantID, "value", v)
		return f.def(tenantID), nil
	}
	return enabled, nil
}

// SetBotEnabled stores the flag and publishes bot-status-changed.
func (f *Flags) SetBotEnabled(ctx context.Context, tenantID string, enabled bool) error {
	if err := f.settings.PutSetting(ctx, tenantID, SettingBotEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("write bot flag: %w", err)
	}
	slog.Info("bot flag changed", "tenant", tenantID, "enabled", enabled)
	if f.bus != nil {
		f.bus.Publish(events.Event{
			Kind:       events.KindBotStatusChanged,
			TenantID:   tenantID,
			BotEnabled: &enabled,
		})
	}
	return nil
}
