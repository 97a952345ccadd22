// Package config loads comanda's configuration.
//
// Settings come from a YAML file (comanda.yaml), optionally preceded by a
// .env file, and COMANDA_* environment variables override the file. Every
// loaded config has defaults applied and is validated.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/comanda/internal/messages"
	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
)

// Defaults.
const (
	DefaultDataDir       = "data"
	DefaultHTTPAddr      = ":8080"
	DefaultEventExchange = "comanda.events"
	DefaultChatExchange  = "comanda.chat"
	DefaultInboundQueue  = "comanda.inbound"
	DefaultLanes         = 8
	DefaultStoreTimeout  = 5 * time.Second
)

// Config is the root configuration.
type Config struct {
	DataDir       string        `yaml:"data_dir"`
	DefaultTenant string        `yaml:"default_tenant"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`

	// FollowupDelay applies to tenants that do not set their own.
	FollowupDelay time.Duration `yaml:"followup_delay"`

	HTTP HTTP `yaml:"http"`
	AMQP AMQP `yaml:"amqp"`

	// Messages overrides reply texts for every tenant.
	Messages map[string]string `yaml:"messages"`

	Tenants map[string]*Tenant `yaml:"tenants"`
}

// HTTP configures the admin API.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// AMQP configures the broker. An empty URL disables it.
type AMQP struct {
	URL           string `yaml:"url"`
	EventExchange string `yaml:"event_exchange"`
	ChatExchange  string `yaml:"chat_exchange"`
	InboundQueue  string `yaml:"inbound_queue"`
	Lanes         int    `yaml:"lanes"`
}

// Enabled reports whether a broker is configured.
func (a AMQP) Enabled() bool {
	return a.URL != ""
}

// Tenant is one restaurant.
type Tenant struct {
	Name   string   `yaml:"name"`
	Phones []string `yaml:"phones"`

	// DeliveryFee is a decimal amount such as "7.00".
	DeliveryFee string `yaml:"delivery_fee"`

	// FollowupDelay overrides the global delay; zero disables follow-ups.
	FollowupDelay *time.Duration `yaml:"followup_delay"`

	Pickup       bool              `yaml:"pickup"`
	BotEnabled   *bool             `yaml:"bot_enabled"`
	OperatorChat string            `yaml:"operator_chat"`
	MenuMedia    []string          `yaml:"menu_media"`
	Messages     map[string]string `yaml:"messages"`

	fee decimal.Decimal
}

// Default returns a config with every default applied and no tenants.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, applies COMANDA_* overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("COMANDA_DATA_DIR", c.DataDir)
	c.DefaultTenant = getEnv("COMANDA_DEFAULT_TENANT", c.DefaultTenant)
	c.HTTP.Addr = getEnv("COMANDA_HTTP_ADDR", c.HTTP.Addr)
	c.AMQP.URL = getEnv("COMANDA_AMQP_URL", c.AMQP.URL)
	c.AMQP.Lanes = envInt("COMANDA_AMQP_LANES", c.AMQP.Lanes)
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.FollowupDelay == 0 {
		c.FollowupDelay = session.DefaultFollowupDelay
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.AMQP.EventExchange == "" {
		c.AMQP.EventExchange = DefaultEventExchange
	}
	if c.AMQP.ChatExchange == "" {
		c.AMQP.ChatExchange = DefaultChatExchange
	}
	if c.AMQP.InboundQueue == "" {
		c.AMQP.InboundQueue = DefaultInboundQueue
	}
	if c.AMQP.Lanes == 0 {
		c.AMQP.Lanes = DefaultLanes
	}
	if c.Tenants == nil {
		c.Tenants = make(map[string]*Tenant)
	}
}

// Validate checks tenant ids, fees, and message keys.
func (c *Config) Validate() error {
	if c.StoreTimeout < 0 {
		return fmt.Errorf("store_timeout must not be negative")
	}
	if c.FollowupDelay < 0 {
		return fmt.Errorf("followup_delay must not be negative")
	}
	if c.AMQP.Lanes < 0 {
		return fmt.Errorf("amqp.lanes must not be negative, got %d", c.AMQP.Lanes)
	}
	if _, err := messages.Defaults().WithOverrides(c.Messages); err != nil {
		return fmt.Errorf("messages: %w", err)
	}

	for id, t := range c.Tenants {
		if err := tenant.ValidateID(id); err != nil {
			return fmt.Errorf("tenants: %w", err)
		}
		if t == nil {
			t = &Tenant{}
			c.Tenants[id] = t
		}
		t.fee = decimal.Zero
		if t.DeliveryFee != "" {
			fee, err := decimal.NewFromString(t.DeliveryFee)
			if err != nil {
				return fmt.Errorf("tenant %s: delivery_fee %q: %w", id, t.DeliveryFee, err)
			}
			if fee.IsNegative() {
				return fmt.Errorf("tenant %s: delivery_fee must not be negative", id)
			}
			t.fee = fee
		}
		if t.FollowupDelay != nil && *t.FollowupDelay < 0 {
			return fmt.Errorf("tenant %s: followup_delay must not be negative", id)
		}
		if _, err := messages.Defaults().WithOverrides(t.Messages); err != nil {
			return fmt.Errorf("tenant %s: messages: %w", id, err)
		}
	}

	if c.DefaultTenant != "" {
		if _, ok := c.Tenants[c.DefaultTenant]; !ok {
			return fmt.Errorf("default_tenant %q is not a configured tenant", c.DefaultTenant)
		}
	}
	return nil
}

// TenantIDs returns the configured tenant ids, sorted.
func (c *Config) TenantIDs() []string {
	ids := make([]string, 0, len(c.Tenants))
	for id := range c.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Phones maps each tenant to its phone numbers, for tenant.NewResolver.
func (c *Config) Phones() map[string][]string {
	out := make(map[string][]string, len(c.Tenants))
	for id, t := range c.Tenants {
		out[id] = t.Phones
	}
	return out
}

// DeliveryFee returns the tenant's fee, zero when unset or unknown.
func (c *Config) DeliveryFee(tenantID string) decimal.Decimal {
	if t, ok := c.Tenants[tenantID]; ok {
		return t.fee
	}
	return decimal.Zero
}

// TenantFollowupDelay returns the tenant's follow-up delay.
func (c *Config) TenantFollowupDelay(tenantID string) time.Duration {
	if t, ok := c.Tenants[tenantID]; ok && t.FollowupDelay != nil {
		return *t.FollowupDelay
	}
	return c.FollowupDelay
}

// PickupEnabled reports whether the tenant offers pickup.
func (c *Config) PickupEnabled(tenantID string) bool {
	t, ok := c.Tenants[tenantID]
	return ok && t.Pickup
}

// BotDefault is the bot flag used until an operator changes it.
func (c *Config) BotDefault(tenantID string) bool {
	if t, ok := c.Tenants[tenantID]; ok && t.BotEnabled != nil {
		return *t.BotEnabled
	}
	return true
}

// OperatorChat returns the tenant's operator chat, or "".
func (c *Config) OperatorChat(tenantID string) string {
	if t, ok := c.Tenants[tenantID]; ok {
		return t.OperatorChat
	}
	return ""
}

// MenuMedia returns the media sent before the tenant's menu.
func (c *Config) MenuMedia(tenantID string) []string {
	if t, ok := c.Tenants[tenantID]; ok {
		return t.MenuMedia
	}
	return nil
}

// MessageSets builds the global reply texts and each tenant's set.
func (c *Config) MessageSets() (*messages.Set, map[string]*messages.Set, error) {
	def, err := messages.Defaults().WithOverrides(c.Messages)
	if err != nil {
		return nil, nil, fmt.Errorf("messages: %w", err)
	}
	perTenant := make(map[string]*messages.Set)
	for id, t := range c.Tenants {
		if len(t.Messages) == 0 {
			continue
		}
		set, err := def.WithOverrides(t.Messages)
		if err != nil {
			return nil, nil, fmt.Errorf("tenant %s: messages: %w", id, err)
		}
		perTenant[id] = set
	}
	return def, perTenant, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
