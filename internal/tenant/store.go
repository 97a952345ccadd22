package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

// DefaultOpTimeout bounds every partition call when no timeout is configured.
const DefaultOpTimeout = 5 * time.Second

var validTenantID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Store owns one isolated SQLite partition per tenant.
//
// Partitions are opened lazily on first reference and cached for the life of
// the Store. A tenant whose partition fails to open does not affect any other
// tenant.
//
// Thread-safety: Store is safe for concurrent use.
type Store struct {
	dataDir   string
	opTimeout time.Duration
	now       func() time.Time

	mu         sync.Mutex
	partitions map[string]*Partition

	// opening collapses concurrent first opens of one tenant. The file I/O
	// runs outside mu so a slow partition never delays other tenants.
	opening singleflight.Group
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithOpTimeout sets the per-call timeout applied to partition operations.
func WithOpTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithNow overrides the wall clock used for record timestamps.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store rooted at dataDir. The directory is created if
// it does not exist.
func NewStore(dataDir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dataDir:    dataDir,
		opTimeout:  DefaultOpTimeout,
		now:        time.Now,
		partitions: make(map[string]*Partition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateID reports whether id is usable as a tenant identifier.
func ValidateID(id string) error {
	if !validTenantID.MatchString(id) {
		return fmt.Errorf("invalid tenant id %q", id)
	}
	return nil
}

// Open returns the partition for tenantID, creating the file and schema
// on first use. Calling Open again for the same tenant returns the cached
// partition.
func (s *Store) Open(ctx context.Context, tenantID string) (*Partition, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	if p, ok := s.cached(tenantID); ok {
		return p, nil
	}

	ch := s.opening.DoChan(tenantID, func() (any, error) {
		if p, ok := s.cached(tenantID); ok {
			return p, nil
		}
		path := filepath.Join(s.dataDir, tenantID+".sqlite")
		p, err := openPartition(ctx, tenantID, path, s.now)
		if err != nil {
			return nil, fmt.Errorf("open tenant %s: %w", tenantID, err)
		}
		s.mu.Lock()
		s.partitions[tenantID] = p
		s.mu.Unlock()
		slog.Info("tenant partition ready", "tenant", tenantID, "path", path, "degraded", p.Degraded())
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Partition), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("open tenant %s: %w", tenantID, ctx.Err())
	}
}

func (s *Store) cached(tenantID string) (*Partition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[tenantID]
	return p, ok
}

// Tenants returns the ids of partitions opened so far.
func (s *Store) Tenants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every open partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, p := range s.partitions {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tenant %s: %w", id, err)
		}
		delete(s.partitions, id)
	}
	return firstErr
}

// bounded opens the tenant partition and derives a context limited by the
// store's operation timeout.
func (s *Store) bounded(ctx context.Context, tenantID string) (*Partition, context.Context, context.CancelFunc, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	p, err := s.Open(opCtx, tenantID)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return p, opCtx, cancel, nil
}

// Partition is a single tenant's SQLite database.
type Partition struct {
	tenantID string
	db       *sql.DB
	now      func() time.Time
	degraded []string
}

func openPartition(ctx context.Context, tenantID, path string, now func() time.Time) (*Partition, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	p := &Partition{tenantID: tenantID, db: db, now: now}
	p.degraded = migrate(ctx, db, tenantID)
	return p, nil
}

// TenantID returns the tenant this partition belongs to.
func (p *Partition) TenantID() string {
	return p.tenantID
}

// Degraded lists tables whose migration failed when the partition opened.
// Operations touching those tables may fail; all other tables work normally.
func (p *Partition) Degraded() []string {
	out := make([]string, len(p.degraded))
	copy(out, p.degraded)
	return out
}

// Close closes the underlying database.
func (p *Partition) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (p *Partition) verifyPragma(name, expected string) error {
	var value string
	if err := p.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
