package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/followup"
	"github.com/roach88/comanda/internal/tenant"
	"github.com/roach88/comanda/internal/testutil"
)

var epoch = time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

// fakeCatalog serves items from a map, per tenant.
type fakeCatalog struct {
	items map[string]map[string]tenant.CatalogItem
	err   error
}

func newFakeCatalog() *fakeCatalog {
	c := &fakeCatalog{items: map[string]map[string]tenant.CatalogItem{}}
	for _, tenantID := range []string{"acme", "other"} {
		c.add(tenantID, "burger", "X-Burger", "10.00")
		c.add(tenantID, "fries", "Batata Frita", "8.50")
		c.add(tenantID, "coke", "Coca-Cola", "6.00")
	}
	return c
}

func (c *fakeCatalog) add(tenantID, id, name, price string) {
	if c.items[tenantID] == nil {
		c.items[tenantID] = map[string]tenant.CatalogItem{}
	}
	c.items[tenantID][id] = tenant.CatalogItem{
		ID: id, Name: name, Price: decimal.RequireFromString(price), Category: "Lanches", Available: true,
	}
}

func (c *fakeCatalog) GetItem(_ context.Context, tenantID, itemID string) (tenant.CatalogItem, bool, error) {
	if c.err != nil {
		return tenant.CatalogItem{}, false, c.err
	}
	it, ok := c.items[tenantID][itemID]
	return it, ok, nil
}

// countingStore wraps a real tenant store and counts order writes.
type countingStore struct {
	*tenant.Store
	mu       sync.Mutex
	writes   int
	failNext int
}

func (c *countingStore) WriteOrder(ctx context.Context, tenantID string, o tenant.OrderRecord) (string, bool, error) {
	c.mu.Lock()
	c.writes++
	fail := c.failNext > 0
	if fail {
		c.failNext--
	}
	c.mu.Unlock()
	if fail {
		return "", false, errors.New("disk full")
	}
	return c.Store.WriteOrder(ctx, tenantID, o)
}

func (c *countingStore) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// recorder is a synchronous Publisher.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind events.Kind) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

// reminderLog records follow-up nudges.
type reminderLog struct {
	mu   sync.Mutex
	sent []Snapshot
	err  error
}

func (r *reminderLog) Remind(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, snap)
	return nil
}

func (r *reminderLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEngine struct {
	*Engine
	catalog   *fakeCatalog
	store     *countingStore
	events    *recorder
	reminders *reminderLog
	clock     *testutil.FakeClock
}

// newTestEngine builds an engine with a 7.00 delivery fee, a 10 minute
// follow-up on a fake clock, and lifecycle ids life-1, life-2, ...
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	st, err := tenant.NewStore(t.TempDir(), tenant.WithNow(func() time.Time { return epoch }))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	te := &testEngine{
		catalog:   newFakeCatalog(),
		store:     &countingStore{Store: st},
		events:    &recorder{},
		reminders: &reminderLog{},
		clock:     testutil.NewFakeClock(epoch),
	}
	te.Engine = New(te.catalog, te.store,
		WithPublisher(te.events),
		WithScheduler(followup.New(te.clock)),
		WithReminder(te.reminders),
		WithIDGenerator(testutil.NewSequenceIDGenerator("life")),
		WithNow(func() time.Time { return epoch }),
		WithDeliveryFee(func(string) decimal.Decimal { return decimal.RequireFromString("7.00") }),
		WithFollowupDelay(func(string) time.Duration { return 10 * time.Minute }),
	)
	t.Cleanup(te.Engine.Close)
	return te
}

func ctxBG() context.Context {
	return context.Background()
}
