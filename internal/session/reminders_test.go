package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/comanda/internal/events"
	"github.com/roach88/comanda/internal/tenant"
)

func TestFollowup_FiresOnceForIdleCart(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.AddItem(ctxBG(), "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, te.scheduler.Pending())

	te.clock.Advance(9 * time.Minute)
	assert.Equal(t, 0, te.reminders.count())

	te.clock.Advance(time.Minute)
	require.Equal(t, 1, te.reminders.count())
	assert.Equal(t, "5511", te.reminders.sent[0].CustomerKey)
	assert.True(t, te.GetOrCreate("acme", "5511").FollowupSent)
	assert.Equal(t, 1, te.events.count(events.KindFollowupSent))

	te.clock.Advance(time.Hour)
	assert.Equal(t, 1, te.reminders.count())
}

func TestFollowup_OnlyArmedByFirstItem(t *testing.T) {
	te := newTestEngine(t)
	ctx := ctxBG()

	_, err := te.AddItem(ctx, "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	te.clock.Advance(5 * time.Minute)
	_, err = te.AddItem(ctx, "acme", "5511", "fries", 1, "", "", "")
	require.NoError(t, err)

	te.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, te.reminders.count(), "timer runs from the first item")
}

func TestFollowup_ResetCancels(t *testing.T) {
	te := newTestEngine(t)
	ctx := ctxBG()

	_, err := te.AddItem(ctx, "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	_, err = te.Reset(ctx, "acme", "5511")
	require.NoError(t, err)
	assert.Equal(t, 0, te.scheduler.Pending())

	te.clock.Advance(time.Hour)
	assert.Equal(t, 0, te.reminders.count())
	assert.Equal(t, 0, te.events.count(events.KindFollowupSent))
}

func TestFollowup_FinalizeCancels(t *testing.T) {
	te := newTestEngine(t)
	ctx := ctxBG()

	_, err := te.AddItem(ctx, "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	_, _, err = te.Finalize(ctx, "acme", "5511", tenant.StatusFinalized)
	require.NoError(t, err)

	te.clock.Advance(time.Hour)
	assert.Equal(t, 0, te.reminders.count())
}

func TestFollowup_EmptiedCartIsSkipped(t *testing.T) {
	te := newTestEngine(t)
	ctx := ctxBG()

	_, err := te.AddItem(ctx, "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	_, err = te.RemoveItem(ctx, "acme", "5511", ByIndex(0))
	require.NoError(t, err)

	te.clock.Advance(time.Hour)
	assert.Equal(t, 0, te.reminders.count())
}

func TestFollowup_DisabledForTenant(t *testing.T) {
	te := newTestEngine(t)
	te.followupDelay = func(tenantID string) time.Duration {
		if tenantID == "other" {
			return 0
		}
		return 10 * time.Minute
	}

	_, err := te.AddItem(ctxBG(), "other", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, te.scheduler.Pending())
}

func TestFollowup_ReminderErrorLeavesFlagUnset(t *testing.T) {
	te := newTestEngine(t)
	te.reminders.err = assert.AnError

	_, err := te.AddItem(ctxBG(), "acme", "5511", "burger", 1, "", "", "")
	require.NoError(t, err)
	te.clock.Advance(10 * time.Minute)

	assert.False(t, te.GetOrCreate("acme", "5511").FollowupSent)
	assert.Equal(t, 0, te.events.count(events.KindFollowupSent))
}
