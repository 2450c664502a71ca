package service

import (
	"context"
	"errors"
	"livesession/internal/model"
	"livesession/internal/repository"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type previewFixture struct {
	enforcer  *PreviewEnforcer
	presence  *PresenceTracker
	repo      *repository.MemorySessionRepo
	clock     clockwork.FakeClock
	transport *fakeTransport
	events    *recordingBroadcaster

	mu      sync.Mutex
	evicted []string
}

func newPreviewFixture(t *testing.T) *previewFixture {
	t.Helper()
	repo := repository.NewMemorySessionRepo()
	require.NoError(t, repo.Create(context.Background(), testSession(func(s *model.Session) {
		s.IsPublic = true
		s.MaxParticipants = 10
	})))

	clk := clockwork.NewFakeClockAt(t0.Add(45 * time.Minute))
	reg := newRegistry(repo)
	presence := newPresenceTracker(reg, newLifecycle(reg, clk, 30*time.Minute), clk)
	transport := newFakeTransport()
	events := &recordingBroadcaster{}

	f := &previewFixture{presence: presence, repo: repo, clock: clk, transport: transport, events: events}
	f.enforcer = newPreviewEnforcer(clk, 600*time.Second, presence, transport)
	f.enforcer.broadcaster = events
	f.enforcer.onExpire = func(grant model.PreviewGrant, s *model.Session, removed bool) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if removed {
			f.evicted = append(f.evicted, grant.UserID)
		}
	}
	return f
}

func (f *previewFixture) join(t *testing.T, userID string) {
	t.Helper()
	_, err := f.presence.Register(context.Background(), "s-1", model.Participant{UserID: userID, Role: model.RoleViewer})
	require.NoError(t, err)
}

func (f *previewFixture) occupancy(t *testing.T) int {
	t.Helper()
	snap, err := f.presence.Snapshot(context.Background(), "s-1")
	require.NoError(t, err)
	return snap.Occupancy
}

func (f *previewFixture) Evicted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evicted...)
}

func TestPreview_ExpiresAtLimit(t *testing.T) {
	f := newPreviewFixture(t)
	f.join(t, "host")
	f.join(t, "guest")

	grant := f.enforcer.Start("s-1", "guest")
	assert.Equal(t, 600, grant.LimitSeconds)
	assert.Equal(t, f.clock.Now().Add(600*time.Second), grant.ExpiresAt())

	f.clock.Advance(599 * time.Second)
	assert.False(t, f.enforcer.Expired("s-1", "guest"))
	assert.Equal(t, 1, f.enforcer.Active())

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(f.Evicted()) == 1
	}, waitFor, tick)

	assert.True(t, f.enforcer.Expired("s-1", "guest"))
	assert.Equal(t, 0, f.enforcer.Active())
	assert.Equal(t, 1, f.occupancy(t))
	assert.Equal(t, []string{"guest"}, f.transport.Dropped())

	ev, ok := f.events.Find(EventPreviewExpired)
	require.True(t, ok)
	assert.Equal(t, "guest", ev.UserID)
	assert.Equal(t, model.ReasonPreviewExpired, ev.Payload.(*model.Denial).Reason)
}

func TestPreview_StartIsIdempotent(t *testing.T) {
	f := newPreviewFixture(t)

	first := f.enforcer.Start("s-1", "guest")
	f.clock.Advance(100 * time.Second)
	second := f.enforcer.Start("s-1", "guest")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.enforcer.Active())
}

func TestPreview_CancelStopsCountdown(t *testing.T) {
	f := newPreviewFixture(t)
	f.join(t, "guest")
	f.enforcer.Start("s-1", "guest")

	grant, ok := f.enforcer.Cancel("s-1", "guest")
	require.True(t, ok)
	assert.Equal(t, "guest", grant.UserID)

	_, ok = f.enforcer.Cancel("s-1", "guest")
	assert.False(t, ok)

	f.clock.Advance(time.Hour)
	assert.Never(t, func() bool {
		return f.enforcer.Expired("s-1", "guest")
	}, 50*time.Millisecond, tick)
	assert.Empty(t, f.transport.Dropped())
	assert.Empty(t, f.events.Types())
}

func TestPreview_RestoreKeepsRemainingTime(t *testing.T) {
	f := newPreviewFixture(t)
	f.join(t, "host")
	f.join(t, "guest")
	f.enforcer.Start("s-1", "guest")

	f.clock.Advance(400 * time.Second)
	grant, ok := f.enforcer.Cancel("s-1", "guest")
	require.True(t, ok)
	f.enforcer.Restore(grant)

	f.clock.Advance(199 * time.Second)
	assert.False(t, f.enforcer.Expired("s-1", "guest"))

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return f.enforcer.Expired("s-1", "guest")
	}, waitFor, tick)
}

func TestPreview_BankedTimeCarriesOver(t *testing.T) {
	f := newPreviewFixture(t)

	f.enforcer.Start("s-1", "guest")
	f.clock.Advance(240 * time.Second)
	grant, ok := f.enforcer.Cancel("s-1", "guest")
	require.True(t, ok)
	f.enforcer.Bank(grant)
	assert.Equal(t, 240*time.Second, f.enforcer.Spent("s-1", "guest"))

	again := f.enforcer.Start("s-1", "guest")
	assert.Equal(t, 360, again.LimitSeconds)
	assert.Equal(t, f.clock.Now().Add(360*time.Second), again.ExpiresAt())

	f.clock.Advance(360 * time.Second)
	grant, ok = f.enforcer.Cancel("s-1", "guest")
	if ok {
		// the cancel beat the timer; banking the rest uses up the preview
		f.enforcer.Bank(grant)
	}
	require.Eventually(t, func() bool {
		return f.enforcer.Expired("s-1", "guest")
	}, waitFor, tick)
	assert.Zero(t, f.enforcer.Spent("s-1", "guest"))
}

func TestPreview_CancelSession(t *testing.T) {
	f := newPreviewFixture(t)
	f.enforcer.Start("s-1", "a")
	f.enforcer.Start("s-1", "b")
	f.enforcer.Start("s-2", "c")

	f.clock.Advance(time.Minute)
	grant, ok := f.enforcer.Cancel("s-1", "b")
	require.True(t, ok)
	f.enforcer.Bank(grant)

	assert.Equal(t, 1, f.enforcer.CancelSession("s-1"))
	assert.Equal(t, 1, f.enforcer.Active())
	assert.Zero(t, f.enforcer.Spent("s-1", "b"))

	_, ok = f.enforcer.Grant("s-2", "c")
	assert.True(t, ok)
}

// A store outage during expiry must not leave the viewer holding a seat
func TestPreview_EvictionRetriesUntilStoreRecovers(t *testing.T) {
	f := newPreviewFixture(t)
	f.join(t, "host")
	f.join(t, "guest")
	f.enforcer.Start("s-1", "guest")

	f.repo.FailPuts(errors.New("no primary"))
	f.clock.Advance(600 * time.Second)

	require.Eventually(t, func() bool {
		return f.repo.FailedPuts() >= 1
	}, waitFor, tick)
	// cut off from the transport at once, even though the roster lags
	assert.True(t, f.enforcer.Expired("s-1", "guest"))
	assert.Equal(t, []string{"guest"}, f.transport.Dropped())
	assert.Equal(t, 2, f.occupancy(t))
	assert.Empty(t, f.Evicted())

	// still failing: every retry is refused
	require.Eventually(t, func() bool {
		f.clock.Advance(evictRetryMax)
		return f.repo.FailedPuts() >= 3
	}, waitFor, tick)
	assert.Equal(t, 2, f.occupancy(t))

	f.repo.FailPuts(nil)
	require.Eventually(t, func() bool {
		f.clock.Advance(evictRetryMax)
		return len(f.Evicted()) == 1
	}, waitFor, tick)
	assert.Equal(t, 1, f.occupancy(t))
	assert.Equal(t, []string{"guest"}, f.transport.Dropped())
}

func TestPreview_ExpireAndCancelFireOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newPreviewFixture(t)
		f.join(t, "host")
		f.join(t, "guest")
		f.enforcer.Start("s-1", "guest")

		var (
			wg       sync.WaitGroup
			cancelOK bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.clock.Advance(600 * time.Second)
		}()
		go func() {
			defer wg.Done()
			_, cancelOK = f.enforcer.Cancel("s-1", "guest")
		}()
		wg.Wait()

		if cancelOK {
			assert.False(t, f.enforcer.Expired("s-1", "guest"))
			assert.Empty(t, f.transport.Dropped())
			continue
		}
		require.Eventually(t, func() bool {
			return len(f.Evicted()) == 1
		}, waitFor, tick, "expiry must win when cancel lost")
		assert.Len(t, f.transport.Dropped(), 1)
	}
}
