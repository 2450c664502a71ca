package service

import (
	"context"
	"errors"
	"livesession/internal/model"
	"livesession/internal/repository"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]model.SessionStatus{
		{model.SessionScheduled, model.SessionLive},
		{model.SessionScheduled, model.SessionCancelled},
		{model.SessionLive, model.SessionCompleted},
	}
	for _, p := range legal {
		assert.True(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	illegal := [][2]model.SessionStatus{
		{model.SessionScheduled, model.SessionCompleted},
		{model.SessionLive, model.SessionScheduled},
		{model.SessionLive, model.SessionCancelled},
		{model.SessionCompleted, model.SessionLive},
		{model.SessionCompleted, model.SessionScheduled},
		{model.SessionCancelled, model.SessionLive},
		{model.SessionCancelled, model.SessionScheduled},
	}
	for _, p := range illegal {
		assert.False(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}
}

func newTestLifecycle(t *testing.T, s *model.Session) (*Lifecycle, *repository.MemorySessionRepo, clockwork.FakeClock) {
	t.Helper()
	repo := repository.NewMemorySessionRepo()
	require.NoError(t, repo.Create(context.Background(), s))
	clk := clockwork.NewFakeClockAt(t0)
	return newLifecycle(newRegistry(repo), clk, 30*time.Minute), repo, clk
}

func TestLifecycle_Cancel(t *testing.T) {
	ctx := context.Background()
	l, repo, _ := newTestLifecycle(t, testSession(nil))

	s, err := l.Cancel(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, s.Status)
	require.NotNil(t, s.EndedAt)

	stored, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	_, err = l.Cancel(ctx, "s-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_EndForAllRequiresLive(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLifecycle(t, testSession(nil))

	_, err := l.EndForAll(ctx, "s-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_EndForAllClearsRoster(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLifecycle(t, testSession(func(s *model.Session) {
		s.Status = model.SessionLive
		s.CurrentParticipants = []model.Participant{{UserID: "host"}, {UserID: "alice"}}
	}))

	s, err := l.EndForAll(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, s.Status)
	assert.Equal(t, model.EndReasonHostEnded, s.EndReason)
	assert.Empty(t, s.CurrentParticipants)

	_, err = l.EndForAll(ctx, "s-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_GoLiveRespectsWindow(t *testing.T) {
	ctx := context.Background()
	l, _, clk := newTestLifecycle(t, testSession(nil))

	_, err := l.Transition(ctx, "s-1", model.SessionLive, "")
	assert.ErrorIs(t, err, ErrTooEarly)

	clk.Advance(30 * time.Minute)
	s, err := l.Transition(ctx, "s-1", model.SessionLive, "")
	require.NoError(t, err)
	assert.Equal(t, model.SessionLive, s.Status)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, clk.Now(), *s.StartedAt)

	// live -> live is the no-op a losing racer sees
	s, err = l.Transition(ctx, "s-1", model.SessionLive, "")
	require.NoError(t, err)
	assert.Equal(t, model.SessionLive, s.Status)
}

func TestLifecycle_PersistFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	l, repo, _ := newTestLifecycle(t, testSession(nil))
	repo.FailPuts(errors.New("write concern timeout"))

	_, err := l.Cancel(ctx, "s-1")
	assert.ErrorIs(t, err, ErrPersistenceFailed)

	s, err := l.registry.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionScheduled, s.Status)
	assert.Nil(t, s.EndedAt)

	repo.FailPuts(nil)
	s, err = l.Cancel(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, s.Status)
}

func TestLifecycle_UnknownSession(t *testing.T) {
	l, _, _ := newTestLifecycle(t, testSession(nil))

	_, err := l.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
