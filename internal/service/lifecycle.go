package service

import (
	"context"
	"livesession/internal/model"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// allowed lists every legal status change; anything else is ErrInvalidTransition
var allowed = map[model.SessionStatus][]model.SessionStatus{
	model.SessionScheduled: {model.SessionLive, model.SessionCancelled},
	model.SessionLive:      {model.SessionCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle step
func CanTransition(from, to model.SessionStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle owns a session's status and validates every transition
type Lifecycle struct {
	registry   *registry
	clock      clockwork.Clock
	joinWindow time.Duration
}

func newLifecycle(reg *registry, clock clockwork.Clock, joinWindow time.Duration) *Lifecycle {
	return &Lifecycle{
		registry:   reg,
		clock:      clock,
		joinWindow: joinWindow,
	}
}

// apply performs the transition on s in memory. Going live on an already
// live session is not an error: the caller lost a race that resolved the
// way it wanted.
func (l *Lifecycle) apply(s *model.Session, to model.SessionStatus, now time.Time, reason model.EndReason) error {
	if to == model.SessionLive && s.Status == model.SessionLive {
		return nil
	}
	if !CanTransition(s.Status, to) {
		return ErrInvalidTransition
	}

	switch to {
	case model.SessionLive:
		if now.Before(s.JoinOpensAt(l.joinWindow)) {
			return ErrTooEarly
		}
		s.StartedAt = &now
	case model.SessionCompleted:
		s.EndedAt = &now
		s.EndReason = reason
	case model.SessionCancelled:
		s.EndedAt = &now
	}
	s.Status = to
	return nil
}

// Transition persists a status change through the session's write lock
func (l *Lifecycle) Transition(ctx context.Context, sessionID string, to model.SessionStatus, reason model.EndReason) (*model.Session, error) {
	var from model.SessionStatus
	s, err := l.registry.mutate(ctx, sessionID, func(s *model.Session) error {
		from = s.Status
		if err := l.apply(s, to, l.clock.Now(), reason); err != nil {
			return err
		}
		if to == model.SessionCompleted {
			s.CurrentParticipants = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Session %s: %s -> %s", sessionID, from, s.Status)
	if s.Status.IsTerminal() {
		l.registry.forget(sessionID)
	}
	return s, nil
}

// Cancel moves a scheduled session to cancelled
func (l *Lifecycle) Cancel(ctx context.Context, sessionID string) (*model.Session, error) {
	return l.Transition(ctx, sessionID, model.SessionCancelled, "")
}

// EndForAll forces a live session to completed and empties its roster
func (l *Lifecycle) EndForAll(ctx context.Context, sessionID string) (*model.Session, error) {
	return l.Transition(ctx, sessionID, model.SessionCompleted, model.EndReasonHostEnded)
}
