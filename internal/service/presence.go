package service

import (
	"context"
	"livesession/internal/model"
	"log"

	"github.com/jonboulle/clockwork"
)

// PresenceTracker records who is in each session. Registration and
// deregistration for one session go through that session's write lock, so
// occupancy never goes negative and the empty-session rule cannot race.
type PresenceTracker struct {
	registry  *registry
	lifecycle *Lifecycle
	clock     clockwork.Clock
}

func newPresenceTracker(reg *registry, lifecycle *Lifecycle, clock clockwork.Clock) *PresenceTracker {
	return &PresenceTracker{
		registry:  reg,
		lifecycle: lifecycle,
		clock:     clock,
	}
}

// Register appends p to the roster and takes a scheduled session live.
// It returns ErrAlreadyJoined if p.UserID is still present.
func (t *PresenceTracker) Register(ctx context.Context, sessionID string, p model.Participant) (*model.Session, error) {
	var wentLive bool
	s, err := t.registry.mutate(ctx, sessionID, func(s *model.Session) error {
		if s.Status.IsTerminal() {
			return ErrSessionEnded
		}
		if _, present := s.Participant(p.UserID); present {
			return ErrAlreadyJoined
		}
		if s.MaxParticipants > 0 && s.Occupancy() >= s.MaxParticipants {
			return ErrSessionFull
		}

		wentLive = s.Status == model.SessionScheduled
		if err := t.lifecycle.apply(s, model.SessionLive, t.clock.Now(), ""); err != nil {
			return err
		}
		if p.JoinedAt.IsZero() {
			p.JoinedAt = t.clock.Now()
		}
		s.CurrentParticipants = append(s.CurrentParticipants, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wentLive {
		log.Printf("Session %s: scheduled -> live (first join by %s)", sessionID, p.UserID)
	}
	return s, nil
}

// Deregister removes userID from the roster. Removing an absent user is a
// no-op. When the last participant of a live session leaves, the session
// completes. removed reports whether userID was present.
func (t *PresenceTracker) Deregister(ctx context.Context, sessionID, userID string) (s *model.Session, removed bool, err error) {
	s, err = t.registry.mutate(ctx, sessionID, func(s *model.Session) error {
		removed = false
		idx := -1
		for i, p := range s.CurrentParticipants {
			if p.UserID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errNoChange
		}

		s.CurrentParticipants = append(s.CurrentParticipants[:idx], s.CurrentParticipants[idx+1:]...)
		removed = true

		if len(s.CurrentParticipants) == 0 && s.Status == model.SessionLive {
			return t.lifecycle.apply(s, model.SessionCompleted, t.clock.Now(), model.EndReasonEmpty)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if removed && s.Status == model.SessionCompleted {
		log.Printf("Session %s: live -> completed (last participant %s left)", sessionID, userID)
		t.registry.forget(sessionID)
	}
	return s, removed, nil
}

// Snapshot returns the current roster without taking the write lock
func (t *PresenceTracker) Snapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	s, err := t.registry.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(s), nil
}

func snapshotOf(s *model.Session) *model.SessionSnapshot {
	participants := s.CurrentParticipants
	if participants == nil {
		participants = []model.Participant{}
	}
	return &model.SessionSnapshot{
		SessionID:    s.ID,
		Status:       s.Status,
		Occupancy:    len(participants),
		Participants: participants,
		Version:      s.Version,
	}
}
