package service

import (
	"livesession/internal/model"
	"time"
)

// Authorizer decides whether a requester may join a session and in which
// role. It never mutates the session and needs no locking.
type Authorizer struct {
	joinWindow time.Duration
}

// NewAuthorizer creates an evaluator that opens joins joinWindow before start
func NewAuthorizer(joinWindow time.Duration) *Authorizer {
	return &Authorizer{joinWindow: joinWindow}
}

// Evaluate applies the admission rules in order; the first match wins.
// passwordVerified is true only after the caller checked the session
// password for this requester.
func (a *Authorizer) Evaluate(s *model.Session, req model.Requester, now time.Time, passwordVerified bool) model.JoinDecision {
	if s.Status.IsTerminal() {
		return deny(model.ReasonSessionEnded)
	}

	if req.ID == s.HostID || req.IsAdmin() {
		return model.JoinDecision{Allowed: true, Role: model.RolePresenter}
	}

	if now.Before(s.JoinOpensAt(a.joinWindow)) {
		return deny(model.ReasonTooEarly)
	}

	standing := hasStandingAccess(s, req)

	if s.IsPrivate && !standing {
		if !passwordVerified {
			return model.JoinDecision{RequiresPassword: true, Reason: model.ReasonPasswordRequired}
		}
	} else if !standing && !s.IsOpenClass() {
		return deny(model.ReasonNotAssigned)
	}

	if _, present := s.Participant(req.ID); !present {
		if s.MaxParticipants > 0 && s.Occupancy() >= s.MaxParticipants {
			return deny(model.ReasonFull)
		}
	}

	return model.JoinDecision{
		Allowed: true,
		Role:    model.RoleViewer,
		Preview: !standing && !s.IsPrivate,
	}
}

// hasStandingAccess is true for assignees and, on course-bound class
// sessions, anyone holding an active enrollment.
func hasStandingAccess(s *model.Session, req model.Requester) bool {
	if s.IsAssigned(req.ID) {
		return true
	}
	return s.Kind == model.KindClass && s.CourseID != "" && req.Enrolled
}

func deny(reason model.DenialReason) model.JoinDecision {
	return model.JoinDecision{Reason: reason}
}
