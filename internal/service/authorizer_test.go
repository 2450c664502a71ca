package service

import (
	"livesession/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testSession(mutate func(s *model.Session)) *model.Session {
	s := &model.Session{
		ID:              "s-1",
		Kind:            model.KindClass,
		HostID:          "host",
		ScheduledAt:     t0.Add(time.Hour),
		Status:          model.SessionScheduled,
		AssignedUserIDs: []string{"alice"},
		MaxParticipants: 3,
	}
	if mutate != nil {
		mutate(s)
	}
	return s
}

func TestAuthorizer_Evaluate(t *testing.T) {
	a := NewAuthorizer(30 * time.Minute)
	inWindow := t0.Add(45 * time.Minute)

	tests := []struct {
		name     string
		session  *model.Session
		req      model.Requester
		now      time.Time
		verified bool
		want     model.JoinDecision
	}{
		{
			"completed session",
			testSession(func(s *model.Session) { s.Status = model.SessionCompleted }),
			model.Requester{ID: "host"},
			inWindow, false,
			model.JoinDecision{Reason: model.ReasonSessionEnded},
		},
		{
			"cancelled session",
			testSession(func(s *model.Session) { s.Status = model.SessionCancelled }),
			model.Requester{ID: "alice"},
			inWindow, false,
			model.JoinDecision{Reason: model.ReasonSessionEnded},
		},
		{
			"host before window",
			testSession(nil),
			model.Requester{ID: "host"},
			t0, false,
			model.JoinDecision{Allowed: true, Role: model.RolePresenter},
		},
		{
			"admin is presenter",
			testSession(nil),
			model.Requester{ID: "root", Role: model.UserAdmin},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RolePresenter},
		},
		{
			"assigned too early",
			testSession(nil),
			model.Requester{ID: "alice"},
			t0.Add(29 * time.Minute),
			false,
			model.JoinDecision{Reason: model.ReasonTooEarly},
		},
		{
			"assigned at window open",
			testSession(nil),
			model.Requester{ID: "alice"},
			t0.Add(30 * time.Minute),
			false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"not assigned to course class",
			testSession(func(s *model.Session) { s.CourseID = "c-1" }),
			model.Requester{ID: "bob"},
			inWindow, false,
			model.JoinDecision{Reason: model.ReasonNotAssigned},
		},
		{
			"enrolled but not assigned",
			testSession(func(s *model.Session) { s.CourseID = "c-1" }),
			model.Requester{ID: "bob", Enrolled: true},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"open class gives preview",
			testSession(func(s *model.Session) { s.IsPublic = true }),
			model.Requester{ID: "bob"},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer, Preview: true},
		},
		{
			"open class assignee has no preview",
			testSession(func(s *model.Session) { s.IsPublic = true }),
			model.Requester{ID: "alice"},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"teacher session not assigned",
			testSession(func(s *model.Session) { s.Kind = model.KindTeacher; s.IsPublic = true }),
			model.Requester{ID: "bob"},
			inWindow, false,
			model.JoinDecision{Reason: model.ReasonNotAssigned},
		},
		{
			"private needs password",
			testSession(func(s *model.Session) { s.Kind = model.KindTeacher; s.IsPrivate = true }),
			model.Requester{ID: "bob"},
			inWindow, false,
			model.JoinDecision{RequiresPassword: true, Reason: model.ReasonPasswordRequired},
		},
		{
			"private with verified password",
			testSession(func(s *model.Session) { s.Kind = model.KindTeacher; s.IsPrivate = true }),
			model.Requester{ID: "bob"},
			inWindow, true,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"private assignee skips password",
			testSession(func(s *model.Session) { s.IsPrivate = true }),
			model.Requester{ID: "alice"},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"full",
			testSession(func(s *model.Session) {
				s.Status = model.SessionLive
				s.CurrentParticipants = []model.Participant{{UserID: "host"}, {UserID: "x"}, {UserID: "y"}}
			}),
			model.Requester{ID: "alice"},
			inWindow, false,
			model.JoinDecision{Reason: model.ReasonFull},
		},
		{
			"full but already present",
			testSession(func(s *model.Session) {
				s.Status = model.SessionLive
				s.CurrentParticipants = []model.Participant{{UserID: "host"}, {UserID: "alice"}, {UserID: "y"}}
			}),
			model.Requester{ID: "alice"},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RoleViewer},
		},
		{
			"host on a full session",
			testSession(func(s *model.Session) {
				s.Status = model.SessionLive
				s.CurrentParticipants = []model.Participant{{UserID: "x"}, {UserID: "y"}, {UserID: "z"}}
			}),
			model.Requester{ID: "host"},
			inWindow, false,
			model.JoinDecision{Allowed: true, Role: model.RolePresenter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Evaluate(tt.session, tt.req, tt.now, tt.verified)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizer_EvaluateDoesNotMutate(t *testing.T) {
	a := NewAuthorizer(30 * time.Minute)
	s := testSession(func(s *model.Session) { s.IsPublic = true })
	before := s.Clone()

	a.Evaluate(s, model.Requester{ID: "bob"}, t0.Add(time.Hour), false)

	assert.Equal(t, before, s)
}
