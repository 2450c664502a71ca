package model

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave this status
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// SessionKind selects which assignment list governs who may join
type SessionKind string

const (
	KindClass   SessionKind = "class"
	KindTeacher SessionKind = "teacher"
	KindStudent SessionKind = "student"
	KindAdmin   SessionKind = "admin"
)

// Valid reports whether k is one of the four known kinds
func (k SessionKind) Valid() bool {
	switch k {
	case KindClass, KindTeacher, KindStudent, KindAdmin:
		return true
	}
	return false
}

type EndReason string

const (
	EndReasonEmpty     EndReason = "empty"
	EndReasonHostEnded EndReason = "host_ended"
)

// Session is one scheduled or in-progress meeting
type Session struct {
	ID                  string        `json:"id" bson:"_id"`
	Kind                SessionKind   `json:"kind" bson:"kind"`
	HostID              string        `json:"hostId" bson:"hostId"`
	Title               string        `json:"title" bson:"title"`
	CourseID            string        `json:"courseId,omitempty" bson:"courseId,omitempty"`
	ScheduledAt         time.Time     `json:"scheduledAt" bson:"scheduledAt"`
	DurationMinutes     int           `json:"durationMinutes" bson:"durationMinutes"`
	Status              SessionStatus `json:"status" bson:"status"`
	IsPrivate           bool          `json:"isPrivate" bson:"isPrivate"`
	PasswordHash        string        `json:"-" bson:"passwordHash,omitempty"`
	IsPublic            bool          `json:"isPublic" bson:"isPublic"`
	AssignedUserIDs     []string      `json:"assignedUserIds" bson:"assignedUserIds"`
	MaxParticipants     int           `json:"maxParticipants" bson:"maxParticipants"`
	CurrentParticipants []Participant `json:"currentParticipants" bson:"currentParticipants"`
	Version             int64         `json:"version" bson:"version"`
	CreatedAt           time.Time     `json:"createdAt" bson:"createdAt"`
	StartedAt           *time.Time    `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt             *time.Time    `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	EndReason           EndReason     `json:"endReason,omitempty" bson:"endReason,omitempty"`
}

// JoinOpensAt is the earliest instant a non-host may join
func (s *Session) JoinOpensAt(window time.Duration) time.Time {
	return s.ScheduledAt.Add(-window)
}

// IsAssigned reports whether userID is pre-authorized for this session
func (s *Session) IsAssigned(userID string) bool {
	for _, id := range s.AssignedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsOpenClass reports whether any authenticated user may join without assignment
func (s *Session) IsOpenClass() bool {
	return s.Kind == KindClass && !s.IsPrivate && s.IsPublic
}

// Participant returns the present participant with userID, if any
func (s *Session) Participant(userID string) (*Participant, bool) {
	for i := range s.CurrentParticipants {
		if s.CurrentParticipants[i].UserID == userID {
			return &s.CurrentParticipants[i], true
		}
	}
	return nil, false
}

// Occupancy is the number of participants currently present
func (s *Session) Occupancy() int {
	return len(s.CurrentParticipants)
}

// CanSeeRoster reports whether req may see who is assigned to and present
// in the session
func (s *Session) CanSeeRoster(req Requester) bool {
	if req.ID == s.HostID || req.IsAdmin() || s.IsAssigned(req.ID) {
		return true
	}
	_, present := s.Participant(req.ID)
	return present
}

// Redacted returns a copy without the assignment list and the roster
func (s *Session) Redacted() *Session {
	c := s.Clone()
	c.AssignedUserIDs = []string{}
	c.CurrentParticipants = []Participant{}
	return c
}

// Clone returns a deep copy safe to mutate without affecting s
func (s *Session) Clone() *Session {
	c := *s
	c.AssignedUserIDs = append([]string(nil), s.AssignedUserIDs...)
	c.CurrentParticipants = append([]Participant(nil), s.CurrentParticipants...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// ScheduleRequest is the input for scheduling a new session
type ScheduleRequest struct {
	Kind            SessionKind `json:"kind"`
	HostID          string      `json:"-"`
	Title           string      `json:"title"`
	CourseID        string      `json:"courseId,omitempty"`
	ScheduledAt     time.Time   `json:"scheduledAt"`
	DurationMinutes int         `json:"durationMinutes"`
	IsPrivate       bool        `json:"isPrivate"`
	Password        string      `json:"password,omitempty"`
	IsPublic        bool        `json:"isPublic"`
	InviteeIDs      []string    `json:"inviteeIds,omitempty"`
	MaxParticipants int         `json:"maxParticipants"`
}

// SessionSnapshot is the read-only presence view of a session
type SessionSnapshot struct {
	SessionID    string        `json:"sessionId"`
	Status       SessionStatus `json:"status"`
	Occupancy    int           `json:"occupancy"`
	Participants []Participant `json:"participants"`
	Version      int64         `json:"version"`
}
