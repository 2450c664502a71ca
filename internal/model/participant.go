package model

import "time"

type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

// UserRole is the platform-wide role carried in identity tokens
type UserRole string

const (
	UserStudent UserRole = "student"
	UserTeacher UserRole = "teacher"
	UserAdmin   UserRole = "admin"
)

// Participant represents a user currently present in a session
type Participant struct {
	UserID      string    `json:"userId" bson:"userId"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	Role        Role      `json:"role" bson:"role"`
	JoinedAt    time.Time `json:"joinedAt" bson:"joinedAt"`
}

// Requester identifies who is asking to join or administer a session
type Requester struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`

	// Enrolled is resolved by the caller against the session's course
	Enrolled bool `json:"-"`
}

// IsAdmin reports whether the requester holds the platform admin role
func (r Requester) IsAdmin() bool {
	return r.Role == UserAdmin
}
