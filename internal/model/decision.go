package model

import "time"

// DenialReason is a user-facing, expected refusal. Each maps to one UI message.
type DenialReason string

const (
	ReasonSessionEnded     DenialReason = "session_ended"
	ReasonTooEarly         DenialReason = "too_early"
	ReasonNotAssigned      DenialReason = "not_assigned"
	ReasonFull             DenialReason = "full"
	ReasonPasswordRequired DenialReason = "password_required"
	ReasonWrongPassword    DenialReason = "wrong_password"
	ReasonLockedOut        DenialReason = "locked_out"
	ReasonPreviewExpired   DenialReason = "preview_expired"
	ReasonNotHost          DenialReason = "not_host"
)

var reasonMessages = map[DenialReason]string{
	ReasonSessionEnded:     "This session has ended",
	ReasonTooEarly:         "It is too early to join this session",
	ReasonNotAssigned:      "You are not assigned to this session",
	ReasonFull:             "This session is full",
	ReasonPasswordRequired: "This session requires a password",
	ReasonWrongPassword:    "Wrong password",
	ReasonLockedOut:        "Too many wrong passwords, try again later",
	ReasonPreviewExpired:   "Your preview time is up",
	ReasonNotHost:          "Only the host can do that",
}

// Message returns the UI text for the reason
func (r DenialReason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// JoinDecision is the evaluator's verdict. Never persisted.
type JoinDecision struct {
	Allowed          bool         `json:"allowed"`
	Role             Role         `json:"role,omitempty"`
	RequiresPassword bool         `json:"requiresPassword"`
	Preview          bool         `json:"preview"`
	Reason           DenialReason `json:"reason,omitempty"`
}

// Denial is a structured refusal returned to the caller instead of an error
type Denial struct {
	Reason            DenialReason `json:"reason"`
	Message           string       `json:"message"`
	RetryAfterSeconds int          `json:"retryAfterSeconds,omitempty"`
	OpensAt           *time.Time   `json:"opensAt,omitempty"`
}

// NewDenial builds a Denial with the reason's default message
func NewDenial(reason DenialReason) *Denial {
	return &Denial{Reason: reason, Message: reason.Message()}
}

// PreviewGrant is a per-connection free-preview allowance
type PreviewGrant struct {
	UserID       string    `json:"userId"`
	SessionID    string    `json:"sessionId"`
	StartedAt    time.Time `json:"startedAt"`
	LimitSeconds int       `json:"limitSeconds"`
}

// ExpiresAt is when the preview runs out
func (g PreviewGrant) ExpiresAt() time.Time {
	return g.StartedAt.Add(time.Duration(g.LimitSeconds) * time.Second)
}

// JoinOutcome is the result of a join request: exactly one of Denial or Token is set
type JoinOutcome struct {
	Denial           *Denial       `json:"denial,omitempty"`
	RequiresPassword bool          `json:"requiresPassword,omitempty"`
	Token            string        `json:"token,omitempty"`
	Role             Role          `json:"role,omitempty"`
	Resumed          bool          `json:"resumed,omitempty"`
	Preview          *PreviewGrant `json:"preview,omitempty"`
	Session          *Session      `json:"session,omitempty"`
}

// Allowed reports whether the join succeeded
func (o *JoinOutcome) Allowed() bool {
	return o.Denial == nil
}

// HeartbeatStatus tells a participant where their preview stands
type HeartbeatStatus struct {
	Present          bool          `json:"present"`
	Preview          bool          `json:"preview"`
	RemainingSeconds int           `json:"remainingSeconds,omitempty"`
	Denial           *Denial       `json:"denial,omitempty"`
	Grant            *PreviewGrant `json:"grant,omitempty"`
}
