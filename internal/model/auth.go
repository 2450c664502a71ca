package model

import "github.com/golang-jwt/jwt/v5"

// UserClaims are JWT claims minted by the identity service for API callers
type UserClaims struct {
	UserID      string   `json:"userId"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`
	jwt.RegisteredClaims
}

// JoinClaims are JWT claims for session-scoped transport join tokens
type JoinClaims struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	Password string `json:"password,omitempty"`
}
