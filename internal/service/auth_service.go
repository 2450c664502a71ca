package service

import (
	"errors"
	"livesession/internal/model"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// joinTokenTTL bounds how long a join token can be presented to the transport
const joinTokenTTL = 5 * time.Minute

// Audiences keep a join token from passing as an identity token and vice versa
const (
	audienceAPI       = "livesession-api"
	audienceTransport = "livesession-transport"
)

// AuthService signs and validates identity and join tokens
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates a new auth service
func NewAuthService(secret string) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
	}
}

// IssueUserToken mints an identity token the way the identity service does
func (s *AuthService) IssueUserToken(userID, displayName string, role model.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &model.UserClaims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceAPI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateUserToken validates an identity JWT and returns claims
func (s *AuthService) ValidateUserToken(tokenString string) (*model.UserClaims, error) {
	claims := &model.UserClaims{}
	if err := s.parse(tokenString, claims, audienceAPI); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateJoinToken creates a session-scoped token for the transport
func (s *AuthService) GenerateJoinToken(sessionID, userID string, role model.Role) (string, error) {
	now := time.Now()
	claims := &model.JoinClaims{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceTransport},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(joinTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateJoinToken validates a join JWT and returns claims
func (s *AuthService) ValidateJoinToken(tokenString string) (*model.JoinClaims, error) {
	claims := &model.JoinClaims{}
	if err := s.parse(tokenString, claims, audienceTransport); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(audience))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
