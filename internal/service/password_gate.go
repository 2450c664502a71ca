package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

type GateResult int

const (
	GateAccepted GateResult = iota
	GateRejected
	GateLocked
)

// HashPassword hashes a session password for storage
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type gateKey struct {
	sessionID string
	userID    string
}

type attemptState struct {
	failures    int
	lockedUntil time.Time
}

// PasswordGate verifies private-session passwords and throttles guessing.
// Lockouts are per requester per session, live only in this process, and
// clear on their own after the cool-down.
type PasswordGate struct {
	clock       clockwork.Clock
	maxFailures int
	lockFor     time.Duration

	mu       sync.Mutex
	attempts map[gateKey]*attemptState
}

// NewPasswordGate locks a requester out for lockFor after maxFailures consecutive misses
func NewPasswordGate(clock clockwork.Clock, maxFailures int, lockFor time.Duration) *PasswordGate {
	return &PasswordGate{
		clock:       clock,
		maxFailures: maxFailures,
		lockFor:     lockFor,
		attempts:    make(map[gateKey]*attemptState),
	}
}

// Verify checks password against hash. When locked it returns the time
// left on the lock without looking at the password.
func (g *PasswordGate) Verify(sessionID, userID, password, hash string) (GateResult, time.Duration) {
	key := gateKey{sessionID: sessionID, userID: userID}

	if remaining := g.lockRemaining(key); remaining > 0 {
		return GateLocked, remaining
	}

	// bcrypt compares in constant time; keep it outside the mutex
	ok := hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil

	g.mu.Lock()
	defer g.mu.Unlock()

	if ok {
		delete(g.attempts, key)
		return GateAccepted, 0
	}

	st, exists := g.attempts[key]
	if !exists {
		st = &attemptState{}
		g.attempts[key] = st
	}
	st.failures++
	if st.failures >= g.maxFailures {
		st.failures = 0
		st.lockedUntil = g.clock.Now().Add(g.lockFor)
	}
	return GateRejected, 0
}

// lockRemaining reports how long key stays locked, clearing expired locks
func (g *PasswordGate) lockRemaining(key gateKey) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if len(g.attempts) > 1024 {
		g.prune(now)
	}

	st, ok := g.attempts[key]
	if !ok || st.lockedUntil.IsZero() {
		return 0
	}
	if now.Before(st.lockedUntil) {
		return st.lockedUntil.Sub(now)
	}
	delete(g.attempts, key)
	return 0
}

func (g *PasswordGate) prune(now time.Time) {
	for k, st := range g.attempts {
		if !st.lockedUntil.IsZero() && !now.Before(st.lockedUntil) {
			delete(g.attempts, k)
		}
	}
}

// Forget drops throttle state for a session that has ended
func (g *PasswordGate) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.attempts {
		if k.sessionID == sessionID {
			delete(g.attempts, k)
		}
	}
}
