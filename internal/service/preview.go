package service

import (
	"context"
	"errors"
	"livesession/internal/model"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// evictTimeout bounds the store and transport calls made on expiry
	evictTimeout = 5 * time.Second

	evictRetryMin = 5 * time.Second
	evictRetryMax = time.Minute
)

type grantKey struct {
	sessionID string
	userID    string
}

type countdown struct {
	grant   model.PreviewGrant
	timer   clockwork.Timer
	handled atomic.Bool
}

// PreviewEnforcer time-boxes viewers without standing access. When a
// countdown runs out the viewer is told why, dropped from the transport and
// deregistered. Expiry and cancellation share a single-fire guard so each
// grant ends exactly once. Time used before a voluntary leave is kept, so a
// rejoin only gets what is left of the limit.
type PreviewEnforcer struct {
	clock     clockwork.Clock
	limit     time.Duration
	presence  *PresenceTracker
	transport Transport

	mu         sync.Mutex
	countdowns map[grantKey]*countdown
	expired    map[grantKey]time.Time
	spent      map[grantKey]time.Duration

	// set by the gateway; both may be nil
	broadcaster Broadcaster
	onExpire    func(grant model.PreviewGrant, s *model.Session, removed bool)
}

func newPreviewEnforcer(clock clockwork.Clock, limit time.Duration, presence *PresenceTracker, transport Transport) *PreviewEnforcer {
	return &PreviewEnforcer{
		clock:      clock,
		limit:      limit,
		presence:   presence,
		transport:  transport,
		countdowns: make(map[grantKey]*countdown),
		expired:    make(map[grantKey]time.Time),
		spent:      make(map[grantKey]time.Duration),
	}
}

// Start begins a countdown for the viewer, or returns the running one
func (e *PreviewEnforcer) Start(sessionID, userID string) model.PreviewGrant {
	key := grantKey{sessionID: sessionID, userID: userID}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.countdowns[key]; ok {
		return c.grant
	}

	left := e.limit - e.spent[key]
	if left < 0 {
		left = 0
	}
	grant := model.PreviewGrant{
		UserID:       userID,
		SessionID:    sessionID,
		StartedAt:    e.clock.Now(),
		LimitSeconds: int(left / time.Second),
	}
	e.schedule(key, grant, time.Duration(grant.LimitSeconds)*time.Second)
	return grant
}

// Bank records the time a cancelled grant ran. Once the whole limit has
// been used the viewer counts as expired.
func (e *PreviewEnforcer) Bank(grant model.PreviewGrant) {
	key := grantKey{sessionID: grant.SessionID, userID: grant.UserID}
	now := e.clock.Now()
	used := now.Sub(grant.StartedAt)
	if used < 0 {
		used = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.spent[key] += used
	if e.spent[key] >= e.limit {
		delete(e.spent, key)
		e.expired[key] = now
	}
}

// Spent is the preview time banked for the viewer so far
func (e *PreviewEnforcer) Spent(sessionID, userID string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spent[grantKey{sessionID: sessionID, userID: userID}]
}

// Restore re-arms a grant that was cancelled by a leave that then failed.
// The countdown resumes with whatever time the grant had left.
func (e *PreviewEnforcer) Restore(grant model.PreviewGrant) {
	key := grantKey{sessionID: grant.SessionID, userID: grant.UserID}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.countdowns[key]; ok {
		return
	}
	remaining := grant.ExpiresAt().Sub(e.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	e.schedule(key, grant, remaining)
}

// schedule must be called with e.mu held
func (e *PreviewEnforcer) schedule(key grantKey, grant model.PreviewGrant, d time.Duration) {
	c := &countdown{grant: grant}
	e.countdowns[key] = c
	c.timer = e.clock.AfterFunc(d, func() {
		e.expire(key, c)
	})
}

// Cancel stops the viewer's countdown. It returns the grant if this call
// was the one that ended it.
func (e *PreviewEnforcer) Cancel(sessionID, userID string) (model.PreviewGrant, bool) {
	key := grantKey{sessionID: sessionID, userID: userID}

	e.mu.Lock()
	c, ok := e.countdowns[key]
	if ok {
		delete(e.countdowns, key)
	}
	e.mu.Unlock()

	if !ok || !c.handled.CompareAndSwap(false, true) {
		return model.PreviewGrant{}, false
	}
	c.timer.Stop()
	return c.grant, true
}

// CancelSession stops every countdown in a session and forgets its expiries
// and banked time
func (e *PreviewEnforcer) CancelSession(sessionID string) int {
	e.mu.Lock()
	var victims []*countdown
	for k, c := range e.countdowns {
		if k.sessionID == sessionID {
			victims = append(victims, c)
			delete(e.countdowns, k)
		}
	}
	for k := range e.expired {
		if k.sessionID == sessionID {
			delete(e.expired, k)
		}
	}
	for k := range e.spent {
		if k.sessionID == sessionID {
			delete(e.spent, k)
		}
	}
	e.mu.Unlock()

	n := 0
	for _, c := range victims {
		if c.handled.CompareAndSwap(false, true) {
			c.timer.Stop()
			n++
		}
	}
	return n
}

// Grant returns the running grant for a viewer, if any
func (e *PreviewEnforcer) Grant(sessionID, userID string) (model.PreviewGrant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.countdowns[grantKey{sessionID: sessionID, userID: userID}]
	if !ok {
		return model.PreviewGrant{}, false
	}
	return c.grant, true
}

// Expired reports whether the viewer already used up their preview here
func (e *PreviewEnforcer) Expired(sessionID, userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.expired[grantKey{sessionID: sessionID, userID: userID}]
	return ok
}

// Active is the number of running countdowns
func (e *PreviewEnforcer) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.countdowns)
}

func (e *PreviewEnforcer) expire(key grantKey, c *countdown) {
	if !c.handled.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	if cur, ok := e.countdowns[key]; ok && cur == c {
		delete(e.countdowns, key)
	}
	e.expired[key] = e.clock.Now()
	delete(e.spent, key)
	e.mu.Unlock()

	grant := c.grant
	log.Printf("Preview expired for %s in session %s", grant.UserID, grant.SessionID)

	if e.broadcaster != nil {
		e.broadcaster.SendToParticipant(grant.SessionID, grant.UserID, EventPreviewExpired, model.NewDenial(model.ReasonPreviewExpired))
	}

	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()
	if err := e.transport.DropParticipant(ctx, grant.SessionID, grant.UserID); err != nil {
		log.Printf("Failed to drop expired viewer %s: %v", grant.UserID, err)
	}

	e.evict(grant, evictRetryMin)
}

// evict takes an expired viewer off the roster. While the store refuses
// the write it tries again later, backing off up to evictRetryMax, so the
// seat is always given back.
func (e *PreviewEnforcer) evict(grant model.PreviewGrant, wait time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()

	s, removed, err := e.presence.Deregister(ctx, grant.SessionID, grant.UserID)
	if errors.Is(err, ErrPersistenceFailed) {
		log.Printf("Failed to deregister expired viewer %s, retrying in %v: %v", grant.UserID, wait, err)
		next := wait * 2
		if next > evictRetryMax {
			next = evictRetryMax
		}
		e.clock.AfterFunc(wait, func() {
			e.evict(grant, next)
		})
		return
	}
	if err != nil {
		log.Printf("Failed to deregister expired viewer %s: %v", grant.UserID, err)
		return
	}
	if e.onExpire != nil {
		e.onExpire(grant, s, removed)
	}
}
