package service

import (
	"context"
	"errors"
	"fmt"
	"livesession/internal/cache"
	"livesession/internal/model"
	"livesession/internal/repository"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxParticipants = 50
	defaultDurationMinutes = 60
	mirrorTimeout          = 500 * time.Millisecond
)

// Options tune admission and timing. Zero values take the defaults.
type Options struct {
	JoinWindow       time.Duration
	PreviewLimit     time.Duration
	LockoutAfter     int
	LockoutFor       time.Duration
	TransportTimeout time.Duration
	BcryptCost       int
	Clock            clockwork.Clock
}

func (o *Options) withDefaults() {
	if o.JoinWindow == 0 {
		o.JoinWindow = 30 * time.Minute
	}
	if o.PreviewLimit == 0 {
		o.PreviewLimit = 600 * time.Second
	}
	if o.LockoutAfter == 0 {
		o.LockoutAfter = 3
	}
	if o.LockoutFor == 0 {
		o.LockoutFor = 60 * time.Second
	}
	if o.TransportTimeout == 0 {
		o.TransportTimeout = 3 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// SessionGateway is the API the UI and transport layers call. It wires the
// authorizer, lifecycle, presence tracker and preview enforcer together.
type SessionGateway struct {
	repo        repository.SessionRepo
	enrollments repository.EnrollmentRepo
	transport   Transport
	opts        Options
	clock       clockwork.Clock

	registry   *registry
	lifecycle  *Lifecycle
	authorizer *Authorizer
	gate       *PasswordGate
	presence   *PresenceTracker
	preview    *PreviewEnforcer
	metrics    *Metrics

	broadcaster   Broadcaster
	sessionCache  cache.SessionCache
	presenceCache cache.PresenceCache
}

// NewSessionGateway creates a new session gateway
func NewSessionGateway(
	repo repository.SessionRepo,
	enrollments repository.EnrollmentRepo,
	transport Transport,
	opts Options,
) *SessionGateway {
	opts.withDefaults()

	reg := newRegistry(repo)
	lifecycle := newLifecycle(reg, opts.Clock, opts.JoinWindow)
	presence := newPresenceTracker(reg, lifecycle, opts.Clock)

	g := &SessionGateway{
		repo:        repo,
		enrollments: enrollments,
		transport:   transport,
		opts:        opts,
		clock:       opts.Clock,
		registry:    reg,
		lifecycle:   lifecycle,
		authorizer:  NewAuthorizer(opts.JoinWindow),
		gate:        NewPasswordGate(opts.Clock, opts.LockoutAfter, opts.LockoutFor),
		presence:    presence,
		preview:     newPreviewEnforcer(opts.Clock, opts.PreviewLimit, presence, transport),
		metrics:     NewMetrics(),
	}
	reg.onCommit = g.mirror
	g.preview.onExpire = g.previewExpired
	return g
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (g *SessionGateway) SetBroadcaster(b Broadcaster) {
	g.broadcaster = b
	g.preview.broadcaster = b
}

// SetCaches enables the Redis read mirrors; either may be nil
func (g *SessionGateway) SetCaches(sessions cache.SessionCache, presence cache.PresenceCache) {
	g.sessionCache = sessions
	g.presenceCache = presence
}

// Metrics returns the gateway's counters
func (g *SessionGateway) Metrics() MetricsSnapshot {
	return g.metrics.Snapshot(g.preview.Active())
}

// ScheduleSession validates and stores a new session. For class sessions
// tied to a course, the course's enrolled students are copied into the
// assignment list now; later enrollments are picked up at join time.
func (g *SessionGateway) ScheduleSession(ctx context.Context, req model.ScheduleRequest) (*model.Session, error) {
	now := g.clock.Now()

	if req.HostID == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidSchedule)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, req.Kind)
	}
	if !req.ScheduledAt.After(now) {
		return nil, fmt.Errorf("%w: scheduledAt must be in the future", ErrInvalidSchedule)
	}
	if req.IsPrivate && req.Password == "" {
		return nil, fmt.Errorf("%w: private sessions need a password", ErrInvalidSchedule)
	}
	if req.DurationMinutes < 0 || req.MaxParticipants < 0 {
		return nil, fmt.Errorf("%w: duration and capacity must not be negative", ErrInvalidSchedule)
	}

	assigned, err := g.resolveAssignees(ctx, req)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:                  uuid.NewString(),
		Kind:                req.Kind,
		HostID:              req.HostID,
		Title:               strings.TrimSpace(req.Title),
		CourseID:            req.CourseID,
		ScheduledAt:         req.ScheduledAt,
		DurationMinutes:     req.DurationMinutes,
		Status:              model.SessionScheduled,
		IsPrivate:           req.IsPrivate,
		IsPublic:            req.IsPublic && req.Kind == model.KindClass && !req.IsPrivate,
		AssignedUserIDs:     assigned,
		MaxParticipants:     req.MaxParticipants,
		CurrentParticipants: []model.Participant{},
		CreatedAt:           now,
	}
	if session.DurationMinutes == 0 {
		session.DurationMinutes = defaultDurationMinutes
	}
	if session.MaxParticipants == 0 {
		session.MaxParticipants = defaultMaxParticipants
	}
	if req.IsPrivate {
		hash, err := HashPassword(req.Password, g.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		session.PasswordHash = hash
	}

	if err := g.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %v", ErrPersistenceFailed, err)
	}
	g.mirror(ctx, session)

	log.Printf("Session %s scheduled by %s (%s, %d assigned) for %s",
		session.ID, session.HostID, session.Kind, len(assigned), session.ScheduledAt.Format(time.RFC3339))
	return session, nil
}

func (g *SessionGateway) resolveAssignees(ctx context.Context, req model.ScheduleRequest) ([]string, error) {
	seen := map[string]bool{req.HostID: true}
	assigned := []string{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			assigned = append(assigned, id)
		}
	}

	if req.Kind == model.KindClass && req.CourseID != "" {
		enrolled, err := g.enrollments.EnrolledUserIDs(ctx, req.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to list course enrollments: %w", err)
		}
		for _, id := range enrolled {
			add(id)
		}
		// invitees to a course-bound class still need an enrollment
		for _, id := range req.InviteeIDs {
			if seen[id] {
				continue
			}
			ok, err := g.enrollments.IsEnrolled(ctx, id, req.CourseID)
			if err != nil {
				return nil, fmt.Errorf("failed to check enrollment: %w", err)
			}
			if ok {
				add(id)
			}
		}
		return assigned, nil
	}

	for _, id := range req.InviteeIDs {
		add(id)
	}
	return assigned, nil
}

// RequestJoin decides whether req may join and, if so, registers them and
// returns a transport join token. Expected refusals come back as a Denial
// in the outcome; only infrastructure failures are returned as errors.
func (g *SessionGateway) RequestJoin(ctx context.Context, sessionID string, req model.Requester, password string) (*model.JoinOutcome, error) {
	session, err := g.registry.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := g.clock.Now()

	if session.Kind == model.KindClass && session.CourseID != "" &&
		req.ID != session.HostID && !session.IsAssigned(req.ID) {
		enrolled, err := g.enrollments.IsEnrolled(ctx, req.ID, session.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check enrollment: %w", err)
		}
		req.Enrolled = enrolled
	}

	decision := g.authorizer.Evaluate(session, req, now, false)
	if decision.RequiresPassword {
		if password == "" {
			out := g.denied(session, model.ReasonPasswordRequired)
			out.RequiresPassword = true
			return out, nil
		}
		result, retryAfter := g.gate.Verify(sessionID, req.ID, password, session.PasswordHash)
		switch result {
		case GateLocked:
			out := g.denied(session, model.ReasonLockedOut)
			out.Denial.RetryAfterSeconds = int(math.Ceil(retryAfter.Seconds()))
			return out, nil
		case GateRejected:
			return g.denied(session, model.ReasonWrongPassword), nil
		}
		decision = g.authorizer.Evaluate(session, req, now, true)
	}
	if !decision.Allowed {
		return g.denied(session, decision.Reason), nil
	}
	if decision.Preview && g.preview.Expired(sessionID, req.ID) {
		return g.denied(session, model.ReasonPreviewExpired), nil
	}

	// Token first: if the transport is slow nothing has been registered yet
	token, err := g.issueToken(ctx, sessionID, req.ID, decision.Role)
	if err != nil {
		return nil, err
	}

	participant := model.Participant{
		UserID:      req.ID,
		DisplayName: req.DisplayName,
		Role:        decision.Role,
		JoinedAt:    now,
	}
	wasScheduled := session.Status == model.SessionScheduled
	updated, err := g.presence.Register(ctx, sessionID, participant)

	resumed := false
	switch {
	case errors.Is(err, ErrAlreadyJoined):
		resumed = true
		if updated, err = g.registry.Load(ctx, sessionID); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrTooEarly):
		g.revoke(ctx, sessionID, req.ID)
		return g.denied(session, model.ReasonTooEarly), nil
	case errors.Is(err, ErrSessionFull):
		g.revoke(ctx, sessionID, req.ID)
		return g.denied(session, model.ReasonFull), nil
	case errors.Is(err, ErrSessionEnded), errors.Is(err, ErrInvalidTransition):
		g.revoke(ctx, sessionID, req.ID)
		return g.denied(session, model.ReasonSessionEnded), nil
	case err != nil:
		g.revoke(ctx, sessionID, req.ID)
		g.countFailure(err)
		return nil, err
	}

	outcome := &model.JoinOutcome{
		Token:   token,
		Role:    decision.Role,
		Resumed: resumed,
		Session: updated,
	}
	if decision.Preview {
		grant := g.preview.Start(sessionID, req.ID)
		outcome.Preview = &grant
	}

	if resumed {
		g.metrics.IncrementResumes()
	} else {
		g.metrics.IncrementJoins()
		if wasScheduled && updated.Status == model.SessionLive {
			g.metrics.SessionWentLive()
		}
		g.broadcast(sessionID, EventParticipantJoined, participant)
	}
	return outcome, nil
}

type tokenResult struct {
	token string
	err   error
}

// issueToken asks the transport for a join token under a short deadline.
// The deadline holds even if the transport ignores its context.
func (g *SessionGateway) issueToken(ctx context.Context, sessionID, userID string, role model.Role) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.TransportTimeout)
	defer cancel()

	ch := make(chan tokenResult, 1)
	go func() {
		token, err := g.transport.IssueJoinToken(ctx, sessionID, userID, role)
		ch <- tokenResult{token: token, err: err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: issuing join token", ErrTransportTimeout)
		}
		if r.err != nil {
			return "", fmt.Errorf("failed to issue join token: %w", r.err)
		}
		return r.token, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: issuing join token", ErrTransportTimeout)
		}
		return "", ctx.Err()
	}
}

// revoke takes back a join token that was issued for a registration that
// then failed. The transport forgets the participant, so a provider that
// honours tokens on its own will not admit them either.
func (g *SessionGateway) revoke(ctx context.Context, sessionID, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.TransportTimeout)
	defer cancel()
	if err := g.transport.DropParticipant(ctx, sessionID, userID); err != nil {
		log.Printf("Failed to revoke join token of %s in session %s: %v", userID, sessionID, err)
	}
}

// Leave removes userID from the session. Leaving twice is not an error.
func (g *SessionGateway) Leave(ctx context.Context, sessionID, userID string) error {
	grant, hadGrant := g.preview.Cancel(sessionID, userID)

	updated, removed, err := g.presence.Deregister(ctx, sessionID, userID)
	if err != nil {
		if hadGrant {
			g.preview.Restore(grant)
		}
		g.countFailure(err)
		return err
	}
	if hadGrant {
		g.preview.Bank(grant)
	}
	if !removed {
		return nil
	}

	g.metrics.IncrementLeaves()
	g.broadcast(sessionID, EventParticipantLeft, map[string]string{"userId": userID})
	if updated.Status == model.SessionCompleted {
		g.sessionFinished(updated)
	}
	return nil
}

// EndForAll completes a live session immediately and drops everyone from
// the transport. Only the host or an admin may do it.
func (g *SessionGateway) EndForAll(ctx context.Context, sessionID string, req model.Requester) (*model.Session, *model.Denial, error) {
	session, err := g.registry.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if req.ID != session.HostID && !req.IsAdmin() {
		g.metrics.IncrementDenial(model.ReasonNotHost)
		return nil, model.NewDenial(model.ReasonNotHost), nil
	}

	updated, err := g.lifecycle.EndForAll(ctx, sessionID)
	if err != nil {
		g.countFailure(err)
		return nil, nil, err
	}

	g.preview.CancelSession(sessionID)

	dropCtx, cancel := context.WithTimeout(ctx, g.opts.TransportTimeout)
	defer cancel()
	if err := g.transport.DropAllParticipants(dropCtx, sessionID); err != nil {
		log.Printf("Failed to drop participants of session %s: %v", sessionID, err)
	}

	g.sessionFinished(updated)
	return updated, nil, nil
}

// Cancel calls off a session that has not started. Host only.
func (g *SessionGateway) Cancel(ctx context.Context, sessionID string, req model.Requester) (*model.Session, *model.Denial, error) {
	session, err := g.registry.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if req.ID != session.HostID {
		g.metrics.IncrementDenial(model.ReasonNotHost)
		return nil, model.NewDenial(model.ReasonNotHost), nil
	}

	updated, err := g.lifecycle.Cancel(ctx, sessionID)
	if err != nil {
		g.countFailure(err)
		return nil, nil, err
	}
	g.sessionFinished(updated)
	return updated, nil, nil
}

// Heartbeat re-checks a participant's standing. A preview viewer who has
// since enrolled in the session's course loses the countdown.
func (g *SessionGateway) Heartbeat(ctx context.Context, sessionID, userID string) (*model.HeartbeatStatus, error) {
	if g.preview.Expired(sessionID, userID) {
		return &model.HeartbeatStatus{Denial: model.NewDenial(model.ReasonPreviewExpired)}, nil
	}

	session, err := g.registry.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_, present := session.Participant(userID)
	status := &model.HeartbeatStatus{Present: present}
	if session.Status.IsTerminal() {
		status.Denial = model.NewDenial(model.ReasonSessionEnded)
		return status, nil
	}

	grant, ok := g.preview.Grant(sessionID, userID)
	if !ok {
		return status, nil
	}

	if session.CourseID != "" {
		enrolled, err := g.enrollments.IsEnrolled(ctx, userID, session.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check enrollment: %w", err)
		}
		if enrolled {
			g.preview.Cancel(sessionID, userID)
			log.Printf("Preview for %s in session %s lifted: enrollment found", userID, sessionID)
			return status, nil
		}
	}

	remaining := grant.ExpiresAt().Sub(g.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	status.Preview = true
	status.Grant = &grant
	status.RemainingSeconds = int(remaining.Round(time.Second) / time.Second)
	return status, nil
}

// GetSession returns the session record, preferring the Redis mirror
func (g *SessionGateway) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if g.sessionCache != nil {
		if s, err := g.sessionCache.Get(ctx, sessionID); err == nil && s != nil {
			return s, nil
		}
	}
	return g.registry.Load(ctx, sessionID)
}

// Snapshot returns the current roster, preferring the Redis mirror
func (g *SessionGateway) Snapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	if g.presenceCache != nil {
		if snap, err := g.presenceCache.GetSnapshot(ctx, sessionID); err == nil && snap != nil {
			return snap, nil
		}
	}
	return g.presence.Snapshot(ctx, sessionID)
}

// ViewSession is GetSession as req may see it. Outsiders get the record
// without the assignment list and roster.
func (g *SessionGateway) ViewSession(ctx context.Context, sessionID string, req model.Requester) (*model.Session, error) {
	s, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.CanSeeRoster(req) {
		return s.Redacted(), nil
	}
	return s, nil
}

// ViewPresence is Snapshot as req may see it. Outsiders only get the
// occupancy.
func (g *SessionGateway) ViewPresence(ctx context.Context, sessionID string, req model.Requester) (*model.SessionSnapshot, error) {
	s, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := g.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.CanSeeRoster(req) {
		trimmed := *snap
		trimmed.Participants = []model.Participant{}
		return &trimmed, nil
	}
	return snap, nil
}

// ListAssigned returns upcoming and live sessions of a kind for userID
func (g *SessionGateway) ListAssigned(ctx context.Context, userID string, kind model.SessionKind) ([]*model.Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, kind)
	}
	return g.repo.QueryAssignedSessions(ctx, userID, kind)
}

func (g *SessionGateway) denied(session *model.Session, reason model.DenialReason) *model.JoinOutcome {
	g.metrics.IncrementDenial(reason)
	d := model.NewDenial(reason)
	if reason == model.ReasonTooEarly {
		opens := session.JoinOpensAt(g.opts.JoinWindow)
		d.OpensAt = &opens
	}
	return &model.JoinOutcome{Denial: d}
}

func (g *SessionGateway) sessionFinished(s *model.Session) {
	g.metrics.SessionEnded()
	g.gate.Forget(s.ID)
	g.preview.CancelSession(s.ID)
	g.broadcast(s.ID, EventSessionEnded, map[string]interface{}{
		"sessionId": s.ID,
		"status":    s.Status,
		"reason":    s.EndReason,
	})
}

// previewExpired runs once an expired viewer is off the roster. If they
// were the last one there, the session has just completed.
func (g *SessionGateway) previewExpired(grant model.PreviewGrant, s *model.Session, removed bool) {
	g.metrics.IncrementEvictions()
	g.metrics.IncrementDenial(model.ReasonPreviewExpired)
	if !removed {
		return
	}
	g.broadcast(grant.SessionID, EventParticipantLeft, map[string]string{"userId": grant.UserID})
	if s.Status == model.SessionCompleted {
		g.sessionFinished(s)
	}
}

func (g *SessionGateway) broadcast(sessionID, msgType string, payload interface{}) {
	if g.broadcaster != nil {
		g.broadcaster.BroadcastToSession(sessionID, msgType, payload)
	}
}

func (g *SessionGateway) countFailure(err error) {
	if errors.Is(err, ErrPersistenceFailed) {
		g.metrics.IncrementPersistFailures()
	}
}

// mirror copies a committed session into the Redis read caches. It runs
// after the session lock is released; the caches drop writes older than
// what they hold. Failures only cost freshness and are logged.
func (g *SessionGateway) mirror(ctx context.Context, s *model.Session) {
	if g.sessionCache == nil && g.presenceCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	if g.sessionCache != nil {
		if err := g.sessionCache.Set(ctx, s); err != nil {
			log.Printf("Failed to cache session %s: %v", s.ID, err)
		}
	}
	if g.presenceCache != nil {
		if err := g.presenceCache.SetSnapshot(ctx, snapshotOf(s)); err != nil {
			log.Printf("Failed to cache presence for %s: %v", s.ID, err)
		}
	}
}
