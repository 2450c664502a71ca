package repository

import (
	"context"
	"livesession/internal/model"
	"sort"
	"sync"
)

// MemorySessionRepo is an in-process SessionRepo for tests. It applies the
// same version check as the Mongo repo.
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	failPuts   error
	failedPuts int
}

// NewMemorySessionRepo creates an empty in-memory repository
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]*model.Session),
	}
}

// FailPuts makes every PutSession return err until it is called with nil
func (r *MemorySessionRepo) FailPuts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPuts = err
}

// FailedPuts counts the writes refused because of FailPuts
func (r *MemorySessionRepo) FailedPuts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedPuts
}

func (r *MemorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemorySessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepo) PutSession(ctx context.Context, session *model.Session, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPuts != nil {
		r.failedPuts++
		return r.failPuts
	}
	stored, ok := r.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := session.Clone()
	next.Version = expectedVersion + 1
	r.sessions[session.ID] = next
	session.Version = next.Version
	return nil
}

func (r *MemorySessionRepo) QueryAssignedSessions(ctx context.Context, userID string, kind model.SessionKind) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, s := range r.sessions {
		if s.Kind != kind || s.Status.IsTerminal() {
			continue
		}
		if s.HostID == userID || s.IsAssigned(userID) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

// Bump advances the stored version as if another process had written it
func (r *MemorySessionRepo) Bump(id string, mutate func(s *model.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		if mutate != nil {
			mutate(s)
		}
		s.Version++
	}
}

// MemoryEnrollmentRepo is an in-process EnrollmentRepo
type MemoryEnrollmentRepo struct {
	mu          sync.RWMutex
	enrollments []model.Enrollment
}

func NewMemoryEnrollmentRepo() *MemoryEnrollmentRepo {
	return &MemoryEnrollmentRepo{}
}

func (r *MemoryEnrollmentRepo) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.enrollments {
		if e.UserID == userID && e.CourseID == courseID && e.Status == model.EnrollmentActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryEnrollmentRepo) EnrolledUserIDs(ctx context.Context, courseID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, e := range r.enrollments {
		if e.CourseID == courseID && e.Status == model.EnrollmentActive && !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

func (r *MemoryEnrollmentRepo) Enroll(ctx context.Context, enrollment *model.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollments = append(r.enrollments, *enrollment)
	return nil
}
