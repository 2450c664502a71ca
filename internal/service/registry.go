package service

import (
	"context"
	"errors"
	"fmt"
	"livesession/internal/model"
	"livesession/internal/repository"
	"log"
	"sync"
	"sync/atomic"
)

// registry serializes writes per session and keeps the last committed copy
// of each session for lock-free reads. Sessions never share a lock.
type registry struct {
	repo repository.SessionRepo

	mu      sync.Mutex
	entries map[string]*sessionEntry

	// onCommit runs after every successful write, once the session lock
	// has been released
	onCommit func(ctx context.Context, s *model.Session)
}

type sessionEntry struct {
	mu        sync.Mutex
	committed atomic.Pointer[model.Session]
}

func newRegistry(repo repository.SessionRepo) *registry {
	return &registry{
		repo:    repo,
		entries: make(map[string]*sessionEntry),
	}
}

func (r *registry) entry(id string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		e = &sessionEntry{}
		r.entries[id] = e
	}
	return e
}

// forget drops the in-memory copy of a session that can no longer change
func (r *registry) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Load returns a private copy of the session, reading through to the store
// the first time this process sees it.
func (r *registry) Load(ctx context.Context, id string) (*model.Session, error) {
	e := r.entry(id)
	if s := e.committed.Load(); s != nil {
		return s.Clone(), nil
	}

	s, err := r.repo.GetSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if s.Status.IsTerminal() {
		// nothing will ever write it again, so don't keep it resident
		r.forget(id)
		return s, nil
	}
	e.committed.CompareAndSwap(nil, s)
	return e.committed.Load().Clone(), nil
}

// mutate applies fn to a clone of the committed session under the session
// lock and persists it with the committed version as the expected version.
// A failed write leaves the committed copy untouched. If another process
// won the compare-and-set, the session is reloaded and fn runs once more.
func (r *registry) mutate(ctx context.Context, id string, fn func(s *model.Session) error) (*model.Session, error) {
	if _, err := r.Load(ctx, id); err != nil {
		return nil, err
	}

	s, written, err := r.mutateLocked(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	if written && r.onCommit != nil {
		r.onCommit(ctx, s.Clone())
	}
	return s, nil
}

// mutateLocked holds the session lock for the read-modify-write only.
// written is false when fn made no change.
func (r *registry) mutateLocked(ctx context.Context, id string, fn func(s *model.Session) error) (*model.Session, bool, error) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	// Load may have raced with forget; make sure this entry is hydrated
	if e.committed.Load() == nil {
		s, err := r.repo.GetSession(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
		e.committed.Store(s)
	}

	for attempt := 0; ; attempt++ {
		current := e.committed.Load()
		next := current.Clone()

		if err := fn(next); err != nil {
			if errors.Is(err, errNoChange) {
				return current.Clone(), false, nil
			}
			return nil, false, err
		}

		err := r.repo.PutSession(ctx, next, current.Version)
		if err == nil {
			e.committed.Store(next)
			return next.Clone(), true, nil
		}

		if errors.Is(err, repository.ErrVersionConflict) && attempt == 0 {
			fresh, gerr := r.repo.GetSession(ctx, id)
			if gerr != nil {
				return nil, false, fmt.Errorf("%w: reload after conflict: %v", ErrPersistenceFailed, gerr)
			}
			log.Printf("Session %s changed elsewhere (v%d -> v%d), retrying", id, current.Version, fresh.Version)
			e.committed.Store(fresh)
			continue
		}
		return nil, false, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
}
