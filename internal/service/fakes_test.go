package service

import (
	"context"
	"fmt"
	"livesession/internal/model"
	"sync"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// clockwork runs AfterFunc callbacks on their own goroutines, so effects of
// an Advance are awaited rather than asserted straight away
const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

// fakeTransport records drops. When block is set, IssueJoinToken hangs
// until release is closed, ignoring its context.
type fakeTransport struct {
	mu       sync.Mutex
	issued   []string
	dropped  []string
	droppedS []string
	issueErr error

	block   bool
	release chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{release: make(chan struct{})}
}

func (f *fakeTransport) IssueJoinToken(ctx context.Context, sessionID, userID string, role model.Role) (string, error) {
	f.mu.Lock()
	block, err := f.block, f.issueErr
	f.mu.Unlock()

	if block {
		<-f.release
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, userID)
	return fmt.Sprintf("tok-%s-%s-%s", sessionID, userID, role), nil
}

func (f *fakeTransport) DropParticipant(ctx context.Context, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, userID)
	return nil
}

func (f *fakeTransport) DropAllParticipants(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.droppedS = append(f.droppedS, sessionID)
	return nil
}

func (f *fakeTransport) Dropped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dropped...)
}

func (f *fakeTransport) DroppedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.droppedS...)
}

type sentEvent struct {
	SessionID string
	UserID    string
	Type      string
	Payload   interface{}
}

// recordingBroadcaster keeps every event in order
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{SessionID: sessionID, Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) SendToParticipant(sessionID, userID string, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{SessionID: sessionID, UserID: userID, Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBroadcaster) Find(msgType string) (sentEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Type == msgType {
			return e, true
		}
	}
	return sentEvent{}, false
}
