package flasher

import (
	"context"
	"io"
	"sync"
)

// Session is the dispatcher-scoped value each flash job runs inside:
// an is-communicating flag, the active transport handle, and pending
// cancellation. Exactly one Session is live per job; Begin/End bracket
// its lifetime so the transport is released on every exit path —
// success, failure, or external cancellation. Two Session values are
// fully independent; nothing here lives at package scope.
type Session struct {
	mu            sync.Mutex
	communicating bool
	transport     io.Closer
	cancel        context.CancelFunc
}

// NewSession returns an idle Session.
func NewSession() *Session {
	return &Session{}
}

// Begin marks the session as communicating and derives a cancellable
// child context whose CancelFunc End will invoke.
func (s *Session) Begin(ctx context.Context) context.Context {
	child, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.communicating = true
	s.cancel = cancel
	s.mu.Unlock()
	return child
}

// SetTransport records the transport handle End must release. Safe to
// call multiple times; the most recent handle wins.
func (s *Session) SetTransport(t io.Closer) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// IsCommunicating reports whether Begin has run without a matching End.
func (s *Session) IsCommunicating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.communicating
}

// End cancels any pending timer derived from this session's context and
// releases the transport handle. Idempotent: calling End more than
// once after the first has no further effect.
func (s *Session) End() {
	s.mu.Lock()
	t := s.transport
	cancel := s.cancel
	s.transport = nil
	s.cancel = nil
	s.communicating = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		_ = t.Close()
	}
}
