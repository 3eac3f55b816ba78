// ABOUTME: Session-change subscription fan-out shared by provider implementations
// ABOUTME: Handlers run outside the lock so they may call back into the provider

package identity

import "sync"

// subscribers fans session-change notifications out to registered handlers.
type subscribers struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(*Session)
}

// add registers a handler and returns a function that removes it.
func (s *subscribers) add(handler func(*Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handlers == nil {
		s.handlers = make(map[int]func(*Session))
	}
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// notify calls every registered handler with a copy of the session.
// Each handler gets its own copy so one handler cannot mutate what
// another sees.
func (s *subscribers) notify(session *Session) {
	s.mu.Lock()
	handlers := make([]func(*Session), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		if session == nil {
			h(nil)
			continue
		}
		cp := *session
		h(&cp)
	}
}
