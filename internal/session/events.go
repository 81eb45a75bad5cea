package session

import (
	"time"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

// EventKind identifies a session event.
type EventKind string

const (
	EventStateChanged   EventKind = "state_changed"
	EventTrustViolation EventKind = "trust_violation"
	EventAuthFailed     EventKind = "auth_failed"
	EventAutoLocked     EventKind = "auto_locked"
)

// eventBuffer is the per-subscriber queue length. Events for a full queue
// are dropped.
const eventBuffer = 16

// Event is delivered to subscribers. Reason never contains secret data.
type Event struct {
	Kind   EventKind `json:"kind"`
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Subscribe returns a channel of session events and a function that
// cancels the subscription. The channel is closed by cancel or Teardown.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) emit(kind EventKind, state State, reason string) {
	ev := Event{Kind: kind, State: state, Reason: reason, Time: s.clock.Now()}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			klog.Session.Debug().Str("kind", string(kind)).Msg("Subscriber queue full, event dropped")
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}
