package session

import (
	"context"
	"time"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

// expireLocked locks an unlocked session whose idle timeout elapsed.
// Requires mu.
func (s *Session) expireLocked() {
	if s.state != Unlocked || s.idleTimeout <= 0 {
		return
	}
	idle := s.clock.Now().Sub(s.lastActive)
	if idle < s.idleTimeout {
		return
	}
	klog.Session.Info().Dur("idle", idle).Msg("Idle timeout reached, locking")
	s.setStateLocked(Locked, "auto-lock")
	s.emit(EventAutoLocked, Locked, "idle timeout")
}

// nextCheck returns how long until the idle timeout can next elapse.
func (s *Session) nextCheck() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return s.idleTimeout
	}
	remaining := s.idleTimeout - s.clock.Now().Sub(s.lastActive)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// Run locks the session when it sits idle for the configured timeout. It
// blocks until ctx is done. Expiry is also checked on every call, so Run
// only makes the lock happen without waiting for the next call.
func (s *Session) Run(ctx context.Context) error {
	if s.idleTimeout <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.TickAfter(s.nextCheck()):
			s.mu.Lock()
			s.expireLocked()
			s.mu.Unlock()
		}
	}
}
