package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
)

// Session owns the presence record of the signed-in user. While started it
// refreshes lastActive every heartbeat; Stop marks the user offline.
//
// A crashed session cannot write isOnline=false, so readers rely on the
// liveness window to age the record out.
type Session struct {
	store  docstore.Store
	uid    domain.UserIdentity
	opts   options
	logger *slog.Logger

	mu          sync.Mutex
	displayName string
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSession creates a session for uid. Nothing is written until Start.
func NewSession(store docstore.Store, uid domain.UserIdentity, displayName string, opts ...Option) *Session {
	o := newOptions(opts)
	return &Session{
		store:       store,
		uid:         uid,
		displayName: strings.TrimSpace(displayName),
		opts:        o,
		logger:      o.logger.With("uid", uid),
	}
}

// UID returns the session user.
func (s *Session) UID() domain.UserIdentity {
	return s.uid
}

// Start marks the user online and begins the heartbeat. Calling Start on a
// running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if strings.TrimSpace(string(s.uid)) == "" {
		return fmt.Errorf("%w: session uid is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	doc, err := docstore.Encode(domain.PresenceRecord{
		UID:         s.uid,
		DisplayName: s.displayName,
		IsOnline:    true,
		LastActive:  s.opts.clock.Now(),
	})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, domain.CollectionPresence, string(s.uid), doc, true); err != nil {
		return domain.StoreError("presence start", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)

	s.logger.Info("Presence session started", "event", "presence_session_started", "heartbeat", s.opts.heartbeat)
	return nil
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := s.opts.clock.NewTicker(s.opts.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// A failed beat is retried by the next tick.
			if err := s.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Presence heartbeat failed", "event", "presence_heartbeat_failure", "error", err)
			}
		}
	}
}

// Heartbeat refreshes lastActive and reasserts the online flag.
func (s *Session) Heartbeat(ctx context.Context) error {
	err := s.store.Set(ctx, domain.CollectionPresence, string(s.uid), docstore.Document{
		"isOnline":   true,
		"lastActive": docstore.FormatTime(s.opts.clock.Now()),
	}, true)
	s.opts.metrics.RecordHeartbeat(err)
	return domain.StoreError("presence heartbeat", err)
}

// SetDisplayName updates the name other users see.
func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: display name is required", domain.ErrValidation)
	}
	if err := s.store.Set(ctx, domain.CollectionPresence, string(s.uid), docstore.Document{
		"uid":         string(s.uid),
		"displayName": name,
	}, true); err != nil {
		return domain.StoreError("presence display name", err)
	}

	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
	return nil
}

// Stop ends the heartbeat and marks the user offline. It is safe to call more
// than once.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	err := s.store.Set(ctx, domain.CollectionPresence, string(s.uid), docstore.Document{
		"isOnline":   false,
		"lastActive": docstore.FormatTime(s.opts.clock.Now()),
	}, true)
	if err != nil {
		return domain.StoreError("presence stop", err)
	}
	s.logger.Info("Presence session stopped", "event", "presence_session_stopped")
	return nil
}
