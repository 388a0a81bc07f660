package governor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
)

// #region registry
// Registry owns the live sessions of a process. FIN sessions are archived
// and dropped by Reap once their retention has elapsed.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	resolver  auditor.Resolver
	auditor   auditor.Auditor
	cfg       Config
	opts      []Option
	retention time.Duration
	onArchive func(*Session)
}

// NewRegistry creates a registry whose sessions share resolver, auditor,
// config and options.
func NewRegistry(resolver auditor.Resolver, aud auditor.Auditor, cfg Config, retention time.Duration, opts ...Option) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		resolver:  resolver,
		auditor:   aud,
		cfg:       cfg,
		opts:      opts,
		retention: retention,
	}
}

// OnArchive sets the callback run by Reap for each dropped session.
func (r *Registry) OnArchive(fn func(*Session)) {
	r.mu.Lock()
	r.onArchive = fn
	r.mu.Unlock()
}

// Open creates a session and proposes syn. The session is registered only
// when the proposal succeeds.
func (r *Registry) Open(ctx context.Context, syn SYN, opts ...Option) (*Session, error) {
	all := append(append([]Option(nil), r.opts...), opts...)
	s, err := NewSession(r.resolver, r.auditor, r.cfg, all...)
	if err != nil {
		return nil, err
	}
	if err := s.Propose(ctx, syn); err != nil {
		return nil, err
	}
	if err := r.Track(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Track registers a session created outside the registry.
func (r *Registry) Track(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return fmt.Errorf("track: duplicate session id %s", s.ID())
	}
	r.sessions[s.ID()] = s
	return nil
}

// Get returns a registered session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reap drops FIN sessions closed at least retention before now and returns
// how many were dropped. The archive callback runs outside the lock.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	var reaped []*Session
	for id, s := range r.sessions {
		snap := s.Snapshot()
		if snap.State != StateFin || now.Sub(snap.ClosedAt) < r.retention {
			continue
		}
		delete(r.sessions, id)
		reaped = append(reaped, s)
	}
	archive := r.onArchive
	r.mu.Unlock()

	if archive != nil {
		for _, s := range reaped {
			archive(s)
		}
	}
	return len(reaped)
}

// #endregion registry
