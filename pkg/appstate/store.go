// Package appstate keeps the login state of the application. It is the sink
// the session manager notifies after a sign-in attempt.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

// StateKey is the cache entry holding the persisted state. It does not
// contain the provider key pattern, so clearing the provider cache keeps it.
const StateKey = "session-client:state"

// State is the login state as last reported by the session manager.
type State struct {
	LoggedIn  bool          `json:"loggedIn" yaml:"loggedIn"`
	LastEvent session.Event `json:"lastEvent,omitempty" yaml:"lastEvent,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
}

type Store struct {
	cache session.Cache
	now   func() time.Time

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

type Option func(*Store)

// WithCache persists every state change, so that other processes sharing
// the cache see it.
func WithCache(cache session.Cache) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the persisted state. A store without a cache, or a cache
// without the entry, starts logged out.
func (s *Store) Load(ctx context.Context) (State, error) {
	if s.cache == nil {
		return s.State(), nil
	}

	data, err := s.cache.Get(ctx, StateKey)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return s.State(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading application state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decoding application state: %w", err)
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	return state, nil
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Subscribe registers fn to be called with every new state.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// Notify implements session.Notifier. Persistence failures are logged; the
// in-memory state is updated regardless.
func (s *Store) Notify(ctx context.Context, event session.Event) {
	state := State{
		LoggedIn:  event == session.EventLoginSuccess,
		LastEvent: event,
		UpdatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.state = state
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	slogctx.Info(ctx, "Application state changed", "event", event, "logged_in", state.LoggedIn)

	if err := s.persist(ctx, state); err != nil {
		slogctx.Warn(ctx, "Failed to persist application state", "error", err)
	}

	for _, fn := range listeners {
		fn(state)
	}
}

// Reset marks the application logged out, as after a sign out.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.state = State{UpdatedAt: s.now().UTC()}
	state := s.state
	s.mu.Unlock()

	return s.persist(ctx, state)
}

func (s *Store) persist(ctx context.Context, state State) error {
	if s.cache == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding application state: %w", err)
	}

	if err := s.cache.Set(ctx, StateKey, data); err != nil {
		return fmt.Errorf("writing application state: %w", err)
	}

	return nil
}
