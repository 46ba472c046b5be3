package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/session-client/pkg/session"
)

// Notifier records every event it receives.
type Notifier struct {
	mu     sync.Mutex
	events []session.Event
}

func (n *Notifier) Notify(_ context.Context, event session.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
}

func (n *Notifier) Events() []session.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]session.Event(nil), n.events...)
}
