package session

import (
	"context"
	"sync"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"go.uber.org/zap"
)

type SessionObserver interface {
	AddActiveSessions(delta int)
}

// Manager starts a root watcher for each signed-in owner and stops it on
// sign-out or owner switch.
type Manager struct {
	identity domain.IdentityProvider
	root     *RootWatcher
	log      *zap.Logger
	obs      SessionObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// active is only touched by the run goroutine.
	active string
}

func NewManager(identity domain.IdentityProvider, root *RootWatcher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		identity: identity,
		root:     root,
		log:      log.Named("order.session.manager"),
	}
}

func (m *Manager) WithObserver(obs SessionObserver) *Manager {
	m.obs = obs
	return m
}

func (m *Manager) Root() *RootWatcher { return m.root }

// Start follows the identity provider on a background goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop ends the active session, if any, and waits for the manager to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.switchTo(ctx, "")

	owners := m.identity.Owners(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case owner, ok := <-owners:
			if !ok {
				return
			}
			m.switchTo(ctx, owner)
		}
	}
}

func (m *Manager) switchTo(ctx context.Context, owner string) {
	current := m.active
	if current == owner {
		return
	}
	if current != "" {
		m.root.Stop()
		m.active = ""
		m.log.Info("session ended", zap.String("owner_id", current))
		if m.obs != nil {
			m.obs.AddActiveSessions(-1)
		}
	}
	if owner == "" || ctx.Err() != nil {
		return
	}
	if err := m.root.Start(ctx, owner); err != nil {
		m.log.Error("session start failed", zap.String("owner_id", owner), zap.Error(err))
		return
	}
	m.active = owner
	m.log.Info("session started", zap.String("owner_id", owner))
	if m.obs != nil {
		m.obs.AddActiveSessions(1)
	}
}
