package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

// ErrMissingCredentials is returned before the provider is contacted.
var ErrMissingCredentials = errors.New("email and password are required")

// IdentityProvider is the managed authentication service.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (models.Identity, error)
	SignIn(ctx context.Context, email, password string) (models.Identity, error)
}

// Manager tracks the identity of one client session and notifies
// subscribers of every transition between signed out and signed in.
type Manager struct {
	provider IdentityProvider
	logger   *zap.Logger

	mu          sync.Mutex
	current     *models.Identity
	subscribers map[int]*subscriber
	nextID      int
}

type subscriber struct {
	ch   chan models.SessionEvent
	done <-chan struct{}
}

// NewManager creates a signed-out session manager.
func NewManager(provider IdentityProvider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider:    provider,
		logger:      logger,
		subscribers: make(map[int]*subscriber),
	}
}

// Subscribe returns a stream of session events. The first event is the state
// at subscription time; each later event is one transition. The channel is
// closed once ctx is done. Subscribing again yields a fresh stream.
func (m *Manager) Subscribe(ctx context.Context) <-chan models.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	sub := &subscriber{ch: make(chan models.SessionEvent, 4), done: ctx.Done()}
	m.subscribers[id] = sub
	// Buffered, so the initial event never blocks.
	sub.ch <- m.eventLocked()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
		close(sub.ch)
	}()

	return sub.ch
}

// SignIn authenticates against the provider. On failure the session does not
// change and the provider error is returned for display.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, email, password, m.provider.SignIn)
}

// SignUp creates an account and signs it in.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, email, password, m.provider.SignUp)
}

func (m *Manager) authenticate(ctx context.Context, email, password string, call func(context.Context, string, string) (models.Identity, error)) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	identity, err := call(ctx, email, password)
	if err != nil {
		m.logger.Info("authentication failed", zap.String("email", email), zap.Error(err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.UID == identity.UID {
		m.current = &identity
		return nil
	}

	m.current = &identity
	m.logger.Info("signed in", zap.String("uid", identity.UID))
	m.broadcastLocked()
	return nil
}

// SignOut discards the current identity. Password sessions hold no server-side
// state at the provider, so nothing is sent over the wire.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	m.logger.Info("signed out", zap.String("uid", m.current.UID))
	m.current = nil
	m.broadcastLocked()
}

// Current returns the signed-in identity, if any.
func (m *Manager) Current() (models.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return models.Identity{}, false
	}
	return *m.current, true
}

func (m *Manager) eventLocked() models.SessionEvent {
	if m.current == nil {
		return models.SessionEvent{State: models.SessionSignedOut}
	}
	identity := *m.current
	return models.SessionEvent{State: models.SessionSignedIn, Identity: &identity}
}

func (m *Manager) broadcastLocked() {
	event := m.eventLocked()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- event:
		case <-sub.done:
		}
	}
}
