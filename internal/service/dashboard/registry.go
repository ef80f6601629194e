package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/service/reporting"
	"github.com/mamadbah2/consignments/internal/service/session"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

// Workspace is the server-side state of one client: its session manager and
// the controller following it.
type Workspace struct {
	ID         string
	Sessions   *session.Manager
	Controller *Controller

	cancel   context.CancelFunc
	done     chan struct{}
	lastSeen time.Time
}

// Registry owns every open workspace.
type Registry struct {
	ctx      context.Context
	provider session.IdentityProvider
	store    RecordStore
	engine   *reporting.Engine
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry creates an empty registry. Workspaces live until closed, swept
// or until ctx is done.
func NewRegistry(ctx context.Context, provider session.IdentityProvider, store RecordStore, engine *reporting.Engine, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ctx:        ctx,
		provider:   provider,
		store:      store,
		engine:     engine,
		logger:     logger,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Open creates a signed-out workspace and starts its controller.
func (r *Registry) Open() *Workspace {
	id := uuid.NewString()
	logger := r.logger.With(zap.String("session_id", id))

	manager := session.NewManager(r.provider, logger)
	ctrl := NewController(r.store, manager, r.engine, logger)

	ctx, cancel := context.WithCancel(r.ctx)
	ws := &Workspace{
		ID:         id,
		Sessions:   manager,
		Controller: ctrl,
		cancel:     cancel,
		done:       make(chan struct{}),
		lastSeen:   r.now(),
	}

	go func() {
		defer close(ws.done)
		ctrl.Run(ctx)
	}()

	r.mu.Lock()
	r.workspaces[id] = ws
	r.mu.Unlock()

	logger.Debug("workspace opened")
	return ws
}

// Get returns the workspace for id and marks it as active.
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	ws.lastSeen = r.now()
	return ws, nil
}

// Close signs the workspace out and stops its controller.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	delete(r.workspaces, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	r.stop(ws)
	return nil
}

// SweepIdle closes every workspace unused for longer than maxIdle and
// returns how many were closed.
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Workspace
	for id, ws := range r.workspaces {
		if ws.lastSeen.Before(cutoff) {
			idle = append(idle, ws)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range idle {
		r.stop(ws)
	}
	if len(idle) > 0 {
		r.logger.Info("idle workspaces closed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Len reports the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// CloseAll stops every workspace. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Workspace, 0, len(r.workspaces))
	for id, ws := range r.workspaces {
		all = append(all, ws)
		delete(r.workspaces, id)
	}
	r.mu.Unlock()

	for _, ws := range all {
		r.stop(ws)
	}
}

func (r *Registry) stop(ws *Workspace) {
	ws.Sessions.SignOut()
	ws.cancel()
	<-ws.done
}
