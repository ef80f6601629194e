package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
	"github.com/mamadbah2/consignments/internal/service/reporting"
)

// Messages shown to the user when a backend call fails.
const (
	MessageLoadFailed   = "Failed to load consignment data."
	MessageSaveFailed   = "Could not save the consignment."
	MessageDeleteFailed = "Could not delete the consignment."
)

var (
	// ErrSignedOut indicates an action that needs a signed-in identity.
	ErrSignedOut = errors.New("not signed in")
	// ErrUnknownRecord indicates an id that is not in the loaded record set.
	ErrUnknownRecord = errors.New("consignment not loaded")
	// ErrNoPendingDelete indicates a confirmation without a prior request.
	ErrNoPendingDelete = errors.New("no delete awaiting confirmation")
	// ErrUnknownTab indicates a tab name outside the known set.
	ErrUnknownTab = errors.New("unknown tab")
	// ErrNotRunning indicates Run has not been started yet.
	ErrNotRunning = errors.New("controller not running")
)

// RecordStore is the record store client the controller drives.
type RecordStore interface {
	Create(ctx context.Context, ownerID string, record models.Consignment) (string, error)
	Update(ctx context.Context, ownerID, id string, record models.Consignment) error
	Delete(ctx context.Context, ownerID, id string) error
	Subscribe(ctx context.Context, ownerID string) (<-chan models.Snapshot, error)
}

// SessionSource emits session transitions, starting with the current state.
type SessionSource interface {
	Subscribe(ctx context.Context) <-chan models.SessionEvent
}

// Controller holds the state of one dashboard client: who is signed in, the
// live record set, the selected tab and month, the entry form and the delete
// confirmation. Session events and record snapshots arrive asynchronously;
// the record set is only ever replaced wholesale.
type Controller struct {
	store    RecordStore
	sessions SessionSource
	engine   *reporting.Engine
	logger   *zap.Logger
	now      func() time.Time

	mu            sync.RWMutex
	runCtx        context.Context
	sessionKnown  bool
	identity      *models.Identity
	loadingData   bool
	records       []models.Consignment
	loadErr       string
	actionErr     string
	tab           models.Tab
	month         string
	modal         *models.Modal
	pendingDelete string
	version       uint64

	cancelSub  context.CancelFunc
	generation uint64
	// epoch changes on every session transition; mutation results from an
	// earlier epoch are not shown.
	epoch uint64

	watchers    map[int]chan struct{}
	nextWatcher int
}

// NewController wires a controller. Call Run to start following the session.
func NewController(store RecordStore, sessions SessionSource, engine *reporting.Engine, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = reporting.NewEngine(time.UTC)
	}
	c := &Controller{
		store:    store,
		sessions: sessions,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
		tab:      models.TabDashboard,
		watchers: make(map[int]chan struct{}),
	}
	c.month = engine.MonthKey(c.now())
	return c
}

// Run follows session transitions until ctx is done. A sign-in opens a record
// subscription for that identity; any transition first cancels the previous
// subscription so no snapshot of a former owner is applied.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	events := c.sessions.Subscribe(ctx)
	for event := range events {
		c.handleSession(ctx, event)
	}

	c.mu.Lock()
	c.stopSubscriptionLocked()
	c.mu.Unlock()
}

func (c *Controller) handleSession(ctx context.Context, event models.SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSubscriptionLocked()
	c.epoch++
	c.sessionKnown = true
	c.records = nil
	c.modal = nil
	c.pendingDelete = ""
	c.loadErr = ""
	c.actionErr = ""
	c.loadingData = false

	if !event.SignedIn() {
		c.identity = nil
		c.logger.Debug("session signed out")
		c.bumpLocked()
		return
	}

	identity := *event.Identity
	c.identity = &identity
	c.logger.Debug("session signed in", zap.String("uid", identity.UID))
	c.startSubscriptionLocked(ctx)
	c.bumpLocked()
}

func (c *Controller) startSubscriptionLocked(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	c.cancelSub = cancel
	c.generation++
	c.loadingData = true
	c.loadErr = ""

	go c.follow(subCtx, c.generation, c.identity.UID)
}

func (c *Controller) stopSubscriptionLocked() {
	if c.cancelSub != nil {
		c.cancelSub()
		c.cancelSub = nil
	}
	// Anything still in flight from the old subscription is now stale.
	c.generation++
}

func (c *Controller) follow(ctx context.Context, generation uint64, ownerID string) {
	snapshots, err := c.store.Subscribe(ctx, ownerID)
	if err != nil {
		c.applyFailure(generation, err)
		return
	}

	for snapshot := range snapshots {
		if snapshot.Err != nil {
			c.applyFailure(generation, snapshot.Err)
			return
		}
		c.applySnapshot(generation, snapshot.Records)
	}
}

func (c *Controller) applySnapshot(generation uint64, records []models.Consignment) {
	sorted := c.engine.Sort(records)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.records = sorted
	c.loadingData = false
	c.loadErr = ""
	c.bumpLocked()
}

func (c *Controller) applyFailure(generation uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.logger.Error("record subscription failed", zap.Error(err))
	c.loadErr = MessageLoadFailed
	c.loadingData = false
	c.bumpLocked()
}

// Retry re-opens the record subscription after it failed.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return ErrSignedOut
	}
	if c.runCtx == nil {
		return ErrNotRunning
	}
	c.stopSubscriptionLocked()
	c.startSubscriptionLocked(c.runCtx)
	c.bumpLocked()
	return nil
}

// SelectTab switches the rendered view.
func (c *Controller) SelectTab(tab models.Tab) error {
	if _, ok := models.ParseTab(string(tab)); !ok {
		return fmt.Errorf("%w %q", ErrUnknownTab, tab)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tab = tab
	c.bumpLocked()
	return nil
}

// SelectMonth sets the YYYY-MM key used by the dashboard and accounts tabs.
func (c *Controller) SelectMonth(month string) error {
	month, err := reporting.ParseMonthKey(month)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.month = month
	c.bumpLocked()
	return nil
}

// OpenNew opens the entry form with default values.
func (c *Controller) OpenNew() (models.Modal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return models.Modal{}, ErrSignedOut
	}
	c.modal = &models.Modal{Form: models.NewConsignmentDraft(c.now())}
	c.bumpLocked()
	return *c.modal, nil
}

// OpenEdit opens the entry form prefilled with a loaded record.
func (c *Controller) OpenEdit(id string) (models.Modal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return models.Modal{}, ErrSignedOut
	}
	record, ok := c.findLocked(id)
	if !ok {
		return models.Modal{}, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	c.modal = &models.Modal{Editing: true, Form: record}
	c.bumpLocked()
	return *c.modal, nil
}

// CloseModal discards the entry form.
func (c *Controller) CloseModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modal = nil
	c.bumpLocked()
}

// DismissError clears the last save or delete failure.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actionErr = ""
	c.bumpLocked()
}

// Save creates the record when it has no id and overwrites every field of the
// stored record otherwise. It returns the record id. The entry form is closed
// either way; a failure is reported and nothing is retried.
func (c *Controller) Save(ctx context.Context, record models.Consignment) (string, error) {
	c.mu.Lock()
	identity := c.identity
	epoch := c.epoch
	c.modal = nil
	c.bumpLocked()
	c.mu.Unlock()

	if identity == nil {
		return "", ErrSignedOut
	}

	record = record.Normalize()
	id := record.ID
	var err error
	if id == "" {
		id, err = c.store.Create(ctx, identity.UID, record)
	} else {
		err = c.store.Update(ctx, identity.UID, id, record)
	}
	if err != nil {
		c.logger.Error("save consignment failed", zap.String("id", record.ID), zap.Error(err))
		c.setActionError(epoch, MessageSaveFailed)
		return "", fmt.Errorf("save consignment: %w", err)
	}

	c.setActionError(epoch, "")
	return id, nil
}

// RequestDelete marks a loaded record for deletion. Nothing is deleted until
// ConfirmDelete.
func (c *Controller) RequestDelete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return ErrSignedOut
	}
	if _, ok := c.findLocked(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	c.pendingDelete = id
	c.bumpLocked()
	return nil
}

// CancelDelete drops a pending delete request.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelete = ""
	c.bumpLocked()
}

// ConfirmDelete issues the delete that RequestDelete staged.
func (c *Controller) ConfirmDelete(ctx context.Context) (string, error) {
	c.mu.Lock()
	identity := c.identity
	epoch := c.epoch
	id := c.pendingDelete
	c.pendingDelete = ""
	c.bumpLocked()
	c.mu.Unlock()

	if identity == nil {
		return "", ErrSignedOut
	}
	if id == "" {
		return "", ErrNoPendingDelete
	}

	if err := c.store.Delete(ctx, identity.UID, id); err != nil {
		c.logger.Error("delete consignment failed", zap.String("id", id), zap.Error(err))
		c.setActionError(epoch, MessageDeleteFailed)
		return "", fmt.Errorf("delete consignment: %w", err)
	}

	c.setActionError(epoch, "")
	return id, nil
}

// Records returns the loaded record set in display order.
func (c *Controller) Records() ([]models.Consignment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.identity == nil {
		return nil, ErrSignedOut
	}
	out := make([]models.Consignment, len(c.records))
	copy(out, c.records)
	return out, nil
}

// Dashboard derives the dashboard tab for month (the selected month if empty).
func (c *Controller) Dashboard(month string) (models.DashboardView, error) {
	records, month, err := c.derive(month)
	if err != nil {
		return models.DashboardView{}, err
	}
	return c.engine.Dashboard(records, month), nil
}

// Dues derives the dues tab over every loaded record, or only the records of
// month when one is given.
func (c *Controller) Dues(month string) (models.DueSummary, error) {
	records, err := c.Records()
	if err != nil {
		return models.DueSummary{}, err
	}
	if month != "" {
		if _, err := reporting.ParseMonthKey(month); err != nil {
			return models.DueSummary{}, err
		}
		records = c.engine.FilterByMonth(records, month)
	}
	return c.engine.Dues(records), nil
}

// Accounts derives the accounts tab for month (the selected month if empty).
func (c *Controller) Accounts(month string) (models.AccountingSummary, error) {
	records, month, err := c.derive(month)
	if err != nil {
		return models.AccountingSummary{}, err
	}
	return c.engine.Accounting(records, month), nil
}

func (c *Controller) derive(month string) ([]models.Consignment, string, error) {
	if month != "" {
		if _, err := reporting.ParseMonthKey(month); err != nil {
			return nil, "", err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil, "", ErrSignedOut
	}
	if month == "" {
		month = c.month
	}
	return c.records, month, nil
}

// View renders the current state and the active tab's data.
func (c *Controller) View() models.View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view := models.View{
		Version:       c.version,
		Tab:           c.tab,
		Month:         c.month,
		PendingDelete: c.pendingDelete,
	}
	if c.identity != nil {
		identity := *c.identity
		view.Identity = &identity
	}
	if c.modal != nil {
		modal := *c.modal
		view.Modal = &modal
	}

	switch {
	case !c.sessionKnown:
		view.Status = models.ViewLoadingUser
		return view
	case c.identity == nil:
		view.Status = models.ViewSignedOut
		return view
	case c.loadingData:
		view.Status = models.ViewLoading
		return view
	case c.loadErr != "":
		view.Status = models.ViewError
		view.Error = c.loadErr
		return view
	}

	view.Status = models.ViewReady
	view.Error = c.actionErr

	switch c.tab {
	case models.TabDues:
		dues := c.engine.Dues(c.records)
		view.Dues = &dues
	case models.TabAccounts:
		accounts := c.engine.Accounting(c.records, c.month)
		view.Accounts = &accounts
	default:
		dashboard := c.engine.Dashboard(c.records, c.month)
		view.Dashboard = &dashboard
	}
	return view
}

// Updates signals after every state change. Signals coalesce: a slow reader
// sees at most one pending signal. The channel closes when ctx is done.
func (c *Controller) Updates(ctx context.Context) <-chan struct{} {
	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	ch := make(chan struct{}, 1)
	c.watchers[id] = ch
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
		close(ch)
	}()
	return ch
}

func (c *Controller) setActionError(epoch uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.actionErr = message
	c.bumpLocked()
}

func (c *Controller) findLocked(id string) (models.Consignment, bool) {
	for _, record := range c.records {
		if record.ID == id {
			return record, true
		}
	}
	return models.Consignment{}, false
}

func (c *Controller) bumpLocked() {
	c.version++
	for _, ch := range c.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
