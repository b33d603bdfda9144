package permit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ExpiryHandler removes the persisted side of a reservation whose deadline passed.
// It reports false when the permit was already gone or no longer pending.
type ExpiryHandler interface {
	Expire(ctx context.Context, folio Folio, owner OwnerID) (bool, error)
}

type storeExpiryHandler struct {
	store  Store
	logger OperationLogger
}

// NewStoreExpiryHandler deletes expired permits from store.
func NewStoreExpiryHandler(store Store, logger OperationLogger) ExpiryHandler {
	return storeExpiryHandler{store: store, logger: logger}
}

func (handler storeExpiryHandler) Expire(ctx context.Context, folio Folio, owner OwnerID) (bool, error) {
	removed, err := handler.store.DeletePermit(ctx, folio)
	if handler.logger != nil {
		status := operationStatusOK
		detail := ""
		switch {
		case err != nil:
			status = operationStatusError
		case !removed:
			detail = "already closed"
		}
		handler.logger.LogOperation(ctx, OperationLog{
			Operation: operationExpire,
			Owner:     owner,
			Folio:     folio,
			Status:    status,
			Detail:    detail,
			Error:     err,
		})
	}
	return removed, err
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for reminder and expiry failures.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(manager *Manager) {
		if logger != nil {
			manager.logger = logger
		}
	}
}

// Manager tracks PENDING reservations and runs one deadline task per folio.
type Manager struct {
	clock    clockwork.Clock
	plan     ReminderPlan
	expiry   ExpiryHandler
	notifier Notifier
	logger   *zap.Logger
	registry *registry
}

// NewManager wires a reservation manager on clock.
func NewManager(clock clockwork.Clock, plan ReminderPlan, expiry ExpiryHandler, notifier Notifier, options ...ManagerOption) (*Manager, error) {
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if expiry == nil {
		return nil, fmt.Errorf("%w: expiry handler is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier is nil", ErrInvalidServiceConfig)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	manager := &Manager{
		clock:    clock,
		plan:     plan,
		expiry:   expiry,
		notifier: notifier,
		logger:   zap.NewNop(),
		registry: newRegistry(),
	}
	for _, option := range options {
		if option != nil {
			option(manager)
		}
	}
	return manager, nil
}

// Start registers a new PENDING reservation and schedules its full reminder plan from now.
func (manager *Manager) Start(ctx context.Context, owner OwnerID, folio Folio, createdAt time.Time) error {
	return manager.schedule(ctx, owner, folio, createdAt, 0)
}

// Resume schedules a reservation created at createdAt, skipping checkpoints already in the past.
// A deadline already in the past expires immediately.
func (manager *Manager) Resume(ctx context.Context, owner OwnerID, folio Folio, createdAt time.Time) error {
	elapsed := manager.clock.Since(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return manager.schedule(ctx, owner, folio, createdAt, elapsed)
}

func (manager *Manager) schedule(ctx context.Context, owner OwnerID, folio Folio, createdAt time.Time, elapsed time.Duration) error {
	if owner.IsZero() {
		return ErrInvalidOwnerID
	}
	if folio.IsZero() {
		return ErrInvalidFolio
	}
	taskContext, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &reservationTask{
		folio:     folio,
		owner:     owner,
		createdAt: createdAt,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if !manager.registry.add(task) {
		cancel()
		return fmt.Errorf("%w: %s", ErrReservationExists, folio)
	}
	go manager.run(taskContext, task, manager.plan.remainingCheckpoints(elapsed), elapsed)
	return nil
}

// Cancel stops the reservation for folio and waits for its task to exit.
// It reports false when folio has no active reservation.
func (manager *Manager) Cancel(folio Folio) bool {
	task, ok := manager.registry.release(folio)
	if !ok {
		return false
	}
	task.cancel()
	<-task.done
	return true
}

// Owner returns who holds the active reservation for folio.
func (manager *Manager) Owner(folio Folio) (OwnerID, bool) {
	return manager.registry.owner(folio)
}

// Pending lists the owner's active folios in ascending order.
func (manager *Manager) Pending(owner OwnerID) []Folio {
	folios := manager.registry.pending(owner)
	slices.SortFunc(folios, func(left Folio, right Folio) int {
		if len(left.value) != len(right.value) {
			return len(left.value) - len(right.value)
		}
		return strings.Compare(left.value, right.value)
	})
	return folios
}

// Active returns the number of running reservation tasks.
func (manager *Manager) Active() int {
	return manager.registry.count()
}

// Deadline returns when the reservation for folio expires.
func (manager *Manager) Deadline(folio Folio) (time.Time, bool) {
	createdAt, ok := manager.registry.createdAt(folio)
	if !ok {
		return time.Time{}, false
	}
	return createdAt.Add(manager.plan.Deadline), true
}

// Now returns the manager clock's current time.
func (manager *Manager) Now() time.Time {
	return manager.clock.Now()
}

// Plan returns the reminder plan in use.
func (manager *Manager) Plan() ReminderPlan {
	return manager.plan
}

// Resolve picks the folio a payment proof refers to.
// A non-empty hint must name one of the owner's pending folios. Without a hint, a single
// pending folio is implied and several are ambiguous.
func (manager *Manager) Resolve(owner OwnerID, hint string) (Folio, error) {
	if strings.TrimSpace(hint) != "" {
		folio, err := NewFolio(hint)
		if err != nil {
			return Folio{}, err
		}
		holder, ok := manager.registry.owner(folio)
		if !ok || holder != owner {
			return Folio{}, fmt.Errorf("%w: %s is not pending for this owner", ErrUnknownPermit, folio)
		}
		return folio, nil
	}
	pending := manager.Pending(owner)
	switch len(pending) {
	case 0:
		return Folio{}, ErrNoPendingReservation
	case 1:
		return pending[0], nil
	default:
		return Folio{}, fmt.Errorf("%w: %d pending folios", ErrAmbiguousReservation, len(pending))
	}
}

// Shutdown stops every task without running expiry side effects.
func (manager *Manager) Shutdown() {
	tasks := manager.registry.drain()
	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

func (manager *Manager) run(ctx context.Context, task *reservationTask, checkpoints []Checkpoint, elapsed time.Duration) {
	defer close(task.done)
	position := elapsed
	for _, checkpoint := range checkpoints {
		if wait := checkpoint.Offset - position; wait > 0 {
			if !manager.sleep(ctx, wait) {
				return
			}
		}
		position = checkpoint.Offset
		if ctx.Err() != nil {
			return
		}
		remaining := manager.plan.Deadline - checkpoint.Offset
		switch checkpoint.Kind {
		case CheckpointReminder:
			if !manager.registry.isCurrent(task) {
				return
			}
			manager.notify(ctx, task, reminderText(task.folio, remaining))
		case CheckpointFinalNotice:
			if !manager.registry.isCurrent(task) {
				return
			}
			manager.notify(ctx, task, finalNoticeText(task.folio, remaining))
		case CheckpointExpiry:
			if !manager.registry.releaseTask(task) {
				return
			}
			manager.expire(ctx, task)
			return
		}
	}
}

func (manager *Manager) sleep(ctx context.Context, wait time.Duration) bool {
	timer := manager.clock.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.Chan():
		return true
	}
}

func (manager *Manager) expire(ctx context.Context, task *reservationTask) {
	removed, err := manager.expiry.Expire(ctx, task.folio, task.owner)
	if err != nil {
		manager.logger.Error("expire reservation",
			zap.String("folio", task.folio.String()),
			zap.Error(err),
		)
	} else if !removed {
		return
	}
	manager.notify(ctx, task, expiredText(task.folio))
}

func (manager *Manager) notify(ctx context.Context, task *reservationTask, text string) {
	if err := manager.notifier.Notify(ctx, task.owner, text); err != nil {
		manager.logger.Warn("notify owner",
			zap.String("folio", task.folio.String()),
			zap.Int64("owner", task.owner.Int64()),
			zap.Error(err),
		)
	}
}
