package permit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// IssueResult is a persisted permit with its rendered documents.
type IssueResult struct {
	Permit        Permit
	Documents     Documents
	PlateDegraded bool
}

// PaymentOutcomeKind classifies how a payment proof was handled.
type PaymentOutcomeKind string

const (
	PaymentConfirmed          PaymentOutcomeKind = "confirmed"
	PaymentNeedsClarification PaymentOutcomeKind = "needs_clarification"
	PaymentNoReservation      PaymentOutcomeKind = "no_reservation"
)

// PaymentOutcome reports the folio a proof settled, or the folios the owner must choose from.
type PaymentOutcome struct {
	Kind    PaymentOutcomeKind
	Folio   Folio
	Pending []Folio
}

// Service finalizes applications and drives the reservation lifecycle.
type Service struct {
	store           Store
	folios          *FolioAllocator
	plates          *PlateAllocator
	renderer        DocumentRenderer
	manager         *Manager
	notifier        Notifier
	archiver        DocumentArchiver
	operationLogger OperationLogger
	validityDays    int
}

// NewService wires a Service.
func NewService(store Store, folios *FolioAllocator, plates *PlateAllocator, renderer DocumentRenderer, manager *Manager, notifier Notifier, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if folios == nil || plates == nil {
		return nil, fmt.Errorf("%w: allocator dependency is nil", ErrInvalidServiceConfig)
	}
	if renderer == nil {
		return nil, fmt.Errorf("%w: renderer dependency is nil", ErrInvalidServiceConfig)
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: reservation manager is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:        store,
		folios:       folios,
		plates:       plates,
		renderer:     renderer,
		manager:      manager,
		notifier:     notifier,
		validityDays: DefaultValidityDays,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// FolioPrefix returns the prefix every issued folio carries.
func (service *Service) FolioPrefix() string {
	return service.folios.Prefix()
}

// Issue turns a completed application into a persisted, reserved permit.
// Nothing is persisted or scheduled when rendering fails, and nothing is scheduled when persistence fails.
func (service *Service) Issue(ctx context.Context, owner OwnerID, username string, application Application) (IssueResult, error) {
	if owner.IsZero() {
		return IssueResult{}, ErrInvalidOwnerID
	}
	allocation, err := service.folios.Allocate(ctx)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationIssue, Owner: owner, Error: err})
		return IssueResult{}, err
	}
	plateResult := service.plates.Allocate(ctx)
	if plateResult.Degraded {
		service.logOperation(ctx, OperationLog{
			Operation: operationIssue,
			Owner:     owner,
			Folio:     allocation.Folio,
			Status:    operationStatusDegraded,
			Detail:    "random plate " + plateResult.Plate.String(),
			Error:     plateResult.Cause,
		})
	}

	issuedAt := service.manager.Now()
	permit := Permit{
		Folio:         allocation.Folio,
		Sequence:      allocation.Sequence,
		Plate:         plateResult.Plate,
		Owner:         owner,
		OwnerUsername: username,
		Application:   application,
		IssuedAt:      issuedAt,
		ValidUntil:    issuedAt.AddDate(0, 0, service.validityDays),
		DeadlineAt:    issuedAt.Add(service.manager.Plan().Deadline),
		Status:        StatusPending,
	}

	documents, err := service.renderer.Render(ctx, permit)
	if err != nil {
		wrapped := WrapError(errorOperationService, errorSubjectDocuments, errorCodeRender, fmt.Errorf("%w: %v", ErrDocumentRender, err))
		service.logOperation(ctx, OperationLog{Operation: operationIssue, Owner: owner, Folio: permit.Folio, Error: wrapped})
		return IssueResult{}, wrapped
	}
	if err := service.store.InsertPermit(ctx, permit); err != nil {
		wrapped := WrapError(errorOperationService, errorSubjectPermit, errorCodePersist, err)
		service.logOperation(ctx, OperationLog{Operation: operationIssue, Owner: owner, Folio: permit.Folio, Error: wrapped})
		return IssueResult{}, wrapped
	}
	if err := service.manager.Start(ctx, owner, permit.Folio, issuedAt); err != nil {
		wrapped := WrapError(errorOperationService, errorSubjectReservation, errorCodeSchedule, err)
		if _, deleteErr := service.store.DeletePermit(ctx, permit.Folio); deleteErr != nil {
			wrapped = errors.Join(wrapped, deleteErr)
		}
		service.logOperation(ctx, OperationLog{Operation: operationIssue, Owner: owner, Folio: permit.Folio, Error: wrapped})
		return IssueResult{}, wrapped
	}
	if service.archiver != nil {
		if err := service.archiver.Archive(ctx, permit.Folio, documents); err != nil {
			service.logOperation(ctx, OperationLog{
				Operation: operationIssue,
				Owner:     owner,
				Folio:     permit.Folio,
				Status:    operationStatusDegraded,
				Detail:    "archive failed",
				Error:     err,
			})
		}
	}
	service.logOperation(ctx, OperationLog{Operation: operationIssue, Owner: owner, Folio: permit.Folio})
	return IssueResult{Permit: permit, Documents: documents, PlateDegraded: plateResult.Degraded}, nil
}

// ConfirmPayment settles the reservation a proof refers to and acknowledges it to the owner.
// Persistence failures are logged; the reservation stays cancelled.
func (service *Service) ConfirmPayment(ctx context.Context, proof PaymentProof) (PaymentOutcome, error) {
	folio, err := service.manager.Resolve(proof.Owner, proof.Hint)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoPendingReservation):
		return PaymentOutcome{Kind: PaymentNoReservation}, nil
	case errors.Is(err, ErrAmbiguousReservation), errors.Is(err, ErrUnknownPermit), errors.Is(err, ErrInvalidFolio):
		pending := service.manager.Pending(proof.Owner)
		if len(pending) == 0 {
			return PaymentOutcome{Kind: PaymentNoReservation}, nil
		}
		return PaymentOutcome{Kind: PaymentNeedsClarification, Pending: pending}, nil
	default:
		return PaymentOutcome{}, err
	}

	if !service.manager.Cancel(folio) {
		return PaymentOutcome{Kind: PaymentNoReservation}, nil
	}
	paidAt := proof.ReceivedAt
	if paidAt.IsZero() {
		paidAt = service.manager.Now()
	}
	var persistErr error
	if err := service.store.UpdatePermitStatus(ctx, folio, StatusPending, StatusPaid, paidAt); err != nil {
		persistErr = err
	}
	if err := service.store.RecordPaymentProof(ctx, folio, proof); err != nil {
		persistErr = errors.Join(persistErr, err)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationPayment,
		Owner:     proof.Owner,
		Folio:     folio,
		Error:     persistErr,
	})
	service.notifyOwner(ctx, proof.Owner, folio, paymentReceivedText(folio))
	return PaymentOutcome{Kind: PaymentConfirmed, Folio: folio}, nil
}

// AdminClear cancels an active reservation on an administrator's word and notifies its owner.
func (service *Service) AdminClear(ctx context.Context, folio Folio) (OwnerID, error) {
	owner, ok := service.manager.Owner(folio)
	if !ok || !service.manager.Cancel(folio) {
		return OwnerID{}, fmt.Errorf("%w: %s", ErrNoPendingReservation, folio)
	}
	err := service.store.UpdatePermitStatus(ctx, folio, StatusPending, StatusAdminCleared, service.manager.Now())
	service.logOperation(ctx, OperationLog{Operation: operationAdminClear, Owner: owner, Folio: folio, Error: err})
	service.notifyOwner(ctx, owner, folio, adminClearedText(folio))
	return owner, nil
}

// Recover reschedules every persisted PENDING permit against its stored deadline.
func (service *Service) Recover(ctx context.Context) (int, error) {
	pending, err := service.store.ListPending(ctx, 0)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, permit := range pending {
		if err := service.manager.Resume(ctx, permit.Owner, permit.Folio, reservationStart(permit, service.manager.Plan())); err != nil {
			if errors.Is(err, ErrReservationExists) {
				continue
			}
			service.logOperation(ctx, OperationLog{Operation: operationRecover, Owner: permit.Owner, Folio: permit.Folio, Error: err})
			continue
		}
		resumed++
	}
	service.logOperation(ctx, OperationLog{Operation: operationRecover, Detail: fmt.Sprintf("resumed %d of %d", resumed, len(pending))})
	return resumed, nil
}

// SweepOverdue expires persisted PENDING permits whose deadline passed with no task tracking them.
func (service *Service) SweepOverdue(ctx context.Context) (int, error) {
	pending, err := service.store.ListPending(ctx, 0)
	if err != nil {
		return 0, err
	}
	now := service.manager.Now()
	expired := 0
	for _, permit := range pending {
		if _, tracked := service.manager.Owner(permit.Folio); tracked {
			continue
		}
		deadline := reservationStart(permit, service.manager.Plan()).Add(service.manager.Plan().Deadline)
		if deadline.After(now) {
			continue
		}
		removed, err := service.store.DeletePermit(ctx, permit.Folio)
		if err == nil && !removed {
			service.logOperation(ctx, OperationLog{Operation: operationSweep, Owner: permit.Owner, Folio: permit.Folio, Detail: "already closed"})
			continue
		}
		service.logOperation(ctx, OperationLog{Operation: operationSweep, Owner: permit.Owner, Folio: permit.Folio, Error: err})
		if err != nil {
			continue
		}
		expired++
		service.notifyOwner(ctx, permit.Owner, permit.Folio, expiredText(permit.Folio))
	}
	return expired, nil
}

// Snapshot reports the next folio and the number of running reservations.
func (service *Service) Snapshot() Snapshot {
	return Snapshot{
		NextFolio:          service.folios.Peek(),
		ActiveReservations: service.manager.Active(),
	}
}

// Pending returns the owner's active folios.
func (service *Service) Pending(owner OwnerID) []Folio {
	return service.manager.Pending(owner)
}

// ParseFolioHint finds the first token in text shaped like prefix followed by digits.
func ParseFolioHint(prefix string, text string) string {
	normalizedPrefix := strings.ToUpper(strings.TrimSpace(prefix))
	if normalizedPrefix == "" {
		return ""
	}
	for _, field := range strings.Fields(strings.ToUpper(text)) {
		token := strings.Trim(field, "#:.,;()[]")
		if len(token) <= len(normalizedPrefix) || !strings.HasPrefix(token, normalizedPrefix) {
			continue
		}
		if isDigits(token[len(normalizedPrefix):]) {
			return token
		}
	}
	return ""
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, character := range value {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

func reservationStart(permit Permit, plan ReminderPlan) time.Time {
	if !permit.DeadlineAt.IsZero() {
		return permit.DeadlineAt.Add(-plan.Deadline)
	}
	return permit.IssuedAt
}

func (service *Service) notifyOwner(ctx context.Context, owner OwnerID, folio Folio, text string) {
	if err := service.notifier.Notify(ctx, owner, text); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationNotify,
			Owner:     owner,
			Folio:     folio,
			Status:    operationStatusDegraded,
			Error:     err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.operationLogger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.operationLogger.LogOperation(ctx, entry)
}
