package permit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const notificationTimeout = 2 * time.Second

var (
	errStoreFailure  = errors.New("store error")
	errRenderFailure = errors.New("render error")
	errNotifyFailure = errors.New("notify error")
)

var baseTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type stubStore struct {
	mutex       sync.Mutex
	permits     map[Folio]Permit
	taken       map[Folio]bool
	proofs      []PaymentProof
	deleted     []Folio
	maxSequence int64
	existsError error
	existsCalls int
	insertError error
	updateError error
	listError   error
	staleList   []Permit
}

func newStubStore() *stubStore {
	return &stubStore{
		permits: make(map[Folio]Permit),
		taken:   make(map[Folio]bool),
	}
}

func (store *stubStore) FolioExists(ctx context.Context, folio Folio) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.existsCalls++
	if store.existsError != nil {
		return false, store.existsError
	}
	if store.taken[folio] {
		return true, nil
	}
	_, ok := store.permits[folio]
	return ok, nil
}

func (store *stubStore) MaxFolioSequence(ctx context.Context, prefix string) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.maxSequence, nil
}

func (store *stubStore) InsertPermit(ctx context.Context, permit Permit) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.insertError != nil {
		return store.insertError
	}
	store.permits[permit.Folio] = permit
	return nil
}

func (store *stubStore) GetPermit(ctx context.Context, folio Folio) (Permit, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	permit, ok := store.permits[folio]
	if !ok {
		return Permit{}, ErrUnknownPermit
	}
	return permit, nil
}

func (store *stubStore) UpdatePermitStatus(ctx context.Context, folio Folio, from Status, to Status, at time.Time) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.updateError != nil {
		return store.updateError
	}
	permit, ok := store.permits[folio]
	if !ok {
		return ErrUnknownPermit
	}
	if permit.Status != from {
		return ErrPermitClosed
	}
	permit.Status = to
	if to == StatusPaid {
		paidAt := at
		permit.PaidAt = &paidAt
	}
	store.permits[folio] = permit
	return nil
}

func (store *stubStore) DeletePermit(ctx context.Context, folio Folio) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	permit, ok := store.permits[folio]
	if !ok || permit.Status != StatusPending {
		return false, nil
	}
	delete(store.permits, folio)
	store.deleted = append(store.deleted, folio)
	return true, nil
}

func (store *stubStore) ListPending(ctx context.Context, limit int) ([]Permit, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.listError != nil {
		return nil, store.listError
	}
	if store.staleList != nil {
		return slices.Clone(store.staleList), nil
	}
	var pending []Permit
	for _, permit := range store.permits {
		if permit.Status == StatusPending {
			pending = append(pending, permit)
		}
	}
	slices.SortFunc(pending, func(left Permit, right Permit) int {
		return int(left.Sequence - right.Sequence)
	})
	return pending, nil
}

func (store *stubStore) RecordPaymentProof(ctx context.Context, folio Folio, proof PaymentProof) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.proofs = append(store.proofs, proof)
	return nil
}

func (store *stubStore) permit(folio Folio) (Permit, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	permit, ok := store.permits[folio]
	return permit, ok
}

type stubPlateStore struct {
	mutex      sync.Mutex
	last       string
	found      bool
	readError  error
	writeError error
}

func (store *stubPlateStore) LastPlate(ctx context.Context) (string, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.readError != nil {
		return "", false, store.readError
	}
	return store.last, store.found, nil
}

func (store *stubPlateStore) SavePlate(ctx context.Context, plate Plate) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.writeError != nil {
		return store.writeError
	}
	store.last = plate.String()
	store.found = true
	return nil
}

type notification struct {
	owner OwnerID
	text  string
}

type recordingNotifier struct {
	messages chan notification
	err      error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: make(chan notification, 64)}
}

func (notifier *recordingNotifier) Notify(ctx context.Context, owner OwnerID, text string) error {
	notifier.messages <- notification{owner: owner, text: text}
	return notifier.err
}

func (notifier *recordingNotifier) next(test *testing.T) notification {
	test.Helper()
	select {
	case message := <-notifier.messages:
		return message
	case <-time.After(notificationTimeout):
		test.Fatalf("timed out waiting for notification")
		return notification{}
	}
}

func (notifier *recordingNotifier) pending() int {
	return len(notifier.messages)
}

type stubRenderer struct {
	mutex    sync.Mutex
	err      error
	rendered []Folio
}

func (renderer *stubRenderer) Render(ctx context.Context, permit Permit) (Documents, error) {
	renderer.mutex.Lock()
	defer renderer.mutex.Unlock()
	if renderer.err != nil {
		return Documents{}, renderer.err
	}
	renderer.rendered = append(renderer.rendered, permit.Folio)
	return Documents{
		MainPath:    permit.Folio.String() + "_main.pdf",
		ReceiptPath: permit.Folio.String() + "_receipt.pdf",
	}, nil
}

type stubArchiver struct {
	mutex    sync.Mutex
	err      error
	archived []Folio
}

func (archiver *stubArchiver) Archive(ctx context.Context, folio Folio, documents Documents) error {
	archiver.mutex.Lock()
	defer archiver.mutex.Unlock()
	archiver.archived = append(archiver.archived, folio)
	return archiver.err
}

type recordingOperationLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recordingOperationLogger) LogOperation(ctx context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingOperationLogger) withStatus(status string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Status == status {
			matched = append(matched, entry)
		}
	}
	return matched
}

type stubSessionStore struct {
	mutex    sync.Mutex
	sessions map[OwnerID]Session
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[OwnerID]Session)}
}

func (store *stubSessionStore) Load(ctx context.Context, owner OwnerID) (Session, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	session, ok := store.sessions[owner]
	return session, ok, nil
}

func (store *stubSessionStore) Save(ctx context.Context, owner OwnerID, session Session) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sessions[owner] = session
	return nil
}

func (store *stubSessionStore) Delete(ctx context.Context, owner OwnerID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.sessions, owner)
	return nil
}

type harness struct {
	clock    *clockwork.FakeClock
	store    *stubStore
	plates   *stubPlateStore
	notifier *recordingNotifier
	renderer *stubRenderer
	logger   *recordingOperationLogger
	manager  *Manager
	folios   *FolioAllocator
	service  *Service
}

func newHarness(test *testing.T, options ...ServiceOption) *harness {
	test.Helper()
	clock := clockwork.NewFakeClockAt(baseTime)
	store := newStubStore()
	plates := &stubPlateStore{}
	notifier := newRecordingNotifier()
	renderer := &stubRenderer{}
	logger := &recordingOperationLogger{}
	manager, err := NewManager(clock, DefaultReminderPlan(), NewStoreExpiryHandler(store, logger), notifier)
	if err != nil {
		test.Fatalf("new manager: %v", err)
	}
	test.Cleanup(manager.Shutdown)
	folios, err := NewFolioAllocator(store, DefaultFolioPrefix, DefaultFolioAttempts)
	if err != nil {
		test.Fatalf("new folio allocator: %v", err)
	}
	plateAllocator, err := NewPlateAllocator(plates)
	if err != nil {
		test.Fatalf("new plate allocator: %v", err)
	}
	serviceOptions := append([]ServiceOption{WithOperationLogger(logger)}, options...)
	service, err := NewService(store, folios, plateAllocator, renderer, manager, notifier, serviceOptions...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return &harness{
		clock:    clock,
		store:    store,
		plates:   plates,
		notifier: notifier,
		renderer: renderer,
		logger:   logger,
		manager:  manager,
		folios:   folios,
		service:  service,
	}
}

// advance waits for the single running task to arm its timer and then moves the clock.
func (h *harness) advance(test *testing.T, step time.Duration) {
	test.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		test.Fatalf("waiting for timer: %v", err)
	}
	h.clock.Advance(step)
}

func (h *harness) mustIssue(test *testing.T, owner OwnerID) IssueResult {
	test.Helper()
	result, err := h.service.Issue(context.Background(), owner, "tester", sampleApplication())
	if err != nil {
		test.Fatalf("issue: %v", err)
	}
	return result
}

func sampleApplication() Application {
	return Application{
		Brand:       "NISSAN",
		Model:       "VERSA",
		Year:        "2020",
		Serial:      "3N1CN7AD5LL800001",
		Engine:      "HR16123456",
		Color:       "BLANCO",
		VehicleType: "SEDAN",
		HolderName:  "JUAN PEREZ LOPEZ",
	}
}

func mustOwnerID(test *testing.T, raw int64) OwnerID {
	test.Helper()
	owner, err := NewOwnerID(raw)
	if err != nil {
		test.Fatalf("owner id: %v", err)
	}
	return owner
}

func mustFolio(test *testing.T, raw string) Folio {
	test.Helper()
	folio, err := NewFolio(raw)
	if err != nil {
		test.Fatalf("folio: %v", err)
	}
	return folio
}

func mustPlate(test *testing.T, raw string) Plate {
	test.Helper()
	plate, err := NewPlate(raw)
	if err != nil {
		test.Fatalf("plate: %v", err)
	}
	return plate
}
