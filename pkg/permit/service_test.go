package permit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssuePersistsAndReservesPermit(test *testing.T) {
	test.Parallel()
	archiver := &stubArchiver{}
	h := newHarness(test, WithDocumentArchiver(archiver))
	owner := mustOwnerID(test, 501)

	result := h.mustIssue(test, owner)
	permit := result.Permit
	if permit.Folio.String() != "3451" || permit.Sequence != 1 {
		test.Fatalf("expected first folio 3451, got %s (%d)", permit.Folio, permit.Sequence)
	}
	if permit.Plate.String() != "GSR1990" || result.PlateDegraded {
		test.Fatalf("expected sequential plate GSR1990, got %s degraded=%v", permit.Plate, result.PlateDegraded)
	}
	if !permit.IssuedAt.Equal(baseTime) || !permit.ValidUntil.Equal(baseTime.AddDate(0, 0, DefaultValidityDays)) {
		test.Fatalf("unexpected dates: issued %s valid until %s", permit.IssuedAt, permit.ValidUntil)
	}
	if !permit.DeadlineAt.Equal(baseTime.Add(DefaultPaymentWindow)) {
		test.Fatalf("unexpected deadline %s", permit.DeadlineAt)
	}
	if permit.Status != StatusPending {
		test.Fatalf("expected pending status, got %s", permit.Status)
	}
	if result.Documents.MainPath == "" || result.Documents.ReceiptPath == "" {
		test.Fatalf("expected rendered documents, got %+v", result.Documents)
	}
	if _, ok := h.store.permit(permit.Folio); !ok {
		test.Fatalf("expected persisted permit")
	}
	if holder, ok := h.manager.Owner(permit.Folio); !ok || holder != owner {
		test.Fatalf("expected active reservation for owner")
	}
	if len(archiver.archived) != 1 {
		test.Fatalf("expected archived documents, got %v", archiver.archived)
	}
	second := h.mustIssue(test, owner)
	if second.Permit.Folio.String() != "3452" || second.Permit.Plate.String() != "GSR1991" {
		test.Fatalf("expected 3452/GSR1991, got %s/%s", second.Permit.Folio, second.Permit.Plate)
	}
}

func TestIssueFailuresLeaveNoReservation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(h *harness)
		wantErr   error
	}{
		{
			name:      "render failure",
			configure: func(h *harness) { h.renderer.err = errRenderFailure },
			wantErr:   ErrDocumentRender,
		},
		{
			name:      "persist failure",
			configure: func(h *harness) { h.store.insertError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      "allocator exhausted",
			configure: func(h *harness) { h.store.existsError = errStoreFailure },
			wantErr:   ErrAllocatorExhausted,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			h := newHarness(test)
			testCase.configure(h)
			before := h.folios.Peek()

			_, err := h.service.Issue(context.Background(), mustOwnerID(test, 502), "tester", sampleApplication())
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			if h.manager.Active() != 0 {
				test.Fatalf("failed issue must not start a reservation")
			}
			if pending, _ := h.store.ListPending(context.Background(), 0); len(pending) != 0 {
				test.Fatalf("failed issue must not persist, got %d permits", len(pending))
			}
			if h.folios.Peek() == before {
				test.Fatalf("consumed folio %s must not be reused", before)
			}
		})
	}
}

func TestIssueRecordsDegradedPlate(test *testing.T) {
	test.Parallel()
	h := newHarness(test)
	h.plates.readError = errStoreFailure

	result := h.mustIssue(test, mustOwnerID(test, 503))
	if !result.PlateDegraded {
		test.Fatalf("expected degraded plate flag")
	}
	degraded := h.logger.withStatus(operationStatusDegraded)
	if len(degraded) != 1 || !errors.Is(degraded[0].Error, errStoreFailure) {
		test.Fatalf("expected one degraded log entry, got %+v", degraded)
	}
}

func TestIssueToleratesArchiveFailure(test *testing.T) {
	test.Parallel()
	h := newHarness(test, WithDocumentArchiver(&stubArchiver{err: errStoreFailure}))
	result := h.mustIssue(test, mustOwnerID(test, 504))
	if _, ok := h.manager.Owner(result.Permit.Folio); !ok {
		test.Fatalf("archive failure must not cancel the reservation")
	}
}

func TestRecoverResumesPendingPermits(test *testing.T) {
	test.Parallel()
	h := newHarness(test)
	owner := mustOwnerID(test, 601)
	ctx := context.Background()
	fresh := Permit{
		Folio:      mustFolio(test, "34510"),
		Sequence:   10,
		Owner:      owner,
		IssuedAt:   baseTime.Add(-95 * time.Minute),
		DeadlineAt: baseTime.Add(25 * time.Minute),
		Status:     StatusPending,
	}
	overdue := Permit{
		Folio:      mustFolio(test, "34511"),
		Sequence:   11,
		Owner:      owner,
		IssuedAt:   baseTime.Add(-4 * time.Hour),
		DeadlineAt: baseTime.Add(-2 * time.Hour),
		Status:     StatusPending,
	}
	for _, permit := range []Permit{fresh, overdue} {
		if err := h.store.InsertPermit(ctx, permit); err != nil {
			test.Fatalf("seed permit: %v", err)
		}
	}

	resumed, err := h.service.Recover(ctx)
	if err != nil || resumed != 2 {
		test.Fatalf("expected 2 resumed, got %d (%v)", resumed, err)
	}
	expired := h.notifier.next(test)
	if !strings.Contains(expired.text, overdue.Folio.String()) {
		test.Fatalf("overdue permit must expire first, got %q", expired.text)
	}

	h.advance(test, 15*time.Minute)
	finalNotice := h.notifier.next(test)
	if !strings.Contains(finalNotice.text, fresh.Folio.String()) {
		test.Fatalf("expected final notice for %s, got %q", fresh.Folio, finalNotice.text)
	}
	h.advance(test, 10*time.Minute)
	h.notifier.next(test)
	if _, ok := h.store.permit(fresh.Folio); ok {
		test.Fatalf("recovered permit must expire at its stored deadline")
	}
}

func TestSweepOverdueExpiresUntrackedPermits(test *testing.T) {
	test.Parallel()
	h := newHarness(test)
	ctx := context.Background()
	owner := mustOwnerID(test, 701)
	tracked := h.mustIssue(test, owner)
	stale := Permit{
		Folio:      mustFolio(test, "34599"),
		Sequence:   99,
		Owner:      owner,
		IssuedAt:   baseTime.Add(-3 * time.Hour),
		DeadlineAt: baseTime.Add(-time.Hour),
		Status:     StatusPending,
	}
	if err := h.store.InsertPermit(ctx, stale); err != nil {
		test.Fatalf("seed permit: %v", err)
	}

	expired, err := h.service.SweepOverdue(ctx)
	if err != nil || expired != 1 {
		test.Fatalf("expected one swept permit, got %d (%v)", expired, err)
	}
	if _, ok := h.store.permit(stale.Folio); ok {
		test.Fatalf("stale permit must be deleted")
	}
	if _, ok := h.store.permit(tracked.Permit.Folio); !ok {
		test.Fatalf("tracked permit must survive the sweep")
	}
	if message := h.notifier.next(test); message.owner != owner {
		test.Fatalf("unexpected sweep notification: %+v", message)
	}
}

func TestSweepOverdueSkipsPermitsClosedAfterListing(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		close func(ctx context.Context, store *stubStore, folio Folio) error
	}{
		{
			name: "expired by its own task",
			close: func(ctx context.Context, store *stubStore, folio Folio) error {
				_, err := store.DeletePermit(ctx, folio)
				return err
			},
		},
		{
			name: "paid meanwhile",
			close: func(ctx context.Context, store *stubStore, folio Folio) error {
				return store.UpdatePermitStatus(ctx, folio, StatusPending, StatusPaid, baseTime)
			},
		},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			h := newHarness(test)
			ctx := context.Background()
			stale := Permit{
				Folio:      mustFolio(test, "34598"),
				Sequence:   98,
				Owner:      mustOwnerID(test, 702),
				IssuedAt:   baseTime.Add(-3 * time.Hour),
				DeadlineAt: baseTime.Add(-time.Hour),
				Status:     StatusPending,
			}
			if err := h.store.InsertPermit(ctx, stale); err != nil {
				test.Fatalf("seed permit: %v", err)
			}
			h.store.staleList = []Permit{stale}
			if err := testCase.close(ctx, h.store, stale.Folio); err != nil {
				test.Fatalf("close permit: %v", err)
			}

			expired, err := h.service.SweepOverdue(ctx)
			if err != nil || expired != 0 {
				test.Fatalf("expected nothing swept, got %d (%v)", expired, err)
			}
			if h.notifier.pending() != 0 {
				test.Fatalf("a closed permit must not be announced again")
			}
		})
	}
}

func TestSnapshotReportsNextFolioAndActiveCount(test *testing.T) {
	test.Parallel()
	h := newHarness(test)
	h.mustIssue(test, mustOwnerID(test, 801))
	snapshot := h.service.Snapshot()
	if snapshot.NextFolio.String() != "3452" || snapshot.ActiveReservations != 1 {
		test.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestParseFolioHint(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		text string
		want string
	}{
		{text: "pago folio 34512", want: "34512"},
		{text: "#3457.", want: "3457"},
		{text: "345", want: ""},
		{text: "pago 999", want: ""},
		{text: "", want: ""},
	}
	for _, testCase := range testCases {
		if got := ParseFolioHint(DefaultFolioPrefix, testCase.text); got != testCase.want {
			test.Fatalf("ParseFolioHint(%q): expected %q, got %q", testCase.text, testCase.want, got)
		}
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, nil, nil, nil, nil, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
