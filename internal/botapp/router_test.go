package botapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type stubReporter struct{}

func (stubReporter) Snapshot() permit.Snapshot {
	return permit.Snapshot{NextFolio: permit.ComposeFolio(permit.DefaultFolioPrefix, 7), ActiveReservations: 2}
}

func (stubReporter) FolioPrefix() string {
	return permit.DefaultFolioPrefix
}

type recordingSink struct {
	updates []tgbotapi.Update
}

func (sink *recordingSink) Accept(ctx context.Context, update tgbotapi.Update) {
	sink.updates = append(sink.updates, update)
}

func serve(test *testing.T, sink UpdateSink, clock clockwork.Clock, method string, path string, body string) (int, map[string]any) {
	test.Helper()
	router := newRouter(routerConfig{AllowedOrigins: []string{"*"}, WebhookPath: "/webhook", Mode: modeWebhook}, stubReporter{}, sink, clock, zap.NewNop())
	if fake, ok := clock.(*clockwork.FakeClock); ok {
		fake.Advance(90 * time.Second)
	}
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	payload := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			test.Fatalf("decode body %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder.Code, payload
}

func TestSummaryReportsNextFolioAndTimers(test *testing.T) {
	test.Parallel()
	code, payload := serve(test, nil, clockwork.NewFakeClock(), http.MethodGet, "/", "")
	if code != http.StatusOK {
		test.Fatalf("unexpected status %d", code)
	}
	if payload["next_folio"] != "3457" || payload["active_timers"] != float64(2) {
		test.Fatalf("unexpected payload %v", payload)
	}
}

func TestStatusReportsUptime(test *testing.T) {
	test.Parallel()
	code, payload := serve(test, nil, clockwork.NewFakeClock(), http.MethodGet, "/status", "")
	if code != http.StatusOK {
		test.Fatalf("unexpected status %d", code)
	}
	if payload["uptime_seconds"] != float64(90) || payload["folio_prefix"] != "345" || payload["mode"] != modeWebhook {
		test.Fatalf("unexpected payload %v", payload)
	}
}

func TestHealthz(test *testing.T) {
	test.Parallel()
	code, payload := serve(test, nil, clockwork.NewFakeClock(), http.MethodGet, "/healthz", "")
	if code != http.StatusOK || payload["status"] != "ok" {
		test.Fatalf("unexpected response %d %v", code, payload)
	}
}

func TestWebhookAcceptsUpdates(test *testing.T) {
	test.Parallel()
	sink := &recordingSink{}
	body := `{"update_id":5,"message":{"message_id":1,"date":1717236000,"chat":{"id":42,"type":"private"},"text":"/start"}}`
	code, _ := serve(test, sink, clockwork.NewFakeClock(), http.MethodPost, "/webhook", body)
	if code != http.StatusOK {
		test.Fatalf("unexpected status %d", code)
	}
	if len(sink.updates) != 1 || sink.updates[0].UpdateID != 5 || sink.updates[0].Message.Text != "/start" {
		test.Fatalf("unexpected updates %+v", sink.updates)
	}
}

func TestWebhookRejectsMalformedPayload(test *testing.T) {
	test.Parallel()
	sink := &recordingSink{}
	code, payload := serve(test, sink, clockwork.NewFakeClock(), http.MethodPost, "/webhook", "{")
	if code != http.StatusBadRequest || len(sink.updates) != 0 {
		test.Fatalf("expected rejection, got %d %v", code, payload)
	}
}

func TestWebhookAbsentWhenPolling(test *testing.T) {
	test.Parallel()
	code, payload := serve(test, nil, clockwork.NewFakeClock(), http.MethodPost, "/webhook", "{}")
	if code != http.StatusNotFound {
		test.Fatalf("expected 404 without a sink, got %d", code)
	}
	details, ok := payload["error"].(map[string]any)
	if !ok || details["code"] != "not_found" {
		test.Fatalf("expected not_found error payload, got %v", payload)
	}
}
