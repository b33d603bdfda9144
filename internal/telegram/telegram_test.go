package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/permitbot/internal/bot"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type stubAPI struct {
	mutex    sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (api *stubAPI) Send(chattable tgbotapi.Chattable) (tgbotapi.Message, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	if api.sendErr != nil {
		return tgbotapi.Message{}, api.sendErr
	}
	api.sent = append(api.sent, chattable)
	return tgbotapi.Message{}, nil
}

func (api *stubAPI) Request(chattable tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	api.requests = append(api.requests, chattable)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (api *stubAPI) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return nil, nil
}

type recordingHandler struct {
	messages []bot.Message
}

func (handler *recordingHandler) Handle(ctx context.Context, message bot.Message) error {
	handler.messages = append(handler.messages, message)
	return nil
}

func mustOwner(test *testing.T, raw int64) permit.OwnerID {
	test.Helper()
	owner, err := permit.NewOwnerID(raw)
	if err != nil {
		test.Fatalf("owner: %v", err)
	}
	return owner
}

func TestConvertUpdate(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		update    tgbotapi.Update
		wantOK    bool
		wantPhoto string
		wantText  string
	}{
		{
			name:   "no message",
			update: tgbotapi.Update{UpdateID: 1},
		},
		{
			name:     "text",
			update:   tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, From: &tgbotapi.User{ID: 7, UserName: "driver"}, Text: "/permiso", Date: 1717236000}},
			wantOK:   true,
			wantText: "/permiso",
		},
		{
			name: "largest photo",
			update: tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Caption: "3451", Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "large", Width: 1280, Height: 960},
				{FileID: "medium", Width: 320, Height: 240},
			}}},
			wantOK:    true,
			wantPhoto: "large",
		},
		{
			name:      "image document",
			update:    tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Document: &tgbotapi.Document{FileID: "scan", MimeType: "image/jpeg"}}},
			wantOK:    true,
			wantPhoto: "scan",
		},
		{
			name:   "pdf document",
			update: tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"}}},
			wantOK: true,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			message, ok := ConvertUpdate(testCase.update)
			if ok != testCase.wantOK {
				test.Fatalf("expected ok=%v, got %v", testCase.wantOK, ok)
			}
			if !ok {
				return
			}
			if message.Owner.Int64() != 7 {
				test.Fatalf("unexpected owner %s", message.Owner)
			}
			if message.PhotoFileID != testCase.wantPhoto {
				test.Fatalf("expected photo %q, got %q", testCase.wantPhoto, message.PhotoFileID)
			}
			if message.Text != testCase.wantText {
				test.Fatalf("expected text %q, got %q", testCase.wantText, message.Text)
			}
		})
	}
}

func TestDecodeUpdate(test *testing.T) {
	test.Parallel()
	payload := `{"update_id":10,"message":{"message_id":1,"date":1717236000,"chat":{"id":99,"type":"private"},"from":{"id":99,"is_bot":false,"first_name":"Ana","username":"ana"},"text":"hola"}}`
	update, err := DecodeUpdate(strings.NewReader(payload))
	if err != nil {
		test.Fatalf("decode: %v", err)
	}
	message, ok := ConvertUpdate(update)
	if !ok || message.Owner.Int64() != 99 || message.Username != "ana" || message.Text != "hola" {
		test.Fatalf("unexpected message %+v", message)
	}
	if _, err := DecodeUpdate(strings.NewReader("{")); err == nil {
		test.Fatalf("expected decode error")
	}
}

func TestClientSends(test *testing.T) {
	test.Parallel()
	api := &stubAPI{}
	client, err := NewClient(api, nil)
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	owner := mustOwner(test, 55)
	if err := client.Notify(context.Background(), owner, "hola"); err != nil {
		test.Fatalf("notify: %v", err)
	}
	if err := client.SendDocument(context.Background(), owner, "/tmp/3451_main.pdf", "Folio 3451"); err != nil {
		test.Fatalf("document: %v", err)
	}
	if len(api.sent) != 2 {
		test.Fatalf("expected two sends, got %d", len(api.sent))
	}
	text, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok || text.ChatID != 55 || text.Text != "hola" {
		test.Fatalf("unexpected text message %#v", api.sent[0])
	}
	document, ok := api.sent[1].(tgbotapi.DocumentConfig)
	if !ok || document.ChatID != 55 || document.Caption != "Folio 3451" {
		test.Fatalf("unexpected document %#v", api.sent[1])
	}
}

func TestClientWrapsSendFailure(test *testing.T) {
	test.Parallel()
	client, err := NewClient(&stubAPI{sendErr: errors.New("blocked by user")}, nil)
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	if err := client.SendText(context.Background(), mustOwner(test, 55), "hola"); !errors.Is(err, ErrSendFailed) {
		test.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestDispatchSkipsUnusableUpdates(test *testing.T) {
	test.Parallel()
	client, err := NewClient(&stubAPI{}, nil)
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	handler := &recordingHandler{}
	client.Dispatch(context.Background(), handler, tgbotapi.Update{UpdateID: 1})
	client.Dispatch(context.Background(), handler, tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 8}, Text: "hola"}})
	if len(handler.messages) != 1 || handler.messages[0].Text != "hola" {
		test.Fatalf("unexpected dispatched messages %+v", handler.messages)
	}
}

func TestWebhookRegistration(test *testing.T) {
	test.Parallel()
	api := &stubAPI{}
	client, err := NewClient(api, nil)
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	if err := client.SetWebhook("https://bot.example.com/webhook"); err != nil {
		test.Fatalf("set webhook: %v", err)
	}
	if err := client.DeleteWebhook(); err != nil {
		test.Fatalf("delete webhook: %v", err)
	}
	if len(api.requests) != 2 {
		test.Fatalf("expected two requests, got %d", len(api.requests))
	}
}
