// Package bot routes inbound chat messages to the intake dialogue, payment handling and admin commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"go.uber.org/zap"
)

const (
	commandStart  = "/start"
	commandPermit = "/permiso"
	commandCancel = "/cancel"
)

// Message is a transport-neutral inbound chat message.
type Message struct {
	Owner       permit.OwnerID
	Username    string
	Text        string
	Caption     string
	PhotoFileID string
	ReceivedAt  time.Time
}

// Messenger sends replies to an owner.
type Messenger interface {
	SendText(ctx context.Context, owner permit.OwnerID, text string) error
	SendDocument(ctx context.Context, owner permit.OwnerID, path string, caption string) error
}

// PermitService is the domain surface the dispatcher drives.
type PermitService interface {
	Issue(ctx context.Context, owner permit.OwnerID, username string, application permit.Application) (permit.IssueResult, error)
	ConfirmPayment(ctx context.Context, proof permit.PaymentProof) (permit.PaymentOutcome, error)
	AdminClear(ctx context.Context, folio permit.Folio) (permit.OwnerID, error)
	FolioPrefix() string
}

// Config holds the user-facing settings of the dispatcher.
type Config struct {
	AdminIDs            []int64
	AdminTag            string
	Price               string
	PaymentWindow       time.Duration
	PaymentInstructions string
	ValidityDays        int
}

// Dispatcher routes each message to exactly one handler.
type Dispatcher struct {
	collector *permit.Collector
	service   PermitService
	messenger Messenger
	admin     *AdminHandler
	config    Config
	logger    *zap.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(collector *permit.Collector, service PermitService, messenger Messenger, config Config, logger *zap.Logger) (*Dispatcher, error) {
	if collector == nil || service == nil || messenger == nil {
		return nil, errors.New("bot: collector, service and messenger are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ValidityDays <= 0 {
		config.ValidityDays = permit.DefaultValidityDays
	}
	if config.PaymentWindow <= 0 {
		config.PaymentWindow = permit.DefaultPaymentWindow
	}
	return &Dispatcher{
		collector: collector,
		service:   service,
		messenger: messenger,
		admin:     NewAdminHandler(service, messenger, config.AdminIDs, config.AdminTag, service.FolioPrefix(), logger),
		config:    config,
		logger:    logger,
	}, nil
}

// Handle routes one inbound message.
func (dispatcher *Dispatcher) Handle(ctx context.Context, message Message) error {
	if message.Owner.IsZero() {
		return permit.ErrInvalidOwnerID
	}
	switch command(message.Text) {
	case commandStart:
		if err := dispatcher.collector.Reset(ctx, message.Owner); err != nil {
			return err
		}
		dispatcher.reply(ctx, message.Owner, textWelcome)
		return nil
	case commandPermit:
		session, err := dispatcher.collector.Begin(ctx, message.Owner)
		if err != nil {
			return err
		}
		dispatcher.reply(ctx, message.Owner, promptFor(session.Step))
		return nil
	case commandCancel:
		if err := dispatcher.collector.Reset(ctx, message.Owner); err != nil {
			return err
		}
		dispatcher.reply(ctx, message.Owner, textCancelled)
		return nil
	}

	_, inSession, err := dispatcher.collector.Active(ctx, message.Owner)
	if err != nil {
		return err
	}

	if dispatcher.admin.Matches(message.Text) {
		if dispatcher.admin.IsAdmin(message.Owner) {
			return dispatcher.admin.Handle(ctx, message)
		}
		if !inSession {
			dispatcher.logger.Debug("ignored admin command from non-admin", zap.Int64("owner", message.Owner.Int64()))
			return nil
		}
	}

	if message.PhotoFileID != "" {
		return dispatcher.handleProof(ctx, message)
	}
	if inSession {
		return dispatcher.handleIntake(ctx, message)
	}
	if mentionsCost(message.Text) {
		dispatcher.reply(ctx, message.Owner, priceText(dispatcher.config.Price))
		return nil
	}
	dispatcher.reply(ctx, message.Owner, textFallback)
	return nil
}

func (dispatcher *Dispatcher) handleProof(ctx context.Context, message Message) error {
	receivedAt := message.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	outcome, err := dispatcher.service.ConfirmPayment(ctx, permit.PaymentProof{
		Owner:      message.Owner,
		Hint:       permit.ParseFolioHint(dispatcher.service.FolioPrefix(), message.Caption),
		FileID:     message.PhotoFileID,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case permit.PaymentNeedsClarification:
		dispatcher.reply(ctx, message.Owner, clarificationText(outcome.Pending))
	case permit.PaymentNoReservation:
		dispatcher.logger.Debug("photo without pending reservation", zap.Int64("owner", message.Owner.Int64()))
		dispatcher.reply(ctx, message.Owner, textNoPending)
	}
	return nil
}

func (dispatcher *Dispatcher) handleIntake(ctx context.Context, message Message) error {
	result, err := dispatcher.collector.Submit(ctx, message.Owner, message.Text)
	var validationError permit.ValidationError
	if errors.As(err, &validationError) {
		dispatcher.reply(ctx, message.Owner, validationText(validationError))
		return nil
	}
	if err != nil {
		return err
	}
	switch {
	case result.Complete:
		return dispatcher.issue(ctx, message, result.Session.Application)
	case result.Restarted:
		dispatcher.reply(ctx, message.Owner, textRestart+"\n\n"+promptFor(result.Session.Step))
	case result.Session.Step == permit.StepConfirmation:
		dispatcher.reply(ctx, message.Owner, confirmationText(result.Session.Application))
	default:
		dispatcher.reply(ctx, message.Owner, promptFor(result.Session.Step))
	}
	return nil
}

func (dispatcher *Dispatcher) issue(ctx context.Context, message Message, application permit.Application) error {
	dispatcher.reply(ctx, message.Owner, textProcessing)
	result, err := dispatcher.service.Issue(ctx, message.Owner, message.Username, application)
	if errors.Is(err, permit.ErrAllocatorExhausted) {
		dispatcher.reply(ctx, message.Owner, textRetryLater)
		return nil
	}
	if err != nil {
		dispatcher.logger.Error("issue permit", zap.Int64("owner", message.Owner.Int64()), zap.Error(err))
		dispatcher.reply(ctx, message.Owner, textSystemFail)
		return nil
	}
	record := result.Permit
	if err := dispatcher.messenger.SendDocument(ctx, message.Owner, result.Documents.MainPath, mainCaption(record, dispatcher.config.ValidityDays)); err != nil {
		dispatcher.logger.Warn("send main document", zap.String("folio", record.Folio.String()), zap.Error(err))
	}
	if err := dispatcher.messenger.SendDocument(ctx, message.Owner, result.Documents.ReceiptPath, receiptCaption(record)); err != nil {
		dispatcher.logger.Warn("send receipt document", zap.String("folio", record.Folio.String()), zap.Error(err))
	}
	dispatcher.reply(ctx, message.Owner, paymentText(record, dispatcher.config.Price, formatWindow(dispatcher.config.PaymentWindow), dispatcher.config.PaymentInstructions))
	return nil
}

func (dispatcher *Dispatcher) reply(ctx context.Context, owner permit.OwnerID, text string) {
	if err := dispatcher.messenger.SendText(ctx, owner, text); err != nil {
		dispatcher.logger.Warn("send reply", zap.Int64("owner", owner.Int64()), zap.Error(err))
	}
}

// command returns the lower-cased command word of text, without any @botname suffix.
func command(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	return name
}

func mentionsCost(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range costKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func formatWindow(window time.Duration) string {
	if window%time.Hour == 0 {
		hours := int(window / time.Hour)
		if hours == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", hours)
	}
	return fmt.Sprintf("%d minutos", int(window.Round(time.Minute)/time.Minute))
}
