package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"go.uber.org/zap"
)

// AdminClearer cancels a reservation on an administrator's word.
type AdminClearer interface {
	AdminClear(ctx context.Context, folio permit.Folio) (permit.OwnerID, error)
}

// AdminHandler executes the <tag><folio> override command.
type AdminHandler struct {
	clearer   AdminClearer
	messenger Messenger
	admins    map[permit.OwnerID]struct{}
	tag       string
	prefix    string
	logger    *zap.Logger
}

// NewAdminHandler restricts the override to the given owner ids.
func NewAdminHandler(clearer AdminClearer, messenger Messenger, adminIDs []int64, tag string, prefix string, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[permit.OwnerID]struct{}, len(adminIDs))
	for _, raw := range adminIDs {
		owner, err := permit.NewOwnerID(raw)
		if err != nil {
			continue
		}
		admins[owner] = struct{}{}
	}
	return &AdminHandler{
		clearer:   clearer,
		messenger: messenger,
		admins:    admins,
		tag:       strings.ToUpper(tag),
		prefix:    strings.ToUpper(prefix),
		logger:    logger,
	}
}

// Matches reports whether text carries the admin tag.
func (handler *AdminHandler) Matches(text string) bool {
	return handler.tag != "" && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), handler.tag)
}

// IsAdmin reports whether owner may run the override.
func (handler *AdminHandler) IsAdmin(owner permit.OwnerID) bool {
	_, ok := handler.admins[owner]
	return ok
}

// Handle runs the command for an admin. Callers check IsAdmin first.
func (handler *AdminHandler) Handle(ctx context.Context, message Message) error {
	text := strings.ToUpper(strings.TrimSpace(message.Text))
	raw := strings.TrimSpace(strings.TrimPrefix(text, handler.tag))
	if raw == "" || !strings.HasPrefix(raw, handler.prefix) || len(raw) == len(handler.prefix) {
		return handler.messenger.SendText(ctx, message.Owner, adminFormatText(handler.tag, handler.prefix))
	}
	folio, err := permit.NewFolio(raw)
	if err != nil {
		return handler.messenger.SendText(ctx, message.Owner, adminFormatText(handler.tag, handler.prefix))
	}
	owner, err := handler.clearer.AdminClear(ctx, folio)
	if errors.Is(err, permit.ErrNoPendingReservation) {
		return handler.messenger.SendText(ctx, message.Owner, adminNotFoundText(folio.String()))
	}
	if err != nil {
		return err
	}
	handler.logger.Info("admin override",
		zap.Int64("admin", message.Owner.Int64()),
		zap.String("folio", folio.String()),
		zap.Int64("owner", owner.Int64()),
	)
	return handler.messenger.SendText(ctx, message.Owner, adminClearedText(folio, owner))
}
