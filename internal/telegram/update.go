package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/permitbot/internal/bot"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DecodeUpdate reads one webhook payload.
func DecodeUpdate(body io.Reader) (tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		return tgbotapi.Update{}, fmt.Errorf("telegram: decode update: %w", err)
	}
	return update, nil
}

// ConvertUpdate maps an update to a bot.Message. Updates without a usable message are skipped.
func ConvertUpdate(update tgbotapi.Update) (bot.Message, bool) {
	source := update.Message
	if source == nil || source.Chat == nil {
		return bot.Message{}, false
	}
	owner, err := permit.NewOwnerID(source.Chat.ID)
	if err != nil {
		return bot.Message{}, false
	}
	message := bot.Message{
		Owner:       owner,
		Text:        source.Text,
		Caption:     source.Caption,
		PhotoFileID: photoFileID(source),
		ReceivedAt:  source.Time().UTC(),
	}
	if source.From != nil {
		message.Username = source.From.UserName
	}
	return message, true
}

// photoFileID picks the largest photo size, or an image sent as a document.
func photoFileID(source *tgbotapi.Message) string {
	if len(source.Photo) > 0 {
		largest := source.Photo[0]
		for _, size := range source.Photo[1:] {
			if size.Width*size.Height > largest.Width*largest.Height {
				largest = size
			}
		}
		return largest.FileID
	}
	if source.Document != nil && strings.HasPrefix(source.Document.MimeType, "image/") {
		return source.Document.FileID
	}
	return ""
}
