// internal/notify/telegram.go
package notify

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxTelegramMessage = 4096
	telegramTimeout    = 10 * time.Second
)

// Telegram returns a Deliverer that posts notices to a staff escalation
// chat. This is a reference adapter for the hosting service; the core
// itself never dials out.
func Telegram(token string, chatID int64) (Deliverer, error) {
	// The default Telegram client has no timeout; a wedged API call must
	// not hold a delivery goroutine forever.
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: telegramTimeout})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return func(subject, body string) error {
		text := subject + "\n\n" + body
		if len(text) > maxTelegramMessage {
			text = text[:maxTelegramMessage]
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("send telegram notice: %w", err)
		}
		return nil
	}, nil
}
