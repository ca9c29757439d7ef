package bot

import (
	"context"

	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/session"
)

// withSession runs handler only for a signed-in chat, refreshing the cached
// projection from the record store first.
func (b *Bot) withSession(handler func(context.Context, int64, *session.Manager, *models.Session)) func(context.Context, int64) {
	return func(ctx context.Context, chatID int64) {
		mgr := b.sessions.For(chatID)

		sess, err := mgr.Refresh(ctx)
		if err != nil {
			b.logger.Errorf("Failed to refresh session of chat %d: %v", chatID, err)
			b.sendMessage(chatID, "Something went wrong. Please try again later.", nil)
			return
		}
		if sess == nil {
			b.setState(chatID, stateDefault)
			b.sendMessage(chatID, "Please log in or register first.", GetMainMenu(false))
			return
		}

		handler(ctx, chatID, mgr, sess)
	}
}
