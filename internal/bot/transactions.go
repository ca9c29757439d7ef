package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
)

func statusIcon(status string) string {
	switch status {
	case models.StatusCompleted, models.AccountActive:
		return "✅"
	case models.StatusRejected, models.AccountBlocked:
		return "❌"
	default:
		return "⏳"
	}
}

func formatTransaction(tx models.Transaction) string {
	kind := "⬇️ Deposit"
	if tx.Type == models.TxWithdrawal {
		kind = "⬆️ Withdrawal"
	}
	return fmt.Sprintf("%s %s `%s %s` via %s\n🗓 %s, %s\n",
		statusIcon(tx.Status), kind, utils.FormatMoney(tx.Amount), tx.Currency,
		tx.Method, tx.Date, tx.Status)
}

func formatInvestment(inv models.Investment) string {
	period := inv.StartDate
	if inv.EndDate != "" {
		period += " → " + inv.EndDate
	}
	return fmt.Sprintf("💼 *%s* (%s)\n💰 `%s` invested, profit `%s`\n🗓 %s, %s\n",
		escape(inv.Plan), inv.Duration, utils.FormatMoney(inv.Amount), utils.FormatMoney(inv.Profit),
		period, inv.Status)
}

// notifyAdminAboutWithdrawal posts a new withdrawal request to the admin chat.
func (b *Bot) notifyAdminAboutWithdrawal(ctx context.Context, email string, tx *models.Transaction) {
	if b.adminChatID == 0 {
		b.logger.Warnf("No admin chat configured, withdrawal %s not announced", tx.ID)
		return
	}

	acc, err := b.ledger.FindAccount(ctx, email)
	if err != nil || acc == nil {
		b.logger.Errorf("Failed to load %s for withdrawal notification: %v", email, err)
		return
	}

	text := fmt.Sprintf(
		"💸 *New withdrawal request*\n\n"+
			"👤 *User:* %s (%s)\n"+
			"💰 *Amount:* `%s %s`\n"+
			"🏦 *Via:* %s\n"+
			"📊 *Balance:* `%s` USD\n"+
			"🆔 *ID:* `%s`",
		escape(acc.Name), escape(acc.Email),
		utils.FormatMoney(tx.Amount), tx.Currency, tx.Method,
		utils.FormatMoney(acc.Balance), inCode(tx.ID),
	)
	b.sendMessage(b.adminChatID, text, reviewKeyboard(acc.ID, tx.ID))
}

// notifyReviewOutcome tells every chat signed in as email about the decision.
func (b *Bot) notifyReviewOutcome(ctx context.Context, email string, tx *models.Transaction) {
	chats := b.sessions.ChatsFor(ctx, email)
	if len(chats) == 0 {
		b.logger.Debugf("No signed-in chat for %s, review of %s not announced", email, tx.ID)
		return
	}

	var text string
	switch {
	case tx.Type == models.TxDeposit && tx.Status == models.StatusCompleted:
		text = fmt.Sprintf("✅ Your deposit of `%s %s` was approved and credited.", utils.FormatMoney(tx.Amount), tx.Currency)
		if tx.Settled != nil && !strings.EqualFold(tx.Currency, models.BaseCurrency) {
			text += fmt.Sprintf("\nCredited: `%s` %s", utils.FormatMoney(*tx.Settled), models.BaseCurrency)
		}
	case tx.Type == models.TxWithdrawal && tx.Status == models.StatusCompleted:
		text = fmt.Sprintf("✅ Your withdrawal of `%s %s` was approved and is on its way.", utils.FormatMoney(tx.Amount), tx.Currency)
	default:
		text = fmt.Sprintf("❌ Your %s of `%s %s` was rejected.", tx.Type, utils.FormatMoney(tx.Amount), tx.Currency)
	}

	acc, err := b.ledger.FindAccount(ctx, email)
	if err == nil && acc != nil {
		text += fmt.Sprintf("\n\nBalance: `%s` USD", utils.FormatMoney(acc.Balance))
	}

	for _, chatID := range chats {
		b.sendMessage(chatID, text, nil)
	}
}
