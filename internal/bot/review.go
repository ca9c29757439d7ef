package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Review callbacks carry "<action>:<accountID>:<txID>" so they fit the
// 64 byte callback data limit.
const (
	cbReview        = "rv:"
	cbReviewConfirm = "rvok:"
	cbReviewBack    = "rvback:"
	cbPendingPage   = "pg:"

	reviewApprove = "c"
	reviewReject  = "r"
)

const (
	pendingPerPage = 5
	usersLimit     = 20
)

func reviewKeyboard(accountID, txID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", reviewData(cbReview, reviewApprove, accountID, txID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", reviewData(cbReview, reviewReject, accountID, txID)),
		),
	)
}

func confirmKeyboard(action, accountID, txID string) tgbotapi.InlineKeyboardMarkup {
	label := "✅ Yes, approve"
	if action == reviewReject {
		label = "❌ Yes, reject"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, reviewData(cbReviewConfirm, action, accountID, txID)),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Back", cbReviewBack+accountID+":"+txID),
		),
	)
}

func reviewData(prefix, action, accountID, txID string) string {
	return prefix + action + ":" + accountID + ":" + txID
}

// parseReviewData splits "<action>:<accountID>:<txID>".
func parseReviewData(data string) (action, accountID, txID string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	if parts[0] != reviewApprove && parts[0] != reviewReject {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		b.answerCallback(callback.ID, "")
		return
	}
	data := callback.Data
	b.logger.Debugf("Callback %q in chat %d", data, callback.Message.Chat.ID)

	switch {
	case strings.HasPrefix(data, "dep_"):
		b.handleDepositCallback(ctx, callback)
		return
	case strings.HasPrefix(data, "wd_"):
		b.handleWithdrawCallback(ctx, callback)
		return
	}

	if !b.isAdmin(callback.Message.Chat.ID) && !b.isAdmin(callback.From.ID) {
		b.answerCallback(callback.ID, "This action is available to the administrator only.")
		return
	}
	b.handleAdminCallback(ctx, callback)
}

func (b *Bot) handleAdminCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID
	data := callback.Data

	switch {
	case strings.HasPrefix(data, cbPendingPage):
		page, err := strconv.Atoi(strings.TrimPrefix(data, cbPendingPage))
		if err != nil {
			b.logger.Errorf("Invalid page number in callback: %v", err)
			b.answerCallback(callback.ID, "Invalid page.")
			return
		}
		b.answerCallback(callback.ID, "")
		b.sendPendingPage(ctx, chatID, page)

	case strings.HasPrefix(data, cbReviewConfirm):
		action, accountID, txID, ok := parseReviewData(strings.TrimPrefix(data, cbReviewConfirm))
		if !ok {
			b.answerCallback(callback.ID, "Invalid button data.")
			return
		}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
		}))
		b.answerCallback(callback.ID, b.processReview(ctx, chatID, action, accountID, txID))

	case strings.HasPrefix(data, cbReviewBack):
		parts := strings.SplitN(strings.TrimPrefix(data, cbReviewBack), ":", 2)
		if len(parts) != 2 {
			b.answerCallback(callback.ID, "Invalid button data.")
			return
		}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, reviewKeyboard(parts[0], parts[1])))
		b.answerCallback(callback.ID, "")

	case strings.HasPrefix(data, cbReview):
		action, accountID, txID, ok := parseReviewData(strings.TrimPrefix(data, cbReview))
		if !ok {
			b.answerCallback(callback.ID, "Invalid button data.")
			return
		}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, confirmKeyboard(action, accountID, txID)))
		b.answerCallback(callback.ID, "")

	default:
		b.logger.Warnf("Unknown admin callback %q", data)
		b.answerCallback(callback.ID, "")
	}
}

// processReview applies the decision and returns the short callback answer.
func (b *Bot) processReview(ctx context.Context, chatID int64, action, accountID, txID string) string {
	status := models.StatusCompleted
	if action == reviewReject {
		status = models.StatusRejected
	}

	acc, err := b.ledger.FindAccountByID(ctx, accountID)
	if err != nil || acc == nil {
		b.logger.Errorf("Review of %s: account %s not found: %v", txID, accountID, err)
		b.sendMessage(chatID, fmt.Sprintf("❌ Account of `%s` was not found.", inCode(txID)), nil)
		return "Account not found."
	}

	tx, err := b.ledger.ReviewTransaction(ctx, acc.Email, txID, status)
	switch {
	case err == nil:
	case apperr.IsSessionSyncError(err):
		b.logger.Warnf("Transaction %s reviewed but session resync failed: %v", txID, err)
	case errors.Is(err, apperr.ErrInvalidTransition):
		b.sendMessage(chatID, fmt.Sprintf("ℹ️ `%s` was already reviewed.", inCode(txID)), nil)
		return "Already reviewed."
	case errors.Is(err, apperr.ErrInsufficientFunds):
		b.sendMessage(chatID, fmt.Sprintf("❌ `%s` cannot be approved: %s has insufficient funds.",
			inCode(txID), escape(acc.Email)), nil)
		return "Insufficient funds."
	case apperr.IsNotFound(err):
		b.sendMessage(chatID, fmt.Sprintf("❌ Transaction `%s` was not found.", inCode(txID)), nil)
		return "Not found."
	default:
		b.logger.Errorf("Failed to review %s of %s: %v", txID, acc.Email, err)
		b.sendMessage(chatID, fmt.Sprintf("❌ Failed to review `%s`. Please try again.", inCode(txID)), nil)
		return "Review failed."
	}

	b.logger.Infof("Admin chat %d marked %s of %s %s", chatID, txID, acc.Email, status)
	b.sendMessage(chatID, fmt.Sprintf("%s %s `%s` of %s: %s.",
		statusIcon(tx.Status), tx.Type, inCode(tx.ID), escape(acc.Email), tx.Status), nil)
	b.notifyReviewOutcome(ctx, acc.Email, tx)

	if status == models.StatusCompleted {
		return "Approved."
	}
	return "Rejected."
}

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, command, args string) bool {
	switch command {
	case "/pending":
		b.sendPendingPage(ctx, chatID, 0)
	case "/stats":
		b.sendStats(ctx, chatID)
	case "/users":
		b.sendUsers(ctx, chatID, strings.TrimSpace(args))
	default:
		return false
	}
	return true
}

func degradedNote(err error) string {
	if err != nil && apperr.IsStoreUnavailable(err) {
		return "\n⚠️ Store unavailable, showing the last known data."
	}
	return ""
}

func (b *Bot) sendPendingPage(ctx context.Context, chatID int64, page int) {
	rows, err := b.views.Pending(ctx)
	if err != nil && !apperr.IsStoreUnavailable(err) {
		b.logger.Errorf("Failed to list pending transactions: %v", err)
		b.sendMessage(chatID, "❌ Failed to load pending transactions.", nil)
		return
	}
	if len(rows) == 0 {
		b.sendMessage(chatID, "✅ Nothing is waiting for review."+degradedNote(err), nil)
		return
	}

	start := page * pendingPerPage
	if start >= len(rows) || start < 0 {
		start = 0
		page = 0
	}
	end := start + pendingPerPage
	if end > len(rows) {
		end = len(rows)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Pending review (page %d of %d):\n\n", page+1, (len(rows)-1)/pendingPerPage+1))
	keyboardRows := make([][]tgbotapi.InlineKeyboardButton, 0, end-start+1)
	for i := start; i < end; i++ {
		r := rows[i]
		sb.WriteString(fmt.Sprintf(
			"#%d %s\n👤 %s (%s)\n💰 `%s %s` via %s\n🗓 %s\n🆔 `%s`\n\n",
			i+1, r.Type, escape(r.Name), escape(r.Email),
			utils.FormatMoney(r.Amount), r.Currency, r.Method, r.Date, inCode(r.ID),
		))
		if r.OwnerID == "" || r.ID == "" {
			continue
		}
		keyboardRows = append(keyboardRows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d", i+1), reviewData(cbReview, reviewApprove, r.OwnerID, r.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("❌ #%d", i+1), reviewData(cbReview, reviewReject, r.OwnerID, r.ID)),
		))
	}
	sb.WriteString(degradedNote(err))

	if len(rows) > pendingPerPage {
		paginationRow := make([]tgbotapi.InlineKeyboardButton, 0, 2)
		if page > 0 {
			paginationRow = append(paginationRow, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("%s%d", cbPendingPage, page-1)))
		}
		if end < len(rows) {
			paginationRow = append(paginationRow, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", cbPendingPage, page+1)))
		}
		if len(paginationRow) > 0 {
			keyboardRows = append(keyboardRows, paginationRow)
		}
	}

	var markup interface{}
	if len(keyboardRows) > 0 {
		markup = tgbotapi.NewInlineKeyboardMarkup(keyboardRows...)
	}
	b.sendMessage(chatID, sb.String(), markup)
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	st, err := b.views.Stats(ctx)
	if err != nil && !apperr.IsStoreUnavailable(err) {
		b.logger.Errorf("Failed to compute stats: %v", err)
		b.sendMessage(chatID, "❌ Failed to load statistics.", nil)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"📊 *Statistics*\n\n"+
			"👥 Users: %d (active %d)\n"+
			"⬇️ Deposits: `%s`\n"+
			"⬆️ Withdrawals: `%s`\n"+
			"⏳ Pending withdrawals: %d\n"+
			"📈 Invested: `%s`\n"+
			"💹 Profit: `%s`%s",
		st.TotalUsers, st.ActiveUsers,
		utils.FormatMoney(st.TotalDeposits), utils.FormatMoney(st.TotalWithdrawals),
		st.PendingWithdrawals,
		utils.FormatMoney(st.TotalInvested), utils.FormatMoney(st.TotalProfit),
		degradedNote(err),
	), nil)
}

// sendUsers filters the loaded user collection. A bare /users reloads it.
func (b *Bot) sendUsers(ctx context.Context, chatID int64, term string) {
	b.stateMutex.Lock()
	search := b.userSearch
	b.stateMutex.Unlock()

	var err error
	if search == nil || term == "" {
		search, err = b.views.Search(ctx)
		if err != nil && !apperr.IsStoreUnavailable(err) {
			b.logger.Errorf("Failed to list users: %v", err)
			b.sendMessage(chatID, "❌ Failed to load users.", nil)
			return
		}
		b.stateMutex.Lock()
		b.userSearch = search
		b.stateMutex.Unlock()
	}
	users := search.SetTerm(term)
	if len(users) == 0 {
		b.sendMessage(chatID, "No users found."+degradedNote(err), nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 Users (%d):\n\n", len(users)))
	for i, u := range users {
		if i == usersLimit {
			sb.WriteString(fmt.Sprintf("…and %d more. Narrow the search with /users <term>.\n", len(users)-usersLimit))
			break
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n💰 `%s` USD, joined %s\n\n",
			statusIcon(u.Status), escape(u.Name), escape(u.Email), utils.FormatMoney(u.Balance), u.Joined))
	}
	sb.WriteString(degradedNote(err))
	b.sendMessage(chatID, sb.String(), nil)
}
