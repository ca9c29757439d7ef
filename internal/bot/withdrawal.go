package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/invest_bot/internal/deposit"
	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const (
	cbWithdrawMethod  = "wd_method:"
	cbWithdrawConfirm = "wd_confirm"
	cbWithdrawCancel  = "wd_cancel"
)

const withdrawalCurrency = "USD"

func (b *Bot) handleWithdrawRequest(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
	acc, err := b.ledger.FindAccount(ctx, sess.Email)
	if err != nil || acc == nil {
		b.logger.Errorf("Failed to load account %s for withdrawal: %v", sess.Email, err)
		b.sendMessage(chatID, "❌ Something went wrong. Please try again later.", GetMainMenu(true))
		return
	}

	available := service.AvailableBalance(acc)
	if !available.IsPositive() {
		b.sendMessage(chatID, "❌ You have no funds available for withdrawal.", GetMainMenu(true))
		return
	}

	b.resetDialog(ctx, chatID)
	b.setState(chatID, stateAwaitingWithdrawAmount)
	b.sendMessage(chatID, fmt.Sprintf(
		"💰 Available for withdrawal: `%s` USD\n\nEnter the amount to withdraw:",
		utils.FormatMoney(available)), tgbotapi.NewRemoveKeyboard(true))
}

func (b *Bot) handleWithdrawAmount(ctx context.Context, chatID int64, sess *models.Session, text string) {
	amount, err := deposit.ParseAmount(text)
	if err != nil {
		b.sendMessage(chatID, "❌ Invalid amount. Enter a positive number:", nil)
		return
	}

	acc, err := b.ledger.FindAccount(ctx, sess.Email)
	if err != nil || acc == nil {
		b.setState(chatID, stateDefault)
		b.logger.Errorf("Failed to load account %s for withdrawal: %v", sess.Email, err)
		b.sendMessage(chatID, "❌ Something went wrong. Please try again later.", GetMainMenu(true))
		return
	}

	pending := service.PendingWithdrawals(acc)
	available := service.AvailableBalance(acc)
	if amount.GreaterThan(available) {
		b.setState(chatID, stateDefault)
		b.sendMessage(chatID, fmt.Sprintf(
			"❌ Not enough funds.\n\n"+
				"Balance: `%s` USD\n"+
				"Already requested: `%s` USD\n"+
				"----------------------------------\n"+
				"*Available: `%s` USD*\n\n"+
				"You asked for `%s` USD.",
			utils.FormatMoney(acc.Balance), utils.FormatMoney(pending),
			utils.FormatMoney(available), utils.FormatMoney(amount)), GetMainMenu(true))
		return
	}

	b.setUserActionData(chatID, keyAmount, amount.String())
	b.setState(chatID, stateDefault)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(deposit.Methods)+1)
	for _, m := range deposit.Methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Label(), cbWithdrawMethod+string(m)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbWithdrawCancel)))
	b.sendMessage(chatID, "How do you want to receive the funds?", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleWithdrawCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	data := callback.Data

	b.answerCallback(callback.ID, "")
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, callback.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	}))

	switch {
	case strings.HasPrefix(data, cbWithdrawMethod):
		method, err := deposit.ParseMethod(strings.TrimPrefix(data, cbWithdrawMethod))
		amountStr := b.getUserActionData(chatID, keyAmount)
		if err != nil || amountStr == "" {
			b.clearUserActionData(chatID)
			b.sendMessage(chatID, "❌ This request has expired. Start again with /withdraw.", b.menuFor(ctx, chatID))
			return
		}
		b.setUserActionData(chatID, keyMethod, string(method))

		confirmKeyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", cbWithdrawConfirm),
				tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbWithdrawCancel),
			),
		)
		b.sendMessage(chatID, fmt.Sprintf(
			"Confirm the withdrawal:\n\n➡️ Amount: `%s` USD\n🏦 Via: %s",
			utils.FormatMoney(decimal.RequireFromString(amountStr)), method.Label()), confirmKeyboard)

	case data == cbWithdrawConfirm:
		b.withSession(b.confirmWithdrawal)(ctx, chatID)

	case data == cbWithdrawCancel:
		b.clearUserActionData(chatID)
		b.sendMessage(chatID, "❌ Withdrawal cancelled.", b.menuFor(ctx, chatID))
	}
}

func (b *Bot) confirmWithdrawal(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
	amountStr := b.getUserActionData(chatID, keyAmount)
	methodStr := b.getUserActionData(chatID, keyMethod)
	b.clearUserActionData(chatID)

	amount, err := decimal.NewFromString(amountStr)
	method, mErr := deposit.ParseMethod(methodStr)
	if err != nil || mErr != nil {
		b.sendMessage(chatID, "❌ This request has expired. Start again with /withdraw.", GetMainMenu(true))
		return
	}

	tx, err := b.ledger.RequestWithdrawal(ctx, sess.Email, amount, withdrawalCurrency, method.Label())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInsufficientFunds):
			b.sendMessage(chatID, "❌ Not enough funds available for this withdrawal.", GetMainMenu(true))
		default:
			b.logger.Errorf("Failed to request withdrawal for %s: %v", sess.Email, err)
			b.sendMessage(chatID, "❌ Could not create the withdrawal. Please try again later.", GetMainMenu(true))
		}
		return
	}

	b.sendMessage(chatID, fmt.Sprintf(
		"✅ Withdrawal `%s` of `%s` USD is pending review.", inCode(tx.ID), utils.FormatMoney(tx.Amount)), GetMainMenu(true))
	b.notifyAdminAboutWithdrawal(ctx, sess.Email, tx)
}
