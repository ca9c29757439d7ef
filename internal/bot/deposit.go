package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/invest_bot/internal/deposit"
	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbDepositMethod = "dep_method:"
	cbDepositPaid   = "dep_paid"
	cbDepositCancel = "dep_cancel"
)

const maxProofSize = 10 << 20

var proofMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

func (b *Bot) handleDepositRequest(ctx context.Context, chatID int64, mgr *session.Manager, _ *models.Session) {
	b.resetDialog(ctx, chatID)
	b.deposits.For(chatID, mgr)
	b.setState(chatID, stateAwaitingDepositAmount)
	b.sendMessage(chatID,
		"Enter the amount to deposit, optionally followed by a currency.\nExamples: `100`, `250 EUR`.\n\n/cancel to stop.",
		tgbotapi.NewRemoveKeyboard(true))
}

// splitAmount accepts "100", "100 eur" and "eur 100".
func splitAmount(text string) (string, string) {
	fields := strings.Fields(text)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	if _, err := deposit.ParseAmount(fields[0]); err == nil {
		return fields[0], fields[1]
	}
	return fields[1], fields[0]
}

func (b *Bot) handleDepositAmount(ctx context.Context, chatID int64, text string) {
	wf, ok := b.deposits.Active(chatID)
	if !ok {
		b.setState(chatID, stateDefault)
		b.sendMessage(chatID, "The deposit has expired. Start again with /deposit.", b.menuFor(ctx, chatID))
		return
	}

	value, currency := splitAmount(text)
	if err := wf.SetAmount(value, currency); err != nil {
		var vErr *apperr.ValidationError
		if errors.As(err, &vErr) {
			b.sendMessage(chatID, "❌ "+escape(vErr.Message)+". Try again:", nil)
			return
		}
		b.logger.Errorf("Failed to set deposit amount in chat %d: %v", chatID, err)
		b.sendMessage(chatID, "Something went wrong. Start again with /deposit.", b.menuFor(ctx, chatID))
		return
	}

	b.setState(chatID, stateDefault)
	snap := wf.Snapshot()

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(deposit.Methods)+1)
	for _, m := range deposit.Methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Label(), cbDepositMethod+string(m)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbDepositCancel)))

	b.sendMessage(chatID,
		fmt.Sprintf("Deposit of `%s %s`. Choose a payment method:", utils.FormatMoney(snap.Amount), snap.Currency),
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleDepositCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	data := callback.Data

	wf, ok := b.deposits.Active(chatID)
	if !ok {
		b.answerCallback(callback.ID, "This deposit has expired.")
		return
	}
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, callback.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	}))

	switch {
	case strings.HasPrefix(data, cbDepositMethod):
		b.answerCallback(callback.ID, "")
		b.handleDepositMethod(ctx, chatID, wf, strings.TrimPrefix(data, cbDepositMethod))
	case data == cbDepositPaid:
		b.answerCallback(callback.ID, "")
		b.handleDepositPaid(ctx, chatID, wf)
	case data == cbDepositCancel:
		b.answerCallback(callback.ID, "")
		b.handleCancel(ctx, chatID)
	}
}

func (b *Bot) handleDepositMethod(ctx context.Context, chatID int64, wf *deposit.Workflow, raw string) {
	method, err := deposit.ParseMethod(raw)
	if err != nil {
		b.sendMessage(chatID, "❌ Unknown payment method.", nil)
		return
	}
	address, err := wf.SelectMethod(method)
	if err != nil {
		b.logger.Warnf("Method %s not available in chat %d: %v", method, chatID, err)
		b.sendMessage(chatID, fmt.Sprintf("❌ %s deposits are not available right now. Choose another method with /deposit.", method.Label()), nil)
		return
	}

	snap := wf.Snapshot()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Send `%s %s` via *%s* to:\n\n`%s`\n", utils.FormatMoney(snap.Amount), snap.Currency, method.Label(), address))
	if estimate, ok := wf.Estimate(ctx, method.Asset()); ok {
		sb.WriteString(fmt.Sprintf("\n≈ `%s` %s at the current rate.\n", utils.FormatAsset(estimate), method.Asset()))
	}
	sb.WriteString("\nPress the button below once the payment is sent.")

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ I've paid", cbDepositPaid),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbDepositCancel),
		),
	)
	b.sendMessage(chatID, sb.String(), keyboard)
}

func (b *Bot) handleDepositPaid(ctx context.Context, chatID int64, wf *deposit.Workflow) {
	tx, err := wf.ConfirmPaymentMade(ctx)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrUnauthenticated):
			b.resetDialog(ctx, chatID)
			b.sendMessage(chatID, "Your session has ended. Please log in and start again.", GetMainMenu(false))
		case apperr.IsValidationError(err):
			b.sendMessage(chatID, "❌ The deposit is incomplete. Start again with /deposit.", nil)
		default:
			b.logger.Errorf("Failed to log deposit in chat %d: %v", chatID, err)
			b.sendMessage(chatID, "Could not log your deposit. Please try again.", nil)
		}
		return
	}

	b.setState(chatID, stateAwaitingDepositProof)
	b.sendMessage(chatID, fmt.Sprintf(
		"🧾 Deposit `%s` is logged and pending.\n\nSend a screenshot or PDF of the payment as proof (JPEG, PNG, WEBP or PDF, up to 10 MB).",
		inCode(tx.ID)), nil)
}

// proofFromMessage picks the uploaded file, rejecting unsupported types and
// oversized files.
func proofFromMessage(msg *tgbotapi.Message) (deposit.Proof, error) {
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		if photo.FileSize > maxProofSize {
			return deposit.Proof{}, apperr.NewValidationError("proof", "file is larger than 10 MB")
		}
		return deposit.Proof{
			FileID:   photo.FileID,
			FileName: photo.FileUniqueID + ".jpg",
			MimeType: "image/jpeg",
			Size:     int64(photo.FileSize),
			IsPhoto:  true,
		}, nil
	case msg.Document != nil:
		doc := msg.Document
		if !proofMimeTypes[strings.ToLower(doc.MimeType)] {
			return deposit.Proof{}, apperr.NewValidationError("proof", "only JPEG, PNG, WEBP or PDF files are accepted")
		}
		if doc.FileSize > maxProofSize {
			return deposit.Proof{}, apperr.NewValidationError("proof", "file is larger than 10 MB")
		}
		return deposit.Proof{
			FileID:   doc.FileID,
			FileName: doc.FileName,
			MimeType: doc.MimeType,
			Size:     int64(doc.FileSize),
		}, nil
	}
	return deposit.Proof{}, apperr.NewValidationError("proof", "send a photo or a document")
}

func (b *Bot) handleDepositProof(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	wf, ok := b.deposits.Active(chatID)
	if !ok {
		b.setState(chatID, stateDefault)
		b.sendMessage(chatID, "There is no deposit waiting for proof.", b.menuFor(ctx, chatID))
		return
	}

	proof, err := proofFromMessage(msg)
	if err != nil {
		reason := "unsupported file"
		var vErr *apperr.ValidationError
		if errors.As(err, &vErr) {
			reason = vErr.Message
		}
		b.sendMessage(chatID, "❌ "+escape(reason)+". Try again or /cancel.", nil)
		return
	}

	tx, err := wf.SubmitProof(ctx, proof)
	if err != nil {
		b.logger.Errorf("Failed to submit proof in chat %d: %v", chatID, err)
		b.sendMessage(chatID, "Could not deliver your proof. Please send it again.", nil)
		return
	}

	b.setState(chatID, stateDefault)
	b.deposits.Drop(chatID)
	b.sendMessage(chatID, fmt.Sprintf(
		"✅ Proof received. Deposit `%s` of `%s %s` is pending review; your balance is updated once it is approved.",
		inCode(tx.ID), utils.FormatMoney(tx.Amount), tx.Currency), GetMainMenu(true))
}
