package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/invest_bot/internal/deposit"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ProofRefPrefix marks proof references that are Telegram file ids.
const ProofRefPrefix = "tg:"

// ProofForwarder hands deposit proofs to the admin chat together with the
// review buttons.
type ProofForwarder struct {
	api         Sender
	ledger      Ledger
	adminChatID int64
	logger      *utils.Logger
}

func NewProofForwarder(api Sender, ledger Ledger, adminChatID int64, logger *utils.Logger) *ProofForwarder {
	return &ProofForwarder{api: api, ledger: ledger, adminChatID: adminChatID, logger: logger}
}

func (p *ProofForwarder) Forward(ctx context.Context, owner string, tx models.Transaction, proof deposit.Proof) (string, error) {
	ref := ProofRefPrefix + proof.FileID
	if p.adminChatID == 0 {
		p.logger.Warnf("No admin chat configured, proof for %s stored without forwarding", tx.ID)
		return ref, nil
	}

	acc, err := p.ledger.FindAccount(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", owner, err)
	}
	if acc == nil {
		return "", errors.New("owner account not found")
	}

	caption := fmt.Sprintf(
		"🧾 *New deposit*\n\n"+
			"👤 *User:* %s (%s)\n"+
			"💰 *Amount:* `%s %s`\n"+
			"🏦 *Method:* %s\n"+
			"🆔 *ID:* `%s`",
		escape(acc.Name), escape(acc.Email),
		utils.FormatMoney(tx.Amount), tx.Currency,
		tx.Method, inCode(tx.ID),
	)
	keyboard := reviewKeyboard(acc.ID, tx.ID)

	var msg tgbotapi.Chattable
	if proof.IsPhoto {
		photo := tgbotapi.NewPhoto(p.adminChatID, tgbotapi.FileID(proof.FileID))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyMarkup = keyboard
		msg = photo
	} else {
		doc := tgbotapi.NewDocument(p.adminChatID, tgbotapi.FileID(proof.FileID))
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeMarkdown
		doc.ReplyMarkup = keyboard
		msg = doc
	}

	if _, err := p.api.Send(msg); err != nil {
		return "", fmt.Errorf("forward proof to admin chat: %w", err)
	}
	p.logger.Infof("Proof for %s of %s forwarded to admin chat", tx.ID, owner)
	return ref, nil
}
