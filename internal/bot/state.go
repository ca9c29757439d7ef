package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	stateDefault                = ""
	stateAwaitingRegisterEmail  = "awaiting_register_email"
	stateAwaitingRegisterName   = "awaiting_register_name"
	stateAwaitingRegisterPass   = "awaiting_register_password"
	stateAwaitingLoginEmail     = "awaiting_login_email"
	stateAwaitingLoginPass      = "awaiting_login_password"
	stateAwaitingDepositAmount  = "awaiting_deposit_amount"
	stateAwaitingDepositProof   = "awaiting_deposit_proof"
	stateAwaitingWithdrawAmount = "awaiting_withdraw_amount"
)

const (
	keyEmail  = "email"
	keyName   = "name"
	keyAmount = "amount"
	keyMethod = "method"
)

func (b *Bot) sendMessage(chatID int64, text string, replyMarkup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.API.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message: %v", err)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.API.Send(c); err != nil {
		b.logger.Errorf("Failed to send %T: %v", c, err)
	}
}

func (b *Bot) answerCallback(callbackID string, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.API.Request(callback); err != nil {
		b.logger.Errorf("Failed to answer callback: %v", err)
	}
}

// deleteMessage removes a chat message, used to drop typed passwords.
func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.API.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Debugf("Failed to delete message %d in %d: %v", messageID, chatID, err)
	}
}

func (b *Bot) isAdmin(chatID int64) bool {
	return b.adminChatID != 0 && chatID == b.adminChatID
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// inCode prepares s for a `code` span. Escapes are shown verbatim inside
// entities, so only backticks are replaced.
func inCode(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

func (b *Bot) setState(chatID int64, state string) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	if state == stateDefault {
		delete(b.userStates, chatID)
	} else {
		b.userStates[chatID] = state
	}
	b.logger.Debugf("Set state for chat %d: %s", chatID, state)
}

func (b *Bot) getUserState(chatID int64) string {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	return b.userStates[chatID]
}

func (b *Bot) setUserActionData(chatID int64, key, value string) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	data, ok := b.userActionData[chatID]
	if !ok {
		data = make(map[string]string)
		b.userActionData[chatID] = data
	}
	data[key] = value
}

func (b *Bot) getUserActionData(chatID int64, key string) string {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	return b.userActionData[chatID][key]
}

func (b *Bot) clearUserActionData(chatID int64) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	delete(b.userActionData, chatID)
}
