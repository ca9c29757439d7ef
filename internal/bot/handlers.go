package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const historyLimit = 10

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	b.logger.Infof("Processing message in chat %d", chatID)

	if msg.IsCommand() {
		switch msg.Command() {
		case "cancel":
			b.handleCancel(ctx, chatID)
			return
		case "start":
			b.resetDialog(ctx, chatID)
		}
	} else {
		switch b.getUserState(chatID) {
		case stateAwaitingRegisterEmail:
			b.handleRegisterEmail(ctx, chatID, text)
			return
		case stateAwaitingRegisterName:
			b.handleRegisterName(ctx, chatID, text)
			return
		case stateAwaitingRegisterPass:
			b.deleteMessage(chatID, msg.MessageID)
			b.handleRegisterPassword(ctx, chatID, text)
			return
		case stateAwaitingLoginEmail:
			b.handleLoginEmail(ctx, chatID, text)
			return
		case stateAwaitingLoginPass:
			b.deleteMessage(chatID, msg.MessageID)
			b.handleLoginPassword(ctx, chatID, text)
			return
		case stateAwaitingDepositAmount:
			b.handleDepositAmount(ctx, chatID, text)
			return
		case stateAwaitingDepositProof:
			b.handleDepositProof(ctx, msg)
			return
		case stateAwaitingWithdrawAmount:
			b.withSession(func(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
				b.handleWithdrawAmount(ctx, chatID, sess, text)
			})(ctx, chatID)
			return
		}
	}

	command := text
	if msg.IsCommand() {
		command = "/" + msg.Command()
	}

	if b.isAdmin(chatID) && b.handleAdminCommand(ctx, chatID, command, msg.CommandArguments()) {
		return
	}

	switch command {
	case "/start":
		b.handleStart(ctx, chatID)
	case "/register", btnRegister:
		b.setState(chatID, stateAwaitingRegisterEmail)
		b.sendMessage(chatID, "Enter your email:", tgbotapi.NewRemoveKeyboard(true))
	case "/login", btnLogin:
		b.setState(chatID, stateAwaitingLoginEmail)
		b.sendMessage(chatID, "Enter your email:", tgbotapi.NewRemoveKeyboard(true))
	case "/logout", btnLogout:
		b.handleLogout(ctx, chatID)
	case "/balance", btnBalance:
		b.withSession(b.handleBalanceRequest)(ctx, chatID)
	case "/history", btnHistory:
		b.withSession(b.handleHistoryRequest)(ctx, chatID)
	case "/investments", btnInvestments:
		b.withSession(b.handleInvestmentsRequest)(ctx, chatID)
	case "/deposit", btnDeposit:
		b.withSession(b.handleDepositRequest)(ctx, chatID)
	case "/withdraw", btnWithdraw:
		b.withSession(b.handleWithdrawRequest)(ctx, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Please use the menu.", b.menuFor(ctx, chatID))
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	welcomeText := "Welcome! Register or log in to deposit, withdraw and follow your investments."
	if sess, _ := b.sessions.For(chatID).Current(ctx); sess != nil {
		welcomeText = fmt.Sprintf("Welcome back, %s!", escape(sess.Name))
	}
	b.sendMessage(chatID, welcomeText, b.menuFor(ctx, chatID))
}

// resetDialog drops any half-finished dialog. A deposit that was already
// logged stays pending.
func (b *Bot) resetDialog(_ context.Context, chatID int64) bool {
	b.setState(chatID, stateDefault)
	b.clearUserActionData(chatID)

	logged := false
	if wf, ok := b.deposits.Active(chatID); ok {
		logged = wf.Cancel()
		b.deposits.Drop(chatID)
	}
	return logged
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	if b.resetDialog(ctx, chatID) {
		b.sendMessage(chatID, "Cancelled. Your deposit was already logged and stays pending review.", b.menuFor(ctx, chatID))
		return
	}
	b.sendMessage(chatID, "Cancelled.", b.menuFor(ctx, chatID))
}

func (b *Bot) handleRegisterEmail(ctx context.Context, chatID int64, email string) {
	b.setUserActionData(chatID, keyEmail, email)
	b.setState(chatID, stateAwaitingRegisterName)
	b.sendMessage(chatID, "Enter your name:", nil)
}

func (b *Bot) handleRegisterName(ctx context.Context, chatID int64, name string) {
	b.setUserActionData(chatID, keyName, name)
	b.setState(chatID, stateAwaitingRegisterPass)
	b.sendMessage(chatID, "Choose a password (at least 6 characters):", nil)
}

func (b *Bot) handleRegisterPassword(ctx context.Context, chatID int64, password string) {
	email := b.getUserActionData(chatID, keyEmail)
	name := b.getUserActionData(chatID, keyName)
	mgr := b.sessions.For(chatID)

	if _, err := mgr.Register(ctx, email, name, password); err != nil {
		var vErr *apperr.ValidationError
		switch {
		case errors.As(err, &vErr) && vErr.Field == "password":
			b.sendMessage(chatID, "❌ Password is too short. Choose another one:", nil)
			return
		case errors.As(err, &vErr):
			b.sendMessage(chatID, "❌ "+escape(vErr.Message)+". Start again with /register.", GetMainMenu(false))
		case apperr.IsDuplicate(err):
			b.sendMessage(chatID, "❌ An account with this email already exists. Use /login.", GetMainMenu(false))
		default:
			b.logger.Errorf("Failed to register %s: %v", email, err)
			b.sendMessage(chatID, "Registration failed. Please try again later.", GetMainMenu(false))
		}
		b.setState(chatID, stateDefault)
		b.clearUserActionData(chatID)
		return
	}

	b.clearUserActionData(chatID)
	sess, err := mgr.SignIn(ctx, email, password)
	if err != nil {
		b.setState(chatID, stateDefault)
		b.logger.Errorf("Failed to sign in %s after registration: %v", email, err)
		b.sendMessage(chatID, "✅ Account created. Please log in.", GetMainMenu(false))
		return
	}
	b.setState(chatID, stateDefault)
	b.sendMessage(chatID, fmt.Sprintf("✅ Welcome, %s! Your account is ready.", escape(sess.Name)), GetMainMenu(true))
}

func (b *Bot) handleLoginEmail(ctx context.Context, chatID int64, email string) {
	b.setUserActionData(chatID, keyEmail, email)
	b.setState(chatID, stateAwaitingLoginPass)
	b.sendMessage(chatID, "Enter your password:", nil)
}

func (b *Bot) handleLoginPassword(ctx context.Context, chatID int64, password string) {
	email := b.getUserActionData(chatID, keyEmail)
	b.clearUserActionData(chatID)
	b.setState(chatID, stateDefault)

	sess, err := b.sessions.For(chatID).SignIn(ctx, email, password)
	if err != nil {
		if session.IsCredentialError(err) {
			b.sendMessage(chatID, "❌ Wrong email or password.", GetMainMenu(false))
			return
		}
		b.logger.Errorf("Sign-in of %s failed: %v", email, err)
		b.sendMessage(chatID, "Login failed. Please try again later.", GetMainMenu(false))
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Logged in as %s.", escape(sess.Email)), GetMainMenu(true))
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	b.resetDialog(ctx, chatID)
	if err := b.sessions.For(chatID).SignOut(ctx); err != nil {
		b.logger.Errorf("Failed to sign out chat %d: %v", chatID, err)
		b.sendMessage(chatID, "Logout failed. Please try again later.", nil)
		return
	}
	b.sendMessage(chatID, "You are logged out.", GetMainMenu(false))
}

func (b *Bot) handleBalanceRequest(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
	msgText := fmt.Sprintf("Your balance: `%s` USD", utils.FormatMoney(sess.Balance))

	acc, err := b.ledger.FindAccount(ctx, sess.Email)
	if err == nil && acc != nil {
		if pending := service.PendingWithdrawals(acc); pending.IsPositive() {
			msgText += fmt.Sprintf("\nRequested for withdrawal: `%s` USD\nAvailable: `%s` USD",
				utils.FormatMoney(pending), utils.FormatMoney(service.AvailableBalance(acc)))
		}
	}
	b.sendMessage(chatID, msgText, GetMainMenu(true))
}

func (b *Bot) handleHistoryRequest(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
	txs, err := b.ledger.GetUserTransactions(ctx, sess.Email)
	if err != nil {
		b.logger.Errorf("Failed to load history of %s: %v", sess.Email, err)
		b.sendMessage(chatID, "Could not load your history. Please try again later.", GetMainMenu(true))
		return
	}
	if len(txs) == 0 {
		b.sendMessage(chatID, "No transactions yet.", GetMainMenu(true))
		return
	}

	if len(txs) > historyLimit {
		txs = txs[len(txs)-historyLimit:]
	}
	var sb strings.Builder
	sb.WriteString("📜 Latest transactions:\n\n")
	for i := len(txs) - 1; i >= 0; i-- {
		sb.WriteString(formatTransaction(txs[i]))
		sb.WriteString("\n")
	}
	b.sendMessage(chatID, sb.String(), GetMainMenu(true))
}

func (b *Bot) handleInvestmentsRequest(ctx context.Context, chatID int64, _ *session.Manager, sess *models.Session) {
	investments, err := b.ledger.GetUserInvestments(ctx, sess.Email)
	if err != nil {
		b.logger.Errorf("Failed to load investments of %s: %v", sess.Email, err)
		b.sendMessage(chatID, "Could not load your investments. Please try again later.", GetMainMenu(true))
		return
	}
	if len(investments) == 0 {
		b.sendMessage(chatID, "You have no investments yet.", GetMainMenu(true))
		return
	}

	var sb strings.Builder
	sb.WriteString("📈 Your investments:\n\n")
	for _, inv := range investments {
		sb.WriteString(formatInvestment(inv))
		sb.WriteString("\n")
	}
	b.sendMessage(chatID, sb.String(), GetMainMenu(true))
}
