package bot

import (
	"context"
	"sync"

	"github.com/Fi44er/invest_bot/internal/admin"
	"github.com/Fi44er/invest_bot/internal/deposit"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// Sender is the part of tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Ledger interface {
	FindAccount(ctx context.Context, email string) (*models.Account, error)
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
	RequestWithdrawal(ctx context.Context, email string, amount decimal.Decimal, currency, method string) (*models.Transaction, error)
	ReviewTransaction(ctx context.Context, email, txID, status string) (*models.Transaction, error)
	GetUserTransactions(ctx context.Context, email string) ([]models.Transaction, error)
	GetUserInvestments(ctx context.Context, email string) ([]models.Investment, error)
}

type AdminViews interface {
	Pending(ctx context.Context) ([]admin.TransactionRow, error)
	Stats(ctx context.Context) (admin.Stats, error)
	Search(ctx context.Context) (*admin.Search, error)
}

type Bot struct {
	API            Sender
	ledger         Ledger
	views          AdminViews
	sessions       *session.Registry
	deposits       *deposit.Manager
	logger         *utils.Logger
	adminChatID    int64
	userSearch     *admin.Search
	userStates     map[int64]string
	userActionData map[int64]map[string]string
	stateMutex     *sync.Mutex
}

func NewBot(
	api Sender,
	ledger Ledger,
	views AdminViews,
	sessions *session.Registry,
	deposits *deposit.Manager,
	adminChatID int64,
	logger *utils.Logger,
) *Bot {
	return &Bot{
		API:            api,
		ledger:         ledger,
		views:          views,
		sessions:       sessions,
		deposits:       deposits,
		logger:         logger,
		adminChatID:    adminChatID,
		userStates:     make(map[int64]string),
		userActionData: make(map[int64]map[string]string),
		stateMutex:     &sync.Mutex{},
	}
}

// Start handles updates until ctx is done or the channel is closed.
func (b *Bot) Start(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.logger.Info("Starting bot...")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.logger.Debugf("Received update %d", update.UpdateID)
			if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, update.CallbackQuery)
				continue
			}
			if update.Message != nil {
				b.HandleUpdate(ctx, update)
			}
		}
	}
}

const (
	btnRegister    = "📝 Register"
	btnLogin       = "🔑 Log in"
	btnDeposit     = "💰 Deposit"
	btnWithdraw    = "💸 Withdraw"
	btnBalance     = "📊 Balance"
	btnHistory     = "📜 History"
	btnInvestments = "📈 Investments"
	btnLogout      = "🚪 Log out"
)

func GetMainMenu(authenticated bool) tgbotapi.ReplyKeyboardMarkup {
	if !authenticated {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(btnRegister),
				tgbotapi.NewKeyboardButton(btnLogin),
			),
		)
	}

	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDeposit),
			tgbotapi.NewKeyboardButton(btnWithdraw),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnHistory),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnInvestments),
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)
}

func (b *Bot) menuFor(ctx context.Context, chatID int64) tgbotapi.ReplyKeyboardMarkup {
	return GetMainMenu(b.sessions.For(chatID).IsAuthenticated(ctx))
}
