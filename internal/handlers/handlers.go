package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/contextkeys"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/utils"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of *bot.Bot the handlers talk to.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*models.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
}

type Quiz interface {
	CanStart(ctx context.Context, tgID int64) (*quiz.Gate, error)
	PickQuestion(ctx context.Context, tgID int64) (*types.Question, error)
	Answer(ctx context.Context, tgID, questionID int64, option int) (*quiz.AnswerResult, error)
	Stats(ctx context.Context, tgID int64) (*quiz.Stats, error)
	UsePack(ctx context.Context, tgID int64) (*types.Entitlement, error)
	Settings(ctx context.Context, tgID int64) (*types.UserSettings, error)
	Topics(ctx context.Context) ([]types.Topic, error)
	SetMode(ctx context.Context, tgID int64, mode types.QuizMode, topicID *int64, difficulty *int) error
}

type Account interface {
	Summary(ctx context.Context, userID int64, recent int) (*billing.Summary, error)
	GrantDays(ctx context.Context, userID int64, days int) (*types.Entitlement, error)
	RevokeUnlimited(ctx context.Context, userID int64) error
}

type Roles interface {
	Role(ctx context.Context, tgID int64) (types.AdminRole, bool, error)
	Grant(ctx context.Context, granterID, targetID int64, role types.AdminRole) error
	Revoke(ctx context.Context, granterID, targetID int64) error
}

type Deps struct {
	Quiz        Quiz
	Account     Account
	Live        *billing.LiveAdapter
	Test        *billing.TestAdapter
	Roles       Roles
	Admin       types.AdminStore
	Leaderboard types.LeaderboardStore
	Sessions    types.SessionStore
	Policy      billing.Policy
	Log         *slog.Logger
}

type Handlers struct {
	quiz        Quiz
	account     Account
	live        *billing.LiveAdapter
	test        *billing.TestAdapter
	roles       Roles
	admin       types.AdminStore
	leaderboard types.LeaderboardStore
	sessions    types.SessionStore
	policy      billing.Policy
	now         func() time.Time
	log         *slog.Logger
}

func NewHandlers(d Deps) *Handlers {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		quiz:        d.Quiz,
		account:     d.Account,
		live:        d.Live,
		test:        d.Test,
		roles:       d.Roles,
		admin:       d.Admin,
		leaderboard: d.Leaderboard,
		sessions:    d.Sessions,
		policy:      d.Policy,
		now:         time.Now,
		log:         log.With("component", "handlers"),
	}
}

const (
	btnStart     = "Начать"
	btnMenu      = "Меню"
	btnStats     = "Моя статистика"
	btnPayments  = "Мои покупки"
	btnRating    = "Рейтинг"
	btnUnlimited = "Настройки безлимита"
)

func mainKeyboard() *models.ReplyKeyboardMarkup {
	return utils.BuildReplyKeyboard(btnStart, btnMenu, btnStats, btnPayments, btnRating, btnUnlimited)
}

// MainHandler is registered with the bot; everything else works on Sender.
func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	bh.Dispatch(ctx, b, update)
}

func (bh *Handlers) Dispatch(ctx context.Context, b Sender, update *models.Update) {
	chatID := getChatIDFromUpdate(update)
	messageType, _ := contextkeys.GetMessageType(ctx)
	userID, ok := contextkeys.GetUserID(ctx)
	if !ok {
		bh.log.Warn("update without user", "type", messageType)
		return
	}
	if chatID == 0 {
		chatID = userID
	}

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update, userID)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, b, update, userID)
	case contextkeys.MessageTypeClickButton:
		data, _ := contextkeys.GetCallbackData(ctx)
		if data == "" && update.CallbackQuery != nil {
			data = update.CallbackQuery.Data
		}
		if strings.HasPrefix(strings.TrimSpace(data), "admin:") {
			bh.HandleAdminClick(ctx, b, update, userID, data)
		} else {
			bh.HandleClickButton(ctx, b, update, userID, data)
		}
	case contextkeys.MessageTypePreCheckout:
		bh.HandlePreCheckout(ctx, b, update, userID)
	case contextkeys.MessageTypePayment:
		bh.HandleSuccessfulPayment(ctx, b, update, userID)
	default:
		bh.send(ctx, b, chatID, messages.ErrorUnsupportedMessageType())
	}
}

func getChatIDFromUpdate(update *models.Update) int64 {
	if update == nil {
		return 0
	}
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
		if update.CallbackQuery.Message.InaccessibleMessage != nil {
			return update.CallbackQuery.Message.InaccessibleMessage.Chat.ID
		}
	}
	return 0
}

func (bh *Handlers) send(ctx context.Context, b Sender, chatID int64, text string) {
	bh.sendWithMarkup(ctx, b, chatID, text, nil)
}

func (bh *Handlers) sendWithMarkup(ctx context.Context, b Sender, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		bh.log.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}

func (bh *Handlers) answerCallback(ctx context.Context, b Sender, callbackID, text string) {
	if callbackID == "" {
		return
	}
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		bh.log.Debug("answer callback failed", "error", err)
	}
}

func (bh *Handlers) fail(ctx context.Context, b Sender, chatID int64, op string, err error) {
	bh.log.Error(op+" failed", "chat_id", chatID, "error", err)
	bh.send(ctx, b, chatID, messages.ErrorDefault())
}

func (bh *Handlers) sendMainMenu(ctx context.Context, b Sender, chatID int64) {
	bh.sendWithMarkup(ctx, b, chatID, messages.MenuOpened(), mainKeyboard())
}

