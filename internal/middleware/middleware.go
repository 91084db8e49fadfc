package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/contextkeys"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

type Middlewares struct {
	users types.UserStore
	log   *slog.Logger
}

func NewMessageAnalyzer(users types.UserStore, log *slog.Logger) *Middlewares {
	if log == nil {
		log = slog.Default()
	}
	return &Middlewares{users: users, log: log.With("component", "middleware")}
}

// Sender returns the Telegram user behind an update, if any.
func Sender(update *models.Update) *models.User {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	case update.PreCheckoutQuery != nil && update.PreCheckoutQuery.From != nil:
		return update.PreCheckoutQuery.From
	}
	return nil
}

// UpsertUserMiddleware keeps the users table in step with Telegram profile
// data and puts the sender's id into the context.
func (m *Middlewares) UpsertUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		user := Sender(update)
		if user == nil || user.ID == 0 {
			return
		}
		if err := m.users.UpsertUser(ctx, types.User{
			TgID:      user.ID,
			FirstName: user.FirstName,
			Username:  user.Username,
		}); err != nil {
			m.log.Error("upsert user failed", "user_id", user.ID, "error", err)
		}
		next(contextkeys.WithUserID(ctx, user.ID), b, update)
	}
}

func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		next(Classify(ctx, update), b, update)
	}
}

// Classify tags ctx with the kind of update so the main handler can route it.
func Classify(ctx context.Context, update *models.Update) context.Context {
	switch {
	case update.PreCheckoutQuery != nil:
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypePreCheckout)
	case update.CallbackQuery != nil && update.CallbackQuery.Data != "":
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
		return contextkeys.WithCallbackData(ctx, strings.TrimSpace(update.CallbackQuery.Data))
	case update.Message == nil:
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
	case update.Message.SuccessfulPayment != nil:
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypePayment)
	case strings.HasPrefix(update.Message.Text, "/"):
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
	case strings.TrimSpace(update.Message.Text) != "":
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
	}
	return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
}
