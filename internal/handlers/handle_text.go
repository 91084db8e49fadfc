package handlers

import (
	"context"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/go-telegram/bot/models"
)

func (bh *Handlers) HandleText(ctx context.Context, b Sender, update *models.Update, userID int64) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	switch text {
	case btnStart:
		bh.closeDialog(userID)
		bh.startQuiz(ctx, b, chatID, userID)
		return
	case btnMenu:
		bh.closeDialog(userID)
		bh.sendMainMenu(ctx, b, chatID)
		return
	case btnStats:
		bh.sendStats(ctx, b, chatID, userID)
		return
	case btnPayments:
		bh.sendMyPayments(ctx, b, chatID, userID)
		return
	case btnRating:
		bh.sendRatingChoice(ctx, b, chatID)
		return
	case btnUnlimited:
		bh.sendModeMenu(ctx, b, chatID, userID)
		return
	}

	d, err := bh.sessions.GetDialog(userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "load dialog", err)
		return
	}
	if d == nil {
		bh.sendWithMarkup(ctx, b, chatID, messages.ErrorUnsupportedMessageType(), mainKeyboard())
		return
	}
	bh.continueDialog(ctx, b, chatID, userID, d, text)
}
