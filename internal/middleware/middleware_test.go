package middleware

import (
	"context"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/contextkeys"
)

func TestClassify(t *testing.T) {
	from := &models.User{ID: 7}
	tests := []struct {
		name   string
		update *models.Update
		want   contextkeys.MessageType
	}{
		{"command", &models.Update{Message: &models.Message{From: from, Text: "/start"}}, contextkeys.MessageTypeCommand},
		{"text", &models.Update{Message: &models.Message{From: from, Text: "Начать"}}, contextkeys.MessageTypeText},
		{"blank", &models.Update{Message: &models.Message{From: from, Text: "  "}}, contextkeys.MessageTypeUnknown},
		{"payment", &models.Update{Message: &models.Message{From: from, SuccessfulPayment: &models.SuccessfulPayment{InvoicePayload: "PACK10"}}}, contextkeys.MessageTypePayment},
		{"callback", &models.Update{CallbackQuery: &models.CallbackQuery{From: *from, Data: " next "}}, contextkeys.MessageTypeClickButton},
		{"pre-checkout", &models.Update{PreCheckoutQuery: &models.PreCheckoutQuery{From: from}}, contextkeys.MessageTypePreCheckout},
		{"other", &models.Update{}, contextkeys.MessageTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Classify(context.Background(), tt.update)
			got, ok := contextkeys.GetMessageType(ctx)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	ctx := Classify(context.Background(), &models.Update{CallbackQuery: &models.CallbackQuery{Data: " next "}})
	data, _ := contextkeys.GetCallbackData(ctx)
	assert.Equal(t, "next", data)
}

func TestSender(t *testing.T) {
	assert.Nil(t, Sender(&models.Update{}))
	assert.Equal(t, int64(3), Sender(&models.Update{CallbackQuery: &models.CallbackQuery{From: models.User{ID: 3}}}).ID)
	assert.Equal(t, int64(4), Sender(&models.Update{PreCheckoutQuery: &models.PreCheckoutQuery{From: &models.User{ID: 4}}}).ID)
}
