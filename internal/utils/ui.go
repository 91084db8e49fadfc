package utils

import (
	"github.com/go-telegram/bot/models"
)

type Button struct {
	Text         string
	CallbackData string
}

// BuildInlineKeyboard lays buttons out perRow to a row.
func BuildInlineKeyboard(buttons []Button, perRow int) *models.InlineKeyboardMarkup {
	if perRow <= 0 {
		perRow = 1
	}
	pad := func(s string) string { return " " + s + " " }
	rows := make([][]models.InlineKeyboardButton, 0, (len(buttons)+perRow-1)/perRow)
	row := make([]models.InlineKeyboardButton, 0, perRow)
	for i, button := range buttons {
		if i > 0 && i%perRow == 0 {
			rows = append(rows, row)
			row = make([]models.InlineKeyboardButton, 0, perRow)
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         pad(button.Text),
			CallbackData: button.CallbackData,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// BuildReplyKeyboard puts each label on its own row.
func BuildReplyKeyboard(labels ...string) *models.ReplyKeyboardMarkup {
	rows := make([][]models.KeyboardButton, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []models.KeyboardButton{{Text: l}})
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}
