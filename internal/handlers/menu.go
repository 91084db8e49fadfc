package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/access"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/utils"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot/models"
)

// adminActions maps each admin menu entry to the lowest role allowed to use it.
var adminActions = []struct {
	data  string
	label string
	least types.AdminRole
}{
	{"admin:add_question", "➕ Добавить вопрос", types.RoleEditor},
	{"admin:bulk_import", "📥 Импорт вопросов", types.RoleEditor},
	{"admin:list_questions", "📋 Последние вопросы", types.RoleEditor},
	{"admin:toggle_question", "🔁 Вкл/выкл вопрос", types.RoleEditor},
	{"admin:add_topic", "🏷 Добавить тему", types.RoleEditor},
	{"admin:grant_admin", "👤 Выдать админку", types.RoleAdmin},
	{"admin:grant_unlimited", "♾ Выдать безлимит", types.RoleAdmin},
	{"admin:revoke_unlimited", "🚫 Снять безлимит", types.RoleAdmin},
	{"admin:stats", "📊 Статистика", types.RoleEditor},
}

func leastRoleFor(data string) types.AdminRole {
	for _, a := range adminActions {
		if a.data == data {
			return a.least
		}
	}
	if strings.HasPrefix(data, "admin:grant_days:") {
		return types.RoleAdmin
	}
	return types.RoleOwner
}

func (bh *Handlers) requireAdmin(ctx context.Context, b Sender, chatID, userID int64) (types.AdminRole, bool) {
	return bh.requireRole(ctx, b, chatID, userID, types.RoleEditor)
}

func (bh *Handlers) requireRole(ctx context.Context, b Sender, chatID, userID int64, least types.AdminRole) (types.AdminRole, bool) {
	role, ok, err := bh.roles.Role(ctx, userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "load role", err)
		return "", false
	}
	if !ok || !access.AtLeast(role, least) {
		bh.send(ctx, b, chatID, messages.AdminDenied())
		return role, false
	}
	return role, true
}

func (bh *Handlers) sendAdminMenu(ctx context.Context, b Sender, chatID int64) {
	buttons := make([]utils.Button, 0, len(adminActions))
	for _, a := range adminActions {
		buttons = append(buttons, utils.Button{Text: a.label, CallbackData: a.data})
	}
	bh.sendWithMarkup(ctx, b, chatID, messages.AdminMenu(), utils.BuildInlineKeyboard(buttons, 2))
}

func (bh *Handlers) sendAdminStats(ctx context.Context, b Sender, chatID int64) {
	st, err := bh.admin.AdminStats(ctx)
	if err != nil {
		bh.fail(ctx, b, chatID, "admin stats", err)
		return
	}
	bh.send(ctx, b, chatID, messages.AdminStats(st.TotalUsers, st.TotalAnswers, st.ActiveUnlimited))
}

func (bh *Handlers) HandleAdminClick(ctx context.Context, b Sender, update *models.Update, userID int64, data string) {
	if update.CallbackQuery == nil {
		return
	}
	chatID := getChatIDFromUpdate(update)
	if chatID == 0 {
		chatID = userID
	}
	data = strings.TrimSpace(data)
	bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
	if _, ok := bh.requireRole(ctx, b, chatID, userID, leastRoleFor(data)); !ok {
		return
	}

	switch data {
	case "admin:add_question":
		bh.openDialog(ctx, b, chatID, userID, types.DialogAddQuestion, messages.AddQuestionPrompt(0))
	case "admin:bulk_import":
		bh.openDialog(ctx, b, chatID, userID, types.DialogBulkImport, messages.BulkImportHelp())
	case "admin:list_questions":
		bh.sendRecentQuestions(ctx, b, chatID)
	case "admin:toggle_question":
		bh.openDialog(ctx, b, chatID, userID, types.DialogToggleQuestion, messages.AskQuestionID())
	case "admin:add_topic":
		bh.openDialog(ctx, b, chatID, userID, types.DialogAddTopic, messages.AskTopicTitle())
	case "admin:grant_admin":
		bh.openDialog(ctx, b, chatID, userID, types.DialogGrantAdmin, messages.AskGrantAdmin())
	case "admin:grant_unlimited":
		bh.openDialog(ctx, b, chatID, userID, types.DialogGrantUnlimited, messages.AskTgID("для выдачи безлимита"))
	case "admin:revoke_unlimited":
		bh.openDialog(ctx, b, chatID, userID, types.DialogRevokeUnlimited, messages.AskTgID("для снятия безлимита"))
	case "admin:stats":
		bh.sendAdminStats(ctx, b, chatID)
	default:
		if days, ok := strings.CutPrefix(data, "admin:grant_days:"); ok {
			bh.grantDaysChoice(ctx, b, chatID, userID, days)
			return
		}
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand())
	}
}

func (bh *Handlers) sendRecentQuestions(ctx context.Context, b Sender, chatID int64) {
	qs, err := bh.admin.RecentQuestions(ctx, 10)
	if err != nil {
		bh.fail(ctx, b, chatID, "recent questions", err)
		return
	}
	rows := make([]messages.QuestionLine, 0, len(qs))
	for _, q := range qs {
		rows = append(rows, messages.QuestionLine{ID: q.ID, Text: q.Text, Active: q.IsActive})
	}
	bh.send(ctx, b, chatID, messages.RecentQuestions(rows))
}

func daysKeyboard() *models.InlineKeyboardMarkup {
	buttons := make([]utils.Button, 0, 5)
	for _, d := range []int{7, 30, 90, 365} {
		s := strconv.Itoa(d)
		buttons = append(buttons, utils.Button{Text: s + " дн.", CallbackData: "admin:grant_days:" + s})
	}
	buttons = append(buttons, utils.Button{Text: "Другое", CallbackData: "admin:grant_days:manual"})
	return utils.BuildInlineKeyboard(buttons, 2)
}

// grantDaysChoice finishes the grant unlimited dialog once the admin picks a
// duration. "manual" asks for a number instead.
func (bh *Handlers) grantDaysChoice(ctx context.Context, b Sender, chatID, userID int64, choice string) {
	d, err := bh.sessions.GetDialog(userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "load dialog", err)
		return
	}
	if d == nil || d.Name != types.DialogGrantUnlimited || d.Data["target"] == "" {
		bh.send(ctx, b, chatID, messages.AskTgID("для выдачи безлимита"))
		return
	}
	if choice == "manual" {
		d.Step = 2
		if err := bh.sessions.SetDialog(userID, d); err != nil {
			bh.fail(ctx, b, chatID, "save dialog", err)
			return
		}
		bh.send(ctx, b, chatID, messages.AskDays())
		return
	}
	days, err := strconv.Atoi(choice)
	if err != nil {
		bh.send(ctx, b, chatID, messages.AskDays())
		return
	}
	bh.finishGrantDays(ctx, b, chatID, userID, d.Data["target"], days)
}
