package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/access"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot/models"
)

func (bh *Handlers) HandleCommand(ctx context.Context, b Sender, update *models.Update, userID int64) {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch cmd {
	case "/start":
		bh.closeDialog(userID)
		bh.sendWithMarkup(ctx, b, chatID, messages.Welcome(), mainKeyboard())
	case "/help":
		bh.send(ctx, b, chatID, messages.Help())
	case "/stats":
		bh.sendStats(ctx, b, chatID, userID)
	case "/rating":
		bh.sendRatingChoice(ctx, b, chatID)
	case "/my_payments":
		bh.sendMyPayments(ctx, b, chatID, userID)
	case "/test_pay_pack10":
		bh.testPay(ctx, b, chatID, userID, types.ProductPack10)
	case "/test_pay_unlimited30":
		bh.testPay(ctx, b, chatID, userID, types.ProductUnlimited30)
	case "/cancel":
		bh.closeDialog(userID)
		bh.send(ctx, b, chatID, messages.Cancelled())
	case "/admin":
		if _, ok := bh.requireAdmin(ctx, b, chatID, userID); ok {
			bh.sendAdminMenu(ctx, b, chatID)
		}
	case "/admin_stats":
		if _, ok := bh.requireAdmin(ctx, b, chatID, userID); ok {
			bh.sendAdminStats(ctx, b, chatID)
		}
	case "/grant_admin":
		if len(fields) < 2 {
			bh.send(ctx, b, chatID, messages.AskGrantAdmin())
			return
		}
		bh.grantAdmin(ctx, b, chatID, userID, fields[1:])
	case "/revoke_admin":
		if len(fields) < 2 {
			bh.send(ctx, b, chatID, messages.AskTgID("для снятия админки"))
			return
		}
		bh.revokeAdmin(ctx, b, chatID, userID, fields[1])
	default:
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand())
	}
}

// grantAdmin expects "<tg_id> [role]"; the role defaults to editor.
func (bh *Handlers) grantAdmin(ctx context.Context, b Sender, chatID, userID int64, args []string) {
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || target <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("tg_id числом"))
		return
	}
	role := types.RoleEditor
	if len(args) > 1 {
		role, err = access.ParseRole(strings.ToLower(args[1]))
		if err != nil {
			bh.send(ctx, b, chatID, messages.AskGrantAdmin())
			return
		}
	}
	err = bh.roles.Grant(ctx, userID, target, role)
	switch {
	case errors.Is(err, access.ErrForbidden):
		bh.send(ctx, b, chatID, messages.AdminDenied())
	case err != nil:
		bh.fail(ctx, b, chatID, "grant admin", err)
	default:
		bh.send(ctx, b, chatID, messages.AdminGranted(target, string(role)))
	}
}

func (bh *Handlers) revokeAdmin(ctx context.Context, b Sender, chatID, userID int64, arg string) {
	target, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || target <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("tg_id числом"))
		return
	}
	err = bh.roles.Revoke(ctx, userID, target)
	switch {
	case errors.Is(err, access.ErrForbidden):
		bh.send(ctx, b, chatID, messages.AdminDenied())
	case errors.Is(err, types.ErrNotFound):
		bh.send(ctx, b, chatID, messages.TargetNotAdmin(target))
	case err != nil:
		bh.fail(ctx, b, chatID, "revoke admin", err)
	default:
		bh.send(ctx, b, chatID, messages.AdminRevoked(target))
	}
}
