package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/middleware"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func productFromButton(code string) (types.Product, bool) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "pack10":
		return types.ProductPack10, true
	case "unlimited30":
		return types.ProductUnlimited30, true
	}
	return "", false
}

func (bh *Handlers) sendInvoice(ctx context.Context, b Sender, chatID int64, code string) {
	product, ok := productFromButton(code)
	if !ok {
		bh.send(ctx, b, chatID, messages.PaymentUnknownProduct())
		return
	}
	if !bh.policy.MonetizationEnabled {
		bh.send(ctx, b, chatID, messages.PurchasesUnavailable())
		return
	}
	title, description := messages.InvoicePack10()
	if product == types.ProductUnlimited30 {
		title, description = messages.InvoiceUnlimited30()
	}
	price := bh.policy.Price(product)
	_, err := b.SendInvoice(ctx, &bot.SendInvoiceParams{
		ChatID:        chatID,
		Title:         title,
		Description:   description,
		Payload:       string(product),
		Currency:      types.CurrencyStars,
		Prices:        []models.LabeledPrice{{Label: title, Amount: price}},
		ProviderToken: "",
	})
	if err != nil {
		bh.fail(ctx, b, chatID, "send invoice", err)
	}
}

func (bh *Handlers) HandlePreCheckout(ctx context.Context, b Sender, update *models.Update, userID int64) {
	if update == nil || update.PreCheckoutQuery == nil {
		return
	}
	q := update.PreCheckoutQuery
	_, err := bh.live.ValidateCheckout(q.InvoicePayload, q.Currency, int64(q.TotalAmount))
	ok := err == nil
	if !ok {
		bh.log.Warn("pre-checkout rejected", "user_id", userID, "payload", q.InvoicePayload, "error", err)
	}
	params := &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: q.ID,
		OK:                 ok,
	}
	if !ok {
		params.ErrorMessage = messages.InvalidPayment()
	}
	if _, err := b.AnswerPreCheckoutQuery(ctx, params); err != nil {
		bh.log.Error("answer pre-checkout failed", "user_id", userID, "error", err)
	}
}

func (bh *Handlers) HandleSuccessfulPayment(ctx context.Context, b Sender, update *models.Update, userID int64) {
	if update == nil || update.Message == nil || update.Message.SuccessfulPayment == nil {
		return
	}
	chatID := getChatIDFromUpdate(update)
	if chatID == 0 {
		chatID = userID
	}
	p := update.Message.SuccessfulPayment
	if u := middleware.Sender(update); u != nil {
		userID = u.ID
	}
	res, err := bh.live.Apply(ctx, billing.SuccessfulPayment{
		UserID:         userID,
		ChargeID:       strings.TrimSpace(p.TelegramPaymentChargeID),
		InvoicePayload: strings.TrimSpace(p.InvoicePayload),
		Currency:       strings.TrimSpace(p.Currency),
		TotalAmount:    int64(p.TotalAmount),
	})
	if errors.Is(err, billing.ErrMonetizationDisabled) {
		return
	}
	bh.reportGrant(ctx, b, chatID, userID, res, err, "")
}

// reportGrant turns a grant outcome into the user-facing message. Only an
// applied grant is ever reported as a success.
func (bh *Handlers) reportGrant(ctx context.Context, b Sender, chatID, userID int64, res *billing.GrantResult, err error, prefix string) {
	var unknown *types.UnknownProductError
	switch {
	case errors.As(err, &unknown):
		bh.log.Error("payment for unknown product", "user_id", userID, "payload", unknown.Code)
		bh.send(ctx, b, chatID, prefix+messages.PaymentUnknownProduct())
		return
	case err != nil:
		bh.log.Error("grant failed", "user_id", userID, "error", err)
		bh.send(ctx, b, chatID, prefix+messages.PaymentFailed())
		return
	}

	if !res.Applied {
		bh.send(ctx, b, chatID, prefix+messages.PaymentAlreadyProcessed())
		return
	}
	switch {
	case res.Product == types.ProductUnlimited30 && res.Entitlement.UnlimitedUntil != nil:
		bh.send(ctx, b, chatID, prefix+messages.PaymentUnlimitedGranted(*res.Entitlement.UnlimitedUntil))
	default:
		bh.send(ctx, b, chatID, prefix+messages.PaymentPackGranted(res.Entitlement.AvailablePacks))
	}
}

func (bh *Handlers) testPay(ctx context.Context, b Sender, chatID, userID int64, product types.Product) {
	res, err := bh.test.Pay(ctx, userID, product)
	switch {
	case errors.Is(err, billing.ErrTestModeDisabled), errors.Is(err, billing.ErrNotPrivileged):
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand())
		return
	}
	bh.reportGrant(ctx, b, chatID, userID, res, err, messages.TestPaymentPrefix())
}

func (bh *Handlers) sendMyPayments(ctx context.Context, b Sender, chatID, userID int64) {
	sum, err := bh.account.Summary(ctx, userID, 3)
	if err != nil {
		bh.fail(ctx, b, chatID, "payments summary", err)
		return
	}
	until := sum.Entitlement.UnlimitedUntil
	if !sum.Entitlement.HasUnlimited(bh.now()) {
		until = nil
	}
	lines := make([]messages.PaymentLine, 0, len(sum.Recent))
	for _, p := range sum.Recent {
		lines = append(lines, messages.PaymentLine{
			At:       p.CreatedAt,
			Product:  string(p.Product),
			Amount:   p.Amount,
			Currency: p.Currency,
			IsTest:   p.IsTest,
		})
	}
	text := messages.MyPayments(sum.Entitlement.AvailablePacks, until, lines)
	if bh.policy.MonetizationEnabled {
		bh.sendWithMarkup(ctx, b, chatID, text, buyKeyboard(bh.policy))
		return
	}
	bh.send(ctx, b, chatID, text)
}
