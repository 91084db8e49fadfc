package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/google/uuid"
)

var (
	ErrMonetizationDisabled = errors.New("monetization is disabled")
	ErrTestModeDisabled     = errors.New("test mode is disabled")
	ErrNotPrivileged        = errors.New("caller is not an administrator")
	ErrAmountMismatch       = errors.New("payment amount does not match price")
	ErrCurrencyMismatch     = errors.New("payment currency is not supported")
)

// Policy is the process-wide payment configuration, resolved once at startup.
type Policy struct {
	MonetizationEnabled bool
	TestMode            bool
	AdminIDs            []int64
	Prices              map[types.Product]int
}

func (p Policy) Price(product types.Product) int {
	return p.Prices[product]
}

func (p Policy) IsConfiguredAdmin(userID int64) bool {
	for _, id := range p.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Granter interface {
	GrantPurchase(ctx context.Context, req GrantRequest) (*GrantResult, error)
}

type PrivilegeChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

type SuccessfulPayment struct {
	UserID         int64
	ChargeID       string
	InvoicePayload string
	Currency       string
	TotalAmount    int64
}

// LiveAdapter handles provider-confirmed Telegram Stars payments.
type LiveAdapter struct {
	granter Granter
	policy  Policy
	log     *slog.Logger
}

func NewLiveAdapter(granter Granter, policy Policy, log *slog.Logger) *LiveAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &LiveAdapter{granter: granter, policy: policy, log: log.With("component", "payments_live")}
}

// ValidateCheckout is the pre-checkout gate: the invoice must name a known
// product at its configured price.
func (a *LiveAdapter) ValidateCheckout(payload, currency string, amount int64) (types.Product, error) {
	if !a.policy.MonetizationEnabled {
		return "", ErrMonetizationDisabled
	}
	product, err := types.ParseProduct(payload)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(strings.TrimSpace(currency), types.CurrencyStars) {
		return product, ErrCurrencyMismatch
	}
	if int64(a.policy.Price(product)) != amount {
		return product, fmt.Errorf("%w: %s expected %d got %d", ErrAmountMismatch, product, a.policy.Price(product), amount)
	}
	return product, nil
}

func (a *LiveAdapter) Apply(ctx context.Context, p SuccessfulPayment) (*GrantResult, error) {
	if !a.policy.MonetizationEnabled {
		a.log.Info("ignoring payment while monetization disabled", "user_id", p.UserID, "payload", p.InvoicePayload)
		return nil, ErrMonetizationDisabled
	}
	product, err := types.ParseProduct(p.InvoicePayload)
	if err != nil {
		return nil, err
	}
	if expected := int64(a.policy.Price(product)); expected != p.TotalAmount {
		a.log.Error("payment amount mismatch",
			"user_id", p.UserID,
			"charge_id", p.ChargeID,
			"product", product,
			"expected", expected,
			"got", p.TotalAmount,
		)
		return nil, ErrAmountMismatch
	}
	return a.granter.GrantPurchase(ctx, GrantRequest{
		UserID:   p.UserID,
		ChargeID: p.ChargeID,
		Product:  string(product),
		Currency: p.Currency,
		Amount:   p.TotalAmount,
	})
}

// TestAdapter issues synthetic payments for administrators when test mode is on.
type TestAdapter struct {
	granter Granter
	policy  Policy
	admins  PrivilegeChecker
	now     func() time.Time
	log     *slog.Logger
}

func NewTestAdapter(granter Granter, policy Policy, admins PrivilegeChecker, log *slog.Logger) *TestAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &TestAdapter{
		granter: granter,
		policy:  policy,
		admins:  admins,
		now:     time.Now,
		log:     log.With("component", "payments_test"),
	}
}

func (a *TestAdapter) Enabled() bool {
	return a.policy.TestMode
}

func (a *TestAdapter) Pay(ctx context.Context, callerID int64, product types.Product) (*GrantResult, error) {
	if !a.policy.TestMode {
		return nil, ErrTestModeDisabled
	}
	ok, err := a.privileged(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.log.Warn("test payment rejected", "user_id", callerID, "product", product)
		return nil, ErrNotPrivileged
	}
	return a.granter.GrantPurchase(ctx, GrantRequest{
		UserID:   callerID,
		ChargeID: SyntheticChargeID(callerID, product, a.now()),
		Product:  string(product),
		Currency: types.CurrencyStars,
		Amount:   int64(a.policy.Price(product)),
		IsTest:   true,
	})
}

func (a *TestAdapter) privileged(ctx context.Context, userID int64) (bool, error) {
	if a.policy.IsConfiguredAdmin(userID) {
		return true, nil
	}
	if a.admins == nil {
		return false, nil
	}
	return a.admins.IsAdmin(ctx, userID)
}

func SyntheticChargeID(userID int64, product types.Product, at time.Time) string {
	return fmt.Sprintf("TEST-%d-%s-%d-%s", userID, product, at.Unix(), uuid.NewString()[:8])
}
