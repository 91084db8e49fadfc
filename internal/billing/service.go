// Package billing turns confirmed payments into entitlements.
//
// Every payment source goes through Service.GrantPurchase. The payments
// ledger row is inserted first, inside the same transaction as the
// entitlement change, so the unique charge id both deduplicates redelivered
// notifications and decides concurrent races: the loser's insert finds the
// row, its transaction rolls back, and it reports ReasonAlreadyApplied.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

var (
	ErrEmptyChargeID = errors.New("charge id is empty")
	ErrInvalidUser   = errors.New("invalid user id")
)

type Reason string

const (
	ReasonApplied        Reason = "applied"
	ReasonAlreadyApplied Reason = "already_applied"
)

type GrantRequest struct {
	UserID   int64
	ChargeID string
	Product  string
	Currency string
	Amount   int64
	IsTest   bool
}

type GrantResult struct {
	Applied     bool
	Reason      Reason
	Product     types.Product
	Entitlement *types.Entitlement
	Payment     *types.Payment
}

type Service struct {
	store types.BillingStore
	log   *slog.Logger
}

func NewService(store types.BillingStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		log:   log.With("component", "billing"),
	}
}

func (s *Service) GrantPurchase(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	product, err := types.ParseProduct(req.Product)
	if err != nil {
		return nil, err
	}
	grant, _ := product.Grant()
	chargeID := strings.TrimSpace(req.ChargeID)
	if chargeID == "" {
		return nil, ErrEmptyChargeID
	}
	if req.UserID <= 0 {
		return nil, ErrInvalidUser
	}

	exists, err := s.store.HasPayment(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("check payment %s: %w", chargeID, err)
	}
	if exists {
		return s.alreadyApplied(ctx, req.UserID, product, chargeID)
	}

	result := &GrantResult{Applied: true, Reason: ReasonApplied, Product: product}
	err = s.store.InBillingTx(ctx, func(repo types.BillingRepository) error {
		p, err := repo.RecordPayment(ctx, types.Payment{
			ChargeID: chargeID,
			UserID:   req.UserID,
			Product:  product,
			Currency: strings.TrimSpace(req.Currency),
			Amount:   req.Amount,
			Status:   types.PaymentStatusSuccess,
			IsTest:   req.IsTest,
		})
		if err != nil {
			return err
		}
		ent, err := applyGrant(ctx, repo, req.UserID, grant)
		if err != nil {
			return err
		}
		result.Payment = p
		result.Entitlement = ent
		return nil
	})

	var dup *types.DuplicateChargeError
	if errors.As(err, &dup) {
		s.log.Info("payment raced, already applied", "user_id", req.UserID, "charge_id", chargeID)
		return s.alreadyApplied(ctx, req.UserID, product, chargeID)
	}
	if err != nil {
		return nil, fmt.Errorf("grant %s to %d: %w", product, req.UserID, err)
	}

	s.log.Info("purchase granted",
		"user_id", req.UserID,
		"charge_id", chargeID,
		"product", product,
		"test", req.IsTest,
		"packs", result.Entitlement.AvailablePacks,
	)
	return result, nil
}

func applyGrant(ctx context.Context, repo types.EntitlementStore, userID int64, g types.Grant) (*types.Entitlement, error) {
	switch {
	case g.Packs > 0:
		return repo.AddPack(ctx, userID, g.Packs)
	case g.Unlimited > 0:
		return repo.ExtendUnlimited(ctx, userID, g.Unlimited)
	default:
		return nil, errors.New("empty grant")
	}
}

func (s *Service) alreadyApplied(ctx context.Context, userID int64, product types.Product, chargeID string) (*GrantResult, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load entitlement %d: %w", userID, err)
	}
	s.log.Debug("payment already applied", "user_id", userID, "charge_id", chargeID)
	return &GrantResult{
		Applied:     false,
		Reason:      ReasonAlreadyApplied,
		Product:     product,
		Entitlement: ent,
	}, nil
}

type Summary struct {
	Entitlement *types.Entitlement
	Recent      []types.Payment
}

// Summary is the read-only view used by /my_payments.
func (s *Service) Summary(ctx context.Context, userID int64, recent int) (*Summary, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.RecentPayments(ctx, userID, recent)
	if err != nil {
		return nil, err
	}
	return &Summary{Entitlement: ent, Recent: payments}, nil
}

func (s *Service) Entitlement(ctx context.Context, userID int64) (*types.Entitlement, error) {
	return s.store.GetEntitlement(ctx, userID)
}

// GrantDays extends unlimited access without a payment, for admin grants.
func (s *Service) GrantDays(ctx context.Context, userID int64, days int) (*types.Entitlement, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	ent, err := s.store.ExtendUnlimited(ctx, userID, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	s.log.Info("unlimited granted by admin", "user_id", userID, "days", days)
	return ent, nil
}

func (s *Service) RevokeUnlimited(ctx context.Context, userID int64) error {
	if err := s.store.RevokeUnlimited(ctx, userID); err != nil {
		return err
	}
	s.log.Info("unlimited revoked", "user_id", userID)
	return nil
}
