package types

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Product string

const (
	ProductPack10      Product = "PACK10"
	ProductUnlimited30 Product = "UNLIMITED30"
)

// Grant is the entitlement effect of a product. Exactly one field is non-zero.
type Grant struct {
	Packs     int
	Unlimited time.Duration
}

const UnlimitedPeriod = 30 * 24 * time.Hour

var Products = []Product{ProductPack10, ProductUnlimited30}

func (p Product) Grant() (Grant, bool) {
	switch p {
	case ProductPack10:
		return Grant{Packs: 1}, true
	case ProductUnlimited30:
		return Grant{Unlimited: UnlimitedPeriod}, true
	default:
		return Grant{}, false
	}
}

func (p Product) String() string {
	return string(p)
}

func ParseProduct(code string) (Product, error) {
	p := Product(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := p.Grant(); !ok {
		return "", &UnknownProductError{Code: code}
	}
	return p, nil
}

type PaymentStatus string

const (
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Payment struct {
	ID        int64
	ChargeID  string
	UserID    int64
	Product   Product
	Currency  string
	Amount    int64
	Status    PaymentStatus
	IsTest    bool
	CreatedAt time.Time
}

type Entitlement struct {
	UserID         int64
	AvailablePacks int
	UnlimitedUntil *time.Time
	UpdatedAt      time.Time
}

func (e *Entitlement) HasUnlimited(now time.Time) bool {
	return e != nil && e.UnlimitedUntil != nil && e.UnlimitedUntil.After(now)
}

type DuplicateChargeError struct {
	ChargeID string
}

func (e *DuplicateChargeError) Error() string {
	return fmt.Sprintf("payment %q already recorded", e.ChargeID)
}

type UnknownProductError struct {
	Code string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %q", e.Code)
}

type Ledger interface {
	HasPayment(ctx context.Context, chargeID string) (bool, error)
	// RecordPayment returns *DuplicateChargeError when the charge id is taken.
	RecordPayment(ctx context.Context, p Payment) (*Payment, error)
	RecentPayments(ctx context.Context, userID int64, limit int) ([]Payment, error)
}

type EntitlementStore interface {
	GetEntitlement(ctx context.Context, userID int64) (*Entitlement, error)
	AddPack(ctx context.Context, userID int64, count int) (*Entitlement, error)
	ExtendUnlimited(ctx context.Context, userID int64, duration time.Duration) (*Entitlement, error)
	RevokeUnlimited(ctx context.Context, userID int64) error
}

type BillingRepository interface {
	Ledger
	EntitlementStore
}

// BillingStore runs fn inside one transaction; any error returned by fn rolls
// back every write made through repo.
type BillingStore interface {
	BillingRepository
	InBillingTx(ctx context.Context, fn func(repo BillingRepository) error) error
}
