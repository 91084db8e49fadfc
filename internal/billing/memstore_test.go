package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

// memState holds ledger and entitlement rows; callers synchronize access.
type memState struct {
	now      func() time.Time
	payments map[string]types.Payment
	ents     map[int64]types.Entitlement
	nextID   int64

	failExtend error
}

func (m *memState) clone() *memState {
	c := &memState{
		now:        m.now,
		payments:   make(map[string]types.Payment, len(m.payments)),
		ents:       make(map[int64]types.Entitlement, len(m.ents)),
		nextID:     m.nextID,
		failExtend: m.failExtend,
	}
	for k, v := range m.payments {
		c.payments[k] = v
	}
	for k, v := range m.ents {
		c.ents[k] = v
	}
	return c
}

func (m *memState) HasPayment(_ context.Context, chargeID string) (bool, error) {
	_, ok := m.payments[chargeID]
	return ok, nil
}

func (m *memState) RecordPayment(_ context.Context, p types.Payment) (*types.Payment, error) {
	if _, ok := m.payments[p.ChargeID]; ok {
		return nil, &types.DuplicateChargeError{ChargeID: p.ChargeID}
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = m.now()
	m.payments[p.ChargeID] = p
	return &p, nil
}

func (m *memState) RecentPayments(_ context.Context, userID int64, limit int) ([]types.Payment, error) {
	out := make([]types.Payment, 0)
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memState) GetEntitlement(_ context.Context, userID int64) (*types.Entitlement, error) {
	e, ok := m.ents[userID]
	if !ok {
		e = types.Entitlement{UserID: userID, UpdatedAt: m.now()}
		m.ents[userID] = e
	}
	return &e, nil
}

func (m *memState) AddPack(ctx context.Context, userID int64, count int) (*types.Entitlement, error) {
	e, _ := m.GetEntitlement(ctx, userID)
	e.AvailablePacks += count
	e.UpdatedAt = m.now()
	m.ents[userID] = *e
	return e, nil
}

func (m *memState) ExtendUnlimited(ctx context.Context, userID int64, d time.Duration) (*types.Entitlement, error) {
	if m.failExtend != nil {
		return nil, m.failExtend
	}
	e, _ := m.GetEntitlement(ctx, userID)
	base := m.now()
	if e.UnlimitedUntil != nil && e.UnlimitedUntil.After(base) {
		base = *e.UnlimitedUntil
	}
	until := base.Add(d)
	e.UnlimitedUntil = &until
	e.UpdatedAt = m.now()
	m.ents[userID] = *e
	return e, nil
}

func (m *memState) RevokeUnlimited(_ context.Context, userID int64) error {
	e, ok := m.ents[userID]
	if !ok {
		return nil
	}
	e.UnlimitedUntil = nil
	m.ents[userID] = e
	return nil
}

type memStore struct {
	mu    sync.Mutex
	state *memState

	hasPaymentErr error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{state: &memState{
		now:      now,
		payments: map[string]types.Payment{},
		ents:     map[int64]types.Entitlement{},
	}}
}

func (s *memStore) HasPayment(ctx context.Context, chargeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPaymentErr != nil {
		return false, s.hasPaymentErr
	}
	return s.state.HasPayment(ctx, chargeID)
}

func (s *memStore) RecordPayment(ctx context.Context, p types.Payment) (*types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RecordPayment(ctx, p)
}

func (s *memStore) RecentPayments(ctx context.Context, userID int64, limit int) ([]types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RecentPayments(ctx, userID, limit)
}

func (s *memStore) GetEntitlement(ctx context.Context, userID int64) (*types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetEntitlement(ctx, userID)
}

func (s *memStore) AddPack(ctx context.Context, userID int64, count int) (*types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AddPack(ctx, userID, count)
}

func (s *memStore) ExtendUnlimited(ctx context.Context, userID int64, d time.Duration) (*types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ExtendUnlimited(ctx, userID, d)
}

func (s *memStore) RevokeUnlimited(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RevokeUnlimited(ctx, userID)
}

func (s *memStore) InBillingTx(_ context.Context, fn func(repo types.BillingRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.state.clone()
	if err := fn(staged); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *memStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.payments)
}
