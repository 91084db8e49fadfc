package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupTestPostgres(t *testing.T) *PostgresStore {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, true)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	_, err = s.pool.Exec(ctx, `TRUNCATE payments, entitlements, admins, answers, user_day, user_settings, questions, topics, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestPostgresBilling_DuplicateChargeRollsBack(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	grant := func() error {
		return s.InBillingTx(ctx, func(repo types.BillingRepository) error {
			if _, err := repo.RecordPayment(ctx, types.Payment{ChargeID: "c1", UserID: 1, Product: types.ProductPack10, Currency: "XTR", Amount: 300}); err != nil {
				return err
			}
			_, err := repo.AddPack(ctx, 1, 1)
			return err
		})
	}

	require.NoError(t, grant())
	err := grant()
	var dup *types.DuplicateChargeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "c1", dup.ChargeID)

	ent, err := s.GetEntitlement(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.AvailablePacks)

	ok, err := s.HasPayment(ctx, " c1 ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresBilling_ConcurrentPacks(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			return s.InBillingTx(ctx, func(repo types.BillingRepository) error {
				if _, err := repo.RecordPayment(ctx, types.Payment{ChargeID: fmt.Sprintf("p-%d", i), UserID: 5, Product: types.ProductPack10}); err != nil {
					return err
				}
				_, err := repo.AddPack(ctx, 5, 1)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	ent, err := s.GetEntitlement(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 20, ent.AvailablePacks)

	recent, err := s.RecentPayments(ctx, 5, 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestPostgresBilling_ConcurrentSameCharge(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	const n = 10
	var committed, duplicates atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			err := s.InBillingTx(ctx, func(repo types.BillingRepository) error {
				if _, err := repo.RecordPayment(ctx, types.Payment{ChargeID: "same", UserID: 42, Product: types.ProductPack10, Currency: "XTR", Amount: 300}); err != nil {
					return err
				}
				_, err := repo.AddPack(ctx, 42, 1)
				return err
			})
			var dup *types.DuplicateChargeError
			switch {
			case err == nil:
				committed.Add(1)
			case errors.As(err, &dup):
				duplicates.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), committed.Load())
	assert.Equal(t, int32(n-1), duplicates.Load())

	ent, err := s.GetEntitlement(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.AvailablePacks)

	recent, err := s.RecentPayments(ctx, 42, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPostgresBilling_UnlimitedStacks(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	ent, err := s.ExtendUnlimited(ctx, 9, types.UnlimitedPeriod)
	require.NoError(t, err)
	require.NotNil(t, ent.UnlimitedUntil)
	assert.True(t, ent.UnlimitedUntil.Equal(now.Add(types.UnlimitedPeriod)))

	ent, err = s.ExtendUnlimited(ctx, 9, types.UnlimitedPeriod)
	require.NoError(t, err)
	assert.True(t, ent.UnlimitedUntil.Equal(now.Add(2*types.UnlimitedPeriod)))

	require.NoError(t, s.RevokeUnlimited(ctx, 9))
	ent, err = s.GetEntitlement(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, ent.UnlimitedUntil)

	// an expired window restarts from now
	later := now.Add(90 * 24 * time.Hour)
	s.SetClock(func() time.Time { return later })
	_, err = s.ExtendUnlimited(ctx, 9, types.UnlimitedPeriod)
	require.NoError(t, err)
	ent, err = s.ExtendUnlimited(ctx, 9, 0)
	require.NoError(t, err)
	assert.True(t, ent.UnlimitedUntil.Equal(later.Add(types.UnlimitedPeriod)))
}

func TestPostgresQuiz_SaveAnswerAndUsePack(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()
	today := day("2026-03-01")

	require.NoError(t, s.UpsertUser(ctx, types.User{TgID: 11, FirstName: "Ann"}))
	qid, err := s.InsertQuestion(ctx, types.Question{Text: "2+2?", Options: [4]string{"3", "4", "5", "6"}, Correct: 2, IsActive: true})
	require.NoError(t, err)

	_, err = s.InsertQuestion(ctx, types.Question{Text: "  2+2? ", Options: [4]string{"a", "b", "c", "d"}, Correct: 1, IsActive: true})
	assert.ErrorIs(t, err, types.ErrDuplicateQuest)

	upd, err := s.SaveAnswer(ctx, types.AnswerRecord{TgID: 11, Question: qid, Selected: 2, IsCorrect: true, Mode: types.ModeRandom}, today,
		func(d types.UserDay) types.DayUpdate {
			return types.DayUpdate{CorrectCount: d.CorrectCount + 1, WrongCount: d.WrongCount, StreakToday: d.StreakToday + 1}
		})
	require.NoError(t, err)
	assert.Equal(t, 1, upd.CorrectCount)

	_, err = s.SaveAnswer(ctx, types.AnswerRecord{TgID: 11, Question: qid, Selected: 1, Mode: types.ModeRandom}, today,
		func(d types.UserDay) types.DayUpdate {
			return types.DayUpdate{CorrectCount: d.CorrectCount, WrongCount: d.WrongCount + 1, IsBlocked: true}
		})
	require.NoError(t, err)

	u, err := s.GetUser(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 2, u.TotalAnswers)
	assert.Equal(t, 1, u.TotalCorrect)
	assert.Equal(t, 1, u.TotalWrong)
	assert.Equal(t, 1, u.BestStreak)

	d, err := s.EnsureDay(ctx, 11, today)
	require.NoError(t, err)
	assert.True(t, d.IsBlocked)

	_, err = s.UsePack(ctx, 11, today, types.PackBonus)
	assert.ErrorIs(t, err, types.ErrNoPacks)

	_, err = s.AddPack(ctx, 11, 1)
	require.NoError(t, err)
	ent, err := s.UsePack(ctx, 11, today, types.PackBonus)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.AvailablePacks)

	d, err = s.EnsureDay(ctx, 11, today)
	require.NoError(t, err)
	assert.False(t, d.IsBlocked)
	assert.Equal(t, types.PackBonus, d.BonusLimit)
}

func TestPostgresLeaderboard(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, s.UpsertUser(ctx, types.User{TgID: id}))
	}
	_, err := s.pool.Exec(ctx, `UPDATE users SET total_correct = CASE tg_id WHEN 1 THEN 5 WHEN 2 THEN 9 ELSE 5 END`)
	require.NoError(t, err)

	top, err := s.Top(ctx, types.MetricTotalCorrect, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{2, 1, 3}, []int64{top[0].TgID, top[1].TgID, top[2].TgID})

	rank, err := s.Rank(ctx, 3, types.MetricTotalCorrect)
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	_, err = s.Top(ctx, types.Metric("bogus"), 10)
	assert.Error(t, err)
}

func TestPostgresAdmin(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	_, ok, err := s.GetAdminRole(ctx, 50)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetAdminRole(ctx, 50, types.RoleEditor))
	role, ok, err := s.GetAdminRole(ctx, 50)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.RoleEditor, role)

	require.NoError(t, s.DeleteAdmin(ctx, 50))
	assert.ErrorIs(t, s.DeleteAdmin(ctx, 50), types.ErrNotFound)

	topic, err := s.EnsureTopic(ctx, " Алгебра ")
	require.NoError(t, err)
	again, err := s.EnsureTopic(ctx, "Алгебра")
	require.NoError(t, err)
	assert.Equal(t, topic, again)

	qid, err := s.InsertQuestion(ctx, types.Question{Text: "x?", Options: [4]string{"1", "2", "3", "4"}, Correct: 1, TopicID: &topic, IsActive: true})
	require.NoError(t, err)
	active, err := s.ToggleQuestion(ctx, qid)
	require.NoError(t, err)
	assert.False(t, active)

	recent, err := s.RecentQuestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].IsActive)
	assert.Equal(t, topic, *recent[0].TopicID)

	_, err = s.ToggleQuestion(ctx, 999)
	assert.ErrorIs(t, err, types.ErrNotFound)

	stats, err := s.AdminStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
}
