package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/contextkeys"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	texts     []string
	markups   []models.ReplyMarkup
	callbacks []string
	invoices  []*bot.SendInvoiceParams
	checkouts []*bot.AnswerPreCheckoutQueryParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.texts = append(f.texts, p.Text)
	f.markups = append(f.markups, p.ReplyMarkup)
	return &models.Message{}, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.callbacks = append(f.callbacks, p.Text)
	return true, nil
}

func (f *fakeSender) SendInvoice(_ context.Context, p *bot.SendInvoiceParams) (*models.Message, error) {
	f.invoices = append(f.invoices, p)
	return &models.Message{}, nil
}

func (f *fakeSender) AnswerPreCheckoutQuery(_ context.Context, p *bot.AnswerPreCheckoutQueryParams) (bool, error) {
	f.checkouts = append(f.checkouts, p)
	return true, nil
}

type fakeQuiz struct {
	Quiz
	gate      quiz.Gate
	question  *types.Question
	answer    *quiz.AnswerResult
	answerErr error
	modes     []types.QuizMode
}

func (f *fakeQuiz) CanStart(context.Context, int64) (*quiz.Gate, error) {
	g := f.gate
	return &g, nil
}

func (f *fakeQuiz) PickQuestion(context.Context, int64) (*types.Question, error) {
	if f.question == nil {
		return nil, quiz.ErrNoQuestions
	}
	return f.question, nil
}

func (f *fakeQuiz) Answer(context.Context, int64, int64, int) (*quiz.AnswerResult, error) {
	return f.answer, f.answerErr
}

func (f *fakeQuiz) SetMode(_ context.Context, _ int64, mode types.QuizMode, _ *int64, _ *int) error {
	f.modes = append(f.modes, mode)
	return nil
}

type fakeAccount struct {
	Account
	grants  map[int64]int
	revoked []int64
}

func (f *fakeAccount) GrantDays(_ context.Context, userID int64, days int) (*types.Entitlement, error) {
	f.grants[userID] += days
	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &types.Entitlement{UserID: userID, UnlimitedUntil: &until}, nil
}

func (f *fakeAccount) RevokeUnlimited(_ context.Context, userID int64) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeRoles struct {
	Roles
	roles map[int64]types.AdminRole
}

func (f *fakeRoles) Role(_ context.Context, id int64) (types.AdminRole, bool, error) {
	r, ok := f.roles[id]
	return r, ok, nil
}

func (f *fakeRoles) IsAdmin(ctx context.Context, id int64) (bool, error) {
	_, ok, err := f.Role(ctx, id)
	return ok, err
}

type fakeAdminStore struct {
	types.AdminStore
	inserted []types.Question
}

func (f *fakeAdminStore) InsertQuestion(_ context.Context, q types.Question) (int64, error) {
	for _, have := range f.inserted {
		if have.Text == q.Text {
			return 0, types.ErrDuplicateQuest
		}
	}
	f.inserted = append(f.inserted, q)
	return int64(len(f.inserted)), nil
}

type fakeSessions struct {
	types.SessionStore
	dialogs  map[int64]*types.Dialog
	clearErr error
}

func (f *fakeSessions) GetDialog(id int64) (*types.Dialog, error) {
	d, ok := f.dialogs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeSessions) SetDialog(id int64, d *types.Dialog) error {
	cp := *d
	f.dialogs[id] = &cp
	return nil
}

func (f *fakeSessions) ClearDialog(id int64) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.dialogs, id)
	return nil
}

type fakeGranter struct {
	res *billing.GrantResult
	err error
	got []billing.GrantRequest
}

func (f *fakeGranter) GrantPurchase(_ context.Context, req billing.GrantRequest) (*billing.GrantResult, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

const (
	userID  = int64(100)
	adminID = int64(1)
)

type env struct {
	h        *Handlers
	sender   *fakeSender
	quiz     *fakeQuiz
	account  *fakeAccount
	admin    *fakeAdminStore
	sessions *fakeSessions
	granter  *fakeGranter
	logs     *strings.Builder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logs := &strings.Builder{}
	log := slog.New(slog.NewTextHandler(logs, nil))
	policy := billing.Policy{
		MonetizationEnabled: true,
		TestMode:            true,
		AdminIDs:            []int64{adminID},
		Prices: map[types.Product]int{
			types.ProductPack10:      300,
			types.ProductUnlimited30: 1500,
		},
	}
	e := &env{
		sender:   &fakeSender{},
		quiz:     &fakeQuiz{gate: quiz.Gate{Limit: 10}},
		account:  &fakeAccount{grants: map[int64]int{}},
		admin:    &fakeAdminStore{},
		sessions: &fakeSessions{dialogs: map[int64]*types.Dialog{}},
		granter:  &fakeGranter{},
		logs:     logs,
	}
	roles := &fakeRoles{roles: map[int64]types.AdminRole{adminID: types.RoleOwner}}
	e.h = NewHandlers(Deps{
		Quiz:     e.quiz,
		Account:  e.account,
		Live:     billing.NewLiveAdapter(e.granter, policy, log),
		Test:     billing.NewTestAdapter(e.granter, policy, roles, log),
		Roles:    roles,
		Admin:    e.admin,
		Sessions: e.sessions,
		Policy:   policy,
		Log:      log,
	})
	return e
}

func messageCtx(kind contextkeys.MessageType, from int64) context.Context {
	ctx := contextkeys.WithMessageType(context.Background(), kind)
	return contextkeys.WithUserID(ctx, from)
}

func textUpdate(from int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		Chat: models.Chat{ID: from},
		From: &models.User{ID: from},
		Text: text,
	}}
}

func (e *env) command(from int64, text string) {
	e.h.Dispatch(messageCtx(contextkeys.MessageTypeCommand, from), e.sender, textUpdate(from, text))
}

func (e *env) text(from int64, text string) {
	e.h.Dispatch(messageCtx(contextkeys.MessageTypeText, from), e.sender, textUpdate(from, text))
}

func (e *env) click(from int64, data string) {
	ctx := contextkeys.WithCallbackData(messageCtx(contextkeys.MessageTypeClickButton, from), data)
	e.h.Dispatch(ctx, e.sender, &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: from}}},
	}})
}

func (e *env) last() string {
	if len(e.sender.texts) == 0 {
		return ""
	}
	return e.sender.texts[len(e.sender.texts)-1]
}

func sampleQuestion() *types.Question {
	return &types.Question{ID: 7, Text: "2+2?", Options: [4]string{"3", "4", "5", "6"}, Correct: 2, IsActive: true}
}

func TestDispatch_WithoutUserIsIgnored(t *testing.T) {
	e := newEnv(t)
	ctx := contextkeys.WithMessageType(context.Background(), contextkeys.MessageTypeCommand)
	e.h.Dispatch(ctx, e.sender, textUpdate(userID, "/start"))
	assert.Empty(t, e.sender.texts)
}

func TestCommand_Start(t *testing.T) {
	e := newEnv(t)
	e.sessions.dialogs[userID] = &types.Dialog{Name: types.DialogSetTopic}

	e.command(userID, "/start@olymp_bot")

	assert.Equal(t, messages.Welcome(), e.last())
	assert.Empty(t, e.sessions.dialogs)
	_, ok := e.sender.markups[0].(*models.ReplyKeyboardMarkup)
	assert.True(t, ok)
}

func TestCommand_ClearDialogFailureIsLogged(t *testing.T) {
	e := newEnv(t)
	e.sessions.clearErr = errors.New("redis down")

	e.command(userID, "/start")
	assert.Equal(t, messages.Welcome(), e.last())

	e.command(userID, "/cancel")
	assert.Equal(t, messages.Cancelled(), e.last())

	assert.Equal(t, 2, strings.Count(e.logs.String(), "clear dialog failed"))
	assert.Contains(t, e.logs.String(), "redis down")
}

func TestText_StartSendsQuestion(t *testing.T) {
	e := newEnv(t)
	e.quiz.question = sampleQuestion()

	e.text(userID, btnStart)

	require.Len(t, e.sender.texts, 1)
	assert.Contains(t, e.last(), "2+2?")
	kb, ok := e.sender.markups[0].(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "ans:7:4", kb.InlineKeyboard[0][3].CallbackData)
}

func TestText_StartWhenBlockedOffersPacks(t *testing.T) {
	e := newEnv(t)
	e.quiz.gate = quiz.Gate{Reason: quiz.ReasonBlocked, Packs: 2, Limit: 10}

	e.text(userID, btnStart)

	require.Len(t, e.sender.texts, 2)
	assert.Equal(t, messages.Blocked(), e.sender.texts[0])
	assert.Equal(t, messages.OfferPacks(2), e.sender.texts[1])
}

func TestText_DailyDoneOffersPurchase(t *testing.T) {
	e := newEnv(t)
	e.quiz.gate = quiz.Gate{Reason: quiz.ReasonDailyDone, Limit: 10}

	e.text(userID, btnStart)

	require.Len(t, e.sender.texts, 2)
	assert.Equal(t, messages.DailyDone(10), e.sender.texts[0])
	assert.Equal(t, messages.OfferPurchase(), e.sender.texts[1])
}

func TestClick_Answer(t *testing.T) {
	q := sampleQuestion()
	tests := []struct {
		name      string
		result    *quiz.AnswerResult
		err       error
		callback  string
		wantTexts []string
	}{
		{
			name:      "correct continues",
			result:    &quiz.AnswerResult{Outcome: quiz.OutcomeCorrect, Correct: true, Question: q, Day: &types.DayUpdate{CorrectCount: 1}},
			callback:  messages.AnswerAccepted(),
			wantTexts: []string{messages.Correct(), messages.Question(q.Text, q.Options)},
		},
		{
			name:      "wrong blocks the day",
			result:    &quiz.AnswerResult{Outcome: quiz.OutcomeBlocked, Question: q, Day: &types.DayUpdate{WrongCount: 1, IsBlocked: true}},
			callback:  messages.AnswerAccepted(),
			wantTexts: []string{messages.Wrong(2, "4"), messages.WrongStop(), messages.OfferPurchase()},
		},
		{
			name:      "last correct of the day",
			result:    &quiz.AnswerResult{Outcome: quiz.OutcomeDailyDone, Correct: true, Question: q, Day: &types.DayUpdate{CorrectCount: 10}},
			callback:  messages.AnswerAccepted(),
			wantTexts: []string{messages.Correct(), messages.DailyDone(10), messages.OfferPurchase()},
		},
		{
			name:     "stale",
			result:   &quiz.AnswerResult{Outcome: quiz.OutcomeStaleQuestion},
			callback: messages.QuestionNotActive(),
		},
		{
			name:     "double tap",
			result:   &quiz.AnswerResult{Outcome: quiz.OutcomeAlreadyAnswered},
			callback: messages.AnswerAlreadyAccepted(),
		},
		{
			name:     "bad option",
			err:      quiz.ErrInvalidOption,
			callback: messages.InvalidAnswer(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.quiz.question = q
			e.quiz.answer = tt.result
			e.quiz.answerErr = tt.err

			e.click(userID, "ans:7:2")

			require.Len(t, e.sender.callbacks, 1)
			assert.Equal(t, tt.callback, e.sender.callbacks[0])
			assert.Equal(t, tt.wantTexts, e.sender.texts)
		})
	}
}

func TestClick_MalformedAnswer(t *testing.T) {
	e := newEnv(t)
	e.click(userID, "ans:x")
	assert.Equal(t, []string{messages.InvalidAnswer()}, e.sender.callbacks)
	assert.Empty(t, e.sender.texts)
}

func TestClick_BuySendsStarsInvoice(t *testing.T) {
	e := newEnv(t)
	e.click(userID, "buy:unlimited30")

	require.Len(t, e.sender.invoices, 1)
	inv := e.sender.invoices[0]
	assert.Equal(t, "UNLIMITED30", inv.Payload)
	assert.Equal(t, types.CurrencyStars, inv.Currency)
	assert.Empty(t, inv.ProviderToken)
	require.Len(t, inv.Prices, 1)
	assert.Equal(t, 1500, inv.Prices[0].Amount)
}

func TestPreCheckout(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		currency string
		amount   int
		ok       bool
	}{
		{"valid pack", "PACK10", "XTR", 300, true},
		{"wrong amount", "PACK10", "XTR", 1, false},
		{"unknown product", "GOLD", "XTR", 300, false},
		{"wrong currency", "UNLIMITED30", "USD", 1500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := messageCtx(contextkeys.MessageTypePreCheckout, userID)
			e.h.Dispatch(ctx, e.sender, &models.Update{PreCheckoutQuery: &models.PreCheckoutQuery{
				ID:             "pcq",
				Currency:       tt.currency,
				TotalAmount:    tt.amount,
				InvoicePayload: tt.payload,
			}})
			require.Len(t, e.sender.checkouts, 1)
			assert.Equal(t, tt.ok, e.sender.checkouts[0].OK)
			if !tt.ok {
				assert.Equal(t, messages.InvalidPayment(), e.sender.checkouts[0].ErrorMessage)
			}
		})
	}
}

func paymentUpdate(payload string, amount int) *models.Update {
	u := textUpdate(userID, "")
	u.Message.SuccessfulPayment = &models.SuccessfulPayment{
		Currency:                "XTR",
		TotalAmount:             amount,
		InvoicePayload:          payload,
		TelegramPaymentChargeID: " charge-1 ",
	}
	return u
}

func TestSuccessfulPayment(t *testing.T) {
	until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		payload string
		amount  int
		res     *billing.GrantResult
		err     error
		want    string
		granted bool
	}{
		{
			name:    "pack applied",
			payload: "PACK10",
			amount:  300,
			res:     &billing.GrantResult{Applied: true, Product: types.ProductPack10, Entitlement: &types.Entitlement{AvailablePacks: 3}},
			want:    messages.PaymentPackGranted(3),
			granted: true,
		},
		{
			name:    "unlimited applied",
			payload: "UNLIMITED30",
			amount:  1500,
			res:     &billing.GrantResult{Applied: true, Product: types.ProductUnlimited30, Entitlement: &types.Entitlement{UnlimitedUntil: &until}},
			want:    messages.PaymentUnlimitedGranted(until),
			granted: true,
		},
		{
			name:    "redelivered",
			payload: "PACK10",
			amount:  300,
			res:     &billing.GrantResult{Applied: false, Reason: billing.ReasonAlreadyApplied, Product: types.ProductPack10, Entitlement: &types.Entitlement{AvailablePacks: 1}},
			want:    messages.PaymentAlreadyProcessed(),
			granted: true,
		},
		{
			name:    "store failure",
			payload: "PACK10",
			amount:  300,
			err:     errors.New("db down"),
			want:    messages.PaymentFailed(),
			granted: true,
		},
		{
			name:    "unknown product",
			payload: "GOLD",
			amount:  300,
			want:    messages.PaymentUnknownProduct(),
		},
		{
			name:    "amount mismatch",
			payload: "PACK10",
			amount:  299,
			want:    messages.PaymentFailed(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.granter.res, e.granter.err = tt.res, tt.err

			e.h.Dispatch(messageCtx(contextkeys.MessageTypePayment, userID), e.sender, paymentUpdate(tt.payload, tt.amount))

			assert.Equal(t, []string{tt.want}, e.sender.texts)
			if !tt.granted {
				assert.Empty(t, e.granter.got)
				return
			}
			require.Len(t, e.granter.got, 1)
			assert.Equal(t, "charge-1", e.granter.got[0].ChargeID)
			assert.Equal(t, userID, e.granter.got[0].UserID)
			assert.False(t, e.granter.got[0].IsTest)
		})
	}
}

func TestTestPayment(t *testing.T) {
	e := newEnv(t)
	e.granter.res = &billing.GrantResult{Applied: true, Product: types.ProductPack10, Entitlement: &types.Entitlement{AvailablePacks: 1}}

	e.command(userID, "/test_pay_pack10")
	assert.Equal(t, []string{messages.ErrorUnknownCommand()}, e.sender.texts)
	assert.Empty(t, e.granter.got)

	e.command(adminID, "/test_pay_pack10")
	assert.Equal(t, messages.TestPaymentPrefix()+messages.PaymentPackGranted(1), e.last())
	require.Len(t, e.granter.got, 1)
	assert.True(t, e.granter.got[0].IsTest)
	assert.True(t, strings.HasPrefix(e.granter.got[0].ChargeID, "TEST-1-PACK10-"))
}

func TestAdmin_DeniedForUsers(t *testing.T) {
	e := newEnv(t)
	e.command(userID, "/admin")
	assert.Equal(t, []string{messages.AdminDenied()}, e.sender.texts)

	e.click(userID, "admin:grant_unlimited")
	assert.Equal(t, messages.AdminDenied(), e.last())
	assert.Empty(t, e.sessions.dialogs)
}

func TestAdmin_GrantUnlimitedDialog(t *testing.T) {
	e := newEnv(t)

	e.click(adminID, "admin:grant_unlimited")
	require.Contains(t, e.sessions.dialogs, adminID)

	e.text(adminID, "abc")
	assert.Equal(t, messages.NeedNumber("tg_id числом"), e.last())

	e.text(adminID, "42")
	assert.Equal(t, messages.ChooseDays(), e.last())
	assert.Equal(t, "42", e.sessions.dialogs[adminID].Data["target"])

	e.click(adminID, "admin:grant_days:30")
	assert.Equal(t, 30, e.account.grants[42])
	assert.Empty(t, e.sessions.dialogs)
	assert.Contains(t, e.last(), "42")
}

func TestAdmin_GrantUnlimitedManualDays(t *testing.T) {
	e := newEnv(t)
	e.click(adminID, "admin:grant_unlimited")
	e.text(adminID, "42")
	e.click(adminID, "admin:grant_days:manual")
	assert.Equal(t, messages.AskDays(), e.last())

	e.text(adminID, "400")
	assert.Equal(t, messages.AskDays(), e.last())
	e.text(adminID, "12")
	assert.Equal(t, 12, e.account.grants[42])
}

func TestAdmin_AddQuestionDialog(t *testing.T) {
	e := newEnv(t)
	e.click(adminID, "admin:add_question")

	for _, in := range []string{"Столица Франции?", "Париж", "Лион", "Ницца", "Марсель", "9", "1", "-", "3"} {
		e.text(adminID, in)
	}

	require.Len(t, e.admin.inserted, 1)
	q := e.admin.inserted[0]
	assert.Equal(t, "Столица Франции?", q.Text)
	assert.Equal(t, 1, q.Correct)
	assert.Nil(t, q.TopicID)
	require.NotNil(t, q.Difficulty)
	assert.Equal(t, 3, *q.Difficulty)
	assert.Equal(t, messages.QuestionAdded(1), e.last())
	assert.Empty(t, e.sessions.dialogs)
}

func TestAdmin_BulkImportDialog(t *testing.T) {
	e := newEnv(t)
	e.admin.inserted = []types.Question{{Text: "Q2"}}
	e.click(adminID, "admin:bulk_import")

	e.text(adminID, "Q: Q1\nA) a\nB) b\nC) c\nD) d\nANS: B\n---\nQ: Q2\nA) a\nB) b\nC) c\nD) d\nANS: A\n---\nQ: Q3\nA) a\nANS: A")

	require.Len(t, e.admin.inserted, 2)
	assert.Equal(t, 2, e.admin.inserted[1].Correct)
	assert.Contains(t, e.last(), "Добавлено: 1")
	assert.Contains(t, e.last(), "Дубликатов: 1")
	assert.Contains(t, e.last(), "Ошибок: 1")
}

func TestText_UnknownWithoutDialog(t *testing.T) {
	e := newEnv(t)
	e.text(userID, "привет")
	assert.Equal(t, []string{messages.ErrorUnsupportedMessageType()}, e.sender.texts)
}

func TestText_SetDifficultyDialog(t *testing.T) {
	e := newEnv(t)
	e.sessions.dialogs[userID] = &types.Dialog{Name: types.DialogSetDifficulty, Data: map[string]string{}}

	e.text(userID, "9")
	assert.Empty(t, e.quiz.modes)

	e.text(userID, "4")
	assert.Equal(t, []types.QuizMode{types.ModeDifficulty}, e.quiz.modes)
	assert.Equal(t, messages.ModeEnabled("difficulty"), e.last())
}
