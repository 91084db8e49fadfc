package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/utils"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/go-telegram/bot/models"
)

func (bh *Handlers) HandleClickButton(ctx context.Context, b Sender, update *models.Update, userID int64, data string) {
	if update.CallbackQuery == nil {
		return
	}
	callbackID := update.CallbackQuery.ID
	chatID := getChatIDFromUpdate(update)
	if chatID == 0 {
		chatID = userID
	}
	data = strings.TrimSpace(data)
	parts := strings.Split(data, ":")

	switch parts[0] {
	case "ans":
		bh.handleAnswer(ctx, b, callbackID, chatID, userID, parts)
	case "next":
		bh.answerCallback(ctx, b, callbackID, "")
		bh.startQuiz(ctx, b, chatID, userID)
	case "menu":
		bh.answerCallback(ctx, b, callbackID, "")
		bh.sendMainMenu(ctx, b, chatID)
	case "rating":
		bh.answerCallback(ctx, b, callbackID, "")
		if len(parts) != 2 {
			bh.sendRatingChoice(ctx, b, chatID)
			return
		}
		bh.sendRating(ctx, b, chatID, userID, types.Metric(parts[1]))
	case "buy":
		bh.answerCallback(ctx, b, callbackID, "")
		if len(parts) != 2 {
			return
		}
		bh.sendInvoice(ctx, b, chatID, parts[1])
	case "usepack":
		bh.answerCallback(ctx, b, callbackID, "")
		bh.usePack(ctx, b, chatID, userID)
	case "setmode":
		if len(parts) != 2 {
			bh.answerCallback(ctx, b, callbackID, messages.InvalidAnswer())
			return
		}
		bh.answerCallback(ctx, b, callbackID, "")
		bh.chooseMode(ctx, b, chatID, userID, types.QuizMode(parts[1]))
	default:
		bh.answerCallback(ctx, b, callbackID, messages.ErrorUnknownCommand())
	}
}

func parseAnswerData(parts []string) (int64, int, error) {
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("bad answer data %q", strings.Join(parts, ":"))
	}
	qid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	option, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, err
	}
	return qid, option, nil
}

func (bh *Handlers) handleAnswer(ctx context.Context, b Sender, callbackID string, chatID, userID int64, parts []string) {
	qid, option, err := parseAnswerData(parts)
	if err != nil {
		bh.answerCallback(ctx, b, callbackID, messages.InvalidAnswer())
		return
	}
	res, err := bh.quiz.Answer(ctx, userID, qid, option)
	switch {
	case errors.Is(err, quiz.ErrInvalidOption):
		bh.answerCallback(ctx, b, callbackID, messages.InvalidAnswer())
		return
	case errors.Is(err, types.ErrNotFound):
		bh.answerCallback(ctx, b, callbackID, messages.QuestionNotFound())
		return
	case err != nil:
		bh.answerCallback(ctx, b, callbackID, "")
		bh.fail(ctx, b, chatID, "answer", err)
		return
	}

	switch res.Outcome {
	case quiz.OutcomeAlreadyAnswered:
		bh.answerCallback(ctx, b, callbackID, messages.AnswerAlreadyAccepted())
		return
	case quiz.OutcomeStaleQuestion:
		bh.answerCallback(ctx, b, callbackID, messages.QuestionNotActive())
		return
	}
	bh.answerCallback(ctx, b, callbackID, messages.AnswerAccepted())

	if res.Correct {
		bh.send(ctx, b, chatID, messages.Correct())
	} else {
		n := res.Question.Correct
		option := ""
		if n >= 1 && n <= len(res.Question.Options) {
			option = res.Question.Options[n-1]
		}
		bh.send(ctx, b, chatID, messages.Wrong(n, option))
	}

	switch res.Outcome {
	case quiz.OutcomeCorrect, quiz.OutcomeWrong:
		bh.startQuiz(ctx, b, chatID, userID)
	case quiz.OutcomeBlocked:
		bh.send(ctx, b, chatID, messages.WrongStop())
		bh.offerMore(ctx, b, chatID, userID)
	case quiz.OutcomeDailyDone:
		limit := res.Day.CorrectCount
		bh.send(ctx, b, chatID, messages.DailyDone(limit))
		bh.offerMore(ctx, b, chatID, userID)
	}
}

// startQuiz checks the day gate and sends the next question.
func (bh *Handlers) startQuiz(ctx context.Context, b Sender, chatID, userID int64) {
	gate, err := bh.quiz.CanStart(ctx, userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "can start", err)
		return
	}
	if !gate.Allowed() {
		switch gate.Reason {
		case quiz.ReasonBlocked:
			bh.send(ctx, b, chatID, messages.Blocked())
		case quiz.ReasonDailyDone:
			bh.send(ctx, b, chatID, messages.DailyDone(gate.Limit))
		}
		bh.offerMoreWithPacks(ctx, b, chatID, gate.Packs)
		return
	}

	q, err := bh.quiz.PickQuestion(ctx, userID)
	if errors.Is(err, quiz.ErrNoQuestions) {
		bh.send(ctx, b, chatID, messages.NoQuestions())
		return
	}
	if err != nil {
		bh.fail(ctx, b, chatID, "pick question", err)
		return
	}
	bh.sendWithMarkup(ctx, b, chatID, messages.Question(q.Text, q.Options), answerKeyboard(q.ID))
}

func answerKeyboard(qid int64) *models.InlineKeyboardMarkup {
	buttons := make([]utils.Button, 0, 4)
	for i := 1; i <= 4; i++ {
		buttons = append(buttons, utils.Button{
			Text:         strconv.Itoa(i),
			CallbackData: fmt.Sprintf("ans:%d:%d", qid, i),
		})
	}
	return utils.BuildInlineKeyboard(buttons, 4)
}

func (bh *Handlers) offerMore(ctx context.Context, b Sender, chatID, userID int64) {
	gate, err := bh.quiz.CanStart(ctx, userID)
	if err != nil {
		bh.log.Warn("load packs failed", "user_id", userID, "error", err)
		return
	}
	bh.offerMoreWithPacks(ctx, b, chatID, gate.Packs)
}

// offerMoreWithPacks suggests spending a pack first and buying one second.
func (bh *Handlers) offerMoreWithPacks(ctx context.Context, b Sender, chatID int64, packs int) {
	if packs > 0 {
		kb := utils.BuildInlineKeyboard([]utils.Button{{Text: "Использовать пакет +10", CallbackData: "usepack"}}, 1)
		bh.sendWithMarkup(ctx, b, chatID, messages.OfferPacks(packs), kb)
		return
	}
	if !bh.policy.MonetizationEnabled {
		return
	}
	bh.sendWithMarkup(ctx, b, chatID, messages.OfferPurchase(), buyKeyboard(bh.policy))
}

func buyKeyboard(p billing.Policy) *models.InlineKeyboardMarkup {
	return utils.BuildInlineKeyboard([]utils.Button{
		{Text: fmt.Sprintf("+10 вопросов — %d ⭐", p.Price(types.ProductPack10)), CallbackData: "buy:pack10"},
		{Text: fmt.Sprintf("Безлимит 30 дней — %d ⭐", p.Price(types.ProductUnlimited30)), CallbackData: "buy:unlimited30"},
	}, 1)
}

func (bh *Handlers) usePack(ctx context.Context, b Sender, chatID, userID int64) {
	ent, err := bh.quiz.UsePack(ctx, userID)
	if errors.Is(err, types.ErrNoPacks) {
		bh.send(ctx, b, chatID, messages.NoPacks())
		return
	}
	if err != nil {
		bh.fail(ctx, b, chatID, "use pack", err)
		return
	}
	bh.send(ctx, b, chatID, messages.PackUsed(ent.AvailablePacks))
	bh.startQuiz(ctx, b, chatID, userID)
}

func (bh *Handlers) sendStats(ctx context.Context, b Sender, chatID, userID int64) {
	st, err := bh.quiz.Stats(ctx, userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "stats", err)
		return
	}
	view := messages.StatsView{
		TotalCorrect:   st.User.TotalCorrect,
		TotalWrong:     st.User.TotalWrong,
		BestStreak:     st.User.BestStreak,
		StreakToday:    st.Day.StreakToday,
		CorrectToday:   st.Day.CorrectCount,
		Limit:          st.Limit,
		Packs:          st.Packs,
		UnlimitedUntil: st.UnlimitedUntil,
	}
	bh.send(ctx, b, chatID, messages.Stats(view))
}

func (bh *Handlers) sendRatingChoice(ctx context.Context, b Sender, chatID int64) {
	kb := utils.BuildInlineKeyboard([]utils.Button{
		{Text: "✅ Всего верных", CallbackData: "rating:" + string(types.MetricTotalCorrect)},
		{Text: "🔥 Лучшая серия", CallbackData: "rating:" + string(types.MetricBestStreak)},
	}, 1)
	bh.sendWithMarkup(ctx, b, chatID, messages.RatingChoose(), kb)
}

func (bh *Handlers) sendRating(ctx context.Context, b Sender, chatID, userID int64, metric types.Metric) {
	if !metric.Valid() {
		bh.send(ctx, b, chatID, messages.RatingUnknown())
		return
	}
	top, err := bh.leaderboard.Top(ctx, metric, 10)
	if err != nil {
		bh.fail(ctx, b, chatID, "leaderboard", err)
		return
	}
	rank, err := bh.leaderboard.Rank(ctx, userID, metric)
	if err != nil {
		bh.fail(ctx, b, chatID, "rank", err)
		return
	}
	rows := make([]messages.RatingRow, 0, len(top))
	for _, r := range top {
		value := r.TotalCorrect
		if metric == types.MetricBestStreak {
			value = r.BestStreak
		}
		rows = append(rows, messages.RatingRow{Name: displayName(r), Value: value})
	}
	bh.send(ctx, b, chatID, messages.Rating(string(metric), rows, rank))
}

func displayName(r types.LeaderboardRow) string {
	switch {
	case r.Username != "":
		return "@" + r.Username
	case r.FirstName != "":
		return r.FirstName
	default:
		return strconv.FormatInt(r.TgID, 10)
	}
}

func (bh *Handlers) sendModeMenu(ctx context.Context, b Sender, chatID, userID int64) {
	st, err := bh.quiz.Stats(ctx, userID)
	if err != nil {
		bh.fail(ctx, b, chatID, "stats", err)
		return
	}
	if !st.Unlimited {
		bh.send(ctx, b, chatID, messages.UnlimitedOnly())
		return
	}
	kb := utils.BuildInlineKeyboard([]utils.Button{
		{Text: "🎲 Случайно", CallbackData: "setmode:" + string(types.ModeRandom)},
		{Text: "📚 По теме", CallbackData: "setmode:" + string(types.ModeTopic)},
		{Text: "📈 По сложности", CallbackData: "setmode:" + string(types.ModeDifficulty)},
	}, 1)
	bh.sendWithMarkup(ctx, b, chatID, messages.ChooseMode(), kb)
}

func (bh *Handlers) chooseMode(ctx context.Context, b Sender, chatID, userID int64, mode types.QuizMode) {
	switch mode {
	case types.ModeRandom:
		if err := bh.quiz.SetMode(ctx, userID, mode, nil, nil); err != nil {
			bh.fail(ctx, b, chatID, "set mode", err)
			return
		}
		bh.send(ctx, b, chatID, messages.ModeEnabled("random"))
	case types.ModeTopic:
		topics, err := bh.quiz.Topics(ctx)
		if err != nil {
			bh.fail(ctx, b, chatID, "topics", err)
			return
		}
		if len(topics) == 0 {
			bh.send(ctx, b, chatID, messages.NoTopics())
			return
		}
		lines := make([]string, 0, len(topics))
		for _, t := range topics {
			lines = append(lines, fmt.Sprintf("%d — %s", t.ID, messages.Escape(t.Title)))
		}
		bh.openDialog(ctx, b, chatID, userID, types.DialogSetTopic, messages.AskTopic(lines))
	case types.ModeDifficulty:
		bh.openDialog(ctx, b, chatID, userID, types.DialogSetDifficulty, messages.AskDifficulty())
	default:
		bh.send(ctx, b, chatID, messages.InvalidAnswer())
	}
}
