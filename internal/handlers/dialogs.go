package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/messages"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

var addQuestionKeys = []string{"q", "a1", "a2", "a3", "a4", "correct", "topic", "diff"}

func (bh *Handlers) openDialog(ctx context.Context, b Sender, chatID, userID int64, name types.DialogName, prompt string) {
	d := &types.Dialog{Name: name, Data: map[string]string{}}
	if err := bh.sessions.SetDialog(userID, d); err != nil {
		bh.fail(ctx, b, chatID, "open dialog", err)
		return
	}
	bh.send(ctx, b, chatID, prompt)
}

func (bh *Handlers) closeDialog(userID int64) {
	if err := bh.sessions.ClearDialog(userID); err != nil {
		bh.log.Warn("clear dialog failed", "user_id", userID, "error", err)
	}
}

func (bh *Handlers) saveDialog(ctx context.Context, b Sender, chatID, userID int64, d *types.Dialog, prompt string) {
	if err := bh.sessions.SetDialog(userID, d); err != nil {
		bh.fail(ctx, b, chatID, "save dialog", err)
		return
	}
	bh.send(ctx, b, chatID, prompt)
}

func (bh *Handlers) continueDialog(ctx context.Context, b Sender, chatID, userID int64, d *types.Dialog, text string) {
	switch d.Name {
	case types.DialogSetTopic:
		bh.dialogSetTopic(ctx, b, chatID, userID, text)
		return
	case types.DialogSetDifficulty:
		bh.dialogSetDifficulty(ctx, b, chatID, userID, text)
		return
	}

	if _, ok := bh.requireRole(ctx, b, chatID, userID, leastRoleFor("admin:"+string(d.Name))); !ok {
		bh.closeDialog(userID)
		return
	}
	switch d.Name {
	case types.DialogAddQuestion:
		bh.dialogAddQuestion(ctx, b, chatID, userID, d, text)
	case types.DialogBulkImport:
		bh.closeDialog(userID)
		bh.bulkImport(ctx, b, chatID, text)
	case types.DialogToggleQuestion:
		bh.dialogToggleQuestion(ctx, b, chatID, userID, text)
	case types.DialogAddTopic:
		bh.dialogAddTopic(ctx, b, chatID, userID, text)
	case types.DialogGrantAdmin:
		bh.closeDialog(userID)
		bh.grantAdmin(ctx, b, chatID, userID, strings.Fields(text))
	case types.DialogGrantUnlimited:
		bh.dialogGrantUnlimited(ctx, b, chatID, userID, d, text)
	case types.DialogRevokeUnlimited:
		bh.dialogRevokeUnlimited(ctx, b, chatID, userID, text)
	default:
		bh.closeDialog(userID)
		bh.send(ctx, b, chatID, messages.ErrorDefault())
	}
}

func parseOptionalInt(text string) (*int, error) {
	if text == "-" {
		return nil, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// dialogAddQuestion collects one field per message and inserts the question
// after the last one.
func (bh *Handlers) dialogAddQuestion(ctx context.Context, b Sender, chatID, userID int64, d *types.Dialog, text string) {
	if d.Step < 0 || d.Step >= len(addQuestionKeys) {
		bh.closeDialog(userID)
		bh.send(ctx, b, chatID, messages.ErrorDefault())
		return
	}
	if text == "" {
		bh.send(ctx, b, chatID, messages.AddQuestionPrompt(d.Step))
		return
	}
	switch addQuestionKeys[d.Step] {
	case "correct":
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > 4 {
			bh.send(ctx, b, chatID, messages.NeedNumber("число от 1 до 4"))
			return
		}
	case "topic":
		if _, err := parseOptionalInt(text); err != nil {
			bh.send(ctx, b, chatID, messages.NeedNumber("ID темы числом или -"))
			return
		}
	case "diff":
		n, err := parseOptionalInt(text)
		if err != nil || (n != nil && (*n < 1 || *n > 5)) {
			bh.send(ctx, b, chatID, messages.NeedNumber("число от 1 до 5 или -"))
			return
		}
	}
	d.Data[addQuestionKeys[d.Step]] = text
	d.Step++
	if d.Step < len(addQuestionKeys) {
		bh.saveDialog(ctx, b, chatID, userID, d, messages.AddQuestionPrompt(d.Step))
		return
	}
	bh.closeDialog(userID)

	correct, _ := strconv.Atoi(d.Data["correct"])
	q := types.Question{
		Text:     d.Data["q"],
		Options:  [4]string{d.Data["a1"], d.Data["a2"], d.Data["a3"], d.Data["a4"]},
		Correct:  correct,
		IsActive: true,
	}
	if topic, _ := parseOptionalInt(d.Data["topic"]); topic != nil {
		id := int64(*topic)
		q.TopicID = &id
	}
	q.Difficulty, _ = parseOptionalInt(d.Data["diff"])

	id, err := bh.admin.InsertQuestion(ctx, q)
	if errors.Is(err, types.ErrDuplicateQuest) {
		bh.send(ctx, b, chatID, messages.QuestionDuplicate())
		return
	}
	if err != nil {
		bh.fail(ctx, b, chatID, "insert question", err)
		return
	}
	bh.log.Info("question added", "admin_id", userID, "question_id", id)
	bh.send(ctx, b, chatID, messages.QuestionAdded(id))
}

func (bh *Handlers) bulkImport(ctx context.Context, b Sender, chatID int64, raw string) {
	if len(quiz.SplitBlocks(raw)) == 0 {
		bh.send(ctx, b, chatID, messages.BulkEmpty())
		return
	}
	report, err := quiz.Import(ctx, bh.admin, raw)
	if err != nil {
		bh.log.Error("bulk import stopped", "error", err)
	}
	errs := make([]string, 0, len(report.Errors))
	for _, e := range report.Errors {
		errs = append(errs, e.Error())
	}
	if err != nil {
		errs = append(errs, err.Error())
	}
	bh.send(ctx, b, chatID, messages.BulkReport(report.Added, report.Duplicates, errs))
}

func (bh *Handlers) dialogToggleQuestion(ctx context.Context, b Sender, chatID, userID int64, text string) {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("ID вопроса числом"))
		return
	}
	bh.closeDialog(userID)
	active, err := bh.admin.ToggleQuestion(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		bh.send(ctx, b, chatID, messages.QuestionNotFound())
		return
	}
	if err != nil {
		bh.fail(ctx, b, chatID, "toggle question", err)
		return
	}
	bh.send(ctx, b, chatID, messages.QuestionToggled(id, active))
}

func (bh *Handlers) dialogAddTopic(ctx context.Context, b Sender, chatID, userID int64, text string) {
	if text == "" {
		bh.send(ctx, b, chatID, messages.AskTopicTitle())
		return
	}
	bh.closeDialog(userID)
	id, err := bh.admin.EnsureTopic(ctx, text)
	if err != nil {
		bh.fail(ctx, b, chatID, "add topic", err)
		return
	}
	bh.send(ctx, b, chatID, messages.TopicAdded(id, text))
}

// dialogGrantUnlimited: step 0 takes the target id, step 2 a typed number of
// days. Step 1 waits for a button press.
func (bh *Handlers) dialogGrantUnlimited(ctx context.Context, b Sender, chatID, userID int64, d *types.Dialog, text string) {
	if d.Step == 2 {
		days, err := strconv.Atoi(text)
		if err != nil {
			bh.send(ctx, b, chatID, messages.AskDays())
			return
		}
		bh.finishGrantDays(ctx, b, chatID, userID, d.Data["target"], days)
		return
	}
	target, err := strconv.ParseInt(text, 10, 64)
	if err != nil || target <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("tg_id числом"))
		return
	}
	d.Data["target"] = strconv.FormatInt(target, 10)
	d.Step = 1
	if err := bh.sessions.SetDialog(userID, d); err != nil {
		bh.fail(ctx, b, chatID, "save dialog", err)
		return
	}
	bh.sendWithMarkup(ctx, b, chatID, messages.ChooseDays(), daysKeyboard())
}

func (bh *Handlers) finishGrantDays(ctx context.Context, b Sender, chatID, userID int64, targetRaw string, days int) {
	if days < 1 || days > 365 {
		bh.send(ctx, b, chatID, messages.AskDays())
		return
	}
	target, err := strconv.ParseInt(targetRaw, 10, 64)
	if err != nil {
		bh.closeDialog(userID)
		bh.send(ctx, b, chatID, messages.AskTgID("для выдачи безлимита"))
		return
	}
	bh.closeDialog(userID)
	ent, err := bh.account.GrantDays(ctx, target, days)
	if err != nil {
		bh.fail(ctx, b, chatID, "grant days", err)
		return
	}
	until := ""
	if ent.UnlimitedUntil != nil {
		until = messages.FormatTime(*ent.UnlimitedUntil)
	}
	bh.log.Info("unlimited granted", "admin_id", userID, "target", target, "days", days)
	bh.send(ctx, b, chatID, messages.UnlimitedGranted(target, until, days))
}

func (bh *Handlers) dialogRevokeUnlimited(ctx context.Context, b Sender, chatID, userID int64, text string) {
	target, err := strconv.ParseInt(text, 10, 64)
	if err != nil || target <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("tg_id числом"))
		return
	}
	bh.closeDialog(userID)
	if err := bh.account.RevokeUnlimited(ctx, target); err != nil {
		bh.fail(ctx, b, chatID, "revoke unlimited", err)
		return
	}
	bh.log.Info("unlimited revoked", "admin_id", userID, "target", target)
	bh.send(ctx, b, chatID, messages.UnlimitedRevoked(target))
}

func (bh *Handlers) dialogSetTopic(ctx context.Context, b Sender, chatID, userID int64, text string) {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		bh.send(ctx, b, chatID, messages.NeedNumber("ID темы числом"))
		return
	}
	bh.closeDialog(userID)
	if err := bh.quiz.SetMode(ctx, userID, types.ModeTopic, &id, nil); err != nil {
		bh.fail(ctx, b, chatID, "set topic", err)
		return
	}
	bh.send(ctx, b, chatID, messages.ModeEnabled("topic"))
}

func (bh *Handlers) dialogSetDifficulty(ctx context.Context, b Sender, chatID, userID int64, text string) {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > 5 {
		bh.send(ctx, b, chatID, messages.NeedNumber("число от 1 до 5"))
		return
	}
	bh.closeDialog(userID)
	if err := bh.quiz.SetMode(ctx, userID, types.ModeDifficulty, nil, &n); err != nil {
		bh.fail(ctx, b, chatID, "set difficulty", err)
		return
	}
	bh.send(ctx, b, chatID, messages.ModeEnabled("difficulty"))
}
