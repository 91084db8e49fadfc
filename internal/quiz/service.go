// Package quiz runs the daily question flow: picking questions, scoring
// answers against the per-day limit and spending purchased packs.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

var (
	ErrNoQuestions   = errors.New("no active questions")
	ErrInvalidOption = errors.New("answer option must be 1..4")
)

type EntitlementReader interface {
	Entitlement(ctx context.Context, userID int64) (*types.Entitlement, error)
}

type Config struct {
	Location   *time.Location
	DailyLimit int
}

type Service struct {
	store    types.QuizStore
	users    types.UserStore
	sessions types.SessionStore
	ents     EntitlementReader
	loc      *time.Location
	limit    int
	now      func() time.Time
	pick     func(n int) int
	log      *slog.Logger
}

func NewService(store types.QuizStore, users types.UserStore, sessions types.SessionStore, ents EntitlementReader, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = types.DailyLimit
	}
	return &Service{
		store:    store,
		users:    users,
		sessions: sessions,
		ents:     ents,
		loc:      loc,
		limit:    limit,
		now:      time.Now,
		pick:     rand.IntN,
		log:      log.With("component", "quiz"),
	}
}

func (s *Service) Today() time.Time {
	return Today(s.now(), s.loc)
}

func (s *Service) NextReset() time.Time {
	return NextMidnight(s.now(), s.loc)
}

func (s *Service) unlimited(ctx context.Context, tgID int64) (*types.Entitlement, bool, error) {
	ent, err := s.ents.Entitlement(ctx, tgID)
	if err != nil {
		return nil, false, err
	}
	return ent, ent.HasUnlimited(s.now()), nil
}

// Gate is the answer to "may this user get a question now".
type Gate struct {
	Reason    Reason
	Unlimited bool
	Packs     int
	Day       *types.UserDay
	Limit     int
}

func (g Gate) Allowed() bool { return g.Reason == ReasonNone }

func (s *Service) CanStart(ctx context.Context, tgID int64) (*Gate, error) {
	ent, unlimited, err := s.unlimited(ctx, tgID)
	if err != nil {
		return nil, err
	}
	day, err := s.store.EnsureDay(ctx, tgID, s.Today())
	if err != nil {
		return nil, err
	}
	return &Gate{
		Reason:    CanStart(*day, unlimited, s.limit),
		Unlimited: unlimited,
		Packs:     ent.AvailablePacks,
		Day:       day,
		Limit:     DayLimit(*day, s.limit),
	}, nil
}

// PickQuestion chooses a random active question, avoiding ones already
// asked in this session while any remain. Topic and difficulty modes only
// apply with unlimited access.
func (s *Service) PickQuestion(ctx context.Context, tgID int64) (*types.Question, error) {
	_, unlimited, err := s.unlimited(ctx, tgID)
	if err != nil {
		return nil, err
	}
	filter := types.QuestionFilter{Mode: types.ModeRandom}
	if unlimited {
		st, err := s.store.GetSettings(ctx, tgID)
		if err != nil {
			return nil, err
		}
		filter = types.QuestionFilter{Mode: st.Mode, TopicID: st.TopicID, Difficulty: st.Difficulty}
	}

	questions, err := s.store.ListQuestions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	session, err := s.sessions.GetQuizSession(tgID)
	if err != nil {
		return nil, err
	}
	pool := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if !session.Asked(q.ID) {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		pool = questions
	}
	q := pool[s.pick(len(pool))]

	if !session.Asked(q.ID) {
		session.AskedIDs = append(session.AskedIDs, q.ID)
	}
	session.ActiveQuestionID = q.ID
	session.AnsweredActive = false
	if err := s.sessions.SaveQuizSession(session); err != nil {
		return nil, err
	}
	return &q, nil
}

type AnswerResult struct {
	Outcome  Outcome
	Correct  bool
	Question *types.Question
	Day      *types.DayUpdate
}

func (s *Service) Answer(ctx context.Context, tgID, questionID int64, option int) (*AnswerResult, error) {
	if option < 1 || option > 4 {
		return nil, ErrInvalidOption
	}
	session, err := s.sessions.GetQuizSession(tgID)
	if err != nil {
		return nil, err
	}
	if session.AnsweredActive && session.ActiveQuestionID == questionID {
		return &AnswerResult{Outcome: OutcomeAlreadyAnswered}, nil
	}
	if session.ActiveQuestionID != questionID {
		return &AnswerResult{Outcome: OutcomeStaleQuestion}, nil
	}
	ok, err := s.sessions.AcquireAnswerLock(tgID, questionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AnswerResult{Outcome: OutcomeAlreadyAnswered}, nil
	}

	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	_, unlimited, err := s.unlimited(ctx, tgID)
	if err != nil {
		return nil, err
	}
	mode := types.ModeRandom
	if unlimited {
		if st, err := s.store.GetSettings(ctx, tgID); err == nil {
			mode = st.Mode
		}
	}

	correct := option == q.Correct
	var bonus int
	update, err := s.store.SaveAnswer(ctx, types.AnswerRecord{
		TgID:      tgID,
		Question:  q.ID,
		Selected:  option,
		IsCorrect: correct,
		Mode:      mode,
	}, s.Today(), func(d types.UserDay) types.DayUpdate {
		bonus = d.BonusLimit
		return Evaluate(d, correct, unlimited)
	})
	if err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	session.AnsweredActive = true
	if err := s.sessions.SaveQuizSession(session); err != nil {
		s.log.Warn("save session failed", "user_id", tgID, "error", err)
	}

	return &AnswerResult{
		Outcome:  outcomeOf(*update, bonus, correct, unlimited, s.limit),
		Correct:  correct,
		Question: q,
		Day:      update,
	}, nil
}

type Stats struct {
	User           *types.User
	Day            *types.UserDay
	Limit          int
	Unlimited      bool
	UnlimitedUntil *time.Time
	Packs          int
}

func (s *Service) Stats(ctx context.Context, tgID int64) (*Stats, error) {
	user, err := s.users.GetUser(ctx, tgID)
	if err != nil {
		return nil, err
	}
	ent, unlimited, err := s.unlimited(ctx, tgID)
	if err != nil {
		return nil, err
	}
	day, err := s.store.EnsureDay(ctx, tgID, s.Today())
	if err != nil {
		return nil, err
	}
	st := &Stats{
		User:      user,
		Day:       day,
		Limit:     DayLimit(*day, s.limit),
		Unlimited: unlimited,
		Packs:     ent.AvailablePacks,
	}
	if unlimited {
		st.UnlimitedUntil = ent.UnlimitedUntil
	}
	return st, nil
}

// UsePack spends one pack on today: PackBonus more questions and the block,
// if any, lifted.
func (s *Service) UsePack(ctx context.Context, tgID int64) (*types.Entitlement, error) {
	ent, err := s.store.UsePack(ctx, tgID, s.Today(), types.PackBonus)
	if err != nil {
		return nil, err
	}
	s.log.Info("pack used", "user_id", tgID, "packs_left", ent.AvailablePacks)
	return ent, nil
}

func (s *Service) Settings(ctx context.Context, tgID int64) (*types.UserSettings, error) {
	return s.store.GetSettings(ctx, tgID)
}

func (s *Service) Topics(ctx context.Context) ([]types.Topic, error) {
	return s.store.ListTopics(ctx, true)
}

// SetMode changes how questions are selected and starts a fresh session.
func (s *Service) SetMode(ctx context.Context, tgID int64, mode types.QuizMode, topicID *int64, difficulty *int) error {
	st := types.UserSettings{TgID: tgID, Mode: mode}
	switch mode {
	case types.ModeRandom:
	case types.ModeTopic:
		if topicID == nil {
			return errors.New("topic mode needs a topic")
		}
		st.TopicID = topicID
	case types.ModeDifficulty:
		if difficulty == nil || *difficulty < 1 || *difficulty > 5 {
			return errors.New("difficulty must be 1..5")
		}
		st.Difficulty = difficulty
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err := s.store.UpdateSettings(ctx, st); err != nil {
		return err
	}
	return s.sessions.ResetQuizSession(tgID)
}
