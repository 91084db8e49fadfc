package types

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoPacks        = errors.New("no packs available")
	ErrDuplicateQuest = errors.New("question already exists")
)

type User struct {
	TgID         int64
	FirstName    string
	Username     string
	TotalAnswers int
	TotalCorrect int
	TotalWrong   int
	BestStreak   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserDay struct {
	TgID         int64
	Day          time.Time
	CorrectCount int
	WrongCount   int
	StreakToday  int
	IsBlocked    bool
	BonusLimit   int
}

type QuizMode string

const (
	ModeRandom     QuizMode = "random"
	ModeTopic      QuizMode = "topic"
	ModeDifficulty QuizMode = "difficulty"
)

type UserSettings struct {
	TgID       int64
	Mode       QuizMode
	TopicID    *int64
	Difficulty *int
}

type Topic struct {
	ID       int64
	Title    string
	IsActive bool
}

type Question struct {
	ID         int64
	Text       string
	Options    [4]string
	Correct    int
	TopicID    *int64
	Difficulty *int
	IsActive   bool
	CreatedAt  time.Time
}

type AnswerRecord struct {
	TgID      int64
	Question  int64
	Selected  int
	IsCorrect bool
	Mode      QuizMode
}

// DayUpdate is the state of a day row after an answer has been applied.
type DayUpdate struct {
	CorrectCount int
	WrongCount   int
	StreakToday  int
	IsBlocked    bool
}

type QuestionFilter struct {
	Mode       QuizMode
	TopicID    *int64
	Difficulty *int
	Limit      int
}

type Metric string

const (
	MetricTotalCorrect Metric = "total_correct"
	MetricBestStreak   Metric = "best_streak"
)

func (m Metric) Valid() bool {
	return m == MetricTotalCorrect || m == MetricBestStreak
}

type LeaderboardRow struct {
	TgID         int64
	FirstName    string
	Username     string
	TotalCorrect int
	BestStreak   int
}

type AdminRole string

const (
	RoleEditor AdminRole = "editor"
	RoleAdmin  AdminRole = "admin"
	RoleOwner  AdminRole = "owner"
)

type AdminStats struct {
	TotalUsers      int64
	TotalAnswers    int64
	ActiveUnlimited int64
}

type UserStore interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, tgID int64) (*User, error)
}

type QuizStore interface {
	EnsureDay(ctx context.Context, tgID int64, day time.Time) (*UserDay, error)
	GetSettings(ctx context.Context, tgID int64) (*UserSettings, error)
	UpdateSettings(ctx context.Context, s UserSettings) error
	ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error)
	GetQuestion(ctx context.Context, id int64) (*Question, error)
	ListTopics(ctx context.Context, activeOnly bool) ([]Topic, error)
	// SaveAnswer stores the answer and, in the same transaction, locks the day
	// row, replaces its counters with apply's result and bumps the user's
	// lifetime totals.
	SaveAnswer(ctx context.Context, a AnswerRecord, day time.Time, apply func(UserDay) DayUpdate) (*DayUpdate, error)
	// UsePack takes one pack and adds bonus questions to the given day.
	UsePack(ctx context.Context, tgID int64, day time.Time, bonus int) (*Entitlement, error)
}

type LeaderboardStore interface {
	Top(ctx context.Context, metric Metric, limit int) ([]LeaderboardRow, error)
	Rank(ctx context.Context, tgID int64, metric Metric) (int, error)
}

type AdminStore interface {
	GetAdminRole(ctx context.Context, tgID int64) (AdminRole, bool, error)
	SetAdminRole(ctx context.Context, tgID int64, role AdminRole) error
	DeleteAdmin(ctx context.Context, tgID int64) error
	EnsureTopic(ctx context.Context, title string) (int64, error)
	InsertQuestion(ctx context.Context, q Question) (int64, error)
	// ToggleQuestion flips is_active and returns the new value.
	ToggleQuestion(ctx context.Context, id int64) (bool, error)
	RecentQuestions(ctx context.Context, limit int) ([]Question, error)
	AdminStats(ctx context.Context) (*AdminStats, error)
}
