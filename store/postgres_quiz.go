package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/jackc/pgx/v5"
)

const dayColumns = `tg_id, day, correct_count, wrong_count, streak_today, is_blocked, bonus_limit`

func scanDay(row pgx.Row) (*types.UserDay, error) {
	var d types.UserDay
	if err := row.Scan(&d.TgID, &d.Day, &d.CorrectCount, &d.WrongCount, &d.StreakToday, &d.IsBlocked, &d.BonusLimit); err != nil {
		return nil, err
	}
	return &d, nil
}

func ensureDay(ctx context.Context, q querier, tgID int64, day time.Time) error {
	_, err := q.Exec(ctx, `
INSERT INTO user_day (tg_id, day)
VALUES ($1, $2)
ON CONFLICT (tg_id, day) DO NOTHING
`, tgID, day)
	return err
}

func (s *PostgresStore) EnsureDay(ctx context.Context, tgID int64, day time.Time) (*types.UserDay, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ensureDay(ctx, s.pool, tgID, day); err != nil {
		return nil, err
	}
	return scanDay(s.pool.QueryRow(ctx, `SELECT `+dayColumns+` FROM user_day WHERE tg_id = $1 AND day = $2`, tgID, day))
}

func (s *PostgresStore) GetSettings(ctx context.Context, tgID int64) (*types.UserSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `
INSERT INTO user_settings (tg_id) VALUES ($1)
ON CONFLICT (tg_id) DO NOTHING
`, tgID); err != nil {
		return nil, err
	}
	var (
		st   types.UserSettings
		mode string
		diff *int16
	)
	err := s.pool.QueryRow(ctx, `
SELECT tg_id, mode, topic_id, difficulty
FROM user_settings
WHERE tg_id = $1
`, tgID).Scan(&st.TgID, &mode, &st.TopicID, &diff)
	if err != nil {
		return nil, err
	}
	st.Mode = types.QuizMode(mode)
	if diff != nil {
		d := int(*diff)
		st.Difficulty = &d
	}
	return &st, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, st types.UserSettings) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_settings (tg_id, mode, topic_id, difficulty)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tg_id) DO UPDATE SET
  mode = EXCLUDED.mode,
  topic_id = EXCLUDED.topic_id,
  difficulty = EXCLUDED.difficulty,
  updated_at = NOW()
`, st.TgID, string(st.Mode), st.TopicID, st.Difficulty)
	return err
}

const questionColumns = `id, q, a1, a2, a3, a4, correct, topic_id, difficulty, is_active, created_at`

func scanQuestion(row pgx.Row) (*types.Question, error) {
	var (
		q       types.Question
		correct int16
		diff    *int16
	)
	err := row.Scan(&q.ID, &q.Text, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &correct, &q.TopicID, &diff, &q.IsActive, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.Correct = int(correct)
	if diff != nil {
		d := int(*diff)
		q.Difficulty = &d
	}
	return &q, nil
}

func collectQuestions(rows pgx.Rows) ([]types.Question, error) {
	defer rows.Close()
	out := make([]types.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListQuestions(ctx context.Context, f types.QuestionFilter) ([]types.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where := []string{"is_active = TRUE"}
	args := []any{}
	switch {
	case f.Mode == types.ModeTopic && f.TopicID != nil:
		args = append(args, *f.TopicID)
		where = append(where, fmt.Sprintf("topic_id = $%d", len(args)))
	case f.Mode == types.ModeDifficulty && f.Difficulty != nil:
		args = append(args, *f.Difficulty)
		where = append(where, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 2000
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT %s
FROM questions
WHERE %s
ORDER BY id
LIMIT $%d
`, questionColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*types.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context, activeOnly bool) ([]types.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, title, is_active
FROM topics
WHERE is_active OR NOT $1
ORDER BY id
LIMIT 100
`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Topic, 0)
	for rows.Next() {
		var t types.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.IsActive); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EnsureTopic(ctx context.Context, title string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO topics (title) VALUES ($1)
ON CONFLICT (title) DO UPDATE SET title = EXCLUDED.title
RETURNING id
`, strings.TrimSpace(title)).Scan(&id)
	return id, err
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, a types.AnswerRecord, day time.Time, apply func(types.UserDay) types.DayUpdate) (*types.DayUpdate, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var update types.DayUpdate
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO answers (tg_id, question_id, selected_option, is_correct, mode)
VALUES ($1, $2, $3, $4, $5)
`, a.TgID, a.Question, a.Selected, a.IsCorrect, string(a.Mode)); err != nil {
			return err
		}

		if err := ensureDay(ctx, tx, a.TgID, day); err != nil {
			return err
		}
		current, err := scanDay(tx.QueryRow(ctx, `
SELECT `+dayColumns+`
FROM user_day
WHERE tg_id = $1 AND day = $2
FOR UPDATE
`, a.TgID, day))
		if err != nil {
			return err
		}

		update = apply(*current)
		if _, err := tx.Exec(ctx, `
UPDATE user_day
SET correct_count = $3, wrong_count = $4, streak_today = $5, is_blocked = $6
WHERE tg_id = $1 AND day = $2
`, a.TgID, day, update.CorrectCount, update.WrongCount, update.StreakToday, update.IsBlocked); err != nil {
			return err
		}

		correct, wrong := 0, 1
		if a.IsCorrect {
			correct, wrong = 1, 0
		}
		_, err = tx.Exec(ctx, `
UPDATE users
SET total_answers = total_answers + 1,
    total_correct = total_correct + $2,
    total_wrong = total_wrong + $3,
    best_streak = GREATEST(best_streak, $4),
    updated_at = NOW()
WHERE tg_id = $1
`, a.TgID, correct, wrong, update.StreakToday)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &update, nil
}

func (s *PostgresStore) UsePack(ctx context.Context, tgID int64, day time.Time, bonus int) (*types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ent *types.Entitlement
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		ent, err = scanEntitlement(tx.QueryRow(ctx, `
UPDATE entitlements
SET available_packs = available_packs - 1, updated_at = NOW()
WHERE user_id = $1 AND available_packs > 0
RETURNING `+entitlementColumns, tgID))
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrNoPacks
		}
		if err != nil {
			return err
		}
		if err := ensureDay(ctx, tx, tgID, day); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE user_day
SET bonus_limit = bonus_limit + $3, is_blocked = FALSE
WHERE tg_id = $1 AND day = $2
`, tgID, day, bonus)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func metricColumn(m types.Metric) (string, error) {
	switch m {
	case types.MetricTotalCorrect:
		return "total_correct", nil
	case types.MetricBestStreak:
		return "best_streak", nil
	default:
		return "", fmt.Errorf("unsupported leaderboard metric %q", m)
	}
}

func (s *PostgresStore) Top(ctx context.Context, metric types.Metric, limit int) ([]types.LeaderboardRow, error) {
	col, err := metricColumn(metric)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT tg_id, first_name, username, total_correct, best_streak
FROM users
ORDER BY `+col+` DESC, tg_id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.LeaderboardRow, 0, limit)
	for rows.Next() {
		var r types.LeaderboardRow
		if err := rows.Scan(&r.TgID, &r.FirstName, &r.Username, &r.TotalCorrect, &r.BestStreak); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Rank(ctx context.Context, tgID int64, metric types.Metric) (int, error) {
	col, err := metricColumn(metric)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var rank int
	err = s.pool.QueryRow(ctx, `
WITH me AS (
  SELECT COALESCE((SELECT `+col+` FROM users WHERE tg_id = $1), 0) AS v
)
SELECT 1 + COUNT(*)
FROM users u, me
WHERE u.`+col+` > me.v OR (u.`+col+` = me.v AND u.tg_id < $1)
`, tgID).Scan(&rank)
	return rank, err
}
