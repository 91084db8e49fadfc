package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) GetAdminRole(ctx context.Context, tgID int64) (types.AdminRole, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM admins WHERE tg_id = $1`, tgID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return types.AdminRole(role), true, nil
}

func (s *PostgresStore) SetAdminRole(ctx context.Context, tgID int64, role types.AdminRole) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO admins (tg_id, role) VALUES ($1, $2)
ON CONFLICT (tg_id) DO UPDATE SET role = EXCLUDED.role
`, tgID, string(role))
	return err
}

func (s *PostgresStore) DeleteAdmin(ctx context.Context, tgID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE tg_id = $1`, tgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// InsertQuestion returns types.ErrDuplicateQuest when a question with the same
// normalized text already exists.
func (s *PostgresStore) InsertQuestion(ctx context.Context, q types.Question) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO questions (q, a1, a2, a3, a4, correct, topic_id, difficulty, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (q_hash) DO NOTHING
RETURNING id
`, strings.TrimSpace(q.Text), q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.Correct, q.TopicID, q.Difficulty, q.IsActive).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, types.ErrDuplicateQuest
	}
	return id, err
}

func (s *PostgresStore) ToggleQuestion(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var active bool
	err := s.pool.QueryRow(ctx, `UPDATE questions SET is_active = NOT is_active WHERE id = $1 RETURNING is_active`, id).Scan(&active)
	if err != nil {
		return false, notFound(err)
	}
	return active, nil
}

func (s *PostgresStore) RecentQuestions(ctx context.Context, limit int) ([]types.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+questionColumns+`
FROM questions
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

func (s *PostgresStore) AdminStats(ctx context.Context) (*types.AdminStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var st types.AdminStats
	err := s.pool.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM answers),
  (SELECT COUNT(*) FROM entitlements WHERE unlimited_until > $1)
`, s.now().UTC()).Scan(&st.TotalUsers, &st.TotalAnswers, &st.ActiveUnlimited)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
