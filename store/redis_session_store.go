package store

import (
	"errors"
	"strconv"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

// RedisSessionStore keeps short-lived per-user state: the current quiz
// question and any admin dialog in progress.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionStore(redisClient *RedisClient, ttlHours int) *RedisSessionStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSessionStore{
		client: redisClient,
		ttl:    ttl,
		now:    time.Now,
	}
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *RedisSessionStore) GetQuizSession(userID int64) (*types.QuizSession, error) {
	key := s.client.generateKey("quiz", userKey(userID))
	var session types.QuizSession
	if err := s.client.Get(key, &session); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return &types.QuizSession{UserID: userID}, nil
		}
		return nil, err
	}
	session.UserID = userID
	return &session, nil
}

func (s *RedisSessionStore) SaveQuizSession(session *types.QuizSession) error {
	session.UpdatedAt = s.now()
	key := s.client.generateKey("quiz", userKey(session.UserID))
	return s.client.Set(key, session, s.ttl)
}

func (s *RedisSessionStore) ResetQuizSession(userID int64) error {
	return s.client.Del(s.client.generateKey("quiz", userKey(userID)))
}

// GetDialog returns nil, nil when the user has no dialog open.
func (s *RedisSessionStore) GetDialog(userID int64) (*types.Dialog, error) {
	key := s.client.generateKey("dialog", userKey(userID))
	var dialog types.Dialog
	if err := s.client.Get(key, &dialog); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if dialog.Data == nil {
		dialog.Data = map[string]string{}
	}
	return &dialog, nil
}

func (s *RedisSessionStore) SetDialog(userID int64, dialog *types.Dialog) error {
	dialog.UpdatedAt = s.now()
	key := s.client.generateKey("dialog", userKey(userID))
	return s.client.Set(key, dialog, s.ttl)
}

func (s *RedisSessionStore) ClearDialog(userID int64) error {
	return s.client.Del(s.client.generateKey("dialog", userKey(userID)))
}

// AcquireAnswerLock lets exactly one of several concurrent callbacks for the
// same question through.
func (s *RedisSessionStore) AcquireAnswerLock(userID, questionID int64) (bool, error) {
	key := s.client.generateKey("answer_lock", userKey(userID), strconv.FormatInt(questionID, 10))
	return s.client.SetNX(key, 10*time.Second)
}
