package types

import "time"

// QuizSession is the per-user runtime state between a question and its answer.
type QuizSession struct {
	UserID           int64     `json:"user_id"`
	AskedIDs         []int64   `json:"asked_ids,omitempty"`
	ActiveQuestionID int64     `json:"active_question_id,omitempty"`
	AnsweredActive   bool      `json:"answered_active"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *QuizSession) Asked(id int64) bool {
	for _, a := range s.AskedIDs {
		if a == id {
			return true
		}
	}
	return false
}

// Dialog is a multi-step input flow waiting for the user's next message.
type Dialog struct {
	Name      DialogName        `json:"name"`
	Step      int               `json:"step"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type SessionStore interface {
	GetQuizSession(userID int64) (*QuizSession, error)
	SaveQuizSession(session *QuizSession) error
	ResetQuizSession(userID int64) error
	AcquireAnswerLock(userID, questionID int64) (bool, error)

	GetDialog(userID int64) (*Dialog, error)
	SetDialog(userID int64, dialog *Dialog) error
	ClearDialog(userID int64) error
}
