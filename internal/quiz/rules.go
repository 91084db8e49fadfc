package quiz

import (
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

type Outcome string

const (
	OutcomeCorrect         Outcome = "correct"
	OutcomeWrong           Outcome = "wrong"
	OutcomeDailyDone       Outcome = "daily_done"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeAlreadyAnswered Outcome = "already_answered"
	OutcomeStaleQuestion   Outcome = "stale_question"
)

// Recorded reports whether the answer was stored.
func (o Outcome) Recorded() bool {
	return o != OutcomeAlreadyAnswered && o != OutcomeStaleQuestion
}

type Reason string

const (
	ReasonNone      Reason = ""
	ReasonBlocked   Reason = "blocked"
	ReasonDailyDone Reason = "daily_done"
)

// Today returns the calendar day of now in loc, as a UTC midnight suitable
// for a DATE column.
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextMidnight is the start of the following day in loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func DayLimit(day types.UserDay, base int) int {
	return base + day.BonusLimit
}

// CanStart decides whether another question may be asked today.
func CanStart(day types.UserDay, unlimited bool, base int) Reason {
	switch {
	case unlimited:
		return ReasonNone
	case day.IsBlocked:
		return ReasonBlocked
	case day.CorrectCount >= DayLimit(day, base):
		return ReasonDailyDone
	default:
		return ReasonNone
	}
}

// Evaluate applies one answer to the day counters. A wrong answer resets the
// streak and, without unlimited access, blocks the rest of the day.
func Evaluate(day types.UserDay, correct, unlimited bool) types.DayUpdate {
	u := types.DayUpdate{
		CorrectCount: day.CorrectCount,
		WrongCount:   day.WrongCount,
		StreakToday:  day.StreakToday,
		IsBlocked:    day.IsBlocked,
	}
	if correct {
		u.CorrectCount++
		u.StreakToday++
		return u
	}
	u.WrongCount++
	u.StreakToday = 0
	if !unlimited {
		u.IsBlocked = true
	}
	return u
}

func outcomeOf(u types.DayUpdate, bonus int, correct, unlimited bool, base int) Outcome {
	switch {
	case unlimited && correct:
		return OutcomeCorrect
	case unlimited:
		return OutcomeWrong
	case !correct:
		return OutcomeBlocked
	case u.CorrectCount >= base+bonus:
		return OutcomeDailyDone
	default:
		return OutcomeCorrect
	}
}
