package quiz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

var (
	questionStartRe = regexp.MustCompile(`(?i)^\s*(?:Q|В)\s*:\s*`)
	optionRe        = regexp.MustCompile(`(?i)^([ABCD])\s*[):]\s*(.+)$`)
	fieldRe         = regexp.MustCompile(`(?i)^([A-ZА-Я_]+)\s*:\s*(.*)$`)
	separatorRe     = regexp.MustCompile(`^\s*---\s*$`)
)

// SplitBlocks cuts bulk text into one block per question. Lines of "---"
// separate blocks; without any separator a new block starts at every Q:/В:
// line.
func SplitBlocks(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var (
		blocks  []string
		current []string
	)
	flush := func() {
		if b := strings.TrimSpace(strings.Join(current, "\n")); b != "" {
			blocks = append(blocks, b)
		}
		current = current[:0]
	}

	hasSeparator := false
	for _, l := range lines {
		if separatorRe.MatchString(l) {
			hasSeparator = true
			break
		}
	}

	for _, l := range lines {
		if hasSeparator {
			if separatorRe.MatchString(l) {
				flush()
				continue
			}
		} else if questionStartRe.MatchString(l) && len(current) > 0 {
			flush()
		}
		current = append(current, l)
	}
	flush()
	return blocks
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "да":
		return true, true
	case "false", "0", "no", "n", "нет":
		return false, true
	}
	return false, false
}

// ParseBlock turns one block into a question. Error texts are shown to the
// admin as is.
func ParseBlock(block string) (*types.Question, error) {
	q := &types.Question{IsActive: true}
	options := map[string]string{}

	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := optionRe.FindStringSubmatch(line); m != nil {
			options[strings.ToUpper(m[1])] = strings.TrimSpace(m[2])
			continue
		}
		if questionStartRe.MatchString(line) {
			q.Text = strings.TrimSpace(questionStartRe.ReplaceAllString(line, ""))
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("непонятная строка: %s", line)
		}
		key, value := strings.ToUpper(m[1]), strings.TrimSpace(m[2])

		switch key {
		case "ANS":
			idx := strings.Index("ABCD", strings.ToUpper(value))
			if len(value) != 1 || idx < 0 {
				return nil, errors.New("ANS должен быть A/B/C/D")
			}
			q.Correct = idx + 1
		case "TOPIC_ID":
			if value == "" {
				continue
			}
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.New("TOPIC_ID должен быть числом")
			}
			q.TopicID = &id
		case "DIFF":
			if value == "" {
				continue
			}
			d, err := strconv.Atoi(value)
			if err != nil || d < 1 || d > 5 {
				return nil, errors.New("DIFF должен быть числом 1..5")
			}
			q.Difficulty = &d
		case "ACTIVE":
			if value == "" {
				continue
			}
			b, ok := parseBool(value)
			if !ok {
				return nil, errors.New("ACTIVE должен быть true/false")
			}
			q.IsActive = b
		default:
			return nil, fmt.Errorf("неизвестное поле %s", key)
		}
	}

	if q.Text == "" {
		return nil, errors.New("не заполнен Q")
	}
	for i, letter := range []string{"A", "B", "C", "D"} {
		if options[letter] == "" {
			return nil, fmt.Errorf("отсутствует вариант %s", letter)
		}
		q.Options[i] = options[letter]
	}
	if q.Correct == 0 {
		return nil, errors.New("не заполнен ANS")
	}
	return q, nil
}

type BlockError struct {
	Block int
	Err   error
}

func (e BlockError) Error() string {
	return fmt.Sprintf("блок %d: %v", e.Block, e.Err)
}

type ImportReport struct {
	Added      int
	Duplicates int
	Errors     []BlockError
}

type QuestionWriter interface {
	InsertQuestion(ctx context.Context, q types.Question) (int64, error)
}

// Import parses raw and inserts every valid block. Bad blocks are reported
// and skipped; a storage error other than a duplicate aborts the import.
func Import(ctx context.Context, w QuestionWriter, raw string) (*ImportReport, error) {
	report := &ImportReport{}
	for i, block := range SplitBlocks(raw) {
		q, err := ParseBlock(block)
		if err != nil {
			report.Errors = append(report.Errors, BlockError{Block: i + 1, Err: err})
			continue
		}
		if _, err := w.InsertQuestion(ctx, *q); err != nil {
			if errors.Is(err, types.ErrDuplicateQuest) {
				report.Duplicates++
				continue
			}
			return report, fmt.Errorf("block %d: %w", i+1, err)
		}
		report.Added++
	}
	return report, nil
}
