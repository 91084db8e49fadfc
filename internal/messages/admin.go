package messages

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func AdminMenu() string {
	return "🛠 <b>Админ-меню</b>"
}

func AdminDenied() string {
	return "Недостаточно прав"
}

func AdminStats(users, answers, unlimited int64) string {
	return fmt.Sprintf("Пользователей: %d\nОтветов: %d\nАктивных безлимитов: %d", users, answers, unlimited)
}

var addQuestionPrompts = []string{
	"Текст вопроса?",
	"Вариант 1?",
	"Вариант 2?",
	"Вариант 3?",
	"Вариант 4?",
	"Номер правильного варианта (1-4)?",
	"ID темы (или - чтобы пропустить)?",
	"Сложность 1..5 (или - чтобы пропустить)?",
}

func AddQuestionPrompt(step int) string {
	if step < 0 || step >= len(addQuestionPrompts) {
		return ""
	}
	return addQuestionPrompts[step]
}

func AddQuestionSteps() int {
	return len(addQuestionPrompts)
}

func QuestionAdded(id int64) string {
	return fmt.Sprintf("✅ Вопрос добавлен (id=%d)", id)
}

func QuestionDuplicate() string {
	return "Такой вопрос уже есть"
}

func BulkImportHelp() string {
	return "Отправь текст импорта. Один блок = один вопрос.\n" +
		"Можно с разделителем --- или без него (тогда каждый новый блок начинается с Q:/В:).\n\n" +
		"Формат:\n" +
		"Q: &lt;текст вопроса&gt; (или В:)\n" +
		"A) &lt;вариант 1&gt; / A: &lt;вариант 1&gt;\n" +
		"B) …\nC) …\nD) …\n" +
		"ANS: &lt;A|B|C|D&gt;\nTOPIC_ID: &lt;число, необязательно&gt;\nDIFF: &lt;1-5, необязательно&gt;\nACTIVE: &lt;true|false, необязательно&gt;"
}

func BulkEmpty() string {
	return "Не нашёл ни одного блока для импорта"
}

func BulkReport(added, duplicates int, errs []string) string {
	lines := []string{
		"📥 <b>Импорт завершён</b>",
		fmt.Sprintf("Добавлено: %d", added),
		fmt.Sprintf("Дубликатов: %d", duplicates),
		fmt.Sprintf("Ошибок: %d", len(errs)),
	}
	const maxShown = 10
	for i, e := range errs {
		if i == maxShown {
			lines = append(lines, fmt.Sprintf("… и ещё %d", len(errs)-maxShown))
			break
		}
		lines = append(lines, "— "+Escape(e))
	}
	return strings.Join(lines, "\n")
}

type QuestionLine struct {
	ID     int64
	Text   string
	Active bool
}

func RecentQuestions(rows []QuestionLine) string {
	if len(rows) == 0 {
		return "Вопросов пока нет"
	}
	lines := []string{fmt.Sprintf("Последние %d вопросов:", len(rows))}
	for _, r := range rows {
		status := "⛔"
		if r.Active {
			status = "✅"
		}
		text := strings.Join(strings.Fields(r.Text), " ")
		if utf8.RuneCountInString(text) > 70 {
			text = string([]rune(text)[:70]) + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s", r.ID, status, Escape(text)))
	}
	return strings.Join(lines, "\n")
}

func AskQuestionID() string {
	return "Отправь ID вопроса для переключения активности"
}

func QuestionToggled(id int64, active bool) string {
	state := "выключен"
	if active {
		state = "активен"
	}
	return fmt.Sprintf("Статус вопроса %d: %s", id, state)
}

func AskGrantAdmin() string {
	return "Отправь tg_id нового админа и, при желании, роль (editor/admin)"
}

func AdminGranted(target int64, role string) string {
	return fmt.Sprintf("Админка выдана %d (role=%s)", target, role)
}

func AdminRevoked(target int64) string {
	return fmt.Sprintf("Админка снята у %d", target)
}

func AskTgID(purpose string) string {
	return "Отправь tg_id пользователя " + purpose
}

func ChooseDays() string {
	return "Выбери срок безлимита:"
}

func AskDays() string {
	return "Введи число дней (1..365)"
}

func UnlimitedGranted(target int64, until string, days int) string {
	return fmt.Sprintf("✅ Безлимит выдан пользователю %d до %s (добавлено %d дней)", target, until, days)
}

func UnlimitedRevoked(target int64) string {
	return fmt.Sprintf("✅ Безлимит снят у пользователя %d", target)
}

func AskTopicTitle() string {
	return "Название новой темы?"
}

func TopicAdded(id int64, title string) string {
	return fmt.Sprintf("✅ Тема %d: %s", id, Escape(title))
}

func TargetNotAdmin(target int64) string {
	return fmt.Sprintf("%d не админ", target)
}
