package messages

import (
	"fmt"
	"strings"
	"time"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка</b>\nПопробуйте ещё раз."
}

func ErrorUnsupportedMessageType() string {
	return "🤖 <b>Я так не умею</b>\nПользуйся кнопками меню."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Команда не найдена</b>"
}

func Welcome() string {
	return "👋 <b>Привет!</b>\nЭто бот для подготовки к олимпиаде. Нажми «Начать», чтобы получить вопрос."
}

func Help() string {
	return "ℹ️ <b>Как это работает</b>\n" +
		"Каждый день доступно несколько вопросов. Ошибка завершает день, безлимит снимает ограничения.\n\n" +
		"/start — начать\n/stats — моя статистика\n/rating — рейтинг\n/my_payments — мои покупки"
}

func MenuOpened() string {
	return "Выбери действие"
}

func Blocked() string {
	return "😴 На сегодня достаточно. Отдыхай до завтра."
}

func DailyDone(limit int) string {
	return fmt.Sprintf("✅ %d/%d на сегодня выполнено. Возвращайся завтра.", limit, limit)
}

func WrongStop() string {
	return "❌ Есть ошибка — отдыхай до завтра 😴"
}

func NoQuestions() string {
	return "Пока нет подходящих вопросов."
}

func OfferPacks(packs int) string {
	return fmt.Sprintf("У тебя есть пакеты: %d. Использовать один и получить ещё 10 вопросов?", packs)
}

func OfferPurchase() string {
	return "Хочешь продолжить сегодня? Купи пакет +10 вопросов или безлимит на 30 дней."
}

func Question(text string, options [4]string) string {
	var sb strings.Builder
	sb.WriteString("<b>" + Escape(text) + "</b>\n")
	for i, o := range options {
		fmt.Fprintf(&sb, "\n%d) %s", i+1, Escape(o))
	}
	return sb.String()
}

func Correct() string {
	return "✅ Верно"
}

func Wrong(correct int, option string) string {
	return fmt.Sprintf("❌ Неверно. Правильный ответ: %d) %s", correct, Escape(option))
}

func AnswerAccepted() string { return "Принято" }
func AnswerAlreadyAccepted() string { return "Ответ уже принят" }
func QuestionNotActive() string { return "Этот вопрос уже не активен" }
func InvalidAnswer() string { return "Некорректный ответ" }
func QuestionNotFound() string { return "Вопрос не найден" }

func PackUsed(left int) string {
	return fmt.Sprintf("🎁 Пакет использован: +10 вопросов на сегодня. Осталось пакетов: %d.", left)
}

func NoPacks() string {
	return "Пакетов нет."
}

type StatsView struct {
	TotalCorrect   int
	TotalWrong     int
	BestStreak     int
	StreakToday    int
	CorrectToday   int
	Limit          int
	Packs          int
	UnlimitedUntil *time.Time
}

func Stats(v StatsView) string {
	progress := fmt.Sprintf("%d/%d", v.CorrectToday, v.Limit)
	until := "нет"
	if v.UnlimitedUntil != nil {
		progress = "безлимит"
		until = FormatTime(*v.UnlimitedUntil)
	}
	return strings.Join([]string{
		"📊 <b>Моя статистика</b>",
		fmt.Sprintf("Всего верных: %d", v.TotalCorrect),
		fmt.Sprintf("Всего ошибок: %d", v.TotalWrong),
		fmt.Sprintf("Лучшая серия: %d", v.BestStreak),
		fmt.Sprintf("Серия сегодня: %d", v.StreakToday),
		fmt.Sprintf("Прогресс за сегодня: %s", progress),
		fmt.Sprintf("Пакеты +10: %d", v.Packs),
		fmt.Sprintf("Безлимит до: %s", until),
	}, "\n")
}

func RatingChoose() string {
	return "Выбери тип рейтинга:"
}

type RatingRow struct {
	Name  string
	Value int
}

func Rating(metric string, rows []RatingRow, rank int) string {
	title, emoji := "Всего верных", "✅"
	if metric == "best_streak" {
		title, emoji = "Лучшая серия", "🔥"
	}
	lines := []string{fmt.Sprintf("🏆 <b>Рейтинг: %s</b>", title)}
	if len(rows) == 0 {
		lines = append(lines, "Пока нет данных")
	}
	for i, r := range rows {
		lines = append(lines, fmt.Sprintf("%d. %s: %s %d", i+1, Escape(r.Name), emoji, r.Value))
	}
	lines = append(lines, "", fmt.Sprintf("Ваше место: %d", rank))
	return strings.Join(lines, "\n")
}

func RatingUnknown() string {
	return "Неизвестный тип рейтинга"
}

func PurchasesUnavailable() string {
	return "Покупки временно недоступны"
}

func InvoicePack10() (title, description string) {
	return "Пакет +10 вопросов", "Открывает +10 вопросов прямо сейчас"
}

func InvoiceUnlimited30() (title, description string) {
	return "Безлимит 30 дней", "Бесконечный доступ + гибкие режимы"
}

func InvalidPayment() string {
	return "Некорректный платеж"
}

func PaymentAlreadyProcessed() string {
	return "Оплата уже учтена ✅"
}

func PaymentPackGranted(packs int) string {
	return fmt.Sprintf("✅ Оплата принята. Добавлен пакет +10 вопросов. Доступно пакетов: %d.", packs)
}

func PaymentUnlimitedGranted(until time.Time) string {
	return fmt.Sprintf("✅ Безлимит активирован до %s.", FormatTime(until))
}

func PaymentFailed() string {
	return "Ошибка при обработке оплаты, мы уже видим платеж. Напиши администратору."
}

func PaymentUnknownProduct() string {
	return "Не удалось определить тип покупки. Напиши администратору."
}

func TestPaymentPrefix() string {
	return "🧪 Тестовая оплата. "
}

type PaymentLine struct {
	At       time.Time
	Product  string
	Amount   int64
	Currency string
	IsTest   bool
}

func MyPayments(packs int, unlimitedUntil *time.Time, recent []PaymentLine) string {
	unlimited := "не активен"
	if unlimitedUntil != nil {
		unlimited = "активен до " + FormatTime(*unlimitedUntil)
	}
	lines := []string{
		"🧾 <b>Мои покупки</b>",
		fmt.Sprintf("Пакеты +10: %d", packs),
		fmt.Sprintf("Безлимит: %s", unlimited),
		"",
		"Последние платежи:",
	}
	if len(recent) == 0 {
		lines = append(lines, "— пока нет")
	}
	for _, p := range recent {
		line := fmt.Sprintf("— %s | %s | %d %s", p.At.UTC().Format("2006-01-02 15:04"), p.Product, p.Amount, p.Currency)
		if p.IsTest {
			line += " (тест)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func UnlimitedOnly() string {
	return "Опция доступна только при активном безлимите"
}

func ChooseMode() string {
	return "Выбери режим выдачи вопросов:"
}

func ModeEnabled(mode string) string {
	return fmt.Sprintf("Режим %s включён", mode)
}

func AskTopic(lines []string) string {
	return "Отправь ID темы:\n" + strings.Join(lines, "\n")
}

func NoTopics() string {
	return "Нет активных тем"
}

func AskDifficulty() string {
	return "Отправь сложность 1..5"
}

func NeedNumber(what string) string {
	return "Нужно " + what
}

func Cancelled() string {
	return "Отменено"
}
