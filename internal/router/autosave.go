package router

import "strings"

// The auto-save classifier decides whether a resolved operator Q&A pair is
// worth learning. Both tables are plain substring indicators evaluated
// first-match-wins; personal indicators always take precedence, and an
// unclassified question is not saved (better to skip than to pollute the
// knowledge base).

// personalIndicators mark a question as one-off: bookings, dates and times,
// personal data, short acknowledgements.
var personalIndicators = []string{
	// booking requests
	"запиши", "запишите", "записать", "забронируй", "забронировать",
	"бронь", "хочу записаться", "можно записаться",
	// dates and times
	"на завтра", "на сегодня", "на послезавтра", "на выходные",
	"на понедельник", "на вторник", "на среду", "на четверг",
	"на пятницу", "на субботу", "на воскресенье",
	"в понедельник", "в воскресенье",
	"на утро", "на вечер", "на день", "днём", "утром", "вечером",
	"на 1", "на 2", "на 3", "на 4", "на 5", "на 6", "на 7", "на 8",
	"на 9", "на 10", "на 11", "на 12",
	":00", ":30", "часов", "час дня", "часа",
	// personal data
	"меня зовут", "мой номер", "мой телефон", "перезвоните",
	"я буду", "мы придём", "нас будет", "человек",
	// acknowledgements
	"спасибо", "хорошо", "ок", "понял", "ясно", "отлично",
	"да", "нет", "рахмат", "thanks",
}

// generalIndicators mark a question as reusable: pricing, location, hours,
// service descriptions.
var generalIndicators = []string{
	// pricing
	"сколько стоит", "какая цена", "прайс", "стоимость", "цены",
	"почём", "во сколько обойдётся",
	// location and hours
	"где находитесь", "где вы", "адрес", "как добраться", "как доехать",
	"режим работы", "во сколько открываетесь", "до скольки работаете",
	"когда работаете", "график работы", "выходные",
	// services
	"какие есть", "что есть", "что включает", "что входит",
	"расскажите про", "расскажи про", "что такое",
	"чем отличается", "в чём разница", "какая разница",
	// conditions
	"можно ли", "есть ли", "а есть",
	"с детьми", "для детей", "для взрослых",
	"скидки", "акции",
	// specific offerings
	"мастер-класс", "мастер класс", "свидание", "vip", "silver",
	"курс", "курсы", "отель", "номер", "аренда",
}

// Classifier decides whether a question should be auto-saved to the
// knowledge base. The zero value uses the built-in indicator tables; extra
// indicators loaded from a rules file are appended after them.
type Classifier struct {
	personal []string
	general  []string
}

func NewClassifier() *Classifier {
	return &Classifier{personal: personalIndicators, general: generalIndicators}
}

// Extend appends deployment-specific indicators after the built-in tables.
func (c *Classifier) Extend(rules RuleSet) {
	c.personal = append(c.personal, rules.Personal...)
	c.general = append(c.general, rules.General...)
}

// ShouldAutoSave reports whether the question looks like reusable general
// knowledge. Personal indicators short-circuit to false even when a general
// indicator is also present.
func (c *Classifier) ShouldAutoSave(question string) bool {
	q := strings.ToLower(question)

	for _, indicator := range c.personal {
		if strings.Contains(q, indicator) {
			return false
		}
	}
	for _, indicator := range c.general {
		if strings.Contains(q, indicator) {
			return true
		}
	}
	return false
}
