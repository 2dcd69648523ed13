package router

import "testing"

func TestShouldAutoSave_GeneralQuestions(t *testing.T) {
	c := NewClassifier()
	general := []string{
		"Сколько стоит мастер-класс?",
		"Где находитесь?",
		"Какие есть курсы для детей?",
		"Режим работы в праздники",
		"Что включает VIP пакет?",
	}
	for _, q := range general {
		if !c.ShouldAutoSave(q) {
			t.Errorf("ShouldAutoSave(%q) = false, want true", q)
		}
	}
}

func TestShouldAutoSave_PersonalQuestions(t *testing.T) {
	c := NewClassifier()
	personal := []string{
		"Запишите меня на завтра в 14:00",
		"Забронируйте столик на субботу",
		"Меня зовут Ирина, перезвоните мне",
		"Спасибо, всё понятно",
	}
	for _, q := range personal {
		if c.ShouldAutoSave(q) {
			t.Errorf("ShouldAutoSave(%q) = true, want false", q)
		}
	}
}

func TestShouldAutoSave_PersonalTakesPrecedence(t *testing.T) {
	c := NewClassifier()
	// Both a general and a personal indicator present: personal wins.
	if c.ShouldAutoSave("Запишите меня на мастер-класс") {
		t.Fatal("booking request must not be saved even when it names a service")
	}
}

func TestShouldAutoSave_Unclassified(t *testing.T) {
	c := NewClassifier()
	if c.ShouldAutoSave("лунная тропа") {
		t.Fatal("question matching no indicator must not be saved")
	}
}

func TestClassifier_Extend(t *testing.T) {
	c := NewClassifier()
	if c.ShouldAutoSave("есть ли у вас глэмпинг") != true {
		// "есть ли" is a built-in general indicator, sanity check
		t.Fatal("built-in indicators lost")
	}

	c.Extend(RuleSet{General: []string{"трансфер"}, Personal: []string{"мой заказ"}})
	if !c.ShouldAutoSave("трансфер из аэропорта бывает?") {
		t.Error("extended general indicator not applied")
	}
	if c.ShouldAutoSave("где мой заказ, трансфер уже оплачен") {
		t.Error("extended personal indicator must take precedence")
	}
}
