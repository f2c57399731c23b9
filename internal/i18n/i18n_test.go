package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ReviewNotFound")
	if got != "Review not found." {
		t.Errorf("T(ReviewNotFound) = %q, want 'Review not found.'", got)
	}

	got = T(ctx, "MissingPracticalLink")
	if got != "Please provide the Question Link to complete the evaluation." {
		t.Errorf("T(MissingPracticalLink) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "ReviewNotFound")
	if got != "Ревью не найдено." {
		t.Errorf("T(ReviewNotFound) = %q, want 'Ревью не найдено.'", got)
	}

	got = T(ctx, "SessionClosed")
	if got != "Сессия оценивания завершена." {
		t.Errorf("T(SessionClosed) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MarkQuestionFirst", map[string]any{"Number": 3})
	if got != "Please mark Question 3 before submitting." {
		t.Errorf("Td(MarkQuestionFirst, Number=3) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
