package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_ShortTextUntouched(t *testing.T) {
	got := splitMessage("Сауна работает с 10 до 22.", 4000)
	if len(got) != 1 || got[0] != "Сауна работает с 10 до 22." {
		t.Fatalf("got %q", got)
	}
}

func TestSplitMessage_PrefersNewlineInBackHalf(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := splitMessage(text, 40)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if got[0] != strings.Repeat("a", 30) {
		t.Errorf("first chunk = %q, want cut at the newline", got[0])
	}
}

func TestSplitMessage_NeverCutsMidRune(t *testing.T) {
	// Cyrillic runes are 2 bytes, so an odd byte limit with no newline
	// forces the cut off a rune boundary.
	text := strings.Repeat("ы", 40)
	got := splitMessage(text, 15)

	var rejoined strings.Builder
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is invalid UTF-8: %q", i, chunk)
		}
		if len(chunk) > 15 {
			t.Errorf("chunk %d is %d bytes, over the limit", i, len(chunk))
		}
		rejoined.WriteString(chunk)
	}
	if rejoined.String() != text {
		t.Error("chunks do not rejoin to the original text")
	}
}

func TestSplitMessage_MixedTextRoundTrips(t *testing.T) {
	text := strings.Repeat("Завтрак подаётся с 8:00 до 11:00 в ресторане на первом этаже. ", 200)
	got := splitMessage(text, telegramMaxMsgLen)
	if len(got) < 2 {
		t.Fatalf("chunks = %d, expected the text to be split", len(got))
	}
	var rejoined strings.Builder
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is invalid UTF-8", i)
		}
		rejoined.WriteString(chunk)
	}
	if rejoined.String() != text {
		t.Error("chunks do not rejoin to the original text")
	}
}
