package keyboard

import (
	"strings"
	"testing"
)

func TestLanguageSelector(t *testing.T) {
	kb := LanguageSelector([]string{"en", "ru", "xx"}, "ru")

	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(kb.InlineKeyboard))
	}

	active := kb.InlineKeyboard[1][0]
	if !strings.HasPrefix(active.Text, "✅") {
		t.Errorf("expected active language marked, got %q", active.Text)
	}
	if *active.CallbackData != "lang:ru" {
		t.Errorf("unexpected callback data: %s", *active.CallbackData)
	}

	// Unknown codes fall back to the uppercased code
	if kb.InlineKeyboard[2][0].Text != "XX" {
		t.Errorf("expected XX label, got %q", kb.InlineKeyboard[2][0].Text)
	}
}

func TestParseLanguageCallback(t *testing.T) {
	cases := []struct {
		data string
		code string
		ok   bool
	}{
		{"lang:en", "en", true},
		{"lang:ru", "ru", true},
		{"lang:", "", false},
		{"other:en", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		code, ok := ParseLanguageCallback(tc.data)
		if code != tc.code || ok != tc.ok {
			t.Errorf("ParseLanguageCallback(%q) = (%q, %v), want (%q, %v)",
				tc.data, code, ok, tc.code, tc.ok)
		}
	}
}

func TestHelpLink(t *testing.T) {
	kb := HelpLink("Docs", "https://example.com")
	btn := kb.InlineKeyboard[0][0]
	if btn.Text != "Docs" || *btn.URL != "https://example.com" {
		t.Errorf("unexpected button: %+v", btn)
	}
}
