// Package keyboard builds the inline keyboards the bot attaches to
// replies. Builders are pure functions over explicit inputs, so there
// is no shared keyboard state to invalidate.
package keyboard

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// languageCallbackPrefix namespaces language selection callbacks.
const languageCallbackPrefix = "lang:"

// languageLabels maps language codes to display labels.
var languageLabels = map[string]string{
	"en": "🇬🇧 English",
	"ru": "🇷🇺 Русский",
	"de": "🇩🇪 Deutsch",
	"es": "🇪🇸 Español",
	"fr": "🇫🇷 Français",
}

// LanguageSelector builds an inline keyboard offering the given
// language codes, marking the active one.
func LanguageSelector(supported []string, active string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(supported))
	for _, code := range supported {
		label, ok := languageLabels[code]
		if !ok {
			label = strings.ToUpper(code)
		}
		if code == active {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, languageCallbackPrefix+code),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ParseLanguageCallback extracts the language code from a callback
// payload produced by LanguageSelector.
func ParseLanguageCallback(data string) (string, bool) {
	code, ok := strings.CutPrefix(data, languageCallbackPrefix)
	if !ok || code == "" {
		return "", false
	}
	return code, true
}

// HelpLink builds a single-button keyboard pointing at a URL.
func HelpLink(label, url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(label, url),
		),
	)
}

// LabelFor returns the display label for a language code.
func LabelFor(code string) string {
	if label, ok := languageLabels[code]; ok {
		return label
	}
	return strings.ToUpper(code)
}
