package dialogue

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"oral_exam_backend/internal/model"
)

// Window returns at most the last n entries.
func Window(h model.History, n int) model.History {
	if n <= 0 {
		return nil
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// Truncate cuts s to at most n characters (runes, not bytes).
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func FormatHistory(h model.History) string {
	var sb strings.Builder
	for i, e := range h {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", e.Role, e.Content)
	}
	return sb.String()
}

// PersonaLine is the system entry that opens every session log.
func PersonaLine(p Persona) string {
	return fmt.Sprintf("Преподаватель: %s, Предмет: %s", p.Name, p.Subject)
}

func StudentLine(text string) string {
	return "Студент: " + text
}

// Greeting is the fixed opening line of a study session.
func Greeting(p Persona) string {
	return fmt.Sprintf("Здравствуй! Я %s, помогу тебе подготовиться к экзамену по %s. Задавай вопросы, и я объясню материал.", p.Name, p.Subject)
}
