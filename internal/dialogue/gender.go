package dialogue

import (
	"strings"
	"unicode/utf8"

	"oral_exam_backend/internal/model"
)

// GuessGender looks at the last letter of the first name token. Russian
// feminine names mostly end in а, я or ь; ok reports whether the heuristic
// is confident (female only).
func GuessGender(name string) (gender model.TeacherGender, ok bool) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return model.GenderMale, false
	}
	first := strings.ToLower(fields[0])
	last, _ := utf8.DecodeLastRuneInString(first)
	switch last {
	case 'а', 'я', 'ь':
		return model.GenderFemale, true
	}
	return model.GenderMale, false
}

// ParseGenderAnswer reads a one-word oracle answer. Anything unrecognised
// is male.
func ParseGenderAnswer(answer string) model.TeacherGender {
	a := strings.ToLower(strings.TrimSpace(answer))
	switch {
	case strings.Contains(a, "female"), strings.Contains(a, "жен"):
		return model.GenderFemale
	case strings.Contains(a, "male"), strings.Contains(a, "муж"):
		return model.GenderMale
	default:
		return model.GenderMale
	}
}
