package dialogue

import (
	"strings"

	"oral_exam_backend/internal/model"
)

const (
	VoiceJane  = "jane"
	VoiceOmazh = "omazh"
	VoiceZahar = "zahar"
	VoiceErmil = "ermil"
)

const (
	EmotionNeutral  = "neutral"
	EmotionPositive = "positive"
	EmotionNegative = "negative"
)

// ParseMood clamps free-form oracle output to a known mood.
func ParseMood(s string) model.TeacherMood {
	switch m := model.TeacherMood(strings.ToLower(strings.TrimSpace(s))); m {
	case model.MoodNeutral, model.MoodHappy, model.MoodDisappointed, model.MoodAngry:
		return m
	default:
		return model.MoodNeutral
	}
}

// VoiceFor picks the synthesis voice for a teacher of the given gender in
// the given mood. Unknown genders use the male voices.
func VoiceFor(gender model.TeacherGender, mood model.TeacherMood) string {
	mood = ParseMood(string(mood))
	if gender == model.GenderFemale {
		switch mood {
		case model.MoodDisappointed, model.MoodAngry:
			return VoiceOmazh
		default:
			return VoiceJane
		}
	}
	if mood == model.MoodDisappointed {
		return VoiceErmil
	}
	return VoiceZahar
}

func EmotionFor(mood model.TeacherMood) string {
	switch ParseMood(string(mood)) {
	case model.MoodHappy:
		return EmotionPositive
	case model.MoodAngry:
		return EmotionNegative
	default:
		return EmotionNeutral
	}
}
