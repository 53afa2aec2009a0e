package model

type TeacherMood string

const (
	MoodNeutral      TeacherMood = "neutral"
	MoodHappy        TeacherMood = "happy"
	MoodDisappointed TeacherMood = "disappointed"
	MoodAngry        TeacherMood = "angry"
)

type TeacherGender string

const (
	GenderMale   TeacherGender = "male"
	GenderFemale TeacherGender = "female"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DialogueEntry is one line of a session's conversation log.
type DialogueEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is stored as a JSON column on the owning session.
type History []DialogueEntry

// Append returns a copy with entries added; the receiver is left untouched.
func (h History) Append(entries ...DialogueEntry) History {
	out := make(History, 0, len(h)+len(entries))
	out = append(out, h...)
	return append(out, entries...)
}
