package dialogue

import "oral_exam_backend/internal/model"

const (
	ExamRedirect  = "Давай вернемся к теме экзамена."
	StudyRedirect = "Давай вернемся к теме подготовки."
)

// Grading is the oracle's assessment of one answer.
type Grading struct {
	IsCorrect        bool
	Feedback         string
	Mood             model.TeacherMood
	AskFollowUp      bool
	FollowUpQuestion string
	ExamCompleted    bool
	OffTopic         bool
}

// OffTopicResult is the outcome of the dedicated relevance check.
type OffTopicResult struct {
	OffTopic        bool
	RedirectMessage string
}

// Verdict is the final decision for a turn after arbitration.
type Verdict struct {
	IsCorrect        bool
	Feedback         string
	Mood             model.TeacherMood
	AskFollowUp      bool
	FollowUpQuestion string
	ExamCompleted    bool
	OffTopic         bool
}

// Merge combines grading with the relevance check. When either flags the
// answer as off-topic the feedback becomes a redirect, the answer counts as
// wrong and no follow-up text survives, so the cursor stays put.
func Merge(g Grading, o OffTopicResult, fallbackRedirect string) Verdict {
	v := Verdict{
		IsCorrect:        g.IsCorrect,
		Feedback:         g.Feedback,
		Mood:             ParseMood(string(g.Mood)),
		AskFollowUp:      g.AskFollowUp,
		FollowUpQuestion: g.FollowUpQuestion,
		ExamCompleted:    g.ExamCompleted,
	}
	if !g.OffTopic && !o.OffTopic {
		return v
	}

	redirect := o.RedirectMessage
	if redirect == "" {
		redirect = fallbackRedirect
	}
	v.OffTopic = true
	v.Feedback = redirect
	v.IsCorrect = false
	v.AskFollowUp = true
	v.FollowUpQuestion = ""
	v.ExamCompleted = false
	return v
}

type AdvanceKind int

const (
	// Stay keeps the current question; used for off-topic turns.
	Stay AdvanceKind = iota
	FollowUp
	NextQuestion
	Complete
)

func (k AdvanceKind) String() string {
	switch k {
	case Stay:
		return "stay"
	case FollowUp:
		return "follow_up"
	case NextQuestion:
		return "next_question"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Advance says what happens to the question cursor after a turn.
type Advance struct {
	Kind AdvanceKind
	// Index is the cursor value after the turn.
	Index int
	// Text is the follow-up question when Kind is FollowUp.
	Text string
}

// Creates reports whether the turn allocates a new question.
func (a Advance) Creates() bool {
	return a.Kind == FollowUp || a.Kind == NextQuestion
}

// Decide applies the advancement rule to a merged verdict. A follow-up
// request without question text falls through to the next scheduled
// question.
func Decide(v Verdict, cursor int) Advance {
	switch {
	case v.OffTopic:
		return Advance{Kind: Stay, Index: cursor}
	case v.AskFollowUp && v.FollowUpQuestion != "":
		return Advance{Kind: FollowUp, Index: cursor + 1, Text: v.FollowUpQuestion}
	case !v.ExamCompleted:
		return Advance{Kind: NextQuestion, Index: cursor + 1}
	default:
		return Advance{Kind: Complete, Index: cursor}
	}
}
