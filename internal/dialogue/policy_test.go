package dialogue

import (
	"strings"
	"testing"

	"oral_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMood(t *testing.T) {
	tests := map[string]model.TeacherMood{
		"neutral":      model.MoodNeutral,
		"happy":        model.MoodHappy,
		" Angry ":      model.MoodAngry,
		"disappointed": model.MoodDisappointed,
		"furious":      model.MoodNeutral,
		"":             model.MoodNeutral,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMood(in), in)
	}
}

func TestVoiceAndEmotionTable(t *testing.T) {
	tests := []struct {
		gender  model.TeacherGender
		mood    model.TeacherMood
		voice   string
		emotion string
	}{
		{model.GenderFemale, model.MoodNeutral, VoiceJane, EmotionNeutral},
		{model.GenderFemale, model.MoodHappy, VoiceJane, EmotionPositive},
		{model.GenderFemale, model.MoodDisappointed, VoiceOmazh, EmotionNeutral},
		{model.GenderFemale, model.MoodAngry, VoiceOmazh, EmotionNegative},
		{model.GenderMale, model.MoodNeutral, VoiceZahar, EmotionNeutral},
		{model.GenderMale, model.MoodHappy, VoiceZahar, EmotionPositive},
		{model.GenderMale, model.MoodAngry, VoiceZahar, EmotionNegative},
		{model.GenderMale, model.MoodDisappointed, VoiceErmil, EmotionNeutral},
		{model.GenderFemale, "sarcastic", VoiceJane, EmotionNeutral},
		{"", model.MoodDisappointed, VoiceErmil, EmotionNeutral},
	}
	for _, tt := range tests {
		t.Run(string(tt.gender)+"/"+string(tt.mood), func(t *testing.T) {
			assert.Equal(t, tt.voice, VoiceFor(tt.gender, tt.mood))
			assert.Equal(t, tt.emotion, EmotionFor(tt.mood))
		})
	}
}

func TestGuessGender(t *testing.T) {
	tests := []struct {
		name          string
		wantGender    model.TeacherGender
		wantConfident bool
	}{
		{"Анна Петровна", model.GenderFemale, true},
		{"Мария", model.GenderFemale, true},
		{"Любовь Орлова", model.GenderFemale, true},
		{"ИРИНА", model.GenderFemale, true},
		{"Иван Сергеевич", model.GenderMale, false},
		{"", model.GenderMale, false},
		{"   ", model.GenderMale, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := GuessGender(tt.name)
			assert.Equal(t, tt.wantGender, g)
			assert.Equal(t, tt.wantConfident, ok)
		})
	}
}

func TestParseGenderAnswer(t *testing.T) {
	assert.Equal(t, model.GenderFemale, ParseGenderAnswer("female"))
	assert.Equal(t, model.GenderFemale, ParseGenderAnswer(" Female."))
	assert.Equal(t, model.GenderFemale, ParseGenderAnswer("женский"))
	assert.Equal(t, model.GenderMale, ParseGenderAnswer("male"))
	assert.Equal(t, model.GenderMale, ParseGenderAnswer("мужской"))
	assert.Equal(t, model.GenderMale, ParseGenderAnswer("не знаю"))
}

func TestMerge(t *testing.T) {
	onTopic := Grading{
		IsCorrect:        true,
		Feedback:         "Верно.",
		Mood:             model.MoodHappy,
		AskFollowUp:      true,
		FollowUpQuestion: "А почему?",
		ExamCompleted:    false,
	}

	t.Run("both on topic keeps grading", func(t *testing.T) {
		v := Merge(onTopic, OffTopicResult{}, ExamRedirect)
		assert.False(t, v.OffTopic)
		assert.True(t, v.IsCorrect)
		assert.Equal(t, "Верно.", v.Feedback)
		assert.Equal(t, "А почему?", v.FollowUpQuestion)
		assert.Equal(t, model.MoodHappy, v.Mood)
	})

	t.Run("check flags off topic with message", func(t *testing.T) {
		v := Merge(onTopic, OffTopicResult{OffTopic: true, RedirectMessage: "Вернёмся к физике."}, ExamRedirect)
		assert.True(t, v.OffTopic)
		assert.False(t, v.IsCorrect)
		assert.True(t, v.AskFollowUp)
		assert.Empty(t, v.FollowUpQuestion)
		assert.Equal(t, "Вернёмся к физике.", v.Feedback)
		assert.Equal(t, model.MoodHappy, v.Mood)
	})

	t.Run("grading flags off topic uses generic redirect", func(t *testing.T) {
		g := onTopic
		g.OffTopic = true
		v := Merge(g, OffTopicResult{}, ExamRedirect)
		assert.True(t, v.OffTopic)
		assert.Equal(t, ExamRedirect, v.Feedback)
		assert.False(t, v.IsCorrect)
	})

	t.Run("off topic never completes the exam", func(t *testing.T) {
		g := onTopic
		g.ExamCompleted = true
		v := Merge(g, OffTopicResult{OffTopic: true}, ExamRedirect)
		assert.False(t, v.ExamCompleted)
	})

	t.Run("unknown mood is clamped", func(t *testing.T) {
		g := onTopic
		g.Mood = "ecstatic"
		assert.Equal(t, model.MoodNeutral, Merge(g, OffTopicResult{}, ExamRedirect).Mood)
	})
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
		want    Advance
	}{
		{
			name:    "off topic stays",
			verdict: Verdict{OffTopic: true, AskFollowUp: true},
			want:    Advance{Kind: Stay, Index: 3},
		},
		{
			name:    "follow up",
			verdict: Verdict{AskFollowUp: true, FollowUpQuestion: "Уточни."},
			want:    Advance{Kind: FollowUp, Index: 4, Text: "Уточни."},
		},
		{
			name:    "follow up wins over completion",
			verdict: Verdict{AskFollowUp: true, FollowUpQuestion: "Уточни.", ExamCompleted: true},
			want:    Advance{Kind: FollowUp, Index: 4, Text: "Уточни."},
		},
		{
			name:    "follow up without text moves on",
			verdict: Verdict{AskFollowUp: true},
			want:    Advance{Kind: NextQuestion, Index: 4},
		},
		{
			name:    "next question",
			verdict: Verdict{IsCorrect: true},
			want:    Advance{Kind: NextQuestion, Index: 4},
		},
		{
			name:    "complete",
			verdict: Verdict{ExamCompleted: true},
			want:    Advance{Kind: Complete, Index: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.verdict, 3))
		})
	}
}

func TestDecide_CursorMovesAtMostOne(t *testing.T) {
	bools := []bool{false, true}
	for _, offTopic := range bools {
		for _, follow := range bools {
			for _, withText := range bools {
				for _, done := range bools {
					v := Verdict{OffTopic: offTopic, AskFollowUp: follow, ExamCompleted: done}
					if withText {
						v.FollowUpQuestion = "q"
					}
					a := Decide(v, 7)
					if a.Creates() {
						assert.Equal(t, 8, a.Index)
					} else {
						assert.Equal(t, 7, a.Index)
					}
					if offTopic {
						assert.Equal(t, Stay, a.Kind)
					}
				}
			}
		}
	}
}

func TestWindowAndTruncate(t *testing.T) {
	h := model.History{}
	for i := 0; i < 12; i++ {
		h = h.Append(model.DialogueEntry{Role: model.RoleUser, Content: strings.Repeat("x", i)})
	}

	assert.Len(t, Window(h, 5), 5)
	assert.Equal(t, h[7:], Window(h, 5))
	assert.Len(t, Window(h[:3], 5), 3)
	assert.Empty(t, Window(h, 0))

	assert.Equal(t, "Приве", Truncate("Привет", 5))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestFormatHistory(t *testing.T) {
	h := model.History{
		{Role: model.RoleSystem, Content: "Преподаватель: Анна, Предмет: Физика"},
		{Role: model.RoleAssistant, Content: "Что такое сила?"},
	}
	assert.Equal(t, "system: Преподаватель: Анна, Предмет: Физика\nassistant: Что такое сила?", FormatHistory(h))
}

func TestParseGrading(t *testing.T) {
	t.Run("complete reply", func(t *testing.T) {
		g, err := parseGrading("```json\n" + `{"is_correct": true, "feedback": "Хорошо", "teacher_mood": "happy",
			"should_ask_followup": false, "followup_question": null, "exam_completed": false}` + "\n```")
		require.NoError(t, err)
		assert.True(t, g.IsCorrect)
		assert.Equal(t, "Хорошо", g.Feedback)
		assert.Equal(t, model.MoodHappy, g.Mood)
		assert.False(t, g.OffTopic)
		assert.Empty(t, g.FollowUpQuestion)
	})

	malformed := map[string]string{
		"not json":         "Ответ верный",
		"missing key":      `{"is_correct": true, "feedback": "ok", "teacher_mood": "happy", "should_ask_followup": false}`,
		"null correctness": `{"is_correct": null, "feedback": "ok", "teacher_mood": "happy", "should_ask_followup": false, "exam_completed": false}`,
		"string for bool":  `{"is_correct": "yes", "feedback": "ok", "teacher_mood": "happy", "should_ask_followup": false, "exam_completed": false}`,
		"truncated object": `{"is_correct": true, "feedback": "ok"`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := parseGrading(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestParseQuestion(t *testing.T) {
	q, err := parseQuestion(OpNextQuestion, `{"question": " Что такое импульс? ", "reasoning": "база"}`)
	require.NoError(t, err)
	assert.Equal(t, "Что такое импульс?", q)

	_, err = parseQuestion(OpNextQuestion, `{"question": ""}`)
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = parseQuestion(OpNextQuestion, `{"reasoning": "x"}`)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestPromptsRender(t *testing.T) {
	p, err := LoadPrompts()
	require.NoError(t, err)

	prompt, err := p.Render(OpGrade, struct {
		Persona        Persona
		Mood           model.TeacherMood
		Question       string
		QuestionNumber int
		Answer         string
		History        string
		Materials      string
	}{
		Persona:        Persona{Name: "Анна", Subject: "Физика"},
		Mood:           model.MoodAngry,
		Question:       "Что такое сила?",
		QuestionNumber: 1,
		Answer:         "Векторная величина",
		History:        "assistant: Что такое сила?",
	})
	require.NoError(t, err)
	assert.True(t, prompt.JSON)
	assert.Equal(t, TierFast, prompt.Tier)
	assert.Contains(t, prompt.System, "Анна")
	assert.Contains(t, prompt.System, "angry")
	assert.Contains(t, prompt.User, "Векторная величина")
	assert.Contains(t, prompt.User, "is_off_topic")
	assert.NotContains(t, prompt.User, "Материалы курса")

	tutor, err := p.Render(OpTutor, struct {
		Persona   Persona
		History   string
		Materials string
		Message   string
	}{Persona: Persona{Name: "Иван", Subject: "История"}, Message: "Расскажи про реформы"})
	require.NoError(t, err)
	assert.False(t, tutor.JSON)
	assert.Equal(t, TierRich, tutor.Tier)
	assert.InDelta(t, 0.8, tutor.Temperature, 0.0001)

	_, err = p.Render("unknown", nil)
	assert.Error(t, err)
}

func TestGreetingAndPersonaLine(t *testing.T) {
	p := Persona{Name: "Анна Петровна", Subject: "химии"}
	assert.Equal(t, "Преподаватель: Анна Петровна, Предмет: химии", PersonaLine(p))
	assert.Equal(t, "Здравствуй! Я Анна Петровна, помогу тебе подготовиться к экзамену по химии. Задавай вопросы, и я объясню материал.", Greeting(p))
	assert.Equal(t, "Студент: да", StudentLine("да"))
}
