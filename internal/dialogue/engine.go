package dialogue

import (
	"context"
	"strings"
	"sync/atomic"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tuning holds the history windows and context budgets.
type Tuning struct {
	GradingWindow        int
	TutoringWindow       int
	OffTopicContextLimit int
	TutoringContextLimit int
}

func DefaultTuning() Tuning {
	return Tuning{
		GradingWindow:        5,
		TutoringWindow:       10,
		OffTopicContextLimit: 1000,
		TutoringContextLimit: 2000,
	}
}

// Engine turns dialogue state into oracle prompts and oracle replies into
// typed decisions. It holds no session state.
type Engine struct {
	reasoner Reasoner
	prompts  *Prompts
	tuning   atomic.Pointer[Tuning]
}

func NewEngine(reasoner Reasoner, tuning Tuning) (*Engine, error) {
	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	e := &Engine{reasoner: reasoner, prompts: prompts}
	e.SetTuning(tuning)
	return e, nil
}

func (e *Engine) SetTuning(t Tuning) {
	e.tuning.Store(&t)
}

func (e *Engine) Tuning() Tuning {
	return *e.tuning.Load()
}

func (e *Engine) ask(ctx context.Context, op string, data any) (string, error) {
	prompt, err := e.prompts.Render(op, data)
	if err != nil {
		return "", err
	}
	return e.reasoner.Complete(ctx, prompt)
}

// DetectGender trusts the name heuristic when it says female and asks the
// oracle otherwise. Oracle failures fall back to the heuristic.
func (e *Engine) DetectGender(ctx context.Context, name string) model.TeacherGender {
	guess, confident := GuessGender(name)
	if confident {
		return guess
	}

	answer, err := e.ask(ctx, OpGender, struct{ Name string }{Name: name})
	if err != nil {
		logger.Log.Warn("Gender detection failed, using name heuristic",
			zap.String("name", name), zap.Error(err))
		return guess
	}
	return ParseGenderAnswer(answer)
}

func (e *Engine) FirstQuestion(ctx context.Context, persona Persona, materials string) (string, error) {
	raw, err := e.ask(ctx, OpFirstQuestion, struct {
		Persona   Persona
		Materials string
	}{persona, materials})
	if err != nil {
		return "", err
	}
	return parseQuestion(OpFirstQuestion, raw)
}

// NextQuestionInput carries what the oracle needs to pick the next question.
type NextQuestionInput struct {
	Persona   Persona
	Mood      model.TeacherMood
	History   model.History
	Materials string
	// Asked is the number of questions already put to the student.
	Asked int
}

func (e *Engine) NextQuestion(ctx context.Context, in NextQuestionInput) (string, error) {
	raw, err := e.ask(ctx, OpNextQuestion, struct {
		Persona   Persona
		Mood      model.TeacherMood
		History   string
		Materials string
		Asked     int
	}{
		Persona:   in.Persona,
		Mood:      ParseMood(string(in.Mood)),
		History:   FormatHistory(Window(in.History, e.Tuning().GradingWindow)),
		Materials: in.Materials,
		Asked:     in.Asked,
	})
	if err != nil {
		return "", err
	}
	return parseQuestion(OpNextQuestion, raw)
}

func parseQuestion(op, raw string) (string, error) {
	obj, err := decodeObject(op, raw, "question")
	if err != nil {
		return "", err
	}
	q, err := obj.stringField("question")
	if err != nil {
		return "", err
	}
	if q == "" {
		return "", &MalformedOutputError{Operation: op, Reason: "empty question", Raw: raw}
	}
	return q, nil
}

// GradeInput is one student answer in context.
type GradeInput struct {
	Persona       Persona
	Mood          model.TeacherMood
	Question      string
	QuestionIndex int
	Answer        string
	History       model.History
	Materials     string
}

func (e *Engine) Grade(ctx context.Context, in GradeInput) (Grading, error) {
	raw, err := e.ask(ctx, OpGrade, struct {
		Persona        Persona
		Mood           model.TeacherMood
		Question       string
		QuestionNumber int
		Answer         string
		History        string
		Materials      string
	}{
		Persona:        in.Persona,
		Mood:           ParseMood(string(in.Mood)),
		Question:       in.Question,
		QuestionNumber: in.QuestionIndex + 1,
		Answer:         in.Answer,
		History:        FormatHistory(Window(in.History, e.Tuning().GradingWindow)),
		Materials:      in.Materials,
	})
	if err != nil {
		return Grading{}, err
	}
	return parseGrading(raw)
}

func parseGrading(raw string) (Grading, error) {
	obj, err := decodeObject(OpGrade, raw,
		"is_correct", "feedback", "teacher_mood", "should_ask_followup", "exam_completed")
	if err != nil {
		return Grading{}, err
	}

	var g Grading
	var mood string
	steps := []func() error{
		func() (err error) { g.IsCorrect, err = obj.boolField("is_correct"); return },
		func() (err error) { g.Feedback, err = obj.stringField("feedback"); return },
		func() (err error) { mood, err = obj.stringField("teacher_mood"); return },
		func() (err error) { g.AskFollowUp, err = obj.boolField("should_ask_followup"); return },
		func() (err error) { g.FollowUpQuestion, err = obj.stringField("followup_question"); return },
		func() (err error) { g.ExamCompleted, err = obj.boolField("exam_completed"); return },
		func() (err error) { g.OffTopic, err = obj.boolField("is_off_topic"); return },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Grading{}, err
		}
	}
	g.Mood = ParseMood(mood)
	return g, nil
}

// CheckOffTopic asks whether an utterance belongs to the subject. The
// materials are cut to the off-topic context budget.
func (e *Engine) CheckOffTopic(ctx context.Context, subject, utterance, materials string) (OffTopicResult, error) {
	raw, err := e.ask(ctx, OpOffTopic, struct {
		Subject   string
		Utterance string
		Materials string
	}{
		Subject:   subject,
		Utterance: utterance,
		Materials: Truncate(materials, e.Tuning().OffTopicContextLimit),
	})
	if err != nil {
		return OffTopicResult{}, err
	}

	obj, err := decodeObject(OpOffTopic, raw, "is_off_topic")
	if err != nil {
		return OffTopicResult{}, err
	}
	var res OffTopicResult
	if res.OffTopic, err = obj.boolField("is_off_topic"); err != nil {
		return OffTopicResult{}, err
	}
	if res.RedirectMessage, err = obj.stringField("redirect_message"); err != nil {
		return OffTopicResult{}, err
	}
	return res, nil
}

// Evaluate runs the relevance check and grading concurrently and merges
// them. Both must succeed; the first failure cancels the other call.
func (e *Engine) Evaluate(ctx context.Context, in GradeInput) (Verdict, error) {
	var (
		grading  Grading
		offTopic OffTopicResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offTopic, err = e.CheckOffTopic(gctx, in.Persona.Subject, in.Answer, in.Materials)
		return err
	})
	g.Go(func() error {
		var err error
		grading, err = e.Grade(gctx, in)
		return err
	})
	if err := g.Wait(); err != nil {
		return Verdict{}, err
	}
	return Merge(grading, offTopic, ExamRedirect), nil
}

// TutorInput is one study-mode message in context.
type TutorInput struct {
	Persona   Persona
	History   model.History
	Materials string
	Message   string
}

// TutorReply answers a study message. Off-topic messages get a redirect
// instead of an explanation; redirected reports which one happened.
func (e *Engine) TutorReply(ctx context.Context, in TutorInput) (reply string, redirected bool, err error) {
	check, err := e.CheckOffTopic(ctx, in.Persona.Subject, in.Message, in.Materials)
	if err != nil {
		return "", false, err
	}
	if check.OffTopic {
		if check.RedirectMessage != "" {
			return check.RedirectMessage, true, nil
		}
		return StudyRedirect, true, nil
	}

	tuning := e.Tuning()
	raw, err := e.ask(ctx, OpTutor, struct {
		Persona   Persona
		History   string
		Materials string
		Message   string
	}{
		Persona:   in.Persona,
		History:   FormatHistory(Window(in.History, tuning.TutoringWindow)),
		Materials: Truncate(in.Materials, tuning.TutoringContextLimit),
		Message:   in.Message,
	})
	if err != nil {
		return "", false, err
	}
	reply = strings.TrimSpace(raw)
	if reply == "" {
		return "", false, &MalformedOutputError{Operation: OpTutor, Reason: "empty reply", Raw: raw}
	}
	return reply, false, nil
}
