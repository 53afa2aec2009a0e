package dialogue

import (
	"context"

	"oral_exam_backend/internal/model"
)

//go:generate mockgen -source=reasoner.go -destination=../mocks/dialogue/mock_reasoner.go -package=mock_dialogue

// ModelTier selects between the fast structured-output model and the
// richer conversational one.
type ModelTier string

const (
	TierFast ModelTier = "fast"
	TierRich ModelTier = "rich"
)

// Prompt is one request to the reasoning oracle.
type Prompt struct {
	Operation   string
	System      string
	User        string
	JSON        bool
	Temperature float32
	Tier        ModelTier
}

// Reasoner is the reasoning oracle. Complete returns the raw text of the
// model's reply; with Prompt.JSON set the reply is expected to be a single
// JSON object.
type Reasoner interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Persona describes the simulated teacher.
type Persona struct {
	Name        string
	Description string
	Subject     string
	Gender      model.TeacherGender
}
