package ai

import (
	"context"
	"errors"
)

// Verdicts returned by the evaluator.
const (
	VerdictAccepted    = "Accepted"
	VerdictWrongAnswer = "Wrong Answer"
)

// Difficulty levels understood by the question generator.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

var (
	// ErrMalformedModelResponse indicates the model replied with a payload that fails the response contract.
	ErrMalformedModelResponse = errors.New("malformed model response")
	// ErrTransientService indicates the model endpoint could not be reached or failed.
	ErrTransientService = errors.New("model service unavailable")
	// ErrTimeout indicates the model did not reply within the configured deadline.
	ErrTimeout = errors.New("model request timed out")
	// ErrInvalidInput indicates the request was rejected before contacting the model.
	ErrInvalidInput = errors.New("invalid model input")
)

// EvaluationInput contains what the judge needs to grade a submission.
type EvaluationInput struct {
	Code                string
	Language            string
	QuestionDescription string
}

// EvaluationResult is the validated verdict returned by the judge.
type EvaluationResult struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

// Accepted reports whether the verdict credits the submission.
func (r EvaluationResult) Accepted() bool {
	return r.Status == VerdictAccepted
}

// Evaluator describes an AI model capable of grading code submissions.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
}

// GenerationInput describes the question an organizer wants drafted.
type GenerationInput struct {
	Topic      string
	Difficulty string
}

// StarterCode holds per-language templates for a question.
type StarterCode struct {
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
	Cpp        string `json:"cpp"`
}

// GeneratedQuestion is the validated question draft returned by the model.
type GeneratedQuestion struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StarterCode StarterCode `json:"starterCode"`
}

// Generator describes an AI model capable of drafting coding questions.
type Generator interface {
	Generate(ctx context.Context, input GenerationInput) (GeneratedQuestion, error)
}
