package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codearena",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI model requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codearena",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed AI model requests by failure kind",
	}, []string{"model", "operation", "kind"})

	aiRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codearena",
		Subsystem: "ai",
		Name:      "request_retries_total",
		Help:      "Number of AI model requests retried after a failed attempt",
	}, []string{"model", "operation"})
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultMaxTokens    = 1024
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 2
	defaultRetryBackoff = 200 * time.Millisecond
)

// OpenAIConfig defines configuration options shared by the OpenAI evaluator and generator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxAttempts includes the first call.
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

type openAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

func newOpenAIClient(cfg OpenAIConfig, component string) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load response schemas: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/codearena-api/pkg/ai/openai"),
		logger: logger.With().Str("component", component).Logger(),
	}, nil
}

// complete runs the chat completion with per-attempt timeouts and a bounded retry.
// decode must return ErrMalformedModelResponse for replies that break the contract.
func (c *openAIClient) complete(parent context.Context, operation string, messages []openai.ChatCompletionMessage, decode func(content string) error) error {
	ctx, span := c.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			aiRetries.WithLabelValues(c.cfg.Model, operation).Inc()
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Str("operation", operation).Msg("retrying model request")

			select {
			case <-ctx.Done():
				return c.fail(span, operation, classifyContextError(ctx.Err()))
			case <-time.After(c.cfg.RetryBackoff):
			}
		}

		lastErr = c.attempt(ctx, operation, messages, decode)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return nil
		}

		if ctx.Err() != nil {
			break
		}
	}

	return c.fail(span, operation, lastErr)
}

func (c *openAIClient) attempt(parent context.Context, operation string, messages []openai.ChatCompletionMessage, decode func(content string) error) error {
	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.cfg.Model,
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	aiDuration.WithLabelValues(c.cfg.Model, operation).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classifyContextError(ctxErr)
		}
		return fmt.Errorf("%w: %v", ErrTransientService, err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: no choices returned", ErrMalformedModelResponse)
	}

	return decode(resp.Choices[0].Message.Content)
}

func (c *openAIClient) fail(span trace.Span, operation string, err error) error {
	aiFailures.WithLabelValues(c.cfg.Model, operation, failureKind(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func classifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransientService, err)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedModelResponse):
		return "malformed"
	default:
		return "transient"
	}
}

// OpenAIEvaluator implements Evaluator against the OpenAI chat completion API.
type OpenAIEvaluator struct {
	client *openAIClient
}

// NewOpenAIEvaluator builds a new evaluator using the provided configuration.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	client, err := newOpenAIClient(cfg, "openai_evaluator")
	if err != nil {
		return nil, err
	}
	return &OpenAIEvaluator{client: client}, nil
}

// Evaluate asks the model for a verdict and validates the two-field reply.
func (e *OpenAIEvaluator) Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error) {
	if strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.QuestionDescription) == "" {
		return EvaluationResult{}, fmt.Errorf("%w: code and question description are required", ErrInvalidInput)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: evaluatorSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildEvaluationPrompt(input)},
	}

	var result EvaluationResult
	err := e.client.complete(ctx, "evaluate", messages, func(content string) error {
		var decoded EvaluationResult
		if err := decodeModelJSON(content, evaluationSchema, &decoded); err != nil {
			return err
		}
		decoded.Feedback = strings.TrimSpace(decoded.Feedback)
		if decoded.Feedback == "" {
			return fmt.Errorf("%w: blank feedback", ErrMalformedModelResponse)
		}
		result = decoded
		return nil
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	return result, nil
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openAIClient
}

// NewOpenAIGenerator builds a question generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	client, err := newOpenAIClient(cfg, "openai_generator")
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{client: client}, nil
}

// Generate drafts a question for the topic and difficulty.
func (g *OpenAIGenerator) Generate(ctx context.Context, input GenerationInput) (GeneratedQuestion, error) {
	if strings.TrimSpace(input.Topic) == "" {
		return GeneratedQuestion{}, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if !ValidDifficulty(input.Difficulty) {
		return GeneratedQuestion{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, input.Difficulty)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Topic: %s\nDifficulty: %s", strings.TrimSpace(input.Topic), input.Difficulty)},
	}

	var question GeneratedQuestion
	err := g.client.complete(ctx, "generate", messages, func(content string) error {
		var decoded GeneratedQuestion
		if err := decodeModelJSON(content, questionSchema, &decoded); err != nil {
			return err
		}
		decoded.Title = strings.TrimSpace(decoded.Title)
		decoded.Description = strings.TrimSpace(decoded.Description)
		if decoded.Title == "" || decoded.Description == "" {
			return fmt.Errorf("%w: blank title or description", ErrMalformedModelResponse)
		}
		question = decoded
		return nil
	})
	if err != nil {
		return GeneratedQuestion{}, err
	}

	return question, nil
}

// ValidDifficulty reports whether value is one of the supported difficulty levels.
func ValidDifficulty(value string) bool {
	switch value {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

const evaluatorSystemPrompt = "You are a code judge for a programming contest. Decide whether the submitted code " +
	"solves the problem. Judge logical correctness only; ignore performance and edge cases. Reply with a single " +
	"JSON object with exactly two keys: \"status\" (either \"Accepted\" or \"Wrong Answer\") and \"feedback\" " +
	"(one sentence explaining what is good or what might be wrong)."

const generatorSystemPrompt = "You write data structures and algorithms interview questions. Reply with a single " +
	"JSON object with keys \"title\", \"description\" (a detailed problem statement with an example) and " +
	"\"starterCode\", an object with keys \"javascript\", \"python\" and \"cpp\" holding a function stub for " +
	"each language."

func buildEvaluationPrompt(input EvaluationInput) string {
	builder := strings.Builder{}
	builder.WriteString("## Problem\n")
	builder.WriteString(input.QuestionDescription)
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.Language)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}
