package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

// systemPrompts maps a task type to the system prompt for the model. The
// model is instructed to answer with a single JSON object so the output can
// be stored verbatim on the task row.
var systemPrompts = map[string]string{
	models.TaskTypeClassify: "You classify content items for a curation pipeline. " +
		"Given a JSON object with title and body, respond with a single JSON object: " +
		`{"category": string, "tags": [string], "score": number between 0 and 1}. ` +
		"Respond with JSON only.",
	models.TaskTypeSummarize: "You summarize a day's published content for a digest. " +
		"Given a JSON object with a list of item titles, respond with a single JSON object: " +
		`{"summary": string}. Respond with JSON only.`,
	models.TaskTypeGenerate: "You generate candidate content items for a configured query. " +
		"Given a JSON object with a query, respond with a single JSON object: " +
		`{"items": [{"title": string, "body": string}]}. Respond with JSON only.`,
}

// AnthropicInvoker executes AI tasks against the Anthropic Messages API.
type AnthropicInvoker struct {
	client anthropic.Client
	model  anthropic.Model
	log    logger.Logger
}

// NewAnthropicInvoker creates an invoker using the given API key. An empty
// model falls back to the default.
func NewAnthropicInvoker(apiKey, model string, log logger.Logger) *AnthropicInvoker {
	if model == "" {
		model = defaultModel
	}
	return &AnthropicInvoker{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		log:    log,
	}
}

// Invoke sends the task input to the model and parses the JSON reply.
func (a *AnthropicInvoker) Invoke(ctx context.Context, taskType string, input models.JSONMap) (models.JSONMap, error) {
	prompt, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrInvocation, err)
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(prompt))),
		},
	}
	if system, ok := systemPrompts[taskType]; ok {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}

	text := collectText(message)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvocation)
	}

	var output models.JSONMap
	if unmarshalErr := json.Unmarshal([]byte(extractJSON(text)), &output); unmarshalErr != nil {
		a.log.Warn("Model reply was not valid JSON, wrapping as text",
			logger.String("task_type", taskType))
		output = models.JSONMap{"text": text}
	}
	return output, nil
}

func collectText(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// extractJSON strips a markdown code fence when the model wraps its reply in
// one.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}
