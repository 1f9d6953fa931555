// internal/generator/openai.go
package generator

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/user/haven/internal/types"
)

// OpenAIGenerator calls an OpenAI-compatible chat completion API to
// produce reply prose from the planner's directive.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAI constructs an OpenAI-backed generator. baseURL may be empty
// for the default endpoint.
func NewOpenAI(apiKey, baseURL, model string, temperature float32) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}
}

// Generate sends the system directive and recent history to the model and
// strictly decodes the result; malformed output degrades to a plain-reply
// response rather than an error.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
	}
	for _, u := range req.History {
		role := openai.ChatMessageRoleUser
		if u.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: u.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", types.ErrGeneratorUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty choices", types.ErrGeneratorUnavailable)
	}
	return DecodeResponse(resp.Choices[0].Message.Content), nil
}

func systemPrompt(req Request) string {
	prompt := fmt.Sprintf(
		"You are a supportive wellness companion. Respond using the %s approach.",
		string(req.Directive.Strategy))
	if req.Directive.Tone != "" {
		prompt += fmt.Sprintf(" Keep the tone %s.", req.Directive.Tone)
	}
	if req.Directive.Complexity == "simplified" {
		prompt += " Use short, simple sentences."
	}
	if req.Culture.Language != "" {
		prompt += fmt.Sprintf(" Reply in %s.", req.Culture.Language)
	}
	if req.Culture.Formality != "" {
		prompt += fmt.Sprintf(" Use a %s register.", req.Culture.Formality)
	}
	if req.Directive.Strategy == types.StrategyCrisisIntervention {
		prompt += " Prioritize immediate safety and encourage contacting professional help."
	}
	return prompt
}
