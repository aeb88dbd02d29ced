package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sashabaranov/go-openai"
)

// captionPrompt asks for a caption that reads naturally after "An image of".
const captionPrompt = "Describe this image in one short sentence. " +
	"Start directly with the subject and do not begin with 'An image of' or 'This image shows'."

const captionTokens = 120

var errNoChoices = errors.New("provider returned no choices")

// OpenAI talks to any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	visionModel string
	temperature float32
}

func NewOpenAI(apiKey, baseURL, model, visionModel string, temperature float32) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return newOpenAI(cfg, model, visionModel, temperature)
}

func newOpenAI(cfg openai.ClientConfig, model, visionModel string, temperature float32) *OpenAI {
	if visionModel == "" {
		visionModel = model
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		visionModel: visionModel,
		temperature: temperature,
	}
}

func (o *OpenAI) Complete(ctx context.Context, history []core.ChatMessage, budgetHint int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   budgetHint,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// DescribeImage sends the image inline as a data URL to the vision model.
func (o *OpenAI) DescribeImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: captionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens:   captionTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	return strings.TrimSuffix(caption, "."), nil
}

func toOpenAIRole(r core.Role) string {
	switch r {
	case core.RoleSystem:
		return openai.ChatMessageRoleSystem
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
