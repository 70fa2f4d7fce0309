package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatbridge/internal/models"
)

// Chat-completions wire shape shared by OpenAI, Perplexity and Grok.
// Vision asks use the content-parts form with an inline data URL.
type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
}

type oaiMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIWire struct{}

func (openAIWire) endpoint(base, model, apiKey string) string {
	return base + "/chat/completions"
}

func (openAIWire) headers(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func (openAIWire) body(p payload) interface{} {
	messages := make([]oaiMessage, 0, len(p.History)+1)
	for _, turn := range p.History {
		messages = append(messages, oaiMessage{Role: turn.Role, Content: turn.Content})
	}

	if p.ImageB64 != "" {
		messages = append(messages, oaiMessage{
			Role: models.TurnRoleUser,
			Content: []oaiContentPart{
				{Type: "text", Text: p.Prompt},
				{Type: "image_url", ImageURL: &oaiImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", p.ImageMime, p.ImageB64),
					Detail: "low",
				}},
			},
		})
	} else {
		messages = append(messages, oaiMessage{Role: models.TurnRoleUser, Content: p.Prompt})
	}

	return oaiRequest{
		Model:       p.Model,
		Messages:    messages,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
}

func (openAIWire) text(respBody []byte) (string, error) {
	var parsed oaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
