package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatbridge/internal/models"
)

// Anthropic messages-API wire shape. Vision asks send the image as a
// base64 source block ahead of the text block.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicWire struct{}

func (anthropicWire) endpoint(base, model, apiKey string) string {
	return base + "/messages"
}

func (anthropicWire) headers(apiKey string) map[string]string {
	return map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (anthropicWire) body(p payload) interface{} {
	messages := make([]anthropicMessage, 0, len(p.History)+1)
	for _, turn := range p.History {
		messages = append(messages, anthropicMessage{Role: turn.Role, Content: turn.Content})
	}

	if p.ImageB64 != "" {
		messages = append(messages, anthropicMessage{
			Role: models.TurnRoleUser,
			Content: []anthropicContentBlock{
				{Type: "image", Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: p.ImageMime,
					Data:      p.ImageB64,
				}},
				{Type: "text", Text: p.Prompt},
			},
		})
	} else {
		messages = append(messages, anthropicMessage{Role: models.TurnRoleUser, Content: p.Prompt})
	}

	return anthropicRequest{
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages:    messages,
	}
}

func (anthropicWire) text(respBody []byte) (string, error) {
	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
