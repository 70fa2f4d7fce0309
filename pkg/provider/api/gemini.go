package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"chatbridge/internal/models"
)

// Gemini generateContent wire shape. The key travels as a query
// parameter and the assistant role is named "model".
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiWire struct{}

func (geminiWire) endpoint(base, model, apiKey string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		base, url.PathEscape(model), url.QueryEscape(apiKey))
}

func (geminiWire) headers(apiKey string) map[string]string {
	return nil
}

func (geminiWire) body(p payload) interface{} {
	contents := make([]geminiContent, 0, len(p.History)+1)
	for _, turn := range p.History {
		role := turn.Role
		if role == models.TurnRoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}

	parts := []geminiPart{{Text: p.Prompt}}
	if p.ImageB64 != "" {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: p.ImageMime,
			Data:     p.ImageB64,
		}})
	}
	contents = append(contents, geminiContent{Role: models.TurnRoleUser, Parts: parts})

	return geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: p.MaxTokens,
			Temperature:     p.Temperature,
		},
	}
}

func (geminiWire) text(respBody []byte) (string, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text parts in response")
	}
	return text, nil
}
