package service

import (
	"fmt"
	"strings"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"
	"chatbridge/pkg/provider"
)

// messagePlaceholder marks the substitution point in prompt templates.
const messagePlaceholder = "{message}"

// defaultImagePrompt is used when an image conversation carries no
// template of its own.
const defaultImagePrompt = "Describe this image briefly."

// Route is one resolved dispatch: the adapter to ask, the rendered
// prompt, and the effective limits for this message.
type Route struct {
	Provider     string
	Adapter      provider.Adapter
	Prompt       string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
}

// ChatRouter maps conversation names to their provider bindings. The
// mappings come from configuration, are validated once at construction,
// and never change afterwards, so lookups need no locking.
type ChatRouter struct {
	mappings map[string]models.ConversationMapping
	adapters map[string]provider.Adapter
	ordered  []string // enabled conversation names, preserves config order
}

// NewChatRouter builds the routing table from the enabled conversation
// mappings. Disabled mappings are not indexed at all: their messages must
// resolve as unconfigured and be ignored.
func NewChatRouter(conversations []models.ConversationMapping, adapters map[string]provider.Adapter) (*ChatRouter, error) {
	r := &ChatRouter{
		mappings: make(map[string]models.ConversationMapping),
		adapters: adapters,
		ordered:  make([]string, 0, len(conversations)),
	}

	for _, mapping := range conversations {
		if !mapping.Enabled {
			continue
		}
		if mapping.Name == "" {
			return nil, errors.New(errors.ErrCodeConfiguration,
				"empty conversation name in routing configuration")
		}
		if _, exists := r.mappings[mapping.Name]; exists {
			return nil, errors.New(errors.ErrCodeConfiguration,
				fmt.Sprintf("duplicate conversation name: %s", mapping.Name))
		}
		if _, ok := adapters[mapping.Provider]; !ok {
			return nil, errors.New(errors.ErrCodeConfiguration,
				fmt.Sprintf("conversation %q routes to provider %q but no adapter was built for it", mapping.Name, mapping.Provider))
		}

		r.mappings[mapping.Name] = mapping
		r.ordered = append(r.ordered, mapping.Name)
	}

	if len(r.ordered) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "no enabled conversations to route")
	}

	return r, nil
}

// Resolve looks up the mapping for a conversation name. A miss is not an
// error: the surface carries plenty of conversations this process was
// never configured to answer.
func (r *ChatRouter) Resolve(conversationName string) (*models.ConversationMapping, bool) {
	mapping, ok := r.mappings[conversationName]
	if !ok {
		return nil, false
	}
	return &mapping, true
}

// Route selects the adapter, model, and template for a message by its
// kind and renders the prompt. Image messages must arrive with a
// materialized file; one without is malformed and will never succeed.
func (r *ChatRouter) Route(msg models.Message) (*Route, error) {
	mapping, ok := r.Resolve(msg.Conversation)
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound,
			fmt.Sprintf("conversation %q is not configured", msg.Conversation))
	}

	var model, template string
	switch msg.Kind {
	case models.MessageKindText:
		model = mapping.TextModel
		template = mapping.TextTemplate
	case models.MessageKindImage:
		if msg.ImagePath == "" {
			return nil, errors.NewMalformedInputError("image message has no materialized file")
		}
		model = mapping.VisionModel
		if model == "" {
			model = mapping.TextModel
		}
		template = mapping.ImageTemplate
		if template == "" {
			template = defaultImagePrompt
		}
	default:
		return nil, errors.NewMalformedInputError(fmt.Sprintf("unsupported message kind: %s", msg.Kind))
	}

	return &Route{
		Provider:     mapping.Provider,
		Adapter:      r.adapters[mapping.Provider],
		Prompt:       renderPrompt(template, msg.Content),
		Model:        model,
		Timeout:      time.Duration(mapping.ResponseTimeoutSec) * time.Second,
		PollInterval: time.Duration(mapping.ResponsePollSec) * time.Second,
	}, nil
}

// Conversations returns the enabled mappings in configuration order. The
// orchestrator's cycle iterates this.
func (r *ChatRouter) Conversations() []models.ConversationMapping {
	out := make([]models.ConversationMapping, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.mappings[name])
	}
	return out
}

// renderPrompt substitutes the message content into the template. An
// empty template passes the content through untouched; a template
// without the placeholder gets the content appended so the message is
// never silently dropped.
func renderPrompt(template, content string) string {
	if template == "" {
		return content
	}
	if strings.Contains(template, messagePlaceholder) {
		return strings.ReplaceAll(template, messagePlaceholder, content)
	}
	if content == "" {
		return template
	}
	return template + "\n\n" + content
}
