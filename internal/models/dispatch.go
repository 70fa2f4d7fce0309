package models

import "time"

type DispatchStatus string

const (
	DispatchDelivered DispatchStatus = "delivered"
	DispatchFailed    DispatchStatus = "failed"
	DispatchSkipped   DispatchStatus = "skipped"
)

// DispatchResult is the outcome of processing one message. It is logged
// and published to the event feed, never persisted.
type DispatchResult struct {
	Status        DispatchStatus `json:"status"`
	Conversation  string         `json:"conversation"`
	Provider      string         `json:"provider"`
	Kind          MessageKind    `json:"kind"`
	Fingerprint   string         `json:"fingerprint"`
	Response      string         `json:"response,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Elapsed       time.Duration  `json:"elapsed_ms"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// Turn is one prior exchange element handed to API adapters as
// conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)
