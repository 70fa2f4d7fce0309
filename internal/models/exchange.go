package models

import "time"

// Exchange is one completed message/response pair persisted to the
// history store. Recent exchanges feed API adapters as conversation
// context.
type Exchange struct {
	ID           int64
	Conversation string
	Provider     string
	Kind         MessageKind
	Message      string
	Response     string
	Fingerprint  string
	ExchangedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
