package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"chatbridge/internal/constants"
)

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

// Message is one inbound item observed on the messaging surface. It is
// created by the message source during a poll, consumed by the
// orchestrator, and never mutated.
type Message struct {
	Conversation string
	Kind         MessageKind
	Content      string
	ImagePath    string
	ArrivedAt    time.Time
	Fingerprint  string
}

// Fingerprint derives the deduplication identifier for a message. The
// arrival timestamp is truncated to the surface's display granularity so
// the same message hashes identically across consecutive polls, while
// identical text sent in a later minute produces a distinct fingerprint.
func Fingerprint(conversation, content string, arrivedAt time.Time) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	bucket := arrivedAt.Unix() - arrivedAt.Unix()%constants.FingerprintGranularitySec

	h := sha256.New()
	h.Write([]byte(conversation))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// NewMessage builds a Message with its fingerprint populated.
func NewMessage(conversation string, kind MessageKind, content string, arrivedAt time.Time) Message {
	return Message{
		Conversation: conversation,
		Kind:         kind,
		Content:      content,
		ArrivedAt:    arrivedAt,
		Fingerprint:  Fingerprint(conversation, content, arrivedAt),
	}
}
