package integration_test

import (
	"context"
	"sync"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"
	"chatbridge/pkg/provider"
)

// Scripted collaborators

// surfaceStub plays the messaging surface. A posted message stays
// visible to every poll until a reply lands in its conversation, the way
// the real surface treats every row after our last outbound message as
// unanswered. With reply lag on, a reply does not clear the rows until
// Settle is called, modeling a surface that has not rendered it yet.
type surfaceStub struct {
	mu       sync.Mutex
	visible  map[string][]models.Message
	replies  []surfaceReply
	replyErr error
	replyLag bool
	polls    map[string]int
}

// surfaceReply is one reply recorded by the stub.
type surfaceReply struct {
	Conversation string
	Text         string
	PostedAt     time.Time
}

func newSurfaceStub() *surfaceStub {
	return &surfaceStub{
		visible: make(map[string][]models.Message),
		polls:   make(map[string]int),
	}
}

// Post makes messages visible in a conversation.
func (s *surfaceStub) Post(conversation string, msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[conversation] = append(s.visible[conversation], msgs...)
}

// Settle clears a conversation's visible rows, as if the posted reply
// finished rendering beneath them.
func (s *surfaceStub) Settle(conversation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visible, conversation)
}

// SetReplyLag controls whether a posted reply clears the conversation
// immediately or only once Settle is called.
func (s *surfaceStub) SetReplyLag(lag bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyLag = lag
}

// FailReplies makes every subsequent Reply return the given error.
func (s *surfaceStub) FailReplies(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyErr = err
}

func (s *surfaceStub) PollNew(_ context.Context, conversation string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[conversation]++
	msgs := s.visible[conversation]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *surfaceStub) Reply(_ context.Context, conversation, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyErr != nil {
		return s.replyErr
	}
	s.replies = append(s.replies, surfaceReply{
		Conversation: conversation,
		Text:         text,
		PostedAt:     time.Now(),
	})
	if !s.replyLag {
		delete(s.visible, conversation)
	}
	return nil
}

// Replies returns every reply recorded so far.
func (s *surfaceStub) Replies() []surfaceReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]surfaceReply, len(s.replies))
	copy(out, s.replies)
	return out
}

// PollCount reports how many times a conversation has been polled.
func (s *surfaceStub) PollCount(conversation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[conversation]
}

// uiProviderStub stands in for a browser provider tab. Ask replays the
// current render script one frame per poll and accepts the text once two
// consecutive reads agree, the same settling rule the real UI extraction
// applies. A script that runs dry repeats its last frame; queue further
// scripts to answer later asks differently.
type uiProviderStub struct {
	mu      sync.Mutex
	name    string
	state   models.SessionState
	detail  string
	scripts [][]string
	cadence time.Duration
	asks    int
}

func newUIProviderStub(name string, renders ...string) *uiProviderStub {
	stub := &uiProviderStub{
		name:    name,
		state:   models.SessionReady,
		cadence: 20 * time.Millisecond,
	}
	if len(renders) > 0 {
		stub.scripts = [][]string{renders}
	}
	return stub
}

// QueueScript appends a render script for a later ask.
func (s *uiProviderStub) QueueScript(renders ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, renders)
}

// SetSessionState changes what Probe reports.
func (s *uiProviderStub) SetSessionState(state models.SessionState, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.detail = detail
}

func (s *uiProviderStub) Name() string { return s.name }

func (s *uiProviderStub) Kind() models.TransportKind { return models.TransportUI }

func (s *uiProviderStub) Probe(_ context.Context) (models.SessionState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.detail
}

func (s *uiProviderStub) Ask(ctx context.Context, req provider.Request) (string, error) {
	s.mu.Lock()
	s.asks++
	var frames []string
	if len(s.scripts) > 0 {
		frames = s.scripts[0]
		if len(s.scripts) > 1 {
			s.scripts = s.scripts[1:]
		}
	}
	interval := s.cadence
	s.mu.Unlock()

	if req.PollInterval > 0 {
		interval = req.PollInterval
	}

	deadline := time.Now().Add(req.Timeout)
	var previous string
	settled := false
	next := 0

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		var current string
		switch {
		case next < len(frames):
			current = frames[next]
			next++
		case len(frames) > 0:
			current = frames[len(frames)-1]
		}

		if current != "" {
			if settled && current == previous {
				return current, nil
			}
			previous = current
			settled = true
		} else {
			settled = false
		}

		if !time.Now().Before(deadline) {
			return "", errors.NewExtractionTimeoutError(s.name, req.Timeout.String())
		}
	}
}

// AskCount reports how many asks the stub has served.
func (s *uiProviderStub) AskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asks
}

// Test data factories

// InboundText builds a text message as the surface would report it.
func InboundText(conversation, content string) models.Message {
	return models.NewMessage(conversation, models.MessageKindText, content, time.Now())
}

// InboundImage builds an image message with its materialized file.
func InboundImage(conversation, caption, imagePath string) models.Message {
	msg := models.NewMessage(conversation, models.MessageKindImage, caption, time.Now())
	msg.ImagePath = imagePath
	return msg
}

// alternatingRenders builds a render script that flips between two texts
// and therefore never settles while frames remain.
func alternatingRenders(frames int, a, b string) []string {
	out := make([]string, frames)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

// fastRetryConfig keeps API retry backoff short enough for tests while
// preserving growth and jitter.
func fastRetryConfig() models.RetryConfig {
	return models.RetryConfig{
		InitialBackoffMs: 5,
		MaxBackoffMs:     40,
		MaxAttempts:      4,
	}
}
