package service

import (
	"context"
	"sync"

	"chatbridge/internal/models"
	"chatbridge/pkg/provider"
)

// fakeSource is a scripted messaging surface. Queued messages are handed
// out once, the way a real poll only reports messages still awaiting an
// answer.
type fakeSource struct {
	mu       sync.Mutex
	inbox    map[string][]models.Message
	replies  []postedReply
	replyErr error
	polls    int
}

type postedReply struct {
	conversation string
	text         string
}

func newFakeSource() *fakeSource {
	return &fakeSource{inbox: make(map[string][]models.Message)}
}

func (f *fakeSource) queue(conversation string, msgs ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[conversation] = append(f.inbox[conversation], msgs...)
}

func (f *fakeSource) failReplies(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyErr = err
}

func (f *fakeSource) PollNew(_ context.Context, conversation string) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	msgs := f.inbox[conversation]
	delete(f.inbox, conversation)
	return msgs
}

func (f *fakeSource) Reply(_ context.Context, conversation, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, postedReply{conversation: conversation, text: text})
	return nil
}

func (f *fakeSource) postedReplies() []postedReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]postedReply, len(f.replies))
	copy(out, f.replies)
	return out
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// scriptedAdapter answers asks from a canned outcome script and records
// every request it sees. The last outcome repeats once the script runs
// out. When gate is set, Ask blocks on it after recording; began, when
// set, is signalled as each ask starts.
type scriptedAdapter struct {
	mu       sync.Mutex
	name     string
	kind     models.TransportKind
	script   []askOutcome
	requests []provider.Request

	gate  chan struct{}
	began chan struct{}
}

type askOutcome struct {
	answer string
	err    error
}

func newScriptedAdapter(name string, kind models.TransportKind, script ...askOutcome) *scriptedAdapter {
	return &scriptedAdapter{name: name, kind: kind, script: script}
}

func (a *scriptedAdapter) Name() string               { return a.name }
func (a *scriptedAdapter) Kind() models.TransportKind { return a.kind }

func (a *scriptedAdapter) Ask(ctx context.Context, req provider.Request) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	var out askOutcome
	if len(a.script) > 0 {
		out = a.script[0]
		if len(a.script) > 1 {
			a.script = a.script[1:]
		}
	}
	began := a.began
	gate := a.gate
	a.mu.Unlock()

	if began != nil {
		select {
		case began <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return out.answer, out.err
}

func (a *scriptedAdapter) askCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *scriptedAdapter) lastRequest() provider.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return provider.Request{}
	}
	return a.requests[len(a.requests)-1]
}
