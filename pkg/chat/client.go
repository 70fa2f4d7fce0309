package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"
	"chatbridge/pkg/media"

	"github.com/sirupsen/logrus"
)

// Source is the messaging surface: it lists new inbound items per
// conversation and posts replies into a conversation.
type Source interface {
	PollNew(ctx context.Context, conversation string) []models.Message
	Reply(ctx context.Context, conversation, text string) error
}

// domEntry is one message row as read from the page.
type domEntry struct {
	Key      string `json:"key"`
	Outbound bool   `json:"outbound"`
	Text     string `json:"text"`
	ImageSrc string `json:"imageSrc"`
}

// driver is the page-facing half of the client. Everything above it is
// plain bookkeeping over the rows it reports.
type driver interface {
	selectChat(ctx context.Context, conversation string) (bool, error)
	readWindow(ctx context.Context) ([]domEntry, error)
	exportBlob(ctx context.Context, src string) (string, error)
	postReply(ctx context.Context, text string) error
	loggedIn(ctx context.Context) (bool, error)
}

// Client drives the chat surface tab. Polling is read-only and never
// fails the loop: any DOM-level problem downgrades to a warning and an
// empty batch. New traffic is recognized positionally: every row after
// the last outbound one is unanswered, and a conversation whose newest
// row is our own reply has nothing new.
type Client struct {
	driver  driver
	store   media.Store
	ignored map[string]bool
	logger  *logrus.Logger

	mu        sync.Mutex
	current   string
	polled    map[string]bool
	firstSeen map[string]map[string]time.Time
}

func NewClient(cfg models.ChatConfig, page pageRunner, store media.Store, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	ignored := make(map[string]bool, len(cfg.Ignore))
	for _, name := range cfg.Ignore {
		ignored[strings.ToLower(strings.TrimSpace(name))] = true
	}

	return &Client{
		driver:    newPageDriver(page, mergeSelectors(cfg.Selectors)),
		store:     store,
		ignored:   ignored,
		logger:    logger,
		polled:    make(map[string]bool),
		firstSeen: make(map[string]map[string]time.Time),
	}
}

// PollNew opens the conversation and returns its unanswered inbound
// messages in arrival order. The first successful poll returns only the
// newest row: anything older predates this process and is surface
// history, not new work. A failed read logs WARN and returns an empty
// batch so one bad cycle never stops the loop.
func (c *Client) PollNew(ctx context.Context, conversation string) []models.Message {
	if c.ignored[strings.ToLower(strings.TrimSpace(conversation))] {
		return nil
	}

	log := c.logger.WithField("conversation", conversation)

	if err := c.open(ctx, conversation); err != nil {
		log.WithError(err).Warn("Failed to open conversation, skipping this cycle")
		return nil
	}

	entries, err := c.driver.readWindow(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to read messages, skipping this cycle")
		return nil
	}

	return c.collect(ctx, conversation, entries)
}

// Reply opens the conversation and posts text into its input.
func (c *Client) Reply(ctx context.Context, conversation, text string) error {
	if err := c.open(ctx, conversation); err != nil {
		return err
	}

	if err := c.driver.postReply(ctx, text); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"conversation": conversation,
		"chars":        len(text),
	}).Debug("Reply posted")
	return nil
}

// LoggedIn reports whether the surface currently shows an authenticated
// state. A probe failure reads as logged out.
func (c *Client) LoggedIn(ctx context.Context) bool {
	present, err := c.driver.loggedIn(ctx)
	if err != nil {
		return false
	}
	return present
}

// Forget clears the open-conversation memo, forcing the next operation
// to reselect. Called after anything that navigates the surface tab.
func (c *Client) Forget() {
	c.setCurrent("")
}

func (c *Client) open(ctx context.Context, conversation string) error {
	c.mu.Lock()
	if c.current == conversation {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	found, err := c.driver.selectChat(ctx, conversation)
	if err != nil {
		c.setCurrent("")
		return err
	}
	if !found {
		c.setCurrent("")
		return fmt.Errorf("conversation %q is not in the chat list", conversation)
	}

	c.setCurrent(conversation)
	return nil
}

func (c *Client) setCurrent(name string) {
	c.mu.Lock()
	c.current = name
	c.mu.Unlock()
}

// collect turns the visible window into the batch of messages that still
// need an answer. Rows up to and including the last outbound one are
// answered. A window with no outbound row at all is a backlog: every row
// is unanswered, except on the very first look at a conversation, where
// only the newest row counts.
func (c *Client) collect(ctx context.Context, conversation string, entries []domEntry) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := c.firstSeen[conversation]
	if seen == nil {
		seen = make(map[string]time.Time)
		c.firstSeen[conversation] = seen
	}

	// Arrival time is when a row was first observed. Re-reads reuse it
	// so a message keeps one fingerprint across cycles.
	now := time.Now()
	window := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := entryKey(e)
		window[key] = true
		if _, ok := seen[key]; !ok {
			seen[key] = now
		}
	}
	for key := range seen {
		if !window[key] {
			delete(seen, key)
		}
	}

	firstPoll := !c.polled[conversation]
	c.polled[conversation] = true

	if len(entries) == 0 {
		return nil
	}

	lastOut := -1
	for i, e := range entries {
		if e.Outbound {
			lastOut = i
		}
	}

	start := 0
	switch {
	case lastOut == len(entries)-1:
		return nil
	case lastOut >= 0:
		start = lastOut + 1
	case firstPoll:
		start = len(entries) - 1
	}

	var batch []models.Message
	for _, e := range entries[start:] {
		msg, ok := c.toMessage(ctx, conversation, e, seen[entryKey(e)])
		if !ok {
			continue
		}
		batch = append(batch, msg)
	}
	return batch
}

func (c *Client) toMessage(ctx context.Context, conversation string, e domEntry, arrivedAt time.Time) (models.Message, bool) {
	if e.ImageSrc != "" {
		path, err := c.materialize(ctx, e.ImageSrc)
		if err != nil {
			c.logger.WithError(err).WithField("conversation", conversation).Warn("Failed to materialize inbound image, will retry next cycle")
			return models.Message{}, false
		}

		// An image row is fingerprinted by its source URL: captions
		// repeat freely, blob URLs do not.
		return models.Message{
			Conversation: conversation,
			Kind:         models.MessageKindImage,
			Content:      strings.TrimSpace(e.Text),
			ImagePath:    path,
			ArrivedAt:    arrivedAt,
			Fingerprint:  models.Fingerprint(conversation, e.ImageSrc, arrivedAt),
		}, true
	}

	text := strings.TrimSpace(e.Text)
	if text == "" {
		return models.Message{}, false
	}
	return models.NewMessage(conversation, models.MessageKindText, text, arrivedAt), true
}

// materialize exports the image behind src and saves it through the
// media store. Inline data URLs decode directly; blob URLs only resolve
// inside the page, so those are fetched by an in-page script.
func (c *Client) materialize(ctx context.Context, src string) (string, error) {
	if strings.HasPrefix(src, "data:image") {
		return c.store.SaveFromDataURL(src)
	}

	dataURL, err := c.driver.exportBlob(ctx, src)
	if err != nil {
		return "", err
	}
	if dataURL == "" {
		return "", errors.NewMediaError("export", fmt.Errorf("page returned no data for blob image"))
	}

	return c.store.SaveFromDataURL(dataURL)
}

// entryKey identifies a row across polls. Surfaces stamp rows with a
// stable data-id; rows without one fall back to their content.
func entryKey(e domEntry) string {
	if e.Key != "" {
		return e.Key
	}
	return fmt.Sprintf("%t|%s|%s", e.Outbound, e.Text, e.ImageSrc)
}
