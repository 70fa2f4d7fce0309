package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatbridge/internal/cache"
	"chatbridge/internal/constants"
	"chatbridge/internal/errors"
	"chatbridge/internal/features"
	"chatbridge/internal/history"
	"chatbridge/internal/metrics"
	"chatbridge/internal/models"
	"chatbridge/internal/tracing"
	"chatbridge/pkg/chat"
	"chatbridge/pkg/media"
	"chatbridge/pkg/provider"

	"github.com/sirupsen/logrus"
)

// dispatchPhase values trace one message through its lifecycle.
type dispatchPhase string

const (
	phaseDetected         dispatchPhase = "detected"
	phaseDeduped          dispatchPhase = "deduped"
	phaseDispatched       dispatchPhase = "dispatched"
	phaseAwaitingResponse dispatchPhase = "awaiting_response"
	phaseExtracted        dispatchPhase = "extracted"
	phaseDelivered        dispatchPhase = "delivered"
	phaseCached           dispatchPhase = "cached"
	phaseSkipped          dispatchPhase = "skipped"
	phaseFailed           dispatchPhase = "failed"
)

// Orchestrator runs the poll/dispatch loop: watch the messaging surface,
// route each new message to its provider, post the answer back, then
// mark the message processed. One conversation and one provider
// interaction are in flight at a time; every browser operation funnels
// through the shared session owned by the source and the UI adapters.
type Orchestrator struct {
	source   chat.Source
	router   *ChatRouter
	registry *SessionRegistry
	cache    *cache.Store
	history  *history.Store
	media    media.Store
	hub      *EventHub
	logger   *logrus.Logger

	loopInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	// Touched only from the loop goroutine.
	skipAnnounced map[string]bool
}

// NewOrchestrator wires the loop over its collaborators. The history
// store may be nil when persistence is disabled.
func NewOrchestrator(source chat.Source, router *ChatRouter, registry *SessionRegistry, cacheStore *cache.Store, historyStore *history.Store, mediaStore media.Store, hub *EventHub, delays models.DelayConfig, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	interval := time.Duration(delays.LoopIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(constants.DefaultLoopIntervalSec) * time.Second
	}

	return &Orchestrator{
		source:        source,
		router:        router,
		registry:      registry,
		cache:         cacheStore,
		history:       historyStore,
		media:         mediaStore,
		hub:           hub,
		logger:        logger,
		loopInterval:  interval,
		skipAnnounced: make(map[string]bool),
	}
}

// Start begins the background poll/dispatch loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("orchestrator is already running")
	}

	o.ctx, o.cancel = context.WithCancel(ctx)
	o.running = true

	o.wg.Add(1)
	go o.runLoop()

	o.logger.WithField("interval", o.loopInterval.String()).Info("Orchestrator started")
	return nil
}

// Stop cancels the loop and blocks until the in-flight cycle completes.
// A dispatch that already reached its provider finishes or times out
// before shutdown is honored.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}

	o.logger.Info("Stopping orchestrator...")
	o.cancel()
	o.wg.Wait()
	o.running = false
	o.logger.Info("Orchestrator stopped")
}

// IsRunning returns whether the loop is currently active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

func (o *Orchestrator) runLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.loopInterval)
	defer ticker.Stop()

	// The first cycle runs immediately; the surface already holds
	// whatever arrived while we were down.
	o.runCycle()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.runCycle()
		}
	}
}

// runCycle walks the enabled conversations in configuration order.
// Shutdown is honored at the top of the cycle and between dispatches,
// never mid-interaction.
func (o *Orchestrator) runCycle() {
	cycleID := tracing.GenerateCycleID()

	for _, mapping := range o.router.Conversations() {
		if o.ctx.Err() != nil {
			return
		}
		o.pollConversation(cycleID, mapping.Name)
	}
}

func (o *Orchestrator) pollConversation(cycleID, conversation string) {
	messages := o.source.PollNew(o.ctx, conversation)
	LogPollActivity(o.ctx, o.logger, cycleID, len(messages))

	for _, msg := range messages {
		if o.ctx.Err() != nil {
			return
		}
		o.processMessage(o.ctx, msg)
	}
}

// processMessage takes one detected message to a terminal state:
// deduplicated, silently ignored, skipped, delivered, or failed.
func (o *Orchestrator) processMessage(ctx context.Context, msg models.Message) {
	o.transition(msg, phaseDetected)
	LogMessageDetected(ctx, o.logger, msg)

	if o.cache.Seen(msg.Fingerprint) {
		o.transition(msg, phaseDeduped)
		o.logger.WithField(LogFieldFingerprint, msg.Fingerprint).Debug("Message already processed, skipping")
		o.discardMedia(msg)
		return
	}

	mapping, ok := o.router.Resolve(msg.Conversation)
	if !ok {
		// The surface holds plenty of conversations this process was
		// never configured to answer. Deliberately silent.
		o.discardMedia(msg)
		return
	}

	if !o.registry.Ready(mapping.Provider) {
		o.transition(msg, phaseSkipped)
		result := o.skipResult(msg, mapping.Provider)
		o.announceSkip(mapping.Provider, result.FailureReason)
		LogDispatchResult(ctx, o.logger, result)
		o.publish(result)
		o.discardMedia(msg)
		return
	}

	result := o.dispatch(ctx, msg)
	LogDispatchResult(ctx, o.logger, result)
	o.publish(result)
}

// dispatch routes the message, asks the provider, posts the reply back,
// and marks the fingerprint. Mark happens strictly after the reply is
// posted: a crash between the two risks one duplicate reply on restart,
// which beats silently losing the answer.
func (o *Orchestrator) dispatch(ctx context.Context, msg models.Message) models.DispatchResult {
	started := time.Now()

	route, err := o.router.Route(msg)
	if err != nil {
		return o.failResult(msg, "", started, err)
	}

	imagePath := o.prepareImage(msg)
	defer o.cleanupMedia(msg, imagePath)

	req := provider.Request{
		Prompt:       route.Prompt,
		ImagePath:    imagePath,
		Model:        route.Model,
		Timeout:      route.Timeout,
		PollInterval: route.PollInterval,
	}
	if msg.Kind == models.MessageKindText && route.Adapter.Kind() == models.TransportAPI {
		req.History = o.recentTurns(ctx, msg.Conversation)
	}

	o.transition(msg, phaseDispatched)

	// The ask runs detached from the shutdown context so cancellation
	// is honored only between dispatches; its own deadline still bounds
	// it to the mapping timeout plus one poll interval.
	grace := route.PollInterval
	if grace <= 0 {
		grace = time.Duration(constants.DefaultResponsePollSec) * time.Second
	}
	askCtx, cancelAsk := context.WithTimeout(context.WithoutCancel(ctx), route.Timeout+grace)
	defer cancelAsk()

	o.transition(msg, phaseAwaitingResponse)
	answer, err := route.Adapter.Ask(askCtx, req)
	if err != nil {
		return o.failResult(msg, route.Provider, started, err)
	}
	o.transition(msg, phaseExtracted)

	replyCtx, cancelReply := context.WithTimeout(context.WithoutCancel(ctx), route.Timeout)
	defer cancelReply()

	if err := o.source.Reply(replyCtx, msg.Conversation, answer); err != nil {
		return o.failResult(msg, route.Provider, started, err)
	}
	o.transition(msg, phaseDelivered)

	if err := o.cache.Mark(msg.Fingerprint, time.Now()); err != nil {
		// The reply already went out, but without a durable mark the
		// delivery is not final. The next cycle may send it once more.
		markErr := errors.NewCacheError("mark", err)
		o.logger.WithError(markErr).WithField(LogFieldFingerprint, msg.Fingerprint).
			Warn("Reply delivered but fingerprint not durably marked")
		o.transition(msg, phaseFailed)
		return models.DispatchResult{
			Status:        models.DispatchFailed,
			Conversation:  msg.Conversation,
			Provider:      route.Provider,
			Kind:          msg.Kind,
			Fingerprint:   msg.Fingerprint,
			FailureReason: markErr.Error(),
			Elapsed:       time.Since(started),
			CompletedAt:   time.Now(),
		}
	}
	o.transition(msg, phaseCached)

	o.recordExchange(ctx, msg, route.Provider, answer)
	o.clearSkipAnnouncement(route.Provider)

	return models.DispatchResult{
		Status:       models.DispatchDelivered,
		Conversation: msg.Conversation,
		Provider:     route.Provider,
		Kind:         msg.Kind,
		Fingerprint:  msg.Fingerprint,
		Response:     answer,
		Elapsed:      time.Since(started),
		CompletedAt:  time.Now(),
	}
}

// failResult closes out a failed dispatch. Messages that can never
// succeed are marked so they are not retried forever; transient failures
// stay unmarked and come back next cycle.
func (o *Orchestrator) failResult(msg models.Message, providerID string, started time.Time, cause error) models.DispatchResult {
	o.transition(msg, phaseFailed)

	if !errors.IsRetryable(cause) {
		if err := o.cache.Mark(msg.Fingerprint, time.Now()); err != nil {
			o.logger.WithError(err).WithField(LogFieldFingerprint, msg.Fingerprint).
				Warn("Failed to mark unprocessable message")
		}
	}

	return models.DispatchResult{
		Status:        models.DispatchFailed,
		Conversation:  msg.Conversation,
		Provider:      providerID,
		Kind:          msg.Kind,
		Fingerprint:   msg.Fingerprint,
		FailureReason: cause.Error(),
		Elapsed:       time.Since(started),
		CompletedAt:   time.Now(),
	}
}

func (o *Orchestrator) skipResult(msg models.Message, providerID string) models.DispatchResult {
	reason := "provider session not ready"
	if session, ok := o.registry.Session(providerID); ok {
		reason = fmt.Sprintf("provider session is %s", session.State)
	}

	return models.DispatchResult{
		Status:        models.DispatchSkipped,
		Conversation:  msg.Conversation,
		Provider:      providerID,
		Kind:          msg.Kind,
		Fingerprint:   msg.Fingerprint,
		FailureReason: reason,
		CompletedAt:   time.Now(),
	}
}

// announceSkip raises the first skip per provider to INFO. A provider
// waiting for login is a normal condition that needs human action once,
// not an error worth repeating every cycle.
func (o *Orchestrator) announceSkip(providerID, reason string) {
	if o.skipAnnounced[providerID] {
		return
	}
	o.skipAnnounced[providerID] = true
	o.logger.WithFields(logrus.Fields{
		LogFieldProvider: providerID,
		"reason":         reason,
	}).Info("Provider not ready, holding its messages")
}

func (o *Orchestrator) clearSkipAnnouncement(providerID string) {
	delete(o.skipAnnounced, providerID)
}

// prepareImage shrinks oversized inbound images before dispatch.
// Compression failures fall back to the original file.
func (o *Orchestrator) prepareImage(msg models.Message) string {
	if msg.ImagePath == "" {
		return ""
	}
	if !features.IsEnabled(features.FlagMediaCompression) {
		return msg.ImagePath
	}

	compressed, err := media.CompressImage(msg.ImagePath, constants.DefaultMaxImageSizeKB)
	if err != nil {
		o.logger.WithError(err).WithField("path", msg.ImagePath).
			Warn("Image compression failed, sending original")
		return msg.ImagePath
	}
	return compressed
}

// recentTurns loads conversation context for API asks. History trouble
// downgrades to an uncontextualized ask, never a failed dispatch.
func (o *Orchestrator) recentTurns(ctx context.Context, conversation string) []models.Turn {
	if o.history == nil || !features.IsEnabled(features.FlagHistoryPersistence) {
		return nil
	}

	turns, err := o.history.RecentTurns(ctx, conversation, constants.DefaultHistoryTurns)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to load conversation history, asking without context")
		return nil
	}
	return turns
}

func (o *Orchestrator) recordExchange(ctx context.Context, msg models.Message, providerID, answer string) {
	if o.history == nil || !features.IsEnabled(features.FlagHistoryPersistence) {
		return
	}

	exchange := &models.Exchange{
		Conversation: msg.Conversation,
		Provider:     providerID,
		Kind:         msg.Kind,
		Message:      msg.Content,
		Response:     answer,
		Fingerprint:  msg.Fingerprint,
		ExchangedAt:  msg.ArrivedAt,
	}
	if err := o.history.RecordExchange(context.WithoutCancel(ctx), exchange); err != nil {
		o.logger.WithError(err).Warn("Failed to record exchange in history")
	}
}

// discardMedia removes the temp file behind a message that was not
// dispatched. The next poll re-exports the image if it comes back.
func (o *Orchestrator) discardMedia(msg models.Message) {
	if msg.ImagePath == "" {
		return
	}
	if err := o.media.Remove(msg.ImagePath); err != nil {
		o.logger.WithError(err).WithField("path", msg.ImagePath).Debug("Failed to remove media temp file")
	}
}

// cleanupMedia removes the consumed attempt's temp files, the compressed
// copy included. A retried message gets a fresh export next cycle.
func (o *Orchestrator) cleanupMedia(msg models.Message, prepared string) {
	if prepared != "" && prepared != msg.ImagePath {
		if err := o.media.Remove(prepared); err != nil {
			o.logger.WithError(err).WithField("path", prepared).Debug("Failed to remove compressed media file")
		}
	}
	o.discardMedia(msg)
}

func (o *Orchestrator) transition(msg models.Message, phase dispatchPhase) {
	o.logger.WithFields(logrus.Fields{
		LogFieldFingerprint: msg.Fingerprint,
		"phase":             string(phase),
	}).Debug("Message phase transition")
	metrics.IncrementCounter("message_phases_total",
		map[string]string{"phase": string(phase)}, "Message lifecycle phase transitions")
}

func (o *Orchestrator) publish(result models.DispatchResult) {
	metrics.IncrementCounter("dispatches_total", map[string]string{
		"status":   string(result.Status),
		"provider": result.Provider,
	}, "Dispatch outcomes by status and provider")
	if result.Status == models.DispatchDelivered {
		metrics.RecordTimer("dispatch_duration", result.Elapsed, map[string]string{
			"provider": result.Provider,
		}, "End-to-end time from routing to delivered reply")
	}

	if o.hub != nil && features.IsEnabled(features.FlagLiveEvents) {
		o.hub.Publish(result)
	}
}
