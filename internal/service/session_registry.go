package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"

	"github.com/sirupsen/logrus"
)

// SessionProbe reports the authentication state of one provider session.
// UI transports check the page for the authenticated-state element; API
// transports check that a credential is present.
type SessionProbe interface {
	Probe(ctx context.Context) (models.SessionState, string)
}

// SessionRegistry tracks the last observed session state per provider. A
// background loop re-probes every provider on a fixed interval; the
// orchestrator consults Ready before each dispatch and skips providers
// that need human attention instead of failing their messages.
type SessionRegistry struct {
	probes        map[string]SessionProbe
	logger        *logrus.Logger
	checkInterval time.Duration
	probeTimeout  time.Duration
	initialDelay  time.Duration

	mu       sync.Mutex
	sessions map[string]models.ProviderSession
	running  bool
	stopCh   chan struct{}
}

// NewSessionRegistry creates a registry over the given probes.
func NewSessionRegistry(probes map[string]SessionProbe, logger *logrus.Logger, checkInterval time.Duration) *SessionRegistry {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if checkInterval <= 0 {
		checkInterval = time.Duration(constants.DefaultSessionHealthCheckSec) * time.Second
	}

	return &SessionRegistry{
		probes:        probes,
		logger:        logger,
		checkInterval: checkInterval,
		probeTimeout:  time.Duration(constants.DefaultSessionProbeTimeoutSec) * time.Second,
		initialDelay:  time.Duration(constants.DefaultSessionMonitorInitDelaySec) * time.Second,
		sessions:      make(map[string]models.ProviderSession),
		stopCh:        make(chan struct{}),
	}
}

// Ready reports whether the provider session can accept a dispatch. A
// provider that has never been probed is probed on the spot so the first
// cycle does not run blind.
func (r *SessionRegistry) Ready(providerID string) bool {
	r.mu.Lock()
	session, ok := r.sessions[providerID]
	r.mu.Unlock()

	if !ok {
		return r.Refresh(context.Background(), providerID).Usable()
	}
	return session.State.Usable()
}

// Session returns the last observation for one provider.
func (r *SessionRegistry) Session(providerID string) (models.ProviderSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[providerID]
	return session, ok
}

// Refresh probes the provider now and records the observation. Unknown
// provider ids report logged-out and are not recorded.
func (r *SessionRegistry) Refresh(ctx context.Context, providerID string) models.SessionState {
	probe, ok := r.probes[providerID]
	if !ok {
		r.logger.WithField("provider", providerID).Warn("No session probe registered")
		return models.SessionLoggedOut
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	state, detail := probe.Probe(probeCtx)

	r.mu.Lock()
	previous, seen := r.sessions[providerID]
	r.sessions[providerID] = models.ProviderSession{
		ProviderID:  providerID,
		State:       state,
		LastChecked: time.Now(),
		Detail:      detail,
	}
	r.mu.Unlock()

	if !seen || previous.State != state {
		r.logger.WithFields(logrus.Fields{
			"provider": providerID,
			"state":    state,
			"detail":   detail,
		}).Info("Provider session state changed")
	} else {
		r.logger.WithFields(logrus.Fields{
			"provider": providerID,
			"state":    state,
		}).Debug("Provider session state unchanged")
	}

	return state
}

// Snapshot returns every tracked session, ordered by provider id for
// stable rendering.
func (r *SessionRegistry) Snapshot() []models.ProviderSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ProviderSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Start launches the background monitor loop. The first sweep runs after
// an initial delay so freshly opened pages are not probed mid-load.
func (r *SessionRegistry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("Session registry is already running")
		return
	}

	// Reinitialize stopCh if it was closed
	if r.stopCh == nil {
		r.stopCh = make(chan struct{})
	}
	r.running = true
	r.mu.Unlock()

	go r.monitorLoop(ctx)
	r.logger.Info("Session registry started")
}

// Stop halts the monitor loop.
func (r *SessionRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
	r.running = false
	r.logger.Info("Session registry stopped")
}

func (r *SessionRegistry) monitorLoop(ctx context.Context) {
	initDelay := time.NewTimer(r.initialDelay)
	defer initDelay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-r.getStopCh():
		return
	case <-initDelay.C:
	}

	r.refreshAll(ctx)

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.getStopCh():
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

// getStopCh safely retrieves the stop channel
func (r *SessionRegistry) getStopCh() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh == nil {
		// Return a closed channel to prevent blocking
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.stopCh
}

func (r *SessionRegistry) refreshAll(ctx context.Context) {
	ids := make([]string, 0, len(r.probes))
	for id := range r.probes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r.Refresh(ctx, id)
	}
}
