package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAwaitingLoginHoldsMessagesUntilReady starts the loop against a
// provider waiting for a human login. Its messages must be skipped, not
// failed: no dispatch, no reply, no cache entry. Once the session comes
// back the held message goes through on a later cycle.
func TestAwaitingLoginHoldsMessagesUntilReady(t *testing.T) {
	env := NewTestEnvironment(t, "awaiting_login")
	defer env.Cleanup()

	stub := env.AddUIProvider("claude-web", "Welcome back", "Welcome back")
	stub.SetSessionState(models.SessionAwaitingLogin, "login required")

	msg := InboundText("Capivara", "Hello")
	env.surface.Post("Capivara", msg)
	env.Start(env.fixtures.Conversations()["capivara"])

	skipped := env.WaitForResult(10 * time.Second)
	assert.Equal(t, models.DispatchSkipped, skipped.Status)
	assert.Contains(t, skipped.FailureReason, "awaiting_login")
	assert.Equal(t, msg.Fingerprint, skipped.Fingerprint)
	assert.False(t, env.cache.Seen(msg.Fingerprint))
	assert.Empty(t, env.surface.Replies())
	assert.Equal(t, 0, stub.AskCount())

	stub.SetSessionState(models.SessionReady, "")
	env.registry.Refresh(context.Background(), "claude-web")

	delivered := env.WaitForDelivery(10 * time.Second)
	assert.Equal(t, "Welcome back", delivered.Response)
	assert.Equal(t, msg.Fingerprint, delivered.Fingerprint)
	assert.True(t, env.cache.Seen(msg.Fingerprint))
	require.Len(t, env.surface.Replies(), 1)
}

// TestFailedReplyRetriesOnLaterCycle breaks the reply path after the
// provider has answered. The dispatch must fail unmarked so a later
// cycle asks again and delivers once the surface recovers.
func TestFailedReplyRetriesOnLaterCycle(t *testing.T) {
	env := NewTestEnvironment(t, "reply_retry")
	defer env.Cleanup()

	stub := env.AddUIProvider("claude-web", "Here you go", "Here you go")
	env.surface.FailReplies(errors.NewBrowserError("reply", fmt.Errorf("conversation row not found")))

	msg := InboundText("Capivara", "Send me the summary")
	env.surface.Post("Capivara", msg)
	env.Start(env.fixtures.Conversations()["capivara"])

	failed := env.WaitForResult(10 * time.Second)
	assert.Equal(t, models.DispatchFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "browser reply failed")
	assert.False(t, env.cache.Seen(msg.Fingerprint))
	assert.Empty(t, env.surface.Replies())

	env.surface.FailReplies(nil)

	// Cycles between the failure and the recovery may have failed again,
	// so tolerate further failures until the delivery lands.
	deadline := time.Now().Add(10 * time.Second)
	var delivered models.DispatchResult
	for delivered.Status != models.DispatchDelivered {
		delivered = env.WaitForResult(time.Until(deadline))
	}

	assert.Equal(t, "Here you go", delivered.Response)
	assert.Equal(t, msg.Fingerprint, delivered.Fingerprint)
	assert.True(t, env.cache.Seen(msg.Fingerprint))
	require.Len(t, env.surface.Replies(), 1)
	assert.GreaterOrEqual(t, stub.AskCount(), 2)
}

// TestRestartDoesNotRepeatDeliveredReplies delivers a message, tears
// the whole pipeline down, and brings a fresh one up over the same
// cache file. The reloaded fingerprint must keep the re-reported row
// from being dispatched or replied to again.
func TestRestartDoesNotRepeatDeliveredReplies(t *testing.T) {
	first := NewTestEnvironment(t, "restart_before")

	first.AddUIProvider("claude-web", "Hi there", "Hi there")
	msg := InboundText("Capivara", "Hello")
	first.surface.Post("Capivara", msg)
	first.Start(first.fixtures.Conversations()["capivara"])

	first.WaitForDelivery(10 * time.Second)
	require.True(t, first.cache.Seen(msg.Fingerprint))
	first.Cleanup()

	second := NewTestEnvironmentWithOptions(t, "restart_after", &TestEnvironmentOptions{
		CacheFile: first.cacheFile,
	})
	defer second.Cleanup()

	// The reloaded cache already knows the fingerprint before any cycle
	// runs.
	require.True(t, second.cache.Seen(msg.Fingerprint))

	stub := second.AddUIProvider("claude-web", "Hi there", "Hi there")
	second.surface.Post("Capivara", msg)
	second.Start(second.fixtures.Conversations()["capivara"])

	require.Eventually(t, func() bool {
		return second.surface.PollCount("Capivara") >= 2
	}, 5*time.Second, 50*time.Millisecond, "expected the restarted loop to poll")
	second.RequireNoResult(750 * time.Millisecond)

	assert.Empty(t, second.surface.Replies())
	assert.Equal(t, 0, stub.AskCount())
	assert.Equal(t, 1, second.cache.Size())
}
