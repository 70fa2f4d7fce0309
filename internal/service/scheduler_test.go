package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatbridge/internal/cache"
	"chatbridge/internal/history"
	"chatbridge/internal/models"
	"chatbridge/pkg/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMediaStore(t *testing.T) media.Store {
	t.Helper()
	store, err := media.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	return store
}

func saveAgedImage(t *testing.T, store media.Store, age time.Duration) string {
	t.Helper()
	path, err := store.SaveImage([]byte("not really a jpeg"), "jpg")
	require.NoError(t, err)
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestScheduler_RunCleanup(t *testing.T) {
	mediaStore := newTestMediaStore(t)
	aged := saveAgedImage(t, mediaStore, 2*time.Hour)
	fresh, err := mediaStore.SaveImage([]byte("still warm"), "jpg")
	require.NoError(t, err)

	cacheStore := cache.NewStore(filepath.Join(t.TempDir(), "processed.json"), testLogger())
	require.NoError(t, cacheStore.Mark("stale-fingerprint", time.Now().AddDate(0, 0, -40)))
	require.NoError(t, cacheStore.Mark("recent-fingerprint", time.Now()))

	historyStore, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer historyStore.Close()

	ctx := context.Background()
	require.NoError(t, historyStore.RecordExchange(ctx, &models.Exchange{
		Conversation: "Capivara",
		Provider:     "claude-web",
		Kind:         models.MessageKindText,
		Message:      "hello",
		Response:     "hi",
		Fingerprint:  "fp-1",
		ExchangedAt:  time.Now(),
	}))

	retention := models.RetentionConfig{CacheDays: 30, HistoryDays: 30, MediaMaxAgeSec: 3600}
	scheduler := NewScheduler(mediaStore, historyStore, cacheStore, retention, testLogger())

	scheduler.runCleanup(ctx)

	_, err = os.Stat(aged)
	assert.True(t, os.IsNotExist(err), "aged media file should be removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh media file should survive")

	assert.False(t, cacheStore.Seen("stale-fingerprint"))
	assert.True(t, cacheStore.Seen("recent-fingerprint"))

	count, err := historyStore.CountExchanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "recent exchange should survive retention sweep")
}

func TestScheduler_RunCleanupSkipsDisabledSweeps(t *testing.T) {
	mediaStore := newTestMediaStore(t)
	aged := saveAgedImage(t, mediaStore, 48*time.Hour)

	cacheStore := cache.NewStore(filepath.Join(t.TempDir(), "processed.json"), testLogger())
	require.NoError(t, cacheStore.Mark("ancient-fingerprint", time.Now().AddDate(0, 0, -400)))

	retention := models.RetentionConfig{CacheDays: 0, HistoryDays: 0, MediaMaxAgeSec: 0}
	scheduler := NewScheduler(mediaStore, nil, cacheStore, retention, testLogger())

	scheduler.runCleanup(context.Background())

	_, err := os.Stat(aged)
	assert.NoError(t, err, "media sweep is disabled, file should remain")
	assert.True(t, cacheStore.Seen("ancient-fingerprint"))
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	mediaStore := newTestMediaStore(t)
	aged := saveAgedImage(t, mediaStore, 2*time.Hour)

	retention := models.RetentionConfig{MediaMaxAgeSec: 3600}
	scheduler := NewScheduler(mediaStore, nil, nil, retention, testLogger())
	scheduler.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(aged)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond, "first sweep should run before the first tick")

	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	retention := models.RetentionConfig{}
	scheduler := NewScheduler(newTestMediaStore(t), nil, nil, retention, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

func TestScheduler_StopSignal(t *testing.T) {
	retention := models.RetentionConfig{}
	scheduler := NewScheduler(newTestMediaStore(t), nil, nil, retention, testLogger())

	done := make(chan struct{})
	go func() {
		scheduler.Start(context.Background())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)

	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}
