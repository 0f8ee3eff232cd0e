package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkzayaz/RR-sub003/internal/player"
)

func TestGetenv(t *testing.T) {
	key := "TEST_ENV_VAR_PLAYER"
	assert.Equal(t, "default_value", getenv(key, "default_value"))

	t.Setenv(key, "set_value")
	assert.Equal(t, "set_value", getenv(key, "default_value"))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("session is required", func(t *testing.T) {
		t.Setenv("SESSION_ID", "")
		_, err := loadConfigFromEnv()
		assert.ErrorContains(t, err, "SESSION_ID")
	})

	t.Run("signature defaults to a fresh uuid", func(t *testing.T) {
		t.Setenv("SESSION_ID", "room")
		t.Setenv("SIGNATURE_HASH", "")
		t.Setenv("LOG_LEVEL", "")

		first, err := loadConfigFromEnv()
		require.NoError(t, err)
		second, err := loadConfigFromEnv()
		require.NoError(t, err)
		assert.Len(t, first.SignatureHash, 36)
		assert.NotEqual(t, first.SignatureHash, second.SignatureHash)
		assert.Equal(t, zerolog.InfoLevel, first.LogLevel)
	})

	t.Run("explicit signature", func(t *testing.T) {
		t.Setenv("SESSION_ID", "room")
		t.Setenv("SIGNATURE_HASH", "me")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := loadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "me", cfg.SignatureHash)
		assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("SESSION_ID", "room")
		t.Setenv("LOG_LEVEL", "loud")
		_, err := loadConfigFromEnv()
		assert.Error(t, err)
	})
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReportsRemoteChanges(t *testing.T) {
	store := player.NewStore(player.NewState())
	out := &lockedBuffer{}
	report := watch(store, "me", out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		report(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for _, a := range []player.Action{
		player.SetBlocked("me", true),
		player.SetBlocked("peer", false),
		player.SetBlocked(player.HydrationSignature, true),
		player.MarkResync("peer"),
	} {
		_, err := store.Dispatch(a)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "[remote]") == 2
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "[remote] set_blocked")
	assert.Contains(t, out.String(), "[remote] mark_resync")
}
