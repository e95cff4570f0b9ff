package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/relaychat/internal/roomstore"
	"github.com/Tyrowin/relaychat/internal/server"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

// TestApplyFlags tests that explicitly set flags override the config while
// unset flags leave it alone.
func TestApplyFlags(t *testing.T) {
	cfg := server.NewConfig()
	cmd := newCommand()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		applyFlags(c, cfg)
		return nil
	}

	err := cmd.Run(context.Background(), []string{appName,
		"--addr", ":9999",
		"--workers", "3",
		"--origins", "https://a.example",
		"--origins", "https://b.example",
		"--jwt-secret", "s",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "s", cfg.JWTSecret)
	assert.Equal(t, "/ws", cfg.Path)
	assert.Equal(t, 1, cfg.Acceptors)
	assert.Empty(t, cfg.RoomDBPath)
}

func TestParseRoomSeed(t *testing.T) {
	room, err := parseRoomSeed("100:lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(100), room.ID)
	assert.Equal(t, "lobby", room.Name)
	assert.Equal(t, roomstore.StatusActive, room.Status)

	for _, bad := range []string{"lobby", "x:lobby", "0:lobby", "-3:lobby", "5:", "5:  "} {
		_, err := parseRoomSeed(bad)
		assert.Error(t, err, bad)
	}
}

// TestSeedRooms tests that seeding creates missing rooms and skips existing ones.
func TestSeedRooms(t *testing.T) {
	store, err := roomstore.Open(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, seedRooms(ctx, store, []string{"1:general", "2:random"}))
	require.NoError(t, seedRooms(ctx, store, []string{"1:renamed"}))

	room, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)

	ok, err := store.Available(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, seedRooms(ctx, store, []string{"broken"}))
}
