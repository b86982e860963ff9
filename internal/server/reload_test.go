package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/health"
	"github.com/leslieo2/go-probe-toggle/internal/hotreload"
	"github.com/leslieo2/go-probe-toggle/internal/observability"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newReloadableServer(t *testing.T, configFile string) (*Server, http.Handler) {
	t.Helper()

	cfg, err := config.LoadConfig(configFile, nil)
	require.NoError(t, err)

	s, err := New(cfg, health.NewState(),
		WithLogger(observability.NewNopLogger()),
		WithConfigSource(configFile, nil),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.shutdown() })
	return s, s.Handler()
}

func TestServer_ReloadAppliesLogLevelAndKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe-toggle.yaml")
	writeConfig(t, path, `
observability:
  logging:
    level: info
`)

	s, h := newReloadableServer(t, path)
	assert.Equal(t, "server", s.Name())
	assert.Equal(t, zapcore.InfoLevel, s.Logger().Level())
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/toggle-readiness").Code)

	writeConfig(t, path, `
observability:
  logging:
    level: debug
security:
  auth:
    enabled: true
    keys:
      - key: reloaded-key
        name: ops
        enabled: true
`)
	require.NoError(t, s.Reload(context.Background()))

	assert.Equal(t, zapcore.DebugLevel, s.Logger().Level())
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/toggle-readiness").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/toggle-readiness", func(r *http.Request) {
		r.Header.Set("X-API-Key", "reloaded-key")
	}).Code)

	// two toggles in total, so readiness is back where it started
	assert.True(t, s.State().Ready())
}

func TestServer_ReloadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe-toggle.yaml")
	writeConfig(t, path, "observability:\n  logging:\n    level: warn\n")

	s, h := newReloadableServer(t, path)
	require.NoError(t, s.Reload(context.Background()))
	require.Equal(t, zapcore.WarnLevel, s.Logger().Level())
	do(h, http.MethodGet, "/toggle-liveness")

	writeConfig(t, path, "observability:\n  logging:\n    level: chatty\n")
	assert.Error(t, s.Reload(context.Background()))

	assert.Equal(t, zapcore.WarnLevel, s.Logger().Level(), "failed reload keeps the old level")
	assert.False(t, s.State().Alive(), "reload never touches probe state")
}

func TestServer_ReloadHonoursCancellation(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Reload(ctx), context.Canceled)
}

func TestServer_HotReloadOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe-toggle.yaml")
	writeConfig(t, path, "observability:\n  logging:\n    level: info\n")

	s, _ := newReloadableServer(t, path)

	manager, err := hotreload.NewManager(s.Logger().Logger)
	require.NoError(t, err)
	defer manager.Stop()
	manager.SetDebounceTime(20 * time.Millisecond)

	require.NoError(t, manager.AddWatch(path))
	require.NoError(t, manager.RegisterReloadable(s))
	require.NoError(t, manager.Start())

	writeConfig(t, path, "observability:\n  logging:\n    level: error\n")

	assert.Eventually(t, func() bool {
		return s.Logger().Level() == zapcore.ErrorLevel
	}, 3*time.Second, 20*time.Millisecond)
}
