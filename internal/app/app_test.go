package app

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Env = "test"
	cfg.Hooks.Workers = 2
	cfg.Security.EncryptionKey = "test-key"
	return cfg
}

func TestApp_StartServeShutdown(t *testing.T) {
	var logs bytes.Buffer
	log := logger.NewWithWriter("production", &logs)

	a, err := Build(testConfig(), testhelpers.NewTestDB(t), log)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	assert.ErrorIs(t, a.Start(ctx), ErrAlreadyStarted)

	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(shutdownCtx))

	assert.Equal(t, 1, strings.Count(logs.String(), "feedbackhub server started"))
	assert.Contains(t, logs.String(), "feedbackhub server stopped")
}

func TestApp_StartFailsOnBusyPort(t *testing.T) {
	first, err := Build(testConfig(), testhelpers.NewTestDB(t), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := testConfig()
	_, port, _ := strings.Cut(first.Addr(), ":")
	cfg.Server.Port = mustAtoi(t, port)

	second, err := Build(cfg, testhelpers.NewTestDB(t), logger.Discard())
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
