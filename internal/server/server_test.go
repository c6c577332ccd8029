package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat-platform/aichat/internal/config"
)

func TestNew_Defaults(t *testing.T) {
	s := New(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:8080", s.httpServer.Addr)
	assert.Equal(t, defaultWriteTimeout, s.httpServer.WriteTimeout)
	assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)

	s = New(config.ServerConfig{Port: 9000, WriteTimeout: 2 * time.Minute, ShutdownTimeout: time.Second}, http.NotFoundHandler())
	assert.Equal(t, ":9000", s.httpServer.Addr)
	assert.Equal(t, 2*time.Minute, s.httpServer.WriteTimeout)
	assert.Equal(t, time.Second, s.shutdownTimeout)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := New(config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, http.NotFoundHandler())

	var hooks int
	s.OnShutdown(func() { hooks++ })
	s.OnShutdown(func() { hooks++ })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, 2, hooks)
}
