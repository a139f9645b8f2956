package server

import (
	"context"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/internal/scheduler"
	"TasaPull/pkg/config"
	xhttp "TasaPull/pkg/http"
	applogger "TasaPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingPublisher struct{ closed int }

func (p *closingPublisher) PublishUpdate(context.Context, models.UpdateEvent) error { return nil }
func (p *closingPublisher) Close() error                                            { p.closed++; return nil }

func newTestApp(t *testing.T, port int) (*App, *scheduler.Service, *closingPublisher) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Scheduler.Enabled = true
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Engine.CycleTimeout = time.Second

	sched := scheduler.New(time.UTC, nil, nil, applogger.Nop(), time.Minute)
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(port))
	events := &closingPublisher{}
	return New(cfg, applogger.Nop(), srv, sched, nil, events), sched, events
}

func TestRunStopsWorkersWhenHTTPCannotBind(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	app, sched, events := newTestApp(t, ln.Addr().(*net.TCPAddr).Port)
	err = app.run(make(chan os.Signal))
	require.Error(t, err)
	assert.False(t, sched.Running(), "scheduler started before the bind failure is stopped")
	assert.Equal(t, 1, events.closed)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunShutsDownOnSignal(t *testing.T) {
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	app, sched, events := newTestApp(t, port)
	sigCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- app.run(sigCh) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, sched.Running())

	sigCh <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after the signal")
	}
	assert.False(t, sched.Running())
	assert.Equal(t, 1, events.closed)
	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener is closed after shutdown")
}
