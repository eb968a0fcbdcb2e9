// Package app wires the CORE's pieces — Reactor, the HTTP client Engine,
// the HTTP server Engine, Config, and the obs Logger — into one running
// process, the way the teacher's app/app.go wired its core.Engine to
// config.Config and a signal-driven shutdown goroutine.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SecurityWorks/coro-http/config"
	"github.com/SecurityWorks/coro-http/core/httpclient"
	"github.com/SecurityWorks/coro-http/core/httpserver"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/internal/obs"
)

// App bundles the reactor-driven runtime: one Reactor goroutine backs both
// a Client (for outbound requests the handler may itself issue) and a
// Server (for inbound requests), governed by Config.
type App struct {
	cfg    *config.Config
	log    obs.Logger
	re     *reactor.Reactor
	client *httpclient.Engine
	server *httpserver.Server
}

// New builds an App. handler answers every inbound request the server
// accepts; it may use Client to make outbound requests of its own (e.g. a
// reverse-proxy style handler), since both engines share one Reactor.
func New(cfg *config.Config, handler httpserver.Handler) (*App, error) {
	re, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("app: create reactor: %w", err)
	}

	logger := obs.NewZerologLogger(obs.ParseLevel(cfg.LogLevel))

	client := httpclient.New(re)
	client.CachePath = cfg.CachePath
	client.CABundle = cfg.CABundle

	server := httpserver.New(re, handler)

	return &App{cfg: cfg, log: logger, re: re, client: client, server: server}, nil
}

// Client returns the outbound HTTP engine, for handlers that need it.
func (a *App) Client() *httpclient.Engine { return a.client }

// Run binds the server, drives the reactor until a shutdown signal
// arrives, drains in-flight requests via Server.Quit, and returns once the
// reactor has stopped.
func (a *App) Run() error {
	if err := a.server.Listen(httpserver.Config{
		Address:      a.cfg.Address,
		Port:         a.cfg.Port,
		MaxHeadBytes: a.cfg.MaxHeadBytes,
	}); err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}

	done := make(chan struct{})
	go func() {
		a.re.Run()
		close(done)
	}()

	a.log.Logf(obs.Info, "coro-http server listening on %s:%d [%s]", a.cfg.Address, a.cfg.Port, a.cfg.Env)

	a.awaitSignalAndShutdown()

	<-done
	return nil
}

func (a *App) awaitSignalAndShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.log.Logf(obs.Info, "signal received: %v, draining in-flight requests", sig)

	drained := make(chan struct{})
	a.re.Post(func() {
		a.server.Quit().Suspend(func() { close(drained) })
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-drained:
		a.log.Logf(obs.Info, "drained cleanly, stopping reactor")
	case <-ctx.Done():
		a.log.Logf(obs.Warn, "shutdown timed out waiting for in-flight requests")
	}
	a.re.Stop()
}
