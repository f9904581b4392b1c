// api/cmd/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/magiclink/services/signin-service/internal/bootstrap"
	"github.com/baechuer/magiclink/services/signin-service/internal/logger"
)

// In-flight callbacks may still be waiting on the identity provider
// (OAUTH_HTTP_TIMEOUT), so leave them room to finish.
const shutdownTimeout = 15 * time.Second

// httpServer is what Run needs from the sign-in HTTP server.
// Tests substitute a fake.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
	Addr() string
}

// realServer adapts *http.Server to httpServer.
type realServer struct{ *http.Server }

func (r realServer) Addr() string { return r.Server.Addr }

// serverBuilder wires the service and hands back its cleanup
// (DB, Redis and broker connections).
type serverBuilder func() (httpServer, func(), error)

// Run serves until a signal arrives or the listener fails, then drains.
// The return value is the process exit code.
func Run(build serverBuilder, sigCh <-chan os.Signal, lg zerolog.Logger) int {
	srv, cleanup, err := build()
	if err != nil {
		lg.Error().Err(err).Msg("signin-service bootstrap failed")
		return 1
	}
	defer cleanup()

	crashed := serve(srv, lg)

	select {
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-crashed:
		// non-zero so the orchestrator restarts us
		lg.Error().Err(err).Msg("listener stopped unexpectedly")
		return 1
	}

	drain(srv, lg)
	lg.Info().Msg("signin-service stopped")
	return 0
}

// serve starts the listener in the background. The channel receives at
// most one error; a normal close is not reported.
func serve(srv httpServer, lg zerolog.Logger) <-chan error {
	crashed := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr()).Msg("signin-service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			crashed <- err
		}
	}()
	return crashed
}

// drain shuts down gracefully and falls back to a hard close.
func drain(srv httpServer, lg zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Dur("timeout", shutdownTimeout).Msg("graceful shutdown failed, closing")
		_ = srv.Close()
	}
}

func buildFromBootstrap() (httpServer, func(), error) {
	srv, cleanup, err := bootstrap.NewServer()
	if err != nil {
		return nil, nil, err
	}
	return realServer{srv}, cleanup, nil
}

func main() {
	logger.Init()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(Run(buildFromBootstrap, sigCh, zlog.Logger))
}
