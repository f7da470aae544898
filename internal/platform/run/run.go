// Package run hosts a service's main loop and maps OS signals to
// context cancellation.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	log   *zap.Logger
	grace time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{log: log, grace: 15 * time.Second}
}

// WithSignals runs start until it returns or the process receives
// SIGINT/SIGTERM. After a signal the context handed to start is
// cancelled and start gets a grace period to unwind; a start that is
// still running when the grace period expires exits non-zero.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- start(ctx) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		r.log.Info("shutdown signal received")
		select {
		case err = <-errCh:
		case <-time.After(r.grace):
			r.log.Error("shutdown grace period expired", zap.Duration("grace", r.grace))
			return 1
		}
	}

	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return 0
	}
	r.log.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
