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

// DefaultDrainTimeout bounds how long WithSignals waits for start to
// return after a shutdown signal.
const DefaultDrainTimeout = 15 * time.Second

type Runner struct {
	Logger       *zap.Logger
	DrainTimeout time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, DrainTimeout: DefaultDrainTimeout}
}

// WithSignals runs start with a context cancelled on SIGINT/SIGTERM and
// converts its outcome into a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		select {
		case err := <-errCh:
			return r.code(err)
		case <-time.After(r.DrainTimeout):
			r.Logger.Warn("drain timeout exceeded", zap.Duration("timeout", r.DrainTimeout))
			return 1
		}
	case err := <-errCh:
		return r.code(err)
	}
}

func (r *Runner) code(err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
