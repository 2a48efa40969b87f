package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook releases a resource once the listener has drained
type ShutdownHook func(ctx context.Context) error

// Run serves until ctx is cancelled, then drains in-flight requests and
// runs the hooks in order. Every hook runs even when an earlier one fails;
// the failures are joined into the returned error.
func Run(ctx context.Context, s *Server, hooks ...ShutdownHook) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.Serve)

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", zap.Duration("timeout", s.config.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := s.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
		for i, hook := range hooks {
			if err := hook(shutdownCtx); err != nil {
				s.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
