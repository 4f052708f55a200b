package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carzavenue/backend/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// NewHandler serves the default registry on /metrics.
func NewHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve exposes handler on addr until ctx is canceled. An empty addr is a no-op
// that blocks until ctx ends.
func Serve(ctx context.Context, addr string, handler http.Handler, logg *logger.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "metrics listener starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
