package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown.
const DefaultShutdownTimeout = 15 * time.Second

const checkTimeout = 3 * time.Second

type healthBody struct {
	Info
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// HealthHandler serves the service's health as JSON: 200 when healthy,
// 503 otherwise.
func (s *Service) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		checks, err := s.health(ctx)
		body := healthBody{Info: s.Info(), Status: "ok", Checks: checks}
		status := http.StatusOK
		if err != nil {
			body.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// Run starts the service, serves srv until ctx is canceled or the server
// fails, then shuts the server down within shutdownTimeout and stops the
// service. A non-positive timeout uses DefaultShutdownTimeout.
func (s *Service) Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Stop(context.WithoutCancel(ctx))
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("lifecycle: listening", "service", s.name, "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("lifecycle: shutdown requested", "service", s.name)
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = sserr.Wrap(err, sserr.CodeUnavailable, "lifecycle: http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: graceful shutdown incomplete"))
	}
	if err := s.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
