package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-access/pkg/lifecycle"

// Hook runs during start or stop. A start hook error fails the service.
type Hook func(ctx context.Context) error

// Check is a named dependency probe, typically a database ping.
type Check func(ctx context.Context) error

// StateChangeHandler observes transitions. It runs under the state lock
// and must not call back into the service.
type StateChangeHandler func(old, new State)

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithOnStart appends a start hook. Hooks run in registration order.
func WithOnStart(h Hook) Option {
	return func(s *Service) { s.onStart = append(s.onStart, h) }
}

// WithOnStop appends a stop hook. Hooks run in reverse registration
// order, so resources are released opposite to how they were acquired.
func WithOnStop(h Hook) Option {
	return func(s *Service) { s.onStop = append(s.onStop, h) }
}

// WithCheck registers a health check under name.
func WithCheck(name string, c Check) Option {
	return func(s *Service) { s.checks = append(s.checks, namedCheck{name: name, check: c}) }
}

// OnStateChange registers a transition observer.
func OnStateChange(h StateChangeHandler) Option {
	return func(s *Service) { s.handlers = append(s.handlers, h) }
}

type namedCheck struct {
	name  string
	check Check
}

// Info is a snapshot of the service for health responses.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service tracks one process's lifecycle. It is safe for concurrent use.
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer   trace.Tracer
	logger   *slog.Logger
	onStart  []Hook
	onStop   []Hook
	checks   []namedCheck
	handlers []StateChangeHandler
}

// New returns a Service in StateUnknown.
func New(name, version string, opts ...Option) (*Service, error) {
	if name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	s := &Service{
		name:    name,
		version: version,
		state:   StateUnknown,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the service.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

func (s *Service) setState(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state
	if !ValidTransition(from, to) {
		return sserr.Newf(sserr.CodeConflict, "lifecycle: invalid transition from %q to %q", from, to)
	}
	s.state = to
	if to == StateRunning {
		now := time.Now().UTC()
		s.startedAt = &now
	}
	for _, h := range s.handlers {
		s.notify(h, from, to)
	}
	return nil
}

func (s *Service) notify(h StateChangeHandler, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lifecycle: state change handler panicked", "panic", r)
		}
	}()
	h(from, to)
}

// Start runs the start hooks and moves to Running. A hook error moves the
// service to Failed; call Stop to release anything earlier hooks acquired.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Start",
		trace.WithAttributes(attribute.String("service.name", s.name)))
	defer span.End()

	if err := s.setState(StateStarting); err != nil {
		finishSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	for _, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			_ = s.setState(StateFailed)
			wrapped := sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed")
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			finishSpan(span, wrapped)
			return wrapped
		}
	}

	if err := s.setState(StateRunning); err != nil {
		finishSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: running", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs every stop hook, even after one fails, and moves to Stopped.
// The hook errors are joined.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Stop",
		trace.WithAttributes(attribute.String("service.name", s.name)))
	defer span.End()

	if err := s.setState(StateStopping); err != nil {
		finishSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	var errs []error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		_ = s.setState(StateFailed)
		err := sserr.Wrap(errors.Join(errs...), sserr.CodeInternal, "lifecycle: stop hooks failed")
		finishSpan(span, err)
		return err
	}

	if err := s.setState(StateStopped); err != nil {
		finishSpan(span, err)
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// CheckResult is the outcome of one health check. Error is empty when the
// check passed.
type CheckResult struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// Health returns nil when the service is Running and every check passes.
func (s *Service) Health(ctx context.Context) error {
	_, err := s.health(ctx)
	return err
}

func (s *Service) health(ctx context.Context) ([]CheckResult, error) {
	if state := s.State(); state != StateRunning {
		return nil, sserr.Newf(sserr.CodeUnavailable, "lifecycle: service is %s", state)
	}
	results := make([]CheckResult, 0, len(s.checks))
	var failed []string
	for _, c := range s.checks {
		r := CheckResult{Name: c.name}
		if err := c.check(ctx); err != nil {
			r.Error = sserr.ReasonOf(err)
			failed = append(failed, c.name)
			s.logger.WarnContext(ctx, "lifecycle: health check failed", "check", c.name, "error", err)
		}
		results = append(results, r)
	}
	if len(failed) > 0 {
		return results, sserr.Newf(sserr.CodeUnavailableDependency, "lifecycle: checks failing: %v", failed)
	}
	return results, nil
}

func finishSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
