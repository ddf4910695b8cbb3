// Package pipeline wraps command and query handlers in a fixed chain of
// cross-cutting behaviors: recover, logging, tracing, metrics and validation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/metrics"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "toko-commerce/internal/pipeline"

// HandlerFunc handles one command or query.
type HandlerFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Pipeline carries the dependencies of the behaviors.
type Pipeline struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	validator *validator.Validate
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the logging and recover behaviors.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tr trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tr
	}
}

// WithMetrics enables the metrics behavior.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New builds a Pipeline. Unset dependencies fall back to no-ops.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.validator = NewValidator()
	return p
}

// Validator returns the validator used by the validation behavior.
func (p *Pipeline) Validator() *validator.Validate {
	return p.validator
}

// Wrap decorates h with the full chain, outermost first:
// Recover -> Logging -> Tracing -> Metrics -> Validation -> h.
func Wrap[Req, Res any](p *Pipeline, name string, h HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	h = Validation(p.validator, h)
	h = Metrics(p.metrics, name, h)
	h = Tracing(p.tracer, name, h)
	h = Logging(p.logger, name, h)
	h = Recover(p.logger, name, h)
	return h
}

// Recover turns a panic in next into an Unhandled error.
func Recover[Req, Res any](logger *zap.Logger, name string, next HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	return func(ctx context.Context, req Req) (res Res, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					zap.String("command", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				var zero Res
				res = zero
				err = fmt.Errorf("%w: %s panicked: %v", apperrors.ErrUnhandled, name, r)
			}
		}()
		return next(ctx, req)
	}
}

// Logging logs every invocation with its outcome and duration. Errors outside
// the taxonomy are wrapped as Unhandled here.
func Logging[Req, Res any](logger *zap.Logger, name string, next HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	return func(ctx context.Context, req Req) (Res, error) {
		start := time.Now()
		logger.Debug("handling command", zap.String("command", name))

		res, err := next(ctx, req)
		elapsed := time.Since(start)
		switch {
		case err == nil:
			logger.Info("command handled", zap.String("command", name), zap.Duration("elapsed", elapsed))
		case apperrors.IsKnown(err) && !errors.Is(err, apperrors.ErrUnhandled):
			logger.Warn("command rejected", zap.String("command", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		default:
			err = apperrors.Unhandled(err)
			logger.Error("command failed", zap.String("command", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		}
		return res, err
	}
}

// Tracing runs next inside a span named after the command.
func Tracing[Req, Res any](tracer trace.Tracer, name string, next HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	return func(ctx context.Context, req Req) (Res, error) {
		ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.String("command.name", name)))
		defer span.End()

		res, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("command.outcome", Outcome(err)))
		}
		return res, err
	}
}

// Metrics counts invocations per outcome and records latency. A nil m disables it.
func Metrics[Req, Res any](m *metrics.Metrics, name string, next HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	if m == nil {
		return next
	}
	return func(ctx context.Context, req Req) (Res, error) {
		start := time.Now()
		res, err := next(ctx, req)
		m.CommandLatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Microseconds()) / 1000)
		m.Commands.WithLabelValues(name, Outcome(err)).Inc()
		return res, err
	}
}

// Validation checks the validate tags of struct requests before next runs.
func Validation[Req, Res any](v *validator.Validate, next HandlerFunc[Req, Res]) HandlerFunc[Req, Res] {
	return func(ctx context.Context, req Req) (Res, error) {
		if err := ValidateStruct(v, req); err != nil {
			var zero Res
			return zero, err
		}
		return next(ctx, req)
	}
}

// Outcome classifies err for metrics and traces.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, apperrors.ErrValidation):
		return "validation_failed"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	default:
		return "unhandled"
	}
}

// NewValidator returns a validator that reports fields by their json names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct validates req when it is a struct or a pointer to one and
// converts the result into an apperrors.ValidationError.
func ValidateStruct(v *validator.Validate, req any) error {
	rv := reflect.ValueOf(req)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return apperrors.NewValidation("request", "is required")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.Unhandled(err)
	}
	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[fieldPath(e)] = describe(e)
	}
	return &apperrors.ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max", "lte":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "oneof":
		return "must be one of " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "email":
		return "must be a valid email address"
	case "len":
		return "must have length " + e.Param()
	default:
		return fmt.Sprintf("failed on the '%s' tag", e.Tag())
	}
}
