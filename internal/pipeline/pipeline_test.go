package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"toko-commerce/internal/apperrors"
	"toko-commerce/internal/metrics"
	"toko-commerce/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type refundCommand struct {
	PaymentID string  `json:"payment_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

type fixture struct {
	pipeline *pipeline.Pipeline
	spans    *tracetest.SpanRecorder
	logs     *observer.ObservedLogs
	metrics  *metrics.Metrics
}

func newFixture() fixture {
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New()
	return fixture{
		pipeline: pipeline.New(
			pipeline.WithLogger(zap.New(core)),
			pipeline.WithTracer(provider.Tracer("test")),
			pipeline.WithMetrics(m),
		),
		spans:   spans,
		logs:    logs,
		metrics: m,
	}
}

func TestWrap_Success(t *testing.T) {
	f := newFixture()
	calls := 0
	h := pipeline.Wrap(f.pipeline, "payments.refund", func(_ context.Context, cmd refundCommand) (string, error) {
		calls++
		return "refunded " + cmd.PaymentID, nil
	})

	res, err := h(context.Background(), refundCommand{PaymentID: "p-1", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "refunded p-1", res)
	assert.Equal(t, 1, calls)

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "payments.refund", ended[0].Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("payments.refund", "ok")))
	assert.Equal(t, 1, f.logs.FilterMessage("command handled").Len())
}

func TestWrap_ValidationStopsBeforeHandler(t *testing.T) {
	f := newFixture()
	called := false
	h := pipeline.Wrap(f.pipeline, "payments.refund", func(context.Context, refundCommand) (string, error) {
		called = true
		return "", nil
	})

	_, err := h(context.Background(), refundCommand{Amount: -1})
	assert.False(t, called)

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "is required", validationErr.Fields["payment_id"])
	assert.Equal(t, "must be greater than 0", validationErr.Fields["amount"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("payments.refund", "validation_failed")))
	assert.Equal(t, 1, f.logs.FilterMessage("command rejected").Len())
}

func TestWrap_UnknownErrorsBecomeUnhandled(t *testing.T) {
	f := newFixture()
	raw := errors.New("db is gone")
	h := pipeline.Wrap(f.pipeline, "orders.get", func(context.Context, string) (int, error) {
		return 0, raw
	})

	_, err := h(context.Background(), "o-1")
	assert.ErrorIs(t, err, apperrors.ErrUnhandled)
	assert.ErrorIs(t, err, raw)

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, 1, f.logs.FilterMessage("command failed").Len())
}

func TestWrap_KnownErrorsPassThrough(t *testing.T) {
	f := newFixture()
	transition := &apperrors.TransitionError{Entity: "order", ID: "o-1", From: "delivered", Action: "cancel"}
	h := pipeline.Wrap(f.pipeline, "orders.cancel", func(context.Context, string) (int, error) {
		return 0, transition
	})

	_, err := h(context.Background(), "o-1")
	assert.Same(t, transition, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("orders.cancel", "invalid_transition")))
}

func TestWrap_RecoversPanics(t *testing.T) {
	f := newFixture()
	h := pipeline.Wrap(f.pipeline, "orders.ship", func(context.Context, string) (*int, error) {
		panic("nil map")
	})

	var res *int
	var err error
	assert.NotPanics(t, func() {
		res, err = h(context.Background(), "o-1")
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrUnhandled)
	assert.Equal(t, 1, f.logs.FilterMessage("handler panicked").Len())
}

func TestNew_DefaultsAreSafe(t *testing.T) {
	h := pipeline.Wrap(pipeline.New(), "noop", func(context.Context, struct{}) (bool, error) {
		return true, nil
	})
	ok, err := h(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateStruct_NilPointer(t *testing.T) {
	var cmd *refundCommand
	err := pipeline.ValidateStruct(pipeline.NewValidator(), cmd)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
