package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestProviders_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "test"}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "test"}, logger)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ServiceName: "test"}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(ctx))

	core := lp.Core(zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	var zero *telemetry.LoggerProvider
	assert.False(t, zero.IsEnabled())
	assert.False(t, zero.Core(zapcore.DebugLevel).Enabled(zapcore.ErrorLevel))
}

func TestLoggerProvider_Core(t *testing.T) {
	ctx := context.Background()
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(ctx) })
	require.True(t, lp.IsEnabled())

	core := lp.Core(zapcore.WarnLevel)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}

func TestLedgerMetrics(t *testing.T) {
	ctx := context.Background()

	_, err := telemetry.NewLedgerMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)

	m, err := telemetry.NewLedgerMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	m.RecordInbound(ctx, "processed")
	m.RecordClassifier(ctx, "chit_chat", "ok", 150*time.Millisecond)
	m.RecordInvoiceCreated(ctx)
	m.RecordPayment(ctx, "cash", "applied")
	m.RecordWebhook(ctx, "applied")
	m.RecordNotification(ctx, "PaymentApplied", "sent")

	var nilMetrics *telemetry.LedgerMetrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordInbound(ctx, "processed")
		nilMetrics.RecordWebhook(ctx, "rejected")
	})
}

func TestStartServiceSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := telemetry.StartServiceSpan(context.Background(), "ledger", "apply_payment",
		telemetry.SpanAttrShortCode, "ABC234",
		telemetry.SpanAttrAmount, 2000,
	)
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
	telemetry.RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.apply_payment", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Attributes(), 2)

	assert.Empty(t, telemetry.GetTraceID(context.Background()))
}

func TestRegisterOtelGorm(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, telemetry.RegisterOtelGorm(db, telemetry.DBTracingConfig{Enabled: false}, zap.NewNop()))
	require.NoError(t, telemetry.RegisterOtelGorm(db, telemetry.DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop()))

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
