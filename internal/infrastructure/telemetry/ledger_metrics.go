package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Metric attribute keys
var (
	AttrOutcome       = attribute.Key("outcome")
	AttrIntent        = attribute.Key("intent")
	AttrPaymentMethod = attribute.Key("payment_method")
	AttrEventType     = attribute.Key("event_type")
)

// LedgerMetrics counts what happens in the conversational core.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	inboundMessages    *Counter
	classifierCalls    *Counter
	classifierDuration *Histogram
	invoicesCreated    *Counter
	paymentsApplied    *Counter
	webhooks           *Counter
	notifications      *Counter
}

// NewLedgerMetrics registers the instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error
	if m.inboundMessages, err = NewCounter(meter, "tally_inbound_messages_total", "Inbound channel messages by outcome", "{messages}"); err != nil {
		return nil, err
	}
	if m.classifierCalls, err = NewCounter(meter, "tally_classifier_calls_total", "Intent classifier calls by outcome", "{calls}"); err != nil {
		return nil, err
	}
	if m.classifierDuration, err = NewHistogram(meter, "tally_classifier_duration_seconds", "Intent classifier round trip", "s", ClassifierDurationBuckets...); err != nil {
		return nil, err
	}
	if m.invoicesCreated, err = NewCounter(meter, "tally_invoices_created_total", "Invoices created", "{invoices}"); err != nil {
		return nil, err
	}
	if m.paymentsApplied, err = NewCounter(meter, "tally_payments_applied_total", "Payment applications by outcome", "{payments}"); err != nil {
		return nil, err
	}
	if m.webhooks, err = NewCounter(meter, "tally_payment_webhooks_total", "Provider webhooks by outcome", "{webhooks}"); err != nil {
		return nil, err
	}
	if m.notifications, err = NewCounter(meter, "tally_notifications_total", "Notification dispatches by outcome", "{notifications}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordInbound counts an inbound message (processed, duplicate, unknown_merchant, ...).
func (m *LedgerMetrics) RecordInbound(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.inboundMessages.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordClassifier counts a classifier call and its latency.
func (m *LedgerMetrics) RecordClassifier(ctx context.Context, intent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifierCalls.Inc(ctx, AttrIntent.String(intent), AttrOutcome.String(outcome))
	m.classifierDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}

// RecordInvoiceCreated counts a created invoice.
func (m *LedgerMetrics) RecordInvoiceCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc(ctx)
}

// RecordPayment counts a payment application (applied or duplicate).
func (m *LedgerMetrics) RecordPayment(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.paymentsApplied.Inc(ctx, AttrPaymentMethod.String(method), AttrOutcome.String(outcome))
}

// RecordWebhook counts a provider webhook delivery.
func (m *LedgerMetrics) RecordWebhook(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordNotification counts a fan-out dispatch.
func (m *LedgerMetrics) RecordNotification(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome))
}
