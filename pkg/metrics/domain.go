package metrics

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts outcomes of the marketplace's external-facing flows.
type DomainMetrics struct {
	payments      *prometheus.CounterVec
	invoices      *prometheus.CounterVec
	verifications *prometheus.CounterVec
	signedURLs    *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		payments:      counterVec("payment_completions_total", "Payment completion attempts by outcome.", "outcome"),
		invoices:      counterVec("invoice_generations_total", "Invoice generation attempts by outcome.", "outcome"),
		verifications: counterVec("verification_codes_total", "Verification code events by action and outcome.", "action", "outcome"),
		signedURLs:    counterVec("signed_url_resolutions_total", "Signed URL resolutions by source.", "source"),
		outbox:        counterVec("outbox_publish_total", "Outbox publish attempts by event type and outcome.", "event_type", "outcome"),
	}
	reg.MustRegister(m.payments, m.invoices, m.verifications, m.signedURLs, m.outbox)
	return m
}

func (m *DomainMetrics) PaymentOutcome(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) InvoiceOutcome(outcome string) {
	if m == nil || m.invoices == nil {
		return
	}
	m.invoices.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) VerificationOutcome(action, outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

// SignedURL records where a resolved URL came from: cache, signed or placeholder.
func (m *DomainMetrics) SignedURL(source string) {
	if m == nil || m.signedURLs == nil {
		return
	}
	m.signedURLs.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *DomainMetrics) OutboxPublish(eventType, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
