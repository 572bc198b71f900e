package metrics

import "github.com/prometheus/client_golang/prometheus"

// PayoutMetrics tracks business-level outcomes of payout cycles.
type PayoutMetrics struct {
	ordersPaid      prometheus.Counter
	vendorsPaid     prometheus.Counter
	centsDisbursed  prometheus.Counter
	linesRejected   prometheus.Counter
	ordersSkipped   prometheus.Counter
	providerOutages prometheus.Counter
}

// NewPayoutMetrics registers the payout collectors on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	ordersPaid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_orders_paid_total",
		Help: "Orders marked paid by the payout engine.",
	})
	vendorsPaid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_vendors_paid_total",
		Help: "Vendor disbursement lines accepted by the provider.",
	})
	centsDisbursed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_cents_disbursed_total",
		Help: "Minor currency units disbursed to vendors.",
	})
	linesRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_lines_rejected_total",
		Help: "Vendor disbursement lines rejected by the provider.",
	})
	ordersSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_orders_skipped_total",
		Help: "Orders excluded from a run because an invariant check failed.",
	})
	providerOutages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_provider_unavailable_total",
		Help: "Runs that ended because the disbursement provider was unreachable.",
	})
	reg.MustRegister(ordersPaid, vendorsPaid, centsDisbursed, linesRejected, ordersSkipped, providerOutages)
	return &PayoutMetrics{
		ordersPaid:      ordersPaid,
		vendorsPaid:     vendorsPaid,
		centsDisbursed:  centsDisbursed,
		linesRejected:   linesRejected,
		ordersSkipped:   ordersSkipped,
		providerOutages: providerOutages,
	}
}

// AddOrdersPaid records how many orders a run finalized.
func (p *PayoutMetrics) AddOrdersPaid(count int) {
	if p == nil || p.ordersPaid == nil || count <= 0 {
		return
	}
	p.ordersPaid.Add(float64(count))
}

// AddVendorsPaid records how many vendor lines a run settled.
func (p *PayoutMetrics) AddVendorsPaid(count int) {
	if p == nil || p.vendorsPaid == nil || count <= 0 {
		return
	}
	p.vendorsPaid.Add(float64(count))
}

// AddCentsDisbursed records the total amount moved in a run.
func (p *PayoutMetrics) AddCentsDisbursed(cents int64) {
	if p == nil || p.centsDisbursed == nil || cents <= 0 {
		return
	}
	p.centsDisbursed.Add(float64(cents))
}

// AddLinesRejected records provider-rejected vendor lines.
func (p *PayoutMetrics) AddLinesRejected(count int) {
	if p == nil || p.linesRejected == nil || count <= 0 {
		return
	}
	p.linesRejected.Add(float64(count))
}

// AddOrdersSkipped records orders excluded by invariant checks.
func (p *PayoutMetrics) AddOrdersSkipped(count int) {
	if p == nil || p.ordersSkipped == nil || count <= 0 {
		return
	}
	p.ordersSkipped.Add(float64(count))
}

// IncProviderUnavailable records a run abandoned due to provider outage.
func (p *PayoutMetrics) IncProviderUnavailable() {
	if p == nil || p.providerOutages == nil {
		return
	}
	p.providerOutages.Inc()
}
