package observability

import (
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCollector exposes navigation session metrics. A nil collector is
// valid and records nothing.
type SessionCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal           prometheus.Counter
	TickDuration         prometheus.Histogram
	CongestionIndex      prometheus.Gauge
	RecoveredFraction    prometheus.Gauge
	ReproductionNumber   prometheus.Gauge
	TrafficIndex         prometheus.Gauge
	ComplianceRate       prometheus.Gauge
	DeviationsTotal      prometheus.Counter
	FallbackSamplesTotal prometheus.Counter
	CriticalResetsTotal  prometheus.Counter
	RecalculationsTotal  *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
}

// NewSessionCollector registers session metrics against reg, reusing
// collectors that are already registered under the same name.
func NewSessionCollector(reg prometheus.Registerer) (*SessionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SessionCollector{gatherer: gatherer}
	var err error

	if c.TicksTotal, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navigator_ticks_total",
		Help: "Number of completed scheduler ticks.",
	}), "navigator_ticks_total"); err != nil {
		return nil, err
	}

	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_tick_duration_seconds",
		Help:    "Wall time of one scheduler tick including collaborator calls.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}), "navigator_tick_duration_seconds"); err != nil {
		return nil, err
	}

	gauges := []struct {
		target *prometheus.Gauge
		name   string
		help   string
	}{
		{&c.CongestionIndex, "navigator_congestion_index", "Current congestion compartment I."},
		{&c.RecoveredFraction, "navigator_congestion_recovered", "Current recovered compartment R."},
		{&c.ReproductionNumber, "navigator_congestion_r0", "Current reproduction number beta/gamma; +Inf when gamma is zero."},
		{&c.TrafficIndex, "navigator_traffic_index", "Traffic index sampled on the last tick."},
		{&c.ComplianceRate, "navigator_compliance_rate", "Route compliance rate in [0,1]."},
	}
	for _, g := range gauges {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help})
		registered, err := registerGauge(reg, gauge, g.name)
		if err != nil {
			return nil, err
		}
		*g.target = registered
	}

	counters := []struct {
		target *prometheus.Counter
		name   string
		help   string
	}{
		{&c.DeviationsTotal, "navigator_deviations_total", "Route deviations detected."},
		{&c.FallbackSamplesTotal, "navigator_fallback_samples_total", "Ticks that used a synthetic traffic index."},
		{&c.CriticalResetsTotal, "navigator_critical_resets_total", "Congestion resets after crossing the critical threshold."},
	}
	for _, ct := range counters {
		counter, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: ct.name, Help: ct.help}), ct.name)
		if err != nil {
			return nil, err
		}
		*ct.target = counter
	}

	if c.RecalculationsTotal, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_route_recalculations_total",
		Help: "Route recalculations by trigger and outcome.",
	}, []string{"trigger", "outcome"}), "navigator_route_recalculations_total"); err != nil {
		return nil, err
	}

	if c.CollaboratorFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_collaborator_failures_total",
		Help: "Failed calls to external collaborators.",
	}, []string{"collaborator"}), "navigator_collaborator_failures_total"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SessionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick records one finished tick
func (c *SessionCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TicksTotal.Inc()
	c.TickDuration.Observe(d.Seconds())
}

// SetCongestion publishes the model state
func (c *SessionCollector) SetCongestion(i, r, r0 float64) {
	if c == nil || c.CongestionIndex == nil {
		return
	}
	c.CongestionIndex.Set(i)
	c.RecoveredFraction.Set(r)
	if math.IsNaN(r0) {
		r0 = 0
	}
	c.ReproductionNumber.Set(r0)
}

// SetTraffic publishes the sampled traffic index
func (c *SessionCollector) SetTraffic(index float64, fallback bool) {
	if c == nil || c.TrafficIndex == nil {
		return
	}
	c.TrafficIndex.Set(index)
	if fallback {
		c.FallbackSamplesTotal.Inc()
	}
}

// SetComplianceRate publishes the compliance rate
func (c *SessionCollector) SetComplianceRate(rate float64) {
	if c == nil || c.ComplianceRate == nil {
		return
	}
	c.ComplianceRate.Set(rate)
}

// IncDeviations counts a detected deviation
func (c *SessionCollector) IncDeviations() {
	if c == nil || c.DeviationsTotal == nil {
		return
	}
	c.DeviationsTotal.Inc()
}

// IncCriticalResets counts a congestion reset
func (c *SessionCollector) IncCriticalResets() {
	if c == nil || c.CriticalResetsTotal == nil {
		return
	}
	c.CriticalResetsTotal.Inc()
}

// IncRecalculation counts a recalculation attempt
func (c *SessionCollector) IncRecalculation(trigger, outcome string) {
	if c == nil || c.RecalculationsTotal == nil {
		return
	}
	c.RecalculationsTotal.WithLabelValues(trigger, outcome).Inc()
}

// IncCollaboratorFailure counts a failed collaborator call
func (c *SessionCollector) IncCollaboratorFailure(collaborator string) {
	if c == nil || c.CollaboratorFailures == nil {
		return
	}
	c.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
