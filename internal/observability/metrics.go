package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PhyCollector bundles Prometheus metrics for the receiver core and
// satisfies core.DeciderMetrics so the decider can drive them directly.
type PhyCollector struct {
	gatherer prometheus.Gatherer

	FramesTotal        *prometheus.CounterVec
	SenseRequestsTotal *prometheus.CounterVec
	ChannelBusyGauge   prometheus.Gauge
	RSSIHistogram      prometheus.Histogram
}

// NewPhyCollector registers receiver metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPhyCollector(reg prometheus.Registerer) (*PhyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_frames_total",
		Help: "Transmission frame events handled by the decider, labeled by outcome.",
	}, []string{"outcome"})
	frames, err := registerCounterVec(reg, frames, "phy_frames_total")
	if err != nil {
		return nil, err
	}

	senses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_sense_requests_total",
		Help: "Answered channel-sense requests, labeled by sense mode and answer reason.",
	}, []string{"mode", "reason"})
	senses, err = registerCounterVec(reg, senses, "phy_sense_requests_total")
	if err != nil {
		return nil, err
	}

	busy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "phy_channel_busy",
		Help: "1 while the receiver is locked onto a transmission, 0 while idle.",
	}), "phy_channel_busy")
	if err != nil {
		return nil, err
	}

	rssi := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "phy_sense_rssi",
		Help:    "RSSI values reported with answered sense requests (linear power).",
		Buckets: prometheus.ExponentialBuckets(1e-12, 10, 10),
	})
	rssi, err = registerHistogram(reg, rssi, "phy_sense_rssi")
	if err != nil {
		return nil, err
	}

	return &PhyCollector{
		gatherer:           gatherer,
		FramesTotal:        frames,
		SenseRequestsTotal: senses,
		ChannelBusyGauge:   busy,
		RSSIHistogram:      rssi,
	}, nil
}

// FrameOutcome satisfies core.DeciderMetrics.
func (c *PhyCollector) FrameOutcome(outcome string) {
	if c == nil || c.FramesTotal == nil {
		return
	}
	c.FramesTotal.WithLabelValues(outcome).Inc()
}

// ChannelBusy satisfies core.DeciderMetrics.
func (c *PhyCollector) ChannelBusy(busy bool) {
	if c == nil || c.ChannelBusyGauge == nil {
		return
	}
	if busy {
		c.ChannelBusyGauge.Set(1)
	} else {
		c.ChannelBusyGauge.Set(0)
	}
}

// SenseAnswered satisfies core.DeciderMetrics.
func (c *PhyCollector) SenseAnswered(mode, reason string) {
	if c == nil || c.SenseRequestsTotal == nil {
		return
	}
	c.SenseRequestsTotal.WithLabelValues(mode, reason).Inc()
}

// ObserveRSSI satisfies core.DeciderMetrics.
func (c *PhyCollector) ObserveRSSI(rssi float64) {
	if c == nil || c.RSSIHistogram == nil {
		return
	}
	c.RSSIHistogram.Observe(rssi)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PhyCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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
