package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestNewPhyCollectorRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPhyCollector(reg)
	if err != nil {
		t.Fatalf("NewPhyCollector: %v", err)
	}

	c.FrameOutcome("accepted")
	c.SenseAnswered("until_busy", "timeout")
	c.ChannelBusy(true)
	c.ObserveRSSI(1e-10)

	for _, name := range []string{
		"phy_frames_total",
		"phy_sense_requests_total",
		"phy_channel_busy",
		"phy_sense_rssi",
	} {
		if gatherMetric(t, reg, name) == nil {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}

func TestFrameOutcomeCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPhyCollector(reg)
	if err != nil {
		t.Fatalf("NewPhyCollector: %v", err)
	}

	c.FrameOutcome("accepted")
	c.FrameOutcome("accepted")
	c.FrameOutcome("rejected_weak")

	mf := gatherMetric(t, reg, "phy_frames_total")
	if mf == nil {
		t.Fatal("phy_frames_total not gathered")
	}

	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" {
				counts[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["accepted"] != 2 {
		t.Fatalf("accepted = %v, want 2", counts["accepted"])
	}
	if counts["rejected_weak"] != 1 {
		t.Fatalf("rejected_weak = %v, want 1", counts["rejected_weak"])
	}
}

func TestChannelBusyGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPhyCollector(reg)
	if err != nil {
		t.Fatalf("NewPhyCollector: %v", err)
	}

	c.ChannelBusy(true)
	mf := gatherMetric(t, reg, "phy_channel_busy")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("busy gauge = %v, want 1", got)
	}

	c.ChannelBusy(false)
	mf = gatherMetric(t, reg, "phy_channel_busy")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("busy gauge = %v, want 0", got)
	}
}

func TestNewPhyCollectorIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPhyCollector(reg); err != nil {
		t.Fatalf("first NewPhyCollector: %v", err)
	}
	c, err := NewPhyCollector(reg)
	if err != nil {
		t.Fatalf("second NewPhyCollector: %v", err)
	}
	if c.FramesTotal == nil || c.SenseRequestsTotal == nil || c.ChannelBusyGauge == nil || c.RSSIHistogram == nil {
		t.Fatal("second collector must reuse the registered collectors")
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *PhyCollector
	c.FrameOutcome("accepted")
	c.ChannelBusy(true)
	c.SenseAnswered("until_idle", "immediate")
	c.ObserveRSSI(1)
}
