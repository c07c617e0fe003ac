package sim

import (
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/phy-receiver-sim/core"
)

func TestLoadScenarioRunsEndToEnd(t *testing.T) {
	const scenario = `{
		"noise_floor": 1e-12,
		"transmissions": [
			{"id": "tx-a", "start_ms": 0, "duration_ms": 10, "power": {"constant": 2.0}},
			{"id": "tx-b", "start_ms": 3, "duration_ms": 4, "power": {"constant": 3.0}}
		],
		"sense_requests": [
			{"id": "csr-1", "at_ms": 0, "mode": "until_busy", "timeout_ms": 50}
		]
	}`

	r := NewRunner(core.NewChannel(), core.DeciderConfig{Sensitivity: 1}, nil, nil)
	loaded, err := LoadScenario(r, strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(loaded.TransmissionIDs) != 2 || len(loaded.SenseRequestIDs) != 1 {
		t.Fatalf("loaded = %+v, want 2 transmissions and 1 sense request", loaded)
	}
	if !loaded.HasNoise {
		t.Fatal("noise floor must be reported")
	}

	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := r.Deliveries(); len(got) != 1 || got[0].Frame.ID != "tx-a" {
		t.Fatalf("deliveries = %+v, want only tx-a", got)
	}
	if got := r.SenseAnswers(); len(got) != 1 || got[0].At != 0 {
		t.Fatalf("answers = %+v, want one at t=0 (tx-a acceptance)", got)
	}
}

func TestLoadScenarioBreakpointPower(t *testing.T) {
	const scenario = `{
		"transmissions": [
			{"id": "tx-ramp", "start_ms": 0, "duration_ms": 10,
			 "power": {"points": [{"t_ms": 0, "v": 1.0}, {"t_ms": 10, "v": 5.0}]}}
		],
		"sense_requests": []
	}`

	r := NewRunner(core.NewChannel(), core.DeciderConfig{Sensitivity: 1}, nil, nil)
	if _, err := LoadScenario(r, strings.NewReader(scenario)); err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	txs := r.ChannelInfo(0, 10*time.Millisecond)
	if len(txs) != 1 {
		t.Fatalf("transmissions = %d, want 1", len(txs))
	}
	if got := txs[0].Power.ValueAt(5 * time.Millisecond); got != 3 {
		t.Fatalf("ramp power at 5ms = %v, want 3", got)
	}
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"transmissions": [`},
		{"missing power", `{"transmissions": [{"id": "tx", "start_ms": 0, "duration_ms": 1, "power": {}}]}`},
		{"unknown mode", `{"sense_requests": [{"id": "csr", "at_ms": 0, "mode": "forever", "timeout_ms": 1}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRunner(core.NewChannel(), core.DeciderConfig{}, nil, nil)
			if _, err := LoadScenario(r, strings.NewReader(tc.body)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadScenarioNilRunner(t *testing.T) {
	if _, err := LoadScenario(nil, strings.NewReader(`{}`)); err == nil {
		t.Fatal("expected an error for a nil runner")
	}
}
