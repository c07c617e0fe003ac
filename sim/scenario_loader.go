package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/phy-receiver-sim/core"
)

// Scenario is a small summary of what was loaded from JSON. It's mainly
// useful for logging from main().
type Scenario struct {
	TransmissionIDs []string
	SenseRequestIDs []string
	HasNoise        bool
}

// internal JSON shapes – kept unexported so we're free to evolve them.
type scenarioJSON struct {
	// NoiseFloor installs a constant thermal-noise source when present.
	NoiseFloor    *float64           `json:"noise_floor,omitempty"`
	Transmissions []transmissionJSON `json:"transmissions"`
	SenseRequests []senseRequestJSON `json:"sense_requests"`
}

type transmissionJSON struct {
	ID         string    `json:"id"`
	StartMs    float64   `json:"start_ms"`
	DurationMs float64   `json:"duration_ms"`
	Power      powerJSON `json:"power"`
}

// powerJSON is either a constant level over the transmission's window or an
// explicit breakpoint curve with absolute times.
type powerJSON struct {
	Constant *float64         `json:"constant,omitempty"`
	Points   []powerPointJSON `json:"points,omitempty"`
}

type powerPointJSON struct {
	TMs float64 `json:"t_ms"`
	V   float64 `json:"v"`
}

type senseRequestJSON struct {
	ID        string  `json:"id"`
	AtMs      float64 `json:"at_ms"`
	Mode      string  `json:"mode"` // "until_idle" | "until_busy"
	TimeoutMs float64 `json:"timeout_ms"`
}

// LoadScenario reads a JSON scenario from r, installs the noise floor and
// transmissions on the runner's channel, schedules all initial events, and
// returns a summary of what was loaded.
func LoadScenario(runner *Runner, r io.Reader) (*Scenario, error) {
	if runner == nil {
		return nil, fmt.Errorf("LoadScenario: runner is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	result := &Scenario{
		TransmissionIDs: make([]string, 0, len(payload.Transmissions)),
		SenseRequestIDs: make([]string, 0, len(payload.SenseRequests)),
	}

	if payload.NoiseFloor != nil {
		runner.channel.SetNoiseFloor(*payload.NoiseFloor, true)
		result.HasNoise = true
	}

	for _, tj := range payload.Transmissions {
		t, err := tj.toTransmission()
		if err != nil {
			return nil, err
		}
		if err := runner.InjectFrame(t); err != nil {
			return nil, fmt.Errorf("LoadScenario: inject transmission %q: %w", t.ID, err)
		}
		result.TransmissionIDs = append(result.TransmissionIDs, t.ID)
	}

	for _, sj := range payload.SenseRequests {
		mode, err := parseSenseMode(sj.Mode)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: sense request %q: %w", sj.ID, err)
		}
		req := &core.SenseRequest{
			ID:      sj.ID,
			Mode:    mode,
			Timeout: msToDuration(sj.TimeoutMs),
		}
		if err := runner.InjectSenseRequest(msToDuration(sj.AtMs), req); err != nil {
			return nil, fmt.Errorf("LoadScenario: inject sense request %q: %w", sj.ID, err)
		}
		result.SenseRequestIDs = append(result.SenseRequestIDs, sj.ID)
	}

	return result, nil
}

func (tj transmissionJSON) toTransmission() (*core.Transmission, error) {
	start := msToDuration(tj.StartMs)
	duration := msToDuration(tj.DurationMs)

	var power *core.Mapping
	switch {
	case tj.Power.Constant != nil:
		power = core.ConstantMapping(start, start+duration, *tj.Power.Constant)
	case len(tj.Power.Points) > 0:
		points := make([]core.MappingPoint, 0, len(tj.Power.Points))
		for _, p := range tj.Power.Points {
			points = append(points, core.MappingPoint{T: msToDuration(p.TMs), V: p.V})
		}
		power = core.NewMapping(points...)
	default:
		return nil, fmt.Errorf("LoadScenario: transmission %q has no power curve", tj.ID)
	}

	return &core.Transmission{
		ID:       tj.ID,
		Start:    start,
		Duration: duration,
		Power:    power,
	}, nil
}

func parseSenseMode(s string) (core.SenseMode, error) {
	switch s {
	case "until_idle":
		return core.SenseUntilIdle, nil
	case "until_busy":
		return core.SenseUntilBusy, nil
	default:
		return 0, fmt.Errorf("unknown sense mode %q", s)
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
