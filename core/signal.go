package core

import (
	"fmt"
	"time"
)

// NotAgain is the "no further events wanted" sentinel returned by the
// decider entry points. A handler returning NotAgain will not be re-invoked
// for that correlation id unless a new external event arrives.
const NotAgain time.Duration = -1

// Transmission is a discrete wireless signal event as seen by one receiver:
// a correlation id, a start time, a duration, and the received-power curve
// over the signal's lifetime. Transmissions are owned by the channel
// subsystem and treated as immutable by the decider.
type Transmission struct {
	ID       string
	Start    time.Duration
	Duration time.Duration

	// Power is the received power over time at this receiver, produced by
	// the propagation model. Values are linear power in the scenario's
	// configured scale; the decider only compares and sums them.
	Power *Mapping
}

// End returns the declared end time of the transmission.
func (t *Transmission) End() time.Duration {
	return t.Start + t.Duration
}

// Overlaps reports whether the transmission intersects the closed window
// [from, to].
func (t *Transmission) Overlaps(from, to time.Duration) bool {
	return t.Start <= to && t.End() >= from
}

// SenseMode selects the terminal condition of a channel-sense request.
type SenseMode int

const (
	// SenseUntilIdle answers the request as soon as the channel is idle.
	SenseUntilIdle SenseMode = iota
	// SenseUntilBusy answers the request as soon as the channel is busy.
	SenseUntilBusy
)

func (m SenseMode) String() string {
	switch m {
	case SenseUntilIdle:
		return "until_idle"
	case SenseUntilBusy:
		return "until_busy"
	default:
		return fmt.Sprintf("SenseMode(%d)", int(m))
	}
}

// ChannelState is the answer to a channel-occupancy query: whether the
// receiver is currently idle, and the peak aggregate power (RSSI) observed
// over the queried window.
type ChannelState struct {
	Idle bool
	RSSI float64
}

// SenseRequest asks "when does the channel next reach idle/busy, or time
// out, and how intense was it meanwhile". At most one request may be
// outstanding per receiver. The Result field is populated when the request
// is answered.
type SenseRequest struct {
	ID      string
	Mode    SenseMode
	Timeout time.Duration

	Result ChannelState
}

// DeciderResult is attached to a transmission when it is handed to the
// upper layer.
type DeciderResult struct {
	// Correct reports whether the frame was received without error.
	Correct bool
	// MinHeaderSNR is the lowest SNR observed over the header window. It is
	// only meaningful when header checking is enabled (NaN-free: zero when
	// unused).
	MinHeaderSNR float64
}

// PhyEnvironment is everything the decider needs from its host layer: the
// upward data path, the control path back to the requester, channel and
// noise visibility, simulated time, and wake-up cancellation with the
// event scheduler.
type PhyEnvironment interface {
	// SendUp delivers a successfully decoded transmission upward. Called
	// exactly once per accepted transmission, at its declared end.
	SendUp(t *Transmission, result DeciderResult)

	// SendControlMsg delivers an answered sense request to its requester.
	// Called exactly once per request.
	SendControlMsg(req *SenseRequest)

	// ChannelInfo returns all transmissions visible to this receiver that
	// overlap the window [start, end].
	ChannelInfo(start, end time.Duration) []*Transmission

	// ThermalNoise returns the ambient noise floor over [start, end], or
	// nil when there is no noise source.
	ThermalNoise(start, end time.Duration) *Mapping

	// Now returns the current simulated time.
	Now() time.Duration

	// CancelScheduledWake cancels a previously requested future
	// re-invocation for the given correlation id.
	CancelScheduledWake(correlationID string)
}
