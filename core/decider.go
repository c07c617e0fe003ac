package core

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/signalsfoundry/phy-receiver-sim/internal/logging"
)

// Contract-violation errors. These indicate the host broke the decider's
// single-outstanding-item contract and are fatal to the run; they are never
// returned for expected rejections.
var (
	ErrNilTransmission     = errors.New("nil transmission")
	ErrNilSenseRequest     = errors.New("nil sense request")
	ErrSenseRequestPending = errors.New("sense request already pending")
)

// SignalState tracks where a transmission is in its reception lifecycle.
type SignalState int

const (
	// StateNew is the implicit state of every transmission the decider has
	// not started receiving.
	StateNew SignalState = iota
	// StateExpectHeader means the transmission was accepted and the decider
	// is waiting for the header boundary to verify SNR.
	StateExpectHeader
	// StateExpectEnd means the transmission was accepted and the decider is
	// waiting for its declared end.
	StateExpectEnd
)

// DefaultSNRFallback is the quotient used when the interference mapping is
// exactly 0 somewhere inside a transmission's window. An interference-free
// instant has effectively unbounded SNR, so the largest finite value keeps
// min-queries well ordered without introducing infinities.
const DefaultSNRFallback = math.MaxFloat64

// Frame outcome labels reported to the metrics recorder.
const (
	OutcomeAccepted       = "accepted"
	OutcomeRejectedBusy   = "rejected_busy"
	OutcomeRejectedWeak   = "rejected_weak"
	OutcomeRejectedHeader = "rejected_header"
	OutcomeDelivered      = "delivered"
)

// Sense answer reasons reported to the metrics recorder.
const (
	SenseReasonImmediate = "immediate"
	SenseReasonOccupancy = "occupancy"
	SenseReasonTimeout   = "timeout"
)

// DeciderMetrics receives decider events for export. A nil recorder is
// valid and drops everything.
type DeciderMetrics interface {
	FrameOutcome(outcome string)
	ChannelBusy(busy bool)
	SenseAnswered(mode, reason string)
	ObserveRSSI(rssi float64)
}

// DeciderConfig carries the receiver parameters of a Decider.
type DeciderConfig struct {
	// Sensitivity is the minimum received power at which a transmission can
	// begin being decoded. Compared directly against the power curve value
	// at the transmission's start time.
	Sensitivity float64

	// HeaderLength enables the header SNR checkpoint when positive: after
	// accepting a frame the decider re-evaluates it at start+HeaderLength
	// and drops it if the minimum SNR over the header window falls below
	// MinHeaderSNR. Zero disables the checkpoint.
	HeaderLength time.Duration

	// MinHeaderSNR is the SNR threshold applied at the header checkpoint.
	MinHeaderSNR float64

	// SNRFallback substitutes the quotient wherever the interference
	// mapping is exactly 0. Zero selects DefaultSNRFallback.
	SNRFallback float64
}

func (c DeciderConfig) snrFallback() float64 {
	if c.SNRFallback == 0 {
		return DefaultSNRFallback
	}
	return c.SNRFallback
}

// Decider is the per-receiver reception core. It decides for every incoming
// transmission whether it can be demodulated, tracks the busy/idle state of
// the channel, and answers channel-sense requests.
//
// All entry points are invoked one at a time by an external event scheduler
// at discrete simulated time points; "suspension" means returning a future
// wake time and being re-invoked later with the same correlation id.
type Decider struct {
	env     PhyEnvironment
	cfg     DeciderConfig
	log     logging.Logger
	metrics DeciderMetrics

	// Current reception. frame == nil means no reception in progress; the
	// state field is only meaningful while frame is set.
	currentFrame *Transmission
	currentState SignalState
	headerSNR    float64

	// Outstanding sense request, at most one. arrival is the simulated time
	// the request was first seen.
	currentSense *SenseRequest
	senseArrival time.Duration

	channelIdle bool
}

// NewDecider constructs a Decider over the given environment. Logger and
// metrics may be nil.
func NewDecider(env PhyEnvironment, cfg DeciderConfig, log logging.Logger, metrics DeciderMetrics) *Decider {
	if log == nil {
		log = logging.Noop()
	}
	return &Decider{
		env:         env,
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		channelIdle: true,
	}
}

// signalState returns the reception state of a transmission. Anything other
// than the single currently-tracked transmission is NEW.
func (d *Decider) signalState(frame *Transmission) SignalState {
	if d.currentFrame != nil && d.currentFrame.ID == frame.ID {
		return d.currentState
	}
	return StateNew
}

// ProcessFrame is the frame-event entry point. It dispatches on the
// transmission's reception state and returns the next simulated time the
// decider wants to be re-invoked for this transmission, or NotAgain.
//
// A nil frame is a contract violation and returns an error; expected
// rejections return (NotAgain, nil).
func (d *Decider) ProcessFrame(frame *Transmission) (time.Duration, error) {
	if frame == nil {
		return NotAgain, ErrNilTransmission
	}

	switch d.signalState(frame) {
	case StateNew:
		return d.processNewSignal(frame), nil
	case StateExpectHeader:
		return d.processSignalHeader(frame), nil
	case StateExpectEnd:
		return d.processSignalEnd(frame), nil
	default:
		d.log.Warn(context.Background(), "transmission in unknown state, rejecting",
			logging.String("transmission_id", frame.ID))
		return NotAgain, nil
	}
}

func (d *Decider) processNewSignal(frame *Transmission) time.Duration {
	ctx := context.Background()

	if d.currentFrame != nil {
		// The receiver can demodulate only one signal at a time.
		d.log.Debug(ctx, "already receiving another transmission, rejecting",
			logging.String("transmission_id", frame.ID),
			logging.String("current_id", d.currentFrame.ID))
		d.recordOutcome(OutcomeRejectedBusy)
		return NotAgain
	}

	recvPower := frame.Power.ValueAt(frame.Start)
	if recvPower < d.cfg.Sensitivity {
		d.log.Debug(ctx, "signal below sensitivity, rejecting",
			logging.String("transmission_id", frame.ID),
			logging.Float64("recv_power", recvPower),
			logging.Float64("sensitivity", d.cfg.Sensitivity))
		d.recordOutcome(OutcomeRejectedWeak)
		return NotAgain
	}

	d.currentFrame = frame
	d.headerSNR = 0
	d.recordOutcome(OutcomeAccepted)
	d.setChannelIdle(false)

	if d.cfg.HeaderLength > 0 && d.cfg.HeaderLength < frame.Duration {
		d.currentState = StateExpectHeader
		return frame.Start + d.cfg.HeaderLength
	}
	d.currentState = StateExpectEnd
	return frame.End()
}

// processSignalHeader re-evaluates the current transmission at its header
// boundary: if the minimum SNR over the header window is below threshold the
// frame cannot be decoded and is dropped, freeing the channel.
func (d *Decider) processSignalHeader(frame *Transmission) time.Duration {
	snrMap := d.SNRMapping(frame)
	minSNR := snrMap.FindMin(frame.Start, frame.Start+d.cfg.HeaderLength)

	if minSNR < d.cfg.MinHeaderSNR {
		d.log.Debug(context.Background(), "header SNR below threshold, dropping",
			logging.String("transmission_id", frame.ID),
			logging.Float64("min_snr", minSNR),
			logging.Float64("threshold", d.cfg.MinHeaderSNR))
		d.currentFrame = nil
		d.recordOutcome(OutcomeRejectedHeader)
		d.setChannelIdle(true)
		return NotAgain
	}

	d.headerSNR = minSNR
	d.currentState = StateExpectEnd
	return frame.End()
}

// processSignalEnd completes the reception: the transmission is handed to
// the upper layer with a positive result and the channel becomes idle.
func (d *Decider) processSignalEnd(frame *Transmission) time.Duration {
	d.log.Debug(context.Background(), "transmission received, handing to upper layer",
		logging.String("transmission_id", frame.ID))

	d.env.SendUp(frame, DeciderResult{Correct: true, MinHeaderSNR: d.headerSNR})
	d.currentFrame = nil
	d.recordOutcome(OutcomeDelivered)
	d.setChannelIdle(true)
	return NotAgain
}

// HandleSenseRequest is the sense-query entry point. The first delivery of
// a request records it and either answers immediately or schedules a
// timeout; the only legal re-delivery is that same request's timeout
// firing, which answers it unconditionally.
func (d *Decider) HandleSenseRequest(req *SenseRequest) (time.Duration, error) {
	if req == nil {
		return NotAgain, ErrNilSenseRequest
	}

	if d.currentSense == nil {
		return d.handleNewSenseRequest(req), nil
	}

	if d.currentSense.ID != req.ID {
		// A new request must never arrive while one is pending.
		return NotAgain, ErrSenseRequestPending
	}

	d.answerSense(SenseReasonTimeout)
	return NotAgain, nil
}

func (d *Decider) handleNewSenseRequest(req *SenseRequest) time.Duration {
	now := d.env.Now()
	d.currentSense = req
	d.senseArrival = now

	if d.canAnswerSense() {
		d.answerSense(SenseReasonImmediate)
		return NotAgain
	}
	return now + req.Timeout
}

// canAnswerSense reports whether the outstanding request has reached its
// terminal condition: its requested channel state, or its timeout instant.
// Once true for a given request it stays true until the request is answered.
func (d *Decider) canAnswerSense() bool {
	if d.currentSense == nil {
		return false
	}

	modeFulfilled := false
	switch d.currentSense.Mode {
	case SenseUntilIdle:
		modeFulfilled = d.channelIdle
	case SenseUntilBusy:
		modeFulfilled = !d.channelIdle
	}

	return modeFulfilled || d.env.Now() >= d.senseArrival+d.currentSense.Timeout
}

// answerSense samples channel occupancy and the peak power since the
// request arrived, delivers the result on the control path, and clears the
// outstanding-request record.
func (d *Decider) answerSense(reason string) {
	req := d.currentSense
	rssi := d.SampleMax(d.senseArrival, d.env.Now())

	req.Result = ChannelState{Idle: d.channelIdle, RSSI: rssi}
	d.env.SendControlMsg(req)
	d.currentSense = nil

	if d.metrics != nil {
		d.metrics.SenseAnswered(req.Mode.String(), reason)
		d.metrics.ObserveRSSI(rssi)
	}
}

// setChannelIdle flips the occupancy flag and, as one atomic step with the
// flip, re-checks the outstanding sense request. An early answer cancels
// the request's scheduled timeout so it is never answered twice.
func (d *Decider) setChannelIdle(idle bool) {
	d.channelIdle = idle
	if d.metrics != nil {
		d.metrics.ChannelBusy(!idle)
	}

	if d.canAnswerSense() {
		d.env.CancelScheduledWake(d.currentSense.ID)
		d.answerSense(SenseReasonOccupancy)
	}
}

// ChannelState reports the current occupancy flag together with the
// instantaneous aggregate power. Pure query, callable at any time.
func (d *Decider) ChannelState() ChannelState {
	now := d.env.Now()
	return ChannelState{Idle: d.channelIdle, RSSI: d.SampleMax(now, now)}
}

// ChannelIdle reports the occupancy flag alone.
func (d *Decider) ChannelIdle() bool {
	return d.channelIdle
}

// RSSIMapping builds the total received-power function over [start, end]:
// thermal noise plus the power curve of every overlapping transmission
// except exclude (correlation-id comparison; nil excludes nothing). The
// result is a fresh Mapping owned by the caller. With no noise source and
// no contributing transmission it is the empty mapping, which FindMax
// reports as -Inf so callers can tell "nothing there" from "zero power".
func (d *Decider) RSSIMapping(start, end time.Duration, exclude *Transmission) *Mapping {
	result := &Mapping{}

	if noise := d.env.ThermalNoise(start, end); noise != nil {
		result = result.Add(noise)
	}

	for _, t := range d.env.ChannelInfo(start, end) {
		if exclude != nil && t.ID == exclude.ID {
			continue
		}
		result = result.Add(t.Power)
	}
	return result
}

// SampleMax returns the peak total power over [start, end], normalized so
// that an empty aggregate yields 0 rather than the negative sentinel.
func (d *Decider) SampleMax(start, end time.Duration) float64 {
	rssi := d.RSSIMapping(start, end, nil).FindMax(start, end)
	if rssi < 0 {
		rssi = 0
	}
	return rssi
}

// SNRMapping builds the signal-to-noise-and-interference function of a
// transmission over its own window: the transmission's received power
// divided by everything else on the channel. Wherever the interference is
// exactly 0 the configured fallback applies (DefaultSNRFallback unless
// overridden).
func (d *Decider) SNRMapping(frame *Transmission) *Mapping {
	interference := d.RSSIMapping(frame.Start, frame.End(), frame)
	return frame.Power.Divide(interference, d.cfg.snrFallback())
}

func (d *Decider) recordOutcome(outcome string) {
	if d.metrics != nil {
		d.metrics.FrameOutcome(outcome)
	}
}
