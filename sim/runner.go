// Package sim wires the receiver core to the event scheduler and the
// channel store, and drives complete scenarios.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/phy-receiver-sim/core"
	"github.com/signalsfoundry/phy-receiver-sim/internal/logging"
	"github.com/signalsfoundry/phy-receiver-sim/scheduler"
)

// Delivery records one transmission handed to the upper layer.
type Delivery struct {
	Frame  *core.Transmission
	Result core.DeciderResult
	At     time.Duration
}

// SenseAnswer records one answered channel-sense request.
type SenseAnswer struct {
	Request *core.SenseRequest
	At      time.Duration
}

// Runner hosts a single receiver: it owns the event queue, implements
// core.PhyEnvironment on top of the channel store, and collects everything
// the decider reports upward. Contract violations from the decider abort
// the run.
type Runner struct {
	log     logging.Logger
	sched   *scheduler.Scheduler
	channel *core.Channel
	decider *core.Decider

	deliveries []Delivery
	answers    []SenseAnswer
	failure    error
}

var _ core.PhyEnvironment = (*Runner)(nil)

// NewRunner builds a runner over the given channel. Logger and metrics may
// be nil.
func NewRunner(channel *core.Channel, cfg core.DeciderConfig, log logging.Logger, metrics core.DeciderMetrics) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	r := &Runner{
		log:     log,
		sched:   scheduler.New(),
		channel: channel,
	}
	r.decider = core.NewDecider(r, cfg, log, metrics)
	return r
}

// Decider exposes the hosted decider, mainly for direct state queries.
func (r *Runner) Decider() *core.Decider {
	return r.decider
}

// Deliveries returns the transmissions delivered upward so far.
func (r *Runner) Deliveries() []Delivery {
	return r.deliveries
}

// SenseAnswers returns the answered sense requests so far.
func (r *Runner) SenseAnswers() []SenseAnswer {
	return r.answers
}

// Scheduler keys are namespaced per event kind so a transmission and a
// sense request sharing a correlation id cannot replace each other's
// pending wakes.
func frameKey(id string) string { return "tx/" + id }
func senseKey(id string) string { return "csr/" + id }

// InjectFrame registers a transmission on the channel and schedules its
// first frame event at the transmission's start time.
func (r *Runner) InjectFrame(t *core.Transmission) error {
	if err := r.channel.Add(t); err != nil {
		return err
	}
	return r.sched.Schedule(frameKey(t.ID), t.Start, func(time.Duration) {
		r.dispatchFrame(t)
	})
}

// InjectSenseRequest schedules the first delivery of a sense request at the
// given simulated time.
func (r *Runner) InjectSenseRequest(at time.Duration, req *core.SenseRequest) error {
	if req == nil {
		return core.ErrNilSenseRequest
	}
	return r.sched.Schedule(senseKey(req.ID), at, func(time.Duration) {
		r.dispatchSense(req)
	})
}

// Run drains the event queue. It stops early and returns the error when
// the decider reports a contract violation.
func (r *Runner) Run() error {
	for r.failure == nil && r.sched.Step() {
	}
	return r.failure
}

func (r *Runner) dispatchFrame(t *core.Transmission) {
	next, err := r.decider.ProcessFrame(t)
	r.reschedule(frameKey(t.ID), t.ID, next, err, func(time.Duration) {
		r.dispatchFrame(t)
	})
}

func (r *Runner) dispatchSense(req *core.SenseRequest) {
	next, err := r.decider.HandleSenseRequest(req)
	r.reschedule(senseKey(req.ID), req.ID, next, err, func(time.Duration) {
		r.dispatchSense(req)
	})
}

// reschedule queues the handler's requested wake-up, or records a fatal
// failure. NotAgain (and any negative wake time) means the correlation id
// is done until a new external event arrives.
func (r *Runner) reschedule(key, id string, next time.Duration, err error, fn scheduler.Callback) {
	ctx := logging.ContextWithCorrelationID(context.Background(), id)
	if err != nil {
		r.fail(ctx, fmt.Errorf("decider contract violation for %q: %w", id, err))
		return
	}
	if next < 0 {
		return
	}
	if serr := r.sched.Schedule(key, next, fn); serr != nil {
		r.fail(ctx, fmt.Errorf("schedule wake for %q: %w", id, serr))
	}
}

func (r *Runner) fail(ctx context.Context, err error) {
	if r.failure == nil {
		r.failure = err
	}
	logging.WithCorrelationLogger(ctx, r.log).Error(ctx, "aborting run", logging.String("error", err.Error()))
}

// ---- core.PhyEnvironment ----

// SendUp records a successfully decoded transmission.
func (r *Runner) SendUp(t *core.Transmission, result core.DeciderResult) {
	r.deliveries = append(r.deliveries, Delivery{Frame: t, Result: result, At: r.sched.Now()})
	r.log.Info(context.Background(), "transmission delivered",
		logging.String("transmission_id", t.ID),
		logging.Duration("at", r.sched.Now()))
}

// SendControlMsg records an answered sense request.
func (r *Runner) SendControlMsg(req *core.SenseRequest) {
	r.answers = append(r.answers, SenseAnswer{Request: req, At: r.sched.Now()})
	r.log.Info(context.Background(), "sense request answered",
		logging.String("request_id", req.ID),
		logging.String("mode", req.Mode.String()),
		logging.Duration("at", r.sched.Now()),
		logging.Float64("rssi", req.Result.RSSI),
		logging.Any("idle", req.Result.Idle))
}

// ChannelInfo returns the transmissions overlapping [start, end].
func (r *Runner) ChannelInfo(start, end time.Duration) []*core.Transmission {
	return r.channel.Overlapping(start, end)
}

// ThermalNoise returns the noise floor over [start, end], or nil.
func (r *Runner) ThermalNoise(start, end time.Duration) *core.Mapping {
	return r.channel.ThermalNoise(start, end)
}

// Now returns the current simulated time.
func (r *Runner) Now() time.Duration {
	return r.sched.Now()
}

// CancelScheduledWake cancels the pending wake for a correlation id. The
// decider only ever cancels sense-request timeouts, so the id is resolved
// in the sense-request namespace.
func (r *Runner) CancelScheduledWake(correlationID string) {
	r.sched.Cancel(senseKey(correlationID))
}
