package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrTransmissionExists   = errors.New("transmission already exists")
	ErrTransmissionNotFound = errors.New("transmission not found")
	ErrTransmissionBadInput = errors.New("invalid transmission")
)

// Channel is the receiver-local view of the shared medium: it stores every
// transmission currently known to the propagation layer and answers overlap
// queries for the interference accumulator. An optional constant noise
// floor models thermal noise.
//
// The store is concurrency-safe via an internal RWMutex so it can be shared
// with control surfaces, although the decider itself is single-threaded.
type Channel struct {
	mu sync.RWMutex

	transmissions map[string]*Transmission
	noiseFloor    float64
	hasNoise      bool
}

// NewChannel creates an empty channel with no noise source.
func NewChannel() *Channel {
	return &Channel{transmissions: make(map[string]*Transmission)}
}

// SetNoiseFloor installs a constant thermal-noise floor. Calling it with
// hasNoise=false removes the noise source again.
func (c *Channel) SetNoiseFloor(level float64, hasNoise bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noiseFloor = level
	c.hasNoise = hasNoise
}

// Add registers a transmission. The id must be unique and the power curve
// present.
func (c *Channel) Add(t *Transmission) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: nil or empty id", ErrTransmissionBadInput)
	}
	if t.Power == nil {
		return fmt.Errorf("%w: %q has no power mapping", ErrTransmissionBadInput, t.ID)
	}
	if t.Duration < 0 {
		return fmt.Errorf("%w: %q has negative duration", ErrTransmissionBadInput, t.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.transmissions[t.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTransmissionExists, t.ID)
	}
	c.transmissions[t.ID] = t
	return nil
}

// Remove drops a transmission from the channel, e.g. once the propagation
// layer decides it is no longer relevant to this receiver.
func (c *Channel) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.transmissions[id]; !exists {
		return fmt.Errorf("%w: %q", ErrTransmissionNotFound, id)
	}
	delete(c.transmissions, id)
	return nil
}

// Get returns a transmission by id, or nil when unknown.
func (c *Channel) Get(id string) *Transmission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transmissions[id]
}

// Len returns the number of registered transmissions.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.transmissions)
}

// Overlapping returns every transmission intersecting the closed window
// [start, end], ordered by start time then id so results are deterministic.
func (c *Channel) Overlapping(start, end time.Duration) []*Transmission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Transmission
	for _, t := range c.transmissions {
		if t.Overlaps(start, end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ThermalNoise returns the noise-floor mapping over [start, end], or nil
// when no noise source is configured.
func (c *Channel) ThermalNoise(start, end time.Duration) *Mapping {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasNoise {
		return nil
	}
	return ConstantMapping(start, end, c.noiseFloor)
}
