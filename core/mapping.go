package core

import (
	"math"
	"sort"
	"time"
)

// MappingPoint is a single breakpoint of a Mapping: the function value V at
// simulation time T.
type MappingPoint struct {
	T time.Duration
	V float64
}

// Mapping is a real-valued function of simulation time, represented as a
// piecewise-linear curve over a sorted set of breakpoints. Between
// breakpoints the value is interpolated linearly; outside the domain
// spanned by the breakpoints the function is 0, so a signal's power curve
// contributes nothing before its start or after its end. A Mapping with no
// breakpoints is "empty" and evaluates to 0 everywhere, but is
// distinguishable from a constant-zero mapping through FindMax/FindMin,
// which return the infinite sentinels for it.
//
// Mappings are owned values: every combining operation (Add, Divide)
// returns a new Mapping and leaves its operands untouched.
type Mapping struct {
	points []MappingPoint
}

// NewMapping builds a Mapping from the given breakpoints. Points are sorted
// by time; among duplicates at the same instant the last one wins.
func NewMapping(points ...MappingPoint) *Mapping {
	m := &Mapping{points: make([]MappingPoint, 0, len(points))}
	m.points = append(m.points, points...)
	sort.SliceStable(m.points, func(i, j int) bool { return m.points[i].T < m.points[j].T })

	// Collapse duplicates in place, keeping the latest-inserted value.
	out := m.points[:0]
	for _, p := range m.points {
		if n := len(out); n > 0 && out[n-1].T == p.T {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	m.points = out
	return m
}

// ConstantMapping returns a Mapping holding value v over [from, to]. A
// degenerate window (from == to) yields a single-point mapping, which is
// what instantaneous channel-state queries use.
func ConstantMapping(from, to time.Duration, v float64) *Mapping {
	if from == to {
		return NewMapping(MappingPoint{T: from, V: v})
	}
	return NewMapping(MappingPoint{T: from, V: v}, MappingPoint{T: to, V: v})
}

// IsEmpty reports whether the mapping has no breakpoints at all.
func (m *Mapping) IsEmpty() bool {
	return m == nil || len(m.points) == 0
}

// Points returns a copy of the breakpoints in time order.
func (m *Mapping) Points() []MappingPoint {
	if m.IsEmpty() {
		return nil
	}
	out := make([]MappingPoint, len(m.points))
	copy(out, m.points)
	return out
}

// Clone returns an independent copy of the mapping.
func (m *Mapping) Clone() *Mapping {
	if m.IsEmpty() {
		return &Mapping{}
	}
	return &Mapping{points: m.Points()}
}

// ValueAt evaluates the mapping at time t: linear interpolation between
// breakpoints, the breakpoint value at a breakpoint, and 0 outside the
// domain. The empty mapping evaluates to 0 everywhere.
func (m *Mapping) ValueAt(t time.Duration) float64 {
	if m.IsEmpty() {
		return 0
	}
	pts := m.points
	if t < pts[0].T {
		return 0
	}
	if t == pts[0].T {
		return pts[0].V
	}
	last := len(pts) - 1
	if t > pts[last].T {
		return 0
	}
	if t == pts[last].T {
		return pts[last].V
	}
	// First breakpoint strictly after t.
	i := sort.Search(len(pts), func(i int) bool { return pts[i].T > t })
	lo, hi := pts[i-1], pts[i]
	frac := float64(t-lo.T) / float64(hi.T-lo.T)
	return lo.V + frac*(hi.V-lo.V)
}

// FindMax returns the maximum value over [from, to], including both borders.
// A reversed window is treated as [to, from]. The empty mapping yields -Inf;
// callers surfacing an intensity to the outside normalize that to 0 (see
// Decider.SampleMax).
func (m *Mapping) FindMax(from, to time.Duration) float64 {
	if m.IsEmpty() {
		return math.Inf(-1)
	}
	if from > to {
		from, to = to, from
	}
	max := math.Max(m.ValueAt(from), m.ValueAt(to))
	for _, p := range m.points {
		if p.T <= from {
			continue
		}
		if p.T >= to {
			break
		}
		if p.V > max {
			max = p.V
		}
	}
	return max
}

// FindMin returns the minimum value over [from, to], including both borders.
// A reversed window is treated as [to, from]. The empty mapping yields +Inf.
func (m *Mapping) FindMin(from, to time.Duration) float64 {
	if m.IsEmpty() {
		return math.Inf(1)
	}
	if from > to {
		from, to = to, from
	}
	min := math.Min(m.ValueAt(from), m.ValueAt(to))
	for _, p := range m.points {
		if p.T <= from {
			continue
		}
		if p.T >= to {
			break
		}
		if p.V < min {
			min = p.V
		}
	}
	return min
}

// Add returns a new Mapping that is the pointwise sum of m and other,
// sampled at the union of both breakpoint sets. Adding the empty mapping is
// the identity.
func (m *Mapping) Add(other *Mapping) *Mapping {
	if other.IsEmpty() {
		return m.Clone()
	}
	if m.IsEmpty() {
		return other.Clone()
	}
	return combine(m, other, func(a, b float64) float64 { return a + b })
}

// Divide returns a new Mapping that is the pointwise quotient m/other at the
// union of both breakpoint sets. Wherever other evaluates to exactly 0 the
// quotient is undefined and fallback is used instead. Dividing by the empty
// mapping applies the fallback everywhere, since the empty mapping evaluates
// to 0.
func (m *Mapping) Divide(other *Mapping, fallback float64) *Mapping {
	if m.IsEmpty() {
		return &Mapping{}
	}
	if other.IsEmpty() {
		out := m.Clone()
		for i := range out.points {
			out.points[i].V = fallback
		}
		return out
	}
	return combine(m, other, func(a, b float64) float64 {
		if b == 0 {
			return fallback
		}
		return a / b
	})
}

// combine merges the breakpoint sets of a and b and applies op to the two
// interpolated values at every union breakpoint. Both inputs are non-empty.
func combine(a, b *Mapping, op func(av, bv float64) float64) *Mapping {
	times := make([]time.Duration, 0, len(a.points)+len(b.points))
	for _, p := range a.points {
		times = append(times, p.T)
	}
	for _, p := range b.points {
		times = append(times, p.T)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	out := &Mapping{points: make([]MappingPoint, 0, len(times))}
	var prev time.Duration
	for i, t := range times {
		if i > 0 && t == prev {
			continue
		}
		prev = t
		out.points = append(out.points, MappingPoint{T: t, V: op(a.ValueAt(t), b.ValueAt(t))})
	}
	return out
}
