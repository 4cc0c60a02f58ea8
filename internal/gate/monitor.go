package gate

import (
	"time"

	"github.com/roach88/flotilla/internal/model"
)

// HealthState is the monitor's classification of a container.
type HealthState string

const (
	// HealthUnknown means no probe has concluded yet.
	HealthUnknown HealthState = "UNKNOWN"
	HealthHealthy HealthState = "HEALTHY"
	// HealthUnhealthy means retries-many consecutive probes failed
	// outside the start period.
	HealthUnhealthy HealthState = "UNHEALTHY"
)

// HealthMonitor tracks one container's health-check cadence and
// consecutive-failure counting. It holds no timer of its own: the gate
// asks Due(now) on its poll loop and feeds probe outcomes to Observe.
type HealthMonitor struct {
	hc          model.HealthCheck
	startedAt   time.Time
	nextProbeAt time.Time
	failStreak  int
	state       HealthState
}

// NewHealthMonitor creates a monitor for a container started at
// startedAt. The first probe is due one interval after start.
func NewHealthMonitor(hc model.HealthCheck, startedAt time.Time) *HealthMonitor {
	return &HealthMonitor{
		hc:          hc,
		startedAt:   startedAt,
		nextProbeAt: startedAt.Add(hc.Interval),
		state:       HealthUnknown,
	}
}

// Due reports whether a probe should run at now.
func (m *HealthMonitor) Due(now time.Time) bool {
	return !now.Before(m.nextProbeAt)
}

// Observe records one probe outcome at now and returns the resulting
// health state.
//
// A pass resets the failure streak and marks the container healthy. A
// fail inside the start period is grace and does not count; outside it,
// the streak grows, and reaching retries flips the state to Unhealthy.
// The state can flip back: a later pass resets everything.
func (m *HealthMonitor) Observe(now time.Time, passed bool) HealthState {
	m.nextProbeAt = now.Add(m.hc.Interval)

	if passed {
		m.failStreak = 0
		m.state = HealthHealthy
		return m.state
	}

	inStartPeriod := now.Before(m.startedAt.Add(m.hc.StartPeriod))
	if !inStartPeriod {
		m.failStreak++
		if m.failStreak >= m.hc.Retries {
			m.state = HealthUnhealthy
		}
	}
	return m.state
}

// State returns the current classification.
func (m *HealthMonitor) State() HealthState { return m.state }

// FailStreak returns the current consecutive-failure count.
func (m *HealthMonitor) FailStreak() int { return m.failStreak }
