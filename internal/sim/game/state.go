package game

import (
	"math"
)

// Phase is the lifecycle state. Transitioning is entered by exactly one
// trigger at a time and is cleared last, after the fresh run is committed.
type Phase string

const (
	PhaseLiving        Phase = "LIVING"
	PhaseTransitioning Phase = "TRANSITIONING"
)

// Cycle is the realm band a run currently sits in.
type Cycle string

const (
	CycleMortal Cycle = "MORTAL"
	CycleSpirit Cycle = "SPIRIT"
)

// Trigger names the three ways a run ends.
type Trigger string

const (
	TriggerVoluntary Trigger = "VOLUNTARY"
	TriggerMandatory Trigger = "MANDATORY"
	TriggerDeath     Trigger = "DEATH"
)

// RunState is everything that is reset when a life ends.
type RunState struct {
	Qi         float64
	LifetimeQi float64
	QPCBase    float64
	QPSBase    float64
	RealmIndex int
	Stage      int // 1..10
	AgeYears   float64
	// LifespanYears is math.Inf(1) for the terminal realm.
	LifespanYears float64
	Cycle         Cycle
	Skills        map[string]int
}

// MetaState survives reincarnation. Karma is monotonically non-decreasing;
// nothing outside AddKarma may write it.
type MetaState struct {
	karma float64

	ReincarnationCount int
	DeathCount         int
	CycleTransitions   int

	UnlockedSpeeds    []float64 // sorted ascending
	GateCleared       bool
	VoluntaryUnlocked bool

	SaveID        string
	CreatedAtUnix int64
}

// Karma returns the accumulated meta-currency.
func (m MetaState) Karma() float64 { return m.karma }

// AddKarma accumulates karma. Negative or non-finite gains are clamped to 0
// so corruption can never make karma decrease.
func (m *MetaState) AddKarma(gain float64) {
	if math.IsNaN(gain) || gain < 0 {
		gain = 0
	}
	if math.IsInf(gain, 1) {
		gain = 0
	}
	m.karma += gain
}

func (m *MetaState) setKarma(v float64) {
	if math.IsNaN(v) || v < 0 || math.IsInf(v, 0) {
		v = 0
	}
	m.karma = v
}

// SpeedUnlocked reports whether v is in the unlocked set. Zero (pause) is
// always allowed.
func (m MetaState) SpeedUnlocked(v float64) bool {
	if v == 0 {
		return true
	}
	for _, s := range m.UnlockedSpeeds {
		if s == v {
			return true
		}
	}
	return false
}

func (m *MetaState) unlockSpeed(v float64) bool {
	if v <= 0 || m.SpeedUnlocked(v) {
		return false
	}
	m.UnlockedSpeeds = append(m.UnlockedSpeeds, v)
	for i := len(m.UnlockedSpeeds) - 1; i > 0; i-- {
		if m.UnlockedSpeeds[i] < m.UnlockedSpeeds[i-1] {
			m.UnlockedSpeeds[i], m.UnlockedSpeeds[i-1] = m.UnlockedSpeeds[i-1], m.UnlockedSpeeds[i]
		}
	}
	return true
}

// Lifecycle holds the transition guard. ExhaustLatch arms the at-most-once
// death trigger per run; it is cleared only when a new run begins.
type Lifecycle struct {
	Phase               Phase
	ExhaustLatch        bool
	LastDeathAtUnix     int64
	LastReincarnateUnix int64
}

// SessionSnapshot is written on suspend and consumed exactly once on resume.
type SessionSnapshot struct {
	SuspendedAtUnixMs int64
	Speed             float64
}
