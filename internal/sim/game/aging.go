package game

import "math"

// AdvanceAge is the pure aging step shared by the live tick and the offline
// lump replay. It returns the clamped new age and whether the lifespan
// ceiling was reached. Infinite lifespans and zero speed never age.
// A non-finite candidate age is rejected: the prior age is kept.
func AdvanceAge(priorAge, elapsedSeconds, speed, yearsPerSecond, lifespanMax float64) (newAge float64, exhausted bool) {
	if math.IsInf(lifespanMax, 1) || speed == 0 {
		return priorAge, false
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	delta := elapsedSeconds * speed * yearsPerSecond
	next := priorAge + delta
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return priorAge, false
	}
	if next < 0 {
		next = 0
	}
	if next >= lifespanMax {
		return lifespanMax, true
	}
	return next, false
}
