package game

import (
	"math"
	"time"
)

// OfflineReport summarizes one offline catch-up pass. When the replayed gap
// kills the run, the gains fields are zeroed: the player never sees a gains
// summary for a life that is already over.
type OfflineReport struct {
	Replayed       bool    `json:"replayed"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	CappedSeconds  int64   `json:"capped_seconds"`
	Speed          float64 `json:"speed"`
	QiGained       float64 `json:"qi_gained"`
	YearsPassed    float64 `json:"years_passed"`
	Died           bool    `json:"died"`
}

// OnResume replays the wall-clock gap recorded by the last OnSuspend as one
// lump delta. Production rate does not depend on age, so the lump is
// equivalent to per-second integration up to floating rounding. The snapshot
// is consumed unconditionally, success or not, so a second resume cannot
// double-count.
func (e *Engine) OnResume(now time.Time) OfflineReport {
	snap := e.pending
	e.pending = nil
	if snap == nil {
		return OfflineReport{}
	}
	if e.life.Phase == PhaseTransitioning {
		return OfflineReport{}
	}
	if snap.Speed == 0 {
		return OfflineReport{}
	}

	elapsed := (now.UnixMilli() - snap.SuspendedAtUnixMs) / 1000
	if elapsed < 1 {
		return OfflineReport{}
	}
	capSeconds := int64(e.cfg.Offline.CapHours * 3600)
	capped := elapsed
	if capSeconds > 0 && capped > capSeconds {
		capped = capSeconds
	}

	effective := float64(capped) * snap.Speed
	yearsPassed := effective * e.cfg.YearsPerSecond

	qps := ProductionRate(e.cfg, e.cat, RateQPS, &e.run, e.meta.Karma())
	gained := qps * effective * e.cfg.Offline.Multiplier
	if math.IsNaN(gained) || math.IsInf(gained, 0) || gained < 0 {
		e.logf("offline: dropped non-finite gain")
		gained = 0
	}
	before := e.run.Qi
	e.gain(gained)
	applied := e.run.Qi - before

	newAge, exhausted := AdvanceAge(
		e.run.AgeYears, float64(capped), snap.Speed, e.cfg.YearsPerSecond, e.run.LifespanYears)
	e.run.AgeYears = newAge

	report := OfflineReport{
		Replayed:       true,
		ElapsedSeconds: elapsed,
		CappedSeconds:  capped,
		Speed:          snap.Speed,
		QiGained:       applied,
		YearsPassed:    yearsPassed,
	}

	if exhausted && !e.life.ExhaustLatch {
		report.Died = true
		report.QiGained = 0
		report.YearsPassed = 0
		e.transition(TriggerDeath, now)
	}

	if e.notifyFn != nil && report.Replayed {
		r := report
		e.notifyFn(Notice{Kind: "OFFLINE_REPORT", Offline: &r})
	}
	return report
}
