package game

import (
	"math"

	"samsara.game/internal/sim/tuning"
)

// Pure progression math. One formula set serves the live tick path, the
// offline catch-up and the headless simulator; there is deliberately no
// second "simulation" variant of any of these.

// softCapMult is 1 + amplitude*(1 - e^(-rate*karma)): strictly increasing in
// karma, bounded above by 1+amplitude, exactly 1 at karma=0. Negative or
// non-finite karma reads as 0.
func softCapMult(c tuning.SoftCap, karma float64) float64 {
	if karma < 0 || math.IsNaN(karma) || math.IsInf(karma, 0) {
		karma = 0
	}
	return 1 + c.Amplitude*(1-math.Exp(-c.Rate*karma))
}

// KarmaQiMult scales all production.
func KarmaQiMult(t *tuning.Tuning, karma float64) float64 {
	return softCapMult(t.SoftCaps.Production, karma)
}

// KarmaLifeMult scales finite lifespans.
func KarmaLifeMult(t *tuning.Tuning, karma float64) float64 {
	return softCapMult(t.SoftCaps.Lifespan, karma)
}

// KarmaStageMult divides stage requirements (higher karma, cheaper stages).
func KarmaStageMult(t *tuning.Tuning, karma float64) float64 {
	return softCapMult(t.SoftCaps.StageEase, karma)
}

// StageRequirement is the Qi cost of advancing out of (realmIndex, stage).
func StageRequirement(t *tuning.Tuning, realmIndex, stage int, karma float64) float64 {
	if realmIndex < 0 {
		realmIndex = 0
	}
	if stage < 1 {
		stage = 1
	}
	raw := t.StageReq.RealmBase *
		math.Pow(t.StageReq.RealmScale, float64(realmIndex)) *
		math.Pow(t.StageReq.StageScale, float64(stage-1))
	req := math.Floor(raw / KarmaStageMult(t, karma))
	if req < 0 || math.IsNaN(req) {
		return 0
	}
	return req
}

// CyclePowerBonus is the piecewise-linear per-realm bonus. It does not
// compound: the index resets to 0 at each cycle's start realm.
func CyclePowerBonus(t *tuning.Tuning, cat *Catalog, realmIndex int) float64 {
	if realmIndex < 0 {
		return 0
	}
	if cat.CycleOf(realmIndex) == CycleSpirit {
		return t.Cycles.SpiritBonus * float64(realmIndex-t.Cycles.SpiritStartIndex)
	}
	return t.Cycles.MortalBonus * float64(realmIndex)
}

// RateKind selects which production rate to compute.
type RateKind int

const (
	RateQPC RateKind = iota
	RateQPS
)

// ProductionRate computes Qi per click or per second for a run snapshot:
// base + run bonus + additive skills, times (1 + multiplicative skills),
// times the karma soft cap, times (1 + cycle power bonus).
func ProductionRate(t *tuning.Tuning, cat *Catalog, kind RateKind, run *RunState, karma float64) float64 {
	var base, add, mult float64
	switch kind {
	case RateQPC:
		base = t.Clicks.BaseQPC + run.QPCBase
	case RateQPS:
		base = t.Clicks.BaseQPS + run.QPSBase
	}
	for id, lvl := range run.Skills {
		if lvl <= 0 {
			continue
		}
		sk := cat.Skill(id)
		if sk == nil {
			continue
		}
		switch {
		case kind == RateQPC && sk.Kind == "qpc":
			add += sk.Effect * float64(lvl)
		case kind == RateQPS && sk.Kind == "qps":
			add += sk.Effect * float64(lvl)
		case kind == RateQPC && sk.Kind == "qpc_mult":
			mult += sk.Effect * float64(lvl)
		case kind == RateQPS && sk.Kind == "qps_mult":
			mult += sk.Effect * float64(lvl)
		}
	}
	rate := (base + add) * (1 + mult) *
		KarmaQiMult(t, karma) *
		(1 + CyclePowerBonus(t, cat, run.RealmIndex))
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return rate
}

// MaxLifespan returns the lifespan ceiling for a realm, math.Inf(1) for the
// terminal realm, otherwise the table value scaled by the lifespan soft cap
// and floored to whole years.
func MaxLifespan(t *tuning.Tuning, cat *Catalog, realmIndex int, karma float64) float64 {
	base := cat.LifespanBase(realmIndex)
	if math.IsInf(base, 1) {
		return base
	}
	return math.Floor(base * KarmaLifeMult(t, karma))
}

// SkillCost is the geometric purchase cost at the given level (0-based:
// cost of buying level+1).
func SkillCost(sk *Skill, level int) float64 {
	if level < 0 {
		level = 0
	}
	return math.Floor(sk.BaseCost * math.Pow(sk.CostScale, float64(level)))
}

// BaseKarmaGain is the trigger-independent part of the reincarnation payout.
// Non-finite lifetime Qi reads as 0 for this computation only.
func BaseKarmaGain(t *tuning.Tuning, cat *Catalog, lifetimeQi float64, realmIndex int, cycle Cycle) float64 {
	if math.IsNaN(lifetimeQi) || math.IsInf(lifetimeQi, 0) || lifetimeQi < 0 {
		lifetimeQi = 0
	}
	base := math.Floor(math.Sqrt(lifetimeQi/t.Karma.Divisor)) + float64(realmIndex)*t.Karma.RealmFactor
	if base < t.Karma.Min {
		base = t.Karma.Min
	}
	if cycle == CycleSpirit {
		base *= t.Cycles.CycleKarmaMultiplier
	}
	return base
}

// saturatingAdd adds gain to qi, clamping to [0, ceiling]. Non-finite gains
// leave qi untouched.
func saturatingAdd(qi, gain, ceiling float64) float64 {
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain < 0 {
		return qi
	}
	sum := qi + gain
	if sum > ceiling || math.IsInf(sum, 1) {
		return ceiling
	}
	if sum < 0 {
		return 0
	}
	return sum
}
