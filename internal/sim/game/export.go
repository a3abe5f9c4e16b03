package game

import (
	"math"
	"time"

	"samsara.game/internal/persistence/save"
)

// ExportSave captures the full engine state as a versioned save document.
func (e *Engine) ExportSave(now time.Time) save.SaveV1 {
	age := e.run.AgeYears
	speedOut := e.speed
	lifespan := e.run.LifespanYears
	if math.IsInf(lifespan, 1) {
		lifespan = 0
	}

	skills := make(map[string]int, len(e.run.Skills))
	for id, lvl := range e.run.Skills {
		if lvl > 0 {
			skills[id] = lvl
		}
	}

	s := save.SaveV1{
		Header: save.Header{
			Version:       save.Version,
			SaveID:        e.meta.SaveID,
			SavedAtUnixMs: now.UnixMilli(),
		},
		TuningDigest: e.cfg.Digest(),
		Run: save.RunV1{
			Qi:            e.run.Qi,
			LifetimeQi:    e.run.LifetimeQi,
			QPCBase:       e.run.QPCBase,
			QPSBase:       e.run.QPSBase,
			RealmIndex:    e.run.RealmIndex,
			Stage:         e.run.Stage,
			AgeYears:      &age,
			LifespanYears: lifespan,
			Skills:        skills,
		},
		Meta: save.MetaV1{
			Karma:              e.meta.Karma(),
			ReincarnationCount: e.meta.ReincarnationCount,
			DeathCount:         e.meta.DeathCount,
			CycleTransitions:   e.meta.CycleTransitions,
			UnlockedSpeeds:     append([]float64(nil), e.meta.UnlockedSpeeds...),
			GateCleared:        e.meta.GateCleared,
			VoluntaryUnlocked:  e.meta.VoluntaryUnlocked,
			CreatedAtUnix:      e.meta.CreatedAtUnix,
		},
		Lifecycle: &save.LifecycleV1{
			Transitioning:       e.life.Phase == PhaseTransitioning,
			LastDeathAtUnix:     e.life.LastDeathAtUnix,
			LastReincarnateUnix: e.life.LastReincarnateUnix,
		},
		Speed: &speedOut,
	}
	if e.pending != nil {
		s.Session = &save.SessionV1{
			SuspendedAtUnixMs: e.pending.SuspendedAtUnixMs,
			Speed:             e.pending.Speed,
		}
	}
	return s
}

// ImportSave restores engine state from a decoded save. Malformed or missing
// optional fields never fail the import: each is replaced by its documented
// default and logged. Absent lifecycle reads as Living; absent unlocked
// speeds fall back to the base set; absent age derives from
// lifespan_max - lifespan_current when both legacy fields are present,
// otherwise 0.
func (e *Engine) ImportSave(s save.SaveV1) {
	saveID := s.Header.SaveID
	if saveID == "" {
		saveID = e.meta.SaveID
	}

	karma := s.Meta.Karma
	if math.IsNaN(karma) || math.IsInf(karma, 0) || karma < 0 {
		e.logf("import: bad karma %v, reset to 0", s.Meta.Karma)
		karma = 0
	}

	speeds := s.Meta.UnlockedSpeeds
	if len(speeds) == 0 {
		speeds = append([]float64(nil), e.cfg.Speeds.Base...)
	} else {
		clean := speeds[:0]
		for _, v := range speeds {
			if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
				clean = append(clean, v)
			}
		}
		speeds = clean
		if len(speeds) == 0 {
			e.logf("import: unlocked speeds all invalid, reset to base set")
			speeds = append([]float64(nil), e.cfg.Speeds.Base...)
		}
	}

	e.meta = MetaState{
		ReincarnationCount: maxInt(0, s.Meta.ReincarnationCount),
		DeathCount:         maxInt(0, s.Meta.DeathCount),
		CycleTransitions:   maxInt(0, s.Meta.CycleTransitions),
		UnlockedSpeeds:     speeds,
		GateCleared:        s.Meta.GateCleared,
		VoluntaryUnlocked:  s.Meta.VoluntaryUnlocked,
		SaveID:             saveID,
		CreatedAtUnix:      s.Meta.CreatedAtUnix,
	}
	e.meta.setKarma(karma)

	realm := s.Run.RealmIndex
	if realm < 0 || realm > e.cat.TerminalRealm() {
		e.logf("import: realm index %d outside table, reset to 0", realm)
		realm = 0
	}
	stage := s.Run.Stage
	if stage < 1 || stage > 10 {
		e.logf("import: stage %d outside 1..10, reset to 1", stage)
		stage = 1
	}

	lifespan := MaxLifespan(e.cfg, e.cat, realm, karma)

	var age float64
	switch {
	case s.Run.AgeYears != nil && !math.IsNaN(*s.Run.AgeYears) && !math.IsInf(*s.Run.AgeYears, 0) && *s.Run.AgeYears >= 0:
		age = *s.Run.AgeYears
	case s.Run.LifespanCurrent != nil && s.Run.LifespanYears > 0:
		// Legacy pair: remaining years were stored instead of age.
		age = s.Run.LifespanYears - *s.Run.LifespanCurrent
		if age < 0 || math.IsNaN(age) {
			age = 0
		}
		e.logf("import: derived age %.1f from legacy lifespan fields", age)
	default:
		age = 0
	}
	if !math.IsInf(lifespan, 1) && age > lifespan {
		age = lifespan
	}

	skills := make(map[string]int, len(s.Run.Skills))
	for id, lvl := range s.Run.Skills {
		sk := e.cat.Skill(id)
		if sk == nil {
			e.logf("import: dropping unknown skill %q", id)
			continue
		}
		if lvl < 0 {
			continue
		}
		if lvl > sk.MaxLevel {
			lvl = sk.MaxLevel
		}
		skills[id] = lvl
	}

	e.run = RunState{
		Qi:            sanitizeQi(s.Run.Qi, e.cfg.QiCeiling),
		LifetimeQi:    sanitizeQi(s.Run.LifetimeQi, e.cfg.QiCeiling),
		QPCBase:       sanitizeNonNeg(s.Run.QPCBase),
		QPSBase:       sanitizeNonNeg(s.Run.QPSBase),
		RealmIndex:    realm,
		Stage:         stage,
		AgeYears:      age,
		LifespanYears: lifespan,
		Cycle:         e.cat.CycleOf(realm),
		Skills:        skills,
	}

	// An interrupted transition never resumes mid-flight: a crash between the
	// reset and the guard clear restores as a fresh Living run.
	e.life = Lifecycle{Phase: PhaseLiving}
	if s.Lifecycle != nil {
		e.life.LastDeathAtUnix = s.Lifecycle.LastDeathAtUnix
		e.life.LastReincarnateUnix = s.Lifecycle.LastReincarnateUnix
		if s.Lifecycle.Transitioning {
			e.logf("import: save captured mid-transition, restoring as living")
		}
	}

	// Absent speed defaults to 1x; an explicit 0 is a preserved pause.
	speed := 1.0
	if s.Speed != nil {
		speed = *s.Speed
		if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) || !e.meta.SpeedUnlocked(speed) {
			e.logf("import: speed %v unavailable, reset to 1x", *s.Speed)
			speed = 1
		}
	}
	e.speed = speed

	e.pending = nil
	if s.Session != nil {
		e.pending = &SessionSnapshot{
			SuspendedAtUnixMs: s.Session.SuspendedAtUnixMs,
			Speed:             sanitizeNonNeg(s.Session.Speed),
		}
	}
}

func sanitizeQi(v, ceiling float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > ceiling || math.IsInf(v, 1) {
		return ceiling
	}
	return v
}

func sanitizeNonNeg(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
