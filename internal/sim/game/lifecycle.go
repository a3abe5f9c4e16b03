package game

import (
	"time"
)

// JournalEntry records one completed transition. It is emitted while the
// guard is still set, so journal consumers observe PhaseTransitioning.
type JournalEntry struct {
	AtUnixMs       int64   `json:"at_unix_ms"`
	SaveID         string  `json:"save_id"`
	Trigger        Trigger `json:"trigger"`
	KarmaGained    float64 `json:"karma_gained"`
	KarmaTotal     float64 `json:"karma_total"`
	Reincarnations int     `json:"reincarnations"`
	Deaths         int     `json:"deaths"`
	RealmIndex     int     `json:"realm_index"`
	Stage          int     `json:"stage"`
	AgeYears       float64 `json:"age_years"`
	LifetimeQi     float64 `json:"lifetime_qi"`
}

// Notice is pushed to the host after a state change the player should see.
type Notice struct {
	Kind        string // DEATH, REINCARNATED, GATE_OPENED, SPEED_UNLOCKED, OFFLINE_REPORT
	Trigger     Trigger
	KarmaGained float64
	Speed       float64
	Offline     *OfflineReport
}

// karmaGain computes the payout for a trigger against the dying run.
func (e *Engine) karmaGain(trigger Trigger) float64 {
	gain := BaseKarmaGain(e.cfg, e.cat, e.run.LifetimeQi, e.run.RealmIndex, e.run.Cycle)
	if trigger == TriggerDeath {
		gain *= e.cfg.Karma.DeathPenalty
	}
	return gain
}

// transition runs the full reincarnation/death sequence. The guard is set
// first and cleared last; every entrypoint no-ops while it is set, so at most
// one transition is ever in flight. Callers must have verified the trigger's
// precondition.
func (e *Engine) transition(trigger Trigger, now time.Time) {
	if e.life.Phase == PhaseTransitioning {
		return
	}
	e.life.Phase = PhaseTransitioning
	e.life.ExhaustLatch = true

	old := e.run
	gain := e.karmaGain(trigger)
	e.meta.AddKarma(gain)

	var deathAt, reincAt int64
	switch trigger {
	case TriggerDeath:
		e.meta.DeathCount++
		deathAt = now.Unix()
		reincAt = e.life.LastReincarnateUnix
	default:
		e.meta.ReincarnationCount++
		reincAt = now.Unix()
		deathAt = e.life.LastDeathAtUnix
	}

	gateJustOpened := false
	if trigger == TriggerMandatory {
		if !e.meta.GateCleared {
			gateJustOpened = true
			e.meta.CycleTransitions++
		}
		e.meta.GateCleared = true
		e.meta.VoluntaryUnlocked = true
	}

	var speedsGranted []float64
	for _, u := range e.cfg.Speeds.Unlocks {
		if e.meta.ReincarnationCount >= u.Reincarnations {
			if e.meta.unlockSpeed(u.Speed) {
				speedsGranted = append(speedsGranted, u.Speed)
			}
		}
	}

	// Fresh run; meta flags and unlocks carry over untouched.
	e.run = e.freshRun()
	if !e.meta.SpeedUnlocked(e.speed) {
		e.speed = 1
	}
	e.pending = nil

	if e.journalFn != nil {
		e.journalFn(JournalEntry{
			AtUnixMs:       now.UnixMilli(),
			SaveID:         e.meta.SaveID,
			Trigger:        trigger,
			KarmaGained:    gain,
			KarmaTotal:     e.meta.Karma(),
			Reincarnations: e.meta.ReincarnationCount,
			Deaths:         e.meta.DeathCount,
			RealmIndex:     old.RealmIndex,
			Stage:          old.Stage,
			AgeYears:       old.AgeYears,
			LifetimeQi:     old.LifetimeQi,
		})
	}

	// Guard cleared last; the exhaustion latch re-arms only with the new run.
	e.life = Lifecycle{
		Phase:               PhaseLiving,
		ExhaustLatch:        false,
		LastDeathAtUnix:     deathAt,
		LastReincarnateUnix: reincAt,
	}

	if e.notifyFn != nil {
		kind := "REINCARNATED"
		if trigger == TriggerDeath {
			kind = "DEATH"
		}
		e.notifyFn(Notice{Kind: kind, Trigger: trigger, KarmaGained: gain})
		if gateJustOpened {
			e.notifyFn(Notice{Kind: "GATE_OPENED", Trigger: trigger})
		}
		for _, s := range speedsGranted {
			e.notifyFn(Notice{Kind: "SPEED_UNLOCKED", Speed: s})
		}
	}
}

// freshRun derives a new life at the first realm from current meta state.
func (e *Engine) freshRun() RunState {
	karma := e.meta.Karma()
	return RunState{
		Qi:            0,
		LifetimeQi:    0,
		QPCBase:       0,
		QPSBase:       0,
		RealmIndex:    0,
		Stage:         1,
		AgeYears:      0,
		LifespanYears: MaxLifespan(e.cfg, e.cat, 0, karma),
		Cycle:         e.cat.CycleOf(0),
		Skills:        map[string]int{},
	}
}

// atMandatoryGate reports whether the run sits exactly on the wall tier with
// the one-time gate not yet consumed.
func (e *Engine) atMandatoryGate() bool {
	return !e.meta.GateCleared &&
		e.run.RealmIndex == e.cfg.Gate.RealmIndex &&
		e.run.Stage == e.cfg.Gate.Stage
}

// voluntaryAllowed reports whether a voluntary reincarnation may fire.
func (e *Engine) voluntaryAllowed() bool {
	return e.meta.VoluntaryUnlocked && e.run.RealmIndex >= e.cfg.Gate.VoluntaryMinRealm
}

// evaluateTriggers fires at most one automatic transition for this pass.
// Priority: mandatory gate, then death. The fresh run no longer matches the
// losing condition, so it re-evaluates cleanly on the next pass.
func (e *Engine) evaluateTriggers(exhausted bool, now time.Time) {
	if e.life.Phase == PhaseTransitioning {
		return
	}
	if e.atMandatoryGate() {
		e.transition(TriggerMandatory, now)
		return
	}
	if exhausted && !e.life.ExhaustLatch {
		e.transition(TriggerDeath, now)
	}
}
