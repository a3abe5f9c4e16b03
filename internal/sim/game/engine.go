package game

import (
	"fmt"
	"log"
	"math"
	"time"

	"samsara.game/internal/protocol"
	"samsara.game/internal/sim/tuning"
)

// Engine owns one save slot's run, meta and lifecycle state. All methods must
// be called from a single goroutine (the host loop); the hazard here is
// reentrancy through the transition guard, not data races.
type Engine struct {
	cfg *tuning.Tuning
	cat *Catalog

	run     RunState
	meta    MetaState
	life    Lifecycle
	pending *SessionSnapshot
	speed   float64

	logger    *log.Logger
	journalFn func(JournalEntry)
	notifyFn  func(Notice)
}

// Config wires an engine. Logger may be nil (sanitization paths then stay
// silent). SaveID identifies the slot across restarts.
type Config struct {
	Tuning  *tuning.Tuning
	Catalog *Catalog
	SaveID  string
	Logger  *log.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Tuning == nil {
		return nil, fmt.Errorf("engine: nil tuning")
	}
	cat := cfg.Catalog
	if cat == nil {
		var err error
		cat, err = DeriveCatalog(cfg.Tuning)
		if err != nil {
			return nil, err
		}
	}
	e := &Engine{
		cfg:    cfg.Tuning,
		cat:    cat,
		logger: cfg.Logger,
		speed:  1,
	}
	e.meta = MetaState{
		UnlockedSpeeds: append([]float64(nil), cfg.Tuning.Speeds.Base...),
		SaveID:         cfg.SaveID,
		CreatedAtUnix:  time.Now().Unix(),
	}
	e.life = Lifecycle{Phase: PhaseLiving}
	e.run = e.freshRun()
	return e, nil
}

// SetJournalFn installs the transition journal hook.
func (e *Engine) SetJournalFn(fn func(JournalEntry)) { e.journalFn = fn }

// SetNotifyFn installs the player-facing event hook.
func (e *Engine) SetNotifyFn(fn func(Notice)) { e.notifyFn = fn }

func (e *Engine) Catalog() *Catalog      { return e.cat }
func (e *Engine) Tuning() *tuning.Tuning { return e.cfg }
func (e *Engine) Phase() Phase           { return e.life.Phase }
func (e *Engine) Speed() float64         { return e.speed }
func (e *Engine) Meta() MetaState        { return e.meta }
func (e *Engine) Run() RunState          { return cloneRun(e.run) }

func cloneRun(r RunState) RunState {
	out := r
	out.Skills = make(map[string]int, len(r.Skills))
	for k, v := range r.Skills {
		out.Skills[k] = v
	}
	return out
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// gain applies production to qi and lifetime qi through the one saturating
// path shared by ticks, clicks and offline replay.
func (e *Engine) gain(amount float64) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		e.logf("engine: dropped non-finite qi gain")
		return
	}
	e.run.Qi = saturatingAdd(e.run.Qi, amount, e.cfg.QiCeiling)
	e.run.LifetimeQi = saturatingAdd(e.run.LifetimeQi, amount, e.cfg.QiCeiling)
}

// Tick advances the run by elapsed wall seconds. No-op while transitioning or
// paused. Applies production first, then aging, then trigger evaluation.
func (e *Engine) Tick(elapsedSeconds float64) {
	e.TickAt(elapsedSeconds, time.Now())
}

// TickAt is Tick with an explicit clock, for deterministic drivers.
func (e *Engine) TickAt(elapsedSeconds float64, now time.Time) {
	if e.life.Phase == PhaseTransitioning || e.speed == 0 {
		return
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	qps := ProductionRate(e.cfg, e.cat, RateQPS, &e.run, e.meta.Karma())
	e.gain(qps * elapsedSeconds * e.speed)

	newAge, exhausted := AdvanceAge(
		e.run.AgeYears, elapsedSeconds, e.speed, e.cfg.YearsPerSecond, e.run.LifespanYears)
	e.run.AgeYears = newAge

	e.evaluateTriggers(exhausted, now)
}

// Click applies one click's production. No-op while transitioning or paused.
func (e *Engine) Click() {
	if e.life.Phase == PhaseTransitioning || e.speed == 0 {
		return
	}
	qpc := ProductionRate(e.cfg, e.cat, RateQPC, &e.run, e.meta.Karma())
	e.gain(qpc)
}

// BuySkill purchases one level of a skill for this run. Returns "" when
// accepted, otherwise a protocol deny code.
func (e *Engine) BuySkill(id string) string {
	if e.life.Phase == PhaseTransitioning {
		return protocol.ErrTransitioning
	}
	sk := e.cat.Skill(id)
	if sk == nil {
		return protocol.ErrBadRequest
	}
	lvl := e.run.Skills[id]
	if lvl >= sk.MaxLevel {
		return protocol.ErrMaxed
	}
	cost := SkillCost(sk, lvl)
	if e.run.Qi < cost {
		return protocol.ErrNoQi
	}
	e.run.Qi -= cost
	e.run.Skills[id] = lvl + 1
	return ""
}

// Breakthrough spends the stage requirement and advances stage, rolling into
// the next realm at stage 10. Stage resets to 1 exactly when the realm index
// increments; lifespan and cycle re-derive at the new realm. Blocked at the
// mandatory wall tier until the gate is cleared, and at the terminal realm's
// last stage.
func (e *Engine) Breakthrough() string {
	if e.life.Phase == PhaseTransitioning {
		return protocol.ErrTransitioning
	}
	if e.run.Stage >= 10 {
		if e.run.RealmIndex >= e.cat.TerminalRealm() {
			return protocol.ErrMaxed
		}
		if e.atMandatoryGate() {
			return protocol.ErrGateBlocked
		}
	}
	req := StageRequirement(e.cfg, e.run.RealmIndex, e.run.Stage, e.meta.Karma())
	if e.run.Qi < req {
		return protocol.ErrNoQi
	}
	e.run.Qi -= req
	if e.run.Stage >= 10 {
		e.run.RealmIndex++
		e.run.Stage = 1
		e.run.LifespanYears = MaxLifespan(e.cfg, e.cat, e.run.RealmIndex, e.meta.Karma())
		e.run.Cycle = e.cat.CycleOf(e.run.RealmIndex)
	} else {
		e.run.Stage++
	}
	return ""
}

// SetSpeed selects a time-speed multiplier. Zero (pause) is always allowed;
// anything else must be in the unlocked set.
func (e *Engine) SetSpeed(v float64) string {
	if e.life.Phase == PhaseTransitioning {
		return protocol.ErrTransitioning
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return protocol.ErrBadRequest
	}
	if !e.meta.SpeedUnlocked(v) {
		return protocol.ErrSpeedLocked
	}
	e.speed = v
	return ""
}

// RequestReincarnate fires a manual transition. Rejections leave all state
// untouched.
func (e *Engine) RequestReincarnate(mode Trigger) string {
	return e.RequestReincarnateAt(mode, time.Now())
}

// RequestReincarnateAt is RequestReincarnate with an explicit clock.
func (e *Engine) RequestReincarnateAt(mode Trigger, now time.Time) string {
	if e.life.Phase == PhaseTransitioning {
		return protocol.ErrTransitioning
	}
	switch mode {
	case TriggerVoluntary:
		if !e.voluntaryAllowed() {
			return protocol.ErrLocked
		}
	case TriggerMandatory:
		if !e.atMandatoryGate() {
			return protocol.ErrLocked
		}
	default:
		return protocol.ErrBadMode
	}
	e.transition(mode, now)
	return ""
}

// OnSuspend records the session snapshot consumed by the next OnResume.
func (e *Engine) OnSuspend(now time.Time) {
	e.pending = &SessionSnapshot{
		SuspendedAtUnixMs: now.UnixMilli(),
		Speed:             e.speed,
	}
}

// FullReset destroys meta state as well as the run. This is the only path
// that resets karma; it is exposed to operators, never to the protocol.
func (e *Engine) FullReset() {
	saveID := e.meta.SaveID
	e.meta = MetaState{
		UnlockedSpeeds: append([]float64(nil), e.cfg.Speeds.Base...),
		SaveID:         saveID,
		CreatedAtUnix:  time.Now().Unix(),
	}
	e.life = Lifecycle{Phase: PhaseLiving}
	e.speed = 1
	e.pending = nil
	e.run = e.freshRun()
}
