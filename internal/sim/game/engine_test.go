package game

import (
	"math"
	"testing"
	"time"

	"samsara.game/internal/protocol"
	"samsara.game/internal/sim/tuning"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	tune := tuning.Defaults()
	e, err := New(Config{Tuning: &tune, SaveID: "test-save"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestFreshEngine(t *testing.T) {
	e := newTestEngine(t)
	if e.Phase() != PhaseLiving {
		t.Fatalf("phase = %v want LIVING", e.Phase())
	}
	run := e.Run()
	if run.RealmIndex != 0 || run.Stage != 1 || run.AgeYears != 0 {
		t.Fatalf("fresh run = realm %d stage %d age %v", run.RealmIndex, run.Stage, run.AgeYears)
	}
	if run.LifespanYears != 80 {
		t.Fatalf("fresh lifespan = %v want 80 (karma 0)", run.LifespanYears)
	}
	if e.Speed() != 1 {
		t.Fatalf("fresh speed = %v want 1", e.Speed())
	}
}

func TestClickProduces(t *testing.T) {
	e := newTestEngine(t)
	e.Click()
	run := e.Run()
	if run.Qi != 1 || run.LifetimeQi != 1 {
		t.Fatalf("after click: qi=%v lifetime=%v want 1, 1", run.Qi, run.LifetimeQi)
	}
}

func TestTickProducesAndAges(t *testing.T) {
	e := newTestEngine(t)
	e.run.QPSBase = 2
	e.Tick(10)
	run := e.Run()
	if run.Qi != 20 {
		t.Fatalf("qi = %v want 20", run.Qi)
	}
	if run.AgeYears != 10 {
		t.Fatalf("age = %v want 10", run.AgeYears)
	}
}

func TestBuySkill(t *testing.T) {
	e := newTestEngine(t)

	if code := e.BuySkill("no_such_skill"); code != protocol.ErrBadRequest {
		t.Fatalf("unknown skill: got %q want %q", code, protocol.ErrBadRequest)
	}
	if code := e.BuySkill("breath_control"); code != protocol.ErrNoQi {
		t.Fatalf("broke player: got %q want %q", code, protocol.ErrNoQi)
	}

	e.run.Qi = 15
	if code := e.BuySkill("breath_control"); code != "" {
		t.Fatalf("affordable buy denied: %q", code)
	}
	run := e.Run()
	if run.Qi != 0 || run.Skills["breath_control"] != 1 {
		t.Fatalf("after buy: qi=%v level=%d", run.Qi, run.Skills["breath_control"])
	}

	e.run.Skills["breath_control"] = e.cat.Skill("breath_control").MaxLevel
	e.run.Qi = 1e18
	if code := e.BuySkill("breath_control"); code != protocol.ErrMaxed {
		t.Fatalf("maxed skill: got %q want %q", code, protocol.ErrMaxed)
	}
}

func TestBreakthroughAdvancesStage(t *testing.T) {
	e := newTestEngine(t)
	req := StageRequirement(e.cfg, 0, 1, 0)

	if code := e.Breakthrough(); code != protocol.ErrNoQi {
		t.Fatalf("broke breakthrough: got %q want %q", code, protocol.ErrNoQi)
	}
	e.run.Qi = req + 3
	if code := e.Breakthrough(); code != "" {
		t.Fatalf("breakthrough denied: %q", code)
	}
	run := e.Run()
	if run.Stage != 2 || run.RealmIndex != 0 {
		t.Fatalf("after breakthrough: realm %d stage %d", run.RealmIndex, run.Stage)
	}
	if run.Qi != 3 {
		t.Fatalf("qi after spend = %v want 3", run.Qi)
	}
}

func TestBreakthroughRealmRollover(t *testing.T) {
	e := newTestEngine(t)
	e.run.Stage = 10
	e.run.Qi = StageRequirement(e.cfg, 0, 10, 0)

	if code := e.Breakthrough(); code != "" {
		t.Fatalf("rollover denied: %q", code)
	}
	run := e.Run()
	if run.RealmIndex != 1 || run.Stage != 1 {
		t.Fatalf("after rollover: realm %d stage %d want 1, 1", run.RealmIndex, run.Stage)
	}
	if run.LifespanYears != 120 {
		t.Fatalf("lifespan not re-derived: %v want 120", run.LifespanYears)
	}
}

func TestBreakthroughBlockedAtGate(t *testing.T) {
	e := newTestEngine(t)
	e.run.RealmIndex = e.cfg.Gate.RealmIndex
	e.run.Stage = e.cfg.Gate.Stage
	e.run.Qi = 1e300

	if code := e.Breakthrough(); code != protocol.ErrGateBlocked {
		t.Fatalf("got %q want %q", code, protocol.ErrGateBlocked)
	}
	if e.Run().RealmIndex != e.cfg.Gate.RealmIndex {
		t.Fatal("denied breakthrough mutated state")
	}
}

func TestBreakthroughMaxedAtTerminal(t *testing.T) {
	e := newTestEngine(t)
	e.meta.GateCleared = true
	e.run.RealmIndex = e.cat.TerminalRealm()
	e.run.Stage = 10
	e.run.Qi = 1e300

	if code := e.Breakthrough(); code != protocol.ErrMaxed {
		t.Fatalf("got %q want %q", code, protocol.ErrMaxed)
	}
}

func TestMandatoryGateTransition(t *testing.T) {
	e := newTestEngine(t)
	e.run.RealmIndex = e.cfg.Gate.RealmIndex
	e.run.Stage = e.cfg.Gate.Stage
	e.run.LifetimeQi = 25e6

	wantGain := BaseKarmaGain(e.cfg, e.cat, 25e6, e.cfg.Gate.RealmIndex, CycleMortal)

	e.TickAt(0, time.Unix(1000, 0))

	meta := e.Meta()
	if meta.ReincarnationCount != 1 || meta.DeathCount != 0 {
		t.Fatalf("counters: reinc=%d deaths=%d want 1, 0", meta.ReincarnationCount, meta.DeathCount)
	}
	if !meta.GateCleared || !meta.VoluntaryUnlocked {
		t.Fatalf("gate flags: cleared=%v voluntary=%v want true, true", meta.GateCleared, meta.VoluntaryUnlocked)
	}
	if meta.CycleTransitions != 1 {
		t.Fatalf("cycle transitions = %d want 1", meta.CycleTransitions)
	}
	if meta.Karma() != wantGain {
		t.Fatalf("karma = %v want %v", meta.Karma(), wantGain)
	}

	run := e.Run()
	if run.RealmIndex != 0 || run.Stage != 1 || run.AgeYears != 0 || run.Qi != 0 {
		t.Fatalf("fresh run not reset: %+v", run)
	}
	if e.Phase() != PhaseLiving {
		t.Fatalf("phase after transition = %v want LIVING", e.Phase())
	}
	// Karma raised the fresh run's lifespan above the table base.
	if run.LifespanYears <= 80 {
		t.Fatalf("lifespan %v not scaled by karma", run.LifespanYears)
	}
}

// A hook firing mid-transition observes the guard and cannot re-enter: every
// entrypoint refuses until the guard clears, so the hostile engine ends up
// byte-identical to a control that transitioned with no hook installed.
func TestTransitionGuardBlocksReentry(t *testing.T) {
	hostile := newTestEngine(t)
	control := newTestEngine(t)
	for _, e := range []*Engine{hostile, control} {
		e.run.RealmIndex = e.cfg.Gate.RealmIndex
		e.run.Stage = e.cfg.Gate.Stage
		e.run.LifetimeQi = 25e6
	}

	hookFired := false
	hostile.SetJournalFn(func(JournalEntry) {
		hookFired = true
		if hostile.Phase() != PhaseTransitioning {
			t.Errorf("journal hook ran with phase %v want TRANSITIONING", hostile.Phase())
		}
		hostile.TickAt(100, time.Unix(1001, 0))
		hostile.Click()
		if code := hostile.BuySkill("breath_control"); code != protocol.ErrTransitioning {
			t.Errorf("BuySkill mid-transition: got %q want %q", code, protocol.ErrTransitioning)
		}
		if code := hostile.Breakthrough(); code != protocol.ErrTransitioning {
			t.Errorf("Breakthrough mid-transition: got %q want %q", code, protocol.ErrTransitioning)
		}
		if code := hostile.SetSpeed(0); code != protocol.ErrTransitioning {
			t.Errorf("SetSpeed mid-transition: got %q want %q", code, protocol.ErrTransitioning)
		}
		if code := hostile.RequestReincarnateAt(TriggerVoluntary, time.Unix(1001, 0)); code != protocol.ErrTransitioning {
			t.Errorf("RequestReincarnate mid-transition: got %q want %q", code, protocol.ErrTransitioning)
		}
		if r := hostile.OnResume(time.Unix(1001, 0)); r.Replayed {
			t.Error("OnResume replayed mid-transition")
		}
	})

	hostile.TickAt(0, time.Unix(1000, 0))
	control.TickAt(0, time.Unix(1000, 0))

	if !hookFired {
		t.Fatal("journal hook never fired")
	}
	meta := hostile.Meta()
	if meta.ReincarnationCount != 1 || meta.DeathCount != 0 {
		t.Fatalf("counters: reinc=%d deaths=%d want 1, 0", meta.ReincarnationCount, meta.DeathCount)
	}
	if hostile.Phase() != PhaseLiving {
		t.Fatalf("phase after transition = %v want LIVING", hostile.Phase())
	}
	if hostile.StateDigest() != control.StateDigest() {
		t.Fatalf("re-entrant calls mutated state:\n hostile %s\n control %s",
			hostile.StateDigest(), control.StateDigest())
	}
}

func TestDeathByAging(t *testing.T) {
	e := newTestEngine(t)
	e.run.LifetimeQi = 16e6
	e.run.AgeYears = 79

	base := BaseKarmaGain(e.cfg, e.cat, 16e6, 0, CycleMortal)
	wantGain := base * e.cfg.Karma.DeathPenalty

	e.TickAt(10, time.Unix(2000, 0))

	meta := e.Meta()
	if meta.DeathCount != 1 || meta.ReincarnationCount != 0 {
		t.Fatalf("counters: deaths=%d reinc=%d want 1, 0", meta.DeathCount, meta.ReincarnationCount)
	}
	if meta.Karma() != wantGain {
		t.Fatalf("karma = %v want %v (death penalty applied)", meta.Karma(), wantGain)
	}
	if meta.GateCleared || meta.VoluntaryUnlocked {
		t.Fatal("death must not clear the gate")
	}
	run := e.Run()
	if run.AgeYears != 0 || run.LifetimeQi != 0 {
		t.Fatalf("fresh run not reset: age=%v lifetime=%v", run.AgeYears, run.LifetimeQi)
	}
}

func TestVoluntaryLockedBeforeGate(t *testing.T) {
	e := newTestEngine(t)
	e.run.RealmIndex = 3
	if code := e.RequestReincarnate(TriggerVoluntary); code != protocol.ErrLocked {
		t.Fatalf("got %q want %q", code, protocol.ErrLocked)
	}
	if e.Meta().ReincarnationCount != 0 {
		t.Fatal("denied request mutated state")
	}
}

func TestVoluntaryAfterGate(t *testing.T) {
	e := newTestEngine(t)
	e.meta.GateCleared = true
	e.meta.VoluntaryUnlocked = true

	// Still below the minimum realm.
	e.run.RealmIndex = e.cfg.Gate.VoluntaryMinRealm - 1
	if code := e.RequestReincarnate(TriggerVoluntary); code != protocol.ErrLocked {
		t.Fatalf("below min realm: got %q want %q", code, protocol.ErrLocked)
	}

	e.run.RealmIndex = e.cfg.Gate.VoluntaryMinRealm
	if code := e.RequestReincarnate(TriggerVoluntary); code != "" {
		t.Fatalf("voluntary denied: %q", code)
	}
	if e.Meta().ReincarnationCount != 1 {
		t.Fatalf("reincarnations = %d want 1", e.Meta().ReincarnationCount)
	}
}

func TestMandatoryRequestOffGate(t *testing.T) {
	e := newTestEngine(t)
	if code := e.RequestReincarnate(TriggerMandatory); code != protocol.ErrLocked {
		t.Fatalf("got %q want %q", code, protocol.ErrLocked)
	}
	if code := e.RequestReincarnate(Trigger("SIDEWAYS")); code != protocol.ErrBadMode {
		t.Fatalf("got %q want %q", code, protocol.ErrBadMode)
	}
}

func TestSpeedUnlockLadder(t *testing.T) {
	e := newTestEngine(t)

	if code := e.SetSpeed(2); code != protocol.ErrSpeedLocked {
		t.Fatalf("locked speed accepted: got %q", code)
	}
	if code := e.SetSpeed(0); code != "" {
		t.Fatalf("pause denied: %q", code)
	}
	if code := e.SetSpeed(math.NaN()); code != protocol.ErrBadRequest {
		t.Fatalf("NaN speed: got %q want %q", code, protocol.ErrBadRequest)
	}

	// First reincarnation unlocks 2x.
	e.meta.VoluntaryUnlocked = true
	e.run.RealmIndex = e.cfg.Gate.VoluntaryMinRealm
	if code := e.RequestReincarnate(TriggerVoluntary); code != "" {
		t.Fatalf("reincarnate: %q", code)
	}
	if code := e.SetSpeed(2); code != "" {
		t.Fatalf("2x still locked after first reincarnation: %q", code)
	}
	if code := e.SetSpeed(10); code != protocol.ErrSpeedLocked {
		t.Fatalf("10x unlocked too early: got %q", code)
	}
}

func TestPauseFreezesEverything(t *testing.T) {
	e := newTestEngine(t)
	e.run.QPSBase = 5
	if code := e.SetSpeed(0); code != "" {
		t.Fatalf("pause: %q", code)
	}
	e.Tick(100)
	e.Click()
	run := e.Run()
	if run.Qi != 0 || run.AgeYears != 0 {
		t.Fatalf("paused engine progressed: qi=%v age=%v", run.Qi, run.AgeYears)
	}
}

func TestKarmaNeverDecreases(t *testing.T) {
	var m MetaState
	m.AddKarma(10)
	for _, bad := range []float64{-5, math.NaN(), math.Inf(1)} {
		m.AddKarma(bad)
	}
	if m.Karma() != 10 {
		t.Fatalf("karma = %v want 10", m.Karma())
	}
}

func TestQiCeilingSaturates(t *testing.T) {
	e := newTestEngine(t)
	e.run.Qi = e.cfg.QiCeiling
	e.run.LifetimeQi = e.cfg.QiCeiling
	e.run.QPSBase = 1e10
	e.Tick(1)
	run := e.Run()
	if run.Qi != e.cfg.QiCeiling || run.LifetimeQi != e.cfg.QiCeiling {
		t.Fatalf("ceiling breached: qi=%v lifetime=%v", run.Qi, run.LifetimeQi)
	}
}

func TestStateDigestTracksState(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	if a.StateDigest() != b.StateDigest() {
		t.Fatal("fresh engines disagree")
	}
	a.Click()
	if a.StateDigest() == b.StateDigest() {
		t.Fatal("digest blind to qi change")
	}
	b.Click()
	if a.StateDigest() != b.StateDigest() {
		t.Fatal("identical histories diverge")
	}
}

func TestFullResetClearsKarma(t *testing.T) {
	e := newTestEngine(t)
	e.meta.AddKarma(500)
	e.meta.ReincarnationCount = 7
	e.meta.GateCleared = true
	e.FullReset()

	meta := e.Meta()
	if meta.Karma() != 0 || meta.ReincarnationCount != 0 || meta.GateCleared {
		t.Fatalf("reset incomplete: %+v karma=%v", meta, meta.Karma())
	}
	if meta.SaveID != "test-save" {
		t.Fatalf("reset changed save id: %q", meta.SaveID)
	}
}
