package gametest

import (
	"testing"

	"samsara.game/internal/persistence/save"
	"samsara.game/internal/sim/game"
)

// A fresh mortal clicks their way to the first skill and the first
// breakthrough, exactly as a player would.
func TestFirstLifeOpening(t *testing.T) {
	h := NewHarness(t)

	// 15 clicks affords breath_control.
	h.ClickN(15)
	h.MustBuy("breath_control")
	if got := h.Eng.View().Skills; got[0].Level != 1 {
		t.Fatalf("skill level = %d want 1", got[0].Level)
	}

	// Click up to the first stage requirement (100 qi at karma 0).
	h.ClickN(100)
	h.MustBreakthrough()
	v := h.Eng.View()
	if v.RealmIndex != 0 || v.Stage != 2 {
		t.Fatalf("after first breakthrough: realm %d stage %d", v.RealmIndex, v.Stage)
	}
}

// Aging out of the first realm produces a death, half karma, and a fresh run.
func TestDeathEndsFirstLife(t *testing.T) {
	h := NewHarness(t)
	h.ClickN(50)

	// Tick until the lifespan runs out, stopping at the death so the fresh
	// run's state is observed before it starts aging again.
	lifespan := h.Eng.View().LifespanYears
	for i := 0.0; i < lifespan+5 && h.Eng.View().Deaths == 0; i++ {
		h.Tick(1)
	}

	v := h.Eng.View()
	if v.Deaths != 1 || v.Reincarnations != 0 {
		t.Fatalf("deaths=%d reincarnations=%d want 1, 0", v.Deaths, v.Reincarnations)
	}
	if v.Karma <= 0 {
		t.Fatalf("karma = %v want positive", v.Karma)
	}
	if v.AgeYears != 0 || v.Qi != 0 {
		t.Fatalf("fresh run: age=%v qi=%v", v.AgeYears, v.Qi)
	}
	if v.Phase != "LIVING" {
		t.Fatalf("phase = %s want LIVING", v.Phase)
	}
	// Death never opens the gate.
	if v.GateCleared || v.VoluntaryUnlocked {
		t.Fatal("death cleared the gate")
	}
}

// Seeded at the wall tier, the next tick fires the mandatory transition and
// permanently opens voluntary reincarnation.
func TestMandatoryGateScenario(t *testing.T) {
	h := NewHarness(t)
	h.Seed(save.SaveV1{
		Run: save.RunV1{
			LifetimeQi: 9e8,
			RealmIndex: h.Tune.Gate.RealmIndex,
			Stage:      h.Tune.Gate.Stage,
		},
	})

	if v := h.Eng.View(); !v.AtGate || !v.CanReincarnate {
		t.Fatalf("seeded view: at_gate=%v can_reincarnate=%v", v.AtGate, v.CanReincarnate)
	}

	h.Tick(1)

	v := h.Eng.View()
	if v.Reincarnations != 1 || v.Deaths != 0 {
		t.Fatalf("reincarnations=%d deaths=%d want 1, 0", v.Reincarnations, v.Deaths)
	}
	if !v.GateCleared || !v.VoluntaryUnlocked {
		t.Fatal("gate not opened")
	}
	if v.CycleTransitions != 1 {
		t.Fatalf("cycle transitions = %d want 1", v.CycleTransitions)
	}
	if v.RealmIndex != 0 || v.Stage != 1 {
		t.Fatalf("fresh run: realm %d stage %d", v.RealmIndex, v.Stage)
	}
	// The first reincarnation unlocks 2x.
	if code := h.Eng.SetSpeed(2); code != "" {
		t.Fatalf("2x locked after gate: %s", code)
	}
}

// A second pass over the gate tier must not fire the mandatory transition
// again: the gate is one-time.
func TestGateIsOneTime(t *testing.T) {
	h := NewHarness(t)
	h.Seed(save.SaveV1{
		Run: save.RunV1{
			RealmIndex: h.Tune.Gate.RealmIndex,
			Stage:      h.Tune.Gate.Stage,
		},
		Meta: save.MetaV1{
			GateCleared:        true,
			VoluntaryUnlocked:  true,
			ReincarnationCount: 1,
		},
	})

	if v := h.Eng.View(); v.AtGate {
		t.Fatal("cleared gate still reads as a wall")
	}
	reincBefore := h.Eng.View().Reincarnations
	h.Tick(1)
	if got := h.Eng.View().Reincarnations; got != reincBefore {
		t.Fatalf("cleared gate fired again: %d -> %d", reincBefore, got)
	}
}

// Voluntary reincarnation trades the current life for karma at full rate.
func TestVoluntaryReincarnationScenario(t *testing.T) {
	h := NewHarness(t)
	h.Seed(save.SaveV1{
		Run: save.RunV1{
			LifetimeQi: 16e6,
			RealmIndex: 3,
			Stage:      5,
		},
		Meta: save.MetaV1{GateCleared: true, VoluntaryUnlocked: true, ReincarnationCount: 1},
	})

	karmaBefore := h.Eng.View().Karma
	if code := h.Eng.RequestReincarnate(game.TriggerVoluntary); code != "" {
		t.Fatalf("voluntary denied: %s", code)
	}
	v := h.Eng.View()
	if v.Karma <= karmaBefore {
		t.Fatalf("karma did not grow: %v -> %v", karmaBefore, v.Karma)
	}
	if v.Reincarnations != 2 {
		t.Fatalf("reincarnations = %d want 2", v.Reincarnations)
	}
}
