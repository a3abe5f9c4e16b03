// Package gametest drives the engine strictly through its exported API, the
// way the server host does. Preconditions are seeded via save documents
// rather than by reaching into engine internals, so these tests double as
// coverage of the import path.
package gametest

import (
	"testing"
	"time"

	"samsara.game/internal/persistence/save"
	"samsara.game/internal/sim/game"
	"samsara.game/internal/sim/tuning"
)

type Harness struct {
	T    *testing.T
	Tune tuning.Tuning
	Eng  *game.Engine

	clock time.Time
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	tune := tuning.Defaults()
	h := &Harness{T: t, Tune: tune, clock: time.Unix(1_000_000, 0)}
	eng, err := game.New(game.Config{Tuning: &h.Tune, SaveID: "harness"})
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	h.Eng = eng
	return h
}

// Seed replaces the engine state from a save document built by the test.
func (h *Harness) Seed(doc save.SaveV1) {
	h.T.Helper()
	if doc.Header.Version == 0 {
		doc.Header.Version = save.Version
	}
	if doc.Header.SaveID == "" {
		doc.Header.SaveID = "harness"
	}
	h.Eng.ImportSave(doc)
}

// Tick advances the engine by elapsed seconds on the harness clock.
func (h *Harness) Tick(elapsedSeconds float64) {
	h.clock = h.clock.Add(time.Duration(elapsedSeconds * float64(time.Second)))
	h.Eng.TickAt(elapsedSeconds, h.clock)
}

// ClickN performs n clicks.
func (h *Harness) ClickN(n int) {
	for i := 0; i < n; i++ {
		h.Eng.Click()
	}
}

// MustBuy fails the test if the purchase is denied.
func (h *Harness) MustBuy(id string) {
	h.T.Helper()
	if code := h.Eng.BuySkill(id); code != "" {
		h.T.Fatalf("BuySkill(%s) denied: %s", id, code)
	}
}

// MustBreakthrough fails the test if the breakthrough is denied.
func (h *Harness) MustBreakthrough() {
	h.T.Helper()
	if code := h.Eng.Breakthrough(); code != "" {
		h.T.Fatalf("Breakthrough denied: %s", code)
	}
}

// Suspend records a session snapshot and Resume replays the gap.
func (h *Harness) Suspend() {
	h.Eng.OnSuspend(h.clock)
}

func (h *Harness) Resume(gap time.Duration) game.OfflineReport {
	h.clock = h.clock.Add(gap)
	return h.Eng.OnResume(h.clock)
}
