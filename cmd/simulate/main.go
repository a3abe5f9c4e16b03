// Command simulate drives the engine headless: a scripted player plays for a
// configured stretch of game time, then prints where the run ended up. With
// -verify_offline it also checks that a lump offline replay lands within
// rounding distance of per-second ticking.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"samsara.game/internal/protocol"
	"samsara.game/internal/sim/game"
	"samsara.game/internal/sim/tuning"
)

func main() {
	var (
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
		days          = flag.Float64("days", 1, "real-time days to simulate")
		speed         = flag.Float64("speed", 1, "requested speed multiplier (falls back to 1x if locked)")
		cps           = flag.Float64("cps", 2, "clicks per second the scripted player performs")
		strategy      = flag.String("strategy", "greedy", "player strategy: greedy | idle")
		stepSeconds   = flag.Float64("seconds_per_step", 1, "simulated seconds per engine tick")
		verifyOffline = flag.Float64("verify_offline", 0, "if > 0, verify a lump offline replay of this many hours against per-second ticking")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[simulate] ", log.LstdFlags)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	eng, err := game.New(game.Config{
		Tuning: &tune,
		SaveID: uuid.NewString(),
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if code := eng.SetSpeed(*speed); code != "" {
		logger.Printf("speed %gx unavailable (%s); running at 1x", *speed, code)
	}

	total := *days * 86400
	step := *stepSeconds
	if step <= 0 {
		step = 1
	}
	clickCarry := 0.0

	start := time.Now()
	for at := 0.0; at < total; at += step {
		if *strategy == "greedy" {
			playGreedy(eng)
		}
		clickCarry += *cps * step
		for clickCarry >= 1 {
			eng.Click()
			clickCarry--
		}
		eng.Tick(step)
	}

	v := eng.View()
	meta := eng.Meta()
	logger.Printf("simulated %s of play in %s", humanDuration(total), time.Since(start).Round(time.Millisecond))
	logger.Printf("realm=%d (%s) stage=%d cycle=%s", v.RealmIndex, v.RealmName, v.Stage, v.Cycle)
	logger.Printf("qi=%s lifetime_qi=%s qps=%s",
		humanize.SIWithDigits(v.Qi, 2, ""), humanize.SIWithDigits(v.LifetimeQi, 2, ""), humanize.SIWithDigits(v.QPS, 2, ""))
	logger.Printf("karma=%s reincarnations=%d deaths=%d cycle_transitions=%d",
		humanize.CommafWithDigits(v.Karma, 0), v.Reincarnations, v.Deaths, v.CycleTransitions)
	logger.Printf("age=%.1fy lifespan=%s gate_cleared=%v", v.AgeYears, lifespanLabel(v), meta.GateCleared)
	logger.Printf("state_digest=%s", eng.StateDigest())

	if *verifyOffline > 0 {
		if err := verifyOfflineReplay(&tune, eng, *verifyOffline, logger); err != nil {
			logger.Fatalf("offline verification FAILED: %v", err)
		}
		logger.Printf("offline verification OK (%.1fh)", *verifyOffline)
	}
}

// playGreedy buys whatever is affordable, attempts breakthroughs, and
// reincarnates the moment the engine allows it.
func playGreedy(eng *game.Engine) {
	v := eng.View()
	if v.Phase != string(game.PhaseLiving) {
		return
	}
	if v.CanReincarnate {
		if v.AtGate {
			eng.RequestReincarnate(game.TriggerMandatory)
		} else {
			eng.RequestReincarnate(game.TriggerVoluntary)
		}
		return
	}
	for _, sk := range v.Skills {
		if sk.NextCost > 0 && sk.NextCost <= v.Qi {
			if eng.BuySkill(sk.ID) == "" {
				v = eng.View()
			}
		}
	}
	if v.StageRequirement > 0 && v.Qi >= v.StageRequirement {
		eng.Breakthrough()
	}
}

// verifyOfflineReplay replays a gap two ways from the same starting point:
// once as a single lump through the resume path, once as per-second ticks
// scaled by the offline multiplier. The two must agree within floating
// rounding.
func verifyOfflineReplay(tune *tuning.Tuning, src *game.Engine, hours float64, logger *log.Logger) error {
	base := src.ExportSave(time.Now())

	mk := func() (*game.Engine, error) {
		e, err := game.New(game.Config{Tuning: tune, SaveID: base.Header.SaveID})
		if err != nil {
			return nil, err
		}
		e.ImportSave(base)
		return e, nil
	}

	lump, err := mk()
	if err != nil {
		return err
	}
	stepwise, err := mk()
	if err != nil {
		return err
	}

	suspendAt := time.Now()
	gap := time.Duration(hours * float64(time.Hour))
	lump.OnSuspend(suspendAt)
	report := lump.OnResume(suspendAt.Add(gap))
	if !report.Replayed {
		return fmt.Errorf("lump replay did not run")
	}

	// Per-second ticking over the same capped window, scaled by the offline
	// multiplier the lump path applies.
	before := stepwise.Run()
	for i := int64(0); i < report.CappedSeconds; i++ {
		stepwise.Tick(1)
	}
	after := stepwise.Run()

	if report.Died {
		if stepwise.Meta().DeathCount == 0 {
			return fmt.Errorf("lump replay died but stepwise run survived")
		}
		logger.Printf("both paths ended the run (lifespan exhausted)")
		return nil
	}

	wantQi := (after.LifetimeQi - before.LifetimeQi) * tune.Offline.Multiplier
	if !withinTolerance(report.QiGained, wantQi, 1e-6) {
		return fmt.Errorf("qi mismatch: lump=%.6g stepwise=%.6g", report.QiGained, wantQi)
	}
	wantYears := after.AgeYears - before.AgeYears
	if !withinTolerance(report.YearsPassed, wantYears, 1e-6) {
		return fmt.Errorf("years mismatch: lump=%.6g stepwise=%.6g", report.YearsPassed, wantYears)
	}
	return nil
}

func withinTolerance(a, b, rel float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= rel*math.Max(scale, 1)
}

func lifespanLabel(v protocol.StateBody) string {
	if v.LifespanInfinite {
		return "infinite"
	}
	return humanize.CommafWithDigits(v.LifespanYears, 0) + "y"
}

func humanDuration(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}
