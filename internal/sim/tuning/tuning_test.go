package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	tn := Defaults()
	tn.Normalize()
	if err := tn.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if tn.Realms[len(tn.Realms)-1].LifespanYears != 0 {
		t.Fatalf("terminal realm must be infinite")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	tn, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if tn.TickRateHz != 2 || tn.YearsPerSecond != 1.0 {
		t.Fatalf("defaults not applied: tick=%d yps=%v", tn.TickRateHz, tn.YearsPerSecond)
	}
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := `
years_per_second: 2.5
offline:
  cap_hours: 6
  multiplier: 0.5
gate:
  realm_index: 3
  stage: 10
  voluntary_min_realm: 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tn, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tn.YearsPerSecond != 2.5 {
		t.Fatalf("years_per_second: got %v want 2.5", tn.YearsPerSecond)
	}
	if tn.Offline.CapHours != 6 || tn.Offline.Multiplier != 0.5 {
		t.Fatalf("offline override lost: %+v", tn.Offline)
	}
	if tn.Gate.RealmIndex != 3 {
		t.Fatalf("gate override lost: %+v", tn.Gate)
	}
	// Untouched sections keep defaults.
	if len(tn.Realms) != 9 || len(tn.Skills) != 8 {
		t.Fatalf("defaults clobbered: realms=%d skills=%d", len(tn.Realms), len(tn.Skills))
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"empty realms", func(tn *Tuning) { tn.Realms = nil }},
		{"non-terminal infinite", func(tn *Tuning) { tn.Realms[0].LifespanYears = 0 }},
		{"finite terminal", func(tn *Tuning) { tn.Realms[len(tn.Realms)-1].LifespanYears = 100 }},
		{"non-positive scale", func(tn *Tuning) { tn.StageReq.StageScale = 0 }},
		{"negative amplitude", func(tn *Tuning) { tn.SoftCaps.Production.Amplitude = -1 }},
		{"gate outside table", func(tn *Tuning) { tn.Gate.RealmIndex = 99 }},
		{"duplicate skill id", func(tn *Tuning) { tn.Skills[1].ID = tn.Skills[0].ID }},
		{"bad skill kind", func(tn *Tuning) { tn.Skills[0].Kind = "mana" }},
		{"death penalty above one", func(tn *Tuning) { tn.Karma.DeathPenalty = 2 }},
	}
	for _, tc := range cases {
		tn := Defaults()
		tc.mutate(&tn)
		if err := tn.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestDigestStable(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.Digest() != b.Digest() {
		t.Fatalf("digest must be stable for identical tuning")
	}
	b.Karma.Divisor = 2e6
	if a.Digest() == b.Digest() {
		t.Fatalf("digest must change when tuning changes")
	}
}
