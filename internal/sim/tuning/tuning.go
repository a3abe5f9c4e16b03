package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning is the balance configuration for the engine. It is loaded once at
// startup and treated as immutable afterwards; the engine only reads it.
type Tuning struct {
	YearsPerSecond     float64 `yaml:"years_per_second" json:"years_per_second"`
	TickRateHz         int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	AutosaveEveryTicks int     `yaml:"autosave_every_ticks" json:"autosave_every_ticks"`
	QiCeiling          float64 `yaml:"qi_ceiling" json:"qi_ceiling"`

	StageReq StageReq    `yaml:"stage_req" json:"stage_req"`
	Realms   []RealmSpec `yaml:"realms" json:"realms"`
	Cycles   Cycles      `yaml:"cycles" json:"cycles"`
	SoftCaps SoftCaps    `yaml:"soft_caps" json:"soft_caps"`
	Karma    Karma       `yaml:"karma" json:"karma"`
	Gate     Gate        `yaml:"gate" json:"gate"`
	Offline  Offline     `yaml:"offline" json:"offline"`
	Speeds   Speeds      `yaml:"speeds" json:"speeds"`
	Skills   []SkillSpec `yaml:"skills" json:"skills"`
	Clicks   Clicks      `yaml:"clicks" json:"clicks"`
}

type StageReq struct {
	RealmBase  float64 `yaml:"realm_base" json:"realm_base"`
	RealmScale float64 `yaml:"realm_scale" json:"realm_scale"`
	StageScale float64 `yaml:"stage_scale" json:"stage_scale"`
}

// RealmSpec describes one realm tier. LifespanYears of 0 is the infinite
// sentinel, legal only for the terminal realm.
type RealmSpec struct {
	Name          string  `yaml:"name" json:"name"`
	LifespanYears float64 `yaml:"lifespan_years" json:"lifespan_years"`
}

type Cycles struct {
	SpiritStartIndex     int     `yaml:"spirit_start_index" json:"spirit_start_index"`
	MortalBonus          float64 `yaml:"mortal_bonus" json:"mortal_bonus"`
	SpiritBonus          float64 `yaml:"spirit_bonus" json:"spirit_bonus"`
	CycleKarmaMultiplier float64 `yaml:"cycle_karma_multiplier" json:"cycle_karma_multiplier"`
}

// SoftCap is one exponential-approach-to-asymptote multiplier:
// 1 + Amplitude*(1 - e^(-Rate*karma)).
type SoftCap struct {
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
	Rate      float64 `yaml:"rate" json:"rate"`
}

type SoftCaps struct {
	Production SoftCap `yaml:"production" json:"production"`
	Lifespan   SoftCap `yaml:"lifespan" json:"lifespan"`
	StageEase  SoftCap `yaml:"stage_ease" json:"stage_ease"`
}

type Karma struct {
	Divisor      float64 `yaml:"divisor" json:"divisor"`
	RealmFactor  float64 `yaml:"realm_factor" json:"realm_factor"`
	Min          float64 `yaml:"min" json:"min"`
	DeathPenalty float64 `yaml:"death_penalty" json:"death_penalty"`
}

type Gate struct {
	RealmIndex        int `yaml:"realm_index" json:"realm_index"`
	Stage             int `yaml:"stage" json:"stage"`
	VoluntaryMinRealm int `yaml:"voluntary_min_realm" json:"voluntary_min_realm"`
}

type Offline struct {
	CapHours   float64 `yaml:"cap_hours" json:"cap_hours"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

type Speeds struct {
	Base    []float64     `yaml:"base" json:"base"`
	Unlocks []SpeedUnlock `yaml:"unlocks" json:"unlocks"`
}

type SpeedUnlock struct {
	Speed          float64 `yaml:"speed" json:"speed"`
	Reincarnations int     `yaml:"reincarnations" json:"reincarnations"`
}

type SkillSpec struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Kind      string  `yaml:"kind" json:"kind"` // qpc | qps | qpc_mult | qps_mult
	BaseCost  float64 `yaml:"base_cost" json:"base_cost"`
	CostScale float64 `yaml:"cost_scale" json:"cost_scale"`
	Effect    float64 `yaml:"effect" json:"effect"`
	MaxLevel  int     `yaml:"max_level" json:"max_level"`
}

type Clicks struct {
	BaseQPC float64 `yaml:"base_qpc" json:"base_qpc"`
	BaseQPS float64 `yaml:"base_qps" json:"base_qps"`
}

func Defaults() Tuning {
	return Tuning{
		YearsPerSecond:     1.0,
		TickRateHz:         2,
		AutosaveEveryTicks: 60,
		QiCeiling:          1e300,
		StageReq: StageReq{
			RealmBase:  100,
			RealmScale: 22.0,
			StageScale: 1.75,
		},
		Realms: []RealmSpec{
			{Name: "Body Refining", LifespanYears: 80},
			{Name: "Qi Condensation", LifespanYears: 120},
			{Name: "Foundation Establishment", LifespanYears: 200},
			{Name: "Core Formation", LifespanYears: 400},
			{Name: "Nascent Soul", LifespanYears: 800},
			{Name: "Spirit Severing", LifespanYears: 2000},
			{Name: "Void Refinement", LifespanYears: 5000},
			{Name: "Mahayana", LifespanYears: 20000},
			{Name: "Boundless Immortal", LifespanYears: 0},
		},
		Cycles: Cycles{
			SpiritStartIndex:     5,
			MortalBonus:          0.25,
			SpiritBonus:          0.75,
			CycleKarmaMultiplier: 2.0,
		},
		SoftCaps: SoftCaps{
			Production: SoftCap{Amplitude: 1.2, Rate: 0.010},
			Lifespan:   SoftCap{Amplitude: 1.5, Rate: 0.006},
			StageEase:  SoftCap{Amplitude: 0.9, Rate: 0.008},
		},
		Karma: Karma{
			Divisor:      1e6,
			RealmFactor:  8,
			Min:          1,
			DeathPenalty: 0.5,
		},
		Gate: Gate{
			RealmIndex:        4,
			Stage:             10,
			VoluntaryMinRealm: 2,
		},
		Offline: Offline{
			CapHours:   12,
			Multiplier: 0.8,
		},
		Speeds: Speeds{
			Base: []float64{1},
			Unlocks: []SpeedUnlock{
				{Speed: 2, Reincarnations: 1},
				{Speed: 3, Reincarnations: 2},
				{Speed: 5, Reincarnations: 5},
				{Speed: 10, Reincarnations: 10},
			},
		},
		Skills: []SkillSpec{
			{ID: "breath_control", Name: "Breath Control", Kind: "qps", BaseCost: 15, CostScale: 1.15, Effect: 0.5, MaxLevel: 200},
			{ID: "meditation", Name: "Meditation", Kind: "qps", BaseCost: 120, CostScale: 1.18, Effect: 4, MaxLevel: 200},
			{ID: "spirit_well", Name: "Spirit Well", Kind: "qps", BaseCost: 2400, CostScale: 1.22, Effect: 40, MaxLevel: 150},
			{ID: "iron_palm", Name: "Iron Palm", Kind: "qpc", BaseCost: 25, CostScale: 1.16, Effect: 1, MaxLevel: 200},
			{ID: "sword_intent", Name: "Sword Intent", Kind: "qpc", BaseCost: 900, CostScale: 1.20, Effect: 12, MaxLevel: 150},
			{ID: "dao_comprehension", Name: "Dao Comprehension", Kind: "qps_mult", BaseCost: 10000, CostScale: 1.6, Effect: 0.25, MaxLevel: 20},
			{ID: "heavenly_fist", Name: "Heavenly Fist", Kind: "qpc_mult", BaseCost: 8000, CostScale: 1.6, Effect: 0.25, MaxLevel: 20},
			{ID: "inner_furnace", Name: "Inner Furnace", Kind: "qps_mult", BaseCost: 250000, CostScale: 2.0, Effect: 1.0, MaxLevel: 10},
		},
		Clicks: Clicks{
			BaseQPC: 1.0,
			BaseQPS: 0.0,
		},
	}
}

// Load reads tuning from a yaml file. Fields absent from the file keep their
// defaults; the result is normalized and validated.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t.YearsPerSecond <= 0 {
		t.YearsPerSecond = 1.0
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 2
	}
	if t.AutosaveEveryTicks <= 0 {
		t.AutosaveEveryTicks = 60
	}
	if t.QiCeiling <= 0 || math.IsInf(t.QiCeiling, 0) || math.IsNaN(t.QiCeiling) {
		t.QiCeiling = 1e300
	}
	if len(t.Speeds.Base) == 0 {
		t.Speeds.Base = []float64{1}
	}
	sort.Float64s(t.Speeds.Base)
	sort.Slice(t.Speeds.Unlocks, func(i, j int) bool {
		return t.Speeds.Unlocks[i].Reincarnations < t.Speeds.Unlocks[j].Reincarnations
	})
	if t.Offline.CapHours < 0 {
		t.Offline.CapHours = 0
	}
	if t.Offline.Multiplier < 0 {
		t.Offline.Multiplier = 0
	}
	if t.Karma.Min < 0 {
		t.Karma.Min = 0
	}
	if t.Karma.DeathPenalty < 0 {
		t.Karma.DeathPenalty = 0
	}
	for i := range t.Skills {
		if t.Skills[i].MaxLevel <= 0 {
			t.Skills[i].MaxLevel = 1
		}
	}
}

func (t Tuning) Validate() error {
	if len(t.Realms) == 0 {
		return fmt.Errorf("realms: empty table")
	}
	for i, r := range t.Realms {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("realms[%d]: empty name", i)
		}
		if r.LifespanYears < 0 || math.IsNaN(r.LifespanYears) {
			return fmt.Errorf("realms[%d] %q: bad lifespan_years %v", i, r.Name, r.LifespanYears)
		}
		if r.LifespanYears == 0 && i != len(t.Realms)-1 {
			return fmt.Errorf("realms[%d] %q: infinite lifespan on non-terminal realm", i, r.Name)
		}
	}
	if last := t.Realms[len(t.Realms)-1]; last.LifespanYears != 0 {
		return fmt.Errorf("realms: terminal realm %q must be infinite (lifespan_years: 0)", last.Name)
	}
	if t.StageReq.RealmBase <= 0 || t.StageReq.RealmScale <= 0 || t.StageReq.StageScale <= 0 {
		return fmt.Errorf("stage_req: scales must be positive")
	}
	if t.Cycles.SpiritStartIndex < 1 || t.Cycles.SpiritStartIndex >= len(t.Realms) {
		return fmt.Errorf("cycles: spirit_start_index %d outside realm table", t.Cycles.SpiritStartIndex)
	}
	if t.Cycles.CycleKarmaMultiplier <= 0 {
		return fmt.Errorf("cycles: cycle_karma_multiplier must be positive")
	}
	for _, sc := range []struct {
		name string
		cap  SoftCap
	}{
		{"production", t.SoftCaps.Production},
		{"lifespan", t.SoftCaps.Lifespan},
		{"stage_ease", t.SoftCaps.StageEase},
	} {
		if sc.cap.Amplitude < 0 || sc.cap.Rate <= 0 {
			return fmt.Errorf("soft_caps.%s: amplitude must be >= 0 and rate > 0", sc.name)
		}
	}
	if t.Karma.Divisor <= 0 {
		return fmt.Errorf("karma: divisor must be positive")
	}
	if t.Karma.DeathPenalty > 1 {
		return fmt.Errorf("karma: death_penalty must be <= 1")
	}
	if t.Gate.RealmIndex < 0 || t.Gate.RealmIndex >= len(t.Realms) {
		return fmt.Errorf("gate: realm_index %d outside realm table", t.Gate.RealmIndex)
	}
	if t.Gate.Stage < 1 || t.Gate.Stage > 10 {
		return fmt.Errorf("gate: stage %d outside 1..10", t.Gate.Stage)
	}
	if t.Gate.VoluntaryMinRealm < 0 || t.Gate.VoluntaryMinRealm >= len(t.Realms) {
		return fmt.Errorf("gate: voluntary_min_realm %d outside realm table", t.Gate.VoluntaryMinRealm)
	}
	seen := map[string]struct{}{}
	for i, s := range t.Skills {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("skills[%d]: empty id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("skills: duplicate id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		switch s.Kind {
		case "qpc", "qps", "qpc_mult", "qps_mult":
		default:
			return fmt.Errorf("skills[%s]: unknown kind %q", s.ID, s.Kind)
		}
		if s.BaseCost <= 0 || s.CostScale < 1 {
			return fmt.Errorf("skills[%s]: base_cost must be > 0 and cost_scale >= 1", s.ID)
		}
		if s.Effect < 0 {
			return fmt.Errorf("skills[%s]: negative effect", s.ID)
		}
	}
	for i := 1; i < len(t.Speeds.Unlocks); i++ {
		if t.Speeds.Unlocks[i].Reincarnations == t.Speeds.Unlocks[i-1].Reincarnations &&
			t.Speeds.Unlocks[i].Speed == t.Speeds.Unlocks[i-1].Speed {
			return fmt.Errorf("speeds: duplicate unlock %v", t.Speeds.Unlocks[i])
		}
	}
	for _, u := range t.Speeds.Unlocks {
		if u.Speed <= 0 || u.Reincarnations < 0 {
			return fmt.Errorf("speeds: bad unlock %+v", u)
		}
	}
	if t.Clicks.BaseQPC < 0 || t.Clicks.BaseQPS < 0 {
		return fmt.Errorf("clicks: base rates must be >= 0")
	}
	return nil
}

// Digest is a sha256 over the canonical JSON encoding of the effective tuning.
// Clients compare it against their cached copy.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
