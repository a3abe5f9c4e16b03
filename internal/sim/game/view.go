package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"

	"samsara.game/internal/protocol"
)

// View projects the engine into the wire STATE body. It is read-only.
func (e *Engine) View() protocol.StateBody {
	lifespan := e.run.LifespanYears
	infinite := math.IsInf(lifespan, 1)
	if infinite {
		lifespan = 0
	}

	skills := make([]protocol.SkillLevel, 0, len(e.cat.Skills))
	for i := range e.cat.Skills {
		sk := &e.cat.Skills[i]
		lvl := e.run.Skills[sk.ID]
		next := 0.0
		if lvl < sk.MaxLevel {
			next = SkillCost(sk, lvl)
		}
		skills = append(skills, protocol.SkillLevel{ID: sk.ID, Level: lvl, NextCost: next})
	}

	return protocol.StateBody{
		Phase:      string(e.life.Phase),
		Cycle:      string(e.run.Cycle),
		RealmIndex: e.run.RealmIndex,
		RealmName:  e.cat.Realms[e.run.RealmIndex].Name,
		Stage:      e.run.Stage,

		Qi:         e.run.Qi,
		LifetimeQi: e.run.LifetimeQi,
		QPC:        ProductionRate(e.cfg, e.cat, RateQPC, &e.run, e.meta.Karma()),
		QPS:        ProductionRate(e.cfg, e.cat, RateQPS, &e.run, e.meta.Karma()),

		AgeYears:         e.run.AgeYears,
		LifespanYears:    lifespan,
		LifespanInfinite: infinite,

		StageRequirement: StageRequirement(e.cfg, e.run.RealmIndex, e.run.Stage, e.meta.Karma()),

		Karma:            e.meta.Karma(),
		Reincarnations:   e.meta.ReincarnationCount,
		Deaths:           e.meta.DeathCount,
		CycleTransitions: e.meta.CycleTransitions,

		Speed:          e.speed,
		UnlockedSpeeds: append([]float64(nil), e.meta.UnlockedSpeeds...),

		GateCleared:       e.meta.GateCleared,
		VoluntaryUnlocked: e.meta.VoluntaryUnlocked,
		AtGate:            e.atMandatoryGate(),
		CanReincarnate:    e.voluntaryAllowed() || e.atMandatoryGate(),

		Skills: skills,
	}
}

type digestSkill struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

type digestState struct {
	Qi             float64       `json:"qi"`
	LifetimeQi     float64       `json:"lifetime_qi"`
	QPCBase        float64       `json:"qpc_base"`
	QPSBase        float64       `json:"qps_base"`
	RealmIndex     int           `json:"realm_index"`
	Stage          int           `json:"stage"`
	AgeYears       float64       `json:"age_years"`
	LifespanYears  float64       `json:"lifespan_years"` // 0 encodes infinite
	Cycle          Cycle         `json:"cycle"`
	Skills         []digestSkill `json:"skills"`
	Karma          float64       `json:"karma"`
	Reincarnations int           `json:"reincarnations"`
	Deaths         int           `json:"deaths"`
	CycleTrans     int           `json:"cycle_transitions"`
	Speeds         []float64     `json:"unlocked_speeds"`
	GateCleared    bool          `json:"gate_cleared"`
	VoluntaryOK    bool          `json:"voluntary_unlocked"`
	Phase          Phase         `json:"phase"`
}

// StateDigest is a sha256 over a canonical JSON encoding of run and meta
// state. Equal digests mean equal game state; wall-clock timestamps are
// deliberately excluded so replayed and live runs can compare.
func (e *Engine) StateDigest() string {
	skills := make([]digestSkill, 0, len(e.run.Skills))
	for id, lvl := range e.run.Skills {
		if lvl == 0 {
			continue
		}
		skills = append(skills, digestSkill{ID: id, Level: lvl})
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].ID < skills[j].ID })

	lifespan := e.run.LifespanYears
	if math.IsInf(lifespan, 1) {
		lifespan = 0
	}

	d := digestState{
		Qi:             e.run.Qi,
		LifetimeQi:     e.run.LifetimeQi,
		QPCBase:        e.run.QPCBase,
		QPSBase:        e.run.QPSBase,
		RealmIndex:     e.run.RealmIndex,
		Stage:          e.run.Stage,
		AgeYears:       e.run.AgeYears,
		LifespanYears:  lifespan,
		Cycle:          e.run.Cycle,
		Skills:         skills,
		Karma:          e.meta.Karma(),
		Reincarnations: e.meta.ReincarnationCount,
		Deaths:         e.meta.DeathCount,
		CycleTrans:     e.meta.CycleTransitions,
		Speeds:         e.meta.UnlockedSpeeds,
		GateCleared:    e.meta.GateCleared,
		VoluntaryOK:    e.meta.VoluntaryUnlocked,
		Phase:          e.life.Phase,
	}
	b, _ := json.Marshal(d)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
