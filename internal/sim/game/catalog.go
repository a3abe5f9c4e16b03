package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"samsara.game/internal/sim/tuning"
)

// Realm is one resolved tier: lifespan sentinel expanded and cycle membership
// precomputed from the tuning cycle boundary.
type Realm struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	LifespanYears float64 `json:"lifespan_years"` // 0 means infinite on the wire
	Cycle         Cycle   `json:"cycle"`
}

// Skill is one purchasable per-run upgrade.
type Skill struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	BaseCost  float64 `json:"base_cost"`
	CostScale float64 `json:"cost_scale"`
	Effect    float64 `json:"effect"`
	MaxLevel  int     `json:"max_level"`
}

// Catalog is derived from tuning by a pure function; it is reconstructed,
// never patched in place.
type Catalog struct {
	Realms   []Realm
	Skills   []Skill
	SkillIdx map[string]*Skill

	digest string
}

func (c *Catalog) Digest() string { return c.digest }

// Skill returns the catalog entry for id, or nil.
func (c *Catalog) Skill(id string) *Skill { return c.SkillIdx[id] }

// DeriveCatalog resolves the tuning tables into an immutable catalog.
func DeriveCatalog(t *tuning.Tuning) (*Catalog, error) {
	if t == nil {
		return nil, fmt.Errorf("derive catalog: nil tuning")
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("derive catalog: %w", err)
	}

	c := &Catalog{
		Realms:   make([]Realm, 0, len(t.Realms)),
		Skills:   make([]Skill, 0, len(t.Skills)),
		SkillIdx: make(map[string]*Skill, len(t.Skills)),
	}
	for i, r := range t.Realms {
		cyc := CycleMortal
		if i >= t.Cycles.SpiritStartIndex {
			cyc = CycleSpirit
		}
		c.Realms = append(c.Realms, Realm{
			Index:         i,
			Name:          r.Name,
			LifespanYears: r.LifespanYears,
			Cycle:         cyc,
		})
	}
	for _, s := range t.Skills {
		c.Skills = append(c.Skills, Skill{
			ID:        s.ID,
			Name:      s.Name,
			Kind:      s.Kind,
			BaseCost:  s.BaseCost,
			CostScale: s.CostScale,
			Effect:    s.Effect,
			MaxLevel:  s.MaxLevel,
		})
	}
	for i := range c.Skills {
		c.SkillIdx[c.Skills[i].ID] = &c.Skills[i]
	}

	payload := struct {
		Realms []Realm `json:"realms"`
		Skills []Skill `json:"skills"`
	}{Realms: c.Realms, Skills: c.Skills}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	c.digest = hex.EncodeToString(sum[:])
	return c, nil
}

// LifespanBase returns the table lifespan for a realm, with math.Inf(1) for
// the infinite sentinel. Out-of-range indices clamp to the terminal realm.
func (c *Catalog) LifespanBase(realmIndex int) float64 {
	if realmIndex < 0 {
		realmIndex = 0
	}
	if realmIndex >= len(c.Realms) {
		realmIndex = len(c.Realms) - 1
	}
	y := c.Realms[realmIndex].LifespanYears
	if y == 0 {
		return math.Inf(1)
	}
	return y
}

// CycleOf returns the cycle band for a realm index.
func (c *Catalog) CycleOf(realmIndex int) Cycle {
	if realmIndex < 0 {
		realmIndex = 0
	}
	if realmIndex >= len(c.Realms) {
		realmIndex = len(c.Realms) - 1
	}
	return c.Realms[realmIndex].Cycle
}

// TerminalRealm is the last realm index.
func (c *Catalog) TerminalRealm() int { return len(c.Realms) - 1 }
