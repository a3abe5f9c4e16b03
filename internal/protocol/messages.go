package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	SaveID          string       `json:"save_id"`
	EngineParams    EngineParams `json:"engine_params"`
	TuningDigest    string       `json:"tuning_digest"`
	CatalogDigest   string       `json:"catalog_digest"`
}

type EngineParams struct {
	TickRateHz      int     `json:"tick_rate_hz"`
	YearsPerSecond  float64 `json:"years_per_second"`
	OfflineCapHours float64 `json:"offline_cap_hours"`
}

// CATALOG (server -> client): the derived skill/realm tables.
type CatalogMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Digest          string     `json:"digest"`
	Realms          []RealmRef `json:"realms"`
	Skills          []SkillRef `json:"skills"`
}

type RealmRef struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	LifespanYears float64 `json:"lifespan_years"` // 0 = infinite
	Cycle         string  `json:"cycle"`
}

type SkillRef struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	BaseCost  float64 `json:"base_cost"`
	CostScale float64 `json:"cost_scale"`
	Effect    float64 `json:"effect"`
	MaxLevel  int     `json:"max_level"`
}

// STATE (server -> client): the per-tick view of the engine.
type StateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Seq             uint64    `json:"seq"`
	State           StateBody `json:"state"`
}

type StateBody struct {
	Phase      string `json:"phase"`
	Cycle      string `json:"cycle"`
	RealmIndex int    `json:"realm_index"`
	RealmName  string `json:"realm_name"`
	Stage      int    `json:"stage"`

	Qi         float64 `json:"qi"`
	LifetimeQi float64 `json:"lifetime_qi"`
	QPC        float64 `json:"qpc"`
	QPS        float64 `json:"qps"`

	AgeYears         float64 `json:"age_years"`
	LifespanYears    float64 `json:"lifespan_years"` // 0 when infinite
	LifespanInfinite bool    `json:"lifespan_infinite"`

	StageRequirement float64 `json:"stage_requirement"`

	Karma            float64 `json:"karma"`
	Reincarnations   int     `json:"reincarnations"`
	Deaths           int     `json:"deaths"`
	CycleTransitions int     `json:"cycle_transitions"`

	Speed          float64   `json:"speed"`
	UnlockedSpeeds []float64 `json:"unlocked_speeds"`

	GateCleared       bool `json:"gate_cleared"`
	VoluntaryUnlocked bool `json:"voluntary_unlocked"`
	AtGate            bool `json:"at_gate"`
	CanReincarnate    bool `json:"can_reincarnate"`

	Skills []SkillLevel `json:"skills"`
}

type SkillLevel struct {
	ID       string  `json:"id"`
	Level    int     `json:"level"`
	NextCost float64 `json:"next_cost"` // 0 when maxed
}

// EVENT (server -> client): lifecycle and unlock notices.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           Event  `json:"event"`
}

type Event struct {
	Kind        string         `json:"kind"` // DEATH, REINCARNATED, GATE_OPENED, SPEED_UNLOCKED, OFFLINE_REPORT
	Trigger     string         `json:"trigger,omitempty"`
	KarmaGained float64        `json:"karma_gained,omitempty"`
	Speed       float64        `json:"speed,omitempty"`
	Offline     *OfflineReport `json:"offline,omitempty"`
}

type OfflineReport struct {
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	CappedSeconds  int64   `json:"capped_seconds"`
	Speed          float64 `json:"speed"`
	QiGained       float64 `json:"qi_gained"`
	YearsPassed    float64 `json:"years_passed"`
	Died           bool    `json:"died"`
}

// ACT (client -> server): one player instant.
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Act             string  `json:"act"` // CLICK, BUY_SKILL, BREAKTHROUGH, REINCARNATE, SET_SPEED
	SkillID         string  `json:"skill_id,omitempty"`
	Mode            string  `json:"mode,omitempty"` // REINCARNATE: VOLUNTARY | MANDATORY
	Speed           float64 `json:"speed,omitempty"`
}

// Act verbs.
const (
	ActClick        = "CLICK"
	ActBuySkill     = "BUY_SKILL"
	ActBreakthrough = "BREAKTHROUGH"
	ActReincarnate  = "REINCARNATE"
	ActSetSpeed     = "SET_SPEED"
)

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
}
