// Package save is the opaque blob codec at the persistence boundary. A save
// is one zstd stream holding a JSON header line followed by the JSON body;
// the header is enough to identify a blob without decoding the body.
package save

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	SaveID        string `json:"save_id"`
	SavedAtUnixMs int64  `json:"saved_at_unix_ms"`
}

// SaveV1 is the versioned save document. Optional fields may be absent in
// older blobs; field-level sanitizing with documented defaults happens in
// the engine's ImportSave, not here.
type SaveV1 struct {
	Header Header `json:"header"`

	TuningDigest string `json:"tuning_digest,omitempty"`

	Run       RunV1        `json:"run"`
	Meta      MetaV1       `json:"meta"`
	Lifecycle *LifecycleV1 `json:"lifecycle,omitempty"`
	Session   *SessionV1   `json:"session,omitempty"`

	// Speed is a pointer so an explicit pause (0) survives the round trip;
	// absent means the importer's default of 1.
	Speed *float64 `json:"speed,omitempty"`
}

type RunV1 struct {
	Qi         float64 `json:"qi"`
	LifetimeQi float64 `json:"lifetime_qi"`
	QPCBase    float64 `json:"qpc_base,omitempty"`
	QPSBase    float64 `json:"qps_base,omitempty"`
	RealmIndex int     `json:"realm_index"`
	Stage      int     `json:"stage"`

	// AgeYears is optional: legacy blobs carried lifespan_current instead,
	// and age is then derived as lifespan_max - lifespan_current.
	AgeYears        *float64 `json:"age_years,omitempty"`
	LifespanYears   float64  `json:"lifespan_years"` // 0 encodes infinite
	LifespanCurrent *float64 `json:"lifespan_current,omitempty"`

	Skills map[string]int `json:"skills,omitempty"`
}

type MetaV1 struct {
	Karma              float64   `json:"karma"`
	ReincarnationCount int       `json:"reincarnation_count"`
	DeathCount         int       `json:"death_count"`
	CycleTransitions   int       `json:"cycle_transitions,omitempty"`
	UnlockedSpeeds     []float64 `json:"unlocked_speeds,omitempty"`
	GateCleared        bool      `json:"gate_cleared,omitempty"`
	VoluntaryUnlocked  bool      `json:"voluntary_unlocked,omitempty"`
	CreatedAtUnix      int64     `json:"created_at_unix,omitempty"`
}

type LifecycleV1 struct {
	Transitioning       bool  `json:"transitioning"`
	LastDeathAtUnix     int64 `json:"last_death_at_unix,omitempty"`
	LastReincarnateUnix int64 `json:"last_reincarnate_unix,omitempty"`
}

type SessionV1 struct {
	SuspendedAtUnixMs int64   `json:"suspended_at_unix_ms"`
	Speed             float64 `json:"speed"`
}

// Encode compresses the save to one blob.
func Encode(s SaveV1) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(s.Header)
	if _, err := bw.Write(hb); err != nil {
		return nil, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return nil, err
	}
	if err := json.NewEncoder(bw).Encode(&s); err != nil {
		return nil, fmt.Errorf("save encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a blob back. It hard-fails only on an unreadable stream or an
// unknown version; absent optional fields simply stay zero.
func Decode(blob []byte) (SaveV1, error) {
	var s SaveV1
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return s, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line; the body also contains the header, so it is advisory.
	line, err := br.ReadBytes('\n')
	if err != nil {
		return s, fmt.Errorf("save decode: header: %w", err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return s, fmt.Errorf("save decode: header: %w", err)
	}
	if hdr.Version != Version {
		return s, fmt.Errorf("save decode: unsupported version %d", hdr.Version)
	}

	if err := json.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("save decode: body: %w", err)
	}
	return s, nil
}
