package game

import (
	"encoding/json"
	"testing"
	"time"

	"samsara.game/internal/protocol"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	return NewHost(newTestEngine(t), nil)
}

func TestHandleAttach(t *testing.T) {
	h := newTestHost(t)
	out := make(chan []byte, 8)
	resp := make(chan AttachResponse, 1)
	h.handleAttach(AttachRequest{Out: out, Resp: resp})

	r := <-resp
	if r.SessionID == "" {
		t.Fatal("no session id")
	}
	if r.Welcome.Type != protocol.TypeWelcome || r.Welcome.SaveID != "test-save" {
		t.Fatalf("welcome = %+v", r.Welcome)
	}
	if r.Welcome.EngineParams.TickRateHz != h.eng.Tuning().TickRateHz {
		t.Fatalf("tick rate = %d", r.Welcome.EngineParams.TickRateHz)
	}
	if r.Catalog.Digest != h.eng.Catalog().Digest() {
		t.Fatal("catalog digest mismatch")
	}
	if len(r.Catalog.Realms) != len(h.eng.Catalog().Realms) || len(r.Catalog.Skills) != len(h.eng.Catalog().Skills) {
		t.Fatalf("catalog sizes: %d realms %d skills", len(r.Catalog.Realms), len(r.Catalog.Skills))
	}
	if _, ok := h.clients[r.SessionID]; !ok {
		t.Fatal("client not registered")
	}
}

func recvAck(t *testing.T, out chan []byte) protocol.AckMsg {
	t.Helper()
	select {
	case b := <-out:
		var ack protocol.AckMsg
		if err := json.Unmarshal(b, &ack); err != nil {
			t.Fatalf("unmarshal ack: %v", err)
		}
		return ack
	default:
		t.Fatal("no ack delivered")
		return protocol.AckMsg{}
	}
}

func TestApplyActAcks(t *testing.T) {
	h := newTestHost(t)
	out := make(chan []byte, 8)
	resp := make(chan AttachResponse, 1)
	h.handleAttach(AttachRequest{Out: out, Resp: resp})
	sess := (<-resp).SessionID

	now := time.Unix(100000, 0)

	h.applyAct(ActEnvelope{SessionID: sess, Act: protocol.ActMsg{ID: "a1", Act: protocol.ActClick}}, now)
	ack := recvAck(t, out)
	if !ack.Accepted || ack.AckFor != "a1" || ack.Code != "" {
		t.Fatalf("click ack = %+v", ack)
	}
	if h.eng.Run().Qi != 1 {
		t.Fatalf("click not applied: qi=%v", h.eng.Run().Qi)
	}

	h.applyAct(ActEnvelope{SessionID: sess, Act: protocol.ActMsg{ID: "a2", Act: protocol.ActBuySkill, SkillID: "breath_control"}}, now)
	ack = recvAck(t, out)
	if ack.Accepted || ack.Code != protocol.ErrNoQi {
		t.Fatalf("buy ack = %+v", ack)
	}

	h.applyAct(ActEnvelope{SessionID: sess, Act: protocol.ActMsg{ID: "a3", Act: protocol.ActReincarnate, Mode: "SIDEWAYS"}}, now)
	ack = recvAck(t, out)
	if ack.Accepted || ack.Code != protocol.ErrBadMode {
		t.Fatalf("bad mode ack = %+v", ack)
	}

	h.applyAct(ActEnvelope{SessionID: sess, Act: protocol.ActMsg{ID: "a4", Act: "DANCE"}}, now)
	ack = recvAck(t, out)
	if ack.Accepted || ack.Code != protocol.ErrBadRequest {
		t.Fatalf("unknown verb ack = %+v", ack)
	}
}

func TestTransitionEmitsEvents(t *testing.T) {
	h := newTestHost(t)
	h.eng.run.RealmIndex = h.eng.cfg.Gate.RealmIndex
	h.eng.run.Stage = h.eng.cfg.Gate.Stage

	h.eng.TickAt(0, time.Unix(100000, 0))

	kinds := make([]string, 0, len(h.pendingEvents))
	for _, ev := range h.pendingEvents {
		kinds = append(kinds, ev.Event.Kind)
	}
	// Mandatory gate: reincarnation, gate opening, first speed unlock.
	want := map[string]bool{"REINCARNATED": false, "GATE_OPENED": false, "SPEED_UNLOCKED": false}
	for _, k := range kinds {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("event %s not emitted (got %v)", k, kinds)
		}
	}
}

func TestSendLatestDropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("one"))
	sendLatest(ch, []byte("two"))
	got := string(<-ch)
	if got != "two" {
		t.Fatalf("got %q want %q", got, "two")
	}
}

func TestSnapshotPublishes(t *testing.T) {
	h := newTestHost(t)
	if v := h.Snapshot(); v.Phase != "" {
		t.Fatalf("zero view before first publish, got %+v", v)
	}
	h.eng.run.Qi = 77
	h.publishView()
	v := h.Snapshot()
	if v.Qi != 77 || v.Phase != string(PhaseLiving) {
		t.Fatalf("published view = qi %v phase %s", v.Qi, v.Phase)
	}
}
