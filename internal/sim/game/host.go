package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"samsara.game/internal/persistence/save"
	"samsara.game/internal/protocol"
)

// ActEnvelope is one client instant queued for the next tick boundary.
type ActEnvelope struct {
	SessionID string
	Act       protocol.ActMsg
}

// AttachRequest registers an observer session. Resp receives the handshake
// payload once the loop has registered the out channel.
type AttachRequest struct {
	Out  chan []byte
	Resp chan AttachResponse
}

type AttachResponse struct {
	SessionID string
	Welcome   protocol.WelcomeMsg
	Catalog   protocol.CatalogMsg
}

// Host drives one Engine on a single goroutine: a fixed-rate ticker applies
// production and aging, queued acts are applied at the tick boundary, and
// attached clients receive STATE frames with latest-wins delivery. Everything
// that touches the engine happens on the Run goroutine.
type Host struct {
	eng    *Engine
	logger *log.Logger

	inbox  chan ActEnvelope
	attach chan AttachRequest
	detach chan string
	stop   chan struct{}

	clients     map[string]chan []byte
	clientGauge atomic.Int64
	nextClient  atomic.Uint64
	seq         uint64

	// Last published view, readable off the loop goroutine (status endpoint).
	view atomic.Pointer[protocol.StateBody]

	autosaveFn func(save.SaveV1)
	journalFn  func(JournalEntry)

	pendingEvents []protocol.EventMsg
}

func NewHost(eng *Engine, logger *log.Logger) *Host {
	h := &Host{
		eng:     eng,
		logger:  logger,
		inbox:   make(chan ActEnvelope, 256),
		attach:  make(chan AttachRequest, 16),
		detach:  make(chan string, 16),
		stop:    make(chan struct{}),
		clients: map[string]chan []byte{},
	}
	eng.SetNotifyFn(h.onNotice)
	return h
}

// SetAutosaveFn installs the periodic save sink. Called on the Run goroutine;
// implementations should hand off to their own writer.
func (h *Host) SetAutosaveFn(fn func(save.SaveV1)) { h.autosaveFn = fn }

// SetJournalFn installs the lifecycle journal sink.
func (h *Host) SetJournalFn(fn func(JournalEntry)) {
	h.journalFn = fn
	h.eng.SetJournalFn(fn)
}

// Snapshot returns the view published at the last tick. Safe from any
// goroutine; zero value before the first tick.
func (h *Host) Snapshot() protocol.StateBody {
	if v := h.view.Load(); v != nil {
		return *v
	}
	return protocol.StateBody{}
}

// Clients reports the number of attached sessions. Safe from any goroutine.
func (h *Host) Clients() int { return int(h.clientGauge.Load()) }

func (h *Host) Inbox() chan<- ActEnvelope    { return h.inbox }
func (h *Host) Attach() chan<- AttachRequest { return h.attach }
func (h *Host) Detach() chan<- string        { return h.detach }
func (h *Host) Stop()                        { close(h.stop) }

// Run owns the engine until ctx is cancelled or Stop is called. On entry it
// replays the recorded offline gap; on exit it suspends and writes a final
// save.
func (h *Host) Run(ctx context.Context) error {
	report := h.eng.OnResume(time.Now())
	h.publishView()
	if report.Replayed && h.logger != nil {
		h.logger.Printf("offline replay: elapsed=%ds capped=%ds qi=%.0f years=%.1f died=%v",
			report.ElapsedSeconds, report.CappedSeconds, report.QiGained, report.YearsPassed, report.Died)
	}

	interval := time.Second / time.Duration(h.eng.Tuning().TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ActEnvelope
	var tickCount int
	last := time.Now()

	flush := func() {
		h.eng.OnSuspend(time.Now())
		if h.autosaveFn != nil {
			h.autosaveFn(h.eng.ExportSave(time.Now()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-h.stop:
			flush()
			return nil
		case req := <-h.attach:
			h.handleAttach(req)
		case id := <-h.detach:
			if _, ok := h.clients[id]; ok {
				delete(h.clients, id)
				h.clientGauge.Add(-1)
			}
		case env := <-h.inbox:
			pending = append(pending, env)
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now

			for _, env := range pending {
				h.applyAct(env, now)
			}
			pending = pending[:0]

			h.eng.TickAt(elapsed, now)
			tickCount++
			h.publishView()

			if h.autosaveFn != nil && tickCount%h.eng.Tuning().AutosaveEveryTicks == 0 {
				h.autosaveFn(h.eng.ExportSave(now))
			}

			h.broadcastState()
			h.flushEvents()
		}
	}
}

func (h *Host) handleAttach(req AttachRequest) {
	id := fmt.Sprintf("S%d", h.nextClient.Add(1))
	if req.Out != nil {
		h.clients[id] = req.Out
		h.clientGauge.Add(1)
	}
	t := h.eng.Tuning()
	cat := h.eng.Catalog()

	realms := make([]protocol.RealmRef, 0, len(cat.Realms))
	for _, r := range cat.Realms {
		realms = append(realms, protocol.RealmRef{
			Index:         r.Index,
			Name:          r.Name,
			LifespanYears: r.LifespanYears,
			Cycle:         string(r.Cycle),
		})
	}
	skills := make([]protocol.SkillRef, 0, len(cat.Skills))
	for _, s := range cat.Skills {
		skills = append(skills, protocol.SkillRef{
			ID:        s.ID,
			Name:      s.Name,
			Kind:      s.Kind,
			BaseCost:  s.BaseCost,
			CostScale: s.CostScale,
			Effect:    s.Effect,
			MaxLevel:  s.MaxLevel,
		})
	}

	resp := AttachResponse{
		SessionID: id,
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       id,
			SaveID:          h.eng.Meta().SaveID,
			EngineParams: protocol.EngineParams{
				TickRateHz:      t.TickRateHz,
				YearsPerSecond:  t.YearsPerSecond,
				OfflineCapHours: t.Offline.CapHours,
			},
			TuningDigest:  t.Digest(),
			CatalogDigest: cat.Digest(),
		},
		Catalog: protocol.CatalogMsg{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Digest:          cat.Digest(),
			Realms:          realms,
			Skills:          skills,
		},
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (h *Host) applyAct(env ActEnvelope, now time.Time) {
	var code string
	switch env.Act.Act {
	case protocol.ActClick:
		h.eng.Click()
	case protocol.ActBuySkill:
		code = h.eng.BuySkill(env.Act.SkillID)
	case protocol.ActBreakthrough:
		code = h.eng.Breakthrough()
	case protocol.ActReincarnate:
		switch env.Act.Mode {
		case "VOLUNTARY":
			code = h.eng.RequestReincarnateAt(TriggerVoluntary, now)
		case "MANDATORY":
			code = h.eng.RequestReincarnateAt(TriggerMandatory, now)
		default:
			code = protocol.ErrBadMode
		}
	case protocol.ActSetSpeed:
		code = h.eng.SetSpeed(env.Act.Speed)
	default:
		code = protocol.ErrBadRequest
	}

	out := h.clients[env.SessionID]
	if out == nil {
		return
	}
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.Act.ID,
		Accepted:        code == "",
		Code:            code,
	}
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	sendLatest(out, b)
}

func (h *Host) publishView() {
	v := h.eng.View()
	h.view.Store(&v)
}

func (h *Host) broadcastState() {
	if len(h.clients) == 0 {
		return
	}
	h.seq++
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq,
		State:           h.eng.View(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, out := range h.clients {
		sendLatest(out, b)
	}
}

// onNotice runs on the loop goroutine (the engine is only ever driven from
// there); events are buffered and flushed after the STATE frame so clients
// see the post-transition state first.
func (h *Host) onNotice(n Notice) {
	ev := protocol.Event{
		Kind:        n.Kind,
		Trigger:     string(n.Trigger),
		KarmaGained: n.KarmaGained,
		Speed:       n.Speed,
	}
	if n.Offline != nil {
		ev.Offline = &protocol.OfflineReport{
			ElapsedSeconds: n.Offline.ElapsedSeconds,
			CappedSeconds:  n.Offline.CappedSeconds,
			Speed:          n.Offline.Speed,
			QiGained:       n.Offline.QiGained,
			YearsPassed:    n.Offline.YearsPassed,
			Died:           n.Offline.Died,
		}
	}
	h.pendingEvents = append(h.pendingEvents, protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           ev,
	})
	if h.logger != nil {
		h.logger.Printf("event: %s trigger=%s karma=%.0f", n.Kind, n.Trigger, n.KarmaGained)
	}
}

func (h *Host) flushEvents() {
	if len(h.pendingEvents) == 0 {
		return
	}
	for _, ev := range h.pendingEvents {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		for _, out := range h.clients {
			sendLatest(out, b)
		}
	}
	h.pendingEvents = h.pendingEvents[:0]
}

// sendLatest delivers b without ever blocking the loop: when the channel is
// full the oldest frame is dropped in favor of the new one.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
