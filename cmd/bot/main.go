// Command bot is a scripted player for soak-testing a running server: it
// clicks, buys whatever it can afford, breaks through, and reincarnates the
// moment the engine allows it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"samsara.game/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "client name")
		cps  = flag.Float64("cps", 2, "clicks per second")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var actSeq uint64
	nextAct := func(verb string) protocol.ActMsg {
		actSeq++
		return protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("A%d", actSeq),
			Act:             verb,
		}
	}

	clickInterval := time.Duration(float64(time.Second) / *cps)
	lastClick := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s save=%s tick_rate=%d", w.SessionID, w.SaveID, w.EngineParams.TickRateHz)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("EVENT %s trigger=%s karma=+%.0f", ev.Event.Kind, ev.Event.Trigger, ev.Event.KarmaGained)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			v := st.State
			if v.Phase != "LIVING" {
				continue
			}

			if v.CanReincarnate {
				act := nextAct(protocol.ActReincarnate)
				if v.AtGate {
					act.Mode = "MANDATORY"
				} else {
					act.Mode = "VOLUNTARY"
				}
				_ = conn.WriteJSON(act)
				continue
			}

			for _, sk := range v.Skills {
				if sk.NextCost > 0 && sk.NextCost <= v.Qi {
					act := nextAct(protocol.ActBuySkill)
					act.SkillID = sk.ID
					_ = conn.WriteJSON(act)
					break
				}
			}
			if v.StageRequirement > 0 && v.Qi >= v.StageRequirement {
				_ = conn.WriteJSON(nextAct(protocol.ActBreakthrough))
			}
			if time.Since(lastClick) >= clickInterval {
				lastClick = time.Now()
				_ = conn.WriteJSON(nextAct(protocol.ActClick))
			}
		}
	}
}
