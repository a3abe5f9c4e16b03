package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"samsara.game/internal/persistence/journal"
	"samsara.game/internal/persistence/save"
	"samsara.game/internal/persistence/savestore"
	"samsara.game/internal/sim/game"
	"samsara.game/internal/sim/tuning"
	"samsara.game/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
		slot       = flag.String("slot", "default", "save slot name")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite save store (in-memory only)")
		reset      = flag.Bool("reset", false, "discard all progress including karma before starting")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	_ = os.MkdirAll(*dataDir, 0o755)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	var store *savestore.Store
	if !*disableDB {
		store, err = savestore.Open(filepath.Join(*dataDir, "saves.db"))
		if err != nil {
			logger.Fatalf("open save store: %v", err)
		}
		defer store.Close()
	}

	// Resume the slot if a save exists; otherwise mint a fresh save id.
	var loaded *save.SaveV1
	if store != nil {
		blob, err := store.Get(*slot)
		if err != nil {
			logger.Fatalf("read save slot %q: %v", *slot, err)
		}
		if blob != nil {
			s, err := save.Decode(blob)
			if err != nil {
				logger.Fatalf("decode save slot %q: %v", *slot, err)
			}
			loaded = &s
		}
	}

	saveID := uuid.NewString()
	if loaded != nil {
		saveID = loaded.Header.SaveID
	}

	eng, err := game.New(game.Config{
		Tuning: &tune,
		SaveID: saveID,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if loaded != nil {
		eng.ImportSave(*loaded)
		logger.Printf("resumed slot=%s save_id=%s karma=%s realm=%d stage=%d",
			*slot, saveID, humanize.CommafWithDigits(eng.Meta().Karma(), 0),
			eng.Run().RealmIndex, eng.Run().Stage)
	} else {
		logger.Printf("fresh save slot=%s save_id=%s", *slot, saveID)
	}
	if *reset {
		eng.FullReset()
		logger.Printf("full reset applied to slot=%s", *slot)
	}

	host := game.NewHost(eng, logger)

	jnl := journal.New(*dataDir)
	defer jnl.Close()
	host.SetJournalFn(func(e game.JournalEntry) {
		if err := jnl.WriteEntry(e); err != nil {
			logger.Printf("journal write: %v", err)
		}
		if store != nil {
			store.RecordLifecycle(savestore.LifecycleRow{
				AtUnixMs:    e.AtUnixMs,
				SaveID:      e.SaveID,
				Trigger:     string(e.Trigger),
				KarmaGained: e.KarmaGained,
				KarmaTotal:  e.KarmaTotal,
				RealmIndex:  e.RealmIndex,
				Stage:       e.Stage,
				AgeYears:    e.AgeYears,
			})
		}
	})
	if store != nil {
		host.SetAutosaveFn(func(s save.SaveV1) {
			blob, err := save.Encode(s)
			if err != nil {
				logger.Printf("encode save: %v", err)
				return
			}
			store.Put(*slot, blob)
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := host.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("host stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/status", func(rw http.ResponseWriter, r *http.Request) {
		view := host.Snapshot()
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			SaveID         string  `json:"save_id"`
			Phase          string  `json:"phase"`
			RealmIndex     int     `json:"realm_index"`
			RealmName      string  `json:"realm_name"`
			Stage          int     `json:"stage"`
			Qi             string  `json:"qi"`
			Karma          string  `json:"karma"`
			AgeYears       string  `json:"age_years"`
			LifespanYears  string  `json:"lifespan_years"`
			Reincarnations int     `json:"reincarnations"`
			Deaths         int     `json:"deaths"`
			Speed          float64 `json:"speed"`
		}{
			SaveID:         saveID,
			Phase:          view.Phase,
			RealmIndex:     view.RealmIndex,
			RealmName:      view.RealmName,
			Stage:          view.Stage,
			Qi:             humanize.SIWithDigits(view.Qi, 2, ""),
			Karma:          humanize.CommafWithDigits(view.Karma, 0),
			AgeYears:       humanize.CommafWithDigits(view.AgeYears, 1),
			LifespanYears:  lifespanLabel(view.LifespanYears, view.LifespanInfinite),
			Reincarnations: view.Reincarnations,
			Deaths:         view.Deaths,
			Speed:          view.Speed,
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(host, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Wait for the host to suspend and write its final save before the
	// async store is closed.
	<-done
	if store != nil {
		store.Flush()
	}
}

func lifespanLabel(years float64, infinite bool) string {
	if infinite {
		return "infinite"
	}
	return humanize.CommafWithDigits(years, 0)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
