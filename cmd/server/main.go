package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/botclient/botclienttest"
	"botswarm.ai/internal/botclient/wsproto"
	"botswarm.ai/internal/config"
	"botswarm.ai/internal/events"
	"botswarm.ai/internal/orchestrator"
	"botswarm.ai/internal/persistence/botstore"
	"botswarm.ai/internal/persistence/journal"
	"botswarm.ai/internal/transport/httpapi"
	"botswarm.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to config yaml (optional)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		useFake    = flag.Bool("fake", false, "use an in-process fake game client (local development without a game server)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.ListenAddr = strings.TrimSpace(*addr)
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = strings.TrimSpace(*dataDir)
		cfg.Store.Path = ""
		cfg.Journal.Dir = ""
		cfg.Normalize()
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	var store botstore.Store
	switch cfg.Store.Backend {
	case "memory":
		store = botstore.NewMemory()
	default:
		db, err := botstore.OpenSQLite(cfg.Store.Path, logger)
		if err != nil {
			logger.Fatalf("open store: %v", err)
		}
		defer db.Close()
		store = db
	}

	hub := events.NewHub(logger)
	defer hub.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Journal.Enabled {
		j := journal.NewEventJournal(cfg.Journal.Dir)
		defer j.Close()
		subID, sub := hub.Subscribe(512)
		go func() {
			defer hub.Unsubscribe(subID)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub:
					if !ok {
						return
					}
					if err := j.WriteEvent(ev); err != nil {
						logger.Printf("journal: %v", err)
					}
				}
			}
		}()
	}

	dial := wsproto.Dial
	if *useFake {
		logger.Printf("fake game client enabled, %s:%d will not be dialed", cfg.Game.Host, cfg.Game.Port)
		dial = func(ctx context.Context, id botclient.Identity, ep botclient.Endpoint) (botclient.Client, error) {
			f := botclienttest.New()
			f.Spawn()
			return f, nil
		}
	}

	engine, err := orchestrator.NewManager(orchestrator.Config{
		Endpoint: botclient.Endpoint{Host: cfg.Game.Host, Port: cfg.Game.Port},
		Dial:     dial,
		Store:    store,
		Hub:      hub,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("orchestrator: %v", err)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP botswarm_bots Total bot records.\n")
		fmt.Fprintf(rw, "# TYPE botswarm_bots gauge\n")
		fmt.Fprintf(rw, "botswarm_bots %d\n", len(store.All()))

		fmt.Fprintf(rw, "# HELP botswarm_sessions Live game-server sessions.\n")
		fmt.Fprintf(rw, "# TYPE botswarm_sessions gauge\n")
		fmt.Fprintf(rw, "botswarm_sessions %d\n", engine.SessionCount())

		fmt.Fprintf(rw, "# HELP botswarm_event_subscribers Current event feed subscribers.\n")
		fmt.Fprintf(rw, "# TYPE botswarm_event_subscribers gauge\n")
		fmt.Fprintf(rw, "botswarm_event_subscribers %d\n", hub.SubscriberCount())
	})
	httpapi.NewServer(store, engine, hub, logger).Register(mux)
	mux.HandleFunc("/v1/events", ws.NewServer(hub, logger).Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (game server %s:%d)", cfg.ListenAddr, cfg.Game.Host, cfg.Game.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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
