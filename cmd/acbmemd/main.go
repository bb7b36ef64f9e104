// Command acbmemd runs the agent memory service: it opens the SQLite
// store, wires every domain engine, starts the capsule expiry sweeper
// and telemetry sink, binds the HTTP reference surface and serves until
// a signal or admin shutdown request arrives. Wiring mirrors the
// teacher's cmd/cliaimonitor/main.go component-assembly shape, adapted
// from a dashboard process to a headless daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/acbmem/agentmem/internal/acb"
	"github.com/acbmem/agentmem/internal/bootstrap"
	"github.com/acbmem/agentmem/internal/capsule"
	"github.com/acbmem/agentmem/internal/config"
	"github.com/acbmem/agentmem/internal/editservice"
	"github.com/acbmem/agentmem/internal/graph"
	"github.com/acbmem/agentmem/internal/httpapi"
	"github.com/acbmem/agentmem/internal/ingest"
	"github.com/acbmem/agentmem/internal/instance"
	"github.com/acbmem/agentmem/internal/mode"
	"github.com/acbmem/agentmem/internal/store"
	"github.com/acbmem/agentmem/internal/telemetry"
)

const sweepInterval = 5 * time.Minute

func main() {
	seedPath := flag.String("seed", "", "optional YAML rule seed file to apply at startup")
	flag.Parse()

	cfg := config.Load()

	lock := instance.NewManager(cfg.StorePath)
	if err := lock.AcquireLock(); err != nil {
		log.Fatalf("failed to acquire instance lock: %v", err)
	}
	defer lock.ReleaseLock()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	if *seedPath != "" {
		seed, err := bootstrap.LoadSeedFile(*seedPath)
		if err != nil {
			log.Fatalf("failed to load seed file: %v", err)
		}
		if err := bootstrap.Apply(st, seed); err != nil {
			log.Fatalf("failed to apply seed file: %v", err)
		}
		log.Printf("applied seed file %s (%d rules)", *seedPath, len(seed.Rules))
	}

	var nc *nats.Conn
	switch {
	case cfg.TelemetryEndpoint != "":
		nc, err = nats.Connect(cfg.TelemetryEndpoint)
		if err != nil {
			log.Printf("telemetry NATS connect failed, continuing with local buffering only: %v", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	case cfg.TelemetryEmbedBroker:
		broker, err := telemetry.StartBroker()
		if err != nil {
			log.Printf("embedded telemetry broker failed to start, continuing with local buffering only: %v", err)
			break
		}
		defer broker.Shutdown()
		nc, err = nats.Connect(broker.ClientURL())
		if err != nil {
			log.Printf("telemetry connect to embedded broker failed, continuing with local buffering only: %v", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	alert := &telemetry.ToastNotifier{AppID: "acbmemd"}
	sink := telemetry.NewSink(nc, cfg.TelemetrySubject, alert)

	ingestEngine := ingest.New(st)
	capsuleEngine := capsule.New(st)
	graphEngine := graph.New(st)
	editEngine := editservice.New(st)
	errorRates := mode.NewErrorRateTracker(st)
	acbOrchestrator := acb.New(st, capsuleEngine, errorRates, sink)

	sweeper := capsule.NewSweeper(st, sweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx)
	go sink.Run(ctx)

	srv := httpapi.NewServer(httpapi.Deps{
		Store:    st,
		Ingest:   ingestEngine,
		ACB:      acbOrchestrator,
		Capsules: capsuleEngine,
		Graph:    graphEngine,
		Edits:    editEngine,
		Auth:     bearerTokenAuth,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("acbmemd listening on %s", cfg.HTTPAddr)
		serverErr <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	case <-shutdown:
		log.Println("shutting down (signal received)")
	}

	cancel()
	sweeper.Stop()
	sink.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	fmt.Println("acbmemd stopped")
}

// bearerTokenAuth resolves identity from the Authorization header in
// the form "Bearer <tenant_id>:<actor_id>". Real deployments should
// replace this with a verified token lookup; the core's auth surface
// is an injected collaborator precisely so that swap stays local to
// this function.
func bearerTokenAuth(r *http.Request) (httpapi.Identity, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		return httpapi.Identity{}, fmt.Errorf("missing or malformed Authorization header")
	}
	token := authz[len(prefix):]
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return httpapi.Identity{TenantID: token[:i], ActorID: token[i+1:]}, nil
		}
	}
	return httpapi.Identity{}, fmt.Errorf("malformed bearer token")
}
