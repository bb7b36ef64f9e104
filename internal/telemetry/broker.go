package telemetry

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Broker wraps an in-process NATS server, grounded on the teacher's
// internal/nats/server.go EmbeddedServer. acbmemd starts one whenever
// no external ACBMEM_TELEMETRY_NATS_URL is configured, so telemetry
// has somewhere to publish without any operator-run infrastructure.
type Broker struct {
	srv *server.Server
}

// StartBroker starts an embedded, loopback-only NATS server and
// blocks until it is ready for connections.
func StartBroker() (*Broker, error) {
	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       -1, // let the OS pick a free port
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server not ready for connections")
	}

	return &Broker{srv: ns}, nil
}

// ClientURL returns the loopback URL clients should connect to.
func (b *Broker) ClientURL() string {
	return b.srv.ClientURL()
}

// Shutdown stops the broker and waits for it to fully exit.
func (b *Broker) Shutdown() {
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
