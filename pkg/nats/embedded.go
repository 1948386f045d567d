package nats

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer wraps an embedded NATS server with JetStream enabled,
// used by tests and single-process deployments.
type EmbeddedServer struct {
	server       *server.Server
	url          string
	storeDir     string
	shutdownOnce sync.Once
}

// StartEmbeddedServer starts an embedded NATS server on a random port with
// its own JetStream store directory.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	storeDir, err := os.MkdirTemp("", "nats-jetstream-")
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // random port
		JetStream: true,
		StoreDir:  storeDir,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		os.RemoveAll(storeDir)
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		os.RemoveAll(storeDir)
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{server: s, url: s.ClientURL(), storeDir: storeDir}, nil
}

// URL returns the connection URL for the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Connect opens a client connection to the embedded server.
func (e *EmbeddedServer) Connect() (*nats.Conn, error) {
	return nats.Connect(e.url)
}

// Shutdown stops the embedded server and removes its store directory.
// Safe to call multiple times.
func (e *EmbeddedServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		if e.server == nil {
			return
		}
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		os.RemoveAll(e.storeDir)
	})
}
