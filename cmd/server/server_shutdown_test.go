package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/engage"
	"example.com/socialfeed/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// freeAddr reserves a loopback port and releases it for the server to bind.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// TestServer_GracefulShutdown verifies that Run serves requests, returns once
// the context is cancelled, and that the store and Kafka writer can then be
// closed without errors.
func TestServer_GracefulShutdown(t *testing.T) {
	mockStore := store.NewMemory()
	mockKafka := &appkafka.MockKafka{}
	s := New(mockStore, newTokens(t), bcrypt.MinCost, engage.WithPublisher(appkafka.NewPublisher(mockKafka)))

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, s.Routes(), addr, "", "")
		close(done)
	}()

	// Wait for the listener to come up
	var served bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			served = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !served {
		t.Fatal("server did not start serving")
	}

	cancel()

	select {
	case <-done:
		mockStore.Close()
		if err := mockKafka.Close(); err != nil {
			t.Fatalf("Kafka close error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not shutdown gracefully within the expected time")
	}

	if _, err := http.Get("http://" + addr + "/"); err == nil {
		t.Fatal("server still accepting connections after shutdown")
	}
}
