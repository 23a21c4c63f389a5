package feed

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestClientStateLifecycle(t *testing.T) {
	c := New("", "ws://localhost:1", []string{"m1"}, time.Millisecond, time.Second)

	if c.IsConnected() {
		t.Fatal("new client reports connected")
	}
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("subscribe on a disconnected client should fail")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close without connection: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("closed client reports connected")
	}
}

func TestClientCloseConcurrentWithStatus(t *testing.T) {
	c := New("", "ws://localhost:1", nil, time.Millisecond, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.IsConnected()
				_ = c.Close()
			}
		}()
	}
	wg.Wait()

	if c.IsConnected() {
		t.Fatal("client connected after close")
	}
}
