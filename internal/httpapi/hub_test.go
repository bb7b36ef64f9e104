package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.register == nil || hub.unregister == nil || hub.broadcast == nil {
		t.Error("register/unregister/broadcast channels should be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients initially, got %d", hub.ClientCount())
	}

	client1 := &Client{hub: hub, conn: nil, send: make(chan []byte, HubBufferSize)}
	client2 := &Client{hub: hub, conn: nil, send: make(chan []byte, HubBufferSize)}

	hub.Register(client1)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after first register, got %d", hub.ClientCount())
	}

	hub.Register(client2)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients after second register, got %d", hub.ClientCount())
	}

	hub.Unregister(client1)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unregister, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastFansOutToAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := &Client{hub: hub, conn: nil, send: make(chan []byte, HubBufferSize)}
	client2 := &Client{hub: hub, conn: nil, send: make(chan []byte, HubBufferSize)}
	hub.Register(client1)
	hub.Register(client2)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(map[string]string{"acb_id": "acb_123"})

	for _, c := range []*Client{client1, client2} {
		select {
		case received := <-c.send:
			var decoded map[string]string
			if err := json.Unmarshal(received, &decoded); err != nil {
				t.Fatalf("failed to decode broadcast message: %v", err)
			}
			if decoded["acb_id"] != "acb_123" {
				t.Errorf("expected acb_123, got %q", decoded["acb_id"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("client did not receive broadcast message")
		}
	}
}

func TestCheckOriginAllowsLocalhostAndEmpty(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := checkOrigin(r); got != tc.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}
