package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"botswarm.ai/internal/events"
	"botswarm.ai/internal/protocol"
)

func newFeed(t *testing.T) (*events.Hub, *httptest.Server) {
	t.Helper()
	hub := events.NewHub(log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", NewServer(hub, log.New(io.Discard, "", 0)).Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
	})
	return hub, ts
}

func dialFeed(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFeedRelaysPublishedEvents(t *testing.T) {
	hub, ts := newFeed(t)
	conn := dialFeed(t, ts)

	// The subscription is registered during the upgrade handler; give it a
	// beat before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: "bot_1", Status: protocol.StatusOnline})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev protocol.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != protocol.EventStatus || ev.BotID != "bot_1" || ev.Status != protocol.StatusOnline {
		t.Fatalf("event = %+v", ev)
	}
}

func TestFeedUnsubscribesOnClientClose(t *testing.T) {
	hub, ts := newFeed(t)
	conn := dialFeed(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("subscribers = %d, want 1", hub.SubscriberCount())
	}

	_ = conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked after client close")
	}
}

func TestFeedSupportsMultipleSubscribers(t *testing.T) {
	hub, ts := newFeed(t)
	a := dialFeed(t, ts)
	b := dialFeed(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	hub.Publish(protocol.Event{Type: protocol.EventCreated, BotID: "bot_9", Name: "fresh"})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev protocol.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != protocol.EventCreated || ev.BotID != "bot_9" {
			t.Fatalf("event = %+v", ev)
		}
	}
}
