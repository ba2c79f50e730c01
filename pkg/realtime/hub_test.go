package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/eventbus"
)

func dialTestHub(t *testing.T, hub *Hub, role string) *websocket.Conn {
	t.Helper()
	validator := NewTokenValidator("test-secret")
	srv := httptest.NewServer(HandleWS(hub, validator))
	t.Cleanup(srv.Close)

	token := signToken(t, "test-secret", "tester", role, time.Hour)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	conn := dialTestHub(t, hub, RoleViewer)
	waitForClients(t, hub, 1)

	if err := hub.Publish("alerts", "alert.admitted", map[string]string{"id": "a-1"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Topic != "alerts" || env.Event != "alert.admitted" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHubSkipsUnsubscribedTopics(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	conn := dialTestHub(t, hub, RoleViewer)
	waitForClients(t, hub, 1)

	// Client is only on "alerts"; a device topic publish should not
	// reach it, the following alerts publish should.
	if err := hub.Publish("device:tank-9", "alert.merged", nil); err != nil {
		t.Fatal(err)
	}
	if err := hub.Publish("alerts", "alert.resolved", nil); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != "alert.resolved" {
		t.Errorf("event = %q, want the alerts publish", env.Event)
	}
}

func TestHubSubscribeControlMessage(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	conn := dialTestHub(t, hub, RoleViewer)
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(controlMessage{Action: "subscribe", Topic: "device:tank-1"}); err != nil {
		t.Fatal(err)
	}

	// The control message is handled asynchronously; poll by publishing
	// until the subscription takes effect.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := hub.Publish("device:tank-1", "alert.admitted", nil); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, _, err := conn.ReadMessage(); err == nil {
			return
		}
	}
	t.Fatal("device topic message never arrived after subscribe")
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	validator := NewTokenValidator("test-secret")
	srv := httptest.NewServer(HandleWS(hub, validator))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail with a bad token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}
}

func TestRelayPublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	sink := &capturePublisher{}
	relay := NewRelay(bus, sink)
	if err := relay.Start(); err != nil {
		t.Fatal(err)
	}
	defer relay.Stop()

	a := alert.Alert{ID: "a-1", DeviceID: "tank-1", Parameter: alert.ParameterPH}
	if err := bus.Publish(alert.NewLifecycleEvent(alert.EventAdmitted, a)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count() == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := sink.calls()
	if len(got) != 2 {
		t.Fatalf("publishes = %d, want alerts + device topic", len(got))
	}
	if got[0].topic != "alerts" || got[1].topic != "device:tank-1" {
		t.Errorf("topics = %q, %q", got[0].topic, got[1].topic)
	}
	if got[0].event != alert.EventAdmitted {
		t.Errorf("event = %q", got[0].event)
	}
}
