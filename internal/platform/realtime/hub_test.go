package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	default:
		t.Fatalf("client %s received nothing", c.ID)
	}
	return Event{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("client %s unexpectedly received %s", c.ID, data)
	default:
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1", WardTopic("ICU"))

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount("ward:ICU") != 1 {
		t.Fatalf("counts after register: clients=%d topic=%d", hub.ClientCount(), hub.TopicCount("ward:ICU"))
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount("ward:ICU") != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected Send channel to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(c)
}

func TestHub_PublishOnlyReachesTopicSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	icu := newClient("icu", WardTopic("ICU"))
	general := newClient("general", WardTopic("General Ward"))
	hub.Register(icu)
	hub.Register(general)

	ev := NewEvent("bed:updated", "bed", "b-1", map[string]string{"status": "reserved"})
	if err := hub.Publish(context.Background(), WardTopic("ICU"), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recv(t, icu)
	if got.Type != "bed:updated" || got.Topic != "ward:ICU" || got.EntityID != "b-1" {
		t.Errorf("unexpected event %+v", got)
	}
	if !strings.Contains(string(got.Data), `"reserved"`) {
		t.Errorf("payload missing entity: %s", got.Data)
	}
	assertEmpty(t, general)
}

func TestHub_BroadcastReachesEveryone(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newClient("a", WardTopic("ICU"))
	b := newClient("b")
	hub.Register(a)
	hub.Register(b)

	if err := hub.Broadcast(context.Background(), NewEvent("request:created", "bed_request", "r-1", nil)); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	recv(t, a)
	recv(t, b)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"bed:1", "bed:2", "bed:1"}})
	if len(c.Topics) != 2 {
		t.Fatalf("topics = %v, want deduplicated", c.Topics)
	}
	if hub.TopicCount("bed:1") != 1 {
		t.Fatal("expected subscription on bed:1")
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"bed:1"}})
	if hub.TopicCount("bed:1") != 0 || hub.TopicCount("bed:2") != 1 {
		t.Fatalf("unexpected counts after unsubscribe: %d %d", hub.TopicCount("bed:1"), hub.TopicCount("bed:2"))
	}

	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Topics: []string{"bed:3"}})
	if hub.TopicCount("bed:3") != 0 {
		t.Error("unknown action must be ignored")
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Send: make(chan []byte, 1)}
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = hub.Broadcast(context.Background(), NewEvent("bed:updated", "bed", "x", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", "ward:ICU")
			hub.Register(c)
			_ = hub.Publish(context.Background(), "ward:ICU", Event{Type: "bed:updated"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=ward:ICU"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("ward:ICU") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("ward:ICU") != 1 {
		t.Fatal("expected initial topic subscription from query string")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"bed:b-9"}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	for hub.TopicCount("bed:b-9") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_ = hub.Publish(context.Background(), BedTopic("b-9"), NewEvent("bed:updated", "bed", "b-9", nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.EntityID != "b-9" || got.Topic != "bed:b-9" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	check := originChecker([]string{"https://dash.hospital.local"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("foreign origin must be rejected")
	}
	req.Header.Set("Origin", "https://dash.hospital.local")
	if !check(req) {
		t.Error("configured origin must be accepted")
	}
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" ward:ICU, ,bed:1,ward:ICU")
	if len(got) != 2 || got[0] != "ward:ICU" || got[1] != "bed:1" {
		t.Errorf("parseTopics = %v", got)
	}
}
