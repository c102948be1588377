package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/videobot/runtime/internal/streams"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// testServer accepts one WebSocket connection per incoming HTTP request,
// acks every subscribe with subscribe/ok, and lets the test script push
// subscription data or sever the connection at will.
type testServer struct {
	mu    sync.Mutex
	conns []*websocket.Conn
	http  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{}
	ts.http = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()
		go ts.serve(conn)
	}))
	return ts
}

func (ts *testServer) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env incomingEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Action {
		case actionSubscribe:
			var body subscribeBody
			_ = json.Unmarshal(env.Body, &body)
			ts.recordSubscribe(body.Channel, body.SubscriptionID)
			reply, _ := json.Marshal(outgoingEnvelope{Action: actionSubscribeOK, ID: env.ID})
			_ = conn.WriteMessage(websocket.TextMessage, reply)
		}
	}
}

var subscribeLog struct {
	mu   sync.Mutex
	subs []string
}

func (ts *testServer) recordSubscribe(channel, handle string) {
	subscribeLog.mu.Lock()
	subscribeLog.subs = append(subscribeLog.subs, channel+"|"+handle)
	subscribeLog.mu.Unlock()
}

func (ts *testServer) wsURL() string {
	u, _ := url.Parse(ts.http.URL)
	u.Scheme = "ws"
	return u.String()
}

func (ts *testServer) killAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		_ = c.Close()
	}
}

func (ts *testServer) close() { ts.http.Close() }

// TestResilientClientResubscribesAfterTransportError is scenario S6: a
// transport error on one held subscription triggers exactly one reconnect,
// after which every previously held subscription is replayed in order.
func TestResilientClientResubscribesAfterTransportError(t *testing.T) {
	subscribeLog.mu.Lock()
	subscribeLog.subs = nil
	subscribeLog.mu.Unlock()

	srv := newTestServer(t)
	defer srv.close()

	var connectCount atomic.Int64
	factory := func() Client {
		connectCount.Add(1)
		return NewWSClient(srv.wsURL(), nil)
	}

	rc := NewResilientClient(factory, nil)
	ctx := context.Background()

	started := make(chan struct{})
	rc.Start(ctx).On(func(_ streams.Void, err error) {
		if err != nil {
			t.Errorf("start: %v", err)
		}
		close(started)
	})
	<-started

	var errs []error
	var errMu sync.Mutex
	cb := SubscribeCallbacks{
		OnData:  func(messages []json.RawMessage) {},
		OnError: func(err error) { errMu.Lock(); errs = append(errs, err); errMu.Unlock() },
	}
	if err := rc.Subscribe("bot/cam", "handle-1", cb, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Wait for the subscribe/ok roundtrip before severing the connection.
	waitForSubCount(t, 1)

	srv.killAll()

	// The read-loop failure should trigger handleTransportError, a
	// reconnect, and a replayed subscribe on the new connection.
	waitForSubCount(t, 2)

	if got := connectCount.Load(); got != 2 {
		t.Fatalf("expected exactly 2 connects (initial + 1 reconnect), got %d", got)
	}

	subscribeLog.mu.Lock()
	subs := append([]string(nil), subscribeLog.subs...)
	subscribeLog.mu.Unlock()
	for _, s := range subs {
		if !strings.HasPrefix(s, "bot/cam|handle-1") {
			t.Fatalf("unexpected replayed subscription: %s", s)
		}
	}
}

func waitForSubCount(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		subscribeLog.mu.Lock()
		count := len(subscribeLog.subs)
		subscribeLog.mu.Unlock()
		if count >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscribe acks", n)
}
