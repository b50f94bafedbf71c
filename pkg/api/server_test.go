package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/bus/bustest"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Discard()
	goleak.VerifyTestMain(m)
}

type frame struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type fixture struct {
	hub    *bus.Hub
	rec    *bustest.Recorder
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := bus.NewHub()
	f := &fixture{hub: h, rec: bustest.NewRecorder(h), server: NewServer(h, "")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.server.serveHub(ctx)
	}()
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		f.http.Close()
	})

	require.Eventually(t, func() bool { return h.SubscriberCount(domain.TopicLog) == 2 }, 2*time.Second, 5*time.Millisecond)
	return f
}

func (f *fixture) dial(t *testing.T, origin string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.http.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.server.wsHub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"https://127.0.0.1:8443", true},
		{"http://[::1]:3000", true},
		{"http://localhost.evil.com", false},
		{"https://example.com", false},
		{"file://localhost", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, isAllowedOrigin(tt.origin))
		})
	}
}

func TestStreamsLogsAndThoughts(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "http://localhost:5173")

	require.NoError(t, f.hub.Log(domain.LevelSuccess, "Provider '%s' updated", "openai"))
	fr := readFrame(t, conn)
	assert.Equal(t, EventLog, fr.Type)
	assert.NotEmpty(t, fr.Timestamp)
	var ev bus.LogEvent
	require.NoError(t, json.Unmarshal(fr.Data, &ev))
	assert.Equal(t, domain.LevelSuccess, ev.Level)
	assert.Equal(t, "Provider 'openai' updated", ev.Message)
	assert.NotZero(t, ev.Timestamp)

	require.NoError(t, f.hub.Thought(domain.ThoughtWorking, "Intent identified: Transaction", "Preparing to call Bridge..."))
	fr = readFrame(t, conn)
	assert.Equal(t, EventThought, fr.Type)
	var th bus.AgentThought
	require.NoError(t, json.Unmarshal(fr.Data, &th))
	assert.Equal(t, domain.ThoughtWorking, th.Status)
	assert.Equal(t, "Preparing to call Bridge...", th.Details)
}

func TestClientInputIsPublished(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")

	require.NoError(t, conn.WriteJSON(map[string]string{"text": "swap 10 eth"}))
	require.True(t, f.rec.WaitFor(3*time.Second, func(r *bustest.Recorder) bool {
		return len(r.Inputs()) == 1
	}))
	assert.Equal(t, "swap 10 eth", f.rec.Inputs()[0].Text)
}

func TestInvalidInputGetsErrorFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"empty text", `{"text":""}`, "text"},
		{"malformed", `not json`, "malformed frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			conn := f.dial(t, "")

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))
			fr := readFrame(t, conn)
			assert.Equal(t, EventError, fr.Type)
			assert.Contains(t, string(fr.Data), tt.want)
			assert.Empty(t, f.rec.Inputs())
		})
	}
}

func TestForeignOriginIsRejected(t *testing.T) {
	f := newFixture(t)
	header := http.Header{"Origin": []string{"https://example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.http.URL, "http")+"/ws", header)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.server.wsHub.ClientCount())
}

func TestHealthzReportsSubscribers(t *testing.T) {
	f := newFixture(t)
	client := f.http.Client()

	resp, err := client.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string         `json:"status"`
		Clients     int            `json:"clients"`
		Subscribers map[string]int `json:"subscribers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Subscribers["log"], "recorder and event bridge")
	assert.Equal(t, 2, body.Subscribers["agent_thought"])
	assert.Equal(t, 1, body.Subscribers["user_input"])
	assert.Len(t, body.Subscribers, len(domain.AllTopics()))
}

func TestServeStopsWithContext(t *testing.T) {
	h := bus.NewHub()
	s := NewServer(h, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, h.SubscriberCount(domain.TopicLog), "event bridge detached")
}

func TestServeReturnsWhenListenerFails(t *testing.T) {
	h := bus.NewHub()
	s := NewServer(h, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api: serve")
	case <-time.After(3 * time.Second):
		t.Fatal("Serve kept running after the listener failed")
	}
	assert.Equal(t, 0, h.SubscriberCount(domain.TopicLog), "event bridge detached")
}
