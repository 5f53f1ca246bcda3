package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/broadcast"
	"github.com/newsscope/newswire/internal/clock/system"
	"github.com/newsscope/newswire/internal/news"
	queuemem "github.com/newsscope/newswire/internal/queue/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *broadcast.Hub, *queuemem.Queue) {
	t.Helper()
	q := queuemem.New(100)
	require.NoError(t, q.CreateGroup(context.Background(), "g"))
	hub := broadcast.NewHub(system.New(), zap.NewNop())
	srv := NewServer(hub, q, 0, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.CloseAll)
	return ts, hub, q
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readEnvelope(t *testing.T, conn *websocket.Conn) broadcast.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env broadcast.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	ts, _, q := newTestServer(t)
	_, err := q.Enqueue(context.Background(), []byte("payload"))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Queue            news.QueueStats `json:"queue"`
		ConnectedClients int             `json:"connected_clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.EqualValues(t, 1, body.Queue.StreamLength)
	require.Zero(t, body.ConnectedClients)
}

func TestServer_WebSocket_WelcomeAndControl(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	welcome := readEnvelope(t, conn)
	require.Equal(t, broadcast.TypeWelcome, welcome.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	pong := readEnvelope(t, conn)
	require.Equal(t, broadcast.TypePong, pong.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "subscribe",
		"topics": []string{"business"},
	}))
	subscribed := readEnvelope(t, conn)
	require.Equal(t, broadcast.TypeSubscribed, subscribed.Type)
	require.Equal(t, []string{"business"}, subscribed.Topics)
}

func TestServer_WebSocket_ReceivesBroadcast(t *testing.T) {
	t.Parallel()

	ts, hub, _ := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	welcome := readEnvelope(t, conn)
	require.Equal(t, broadcast.TypeWelcome, welcome.Type)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(news.ArticleRecord{URL: "https://example.com/a", Title: "headline"})

	env := readEnvelope(t, conn)
	require.Equal(t, broadcast.TypeNewArticle, env.Type)
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var rec news.ArticleRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, "headline", rec.Title)
	require.Equal(t, "https://example.com/a", rec.URL)
}

func TestServer_WebSocket_DisconnectRemovesClient(t *testing.T) {
	t.Parallel()

	ts, hub, _ := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}
