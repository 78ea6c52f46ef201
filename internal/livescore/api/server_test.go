package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"livescore/internal/livescore/hub"
	"livescore/internal/livescore/model"
	"livescore/internal/livescore/monitor"
	"livescore/internal/livescore/reconciler"
	"livescore/internal/livescore/store"
)

type stubTasks struct{ ran []string }

func (s *stubTasks) Trigger(_ context.Context, name string) (string, error) {
	if name != "crawl_live_scores" {
		return "", errors.New("unknown task")
	}
	s.ran = append(s.ran, name)
	return "job-1", nil
}

type testServer struct {
	*httptest.Server
	matches *store.MemoryMatchStore
	hub     *hub.Hub
	tasks   *stubTasks
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		matches: store.NewMemoryMatchStore(),
		hub:     hub.New(zap.NewNop()),
		tasks:   &stubTasks{},
		now:     time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC),
	}
	svc := reconciler.NewService(zap.NewNop(), ts.matches)
	svc.Now = func() time.Time { return ts.now }

	srv := &Server{
		Log:     zap.NewNop(),
		Matches: svc,
		Hub:     ts.hub,
		Monitor: monitor.NewJobMonitor(zap.NewNop(), store.NewMemoryJobStore(), nil),
		Tasks:   ts.tasks,
	}
	ts.Server = httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) getJSON(t *testing.T, path string, want int) map[string]any {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, want, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestMatchEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	minute := 67
	live := &model.MatchSnapshot{
		ExternalID: "42",
		HomeTeam:   model.Team{Name: "Arsenal"},
		AwayTeam:   model.Team{Name: "Chelsea"},
		Status:     model.StatusLive,
		Minute:     &minute,
		MatchDate:  ts.now.Add(-time.Hour),
		Score:      model.MatchScore{Home: 2, Away: 1},
		Events:     []model.MatchEvent{{Type: model.EventGoal, Minute: 10, Player: "A", Team: model.SideHome}},
		Statistics: map[string]model.TeamStat{"shots": {Home: 9, Away: 4}},
	}
	require.NoError(t, ts.matches.Insert(ctx, live))
	require.NoError(t, ts.matches.Insert(ctx, &model.MatchSnapshot{
		ExternalID: "43",
		Status:     model.StatusScheduled,
		MatchDate:  ts.now.Add(48 * time.Hour),
		Events:     []model.MatchEvent{},
	}))

	body := ts.getJSON(t, "/matches/live", http.StatusOK)
	assert.EqualValues(t, 1, body["total"])

	body = ts.getJSON(t, "/matches/today", http.StatusOK)
	assert.EqualValues(t, 1, body["total"])

	body = ts.getJSON(t, "/matches/upcoming?days=3", http.StatusOK)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 3, body["days"])

	body = ts.getJSON(t, "/matches/42", http.StatusOK)
	assert.Equal(t, "42", body["data"].(map[string]any)["external_id"])

	body = ts.getJSON(t, "/matches/"+live.ID.Hex()+"/events", http.StatusOK)
	assert.Equal(t, "42", body["match_id"])
	assert.EqualValues(t, 1, body["total"])

	body = ts.getJSON(t, "/matches/42/stats", http.StatusOK)
	assert.Contains(t, body["statistics"], "shots")

	ts.getJSON(t, "/matches/missing", http.StatusNotFound)
}

func TestCrawlerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	body := ts.getJSON(t, "/crawler/health", http.StatusOK)
	assert.Equal(t, "healthy", body["status"])

	body = ts.getJSON(t, "/crawler/jobs", http.StatusOK)
	assert.EqualValues(t, 0, body["total"])

	body = ts.getJSON(t, "/crawler/stats?hours=6", http.StatusOK)
	assert.EqualValues(t, 6, body["period_hours"])

	resp, err := http.Post(ts.URL+"/crawler/tasks/crawl_live_scores/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"crawl_live_scores"}, ts.tasks.ran)

	resp, err = http.Post(ts.URL+"/crawler/tasks/nope/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketSubscribeAndBroadcast(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, hub.ClientMessage{Action: "subscribe", Channels: []string{"match:42", " "}}))
	var ack hub.Reply
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.Equal(t, hub.Reply{Type: "subscribed", Channels: []string{"match:42"}}, ack)

	body := ts.getJSON(t, "/ws/channels", http.StatusOK)
	assert.EqualValues(t, 1, body["sessions"])
	assert.EqualValues(t, 1, body["channels"].(map[string]any)["match:42"])

	delivered := ts.hub.Broadcast(ctx, "match:42", map[string]any{"type": "match_score", "channel": "match:42"})
	assert.Equal(t, 1, delivered)

	var msg map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "match_score", msg["type"])

	require.NoError(t, wsjson.Write(ctx, conn, hub.ClientMessage{Action: "ping"}))
	var pong hub.Reply
	require.NoError(t, wsjson.Read(ctx, conn, &pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return ts.hub.SessionCount() == 0 }, time.Second, 10*time.Millisecond)
}
