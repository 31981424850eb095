package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/presence-engine/presence"
)

type frame[T any] struct {
	Type  string `json:"type"`
	Data  T      `json:"data"`
	Error string `json:"error"`
}

func dialStream(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads snapshots until match accepts one or the deadline passes.
func readUntil[T any](t *testing.T, conn *websocket.Conn, match func(T) bool) T {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame[T]
		require.NoError(t, json.Unmarshal(b, &f))
		require.Equal(t, "snapshot", f.Type, f.Error)
		if match(f.Data) {
			return f.Data
		}
	}
}

func TestStream_Scenarios(t *testing.T) {
	// GIVEN: A subscriber on an owner with no scenario
	_, router, _ := setupTestHandler(t)
	srv := httptest.NewServer(router)
	defer srv.Close()
	conn := dialStream(t, srv, "/api/ws/scenarios?owner=alice")

	readUntil(t, conn, func(list []ScenarioDTO) bool { return len(list) == 0 })

	// WHEN: The owner initializes and publishes
	rec := do(t, router, "POST", "/api/scenarios/init", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sid := decodeAs[ScenarioDTO](t, rec).ID
	do(t, router, "POST", "/api/scenarios/"+sid+"/publish", "alice", nil)

	// THEN: The latest snapshot shows the master and its draft
	list := readUntil(t, conn, func(list []ScenarioDTO) bool { return len(list) == 2 })
	assert.Equal(t, sid, list[0].ID)
	assert.False(t, list[0].Editable)
	assert.True(t, list[1].Editable)

	// Another owner's writes are not delivered
	do(t, router, "POST", "/api/scenarios/init", "bob", nil)
	do(t, router, "POST", "/api/scenarios/"+list[1].ID+"/envelopes", "alice",
		map[string]any{"name": "Run", "type": "RUN", "amount": 10})
	list = readUntil(t, conn, func(list []ScenarioDTO) bool { return len(list) == 2 && len(list[1].Envelopes) == 1 })
	for _, s := range list {
		assert.Equal(t, "alice", s.OwnerID)
	}
}

func TestStream_Resources(t *testing.T) {
	_, router, _ := setupTestHandler(t)
	srv := httptest.NewServer(router)
	defer srv.Close()
	sid, rid := initWithResource(t, router)

	conn := dialStream(t, srv, "/api/ws/scenarios/"+sid+"/resources?owner=local")
	first := readUntil(t, conn, func(list []*presence.Resource) bool { return len(list) == 1 })
	assert.Equal(t, rid, first[0].ID)

	do(t, router, "PUT", "/api/scenarios/"+sid+"/resources/"+rid, "", map[string]any{"team": "Core"})
	updated := readUntil(t, conn, func(list []*presence.Resource) bool { return len(list) == 1 && list[0].Team == "Core" })
	assert.Equal(t, int64(2), updated[0].Revision)

	do(t, router, "DELETE", "/api/scenarios/"+sid+"/resources/"+rid, "", nil)
	readUntil(t, conn, func(list []*presence.Resource) bool { return len(list) == 0 })
}

func TestStream_ResourcesOfAnotherOwner(t *testing.T) {
	_, router, _ := setupTestHandler(t)
	srv := httptest.NewServer(router)
	defer srv.Close()
	sid, _ := initWithResource(t, router)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/scenarios/" + sid + "/resources?owner=mallory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
