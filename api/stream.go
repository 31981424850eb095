/*
stream.go - WebSocket push of store subscriptions

PURPOSE:
  Streams the owner's scenario list and a scenario's resource collection to
  clients as they change, on top of Store.SubscribeScenarios and
  Store.SubscribeResources.

PROTOCOL:
  Server -> client text frames, JSON:
    {"type": "snapshot", "data": [...]}   full current state
    {"type": "error", "error": "..."}     subscription ended; socket closes

  Every snapshot is the complete list: a slow client skips intermediate
  states and receives the latest one. The socket closes when the client
  disconnects or the subscription errors; there is no automatic resubscribe.

ENDPOINTS:
  GET /api/ws/scenarios?owner=
  GET /api/ws/scenarios/{id}/resources?owner=

  Browsers cannot set headers on a WebSocket handshake, so ?owner= is
  accepted in place of X-User-ID.
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Streams are read-only; origin policy is enforced on the REST surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one frame sent to a subscriber.
type StreamMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// StreamScenarios pushes the owner's scenario list.
func (h *Handler) StreamScenarios(w http.ResponseWriter, r *http.Request) {
	owner := streamOwner(r)
	store := h.Manager.Store()
	serveStream(w, r, h, func(ctx context.Context, onUpdate func(any), onError func(error)) func() {
		return store.SubscribeScenarios(ctx, owner, func(list []scenario.Scenario) {
			onUpdate(toScenarioDTOs(list))
		}, onError)
	})
}

// StreamResources pushes a scenario's resource list.
func (h *Handler) StreamResources(w http.ResponseWriter, r *http.Request) {
	r.Header.Set(ownerHeader, streamOwner(r))
	s, ok := h.scenarioFor(w, r)
	if !ok {
		return
	}
	store := h.Manager.Store()
	serveStream(w, r, h, func(ctx context.Context, onUpdate func(any), onError func(error)) func() {
		return store.SubscribeResources(ctx, s.ID, func(list []*presence.Resource) {
			if list == nil {
				list = []*presence.Resource{}
			}
			onUpdate(list)
		}, onError)
	})
}

type subscribeFunc func(ctx context.Context, onUpdate func(any), onError func(error)) (unsubscribe func())

func serveStream(w http.ResponseWriter, r *http.Request, h *Handler, subscribe subscribeFunc) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		h.Logger.Warn("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Latest-wins mailbox: the subscription goroutine never blocks on a slow socket
	updates := make(chan any, 1)
	failures := make(chan error, 1)
	push := func(v any) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- v:
		default:
		}
	}
	unsubscribe := subscribe(ctx, push, func(err error) {
		select {
		case failures <- err:
		default:
		}
	})
	defer unsubscribe()

	// Reader: the only way to notice the client went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-updates:
			if err := writeFrame(conn, StreamMessage{Type: "snapshot", Data: v}); err != nil {
				return
			}
		case err := <-failures:
			h.Logger.Warn("subscription ended", "path", r.URL.Path, "error", err)
			_ = writeFrame(conn, StreamMessage{Type: "error", Error: err.Error()})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription ended"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func streamOwner(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return ownerFrom(r)
}
