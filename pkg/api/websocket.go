package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamhub/pkg/aggregate"
	"streamhub/pkg/config"
	"streamhub/pkg/engine"
	"streamhub/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI may be served from another origin
	},
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one connected UI. Each client owns the stream queries it started;
// they are cancelled when it disconnects.
type Client struct {
	conn *websocket.Conn
	send chan WSMessage
	done chan struct{}

	mu      sync.Mutex
	queries map[string]*aggregate.Query
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan WSMessage, 256),
		done:    make(chan struct{}),
		queries: make(map[string]*aggregate.Query),
	}
}

// push queues a message without blocking. Messages to a full or closed client
// are dropped.
func (c *Client) push(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to encode WS message", "type", msgType, "err", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- WSMessage{Type: msgType, Payload: raw}:
	default:
		logger.Debug("WS client buffer full, dropping message", "type", msgType)
	}
}

// track registers q under id, cancelling any query already using that id
func (c *Client) track(id string, q *aggregate.Query) {
	c.mu.Lock()
	prev := c.queries[id]
	c.queries[id] = q
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

func (c *Client) untrack(id string, q *aggregate.Query) {
	c.mu.Lock()
	if c.queries[id] == q {
		delete(c.queries, id)
	}
	c.mu.Unlock()
}

func (c *Client) cancel(id string) bool {
	c.mu.Lock()
	q, ok := c.queries[id]
	delete(c.queries, id)
	c.mu.Unlock()
	if ok {
		q.Cancel()
	}
	return ok
}

func (c *Client) cancelAll() {
	c.mu.Lock()
	queries := c.queries
	c.queries = make(map[string]*aggregate.Query)
	c.mu.Unlock()
	for _, q := range queries {
		q.Cancel()
	}
}

type queryStreamsMsg struct {
	QueryID string            `json:"queryId"`
	Request aggregate.Request `json:"request"`
}

type queryEvent struct {
	QueryID string             `json:"queryId"`
	View    *engine.RankedView `json:"view,omitempty"`
	Pending []string           `json:"pending,omitempty"`
}

type autoplayEvent struct {
	QueryID   string           `json:"queryId"`
	Selection engine.Selection `json:"selection"`
}

type errorEvent struct {
	QueryID string `json:"queryId,omitempty"`
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS upgrade failed", "err", err)
		return
	}

	client := newClient(conn)
	s.AddClient(client)
	logger.Debug("WS client connected", "remote", r.RemoteAddr)

	// Queries outlive individual messages but not the connection.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		client.cancelAll()
		s.RemoveClient(client)
		close(client.done)
		conn.Close()
		logger.Debug("WS client disconnected", "remote", r.RemoteAddr)
	}()

	client.push("log_history", logger.GetHistory())
	client.push("settings", s.engine.Settings())
	client.push("addons", s.listAddons())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(ctx, client)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxRequestBody)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WS read error", "err", err)
			}
			return
		}
		s.dispatchWS(ctx, client, msg)
	}
}

func (s *Server) dispatchWS(ctx context.Context, client *Client, msg WSMessage) {
	switch msg.Type {
	case "query_streams":
		var req queryStreamsMsg
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Request.ContentID == "" || req.Request.Type == "" {
			client.push("error", errorEvent{Message: "query_streams needs request.contentId and request.type"})
			return
		}
		s.startQuery(ctx, client, req)
	case "cancel_query":
		var req struct {
			QueryID string `json:"queryId"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			client.push("error", errorEvent{Message: "invalid cancel_query payload"})
			return
		}
		if client.cancel(req.QueryID) {
			logger.Debug("Stream query cancelled by client", "query", req.QueryID)
		}
	case "play":
		var req playRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Stream.URL == "" {
			client.push("error", errorEvent{Message: "play needs a stream with a url"})
			return
		}
		// Handoffs can block on the launcher; keep the read loop responsive.
		go func() {
			client.push("play_result", s.play(ctx, req))
		}()
	case "get_settings":
		client.push("settings", s.engine.Settings())
	case "save_settings":
		var next config.Settings
		if err := json.Unmarshal(msg.Payload, &next); err != nil {
			client.push("error", errorEvent{Message: "invalid settings"})
			return
		}
		saved, err := s.saveSettings(next)
		if err != nil {
			client.push("error", errorEvent{Message: err.Error()})
		}
		client.push("settings", saved)
	case "get_addons":
		client.push("addons", s.listAddons())
	default:
		logger.Debug("Unknown WS message", "type", msg.Type)
	}
}

// startQuery runs a stream query and forwards its ranked progress to client.
// A new query with the same id replaces the old one.
func (s *Server) startQuery(ctx context.Context, client *Client, req queryStreamsMsg) {
	id := req.QueryID
	if id == "" {
		id = req.Request.ContentID
		if req.Request.EpisodeID != "" {
			id += ":" + req.Request.EpisodeID
		}
	}

	var (
		q     *aggregate.Query
		ready = make(chan struct{})
	)
	obs := engine.ObserverFuncs{
		Ranked: func(v engine.RankedView) {
			client.push("streams_update", queryEvent{QueryID: id, View: &v})
		},
		StillFetching: func(pending []string) {
			client.push("streams_still_fetching", queryEvent{QueryID: id, Pending: pending})
		},
		Complete: func(v engine.RankedView) {
			client.push("streams_complete", queryEvent{QueryID: id, View: &v})
			<-ready
			go func() {
				<-q.Done()
				client.untrack(id, q)
			}()
		},
		Autoplay: func(sel engine.Selection) {
			client.push("autoplay", autoplayEvent{QueryID: id, Selection: sel})
		},
	}

	q = s.engine.QueryStreams(ctx, req.Request, obs)
	client.track(id, q)
	close(ready)
}
