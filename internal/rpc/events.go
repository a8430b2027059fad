package rpc

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nicolocarcagni/fulmine/internal/validator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WireEvent is the JSON shape pushed to websocket subscribers.
type WireEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventHub fans out orchestrator events to connected websocket clients.
type EventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan WireEvent
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*websocket.Conn]chan WireEvent)}
}

// ServeWS upgrades the request to a websocket and streams events to it
// until the connection closes.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fulmine: websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan WireEvent, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	go h.discardInbound(conn)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// discardInbound reads (and drops) client frames so the connection's
// read deadline / pong handling stays serviced until it closes.
func (h *EventHub) discardInbound(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) broadcast(ev WireEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			log.Printf("fulmine: dropping event for slow websocket client %s", conn.RemoteAddr())
		}
	}
}

// publishOrchestratorEvent adapts a validator.Event into a WireEvent.
func (h *EventHub) publishOrchestratorEvent(ev validator.Event) {
	payload := map[string]interface{}{}
	if ev.Batch != nil {
		payload["batchId"] = ev.Batch.ID
		payload["batchNumber"] = ev.Batch.BatchNumber
	}
	if ev.Block != nil {
		payload["blockNumber"] = ev.Block.Number
		payload["blockHash"] = ev.Block.Hash
	}
	if ev.Ack != nil {
		payload["confidence"] = ev.Ack.Confidence
		payload["timeToFinality"] = ev.Ack.TimeToFinality
	}
	raw, _ := json.Marshal(payload)
	var data interface{}
	_ = json.Unmarshal(raw, &data)
	h.broadcast(WireEvent{Type: string(ev.Type), Data: data})
}
