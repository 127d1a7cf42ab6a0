package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pluginhost/pluginhostd/internal/core"
)

// wsMessage is the envelope every event-stream message is sent as.
type wsMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EventHub fans out Controller lifecycle callbacks to every connected admin
// websocket client. It is pushed to, never polled: a client sees an event
// the moment the Controller fires it, not on the next tick of a ticker.
type EventHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*websocket.Conn
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*websocket.Conn),
	}
}

// Callbacks adapts the hub into the shape Controller.SetCallbacks expects.
func (h *EventHub) Callbacks() core.ObserverCallbacks {
	return core.ObserverCallbacks{
		OnInstall: func(path core.ArtifactPath) {
			h.broadcast("install", gin.H{"path": string(path)})
		},
		OnReplace: func(oldPath, newPath core.ArtifactPath) {
			h.broadcast("replace", gin.H{"old_path": string(oldPath), "new_path": string(newPath)})
		},
		OnRestoreEnter: func() {
			h.broadcast("restore_enter", nil)
		},
		OnRestoreExit: func(recovered bool) {
			h.broadcast("restore_exit", gin.H{"recovered": recovered})
		},
		OnRollbackFailed: func(identity core.Identity) {
			h.broadcast("rollback_failed", gin.H{"identity": string(identity)})
		},
		OnDropped: func(path core.ArtifactPath, reason string) {
			h.broadcast("dropped", gin.H{"path": string(path), "reason": reason})
		},
	}
}

// Handle upgrades the request to a websocket connection and registers the
// client until it disconnects.
func (h *EventHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()

	h.mu.Lock()
	h.clients[clientID] = conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
	}()

	// The client never needs to send anything; read loop only exists to
	// detect disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) broadcast(eventType string, data interface{}) {
	msg, err := json.Marshal(wsMessage{Type: eventType, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for clientID, conn := range h.clients {
		go func(conn *websocket.Conn, clientID string) {
			defer func() {
				if r := recover(); r != nil {
					h.mu.Lock()
					delete(h.clients, clientID)
					h.mu.Unlock()
				}
			}()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			conn.WriteMessage(websocket.TextMessage, msg)
		}(conn, clientID)
	}
}
