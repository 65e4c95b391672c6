package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
)

const writeWait = 10 * time.Second

var watchableTables = map[string]bool{
	dbsql.TableMessages: true,
	dbsql.TableLikes:    true,
	dbsql.TableComments: true,
}

// WSHandler streams change events for one table over a websocket.
// GET /realtime/{table}?events=INSERT,DELETE
type WSHandler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewWSHandler(cfg *config.Config, hub *Hub) *WSHandler {
	ping := time.Duration(cfg.Realtime.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin checks are done by the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: ping,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if !watchableTables[table] {
		http.Error(w, "unknown table", http.StatusNotFound)
		return
	}
	mask := common.ParseEventMask(r.URL.Query().Get("events"))
	if mask == 0 {
		http.Error(w, "no valid event types", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Channel(table, mask)
	defer sub.Close()

	// the reader only exists to notice the client going away and to
	// extend the deadline on pongs
	readerDone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-h.hub.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
