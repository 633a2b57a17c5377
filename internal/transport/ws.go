package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// WSTransport 릴레이에 연결된 websocket 클라이언트 채널
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	handlerMu    sync.RWMutex
	handler      Handler
	onDisconnect func(error)

	done chan struct{}
	once sync.Once
}

// Dial connects to the relay's room endpoint. The access token rides in
// a cookie, matching the relay's upgrade guard.
func Dial(url, accessToken string) (*WSTransport, error) {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Cookie", "access_token="+accessToken)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	t := &WSTransport{
		conn: conn,
		done: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go t.readLoop()
	go t.pingLoop()
	return t, nil
}

// OnEvent registers the handler for relay-to-client events.
func (t *WSTransport) OnEvent(h Handler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// OnDisconnect registers a callback fired once when the channel drops.
// After a reconnect the caller must re-run the full join/snapshot
// sequence; a disconnect is equivalent to a fresh join.
func (t *WSTransport) OnDisconnect(fn func(error)) {
	t.handlerMu.Lock()
	t.onDisconnect = fn
	t.handlerMu.Unlock()
}

// Emit marshals and sends one event. Best-effort: a dropped frame is
// not retried here.
func (t *WSTransport) Emit(name, room string, payload any) error {
	ev, err := Marshal(name, room, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the channel down.
func (t *WSTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.conn.Close()
}

func (t *WSTransport) readLoop() {
	defer t.Close()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.handlerMu.RLock()
			onDisconnect := t.onDisconnect
			t.handlerMu.RUnlock()
			if onDisconnect != nil {
				onDisconnect(err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[Transport] Dropping malformed event: %v", err)
			continue
		}

		t.handlerMu.RLock()
		handler := t.handler
		t.handlerMu.RUnlock()
		if handler != nil {
			handler(ev)
		}
	}
}

func (t *WSTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
