package handler

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"studysync-backend/internal/board"
	"studysync-backend/internal/transport"
)

// SessionWSHandler 방 세션 동기화 WebSocket 핸들러. 화이트보드, 노트,
// 파일 세 채널이 연결 하나를 공유한다.
type SessionWSHandler struct {
	hub *RoomHub
}

// NewSessionWSHandler SessionWSHandler 생성
func NewSessionWSHandler(hub *RoomHub) *SessionWSHandler {
	return &SessionWSHandler{hub: hub}
}

// HandleWebSocket WebSocket 연결 처리
func (h *SessionWSHandler) HandleWebSocket(c *websocket.Conn) {
	userIDInterface := c.Locals("userId")
	nicknameInterface := c.Locals("nickname")

	userID, ok1 := userIDInterface.(string)
	nickname, ok2 := nicknameInterface.(string)

	if !ok1 || !ok2 || userID == "" {
		c.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"message":"invalid session"}}`))
		c.Close()
		return
	}

	var room *Room
	var client *Client

	// 연결 해제 시 정리
	defer func() {
		if room != nil && client != nil {
			room.RemoveClient(client)
		}
		c.Close()
		log.Printf("[SessionWS] Disconnected: user=%s", userID)
	}()

	// Pong doubles as a presence heartbeat.
	c.SetPongHandler(func(string) error {
		if room != nil && h.hub.presenceMgr != nil {
			if err := h.hub.presenceMgr.Heartbeat(room.ID, userID); err != nil {
				log.Printf("[SessionWS] Heartbeat failed: user=%s: %v", userID, err)
			}
		}
		return nil
	})

	log.Printf("[SessionWS] Connected: user=%s (%s)", userID, nickname)

	// 메시지 수신 루프
	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var ev transport.Event
		if err := json.Unmarshal(msgBytes, &ev); err != nil {
			continue
		}

		// The first join event binds the connection to its room.
		if room == nil {
			if !isJoinEvent(ev.Name) || ev.Room == "" {
				h.sendError(c, "join a room before sending events")
				continue
			}
			room, err = h.hub.GetOrCreateRoom(ev.Room)
			if err != nil {
				log.Printf("[SessionWS] Failed to resolve room %s: %v", ev.Room, err)
				h.sendError(c, "room unavailable")
				room = nil
				continue
			}
			client = room.AddClient(userID, nickname, c)
		}

		h.dispatch(room, client, ev)
	}
}

func isJoinEvent(name string) bool {
	switch name {
	case transport.EventJoinWhiteboard, transport.EventJoinNotes, transport.EventJoinFiles:
		return true
	}
	return false
}

// dispatch 이벤트별 처리
func (h *SessionWSHandler) dispatch(room *Room, client *Client, ev transport.Event) {
	switch ev.Name {

	// ===== Whiteboard =====
	case transport.EventJoinWhiteboard:
		room.Subscribe(client, ChannelWhiteboard)

	case transport.EventGetWhiteboardState:
		room.SendTo(client.ID, ChannelWhiteboard, transport.EventWhiteboardState,
			transport.WhiteboardState{Actions: room.Actions()})

	case transport.EventWhiteboardAction:
		var action board.Action
		if err := json.Unmarshal(ev.Data, &action); err != nil {
			room.SendTo(client.ID, ChannelWhiteboard, transport.EventError,
				transport.ErrorPayload{Message: "malformed whiteboard action"})
			return
		}
		// The sender's identity is taken from the connection, never
		// from the payload.
		action.UserID = client.ID
		if err := action.Validate(); err != nil {
			room.SendTo(client.ID, ChannelWhiteboard, transport.EventError,
				transport.ErrorPayload{Message: err.Error()})
			return
		}
		stamped := room.AppendAction(action)
		// Every subscriber gets the echo, the author included; clients
		// filter their own actions by userId.
		room.Broadcast(ChannelWhiteboard, transport.EventWhiteboardAction, stamped, "")

	case transport.EventWhiteboardStateFlush:
		var update transport.StateUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			room.SendTo(client.ID, ChannelWhiteboard, transport.EventError,
				transport.ErrorPayload{Message: "malformed state update"})
			return
		}
		// A flushed history is client input like any other: every entry
		// must pass the same checks as a single delta, or one connection
		// could poison the log every peer replays.
		for _, a := range update.Actions {
			if err := a.Validate(); err != nil {
				room.SendTo(client.ID, ChannelWhiteboard, transport.EventError,
					transport.ErrorPayload{Message: err.Error()})
				return
			}
		}
		room.ReplaceActions(update.Actions)
		room.Broadcast(ChannelWhiteboard, transport.EventWhiteboardState,
			transport.WhiteboardState{Actions: room.Actions()}, client.ID)

	// ===== Notes =====
	case transport.EventJoinNotes:
		room.Subscribe(client, ChannelNotes)

	case transport.EventGetNotes:
		room.SendTo(client.ID, ChannelNotes, transport.EventNotesState, room.Note())

	case transport.EventUpdateNote:
		var update transport.NoteUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			return
		}
		room.UpdateNote(update.Content)
		// Excluding the sender: echoing a live edit back would clobber
		// whatever they typed since.
		room.Broadcast(ChannelNotes, transport.EventNoteUpdated, update.Content, client.ID)

	case transport.EventSaveNote:
		var update transport.NoteUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			return
		}
		room.SaveNote(update.Content, client.ID)

	// ===== Files =====
	case transport.EventJoinFiles:
		room.Subscribe(client, ChannelFiles)

	case transport.EventGetFiles:
		room.SendTo(client.ID, ChannelFiles, transport.EventFilesUpdate, room.Files())

	case transport.EventShareFile:
		var share transport.ShareFile
		if err := json.Unmarshal(ev.Data, &share); err != nil {
			room.SendTo(client.ID, ChannelFiles, transport.EventError,
				transport.ErrorPayload{Message: "malformed share request"})
			return
		}
		file := share.File
		if file.ID == "" {
			file.ID = uuid.New().String()
		}
		if file.Timestamp.IsZero() {
			file.Timestamp = time.Now().UTC()
		}
		file.UploaderID = client.ID
		file.UploadedBy = client.Nickname
		room.AddFile(file)
		room.Broadcast(ChannelFiles, transport.EventFilesUpdate, room.Files(), "")

	case transport.EventDeleteFile:
		var del transport.DeleteFile
		if err := json.Unmarshal(ev.Data, &del); err != nil {
			return
		}
		removed, denied := room.DeleteFile(del.FileID, client.ID)
		if denied {
			room.SendTo(client.ID, ChannelFiles, transport.EventError,
				transport.ErrorPayload{Message: "only the uploader may delete a shared file"})
			return
		}
		if removed {
			room.Broadcast(ChannelFiles, transport.EventFilesUpdate, room.Files(), "")
		}
		// Nonexistent ID: registry unchanged, nothing to announce.

	default:
		log.Printf("[SessionWS] Unknown event %q from user=%s", ev.Name, client.ID)
	}
}

// sendError 방 배정 전의 연결에 직접 에러 전송
func (h *SessionWSHandler) sendError(c *websocket.Conn, message string) {
	ev, err := transport.Marshal(transport.EventError, "", transport.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.WriteMessage(websocket.TextMessage, data)
}
