package transport

import "encoding/json"

// Event 채널 위를 오가는 단일 메시지
type Event struct {
	Name string          `json:"event"`
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// 이벤트 이름 (클라이언트 ⇄ 릴레이)
const (
	EventJoinWhiteboard       = "join-whiteboard"
	EventGetWhiteboardState   = "get-whiteboard-state"
	EventWhiteboardState      = "whiteboard-state"
	EventWhiteboardAction     = "whiteboard-action"
	EventWhiteboardStateFlush = "whiteboard-state-update"

	EventJoinNotes   = "join-notes"
	EventGetNotes    = "get-notes"
	EventNotesState  = "notes-state"
	EventUpdateNote  = "update-note"
	EventNoteUpdated = "note-updated"
	EventSaveNote    = "save-note"

	EventJoinFiles   = "join-files"
	EventGetFiles    = "get-files"
	EventFilesUpdate = "files-update"
	EventShareFile   = "share-file"
	EventDeleteFile  = "delete-file"

	EventError = "error"
)

// Handler 수신 이벤트 콜백
type Handler func(Event)

// Transport is one bidirectional, room-scoped event channel. Emit is
// non-blocking from the caller's perspective: delivery is best-effort
// and never waits for acknowledgment.
type Transport interface {
	// Emit sends an event to the relay. Payload is marshaled to JSON.
	Emit(name, room string, payload any) error
	// OnEvent registers the handler invoked for every relay-to-client
	// event. Must be set before the first Emit.
	OnEvent(h Handler)
	Close() error
}

// Marshal 페이로드 직렬화 헬퍼
func Marshal(name, room string, payload any) (Event, error) {
	ev := Event{Name: name, Room: room}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Data = data
	}
	return ev, nil
}
