package session

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"studysync-backend/internal/board"
	"studysync-backend/internal/transport"
)

// State 세션 상태
type State int

const (
	StateLoading State = iota // 스냅샷 수신 대기
	StateReady                // 동기화 완료
	StateClosed               // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config 세션 설정
type Config struct {
	CanvasWidth  int
	CanvasHeight int
	NoteDebounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = 1280
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = 720
	}
	if c.NoteDebounce <= 0 {
		c.NoteDebounce = time.Second
	}
	return c
}

// Session is the explicit, room-scoped value owning one room's action
// log, canvas, note document, file registry, and transport handle. All
// cross-client mutation round-trips through the relay; local mutations
// are applied optimistically and broadcast.
type Session struct {
	RoomID   string
	UserID   string
	Nickname string

	tr transport.Transport

	mu     sync.Mutex
	state  State
	log    *board.Log
	canvas *board.Canvas

	notes *Notes
	files *Registry
}

// New 방 범위 세션 생성. Join을 호출해야 동기화가 시작된다.
func New(roomID, userID, nickname string, tr transport.Transport, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		RoomID:   roomID,
		UserID:   userID,
		Nickname: nickname,
		tr:       tr,
		state:    StateLoading,
		log:      board.NewLog(),
		canvas:   board.NewCanvas(cfg.CanvasWidth, cfg.CanvasHeight),
	}
	s.notes = newNotes(roomID, userID, cfg.NoteDebounce, tr)
	s.files = newRegistry(roomID, userID, nickname, tr)
	tr.OnEvent(s.handleEvent)
	return s
}

// Join subscribes all three channels and requests their snapshots. Must
// also be re-run in full after a transport reconnect: a disconnect is
// treated as a fresh join.
func (s *Session) Join() error {
	join := transport.JoinPayload{RoomID: s.RoomID, UserID: s.UserID}
	room := transport.JoinPayload{RoomID: s.RoomID}

	steps := []struct {
		name    string
		payload any
	}{
		{transport.EventJoinWhiteboard, join},
		{transport.EventGetWhiteboardState, room},
		{transport.EventJoinNotes, room},
		{transport.EventGetNotes, room},
		{transport.EventJoinFiles, room},
		{transport.EventGetFiles, room},
	}
	for _, step := range steps {
		if err := s.tr.Emit(step.name, s.RoomID, step.payload); err != nil {
			return fmt.Errorf("session: join %s: %w", step.name, err)
		}
	}
	return nil
}

// Draw applies a local action optimistically and broadcasts it as a
// single delta. The action is stamped with this session's user so
// peers and the self-echo filter can attribute it.
func (s *Session) Draw(a board.Action) error {
	a.UserID = s.UserID
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.log.Append(a)
	s.canvas.Apply(a)
	s.mu.Unlock()

	return s.tr.Emit(transport.EventWhiteboardAction, s.RoomID, a)
}

// Clear appends a clear action rather than wiping locally, so the clear
// is part of replayable history and latecomers see it identically.
func (s *Session) Clear() error {
	return s.Draw(board.Action{Type: board.ActionClear})
}

// Undo pops the last action, replays the remaining history from a
// blank canvas, and broadcasts the entire resulting list. Full replay
// is required because canvas drawing is not invertible; the full-list
// broadcast resynchronizes any peer that drifted.
func (s *Session) Undo() error {
	s.mu.Lock()
	if _, ok := s.log.Undo(); !ok {
		s.mu.Unlock()
		return nil
	}
	history := s.log.History()
	s.canvas.Replay(history)
	s.mu.Unlock()

	return s.flushState(history)
}

// Redo re-applies the most recently undone action. Only the cheap
// incremental render is needed: redo only ever adds forward.
func (s *Session) Redo() error {
	s.mu.Lock()
	action, ok := s.log.Redo()
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.canvas.Apply(action)
	history := s.log.History()
	s.mu.Unlock()

	return s.flushState(history)
}

func (s *Session) flushState(history []board.Action) error {
	return s.tr.Emit(transport.EventWhiteboardStateFlush, s.RoomID, transport.StateUpdate{
		RoomID:  s.RoomID,
		Actions: history,
	})
}

// handleEvent 릴레이 수신 이벤트 분배
func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Name {
	case transport.EventWhiteboardState:
		var state transport.WhiteboardState
		if err := json.Unmarshal(ev.Data, &state); err != nil {
			log.Printf("[Session %s] Malformed whiteboard-state: %v", s.RoomID, err)
			return
		}
		s.mu.Lock()
		s.log.Replace(state.Actions)
		s.canvas.Replay(state.Actions)
		if s.state == StateLoading {
			s.state = StateReady
		}
		s.mu.Unlock()

	case transport.EventWhiteboardAction:
		var action board.Action
		if err := json.Unmarshal(ev.Data, &action); err != nil {
			log.Printf("[Session %s] Malformed whiteboard-action: %v", s.RoomID, err)
			return
		}
		// At-most-once local render: the author already drew this when
		// it was created, the relay echo must not double-apply it.
		if action.UserID == s.UserID {
			return
		}
		s.mu.Lock()
		s.log.Append(action)
		s.canvas.Apply(action)
		s.mu.Unlock()

	case transport.EventNotesState:
		var content string
		if err := json.Unmarshal(ev.Data, &content); err != nil {
			return
		}
		s.notes.seed(content)

	case transport.EventNoteUpdated:
		var content string
		if err := json.Unmarshal(ev.Data, &content); err != nil {
			return
		}
		s.notes.applyRemote(content)

	case transport.EventFilesUpdate:
		var files []transport.SharedFile
		if err := json.Unmarshal(ev.Data, &files); err != nil {
			return
		}
		s.files.replace(files)

	case transport.EventError:
		var payload transport.ErrorPayload
		if err := json.Unmarshal(ev.Data, &payload); err == nil {
			log.Printf("[Session %s] Relay error: %s", s.RoomID, payload.Message)
		}
	}
}

// Notes 노트 채널 접근자
func (s *Session) Notes() *Notes {
	return s.notes
}

// Files 파일 레지스트리 접근자
func (s *Session) Files() *Registry {
	return s.files
}

// Canvas exposes the rendered raster for display or comparison.
func (s *Session) Canvas() *board.Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

// History returns a copy of the live action list.
func (s *Session) History() []board.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.History()
}

// CanUndo 실행 취소 가능 여부
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.CanUndo()
}

// CanRedo 다시 실행 가능 여부
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.CanRedo()
}

// State 현재 세션 상태
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close 세션 정리
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.notes.stop()
	return s.tr.Close()
}
