package transport

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"studysync-backend/internal/board"
)

// MemoryRelay is an in-process implementation of the relay contract.
// It backs the session tests and lets the synchronization logic run
// without a network or a UI. Semantics mirror the websocket relay:
// per-room action log with relay-stamped sequence numbers, live note
// with last-writer-wins durable saves, and an authoritative file
// registry broadcast wholesale.
type MemoryRelay struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

type memoryRoom struct {
	actions []board.Action
	seq     int64

	note      string
	savedNote string
	saveCount int

	files     map[string]SharedFile
	fileOrder []string

	subs map[*MemoryConn]map[string]bool // conn -> joined channels
}

const (
	channelWhiteboard = "whiteboard"
	channelNotes      = "notes"
	channelFiles      = "files"
)

// NewMemoryRelay creates an empty relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{rooms: make(map[string]*memoryRoom)}
}

// Connect returns a Transport bound to this relay for one client. The
// identity belongs to the connection: the relay stamps it onto inbound
// actions and files instead of trusting payload fields.
func (r *MemoryRelay) Connect(userID, nickname string) *MemoryConn {
	return &MemoryConn{relay: r, userID: userID, nickname: nickname}
}

// SaveCount reports how many durable note saves a room has received.
func (r *MemoryRelay) SaveCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room.saveCount
	}
	return 0
}

// SavedNote returns the durably saved note content for a room.
func (r *MemoryRelay) SavedNote(roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room.savedNote
	}
	return ""
}

// Actions returns the authoritative action list for a room.
func (r *MemoryRelay) Actions(roomID string) []board.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return append([]board.Action(nil), room.actions...)
	}
	return nil
}

func (r *MemoryRelay) room(roomID string) *memoryRoom {
	room, ok := r.rooms[roomID]
	if !ok {
		room = &memoryRoom{
			files: make(map[string]SharedFile),
			subs:  make(map[*MemoryConn]map[string]bool),
		}
		r.rooms[roomID] = room
	}
	return room
}

// MemoryConn is one client's channel into a MemoryRelay.
type MemoryConn struct {
	relay    *MemoryRelay
	userID   string
	nickname string
	handler  Handler
	closed   bool
}

// OnEvent registers the relay-to-client handler.
func (c *MemoryConn) OnEvent(h Handler) {
	c.handler = h
}

// Close detaches the connection from every room.
func (c *MemoryConn) Close() error {
	c.relay.mu.Lock()
	defer c.relay.mu.Unlock()
	c.closed = true
	for _, room := range c.relay.rooms {
		delete(room.subs, c)
	}
	return nil
}

// Emit delivers one client event to the relay. Responses and broadcasts
// are dispatched synchronously, which keeps tests deterministic.
func (c *MemoryConn) Emit(name, roomID string, payload any) error {
	ev, err := Marshal(name, roomID, payload)
	if err != nil {
		return err
	}

	c.relay.mu.Lock()
	if c.closed {
		c.relay.mu.Unlock()
		return fmt.Errorf("memory transport: connection closed")
	}
	room := c.relay.room(roomID)

	// Collect deliveries under the lock, dispatch after release so a
	// handler can Emit again without deadlocking.
	var deliveries []func()

	switch name {
	case EventJoinWhiteboard:
		c.subscribe(room, channelWhiteboard)
	case EventJoinNotes:
		c.subscribe(room, channelNotes)
	case EventJoinFiles:
		c.subscribe(room, channelFiles)

	case EventGetWhiteboardState:
		state := WhiteboardState{Actions: append([]board.Action(nil), room.actions...)}
		deliveries = append(deliveries, c.deliveryTo(c, EventWhiteboardState, roomID, state))

	case EventWhiteboardAction:
		var action board.Action
		if err := json.Unmarshal(ev.Data, &action); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		action.UserID = c.userID
		if err := action.Validate(); err != nil {
			deliveries = append(deliveries, c.deliveryTo(c, EventError, roomID,
				ErrorPayload{Message: err.Error()}))
			break
		}
		room.seq++
		action.Seq = room.seq
		room.actions = append(room.actions, action)
		// Echoed to every subscriber, the author included: self-echo
		// suppression is the client's job.
		deliveries = room.broadcast(nil, channelWhiteboard, EventWhiteboardAction, roomID, action)

	case EventWhiteboardStateFlush:
		var update StateUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		// Flushed histories get the same scrutiny as single deltas; a
		// bad entry rejects the whole update so peers never replay it.
		if invalid := firstInvalid(update.Actions); invalid != nil {
			deliveries = append(deliveries, c.deliveryTo(c, EventError, roomID,
				ErrorPayload{Message: invalid.Error()}))
			break
		}
		room.actions = append(room.actions[:0:0], update.Actions...)
		state := WhiteboardState{Actions: append([]board.Action(nil), room.actions...)}
		deliveries = room.broadcast(c, channelWhiteboard, EventWhiteboardState, roomID, state)

	case EventGetNotes:
		deliveries = append(deliveries, c.deliveryTo(c, EventNotesState, roomID, room.note))

	case EventUpdateNote:
		var update NoteUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		room.note = update.Content
		deliveries = room.broadcast(c, channelNotes, EventNoteUpdated, roomID, update.Content)

	case EventSaveNote:
		var update NoteUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		room.note = update.Content
		room.savedNote = update.Content
		room.saveCount++

	case EventGetFiles:
		deliveries = append(deliveries, c.deliveryTo(c, EventFilesUpdate, roomID, room.fileList()))

	case EventShareFile:
		var share ShareFile
		if err := json.Unmarshal(ev.Data, &share); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		file := share.File
		file.UploaderID = c.userID
		file.UploadedBy = c.nickname
		if _, exists := room.files[file.ID]; !exists {
			room.files[file.ID] = file
			room.fileOrder = append(room.fileOrder, file.ID)
		}
		deliveries = room.broadcast(nil, channelFiles, EventFilesUpdate, roomID, room.fileList())

	case EventDeleteFile:
		var del DeleteFile
		if err := json.Unmarshal(ev.Data, &del); err != nil {
			c.relay.mu.Unlock()
			return err
		}
		file, exists := room.files[del.FileID]
		switch {
		case !exists:
			// Deleting a nonexistent file leaves the registry unchanged.
		case file.UploaderID != c.userID:
			deliveries = append(deliveries, c.deliveryTo(c, EventError, roomID,
				ErrorPayload{Message: "only the uploader may delete a shared file"}))
		default:
			delete(room.files, del.FileID)
			deliveries = room.broadcast(nil, channelFiles, EventFilesUpdate, roomID, room.fileList())
		}

	default:
		c.relay.mu.Unlock()
		return fmt.Errorf("memory transport: unknown event %q", name)
	}
	c.relay.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

// firstInvalid returns the validation error of the first action that
// fails its structural checks, or nil.
func firstInvalid(actions []board.Action) error {
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *MemoryConn) subscribe(room *memoryRoom, channel string) {
	if room.subs[c] == nil {
		room.subs[c] = make(map[string]bool)
	}
	room.subs[c][channel] = true
}

func (c *MemoryConn) deliveryTo(target *MemoryConn, name, roomID string, payload any) func() {
	ev, err := Marshal(name, roomID, payload)
	if err != nil {
		return func() {}
	}
	handler := target.handler
	return func() {
		if handler != nil {
			handler(ev)
		}
	}
}

// broadcast builds deliveries for every conn subscribed to the channel,
// optionally excluding one sender.
func (room *memoryRoom) broadcast(exclude *MemoryConn, channel, name, roomID string, payload any) []func() {
	ev, err := Marshal(name, roomID, payload)
	if err != nil {
		return nil
	}
	var deliveries []func()
	for conn, channels := range room.subs {
		if conn == exclude || !channels[channel] {
			continue
		}
		handler := conn.handler
		if handler == nil {
			continue
		}
		deliveries = append(deliveries, func() { handler(ev) })
	}
	return deliveries
}

// fileList returns the registry in share order.
func (room *memoryRoom) fileList() []SharedFile {
	ids := append([]string(nil), room.fileOrder...)
	files := make([]SharedFile, 0, len(room.files))
	for _, id := range ids {
		if f, ok := room.files[id]; ok {
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files
}
