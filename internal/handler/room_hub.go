package handler

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studysync-backend/internal/board"
	"studysync-backend/internal/cache"
	"studysync-backend/internal/config"
	"studysync-backend/internal/model"
	"studysync-backend/internal/presence"
	"studysync-backend/internal/transport"
)

// =============================================================================
// Room Hub - Room 단위 WebSocket 세션 동기화 관리
// =============================================================================

// RoomHub manages all active rooms and their connections
type RoomHub struct {
	rooms       map[string]*Room
	mu          sync.RWMutex
	cfg         *config.Config
	db          *gorm.DB
	redisClient *cache.RedisClient
	presenceMgr *presence.Manager
	serverID    string
}

// Room holds the authoritative live state for one room: the ordered
// whiteboard action log, the shared note document, and the file
// registry. The in-memory copy is the source of truth while the room is
// hot; Redis and Postgres are write-through behind it.
type Room struct {
	ID   string // 외부 코드 (클라이언트가 join에 쓰는 값)
	dbID int64  // rooms 테이블 PK

	Clients map[string]*Client

	seq     int64
	actions []board.Action
	note    string
	files   map[string]transport.SharedFile

	broadcast chan *outboundMessage
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	hub       *RoomHub
	isRunning bool
}

// Client represents one connected user
type Client struct {
	ID       string
	Nickname string
	Conn     *websocket.Conn
	writeMu  sync.Mutex

	// Channel subscriptions within the room (whiteboard, notes, files).
	channels map[string]bool
}

// outboundMessage is queued for the broadcaster goroutine
type outboundMessage struct {
	channel   string
	event     transport.Event
	excludeID string // empty means deliver to everyone subscribed
	onlyID    string // non-empty means deliver to this client only
}

// 채널 이름
const (
	ChannelWhiteboard = "whiteboard"
	ChannelNotes      = "notes"
	ChannelFiles      = "files"
)

// NewRoomHub creates a new RoomHub instance
func NewRoomHub(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient, presenceMgr *presence.Manager, serverID string) *RoomHub {
	return &RoomHub{
		rooms:       make(map[string]*Room),
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		presenceMgr: presenceMgr,
		serverID:    serverID,
	}
}

// GetOrCreateRoom gets an existing hot room or hydrates one
func (h *RoomHub) GetOrCreateRoom(roomCode string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[roomCode]; exists {
		return room, nil
	}

	dbID, err := h.resolveRoomID(roomCode)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := &Room{
		ID:        roomCode,
		dbID:      dbID,
		Clients:   make(map[string]*Client),
		files:     make(map[string]transport.SharedFile),
		broadcast: make(chan *outboundMessage, 256),
		ctx:       ctx,
		cancel:    cancel,
		hub:       h,
	}
	room.hydrate()

	h.rooms[roomCode] = room
	log.Printf("[RoomHub] Created room: %s (db id %d, %d actions)", roomCode, dbID, len(room.actions))

	return room, nil
}

// resolveRoomID finds or creates the rooms row for a code
func (h *RoomHub) resolveRoomID(roomCode string) (int64, error) {
	if h.db == nil {
		return 0, nil
	}

	var rec model.Room
	err := h.db.Where("code = ?", roomCode).First(&rec).Error
	if err == nil {
		return rec.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	rec = model.Room{Code: roomCode, Title: roomCode, Status: model.RoomStatusOpen.String()}
	if err := h.db.Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// hydrate loads the room's state, preferring the Redis hot copy and
// falling back to Postgres when the cache has expired.
func (r *Room) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.hub.redisClient != nil {
		if actions, err := r.hub.redisClient.GetActions(ctx, r.ID); err == nil && len(actions) > 0 {
			r.actions = actions
			r.seq = maxSeq(actions)
		}
		if note, err := r.hub.redisClient.GetNote(ctx, r.ID); err == nil && note != "" {
			r.note = note
		}
		if files, err := r.hub.redisClient.GetFiles(ctx, r.ID); err == nil {
			for _, f := range files {
				r.files[f.ID] = f
			}
		}
	}

	if r.hub.db == nil || r.dbID == 0 {
		return
	}

	if len(r.actions) == 0 {
		var rows []model.BoardAction
		if err := r.hub.db.Where("room_id = ?", r.dbID).Order("seq asc").Find(&rows).Error; err == nil {
			for _, row := range rows {
				var a board.Action
				if err := json.Unmarshal([]byte(row.Payload), &a); err != nil {
					continue
				}
				r.actions = append(r.actions, a)
			}
			r.seq = maxSeq(r.actions)
		}
	}

	if r.note == "" {
		var note model.RoomNote
		if err := r.hub.db.First(&note, "room_id = ?", r.dbID).Error; err == nil {
			r.note = note.Content
		}
	}

	if len(r.files) == 0 {
		var rows []model.SharedFile
		if err := r.hub.db.Where("room_id = ? AND deleted_at IS NULL", r.dbID).Order("created_at asc").Find(&rows).Error; err == nil {
			for _, row := range rows {
				r.files[row.ID] = transport.SharedFile{
					ID:         row.ID,
					Name:       row.Name,
					Size:       row.Size,
					Type:       row.MimeType,
					URL:        row.URL,
					UploadedBy: row.UploadedBy,
					UploaderID: row.UploaderID,
					Timestamp:  row.CreatedAt,
				}
			}
		}
	}
}

func maxSeq(actions []board.Action) int64 {
	var max int64
	for _, a := range actions {
		if a.Seq > max {
			max = a.Seq
		}
	}
	return max
}

// RemoveRoom removes an empty room
func (h *RoomHub) RemoveRoom(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[roomCode]; exists {
		room.mu.RLock()
		empty := len(room.Clients) == 0
		room.mu.RUnlock()
		if !empty {
			return
		}
		room.Shutdown()
		delete(h.rooms, roomCode)
		log.Printf("[RoomHub] Removed room: %s", roomCode)
	}
}

// CleanupInactiveRooms removes rooms with no connected clients
func (h *RoomHub) CleanupInactiveRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomCode, room := range h.rooms {
		room.mu.RLock()
		isEmpty := len(room.Clients) == 0
		room.mu.RUnlock()

		if isEmpty {
			room.Shutdown()
			delete(h.rooms, roomCode)
			log.Printf("[RoomHub] Cleaned up inactive room: %s", roomCode)
		}
	}
}

// =============================================================================
// Room Methods
// =============================================================================

// AddClient registers a connection with the room. A reconnect under the
// same userID supersedes the old connection, which gets closed so its
// read loop unwinds.
func (r *Room) AddClient(userID, nickname string, conn *websocket.Conn) *Client {
	r.mu.Lock()
	old := r.Clients[userID]
	client := &Client{
		ID:       userID,
		Nickname: nickname,
		Conn:     conn,
		channels: make(map[string]bool),
	}
	r.Clients[userID] = client
	total := len(r.Clients)

	if !r.isRunning {
		r.isRunning = true
		go r.runBroadcaster()
	}
	r.mu.Unlock()

	if old != nil {
		log.Printf("[Room %s] Superseding stale connection for %s", r.ID, userID)
		if old.Conn != nil {
			old.Conn.Close()
		}
	}

	log.Printf("[Room %s] Added client: %s (%s), total: %d", r.ID, userID, nickname, total)

	if r.hub.presenceMgr != nil {
		if err := r.hub.presenceMgr.Join(r.ID, userID, nickname, r.hub.serverID); err != nil {
			log.Printf("[Room %s] Presence join failed for %s: %v", r.ID, userID, err)
		}
	}

	return client
}

// RemoveClient removes a connection from the room. A client that was
// already superseded by a reconnect leaves the map entry (and the
// presence record) of its replacement alone.
func (r *Room) RemoveClient(client *Client) {
	r.mu.Lock()
	if r.Clients[client.ID] != client {
		r.mu.Unlock()
		log.Printf("[Room %s] Ignoring removal of superseded connection for %s", r.ID, client.ID)
		return
	}
	delete(r.Clients, client.ID)
	remaining := len(r.Clients)
	r.mu.Unlock()

	log.Printf("[Room %s] Removed client: %s, remaining: %d", r.ID, client.ID, remaining)

	if r.hub.presenceMgr != nil {
		if err := r.hub.presenceMgr.Leave(r.ID, client.ID); err != nil {
			log.Printf("[Room %s] Presence leave failed for %s: %v", r.ID, client.ID, err)
		}
	}

	if remaining == 0 {
		go r.hub.RemoveRoom(r.ID)
	}
}

// Subscribe marks a client as joined to one of the room's channels
func (r *Room) Subscribe(client *Client, channel string) {
	r.mu.Lock()
	client.channels[channel] = true
	r.mu.Unlock()
}

// =============================================================================
// Whiteboard state
// =============================================================================

// AppendAction stamps the relay sequence number on a client action,
// appends it to the authoritative log, and returns the stamped copy.
func (r *Room) AppendAction(a board.Action) board.Action {
	r.mu.Lock()
	r.seq++
	a.Seq = r.seq
	r.actions = append(r.actions, a)
	r.enforceActionLimitLocked()
	r.mu.Unlock()

	r.persistAction(a)
	return a
}

// enforceActionLimitLocked trims the oldest actions past the cap.
// Callers hold r.mu.
func (r *Room) enforceActionLimitLocked() {
	max := r.hub.cfg.Session.MaxActionsPerRoom
	if max > 0 && len(r.actions) > max {
		over := len(r.actions) - max
		r.actions = append([]board.Action(nil), r.actions[over:]...)
		log.Printf("[Room %s] Action log capped, dropped %d oldest actions", r.ID, over)
	}
}

// ReplaceActions swaps the whole log after a client's undo/redo resync
func (r *Room) ReplaceActions(actions []board.Action) {
	r.mu.Lock()
	r.actions = append(actions[:0:0], actions...)
	if s := maxSeq(actions); s > r.seq {
		r.seq = s
	}
	r.mu.Unlock()

	r.persistActionList()
}

// Actions returns a copy of the authoritative log
func (r *Room) Actions() []board.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]board.Action(nil), r.actions...)
}

func (r *Room) persistAction(a board.Action) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if r.hub.redisClient != nil {
			if err := r.hub.redisClient.AppendAction(ctx, r.ID, a); err != nil {
				log.Printf("[Room %s] Failed to cache action: %v", r.ID, err)
			}
		}

		if r.hub.db != nil && r.dbID != 0 {
			payload, err := json.Marshal(a)
			if err != nil {
				return
			}
			row := model.BoardAction{
				RoomID:  r.dbID,
				Seq:     a.Seq,
				UserID:  a.UserID,
				Payload: string(payload),
			}
			if err := r.hub.db.Create(&row).Error; err != nil {
				log.Printf("[Room %s] Failed to persist action: %v", r.ID, err)
			}
		}
	}()
}

func (r *Room) persistActionList() {
	actions := r.Actions()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if r.hub.redisClient != nil {
			if err := r.hub.redisClient.ReplaceActions(ctx, r.ID, actions); err != nil {
				log.Printf("[Room %s] Failed to cache action list: %v", r.ID, err)
			}
		}

		if r.hub.db == nil || r.dbID == 0 {
			return
		}
		err := r.hub.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("room_id = ?", r.dbID).Delete(&model.BoardAction{}).Error; err != nil {
				return err
			}
			for _, a := range actions {
				payload, err := json.Marshal(a)
				if err != nil {
					continue
				}
				row := model.BoardAction{
					RoomID:  r.dbID,
					Seq:     a.Seq,
					UserID:  a.UserID,
					Payload: string(payload),
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("[Room %s] Failed to persist action list: %v", r.ID, err)
		}
	}()
}

// =============================================================================
// Notes state
// =============================================================================

// UpdateNote installs a live edit. Whole-document replacement: the last
// writer wins.
func (r *Room) UpdateNote(content string) {
	if max := r.hub.cfg.Session.MaxNoteBytes; max > 0 && len(content) > max {
		log.Printf("[Room %s] Note update rejected, %d bytes over limit", r.ID, len(content))
		return
	}

	r.mu.Lock()
	r.note = content
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if r.hub.redisClient != nil {
			if err := r.hub.redisClient.SetNote(ctx, r.ID, content); err != nil {
				log.Printf("[Room %s] Failed to cache note: %v", r.ID, err)
			}
		}
	}()
}

// SaveNote upserts the durable note row
func (r *Room) SaveNote(content, userID string) {
	r.UpdateNote(content)

	if r.hub.db == nil || r.dbID == 0 {
		return
	}
	go func() {
		row := model.RoomNote{RoomID: r.dbID, Content: content, SavedBy: userID}
		err := r.hub.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "saved_by", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			log.Printf("[Room %s] Failed to save note: %v", r.ID, err)
		}
	}()
}

// Note returns the current note content
func (r *Room) Note() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.note
}

// =============================================================================
// File registry
// =============================================================================

// AddFile records a shared file. Duplicate IDs are ignored so a client
// retry cannot double-register.
func (r *Room) AddFile(f transport.SharedFile) {
	r.mu.Lock()
	if _, exists := r.files[f.ID]; exists {
		r.mu.Unlock()
		return
	}
	r.files[f.ID] = f
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if r.hub.redisClient != nil {
			if err := r.hub.redisClient.PutFile(ctx, r.ID, f); err != nil {
				log.Printf("[Room %s] Failed to cache file: %v", r.ID, err)
			}
		}
		if r.hub.db != nil && r.dbID != 0 {
			row := model.SharedFile{
				ID:         f.ID,
				RoomID:     r.dbID,
				Name:       f.Name,
				Size:       f.Size,
				MimeType:   f.Type,
				URL:        f.URL,
				UploaderID: f.UploaderID,
				UploadedBy: f.UploadedBy,
				CreatedAt:  f.Timestamp,
			}
			if err := r.hub.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				log.Printf("[Room %s] Failed to persist file: %v", r.ID, err)
			}
		}
	}()
}

// DeleteFile removes a file if the requester uploaded it. Returns
// (removed, denied): a nonexistent ID is neither.
func (r *Room) DeleteFile(fileID, userID string) (bool, bool) {
	r.mu.Lock()
	f, exists := r.files[fileID]
	if !exists {
		r.mu.Unlock()
		return false, false
	}
	if f.UploaderID != userID {
		r.mu.Unlock()
		return false, true
	}
	delete(r.files, fileID)
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if r.hub.redisClient != nil {
			if err := r.hub.redisClient.RemoveFile(ctx, r.ID, fileID); err != nil {
				log.Printf("[Room %s] Failed to evict file from cache: %v", r.ID, err)
			}
		}
		if r.hub.db != nil && r.dbID != 0 {
			now := time.Now()
			err := r.hub.db.Model(&model.SharedFile{}).
				Where("id = ? AND room_id = ?", fileID, r.dbID).
				Update("deleted_at", &now).Error
			if err != nil {
				log.Printf("[Room %s] Failed to mark file deleted: %v", r.ID, err)
			}
		}
	}()

	return true, false
}

// Files returns the registry ordered by share time
func (r *Room) Files() []transport.SharedFile {
	r.mu.RLock()
	files := make([]transport.SharedFile, 0, len(r.files))
	for _, f := range r.files {
		files = append(files, f)
	}
	r.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files
}

// =============================================================================
// Broadcasting
// =============================================================================

// Broadcast queues an event for every subscriber of a channel
func (r *Room) Broadcast(channel, eventName string, payload any, excludeID string) {
	ev, err := transport.Marshal(eventName, r.ID, payload)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.ID, eventName, err)
		return
	}

	select {
	case r.broadcast <- &outboundMessage{channel: channel, event: ev, excludeID: excludeID}:
	default:
		log.Printf("[Room %s] Broadcast buffer full, dropping %s", r.ID, eventName)
	}
}

// SendTo queues an event for a single client
func (r *Room) SendTo(userID, channel, eventName string, payload any) {
	ev, err := transport.Marshal(eventName, r.ID, payload)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.ID, eventName, err)
		return
	}

	select {
	case r.broadcast <- &outboundMessage{channel: channel, event: ev, onlyID: userID}:
	default:
		log.Printf("[Room %s] Broadcast buffer full, dropping %s for %s", r.ID, eventName, userID)
	}
}

// Shutdown gracefully shuts down the room
func (r *Room) Shutdown() {
	r.cancel()
	log.Printf("[Room %s] Shutdown complete", r.ID)
}

// runBroadcaster fans queued events out to subscribed clients
func (r *Room) runBroadcaster() {
	log.Printf("[Room %s] Broadcaster started", r.ID)
	defer log.Printf("[Room %s] Broadcaster stopped", r.ID)

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.broadcast:
			if !ok {
				return
			}
			r.deliver(msg)
		}
	}
}

func (r *Room) deliver(msg *outboundMessage) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, c := range r.Clients {
		if msg.onlyID != "" && c.ID != msg.onlyID {
			continue
		}
		if msg.excludeID != "" && c.ID == msg.excludeID {
			continue
		}
		if !c.channels[msg.channel] {
			continue
		}
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	data, err := json.Marshal(msg.event)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal event: %v", r.ID, err)
		return
	}

	for _, client := range clients {
		r.sendToClient(client, data)
	}
}

func (r *Room) sendToClient(client *Client, data []byte) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.Conn.SetWriteDeadline(time.Now().Add(r.hub.cfg.WebSocket.WriteTimeout))
	if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[Room %s] Failed to send to client %s: %v", r.ID, client.ID, err)
	}
}
