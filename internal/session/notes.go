package session

import (
	"sync"
	"time"

	"github.com/bep/debounce"

	"studysync-backend/internal/transport"
)

// Notes is the room's single shared text document with optimistic local
// echo and last-writer-wins convergence. Every local keystroke batch
// updates the display immediately, broadcasts the raw content to peers
// on the live channel, and resets the debounce timer; only when the
// timer fires uninterrupted does a durable save go out.
//
// Two simultaneous typists may overwrite each other's unsaved durable
// content. That is the accepted LWW limitation, not something this
// layer papers over.
type Notes struct {
	roomID string
	userID string
	tr     transport.Transport

	mu      sync.Mutex
	content string
	loading bool
	saving  bool

	debounced func(func())
}

func newNotes(roomID, userID string, delay time.Duration, tr transport.Transport) *Notes {
	return &Notes{
		roomID:    roomID,
		userID:    userID,
		tr:        tr,
		loading:   true,
		debounced: debounce.New(delay),
	}
}

// SetContent applies a local edit: immediate display update, immediate
// live broadcast, debounced durable save.
func (n *Notes) SetContent(content string) error {
	n.mu.Lock()
	n.content = content
	n.mu.Unlock()

	err := n.tr.Emit(transport.EventUpdateNote, n.roomID, transport.NoteUpdate{
		RoomID:  n.roomID,
		Content: content,
		UserID:  n.userID,
	})

	n.debounced(n.save)
	return err
}

// save fires after the quiet period with whatever content is current at
// that moment, not the content at schedule time.
func (n *Notes) save() {
	n.mu.Lock()
	content := n.content
	n.saving = true
	n.mu.Unlock()

	n.tr.Emit(transport.EventSaveNote, n.roomID, transport.NoteUpdate{
		RoomID:  n.roomID,
		Content: content,
		UserID:  n.userID,
	})

	n.mu.Lock()
	n.saving = false
	n.mu.Unlock()
}

// seed installs the initial content from notes-state and ends Loading.
func (n *Notes) seed(content string) {
	n.mu.Lock()
	n.content = content
	n.loading = false
	n.mu.Unlock()
}

// applyRemote installs a peer's live content verbatim.
func (n *Notes) applyRemote(content string) {
	n.mu.Lock()
	n.content = content
	n.mu.Unlock()
}

// Content 현재 노트 내용
func (n *Notes) Content() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.content
}

// Loading 초기 동기화 진행 여부
func (n *Notes) Loading() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loading
}

// Flush forces any pending durable save out immediately. Called on
// session teardown so the last keystrokes are not lost to the timer.
func (n *Notes) Flush() {
	n.debounced(func() {})
	n.save()
}

func (n *Notes) stop() {
	// Cancel whatever save is pending; the owner decides whether to
	// Flush first.
	n.debounced(func() {})
}
