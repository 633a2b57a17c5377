package handler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studysync-backend/internal/board"
	"studysync-backend/internal/config"
	"studysync-backend/internal/handler"
	"studysync-backend/internal/transport"
)

// testHub builds a hub with no Postgres, Redis, or presence backend so
// the in-memory room state can be exercised directly.
func testHub(t *testing.T) *handler.RoomHub {
	t.Helper()
	cfg := &config.Config{
		Session: config.SessionConfig{
			MaxActionsPerRoom: 10000,
			MaxNoteBytes:      1 << 20,
		},
	}
	return handler.NewRoomHub(cfg, nil, nil, nil, "test")
}

func pencilAction(userID string) board.Action {
	return board.Action{
		ID:     userID + "-a",
		Type:   board.ActionDraw,
		Mode:   board.ModePencil,
		Points: []board.Point{{X: 1, Y: 1}, {X: 5, Y: 5}},
		Color:  "#000000",
		Size:   2,
		UserID: userID,
	}
}

func TestGetOrCreateRoomReturnsSameInstance(t *testing.T) {
	hub := testHub(t)

	a, err := hub.GetOrCreateRoom("room-1")
	require.NoError(t, err)
	b, err := hub.GetOrCreateRoom("room-1")
	require.NoError(t, err)
	other, err := hub.GetOrCreateRoom("room-2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestAppendActionStampsMonotonicSeq(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-seq")
	require.NoError(t, err)

	// Client-supplied Seq must be overwritten, not trusted.
	first := pencilAction("u1")
	first.Seq = 999
	stamped := room.AppendAction(first)
	assert.Equal(t, int64(1), stamped.Seq)

	second := room.AppendAction(pencilAction("u2"))
	third := room.AppendAction(pencilAction("u1"))
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(3), third.Seq)

	log := room.Actions()
	require.Len(t, log, 3)
	for i, a := range log {
		assert.Equal(t, int64(i+1), a.Seq)
	}
}

func TestReplaceActionsKeepsSeqMonotonic(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-replace")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		room.AppendAction(pencilAction("u1"))
	}

	// Undo resync: the client sends back the log minus the last action.
	trimmed := room.Actions()[:2]
	room.ReplaceActions(trimmed)
	require.Len(t, room.Actions(), 2)

	// The next stamp must not reuse a sequence number the room already
	// handed out before the resync.
	next := room.AppendAction(pencilAction("u2"))
	assert.Equal(t, int64(4), next.Seq)
}

func TestActionLogCapDropsOldest(t *testing.T) {
	cfg := &config.Config{
		Session: config.SessionConfig{MaxActionsPerRoom: 5, MaxNoteBytes: 1 << 20},
	}
	hub := handler.NewRoomHub(cfg, nil, nil, nil, "test")
	room, err := hub.GetOrCreateRoom("room-cap")
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		room.AppendAction(pencilAction("u1"))
	}

	log := room.Actions()
	require.Len(t, log, 5)
	assert.Equal(t, int64(4), log[0].Seq)
	assert.Equal(t, int64(8), log[4].Seq)
}

func TestUpdateNoteLastWriterWins(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-note")
	require.NoError(t, err)

	room.UpdateNote("first draft")
	room.UpdateNote("second draft")
	assert.Equal(t, "second draft", room.Note())
}

func TestUpdateNoteRejectsOversizedContent(t *testing.T) {
	cfg := &config.Config{
		Session: config.SessionConfig{MaxActionsPerRoom: 100, MaxNoteBytes: 16},
	}
	hub := handler.NewRoomHub(cfg, nil, nil, nil, "test")
	room, err := hub.GetOrCreateRoom("room-note-cap")
	require.NoError(t, err)

	room.UpdateNote("short")
	room.UpdateNote("this content is far too large for the configured limit")
	assert.Equal(t, "short", room.Note())
}

func TestAddFileIgnoresDuplicateID(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-files")
	require.NoError(t, err)

	f := transport.SharedFile{
		ID:         "f1",
		Name:       "notes.pdf",
		Size:       1024,
		UploaderID: "u1",
		UploadedBy: "철수",
		Timestamp:  time.Now(),
	}
	room.AddFile(f)

	retry := f
	retry.Name = "renamed.pdf"
	room.AddFile(retry)

	files := room.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "notes.pdf", files[0].Name)
}

func TestFilesOrderedByShareTime(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-file-order")
	require.NoError(t, err)

	base := time.Now()
	room.AddFile(transport.SharedFile{ID: "late", UploaderID: "u1", Timestamp: base.Add(time.Minute)})
	room.AddFile(transport.SharedFile{ID: "early", UploaderID: "u1", Timestamp: base})

	files := room.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "early", files[0].ID)
	assert.Equal(t, "late", files[1].ID)
}

func TestDeleteFileOwnership(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-file-del")
	require.NoError(t, err)

	room.AddFile(transport.SharedFile{ID: "f1", UploaderID: "u1", Timestamp: time.Now()})

	removed, denied := room.DeleteFile("f1", "u2")
	assert.False(t, removed)
	assert.True(t, denied)
	assert.Len(t, room.Files(), 1)

	removed, denied = room.DeleteFile("f1", "u1")
	assert.True(t, removed)
	assert.False(t, denied)
	assert.Empty(t, room.Files())
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-reconnect")
	require.NoError(t, err)

	first := room.AddClient("u1", "Mina", nil)
	second := room.AddClient("u1", "Mina", nil)
	assert.NotSame(t, first, second)
	assert.Same(t, second, room.Clients["u1"], "reconnect must replace the map entry")

	// The stale connection's read loop unwinds after the replacement;
	// its cleanup must not evict the live connection.
	room.RemoveClient(first)
	assert.Same(t, second, room.Clients["u1"])

	room.RemoveClient(second)
	assert.Empty(t, room.Clients)
}

func TestDeleteUnknownFileIsNoop(t *testing.T) {
	hub := testHub(t)
	room, err := hub.GetOrCreateRoom("room-file-missing")
	require.NoError(t, err)

	removed, denied := room.DeleteFile("nope", "u1")
	assert.False(t, removed)
	assert.False(t, denied)
}
