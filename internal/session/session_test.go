package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studysync-backend/internal/board"
	"studysync-backend/internal/session"
	"studysync-backend/internal/transport"
)

func joinSession(t *testing.T, relay *transport.MemoryRelay, roomID, userID, nickname string) *session.Session {
	t.Helper()
	s := session.New(roomID, userID, nickname, relay.Connect(userID, nickname), session.Config{
		CanvasWidth:  200,
		CanvasHeight: 120,
		NoteDebounce: 20 * time.Millisecond,
	})
	require.NoError(t, s.Join())
	return s
}

func pencil(points ...board.Point) board.Action {
	return board.Action{
		Type:   board.ActionDraw,
		Mode:   board.ModePencil,
		Points: points,
		Color:  "#ff0000",
		Size:   3,
	}
}

func TestJoinTransitionsToReady(t *testing.T) {
	relay := transport.NewMemoryRelay()
	s := session.New("room-1", "u1", "Mina", relay.Connect("u1", "Mina"), session.Config{})

	assert.Equal(t, session.StateLoading, s.State())
	require.NoError(t, s.Join())
	assert.Equal(t, session.StateReady, s.State())
	assert.False(t, s.Notes().Loading())
}

func TestLateJoinerConvergesOnHistory(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 60, Y: 40})))
	require.NoError(t, a.Draw(board.Action{
		Type:   board.ActionDraw,
		Mode:   board.ModeRectangle,
		Points: []board.Point{{X: 80, Y: 10}, {X: 150, Y: 90}},
		Color:  "#0000ff",
		Size:   2,
	}))

	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.Len(t, b.History(), 2)
	assert.True(t, a.Canvas().EqualPixels(b.Canvas()), "late joiner must render the same picture")
}

func TestSelfEchoIsNotDoubleApplied(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	require.NoError(t, a.Draw(pencil(board.Point{X: 1, Y: 1}, board.Point{X: 9, Y: 9})))

	// The relay echoes whiteboard-action to every subscriber, the
	// author included. The author must keep exactly one copy.
	assert.Len(t, a.History(), 1)
	assert.Len(t, relay.Actions("room-1"), 1)
}

func TestPeerActionCarriesRelaySequence(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 3, Y: 3})))
	require.NoError(t, b.Draw(pencil(board.Point{X: 7, Y: 7})))

	history := b.History()
	require.Len(t, history, 2)
	assert.Equal(t, "u1", history[0].UserID)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.True(t, a.Canvas().EqualPixels(b.Canvas()))
}

func TestUndoResynchronizesPeers(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 50, Y: 50})))
	require.NoError(t, a.Draw(pencil(board.Point{X: 100, Y: 5}, board.Point{X: 150, Y: 50})))
	before := a.Canvas().Fingerprint()

	require.NoError(t, a.Undo())

	assert.Len(t, a.History(), 1)
	assert.Len(t, b.History(), 1)
	assert.Len(t, relay.Actions("room-1"), 1)
	assert.NotEqual(t, before, a.Canvas().Fingerprint())
	assert.True(t, a.Canvas().EqualPixels(b.Canvas()))
}

func TestRedoRestoresUndoneAction(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 50, Y: 50})))
	before := a.Canvas().Fingerprint()

	require.NoError(t, a.Undo())
	require.True(t, a.CanRedo())
	require.NoError(t, a.Redo())

	assert.Equal(t, before, a.Canvas().Fingerprint(), "undo then redo must round-trip the canvas")
	assert.False(t, a.CanRedo())
	assert.Len(t, b.History(), 1)
	assert.True(t, a.Canvas().EqualPixels(b.Canvas()))
}

func TestNewActionInvalidatesRedo(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5})))
	require.NoError(t, a.Draw(pencil(board.Point{X: 15, Y: 15})))
	require.NoError(t, a.Undo())
	require.True(t, a.CanRedo())

	require.NoError(t, a.Draw(pencil(board.Point{X: 25, Y: 25})))
	assert.False(t, a.CanRedo())
}

func TestRemoteActionInvalidatesRedo(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5})))
	require.NoError(t, a.Undo())
	require.True(t, a.CanRedo())

	// A peer's append lands in the same log and stales the redo stack
	// exactly like a local one.
	require.NoError(t, b.Draw(pencil(board.Point{X: 30, Y: 30})))
	assert.False(t, a.CanRedo())
}

func TestClearIsAReplayableAction(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 50, Y: 50})))
	require.NoError(t, a.Clear())

	blank := board.NewCanvas(200, 120)
	assert.True(t, b.Canvas().EqualPixels(blank), "clear must wipe the peer's canvas")
	assert.Len(t, b.History(), 2, "clear travels as history, not as an erase side channel")

	// A latecomer replays through the clear and lands on the same blank.
	c := joinSession(t, relay, "room-1", "u3", "Sol")
	assert.True(t, c.Canvas().EqualPixels(blank))

	// Undoing the clear brings the stroke back everywhere.
	require.NoError(t, a.Undo())
	assert.False(t, b.Canvas().EqualPixels(blank))
	assert.True(t, a.Canvas().EqualPixels(b.Canvas()))
}

func TestDrawRejectsInvalidAction(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	err := a.Draw(board.Action{Type: board.ActionDraw, Mode: board.ModeRectangle,
		Points: []board.Point{{X: 1, Y: 1}}})
	require.Error(t, err)
	assert.Empty(t, a.History(), "rejected actions must not enter the log")
}

func TestRelayRejectsMalformedStateFlush(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 50, Y: 50})))
	before := a.Canvas().Fingerprint()

	// A raw connection pushes a full-state update containing a
	// one-point rectangle, skipping every client-side check. The relay
	// must refuse the whole list, not hand it to peers for replay.
	var mu sync.Mutex
	var gotError bool
	intruder := relay.Connect("u9", "Intruder")
	intruder.OnEvent(func(ev transport.Event) {
		if ev.Name == transport.EventError {
			mu.Lock()
			gotError = true
			mu.Unlock()
		}
	})
	require.NoError(t, intruder.Emit(transport.EventJoinWhiteboard, "room-1", transport.JoinPayload{RoomID: "room-1"}))

	var peerAlive bool
	require.NotPanics(t, func() {
		require.NoError(t, intruder.Emit(transport.EventWhiteboardStateFlush, "room-1", transport.StateUpdate{
			RoomID: "room-1",
			Actions: []board.Action{{
				Type: board.ActionDraw, Mode: board.ModeRectangle,
				Points: []board.Point{{X: 1, Y: 1}}, Color: "#ff0000", Size: 1,
			}},
		}))
		peerAlive = true
	})
	require.True(t, peerAlive)

	mu.Lock()
	assert.True(t, gotError, "relay must answer a malformed flush with an error event")
	mu.Unlock()
	assert.Len(t, a.History(), 1, "peer's log must be untouched")
	assert.Equal(t, before, a.Canvas().Fingerprint())
	assert.Len(t, relay.Actions("room-1"), 1)
}

func TestRelayStampsActionIdentity(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	// The intruder claims the peer's userId; an unstamped echo would be
	// swallowed by the peer's self-echo suppression.
	intruder := relay.Connect("u9", "Intruder")
	require.NoError(t, intruder.Emit(transport.EventJoinWhiteboard, "room-1", transport.JoinPayload{RoomID: "room-1"}))
	forged := pencil(board.Point{X: 3, Y: 3}, board.Point{X: 9, Y: 9})
	forged.UserID = "u1"
	require.NoError(t, intruder.Emit(transport.EventWhiteboardAction, "room-1", forged))

	history := a.History()
	require.Len(t, history, 1)
	assert.Equal(t, "u9", history[0].UserID, "relay must stamp the connection's identity")
}

func TestRelayStampsFileUploaderIdentity(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	intruder := relay.Connect("u9", "Intruder")
	require.NoError(t, intruder.Emit(transport.EventJoinFiles, "room-1", transport.JoinPayload{RoomID: "room-1"}))
	require.NoError(t, intruder.Emit(transport.EventShareFile, "room-1", transport.ShareFile{
		RoomID: "room-1",
		File: transport.SharedFile{
			ID: "forged", Name: "forged.txt",
			UploaderID: "u1", UploadedBy: "Mina",
		},
	}))

	require.Equal(t, 1, a.Files().Len())
	got := a.Files().List()[0]
	assert.Equal(t, "u9", got.UploaderID)
	assert.Equal(t, "Intruder", got.UploadedBy)
}

func TestShareFilePropagatesToEveryone(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Files().Share(transport.SharedFile{
		Name: "lecture-notes.pdf",
		Size: 52_240,
		Type: "application/pdf",
		URL:  "https://files.example.com/lecture-notes.pdf",
	}))

	require.Equal(t, 1, a.Files().Len(), "uploader's registry fills from the broadcast")
	require.Equal(t, 1, b.Files().Len())

	got := b.Files().List()[0]
	assert.Equal(t, "lecture-notes.pdf", got.Name)
	assert.Equal(t, "u1", got.UploaderID)
	assert.Equal(t, "Mina", got.UploadedBy)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestLateJoinerReceivesFileRegistry(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "a.png", Type: "image/png"}))
	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "b.png", Type: "image/png"}))

	b := joinSession(t, relay, "room-1", "u2", "Jun")
	assert.Equal(t, 2, b.Files().Len())
}

func TestDeleteFileByUploader(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "scratch.txt"}))
	id := a.Files().List()[0].ID

	require.NoError(t, a.Files().Delete(id))
	assert.Zero(t, a.Files().Len())
	assert.Zero(t, b.Files().Len())
}

func TestDeleteFileRejectedForNonUploader(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "mine.txt"}))
	id := b.Files().List()[0].ID

	err := b.Files().Delete(id)
	require.ErrorIs(t, err, session.ErrNotUploader)
	assert.Equal(t, 1, a.Files().Len(), "file must survive the rejected delete")
}

func TestRelayRevalidatesDeleteOwnership(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "mine.txt"}))
	id := a.Files().List()[0].ID

	// An intruder connection skips the client-side check and sends the
	// raw delete-file event. The relay must still refuse.
	var mu sync.Mutex
	var gotError bool
	intruder := relay.Connect("u9", "Intruder")
	intruder.OnEvent(func(ev transport.Event) {
		if ev.Name == transport.EventError {
			mu.Lock()
			gotError = true
			mu.Unlock()
		}
	})
	require.NoError(t, intruder.Emit(transport.EventJoinFiles, "room-1", transport.JoinPayload{RoomID: "room-1"}))
	require.NoError(t, intruder.Emit(transport.EventDeleteFile, "room-1", transport.DeleteFile{RoomID: "room-1", FileID: id}))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, gotError, "relay must answer a foreign delete with an error event")
	assert.Equal(t, 1, a.Files().Len())
}

func TestDeleteNonexistentFileIsNoop(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "keep.txt"}))

	require.NoError(t, a.Files().Delete("no-such-id"))
	assert.Equal(t, 1, a.Files().Len())
}

func TestRoomsAreIsolated(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-2", "u2", "Jun")

	require.NoError(t, a.Draw(pencil(board.Point{X: 5, Y: 5}, board.Point{X: 50, Y: 50})))
	require.NoError(t, a.Files().Share(transport.SharedFile{Name: "a.txt"}))

	assert.Empty(t, b.History())
	assert.Zero(t, b.Files().Len())
}
