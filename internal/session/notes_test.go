package session_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studysync-backend/internal/transport"
)

const debounceWait = 120 * time.Millisecond // generous multiple of the 20ms test debounce

func TestNoteLiveUpdateReachesPeerImmediately(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Notes().SetContent("agenda: chapter 3"))

	assert.Equal(t, "agenda: chapter 3", a.Notes().Content(), "typist sees the edit without waiting")
	assert.Equal(t, "agenda: chapter 3", b.Notes().Content(), "peer receives the live broadcast")
	assert.Zero(t, relay.SaveCount("room-1"), "live updates must not trigger durable saves")
}

func TestRapidEditsCollapseToOneSave(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Notes().SetContent(fmt.Sprintf("draft %d", i)))
	}

	assert.Eventually(t, func() bool {
		return relay.SaveCount("room-1") == 1
	}, debounceWait, 5*time.Millisecond, "five rapid edits must produce exactly one save")
	assert.Equal(t, "draft 5", relay.SavedNote("room-1"), "the save carries the latest content, not the scheduling one")

	// No stragglers after the quiet period.
	time.Sleep(debounceWait)
	assert.Equal(t, 1, relay.SaveCount("room-1"))
}

func TestSeparatedEditsSaveSeparately(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	require.NoError(t, a.Notes().SetContent("first"))
	require.Eventually(t, func() bool {
		return relay.SaveCount("room-1") == 1
	}, debounceWait, 5*time.Millisecond)

	require.NoError(t, a.Notes().SetContent("second"))
	require.Eventually(t, func() bool {
		return relay.SaveCount("room-1") == 2
	}, debounceWait, 5*time.Millisecond)
	assert.Equal(t, "second", relay.SavedNote("room-1"))
}

func TestLastWriterWinsOnConcurrentEdits(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	b := joinSession(t, relay, "room-1", "u2", "Jun")

	require.NoError(t, a.Notes().SetContent("Mina's version"))
	require.NoError(t, b.Notes().SetContent("Jun's version"))

	// Whole-document replacement: the later write is everyone's truth.
	assert.Equal(t, "Jun's version", a.Notes().Content())
	assert.Equal(t, "Jun's version", b.Notes().Content())
}

func TestLateJoinerSeedsFromSavedNote(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")
	require.NoError(t, a.Notes().SetContent("persisted agenda"))

	b := joinSession(t, relay, "room-1", "u2", "Jun")
	assert.False(t, b.Notes().Loading())
	assert.Equal(t, "persisted agenda", b.Notes().Content())
}

func TestFlushSavesWithoutWaiting(t *testing.T) {
	relay := transport.NewMemoryRelay()
	a := joinSession(t, relay, "room-1", "u1", "Mina")

	require.NoError(t, a.Notes().SetContent("closing thoughts"))
	a.Notes().Flush()

	assert.Equal(t, 1, relay.SaveCount("room-1"))
	assert.Equal(t, "closing thoughts", relay.SavedNote("room-1"))

	// The cancelled timer must not fire a duplicate save afterwards.
	time.Sleep(debounceWait)
	assert.Equal(t, 1, relay.SaveCount("room-1"))
}
