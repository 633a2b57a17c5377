package board

// Log is the per-room ordered sequence of actions with the two
// interactivity stacks layered on top: history holds the actions
// currently live on the canvas in application order, redo holds actions
// popped off by Undo.
//
// Invariants:
//   - history ++ reverse(redo) equals the maximal ever-seen ordering
//   - a Redo is only valid immediately after an Undo chain; any new
//     appended action clears the redo stack
//   - actions are never mutated after creation; editing history means
//     appending, undo is log navigation
type Log struct {
	history []Action
	redo    []Action
}

// NewLog creates an empty action log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a new action to the live history. Any pending redo
// entries are invalidated: once a new action exists, the popped-off
// branch can never be replayed consistently.
func (l *Log) Append(a Action) {
	l.history = append(l.history, a)
	l.redo = l.redo[:0]
}

// Undo pops the last live action onto the redo stack and returns it.
// Returns false on an empty history.
func (l *Log) Undo() (Action, bool) {
	if len(l.history) == 0 {
		return Action{}, false
	}
	last := l.history[len(l.history)-1]
	l.history = l.history[:len(l.history)-1]
	l.redo = append(l.redo, last)
	return last, true
}

// Redo re-applies the most recently undone action and returns it.
// Returns false when there is nothing to redo.
func (l *Log) Redo() (Action, bool) {
	if len(l.redo) == 0 {
		return Action{}, false
	}
	last := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]
	l.history = append(l.history, last)
	return last, true
}

// Replace swaps in a full authoritative history, e.g. from a snapshot
// or a peer's full-list resync. The redo stack is dropped: it was
// relative to a history that no longer exists.
func (l *Log) Replace(actions []Action) {
	l.history = append(l.history[:0:0], actions...)
	l.redo = l.redo[:0]
}

// History returns a copy of the live action list in application order.
func (l *Log) History() []Action {
	return append([]Action(nil), l.history...)
}

// Len returns the number of live actions.
func (l *Log) Len() int {
	return len(l.history)
}

// CanUndo reports whether the history has at least one action.
func (l *Log) CanUndo() bool {
	return len(l.history) > 0
}

// CanRedo reports whether an undone action is eligible for redo.
func (l *Log) CanRedo() bool {
	return len(l.redo) > 0
}
