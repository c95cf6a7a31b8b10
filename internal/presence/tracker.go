package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-core/internal/models"
)

// Tracker records ephemeral typing flags. Writers re-assert isTyping=true on
// every keystroke; readers treat entries older than the staleness window as
// false even when never explicitly cleared, so a crashed client cannot leave
// a stuck indicator.
type Tracker interface {
	SetTyping(ctx context.Context, roomID int, userID int, isTyping bool) error
	// ListTyping returns the ids of users currently typing in the room.
	ListTyping(ctx context.Context, roomID int) ([]int, error)
}

// MemoryTracker is the in-process implementation, also used by tests.
type MemoryTracker struct {
	mu     sync.Mutex
	states map[int]map[int]models.TypingState
	window time.Duration
	now    func() time.Time
}

// NewMemoryTracker builds a tracker with the given staleness window.
func NewMemoryTracker(window time.Duration) *MemoryTracker {
	return &MemoryTracker{
		states: make(map[int]map[int]models.TypingState),
		window: window,
		now:    time.Now,
	}
}

// SetTyping upserts the flag with a refreshed timestamp. Idempotent.
func (t *MemoryTracker) SetTyping(_ context.Context, roomID int, userID int, isTyping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isTyping {
		if room, ok := t.states[roomID]; ok {
			delete(room, userID)
			if len(room) == 0 {
				delete(t.states, roomID)
			}
		}
		return nil
	}
	room, ok := t.states[roomID]
	if !ok {
		room = make(map[int]models.TypingState)
		t.states[roomID] = room
	}
	room[userID] = models.TypingState{RoomID: roomID, UserID: userID, IsTyping: true, UpdatedAt: t.now()}
	return nil
}

// ListTyping returns non-stale typers, pruning expired entries as it goes.
func (t *MemoryTracker) ListTyping(_ context.Context, roomID int) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.states[roomID]
	cutoff := t.now().Add(-t.window)
	ids := make([]int, 0, len(room))
	for userID, state := range room {
		if state.UpdatedAt.Before(cutoff) {
			delete(room, userID)
			continue
		}
		ids = append(ids, userID)
	}
	sort.Ints(ids)
	return ids, nil
}
