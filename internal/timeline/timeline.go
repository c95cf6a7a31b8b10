package timeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

var (
	// ErrFetchInFlight is returned when an older-page fetch is requested
	// while a previous one has not completed. Fetches are serialized per
	// timeline to keep pages ordered and duplicate-free.
	ErrFetchInFlight = errors.New("fetch already in flight")
	ErrExhausted     = errors.New("no older messages")
)

// FetchFunc loads one backward page: up to limit messages older than the
// cursor, oldest-first. A nil cursor means the newest page.
type FetchFunc func(ctx context.Context, cursor *repositories.Cursor, limit int) ([]models.Message, error)

// Timeline is a consuming view of one room's message log. It merges backward
// pagination with a live tail into a single sequence ordered by
// (created_at, id), deduplicated by message id: the two streams may
// interleave arbitrarily, and a page completing after live messages arrived
// must slot its entries by timestamp, not arrival order.
type Timeline struct {
	mu        sync.Mutex
	entries   []models.Message
	index     map[int64]int
	oldest    *repositories.Cursor
	fetching  bool
	exhausted bool
	pageSize  int
	fetch     FetchFunc
	now       func() time.Time
}

// New builds a Timeline over the given page fetcher.
func New(fetch FetchFunc, pageSize int) *Timeline {
	return &Timeline{
		index:    make(map[int64]int),
		pageSize: pageSize,
		fetch:    fetch,
		now:      time.Now,
	}
}

// FetchOlder loads the next older page and merges it in. It returns the
// number of messages fetched; zero means the history is exhausted.
func (t *Timeline) FetchOlder(ctx context.Context) (int, error) {
	t.mu.Lock()
	if t.fetching {
		t.mu.Unlock()
		return 0, ErrFetchInFlight
	}
	if t.exhausted {
		t.mu.Unlock()
		return 0, ErrExhausted
	}
	t.fetching = true
	cursor := t.oldest
	t.mu.Unlock()

	page, err := t.fetch(ctx, cursor, t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetching = false
	if err != nil {
		return 0, err
	}
	if len(page) == 0 {
		t.exhausted = true
		return 0, nil
	}

	// the page is oldest-first; its head becomes the next cursor
	t.oldest = &repositories.Cursor{CreatedAt: page[0].CreatedAt, ID: page[0].ID}
	for _, msg := range page {
		t.upsert(msg)
	}
	return len(page), nil
}

// ApplyAdded merges a live-tail message. A message id seen before is updated
// in place rather than re-inserted.
func (t *Timeline) ApplyAdded(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsert(msg)
}

// ApplyModified updates an existing slot in place; unknown ids are merged
// like additions so a modify racing ahead of its page fetch is not lost.
func (t *Timeline) ApplyModified(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsert(msg)
}

// ApplyRemoved drops a message by id.
func (t *Timeline) ApplyRemoved(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[id]
	if !ok {
		return
	}
	t.entries = append(t.entries[:pos], t.entries[pos+1:]...)
	delete(t.index, id)
	t.reindex(pos)
}

func (t *Timeline) upsert(msg models.Message) {
	if pos, ok := t.index[msg.ID]; ok {
		t.entries[pos] = msg
		return
	}
	pos := sort.Search(len(t.entries), func(i int) bool {
		e := t.entries[i]
		if !e.CreatedAt.Equal(msg.CreatedAt) {
			return e.CreatedAt.After(msg.CreatedAt)
		}
		return e.ID > msg.ID
	})
	t.entries = append(t.entries, models.Message{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = msg
	t.index[msg.ID] = pos
	t.reindex(pos + 1)
}

func (t *Timeline) reindex(from int) {
	for i := from; i < len(t.entries); i++ {
		t.index[t.entries[i].ID] = i
	}
}

// Messages returns the merged sequence, oldest first.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// Item is one rendered row: either a date separator or a message.
type Item struct {
	Separator bool
	Label     string
	Message   *models.Message
}

// Rendered returns the sequence with a date separator before the first
// message of each calendar day in the given location. Labels are computed
// against the current wall clock, never stored.
func (t *Timeline) Rendered(loc *time.Location) []Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	items := make([]Item, 0, len(t.entries))
	var lastDay time.Time
	for i := range t.entries {
		msg := t.entries[i]
		day := dateOf(msg.CreatedAt.In(loc))
		if !day.Equal(lastDay) {
			items = append(items, Item{Separator: true, Label: t.labelFor(day, loc)})
			lastDay = day
		}
		items = append(items, Item{Message: &msg})
	}
	return items
}

func (t *Timeline) labelFor(day time.Time, loc *time.Location) string {
	today := dateOf(t.now().In(loc))
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("January 2, 2006")
	}
}

func dateOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
