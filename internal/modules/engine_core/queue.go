package enginecore

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

var (
	// ErrQueueEmpty is returned when an operation needs a current entry.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrIndexOutOfRange is returned for positions outside the queue.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrEndOfQueue is returned when there is no next entry.
	ErrEndOfQueue = errors.New("end of queue")
	// ErrStartOfQueue is returned when there is no previous entry.
	ErrStartOfQueue = errors.New("start of queue")
)

// Position selects where Add inserts entries.
type Position int

const (
	AtEnd Position = iota
	AfterCurrent
)

// Queue holds the canonical playback queue.
type Queue struct {
	mu       sync.Mutex
	revision int64
	index    int
	entries  []QueueEntry
	repeat   remote.RepeatMode
	shuffle  bool
	rand     *rand.Rand
}

// QueueEntry is one queued track and the extension that resolves it.
type QueueEntry struct {
	Track       remote.Track `json:"track"`
	ExtensionID string       `json:"extensionId,omitempty"`
}

// NewQueue creates an empty queue. seed drives shuffle order.
func NewQueue(seed int64) *Queue {
	return &Queue{rand: rand.New(rand.NewSource(seed))}
}

// Snapshot returns a copy of the tracks and the current index.
func (q *Queue) Snapshot() ([]remote.Track, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tracks := make([]remote.Track, 0, len(q.entries))
	for _, entry := range q.entries {
		tracks = append(tracks, entry.Track)
	}
	return tracks, q.index
}

// Set replaces the queue atomically and positions it at start.
func (q *Queue) Set(entries []QueueEntry, start int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(entries) > 0 && (start < 0 || start >= len(entries)) {
		return ErrIndexOutOfRange
	}
	q.entries = append([]QueueEntry(nil), entries...)
	q.index = start
	if len(entries) == 0 {
		q.index = 0
	}
	q.revision++
	return nil
}

// Add appends entries or inserts them after the current entry.
func (q *Queue) Add(entries []QueueEntry, position Position) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch position {
	case AfterCurrent:
		insertAt := q.index + 1
		if len(q.entries) == 0 {
			insertAt = 0
		}
		q.entries = insertEntries(q.entries, entries, insertAt)
	default:
		q.entries = append(q.entries, entries...)
	}
	q.revision++
}

// Remove removes the entry at index and keeps the current entry stable.
func (q *Queue) Remove(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return ErrIndexOutOfRange
	}
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	switch {
	case index < q.index:
		q.index--
	case q.index >= len(q.entries) && q.index > 0:
		q.index = len(q.entries) - 1
	}
	q.revision++
	return nil
}

// Move moves a queue entry and keeps the current entry stable.
func (q *Queue) Move(fromIndex int, toIndex int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if fromIndex < 0 || fromIndex >= len(q.entries) {
		return errors.New("fromIndex out of range")
	}
	if toIndex < 0 || toIndex >= len(q.entries) {
		return errors.New("toIndex out of range")
	}
	entry := q.entries[fromIndex]
	q.entries = append(q.entries[:fromIndex], q.entries[fromIndex+1:]...)
	q.entries = insertEntries(q.entries, []QueueEntry{entry}, toIndex)

	switch {
	case fromIndex == q.index:
		q.index = toIndex
	case fromIndex < q.index && toIndex >= q.index:
		q.index--
	case fromIndex > q.index && toIndex <= q.index:
		q.index++
	}
	q.revision++
	return nil
}

// Clear clears the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil
	q.index = 0
	q.revision++
}

// Jump sets current index.
func (q *Queue) Jump(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return ErrIndexOutOfRange
	}
	q.index = index
	q.revision++
	return nil
}

// Next advances the index. With repeat all the queue wraps around.
func (q *Queue) Next() (QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return QueueEntry{}, ErrQueueEmpty
	}
	next := q.index + 1
	if next >= len(q.entries) {
		if q.repeat != remote.RepeatAll {
			return QueueEntry{}, ErrEndOfQueue
		}
		next = 0
	}
	q.index = next
	q.revision++
	return q.entries[q.index], nil
}

// Prev moves the index back. With repeat all the queue wraps around.
func (q *Queue) Prev() (QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return QueueEntry{}, ErrQueueEmpty
	}
	prev := q.index - 1
	if prev < 0 {
		if q.repeat != remote.RepeatAll {
			return QueueEntry{}, ErrStartOfQueue
		}
		prev = len(q.entries) - 1
	}
	q.index = prev
	q.revision++
	return q.entries[q.index], nil
}

// SetRepeat sets repeat mode.
func (q *Queue) SetRepeat(repeat remote.RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.repeat = repeat
	q.revision++
}

// Repeat returns the repeat mode.
func (q *Queue) Repeat() remote.RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeat
}

// SetShuffle sets shuffle mode. Enabling it reorders the entries after the
// current one; disabling it keeps the current order.
func (q *Queue) SetShuffle(shuffle bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if shuffle && !q.shuffle {
		q.shuffleTailLocked()
	}
	q.shuffle = shuffle
	q.revision++
}

// Shuffled reports whether shuffle mode is on.
func (q *Queue) Shuffled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffle
}

// ShuffleAll reorders every entry, enables shuffle mode and rewinds to the
// first entry.
func (q *Queue) ShuffleAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rand.Shuffle(len(q.entries), func(i, j int) { q.entries[i], q.entries[j] = q.entries[j], q.entries[i] })
	q.index = 0
	q.shuffle = true
	q.revision++
}

func (q *Queue) shuffleTailLocked() {
	if len(q.entries) < 2 {
		return
	}
	tail := q.entries[q.index+1:]
	q.rand.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })
}

// Current returns the current entry.
func (q *Queue) Current() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.index < 0 || q.index >= len(q.entries) {
		return QueueEntry{}, false
	}
	return q.entries[q.index], true
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Revision increments on every mutation.
func (q *Queue) Revision() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.revision
}

func insertEntries(entries []QueueEntry, insert []QueueEntry, index int) []QueueEntry {
	if index < 0 {
		index = 0
	}
	if index > len(entries) {
		index = len(entries)
	}
	result := make([]QueueEntry, 0, len(entries)+len(insert))
	result = append(result, entries[:index]...)
	result = append(result, insert...)
	result = append(result, entries[index:]...)
	return result
}
