package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateID is returned by Add when the id is already stored.
	ErrDuplicateID = errors.New("duplicate message id")
	// ErrMessageNotFound is returned for unknown or soft-deleted messages.
	ErrMessageNotFound = errors.New("message not found")
)

// Message is a stored direct message. Deleted messages keep their record so
// later operations on the id fail definitively instead of "not found".
type Message struct {
	ID        string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
	Delivered bool
	Read      bool
	Edited    bool
	Deleted   bool

	seq uint64
}

// MessageStore owns every message sent since startup.
type MessageStore struct {
	mu      sync.RWMutex
	byID    map[string]*Message
	ordered []*Message
	nextSeq uint64
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[string]*Message)}
}

// Add inserts msg.
func (s *MessageStore) Add(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return ErrDuplicateID
	}
	s.nextSeq++
	msg.seq = s.nextSeq
	stored := &msg
	s.byID[msg.ID] = stored
	s.ordered = append(s.ordered, stored)
	return nil
}

// Get returns the message with id, deleted or not.
func (s *MessageStore) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Between returns the non-deleted messages sent from one login to another,
// oldest first.
func (s *MessageStore) Between(from, to string) []Message {
	s.mu.RLock()
	var out []Message
	for _, m := range s.ordered {
		if m.From == from && m.To == to && !m.Deleted {
			out = append(out, *m)
		}
	}
	s.mu.RUnlock()

	SortByCreation(out)
	return out
}

// Delete soft-deletes id. It returns false if the message is unknown or
// already deleted.
func (s *MessageStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.Deleted {
		return false
	}
	m.Deleted = true
	return true
}

// MarkDelivered sets the delivered flag.
func (s *MessageStore) MarkDelivered(id string) error {
	return s.mutate(id, func(m *Message) { m.Delivered = true })
}

// MarkRead sets the read flag. A read message is also delivered.
func (s *MessageStore) MarkRead(id string) error {
	return s.mutate(id, func(m *Message) {
		m.Read = true
		m.Delivered = true
	})
}

// Edit replaces the text and sets the edited flag.
func (s *MessageStore) Edit(id, text string) error {
	return s.mutate(id, func(m *Message) {
		m.Text = text
		m.Edited = true
	})
}

func (s *MessageStore) mutate(id string, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.Deleted {
		return ErrMessageNotFound
	}
	fn(m)
	return nil
}

// Count returns the number of stored, non-deleted messages.
func (s *MessageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.ordered {
		if !m.Deleted {
			n++
		}
	}
	return n
}

// SortByCreation orders msgs by CreatedAt, falling back to insertion order
// for equal timestamps.
func SortByCreation(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].seq < msgs[j].seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
