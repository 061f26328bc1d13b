package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/metrics"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/storage"
)

var log = logging.For("transcript")

// View renders the transcript.
type View interface {
	// RenderMessage draws msg below the existing entries and scrolls to it.
	RenderMessage(msg chat.Message)
	// ShowWelcome resets the transcript view to the welcome placeholder.
	ShowWelcome()
	// HideWelcome removes the welcome placeholder.
	HideWelcome()
}

// Store 聊天记录存储：内存列表 + 持久化镜像。
type Store struct {
	mu       sync.Mutex
	messages []chat.Message
	welcome  bool

	kv      storage.Store
	view    View
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics counts appended messages.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty transcript showing the welcome placeholder.
func NewStore(kv storage.Store, view View, opts ...Option) *Store {
	s := &Store{
		messages: make([]chat.Message, 0, 32),
		welcome:  true,
		kv:       kv,
		view:     view,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.view.ShowWelcome()
	return s
}

// Append adds a message, renders it and persists the whole transcript.
func (s *Store) Append(sender chat.Sender, text, audioURL string) (chat.Message, error) {
	if !sender.Valid() {
		return chat.Message{}, fmt.Errorf("invalid sender %q", sender)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.appendLocked(sender, text, audioURL)
	s.metrics.ObserveMessage(string(sender))
	return msg, s.persistLocked()
}

// Persist writes the full transcript to durable storage.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Restore replays the durable history into the view. Missing history is not
// an error; unreadable history is logged and treated as empty.
func (s *Store) Restore() error {
	raw, err := s.kv.Get(storage.KeyChatHistory)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		log.WithError(err).Error("history load error")
		return nil
	}

	var saved []chat.Message
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		log.WithError(err).Error("history load error")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range saved {
		if !msg.Sender.Valid() {
			log.WithField("sender", msg.Sender).Warn("skipping history entry with unknown sender")
			continue
		}
		s.appendLocked(msg.Sender, msg.Text, msg.AudioURL)
	}
	log.WithField("messages", len(s.messages)).Debug("history restored")
	return nil
}

// Clear empties the transcript, shows the welcome placeholder and removes the
// durable copy.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	s.welcome = true
	s.view.ShowWelcome()

	if err := s.kv.Delete(storage.KeyChatHistory); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Messages returns a copy of the transcript in insertion order.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// WelcomeVisible reports whether the placeholder is currently shown.
func (s *Store) WelcomeVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

func (s *Store) appendLocked(sender chat.Sender, text, audioURL string) chat.Message {
	if s.welcome {
		s.view.HideWelcome()
		s.welcome = false
	}

	msg := chat.Message{
		Sender:    sender,
		Text:      text,
		AudioURL:  audioURL,
		Timestamp: s.now().Format(chat.TimestampLayout),
	}
	s.messages = append(s.messages, msg)
	s.view.RenderMessage(msg)
	return msg
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.messages)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(storage.KeyChatHistory, string(data)); err != nil {
		log.WithError(err).Error("history save error")
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
