package chat

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// TimestampLayout 是消息时间的展示格式（仅用于显示）。
const TimestampLayout = "03:04 PM"

// Message is one displayed transcript entry. Timestamp is display-only and is
// not persisted; it is re-stamped when history is restored.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	AudioURL  string `json:"audioUrl,omitempty"`
	Timestamp string `json:"-"`
}
