package bus

import "time"

// ContentType tags a content item with the kind of payload it carries.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentVoice    ContentType = "voice"
	ContentPhoto    ContentType = "photo"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentDocument ContentType = "document"
)

// ContentItem is one unit of incoming content. Immutable once received.
type ContentItem struct {
	ID          string
	GroupID     string // empty for standalone items
	Text        string // message text or attachment caption
	Attachment  string // transport-level file reference, empty for pure text
	ContentType ContentType
	ReceivedAt  time.Time
	ChatID      string
	ChatName    string
	Sender      string
	MessageID   int
}

// HasAttachment reports whether the item carried a file.
func (c ContentItem) HasAttachment() bool {
	return c.Attachment != ""
}

// InboundEnvelope wraps a ContentItem with its downloaded payload. A failed
// download surfaces through DownloadErr; Data is nil in that case.
type InboundEnvelope struct {
	Item        ContentItem
	Data        []byte
	FileName    string
	DownloadErr error
}

// MessageBus carries inbound envelopes from the transport to the pipeline.
type MessageBus struct {
	Inbound chan InboundEnvelope
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound: make(chan InboundEnvelope, bufSize),
	}
}
