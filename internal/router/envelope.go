package router

import (
	"encoding/json"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
)

// Envelope is the minimal normalized form of a channel event: who sent it,
// which conversation it belongs to, and what it says. Channel-specific payload
// shapes stop here; everything downstream works on the envelope.
type Envelope struct {
	SenderID  string `json:"sender_id"`
	ThreadID  string `json:"thread_id"`
	Content   string `json:"content"`
	EventType string `json:"event_type"`
}

// NormalizeEvent extracts an Envelope from a raw channel payload. Each channel
// has its own field conventions; unknown channels are an error. Missing fields
// normalize to empty strings rather than failing: a partial envelope still
// routes, a dropped event does not.
func NormalizeEvent(channel models.Channel, eventType string, payload json.RawMessage) (Envelope, error) {
	var fields map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return Envelope{}, fmt.Errorf("malformed %s payload: %w", channel, err)
		}
	}

	env := Envelope{EventType: eventType}
	switch channel {
	case models.ChannelChat:
		env.SenderID = stringField(fields, "user", "user_id", "sender")
		env.ThreadID = stringField(fields, "thread_ts", "channel", "channel_id")
		env.Content = stringField(fields, "text", "message")
	case models.ChannelEmail:
		env.SenderID = stringField(fields, "from", "sender")
		env.ThreadID = stringField(fields, "thread_id", "message_id")
		env.Content = stringField(fields, "body", "text", "subject")
	case models.ChannelSMS:
		env.SenderID = stringField(fields, "from", "from_number")
		env.ThreadID = stringField(fields, "conversation_id", "from", "from_number")
		env.Content = stringField(fields, "body", "text")
	case models.ChannelCalendar:
		env.SenderID = stringField(fields, "organizer", "organizer_email")
		env.ThreadID = stringField(fields, "event_id", "calendar_id")
		env.Content = stringField(fields, "summary", "title")
	default:
		return Envelope{}, fmt.Errorf("unknown channel: %q", channel)
	}

	return env, nil
}

// stringField returns the first present string value among keys.
func stringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
