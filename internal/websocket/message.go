package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexibleTime accepts either Unix milliseconds or an RFC3339 string on input
// and always writes RFC3339
type FlexibleTime struct {
	time.Time
}

func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Control frames
const (
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
)

// Application events. Names are part of the client protocol.
const (
	EventAddUser         = "add-user"
	EventNewNotification = "new-notification"

	EventSendMessage    = "send-msg"
	EventMessageReceive = "msg-recieve"

	EventJoinCommunity    = "join-community"
	EventLeaveCommunity   = "leave-community"
	EventCommunityMessage = "community-message-received"
	EventSendCommunity    = "send-community-message"

	EventCallUser     = "call-user"
	EventCallMade     = "call-made"
	EventMakeAnswer   = "make-answer"
	EventAnswerMade   = "answer-made"
	EventICECandidate = "ice-candidate"
)

// Message is the envelope for every frame in both directions.
// Type carries the event name.
type Message struct {
	Type string `json:"type"`

	Payload interface{} `json:"payload,omitempty"`

	// Optional client-chosen id, echoed back in ReplyTo
	ID string `json:"id,omitempty"`

	ReplyTo string `json:"reply_to,omitempty"`

	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates an envelope stamped with the current time
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewMessageWithID creates an envelope carrying a correlation id
func NewMessageWithID(msgType string, id string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ID = id
	return msg
}

// NewReply creates a response to a client frame
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload is sent on connect, identify and shutdown
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// parseUserID accepts the add-user payload either as a bare string or as an
// object with user_id / userId
func parseUserID(payload interface{}) string {
	switch v := payload.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		for _, key := range []string{"user_id", "userId"} {
			if s, ok := v[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// parseRoomID accepts a community id either as a bare string or as
// {community_id} / {communityId}
func parseRoomID(payload interface{}) string {
	switch v := payload.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		for _, key := range []string{"community_id", "communityId"} {
			if s, ok := v[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
