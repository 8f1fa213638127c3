package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxEnvelopeSize is the largest inbound frame the client will decode (1 MB)
const MaxEnvelopeSize = 1024 * 1024

// Envelope type constants (Server → Client)
const (
	TypeNewMessage = "new_message"
	TypeNewDM      = "new_dm"
	TypeTyping     = "typing"
)

// Envelope type constants (Client → Server)
const (
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
)

// Room name prefixes
const (
	roomTopicPrefix = "topic_"
	roomGroupPrefix = "group_"
	roomDMPrefix    = "dm_"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size (1 MB)")
)

// Envelope is the tagged structure carried by the live-update connection in
// both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Room mirrors the join_room payload at the top level; older servers
	// read it from here.
	Room string `json:"room,omitempty"`
}

// TypingPayload is the payload of a typing envelope
type TypingPayload struct {
	Room     string `json:"room,omitempty"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// JoinRoomPayload is the payload of join_room and leave_room envelopes
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// DecodeEnvelope parses an inbound frame. Any frame that is not a JSON object
// with a non-empty type is reported as ErrMalformedFrame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return nil, ErrFrameTooLarge
	}

	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 || bytes.Equal(bytes.TrimSpace(e.Payload), []byte("null")) {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedFrame, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, e.Type, err)
	}
	return nil
}

// EncodeJoinRoom builds the outbound join_room frame for a room
func EncodeJoinRoom(room string) ([]byte, error) {
	return encodeRoomFrame(TypeJoinRoom, room)
}

// EncodeLeaveRoom builds the outbound leave_room frame for a room
func EncodeLeaveRoom(room string) ([]byte, error) {
	return encodeRoomFrame(TypeLeaveRoom, room)
}

func encodeRoomFrame(msgType, room string) ([]byte, error) {
	payload, err := json.Marshal(JoinRoomPayload{Room: room})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: payload, Room: room})
}

// EncodeEnvelope builds an outbound frame with an arbitrary payload
func EncodeEnvelope(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// TopicRoom returns the room name for a topic
func TopicRoom(topicID string) string { return roomTopicPrefix + topicID }

// GroupRoom returns the room name for a group
func GroupRoom(groupID string) string { return roomGroupPrefix + groupID }

// DMRoom returns the direct-message inbox room for a user
func DMRoom(userID string) string { return roomDMPrefix + userID }

// MessageRoom returns the room a message was posted to, or "" when the
// message belongs to neither a topic nor a group.
func MessageRoom(m Message) string {
	switch {
	case m.TopicID != nil && *m.TopicID != "":
		return TopicRoom(*m.TopicID)
	case m.GroupID != nil && *m.GroupID != "":
		return GroupRoom(*m.GroupID)
	}
	return ""
}
