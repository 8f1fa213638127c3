package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
		wantErr  error
	}{
		{
			name:     "new message",
			data:     `{"type":"new_message","payload":{"id":"m1","content":"hi"}}`,
			wantType: TypeNewMessage,
		},
		{
			name:     "unknown type still decodes",
			data:     `{"type":"unknown_x"}`,
			wantType: "unknown_x",
		},
		{
			name:    "not json",
			data:    `hello`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "json array",
			data:    `[1,2,3]`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "missing type",
			data:    `{"payload":{}}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "null",
			data:    `null`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.data))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
		})
	}
}

func TestDecodeEnvelopeTooLarge(t *testing.T) {
	data := `{"type":"new_message","payload":"` + strings.Repeat("x", MaxEnvelopeSize) + `"}`
	_, err := DecodeEnvelope([]byte(data))
	assert.Equal(t, ErrFrameTooLarge, err)
}

func TestDecodePayload(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"typing","payload":{"room":"topic_7","user_id":"u2","is_typing":true}}`))
	require.NoError(t, err)

	var p TypingPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, TypingPayload{Room: "topic_7", UserID: "u2", IsTyping: true}, p)

	empty := &Envelope{Type: TypeTyping}
	err = empty.DecodePayload(&p)
	assert.True(t, errors.Is(err, ErrMalformedFrame))

	bad := &Envelope{Type: TypeTyping, Payload: json.RawMessage(`"nope"`)}
	err = bad.DecodePayload(&p)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestDecodePayloadNull(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"new_message","payload":null}`))
	require.NoError(t, err)

	var m Message
	err = env.DecodePayload(&m)
	assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)

	spaced := &Envelope{Type: TypeNewMessage, Payload: json.RawMessage(" null ")}
	assert.True(t, errors.Is(spaced.DecodePayload(&m), ErrMalformedFrame))
}

func TestEncodeJoinRoom(t *testing.T) {
	data, err := EncodeJoinRoom("topic_42")
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "join_room", raw["type"])
	assert.Equal(t, "topic_42", raw["room"])
	assert.Equal(t, map[string]interface{}{"room": "topic_42"}, raw["payload"])
}

func TestEncodeLeaveRoom(t *testing.T) {
	data, err := EncodeLeaveRoom("topic_42")
	require.NoError(t, err)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeLeaveRoom, env.Type)
	assert.Equal(t, "topic_42", env.Room)

	var p JoinRoomPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "topic_42", p.Room)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "topic_1", TopicRoom("1"))
	assert.Equal(t, "group_abc", GroupRoom("abc"))
	assert.Equal(t, "dm_u9", DMRoom("u9"))

	topic := "t1"
	group := "g1"
	assert.Equal(t, "topic_t1", MessageRoom(Message{TopicID: &topic}))
	assert.Equal(t, "group_g1", MessageRoom(Message{GroupID: &group}))
	assert.Equal(t, "", MessageRoom(Message{}))
}

// TestDecodeEnvelopeNeverPanics feeds arbitrary bytes to the decoder; it must
// either return an envelope with a type or a malformed-frame error.
func TestDecodeEnvelopeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "data")

		env, err := DecodeEnvelope(data)
		if err != nil {
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if env.Type == "" {
			t.Fatalf("decoded envelope without type")
		}
	})
}
