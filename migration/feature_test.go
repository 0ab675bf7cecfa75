package migration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thural/quietspace-realtime/transport"
)

func TestRegistryBuiltins(t *testing.T) {
	registry := NewRegistry()

	for _, feature := range []Feature{FeatureChat, FeatureNotification, FeatureFeed} {
		codec, err := registry.Codec(feature)
		require.NoError(t, err)
		assert.Equal(t, feature, codec.Feature())
	}
}

func TestRegistryUnknownFeature(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Codec(Feature("presence"))
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestChatCodecEnvelope(t *testing.T) {
	registry := NewRegistry()
	codec, err := registry.Codec(FeatureChat)
	require.NoError(t, err)

	env, err := codec.ToEnvelope(ChatMessage{ChatID: "c1", Content: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "chat_message", env.Type)
	assert.Equal(t, "chat", env.Feature)

	var data ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "c1", data.ChatID)
	assert.Equal(t, "hi", data.Content)
	assert.Equal(t, "text", data.Type, "message type defaults to text")
}

func TestChatCodecPreservesExplicitType(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureChat)

	env, err := codec.ToEnvelope(ChatMessage{ChatID: "c1", Content: "pic.png", Type: "image"})
	require.NoError(t, err)

	var data ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "image", data.Type)
}

func TestChatCodecMissingFields(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureChat)

	err := codec.Validate(map[string]interface{}{"chatId": "c1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), `"content"`)
	assert.Contains(t, err.Error(), `"chat"`)

	err = codec.Validate(map[string]interface{}{"content": "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"chatId"`)
}

func TestChatCodecMalformedPayload(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureChat)

	err := codec.Validate(json.RawMessage(`"just a string"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestActionCodecRequiresAction(t *testing.T) {
	registry := NewRegistry()

	for _, feature := range []Feature{FeatureNotification, FeatureFeed} {
		codec, _ := registry.Codec(feature)

		err := codec.Validate(map[string]interface{}{"postId": "p1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPayload)
		assert.Contains(t, err.Error(), `"action"`)
		assert.Contains(t, err.Error(), string(feature))
	}
}

func TestActionCodecPreservesExtraFields(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureFeed)

	env, err := codec.ToEnvelope(map[string]interface{}{
		"action": "like",
		"postId": "p1",
		"userId": "u9",
	})
	require.NoError(t, err)
	assert.Equal(t, "feed_action", env.Type)
	assert.Equal(t, "feed", env.Feature)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "like", data["action"])
	assert.Equal(t, "p1", data["postId"])
	assert.Equal(t, "u9", data["userId"])
}

func TestNotificationCodecEnvelopeType(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureNotification)

	env, err := codec.ToEnvelope(map[string]interface{}{"action": "seen", "notificationId": "n1"})
	require.NoError(t, err)
	assert.Equal(t, "notification_action", env.Type)
	assert.Equal(t, "notification", env.Feature)
}

func TestFromEnvelopeFeatureMismatch(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureChat)

	env := transport.Envelope{Type: "feed_action", Feature: "feed", Data: json.RawMessage(`{}`)}
	_, err := codec.FromEnvelope(env)
	assert.Error(t, err)
}

func TestFromEnvelopeReturnsData(t *testing.T) {
	registry := NewRegistry()
	codec, _ := registry.Codec(FeatureChat)

	raw := json.RawMessage(`{"chatId":"c1","content":"hi","type":"text"}`)
	env := transport.Envelope{Type: "chat_message", Feature: "chat", Data: raw}

	data, err := codec.FromEnvelope(env)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(data))
}
