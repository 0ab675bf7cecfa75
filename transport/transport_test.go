package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementationTypeString(t *testing.T) {
	assert.Equal(t, "legacy", LegacyImplementation.String())
	assert.Equal(t, "enterprise", EnterpriseImplementation.String())
	assert.Equal(t, "unknown", ImplementationType(42).String())
}

func TestEnterpriseConfigDefaults(t *testing.T) {
	config := &EnterpriseConfig{}
	require.NoError(t, config.Validate())

	assert.Equal(t, 10*time.Second, config.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, config.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.PongTimeout)
	assert.Equal(t, int64(32*1024), config.MaxMessageSize)
	assert.Equal(t, EnterpriseImplementation, config.GetType())
}

func TestEnterpriseConfigKeepsExplicitValues(t *testing.T) {
	config := &EnterpriseConfig{
		HandshakeTimeout: 2 * time.Second,
		MaxMessageSize:   1024,
	}
	require.NoError(t, config.Validate())

	assert.Equal(t, 2*time.Second, config.HandshakeTimeout)
	assert.Equal(t, int64(1024), config.MaxMessageSize)
}

func TestLegacyConfigDefaults(t *testing.T) {
	config := &LegacyConfig{Addr: "localhost:6379"}
	require.NoError(t, config.Validate())

	assert.Equal(t, "quietspace", config.ChannelPrefix)
	assert.Equal(t, 30*time.Second, config.ClientTimeout)
	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, LegacyImplementation, config.GetType())
}

func TestLegacyConfigRequiresAddr(t *testing.T) {
	config := &LegacyConfig{}
	assert.ErrorIs(t, config.Validate(), ErrInvalidAddress)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("chat_message", "chat", map[string]string{
		"chatId":  "c1",
		"content": "hi",
	})
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "chat_message", parsed.Type)
	assert.Equal(t, "chat", parsed.Feature)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(parsed.Data, &payload))
	assert.Equal(t, "c1", payload["chatId"])
}

func TestParseEnvelopeRejectsMissingFeature(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":"chat_message","data":{}}`))
	assert.Error(t, err)
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
