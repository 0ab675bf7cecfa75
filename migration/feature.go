package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "gopkg.in/go-playground/validator.v9"

	"github.com/thural/quietspace-realtime/transport"
)

// Feature-level errors.
var (
	// ErrInvalidPayload indicates that an outbound payload does not match the
	// shape its feature requires.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownFeature indicates that no codec is registered for a feature.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Envelope message types per feature.
const (
	chatMessageType        = "chat_message"
	notificationActionType = "notification_action"
	feedActionType         = "feed_action"
)

// ChatMessage is the outbound payload shape for the chat feature.
type ChatMessage struct {
	ChatID  string `json:"chatId" validate:"required"`
	Content string `json:"content" validate:"required"`
	Type    string `json:"type,omitempty"`
}

// actionPayload is the required portion of notification and feed payloads;
// both carry an action plus arbitrary additional fields.
type actionPayload struct {
	Action string `json:"action" validate:"required"`
}

// Codec maps a feature's domain vocabulary onto the enterprise wire envelope
// and back. Each feature defines its own required-shape validation.
type Codec interface {
	// Feature returns the feature this codec serves.
	Feature() Feature

	// Validate checks that an outbound payload has the shape the feature
	// requires. Errors name the feature and the missing field.
	Validate(payload interface{}) error

	// ToEnvelope validates the payload and wraps it in the feature-qualified
	// wire envelope.
	ToEnvelope(payload interface{}) (transport.Envelope, error)

	// FromEnvelope extracts the feature payload from an inbound envelope.
	FromEnvelope(env transport.Envelope) (json.RawMessage, error)
}

// Registry holds the codec for each feature. It is constructed explicitly and
// handed to controllers; there is no package-level registry instance.
type Registry struct {
	codecs   map[Feature]Codec
	validate *validator.Validate
}

// NewRegistry creates a Registry populated with the built-in chat,
// notification and feed codecs.
func NewRegistry() *Registry {
	v := validator.New()
	// Report field names from json tags so validation errors speak the wire
	// vocabulary.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	r := &Registry{
		codecs:   make(map[Feature]Codec),
		validate: v,
	}
	r.Register(&chatCodec{validate: v})
	r.Register(&actionCodec{feature: FeatureNotification, msgType: notificationActionType, validate: v})
	r.Register(&actionCodec{feature: FeatureFeed, msgType: feedActionType, validate: v})
	return r
}

// Register adds or replaces the codec for a feature.
func (r *Registry) Register(c Codec) {
	r.codecs[c.Feature()] = c
}

// Codec returns the codec registered for the given feature.
func (r *Registry) Codec(f Feature) (Codec, error) {
	c, ok := r.codecs[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, f)
	}
	return c, nil
}

// payloadBytes normalizes an outbound payload to its JSON form.
func payloadBytes(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: not serializable: %v", ErrInvalidPayload, err)
		}
		return data, nil
	}
}

// shapeError converts a validator error into a descriptive feature error.
func shapeError(feature Feature, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: feature %q: missing required field %q",
			ErrInvalidPayload, feature, verrs[0].Field())
	}
	return fmt.Errorf("%w: feature %q: %v", ErrInvalidPayload, feature, err)
}

// chatCodec handles the chat feature: {chatId, content, type?} payloads
// wrapped as chat_message envelopes. The message type defaults to "text".
type chatCodec struct {
	validate *validator.Validate
}

func (c *chatCodec) Feature() Feature { return FeatureChat }

func (c *chatCodec) decode(payload interface{}) (ChatMessage, error) {
	var msg ChatMessage
	data, err := payloadBytes(payload)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: feature %q: malformed payload: %v",
			ErrInvalidPayload, FeatureChat, err)
	}
	if err := c.validate.Struct(msg); err != nil {
		return msg, shapeError(FeatureChat, err)
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	return msg, nil
}

func (c *chatCodec) Validate(payload interface{}) error {
	_, err := c.decode(payload)
	return err
}

func (c *chatCodec) ToEnvelope(payload interface{}) (transport.Envelope, error) {
	msg, err := c.decode(payload)
	if err != nil {
		return transport.Envelope{}, err
	}
	return transport.NewEnvelope(chatMessageType, string(FeatureChat), msg)
}

func (c *chatCodec) FromEnvelope(env transport.Envelope) (json.RawMessage, error) {
	if env.Feature != string(FeatureChat) {
		return nil, fmt.Errorf("envelope feature %q does not match %q", env.Feature, FeatureChat)
	}
	return env.Data, nil
}

// actionCodec handles the notification and feed features: {action, ...}
// payloads where the action is required and any additional fields ride along
// untouched.
type actionCodec struct {
	feature  Feature
	msgType  string
	validate *validator.Validate
}

func (c *actionCodec) Feature() Feature { return c.feature }

// decode validates the required action field and returns the full payload,
// extra fields included, ready for the envelope data field.
func (c *actionCodec) decode(payload interface{}) (json.RawMessage, error) {
	data, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}

	var required actionPayload
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("%w: feature %q: malformed payload: %v",
			ErrInvalidPayload, c.feature, err)
	}
	if err := c.validate.Struct(required); err != nil {
		return nil, shapeError(c.feature, err)
	}
	return data, nil
}

func (c *actionCodec) Validate(payload interface{}) error {
	_, err := c.decode(payload)
	return err
}

func (c *actionCodec) ToEnvelope(payload interface{}) (transport.Envelope, error) {
	data, err := c.decode(payload)
	if err != nil {
		return transport.Envelope{}, err
	}
	return transport.Envelope{Type: c.msgType, Feature: string(c.feature), Data: data}, nil
}

func (c *actionCodec) FromEnvelope(env transport.Envelope) (json.RawMessage, error) {
	if env.Feature != string(c.feature) {
		return nil, fmt.Errorf("envelope feature %q does not match %q", env.Feature, c.feature)
	}
	return env.Data, nil
}
