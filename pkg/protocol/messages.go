package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the envelope discriminator.
type MessageType string

const (
	TypeSignup   MessageType = "signup"
	TypeValidate MessageType = "validate"
)

var (
	// ErrUnknownType is returned when an envelope carries an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMalformed is returned when an envelope or its payload cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

// Status is the outcome of a single uptime probe.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Validate checks that the status is one of the two known values.
func (s Status) Validate() error {
	switch s {
	case StatusUp, StatusDown:
		return nil
	}
	return fmt.Errorf("invalid status %q (expected %q or %q)", string(s), StatusUp, StatusDown)
}

// HubMessage is a message sent by the hub to an agent.
// Implementations: *SignupAck, *ValidateRequest.
type HubMessage interface {
	hubMessage()
	messageType() MessageType
}

// AgentMessage is a message sent by an agent to the hub.
// Implementations: *SignupRequest, *ValidateReply.
type AgentMessage interface {
	agentMessage()
	messageType() MessageType
}

// SignupAck is the hub's reply to a verified signup request.
type SignupAck struct {
	CallbackID  string `json:"callbackId"`
	ValidatorID string `json:"validatorId"`
}

// ValidateRequest assigns a single uptime check to an agent.
type ValidateRequest struct {
	URL        string `json:"url"`
	CallbackID string `json:"callbackId"`
	WebsiteID  string `json:"websiteId"`
}

// SignupRequest proves ownership of PublicKey by signing the signup challenge.
type SignupRequest struct {
	PublicKey     string `json:"publicKey"`
	IP            string `json:"ip"`
	CallbackID    string `json:"callbackId"`
	SignedMessage string `json:"signedMessage"`
}

// ValidateReply carries the signed outcome of a ValidateRequest.
type ValidateReply struct {
	Status        Status `json:"status"`
	CallbackID    string `json:"callbackId"`
	Latency       int64  `json:"latency"`
	ValidatorID   string `json:"validatorId"`
	SignedMessage string `json:"signedMessage"`
	WebsiteID     string `json:"websiteId"`
}

func (*SignupAck) hubMessage() {}
func (*SignupAck) messageType() MessageType { return TypeSignup }
func (*ValidateRequest) hubMessage() {}
func (*ValidateRequest) messageType() MessageType { return TypeValidate }

func (*SignupRequest) agentMessage() {}
func (*SignupRequest) messageType() MessageType { return TypeSignup }
func (*ValidateReply) agentMessage() {}
func (*ValidateReply) messageType() MessageType { return TypeValidate }

// envelope is the on-the-wire frame shape.
type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeHubMessage serialises a hub-to-agent message.
func EncodeHubMessage(msg HubMessage) ([]byte, error) {
	return encode(msg.messageType(), msg)
}

// EncodeAgentMessage serialises an agent-to-hub message.
func EncodeAgentMessage(msg AgentMessage) ([]byte, error) {
	return encode(msg.messageType(), msg)
}

func encode(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	out, err := json.Marshal(envelope{Type: t, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", t, err)
	}
	return out, nil
}

// DecodeHubMessage parses a frame received by an agent.
func DecodeHubMessage(frame []byte) (HubMessage, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeSignup:
		var msg SignupAck
		if err := decodePayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CallbackID == "" || msg.ValidatorID == "" {
			return nil, fmt.Errorf("%w: signup ack requires callbackId and validatorId", ErrMalformed)
		}
		return &msg, nil

	case TypeValidate:
		var msg ValidateRequest
		if err := decodePayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CallbackID == "" || msg.URL == "" || msg.WebsiteID == "" {
			return nil, fmt.Errorf("%w: validate request requires url, callbackId and websiteId", ErrMalformed)
		}
		return &msg, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(env.Type))
}

// DecodeAgentMessage parses a frame received by the hub.
func DecodeAgentMessage(frame []byte) (AgentMessage, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeSignup:
		var msg SignupRequest
		if err := decodePayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CallbackID == "" || msg.PublicKey == "" || msg.SignedMessage == "" {
			return nil, fmt.Errorf("%w: signup request requires publicKey, callbackId and signedMessage", ErrMalformed)
		}
		return &msg, nil

	case TypeValidate:
		var msg ValidateReply
		if err := decodePayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CallbackID == "" {
			return nil, fmt.Errorf("%w: validate reply requires callbackId", ErrMalformed)
		}
		if err := msg.Status.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &msg, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(env.Type))
}

func decodeEnvelope(frame []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &env, nil
}

func decodePayload(env *envelope, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s message has no data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}
