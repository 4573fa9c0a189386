// Package protocol builds the outbound message envelopes sent to the relay
// backend and decodes the inbound payloads it emits.
package protocol

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChatMode selects who an outbound message is addressed to.
type ChatMode int

const (
	ModePrivate ChatMode = iota
	ModeGroup
)

// String returns the string representation of ChatMode
func (m ChatMode) String() string {
	switch m {
	case ModePrivate:
		return "private"
	case ModeGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ParseChatMode converts "private" or "group" into a ChatMode.
func ParseChatMode(s string) (ChatMode, error) {
	switch s {
	case "private":
		return ModePrivate, nil
	case "group":
		return ModeGroup, nil
	default:
		return 0, fmt.Errorf("unknown chat mode %q", s)
	}
}

// MessageKind is the "type" tag of an envelope on the wire.
type MessageKind string

const (
	KindPrivate MessageKind = "private_message"
	KindGroup   MessageKind = "group_message"
)

// Payload field names. The backend routes on these, so they must match exactly.
const (
	FieldRecipientID = "recipient_id"
	FieldGroupID     = "group_id"
	FieldContent     = "content"
)

// Kind returns the envelope kind produced for the mode.
func (m ChatMode) Kind() MessageKind {
	if m == ModeGroup {
		return KindGroup
	}
	return KindPrivate
}

// TargetField returns the payload field that carries the target identifier.
func (m ChatMode) TargetField() string {
	if m == ModeGroup {
		return FieldGroupID
	}
	return FieldRecipientID
}

func (m ChatMode) valid() bool {
	return m == ModePrivate || m == ModeGroup
}

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a required envelope field that was left empty.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "mode" {
		return "validation failed: unknown chat mode"
	}
	return fmt.Sprintf("validation failed: %s must not be empty", e.Field)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Envelope is an outbound message before serialization.
type Envelope struct {
	Mode    ChatMode
	Target  string
	Content string
}

// NewEnvelope validates its arguments and returns the envelope for mode.
func NewEnvelope(mode ChatMode, target, content string) (Envelope, error) {
	if !mode.valid() {
		return Envelope{}, &ValidationError{Field: "mode"}
	}
	if target == "" {
		return Envelope{}, &ValidationError{Field: mode.TargetField()}
	}
	if content == "" {
		return Envelope{}, &ValidationError{Field: FieldContent}
	}
	return Envelope{Mode: mode, Target: target, Content: content}, nil
}

// Kind returns the wire kind of the envelope.
func (e Envelope) Kind() MessageKind {
	return e.Mode.Kind()
}

// Marshal serializes the envelope as
// {"type":<kind>,"payload":{<target field>:<target>,"content":<content>}}.
func (e Envelope) Marshal() (string, error) {
	out, err := sjson.Set("", "type", string(e.Kind()))
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	out, err = sjson.Set(out, "payload."+e.Mode.TargetField(), e.Target)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	out, err = sjson.Set(out, "payload."+FieldContent, e.Content)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return out, nil
}

// Encode validates and serializes a message in one step.
func Encode(mode ChatMode, target, content string) (string, error) {
	env, err := NewEnvelope(mode, target, content)
	if err != nil {
		return "", err
	}
	return env.Marshal()
}

// ParseEnvelope reads a serialized envelope back. The target is looked up in
// the field that matches the envelope kind.
func ParseEnvelope(data string) (Envelope, error) {
	if !gjson.Valid(data) {
		return Envelope{}, fmt.Errorf("failed to parse envelope: invalid JSON")
	}
	var mode ChatMode
	switch MessageKind(gjson.Get(data, "type").String()) {
	case KindPrivate:
		mode = ModePrivate
	case KindGroup:
		mode = ModeGroup
	default:
		return Envelope{}, fmt.Errorf("failed to parse envelope: unknown type %q", gjson.Get(data, "type").String())
	}
	return Envelope{
		Mode:    mode,
		Target:  gjson.Get(data, "payload."+mode.TargetField()).String(),
		Content: gjson.Get(data, "payload."+FieldContent).String(),
	}, nil
}
