package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type OutboundType string

const (
	OutboundSessionStart   OutboundType = "SESSION_START"
	OutboundSessionEnd     OutboundType = "SESSION_END"
	OutboundTranscriptText OutboundType = "TRANSCRIPT_TEXT"
	OutboundCustomMessage  OutboundType = "CUSTOM_MESSAGE"
)

// OutboundMessage is one realtime frame headed to the backend. SessionID is
// snapshotted at enqueue time and re-stamped to the current session when a
// queued message is finally flushed.
type OutboundMessage struct {
	Type      OutboundType
	SessionID string
	Timestamp time.Time
	Fields    map[string]any
}

// MarshalJSON flattens type-specific fields into the envelope, matching the
// wire shape {type, sessionId, timestamp, ...fields}.
func (m OutboundMessage) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(m.Fields)+3)
	for key, value := range m.Fields {
		body[key] = value
	}
	body["type"] = m.Type
	body["sessionId"] = m.SessionID
	body["timestamp"] = m.Timestamp.UnixMilli()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode outbound message: %w", err)
	}
	return payload, nil
}

type InboundType string

const (
	InboundClassificationResult InboundType = "CLASSIFICATION_RESULT"
	InboundQuestion             InboundType = "QUESTION"
	InboundError                InboundType = "ERROR"
)

// InboundMessage is one realtime frame from the backend. Only the fields
// matching Type are populated; unrecognized types keep the raw frame for
// diagnostics.
type InboundMessage struct {
	Type             InboundType `json:"type"`
	TranscriptID     string      `json:"transcriptId,omitempty"`
	AIAnswer         string      `json:"aiAnswer,omitempty"`
	Classification   string      `json:"classification,omitempty"`
	Confidence       float64     `json:"confidence,omitempty"`
	Suggestions      []string    `json:"suggestions,omitempty"`
	OriginalQuestion string      `json:"originalQuestion,omitempty"`
	SpeakerFLName    string      `json:"speakerFLName,omitempty"`
	Error            string      `json:"error,omitempty"`
}

func (m InboundMessage) Recognized() bool {
	switch m.Type {
	case InboundClassificationResult, InboundQuestion, InboundError:
		return true
	}
	return false
}

// DecodeInboundMessage parses one frame. A parse failure or a frame with no
// type wraps ErrMalformedMessage so callers can drop it without tearing the
// connection down.
func DecodeInboundMessage(data []byte) (InboundMessage, error) {
	var message InboundMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if message.Type == "" {
		return InboundMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return message, nil
}
