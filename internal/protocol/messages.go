package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clintwin/pillfinder/internal/identify"
	"github.com/clintwin/pillfinder/internal/phrase"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientStart  MessageType = "client_start"
	TypeClientAnswer MessageType = "client_answer"
	TypeClientEnd    MessageType = "client_end"
	TypeQuestion     MessageType = "question"
	TypeResult       MessageType = "result"
	TypeSessionEnded MessageType = "session_ended"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientStart opens a fresh identification session over the socket.
type ClientStart struct {
	Type MessageType `json:"type"`
}

// ClientAnswer submits the chosen option for the pending question.
type ClientAnswer struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	QuestionID string      `json:"question_id,omitempty"`
	Answer     string      `json:"answer"`
}

// ClientEnd abandons the session early.
type ClientEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// QuestionEvent carries the next question to the client.
type QuestionEvent struct {
	Type                MessageType     `json:"type"`
	SessionID           string          `json:"session_id"`
	Question            phrase.Question `json:"question"`
	RemainingCandidates int             `json:"remaining_candidates"`
	Confidence          float64         `json:"confidence"`
	QuestionsAsked      int             `json:"questions_asked"`
}

// ResultEvent carries the frozen outcome of a finished session.
type ResultEvent struct {
	Type   MessageType      `json:"type"`
	Result *identify.Result `json:"result"`
}

type SessionEnded struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates an inbound client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientStart:
		var msg ClientStart
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientAnswer:
		var msg ClientAnswer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Answer == "" {
			return nil, errors.New("invalid client_answer")
		}
		return msg, nil
	case TypeClientEnd:
		var msg ClientEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_end")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
