package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/immxrtalbeast/studyroom/internal/domain"
)

const MaxChatMessageLength = 4000

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown frame type")
	ErrMissingField = errors.New("missing required field")
	ErrEmptyMessage = errors.New("empty chat message")
	ErrTooLong      = errors.New("chat message too long")
)

// Frame is a decoded inbound client frame.
type Frame interface {
	frame()
}

type ChatFrame struct {
	Message string
}

type OfferFrame struct {
	Offer json.RawMessage
}

type AnswerFrame struct {
	Answer json.RawMessage
}

type ICEFrame struct {
	Candidate json.RawMessage
}

type TimerFrame struct {
	Action string
	// Minutes is nil when the client omitted it.
	Minutes json.RawMessage
}

func (ChatFrame) frame()   {}
func (OfferFrame) frame()  {}
func (AnswerFrame) frame() {}
func (ICEFrame) frame()    {}
func (TimerFrame) frame()  {}

type envelope struct {
	Type      domain.EventType `json:"type"`
	Message   *string          `json:"message"`
	Offer     json.RawMessage  `json:"offer"`
	Answer    json.RawMessage  `json:"answer"`
	Candidate json.RawMessage  `json:"candidate"`
	Action    *string          `json:"action"`
	Minutes   json.RawMessage  `json:"minutes"`
}

// DecodeFrame parses one inbound text frame. Chat text is trimmed and
// validated here so the router only sees deliverable messages.
func DecodeFrame(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case domain.EventChat:
		if env.Message == nil {
			return nil, fmt.Errorf("%w: message", ErrMissingField)
		}
		text := strings.TrimSpace(*env.Message)
		if text == "" {
			return nil, ErrEmptyMessage
		}
		if utf8.RuneCountInString(text) > MaxChatMessageLength {
			return nil, ErrTooLong
		}
		return ChatFrame{Message: text}, nil
	case domain.EventWebRTCOffer:
		if len(env.Offer) == 0 {
			return nil, fmt.Errorf("%w: offer", ErrMissingField)
		}
		return OfferFrame{Offer: env.Offer}, nil
	case domain.EventWebRTCAnswer:
		if len(env.Answer) == 0 {
			return nil, fmt.Errorf("%w: answer", ErrMissingField)
		}
		return AnswerFrame{Answer: env.Answer}, nil
	case domain.EventWebRTCICE:
		if len(env.Candidate) == 0 {
			return nil, fmt.Errorf("%w: candidate", ErrMissingField)
		}
		return ICEFrame{Candidate: env.Candidate}, nil
	case domain.EventTimer:
		if env.Action == nil {
			return nil, fmt.Errorf("%w: action", ErrMissingField)
		}
		return TimerFrame{Action: *env.Action, Minutes: env.Minutes}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
