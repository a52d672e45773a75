package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventChat         EventType = "chat"
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventWebRTCOffer  EventType = "webrtc_offer"
	EventWebRTCAnswer EventType = "webrtc_answer"
	EventWebRTCICE    EventType = "webrtc_ice"
	EventTimer        EventType = "timer"
)

// Event is an outbound frame delivered to room sessions. The set of
// implementations is closed: only this package can add one.
type Event interface {
	EventType() EventType
	event()
}

type ChatEvent struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	Timestamp string    `json:"timestamp"`
}

func NewChatEvent(username, message string, at time.Time) *ChatEvent {
	return &ChatEvent{
		Type:      EventChat,
		Message:   message,
		Username:  username,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// PresenceEvent announces a session joining or leaving.
type PresenceEvent struct {
	Type     EventType `json:"type"`
	Username string    `json:"username"`
}

func NewJoinEvent(username string) *PresenceEvent {
	return &PresenceEvent{Type: EventJoin, Username: username}
}

func NewLeaveEvent(username string) *PresenceEvent {
	return &PresenceEvent{Type: EventLeave, Username: username}
}

// Offer, answer and candidate payloads are relayed as-is.

type OfferEvent struct {
	Type     EventType       `json:"type"`
	Offer    json.RawMessage `json:"offer"`
	Username string          `json:"username"`
}

type AnswerEvent struct {
	Type     EventType       `json:"type"`
	Answer   json.RawMessage `json:"answer"`
	Username string          `json:"username"`
}

type ICEEvent struct {
	Type      EventType       `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	Username  string          `json:"username"`
}

func NewOfferEvent(username string, offer json.RawMessage) *OfferEvent {
	return &OfferEvent{Type: EventWebRTCOffer, Offer: offer, Username: username}
}

func NewAnswerEvent(username string, answer json.RawMessage) *AnswerEvent {
	return &AnswerEvent{Type: EventWebRTCAnswer, Answer: answer, Username: username}
}

func NewICEEvent(username string, candidate json.RawMessage) *ICEEvent {
	return &ICEEvent{Type: EventWebRTCICE, Candidate: candidate, Username: username}
}

// TimerEvent shares a study timer action. Minutes is null when the sender
// did not provide it.
type TimerEvent struct {
	Type     EventType       `json:"type"`
	Action   string          `json:"action"`
	Minutes  json.RawMessage `json:"minutes"`
	Username string          `json:"username"`
}

func NewTimerEvent(username, action string, minutes json.RawMessage) *TimerEvent {
	return &TimerEvent{Type: EventTimer, Action: action, Minutes: minutes, Username: username}
}

func (e *ChatEvent) EventType() EventType     { return EventChat }
func (e *PresenceEvent) EventType() EventType { return e.Type }
func (e *OfferEvent) EventType() EventType    { return EventWebRTCOffer }
func (e *AnswerEvent) EventType() EventType   { return EventWebRTCAnswer }
func (e *ICEEvent) EventType() EventType      { return EventWebRTCICE }
func (e *TimerEvent) EventType() EventType    { return EventTimer }

func (*ChatEvent) event()     {}
func (*PresenceEvent) event() {}
func (*OfferEvent) event()    {}
func (*AnswerEvent) event()   {}
func (*ICEEvent) event()      {}
func (*TimerEvent) event()    {}

// EncodeEvent renders an event as a JSON text frame.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
