// Package messages defines the envelopes exchanged between the extension
// background controller and the per-tab annotation session.
package messages

import (
	"encoding/json"

	"rabbithole/api/internal/validate"
)

const (
	SaveRequest      = "annotator:save-page-request"
	UnsaveRequest    = "annotator:unsave-page-request"
	SaveStateChanged = "annotator:save-state-changed"
)

// Message is a tagged envelope. URL and Title ride on save requests,
// Saved on state changes.
type Message struct {
	Type  string  `json:"type" validate:"required,oneof=annotator:save-page-request annotator:unsave-page-request annotator:save-state-changed"`
	URL   *string `json:"url,omitempty"`
	Title *string `json:"title,omitempty"`
	Saved *bool   `json:"saved,omitempty" validate:"required_if=Type annotator:save-state-changed"`
}

func NewSaveRequest(url, title string) Message {
	return Message{Type: SaveRequest, URL: &url, Title: &title}
}

func NewUnsaveRequest() Message {
	return Message{Type: UnsaveRequest}
}

func NewSaveStateChanged(saved bool) Message {
	return Message{Type: SaveStateChanged, Saved: &saved}
}

// Decode parses and validates a raw envelope.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := validate.DecodeBytes(raw, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// IsSaved reports the carried state of a state-change message.
func (m Message) IsSaved() bool {
	return m.Saved != nil && *m.Saved
}
