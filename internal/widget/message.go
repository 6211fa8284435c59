package widget

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged between the loader and the banner frame.
const (
	MsgConsentAction  = "CONSENT_ACTION"
	MsgLanguageChange = "LANGUAGE_CHANGE"
	MsgCloseBanner    = "CLOSE_BANNER"
	MsgUpdateLanguage = "UPDATE_LANGUAGE"
)

// Consent statuses emitted by the banner.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusUpdated  = "updated"
	StatusPartial  = "partial"
)

// AnyOrigin is the postMessage target used when the parent origin is unknown.
const AnyOrigin = "*"

// Host events dispatched on the embedding window.
const (
	EventConsentSaved = "dpdp-consent-saved"
	EventConsentError = "dpdp-consent-error"
)

// Message is a postMessage envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageEvent is a received message together with the sender's origin.
type MessageEvent struct {
	Origin string
	Data   Message
}

// Decision is the banner's consent choice, transient until submitted.
type Decision struct {
	Status    string   `json:"status"`
	Purposes  []string `json:"purposes"`
	Timestamp int64    `json:"timestamp"`
	Language  string   `json:"language"`
}

// LanguagePayload carries a language code.
type LanguagePayload struct {
	Language string `json:"language"`
}

// NewMessage encodes payload into a Message of the given type.
func NewMessage(msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals the payload into dst.
func (m Message) Decode(dst any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// Submission is the wire body posted to the consent store.
type Submission struct {
	TemplateID      string   `json:"templateId"`
	UserReferenceID string   `json:"userReferenceId"`
	Status          string   `json:"status"`
	Purposes        []string `json:"purposes"`
	Timestamp       int64    `json:"timestamp"`
	Platform        string   `json:"platform"`
	Language        string   `json:"language"`
}

// Receipt is the consent store's acknowledgement.
type Receipt struct {
	ID              string   `json:"id"`
	TemplateID      string   `json:"templateId"`
	UserReferenceID string   `json:"userReferenceId"`
	Status          string   `json:"status"`
	Purposes        []string `json:"purposes"`
	Timestamp       int64    `json:"timestamp"`
	Platform        string   `json:"platform"`
	Language        string   `json:"language"`
}
