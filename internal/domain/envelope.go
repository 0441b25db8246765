package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EnvelopeImage is the trimmed-down image shape stored inside the first
// message. The file name is dropped: only type and payload travel downstream.
type EnvelopeImage struct {
	Type    string `json:"type"`
	DataURL string `json:"dataUrl"`
}

// Envelope is the structured payload serialized into message 0 of every
// session: the creation parameters doubling as the first chat entry.
type Envelope struct {
	PromptLanguage string          `json:"promptLanguage"`
	Orientation    Orientation     `json:"orientation"`
	Duration       int             `json:"duration"`
	Idea           string          `json:"idea"`
	Images         []EnvelopeImage `json:"images"`
}

// EncodeEnvelope serializes the creation parameters as the content of the
// seed message.
func EncodeEnvelope(settings InitialSettings) (string, error) {
	env := Envelope{
		PromptLanguage: settings.PromptLanguage,
		Orientation:    settings.Orientation,
		Duration:       settings.Duration,
		Idea:           settings.Idea,
		Images:         make([]EnvelopeImage, 0, len(settings.ReferenceImages)),
	}
	for _, img := range settings.ReferenceImages {
		env.Images = append(env.Images, EnvelopeImage{Type: img.Type, DataURL: img.DataURL})
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	return string(raw), nil
}

// DecodeEnvelope attempts to read a message content as an envelope. The check
// is structural: content must parse as JSON and carry non-empty idea,
// orientation and promptLanguage fields. Anything else is plain text. Callers
// apply this only to index-0 user messages.
func DecodeEnvelope(content string) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return Envelope{}, false
	}
	if env.Idea == "" || env.Orientation == "" || env.PromptLanguage == "" {
		return Envelope{}, false
	}
	return env, true
}

type ContentKind int

const (
	ContentPlainText ContentKind = iota
	ContentEnvelope
)

// MessageContent is the decoded form of a message body. Persisted storage
// keeps the untyped JSON string; this variant is what business logic sees
// after the one boundary-time decode.
type MessageContent struct {
	Kind     ContentKind
	Text     string
	Envelope Envelope
}

// ParseMessageContent classifies a message body. Only the seed message of a
// session (index 0, role user) is ever considered an envelope candidate.
func ParseMessageContent(index int, msg Message) MessageContent {
	if index == 0 && msg.Role == RoleUser {
		if env, ok := DecodeEnvelope(msg.Content); ok {
			return MessageContent{Kind: ContentEnvelope, Envelope: env}
		}
	}
	return MessageContent{Kind: ContentPlainText, Text: msg.Content}
}

// DecodeDataURL extracts the raw bytes from a base64 data URL
// ("data:image/png;base64,...."). A bare base64 string is accepted too.
func DecodeDataURL(dataURL string) ([]byte, error) {
	payload := dataURL
	if idx := strings.IndexByte(dataURL, ','); idx >= 0 {
		payload = dataURL[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding image data url: %w", err)
	}
	return data, nil
}
