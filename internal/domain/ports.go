package domain

import (
	"context"
	"iter"
)

// ModelTurn is one prior conversation turn mapped for the remote model.
type ModelTurn struct {
	Role Role
	Text string
}

// TurnPart is one part of the outbound final turn: either text or an inline
// attachment. Exactly one of Text or Data is set.
type TurnPart struct {
	Text     string
	Data     []byte
	MIMEType string
}

// ModelClient defines how the conversation core talks to the remote model.
// StreamMessage reconstructs a fresh chat from the system instruction and the
// prior turns on every call, sends the new turn parts, and returns a lazy
// sequence of text deltas. Errors may surface either from the call itself or
// from within the sequence mid-stream.
type ModelClient interface {
	StreamMessage(ctx context.Context, system string, history []ModelTurn, parts []TurnPart) (iter.Seq2[string, error], error)
}

// ImageAnalyzer describes a reference image so its description can seed the
// idea field.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, image ImageFile, language Language) (string, error)
}

// TitleSuggester proposes a short session title from the message history.
type TitleSuggester interface {
	SuggestTitle(ctx context.Context, messages []Message, language Language) (string, error)
}

// KeyValueStore is durable string-keyed JSON storage with a change signal for
// writes performed by external actors (another process on the same files).
type KeyValueStore interface {
	// Get decodes the stored value into out. Returns false when the key is
	// absent or the stored value is corrupt; callers keep their default.
	Get(key string, out any) bool
	// Set durably stores the JSON encoding of v. Callers log failures and
	// keep their in-memory value authoritative.
	Set(key string, v any) error
	// Subscribe registers fn for external change notifications. raw is nil
	// and ok is false when the key was removed.
	Subscribe(fn func(key string, raw []byte, ok bool))
}
