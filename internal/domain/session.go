package domain

// ImageFile is a reference image attached at session creation. The payload is
// kept inline as a base64 data URL so a session is self-contained.
type ImageFile struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	DataURL string `json:"dataUrl"`
}

// InitialSettings are the structured creation parameters captured when a
// session starts. They are also serialized into the first message's content
// (see envelope.go), which is the copy actually sent to the model.
type InitialSettings struct {
	PromptLanguage  string      `json:"promptLanguage"`
	Orientation     Orientation `json:"orientation"`
	Duration        int         `json:"duration"`
	ReferenceImages []ImageFile `json:"referenceImages"`
	Idea            string      `json:"idea"`
}

// Message is one entry in a session's timeline. Content is plain text except
// for index 0, where it holds a serialized envelope.
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// Session is one independent conversation plus its creation parameters.
// Messages index 0 is always the seed user message; the list is never empty
// once the session is persisted.
type Session struct {
	ID              SessionID       `json:"id"`
	Title           string          `json:"title"`
	Messages        []Message       `json:"messages"`
	InitialSettings InitialSettings `json:"initialSettings"`
	CreatedAt       Timestamp       `json:"createdAt"`
}

// Clone returns a deep copy safe to hand across goroutines. Messages are
// value types, so copying the slice is enough.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.InitialSettings.ReferenceImages = append([]ImageFile(nil), s.InitialSettings.ReferenceImages...)
	return &cp
}
