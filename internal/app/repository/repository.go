// Package repository owns the set of sessions, the current-selection pointer
// and the app settings, keeping all of them in sync with the persistent
// store. It is the single shared mutable resource of the application: every
// write from the timeline operations and the streaming controller lands here.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sorafy/sorafy-agent/internal/domain"
	"github.com/sorafy/sorafy-agent/internal/observability"
)

const (
	keySessions  = "sorafy-sessions"
	keyCurrentID = "sorafy-current-session-id"
	keySettings  = "sorafy-settings"

	// FallbackTitle is used when a session is created from a blank idea.
	FallbackTitle = "New Creation"

	titleMaxRunes = 30
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidBundle   = errors.New("invalid session bundle")
)

// ExportBundle is the on-disk exchange format. The fixed top-level key lets
// re-import validate the shape before touching anything.
type ExportBundle struct {
	DialogHistory []*domain.Session `json:"dialogHistory"`
}

type Repository struct {
	store     domain.KeyValueStore
	suggester domain.TitleSuggester

	mu        sync.Mutex
	sessions  []*domain.Session
	currentID domain.SessionID
	settings  domain.AppSettings

	now   func() time.Time
	newID func() string
}

// New loads persisted state and subscribes to external store changes.
// defaults are used when no settings have been persisted yet; suggester may
// be nil, auto-rename then becomes a no-op.
func New(store domain.KeyValueStore, suggester domain.TitleSuggester, defaults domain.AppSettings) *Repository {
	r := &Repository{
		store:     store,
		suggester: suggester,
		settings:  defaults,
		now:       time.Now,
		newID:     uuid.NewString,
	}

	store.Get(keySessions, &r.sessions)
	store.Get(keyCurrentID, &r.currentID)
	store.Get(keySettings, &r.settings)
	r.dropCurrentIfMissingLocked()

	store.Subscribe(r.onExternalChange)
	return r
}

// onExternalChange resynchronizes from a sibling process write. Last write
// wins; in-flight local state is simply replaced.
func (r *Repository) onExternalChange(key string, raw []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch key {
	case keySessions:
		if !ok {
			r.sessions = nil
			r.currentID = ""
			return
		}
		var sessions []*domain.Session
		if err := json.Unmarshal(raw, &sessions); err != nil {
			observability.Logger().Warn("ignoring corrupt external session update", "error", err)
			return
		}
		r.sessions = sessions
		r.dropCurrentIfMissingLocked()
	case keyCurrentID:
		var id domain.SessionID
		if ok && json.Unmarshal(raw, &id) == nil {
			r.currentID = id
		} else {
			r.currentID = ""
		}
		r.dropCurrentIfMissingLocked()
	case keySettings:
		var settings domain.AppSettings
		if ok && json.Unmarshal(raw, &settings) == nil {
			r.settings = settings
		}
	}
}

func (r *Repository) dropCurrentIfMissingLocked() {
	if r.currentID == "" {
		return
	}
	if r.findLocked(r.currentID) < 0 {
		r.currentID = ""
	}
}

func (r *Repository) findLocked(id domain.SessionID) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// persist failures are logged, never returned: the in-memory state stays
// authoritative and the caller proceeds as if the write succeeded.
func (r *Repository) persistSessionsLocked() {
	if err := r.store.Set(keySessions, r.sessions); err != nil {
		observability.Logger().Error("persisting sessions failed", "error", err)
	}
}

func (r *Repository) persistCurrentLocked() {
	if err := r.store.Set(keyCurrentID, r.currentID); err != nil {
		observability.Logger().Error("persisting current session id failed", "error", err)
	}
}

// CreateSession builds a session around the creation parameters, seeds it
// with the envelope message, prepends it and makes it current.
func (r *Repository) CreateSession(settings domain.InitialSettings) (*domain.Session, error) {
	content, err := domain.EncodeEnvelope(settings)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	session := &domain.Session{
		ID:    domain.SessionID(r.newID()),
		Title: titleFromIdea(settings.Idea),
		Messages: []domain.Message{{
			ID:        domain.MessageID(r.newID()),
			Role:      domain.RoleUser,
			Content:   content,
			Timestamp: now,
		}},
		InitialSettings: settings,
		CreatedAt:       now,
	}

	r.sessions = append([]*domain.Session{session}, r.sessions...)
	r.currentID = session.ID
	r.persistSessionsLocked()
	r.persistCurrentLocked()

	observability.Logger().Info("session created", "session_id", session.ID, "title", session.Title)
	return session.Clone(), nil
}

func titleFromIdea(idea string) string {
	runes := []rune(idea)
	if len(runes) == 0 {
		return FallbackTitle
	}
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes)
}

// GetSession returns a deep copy of the session with the given id.
func (r *Repository) GetSession(id domain.SessionID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.findLocked(id)
	if idx < 0 {
		return nil, ErrSessionNotFound
	}
	return r.sessions[idx].Clone(), nil
}

// ListSessions returns copies of all sessions, newest first.
func (r *Repository) ListSessions() []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CurrentSessionID returns the current-selection pointer, empty when no
// session is selected.
func (r *Repository) CurrentSessionID() domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// SelectSession sets the current session pointer. Unknown ids are a no-op.
func (r *Repository) SelectSession(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(id) < 0 {
		return
	}
	r.currentID = id
	r.persistCurrentLocked()
}

// DeselectSession clears the current session pointer.
func (r *Repository) DeselectSession() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentID = ""
	r.persistCurrentLocked()
}

// UpdateSession replaces the stored session with the same id by full value.
// An unknown id is an invariant violation at the caller, not a user-facing
// error: it is logged and otherwise ignored.
func (r *Repository) UpdateSession(session *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.findLocked(session.ID)
	if idx < 0 {
		observability.Logger().Warn("update for unknown session dropped", "session_id", session.ID)
		return
	}
	r.sessions[idx] = session.Clone()
	r.persistSessionsLocked()
}

// DeleteSession removes the session. If it was current, the most recently
// created remaining session becomes current, or selection clears.
func (r *Repository) DeleteSession(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.findLocked(id)
	if idx < 0 {
		return
	}
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)

	if r.currentID == id {
		r.currentID = ""
		var newest *domain.Session
		for _, s := range r.sessions {
			if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
				newest = s
			}
		}
		if newest != nil {
			r.currentID = newest.ID
		}
		r.persistCurrentLocked()
	}
	r.persistSessionsLocked()

	observability.Logger().Info("session deleted", "session_id", id)
}

// RenameSession sets the session title. Display rules (trimming, non-empty)
// are the caller's responsibility.
func (r *Repository) RenameSession(id domain.SessionID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.findLocked(id)
	if idx < 0 {
		return
	}
	r.sessions[idx].Title = title
	r.persistSessionsLocked()
}

// AutoRenameSession asks the title suggester for a short title and applies
// it. Failures are logged and swallowed; the title simply does not change.
func (r *Repository) AutoRenameSession(ctx context.Context, id domain.SessionID) {
	if r.suggester == nil {
		return
	}

	session, err := r.GetSession(id)
	if err != nil {
		return
	}

	title, err := r.suggester.SuggestTitle(ctx, session.Messages, r.Settings().Language)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("title suggestion failed", "session_id", id, "error", err)
		return
	}
	r.RenameSession(id, title)
}

// NewMessage mints a message with a fresh id and the repository clock.
func (r *Repository) NewMessage(role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        domain.MessageID(r.newID()),
		Role:      role,
		Content:   content,
		Timestamp: r.now(),
	}
}

// Settings returns the process-wide app settings.
func (r *Repository) Settings() domain.AppSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings replaces and persists the app settings.
func (r *Repository) UpdateSettings(settings domain.AppSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = settings
	if err := r.store.Set(keySettings, r.settings); err != nil {
		observability.Logger().Error("persisting settings failed", "error", err)
	}
}

// ExportSessions wraps the selected sessions (all of them when ids is empty)
// in the fixed-shape bundle.
func (r *Repository) ExportSessions(ids []domain.SessionID) *ExportBundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	bundle := &ExportBundle{DialogHistory: []*domain.Session{}}
	if len(ids) == 0 {
		for _, s := range r.sessions {
			bundle.DialogHistory = append(bundle.DialogHistory, s.Clone())
		}
		return bundle
	}

	want := make(map[domain.SessionID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, s := range r.sessions {
		if want[s.ID] {
			bundle.DialogHistory = append(bundle.DialogHistory, s.Clone())
		}
	}
	return bundle
}

// ImportSessions validates and adopts a whole bundle, or none of it. Every
// imported session gets a fresh id and a fresh createdAt, monotonically
// offset by index so relative order survives; the batch is prepended newest
// first.
func (r *Repository) ImportSessions(bundle *ExportBundle) (int, error) {
	if bundle == nil || bundle.DialogHistory == nil {
		return 0, fmt.Errorf("%w: missing dialogHistory", ErrInvalidBundle)
	}
	for i, s := range bundle.DialogHistory {
		if err := validateImported(s); err != nil {
			return 0, fmt.Errorf("%w: entry %d: %v", ErrInvalidBundle, i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.now()
	imported := make([]*domain.Session, 0, len(bundle.DialogHistory))
	for i, s := range bundle.DialogHistory {
		cp := s.Clone()
		cp.ID = domain.SessionID(r.newID())
		cp.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		imported = append(imported, cp)
	}
	sort.SliceStable(imported, func(i, j int) bool {
		return imported[i].CreatedAt.After(imported[j].CreatedAt)
	})

	r.sessions = append(imported, r.sessions...)
	r.persistSessionsLocked()

	observability.Logger().Info("sessions imported", "count", len(imported))
	return len(imported), nil
}

func validateImported(s *domain.Session) error {
	switch {
	case s == nil:
		return errors.New("null session")
	case s.ID == "":
		return errors.New("missing id")
	case s.Title == "":
		return errors.New("missing title")
	case s.Messages == nil:
		return errors.New("missing messages")
	case s.CreatedAt.IsZero():
		return errors.New("missing createdAt")
	case emptyInitialSettings(s.InitialSettings):
		return errors.New("missing initialSettings")
	}
	return nil
}

func emptyInitialSettings(s domain.InitialSettings) bool {
	return s.PromptLanguage == "" && s.Orientation == "" && s.Idea == "" &&
		s.Duration == 0 && len(s.ReferenceImages) == 0
}
