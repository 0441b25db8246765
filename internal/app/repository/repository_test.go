package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorafy/sorafy-agent/internal/app/repository"
	"github.com/sorafy/sorafy-agent/internal/domain"
)

// memStore is an in-memory stand-in for the localstore adapter.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
	subs   []func(key string, raw []byte, ok bool)
	failOn map[string]bool
}

func newMemStore() *memStore {
	return &memStore{values: map[string][]byte{}, failOn: map[string]bool{}}
}

func (s *memStore) Get(key string, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *memStore) Set(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[key] {
		return errors.New("quota exceeded")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = raw
	return nil
}

func (s *memStore) Subscribe(fn func(key string, raw []byte, ok bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// pushExternal simulates a write performed by a sibling process.
func (s *memStore) pushExternal(key string, v any) {
	raw, _ := json.Marshal(v)
	s.mu.Lock()
	s.values[key] = raw
	subs := append(([]func(string, []byte, bool))(nil), s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(key, raw, true)
	}
}

type stubSuggester struct {
	title string
	err   error
}

func (s *stubSuggester) SuggestTitle(ctx context.Context, messages []domain.Message, language domain.Language) (string, error) {
	return s.title, s.err
}

func testSettings(idea string) domain.InitialSettings {
	return domain.InitialSettings{
		PromptLanguage: "English",
		Orientation:    domain.OrientationLandscape,
		Duration:       10,
		Idea:           idea,
	}
}

func newRepo(t *testing.T) (*repository.Repository, *memStore) {
	t.Helper()
	store := newMemStore()
	return repository.New(store, nil, domain.DefaultAppSettings()), store
}

func TestCreateSessionSeedsEnvelopeMessage(t *testing.T) {
	repo, store := newRepo(t)

	session, err := repo.CreateSession(testSettings("a cat surfing a big wave at golden hour"))
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "a cat surfing a big wave at go", session.Title)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, domain.RoleUser, session.Messages[0].Role)

	env, ok := domain.DecodeEnvelope(session.Messages[0].Content)
	require.True(t, ok)
	assert.Equal(t, "a cat surfing a big wave at golden hour", env.Idea)

	assert.Equal(t, session.ID, repo.CurrentSessionID())

	// The session list is persisted through the store.
	var persisted []*domain.Session
	require.True(t, store.Get("sorafy-sessions", &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, session.ID, persisted[0].ID)
}

func TestCreateSessionBlankIdeaFallsBackTitle(t *testing.T) {
	repo, _ := newRepo(t)

	session, err := repo.CreateSession(domain.InitialSettings{
		PromptLanguage: "English",
		Orientation:    domain.OrientationPortrait,
		Duration:       5,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.FallbackTitle, session.Title)
}

func TestSelectAndDeselect(t *testing.T) {
	repo, _ := newRepo(t)

	first, err := repo.CreateSession(testSettings("first"))
	require.NoError(t, err)
	second, err := repo.CreateSession(testSettings("second"))
	require.NoError(t, err)
	assert.Equal(t, second.ID, repo.CurrentSessionID())

	repo.SelectSession(first.ID)
	assert.Equal(t, first.ID, repo.CurrentSessionID())

	// Unknown ids are a no-op.
	repo.SelectSession("nope")
	assert.Equal(t, first.ID, repo.CurrentSessionID())

	repo.DeselectSession()
	assert.Empty(t, repo.CurrentSessionID())
}

func TestDeleteSessionSelectsNewestRemaining(t *testing.T) {
	repo, _ := newRepo(t)

	first, err := repo.CreateSession(testSettings("first"))
	require.NoError(t, err)
	second, err := repo.CreateSession(testSettings("second"))
	require.NoError(t, err)
	third, err := repo.CreateSession(testSettings("third"))
	require.NoError(t, err)

	repo.DeleteSession(third.ID)
	assert.Equal(t, second.ID, repo.CurrentSessionID())

	repo.DeleteSession(second.ID)
	repo.DeleteSession(first.ID)
	assert.Empty(t, repo.CurrentSessionID())
	assert.Empty(t, repo.ListSessions())
}

func TestUpdateSessionUnknownIDIsDropped(t *testing.T) {
	repo, _ := newRepo(t)

	_, err := repo.CreateSession(testSettings("idea"))
	require.NoError(t, err)

	repo.UpdateSession(&domain.Session{ID: "ghost", Title: "x"})
	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)
	assert.NotEqual(t, domain.SessionID("ghost"), sessions[0].ID)
}

func TestPersistenceFailureKeepsMemoryAuthoritative(t *testing.T) {
	store := newMemStore()
	repo := repository.New(store, nil, domain.DefaultAppSettings())

	store.mu.Lock()
	store.failOn["sorafy-sessions"] = true
	store.mu.Unlock()

	session, err := repo.CreateSession(testSettings("idea"))
	require.NoError(t, err)

	got, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestAutoRenameSwallowsFailure(t *testing.T) {
	store := newMemStore()
	repo := repository.New(store, &stubSuggester{err: errors.New("remote down")}, domain.DefaultAppSettings())

	session, err := repo.CreateSession(testSettings("my idea"))
	require.NoError(t, err)

	repo.AutoRenameSession(context.Background(), session.ID)
	got, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Title, got.Title)
}

func TestAutoRenameAppliesTitle(t *testing.T) {
	store := newMemStore()
	repo := repository.New(store, &stubSuggester{title: "Surfing Cat"}, domain.DefaultAppSettings())

	session, err := repo.CreateSession(testSettings("my idea"))
	require.NoError(t, err)

	repo.AutoRenameSession(context.Background(), session.ID)
	got, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Surfing Cat", got.Title)
}

func TestExportImportRoundTrip(t *testing.T) {
	repo, _ := newRepo(t)

	session, err := repo.CreateSession(testSettings("idea one"))
	require.NoError(t, err)

	bundle := repo.ExportSessions(nil)
	require.Len(t, bundle.DialogHistory, 1)

	count, err := repo.ImportSessions(bundle)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sessions := repo.ListSessions()
	require.Len(t, sessions, 2)

	imported := sessions[0] // newest first: the import
	assert.NotEqual(t, session.ID, imported.ID)
	assert.True(t, imported.CreatedAt.After(session.CreatedAt))
	assert.Equal(t, session.Title, imported.Title)
	assert.Equal(t, session.Messages[0].Content, imported.Messages[0].Content)
	assert.Equal(t, session.InitialSettings, imported.InitialSettings)
}

func TestImportRejectsWholeBatchOnOneBadEntry(t *testing.T) {
	repo, _ := newRepo(t)

	existing, err := repo.CreateSession(testSettings("existing"))
	require.NoError(t, err)

	good := repo.ExportSessions(nil).DialogHistory[0]
	bad := good.Clone()
	bad.InitialSettings = domain.InitialSettings{}

	count, err := repo.ImportSessions(&repository.ExportBundle{
		DialogHistory: []*domain.Session{good, bad},
	})
	require.ErrorIs(t, err, repository.ErrInvalidBundle)
	assert.Zero(t, count)

	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, existing.ID, sessions[0].ID)
}

func TestImportRejectsMissingBundleKey(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.ImportSessions(&repository.ExportBundle{})
	require.ErrorIs(t, err, repository.ErrInvalidBundle)
}

func TestExternalChangeResyncsSessions(t *testing.T) {
	store := newMemStore()
	repo := repository.New(store, nil, domain.DefaultAppSettings())

	_, err := repo.CreateSession(testSettings("mine"))
	require.NoError(t, err)

	other := &domain.Session{
		ID:              "other-tab",
		Title:           "From elsewhere",
		Messages:        []domain.Message{{ID: "m", Role: domain.RoleUser, Content: "hi"}},
		InitialSettings: testSettings("theirs"),
	}
	store.pushExternal("sorafy-sessions", []*domain.Session{other})

	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionID("other-tab"), sessions[0].ID)

	// The previously selected session vanished with the external write.
	assert.Empty(t, repo.CurrentSessionID())
}
