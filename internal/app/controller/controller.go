// Package controller orchestrates exchanges with the remote model: it builds
// the outbound history for a session, merges arriving text deltas into a
// placeholder message, and finalizes or fails the exchange. At most one
// exchange is in flight per session; different sessions stream independently.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sorafy/sorafy-agent/internal/app/repository"
	"github.com/sorafy/sorafy-agent/internal/app/timeline"
	"github.com/sorafy/sorafy-agent/internal/domain"
	"github.com/sorafy/sorafy-agent/internal/observability"
)

// StreamErrorMessage is appended as a model message when an exchange fails.
const StreamErrorMessage = "Sorry, an error occurred while fetching the response."

var (
	ErrExchangeInFlight    = errors.New("an exchange is already in flight for this session")
	ErrNothingToRegenerate = errors.New("last message is not a model reply")
	ErrMessageNotFound     = errors.New("message not found")
	ErrSeedMessage         = errors.New("the seed message cannot be deleted")
)

type Controller struct {
	repo   *repository.Repository
	model  domain.ModelClient
	system string

	mu        sync.Mutex
	streaming map[domain.SessionID]context.CancelFunc
	kicked    map[domain.SessionID]bool
}

func New(repo *repository.Repository, model domain.ModelClient, systemPrompt string) *Controller {
	return &Controller{
		repo:      repo,
		model:     model,
		system:    systemPrompt,
		streaming: make(map[domain.SessionID]context.CancelFunc),
		kicked:    make(map[domain.SessionID]bool),
	}
}

// begin claims the session's exchange slot. The returned context is detached
// from the caller: a client navigating away must not abort the stream. Only
// CancelExchange (session deletion) cancels it.
func (c *Controller) begin(id domain.SessionID) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.streaming[id]; inFlight {
		return nil, nil, ErrExchangeInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.streaming[id] = cancel
	release := func() {
		c.mu.Lock()
		delete(c.streaming, id)
		c.mu.Unlock()
		cancel()
	}
	return ctx, release, nil
}

func (c *Controller) IsStreaming(id domain.SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, inFlight := c.streaming[id]
	return inFlight
}

// CancelExchange aborts the session's in-flight exchange, if any, and clears
// its one-shot kickoff flag. Called when the session is deleted; a cancelled
// exchange commits nothing further.
func (c *Controller) CancelExchange(id domain.SessionID) {
	c.mu.Lock()
	cancel := c.streaming[id]
	delete(c.kicked, id)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// CanSend reports whether a send action would start an exchange: controller
// idle, and either non-blank input or a trailing user message to resume.
func (c *Controller) CanSend(id domain.SessionID, input string) bool {
	if c.IsStreaming(id) {
		return false
	}
	if strings.TrimSpace(input) != "" {
		return true
	}
	session, err := c.repo.GetSession(id)
	if err != nil {
		return false
	}
	n := len(session.Messages)
	return n > 0 && session.Messages[n-1].Role == domain.RoleUser
}

// CanRegenerate reports whether the last message can be recomputed:
// controller idle and a trailing model message present.
func (c *Controller) CanRegenerate(id domain.SessionID) bool {
	if c.IsStreaming(id) {
		return false
	}
	session, err := c.repo.GetSession(id)
	if err != nil {
		return false
	}
	n := len(session.Messages)
	return n > 0 && session.Messages[n-1].Role == domain.RoleModel
}

// Kickoff runs the automatic first exchange of a newly created session. It
// fires at most once per session id and only while the session still holds
// exactly its seed user message, so re-selecting a session never re-fires it.
func (c *Controller) Kickoff(id domain.SessionID) error {
	c.mu.Lock()
	if c.kicked[id] {
		c.mu.Unlock()
		return nil
	}
	c.kicked[id] = true
	c.mu.Unlock()

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}
	if len(session.Messages) != 1 || session.Messages[0].Role != domain.RoleUser {
		return nil
	}

	ctx, release, err := c.begin(id)
	if err != nil {
		return err
	}
	defer release()
	return c.run(ctx, id, session.Messages)
}

// Send appends a user message with non-blank text and starts an exchange.
// Blank text resumes generation when the last message is already a user
// turn; otherwise it is a no-op.
func (c *Controller) Send(id domain.SessionID, text string) error {
	ctx, release, err := c.begin(id)
	if err != nil {
		return err
	}
	defer release()

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}
	msgs := session.Messages

	if strings.TrimSpace(text) != "" {
		msgs = timeline.Append(msgs, c.repo.NewMessage(domain.RoleUser, text))
		session.Messages = msgs
		c.repo.UpdateSession(session)
	} else if n := len(msgs); n == 0 || msgs[n-1].Role != domain.RoleUser {
		return nil
	}

	return c.run(ctx, id, msgs)
}

// Regenerate drops the trailing model reply and recomputes it from the
// shortened history.
func (c *Controller) Regenerate(id domain.SessionID) error {
	ctx, release, err := c.begin(id)
	if err != nil {
		return err
	}
	defer release()

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}
	n := len(session.Messages)
	if n == 0 || session.Messages[n-1].Role != domain.RoleModel {
		return ErrNothingToRegenerate
	}

	msgs := timeline.TruncateLast(session.Messages)
	session.Messages = msgs
	c.repo.UpdateSession(session)

	return c.run(ctx, id, msgs)
}

// EditMessage rewrites a message's content and discards everything after it.
// Editing a user message regenerates from that point; editing a model
// message only truncates.
func (c *Controller) EditMessage(id domain.SessionID, messageID domain.MessageID, content string) error {
	ctx, release, err := c.begin(id)
	if err != nil {
		return err
	}
	defer release()

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}

	msgs, edited, ok := timeline.EditInPlace(session.Messages, messageID, content)
	if !ok {
		return ErrMessageNotFound
	}
	session.Messages = msgs
	c.repo.UpdateSession(session)

	if edited.Role != domain.RoleUser {
		return nil
	}
	return c.run(ctx, id, msgs)
}

// EditEnvelope rewrites the seed message through the structured editor. The
// session-level InitialSettings are updated to match the re-encoded
// envelope, keeping the two copies consistent, and the conversation
// regenerates from the seed.
func (c *Controller) EditEnvelope(id domain.SessionID, settings domain.InitialSettings) error {
	content, err := domain.EncodeEnvelope(settings)
	if err != nil {
		return err
	}

	ctx, release, err := c.begin(id)
	if err != nil {
		return err
	}
	defer release()

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}
	if len(session.Messages) == 0 {
		return ErrMessageNotFound
	}

	msgs, _, ok := timeline.EditInPlace(session.Messages, session.Messages[0].ID, content)
	if !ok {
		return ErrMessageNotFound
	}
	session.Messages = msgs
	session.InitialSettings = settings
	c.repo.UpdateSession(session)

	return c.run(ctx, id, msgs)
}

// DeleteMessage applies the role-dependent delete policy: a user message
// takes its whole suffix with it, a model message is removed alone. The seed
// message is not deletable; delete the session instead.
func (c *Controller) DeleteMessage(id domain.SessionID, messageID domain.MessageID) error {
	if c.IsStreaming(id) {
		return ErrExchangeInFlight
	}

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}
	if len(session.Messages) > 0 && session.Messages[0].ID == messageID {
		return ErrSeedMessage
	}

	var (
		msgs []domain.Message
		ok   bool
	)
	for _, m := range session.Messages {
		if m.ID != messageID {
			continue
		}
		if m.Role == domain.RoleUser {
			msgs, ok = timeline.DeleteUserMessageAndDescendants(session.Messages, messageID)
		} else {
			msgs, ok = timeline.DeleteModelMessageOnly(session.Messages, messageID)
		}
		break
	}
	if !ok {
		return ErrMessageNotFound
	}

	session.Messages = msgs
	c.repo.UpdateSession(session)
	return nil
}

// run performs one exchange against history. The exchange slot is already
// held; errors from the remote capability are converted into a timeline
// message and never propagate.
func (c *Controller) run(ctx context.Context, id domain.SessionID, history []domain.Message) error {
	if len(history) == 0 {
		return nil
	}

	log := observability.Logger().With("session_id", id)

	session, err := c.repo.GetSession(id)
	if err != nil {
		return err
	}

	turns := make([]domain.ModelTurn, 0, len(history)-1)
	for _, m := range history[:len(history)-1] {
		turns = append(turns, domain.ModelTurn{Role: m.Role, Text: m.Content})
	}

	parts, err := c.buildFinalTurn(history, session.InitialSettings)
	if err != nil {
		return c.fail(id, history, err)
	}

	if c.repo.Settings().DebugMode {
		log.Debug("outbound request", "history_turns", len(turns), "final_parts", len(parts))
	}

	stream, err := c.model.StreamMessage(ctx, c.system, turns, parts)
	if err != nil {
		return c.fail(id, history, err)
	}

	// Commit the placeholder before the first chunk so the UI has a stable
	// message id to show a thinking state against.
	placeholder := c.repo.NewMessage(domain.RoleModel, "")
	session.Messages = timeline.Append(history, placeholder)
	c.repo.UpdateSession(session)

	var acc strings.Builder
	for chunk, err := range stream {
		if ctx.Err() != nil {
			// The session was deleted; stop consuming and commit nothing.
			log.Info("exchange cancelled", "chars", acc.Len())
			return nil
		}
		if err != nil {
			return c.fail(id, history, err)
		}
		acc.WriteString(chunk)

		current, err := c.repo.GetSession(id)
		if err != nil {
			// Session deleted mid-stream; nothing left to commit into.
			return nil
		}
		for i := range current.Messages {
			if current.Messages[i].ID == placeholder.ID {
				current.Messages[i].Content = acc.String()
				c.repo.UpdateSession(current)
				break
			}
		}
	}

	log.Info("exchange completed", "chars", acc.Len())
	return nil
}

// buildFinalTurn maps the last history message to outbound parts. The seed
// envelope expands to a synthesized instruction plus one inline part per
// reference image; any other message is sent literally with a note restating
// the session's original constraints.
func (c *Controller) buildFinalTurn(history []domain.Message, settings domain.InitialSettings) ([]domain.TurnPart, error) {
	last := history[len(history)-1]

	if len(history) == 1 && last.Role == domain.RoleUser {
		if env, ok := domain.DecodeEnvelope(last.Content); ok {
			parts := []domain.TurnPart{{Text: buildEnvelopeInstruction(env)}}
			for _, img := range env.Images {
				data, err := domain.DecodeDataURL(img.DataURL)
				if err != nil {
					return nil, err
				}
				parts = append(parts, domain.TurnPart{Data: data, MIMEType: img.Type})
			}
			return parts, nil
		}
	}

	return []domain.TurnPart{{Text: last.Content + buildContextNote(settings)}}, nil
}

// fail converts an exchange error into a visible model message appended to
// the original history, discarding any partially streamed placeholder. The
// failure stays local to the exchange.
func (c *Controller) fail(id domain.SessionID, history []domain.Message, cause error) error {
	observability.Logger().Error("exchange failed", "session_id", id, "error", cause)

	session, err := c.repo.GetSession(id)
	if err != nil {
		return nil
	}
	session.Messages = timeline.Append(history, c.repo.NewMessage(domain.RoleModel, StreamErrorMessage))
	c.repo.UpdateSession(session)
	return nil
}
